package autodiff

import (
	"fmt"

	"github.com/born-ml/sinenet/internal/tensor"
)

// ScalarBackward computes gradients of a single-element loss recorded on tape.
//
// Example:
//
//	loss, _ := autodiff.CrossEntropy(tape, logits, labels)
//	grads := autodiff.ScalarBackward(tape, loss)
//	grad := grads[weight] // dLoss/dWeight
//
// Panics if loss has more than one element; use GradientTape.Backward with an
// explicit seed gradient for non-scalar outputs.
func ScalarBackward(tape *GradientTape, loss *tensor.Tensor) map[*tensor.Tensor]*tensor.Tensor {
	if loss.NumElements() != 1 {
		panic(fmt.Sprintf("backward: loss must be scalar, got shape %v", loss.Shape()))
	}
	return tape.Backward(loss, tensor.Ones(loss.Shape()))
}
