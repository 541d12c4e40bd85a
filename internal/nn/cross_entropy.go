package nn

import (
	"github.com/born-ml/sinenet/internal/autodiff"
	"github.com/born-ml/sinenet/internal/tensor"
)

// CrossEntropyLoss computes mean softmax cross-entropy for classification.
//
// Inputs:
//   - logits: [batch_size, num_classes] raw scores
//   - targets: class index per row
//
// Returns a single-element loss tensor, recorded on tape when recording.
//
// Example:
//
//	loss, err := nn.CrossEntropyLoss(tape, logits, labels)
//	grads := autodiff.ScalarBackward(tape, loss)
func CrossEntropyLoss(tape *autodiff.GradientTape, logits *tensor.Tensor, targets []int) (*tensor.Tensor, error) {
	return autodiff.CrossEntropy(tape, logits, targets)
}

// argmax returns the index of the maximum value in the slice.
func argmax(z []float64) int {
	maxIdx := 0
	maxVal := z[0]
	for i := 1; i < len(z); i++ {
		if z[i] > maxVal {
			maxVal = z[i]
			maxIdx = i
		}
	}
	return maxIdx
}

// Accuracy computes classification accuracy for a batch of [N, C] logits.
func Accuracy(logits *tensor.Tensor, targets []int) float64 {
	if len(targets) == 0 {
		return 0
	}
	correct := 0
	for b, target := range targets {
		if argmax(logits.Row(b)) == target {
			correct++
		}
	}
	return float64(correct) / float64(len(targets))
}
