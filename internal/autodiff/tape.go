package autodiff

import (
	"github.com/born-ml/sinenet/internal/autodiff/ops"
	"github.com/born-ml/sinenet/internal/tensor"
)

// GradientTape records operations during the forward pass and computes
// gradients during the backward pass using reverse-mode automatic differentiation.
//
// Usage:
//
//	tape := autodiff.NewGradientTape()
//	tape.StartRecording()
//	// ... forward pass through the layer stack ...
//	grads := tape.Backward(loss, tensor.Ones(loss.Shape()))
type GradientTape struct {
	operations []ops.Operation // Recorded operations (in execution order)
	recording  bool            // Whether tape is currently recording
}

// NewGradientTape creates a new gradient tape.
func NewGradientTape() *GradientTape {
	return &GradientTape{
		operations: make([]ops.Operation, 0, 64),
	}
}

// StartRecording enables operation recording.
func (t *GradientTape) StartRecording() {
	t.recording = true
}

// StopRecording disables operation recording.
func (t *GradientTape) StopRecording() {
	t.recording = false
}

// IsRecording returns true if the tape is currently recording operations.
// A nil tape never records, so evaluation code may pass nil.
func (t *GradientTape) IsRecording() bool {
	return t != nil && t.recording
}

// Record adds an operation to the tape.
// Only records if the tape is currently recording.
func (t *GradientTape) Record(op ops.Operation) {
	if t.IsRecording() {
		t.operations = append(t.operations, op)
	}
}

// Clear resets the tape, removing all recorded operations.
// Recording state is preserved.
func (t *GradientTape) Clear() {
	t.operations = t.operations[:0]
}

// NumOps returns the number of recorded operations.
func (t *GradientTape) NumOps() int {
	return len(t.operations)
}

// Backward computes gradients for every tensor that contributed to output
// by walking the tape in reverse.
//
// Algorithm:
//  1. Seed output with outputGrad (ones for a scalar loss)
//  2. Walk operations in reverse order
//  3. For each operation whose output has a gradient, apply the chain rule
//  4. Accumulate gradients when the same tensor is used multiple times
//
// Returns a map from tensor to its accumulated gradient. Tensors that do not
// reach output are absent.
func (t *GradientTape) Backward(output, outputGrad *tensor.Tensor) map[*tensor.Tensor]*tensor.Tensor {
	grads := make(map[*tensor.Tensor]*tensor.Tensor)
	if len(t.operations) == 0 {
		return grads
	}

	// Gradient computations must not be recorded.
	wasRecording := t.recording
	t.recording = false
	defer func() {
		t.recording = wasRecording
	}()

	grads[output] = outputGrad
	for i := len(t.operations) - 1; i >= 0; i-- {
		op := t.operations[i]
		outGrad, ok := grads[op.Output()]
		if !ok {
			continue
		}
		accumulateGrads(op.Inputs(), op.Backward(outGrad), grads)
	}
	return grads
}

// accumulateGrads adds each input gradient into grads.
func accumulateGrads(inputs, inputGrads []*tensor.Tensor, grads map[*tensor.Tensor]*tensor.Tensor) {
	for j, input := range inputs {
		if j >= len(inputGrads) {
			break
		}
		g := inputGrads[j]
		if g == nil {
			continue
		}
		if existing, ok := grads[input]; ok {
			grads[input] = existing.Add(g)
		} else {
			grads[input] = g
		}
	}
}
