// Package ops defines the differentiable operations recorded on a gradient tape.
//
// Each operation keeps references to its inputs and output from the forward
// pass and computes input gradients in Backward. Supported operations:
//   - AffineOp: x @ wᵀ + b over the last axis
//   - AddOp: element-wise addition
//   - LeakyReLUOp: max(x, slope·x) (ReLU when slope is 0)
//   - DropoutOp: inverted dropout with a fixed mask
//   - SwapAxesOp, ReshapeOp, ConcatOp, MeanAxisOp: shape manipulation
//   - BatchMatVecOp: per-window matrix-vector products with a constant matrix
//   - ResidualOp: removal of a per-window least-squares basis fit
//   - BatchNormOp: batch normalization over every axis except axis 1
//   - CrossEntropyOp: mean softmax cross-entropy against class indices
package ops

import "github.com/born-ml/sinenet/internal/tensor"

// Operation represents a differentiable operation in the computation graph.
type Operation interface {
	// Backward computes gradients for inputs given the output gradient.
	// The returned slice is aligned with Inputs(); a nil entry means no
	// gradient flows to that input.
	Backward(outputGrad *tensor.Tensor) []*tensor.Tensor

	// Inputs returns the input tensors for this operation.
	Inputs() []*tensor.Tensor

	// Output returns the output tensor produced by this operation.
	Output() *tensor.Tensor
}
