package ops

import "github.com/born-ml/sinenet/internal/tensor"

// SwapAxesOp represents exchanging two axes. Its own inverse, so backward
// swaps the same pair on the gradient.
type SwapAxesOp struct {
	input  *tensor.Tensor
	output *tensor.Tensor
	a, b   int
}

// NewSwapAxesOp creates a new SwapAxesOp.
func NewSwapAxesOp(input, output *tensor.Tensor, a, b int) *SwapAxesOp {
	return &SwapAxesOp{input: input, output: output, a: a, b: b}
}

// Backward swaps the axes of the gradient back.
func (op *SwapAxesOp) Backward(outputGrad *tensor.Tensor) []*tensor.Tensor {
	return []*tensor.Tensor{outputGrad.SwapAxes(op.a, op.b)}
}

// Inputs returns [x].
func (op *SwapAxesOp) Inputs() []*tensor.Tensor {
	return []*tensor.Tensor{op.input}
}

// Output returns the transposed tensor.
func (op *SwapAxesOp) Output() *tensor.Tensor {
	return op.output
}

// ReshapeOp represents a shape change that preserves element order.
type ReshapeOp struct {
	input  *tensor.Tensor
	output *tensor.Tensor
}

// NewReshapeOp creates a new ReshapeOp.
func NewReshapeOp(input, output *tensor.Tensor) *ReshapeOp {
	return &ReshapeOp{input: input, output: output}
}

// Backward reshapes the gradient to the input shape.
func (op *ReshapeOp) Backward(outputGrad *tensor.Tensor) []*tensor.Tensor {
	dx, err := outputGrad.Clone().Reshape(op.input.Shape())
	if err != nil {
		panic(err)
	}
	return []*tensor.Tensor{dx}
}

// Inputs returns [x].
func (op *ReshapeOp) Inputs() []*tensor.Tensor {
	return []*tensor.Tensor{op.input}
}

// Output returns the reshaped tensor.
func (op *ReshapeOp) Output() *tensor.Tensor {
	return op.output
}

// ConcatOp represents concatenation along one axis.
// Backward splits the gradient back into per-input pieces.
type ConcatOp struct {
	inputs []*tensor.Tensor
	output *tensor.Tensor
	axis   int
}

// NewConcatOp creates a new ConcatOp.
func NewConcatOp(inputs []*tensor.Tensor, output *tensor.Tensor, axis int) *ConcatOp {
	return &ConcatOp{inputs: inputs, output: output, axis: axis}
}

// Backward splits dy along the concatenation axis.
func (op *ConcatOp) Backward(outputGrad *tensor.Tensor) []*tensor.Tensor {
	axis := op.axis
	if axis < 0 {
		axis += outputGrad.NumDims()
	}
	sizes := make([]int, len(op.inputs))
	for i, in := range op.inputs {
		sizes[i] = in.Shape()[axis]
	}
	parts, err := outputGrad.Split(axis, sizes...)
	if err != nil {
		panic(err)
	}
	return parts
}

// Inputs returns the concatenated tensors.
func (op *ConcatOp) Inputs() []*tensor.Tensor {
	return op.inputs
}

// Output returns the concatenation.
func (op *ConcatOp) Output() *tensor.Tensor {
	return op.output
}

// MeanAxisOp represents averaging over one axis (which is removed).
// Backward spreads dy/n back over the reduced axis.
type MeanAxisOp struct {
	input  *tensor.Tensor
	output *tensor.Tensor
	axis   int
}

// NewMeanAxisOp creates a new MeanAxisOp.
func NewMeanAxisOp(input, output *tensor.Tensor, axis int) *MeanAxisOp {
	return &MeanAxisOp{input: input, output: output, axis: axis}
}

// Backward computes dx = expand(dy, axis) / n.
func (op *MeanAxisOp) Backward(outputGrad *tensor.Tensor) []*tensor.Tensor {
	axis := op.axis
	if axis < 0 {
		axis += op.input.NumDims()
	}
	n := op.input.Shape()[axis]
	return []*tensor.Tensor{outputGrad.Expand(axis, n).Scale(1 / float64(n))}
}

// Inputs returns [x].
func (op *MeanAxisOp) Inputs() []*tensor.Tensor {
	return []*tensor.Tensor{op.input}
}

// Output returns the mean.
func (op *MeanAxisOp) Output() *tensor.Tensor {
	return op.output
}

// BatchMatVecOp represents y[w] = A[w] x[w] for a constant batch of matrices.
//
// The matrices are data (a sine/cosine basis or a residual projector) and
// receive no gradient; backward computes dx[w] = A[w]ᵀ dy[w].
type BatchMatVecOp struct {
	matrices *tensor.Tensor
	input    *tensor.Tensor
	output   *tensor.Tensor
}

// NewBatchMatVecOp creates a new BatchMatVecOp.
func NewBatchMatVecOp(matrices, input, output *tensor.Tensor) *BatchMatVecOp {
	return &BatchMatVecOp{matrices: matrices, input: input, output: output}
}

// Backward computes dx = Aᵀ dy.
func (op *BatchMatVecOp) Backward(outputGrad *tensor.Tensor) []*tensor.Tensor {
	return []*tensor.Tensor{tensor.BatchMatTVec(op.matrices, outputGrad)}
}

// Inputs returns [x].
func (op *BatchMatVecOp) Inputs() []*tensor.Tensor {
	return []*tensor.Tensor{op.input}
}

// Output returns A x.
func (op *BatchMatVecOp) Output() *tensor.Tensor {
	return op.output
}
