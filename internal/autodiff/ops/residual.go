package ops

import "github.com/born-ml/sinenet/internal/tensor"

// ResidualOp represents removing the least-squares fit of x in a basis:
//
//	y[w] = x[w] − W[w]ᵀ A[w] x[w],  A[w] = (W[w] W[w]ᵀ + εI)⁻¹ W[w]
//
// W (the basis, [..., R, T]) and A (the solved system, [..., R, T]) are
// constants. The T×T projector I − WᵀA is never materialized.
//
// Backward pass: dx = dy − Aᵀ (W dy).
type ResidualOp struct {
	basis  *tensor.Tensor
	solved *tensor.Tensor
	input  *tensor.Tensor
	output *tensor.Tensor
}

// NewResidualOp creates a new ResidualOp.
func NewResidualOp(basis, solved, input, output *tensor.Tensor) *ResidualOp {
	return &ResidualOp{basis: basis, solved: solved, input: input, output: output}
}

// ResidualForward computes x − Wᵀ (A x).
func ResidualForward(basis, solved, x *tensor.Tensor) *tensor.Tensor {
	fit := tensor.BatchMatTVec(basis, tensor.BatchMatVec(solved, x))
	return x.Sub(fit)
}

// Backward computes dx = dy − Aᵀ (W dy).
func (op *ResidualOp) Backward(outputGrad *tensor.Tensor) []*tensor.Tensor {
	back := tensor.BatchMatTVec(op.solved, tensor.BatchMatVec(op.basis, outputGrad))
	return []*tensor.Tensor{outputGrad.Sub(back)}
}

// Inputs returns [x].
func (op *ResidualOp) Inputs() []*tensor.Tensor {
	return []*tensor.Tensor{op.input}
}

// Output returns the residual.
func (op *ResidualOp) Output() *tensor.Tensor {
	return op.output
}
