package ops

import "github.com/born-ml/sinenet/internal/tensor"

// AffineOp represents y = x @ wᵀ + b applied over the last axis of x.
//
// Backward pass:
//   - dx = dy @ w
//   - dw = Σ_rows dyᵀ x
//   - db = Σ_rows dy
type AffineOp struct {
	x, w, b *tensor.Tensor
	output  *tensor.Tensor
}

// NewAffineOp creates a new AffineOp. b may be nil.
func NewAffineOp(x, w, b, output *tensor.Tensor) *AffineOp {
	return &AffineOp{x: x, w: w, b: b, output: output}
}

// Backward computes gradients for x, w and (if present) b.
func (op *AffineOp) Backward(outputGrad *tensor.Tensor) []*tensor.Tensor {
	dx := tensor.MatMulLast(outputGrad, op.w)
	dw := tensor.OuterSum(outputGrad, op.x)
	if op.b == nil {
		return []*tensor.Tensor{dx, dw}
	}
	return []*tensor.Tensor{dx, dw, tensor.SumRows(outputGrad)}
}

// Inputs returns [x, w] or [x, w, b].
func (op *AffineOp) Inputs() []*tensor.Tensor {
	if op.b == nil {
		return []*tensor.Tensor{op.x, op.w}
	}
	return []*tensor.Tensor{op.x, op.w, op.b}
}

// Output returns the affine output.
func (op *AffineOp) Output() *tensor.Tensor {
	return op.output
}
