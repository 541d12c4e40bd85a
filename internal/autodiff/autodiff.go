// Package autodiff implements reverse-mode automatic differentiation for the
// float64 tensors used by the speech layers.
//
// Architecture:
//   - GradientTape: records operations during the forward pass
//   - Operation interface (package ops): each op implements its backward pass
//   - Functional wrappers (Affine, LeakyReLU, ...): compute the forward result
//     and record the op when a tape is recording
//
// Usage:
//
//	tape := autodiff.NewGradientTape()
//	tape.StartRecording()
//	h := autodiff.Affine(tape, x, w, b)
//	y := autodiff.LeakyReLU(tape, h, 0.01)
//	loss, _ := autodiff.CrossEntropy(tape, y, labels)
//	grads := autodiff.ScalarBackward(tape, loss)
//	dw := grads[w]
//
// Every wrapper accepts a nil tape, in which case it only computes the
// forward result. Evaluation passes rely on this.
package autodiff

import (
	"math/rand"

	"github.com/born-ml/sinenet/internal/autodiff/ops"
	"github.com/born-ml/sinenet/internal/tensor"
)

// Affine computes x @ wᵀ + b over the last axis of x. b may be nil.
func Affine(tape *GradientTape, x, w, b *tensor.Tensor) *tensor.Tensor {
	y := tensor.Affine(x, w, b)
	tape.Record(ops.NewAffineOp(x, w, b, y))
	return y
}

// Add returns a + b.
func Add(tape *GradientTape, a, b *tensor.Tensor) *tensor.Tensor {
	y := a.Add(b)
	tape.Record(ops.NewAddOp(a, b, y))
	return y
}

// LeakyReLU applies max(x, slope·x). Slope 0 gives ReLU.
func LeakyReLU(tape *GradientTape, x *tensor.Tensor, slope float64) *tensor.Tensor {
	y := x.Map(func(v float64) float64 {
		if v > 0 {
			return v
		}
		return slope * v
	})
	tape.Record(ops.NewLeakyReLUOp(x, y, slope))
	return y
}

// Dropout zeroes each element with probability p and scales survivors by
// 1/(1-p). With p <= 0 it returns x unchanged and records nothing.
func Dropout(tape *GradientTape, x *tensor.Tensor, p float64, rng *rand.Rand) *tensor.Tensor {
	if p <= 0 {
		return x
	}
	keep := 1 / (1 - p)
	mask := tensor.ZerosLike(x)
	m := mask.Data()
	for i := range m {
		if rng.Float64() >= p {
			m[i] = keep
		}
	}
	y := x.Mul(mask)
	tape.Record(ops.NewDropoutOp(x, y, mask))
	return y
}

// SwapAxes exchanges axes a and b.
func SwapAxes(tape *GradientTape, x *tensor.Tensor, a, b int) *tensor.Tensor {
	y := x.SwapAxes(a, b)
	tape.Record(ops.NewSwapAxesOp(x, y, a, b))
	return y
}

// Reshape changes x's shape, preserving element order.
func Reshape(tape *GradientTape, x *tensor.Tensor, shape tensor.Shape) (*tensor.Tensor, error) {
	y, err := x.Reshape(shape)
	if err != nil {
		return nil, err
	}
	tape.Record(ops.NewReshapeOp(x, y))
	return y, nil
}

// Concat joins tensors along axis.
func Concat(tape *GradientTape, axis int, xs ...*tensor.Tensor) (*tensor.Tensor, error) {
	y, err := tensor.Concat(axis, xs...)
	if err != nil {
		return nil, err
	}
	tape.Record(ops.NewConcatOp(xs, y, axis))
	return y, nil
}

// MeanAxis averages x over axis, removing it.
func MeanAxis(tape *GradientTape, x *tensor.Tensor, axis int) *tensor.Tensor {
	y := x.MeanAxis(axis)
	tape.Record(ops.NewMeanAxisOp(x, y, axis))
	return y
}

// BatchMatVec computes A[w] x[w] for every leading index w. The matrices are
// treated as constants.
func BatchMatVec(tape *GradientTape, matrices, x *tensor.Tensor) *tensor.Tensor {
	y := tensor.BatchMatVec(matrices, x)
	tape.Record(ops.NewBatchMatVecOp(matrices, x, y))
	return y
}

// Residual removes the least-squares fit of x in basis, given the solved
// system (WWᵀ+εI)⁻¹W. Both matrices are treated as constants.
func Residual(tape *GradientTape, basis, solved, x *tensor.Tensor) *tensor.Tensor {
	y := ops.ResidualForward(basis, solved, x)
	tape.Record(ops.NewResidualOp(basis, solved, x, y))
	return y
}

// BatchNorm normalizes x over every axis but 1 using batch statistics and
// returns the statistics so callers can update running estimates.
func BatchNorm(tape *GradientTape, x, gamma, beta *tensor.Tensor, eps float64) (*tensor.Tensor, ops.BatchNormStats) {
	y, op, stats := ops.BatchNormForward(x, gamma, beta, eps)
	tape.Record(op)
	return y, stats
}

// CrossEntropy computes the mean softmax cross-entropy of [N, C] logits.
func CrossEntropy(tape *GradientTape, logits *tensor.Tensor, targets []int) (*tensor.Tensor, error) {
	loss, op, err := ops.CrossEntropyForward(logits, targets)
	if err != nil {
		return nil, err
	}
	tape.Record(op)
	return loss, nil
}
