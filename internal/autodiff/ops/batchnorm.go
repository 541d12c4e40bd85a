package ops

import (
	"fmt"
	"math"

	"github.com/born-ml/sinenet/internal/tensor"
)

// BatchNormOp represents training-mode batch normalization over channel axis 1:
//
//	y = γ_c · (x − μ_c) / sqrt(σ²_c + ε) + β_c
//
// where μ_c and σ²_c are computed over every axis except axis 1.
//
// Backward pass (m = elements per channel, x̂ = normalized input):
//   - dβ_c = Σ dy
//   - dγ_c = Σ dy · x̂
//   - dx = (γ_c / m) · invstd_c · (m·dy − Σdy − x̂·Σ(dy·x̂))
type BatchNormOp struct {
	x, gamma, beta *tensor.Tensor
	output         *tensor.Tensor
	xhat           *tensor.Tensor
	invStd         []float64
}

// BatchNormStats holds the per-channel batch statistics of a forward pass.
type BatchNormStats struct {
	Mean     []float64
	Variance []float64 // biased
}

// channelDims splits a [N, C, ...] shape into (N, C, R) with R the product
// of trailing dimensions.
func channelDims(shape tensor.Shape) (n, c, r int) {
	if len(shape) < 2 {
		panic(fmt.Sprintf("batch norm: need at least 2 dims [N, C, ...], got %v", shape))
	}
	return shape[0], shape[1], shape[2:].NumElements()
}

// BatchNormForward normalizes x with batch statistics and returns the op
// ready to record together with the statistics used.
func BatchNormForward(x, gamma, beta *tensor.Tensor, eps float64) (*tensor.Tensor, *BatchNormOp, BatchNormStats) {
	n, c, r := channelDims(x.Shape())
	m := float64(n * r)
	in := x.Data()

	stats := BatchNormStats{Mean: make([]float64, c), Variance: make([]float64, c)}
	for b := 0; b < n; b++ {
		for ch := 0; ch < c; ch++ {
			base := (b*c + ch) * r
			for k := 0; k < r; k++ {
				stats.Mean[ch] += in[base+k]
			}
		}
	}
	for ch := range stats.Mean {
		stats.Mean[ch] /= m
	}
	for b := 0; b < n; b++ {
		for ch := 0; ch < c; ch++ {
			base := (b*c + ch) * r
			for k := 0; k < r; k++ {
				d := in[base+k] - stats.Mean[ch]
				stats.Variance[ch] += d * d
			}
		}
	}
	invStd := make([]float64, c)
	for ch := range stats.Variance {
		stats.Variance[ch] /= m
		invStd[ch] = 1 / math.Sqrt(stats.Variance[ch]+eps)
	}

	xhat := tensor.ZerosLike(x)
	y := tensor.ZerosLike(x)
	xh, out := xhat.Data(), y.Data()
	g, bt := gamma.Data(), beta.Data()
	for b := 0; b < n; b++ {
		for ch := 0; ch < c; ch++ {
			base := (b*c + ch) * r
			for k := 0; k < r; k++ {
				v := (in[base+k] - stats.Mean[ch]) * invStd[ch]
				xh[base+k] = v
				out[base+k] = g[ch]*v + bt[ch]
			}
		}
	}

	op := &BatchNormOp{x: x, gamma: gamma, beta: beta, output: y, xhat: xhat, invStd: invStd}
	return y, op, stats
}

// Backward computes gradients for x, γ and β.
func (op *BatchNormOp) Backward(outputGrad *tensor.Tensor) []*tensor.Tensor {
	n, c, r := channelDims(op.x.Shape())
	m := float64(n * r)
	dy, xh, g := outputGrad.Data(), op.xhat.Data(), op.gamma.Data()

	dgamma := tensor.ZerosLike(op.gamma)
	dbeta := tensor.ZerosLike(op.beta)
	dg, db := dgamma.Data(), dbeta.Data()
	for b := 0; b < n; b++ {
		for ch := 0; ch < c; ch++ {
			base := (b*c + ch) * r
			for k := 0; k < r; k++ {
				db[ch] += dy[base+k]
				dg[ch] += dy[base+k] * xh[base+k]
			}
		}
	}

	dx := tensor.ZerosLike(op.x)
	d := dx.Data()
	for b := 0; b < n; b++ {
		for ch := 0; ch < c; ch++ {
			base := (b*c + ch) * r
			scale := g[ch] * op.invStd[ch] / m
			for k := 0; k < r; k++ {
				d[base+k] = scale * (m*dy[base+k] - db[ch] - xh[base+k]*dg[ch])
			}
		}
	}
	return []*tensor.Tensor{dx, dgamma, dbeta}
}

// Inputs returns [x, γ, β].
func (op *BatchNormOp) Inputs() []*tensor.Tensor {
	return []*tensor.Tensor{op.x, op.gamma, op.beta}
}

// Output returns the normalized tensor.
func (op *BatchNormOp) Output() *tensor.Tensor {
	return op.output
}
