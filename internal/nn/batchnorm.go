package nn

import (
	"fmt"
	"math"

	"github.com/born-ml/sinenet/internal/autodiff"
	"github.com/born-ml/sinenet/internal/tensor"
)

// Batch norm defaults, matching the common framework defaults.
const (
	DefaultBatchNormEps      = 1e-5
	DefaultBatchNormMomentum = 0.1
)

// Normalizer is a per-channel normalization applied with channels on axis 1.
type Normalizer interface {
	Normalize(tape *autodiff.GradientTape, x *tensor.Tensor) *tensor.Tensor
}

// NormalizeOverAxis applies norm with axis moved to the channel position.
//
// The target axis is swapped with axis 1, normalized (statistics over all
// other axes), and swapped back, so the output shape equals the input shape.
// Swaps materialize contiguous tensors.
//
// Example:
//
//	bn := nn.NewBatchNorm("layer2.bn", 256)
//	h = nn.NormalizeOverAxis(tape, h, 3, bn) // h: [S, B, M, 256]
func NormalizeOverAxis(tape *autodiff.GradientTape, x *tensor.Tensor, axis int, norm Normalizer) *tensor.Tensor {
	ndim := x.NumDims()
	if axis < 0 {
		axis += ndim
	}
	if ndim < 2 || axis < 1 || axis >= ndim {
		panic(fmt.Sprintf("NormalizeOverAxis: axis %d invalid for shape %v", axis, x.Shape()))
	}
	if axis == 1 {
		return norm.Normalize(tape, x)
	}
	h := autodiff.SwapAxes(tape, x, 1, axis)
	h = norm.Normalize(tape, h)
	return autodiff.SwapAxes(tape, h, 1, axis)
}

// BatchNorm normalizes each channel of a [N, C, ...] tensor.
//
// Formula: y = gamma * (x - mean) / sqrt(var + eps) + beta
//
// In training mode mean and var are the (biased) batch statistics over every
// axis except 1, and the running estimates are updated with momentum using
// the unbiased variance. In eval mode the running estimates are used.
// The running estimates are buffers: saved and restored with the model.
type BatchNorm struct {
	features    int
	eps         float64
	momentum    float64
	gamma       *Parameter // [C], ones
	beta        *Parameter // [C], zeros
	runningMean *Parameter // [C]
	runningVar  *Parameter // [C]
	training    bool
}

// NewBatchNorm creates a batch norm over features channels in training mode.
func NewBatchNorm(name string, features int) *BatchNorm {
	return &BatchNorm{
		features:    features,
		eps:         DefaultBatchNormEps,
		momentum:    DefaultBatchNormMomentum,
		gamma:       NewParameter(name+".gamma", tensor.Ones(tensor.Shape{features})),
		beta:        NewParameter(name+".beta", tensor.Zeros(tensor.Shape{features})),
		runningMean: NewBuffer(name+".running_mean", tensor.Zeros(tensor.Shape{features})),
		runningVar:  NewBuffer(name+".running_var", tensor.Ones(tensor.Shape{features})),
		training:    true,
	}
}

// Normalize implements Normalizer with channels on axis 1.
func (bn *BatchNorm) Normalize(tape *autodiff.GradientTape, x *tensor.Tensor) *tensor.Tensor {
	shape := x.Shape()
	if len(shape) < 2 || shape[1] != bn.features {
		panic(fmt.Sprintf("BatchNorm: expected %d channels on axis 1, got shape %v", bn.features, shape))
	}
	if !bn.training {
		return bn.normalizeRunning(x)
	}

	y, stats := autodiff.BatchNorm(tape, x, bn.gamma.Tensor(), bn.beta.Tensor(), bn.eps)
	m := float64(x.NumElements() / bn.features)
	correction := 1.0
	if m > 1 {
		correction = m / (m - 1)
	}
	rm, rv := bn.runningMean.Tensor().Data(), bn.runningVar.Tensor().Data()
	for c := range rm {
		rm[c] = (1-bn.momentum)*rm[c] + bn.momentum*stats.Mean[c]
		rv[c] = (1-bn.momentum)*rv[c] + bn.momentum*stats.Variance[c]*correction
	}
	return y
}

// normalizeRunning applies the frozen affine transform of eval mode.
// It is never recorded on a tape.
func (bn *BatchNorm) normalizeRunning(x *tensor.Tensor) *tensor.Tensor {
	shape := x.Shape()
	n, c, r := shape[0], shape[1], shape[2:].NumElements()
	g, b := bn.gamma.Tensor().Data(), bn.beta.Tensor().Data()
	rm, rv := bn.runningMean.Tensor().Data(), bn.runningVar.Tensor().Data()

	y := tensor.ZerosLike(x)
	in, out := x.Data(), y.Data()
	for i := 0; i < n; i++ {
		for ch := 0; ch < c; ch++ {
			scale := g[ch] / math.Sqrt(rv[ch]+bn.eps)
			base := (i*c + ch) * r
			for k := 0; k < r; k++ {
				out[base+k] = (in[base+k]-rm[ch])*scale + b[ch]
			}
		}
	}
	return y
}

// SetTraining switches between batch statistics and running estimates.
func (bn *BatchNorm) SetTraining(training bool) {
	bn.training = training
}

// Parameters returns [gamma, beta, running_mean, running_var].
func (bn *BatchNorm) Parameters() []*Parameter {
	return []*Parameter{bn.gamma, bn.beta, bn.runningMean, bn.runningVar}
}
