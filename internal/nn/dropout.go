package nn

import (
	"math/rand"

	"github.com/born-ml/sinenet/internal/autodiff"
	"github.com/born-ml/sinenet/internal/tensor"
)

// Dropout randomly zeroes elements with probability p during training and
// rescales the survivors by 1/(1-p). It is the identity in eval mode or when
// p is 0.
type Dropout struct {
	p        float64
	rng      *rand.Rand
	training bool
}

// NewDropout creates a dropout module in training mode.
func NewDropout(p float64, rng *rand.Rand) *Dropout {
	return &Dropout{p: p, rng: rng, training: true}
}

// Forward applies dropout.
func (d *Dropout) Forward(tape *autodiff.GradientTape, x *tensor.Tensor) *tensor.Tensor {
	if !d.training || d.p <= 0 {
		return x
	}
	return autodiff.Dropout(tape, x, d.p, d.rng)
}

// P returns the drop probability.
func (d *Dropout) P() float64 {
	return d.p
}

// SetTraining toggles dropout on or off.
func (d *Dropout) SetTraining(training bool) {
	d.training = training
}

// Parameters returns nil (Dropout has no parameters).
func (d *Dropout) Parameters() []*Parameter {
	return nil
}
