package layers

import (
	"fmt"
	"math/rand"

	"github.com/born-ml/sinenet/internal/autodiff"
	"github.com/born-ml/sinenet/internal/feature"
	"github.com/born-ml/sinenet/internal/nn"
)

// dw3Layer is the plain-DNN baseline over raw windows:
// act(bn(linear(T→D)(x) + linear(3→D)(nlf, tau, vuv))).
type dw3Layer struct {
	base
	in   feature.Layout
	wav  *nn.Linear
	cond *nn.Linear
	bn   *nn.BatchNorm
	act  nn.Activation
}

func newDW3(name string, s DW3Spec, prev feature.Layout, rng *rand.Rand) (*dw3Layer, error) {
	if err := requireLayout(prev, "SBMT"); err != nil {
		return nil, err
	}
	if s.Size <= 0 {
		return nil, fmt.Errorf("%w: size %d", ErrInvalidSpec, s.Size)
	}
	act := s.Activation
	if act == nil {
		act = nn.LeakyReLU{Slope: nn.DefaultLeakySlope}
	}
	l := &dw3Layer{
		base: base{name: name + "/" + s.Kind(), out: prev.WithLast(feature.D, s.Size)},
		in:   prev,
		wav:  nn.NewLinear(name+".wav", prev.LastSize(), s.Size, rng),
		cond: nn.NewLinear(name+".cond", 3, s.Size, rng),
		act:  act,
	}
	if s.BatchNorm {
		l.bn = nn.NewBatchNorm(name+".bn", s.Size)
	}
	return l, nil
}

func (l *dw3Layer) Forward(tape *autodiff.GradientTape, in *feature.Dict) (*feature.Dict, error) {
	x, err := readWindows(in, l.in)
	if err != nil {
		return nil, err
	}
	cond, err := readConditioning(in, l.in)
	if err != nil {
		return nil, err
	}
	y := autodiff.Add(tape, l.wav.Forward(tape, x), l.cond.Forward(tape, cond.triplet()))
	if l.bn != nil {
		y = nn.NormalizeOverAxis(tape, y, 3, l.bn)
	}
	y = l.act.Forward(tape, y)

	out := in.CopyExcept(consumedKeys...)
	if err := out.Set(feature.Hidden, y, l.out); err != nil {
		return nil, err
	}
	return out, nil
}

func (l *dw3Layer) Parameters() []*nn.Parameter {
	params := append(l.wav.Parameters(), l.cond.Parameters()...)
	if l.bn != nil {
		params = append(params, l.bn.Parameters()...)
	}
	return params
}

func (l *dw3Layer) SetTraining(training bool) {
	if l.bn != nil {
		l.bn.SetTraining(training)
	}
}
