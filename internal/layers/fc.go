package layers

import (
	"fmt"
	"math/rand"

	"github.com/born-ml/sinenet/internal/autodiff"
	"github.com/born-ml/sinenet/internal/feature"
	"github.com/born-ml/sinenet/internal/nn"
)

// fcLayer is linear over D, optional batch norm over D, then activation.
type fcLayer struct {
	base
	in     feature.Layout
	linear *nn.Linear
	bn     *nn.BatchNorm
	act    nn.Activation
}

func newFC(name string, s FCSpec, prev feature.Layout, rng *rand.Rand) (*fcLayer, error) {
	if err := prev.Require(feature.D); err != nil {
		return nil, err
	}
	if prev.Last() != feature.D {
		return nil, fmt.Errorf("%w: fully connected layer needs last axis D, got %s", ErrLayout, prev)
	}
	if s.Size <= 0 {
		return nil, fmt.Errorf("%w: size %d", ErrInvalidSpec, s.Size)
	}
	act := s.Activation
	if act == nil {
		act = nn.Identity{}
	}
	l := &fcLayer{
		base:   base{name: name + "/" + s.Kind(), out: prev.WithLast(feature.D, s.Size)},
		in:     prev,
		linear: nn.NewLinear(name+".fc", prev.LastSize(), s.Size, rng),
		act:    act,
	}
	if s.BatchNorm {
		l.bn = nn.NewBatchNorm(name+".bn", s.Size)
	}
	return l, nil
}

func (l *fcLayer) Forward(tape *autodiff.GradientTape, in *feature.Dict) (*feature.Dict, error) {
	h, err := in.Hidden()
	if err != nil {
		return nil, err
	}
	if !h.Layout.Equal(l.in) {
		return nil, fmt.Errorf("%w: %s got %s, built for %s", ErrLayout, l.name, h.Layout, l.in)
	}
	y := l.linear.Forward(tape, h.Tensor)
	if l.bn != nil {
		y = nn.NormalizeOverAxis(tape, y, l.out.NumAxes()-1, l.bn)
	}
	y = l.act.Forward(tape, y)

	out := in.CopyExcept()
	if err := out.Set(feature.Hidden, y, l.out); err != nil {
		return nil, err
	}
	return out, nil
}

func (l *fcLayer) Parameters() []*nn.Parameter {
	params := l.linear.Parameters()
	if l.bn != nil {
		params = append(params, l.bn.Parameters()...)
	}
	return params
}

func (l *fcLayer) SetTraining(training bool) {
	if l.bn != nil {
		l.bn.SetTraining(training)
	}
}
