package layers

import (
	"fmt"

	"github.com/born-ml/sinenet/internal/autodiff"
	"github.com/born-ml/sinenet/internal/feature"
	"github.com/born-ml/sinenet/internal/nn"
)

// inputLayer validates the feature the data loader provides.
type inputLayer struct {
	base
	key feature.Key
}

func newInput(name string, s InputSpec) (*inputLayer, error) {
	if s.Layout.NumAxes() == 0 {
		return nil, fmt.Errorf("%w: input layout is empty", ErrInvalidSpec)
	}
	return &inputLayer{base: base{name: name + "/" + s.Kind(), out: s.Layout}, key: s.Key}, nil
}

// Forward checks that the declared feature is present with the declared
// layout and passes the dictionary through.
func (l *inputLayer) Forward(_ *autodiff.GradientTape, in *feature.Dict) (*feature.Dict, error) {
	f, err := in.Require(l.key)
	if err != nil {
		return nil, err
	}
	if !f.Layout.Equal(l.out) {
		return nil, fmt.Errorf("%w: input %s is %s, declared %s", ErrLayout, l.key, f.Layout, l.out)
	}
	return in, nil
}

func (l *inputLayer) Parameters() []*nn.Parameter { return nil }
func (l *inputLayer) SetTraining(bool)            {}
