// Package layers implements the layer composition engine: a closed set of
// layer kinds built from specs, each declaring its output layout at
// construction so a whole stack's shapes are known before any data flows.
//
// Every layer consumes a *feature.Dict and produces a new one. Layers that
// compute features write them under feature.Hidden and drop the keys they
// consumed; unrelated keys such as the speaker label pass through.
package layers

import (
	"errors"
	"fmt"
	"math/rand"

	"github.com/born-ml/sinenet/internal/autodiff"
	"github.com/born-ml/sinenet/internal/feature"
	"github.com/born-ml/sinenet/internal/nn"
)

var (
	// ErrMissingAxis is returned when a layer's input layout lacks an axis
	// the layer needs.
	ErrMissingAxis = feature.ErrMissingAxis
	// ErrLayout is returned when the input layout has the right axes in the
	// wrong order or with the wrong last axis.
	ErrLayout = errors.New("layers: incompatible input layout")
	// ErrUnknownType is returned for an unrecognized layer type.
	ErrUnknownType = errors.New("layers: unknown layer type")
	// ErrInvalidSpec is returned for a spec with invalid sizes or options.
	ErrInvalidSpec = errors.New("layers: invalid layer spec")
)

// Layer is one stage of a stack.
type Layer interface {
	// Forward maps the input dictionary to a new one. A nil tape disables
	// gradient recording.
	Forward(tape *autodiff.GradientTape, in *feature.Dict) (*feature.Dict, error)
	// Output returns the layout of the feature the layer writes.
	Output() feature.Layout
	// Parameters returns the layer's parameters and buffers.
	Parameters() []*nn.Parameter
	// SetTraining toggles batch statistics and dropout.
	SetTraining(training bool)
	// Name returns the layer's parameter prefix and kind, e.g. "layer2/FC".
	Name() string
}

// Build constructs the layer described by spec on top of a layer whose
// output layout is prev. name prefixes parameter names. rng initializes
// weights and drives dropout.
func Build(name string, spec Spec, prev feature.Layout, rng *rand.Rand) (Layer, error) {
	p := spec.DropoutP()
	if p < 0 || p >= 1 {
		return nil, fmt.Errorf("build %s (%s): %w: dropout %v not in [0, 1)", name, spec.Kind(), ErrInvalidSpec, p)
	}

	var (
		layer Layer
		err   error
	)
	switch s := spec.(type) {
	case InputSpec:
		layer, err = newInput(name, s)
	case FCSpec:
		layer, err = newFC(name, s, prev, rng)
	case ReshapeSpec:
		layer, err = newReshape(name, s, prev)
	case DW3Spec:
		layer, err = newDW3(name, s, prev, rng)
	case SinenetSpec:
		layer, err = newSinenet(name, s, prev, rng)
	default:
		return nil, fmt.Errorf("build %s: %w %T", name, ErrUnknownType, spec)
	}
	if err != nil {
		return nil, fmt.Errorf("build %s (%s): %w", name, spec.Kind(), err)
	}

	if p > 0 {
		if layer.Output().Last() != feature.D {
			return nil, fmt.Errorf("build %s (%s): %w: dropout needs a hidden output, got %s",
				name, spec.Kind(), ErrInvalidSpec, layer.Output())
		}
		layer = &dropoutLayer{Layer: layer, drop: nn.NewDropout(p, rng)}
	}
	return layer, nil
}

// base carries the name and output layout shared by every layer.
type base struct {
	name string
	out  feature.Layout
}

func (b *base) Name() string           { return b.name }
func (b *base) Output() feature.Layout { return b.out }

// requireLayout checks that prev has exactly the axes of want, in order.
func requireLayout(prev feature.Layout, want string) error {
	axes := make([]feature.Axis, len(want))
	for i := range want {
		axes[i] = feature.Axis(want[i])
	}
	if err := prev.Require(axes...); err != nil {
		return fmt.Errorf("want %s input: %w", want, err)
	}
	if prev.Name() != want {
		return fmt.Errorf("%w: want %s, got %s", ErrLayout, want, prev)
	}
	return nil
}

// dropoutLayer applies dropout to the hidden output of its layer.
type dropoutLayer struct {
	Layer
	drop *nn.Dropout
}

func (l *dropoutLayer) Forward(tape *autodiff.GradientTape, in *feature.Dict) (*feature.Dict, error) {
	out, err := l.Layer.Forward(tape, in)
	if err != nil {
		return nil, err
	}
	h, err := out.Hidden()
	if err != nil {
		return nil, err
	}
	if err := out.Set(feature.Hidden, l.drop.Forward(tape, h.Tensor), h.Layout); err != nil {
		return nil, err
	}
	return out, nil
}

func (l *dropoutLayer) SetTraining(training bool) {
	l.Layer.SetTraining(training)
	l.drop.SetTraining(training)
}

// DropoutP returns the dropout probability of layer, 0 when it has none.
func DropoutP(layer Layer) float64 {
	if d, ok := layer.(*dropoutLayer); ok {
		return d.drop.P()
	}
	return 0
}
