package layers

import (
	"errors"
	"fmt"
	"math/rand"

	"github.com/born-ml/sinenet/internal/autodiff"
	"github.com/born-ml/sinenet/internal/feature"
	"github.com/born-ml/sinenet/internal/nn"
)

// ErrEmptyStack is returned when a stack has no input layer.
var ErrEmptyStack = errors.New("layers: stack needs an input layer")

// Stack is an ordered chain of layers. Layer i is built on the output
// layout of layer i−1, so every layout is fixed at construction.
type Stack struct {
	layers []Layer
}

// NewStack builds a stack from specs. The first spec must be an InputSpec.
// Parameter names are prefixed "layer<i>".
//
// Example:
//
//	stack, err := layers.NewStack([]layers.Spec{
//	    layers.InputSpec{Key: feature.Wav, Layout: feature.MustLayout("ST", 2, 3200)},
//	    layers.ReshapeSpec{Op: layers.WavToWindows, Windows: [2]layers.Window{{640, 320}, {400, 80}}},
//	    layers.SinenetSpec{Variant: layers.SinenetV1, Size: 64, NumFreq: 16},
//	}, rng)
func NewStack(specs []Spec, rng *rand.Rand) (*Stack, error) {
	if len(specs) == 0 {
		return nil, ErrEmptyStack
	}
	if _, ok := specs[0].(InputSpec); !ok {
		return nil, fmt.Errorf("%w: first layer is %s", ErrEmptyStack, specs[0].Kind())
	}
	s := &Stack{layers: make([]Layer, 0, len(specs))}
	var prev feature.Layout
	for i, spec := range specs {
		if i > 0 {
			if _, ok := spec.(InputSpec); ok {
				return nil, fmt.Errorf("%w: input layer at position %d", ErrInvalidSpec, i)
			}
		}
		layer, err := Build(fmt.Sprintf("layer%d", i), spec, prev, rng)
		if err != nil {
			return nil, err
		}
		s.layers = append(s.layers, layer)
		prev = layer.Output()
	}
	return s, nil
}

// Forward runs every layer in order.
func (s *Stack) Forward(tape *autodiff.GradientTape, in *feature.Dict) (*feature.Dict, error) {
	d := in
	for _, layer := range s.layers {
		var err error
		if d, err = layer.Forward(tape, d); err != nil {
			return nil, fmt.Errorf("%s: %w", layer.Name(), err)
		}
	}
	return d, nil
}

// Layers returns the layers in order.
func (s *Stack) Layers() []Layer {
	return append([]Layer(nil), s.layers...)
}

// Len returns the number of layers, input included.
func (s *Stack) Len() int {
	return len(s.layers)
}

// Layouts returns each layer's output layout in order; index 0 is the input.
func (s *Stack) Layouts() []feature.Layout {
	out := make([]feature.Layout, len(s.layers))
	for i, l := range s.layers {
		out[i] = l.Output()
	}
	return out
}

// Input returns the layout the stack expects.
func (s *Stack) Input() feature.Layout {
	return s.layers[0].Output()
}

// Output returns the layout of the final layer.
func (s *Stack) Output() feature.Layout {
	return s.layers[len(s.layers)-1].Output()
}

// Parameters returns the parameters and buffers of every layer.
func (s *Stack) Parameters() []*nn.Parameter {
	var params []*nn.Parameter
	for _, l := range s.layers {
		params = append(params, l.Parameters()...)
	}
	return params
}

// SetTraining switches every layer between training and evaluation.
func (s *Stack) SetTraining(training bool) {
	for _, l := range s.layers {
		l.SetTraining(training)
	}
}
