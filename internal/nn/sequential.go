package nn

import (
	"github.com/born-ml/sinenet/internal/autodiff"
	"github.com/born-ml/sinenet/internal/tensor"
)

// TensorModule is a module mapping one tensor to another.
type TensorModule interface {
	Module
	Forward(tape *autodiff.GradientTape, x *tensor.Tensor) *tensor.Tensor
}

// trainingSetter is implemented by modules that behave differently in
// training and evaluation (BatchNorm, Dropout).
type trainingSetter interface {
	SetTraining(training bool)
}

// Sequential is a container module that chains multiple modules together.
//
// Each module's output becomes the next module's input.
//
// Example:
//
//	head := nn.NewSequential(
//	    nn.NewLinear("embed", 256, 64, rng),
//	    nn.LeakyReLU{Slope: nn.DefaultLeakySlope},
//	    nn.NewLinear("classify", 64, numSpeakers, rng),
//	)
//	logits := head.Forward(tape, pooled)
type Sequential struct {
	modules []TensorModule
}

// NewSequential creates a new Sequential container.
func NewSequential(modules ...TensorModule) *Sequential {
	return &Sequential{modules: modules}
}

// Forward applies all modules in sequence.
func (s *Sequential) Forward(tape *autodiff.GradientTape, input *tensor.Tensor) *tensor.Tensor {
	output := input
	for _, module := range s.modules {
		output = module.Forward(tape, output)
	}
	return output
}

// Parameters returns all parameters from all modules, in order.
func (s *Sequential) Parameters() []*Parameter {
	var params []*Parameter
	for _, module := range s.modules {
		params = append(params, module.Parameters()...)
	}
	return params
}

// SetTraining propagates the mode to every module that has one.
func (s *Sequential) SetTraining(training bool) {
	for _, module := range s.modules {
		if ts, ok := module.(trainingSetter); ok {
			ts.SetTraining(training)
		}
	}
}

// Add appends a module to the sequence.
func (s *Sequential) Add(module TensorModule) {
	s.modules = append(s.modules, module)
}

// Len returns the number of modules in the sequence.
func (s *Sequential) Len() int {
	return len(s.modules)
}

// Module returns the module at the given index.
func (s *Sequential) Module(index int) TensorModule {
	return s.modules[index]
}
