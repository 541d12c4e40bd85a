package optim

import (
	"github.com/born-ml/sinenet/internal/nn"
	"github.com/born-ml/sinenet/internal/tensor"
)

// SGD implements Stochastic Gradient Descent optimizer with optional momentum.
//
// Update rule without momentum:
//
//	param = param - lr * gradient
//
// Update rule with momentum:
//
//	velocity = momentum * velocity + gradient
//	param = param - lr * velocity
//
// Example:
//
//	optimizer := optim.NewSGD(nn.Trainable(model), optim.SGDConfig{
//	    LR:       0.01,
//	    Momentum: 0.9,
//	})
type SGD struct {
	params     []*nn.Parameter
	lr         float64
	momentum   float64
	velocities map[*nn.Parameter]*tensor.Tensor
}

// SGDConfig holds configuration for SGD optimizer.
type SGDConfig struct {
	LR       float64 // Learning rate (default: 0.01)
	Momentum float64 // Momentum factor (default: 0.0, range: [0, 1))
}

// NewSGD creates a new SGD optimizer.
func NewSGD(params []*nn.Parameter, config SGDConfig) *SGD {
	if config.LR == 0 {
		config.LR = 0.01
	}
	return &SGD{
		params:     params,
		lr:         config.LR,
		momentum:   config.Momentum,
		velocities: make(map[*nn.Parameter]*tensor.Tensor),
	}
}

// Step performs a single optimization step.
//
// Parameters with no gradient (not in computational graph) are skipped.
func (s *SGD) Step(grads map[*tensor.Tensor]*tensor.Tensor) {
	for _, param := range s.params {
		grad := getGradient(param, grads)
		if grad == nil {
			continue
		}
		if s.momentum == 0 {
			param.Tensor().AddInPlace(-s.lr, grad)
			continue
		}

		velocity, ok := s.velocities[param]
		if !ok {
			velocity = tensor.ZerosLike(param.Tensor())
			s.velocities[param] = velocity
		}
		v, g := velocity.Data(), grad.Data()
		for i := range v {
			v[i] = s.momentum*v[i] + g[i]
		}
		param.Tensor().AddInPlace(-s.lr, velocity)
	}
}

// ZeroGrad clears gradients for all parameters.
func (s *SGD) ZeroGrad() {
	for _, param := range s.params {
		param.ZeroGrad()
	}
}

// LR returns the current learning rate.
func (s *SGD) LR() float64 {
	return s.lr
}

// SetLR updates the learning rate.
func (s *SGD) SetLR(lr float64) {
	s.lr = lr
}

// StateDict returns the optimizer state for serialization.
//
// State keys: "velocity.{param_index}" -> velocity tensor. Without momentum
// the map is empty.
func (s *SGD) StateDict() map[string]*tensor.Tensor {
	state := make(map[string]*tensor.Tensor)
	if s.momentum != 0 {
		saveBuffers("velocity", s.params, s.velocities, state)
	}
	return state
}

// LoadStateDict replaces the velocity buffers with those in state.
// Parameters without a saved velocity restart from zero.
func (s *SGD) LoadStateDict(state map[string]*tensor.Tensor) error {
	if err := checkKeys(state, len(s.params), []string{"velocity"}); err != nil {
		return err
	}
	velocities := make(map[*nn.Parameter]*tensor.Tensor)
	if err := loadBuffers("velocity", s.params, state, velocities); err != nil {
		return err
	}
	s.velocities = velocities
	return nil
}
