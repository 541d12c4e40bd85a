package optim

import (
	"math"

	"github.com/born-ml/sinenet/internal/nn"
	"github.com/born-ml/sinenet/internal/tensor"
)

// Adam implements the Adam (Adaptive Moment Estimation) optimizer.
//
// Update rule:
//
//	m_t = beta1 * m_{t-1} + (1-beta1) * gradient       // First moment
//	v_t = beta2 * v_{t-1} + (1-beta2) * gradient²      // Second moment
//	m_hat = m_t / (1 - beta1^t)                        // Bias correction
//	v_hat = v_t / (1 - beta2^t)                        // Bias correction
//	param = param - lr * m_hat / (sqrt(v_hat) + eps)   // Parameter update
//
// Reference: "Adam: A Method for Stochastic Optimization" (Kingma & Ba, 2014)
type Adam struct {
	params []*nn.Parameter
	lr     float64
	beta1  float64
	beta2  float64
	eps    float64
	t      int                              // Timestep for bias correction
	m      map[*nn.Parameter]*tensor.Tensor // First moment estimates
	v      map[*nn.Parameter]*tensor.Tensor // Second moment estimates
}

// AdamConfig holds configuration for Adam optimizer.
type AdamConfig struct {
	LR    float64    // Learning rate (default: 0.001)
	Betas [2]float64 // Coefficients for computing running averages (default: [0.9, 0.999])
	Eps   float64    // Term for numerical stability (default: 1e-8)
}

// NewAdam creates a new Adam optimizer, filling unset hyperparameters with
// the defaults above.
func NewAdam(params []*nn.Parameter, config AdamConfig) *Adam {
	if config.LR == 0 {
		config.LR = 0.001
	}
	if config.Betas[0] == 0 {
		config.Betas[0] = 0.9
	}
	if config.Betas[1] == 0 {
		config.Betas[1] = 0.999
	}
	if config.Eps == 0 {
		config.Eps = 1e-8
	}
	return &Adam{
		params: params,
		lr:     config.LR,
		beta1:  config.Betas[0],
		beta2:  config.Betas[1],
		eps:    config.Eps,
		m:      make(map[*nn.Parameter]*tensor.Tensor),
		v:      make(map[*nn.Parameter]*tensor.Tensor),
	}
}

// Step performs a single optimization step. Parameters with no gradient
// are skipped.
func (a *Adam) Step(grads map[*tensor.Tensor]*tensor.Tensor) {
	a.t++
	biasCorrection1 := 1 - math.Pow(a.beta1, float64(a.t))
	biasCorrection2 := 1 - math.Pow(a.beta2, float64(a.t))

	for _, param := range a.params {
		grad := getGradient(param, grads)
		if grad == nil {
			continue
		}
		m, ok := a.m[param]
		if !ok {
			m = tensor.ZerosLike(param.Tensor())
			a.m[param] = m
		}
		v, ok := a.v[param]
		if !ok {
			v = tensor.ZerosLike(param.Tensor())
			a.v[param] = v
		}

		g, md, vd, p := grad.Data(), m.Data(), v.Data(), param.Tensor().Data()
		for i := range p {
			md[i] = a.beta1*md[i] + (1-a.beta1)*g[i]
			vd[i] = a.beta2*vd[i] + (1-a.beta2)*g[i]*g[i]
			mHat := md[i] / biasCorrection1
			vHat := vd[i] / biasCorrection2
			p[i] -= a.lr * mHat / (math.Sqrt(vHat) + a.eps)
		}
	}
}

// ZeroGrad clears gradients for all parameters.
func (a *Adam) ZeroGrad() {
	for _, param := range a.params {
		param.ZeroGrad()
	}
}

// LR returns the current learning rate.
func (a *Adam) LR() float64 {
	return a.lr
}

// SetLR updates the learning rate.
func (a *Adam) SetLR(lr float64) {
	a.lr = lr
}

// Timestep returns the number of steps taken.
func (a *Adam) Timestep() int {
	return a.t
}

// StateDict returns "m.{i}", "v.{i}" moment buffers and the timestep
// under "step".
func (a *Adam) StateDict() map[string]*tensor.Tensor {
	state := map[string]*tensor.Tensor{
		"step": tensor.Full(tensor.Shape{1}, float64(a.t)),
	}
	saveBuffers("m", a.params, a.m, state)
	saveBuffers("v", a.params, a.v, state)
	return state
}

// LoadStateDict restores moments and timestep saved by StateDict.
func (a *Adam) LoadStateDict(state map[string]*tensor.Tensor) error {
	if err := checkKeys(state, len(a.params), []string{"m", "v"}, "step"); err != nil {
		return err
	}
	m := make(map[*nn.Parameter]*tensor.Tensor)
	v := make(map[*nn.Parameter]*tensor.Tensor)
	if err := loadBuffers("m", a.params, state, m); err != nil {
		return err
	}
	if err := loadBuffers("v", a.params, state, v); err != nil {
		return err
	}
	a.m, a.v, a.t = m, v, 0
	if step, ok := state["step"]; ok {
		a.t = int(step.Item())
	}
	return nil
}
