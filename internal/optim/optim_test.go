package optim_test

import (
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/born-ml/sinenet/internal/nn"
	"github.com/born-ml/sinenet/internal/optim"
	"github.com/born-ml/sinenet/internal/tensor"
)

func scalarParam(name string, v float64) *nn.Parameter {
	return nn.NewParameter(name, tensor.Full(tensor.Shape{1}, v))
}

func gradOf(p *nn.Parameter, values ...float64) map[*tensor.Tensor]*tensor.Tensor {
	return map[*tensor.Tensor]*tensor.Tensor{
		p.Tensor(): tensor.New(values, p.Tensor().Shape()),
	}
}

// TestSGD_SimpleUpdate tests SGD without momentum.
func TestSGD_SimpleUpdate(t *testing.T) {
	param := scalarParam("x", 2.0)
	opt := optim.NewSGD([]*nn.Parameter{param}, optim.SGDConfig{LR: 0.1})

	opt.Step(gradOf(param, 1.0))

	// x_new = x_old - lr * grad = 2.0 - 0.1 * 1.0
	assert.InDelta(t, 1.9, param.Tensor().Item(), 1e-12)
}

// TestSGD_WithMomentum tests SGD with momentum.
func TestSGD_WithMomentum(t *testing.T) {
	param := scalarParam("x", 1.0)
	opt := optim.NewSGD([]*nn.Parameter{param}, optim.SGDConfig{LR: 0.1, Momentum: 0.9})

	// velocity = 1.0, x = 1.0 - 0.1
	opt.Step(gradOf(param, 1.0))
	assert.InDelta(t, 0.9, param.Tensor().Item(), 1e-12)

	// velocity = 0.9 + 1.0 = 1.9, x = 0.9 - 0.19
	opt.Step(gradOf(param, 1.0))
	assert.InDelta(t, 0.71, param.Tensor().Item(), 1e-12)
}

func TestSGD_SkipsMissingGradients(t *testing.T) {
	a, b := scalarParam("a", 1.0), scalarParam("b", 1.0)
	opt := optim.NewSGD([]*nn.Parameter{a, b}, optim.SGDConfig{LR: 0.5})

	opt.Step(gradOf(a, 1.0))
	assert.InDelta(t, 0.5, a.Tensor().Item(), 1e-12)
	assert.Equal(t, 1.0, b.Tensor().Item())
}

func TestSGD_SkipsBuffers(t *testing.T) {
	buf := nn.NewBuffer("running_mean", tensor.Full(tensor.Shape{1}, 3.0))
	opt := optim.NewSGD([]*nn.Parameter{buf}, optim.SGDConfig{LR: 1})

	opt.Step(gradOf(buf, 1.0))
	assert.Equal(t, 3.0, buf.Tensor().Item())
}

// TestSGD_ZeroGrad tests gradient clearing.
func TestSGD_ZeroGrad(t *testing.T) {
	param := scalarParam("x", 1.0)
	param.SetGrad(tensor.Full(tensor.Shape{1}, 5.0))
	opt := optim.NewSGD([]*nn.Parameter{param}, optim.SGDConfig{})

	opt.ZeroGrad()
	assert.Nil(t, param.Grad())
}

// TestSGD_GetSetLR tests learning rate getter/setter.
func TestSGD_GetSetLR(t *testing.T) {
	opt := optim.NewSGD(nil, optim.SGDConfig{})
	assert.Equal(t, 0.01, opt.LR())

	opt.SetLR(0.005)
	assert.Equal(t, 0.005, opt.LR())
}

// TestAdam_SimpleUpdate tests basic Adam update.
func TestAdam_SimpleUpdate(t *testing.T) {
	param := scalarParam("x", 1.0)
	opt := optim.NewAdam([]*nn.Parameter{param}, optim.AdamConfig{LR: 0.1})

	opt.Step(gradOf(param, 1.0))

	// First step: m_hat = g, v_hat = g², so the update is lr * g/(|g|+eps).
	assert.InDelta(t, 0.9, param.Tensor().Item(), 1e-6)
	assert.Equal(t, 1, opt.Timestep())
}

// TestAdam_BiasCorrection tests that bias correction keeps early steps at
// full size for a constant gradient.
func TestAdam_BiasCorrection(t *testing.T) {
	param := scalarParam("x", 0.0)
	opt := optim.NewAdam([]*nn.Parameter{param}, optim.AdamConfig{LR: 0.01})

	for i := 0; i < 3; i++ {
		opt.Step(gradOf(param, 0.5))
	}
	assert.InDelta(t, -0.03, param.Tensor().Item(), 1e-6)
}

// TestAdam_ZeroGrad tests gradient clearing.
func TestAdam_ZeroGrad(t *testing.T) {
	param := scalarParam("x", 1.0)
	param.SetGrad(tensor.Full(tensor.Shape{1}, 5.0))
	opt := optim.NewAdam([]*nn.Parameter{param}, optim.AdamConfig{})

	opt.ZeroGrad()
	assert.Nil(t, param.Grad())
	assert.Equal(t, 0.001, opt.LR())
}

// TestConvergence_SimpleQuadratic tests that both optimizers minimize f(x) = x².
func TestConvergence_SimpleQuadratic(t *testing.T) {
	tests := []struct {
		name string
		make func([]*nn.Parameter) optim.Optimizer
	}{
		{"SGD", func(p []*nn.Parameter) optim.Optimizer {
			return optim.NewSGD(p, optim.SGDConfig{LR: 0.1, Momentum: 0.9})
		}},
		{"Adam", func(p []*nn.Parameter) optim.Optimizer {
			return optim.NewAdam(p, optim.AdamConfig{LR: 0.1})
		}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			param := scalarParam("x", 3.0)
			opt := tt.make([]*nn.Parameter{param})
			for i := 0; i < 100; i++ {
				opt.Step(gradOf(param, 2*param.Tensor().Item()))
			}
			assert.Less(t, math.Abs(param.Tensor().Item()), 0.1)
		})
	}
}

// TestMultipleParameters tests optimizers with multiple parameters.
func TestMultipleParameters(t *testing.T) {
	p1 := nn.NewParameter("x1", tensor.New([]float64{1.0, 2.0}, tensor.Shape{2}))
	p2 := scalarParam("x2", 3.0)
	opt := optim.NewSGD([]*nn.Parameter{p1, p2}, optim.SGDConfig{LR: 0.1})

	opt.Step(map[*tensor.Tensor]*tensor.Tensor{
		p1.Tensor(): tensor.New([]float64{1.0, 2.0}, tensor.Shape{2}),
		p2.Tensor(): tensor.New([]float64{0.5}, tensor.Shape{1}),
	})

	assert.InDeltaSlice(t, []float64{0.9, 1.8}, p1.Tensor().Data(), 1e-12)
	assert.InDelta(t, 2.95, p2.Tensor().Item(), 1e-12)
}

func TestStateDict_RoundTrip(t *testing.T) {
	tests := []struct {
		name string
		make func([]*nn.Parameter) optim.Optimizer
	}{
		{"SGD", func(p []*nn.Parameter) optim.Optimizer {
			return optim.NewSGD(p, optim.SGDConfig{LR: 0.1, Momentum: 0.9})
		}},
		{"Adam", func(p []*nn.Parameter) optim.Optimizer {
			return optim.NewAdam(p, optim.AdamConfig{LR: 0.1})
		}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			// Two optimizers from the same state must take identical steps.
			a := scalarParam("x", 1.0)
			optA := tt.make([]*nn.Parameter{a})
			optA.Step(gradOf(a, 0.3))
			optA.Step(gradOf(a, -0.7))
			state := optA.StateDict()
			require.NotEmpty(t, state)

			b := scalarParam("x", a.Tensor().Item())
			optB := tt.make([]*nn.Parameter{b})
			require.NoError(t, optB.LoadStateDict(state))

			optA.Step(gradOf(a, 0.2))
			optB.Step(gradOf(b, 0.2))
			assert.InDelta(t, a.Tensor().Item(), b.Tensor().Item(), 1e-15)
		})
	}
}

func TestStateDict_IsACopy(t *testing.T) {
	param := scalarParam("x", 1.0)
	opt := optim.NewSGD([]*nn.Parameter{param}, optim.SGDConfig{LR: 0.1, Momentum: 0.9})
	opt.Step(gradOf(param, 1.0))

	state := opt.StateDict()
	opt.Step(gradOf(param, 1.0))
	assert.Equal(t, 1.0, state["velocity.0"].Item())
}

func TestLoadStateDict_ShapeMismatch(t *testing.T) {
	param := scalarParam("x", 1.0)
	opt := optim.NewAdam([]*nn.Parameter{param}, optim.AdamConfig{})

	err := opt.LoadStateDict(map[string]*tensor.Tensor{"m.0": tensor.Zeros(tensor.Shape{2})})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "shape mismatch")
}

func TestLoadStateDict_ForeignState(t *testing.T) {
	param := scalarParam("x", 1.0)
	sgd := optim.NewSGD([]*nn.Parameter{param}, optim.SGDConfig{LR: 0.1, Momentum: 0.9})
	sgd.Step(gradOf(param, 1.0))
	adam := optim.NewAdam([]*nn.Parameter{param}, optim.AdamConfig{LR: 0.1})
	adam.Step(gradOf(param, 1.0))

	require.ErrorIs(t, adam.LoadStateDict(sgd.StateDict()), optim.ErrForeignState)
	require.ErrorIs(t, sgd.LoadStateDict(adam.StateDict()), optim.ErrForeignState)
	assert.Equal(t, 1, adam.Timestep(), "failed load leaves the optimizer unchanged")

	err := adam.LoadStateDict(map[string]*tensor.Tensor{"m.1": tensor.Zeros(tensor.Shape{1})})
	require.ErrorIs(t, err, optim.ErrForeignState, "index past the parameter list")
}

func TestNew(t *testing.T) {
	params := []*nn.Parameter{scalarParam("x", 1.0)}

	opt, err := optim.New("Adam", params, 0.002, 0)
	require.NoError(t, err)
	assert.IsType(t, &optim.Adam{}, opt)
	assert.Equal(t, 0.002, opt.LR())

	opt, err = optim.New("sgd", params, 0.05, 0.9)
	require.NoError(t, err)
	assert.IsType(t, &optim.SGD{}, opt)

	_, err = optim.New("rmsprop", params, 0.1, 0)
	assert.ErrorIs(t, err, optim.ErrUnknownOptimizer)
}
