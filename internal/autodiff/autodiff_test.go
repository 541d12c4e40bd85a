package autodiff_test

import (
	"math/rand"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/born-ml/sinenet/internal/autodiff"
	"github.com/born-ml/sinenet/internal/tensor"
)

func TestTape_Recording(t *testing.T) {
	tape := autodiff.NewGradientTape()
	assert.False(t, tape.IsRecording(), "tape should not record initially")

	tape.StartRecording()
	assert.True(t, tape.IsRecording())

	tape.StopRecording()
	assert.False(t, tape.IsRecording())

	var nilTape *autodiff.GradientTape
	assert.False(t, nilTape.IsRecording(), "nil tape never records")
}

func TestTape_Clear(t *testing.T) {
	tape := autodiff.NewGradientTape()
	tape.StartRecording()

	x := tensor.Ones(tensor.Shape{2})
	autodiff.Add(tape, x, x)
	autodiff.LeakyReLU(tape, x, 0)
	assert.Equal(t, 2, tape.NumOps())

	tape.Clear()
	assert.Equal(t, 0, tape.NumOps())
	assert.True(t, tape.IsRecording(), "clear preserves recording state")
}

func TestTape_NotRecording(t *testing.T) {
	tape := autodiff.NewGradientTape()
	x := tensor.Ones(tensor.Shape{2})
	autodiff.Add(tape, x, x)
	assert.Equal(t, 0, tape.NumOps())

	// nil tape is accepted by every wrapper
	y := autodiff.Add(nil, x, x)
	assert.Equal(t, []float64{2, 2}, y.Data())
}

func TestBackward_AccumulatesSharedInputs(t *testing.T) {
	tape := autodiff.NewGradientTape()
	tape.StartRecording()

	x := tensor.Full(tensor.Shape{3}, 2)
	y := autodiff.Add(tape, x, x) // y = 2x
	grads := tape.Backward(y, tensor.Ones(y.Shape()))

	assert.Equal(t, []float64{2, 2, 2}, grads[x].Data())
	assert.True(t, tape.IsRecording(), "backward restores recording")
}

func TestBackward_EmptyTape(t *testing.T) {
	tape := autodiff.NewGradientTape()
	x := tensor.Ones(tensor.Shape{1})
	assert.Empty(t, tape.Backward(x, x))
}

func TestDropout_ZeroProbabilityIsIdentity(t *testing.T) {
	tape := autodiff.NewGradientTape()
	tape.StartRecording()
	x := tensor.Ones(tensor.Shape{4})
	y := autodiff.Dropout(tape, x, 0, rand.New(rand.NewSource(1)))
	assert.Same(t, x, y)
	assert.Equal(t, 0, tape.NumOps())
}

func TestDropout_KeepsExpectation(t *testing.T) {
	x := tensor.Ones(tensor.Shape{20000})
	y := autodiff.Dropout(nil, x, 0.25, rand.New(rand.NewSource(7)))
	for _, v := range y.Data() {
		assert.True(t, v == 0 || v == 1/0.75)
	}
	assert.InDelta(t, 1.0, y.Mean(), 0.03)
}

func TestScalarBackward_PanicsOnVector(t *testing.T) {
	tape := autodiff.NewGradientTape()
	assert.Panics(t, func() {
		autodiff.ScalarBackward(tape, tensor.Ones(tensor.Shape{2}))
	})
}

// A small network: mean over axis 1 of leaky(Affine(x)) → cross entropy.
// Every parameter gradient is compared with central differences.
func TestGradientCheck_Network(t *testing.T) {
	rng := rand.New(rand.NewSource(42))
	x := tensor.Randn(tensor.Shape{2, 3, 4}, rng)
	w1 := tensor.Randn(tensor.Shape{5, 4}, rng)
	b1 := tensor.Randn(tensor.Shape{5}, rng)
	gamma := tensor.Full(tensor.Shape{3}, 1.2)
	beta := tensor.Full(tensor.Shape{3}, 0.1)
	w2 := tensor.Randn(tensor.Shape{3, 10}, rng)
	labels := []int{1, 2}

	forward := func(tape *autodiff.GradientTape) *tensor.Tensor {
		h := autodiff.Affine(tape, x, w1, b1)
		h, _ = autodiff.BatchNorm(tape, h, gamma, beta, 1e-5)
		h = autodiff.LeakyReLU(tape, h, 0.01)
		// [2, 3, 5] -> [2, 5, 3] -> [2, 5] -> [2, 10]
		sw := autodiff.SwapAxes(tape, h, 1, 2)
		pooled := autodiff.MeanAxis(tape, sw, 2)
		both, err := autodiff.Concat(tape, -1, pooled, pooled)
		require.NoError(t, err)
		logits := autodiff.Affine(tape, both, w2, nil)
		loss, err := autodiff.CrossEntropy(tape, logits, labels)
		require.NoError(t, err)
		return loss
	}

	tape := autodiff.NewGradientTape()
	tape.StartRecording()
	loss := forward(tape)
	grads := autodiff.ScalarBackward(tape, loss)

	const h = 1e-6
	for name, p := range map[string]*tensor.Tensor{"w1": w1, "b1": b1, "gamma": gamma, "beta": beta, "w2": w2} {
		g, ok := grads[p]
		require.True(t, ok, "missing gradient for %s", name)
		for i := range p.Data() {
			orig := p.Data()[i]
			p.Data()[i] = orig + h
			up := forward(nil).Item()
			p.Data()[i] = orig - h
			down := forward(nil).Item()
			p.Data()[i] = orig
			assert.InDelta(t, (up-down)/(2*h), g.Data()[i], 1e-5, "%s[%d]", name, i)
		}
	}
}
