package model_test

import (
	"context"
	"math"
	"math/rand"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/born-ml/sinenet/internal/checkpoint"
	"github.com/born-ml/sinenet/internal/feature"
	"github.com/born-ml/sinenet/internal/layers"
	"github.com/born-ml/sinenet/internal/model"
	"github.com/born-ml/sinenet/internal/nn"
	"github.com/born-ml/sinenet/internal/optim"
	"github.com/born-ml/sinenet/internal/tensor"
	"github.com/born-ml/sinenet/internal/train"
)

const (
	numUtt    = 6
	numBlocks = 3
	numFeat   = 5
	speakers  = 3
)

var _ train.Model = (*model.Speaker)(nil)

func newSpeaker(t *testing.T, optimizer string) (*model.Speaker, *checkpoint.Manager) {
	t.Helper()
	rng := rand.New(rand.NewSource(7))
	stack, err := layers.NewStack([]layers.Spec{
		layers.InputSpec{Key: feature.Hidden, Layout: feature.MustLayout("SBD", numUtt, numBlocks, numFeat)},
		layers.FCSpec{Size: 8, Activation: nn.LeakyReLU{Slope: nn.DefaultLeakySlope}, BatchNorm: true},
	}, rng)
	require.NoError(t, err)
	mgr := checkpoint.NewManager(checkpoint.NewMemory())
	m, err := model.New(stack, model.Config{
		EmbeddingSize: 4,
		NumSpeakers:   speakers,
		Optimizer:     optimizer,
		LearningRate:  0.01,
		Momentum:      0.9,
	}, mgr, rng)
	require.NoError(t, err)
	return m, mgr
}

// separable builds a batch where each utterance's features are shifted by
// its speaker index.
func separable(t *testing.T, seed int64) *feature.Dict {
	t.Helper()
	rng := rand.New(rand.NewSource(seed))
	layout := feature.MustLayout("SBD", numUtt, numBlocks, numFeat)
	x := tensor.Randn(layout.Shape(), rng)
	labels := make([]int, numUtt)
	data := x.Data()
	per := numBlocks * numFeat
	for s := range labels {
		labels[s] = s % speakers
		for i := 0; i < per; i++ {
			if i%numFeat == labels[s] {
				data[s*per+i] += 3
			}
		}
	}
	d := feature.NewDict()
	require.NoError(t, d.Set(feature.Hidden, x, layout))
	d.SetLabels(labels)
	return d
}

func TestUpdateParametersReducesLoss(t *testing.T) {
	for _, opt := range []string{"adam", "sgd"} {
		t.Run(opt, func(t *testing.T) {
			ctx := context.Background()
			m, _ := newSpeaker(t, opt)
			d := separable(t, 1)

			m.Eval()
			before, err := m.LossValue(ctx, d)
			require.NoError(t, err)

			m.Train()
			for i := 0; i < 100; i++ {
				require.NoError(t, m.UpdateParameters(ctx, d))
			}
			assert.Equal(t, 100, m.Step())

			m.Eval()
			after, err := m.LossValue(ctx, d)
			require.NoError(t, err)
			assert.Less(t, after, before)
		})
	}
}

func TestLossValueDoesNotUpdate(t *testing.T) {
	ctx := context.Background()
	m, _ := newSpeaker(t, "adam")
	m.Eval()
	d := separable(t, 2)
	before := nn.StateDict(m)
	_, err := m.LossValue(ctx, d)
	require.NoError(t, err)
	for name, v := range nn.StateDict(m) {
		assert.Equal(t, before[name].Data(), v.Data(), name)
	}
	assert.Zero(t, m.Step())
}

func TestSaveLoadRollsBack(t *testing.T) {
	ctx := context.Background()
	m, mgr := newSpeaker(t, "adam")
	d := separable(t, 3)

	require.NoError(t, m.UpdateParameters(ctx, d))
	require.NoError(t, m.Save(ctx, "best"))
	saved := nn.StateDict(m)

	for i := 0; i < 5; i++ {
		require.NoError(t, m.UpdateParameters(ctx, d))
	}
	m.SetLearningRate(0.005)
	require.NoError(t, m.Load(ctx, "best"))

	for name, v := range nn.StateDict(m) {
		assert.Equal(t, saved[name].Data(), v.Data(), name)
	}
	assert.Equal(t, 1, m.Step())
	assert.Equal(t, 0.005, m.LearningRate(), "reload keeps the decayed learning rate")

	snap, err := mgr.Load(ctx, "best")
	require.NoError(t, err)
	assert.Equal(t, 0.01, snap.LearningRate)
	assert.Equal(t, mgr.RunID().String(), snap.RunID)
	assert.Contains(t, snap.Optimizer, "step")
}

func TestLoadMissing(t *testing.T) {
	m, _ := newSpeaker(t, "sgd")
	err := m.Load(context.Background(), "nope")
	require.ErrorIs(t, err, checkpoint.ErrNotFound)
}

func TestLoadRejectsForeignSnapshot(t *testing.T) {
	ctx := context.Background()
	m, mgr := newSpeaker(t, "sgd")
	require.NoError(t, mgr.Save(ctx, &checkpoint.Snapshot{
		Name:   "other",
		Params: map[string]checkpoint.TensorData{"w": {Shape: []int{1}, Data: []float64{1}}},
	}))
	before := nn.StateDict(m)
	require.Error(t, m.Load(ctx, "other"))
	for name, v := range nn.StateDict(m) {
		assert.Equal(t, before[name].Data(), v.Data(), name)
	}
}

func TestLoadRejectsOtherOptimizerState(t *testing.T) {
	ctx := context.Background()
	d := separable(t, 6)

	sgd, sgdMgr := newSpeaker(t, "sgd")
	require.NoError(t, sgd.UpdateParameters(ctx, d))
	require.NoError(t, sgd.Save(ctx, "best"))
	snap, err := sgdMgr.Load(ctx, "best")
	require.NoError(t, err)
	require.Contains(t, snap.Optimizer, "velocity.0")

	adam, adamMgr := newSpeaker(t, "adam")
	require.NoError(t, adamMgr.Save(ctx, snap))
	for i := 0; i < 3; i++ {
		require.NoError(t, adam.UpdateParameters(ctx, d))
	}
	before := nn.StateDict(adam)

	err = adam.Load(ctx, "best")
	require.ErrorIs(t, err, optim.ErrForeignState)
	for name, v := range nn.StateDict(adam) {
		assert.Equal(t, before[name].Data(), v.Data(), name)
	}
	assert.Equal(t, 3, adam.Step())

	// The optimizer kept its own moments and still trains.
	require.NoError(t, adam.UpdateParameters(ctx, d))
}

func TestNonFiniteLoss(t *testing.T) {
	m, _ := newSpeaker(t, "adam")
	m.Eval()
	d := separable(t, 4)
	x, err := d.Tensor(feature.Hidden)
	require.NoError(t, err)
	x.Data()[0] = math.NaN()
	_, err = m.LossValue(context.Background(), d)
	require.ErrorIs(t, err, model.ErrNonFiniteLoss)
}

func TestEmbedAndAccuracy(t *testing.T) {
	m, _ := newSpeaker(t, "adam")
	m.Eval()
	d := separable(t, 5)
	e, err := m.Embed(d)
	require.NoError(t, err)
	assert.Equal(t, tensor.Shape{numUtt, 4}, e.Shape())

	acc, err := m.Accuracy(d)
	require.NoError(t, err)
	assert.GreaterOrEqual(t, acc, 0.0)
	assert.LessOrEqual(t, acc, 1.0)
}

func TestMissingLabels(t *testing.T) {
	m, _ := newSpeaker(t, "adam")
	d := separable(t, 6)
	d.Delete(feature.Speaker)
	_, err := m.LossValue(context.Background(), d)
	require.ErrorIs(t, err, feature.ErrMissingKey)
}

func TestCanceledContext(t *testing.T) {
	m, _ := newSpeaker(t, "adam")
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	require.ErrorIs(t, m.UpdateParameters(ctx, separable(t, 7)), context.Canceled)
	assert.Zero(t, m.Step())
}

func TestNewErrors(t *testing.T) {
	rng := rand.New(rand.NewSource(1))
	mgr := checkpoint.NewManager(checkpoint.NewMemory())
	hidden, err := layers.NewStack([]layers.Spec{
		layers.InputSpec{Key: feature.Hidden, Layout: feature.MustLayout("SBD", 2, 3, 4)},
	}, rng)
	require.NoError(t, err)
	wav, err := layers.NewStack([]layers.Spec{
		layers.InputSpec{Key: feature.Wav, Layout: feature.MustLayout("ST", 2, 1600)},
	}, rng)
	require.NoError(t, err)
	good := model.Config{EmbeddingSize: 4, NumSpeakers: 2, Optimizer: "adam", LearningRate: 0.1}

	tests := []struct {
		name  string
		stack *layers.Stack
		cfg   func(model.Config) model.Config
	}{
		{"no embedding", hidden, func(c model.Config) model.Config { c.EmbeddingSize = 0; return c }},
		{"no speakers", hidden, func(c model.Config) model.Config { c.NumSpeakers = 0; return c }},
		{"no learning rate", hidden, func(c model.Config) model.Config { c.LearningRate = 0; return c }},
		{"unknown optimizer", hidden, func(c model.Config) model.Config { c.Optimizer = "lbfgs"; return c }},
		{"waveform output", wav, func(c model.Config) model.Config { return c }},
		{"no stack", nil, func(c model.Config) model.Config { return c }},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := model.New(tt.stack, tt.cfg(good), mgr, rng)
			require.ErrorIs(t, err, model.ErrConfig)
		})
	}
}
