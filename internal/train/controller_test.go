package train

import (
	"context"
	"errors"
	"log/slog"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/born-ml/sinenet/internal/feature"
)

// scriptedModel reports a fixed sequence of per-epoch losses for the
// decision split and records every call the controller makes.
type scriptedModel struct {
	losses   []float64 // indexed by epoch-1
	split    string    // split whose loss follows the script
	epoch    int
	lr       float64
	training bool

	updates   int
	saved     []string
	loaded    []string
	lrAtLoad  []float64
	updateErr error
	saveErr   error
}

func (m *scriptedModel) Train() { m.training = true }
func (m *scriptedModel) Eval()  { m.training = false; m.epoch++ }

func (m *scriptedModel) UpdateParameters(_ context.Context, _ *feature.Dict) error {
	if m.updateErr != nil {
		return m.updateErr
	}
	m.updates++
	return nil
}

func (m *scriptedModel) LossValue(_ context.Context, d *feature.Dict) (float64, error) {
	split, err := d.Labels()
	if err != nil {
		return 0, err
	}
	if len(split) == 1 && splitNames[split[0]] == m.split {
		return m.losses[m.epoch-1], nil
	}
	return 10, nil
}

func (m *scriptedModel) Save(_ context.Context, name string) error {
	m.saved = append(m.saved, name)
	return m.saveErr
}

func (m *scriptedModel) Load(_ context.Context, name string) error {
	m.loaded = append(m.loaded, name)
	m.lrAtLoad = append(m.lrAtLoad, m.lr)
	return nil
}

func (m *scriptedModel) LearningRate() float64     { return m.lr }
func (m *scriptedModel) SetLearningRate(lr float64) { m.lr = lr }

var splitNames = []string{SplitTrain, SplitValid, SplitTest}

// splitLoader tags each dict with the index of its split.
type splitLoader struct {
	calls map[string]int
	err   error
}

func (l *splitLoader) MakeFeedDict(_ context.Context, split string) (*feature.Dict, int, error) {
	if l.err != nil {
		return nil, 0, l.err
	}
	if l.calls == nil {
		l.calls = map[string]int{}
	}
	l.calls[split]++
	d := feature.NewDict()
	for i, s := range splitNames {
		if s == split {
			d.SetLabels([]int{i})
		}
	}
	return d, 1, nil
}

func testConfig(epochs int) Config {
	return Config{
		NumTrainEpoch:  epochs,
		EpochNumBatch:  map[string]int{SplitTrain: 3, SplitValid: 2},
		EarlyStopEpoch: 2,
		MaxNumDecay:    1,
		NNetsFileName:  "speaker",
	}
}

func TestControllerDecaysAndFinishes(t *testing.T) {
	m := &scriptedModel{
		losses: []float64{1.0, 0.9, 0.95, 0.96, 0.97, 0.98, 0.99, 1.0, 0.1},
		split:  SplitValid,
		lr:     0.01,
	}
	data := &splitLoader{}
	c, err := NewController(testConfig(9), m, data, nil)
	require.NoError(t, err)

	res, err := c.Run(context.Background())
	require.NoError(t, err)

	assert.True(t, res.Stopped)
	assert.Equal(t, 8, res.Epochs)
	assert.Equal(t, 0.9, res.BestLoss)
	assert.Equal(t, 2, res.BestEpoch)
	assert.Equal(t, []string{"speaker", "speaker"}, m.saved)
	assert.Equal(t, []string{"speaker"}, m.loaded)
	assert.Equal(t, []float64{0.005}, m.lrAtLoad, "learning rate is halved before reloading")
	assert.Equal(t, 0.005, m.lr)
	assert.Equal(t, Decay, res.History[4].Decision)
	assert.Equal(t, 0.005, res.History[4].LearningRate)
	assert.Equal(t, Stopped, c.Phase())

	assert.Equal(t, 8*3, m.updates)
	assert.Equal(t, 8*3+8*2, data.calls[SplitTrain])
	assert.Equal(t, 8*2, data.calls[SplitValid])
	assert.Equal(t, 8*2, data.calls[SplitTest])
}

func TestControllerReachesEpochLimit(t *testing.T) {
	m := &scriptedModel{losses: []float64{3, 2, 1}, split: SplitValid, lr: 1}
	var hooks int
	cfg := testConfig(3)
	cfg.AdditionalActionEpoch = func(_ *slog.Logger, model Model) {
		assert.Same(t, Model(m), model)
		hooks++
	}
	c, err := NewController(cfg, m, &splitLoader{}, nil)
	require.NoError(t, err)

	res, err := c.Run(context.Background())
	require.NoError(t, err)
	assert.False(t, res.Stopped)
	assert.Equal(t, 3, res.Epochs)
	assert.Equal(t, 3, hooks)
	assert.Equal(t, 1.0, res.BestLoss)
	require.Len(t, res.History, 3)
	assert.Equal(t, 10.0, res.History[0].Train)
	assert.Equal(t, 3.0, res.History[0].Valid)
	assert.Equal(t, 10.0, res.History[0].Test)
}

func TestControllerHookSkippedOnFinish(t *testing.T) {
	m := &scriptedModel{losses: []float64{1, 2, 3, 4}, split: SplitValid, lr: 1}
	cfg := testConfig(4)
	cfg.EarlyStopEpoch = 1
	cfg.MaxNumDecay = 0
	var hooks int
	cfg.AdditionalActionEpoch = func(*slog.Logger, Model) { hooks++ }
	c, err := NewController(cfg, m, &splitLoader{}, nil)
	require.NoError(t, err)

	res, err := c.Run(context.Background())
	require.NoError(t, err)
	assert.True(t, res.Stopped)
	assert.Equal(t, 3, res.Epochs)
	assert.Equal(t, 2, hooks)
}

func TestControllerOverfitDecidesOnTrain(t *testing.T) {
	m := &scriptedModel{losses: []float64{2, 1}, split: SplitTrain, lr: 1}
	cfg := testConfig(2)
	cfg.Overfit = true
	c, err := NewController(cfg, m, &splitLoader{}, nil)
	require.NoError(t, err)
	assert.Equal(t, "speaker"+OverfitSuffix, c.NNetsFileName())

	res, err := c.Run(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 1.0, res.BestLoss)
	assert.Equal(t, "speaker_overfit_train", res.NNetsFileName)
	assert.Equal(t, []string{"speaker_overfit_train", "speaker_overfit_train"}, m.saved)
}

func TestControllerDeterministic(t *testing.T) {
	run := func() Result {
		m := &scriptedModel{losses: []float64{1, 0.5, 0.7, 0.8, 0.9, 1.1}, split: SplitValid, lr: 0.1}
		c, err := NewController(testConfig(6), m, &splitLoader{}, nil)
		require.NoError(t, err)
		res, err := c.Run(context.Background())
		require.NoError(t, err)
		return res
	}
	assert.Equal(t, run(), run())
}

func TestControllerErrors(t *testing.T) {
	boom := errors.New("boom")

	t.Run("update", func(t *testing.T) {
		m := &scriptedModel{losses: []float64{1}, split: SplitValid, updateErr: boom}
		c, err := NewController(testConfig(1), m, &splitLoader{}, nil)
		require.NoError(t, err)
		_, err = c.Run(context.Background())
		require.ErrorIs(t, err, boom)
		assert.Contains(t, err.Error(), "epoch 1")
	})

	t.Run("loader", func(t *testing.T) {
		m := &scriptedModel{losses: []float64{1}, split: SplitValid}
		c, err := NewController(testConfig(1), m, &splitLoader{err: boom}, nil)
		require.NoError(t, err)
		_, err = c.Run(context.Background())
		require.ErrorIs(t, err, boom)
	})

	t.Run("save", func(t *testing.T) {
		m := &scriptedModel{losses: []float64{1}, split: SplitValid, saveErr: boom}
		c, err := NewController(testConfig(1), m, &splitLoader{}, nil)
		require.NoError(t, err)
		res, err := c.Run(context.Background())
		require.ErrorIs(t, err, boom)
		assert.Len(t, res.History, 1)
	})

	t.Run("canceled", func(t *testing.T) {
		m := &scriptedModel{losses: []float64{1}, split: SplitValid}
		c, err := NewController(testConfig(1), m, &splitLoader{}, nil)
		require.NoError(t, err)
		ctx, cancel := context.WithCancel(context.Background())
		cancel()
		_, err = c.Run(ctx)
		require.ErrorIs(t, err, context.Canceled)
		assert.Zero(t, m.updates)
	})
}

func TestNewControllerValidation(t *testing.T) {
	m := &scriptedModel{}
	data := &splitLoader{}
	tests := []struct {
		name   string
		mutate func(*Config)
	}{
		{"no epochs", func(c *Config) { c.NumTrainEpoch = 0 }},
		{"no train batches", func(c *Config) { delete(c.EpochNumBatch, SplitTrain) }},
		{"no valid batches", func(c *Config) { c.EpochNumBatch[SplitValid] = 0 }},
		{"no name", func(c *Config) { c.NNetsFileName = "" }},
		{"bad mode", func(c *Config) { c.RunMode = "fast" }},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := testConfig(1)
			tt.mutate(&cfg)
			_, err := NewController(cfg, m, data, nil)
			require.ErrorIs(t, err, ErrConfig)
		})
	}

	_, err := NewController(testConfig(1), nil, data, nil)
	require.ErrorIs(t, err, ErrConfig)

	cfg := testConfig(1)
	cfg.RunMode = Debug
	cfg.EpochNumBatch = map[string]int{SplitTrain: 1}
	_, err = NewController(cfg, m, data, nil)
	require.NoError(t, err, "debug mode needs no valid batches")
}

// quadModel fits a scalar w to 3 by gradient descent on (w-3)².
type quadModel struct {
	w, lr   float64
	updates int
	best    float64
}

func (m *quadModel) Train() {}
func (m *quadModel) Eval()  {}
func (m *quadModel) UpdateParameters(context.Context, *feature.Dict) error {
	m.w -= m.lr * 2 * (m.w - 3)
	m.updates++
	return nil
}
func (m *quadModel) LossValue(context.Context, *feature.Dict) (float64, error) {
	return (m.w - 3) * (m.w - 3), nil
}
func (m *quadModel) Save(context.Context, string) error { m.best = m.w; return nil }
func (m *quadModel) Load(context.Context, string) error { m.w = m.best; return nil }
func (m *quadModel) LearningRate() float64              { return m.lr }
func (m *quadModel) SetLearningRate(lr float64)         { m.lr = lr }

func TestControllerDebugMode(t *testing.T) {
	m := &quadModel{lr: 0.1}
	data := &splitLoader{}
	cfg := Config{
		RunMode:        Debug,
		NumTrainEpoch:  5,
		EpochNumBatch:  map[string]int{SplitTrain: 4},
		EarlyStopEpoch: 1,
		NNetsFileName:  "debug",
	}
	c, err := NewController(cfg, m, data, nil)
	require.NoError(t, err)

	res, err := c.Run(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 20, m.updates)
	assert.Equal(t, 1, data.calls[SplitTrain], "debug mode fits a single batch")
	require.Len(t, res.History, 5)
	for i := 1; i < len(res.History); i++ {
		assert.LessOrEqual(t, res.History[i].Train, res.History[i-1].Train)
	}
	assert.Equal(t, 5, res.BestEpoch)
	assert.Equal(t, "debug", res.NNetsFileName)
}

func TestControllerState(t *testing.T) {
	m := &scriptedModel{losses: []float64{1}, split: SplitValid, lr: 0.25}
	c, err := NewController(testConfig(1), m, &splitLoader{}, nil)
	require.NoError(t, err)
	_, err = c.Run(context.Background())
	require.NoError(t, err)
	s := c.State()
	assert.Equal(t, 0.25, s.LearningRate)
	assert.Equal(t, 1.0, s.BestLoss)
}
