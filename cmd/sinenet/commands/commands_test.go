package commands

import (
	"bytes"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/born-ml/sinenet/internal/config"
)

func run(t *testing.T, args ...string) (string, string, error) {
	t.Helper()
	cfgFile, verbose = "", false
	cmd := newRootCmd()
	var stdout, stderr bytes.Buffer
	cmd.SetOut(&stdout)
	cmd.SetErr(&stderr)
	cmd.SetArgs(args)
	err := cmd.Execute()
	return stdout.String(), stderr.String(), err
}

// smallExperiment writes a two-epoch synthetic experiment to a temp file.
func smallExperiment(t *testing.T) string {
	t.Helper()
	return writeExperiment(t, tinyExperiment())
}

func tinyExperiment() *config.Experiment {
	exp := config.Default()
	exp.Name = "tiny"
	exp.Train.NumTrainEpoch = 2
	exp.Train.EpochNumBatch = map[string]int{"train": 2, "valid": 1}
	exp.Train.NNetsFileName = "tiny"
	exp.Data.BatchSize = 4
	exp.Layers[0].Dims["S"] = 4
	exp.Layers[2].Size = 16
	exp.Layers[2].NumFreq = 4
	exp.Layers[4].Size = 16
	exp.Model.EmbeddingSize = 8
	return exp
}

func writeExperiment(t *testing.T, exp *config.Experiment) string {
	t.Helper()
	raw, err := exp.Marshal()
	require.NoError(t, err)
	path := filepath.Join(t.TempDir(), "exp.yaml")
	require.NoError(t, os.WriteFile(path, raw, 0o644))
	return path
}

func TestVersion(t *testing.T) {
	out, _, err := run(t, "version")
	require.NoError(t, err)
	assert.Equal(t, "sinenet "+version+"\n", out)
}

func TestLayersDefault(t *testing.T) {
	out, _, err := run(t, "layers")
	require.NoError(t, err)
	assert.Contains(t, out, "sinenet_v1_synthetic")
	assert.Contains(t, out, "layer2/Sinenet_V1")
	assert.Contains(t, out, "SBMD[8 9 4 64]")
	assert.Contains(t, out, "SBD[8 9 128]")
	assert.Contains(t, out, "trainable values")
}

func TestLayersBadConfig(t *testing.T) {
	path := filepath.Join(t.TempDir(), "bad.yaml")
	require.NoError(t, os.WriteFile(path, []byte("train: [1, 2"), 0o644))
	_, _, err := run(t, "layers", "-f", path)
	require.Error(t, err)

	_, _, err = run(t, "layers", "-f", filepath.Join(t.TempDir(), "missing.yaml"))
	require.ErrorIs(t, err, os.ErrNotExist)
}

func TestTrain(t *testing.T) {
	store := t.TempDir()
	out, logs, err := run(t, "train", "-f", smallExperiment(t), "--store", store)
	require.NoError(t, err)
	assert.Contains(t, out, "tiny")
	assert.Contains(t, out, "best epoch")
	assert.Contains(t, logs, "run_id=")
	assert.Contains(t, logs, "epoch loss")
	assert.Contains(t, logs, "valid accuracy")
}

func TestTrainDebugOverride(t *testing.T) {
	out, _, err := run(t, "train", "-f", smallExperiment(t), "--run-mode", "debug", "--epochs", "1")
	require.NoError(t, err)
	assert.Contains(t, out, "stopped early")
}

func TestTrainRejectsInvalidOverride(t *testing.T) {
	_, _, err := run(t, "train", "-f", smallExperiment(t), "--epochs", "0")
	require.ErrorIs(t, err, config.ErrInvalid)
}

func TestTrainRejectsGeometryMismatch(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(*config.Experiment)
	}{
		{"batch size", func(e *config.Experiment) { e.Data.BatchSize = 2 }},
		{"segment length", func(e *config.Experiment) { e.Layers[0].Dims["T"] = 1600 }},
		{"windows", func(e *config.Experiment) { e.Layers[1].WinLenShiftList = [][]int{{640, 320}, {320, 80}} }},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			exp := tinyExperiment()
			tt.mutate(exp)
			out, logs, err := run(t, "train", "-f", writeExperiment(t, exp))
			require.ErrorIs(t, err, config.ErrInvalid)
			assert.Empty(t, out)
			assert.NotContains(t, logs, "start training")
			assert.NotContains(t, logs, "epoch")
		})
	}
}
