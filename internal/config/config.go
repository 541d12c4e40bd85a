// Package config loads experiment definitions from YAML.
//
// An experiment file names the seed, the training schedule, the data
// source, the speaker model head and the layer stack:
//
//	seed: 545
//	train:
//	  num_train_epoch: 100
//	  epoch_num_batch: {train: 400, valid: 400}
//	  early_stop_epoch: 2
//	  max_num_decay: 8
//	data:
//	  source: synthetic
//	  batch_size: 8
//	  segment_len: 3200
//	  win_len_shift_list: [[640, 320], [400, 80]]
//	layers:
//	  - {type: Input, feature: wav, dims: {S: 8, T: 3200}}
//	  - {type: Tensor_Reshape, io_name: wav_to_windows, win_len_shift_list: [[640, 320], [400, 80]]}
//	  - {type: Sinenet_V1, size: 64, num_freq: 16, batch_norm: true}
package config

import (
	"errors"
	"fmt"
	"os"
	"strings"

	"github.com/goccy/go-yaml"
)

// ErrInvalid is wrapped by every validation failure.
var ErrInvalid = errors.New("config: invalid experiment")

// Run modes.
const (
	RunModeNormal = "normal"
	RunModeDebug  = "debug"
)

// Data sources.
const (
	SourceSynthetic = "synthetic"
	SourceCorpus    = "corpus"
)

// Optimizers.
const (
	OptimizerAdam = "adam"
	OptimizerSGD  = "sgd"
)

// Experiment is the root of an experiment file.
type Experiment struct {
	Name   string        `yaml:"name,omitempty"`
	Seed   int64         `yaml:"seed"`
	Train  TrainConfig   `yaml:"train"`
	Data   DataConfig    `yaml:"data"`
	Model  ModelConfig   `yaml:"model"`
	Layers []LayerConfig `yaml:"layers"`
}

// TrainConfig is the training schedule.
type TrainConfig struct {
	RunMode        string         `yaml:"run_mode,omitempty"`
	Overfit        bool           `yaml:"overfit,omitempty"`
	NumTrainEpoch  int            `yaml:"num_train_epoch"`
	EpochNumBatch  map[string]int `yaml:"epoch_num_batch"`
	WarmupEpoch    int            `yaml:"warmup_epoch,omitempty"`
	EarlyStopEpoch int            `yaml:"early_stop_epoch"`
	MaxNumDecay    int            `yaml:"max_num_decay"`
	NNetsFileName  string         `yaml:"nnets_file_name,omitempty"`
	// Store is "memory" or a directory for the persistent checkpoint store.
	Store string `yaml:"store,omitempty"`
}

// DataConfig selects and shapes the data source.
type DataConfig struct {
	Source        string  `yaml:"source"`
	Root          string  `yaml:"root,omitempty"`
	NumSpeakers   int     `yaml:"num_speakers,omitempty"`
	UttPerSpeaker int     `yaml:"utt_per_speaker,omitempty"`
	BatchSize     int     `yaml:"batch_size"`
	SegmentLen    int     `yaml:"segment_len"`
	Windows       [][]int `yaml:"win_len_shift_list"`
	Noise         float64 `yaml:"noise,omitempty"`
	ValidFraction float64 `yaml:"valid_fraction,omitempty"`
	TestFraction  float64 `yaml:"test_fraction,omitempty"`
}

// ModelConfig configures the speaker head and its optimizer.
type ModelConfig struct {
	EmbeddingSize int     `yaml:"embedding_size"`
	Optimizer     string  `yaml:"optimizer,omitempty"`
	LearningRate  float64 `yaml:"learning_rate"`
	Momentum      float64 `yaml:"momentum,omitempty"`
}

// LayerConfig is one entry of the layer stack. Which fields apply depends
// on Type.
type LayerConfig struct {
	Type            string         `yaml:"type"`
	Size            int            `yaml:"size,omitempty"`
	NumFreq         int            `yaml:"num_freq,omitempty"`
	DNNSize         int            `yaml:"dnn_size,omitempty"`
	BatchNorm       bool           `yaml:"batch_norm,omitempty"`
	Activation      string         `yaml:"activation,omitempty"`
	DropoutP        float64        `yaml:"dropout_p,omitempty"`
	Regularization  float64        `yaml:"regularization,omitempty"`
	IOName          string         `yaml:"io_name,omitempty"`
	WinLenShiftList [][]int        `yaml:"win_len_shift_list,omitempty"`
	Feature         string         `yaml:"feature,omitempty"`
	Dims            map[string]int `yaml:"dims,omitempty"`
}

// Load reads, defaults and validates an experiment file.
func Load(path string) (*Experiment, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read %s: %w", path, err)
	}
	exp, err := Parse(data)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}
	return exp, nil
}

// Parse decodes an experiment from YAML, applies defaults and validates it.
func Parse(data []byte) (*Experiment, error) {
	var exp Experiment
	if err := yaml.Unmarshal(data, &exp); err != nil {
		return nil, fmt.Errorf("parse: %w", err)
	}
	exp.ApplyDefaults()
	if err := exp.Validate(); err != nil {
		return nil, err
	}
	return &exp, nil
}

// Marshal encodes the experiment as YAML.
func (e *Experiment) Marshal() ([]byte, error) {
	return yaml.Marshal(e)
}

// ApplyDefaults fills unset optional fields.
func (e *Experiment) ApplyDefaults() {
	if e.Name == "" {
		e.Name = "sinenet"
	}
	if e.Train.RunMode == "" {
		e.Train.RunMode = RunModeNormal
	}
	if e.Train.NNetsFileName == "" {
		e.Train.NNetsFileName = e.Name
	}
	if e.Train.Store == "" {
		e.Train.Store = "memory"
	}
	if e.Data.Source == "" {
		e.Data.Source = SourceSynthetic
	}
	if e.Data.UttPerSpeaker == 0 {
		e.Data.UttPerSpeaker = 20
	}
	if e.Data.ValidFraction == 0 {
		e.Data.ValidFraction = 0.1
	}
	if e.Data.TestFraction == 0 {
		e.Data.TestFraction = 0.1
	}
	if e.Model.Optimizer == "" {
		e.Model.Optimizer = OptimizerAdam
	}
	if e.Model.Optimizer == OptimizerSGD && e.Model.Momentum == 0 {
		e.Model.Momentum = 0.9
	}
}

func invalid(format string, args ...any) error {
	return fmt.Errorf("%w: %s", ErrInvalid, fmt.Sprintf(format, args...))
}

// Validate checks the experiment for values no component could accept.
// Layer-specific checks happen when the stack is built.
func (e *Experiment) Validate() error {
	t := e.Train
	switch t.RunMode {
	case RunModeNormal, RunModeDebug:
	default:
		return invalid("run_mode %q (want normal or debug)", t.RunMode)
	}
	if t.NumTrainEpoch <= 0 {
		return invalid("num_train_epoch %d must be positive", t.NumTrainEpoch)
	}
	if t.EpochNumBatch["train"] <= 0 {
		return invalid("epoch_num_batch.train must be positive")
	}
	// Debug runs evaluate the batch they train on.
	if t.RunMode == RunModeNormal && t.EpochNumBatch["valid"] <= 0 {
		return invalid("epoch_num_batch.valid must be positive")
	}
	if t.WarmupEpoch < 0 || t.EarlyStopEpoch < 0 || t.MaxNumDecay < 0 {
		return invalid("warmup_epoch, early_stop_epoch and max_num_decay must not be negative")
	}

	d := e.Data
	switch d.Source {
	case SourceSynthetic:
		if d.NumSpeakers < 2 {
			return invalid("synthetic data needs at least 2 speakers, got %d", d.NumSpeakers)
		}
	case SourceCorpus:
		if d.Root == "" {
			return invalid("corpus data needs a root directory")
		}
	default:
		return invalid("data source %q (want synthetic or corpus)", d.Source)
	}
	if d.BatchSize <= 0 || d.SegmentLen <= 0 {
		return invalid("batch_size and segment_len must be positive")
	}
	if _, err := e.Data.WindowPairs(); err != nil {
		return err
	}
	if d.ValidFraction < 0 || d.TestFraction < 0 || d.ValidFraction+d.TestFraction >= 1 {
		return invalid("valid_fraction + test_fraction must be in [0, 1)")
	}

	m := e.Model
	switch m.Optimizer {
	case OptimizerAdam, OptimizerSGD:
	default:
		return invalid("optimizer %q (want adam or sgd)", m.Optimizer)
	}
	if m.LearningRate <= 0 {
		return invalid("learning_rate %v must be positive", m.LearningRate)
	}
	if m.EmbeddingSize <= 0 {
		return invalid("embedding_size %d must be positive", m.EmbeddingSize)
	}

	if len(e.Layers) == 0 {
		return invalid("no layers")
	}
	if !strings.EqualFold(e.Layers[0].Type, "input") {
		return invalid("first layer must be Input, got %q", e.Layers[0].Type)
	}
	return nil
}

// WindowPairs returns the two (length, shift) pairs used to cut segments
// into batch items and micro-windows.
func (d DataConfig) WindowPairs() ([2][2]int, error) {
	var out [2][2]int
	if len(d.Windows) != 2 {
		return out, invalid("win_len_shift_list needs two (len, shift) pairs, got %d", len(d.Windows))
	}
	for i, pair := range d.Windows {
		if len(pair) != 2 || pair[0] <= 0 || pair[1] <= 0 {
			return out, invalid("window pair %d is %v", i, pair)
		}
		out[i] = [2]int{pair[0], pair[1]}
	}
	if out[0][0] > d.SegmentLen || out[1][0] > out[0][0] {
		return out, invalid("windows %d and %d do not fit segment_len %d", out[0][0], out[1][0], d.SegmentLen)
	}
	return out, nil
}

// Default returns a small synthetic Sinenet V1 experiment.
func Default() *Experiment {
	windows := [][]int{{640, 320}, {400, 80}}
	e := &Experiment{
		Name: "sinenet_v1_synthetic",
		Seed: 545,
		Train: TrainConfig{
			NumTrainEpoch:  20,
			EpochNumBatch:  map[string]int{"train": 20, "valid": 5},
			WarmupEpoch:    2,
			EarlyStopEpoch: 2,
			MaxNumDecay:    4,
		},
		Data: DataConfig{
			Source:      SourceSynthetic,
			NumSpeakers: 4,
			BatchSize:   8,
			SegmentLen:  3200,
			Windows:     windows,
			Noise:       0.01,
		},
		Model: ModelConfig{EmbeddingSize: 32, Optimizer: OptimizerAdam, LearningRate: 1e-3},
		Layers: []LayerConfig{
			{Type: "Input", Feature: "wav", Dims: map[string]int{"S": 8, "T": 3200}},
			{Type: "Tensor_Reshape", IOName: "wav_to_windows", WinLenShiftList: windows},
			{Type: "Sinenet_V1", Size: 64, NumFreq: 16, BatchNorm: true},
			{Type: "Tensor_Reshape", IOName: "flatten_windows"},
			{Type: "LReLU", Size: 128, BatchNorm: true},
		},
	}
	e.ApplyDefaults()
	return e
}
