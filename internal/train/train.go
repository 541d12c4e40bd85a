// Package train drives the epoch/batch training loop: a pass over training
// batches, mean losses on the train, valid and test splits, and the
// early-stopping policy that saves the best model, halves the learning rate
// and rolls back, or ends the run.
//
// The controller owns no data or parameters. It talks to a DataLoader for
// feed dictionaries and to a Model that updates, evaluates and checkpoints
// itself.
package train

import (
	"context"
	"log/slog"

	"github.com/born-ml/sinenet/internal/feature"
)

// Split names.
const (
	SplitTrain = "train"
	SplitValid = "valid"
	SplitTest  = "test"
)

// DataLoader produces batches for a split.
type DataLoader interface {
	// MakeFeedDict returns the next batch of split and its size.
	MakeFeedDict(ctx context.Context, split string) (*feature.Dict, int, error)
}

// Model is the trainable collaborator.
type Model interface {
	// Train and Eval switch between training and evaluation behavior.
	Train()
	Eval()
	// UpdateParameters runs one optimization step on d.
	UpdateParameters(ctx context.Context, d *feature.Dict) error
	// LossValue returns the mean loss on d without recording gradients.
	LossValue(ctx context.Context, d *feature.Dict) (float64, error)
	// Save and Load persist and restore parameters and optimizer state.
	Save(ctx context.Context, name string) error
	Load(ctx context.Context, name string) error
	LearningRate() float64
	SetLearningRate(lr float64)
}

// RunMode selects the training procedure.
type RunMode string

// Run modes.
const (
	// Normal trains on fresh batches and decides on the valid loss (or the
	// train loss when Overfit is set).
	Normal RunMode = "normal"
	// Debug repeatedly fits one fixed training batch.
	Debug RunMode = "debug"
)

// OverfitSuffix is appended to the checkpoint name in overfit mode.
const OverfitSuffix = "_overfit_train"

// Config is the training schedule.
type Config struct {
	RunMode        RunMode
	Overfit        bool
	NumTrainEpoch  int
	EpochNumBatch  map[string]int // batches per epoch: "train" for updates, "valid" for each evaluated split
	WarmupEpoch    int
	EarlyStopEpoch int
	MaxNumDecay    int
	NNetsFileName  string

	// AdditionalActionEpoch, if set, runs after every epoch that does not
	// finish training.
	AdditionalActionEpoch func(logger *slog.Logger, model Model)
}

// EpochLoss records one epoch of a run.
type EpochLoss struct {
	Epoch        int
	Train        float64
	Valid        float64
	Test         float64
	LearningRate float64
	Decision     Decision
}

// Result summarizes a run.
type Result struct {
	BestLoss      float64
	BestEpoch     int
	Epochs        int
	Stopped       bool // finished by the policy rather than the epoch limit
	NNetsFileName string
	History       []EpochLoss
}
