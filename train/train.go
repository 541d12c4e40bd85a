// Copyright 2025 Born ML Framework. All rights reserved.
// Use of this source code is governed by an Apache 2.0
// license that can be found in the LICENSE file.

package train

import (
	"github.com/born-ml/sinenet/internal/train"
)

// Controller runs training epochs and applies the early-stopping policy.
type Controller = train.Controller

// Config is the training schedule.
type Config = train.Config

// Model is the trainable collaborator of a Controller.
type Model = train.Model

// DataLoader produces batches for a split.
type DataLoader = train.DataLoader

// Result summarizes a run.
type Result = train.Result

// EpochLoss records one epoch of a run.
type EpochLoss = train.EpochLoss

// RunMode selects the training procedure.
type RunMode = train.RunMode

// Policy decides when to save, decay and stop.
type Policy = train.Policy

// Decision is the outcome of one observed loss.
type Decision = train.Decision

// Phase is the controller state between epochs.
type Phase = train.Phase

// State is the optimization state carried across epochs.
type State = train.State

// Split names.
const (
	SplitTrain = train.SplitTrain
	SplitValid = train.SplitValid
	SplitTest  = train.SplitTest
)

// Run modes.
const (
	Normal = train.Normal
	Debug  = train.Debug
)

// Decisions.
const (
	Hold     = train.Hold
	Improved = train.Improved
	Worse    = train.Worse
	Decay    = train.Decay
	Finish   = train.Finish
)

// Phases.
const (
	Warmup   = train.Warmup
	Training = train.Training
	Decaying = train.Decaying
	Stopped  = train.Stopped
)

// OverfitSuffix is appended to the checkpoint name in overfit mode.
const OverfitSuffix = train.OverfitSuffix

// ErrConfig is wrapped by invalid controller configurations.
var ErrConfig = train.ErrConfig

// NewController validates cfg and creates a controller.
var NewController = train.NewController

// NewPolicy creates a decision policy with the given warm-up length,
// patience and decay budget.
func NewPolicy(warmupEpoch, earlyStopEpoch, maxNumDecay int) *Policy {
	return train.NewPolicy(warmupEpoch, earlyStopEpoch, maxNumDecay)
}
