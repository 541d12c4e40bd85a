// Copyright 2025 Born ML Framework. All rights reserved.
// Use of this source code is governed by an Apache 2.0
// license that can be found in the LICENSE file.

// Package train runs the epoch loop of a speech model with early stopping.
//
// # Overview
//
// A Controller alternates training passes with evaluation of the train,
// valid and test splits. After every epoch a Policy looks at the decision
// loss (valid, or train in overfit mode):
//   - a new best loss saves the model
//   - a loss above the previous epoch's counts toward the patience
//   - running out of patience halves the learning rate and reloads the best
//     model, until the decay budget is spent and training finishes
//
// # Basic Usage
//
//	ctrl, err := train.NewController(train.Config{
//	    NumTrainEpoch:  20,
//	    EpochNumBatch:  map[string]int{train.SplitTrain: 20, train.SplitValid: 5},
//	    WarmupEpoch:    2,
//	    EarlyStopEpoch: 2,
//	    MaxNumDecay:    4,
//	    NNetsFileName:  "speaker",
//	}, model, loader, slog.Default())
//	res, err := ctrl.Run(ctx)
//
// The Model and DataLoader interfaces are small enough to implement for any
// network; see the sinenet CLI for the speaker model wiring.
package train
