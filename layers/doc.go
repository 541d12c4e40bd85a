// Copyright 2025 Born ML Framework. All rights reserved.
// Use of this source code is governed by an Apache 2.0
// license that can be found in the LICENSE file.

// Package layers builds speech layer stacks over typed feature dictionaries.
//
// # Overview
//
// A stack is a chain of layers described by specs. The first spec declares
// the input feature and its layout; every later layer checks the layout of
// its predecessor when it is built, so shape errors surface before any data
// flows:
//
//	stack, err := layers.NewStack([]layers.Spec{
//	    layers.InputSpec{Key: layers.Wav, Layout: layers.MustLayout("ST", 8, 3200)},
//	    layers.ReshapeSpec{Op: layers.WavToWindows, Windows: [2]layers.Window{{640, 320}, {400, 80}}},
//	    layers.SinenetSpec{Variant: layers.SinenetV1, Size: 64, NumFreq: 16, BatchNorm: true},
//	    layers.ReshapeSpec{Op: layers.FlattenWindows},
//	    layers.FCSpec{Size: 128, Activation: layers.LeakyReLU()},
//	}, rand.New(rand.NewSource(545)))
//
// # Layouts
//
// Feature layouts name their axes: S (utterances), B (blocks), M
// (micro-windows), T (samples) and D (features). The wav_to_windows reshape
// turns a waveform S×T into windows S×B×M×T; Sinenet, DW3 and the concat
// reshape combine those windows with the per-window pitch, phase offset and
// voicing into S×B×M×D features; flatten_windows folds M into D.
//
// # Sinenet
//
// A Sinenet layer projects each window onto sine and cosine rows at the
// first K harmonics of the window pitch. V2 adds a parallel DNN branch and
// V1_Residual works on what the basis does not explain.
package layers
