// Copyright 2025 Born ML Framework. All rights reserved.
// Use of this source code is governed by an Apache 2.0
// license that can be found in the LICENSE file.

package layers

import (
	"github.com/born-ml/sinenet/internal/config"
	"github.com/born-ml/sinenet/internal/feature"
	"github.com/born-ml/sinenet/internal/layers"
	"github.com/born-ml/sinenet/internal/nn"
)

// Feature dictionaries

// Dict is the feature dictionary flowing through a stack.
type Dict = feature.Dict

// Key identifies a dictionary entry.
type Key = feature.Key

// Layout names the axes of a feature and their sizes.
type Layout = feature.Layout

// Dictionary keys.
const (
	Wav        = feature.Wav
	WavWindows = feature.WavWindows
	F0         = feature.F0
	NormLogF0  = feature.NormLogF0
	Tau        = feature.Tau
	VUV        = feature.VUV
	Hidden     = feature.Hidden
	Speaker    = feature.Speaker
)

// NewDict creates an empty feature dictionary.
func NewDict() *Dict {
	return feature.NewDict()
}

// NewLayout creates a layout from axis letters and sizes, e.g. ("SBD", 8, 9, 128).
func NewLayout(axes string, sizes ...int) (Layout, error) {
	return feature.NewLayout(axes, sizes...)
}

// MustLayout is NewLayout that panics on error.
func MustLayout(axes string, sizes ...int) Layout {
	return feature.MustLayout(axes, sizes...)
}

// Specs

// Spec describes one layer.
type Spec = layers.Spec

// InputSpec declares the input feature of a stack.
type InputSpec = layers.InputSpec

// FCSpec is a fully connected layer over the feature axis.
type FCSpec = layers.FCSpec

// ReshapeSpec is a parameter-free layout transform.
type ReshapeSpec = layers.ReshapeSpec

// ReshapeOp selects the transform of a ReshapeSpec.
type ReshapeOp = layers.ReshapeOp

// Window is a (length, shift) pair in samples.
type Window = layers.Window

// DW3Spec is a DNN over each window and its pitch, phase and voicing.
type DW3Spec = layers.DW3Spec

// SinenetSpec is a harmonic sine-basis layer.
type SinenetSpec = layers.SinenetSpec

// SinenetVariant selects the Sinenet architecture.
type SinenetVariant = layers.SinenetVariant

// Reshape operations.
const (
	WavToWindows         = layers.WavToWindows
	ConcatWavPitchTauVUV = layers.ConcatWavPitchTauVUV
	FlattenWindows       = layers.FlattenWindows
)

// Sinenet variants.
const (
	SinenetV1         = layers.SinenetV1
	SinenetV2         = layers.SinenetV2
	SinenetV1Residual = layers.SinenetV1Residual
)

// Activation is an element-wise nonlinearity.
type Activation = nn.Activation

// ParseActivation returns the activation called name: "linear", "relu" or "lrelu".
func ParseActivation(name string) (Activation, error) {
	return nn.ParseActivation(name)
}

// LeakyReLU returns the default leaky ReLU activation.
func LeakyReLU() Activation {
	return nn.LeakyReLU{Slope: nn.DefaultLeakySlope}
}

// ParseSpecs converts experiment layer entries into specs.
func ParseSpecs(cfgs []config.LayerConfig) ([]Spec, error) {
	return layers.ParseSpecs(cfgs)
}

// Stacks

// Layer is one built layer.
type Layer = layers.Layer

// Stack is a built chain of layers.
type Stack = layers.Stack

// NewStack builds a stack from specs; see the package example.
var NewStack = layers.NewStack

// Build constructs a single layer on top of the layout prev.
var Build = layers.Build

// Errors.
var (
	ErrMissingAxis = layers.ErrMissingAxis
	ErrLayout      = layers.ErrLayout
	ErrUnknownType = layers.ErrUnknownType
	ErrInvalidSpec = layers.ErrInvalidSpec
	ErrEmptyStack  = layers.ErrEmptyStack
)
