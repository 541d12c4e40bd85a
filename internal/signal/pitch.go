// Package signal holds the scalar speech-signal transforms shared by the
// layers and the data loaders: pitch normalization and window phase offsets.
package signal

import (
	"errors"
	"math"

	"github.com/born-ml/sinenet/internal/feature"
	"github.com/born-ml/sinenet/internal/tensor"
)

// Statistics of natural-log F0 used to normalize pitch.
const (
	LogF0Mean = 5.04418
	LogF0Std  = 0.358402
)

// ErrNoPitch is returned when a dictionary carries neither F0 nor NormLogF0.
var ErrNoPitch = errors.New("signal: neither f0 nor normalized log f0 present")

// NormLogF0Value maps a pitch in Hz (> 0) to normalized log pitch.
func NormLogF0Value(f float64) float64 {
	return (math.Log(f) - LogF0Mean) / LogF0Std
}

// F0Value maps normalized log pitch back to Hz.
func F0Value(nlf float64) float64 {
	return math.Exp(nlf*LogF0Std + LogF0Mean)
}

// NormLogF0 applies NormLogF0Value element-wise.
func NormLogF0(f *tensor.Tensor) *tensor.Tensor {
	return f.Map(NormLogF0Value)
}

// F0FromNormLogF0 applies F0Value element-wise.
func F0FromNormLogF0(nlf *tensor.Tensor) *tensor.Tensor {
	return nlf.Map(F0Value)
}

// ResolvePitch returns both pitch representations for a dictionary that
// carries one of them. When both are present NormLogF0 is authoritative and
// F0 is recomputed from it.
//
// Example:
//
//	f, nlf, err := signal.ResolvePitch(dict)
//	if errors.Is(err, signal.ErrNoPitch) { ... }
func ResolvePitch(d *feature.Dict) (f, nlf *tensor.Tensor, err error) {
	if x, ok := d.Get(feature.NormLogF0); ok {
		return F0FromNormLogF0(x.Tensor), x.Tensor, nil
	}
	if x, ok := d.Get(feature.F0); ok {
		return x.Tensor, NormLogF0(x.Tensor), nil
	}
	return nil, nil, ErrNoPitch
}

// PitchLayout returns the layout of whichever pitch key is present.
func PitchLayout(d *feature.Dict) (feature.Layout, error) {
	if x, ok := d.Get(feature.NormLogF0); ok {
		return x.Layout, nil
	}
	if x, ok := d.Get(feature.F0); ok {
		return x.Layout, nil
	}
	return feature.Layout{}, ErrNoPitch
}
