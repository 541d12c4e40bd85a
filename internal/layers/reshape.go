package layers

import (
	"fmt"

	"github.com/born-ml/sinenet/internal/autodiff"
	"github.com/born-ml/sinenet/internal/feature"
	"github.com/born-ml/sinenet/internal/nn"
)

// reshapeFunc is the transform a reshape layer applies.
type reshapeFunc func(tape *autodiff.GradientTape, in *feature.Dict) (*feature.Dict, error)

// reshapeLayer has no parameters; its behavior is chosen at construction.
type reshapeLayer struct {
	base
	op ReshapeOp
	fn reshapeFunc
}

func newReshape(name string, s ReshapeSpec, prev feature.Layout) (*reshapeLayer, error) {
	var (
		out feature.Layout
		fn  reshapeFunc
		err error
	)
	switch s.Op {
	case WavToWindows:
		out, fn, err = wavToWindows(prev, s.Windows)
	case ConcatWavPitchTauVUV:
		out, fn, err = concatWavPitchTauVUV(prev)
	case FlattenWindows:
		out, fn, err = flattenWindows(prev)
	default:
		return nil, fmt.Errorf("%w: reshape op %s", ErrInvalidSpec, s.Op)
	}
	if err != nil {
		return nil, fmt.Errorf("%s: %w", s.Op, err)
	}
	return &reshapeLayer{base: base{name: name + "/" + s.Op.String(), out: out}, op: s.Op, fn: fn}, nil
}

func (l *reshapeLayer) Forward(tape *autodiff.GradientTape, in *feature.Dict) (*feature.Dict, error) {
	return l.fn(tape, in)
}

func (l *reshapeLayer) Parameters() []*nn.Parameter { return nil }
func (l *reshapeLayer) SetTraining(bool)            {}

// wavToWindows cuts an S×T waveform into batch items of win[0].Len samples
// every win[0].Shift, then each item into micro-windows of win[1].Len every
// win[1].Shift:
//
//	B = (T − L0)/s0 + 1, M = (L0 − L1)/s1 + 1, output S×B×M×L1.
//
// Every other key passes through.
func wavToWindows(prev feature.Layout, win [2]Window) (feature.Layout, reshapeFunc, error) {
	if err := requireLayout(prev, "ST"); err != nil {
		return feature.Layout{}, nil, err
	}
	for i, w := range win {
		if w.Len <= 0 || w.Shift <= 0 {
			return feature.Layout{}, nil, fmt.Errorf("%w: window %d is %+v", ErrInvalidSpec, i, w)
		}
	}
	total := prev.Size(feature.T)
	if win[0].Len > total || win[1].Len > win[0].Len {
		return feature.Layout{}, nil, fmt.Errorf("%w: windows %d and %d do not fit %d samples",
			ErrInvalidSpec, win[0].Len, win[1].Len, total)
	}
	numB := (total-win[0].Len)/win[0].Shift + 1
	numM := (win[0].Len-win[1].Len)/win[1].Shift + 1
	out, err := feature.NewLayout("SBMT", prev.Size(feature.S), numB, numM, win[1].Len)
	if err != nil {
		return feature.Layout{}, nil, err
	}

	fn := func(_ *autodiff.GradientTape, in *feature.Dict) (*feature.Dict, error) {
		wav, err := in.Require(feature.Wav)
		if err != nil {
			return nil, err
		}
		if !wav.Layout.Equal(prev) {
			return nil, fmt.Errorf("%w: wav is %s, built for %s", ErrLayout, wav.Layout, prev)
		}
		items, err := wav.Tensor.Unfold(1, win[0].Len, win[0].Shift)
		if err != nil {
			return nil, err
		}
		windows, err := items.Unfold(2, win[1].Len, win[1].Shift)
		if err != nil {
			return nil, err
		}
		d := in.CopyExcept(feature.Wav)
		if err := d.Set(feature.WavWindows, windows, out); err != nil {
			return nil, err
		}
		return d, nil
	}
	return out, fn, nil
}

// concatWavPitchTauVUV appends (nlf, tau, vuv) to every window and writes
// the result as hidden features S×B×M×(T+3).
func concatWavPitchTauVUV(prev feature.Layout) (feature.Layout, reshapeFunc, error) {
	if err := requireLayout(prev, "SBMT"); err != nil {
		return feature.Layout{}, nil, err
	}
	out := prev.WithLast(feature.D, prev.LastSize()+3)

	fn := func(_ *autodiff.GradientTape, in *feature.Dict) (*feature.Dict, error) {
		x, err := readWindows(in, prev)
		if err != nil {
			return nil, err
		}
		cond, err := readConditioning(in, prev)
		if err != nil {
			return nil, err
		}
		h, err := cond.withTriplet(x)
		if err != nil {
			return nil, err
		}
		d := in.CopyExcept(consumedKeys...)
		if err := d.Set(feature.Hidden, h, out); err != nil {
			return nil, err
		}
		return d, nil
	}
	return out, fn, nil
}

// flattenWindows merges the micro-window axis into features:
// S×B×M×D → S×B×(M·D). Recorded, since hidden features carry gradients.
func flattenWindows(prev feature.Layout) (feature.Layout, reshapeFunc, error) {
	if err := requireLayout(prev, "SBMD"); err != nil {
		return feature.Layout{}, nil, err
	}
	out, err := feature.NewLayout("SBD",
		prev.Size(feature.S), prev.Size(feature.B), prev.Size(feature.M)*prev.Size(feature.D))
	if err != nil {
		return feature.Layout{}, nil, err
	}

	fn := func(tape *autodiff.GradientTape, in *feature.Dict) (*feature.Dict, error) {
		h, err := in.Hidden()
		if err != nil {
			return nil, err
		}
		if !h.Layout.Equal(prev) {
			return nil, fmt.Errorf("%w: hidden is %s, built for %s", ErrLayout, h.Layout, prev)
		}
		y, err := autodiff.Reshape(tape, h.Tensor, out.Shape())
		if err != nil {
			return nil, err
		}
		d := in.CopyExcept()
		if err := d.Set(feature.Hidden, y, out); err != nil {
			return nil, err
		}
		return d, nil
	}
	return out, fn, nil
}
