package layers

import (
	"fmt"

	"github.com/born-ml/sinenet/internal/feature"
	"github.com/born-ml/sinenet/internal/signal"
	"github.com/born-ml/sinenet/internal/tensor"
)

// consumedKeys are removed by layers that turn windows and their pitch
// conditioning into hidden features.
var consumedKeys = []feature.Key{
	feature.WavWindows, feature.F0, feature.NormLogF0, feature.Tau, feature.VUV,
}

// conditioning is the per-window pitch, tau and voicing of a batch.
type conditioning struct {
	f, nlf, tau, vuv *tensor.Tensor
}

// readWindows returns the windowed waveform, checking it against layout.
// Without WavWindows, hidden features laid out as windows stand in for it.
func readWindows(in *feature.Dict, layout feature.Layout) (*tensor.Tensor, error) {
	key := feature.WavWindows
	if !in.Has(key) && in.Has(feature.Hidden) {
		key = feature.Hidden
	}
	w, err := in.Require(key)
	if err != nil {
		return nil, err
	}
	if !w.Layout.Equal(layout) {
		return nil, fmt.Errorf("%w: windows are %s, built for %s", ErrLayout, w.Layout, layout)
	}
	return w.Tensor, nil
}

// readConditioning fetches pitch, tau and voicing for windows laid out as
// windows (S×B×M×T). Every entry must be S×B×M.
func readConditioning(in *feature.Dict, windows feature.Layout) (conditioning, error) {
	f, nlf, err := signal.ResolvePitch(in)
	if err != nil {
		return conditioning{}, err
	}
	tau, err := in.Tensor(feature.Tau)
	if err != nil {
		return conditioning{}, err
	}
	vuv, err := in.Tensor(feature.VUV)
	if err != nil {
		return conditioning{}, err
	}
	want := windows.Shape()[:3]
	for _, x := range []struct {
		key feature.Key
		t   *tensor.Tensor
	}{{feature.F0, f}, {feature.Tau, tau}, {feature.VUV, vuv}} {
		if !x.t.Shape().Equal(want) {
			return conditioning{}, fmt.Errorf("%w: %s has shape %v, want %v", ErrLayout, x.key, x.t.Shape(), want)
		}
	}
	return conditioning{f: f, nlf: nlf, tau: tau, vuv: vuv}, nil
}

// triplet stacks (nlf, tau, vuv) on a new last axis: S×B×M×3.
func (c conditioning) triplet() *tensor.Tensor {
	t, err := tensor.Concat(-1, c.nlf.Unsqueeze(-1), c.tau.Unsqueeze(-1), c.vuv.Unsqueeze(-1))
	if err != nil {
		panic(err) // shapes checked in readConditioning
	}
	return t
}

// withTriplet appends the triplet to each window: S×B×M×(T+3).
func (c conditioning) withTriplet(x *tensor.Tensor) (*tensor.Tensor, error) {
	return tensor.Concat(-1, x, c.triplet())
}
