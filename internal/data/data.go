// Package data produces feature dictionaries for the training loop.
//
// Every batch carries the raw waveform segments (Wav, S×T), the per-window
// conditioning the speech layers need (F0 in Hz, Tau and VUV, each S×B×M)
// and the speaker labels. Windows follow the two-level framing of the
// wav_to_windows reshape: blocks of BlockLen samples every BlockShift, each
// split into micro-windows of WinLen samples every WinShift.
//
// Two sources are provided: Synthetic, a deterministic harmonic voice
// generator, and Corpus, a directory of WAV files.
package data

import (
	"context"
	"errors"
	"fmt"

	"github.com/born-ml/sinenet/internal/config"
	"github.com/born-ml/sinenet/internal/feature"
	"github.com/born-ml/sinenet/internal/layers"
	"github.com/born-ml/sinenet/internal/parallel"
	"github.com/born-ml/sinenet/internal/signal"
	"github.com/born-ml/sinenet/internal/tensor"
	"github.com/born-ml/sinenet/internal/train"
)

// Errors returned by the loaders.
var (
	ErrUnknownSplit = errors.New("data: unknown split")
	ErrEmptySplit   = errors.New("data: split has no utterances")
	ErrGeometry     = errors.New("data: invalid window geometry")
	ErrNoAudio      = errors.New("data: no audio found")
)

// Splits lists the split names in seeding order.
var Splits = []string{train.SplitTrain, train.SplitValid, train.SplitTest}

// Source is a data loader that knows how many speakers it labels.
type Source interface {
	train.DataLoader
	NumSpeakers() int
}

// New opens the source described by cfg.
func New(ctx context.Context, cfg config.DataConfig, seed int64) (Source, error) {
	switch cfg.Source {
	case config.SourceSynthetic, "":
		return NewSynthetic(cfg, seed)
	case config.SourceCorpus:
		return OpenCorpus(ctx, cfg, seed, parallel.DefaultConfig())
	default:
		return nil, fmt.Errorf("data: unknown source %q", cfg.Source)
	}
}

// CheckSpecs reports whether batches described by cfg can feed a stack
// built from specs. The input layer must declare Wav as batch_size ×
// segment_len, and every wav_to_windows reshape must cut the windows the
// loader computes pitch features for. Mismatches wrap config.ErrInvalid.
func CheckSpecs(cfg config.DataConfig, specs []layers.Spec) error {
	if len(specs) == 0 {
		return fmt.Errorf("%w: no layers", config.ErrInvalid)
	}
	in, ok := specs[0].(layers.InputSpec)
	if !ok {
		return fmt.Errorf("%w: first layer is %s", config.ErrInvalid, specs[0].Kind())
	}
	if in.Key != feature.Wav {
		return fmt.Errorf("%w: data sources provide %s, input layer declares %s", config.ErrInvalid, feature.Wav, in.Key)
	}
	want, err := feature.NewLayout("ST", cfg.BatchSize, cfg.SegmentLen)
	if err != nil {
		return fmt.Errorf("%w: %v", config.ErrInvalid, err)
	}
	if !in.Layout.Equal(want) {
		return fmt.Errorf("%w: input layer declares %s, batch_size and segment_len give %s", config.ErrInvalid, in.Layout, want)
	}

	pairs, err := cfg.WindowPairs()
	if err != nil {
		return err
	}
	windows := [2]layers.Window{{Len: pairs[0][0], Shift: pairs[0][1]}, {Len: pairs[1][0], Shift: pairs[1][1]}}
	for i, spec := range specs {
		r, ok := spec.(layers.ReshapeSpec)
		if !ok || r.Op != layers.WavToWindows {
			continue
		}
		if r.Windows != windows {
			return fmt.Errorf("%w: layer %d windows %v, win_len_shift_list gives %v", config.ErrInvalid, i, r.Windows, windows)
		}
	}
	return nil
}

// Geometry is the window layout of a segment.
type Geometry struct {
	SegmentLen int
	BlockLen   int
	BlockShift int
	WinLen     int
	WinShift   int
}

// NewGeometry validates a segment length against (len, shift) pairs for
// blocks and micro-windows.
func NewGeometry(segmentLen int, windows [2][2]int) (Geometry, error) {
	g := Geometry{
		SegmentLen: segmentLen,
		BlockLen:   windows[0][0],
		BlockShift: windows[0][1],
		WinLen:     windows[1][0],
		WinShift:   windows[1][1],
	}
	if g.BlockLen <= 0 || g.BlockShift <= 0 || g.WinLen <= 0 || g.WinShift <= 0 {
		return g, fmt.Errorf("%w: non-positive window %v", ErrGeometry, windows)
	}
	if g.BlockLen > segmentLen || g.WinLen > g.BlockLen {
		return g, fmt.Errorf("%w: windows %v do not fit %d samples", ErrGeometry, windows, segmentLen)
	}
	return g, nil
}

// NumBlocks returns B.
func (g Geometry) NumBlocks() int { return (g.SegmentLen-g.BlockLen)/g.BlockShift + 1 }

// NumWindows returns M, the micro-windows per block.
func (g Geometry) NumWindows() int { return (g.BlockLen-g.WinLen)/g.WinShift + 1 }

// Start returns the first sample of micro-window m in block b.
func (g Geometry) Start(b, m int) int { return b*g.BlockShift + m*g.WinShift }

// row is one utterance segment before batching.
type row struct {
	speaker int
	wav     []float64 // SegmentLen samples
	start   int       // position of wav[0] in its utterance
	// pitch returns the raw pitch (0 when unvoiced) and the interpolated
	// pitch at segment position pos.
	pitch func(pos int) (raw, smooth float64)
}

// assemble stacks rows into a feature dictionary.
func (g Geometry) assemble(rows []row) (*feature.Dict, error) {
	S, T := len(rows), g.SegmentLen
	B, M := g.NumBlocks(), g.NumWindows()
	wav := tensor.Zeros(tensor.Shape{S, T})
	win := feature.MustLayout("SBM", S, B, M)
	f0 := tensor.Zeros(win.Shape())
	tau := tensor.Zeros(win.Shape())
	vuv := tensor.Zeros(win.Shape())
	labels := make([]int, S)

	for s, r := range rows {
		copy(wav.Data()[s*T:(s+1)*T], r.wav)
		labels[s] = r.speaker
		for b := 0; b < B; b++ {
			for m := 0; m < M; m++ {
				i := (s*B+b)*M + m
				start := g.Start(b, m)
				raw, smooth := r.pitch(start + g.WinLen/2)
				f0.Data()[i] = smooth
				vuv.Data()[i] = signal.Voicing(raw)
				tau.Data()[i] = signal.Tau(float64(r.start+start)/signal.SampleRate, raw)
			}
		}
	}

	d := feature.NewDict()
	if err := d.Set(feature.Wav, wav, feature.MustLayout("ST", S, T)); err != nil {
		return nil, err
	}
	for _, f := range []struct {
		key feature.Key
		t   *tensor.Tensor
	}{{feature.F0, f0}, {feature.Tau, tau}, {feature.VUV, vuv}} {
		if err := d.Set(f.key, f.t, win); err != nil {
			return nil, err
		}
	}
	d.SetLabels(labels)
	return d, nil
}

// splitCounts divides n utterances into train, valid and test counts. Each
// non-zero fraction gets at least one utterance as long as train keeps one.
func splitCounts(n int, validFrac, testFrac float64) (nTrain, nValid, nTest int) {
	nValid = fractionOf(n, validFrac)
	nTest = fractionOf(n, testFrac)
	for nValid+nTest >= n && (nValid > 0 || nTest > 0) {
		if nTest >= nValid {
			nTest--
		} else {
			nValid--
		}
	}
	return n - nValid - nTest, nValid, nTest
}

func fractionOf(n int, frac float64) int {
	if frac <= 0 {
		return 0
	}
	return max(int(frac*float64(n)+0.5), 1)
}

func splitIndex(split string) (int, error) {
	for i, s := range Splits {
		if s == split {
			return i, nil
		}
	}
	return 0, fmt.Errorf("%w %q", ErrUnknownSplit, split)
}
