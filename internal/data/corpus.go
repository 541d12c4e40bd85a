package data

import (
	"context"
	"fmt"
	"math"
	"math/rand"
	"os"
	"path/filepath"
	"slices"
	"strconv"
	"strings"

	"github.com/go-audio/wav"
	resampling "github.com/tphakala/go-audio-resampling"

	"github.com/born-ml/sinenet/internal/config"
	"github.com/born-ml/sinenet/internal/feature"
	"github.com/born-ml/sinenet/internal/parallel"
	"github.com/born-ml/sinenet/internal/signal"
)

// PitchExt is the extension of optional pitch sidecar files: whitespace
// separated Hz values, one per signal.PitchHop samples at 16 kHz, with 0
// marking unvoiced frames.
const PitchExt = ".f0"

// fallbackF0 fills the pitch of utterances without a single voiced frame.
const fallbackF0 = 150.0

type corpusUtt struct {
	name    string
	speaker int
	wav     []float64
	track   []float64 // raw pitch per hop, 0 when unvoiced
	smooth  []float64 // interpolated pitch per hop
}

// Corpus serves segments of WAV files laid out as <root>/<speaker>/<utt>.wav.
// Speakers are labeled in sorted directory order. Audio is mixed down to
// mono and resampled to 16 kHz on open. Pitch comes from a sidecar
// <utt>.f0 when present and is estimated otherwise.
type Corpus struct {
	geom      Geometry
	batchSize int
	speakers  []string
	utts      [3][]*corpusUtt
	rngs      [3]*rand.Rand
}

// OpenCorpus scans and decodes cfg.Root. Utterances of every speaker are
// shuffled with seed and divided between the splits by the configured
// fractions.
func OpenCorpus(ctx context.Context, cfg config.DataConfig, seed int64, par parallel.Config) (*Corpus, error) {
	pairs, err := cfg.WindowPairs()
	if err != nil {
		return nil, err
	}
	geom, err := NewGeometry(cfg.SegmentLen, pairs)
	if err != nil {
		return nil, err
	}
	if cfg.BatchSize <= 0 {
		return nil, fmt.Errorf("data: batch size %d", cfg.BatchSize)
	}

	speakers, files, err := scanCorpus(cfg.Root)
	if err != nil {
		return nil, err
	}
	if cfg.NumSpeakers > 0 && cfg.NumSpeakers != len(speakers) {
		return nil, fmt.Errorf("data: %s has %d speakers, configured %d", cfg.Root, len(speakers), cfg.NumSpeakers)
	}

	var all []*corpusUtt
	for spk, names := range files {
		for _, name := range names {
			all = append(all, &corpusUtt{name: name, speaker: spk})
		}
	}
	err = parallel.ForErr(len(all), func(i int) error {
		if err := ctx.Err(); err != nil {
			return err
		}
		return all[i].load(filepath.Join(cfg.Root, speakers[all[i].speaker]))
	}, par)
	if err != nil {
		return nil, err
	}

	c := &Corpus{geom: geom, batchSize: cfg.BatchSize, speakers: speakers}
	rng := rand.New(rand.NewSource(seed))
	next := 0
	for _, names := range files {
		utts := all[next : next+len(names)]
		next += len(names)
		order := rng.Perm(len(utts))
		nTrain, nValid, _ := splitCounts(len(utts), cfg.ValidFraction, cfg.TestFraction)
		for rank, i := range order {
			split := 0
			switch {
			case rank >= nTrain+nValid:
				split = 2
			case rank >= nTrain:
				split = 1
			}
			c.utts[split] = append(c.utts[split], utts[i])
		}
	}
	for i := range c.rngs {
		c.rngs[i] = rand.New(rand.NewSource(seed + int64(i) + 1))
	}
	return c, nil
}

// scanCorpus lists speaker directories and their WAV files, both sorted.
func scanCorpus(root string) ([]string, [][]string, error) {
	entries, err := os.ReadDir(root)
	if err != nil {
		return nil, nil, fmt.Errorf("data: %w", err)
	}
	var speakers []string
	var files [][]string
	for _, e := range entries {
		if !e.IsDir() {
			continue
		}
		wavs, err := filepath.Glob(filepath.Join(root, e.Name(), "*.wav"))
		if err != nil {
			return nil, nil, err
		}
		if len(wavs) == 0 {
			continue
		}
		names := make([]string, len(wavs))
		for i, w := range wavs {
			names[i] = strings.TrimSuffix(filepath.Base(w), ".wav")
		}
		slices.Sort(names)
		speakers = append(speakers, e.Name())
		files = append(files, names)
	}
	if len(speakers) == 0 {
		return nil, nil, fmt.Errorf("%w under %s", ErrNoAudio, root)
	}
	return speakers, files, nil
}

func (u *corpusUtt) load(dir string) error {
	path := filepath.Join(dir, u.name+".wav")
	samples, err := ReadWav(path)
	if err != nil {
		return err
	}
	u.wav = samples
	track, err := readPitch(filepath.Join(dir, u.name+PitchExt))
	switch {
	case err == nil:
		u.track = track
	case os.IsNotExist(err):
		u.track = signal.EstimatePitch(samples, signal.SampleRate)
	default:
		return err
	}
	u.smooth = signal.InterpolatePitch(u.track, fallbackF0)
	return nil
}

// ReadWav decodes a PCM WAV file into mono samples in [-1, 1] at
// signal.SampleRate.
func ReadWav(path string) ([]float64, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("data: %w", err)
	}
	defer f.Close()

	dec := wav.NewDecoder(f)
	if !dec.IsValidFile() {
		return nil, fmt.Errorf("data: %s is not a valid wav file", path)
	}
	buf, err := dec.FullPCMBuffer()
	if err != nil {
		return nil, fmt.Errorf("data: decode %s: %w", path, err)
	}
	channels := max(buf.Format.NumChannels, 1)
	scale := math.Exp2(float64(buf.SourceBitDepth - 1))
	if buf.SourceBitDepth <= 0 {
		scale = math.Exp2(float64(dec.BitDepth) - 1)
	}

	frames := len(buf.Data) / channels
	mono := make([]float64, frames)
	for i := range mono {
		sum := 0
		for c := 0; c < channels; c++ {
			sum += buf.Data[i*channels+c]
		}
		mono[i] = float64(sum) / float64(channels) / scale
	}
	if buf.Format.SampleRate == signal.SampleRate {
		return mono, nil
	}
	out, err := Resample(mono, float64(buf.Format.SampleRate), signal.SampleRate)
	if err != nil {
		return nil, fmt.Errorf("data: resample %s: %w", path, err)
	}
	return out, nil
}

// Resample converts mono samples from rate from to rate to. The output has
// round(len(x)·to/from) samples.
func Resample(x []float64, from, to float64) ([]float64, error) {
	if from <= 0 || to <= 0 {
		return nil, fmt.Errorf("invalid rates %v -> %v", from, to)
	}
	r, err := resampling.New(&resampling.Config{
		InputRate:  from,
		OutputRate: to,
		Channels:   1,
		Quality:    resampling.QualitySpec{Preset: resampling.QualityHigh},
	})
	if err != nil {
		return nil, err
	}
	out, err := r.Process(x)
	if err != nil {
		return nil, err
	}
	// Zero padding pushes the filter delay line out.
	tail, err := r.Process(make([]float64, int(from)/10+1))
	if err != nil {
		return nil, err
	}
	out = append(out, tail...)

	want := int(math.Round(float64(len(x)) * to / from))
	if len(out) >= want {
		return out[:want], nil
	}
	return append(out, make([]float64, want-len(out))...), nil
}

func readPitch(path string) ([]float64, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	fields := strings.Fields(string(raw))
	track := make([]float64, len(fields))
	for i, f := range fields {
		v, err := strconv.ParseFloat(f, 64)
		if err != nil || v < 0 || math.IsNaN(v) || math.IsInf(v, 0) {
			return nil, fmt.Errorf("data: %s value %d: invalid pitch %q", path, i, f)
		}
		track[i] = v
	}
	return track, nil
}

// NumSpeakers returns the number of speaker directories.
func (c *Corpus) NumSpeakers() int { return len(c.speakers) }

// Speakers returns the speaker names in label order.
func (c *Corpus) Speakers() []string { return slices.Clone(c.speakers) }

// NumUtterances returns the number of utterances assigned to split.
func (c *Corpus) NumUtterances(split string) int {
	idx, err := splitIndex(split)
	if err != nil {
		return 0
	}
	return len(c.utts[idx])
}

// MakeFeedDict samples BatchSize random segments from utterances of split.
// Utterances shorter than the segment are zero padded.
func (c *Corpus) MakeFeedDict(ctx context.Context, split string) (*feature.Dict, int, error) {
	idx, err := splitIndex(split)
	if err != nil {
		return nil, 0, err
	}
	utts := c.utts[idx]
	if len(utts) == 0 {
		return nil, 0, fmt.Errorf("%w: %s", ErrEmptySplit, split)
	}
	if err := ctx.Err(); err != nil {
		return nil, 0, err
	}

	rng := c.rngs[idx]
	T := c.geom.SegmentLen
	rows := make([]row, c.batchSize)
	for i := range rows {
		u := utts[rng.Intn(len(utts))]
		start := 0
		if len(u.wav) > T {
			start = rng.Intn(len(u.wav) - T + 1)
		}
		seg := make([]float64, T)
		copy(seg, u.wav[start:])
		rows[i] = row{speaker: u.speaker, wav: seg, start: start, pitch: u.pitchAt(start)}
	}
	d, err := c.geom.assemble(rows)
	if err != nil {
		return nil, 0, err
	}
	return d, c.batchSize, nil
}

// pitchAt returns the pitch lookup for a segment starting at start.
func (u *corpusUtt) pitchAt(start int) func(int) (float64, float64) {
	return func(pos int) (float64, float64) {
		if len(u.track) == 0 {
			return 0, fallbackF0
		}
		h := min(max((start+pos)/signal.PitchHop, 0), len(u.track)-1)
		return u.track[h], u.smooth[h]
	}
}
