package data

import (
	"context"
	"fmt"
	"math"
	"math/rand"

	"github.com/born-ml/sinenet/internal/config"
	"github.com/born-ml/sinenet/internal/feature"
	"github.com/born-ml/sinenet/internal/parallel"
	"github.com/born-ml/sinenet/internal/signal"
)

// Synthetic voice parameters.
const (
	numHarmonics = 12
	minSpeakerF0 = 90.0
	maxSpeakerF0 = 250.0
	amplitude    = 0.5
)

// voice is the fixed timbre of a synthetic speaker.
type voice struct {
	f0        float64
	harmonics []float64 // amplitude of harmonic k+1, summing to 1
}

// utterance parameters are fixed per utterance id; segments drawn from the
// same utterance share its contour.
//
// The pitch contour is the speaker F0 scaled by (1+shift) with a vibrato of
// relative depth vibDepth at vibRate Hz. Samples in [unvoiced[0],
// unvoiced[1]) of every segment are noise when hasSilent is set.
type uttParams struct {
	speaker   int
	shift     float64
	vibRate   float64
	vibDepth  float64
	vibPhase  float64
	unvoiced  [2]int
	hasSilent bool
}

// Synthetic generates harmonic "speech" for a fixed set of speakers. Every
// speaker owns UttPerSpeaker utterances that are divided between the splits,
// so valid and test batches come from unseen utterances of known speakers.
// Batches are reproducible for a given seed and call sequence.
type Synthetic struct {
	geom      Geometry
	batchSize int
	noise     float64
	voices    []voice
	utts      [3][]uttParams
	rngs      [3]*rand.Rand
	par       parallel.Config
}

// NewSynthetic creates a generator from cfg. NumSpeakers must be positive.
func NewSynthetic(cfg config.DataConfig, seed int64) (*Synthetic, error) {
	pairs, err := cfg.WindowPairs()
	if err != nil {
		return nil, err
	}
	geom, err := NewGeometry(cfg.SegmentLen, pairs)
	if err != nil {
		return nil, err
	}
	if cfg.NumSpeakers <= 0 || cfg.BatchSize <= 0 {
		return nil, fmt.Errorf("data: synthetic source needs speakers and batch size, got %d and %d",
			cfg.NumSpeakers, cfg.BatchSize)
	}
	perSpeaker := max(cfg.UttPerSpeaker, 1)

	rng := rand.New(rand.NewSource(seed))
	s := &Synthetic{
		geom:      geom,
		batchSize: cfg.BatchSize,
		noise:     cfg.Noise,
		voices:    make([]voice, cfg.NumSpeakers),
		par:       parallel.DefaultConfig(),
	}
	logRange := math.Log(maxSpeakerF0 / minSpeakerF0)
	for i := range s.voices {
		s.voices[i] = newVoice(rng, minSpeakerF0*math.Exp(logRange*float64(i)/float64(cfg.NumSpeakers)))
	}
	nTrain, nValid, _ := splitCounts(perSpeaker, cfg.ValidFraction, cfg.TestFraction)
	for spk := range s.voices {
		for u := 0; u < perSpeaker; u++ {
			p := newUttParams(rng, spk, geom.SegmentLen)
			split := 0
			switch {
			case u >= nTrain+nValid:
				split = 2
			case u >= nTrain:
				split = 1
			}
			s.utts[split] = append(s.utts[split], p)
		}
	}
	for i := range s.rngs {
		s.rngs[i] = rand.New(rand.NewSource(seed + int64(i) + 1))
	}
	return s, nil
}

// newVoice jitters base by up to ±10% and draws a decaying harmonic
// envelope with a random formant-like bump.
func newVoice(rng *rand.Rand, base float64) voice {
	v := voice{f0: base * (0.9 + 0.2*rng.Float64()), harmonics: make([]float64, numHarmonics)}
	decay := 0.2 + 0.6*rng.Float64()
	peak := 1 + rng.Intn(numHarmonics/2)
	total := 0.0
	for k := range v.harmonics {
		a := math.Exp(-decay * float64(k))
		if k+1 == peak {
			a += 0.5
		}
		a *= 0.5 + rng.Float64()
		v.harmonics[k] = a
		total += a
	}
	for k := range v.harmonics {
		v.harmonics[k] /= total
	}
	return v
}

func newUttParams(rng *rand.Rand, speaker, segmentLen int) uttParams {
	p := uttParams{
		speaker:  speaker,
		shift:    0.1*rng.Float64() - 0.05,
		vibRate:  3 + 4*rng.Float64(),
		vibDepth: 0.01 + 0.04*rng.Float64(),
		vibPhase: 2 * math.Pi * rng.Float64(),
	}
	if rng.Float64() < 0.5 {
		n := segmentLen/10 + rng.Intn(segmentLen/6+1)
		from := rng.Intn(segmentLen - n + 1)
		p.unvoiced = [2]int{from, from + n}
		p.hasSilent = true
	}
	return p
}

// NumSpeakers returns the number of synthetic speakers.
func (s *Synthetic) NumSpeakers() int { return len(s.voices) }

// Geometry returns the window layout of generated batches.
func (s *Synthetic) Geometry() Geometry { return s.geom }

// MakeFeedDict generates BatchSize segments from utterances of split.
func (s *Synthetic) MakeFeedDict(ctx context.Context, split string) (*feature.Dict, int, error) {
	idx, err := splitIndex(split)
	if err != nil {
		return nil, 0, err
	}
	utts := s.utts[idx]
	if len(utts) == 0 {
		return nil, 0, fmt.Errorf("%w: %s", ErrEmptySplit, split)
	}
	if err := ctx.Err(); err != nil {
		return nil, 0, err
	}

	// Draws happen sequentially so that parallel synthesis stays
	// deterministic.
	rng := s.rngs[idx]
	picks := make([]uttParams, s.batchSize)
	seeds := make([]int64, s.batchSize)
	for i := range picks {
		picks[i] = utts[rng.Intn(len(utts))]
		seeds[i] = rng.Int63()
	}
	rows := make([]row, s.batchSize)
	parallel.For(s.batchSize, func(i int) {
		rows[i] = s.synthesize(picks[i], rand.New(rand.NewSource(seeds[i])))
	}, s.par)

	d, err := s.geom.assemble(rows)
	if err != nil {
		return nil, 0, err
	}
	return d, s.batchSize, nil
}

// synthesize renders one segment. The segment starts at a random offset in
// the utterance, which moves the vibrato and the initial phase.
func (s *Synthetic) synthesize(p uttParams, rng *rand.Rand) row {
	v := s.voices[p.speaker]
	T := s.geom.SegmentLen
	start := rng.Intn(signal.SampleRate)
	base := v.f0 * (1 + p.shift)
	contour := func(pos int) float64 {
		t := float64(start+pos) / signal.SampleRate
		return base * (1 + p.vibDepth*math.Sin(2*math.Pi*p.vibRate*t+p.vibPhase))
	}
	unvoiced := func(pos int) bool {
		return p.hasSilent && pos >= p.unvoiced[0] && pos < p.unvoiced[1]
	}

	wav := make([]float64, T)
	phase := 2 * math.Pi * rng.Float64()
	nyquist := signal.SampleRate / 2.0
	for n := range wav {
		f := contour(n)
		phase += 2 * math.Pi * f / signal.SampleRate
		if unvoiced(n) {
			wav[n] = 0.1 * amplitude * rng.NormFloat64()
			continue
		}
		x := 0.0
		for k, a := range v.harmonics {
			if float64(k+1)*f >= nyquist {
				break
			}
			x += a * math.Sin(float64(k+1)*phase)
		}
		wav[n] = amplitude*x + s.noise*rng.NormFloat64()
	}

	return row{
		speaker: p.speaker,
		wav:     wav,
		start:   start,
		pitch: func(pos int) (float64, float64) {
			pos = min(max(pos, 0), T-1)
			smooth := contour(pos)
			if unvoiced(pos) {
				return 0, smooth
			}
			return smooth, smooth
		},
	}
}
