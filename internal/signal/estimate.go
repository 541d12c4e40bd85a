package signal

import (
	"math"

	"gonum.org/v1/gonum/floats"
)

// Pitch tracking defaults.
const (
	// PitchHop is the spacing of pitch track frames in samples (5 ms).
	PitchHop = 80
	// MinF0 and MaxF0 bound the pitch search, in Hz.
	MinF0 = 60.0
	MaxF0 = 400.0
)

// voicingThreshold is the normalized autocorrelation peak a frame needs to
// count as voiced; silenceRMS is the energy below which it never does.
const (
	voicingThreshold = 0.45
	silenceRMS       = 1e-3
)

// EstimatePitch returns a pitch track for wav sampled at fs, one value per
// PitchHop samples, 0 for unvoiced frames. Each frame is centered on its hop
// and analyzed with the normalized autocorrelation over two periods of the
// lowest searched pitch.
func EstimatePitch(wav []float64, fs float64) []float64 {
	if len(wav) == 0 {
		return nil
	}
	minLag := int(fs / MaxF0)
	maxLag := int(math.Ceil(fs / MinF0))
	frameLen := 2 * maxLag
	n := (len(wav) + PitchHop - 1) / PitchHop
	track := make([]float64, n)
	for i := range track {
		center := i*PitchHop + PitchHop/2
		start := center - frameLen/2
		if start < 0 || start+frameLen > len(wav) {
			continue
		}
		frame := wav[start : start+frameLen]
		track[i] = framePitch(frame, fs, minLag, maxLag)
	}
	return track
}

// framePitch picks the first autocorrelation peak within 10% of the
// strongest one, which avoids reporting a multiple of the period.
func framePitch(frame []float64, fs float64, minLag, maxLag int) float64 {
	n := len(frame)
	if floats.Norm(frame, 2)/math.Sqrt(float64(n)) < silenceRMS {
		return 0
	}
	maxLag = min(maxLag, n-1)
	if maxLag <= minLag+1 {
		return 0
	}
	r := make([]float64, maxLag+2)
	for lag := minLag; lag <= maxLag; lag++ {
		a, b := frame[:n-lag], frame[lag:]
		if den := floats.Norm(a, 2) * floats.Norm(b, 2); den > 0 {
			r[lag] = floats.Dot(a, b) / den
		}
	}
	peak := floats.Max(r[minLag : maxLag+1])
	if peak < voicingThreshold {
		return 0
	}
	for lag := minLag + 1; lag < maxLag; lag++ {
		if r[lag] >= 0.9*peak && r[lag] >= r[lag-1] && r[lag] >= r[lag+1] {
			return fs / float64(lag)
		}
	}
	return 0
}

// InterpolatePitch fills unvoiced (zero) entries of track by linear
// interpolation of log pitch between the nearest voiced neighbours, holding
// the end values constant. A track with no voiced frame is filled with
// fallback. The input is not modified.
func InterpolatePitch(track []float64, fallback float64) []float64 {
	out := make([]float64, len(track))
	prev := -1
	for i, f := range track {
		if f <= 0 {
			continue
		}
		out[i] = f
		switch {
		case prev < 0:
			for j := 0; j < i; j++ {
				out[j] = f
			}
		case i-prev > 1:
			lo, hi := math.Log(track[prev]), math.Log(f)
			for j := prev + 1; j < i; j++ {
				w := float64(j-prev) / float64(i-prev)
				out[j] = math.Exp(lo + w*(hi-lo))
			}
		}
		prev = i
	}
	if prev < 0 {
		for i := range out {
			out[i] = fallback
		}
		return out
	}
	for j := prev + 1; j < len(out); j++ {
		out[j] = track[prev]
	}
	return out
}
