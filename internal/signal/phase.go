package signal

import "math"

// SampleRate is the waveform rate assumed by the sine basis, in Hz.
const SampleRate = 16000

// Tau returns the phase offset, in seconds, of a window starting at start
// seconds relative to a pitch period of f0 Hz: start mod 1/f0.
// Unvoiced frames (f0 <= 0) have offset 0.
func Tau(start, f0 float64) float64 {
	if f0 <= 0 {
		return 0
	}
	return math.Mod(start, 1/f0)
}

// Voicing returns 1 for a voiced frame (f0 > 0) and 0 otherwise.
func Voicing(f0 float64) float64 {
	if f0 > 0 {
		return 1
	}
	return 0
}
