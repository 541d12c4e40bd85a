// Package sinenet projects waveform windows onto a sine/cosine basis whose
// frequencies are the harmonics of a per-window pitch.
//
// For a window of T samples with pitch f (Hz) and phase offset τ (seconds),
// harmonic k (1-based) contributes the rows
//
//	sin(2πk · f · (n/fs − τ)),  cos(2πk · f · (n/fs − τ)),  n = 0..T-1
//
// to a 2K×T basis W. Forward returns W x (2K spectral features per window);
// Residual returns x minus its least-squares reconstruction in W.
//
// The Gram matrix WWᵀ is 2K×2K and well conditioned when 2K is much smaller
// than T and f·K stays below the Nyquist rate. WithRegularization adds εI to
// it for inputs where that does not hold.
package sinenet

import (
	"errors"
	"fmt"
	"math"

	"github.com/born-ml/sinenet/internal/autodiff"
	"github.com/born-ml/sinenet/internal/signal"
	"github.com/born-ml/sinenet/internal/tensor"
)

// Errors returned by the engine.
var (
	ErrNoFrequencies = errors.New("sinenet: number of frequencies must be positive")
	ErrEmptyWindow   = errors.New("sinenet: window length must be positive")
	ErrSingularBasis = errors.New("sinenet: singular or ill-conditioned basis gram matrix")
	ErrShape         = errors.New("sinenet: shape mismatch")
)

// Option configures an Engine.
type Option func(*Engine)

// WithSamplePeriod sets the waveform sample period in seconds.
// The default is 1/16000.
func WithSamplePeriod(seconds float64) Option {
	return func(e *Engine) {
		e.samplePeriod = seconds
	}
}

// WithRegularization adds eps·I to the Gram matrix of the residual solve.
// The default is 0 (plain least squares), which rejects ill-conditioned
// windows with ErrSingularBasis; a small eps such as 1e-6 keeps them
// solvable.
func WithRegularization(eps float64) Option {
	return func(e *Engine) {
		e.eps = eps
	}
}

// Engine holds the fixed frequency and time vectors for K harmonics over
// windows of T samples. It is immutable after New and safe for concurrent use.
type Engine struct {
	numFreq      int
	winLen       int
	samplePeriod float64
	eps          float64
	k2pi         []float64 // [K] 2π(k+1)
	nT           []float64 // [T] t·samplePeriod
}

// New creates an engine for numFreq harmonics over windows of winLen samples.
//
// Example:
//
//	eng, err := sinenet.New(16, 80)
//	feats, err := eng.Forward(tape, windows, f0, tau) // [S, B, M, 32]
func New(numFreq, winLen int, opts ...Option) (*Engine, error) {
	if numFreq <= 0 {
		return nil, fmt.Errorf("%w: got %d", ErrNoFrequencies, numFreq)
	}
	if winLen <= 0 {
		return nil, fmt.Errorf("%w: got %d", ErrEmptyWindow, winLen)
	}
	e := &Engine{
		numFreq:      numFreq,
		winLen:       winLen,
		samplePeriod: 1.0 / signal.SampleRate,
	}
	for _, opt := range opts {
		opt(e)
	}
	if e.samplePeriod <= 0 || math.IsNaN(e.samplePeriod) {
		return nil, fmt.Errorf("sinenet: sample period must be positive, got %v", e.samplePeriod)
	}
	if e.eps < 0 {
		return nil, fmt.Errorf("sinenet: regularization must be non-negative, got %v", e.eps)
	}

	e.k2pi = make([]float64, numFreq)
	for k := range e.k2pi {
		e.k2pi[k] = 2 * math.Pi * float64(k+1)
	}
	e.nT = make([]float64, winLen)
	for t := range e.nT {
		e.nT[t] = float64(t) * e.samplePeriod
	}
	return e, nil
}

// NumFreq returns K.
func (e *Engine) NumFreq() int { return e.numFreq }

// WinLen returns T.
func (e *Engine) WinLen() int { return e.winLen }

// BasisSize returns 2K, the number of basis rows and projected features.
func (e *Engine) BasisSize() int { return 2 * e.numFreq }

// Regularization returns ε.
func (e *Engine) Regularization() float64 { return e.eps }

// checkPitch validates that f and tau share one shape.
func (e *Engine) checkPitch(f, tau *tensor.Tensor) error {
	if !f.Shape().Equal(tau.Shape()) {
		return fmt.Errorf("%w: pitch %v and tau %v", ErrShape, f.Shape(), tau.Shape())
	}
	return nil
}

// checkWindows validates x [..., T] against a [..., R, T] matrix batch.
func (e *Engine) checkWindows(x, basis *tensor.Tensor, rows int) error {
	bs, xs := basis.Shape(), x.Shape()
	n := len(bs)
	if n < 2 || bs[n-2] != rows || bs[n-1] != e.winLen {
		return fmt.Errorf("%w: basis %v, want [..., %d, %d]", ErrShape, bs, rows, e.winLen)
	}
	if len(xs) != n-1 || !xs[:n-2].Equal(bs[:n-2]) || xs[n-2] != e.winLen {
		return fmt.Errorf("%w: windows %v do not match basis %v", ErrShape, xs, bs)
	}
	return nil
}

// Degrees returns the phase angles k_2π[k]·f·(n_T[t] − τ) with shape
// f.Shape() + [K, T].
func (e *Engine) Degrees(f, tau *tensor.Tensor) (*tensor.Tensor, error) {
	if err := e.checkPitch(f, tau); err != nil {
		return nil, err
	}
	K, T := e.numFreq, e.winLen
	shape := append(f.Shape().Clone(), K, T)
	deg := tensor.Zeros(shape)
	out := deg.Data()
	for w, fw := range f.Data() {
		tw := tau.Data()[w]
		base := w * K * T
		for k, kk := range e.k2pi {
			row := out[base+k*T : base+(k+1)*T]
			scale := kk * fw
			for t, n := range e.nT {
				row[t] = scale * (n - tw)
			}
		}
	}
	return deg, nil
}

// Basis returns concat(sin(deg), cos(deg)) along the frequency axis, with
// shape f.Shape() + [2K, T]. It is recomputed on every call since pitch and
// phase vary per input.
func (e *Engine) Basis(f, tau *tensor.Tensor) (*tensor.Tensor, error) {
	deg, err := e.Degrees(f, tau)
	if err != nil {
		return nil, err
	}
	K, T := e.numFreq, e.winLen
	shape := append(f.Shape().Clone(), 2*K, T)
	basis := tensor.Zeros(shape)
	in, out := deg.Data(), basis.Data()
	windows := f.NumElements()
	for w := 0; w < windows; w++ {
		src := in[w*K*T : (w+1)*K*T]
		dst := out[w*2*K*T : (w+1)*2*K*T]
		for i, d := range src {
			dst[i] = math.Sin(d)
			dst[K*T+i] = math.Cos(d)
		}
	}
	return basis, nil
}

// Project contracts basis [..., 2K, T] with windows x [..., T] over time,
// giving [..., 2K]. The basis is a constant for differentiation.
func (e *Engine) Project(tape *autodiff.GradientTape, x, basis *tensor.Tensor) (*tensor.Tensor, error) {
	if err := e.checkWindows(x, basis, 2*e.numFreq); err != nil {
		return nil, err
	}
	return autodiff.BatchMatVec(tape, basis, x), nil
}

// Forward builds the basis from f and tau and projects x onto it.
func (e *Engine) Forward(tape *autodiff.GradientTape, x, f, tau *tensor.Tensor) (*tensor.Tensor, error) {
	basis, err := e.Basis(f, tau)
	if err != nil {
		return nil, err
	}
	return e.Project(tape, x, basis)
}
