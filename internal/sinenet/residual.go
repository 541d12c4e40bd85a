package sinenet

import (
	"fmt"

	"gonum.org/v1/gonum/mat"

	"github.com/born-ml/sinenet/internal/autodiff"
	"github.com/born-ml/sinenet/internal/tensor"
)

// solve returns A = (WWᵀ + εI)⁻¹W for every window of basis [..., 2K, T].
//
// The Gram matrix is factorized with Cholesky; when that fails (not
// positive definite in floating point) an LU solve is attempted. A solve
// reporting an ill-conditioned or singular system returns ErrSingularBasis
// naming the window, wrapping the gonum error (a mat.Condition for
// ill-conditioned systems). gonum reports mat.Condition whenever the
// condition number exceeds mat.ConditionTolerance, even though a solution
// was computed, so near-degenerate pitch (harmonics close to Nyquist, or
// too few periods per window to separate them) fails here too. Such inputs
// need WithRegularization.
func (e *Engine) solve(basis *tensor.Tensor) (*tensor.Tensor, error) {
	rows, cols := 2*e.numFreq, e.winLen
	bs := basis.Shape()
	if n := len(bs); n < 2 || bs[n-2] != rows || bs[n-1] != cols {
		return nil, fmt.Errorf("%w: basis %v, want [..., %d, %d]", ErrShape, bs, rows, cols)
	}
	solved := tensor.ZerosLike(basis)
	size := rows * cols
	windows := basis.NumElements() / size
	for w := 0; w < windows; w++ {
		src := basis.Data()[w*size : (w+1)*size]
		dst := solved.Data()[w*size : (w+1)*size]
		if err := e.solveWindow(src, dst); err != nil {
			return nil, fmt.Errorf("%w: window %d: %w", ErrSingularBasis, w, err)
		}
	}
	return solved, nil
}

// solveWindow writes (WWᵀ + εI)⁻¹W into dst for one 2K×T window.
func (e *Engine) solveWindow(src, dst []float64) error {
	rows, cols := 2*e.numFreq, e.winLen
	w := mat.NewDense(rows, cols, src)
	out := mat.NewDense(rows, cols, dst)

	var gram mat.SymDense
	gram.SymOuterK(1, w)
	if e.eps > 0 {
		for i := 0; i < rows; i++ {
			gram.SetSym(i, i, gram.At(i, i)+e.eps)
		}
	}

	var chol mat.Cholesky
	if chol.Factorize(&gram) {
		if err := chol.SolveTo(out, w); err == nil {
			return nil
		}
	}
	var lu mat.LU
	lu.Factorize(&gram)
	return lu.SolveTo(out, false, w)
}

// Coefficients returns the least-squares coefficients (WWᵀ+εI)⁻¹Wx of each
// window in its basis, shape [..., 2K].
func (e *Engine) Coefficients(x, basis *tensor.Tensor) (*tensor.Tensor, error) {
	if err := e.checkWindows(x, basis, 2*e.numFreq); err != nil {
		return nil, err
	}
	solved, err := e.solve(basis)
	if err != nil {
		return nil, err
	}
	return tensor.BatchMatVec(solved, x), nil
}

// Residual returns x − Wᵀ(WWᵀ+εI)⁻¹Wx per window: the part of each window
// not explained by the harmonic basis. Shape equals x's.
//
// Example:
//
//	basis, _ := eng.Basis(f0, tau)
//	res, err := eng.Residual(tape, windows, basis)
//	if errors.Is(err, sinenet.ErrSingularBasis) { ... }
func (e *Engine) Residual(tape *autodiff.GradientTape, x, basis *tensor.Tensor) (*tensor.Tensor, error) {
	if err := e.checkWindows(x, basis, 2*e.numFreq); err != nil {
		return nil, err
	}
	solved, err := e.solve(basis)
	if err != nil {
		return nil, err
	}
	return autodiff.Residual(tape, basis, solved, x), nil
}

// ResidualOperator returns the T×T projectors R = I − Wᵀ(WWᵀ+εI)⁻¹W for
// every window, shape [..., T, T]. Residual applies R without building it;
// this form is for inspection.
func (e *Engine) ResidualOperator(basis *tensor.Tensor) (*tensor.Tensor, error) {
	solved, err := e.solve(basis)
	if err != nil {
		return nil, err
	}
	rows, T := 2*e.numFreq, e.winLen
	bs := basis.Shape()
	shape := append(bs[:len(bs)-2].Clone(), T, T)
	proj := tensor.Zeros(shape)
	windows := basis.NumElements() / (rows * T)
	for w := 0; w < windows; w++ {
		W := mat.NewDense(rows, T, basis.Data()[w*rows*T:(w+1)*rows*T])
		A := mat.NewDense(rows, T, solved.Data()[w*rows*T:(w+1)*rows*T])
		R := mat.NewDense(T, T, proj.Data()[w*T*T:(w+1)*T*T])
		R.Mul(W.T(), A)
		R.Scale(-1, R)
		for i := 0; i < T; i++ {
			R.Set(i, i, R.At(i, i)+1)
		}
	}
	return proj, nil
}
