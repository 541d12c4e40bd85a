package tensor

import (
	"fmt"

	"gonum.org/v1/gonum/floats"
)

// mustSameShape panics when a and b differ in shape.
func mustSameShape(op string, a, b *Tensor) {
	if !a.shape.Equal(b.shape) {
		panic(fmt.Sprintf("%s: shape mismatch %v vs %v", op, a.shape, b.shape))
	}
}

// Map returns a new tensor with fn applied to every element.
func (t *Tensor) Map(fn func(float64) float64) *Tensor {
	out := Zeros(t.shape)
	for i, v := range t.data {
		out.data[i] = fn(v)
	}
	return out
}

// Add returns t + other (element-wise, identical shapes).
func (t *Tensor) Add(other *Tensor) *Tensor {
	mustSameShape("add", t, other)
	out := t.Clone()
	floats.Add(out.data, other.data)
	return out
}

// Sub returns t - other (element-wise, identical shapes).
func (t *Tensor) Sub(other *Tensor) *Tensor {
	mustSameShape("sub", t, other)
	out := t.Clone()
	floats.Sub(out.data, other.data)
	return out
}

// Mul returns t * other (element-wise, identical shapes).
func (t *Tensor) Mul(other *Tensor) *Tensor {
	mustSameShape("mul", t, other)
	out := t.Clone()
	floats.Mul(out.data, other.data)
	return out
}

// Scale returns s * t.
func (t *Tensor) Scale(s float64) *Tensor {
	out := t.Clone()
	floats.Scale(s, out.data)
	return out
}

// AddInPlace accumulates alpha*other into t.
func (t *Tensor) AddInPlace(alpha float64, other *Tensor) {
	mustSameShape("add in place", t, other)
	floats.AddScaled(t.data, alpha, other.data)
}

// Sum returns the sum of all elements.
func (t *Tensor) Sum() float64 {
	return floats.Sum(t.data)
}

// Mean returns the mean of all elements.
func (t *Tensor) Mean() float64 {
	return floats.Sum(t.data) / float64(len(t.data))
}

// Dot returns the inner product of two same-shaped tensors.
func (t *Tensor) Dot(other *Tensor) float64 {
	mustSameShape("dot", t, other)
	return floats.Dot(t.data, other.data)
}

// Affine computes x @ wᵀ + b over the last axis.
//
//   - x: [..., in]
//   - w: [out, in]
//   - b: [out] or nil
//
// Returns [..., out].
func Affine(x, w, b *Tensor) *Tensor {
	if len(w.shape) != 2 {
		panic(fmt.Sprintf("affine: weight must be 2-D, got %v", w.shape))
	}
	out, in := w.shape[0], w.shape[1]
	if x.shape.Last() != in {
		panic(fmt.Sprintf("affine: input last axis %d does not match weight %v", x.shape.Last(), w.shape))
	}
	if b != nil && (len(b.shape) != 1 || b.shape[0] != out) {
		panic(fmt.Sprintf("affine: bias shape %v does not match %d outputs", b.shape, out))
	}

	rows := x.shape.Outer()
	outShape := x.shape.Clone()
	outShape[len(outShape)-1] = out
	y := Zeros(outShape)
	for r := 0; r < rows; r++ {
		xr := x.data[r*in : (r+1)*in]
		yr := y.data[r*out : (r+1)*out]
		for o := 0; o < out; o++ {
			yr[o] = floats.Dot(xr, w.data[o*in:(o+1)*in])
		}
		if b != nil {
			floats.Add(yr, b.data)
		}
	}
	return y
}

// MatMulLast computes g @ w over the last axis: [..., out] × [out, in] → [..., in].
// It is the input gradient of Affine.
func MatMulLast(g, w *Tensor) *Tensor {
	out, in := w.shape[0], w.shape[1]
	if g.shape.Last() != out {
		panic(fmt.Sprintf("matmul last: gradient last axis %d does not match weight %v", g.shape.Last(), w.shape))
	}
	rows := g.shape.Outer()
	outShape := g.shape.Clone()
	outShape[len(outShape)-1] = in
	dx := Zeros(outShape)
	for r := 0; r < rows; r++ {
		gr := g.data[r*out : (r+1)*out]
		dr := dx.data[r*in : (r+1)*in]
		for o, gv := range gr {
			if gv == 0 {
				continue
			}
			floats.AddScaled(dr, gv, w.data[o*in:(o+1)*in])
		}
	}
	return dx
}

// OuterSum accumulates Σ_r g_rᵀ x_r into a [out, in] matrix.
// It is the weight gradient of Affine.
func OuterSum(g, x *Tensor) *Tensor {
	out, in := g.shape.Last(), x.shape.Last()
	rows := g.shape.Outer()
	if x.shape.Outer() != rows {
		panic(fmt.Sprintf("outer sum: row mismatch %v vs %v", g.shape, x.shape))
	}
	dw := Zeros(Shape{out, in})
	for r := 0; r < rows; r++ {
		gr := g.data[r*out : (r+1)*out]
		xr := x.data[r*in : (r+1)*in]
		for o, gv := range gr {
			if gv == 0 {
				continue
			}
			floats.AddScaled(dw.data[o*in:(o+1)*in], gv, xr)
		}
	}
	return dw
}

// SumRows sums a [..., n] tensor over every axis except the last.
func SumRows(g *Tensor) *Tensor {
	n := g.shape.Last()
	out := Zeros(Shape{n})
	for r := 0; r < g.shape.Outer(); r++ {
		floats.Add(out.data, g.data[r*n:(r+1)*n])
	}
	return out
}

// BatchMatVec multiplies per-batch matrices by per-batch vectors.
//
//   - a: [..., R, C]
//   - x: [..., C]
//
// Returns [..., R]. The leading dimensions of a and x must agree.
func BatchMatVec(a, x *Tensor) *Tensor {
	rows, cols, batch := batchDims("batch matvec", a, x)
	outShape := x.shape.Clone()
	outShape[len(outShape)-1] = rows
	y := Zeros(outShape)
	for n := 0; n < batch; n++ {
		an := a.data[n*rows*cols : (n+1)*rows*cols]
		xn := x.data[n*cols : (n+1)*cols]
		yn := y.data[n*rows : (n+1)*rows]
		for r := 0; r < rows; r++ {
			yn[r] = floats.Dot(an[r*cols:(r+1)*cols], xn)
		}
	}
	return y
}

// BatchMatTVec multiplies transposed per-batch matrices by per-batch vectors.
//
//   - a: [..., R, C]
//   - y: [..., R]
//
// Returns [..., C]. It is the input gradient of BatchMatVec.
func BatchMatTVec(a, y *Tensor) *Tensor {
	ndim := len(a.shape)
	rows, cols := a.shape[ndim-2], a.shape[ndim-1]
	if y.shape.Last() != rows || y.shape.Outer() != a.shape[:ndim-2].NumElements() {
		panic(fmt.Sprintf("batch matTvec: shapes %v and %v incompatible", a.shape, y.shape))
	}
	batch := y.shape.Outer()
	outShape := y.shape.Clone()
	outShape[len(outShape)-1] = cols
	x := Zeros(outShape)
	for n := 0; n < batch; n++ {
		an := a.data[n*rows*cols : (n+1)*rows*cols]
		yn := y.data[n*rows : (n+1)*rows]
		xn := x.data[n*cols : (n+1)*cols]
		for r, yv := range yn {
			floats.AddScaled(xn, yv, an[r*cols:(r+1)*cols])
		}
	}
	return x
}

// batchDims validates a [..., R, C] matrix batch against a [..., C] vector batch.
func batchDims(op string, a, x *Tensor) (rows, cols, batch int) {
	ndim := len(a.shape)
	if ndim < 2 || len(x.shape) != ndim-1 {
		panic(fmt.Sprintf("%s: shapes %v and %v incompatible", op, a.shape, x.shape))
	}
	rows, cols = a.shape[ndim-2], a.shape[ndim-1]
	if !a.shape[:ndim-2].Equal(x.shape[:ndim-2]) || x.shape.Last() != cols {
		panic(fmt.Sprintf("%s: shapes %v and %v incompatible", op, a.shape, x.shape))
	}
	return rows, cols, x.shape.Outer()
}
