package tensor

import (
	"fmt"
	"math"
)

// Tensor is a dense, row-major, float64 multi-dimensional array.
//
// Every tensor owns a contiguous buffer: operations that reorder axes
// (SwapAxes, Unfold, Concat) materialize a new contiguous tensor instead of
// returning a strided view, so no two tensors alias memory unless created
// with Reshape on purpose.
//
// Example:
//
//	x := tensor.Zeros(tensor.Shape{3, 4})
//	x.Set(1.5, 1, 2)
//	v := x.At(1, 2) // 1.5
type Tensor struct {
	shape   Shape
	strides []int
	data    []float64
}

// New wraps data with the given shape without copying.
// Panics if the element count does not match.
func New(data []float64, shape Shape) *Tensor {
	if shape.NumElements() != len(data) {
		panic(fmt.Sprintf("tensor.New: shape %v requires %d elements, got %d", shape, shape.NumElements(), len(data)))
	}
	s := shape.Clone()
	return &Tensor{
		shape:   s,
		strides: s.ComputeStrides(),
		data:    data,
	}
}

// FromSlice creates a tensor from a Go slice.
// The slice is copied into the tensor's memory.
func FromSlice(data []float64, shape Shape) (*Tensor, error) {
	if shape.NumElements() != len(data) {
		return nil, fmt.Errorf("shape %v requires %d elements, but got %d", shape, shape.NumElements(), len(data))
	}
	buf := make([]float64, len(data))
	copy(buf, data)
	return New(buf, shape), nil
}

// Shape returns the tensor's shape.
func (t *Tensor) Shape() Shape {
	return t.shape
}

// Strides returns the row-major strides.
func (t *Tensor) Strides() []int {
	return t.strides
}

// NumDims returns the number of dimensions.
func (t *Tensor) NumDims() int {
	return len(t.shape)
}

// NumElements returns the total number of elements.
func (t *Tensor) NumElements() int {
	return len(t.data)
}

// Data returns the underlying buffer (zero-copy).
//
// WARNING: Modifications to the returned slice will modify the tensor.
func (t *Tensor) Data() []float64 {
	return t.data
}

// Item returns the value of a single-element tensor.
func (t *Tensor) Item() float64 {
	if len(t.data) != 1 {
		panic(fmt.Sprintf("Item() only works for single-element tensors, got shape %v", t.shape))
	}
	return t.data[0]
}

// offset converts indices into a flat offset, panicking when out of bounds.
func (t *Tensor) offset(indices []int) int {
	if len(indices) != len(t.shape) {
		panic(fmt.Sprintf("expected %d indices, got %d", len(t.shape), len(indices)))
	}
	off := 0
	for i, idx := range indices {
		if idx < 0 || idx >= t.shape[i] {
			panic(fmt.Sprintf("index %d out of bounds for dimension %d (size %d)", idx, i, t.shape[i]))
		}
		off += idx * t.strides[i]
	}
	return off
}

// At returns the element at the given indices.
// Panics if indices are out of bounds.
func (t *Tensor) At(indices ...int) float64 {
	return t.data[t.offset(indices)]
}

// Set sets the element at the given indices.
// Panics if indices are out of bounds.
func (t *Tensor) Set(value float64, indices ...int) {
	t.data[t.offset(indices)] = value
}

// Row returns the contiguous slice of the last axis at the given outer row.
// For a [S, B, M, T] tensor, row r covers indices r*T .. r*T+T-1.
func (t *Tensor) Row(r int) []float64 {
	n := t.shape.Last()
	return t.data[r*n : (r+1)*n]
}

// Clone creates a deep copy of the tensor.
func (t *Tensor) Clone() *Tensor {
	buf := make([]float64, len(t.data))
	copy(buf, t.data)
	return New(buf, t.shape)
}

// CopyFrom overwrites t's data with src's data. Shapes must match.
func (t *Tensor) CopyFrom(src *Tensor) error {
	if !t.shape.Equal(src.shape) {
		return fmt.Errorf("copy: shape mismatch %v vs %v", t.shape, src.shape)
	}
	copy(t.data, src.data)
	return nil
}

// IsFinite reports whether every element is neither NaN nor ±Inf.
func (t *Tensor) IsFinite() bool {
	for _, v := range t.data {
		if math.IsNaN(v) || math.IsInf(v, 0) {
			return false
		}
	}
	return true
}

// String returns a human-readable representation of the tensor.
func (t *Tensor) String() string {
	return fmt.Sprintf("Tensor[float64]%v", t.shape)
}
