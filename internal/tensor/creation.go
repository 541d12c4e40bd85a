package tensor

import (
	"math"
	"math/rand"
)

// Zeros creates a tensor filled with zeros.
//
// Example:
//
//	t := tensor.Zeros(tensor.Shape{3, 4})
func Zeros(shape Shape) *Tensor {
	return New(make([]float64, shape.NumElements()), shape)
}

// ZerosLike creates a zero tensor with the same shape as t.
func ZerosLike(t *Tensor) *Tensor {
	return Zeros(t.shape)
}

// Ones creates a tensor filled with ones.
func Ones(shape Shape) *Tensor {
	return Full(shape, 1)
}

// Full creates a tensor filled with a specific value.
func Full(shape Shape, value float64) *Tensor {
	t := Zeros(shape)
	for i := range t.data {
		t.data[i] = value
	}
	return t
}

// Eye creates an n×n identity matrix.
func Eye(n int) *Tensor {
	t := Zeros(Shape{n, n})
	for i := 0; i < n; i++ {
		t.data[i*n+i] = 1
	}
	return t
}

// Arange creates a 1-D tensor [start, start+step, ...] with n elements.
func Arange(n int, start, step float64) *Tensor {
	t := Zeros(Shape{n})
	for i := range t.data {
		t.data[i] = start + float64(i)*step
	}
	return t
}

// Randn creates a tensor with values drawn from N(0, 1).
//
// The random source is explicit so that runs are reproducible from a seed.
func Randn(shape Shape, rng *rand.Rand) *Tensor {
	t := Zeros(shape)
	for i := range t.data {
		t.data[i] = rng.NormFloat64()
	}
	return t
}

// Uniform creates a tensor with values drawn from U(low, high).
func Uniform(shape Shape, low, high float64, rng *rand.Rand) *Tensor {
	t := Zeros(shape)
	for i := range t.data {
		t.data[i] = low + rng.Float64()*(high-low)
	}
	return t
}

// Xavier creates a [fanOut, fanIn] tensor with Xavier/Glorot uniform values:
// U(-sqrt(6/(fan_in + fan_out)), sqrt(6/(fan_in + fan_out))).
func Xavier(fanIn, fanOut int, rng *rand.Rand) *Tensor {
	bound := math.Sqrt(6.0 / float64(fanIn+fanOut))
	return Uniform(Shape{fanOut, fanIn}, -bound, bound, rng)
}
