package tensor

import "fmt"

// Reshape returns a tensor sharing t's data with a new shape.
// The element count must be preserved.
//
// Example:
//
//	h := tensor.Zeros(tensor.Shape{2, 3, 4, 5}) // S×B×M×D
//	flat, _ := h.Reshape(tensor.Shape{2, 3, 20}) // S×B×(M·D)
func (t *Tensor) Reshape(shape Shape) (*Tensor, error) {
	if shape.NumElements() != len(t.data) {
		return nil, fmt.Errorf("reshape: cannot view %v (%d elements) as %v", t.shape, len(t.data), shape)
	}
	return New(t.data, shape), nil
}

// Unsqueeze inserts a dimension of size 1 at axis (view, no copy).
// Supports negative axis indexing: -1 appends a trailing axis.
func (t *Tensor) Unsqueeze(axis int) *Tensor {
	ndim := len(t.shape) + 1
	if axis < 0 {
		axis += ndim
	}
	if axis < 0 || axis >= ndim {
		panic(fmt.Sprintf("unsqueeze: axis %d out of range for %d-D result", axis, ndim))
	}
	shape := make(Shape, 0, ndim)
	shape = append(shape, t.shape[:axis]...)
	shape = append(shape, 1)
	shape = append(shape, t.shape[axis:]...)
	return New(t.data, shape)
}

// Permute returns a contiguous copy with axes reordered so that result
// axis i is source axis perm[i].
func (t *Tensor) Permute(perm ...int) *Tensor {
	ndim := len(t.shape)
	if len(perm) != ndim {
		panic(fmt.Sprintf("permute: expected %d axes, got %d", ndim, len(perm)))
	}
	seen := make([]bool, ndim)
	outShape := make(Shape, ndim)
	for i, p := range perm {
		if p < 0 || p >= ndim || seen[p] {
			panic(fmt.Sprintf("permute: invalid permutation %v", perm))
		}
		seen[p] = true
		outShape[i] = t.shape[p]
	}

	out := Zeros(outShape)
	// srcStride[i] is the source stride of the axis placed at output position i.
	srcStride := make([]int, ndim)
	for i, p := range perm {
		srcStride[i] = t.strides[p]
	}

	idx := make([]int, ndim)
	src := 0
	for dst := range out.data {
		out.data[dst] = t.data[src]
		// Advance the multi-index in output order, tracking the source offset.
		for ax := ndim - 1; ax >= 0; ax-- {
			idx[ax]++
			src += srcStride[ax]
			if idx[ax] < outShape[ax] {
				break
			}
			src -= srcStride[ax] * outShape[ax]
			idx[ax] = 0
		}
	}
	return out
}

// SwapAxes returns a contiguous copy with axes a and b exchanged.
// Supports negative axis indexing.
func (t *Tensor) SwapAxes(a, b int) *Tensor {
	ndim := len(t.shape)
	a = normalizeAxis(a, ndim)
	b = normalizeAxis(b, ndim)
	if a == b {
		return t.Clone()
	}
	perm := make([]int, ndim)
	for i := range perm {
		perm[i] = i
	}
	perm[a], perm[b] = b, a
	return t.Permute(perm...)
}

// Unfold extracts sliding windows of length size with the given step along
// axis. The axis becomes the window count (n-size)/step+1 and a new trailing
// axis of length size is appended, matching torch.Tensor.unfold.
//
// Example:
//
//	wav := tensor.Zeros(tensor.Shape{S, T})
//	w, _ := wav.Unfold(1, 400, 80) // S×B×400
func (t *Tensor) Unfold(axis, size, step int) (*Tensor, error) {
	ndim := len(t.shape)
	axis = normalizeAxis(axis, ndim)
	n := t.shape[axis]
	if size <= 0 || step <= 0 {
		return nil, fmt.Errorf("unfold: size %d and step %d must be positive", size, step)
	}
	if size > n {
		return nil, fmt.Errorf("unfold: window %d larger than axis %d (size %d)", size, axis, n)
	}
	count := (n-size)/step + 1

	outShape := make(Shape, 0, ndim+1)
	outShape = append(outShape, t.shape[:axis]...)
	outShape = append(outShape, count)
	outShape = append(outShape, t.shape[axis+1:]...)
	outShape = append(outShape, size)
	out := Zeros(outShape)

	outer := t.shape[:axis].NumElements()
	inner := t.shape[axis+1:].NumElements()
	pos := 0
	for o := 0; o < outer; o++ {
		base := o * n * inner
		for c := 0; c < count; c++ {
			for in := 0; in < inner; in++ {
				for k := 0; k < size; k++ {
					out.data[pos] = t.data[base+(c*step+k)*inner+in]
					pos++
				}
			}
		}
	}
	return out, nil
}

// Concat joins tensors along axis. All other dimensions must agree.
func Concat(axis int, tensors ...*Tensor) (*Tensor, error) {
	if len(tensors) == 0 {
		return nil, fmt.Errorf("concat: at least one tensor required")
	}
	first := tensors[0].shape
	ndim := len(first)
	axis = normalizeAxis(axis, ndim)

	total := 0
	for i, t := range tensors {
		if len(t.shape) != ndim {
			return nil, fmt.Errorf("concat: tensor %d has %d dims, expected %d", i, len(t.shape), ndim)
		}
		for d := 0; d < ndim; d++ {
			if d != axis && t.shape[d] != first[d] {
				return nil, fmt.Errorf("concat: tensor %d shape %v incompatible with %v on axis %d", i, t.shape, first, d)
			}
		}
		total += t.shape[axis]
	}

	outShape := first.Clone()
	outShape[axis] = total
	out := Zeros(outShape)

	outer := first[:axis].NumElements()
	inner := first[axis+1:].NumElements()
	pos := 0
	for o := 0; o < outer; o++ {
		for _, t := range tensors {
			chunk := t.shape[axis] * inner
			copy(out.data[pos:pos+chunk], t.data[o*chunk:(o+1)*chunk])
			pos += chunk
		}
	}
	return out, nil
}

// Split is the inverse of Concat: it cuts t along axis into pieces with the
// given sizes, which must sum to the axis length.
func (t *Tensor) Split(axis int, sizes ...int) ([]*Tensor, error) {
	ndim := len(t.shape)
	axis = normalizeAxis(axis, ndim)
	sum := 0
	for _, s := range sizes {
		sum += s
	}
	if sum != t.shape[axis] {
		return nil, fmt.Errorf("split: sizes %v do not sum to axis %d length %d", sizes, axis, t.shape[axis])
	}

	outer := t.shape[:axis].NumElements()
	inner := t.shape[axis+1:].NumElements()
	parts := make([]*Tensor, len(sizes))
	for i, s := range sizes {
		shape := t.shape.Clone()
		shape[axis] = s
		parts[i] = Zeros(shape)
	}
	pos := 0
	for o := 0; o < outer; o++ {
		for i, s := range sizes {
			chunk := s * inner
			copy(parts[i].data[o*chunk:(o+1)*chunk], t.data[pos:pos+chunk])
			pos += chunk
		}
	}
	return parts, nil
}

// MeanAxis averages over axis and removes it.
func (t *Tensor) MeanAxis(axis int) *Tensor {
	ndim := len(t.shape)
	axis = normalizeAxis(axis, ndim)
	n := t.shape[axis]
	outShape := make(Shape, 0, ndim-1)
	outShape = append(outShape, t.shape[:axis]...)
	outShape = append(outShape, t.shape[axis+1:]...)
	out := Zeros(outShape)

	outer := t.shape[:axis].NumElements()
	inner := t.shape[axis+1:].NumElements()
	scale := 1 / float64(n)
	for o := 0; o < outer; o++ {
		for k := 0; k < n; k++ {
			src := t.data[(o*n+k)*inner : (o*n+k+1)*inner]
			dst := out.data[o*inner : (o+1)*inner]
			for i, v := range src {
				dst[i] += v * scale
			}
		}
	}
	return out
}

// Expand inserts axis with size n, repeating t along it.
// It is the adjoint of a sum over that axis.
func (t *Tensor) Expand(axis, n int) *Tensor {
	ndim := len(t.shape) + 1
	if axis < 0 {
		axis += ndim
	}
	outShape := make(Shape, 0, ndim)
	outShape = append(outShape, t.shape[:axis]...)
	outShape = append(outShape, n)
	outShape = append(outShape, t.shape[axis:]...)
	out := Zeros(outShape)

	outer := t.shape[:axis].NumElements()
	inner := t.shape[axis:].NumElements()
	for o := 0; o < outer; o++ {
		src := t.data[o*inner : (o+1)*inner]
		for k := 0; k < n; k++ {
			copy(out.data[(o*n+k)*inner:(o*n+k+1)*inner], src)
		}
	}
	return out
}
