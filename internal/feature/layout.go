package feature

import (
	"errors"
	"fmt"
	"strings"

	"github.com/born-ml/sinenet/internal/tensor"
)

// ErrMissingAxis is returned when a layout lacks an axis a layer requires.
var ErrMissingAxis = errors.New("feature: missing axis")

// Axis names one dimension of a layer's input or output.
type Axis byte

// Axis names.
const (
	S Axis = 'S' // sample (sequence in batch)
	B Axis = 'B' // batch item
	M Axis = 'M' // micro-window within a batch item
	T Axis = 'T' // time samples within a window
	D Axis = 'D' // feature dimension
)

// String returns the single-letter axis name.
func (a Axis) String() string {
	return string(rune(a))
}

func (a Axis) valid() bool {
	switch a {
	case S, B, M, T, D:
		return true
	}
	return false
}

// Layout is the static shape descriptor of a feature: an ordered list of
// named axes with a size for each. Layouts are immutable values; the With*
// methods return modified copies.
type Layout struct {
	axes  []Axis
	sizes []int
}

// NewLayout builds a layout from an axis string such as "SBMT" and one size
// per axis. Axes must be distinct members of {S, B, M, T, D} and sizes
// positive.
//
// Example:
//
//	l, err := feature.NewLayout("SBMT", 2, 5, 4, 400)
func NewLayout(axes string, sizes ...int) (Layout, error) {
	if len(axes) != len(sizes) {
		return Layout{}, fmt.Errorf("layout %q: %d sizes for %d axes", axes, len(sizes), len(axes))
	}
	l := Layout{axes: make([]Axis, len(axes)), sizes: make([]int, len(sizes))}
	seen := make(map[Axis]bool, len(axes))
	for i := 0; i < len(axes); i++ {
		a := Axis(axes[i])
		if !a.valid() {
			return Layout{}, fmt.Errorf("layout %q: unknown axis %q", axes, a)
		}
		if seen[a] {
			return Layout{}, fmt.Errorf("layout %q: duplicate axis %s", axes, a)
		}
		if sizes[i] <= 0 {
			return Layout{}, fmt.Errorf("layout %q: axis %s has non-positive size %d", axes, a, sizes[i])
		}
		seen[a] = true
		l.axes[i] = a
		l.sizes[i] = sizes[i]
	}
	return l, nil
}

// MustLayout is like NewLayout but panics on error. Intended for tests and
// package-level constants.
func MustLayout(axes string, sizes ...int) Layout {
	l, err := NewLayout(axes, sizes...)
	if err != nil {
		panic(err)
	}
	return l
}

// Axes returns the axis order.
func (l Layout) Axes() []Axis {
	out := make([]Axis, len(l.axes))
	copy(out, l.axes)
	return out
}

// NumAxes returns the number of axes.
func (l Layout) NumAxes() int {
	return len(l.axes)
}

// Index returns the position of a, or -1.
func (l Layout) Index(a Axis) int {
	for i, x := range l.axes {
		if x == a {
			return i
		}
	}
	return -1
}

// Has reports whether the layout contains a.
func (l Layout) Has(a Axis) bool {
	return l.Index(a) >= 0
}

// Size returns the size of a, or 0 if absent.
func (l Layout) Size(a Axis) int {
	if i := l.Index(a); i >= 0 {
		return l.sizes[i]
	}
	return 0
}

// Require returns an error wrapping ErrMissingAxis naming the first absent
// axis.
func (l Layout) Require(axes ...Axis) error {
	for _, a := range axes {
		if !l.Has(a) {
			return fmt.Errorf("%w %s in %s", ErrMissingAxis, a, l)
		}
	}
	return nil
}

// Last returns the innermost axis. The zero Layout has none and returns 0.
func (l Layout) Last() Axis {
	if len(l.axes) == 0 {
		return 0
	}
	return l.axes[len(l.axes)-1]
}

// LastSize returns the size of the innermost axis.
func (l Layout) LastSize() int {
	if len(l.sizes) == 0 {
		return 0
	}
	return l.sizes[len(l.sizes)-1]
}

// WithLast returns a copy whose innermost axis is replaced by a of size n.
func (l Layout) WithLast(a Axis, n int) Layout {
	out := Layout{axes: l.Axes(), sizes: append([]int(nil), l.sizes...)}
	out.axes[len(out.axes)-1] = a
	out.sizes[len(out.sizes)-1] = n
	return out
}

// Shape returns the tensor shape implied by the layout.
func (l Layout) Shape() tensor.Shape {
	return tensor.Shape(append([]int(nil), l.sizes...))
}

// Matches reports whether shape agrees with the layout.
func (l Layout) Matches(shape tensor.Shape) bool {
	return l.Shape().Equal(shape)
}

// Equal reports whether two layouts have the same axes and sizes.
func (l Layout) Equal(other Layout) bool {
	if len(l.axes) != len(other.axes) {
		return false
	}
	for i := range l.axes {
		if l.axes[i] != other.axes[i] || l.sizes[i] != other.sizes[i] {
			return false
		}
	}
	return true
}

// Name returns the axis string, e.g. "SBMT".
func (l Layout) Name() string {
	var sb strings.Builder
	for _, a := range l.axes {
		sb.WriteByte(byte(a))
	}
	return sb.String()
}

// String returns e.g. "SBMT[2 5 4 400]".
func (l Layout) String() string {
	return fmt.Sprintf("%s%v", l.Name(), l.sizes)
}
