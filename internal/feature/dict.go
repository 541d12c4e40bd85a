// Package feature defines the typed feature dictionary threaded through the
// layer stack, and the Layout shape descriptor attached to every entry.
//
// A Dict maps a closed set of keys (waveform, windowed waveform, pitch,
// normalized log pitch, tau, voicing, hidden activation, speaker label) to a
// tensor plus its Layout. Layers read the keys they need, remove or
// overwrite what they consume, and write their output under Hidden.
package feature

import (
	"errors"
	"fmt"
	"sort"

	"github.com/born-ml/sinenet/internal/tensor"
)

// ErrMissingKey is returned when a required feature is absent.
var ErrMissingKey = errors.New("feature: missing key")

// Key identifies an entry of a Dict.
type Key int

// Dictionary keys. The layout noted for each is the one produced by the data
// loader and the reshape layers.
const (
	Wav        Key = iota // S×T raw waveform
	WavWindows            // S×B×M×T windowed waveform
	F0                    // S×B×M pitch in Hz
	NormLogF0             // S×B×M normalized log pitch
	Tau                   // S×B×M phase offset in seconds
	VUV                   // S×B×M voiced/unvoiced flag
	Hidden                // any layout, output of the last layer
	Speaker               // S speaker class index
)

var keyNames = [...]string{
	Wav:        "wav",
	WavWindows: "wav_windows",
	F0:         "f0",
	NormLogF0:  "nlf",
	Tau:        "tau",
	VUV:        "vuv",
	Hidden:     "h",
	Speaker:    "speaker",
}

// String returns the key name.
func (k Key) String() string {
	if k >= 0 && int(k) < len(keyNames) {
		return keyNames[k]
	}
	return fmt.Sprintf("Key(%d)", int(k))
}

// Feature is a tensor together with its static layout.
type Feature struct {
	Tensor *tensor.Tensor
	Layout Layout
}

// Dict is the feature dictionary for one batch. The zero value is not
// usable; create one with NewDict.
type Dict struct {
	entries map[Key]Feature
}

// NewDict creates an empty dictionary.
func NewDict() *Dict {
	return &Dict{entries: make(map[Key]Feature)}
}

// Set stores t under key, checking that its shape matches layout.
func (d *Dict) Set(key Key, t *tensor.Tensor, layout Layout) error {
	if !layout.Matches(t.Shape()) {
		return fmt.Errorf("feature %s: tensor shape %v does not match layout %s", key, t.Shape(), layout)
	}
	d.entries[key] = Feature{Tensor: t, Layout: layout}
	return nil
}

// Get returns the feature stored under key.
func (d *Dict) Get(key Key) (Feature, bool) {
	f, ok := d.entries[key]
	return f, ok
}

// Require returns the feature under key or an error wrapping ErrMissingKey.
func (d *Dict) Require(key Key) (Feature, error) {
	f, ok := d.entries[key]
	if !ok {
		return Feature{}, fmt.Errorf("%w %s", ErrMissingKey, key)
	}
	return f, nil
}

// Tensor returns the tensor under key or an error wrapping ErrMissingKey.
func (d *Dict) Tensor(key Key) (*tensor.Tensor, error) {
	f, err := d.Require(key)
	if err != nil {
		return nil, err
	}
	return f.Tensor, nil
}

// Hidden returns the hidden activation.
func (d *Dict) Hidden() (Feature, error) {
	return d.Require(Hidden)
}

// Has reports whether key is present.
func (d *Dict) Has(key Key) bool {
	_, ok := d.entries[key]
	return ok
}

// Delete removes key.
func (d *Dict) Delete(key Key) {
	delete(d.entries, key)
}

// Len returns the number of entries.
func (d *Dict) Len() int {
	return len(d.entries)
}

// Keys returns the present keys in ascending order.
func (d *Dict) Keys() []Key {
	keys := make([]Key, 0, len(d.entries))
	for k := range d.entries {
		keys = append(keys, k)
	}
	sort.Slice(keys, func(i, j int) bool { return keys[i] < keys[j] })
	return keys
}

// CopyExcept returns a new dictionary with every entry except the given
// keys. Tensors are shared, not copied.
func (d *Dict) CopyExcept(except ...Key) *Dict {
	out := NewDict()
	for k, f := range d.entries {
		out.entries[k] = f
	}
	for _, k := range except {
		delete(out.entries, k)
	}
	return out
}

// Labels returns the speaker labels as class indices.
func (d *Dict) Labels() ([]int, error) {
	t, err := d.Tensor(Speaker)
	if err != nil {
		return nil, err
	}
	data := t.Data()
	labels := make([]int, len(data))
	for i, v := range data {
		labels[i] = int(v)
	}
	return labels, nil
}

// SetLabels stores speaker class indices under Speaker.
func (d *Dict) SetLabels(labels []int) {
	data := make([]float64, len(labels))
	for i, l := range labels {
		data[i] = float64(l)
	}
	d.entries[Speaker] = Feature{
		Tensor: tensor.New(data, tensor.Shape{len(labels)}),
		Layout: Layout{axes: []Axis{S}, sizes: []int{len(labels)}},
	}
}
