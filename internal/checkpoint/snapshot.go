package checkpoint

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/vmihailenco/msgpack/v5"

	"github.com/born-ml/sinenet/internal/tensor"
)

// keyPrefix namespaces snapshots inside a store.
const keyPrefix = "nnets/"

// TensorData is the serialized form of a tensor.
type TensorData struct {
	Shape []int     `msgpack:"shape"`
	Data  []float64 `msgpack:"data"`
}

// Snapshot is the saved state of a model and its optimizer.
type Snapshot struct {
	RunID        string                `msgpack:"run_id"`
	Name         string                `msgpack:"name"`
	Step         int                   `msgpack:"step"` // parameter updates so far
	LearningRate float64               `msgpack:"lr"`
	Params       map[string]TensorData `msgpack:"params"`
	Optimizer    map[string]TensorData `msgpack:"optimizer,omitempty"`
	CreatedAt    time.Time             `msgpack:"created_at"`
}

// EncodeTensors copies tensors into their serialized form.
func EncodeTensors(ts map[string]*tensor.Tensor) map[string]TensorData {
	out := make(map[string]TensorData, len(ts))
	for name, t := range ts {
		out[name] = TensorData{
			Shape: append([]int(nil), t.Shape()...),
			Data:  append([]float64(nil), t.Data()...),
		}
	}
	return out
}

// DecodeTensors rebuilds tensors, rejecting data that does not fill its
// shape.
func DecodeTensors(data map[string]TensorData) (map[string]*tensor.Tensor, error) {
	out := make(map[string]*tensor.Tensor, len(data))
	for name, d := range data {
		t, err := tensor.FromSlice(d.Data, tensor.Shape(d.Shape))
		if err != nil {
			return nil, fmt.Errorf("tensor %s: %w", name, err)
		}
		out[name] = t
	}
	return out, nil
}

// Manager saves and loads snapshots for one training run.
type Manager struct {
	store Store
	runID uuid.UUID
	now   func() time.Time
}

// NewManager creates a manager writing snapshots tagged with a fresh run ID.
func NewManager(store Store) *Manager {
	return &Manager{store: store, runID: uuid.New(), now: time.Now}
}

// RunID returns the identifier stamped on every snapshot this manager saves.
func (m *Manager) RunID() uuid.UUID {
	return m.runID
}

// Save encodes and stores snap under its name, stamping the run ID and
// creation time.
func (m *Manager) Save(ctx context.Context, snap *Snapshot) error {
	if snap.Name == "" {
		return fmt.Errorf("checkpoint: snapshot has no name")
	}
	snap.RunID = m.runID.String()
	snap.CreatedAt = m.now().UTC()
	data, err := msgpack.Marshal(snap)
	if err != nil {
		return fmt.Errorf("encode snapshot %s: %w", snap.Name, err)
	}
	if err := m.store.Put(ctx, keyPrefix+snap.Name, seal(data)); err != nil {
		return fmt.Errorf("store snapshot %s: %w", snap.Name, err)
	}
	return nil
}

// Load returns the snapshot saved under name. The error wraps ErrNotFound
// when there is none and ErrChecksumMismatch when the stored bytes are
// damaged.
func (m *Manager) Load(ctx context.Context, name string) (*Snapshot, error) {
	sealed, err := m.store.Get(ctx, keyPrefix+name)
	if err != nil {
		return nil, fmt.Errorf("load snapshot %s: %w", name, err)
	}
	data, err := unseal(sealed)
	if err != nil {
		return nil, fmt.Errorf("load snapshot %s: %w", name, err)
	}
	var snap Snapshot
	if err := msgpack.Unmarshal(data, &snap); err != nil {
		return nil, fmt.Errorf("decode snapshot %s: %w", name, err)
	}
	return &snap, nil
}

// Delete removes the snapshot saved under name.
func (m *Manager) Delete(ctx context.Context, name string) error {
	return m.store.Delete(ctx, keyPrefix+name)
}

// List returns the names of all saved snapshots in lexicographic order.
func (m *Manager) List(ctx context.Context) ([]string, error) {
	var names []string
	for key, err := range m.store.List(ctx, keyPrefix) {
		if err != nil {
			return nil, err
		}
		names = append(names, strings.TrimPrefix(key, keyPrefix))
	}
	return names, nil
}
