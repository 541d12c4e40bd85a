// Package checkpoint persists model and optimizer snapshots.
//
// Snapshots are msgpack-encoded and kept in a Store keyed by name. Two
// stores are provided: Memory for tests and single-process runs, and Badger
// for checkpoints that survive the process.
package checkpoint

import (
	"context"
	"errors"
	"iter"
	"sort"
	"strings"
	"sync"
)

// ErrNotFound is returned when a key does not exist in the store.
var ErrNotFound = errors.New("checkpoint: not found")

// Store is a flat key-value store.
type Store interface {
	// Get retrieves the value for a key. Returns ErrNotFound if not present.
	Get(ctx context.Context, key string) ([]byte, error)

	// Put stores a value, overwriting any existing one.
	Put(ctx context.Context, key string, value []byte) error

	// Delete removes a key. No error if the key does not exist.
	Delete(ctx context.Context, key string) error

	// List iterates over keys starting with prefix in lexicographic order.
	List(ctx context.Context, prefix string) iter.Seq2[string, error]

	// Close releases any resources held by the store.
	Close() error
}

// Memory is an in-memory Store. It is safe for concurrent use.
type Memory struct {
	mu   sync.RWMutex
	data map[string][]byte
}

// NewMemory creates an empty in-memory store.
func NewMemory() *Memory {
	return &Memory{data: make(map[string][]byte)}
}

func (m *Memory) Get(_ context.Context, key string) ([]byte, error) {
	m.mu.RLock()
	v, ok := m.data[key]
	m.mu.RUnlock()
	if !ok {
		return nil, ErrNotFound
	}
	// Return a copy to prevent mutation.
	cp := make([]byte, len(v))
	copy(cp, v)
	return cp, nil
}

func (m *Memory) Put(_ context.Context, key string, value []byte) error {
	cp := make([]byte, len(value))
	copy(cp, value)
	m.mu.Lock()
	m.data[key] = cp
	m.mu.Unlock()
	return nil
}

func (m *Memory) Delete(_ context.Context, key string) error {
	m.mu.Lock()
	delete(m.data, key)
	m.mu.Unlock()
	return nil
}

func (m *Memory) List(_ context.Context, prefix string) iter.Seq2[string, error] {
	// Snapshot matching keys under read lock.
	m.mu.RLock()
	var keys []string
	for k := range m.data {
		if strings.HasPrefix(k, prefix) {
			keys = append(keys, k)
		}
	}
	m.mu.RUnlock()
	sort.Strings(keys)

	return func(yield func(string, error) bool) {
		for _, k := range keys {
			if !yield(k, nil) {
				return
			}
		}
	}
}

func (m *Memory) Close() error {
	return nil
}

// Open returns the store at location: "memory" (or "") for a Memory store,
// otherwise a Badger store in that directory.
func Open(location string) (Store, error) {
	if location == "" || location == "memory" {
		return NewMemory(), nil
	}
	return NewBadger(BadgerOptions{Dir: location})
}
