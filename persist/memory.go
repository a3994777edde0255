package persist

import (
	"context"
	"fmt"
	"sync"
)

// MemoryStore is an in-process Store, used by tests and by a registry
// run with no durable backing configured.
type MemoryStore struct {
	mu        sync.Mutex
	nextID    int64
	idByPath  map[string]int64
	rows      map[int64]*row
}

type row struct {
	blob        []byte
	lastUsed    int64
	mandatory   bool
}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		idByPath: map[string]int64{},
		rows:     map[int64]*row{},
	}
}

func (m *MemoryStore) GetDBID(ctx context.Context, path string, create bool) (int64, bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if id, ok := m.idByPath[path]; ok {
		return id, true, nil
	}
	if !create {
		return 0, false, nil
	}
	m.nextID++
	id := m.nextID
	m.idByPath[path] = id
	return id, true, nil
}

func (m *MemoryStore) GetDBValue(ctx context.Context, id int64) ([]byte, bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	r, ok := m.rows[id]
	if !ok {
		return nil, false, nil
	}
	return append([]byte(nil), r.blob...), true, nil
}

func (m *MemoryStore) InsertDBValue(ctx context.Context, id int64, blob []byte) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, exists := m.rows[id]; exists {
		return fmt.Errorf("persist: row %d already exists", id)
	}
	m.rows[id] = &row{blob: append([]byte(nil), blob...)}
	return nil
}

func (m *MemoryStore) UpdateDBValue(ctx context.Context, id int64, blob []byte) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	r, ok := m.rows[id]
	if !ok {
		return fmt.Errorf("persist: row %d not found", id)
	}
	r.blob = append([]byte(nil), blob...)
	return nil
}

func (m *MemoryStore) UpdateDBUsed(ctx context.Context, id int64, epochSeconds int64) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	r, ok := m.rows[id]
	if !ok {
		return fmt.Errorf("persist: row %d not found", id)
	}
	r.lastUsed = epochSeconds
	return nil
}

func (m *MemoryStore) UpdateDBMandatory(ctx context.Context, id int64, mandatory bool) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	r, ok := m.rows[id]
	if !ok {
		return fmt.Errorf("persist: row %d not found", id)
	}
	r.mandatory = mandatory
	return nil
}
