package tabular

import (
	"context"
	"sync"
)

// MemoryStore keeps tables in process memory. Used for tests and for
// STORE_BACKEND=memory.
type MemoryStore struct {
	mu     sync.RWMutex
	tables map[string][]Row
}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{tables: make(map[string][]Row)}
}

func (m *MemoryStore) Read(_ context.Context, t Table) ([]Row, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	rows, ok := m.tables[t.Name]
	if !ok {
		m.tables[t.Name] = nil
	}
	return cloneRows(rows), nil
}

func (m *MemoryStore) AppendRow(_ context.Context, t Table, row Row) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.tables[t.Name] = append(m.tables[t.Name], project(t, row))
	return nil
}

func (m *MemoryStore) Overwrite(_ context.Context, t Table, rows []Row) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]Row, 0, len(rows))
	for _, r := range rows {
		out = append(out, project(t, r))
	}
	m.tables[t.Name] = out
	return nil
}

func (m *MemoryStore) Ping(context.Context) error { return nil }
