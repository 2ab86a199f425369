package storage

import (
	"sort"
	"strings"
	"sync"

	"github.com/mesosphere/svc-scheduler/pkg/types"
)

// MemStore is an in-memory PersistentStore used in unit tests, so
// evaluator/plan/scheduler logic can be exercised without standing up
// BoltDB — the same role the teacher's lighter-weight unit tests play
// against pure helpers instead of a real manager/store pair.
type MemStore struct {
	mu   sync.RWMutex
	data map[string][]byte
}

// NewMemStore creates an empty in-memory PersistentStore.
func NewMemStore() *MemStore {
	return &MemStore{data: make(map[string][]byte)}
}

func (m *MemStore) Get(path string) ([]byte, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	v, ok := m.data[normalize(path)]
	if !ok {
		return nil, types.ErrNotFound
	}
	out := make([]byte, len(v))
	copy(out, v)
	return out, nil
}

func (m *MemStore) Set(path string, data []byte) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	cp := make([]byte, len(data))
	copy(cp, data)
	m.data[normalize(path)] = cp
	return nil
}

func (m *MemStore) Delete(path string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.data, normalize(path))
	return nil
}

func (m *MemStore) RecursiveDelete(path string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	path = normalize(path)
	prefix := path + "/"
	for k := range m.data {
		if k == path || strings.HasPrefix(k, prefix) {
			delete(m.data, k)
		}
	}
	return nil
}

func (m *MemStore) List(path string) ([]string, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	path = normalize(path)
	prefix := path + "/"
	seen := make(map[string]bool)
	for k := range m.data {
		if !strings.HasPrefix(k, prefix) {
			continue
		}
		rest := strings.TrimPrefix(k, prefix)
		child := rest
		if idx := strings.Index(rest, "/"); idx >= 0 {
			child = rest[:idx]
		}
		seen[child] = true
	}
	children := make([]string, 0, len(seen))
	for c := range seen {
		children = append(children, c)
	}
	sort.Strings(children)
	return children, nil
}

func (m *MemStore) Close() error { return nil }
