package objectstore

import (
	"context"
	"fmt"
	"sync"
)

// Memory keeps objects in process memory. Used when no NATS server is configured.
type Memory struct {
	mu      sync.RWMutex
	objects map[string][]byte
}

func NewMemory() *Memory {
	return &Memory{objects: make(map[string][]byte)}
}

func (m *Memory) Upload(_ context.Context, path string, data []byte, _ string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.objects[path]; ok {
		return fmt.Errorf("object %s already exists", path)
	}
	m.objects[path] = append([]byte(nil), data...)
	return nil
}

func (m *Memory) Remove(_ context.Context, paths ...string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, p := range paths {
		if _, ok := m.objects[p]; !ok {
			return fmt.Errorf("%w: %s", ErrObjectNotFound, p)
		}
		delete(m.objects, p)
	}
	return nil
}

// Has reports whether an object exists at path.
func (m *Memory) Has(path string) bool {
	m.mu.RLock()
	defer m.mu.RUnlock()
	_, ok := m.objects[path]
	return ok
}
