package storage

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"sort"
	"sync"
)

// MemoryObject is an object held by MemoryStore.
type MemoryObject struct {
	Data        []byte
	ContentType string
}

// MemoryStore is an in-process ObjectStore for tests and local runs.
type MemoryStore struct {
	mu      sync.Mutex
	baseURL string
	objects map[string]MemoryObject
}

// NewMemoryStore returns an empty store whose URLs are rooted at baseURL.
func NewMemoryStore(baseURL string) *MemoryStore {
	if baseURL == "" {
		baseURL = "memory://objects"
	}
	return &MemoryStore{baseURL: baseURL, objects: make(map[string]MemoryObject)}
}

func (m *MemoryStore) Put(_ context.Context, key string, r io.Reader, _ int64, contentType string) error {
	var buf bytes.Buffer
	if _, err := io.Copy(&buf, r); err != nil {
		return fmt.Errorf("read object: %w", err)
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	m.objects[key] = MemoryObject{Data: buf.Bytes(), ContentType: contentType}
	return nil
}

func (m *MemoryStore) URL(_ context.Context, key string) (string, error) {
	return PublicURL(m.baseURL, key), nil
}

func (m *MemoryStore) Delete(_ context.Context, key string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.objects, key)
	return nil
}

// Get returns a stored object.
func (m *MemoryStore) Get(key string) (MemoryObject, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	obj, ok := m.objects[key]
	return obj, ok
}

// Keys lists stored object keys in sorted order.
func (m *MemoryStore) Keys() []string {
	m.mu.Lock()
	defer m.mu.Unlock()
	keys := make([]string, 0, len(m.objects))
	for key := range m.objects {
		keys = append(keys, key)
	}
	sort.Strings(keys)
	return keys
}
