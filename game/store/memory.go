package store

import (
	"context"
	"sync"
)

// MemoryStore implements Store with in-process maps.
type MemoryStore struct {
	mu      sync.RWMutex
	strings map[string]string
	hashes  map[string]map[string]string
	closed  bool
}

// NewMemoryStore creates an empty in-memory store
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		strings: make(map[string]string),
		hashes:  make(map[string]map[string]string),
	}
}

func (m *MemoryStore) Get(ctx context.Context, key string) (string, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	if m.closed {
		return "", ErrClosed
	}

	value, ok := m.strings[key]
	if !ok {
		return "", ErrNotFound
	}
	return value, nil
}

func (m *MemoryStore) Set(ctx context.Context, key, value string) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.closed {
		return ErrClosed
	}

	m.strings[key] = value
	return nil
}

// Delete removes key whether it holds a string or a hash.
func (m *MemoryStore) Delete(ctx context.Context, key string) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.closed {
		return ErrClosed
	}

	delete(m.strings, key)
	delete(m.hashes, key)
	return nil
}

func (m *MemoryStore) HSet(ctx context.Context, key, field, value string) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.closed {
		return ErrClosed
	}

	hash, ok := m.hashes[key]
	if !ok {
		hash = make(map[string]string)
		m.hashes[key] = hash
	}
	hash[field] = value
	return nil
}

func (m *MemoryStore) HDel(ctx context.Context, key, field string) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.closed {
		return false, ErrClosed
	}

	hash, ok := m.hashes[key]
	if !ok {
		return false, nil
	}
	if _, exists := hash[field]; !exists {
		return false, nil
	}

	delete(hash, field)

	// Redis drops empty hashes; mirror that
	if len(hash) == 0 {
		delete(m.hashes, key)
	}
	return true, nil
}

func (m *MemoryStore) HGetAll(ctx context.Context, key string) (map[string]string, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	if m.closed {
		return nil, ErrClosed
	}

	result := make(map[string]string, len(m.hashes[key]))
	for field, value := range m.hashes[key] {
		result[field] = value
	}
	return result, nil
}

func (m *MemoryStore) HKeys(ctx context.Context, key string) ([]string, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	if m.closed {
		return nil, ErrClosed
	}

	result := make([]string, 0, len(m.hashes[key]))
	for field := range m.hashes[key] {
		result = append(result, field)
	}
	return result, nil
}

func (m *MemoryStore) Ping(ctx context.Context) error {
	m.mu.RLock()
	defer m.mu.RUnlock()

	if m.closed {
		return ErrClosed
	}
	return nil
}

// Close marks the store closed; every later call fails with ErrClosed.
func (m *MemoryStore) Close() error {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.closed = true
	return nil
}
