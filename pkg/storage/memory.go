package storage

import (
	"context"
	"fmt"
	"sort"
	"sync"
)

// MemoryStore keeps everything in process memory. It is the default
// backend for tests and development; operations complete synchronously.
type MemoryStore struct {
	mu          sync.RWMutex
	collections map[string]map[string][]byte
}

// NewMemoryStore creates an empty in-memory store.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		collections: make(map[string]map[string][]byte),
	}
}

func (s *MemoryStore) Get(ctx context.Context, collection, key string) ([]byte, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	c, ok := s.collections[collection]
	if !ok {
		return nil, fmt.Errorf("%s/%s: %w", collection, key, ErrNotFound)
	}
	value, ok := c[key]
	if !ok {
		return nil, fmt.Errorf("%s/%s: %w", collection, key, ErrNotFound)
	}
	out := make([]byte, len(value))
	copy(out, value)
	return out, nil
}

func (s *MemoryStore) Set(ctx context.Context, collection, key string, value []byte) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	c, ok := s.collections[collection]
	if !ok {
		c = make(map[string][]byte)
		s.collections[collection] = c
	}
	stored := make([]byte, len(value))
	copy(stored, value)
	c[key] = stored
	return nil
}

func (s *MemoryStore) Delete(ctx context.Context, collection, key string) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	c, ok := s.collections[collection]
	if !ok {
		return false, nil
	}
	if _, ok := c[key]; !ok {
		return false, nil
	}
	delete(c, key)
	return true, nil
}

func (s *MemoryStore) List(ctx context.Context, collection string, opts ListOptions) ([]Entry, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	c, ok := s.collections[collection]
	if !ok {
		return nil, nil
	}
	entries := make([]Entry, 0, len(c))
	for key, value := range c {
		out := make([]byte, len(value))
		copy(out, value)
		entries = append(entries, Entry{Key: key, Value: out})
	}
	sort.Slice(entries, func(i, j int) bool { return entries[i].Key < entries[j].Key })
	return paginate(entries, opts), nil
}

func (s *MemoryStore) Has(ctx context.Context, collection, key string) (bool, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	c, ok := s.collections[collection]
	if !ok {
		return false, nil
	}
	_, ok = c[key]
	return ok, nil
}

func (s *MemoryStore) Count(ctx context.Context, collection string) (int, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	return len(s.collections[collection]), nil
}

func (s *MemoryStore) Clear(ctx context.Context, collection string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	delete(s.collections, collection)
	return nil
}

func (s *MemoryStore) Collections(ctx context.Context) ([]string, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	names := make([]string, 0, len(s.collections))
	for name, c := range s.collections {
		if len(c) > 0 {
			names = append(names, name)
		}
	}
	sort.Strings(names)
	return names, nil
}

func (s *MemoryStore) Close() error {
	return nil
}
