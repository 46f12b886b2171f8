package storage

import (
	"context"
	"strings"
)

// SystemNamespace is the reserved prefix for kernel-owned collections.
const SystemNamespace = "system"

// NamespacedStore decorates a Store so every collection argument is
// prefixed with "<namespace>::". A module holding this view cannot name
// a collection outside its namespace, which is the whole isolation
// mechanism: there is no deny list to bypass.
type NamespacedStore struct {
	inner     Store
	namespace string
}

// NewNamespacedStore wraps inner with the given namespace.
func NewNamespacedStore(inner Store, namespace string) *NamespacedStore {
	return &NamespacedStore{inner: inner, namespace: namespace}
}

func (s *NamespacedStore) qualify(collection string) string {
	return s.namespace + "::" + collection
}

func (s *NamespacedStore) Get(ctx context.Context, collection, key string) ([]byte, error) {
	return s.inner.Get(ctx, s.qualify(collection), key)
}

func (s *NamespacedStore) Set(ctx context.Context, collection, key string, value []byte) error {
	return s.inner.Set(ctx, s.qualify(collection), key, value)
}

func (s *NamespacedStore) Delete(ctx context.Context, collection, key string) (bool, error) {
	return s.inner.Delete(ctx, s.qualify(collection), key)
}

func (s *NamespacedStore) List(ctx context.Context, collection string, opts ListOptions) ([]Entry, error) {
	return s.inner.List(ctx, s.qualify(collection), opts)
}

func (s *NamespacedStore) Has(ctx context.Context, collection, key string) (bool, error) {
	return s.inner.Has(ctx, s.qualify(collection), key)
}

func (s *NamespacedStore) Count(ctx context.Context, collection string) (int, error) {
	return s.inner.Count(ctx, s.qualify(collection))
}

func (s *NamespacedStore) Clear(ctx context.Context, collection string) error {
	return s.inner.Clear(ctx, s.qualify(collection))
}

// Collections returns the namespace's own collections with the prefix
// stripped. Other namespaces' collections are invisible.
func (s *NamespacedStore) Collections(ctx context.Context) ([]string, error) {
	all, err := s.inner.Collections(ctx)
	if err != nil {
		return nil, err
	}
	prefix := s.namespace + "::"
	var names []string
	for _, name := range all {
		if rest, ok := strings.CutPrefix(name, prefix); ok {
			names = append(names, rest)
		}
	}
	return names, nil
}

// Close is a no-op: the underlying store is owned by the runtime, not
// by any single namespaced view.
func (s *NamespacedStore) Close() error {
	return nil
}
