package storage

import (
	"context"
	"encoding/json"
	"errors"

	oerrors "github.com/ArcaneAIAutomation/opspilot/pkg/errors"
)

// ErrNotFound is returned by Get when the key does not exist in the
// collection. Callers test it with errors.Is.
var ErrNotFound = errors.New("key not found")

// Entry is one key/value pair returned by List.
type Entry struct {
	Key   string
	Value []byte
}

// ListOptions control pagination and ordering of List results.
// Ordering is always by key; Descending reverses it. Limit of 0 means
// no limit.
type ListOptions struct {
	Limit      int
	Offset     int
	Descending bool
}

// Store is the contract every backend satisfies. Values are opaque
// self-describing blobs (JSON in practice); keys are unique within a
// collection. Operations may block on I/O and honor ctx cancellation
// where the backend supports it.
type Store interface {
	// Get returns the value stored under (collection, key), or an error
	// wrapping ErrNotFound.
	Get(ctx context.Context, collection, key string) ([]byte, error)

	// Set upserts the value under (collection, key).
	Set(ctx context.Context, collection, key string, value []byte) error

	// Delete removes the key and reports whether it existed. A missing
	// key is not an error.
	Delete(ctx context.Context, collection, key string) (bool, error)

	// List returns entries of the collection ordered by key. A missing
	// collection yields an empty result.
	List(ctx context.Context, collection string, opts ListOptions) ([]Entry, error)

	// Has reports whether the key exists.
	Has(ctx context.Context, collection, key string) (bool, error)

	// Count returns the number of keys in the collection.
	Count(ctx context.Context, collection string) (int, error)

	// Clear removes every key in the collection.
	Clear(ctx context.Context, collection string) error

	// Collections returns every non-empty collection name, sorted.
	Collections(ctx context.Context) ([]string, error)

	// Close releases backend resources.
	Close() error
}

// GetJSON reads (collection, key) and unmarshals the blob into out.
func GetJSON(ctx context.Context, s Store, collection, key string, out any) error {
	data, err := s.Get(ctx, collection, key)
	if err != nil {
		return err
	}
	if err := json.Unmarshal(data, out); err != nil {
		return oerrors.Storage(err, "failed to decode value %s/%s", collection, key)
	}
	return nil
}

// SetJSON marshals v and stores it under (collection, key).
func SetJSON(ctx context.Context, s Store, collection, key string, v any) error {
	data, err := json.Marshal(v)
	if err != nil {
		return oerrors.Storage(err, "failed to encode value %s/%s", collection, key)
	}
	return s.Set(ctx, collection, key, data)
}

// paginate applies ListOptions ordering bounds to a key-sorted slice.
func paginate(entries []Entry, opts ListOptions) []Entry {
	if opts.Descending {
		for i, j := 0, len(entries)-1; i < j; i, j = i+1, j-1 {
			entries[i], entries[j] = entries[j], entries[i]
		}
	}
	if opts.Offset > 0 {
		if opts.Offset >= len(entries) {
			return nil
		}
		entries = entries[opts.Offset:]
	}
	if opts.Limit > 0 && opts.Limit < len(entries) {
		entries = entries[:opts.Limit]
	}
	return entries
}
