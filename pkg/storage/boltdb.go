package storage

import (
	"context"
	"fmt"
	"sort"

	bolt "go.etcd.io/bbolt"

	oerrors "github.com/ArcaneAIAutomation/opspilot/pkg/errors"
)

// BoltStore implements Store on a single-file BoltDB database with one
// bucket per collection. Buckets are created lazily on first write.
type BoltStore struct {
	db *bolt.DB
}

// NewBoltStore opens (or creates) the database at path.
func NewBoltStore(path string) (*BoltStore, error) {
	db, err := bolt.Open(path, 0o600, nil)
	if err != nil {
		return nil, oerrors.Storage(err, "failed to open database %s", path)
	}
	return &BoltStore{db: db}, nil
}

func (s *BoltStore) Get(ctx context.Context, collection, key string) ([]byte, error) {
	var out []byte
	err := s.db.View(func(tx *bolt.Tx) error {
		b := tx.Bucket([]byte(collection))
		if b == nil {
			return fmt.Errorf("%s/%s: %w", collection, key, ErrNotFound)
		}
		data := b.Get([]byte(key))
		if data == nil {
			return fmt.Errorf("%s/%s: %w", collection, key, ErrNotFound)
		}
		// Bolt data is only valid during the transaction.
		out = make([]byte, len(data))
		copy(out, data)
		return nil
	})
	return out, err
}

func (s *BoltStore) Set(ctx context.Context, collection, key string, value []byte) error {
	err := s.db.Update(func(tx *bolt.Tx) error {
		b, err := tx.CreateBucketIfNotExists([]byte(collection))
		if err != nil {
			return err
		}
		return b.Put([]byte(key), value)
	})
	if err != nil {
		return oerrors.Storage(err, "failed to write %s/%s", collection, key)
	}
	return nil
}

func (s *BoltStore) Delete(ctx context.Context, collection, key string) (bool, error) {
	existed := false
	err := s.db.Update(func(tx *bolt.Tx) error {
		b := tx.Bucket([]byte(collection))
		if b == nil {
			return nil
		}
		if b.Get([]byte(key)) == nil {
			return nil
		}
		existed = true
		return b.Delete([]byte(key))
	})
	if err != nil {
		return false, oerrors.Storage(err, "failed to delete %s/%s", collection, key)
	}
	return existed, nil
}

func (s *BoltStore) List(ctx context.Context, collection string, opts ListOptions) ([]Entry, error) {
	var entries []Entry
	err := s.db.View(func(tx *bolt.Tx) error {
		b := tx.Bucket([]byte(collection))
		if b == nil {
			return nil
		}
		c := b.Cursor()
		advance := func(k, v []byte) ([]byte, []byte) { return c.Next() }
		k, v := c.First()
		if opts.Descending {
			advance = func(k, v []byte) ([]byte, []byte) { return c.Prev() }
			k, v = c.Last()
		}
		skipped, taken := 0, 0
		for ; k != nil; k, v = advance(k, v) {
			if skipped < opts.Offset {
				skipped++
				continue
			}
			if opts.Limit > 0 && taken >= opts.Limit {
				break
			}
			value := make([]byte, len(v))
			copy(value, v)
			entries = append(entries, Entry{Key: string(k), Value: value})
			taken++
		}
		return nil
	})
	if err != nil {
		return nil, oerrors.Storage(err, "failed to list collection %s", collection)
	}
	return entries, nil
}

func (s *BoltStore) Has(ctx context.Context, collection, key string) (bool, error) {
	exists := false
	err := s.db.View(func(tx *bolt.Tx) error {
		b := tx.Bucket([]byte(collection))
		if b == nil {
			return nil
		}
		exists = b.Get([]byte(key)) != nil
		return nil
	})
	if err != nil {
		return false, oerrors.Storage(err, "failed to check %s/%s", collection, key)
	}
	return exists, nil
}

func (s *BoltStore) Count(ctx context.Context, collection string) (int, error) {
	n := 0
	err := s.db.View(func(tx *bolt.Tx) error {
		b := tx.Bucket([]byte(collection))
		if b == nil {
			return nil
		}
		n = b.Stats().KeyN
		return nil
	})
	if err != nil {
		return 0, oerrors.Storage(err, "failed to count collection %s", collection)
	}
	return n, nil
}

func (s *BoltStore) Clear(ctx context.Context, collection string) error {
	err := s.db.Update(func(tx *bolt.Tx) error {
		if tx.Bucket([]byte(collection)) == nil {
			return nil
		}
		return tx.DeleteBucket([]byte(collection))
	})
	if err != nil {
		return oerrors.Storage(err, "failed to clear collection %s", collection)
	}
	return nil
}

func (s *BoltStore) Collections(ctx context.Context) ([]string, error) {
	var names []string
	err := s.db.View(func(tx *bolt.Tx) error {
		return tx.ForEach(func(name []byte, b *bolt.Bucket) error {
			if b.Stats().KeyN > 0 {
				names = append(names, string(name))
			}
			return nil
		})
	})
	if err != nil {
		return nil, oerrors.Storage(err, "failed to list collections")
	}
	sort.Strings(names)
	return names, nil
}

func (s *BoltStore) Close() error {
	return s.db.Close()
}
