package storage

import (
	"context"
	"encoding/json"
	"fmt"
	"hash/fnv"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"

	oerrors "github.com/ArcaneAIAutomation/opspilot/pkg/errors"
)

// FileStore persists one directory per collection and one file per key.
// Every file holds a self-describing {key, value} envelope so the real
// key survives name sanitization. Writes go to a temporary sibling and
// are renamed into place, so readers never observe a partial write.
type FileStore struct {
	baseDir string
	mu      sync.RWMutex
}

// metaFile stores the raw collection name inside each collection
// directory, since sanitized directory names are not reversible.
const metaFile = ".collection"

// fileEntry is the on-disk envelope for a single value.
type fileEntry struct {
	Key   string          `json:"key"`
	Value json.RawMessage `json:"value"`
}

// NewFileStore creates a store rooted at baseDir, creating it if needed.
func NewFileStore(baseDir string) (*FileStore, error) {
	if err := os.MkdirAll(baseDir, 0o755); err != nil {
		return nil, oerrors.Storage(err, "failed to create storage directory %s", baseDir)
	}
	return &FileStore{baseDir: baseDir}, nil
}

// sanitize maps an arbitrary name onto a portable character set. When
// any character is replaced, a short hash of the original is appended
// so distinct names cannot collide after sanitization.
func sanitize(name string) string {
	var b strings.Builder
	changed := false
	for _, r := range name {
		switch {
		case r >= 'a' && r <= 'z', r >= 'A' && r <= 'Z', r >= '0' && r <= '9', r == '.', r == '_', r == '-':
			b.WriteRune(r)
		default:
			b.WriteByte('_')
			changed = true
		}
	}
	if !changed && b.Len() > 0 {
		return b.String()
	}
	h := fnv.New32a()
	h.Write([]byte(name))
	return fmt.Sprintf("%s-%08x", b.String(), h.Sum32())
}

func (s *FileStore) collectionDir(collection string) string {
	return filepath.Join(s.baseDir, sanitize(collection))
}

func (s *FileStore) keyPath(collection, key string) string {
	return filepath.Join(s.collectionDir(collection), sanitize(key)+".json")
}

func (s *FileStore) readEntry(path string) (*fileEntry, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	var entry fileEntry
	if err := json.Unmarshal(data, &entry); err != nil {
		return nil, err
	}
	return &entry, nil
}

func (s *FileStore) Get(ctx context.Context, collection, key string) ([]byte, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	entry, err := s.readEntry(s.keyPath(collection, key))
	if err != nil {
		if os.IsNotExist(err) {
			return nil, fmt.Errorf("%s/%s: %w", collection, key, ErrNotFound)
		}
		return nil, oerrors.Storage(err, "failed to read %s/%s", collection, key)
	}
	if entry.Key != key {
		return nil, fmt.Errorf("%s/%s: %w", collection, key, ErrNotFound)
	}
	return entry.Value, nil
}

func (s *FileStore) Set(ctx context.Context, collection, key string, value []byte) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	dir := s.collectionDir(collection)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return oerrors.Storage(err, "failed to create collection directory %s", collection)
	}
	// The sanitized directory name is lossy, so the raw collection name
	// is kept in a meta file for Collections to read back.
	meta := filepath.Join(dir, metaFile)
	if _, err := os.Stat(meta); os.IsNotExist(err) {
		if err := os.WriteFile(meta, []byte(collection), 0o644); err != nil {
			return oerrors.Storage(err, "failed to record collection name %s", collection)
		}
	}

	data, err := json.Marshal(fileEntry{Key: key, Value: json.RawMessage(value)})
	if err != nil {
		return oerrors.Storage(err, "failed to encode %s/%s", collection, key)
	}

	tmp, err := os.CreateTemp(dir, ".tmp-*")
	if err != nil {
		return oerrors.Storage(err, "failed to create temp file for %s/%s", collection, key)
	}
	tmpName := tmp.Name()
	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		os.Remove(tmpName)
		return oerrors.Storage(err, "failed to write %s/%s", collection, key)
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmpName)
		return oerrors.Storage(err, "failed to close temp file for %s/%s", collection, key)
	}
	if err := os.Rename(tmpName, s.keyPath(collection, key)); err != nil {
		os.Remove(tmpName)
		return oerrors.Storage(err, "failed to commit %s/%s", collection, key)
	}
	return nil
}

func (s *FileStore) Delete(ctx context.Context, collection, key string) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	err := os.Remove(s.keyPath(collection, key))
	if err != nil {
		if os.IsNotExist(err) {
			return false, nil
		}
		return false, oerrors.Storage(err, "failed to delete %s/%s", collection, key)
	}
	return true, nil
}

func (s *FileStore) List(ctx context.Context, collection string, opts ListOptions) ([]Entry, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	entries, err := s.listAll(collection)
	if err != nil {
		return nil, err
	}
	return paginate(entries, opts), nil
}

// listAll reads every parseable entry of a collection, sorted by key.
// Corrupt or in-flight temporary files are skipped.
func (s *FileStore) listAll(collection string) ([]Entry, error) {
	dir := s.collectionDir(collection)
	files, err := os.ReadDir(dir)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, oerrors.Storage(err, "failed to list collection %s", collection)
	}

	var entries []Entry
	for _, f := range files {
		if f.IsDir() || !strings.HasSuffix(f.Name(), ".json") {
			continue
		}
		entry, err := s.readEntry(filepath.Join(dir, f.Name()))
		if err != nil || entry.Key == "" {
			continue
		}
		entries = append(entries, Entry{Key: entry.Key, Value: entry.Value})
	}
	sort.Slice(entries, func(i, j int) bool { return entries[i].Key < entries[j].Key })
	return entries, nil
}

func (s *FileStore) Has(ctx context.Context, collection, key string) (bool, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	_, err := os.Stat(s.keyPath(collection, key))
	if err != nil {
		if os.IsNotExist(err) {
			return false, nil
		}
		return false, oerrors.Storage(err, "failed to stat %s/%s", collection, key)
	}
	return true, nil
}

func (s *FileStore) Count(ctx context.Context, collection string) (int, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	entries, err := s.listAll(collection)
	if err != nil {
		return 0, err
	}
	return len(entries), nil
}

func (s *FileStore) Clear(ctx context.Context, collection string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if err := os.RemoveAll(s.collectionDir(collection)); err != nil {
		return oerrors.Storage(err, "failed to clear collection %s", collection)
	}
	return nil
}

func (s *FileStore) Collections(ctx context.Context) ([]string, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	dirs, err := os.ReadDir(s.baseDir)
	if err != nil {
		return nil, oerrors.Storage(err, "failed to list collections")
	}

	var names []string
	for _, d := range dirs {
		if !d.IsDir() {
			continue
		}
		files, err := os.ReadDir(filepath.Join(s.baseDir, d.Name()))
		if err != nil {
			continue
		}
		empty := true
		for _, f := range files {
			if !f.IsDir() && strings.HasSuffix(f.Name(), ".json") {
				empty = false
				break
			}
		}
		if empty {
			continue
		}
		name := d.Name()
		if raw, err := os.ReadFile(filepath.Join(s.baseDir, d.Name(), metaFile)); err == nil && len(raw) > 0 {
			name = string(raw)
		}
		names = append(names, name)
	}
	sort.Strings(names)
	return names, nil
}

func (s *FileStore) Close() error {
	return nil
}
