package storage

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestFileStoreSkipsCorruptFiles(t *testing.T) {
	ctx := context.Background()
	dir := t.TempDir()
	store, err := NewFileStore(dir)
	require.NoError(t, err)

	require.NoError(t, store.Set(ctx, "logs", "good", []byte(`"ok"`)))

	// Drop a file that is not a valid envelope into the collection dir.
	collDir := store.collectionDir("logs")
	require.NoError(t, os.WriteFile(filepath.Join(collDir, "broken.json"), []byte("{not json"), 0o644))

	entries, err := store.List(ctx, "logs", ListOptions{})
	require.NoError(t, err)
	require.Len(t, entries, 1)
	assert.Equal(t, "good", entries[0].Key)

	n, err := store.Count(ctx, "logs")
	require.NoError(t, err)
	assert.Equal(t, 1, n)
}

func TestFileStoreSanitizesHostileNames(t *testing.T) {
	ctx := context.Background()
	store, err := NewFileStore(t.TempDir())
	require.NoError(t, err)

	// Names that would escape the directory or collide after cleanup.
	require.NoError(t, store.Set(ctx, "../escape", "a/b", []byte(`1`)))
	require.NoError(t, store.Set(ctx, "..%escape", "a%b", []byte(`2`)))

	got, err := store.Get(ctx, "../escape", "a/b")
	require.NoError(t, err)
	assert.Equal(t, []byte(`1`), got)

	got, err = store.Get(ctx, "..%escape", "a%b")
	require.NoError(t, err)
	assert.Equal(t, []byte(`2`), got)

	// Everything stayed under the base directory.
	entries, err := os.ReadDir(filepath.Dir(store.baseDir))
	require.NoError(t, err)
	assert.Len(t, entries, 1)
}

func TestFileStoreLeavesNoTempFiles(t *testing.T) {
	ctx := context.Background()
	store, err := NewFileStore(t.TempDir())
	require.NoError(t, err)

	for i := 0; i < 10; i++ {
		require.NoError(t, store.Set(ctx, "c", "k", []byte(`"v"`)))
	}

	files, err := os.ReadDir(store.collectionDir("c"))
	require.NoError(t, err)
	var names []string
	for _, f := range files {
		names = append(names, f.Name())
	}
	assert.ElementsMatch(t, []string{metaFile, "k.json"}, names)
}

func TestFileStoreCollectionsSurviveSanitization(t *testing.T) {
	ctx := context.Background()
	store, err := NewFileStore(t.TempDir())
	require.NoError(t, err)

	require.NoError(t, store.Set(ctx, "system::audit", "a", []byte(`1`)))
	require.NoError(t, store.Set(ctx, "plain", "b", []byte(`1`)))

	names, err := store.Collections(ctx)
	require.NoError(t, err)
	assert.Equal(t, []string{"plain", "system::audit"}, names)
}
