package patchstats

import (
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestStoreRoundTrip(t *testing.T) {
	path := filepath.Join(t.TempDir(), "patch_stats.db")
	store, err := Open(path)
	require.NoError(t, err)
	defer store.Close()

	require.NoError(t, store.AddPatch("aaaa", "bbbb", "zstd", 1234))

	size, ok, err := store.Query("aaaa", "bbbb", "zstd")
	require.NoError(t, err)
	assert.True(t, ok)
	assert.Equal(t, int64(1234), size)

	_, ok, err = store.Query("aaaa", "bbbb", "bsdiff")
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestStoreReopen(t *testing.T) {
	path := filepath.Join(t.TempDir(), "patch_stats.db")
	store, err := Open(path)
	require.NoError(t, err)
	require.NoError(t, store.AddPatch("from", "to", "bsdiff", 50))
	require.NoError(t, store.Close())

	// Reopening an existing database keeps its rows and schema.
	store, err = Open(path)
	require.NoError(t, err)
	defer store.Close()

	size, ok, err := store.Query("from", "to", "bsdiff")
	require.NoError(t, err)
	assert.True(t, ok)
	assert.Equal(t, int64(50), size)
}
