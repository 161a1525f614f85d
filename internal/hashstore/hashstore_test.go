package hashstore

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestStore_SaveAndLoadRoundTrip(t *testing.T) {
	t.Parallel()

	path := filepath.Join(t.TempDir(), "hashes.json")
	s := New(path, nil)

	require.NoError(t, s.Save("one.zip", "aaa"))
	require.NoError(t, s.Save("two.zip", "bbb"))

	got := s.Load()
	assert.Equal(t, map[string]string{"one.zip": "aaa", "two.zip": "bbb"}, got)

	digest, ok := s.Get("one.zip")
	require.True(t, ok)
	assert.Equal(t, "aaa", digest)
}

func TestStore_SaveOverwritesExistingEntry(t *testing.T) {
	t.Parallel()

	path := filepath.Join(t.TempDir(), "hashes.json")
	s := New(path, nil)

	require.NoError(t, s.Save("one.zip", "aaa"))
	require.NoError(t, s.Save("one.zip", "ccc"))

	digest, ok := s.Get("one.zip")
	require.True(t, ok)
	assert.Equal(t, "ccc", digest)
}

func TestStore_CorruptFileIsQuarantinedNotLost(t *testing.T) {
	t.Parallel()

	dir := t.TempDir()
	path := filepath.Join(dir, "hashes.json")
	require.NoError(t, os.WriteFile(path, []byte("{not json"), 0o600))

	s := New(path, nil)
	require.NoError(t, s.Save("fresh.zip", "ddd"))

	got := s.Load()
	assert.Equal(t, map[string]string{"fresh.zip": "ddd"}, got)

	entries, err := os.ReadDir(dir)
	require.NoError(t, err)
	var quarantined int
	for _, e := range entries {
		if e.Name() != "hashes.json" {
			quarantined++
			assert.Contains(t, e.Name(), "corrupt")
		}
	}
	assert.Equal(t, 1, quarantined, "corrupt file should be moved aside, not deleted")
}

func TestStore_MissingFileLoadsEmpty(t *testing.T) {
	t.Parallel()

	s := New(filepath.Join(t.TempDir(), "none.json"), nil)
	assert.Empty(t, s.Load())
}
