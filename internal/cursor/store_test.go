package cursor

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoad_MissingFileReturnsZero(t *testing.T) {
	s, err := New(t.TempDir())
	require.NoError(t, err)

	block, err := s.Load(LabelHubWatcher)
	require.NoError(t, err)
	assert.Equal(t, uint64(0), block)
}

func TestSaveThenLoad_RoundTrips(t *testing.T) {
	s, err := New(t.TempDir())
	require.NoError(t, err)

	require.NoError(t, s.Save(LabelHubWatcher, 12345))

	block, err := s.Load(LabelHubWatcher)
	require.NoError(t, err)
	assert.Equal(t, uint64(12345), block)
}

func TestSave_OverwritesPreviousValue(t *testing.T) {
	s, err := New(t.TempDir())
	require.NoError(t, err)

	require.NoError(t, s.Save(LabelHubWatcher, 100))
	require.NoError(t, s.Save(LabelHubWatcher, 200))

	block, err := s.Load(LabelHubWatcher)
	require.NoError(t, err)
	assert.Equal(t, uint64(200), block)
}

func TestSave_DistinctLabelsAreIndependent(t *testing.T) {
	s, err := New(t.TempDir())
	require.NoError(t, err)

	require.NoError(t, s.Save(LabelHubWatcher, 1))
	require.NoError(t, s.Save(LabelHubSweeper, 2))

	hub, err := s.Load(LabelHubWatcher)
	require.NoError(t, err)
	sweeper, err := s.Load(LabelHubSweeper)
	require.NoError(t, err)

	assert.Equal(t, uint64(1), hub)
	assert.Equal(t, uint64(2), sweeper)
}

func TestSave_LeavesNoTempFilesBehind(t *testing.T) {
	dir := t.TempDir()
	s, err := New(dir)
	require.NoError(t, err)

	require.NoError(t, s.Save(LabelHubWatcher, 1))

	entries, err := os.ReadDir(dir)
	require.NoError(t, err)
	for _, e := range entries {
		assert.NotContains(t, e.Name(), ".tmp-cursor-")
	}
}

func TestLoad_CorruptFileReturnsError(t *testing.T) {
	dir := t.TempDir()
	s, err := New(dir)
	require.NoError(t, err)

	require.NoError(t, os.WriteFile(filepath.Join(dir, ".last-block-"+LabelHubWatcher), []byte("not-a-number"), 0o644))

	_, err = s.Load(LabelHubWatcher)
	assert.Error(t, err)
}

func TestNew_CreatesMissingBaseDir(t *testing.T) {
	dir := filepath.Join(t.TempDir(), "nested", "cursors")
	s, err := New(dir)
	require.NoError(t, err)

	require.NoError(t, s.Save(LabelConfigWatcher, 7))
	block, err := s.Load(LabelConfigWatcher)
	require.NoError(t, err)
	assert.Equal(t, uint64(7), block)
}
