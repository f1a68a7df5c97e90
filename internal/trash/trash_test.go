package trash

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/localkb/knowledgebase/internal/errors"
)

func putTrashed(t *testing.T, root, relPath string) {
	full := filepath.Join(root, ".trash", relPath)
	require.NoError(t, os.MkdirAll(filepath.Dir(full), 0o755))
	require.NoError(t, os.WriteFile(full, []byte("# Note\n\nbody"), 0o644))
}

func TestList_TrashPathMatchesPreDeleteLocation(t *testing.T) {
	root := t.TempDir()
	putTrashed(t, root, "projects/alpha/Note.md")

	m := New(root)
	items, err := m.List()
	require.NoError(t, err)
	require.Len(t, items, 1)
	assert.Equal(t, "projects/alpha/Note.md", items[0].TrashPath)
	assert.Equal(t, "projects/alpha", items[0].OriginalFolder)
}

func TestRestore_OriginalLocation_ConflictFails(t *testing.T) {
	root := t.TempDir()
	putTrashed(t, root, "projects/alpha/Note.md")
	require.NoError(t, os.MkdirAll(filepath.Join(root, "projects", "alpha"), 0o755))
	require.NoError(t, os.WriteFile(filepath.Join(root, "projects", "alpha", "Note.md"), []byte("existing"), 0o644))

	m := New(root)
	_, err := m.Restore("projects/alpha/Note.md", OriginalLocation)
	require.Error(t, err)
	assert.Equal(t, errors.ErrCodeAlreadyExists, errors.GetCode(err))
}

func TestRestore_WithSuffix_StartsAtOne(t *testing.T) {
	root := t.TempDir()
	putTrashed(t, root, "projects/alpha/Note.md")
	require.NoError(t, os.MkdirAll(filepath.Join(root, "projects", "alpha"), 0o755))
	require.NoError(t, os.WriteFile(filepath.Join(root, "projects", "alpha", "Note.md"), []byte("existing"), 0o644))

	m := New(root)
	dest, err := m.Restore("projects/alpha/Note.md", WithSuffix)
	require.NoError(t, err)
	assert.Equal(t, "Note (1).md", filepath.Base(dest))
}

func TestPurge_RemovesFileAndPrunesAncestors(t *testing.T) {
	root := t.TempDir()
	putTrashed(t, root, "projects/alpha/Note.md")

	m := New(root)
	require.NoError(t, m.Purge("projects/alpha/Note.md"))

	_, err := os.Stat(filepath.Join(root, ".trash", "projects", "alpha"))
	assert.True(t, os.IsNotExist(err))
}

func TestAutoCleanup_RemovesExpiredItems(t *testing.T) {
	root := t.TempDir()
	putTrashed(t, root, "old/Item.md")
	old := time.Now().Add(-31 * 24 * time.Hour)
	require.NoError(t, os.Chtimes(filepath.Join(root, ".trash", "old", "Item.md"), old, old))

	m := New(root)
	removed, err := m.AutoCleanup()
	require.NoError(t, err)
	assert.Equal(t, 1, removed)
}

func TestAutoCleanup_KeepsRecentItems(t *testing.T) {
	root := t.TempDir()
	putTrashed(t, root, "recent/Item.md")

	m := New(root)
	removed, err := m.AutoCleanup()
	require.NoError(t, err)
	assert.Equal(t, 0, removed)
}
