package store

import (
	"context"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewBM25IndexWithBackend_SQLite(t *testing.T) {
	base := filepath.Join(t.TempDir(), "bm25")
	idx, err := NewBM25IndexWithBackend(base, DefaultBM25Config(), "sqlite")
	require.NoError(t, err)
	defer idx.Close()

	_, ok := idx.(*SQLiteBM25Index)
	assert.True(t, ok)
	require.NoError(t, idx.Index(context.Background(), sampleDocs))
	assert.Equal(t, BM25BackendSQLite, DetectBM25Backend(base))
}

func TestNewBM25IndexWithBackend_DefaultsToSQLite(t *testing.T) {
	idx, err := NewBM25IndexWithBackend("", DefaultBM25Config(), "")
	require.NoError(t, err)
	defer idx.Close()

	_, ok := idx.(*SQLiteBM25Index)
	assert.True(t, ok)
}

func TestNewBM25IndexWithBackend_Bleve(t *testing.T) {
	base := filepath.Join(t.TempDir(), "bm25")
	idx, err := NewBM25IndexWithBackend(base, DefaultBM25Config(), "bleve")
	require.NoError(t, err)
	defer idx.Close()

	_, ok := idx.(*BleveBM25Index)
	assert.True(t, ok)
	assert.Equal(t, BM25BackendBleve, DetectBM25Backend(base))
}

func TestNewBM25IndexWithBackend_UnknownBackend(t *testing.T) {
	_, err := NewBM25IndexWithBackend("", DefaultBM25Config(), "elastic")
	assert.Error(t, err)
}

func TestDetectBM25Backend_NoIndex(t *testing.T) {
	assert.Equal(t, BM25Backend(""), DetectBM25Backend(filepath.Join(t.TempDir(), "missing")))
}

func TestGetBM25IndexPath(t *testing.T) {
	assert.Equal(t, filepath.Join("data", "bm25.db"), GetBM25IndexPath("data", "sqlite"))
	assert.Equal(t, filepath.Join("data", "bm25.bleve"), GetBM25IndexPath("data", "bleve"))
}
