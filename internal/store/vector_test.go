package store

import (
	"context"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestVectorStore(t *testing.T) *HNSWStore {
	t.Helper()
	vs, err := NewHNSWStore(DefaultVectorStoreConfig(4))
	require.NoError(t, err)
	t.Cleanup(func() { _ = vs.Close() })
	return vs
}

func TestHNSWStore_AddAndSearch(t *testing.T) {
	vs := newTestVectorStore(t)
	ctx := context.Background()

	ids := []string{"doc-a", "doc-b", "doc-b#0"}
	vectors := [][]float32{
		{1, 0, 0, 0},
		{0, 1, 0, 0},
		{0, 0.9, 0.1, 0},
	}
	require.NoError(t, vs.Add(ctx, ids, vectors))
	assert.Equal(t, 3, vs.Count())

	results, err := vs.Search(ctx, []float32{0, 1, 0, 0}, 2)
	require.NoError(t, err)
	require.NotEmpty(t, results)
	assert.Equal(t, "doc-b", results[0].ID, "the exact match should rank first")
}

func TestHNSWStore_DimensionMismatch(t *testing.T) {
	vs := newTestVectorStore(t)
	err := vs.Add(context.Background(), []string{"bad"}, [][]float32{{1, 2}})
	assert.Error(t, err)
}

func TestHNSWStore_Delete(t *testing.T) {
	vs := newTestVectorStore(t)
	ctx := context.Background()

	require.NoError(t, vs.Add(ctx, []string{"keep", "drop"}, [][]float32{
		{1, 0, 0, 0},
		{0, 1, 0, 0},
	}))
	require.NoError(t, vs.Delete(ctx, []string{"drop"}))

	assert.False(t, vs.Contains("drop"))
	assert.True(t, vs.Contains("keep"))

	results, err := vs.Search(ctx, []float32{0, 1, 0, 0}, 5)
	require.NoError(t, err)
	for _, r := range results {
		assert.NotEqual(t, "drop", r.ID)
	}
}

func TestHNSWStore_SaveAndLoad(t *testing.T) {
	path := filepath.Join(t.TempDir(), "vectors.hnsw")

	vs := newTestVectorStore(t)
	ctx := context.Background()
	require.NoError(t, vs.Add(ctx, []string{"persisted"}, [][]float32{{0.5, 0.5, 0, 0}}))
	require.NoError(t, vs.Save(path))

	dims, err := ReadHNSWStoreDimensions(path)
	require.NoError(t, err)
	assert.Equal(t, 4, dims)

	loaded, err := NewHNSWStore(DefaultVectorStoreConfig(4))
	require.NoError(t, err)
	defer loaded.Close()
	require.NoError(t, loaded.Load(path))

	assert.True(t, loaded.Contains("persisted"))
	results, err := loaded.Search(ctx, []float32{0.5, 0.5, 0, 0}, 1)
	require.NoError(t, err)
	require.NotEmpty(t, results)
	assert.Equal(t, "persisted", results[0].ID)
}

func TestReadHNSWStoreDimensions_MissingIsFreshStart(t *testing.T) {
	dims, err := ReadHNSWStoreDimensions(filepath.Join(t.TempDir(), "nope.hnsw"))
	require.NoError(t, err)
	assert.Zero(t, dims)
}
