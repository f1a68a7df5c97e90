package store

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// newIndexFuncs lets each BM25 behavior test run against both backends.
var newIndexFuncs = map[string]func(t *testing.T) BM25Index{
	"sqlite": func(t *testing.T) BM25Index {
		idx, err := NewSQLiteBM25Index("", DefaultBM25Config())
		require.NoError(t, err)
		t.Cleanup(func() { _ = idx.Close() })
		return idx
	},
	"bleve": func(t *testing.T) BM25Index {
		idx, err := NewBleveBM25Index("", DefaultBM25Config())
		require.NoError(t, err)
		t.Cleanup(func() { _ = idx.Close() })
		return idx
	},
}

var sampleDocs = []*Document{
	{ID: "note-1", Content: "Search Brief\n\nHybrid search blends lexical scoring with semantic matching."},
	{ID: "note-2", Content: "Morning Pages\n\nUnrelated musings about coffee and weather."},
	{ID: "note-3", Content: "Search Roadmap\n\nQuarterly planning for the search ranking work."},
}

func TestBM25Index_SearchRanksMatches(t *testing.T) {
	for name, newIndex := range newIndexFuncs {
		t.Run(name, func(t *testing.T) {
			idx := newIndex(t)
			ctx := context.Background()
			require.NoError(t, idx.Index(ctx, sampleDocs))

			results, err := idx.Search(ctx, "hybrid search", 10)
			require.NoError(t, err)
			require.NotEmpty(t, results)
			assert.Equal(t, "note-1", results[0].DocID,
				"the document matching both terms should rank first")
			for _, r := range results {
				assert.NotEqual(t, "note-2", r.DocID, "coffee musings do not match")
			}
		})
	}
}

func TestBM25Index_EmptyQueryReturnsNoResults(t *testing.T) {
	for name, newIndex := range newIndexFuncs {
		t.Run(name, func(t *testing.T) {
			idx := newIndex(t)
			ctx := context.Background()
			require.NoError(t, idx.Index(ctx, sampleDocs))

			results, err := idx.Search(ctx, "   ", 10)
			require.NoError(t, err)
			assert.Empty(t, results)
		})
	}
}

func TestBM25Index_ReindexReplacesDocument(t *testing.T) {
	for name, newIndex := range newIndexFuncs {
		t.Run(name, func(t *testing.T) {
			idx := newIndex(t)
			ctx := context.Background()
			require.NoError(t, idx.Index(ctx, sampleDocs))

			updated := []*Document{{ID: "note-2", Content: "Now this note also mentions hybrid search."}}
			require.NoError(t, idx.Index(ctx, updated))

			results, err := idx.Search(ctx, "hybrid", 10)
			require.NoError(t, err)
			ids := make(map[string]bool)
			for _, r := range results {
				ids[r.DocID] = true
			}
			assert.True(t, ids["note-2"], "the updated content should now match")

			results, err = idx.Search(ctx, "coffee", 10)
			require.NoError(t, err)
			assert.Empty(t, results, "the old content should be gone after reindex")
		})
	}
}

func TestBM25Index_Delete(t *testing.T) {
	for name, newIndex := range newIndexFuncs {
		t.Run(name, func(t *testing.T) {
			idx := newIndex(t)
			ctx := context.Background()
			require.NoError(t, idx.Index(ctx, sampleDocs))
			require.NoError(t, idx.Delete(ctx, []string{"note-1", "note-3"}))

			results, err := idx.Search(ctx, "search", 10)
			require.NoError(t, err)
			for _, r := range results {
				assert.NotContains(t, []string{"note-1", "note-3"}, r.DocID)
			}
		})
	}
}

func TestBM25Index_StatsAndAllIDs(t *testing.T) {
	for name, newIndex := range newIndexFuncs {
		t.Run(name, func(t *testing.T) {
			idx := newIndex(t)
			require.NoError(t, idx.Index(context.Background(), sampleDocs))

			assert.Equal(t, 3, idx.Stats().DocumentCount)

			ids, err := idx.AllIDs()
			require.NoError(t, err)
			assert.ElementsMatch(t, []string{"note-1", "note-2", "note-3"}, ids)
		})
	}
}

func TestBM25Index_CloseIsIdempotent(t *testing.T) {
	for name, newIndex := range newIndexFuncs {
		t.Run(name, func(t *testing.T) {
			idx := newIndex(t)
			require.NoError(t, idx.Close())
			require.NoError(t, idx.Close())

			_, err := idx.Search(context.Background(), "anything", 1)
			assert.Error(t, err, "a closed index must refuse queries")
		})
	}
}

func TestSQLiteBM25Index_PersistsAcrossReopen(t *testing.T) {
	path := filepath.Join(t.TempDir(), "bm25.db")

	idx, err := NewSQLiteBM25Index(path, DefaultBM25Config())
	require.NoError(t, err)
	require.NoError(t, idx.Index(context.Background(), sampleDocs))
	require.NoError(t, idx.Close())

	reopened, err := NewSQLiteBM25Index(path, DefaultBM25Config())
	require.NoError(t, err)
	defer reopened.Close()

	results, err := reopened.Search(context.Background(), "hybrid", 10)
	require.NoError(t, err)
	require.NotEmpty(t, results)
	assert.Equal(t, "note-1", results[0].DocID)
}

func TestSQLiteBM25Index_CorruptFileIsClearedAndRecreated(t *testing.T) {
	path := filepath.Join(t.TempDir(), "bm25.db")
	require.NoError(t, os.WriteFile(path, []byte("this is not a sqlite database"), 0o644))

	idx, err := NewSQLiteBM25Index(path, DefaultBM25Config())
	require.NoError(t, err, "a corrupted index is cleared, not a fatal error")
	defer idx.Close()

	require.NoError(t, idx.Index(context.Background(), sampleDocs))
	assert.Equal(t, 3, idx.Stats().DocumentCount)
}
