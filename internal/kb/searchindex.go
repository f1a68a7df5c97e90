package kb

import (
	"context"
	"log/slog"
	"os"
	"sort"
	"strings"
	"sync"

	"golang.org/x/sync/errgroup"

	"github.com/localkb/knowledgebase/internal/cache"
	"github.com/localkb/knowledgebase/internal/store"
)

// searchIndexes holds the standalone index handles used above the ANN
// threshold: a BM25 index (SQLite FTS5 or Bleve, per search.bm25_backend)
// over whole documents, and an HNSW graph over every stored document and
// chunk vector. Below the threshold the cache's exact scoring scan is both
// simpler and fast enough, so neither index exists.
type searchIndexes struct {
	mu   sync.Mutex
	bm25 store.BM25Index
	vec  *store.HNSWStore
}

func (s *Service) bm25IndexBase() string { return s.cachePath() + ".bm25" }
func (s *Service) hnswIndexPath() string { return s.cachePath() + ".hnsw" }

// rebuildSearchIndexes rebuilds or removes the standalone indexes after a
// reindex, depending on corpus size. Failures are logged, never fatal: the
// scan path remains a correct fallback.
func (s *Service) rebuildSearchIndexes(ctx context.Context, rows []cache.Row) {
	s.indexes.mu.Lock()
	defer s.indexes.mu.Unlock()
	s.closeIndexHandlesLocked()

	threshold := s.cfg.Search.ANNThreshold
	if threshold <= 0 || len(rows) < threshold {
		s.removeIndexFilesLocked()
		return
	}

	idx, err := store.NewBM25IndexWithBackend(s.bm25IndexBase(), store.DefaultBM25Config(), s.cfg.Search.BM25Backend)
	if err != nil {
		s.logger.Warn("failed to open BM25 index; search will scan the cache",
			slog.String("error", err.Error()))
	} else {
		docs := make([]*store.Document, 0, len(rows))
		for _, row := range rows {
			docs = append(docs, &store.Document{ID: row.ID, Content: row.Title + "\n\n" + row.Body})
		}
		if err := idx.Index(ctx, docs); err != nil {
			s.logger.Warn("failed to build BM25 index", slog.String("error", err.Error()))
		} else {
			_ = idx.Save(s.bm25IndexBase())
		}
		_ = idx.Close()
	}

	if s.embedder == nil {
		return
	}
	entries, err := s.db.ListAllVectors(s.embedder.ModelName())
	if err != nil || len(entries) == 0 {
		return
	}
	vs, err := store.NewHNSWStore(store.DefaultVectorStoreConfig(s.embedder.Dimensions()))
	if err != nil {
		s.logger.Warn("failed to create vector index", slog.String("error", err.Error()))
		return
	}
	ids := make([]string, len(entries))
	vectors := make([][]float32, len(entries))
	for i, e := range entries {
		ids[i] = e.Key
		vectors[i] = e.Vector
	}
	if err := vs.Add(ctx, ids, vectors); err != nil {
		s.logger.Warn("failed to populate vector index", slog.String("error", err.Error()))
		_ = vs.Close()
		return
	}
	if err := vs.Save(s.hnswIndexPath()); err != nil {
		s.logger.Warn("failed to persist vector index", slog.String("error", err.Error()))
	}
	_ = vs.Close()
}

func (s *Service) closeIndexHandlesLocked() {
	if s.indexes.bm25 != nil {
		_ = s.indexes.bm25.Close()
		s.indexes.bm25 = nil
	}
	if s.indexes.vec != nil {
		_ = s.indexes.vec.Close()
		s.indexes.vec = nil
	}
}

func (s *Service) removeIndexFilesLocked() {
	_ = os.Remove(s.bm25IndexBase() + ".db")
	_ = os.RemoveAll(s.bm25IndexBase() + ".bleve")
	_ = os.Remove(s.hnswIndexPath())
	_ = os.Remove(s.hnswIndexPath() + ".meta")
}

// openIndexHandlesLocked lazily opens whichever standalone indexes exist
// on disk. Returns false when neither does.
func (s *Service) openIndexHandlesLocked() bool {
	if s.indexes.bm25 == nil {
		if backend := store.DetectBM25Backend(s.bm25IndexBase()); backend != "" {
			idx, err := store.NewBM25IndexWithBackend(s.bm25IndexBase(), store.DefaultBM25Config(), string(backend))
			if err == nil {
				s.indexes.bm25 = idx
			}
		}
	}
	if s.indexes.vec == nil {
		if _, err := os.Stat(s.hnswIndexPath()); err == nil {
			dim, derr := store.ReadHNSWStoreDimensions(s.hnswIndexPath())
			if derr == nil && dim > 0 {
				vs, verr := store.NewHNSWStore(store.DefaultVectorStoreConfig(dim))
				if verr == nil && vs.Load(s.hnswIndexPath()) == nil {
					s.indexes.vec = vs
				}
			}
		}
	}
	return s.indexes.bm25 != nil || s.indexes.vec != nil
}

// searchAccelerated answers a query through the standalone indexes when
// they exist. ok is false when no index is available and the caller should
// fall back to the cache scan.
func (s *Service) searchAccelerated(ctx context.Context, query string, queryVector []float32, fetchLimit int, minScore float64, excludeID, folderPrefix string, semanticWeight, bm25Weight float64) (hits []cache.SearchHit, ok bool, err error) {
	s.indexes.mu.Lock()
	defer s.indexes.mu.Unlock()

	if !s.openIndexHandlesLocked() {
		return nil, false, nil
	}

	rows, err := s.db.ListDocuments()
	if err != nil {
		return nil, false, err
	}
	rowByID := make(map[string]cache.Row, len(rows))
	for _, row := range rows {
		rowByID[row.ID] = row
	}

	// Overfetch beyond fetchLimit: index hits outside the folder filter or
	// below min_score are discarded after scoring.
	k := fetchLimit * 4
	if k < 50 {
		k = 50
	}

	// The two index lookups are independent; fetch them in parallel. Each
	// goroutine fills its own map, so no locking is needed beyond Wait.
	bm25Scores := make(map[string]float64)
	semanticScores := make(map[string]float64)
	bm25Failed := false

	g, gctx := errgroup.WithContext(ctx)
	if s.indexes.bm25 != nil && query != "" {
		g.Go(func() error {
			results, serr := s.indexes.bm25.Search(gctx, query, k)
			if serr != nil {
				s.logger.Warn("BM25 index search failed; falling back to scan",
					slog.String("error", serr.Error()))
				bm25Failed = true
				return nil
			}
			maxScore := 0.0
			for _, r := range results {
				if r.Score > maxScore {
					maxScore = r.Score
				}
			}
			for _, r := range results {
				if maxScore > 0 {
					bm25Scores[r.DocID] = r.Score / maxScore
				}
			}
			return nil
		})
	}
	if s.indexes.vec != nil && len(queryVector) > 0 {
		g.Go(func() error {
			results, serr := s.indexes.vec.Search(gctx, queryVector, k)
			if serr != nil {
				s.logger.Warn("vector index search failed; scoring BM25 only",
					slog.String("error", serr.Error()))
				return nil
			}
			for _, r := range results {
				docID := r.ID
				if i := strings.IndexByte(docID, '#'); i >= 0 {
					docID = docID[:i]
				}
				if float64(r.Score) > semanticScores[docID] {
					semanticScores[docID] = float64(r.Score)
				}
			}
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, false, err
	}
	if bm25Failed {
		return nil, false, nil
	}

	candidates := make(map[string]bool, len(bm25Scores)+len(semanticScores))
	for id := range bm25Scores {
		candidates[id] = true
	}
	for id := range semanticScores {
		candidates[id] = true
	}

	const epsilon = 1e-9
	denom := semanticWeight + bm25Weight
	if denom < epsilon {
		denom = epsilon
	}

	for id := range candidates {
		row, known := rowByID[id]
		if !known || id == excludeID {
			continue
		}
		if !folderWithin(row.FolderPath, folderPrefix) {
			continue
		}

		semantic := semanticScores[id]
		bm25 := bm25Scores[id]
		final := (semanticWeight*semantic + bm25Weight*bm25) / denom
		if final < minScore {
			continue
		}
		hits = append(hits, cache.SearchHit{
			DocumentID: id, FolderPath: row.FolderPath, Title: row.Title,
			UpdatedAt: row.UpdatedAt, BM25Score: bm25, SemanticScore: semantic, FinalScore: final,
		})
	}

	sort.Slice(hits, func(i, j int) bool {
		if hits[i].FinalScore != hits[j].FinalScore {
			return hits[i].FinalScore > hits[j].FinalScore
		}
		if !hits[i].UpdatedAt.Equal(hits[j].UpdatedAt) {
			return hits[i].UpdatedAt.After(hits[j].UpdatedAt)
		}
		return hits[i].DocumentID < hits[j].DocumentID
	})

	if len(hits) > fetchLimit {
		hits = hits[:fetchLimit]
	}
	return hits, true, nil
}
