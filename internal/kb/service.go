package kb

import (
	"context"
	"log/slog"
	"path/filepath"
	"sync"

	"golang.org/x/sync/errgroup"

	"github.com/localkb/knowledgebase/internal/cache"
	"github.com/localkb/knowledgebase/internal/config"
	"github.com/localkb/knowledgebase/internal/docstore"
	"github.com/localkb/knowledgebase/internal/embed"
	"github.com/localkb/knowledgebase/internal/errors"
	"github.com/localkb/knowledgebase/internal/lock"
	"github.com/localkb/knowledgebase/internal/lru"
	"github.com/localkb/knowledgebase/internal/textproc"
)

// Service orchestrates the knowledge base rooted at a documents folder:
// reindex, hybrid search, status, and per-document mutations that keep the
// sidecar cache in step with the markdown tree.
type Service struct {
	cfg    *config.Config
	root   string
	docs   *docstore.Store
	db     *cache.Cache
	logger *slog.Logger

	embedOnce   sync.Once
	embedder    embed.Embedder
	embedderErr error
	newEmbedder func(ctx context.Context) (embed.Embedder, error)

	listCache   *lru.Cache[[]cache.Row]
	statusCache *lru.Cache[*cache.Status]

	indexes searchIndexes
}

// Option configures a Service.
type Option func(*Service)

// WithEmbedder injects a pre-built embedder, bypassing lazy construction.
func WithEmbedder(e embed.Embedder) Option {
	return func(s *Service) {
		s.newEmbedder = func(context.Context) (embed.Embedder, error) { return e, nil }
	}
}

// WithLogger sets the service logger.
func WithLogger(l *slog.Logger) Option {
	return func(s *Service) { s.logger = l }
}

// NewService opens the sidecar cache under root and returns a ready
// Service. One Service holds one cache connection.
func NewService(root string, cfg *config.Config, opts ...Option) (*Service, error) {
	cachePath := cfg.Documents.CachePath
	if !filepath.IsAbs(cachePath) {
		cachePath = filepath.Join(root, cachePath)
	}

	db, err := cache.Open(cachePath)
	if err != nil {
		return nil, err
	}

	listCache, err := lru.New[[]cache.Row](cfg.Performance.LRUSize)
	if err != nil {
		db.Close()
		return nil, errors.New(errors.ErrCodeInternal, "failed to create list cache", err)
	}
	statusCache, err := lru.New[*cache.Status](cfg.Performance.LRUSize)
	if err != nil {
		db.Close()
		return nil, errors.New(errors.ErrCodeInternal, "failed to create status cache", err)
	}

	s := &Service{
		cfg:         cfg,
		root:        root,
		docs:        docstore.New(root),
		db:          db,
		logger:      slog.Default(),
		listCache:   listCache,
		statusCache: statusCache,
	}
	s.newEmbedder = func(ctx context.Context) (embed.Embedder, error) {
		return embed.NewEmbedder(ctx, embed.ProviderONNX, nil)
	}
	for _, opt := range opts {
		opt(s)
	}
	return s, nil
}

// Close releases the cache connection, any open index handles, and, when
// one was built, the embedder.
func (s *Service) Close() error {
	s.indexes.mu.Lock()
	s.closeIndexHandlesLocked()
	s.indexes.mu.Unlock()
	if s.embedder != nil {
		_ = s.embedder.Close()
	}
	return s.db.Close()
}

// Docs exposes the underlying document store for callers that only need
// filesystem operations (folder moves, trash).
func (s *Service) Docs() *docstore.Store {
	return s.docs
}

// Preload constructs the embedding engine eagerly so interactive callers
// can warm it from a background worker at startup. onProgress may be nil.
func (s *Service) Preload(ctx context.Context, onProgress embed.LoadProgressFunc) error {
	s.embedOnce.Do(func() {
		if onProgress != nil {
			s.embedder, s.embedderErr = embed.NewEmbedder(ctx, embed.ProviderONNX, onProgress)
			return
		}
		s.embedder, s.embedderErr = s.newEmbedder(ctx)
	})
	return s.embedderErr
}

// getEmbedder lazily constructs this Service's embedder, at most once.
func (s *Service) getEmbedder(ctx context.Context) (embed.Embedder, error) {
	s.embedOnce.Do(func() {
		s.embedder, s.embedderErr = s.newEmbedder(ctx)
	})
	return s.embedder, s.embedderErr
}

func (s *Service) cachePath() string {
	return s.db.Path
}

// invalidateReads purges the read-through LRUs after any cache mutation.
func (s *Service) invalidateReads() {
	s.listCache.Purge()
	s.statusCache.Purge()
}

// ReindexResult summarizes a reindex run.
type ReindexResult struct {
	DocumentsIndexed int    `json:"documents_indexed"`
	EmbeddingsSynced int    `json:"embeddings_synced"`
	EmbeddingsFailed int    `json:"embeddings_failed"`
	FolderFilter     string `json:"folder_filter,omitempty"`
}

// Reindex rebuilds the sidecar cache from the markdown tree, then syncs
// embeddings. A non-empty folderFilter scopes the rebuild to one subtree;
// cache rows outside the subtree are preserved. Progress is reported on
// bus (which may be nil).
func (s *Service) Reindex(ctx context.Context, folderFilter string, bus *Bus) (*ReindexResult, error) {
	filter := ""
	if folderFilter != "" {
		normalized, err := docstore.NormalizeFolderPath(folderFilter)
		if err != nil {
			return nil, err
		}
		filter = normalized
	}

	paths, err := s.docs.MarkdownPaths(filter)
	if err != nil {
		return nil, err
	}

	bus.Emit(Phase1Start{Total: len(paths)})

	// Phase 1: data-parallel open-read-parse over the file list. Results
	// land in per-path slots; frontmatter heals are serialized afterwards
	// on the coordinating goroutine.
	type readResult struct {
		doc       *docstore.Document
		needsHeal bool
	}
	results := make([]readResult, len(paths))

	workers := s.cfg.Performance.IndexWorkers
	if workers <= 0 {
		workers = 1
	}
	var progressMu sync.Mutex
	loaded := 0

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(workers)
	for i, p := range paths {
		g.Go(func() error {
			if err := gctx.Err(); err != nil {
				return err
			}
			doc, needsHeal, rerr := s.docs.ReadPath(p)
			if rerr != nil {
				// Transient per-file errors skip the document, not the run.
				s.logger.Warn("skipping unreadable document",
					slog.String("path", p), slog.String("error", rerr.Error()))
				return nil
			}
			results[i] = readResult{doc: doc, needsHeal: needsHeal}

			progressMu.Lock()
			loaded++
			bus.Emit(Phase1Progress{Current: loaded, Total: len(paths)})
			progressMu.Unlock()
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}

	// Coordinator-side pass: heal malformed frontmatter and resolve
	// colliding frontmatter ids with fresh ones.
	seenIDs := make(map[string]bool, len(results))
	var fresh []cache.Row
	for _, r := range results {
		if r.doc == nil {
			continue
		}
		doc := r.doc
		heal := r.needsHeal
		if seenIDs[doc.ID] {
			doc.ID = s.docs.GenerateID()
			heal = true
		}
		seenIDs[doc.ID] = true
		if heal {
			if herr := s.docs.Heal(doc); herr != nil {
				s.logger.Warn("failed to heal document frontmatter",
					slog.String("path", doc.Path), slog.String("error", herr.Error()))
			}
		}
		fresh = append(fresh, rowFromDocument(doc))
	}

	bus.Emit(Phase1Complete{DocumentsLoaded: len(fresh)})

	// A scoped reindex merges the freshly-read subtree with the cache rows
	// outside it so out-of-scope rows are never dropped.
	merged := fresh
	if filter != "" {
		existing, lerr := s.db.ListDocuments()
		if lerr != nil {
			return nil, lerr
		}
		var kept []cache.Row
		for _, row := range existing {
			if !folderWithin(row.FolderPath, filter) {
				kept = append(kept, row)
			}
		}
		merged = append(kept, fresh...)
	}

	if err := lock.WithLock(s.cachePath(), func() error {
		return s.db.ReplaceDocuments(merged)
	}); err != nil {
		return nil, err
	}
	s.invalidateReads()

	synced, failed, serr := s.syncEmbeddings(ctx, merged, bus)
	if serr != nil {
		return nil, serr
	}

	s.rebuildSearchIndexes(ctx, merged)

	return &ReindexResult{
		DocumentsIndexed: len(fresh),
		EmbeddingsSynced: synced,
		EmbeddingsFailed: failed,
		FolderFilter:     filter,
	}, nil
}

// syncEmbeddings plans and executes the embedding sync for the given rows.
func (s *Service) syncEmbeddings(ctx context.Context, rows []cache.Row, bus *Bus) (synced, failed int, err error) {
	embedder, eerr := s.getEmbedder(ctx)
	if eerr != nil {
		return 0, 0, errors.New(errors.ErrCodeEmbeddingModelLoad, "embedding engine unavailable", eerr)
	}
	model := embedder.ModelName()

	meta, merr := s.db.ListDocumentEmbeddingMetadata(model)
	if merr != nil {
		return 0, 0, merr
	}
	docHashes := make(map[string]string, len(meta))
	for _, m := range meta {
		docHashes[m.DocumentID] = m.ContentHash
	}
	chunkHashes, cerr := s.db.ListChunkEmbeddingHashesByModel(model)
	if cerr != nil {
		return 0, 0, cerr
	}

	dirty, perr := planSync(ctx, rows, docHashes, chunkHashes, model, bus)
	if perr != nil {
		return 0, 0, perr
	}

	unchanged := len(rows) - len(dirty)

	var execSynced, execFailed int
	lerr := lock.WithLock(s.cachePath(), func() error {
		var xerr error
		execSynced, execFailed, xerr = executeSync(ctx, s.db, embedder, dirty, s.cfg.Embeddings.SyncBatchSize, bus, s.logger)
		return xerr
	})
	if lerr != nil {
		return 0, 0, lerr
	}
	if len(dirty) > 0 {
		s.invalidateReads()
	}

	synced = unchanged + execSynced
	failed = execFailed
	bus.Emit(Phase2Complete{Synced: synced, Failed: failed})
	return synced, failed, nil
}

// SearchOptions configures Search. Zero values select the documented
// defaults (limit 20, min score 0, both weights 1).
type SearchOptions struct {
	Limit             int
	MinScore          float64
	FolderFilter      string
	SemanticQuery     string
	ExcludeDocumentID string
	SemanticWeight    *float64
	BM25Weight        *float64
}

func weightOr(w *float64, def float64) float64 {
	if w == nil {
		return def
	}
	return *w
}

// Search answers a query with hybrid BM25 + semantic scoring over the
// cache. Embedding failure degrades gracefully to BM25-only scoring.
func (s *Service) Search(ctx context.Context, query string, opts SearchOptions) ([]cache.SearchHit, error) {
	query = textproc.FormatQuery(query)

	limit := opts.Limit
	if limit <= 0 {
		limit = 20
	}
	semanticWeight := weightOr(opts.SemanticWeight, 1.0)
	bm25Weight := weightOr(opts.BM25Weight, 1.0)

	filter := ""
	if opts.FolderFilter != "" {
		normalized, err := docstore.NormalizeFolderPath(opts.FolderFilter)
		if err != nil {
			return nil, err
		}
		filter = normalized
	}

	// With a folder filter the candidate fetch widens so post-filter
	// truncation still retains enough hits.
	fetchLimit := limit
	if filter != "" {
		fetchLimit = max(limit, limit*5)
	}

	var queryVector []float32
	semanticQuery := opts.SemanticQuery
	if semanticQuery == "" {
		semanticQuery = query
	}
	if semanticWeight > 0 && semanticQuery != "" {
		embedder, err := s.getEmbedder(ctx)
		if err == nil {
			queryVector, err = embedder.Embed(ctx, semanticQuery)
		}
		if err != nil {
			s.logger.Warn("query embedding failed; degrading to BM25-only",
				slog.String("error", err.Error()))
			queryVector = nil
			semanticWeight = 0
			if bm25Weight < 1 {
				bm25Weight = 1
			}
		}
	}

	hits, ok, err := s.searchAccelerated(ctx, query, queryVector, fetchLimit, opts.MinScore,
		opts.ExcludeDocumentID, filter, semanticWeight, bm25Weight)
	if err != nil {
		return nil, err
	}
	if !ok {
		hits, err = s.db.HybridSearch(cache.HybridSearchOptions{
			QueryVector:    queryVector,
			QueryText:      query,
			Limit:          fetchLimit,
			MinScore:       opts.MinScore,
			ExcludeID:      opts.ExcludeDocumentID,
			FolderPrefix:   filter,
			SemanticWeight: semanticWeight,
			BM25Weight:     bm25Weight,
		})
		if err != nil {
			return nil, err
		}
	}

	if len(hits) > limit {
		hits = hits[:limit]
	}
	return hits, nil
}

// List returns the cached document rows, LRU-fronted.
func (s *Service) List() ([]cache.Row, error) {
	key := lru.Key{Query: "list_documents", Fingerprint: s.db.Fingerprint()}
	if rows, ok := s.listCache.Get(key); ok {
		return rows, nil
	}
	rows, err := s.db.ListDocuments()
	if err != nil {
		return nil, err
	}
	s.listCache.Put(key, rows)
	return rows, nil
}

// Status summarizes the cache without triggering any indexing, LRU-fronted.
func (s *Service) Status() (*cache.Status, error) {
	key := lru.Key{Query: "status", Fingerprint: s.db.Fingerprint()}
	if st, ok := s.statusCache.Get(key); ok {
		return st, nil
	}
	st, err := s.db.Status()
	if err != nil {
		return nil, err
	}
	s.statusCache.Put(key, st)
	return st, nil
}

// Tags aggregates tag usage from the cache.
func (s *Service) Tags() ([]cache.TagUsage, error) {
	return s.db.ListDocumentTags()
}

// CreateDocument writes a new markdown file and mirrors it into the cache.
func (s *Service) CreateDocument(ctx context.Context, input docstore.CreateInput) (*docstore.Document, error) {
	doc, err := s.docs.Create(input)
	if err != nil {
		return nil, err
	}
	if err := s.upsertMirror(ctx, doc); err != nil {
		return nil, err
	}
	return doc, nil
}

// ReadDocument resolves id (prefix-unique) and returns the parsed document.
func (s *Service) ReadDocument(id string) (*docstore.Document, error) {
	return s.docs.Read(id)
}

// UpdateTags applies a tag mutation and mirrors the result into the cache.
func (s *Service) UpdateTags(ctx context.Context, id string, tags []string, mode docstore.TagUpdateMode) (*docstore.Document, error) {
	doc, err := s.docs.UpdateTags(id, tags, mode)
	if err != nil {
		return nil, err
	}
	if err := s.upsertMirror(ctx, doc); err != nil {
		return nil, err
	}
	return doc, nil
}

// DeleteDocument trashes the markdown file and drops its cache rows.
func (s *Service) DeleteDocument(ctx context.Context, id string) error {
	doc, err := s.docs.Read(id)
	if err != nil {
		return err
	}
	if err := s.docs.Delete(doc.ID); err != nil {
		return err
	}
	if err := lock.WithLock(s.cachePath(), func() error {
		return s.db.DeleteDocument(doc.ID)
	}); err != nil {
		return err
	}
	s.invalidateReads()
	return nil
}

// MoveDocument relocates a document into another folder and mirrors the
// new location into the cache.
func (s *Service) MoveDocument(ctx context.Context, id, destFolderPath string) (*docstore.Document, error) {
	doc, err := s.docs.MoveDocument(id, destFolderPath)
	if err != nil {
		return nil, err
	}
	if err := s.upsertMirror(ctx, doc); err != nil {
		return nil, err
	}
	return doc, nil
}

// upsertMirror writes one document's cache row under the process lock and
// syncs its embeddings.
func (s *Service) upsertMirror(ctx context.Context, doc *docstore.Document) error {
	row := rowFromDocument(doc)
	if err := lock.WithLock(s.cachePath(), func() error {
		return s.db.UpsertDocument(row)
	}); err != nil {
		return err
	}
	s.invalidateReads()

	if _, _, err := s.syncEmbeddings(ctx, []cache.Row{row}, nil); err != nil {
		// Per-document embedding sync is best-effort; the next reindex
		// repairs any gap.
		s.logger.Warn("per-document embedding sync failed",
			slog.String("document_id", doc.ID), slog.String("error", err.Error()))
	}
	return nil
}

func rowFromDocument(doc *docstore.Document) cache.Row {
	return cache.Row{
		ID:         doc.ID,
		UserID:     "local",
		Title:      doc.Title,
		Body:       doc.Body,
		FolderPath: doc.FolderPath,
		Tags:       doc.Tags,
		TagsLocked: doc.TagsLocked,
		CreatedAt:  doc.CreatedAt,
		UpdatedAt:  doc.UpdatedAt,
	}
}

// folderWithin reports whether folder equals prefix or lies beneath it on
// a path-segment boundary.
func folderWithin(folder, prefix string) bool {
	if prefix == "" {
		return true
	}
	if folder == prefix {
		return true
	}
	return len(folder) > len(prefix) && folder[:len(prefix)] == prefix && folder[len(prefix)] == '/'
}
