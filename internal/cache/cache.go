package cache

import (
	"database/sql"
	"encoding/binary"
	"fmt"
	"math"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"

	_ "modernc.org/sqlite"

	"github.com/localkb/knowledgebase/internal/errors"
)

const timeLayout = time.RFC3339

// Cache is the SQLite-backed document sidecar. One Cache holds exactly one
// connection, per the single-connection-per-service-entry discipline;
// multi-row mutations run inside a transaction.
type Cache struct {
	db   *sql.DB
	Path string
}

// Open creates (or opens) the sidecar database at path and ensures its schema.
func Open(path string) (*Cache, error) {
	if dir := filepath.Dir(path); dir != "." && dir != "" {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return nil, errors.New(errors.ErrCodeFilePermission, "failed to create cache directory", err)
		}
	}

	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, errors.New(errors.ErrCodeCacheSqlite, "failed to open document cache", err)
	}
	db.SetMaxOpenConns(1)

	if _, err := db.Exec(schemaSQL); err != nil {
		db.Close()
		return nil, errors.New(errors.ErrCodeCacheSqlite, "failed to initialize document cache schema", err)
	}

	return &Cache{db: db, Path: path}, nil
}

// Close releases the underlying connection.
func (c *Cache) Close() error {
	return c.db.Close()
}

// UpsertDocument inserts or replaces one document row plus its tags.
func (c *Cache) UpsertDocument(row Row) error {
	tx, err := c.db.Begin()
	if err != nil {
		return errors.New(errors.ErrCodeCacheSqlite, "failed to begin transaction", err)
	}
	defer tx.Rollback()

	if err := upsertDocumentTx(tx, row); err != nil {
		return err
	}
	if err := tx.Commit(); err != nil {
		return errors.Wrap(errors.ErrCodeCacheSqlite, err)
	}
	return nil
}

func upsertDocumentTx(tx *sql.Tx, row Row) error {
	var deletedAt interface{}
	if row.DeletedAt != nil {
		deletedAt = row.DeletedAt.UTC().Format(timeLayout)
	}

	_, err := tx.Exec(`
		INSERT INTO documents (id, user_id, title, body, folder_path, tags_locked, banner_image_url, created_at, updated_at, deleted_at)
		VALUES (?, 'local', ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(id) DO UPDATE SET
			title=excluded.title, body=excluded.body, folder_path=excluded.folder_path,
			tags_locked=excluded.tags_locked, banner_image_url=excluded.banner_image_url,
			updated_at=excluded.updated_at, deleted_at=excluded.deleted_at`,
		row.ID, row.Title, row.Body, row.FolderPath, row.TagsLocked, row.BannerImageURL,
		row.CreatedAt.UTC().Format(timeLayout), row.UpdatedAt.UTC().Format(timeLayout), deletedAt)
	if err != nil {
		return errors.New(errors.ErrCodeCacheSqlite, "failed to upsert document", err)
	}

	if _, err := tx.Exec(`DELETE FROM document_tags WHERE document_id = ?`, row.ID); err != nil {
		return errors.New(errors.ErrCodeCacheSqlite, "failed to clear document tags", err)
	}
	now := time.Now().UTC().Format(timeLayout)
	for _, tag := range row.Tags {
		if _, err := tx.Exec(`INSERT OR IGNORE INTO document_tags (document_id, tag, created_at) VALUES (?, ?, ?)`,
			row.ID, tag, now); err != nil {
			return errors.New(errors.ErrCodeCacheSqlite, "failed to insert document tag", err)
		}
	}
	return nil
}

// ReplaceDocuments replaces the entire document set in one transaction, so
// a partial (folder-scoped) reindex merged with the complementary subtree
// beforehand never drops out-of-scope rows.
func (c *Cache) ReplaceDocuments(rows []Row) error {
	tx, err := c.db.Begin()
	if err != nil {
		return errors.New(errors.ErrCodeCacheSqlite, "failed to begin transaction", err)
	}
	defer tx.Rollback()

	if _, err := tx.Exec(`DELETE FROM documents`); err != nil {
		return errors.New(errors.ErrCodeCacheSqlite, "failed to clear documents", err)
	}
	for _, row := range rows {
		if err := upsertDocumentTx(tx, row); err != nil {
			return err
		}
	}
	if err := tx.Commit(); err != nil {
		return errors.Wrap(errors.ErrCodeCacheSqlite, err)
	}
	return nil
}

// DeleteDocument removes a document; tag and embedding rows cascade.
func (c *Cache) DeleteDocument(id string) error {
	_, err := c.db.Exec(`DELETE FROM documents WHERE id = ?`, id)
	if err != nil {
		return errors.New(errors.ErrCodeCacheSqlite, "failed to delete document", err)
	}
	return nil
}

// ListDocuments joins documents with tags, ordered by updated_at DESC, id
// ASC, tag ASC.
func (c *Cache) ListDocuments() ([]Row, error) {
	rows, err := c.db.Query(`
		SELECT d.id, d.user_id, d.title, d.body, d.folder_path, d.tags_locked, d.banner_image_url,
		       d.created_at, d.updated_at, d.deleted_at, t.tag
		FROM documents d
		LEFT JOIN document_tags t ON t.document_id = d.id
		WHERE d.deleted_at IS NULL
		ORDER BY d.updated_at DESC, d.id ASC, t.tag ASC`)
	if err != nil {
		return nil, errors.New(errors.ErrCodeCacheSqlite, "failed to list documents", err)
	}
	defer rows.Close()

	byID := make(map[string]*Row)
	var order []string
	for rows.Next() {
		var id, userID, title, body, folderPath, createdAt, updatedAt string
		var tagsLocked bool
		var bannerImageURL, deletedAt, tag sql.NullString
		if err := rows.Scan(&id, &userID, &title, &body, &folderPath, &tagsLocked, &bannerImageURL,
			&createdAt, &updatedAt, &deletedAt, &tag); err != nil {
			return nil, errors.New(errors.ErrCodeCacheSqlite, "failed to scan document row", err)
		}

		r, ok := byID[id]
		if !ok {
			created, _ := time.Parse(timeLayout, createdAt)
			updated, _ := time.Parse(timeLayout, updatedAt)
			r = &Row{ID: id, UserID: userID, Title: title, Body: body, FolderPath: folderPath,
				TagsLocked: tagsLocked, BannerImageURL: bannerImageURL.String,
				CreatedAt: created, UpdatedAt: updated}
			byID[id] = r
			order = append(order, id)
		}
		if tag.Valid {
			r.Tags = append(r.Tags, tag.String)
		}
	}

	out := make([]Row, 0, len(order))
	for _, id := range order {
		out = append(out, *byID[id])
	}
	return out, nil
}

// ListDocumentTags aggregates tag usage, ordered by last_used_at DESC, tag ASC.
func (c *Cache) ListDocumentTags() ([]TagUsage, error) {
	rows, err := c.db.Query(`
		SELECT tag, MAX(created_at) AS last_used_at, COUNT(*) AS usage_count
		FROM document_tags
		GROUP BY tag
		ORDER BY last_used_at DESC, tag ASC`)
	if err != nil {
		return nil, errors.New(errors.ErrCodeCacheSqlite, "failed to list document tags", err)
	}
	defer rows.Close()

	var out []TagUsage
	for rows.Next() {
		var tag, lastUsed string
		var count int
		if err := rows.Scan(&tag, &lastUsed, &count); err != nil {
			return nil, errors.New(errors.ErrCodeCacheSqlite, "failed to scan tag usage", err)
		}
		t, _ := time.Parse(timeLayout, lastUsed)
		out = append(out, TagUsage{Tag: tag, LastUsedAt: t, UsageCount: count})
	}
	return out, nil
}

// ListDocumentEmbeddingMetadata returns (document_id, model, content_hash, updated_at) tuples.
func (c *Cache) ListDocumentEmbeddingMetadata(model string) ([]EmbeddingMetadata, error) {
	rows, err := c.db.Query(`SELECT document_id, model, content_hash, updated_at FROM document_embeddings WHERE model = ?`, model)
	if err != nil {
		return nil, errors.New(errors.ErrCodeCacheSqlite, "failed to list embedding metadata", err)
	}
	defer rows.Close()

	var out []EmbeddingMetadata
	for rows.Next() {
		var m EmbeddingMetadata
		var updatedAt string
		if err := rows.Scan(&m.DocumentID, &m.Model, &m.ContentHash, &updatedAt); err != nil {
			return nil, errors.New(errors.ErrCodeCacheSqlite, "failed to scan embedding metadata", err)
		}
		m.UpdatedAt, _ = time.Parse(timeLayout, updatedAt)
		out = append(out, m)
	}
	return out, nil
}

// ListChunkEmbeddingHashesByModel returns one content hash per document
// (any row's value, since all chunks of a document share it).
func (c *Cache) ListChunkEmbeddingHashesByModel(model string) (map[string]string, error) {
	rows, err := c.db.Query(`SELECT document_id, content_hash FROM document_chunk_embeddings WHERE model = ? GROUP BY document_id`, model)
	if err != nil {
		return nil, errors.New(errors.ErrCodeCacheSqlite, "failed to list chunk embedding hashes", err)
	}
	defer rows.Close()

	out := make(map[string]string)
	for rows.Next() {
		var id, hash string
		if err := rows.Scan(&id, &hash); err != nil {
			return nil, errors.New(errors.ErrCodeCacheSqlite, "failed to scan chunk embedding hash", err)
		}
		out[id] = hash
	}
	return out, nil
}

// UpsertDocumentEmbedding inserts or replaces a document-level embedding by (document_id, model).
func (c *Cache) UpsertDocumentEmbedding(documentID, model, contentHash string, vector []float32) error {
	_, err := c.db.Exec(`
		INSERT INTO document_embeddings (document_id, model, content_hash, vector, updated_at)
		VALUES (?, ?, ?, ?, ?)
		ON CONFLICT(document_id, model) DO UPDATE SET content_hash=excluded.content_hash, vector=excluded.vector, updated_at=excluded.updated_at`,
		documentID, model, contentHash, encodeVector(vector), time.Now().UTC().Format(timeLayout))
	if err != nil {
		return errors.New(errors.ErrCodeCacheSqlite, "failed to upsert document embedding", err)
	}
	return nil
}

// ReplaceChunkEmbeddings deletes then re-inserts chunk embeddings for one
// document inside a transaction; an empty rows slice simply deletes.
func (c *Cache) ReplaceChunkEmbeddings(documentID, model string, rows []ChunkEmbeddingWrite) error {
	tx, err := c.db.Begin()
	if err != nil {
		return errors.New(errors.ErrCodeCacheSqlite, "failed to begin transaction", err)
	}
	defer tx.Rollback()

	if _, err := tx.Exec(`DELETE FROM document_chunk_embeddings WHERE document_id = ? AND model = ?`, documentID, model); err != nil {
		return errors.New(errors.ErrCodeCacheSqlite, "failed to clear chunk embeddings", err)
	}

	now := time.Now().UTC().Format(timeLayout)
	for _, r := range rows {
		if _, err := tx.Exec(`
			INSERT INTO document_chunk_embeddings (document_id, chunk_index, model, chunk_text, content_hash, vector, updated_at)
			VALUES (?, ?, ?, ?, ?, ?, ?)`,
			documentID, r.ChunkIndex, model, r.ChunkText, r.ContentHash, encodeVector(r.Vector), now); err != nil {
			return errors.New(errors.ErrCodeCacheSqlite, "failed to insert chunk embedding", err)
		}
	}
	if err := tx.Commit(); err != nil {
		return errors.Wrap(errors.ErrCodeCacheSqlite, err)
	}
	return nil
}

// ApplyEmbeddingSyncBatch applies up to 75 documents' embedding writes
// atomically in one transaction. On any failure the whole batch rolls back;
// the caller should retry per-document.
func (c *Cache) ApplyEmbeddingSyncBatch(writes []DocumentWrite) error {
	tx, err := c.db.Begin()
	if err != nil {
		return errors.New(errors.ErrCodeCacheSqlite, "failed to begin batch transaction", err)
	}
	defer tx.Rollback()

	now := time.Now().UTC().Format(timeLayout)
	for _, w := range writes {
		if w.DocumentVector != nil {
			if _, err := tx.Exec(`
				INSERT INTO document_embeddings (document_id, model, content_hash, vector, updated_at)
				VALUES (?, ?, ?, ?, ?)
				ON CONFLICT(document_id, model) DO UPDATE SET content_hash=excluded.content_hash, vector=excluded.vector, updated_at=excluded.updated_at`,
				w.DocumentID, w.Model, w.DocumentHash, encodeVector(w.DocumentVector), now); err != nil {
				return errors.New(errors.ErrCodeCacheSqlite, "batch: failed to upsert document embedding for "+w.DocumentID, err)
			}
		}
		if w.ChunkEmbeddings != nil {
			if _, err := tx.Exec(`DELETE FROM document_chunk_embeddings WHERE document_id = ? AND model = ?`, w.DocumentID, w.Model); err != nil {
				return errors.New(errors.ErrCodeCacheSqlite, "batch: failed to clear chunk embeddings for "+w.DocumentID, err)
			}
			for _, r := range w.ChunkEmbeddings {
				if _, err := tx.Exec(`
					INSERT INTO document_chunk_embeddings (document_id, chunk_index, model, chunk_text, content_hash, vector, updated_at)
					VALUES (?, ?, ?, ?, ?, ?, ?)`,
					w.DocumentID, r.ChunkIndex, w.Model, r.ChunkText, r.ContentHash, encodeVector(r.Vector), now); err != nil {
					return errors.New(errors.ErrCodeCacheSqlite, "batch: failed to insert chunk embedding for "+w.DocumentID, err)
				}
			}
		}
	}

	if err := tx.Commit(); err != nil {
		return errors.Wrap(errors.ErrCodeCacheSqlite, err)
	}
	return nil
}

// ListAllVectors returns every stored vector for the given model: one
// entry per document embedding (keyed by document id) and one per chunk
// embedding (keyed "<document id>#<chunk index>"). Used to build the
// approximate-nearest-neighbor index for large corpora.
func (c *Cache) ListAllVectors(model string) ([]VectorEntry, error) {
	var out []VectorEntry

	docRows, err := c.db.Query(`SELECT document_id, vector FROM document_embeddings WHERE model = ?`, model)
	if err != nil {
		return nil, errors.New(errors.ErrCodeCacheSqlite, "failed to list document vectors", err)
	}
	defer docRows.Close()
	for docRows.Next() {
		var id string
		var blob []byte
		if err := docRows.Scan(&id, &blob); err != nil {
			return nil, errors.New(errors.ErrCodeCacheSqlite, "failed to scan document vector", err)
		}
		out = append(out, VectorEntry{Key: id, DocumentID: id, Vector: decodeVector(blob)})
	}

	chunkRows, err := c.db.Query(`SELECT document_id, chunk_index, vector FROM document_chunk_embeddings WHERE model = ?`, model)
	if err != nil {
		return nil, errors.New(errors.ErrCodeCacheSqlite, "failed to list chunk vectors", err)
	}
	defer chunkRows.Close()
	for chunkRows.Next() {
		var id string
		var idx int
		var blob []byte
		if err := chunkRows.Scan(&id, &idx, &blob); err != nil {
			return nil, errors.New(errors.ErrCodeCacheSqlite, "failed to scan chunk vector", err)
		}
		out = append(out, VectorEntry{Key: fmt.Sprintf("%s#%d", id, idx), DocumentID: id, Vector: decodeVector(blob)})
	}

	return out, nil
}

// Fingerprint is a cheap cache-state token (sidecar mtime + size) used to
// key the read-through LRU so a stale entry is never served past a write.
func (c *Cache) Fingerprint() string {
	info, err := os.Stat(c.Path)
	if err != nil {
		return "absent"
	}
	return fmt.Sprintf("%d:%d", info.ModTime().UnixNano(), info.Size())
}

// Status summarizes the cache for the `status` command. It never triggers indexing.
func (c *Cache) Status() (*Status, error) {
	rows, err := c.db.Query(`SELECT folder_path, COUNT(*) FROM documents WHERE deleted_at IS NULL GROUP BY folder_path`)
	if err != nil {
		return nil, errors.New(errors.ErrCodeCacheSqlite, "failed to compute status", err)
	}
	defer rows.Close()

	counts := make(map[string]int)
	for rows.Next() {
		var folder string
		var n int
		if err := rows.Scan(&folder, &n); err != nil {
			return nil, errors.New(errors.ErrCodeCacheSqlite, "failed to scan folder count", err)
		}
		counts[folder] = n
	}

	var tagCount int
	if err := c.db.QueryRow(`SELECT COUNT(DISTINCT tag) FROM document_tags`).Scan(&tagCount); err != nil {
		return nil, errors.New(errors.ErrCodeCacheSqlite, "failed to count distinct tags", err)
	}

	var maxUpdated sql.NullString
	if err := c.db.QueryRow(`SELECT MAX(updated_at) FROM documents WHERE deleted_at IS NULL`).Scan(&maxUpdated); err != nil {
		return nil, errors.New(errors.ErrCodeCacheSqlite, "failed to compute last indexed time", err)
	}
	lastIndexed := time.Time{}
	if info, statErr := os.Stat(c.Path); statErr == nil {
		lastIndexed = info.ModTime()
	} else if maxUpdated.Valid {
		lastIndexed, _ = time.Parse(timeLayout, maxUpdated.String)
	}

	var sidecarSize int64
	if info, statErr := os.Stat(c.Path); statErr == nil {
		sidecarSize = info.Size()
	}

	return &Status{
		DocumentCountByFolder: counts,
		FolderCount:           len(counts),
		UniqueTagCount:        tagCount,
		LastIndexedAt:         lastIndexed,
		SidecarSizeBytes:      sidecarSize,
	}, nil
}

func encodeVector(v []float32) []byte {
	buf := make([]byte, len(v)*4)
	for i, f := range v {
		binary.LittleEndian.PutUint32(buf[i*4:], math.Float32bits(f))
	}
	return buf
}

func decodeVector(b []byte) []float32 {
	n := len(b) / 4
	v := make([]float32, n)
	for i := 0; i < n; i++ {
		v[i] = math.Float32frombits(binary.LittleEndian.Uint32(b[i*4:]))
	}
	return v
}

func cosineSimilarity(a, b []float32) float64 {
	if len(a) != len(b) || len(a) == 0 {
		return 0
	}
	var dot, na, nb float64
	for i := range a {
		dot += float64(a[i]) * float64(b[i])
		na += float64(a[i]) * float64(a[i])
		nb += float64(b[i]) * float64(b[i])
	}
	if na == 0 || nb == 0 {
		return 0
	}
	return dot / (math.Sqrt(na) * math.Sqrt(nb))
}

// tokenize lowercases and splits on non-letter/digit runes, matching the
// coarse tokenization used for BM25 scoring over title+body.
func tokenize(s string) []string {
	var tokens []string
	var cur strings.Builder
	flush := func() {
		if cur.Len() > 0 {
			tokens = append(tokens, strings.ToLower(cur.String()))
			cur.Reset()
		}
	}
	for _, r := range s {
		if (r >= 'a' && r <= 'z') || (r >= 'A' && r <= 'Z') || (r >= '0' && r <= '9') {
			cur.WriteRune(r)
		} else {
			flush()
		}
	}
	flush()
	return tokens
}

const bm25K1 = 1.2
const bm25B = 0.75

// bm25Score computes a standard BM25 score of queryTokens against a single
// document field, given the corpus average field length.
func bm25Score(queryTokens []string, docTokens []string, avgDocLen float64, docFreq map[string]int, corpusSize int) float64 {
	if len(docTokens) == 0 || corpusSize == 0 {
		return 0
	}
	termFreq := make(map[string]int, len(docTokens))
	for _, t := range docTokens {
		termFreq[t]++
	}
	docLen := float64(len(docTokens))

	var score float64
	for _, qt := range queryTokens {
		tf := float64(termFreq[qt])
		if tf == 0 {
			continue
		}
		df := docFreq[qt]
		if df == 0 {
			continue
		}
		idf := math.Log(1 + (float64(corpusSize)-float64(df)+0.5)/(float64(df)+0.5))
		score += idf * (tf * (bm25K1 + 1)) / (tf + bm25K1*(1-bm25B+bm25B*docLen/avgDocLen))
	}
	return score
}

// HybridSearch scores candidate documents by a weighted sum of normalized
// BM25 and semantic cosine similarity, per SPEC §4.7.
func (c *Cache) HybridSearch(opts HybridSearchOptions) ([]SearchHit, error) {
	rows, err := c.ListDocuments()
	if err != nil {
		return nil, err
	}

	queryTokens := tokenize(opts.QueryText)

	type candidate struct {
		row       Row
		docTokens []string
		vector    []float32
	}

	var candidates []candidate
	docFreq := make(map[string]int)
	var totalLen float64

	for _, row := range rows {
		if !folderMatches(row.FolderPath, opts.FolderPrefix) {
			continue
		}
		if row.ID == opts.ExcludeID {
			continue
		}

		field := row.Title + " " + row.Body
		docTokens := tokenize(field)
		totalLen += float64(len(docTokens))

		seen := make(map[string]bool)
		for _, t := range docTokens {
			if !seen[t] {
				seen[t] = true
				docFreq[t]++
			}
		}

		var vec []float32
		if len(opts.QueryVector) > 0 {
			vec = c.bestVectorForDocument(row.ID, opts.QueryVector)
		}

		hasTokenMatch := false
		for _, qt := range queryTokens {
			if seen[qt] {
				hasTokenMatch = true
				break
			}
		}
		if !hasTokenMatch && vec == nil {
			continue
		}

		candidates = append(candidates, candidate{row: row, docTokens: docTokens, vector: vec})
	}

	if len(candidates) == 0 {
		return nil, nil
	}
	avgDocLen := totalLen / float64(len(candidates))
	if avgDocLen == 0 {
		avgDocLen = 1
	}

	hits := make([]SearchHit, 0, len(candidates))
	maxBM25 := 0.0
	rawBM25 := make([]float64, len(candidates))
	for i, cand := range candidates {
		rawBM25[i] = bm25Score(queryTokens, cand.docTokens, avgDocLen, docFreq, len(candidates))
		if rawBM25[i] > maxBM25 {
			maxBM25 = rawBM25[i]
		}
	}

	const epsilon = 1e-9
	for i, cand := range candidates {
		bm25Norm := 0.0
		if maxBM25 > epsilon {
			bm25Norm = rawBM25[i] / maxBM25
		}

		semantic := 0.0
		if cand.vector != nil && len(opts.QueryVector) > 0 {
			semantic = cosineSimilarity(opts.QueryVector, cand.vector)
		}

		denom := opts.SemanticWeight + opts.BM25Weight
		if denom < epsilon {
			denom = epsilon
		}
		final := (opts.SemanticWeight*semantic + opts.BM25Weight*bm25Norm) / denom

		if final < opts.MinScore {
			continue
		}

		hits = append(hits, SearchHit{
			DocumentID: cand.row.ID, FolderPath: cand.row.FolderPath, Title: cand.row.Title,
			UpdatedAt: cand.row.UpdatedAt, BM25Score: bm25Norm, SemanticScore: semantic, FinalScore: final,
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

	limit := opts.Limit
	if limit > 0 && len(hits) > limit {
		hits = hits[:limit]
	}
	return hits, nil
}

// folderMatches reports whether folder equals prefix or lies beneath it.
// Matching is on path-segment boundaries, so "projects" matches
// "projects/alpha" but not "projectsx".
func folderMatches(folder, prefix string) bool {
	if prefix == "" {
		return true
	}
	return folder == prefix || strings.HasPrefix(folder, prefix+"/")
}

// bestVectorForDocument returns whichever of the document's stored
// document-level or chunk-level vectors is most similar to the query
// vector (SPEC §4.7: "the best document or chunk vector for that document").
func (c *Cache) bestVectorForDocument(documentID string, queryVector []float32) []float32 {
	var best []float32
	bestScore := -1.0

	docRows, err := c.db.Query(`SELECT vector FROM document_embeddings WHERE document_id = ?`, documentID)
	if err == nil {
		defer docRows.Close()
		for docRows.Next() {
			var blob []byte
			if docRows.Scan(&blob) == nil {
				v := decodeVector(blob)
				if s := cosineSimilarity(queryVector, v); s > bestScore {
					bestScore = s
					best = v
				}
			}
		}
	}

	chunkRows, err := c.db.Query(`SELECT vector FROM document_chunk_embeddings WHERE document_id = ?`, documentID)
	if err == nil {
		defer chunkRows.Close()
		for chunkRows.Next() {
			var blob []byte
			if chunkRows.Scan(&blob) == nil {
				v := decodeVector(blob)
				if s := cosineSimilarity(queryVector, v); s > bestScore {
					bestScore = s
					best = v
				}
			}
		}
	}

	return best
}
