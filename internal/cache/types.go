// Package cache implements the document cache sidecar: a SQLite database
// mirroring documents, tags, and embedding vectors, supporting the hybrid
// BM25 + cosine search that answers knowledge-base queries.
package cache

import "time"

// Row mirrors a StoredDocument, as persisted in the sidecar.
type Row struct {
	ID              string
	UserID          string
	Title           string
	Body            string
	FolderPath      string
	Tags            []string
	TagsLocked      bool
	BannerImageURL  string
	CreatedAt       time.Time
	UpdatedAt       time.Time
	DeletedAt       *time.Time
}

// TagUsage summarizes how a tag has been used across documents.
type TagUsage struct {
	Tag         string
	LastUsedAt  time.Time
	UsageCount  int
}

// EmbeddingMetadata is a (document_id, model, content_hash, updated_at) tuple.
type EmbeddingMetadata struct {
	DocumentID  string
	Model       string
	ContentHash string
	UpdatedAt   time.Time
}

// ChunkEmbeddingWrite is one chunk's embedding, staged for a replace.
type ChunkEmbeddingWrite struct {
	ChunkIndex  int
	ChunkText   string
	ContentHash string
	Vector      []float32
}

// DocumentWrite is the write payload produced by the embedding engine's
// sync planning for a single document.
type DocumentWrite struct {
	DocumentID        string
	Model             string
	DocumentVector    []float32 // nil if document embedding is unchanged
	DocumentHash      string
	ChunkEmbeddings   []ChunkEmbeddingWrite // nil if chunks are unchanged
	ChunkHash         string
}

// HybridSearchOptions configures hybrid_search_documents.
type HybridSearchOptions struct {
	QueryVector      []float32
	QueryText        string
	Limit            int
	MinScore         float64
	ExcludeID        string
	FolderPrefix     string // "" means no folder filter
	SemanticWeight   float64
	BM25Weight       float64
}

// SearchHit is one scored document from hybrid_search_documents.
type SearchHit struct {
	DocumentID    string
	FolderPath    string
	Title         string
	UpdatedAt     time.Time
	BM25Score     float64
	SemanticScore float64
	FinalScore    float64
}

// VectorEntry is one stored vector, keyed by document id for
// document-level embeddings or "<document id>#<chunk index>" for chunks.
type VectorEntry struct {
	Key        string
	DocumentID string
	Vector     []float32
}

// Status summarizes the cache for the `status` CLI command.
type Status struct {
	DocumentCountByFolder map[string]int
	FolderCount           int
	UniqueTagCount        int
	LastIndexedAt         time.Time
	SidecarSizeBytes      int64
}
