package embed

import (
	"context"
	"math"
	"time"
)

// Common embedding constants.
const (
	// MinBatchSize is the minimum allowed batch size.
	MinBatchSize = 1

	// MaxBatchSize is the maximum allowed batch size (prevents memory exhaustion).
	MaxBatchSize = 256

	// DefaultBatchSize is the default number of documents per embedding sync batch.
	DefaultBatchSize = 75

	// DefaultEmbedTimeout bounds a single embed_texts call.
	DefaultEmbedTimeout = 60 * time.Second

	// DefaultMaxRetries is a retry count for a failed batch. The embedding
	// sync does not read it: a failed batch falls back to per-document
	// application at once, without retrying.
	DefaultMaxRetries = 3
)

// Embedder generates vector embeddings for text.
type Embedder interface {
	// Embed generates an embedding for a single text.
	Embed(ctx context.Context, text string) ([]float32, error)

	// EmbedBatch generates embeddings for multiple texts, internally
	// split into micro-batches to bound peak memory.
	EmbedBatch(ctx context.Context, texts []string) ([][]float32, error)

	// Dimensions returns the embedding dimension.
	Dimensions() int

	// ModelName returns the model identifier, used as the cache's model key.
	ModelName() string

	// Available checks if the embedder is ready.
	Available(ctx context.Context) bool

	// Close releases resources.
	Close() error

	// SetBatchIndex is retained for embedder implementations that scale
	// timeouts by position within a long-running sync; a no-op otherwise.
	SetBatchIndex(idx int)

	// SetFinalBatch is retained for the same reason as SetBatchIndex.
	SetFinalBatch(isFinal bool)
}

// normalizeVector L2-normalizes a vector. A zero-magnitude vector (within
// epsilon) is returned unchanged, i.e. as a zero vector of the same length.
func normalizeVector(v []float32) []float32 {
	const epsilon = 1e-12

	var sumSquares float64
	for _, val := range v {
		sumSquares += float64(val) * float64(val)
	}

	magnitude := math.Sqrt(sumSquares)
	if magnitude <= epsilon {
		return v
	}

	normalized := make([]float32, len(v))
	for i, val := range v {
		normalized[i] = float32(float64(val) / magnitude)
	}
	return normalized
}
