package embed

import (
	"context"
	"fmt"
	"strings"
	"sync"
)

// FallbackDimensions matches ONNXDimensions so switching between the two
// providers never produces a stored-vector dimension mismatch.
const FallbackDimensions = ONNXDimensions

// FallbackEmbedder generates deterministic hash-based embeddings without
// any model, tokenizer, or network dependency. It is selected explicitly
// for BM25-only operation, and NewEmbedder substitutes it when the ONNX
// engine fails to load and the provider was not chosen through KB_EMBEDDER.
// The knowledge-base service does not switch to it when a query embedding
// fails; it zeroes the semantic weight instead (see internal/kb).
type FallbackEmbedder struct {
	mu     sync.RWMutex
	closed bool
}

// NewFallbackEmbedder creates a new hash-based fallback embedder.
func NewFallbackEmbedder() *FallbackEmbedder {
	return &FallbackEmbedder{}
}

// Embed generates an embedding for a single text.
func (e *FallbackEmbedder) Embed(_ context.Context, text string) ([]float32, error) {
	e.mu.RLock()
	if e.closed {
		e.mu.RUnlock()
		return nil, fmt.Errorf("embedder is closed")
	}
	e.mu.RUnlock()

	trimmed := strings.TrimSpace(text)
	if trimmed == "" {
		return make([]float32, FallbackDimensions), nil
	}

	return normalizeVector(e.generateVector(trimmed)), nil
}

func (e *FallbackEmbedder) generateVector(text string) []float32 {
	vector := make([]float32, FallbackDimensions)

	tokens := filterStopWords(tokenize(text))
	for _, token := range tokens {
		vector[hashToIndex(token, FallbackDimensions)] += tokenWeight
	}

	normalized := normalizeForNgrams(text)
	for _, ngram := range extractNgrams(normalized, ngramSize) {
		vector[hashToIndex(ngram, FallbackDimensions)] += ngramWeight
	}

	return vector
}

// EmbedBatch generates embeddings for multiple texts.
func (e *FallbackEmbedder) EmbedBatch(ctx context.Context, texts []string) ([][]float32, error) {
	e.mu.RLock()
	if e.closed {
		e.mu.RUnlock()
		return nil, fmt.Errorf("embedder is closed")
	}
	e.mu.RUnlock()

	if len(texts) == 0 {
		return [][]float32{}, nil
	}

	results := make([][]float32, len(texts))
	for i, text := range texts {
		emb, err := e.Embed(ctx, text)
		if err != nil {
			return nil, fmt.Errorf("failed to embed text %d: %w", i, err)
		}
		results[i] = emb
	}
	return results, nil
}

// Dimensions returns FallbackDimensions.
func (e *FallbackEmbedder) Dimensions() int { return FallbackDimensions }

// ModelName returns the model identifier.
func (e *FallbackEmbedder) ModelName() string { return "fallback-hash" }

// Available always returns true unless closed.
func (e *FallbackEmbedder) Available(_ context.Context) bool {
	e.mu.RLock()
	defer e.mu.RUnlock()
	return !e.closed
}

// Close releases resources.
func (e *FallbackEmbedder) Close() error {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.closed = true
	return nil
}

// SetBatchIndex is a no-op; the fallback embedder has no thermal management.
func (e *FallbackEmbedder) SetBatchIndex(_ int) {}

// SetFinalBatch is a no-op; the fallback embedder has no thermal management.
func (e *FallbackEmbedder) SetFinalBatch(_ bool) {}
