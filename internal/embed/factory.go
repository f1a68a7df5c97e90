package embed

import (
	"context"
	"fmt"
	"os"
	"strings"
)

// ProviderType represents an embedding provider.
type ProviderType string

const (
	// ProviderONNX runs the local MiniLM ONNX session (default).
	ProviderONNX ProviderType = "onnx"

	// ProviderFallback uses hash-based embeddings; selected explicitly for
	// BM25-only operation, or as the engine's own degrade-on-failure path.
	ProviderFallback ProviderType = "fallback"
)

// NewEmbedder creates an embedder for the given provider, with automatic
// fallback to the hash-based embedder on ONNX load failure unless the
// provider was selected explicitly via the KB_EMBEDDER environment
// variable, in which case failure is surfaced rather than silently masked.
//
// Query embedding caching is enabled by default; set KB_EMBED_CACHE=false
// to disable it.
func NewEmbedder(ctx context.Context, provider ProviderType, onProgress LoadProgressFunc) (Embedder, error) {
	envProvider := os.Getenv("KB_EMBEDDER")
	explicitSelection := envProvider != ""
	if explicitSelection {
		provider = ParseProvider(envProvider)
	}

	var embedder Embedder
	var err error

	switch provider {
	case ProviderFallback:
		embedder = NewFallbackEmbedder()

	default:
		embedder, err = newONNXWithFallback(ctx, onProgress, explicitSelection)
	}

	if err != nil {
		return nil, err
	}

	if !isCacheDisabled() {
		embedder = NewCachedEmbedderWithDefaults(embedder)
	}
	return embedder, nil
}

func isCacheDisabled() bool {
	v := strings.ToLower(os.Getenv("KB_EMBED_CACHE"))
	return v == "false" || v == "0" || v == "off" || v == "disabled"
}

// newONNXWithFallback creates the ONNX embedder, degrading to the
// hash-based fallback on load failure unless explicitSelection is set, in
// which case the load error is returned unchanged so the caller can
// surface it (the knowledge-base service further degrades per-search to
// BM25-only on an embedding failure, independent of this constructor).
func newONNXWithFallback(ctx context.Context, onProgress LoadProgressFunc, explicitSelection bool) (Embedder, error) {
	embedder, err := NewONNXEmbedder(ctx, DefaultONNXConfig(), onProgress)
	if err != nil {
		if explicitSelection {
			return nil, fmt.Errorf("onnx embedder unavailable: %w", err)
		}
		return NewFallbackEmbedder(), nil
	}
	return embedder, nil
}

// ParseProvider converts a string to ProviderType, defaulting to ONNX.
func ParseProvider(s string) ProviderType {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "fallback", "static", "hash":
		return ProviderFallback
	default:
		return ProviderONNX
	}
}

// String returns the string representation of ProviderType.
func (p ProviderType) String() string { return string(p) }

// ValidProviders returns all valid provider names.
func ValidProviders() []string {
	return []string{string(ProviderONNX), string(ProviderFallback)}
}

// IsValidProvider checks if a provider name is valid.
func IsValidProvider(s string) bool {
	lower := strings.ToLower(s)
	for _, p := range ValidProviders() {
		if lower == p {
			return true
		}
	}
	return false
}

// EmbedderInfo describes a constructed embedder.
type EmbedderInfo struct {
	Provider   ProviderType
	Model      string
	Dimensions int
	Available  bool
}

// GetInfo returns information about an embedder, unwrapping CachedEmbedder.
func GetInfo(ctx context.Context, embedder Embedder) EmbedderInfo {
	inner := embedder
	if cached, ok := embedder.(*CachedEmbedder); ok {
		inner = cached.inner
	}

	info := EmbedderInfo{
		Model:      embedder.ModelName(),
		Dimensions: embedder.Dimensions(),
		Available:  embedder.Available(ctx),
	}

	switch inner.(type) {
	case *ONNXEmbedder:
		info.Provider = ProviderONNX
	default:
		info.Provider = ProviderFallback
	}
	return info
}

// MustNewEmbedder creates an embedder and panics on failure.
// Use only in tests or initialization code where failure is fatal.
func MustNewEmbedder(ctx context.Context, provider ProviderType) Embedder {
	embedder, err := NewEmbedder(ctx, provider, nil)
	if err != nil {
		panic(fmt.Sprintf("failed to create embedder: %v", err))
	}
	return embedder
}
