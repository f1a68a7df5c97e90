// Package lru provides the read-through cache fronting the document cache's
// hot, read-heavy queries (list_documents, status). It is purely a
// performance layer: disabling it must not change any observable result,
// only latency.
package lru

import (
	lru "github.com/hashicorp/golang-lru/v2"
)

// DefaultSize is the default number of entries retained.
const DefaultSize = 256

// Key identifies a cached read, fingerprinted by the caller so a stale
// entry is never served past a write (see Fingerprint).
type Key struct {
	Query       string
	Fingerprint string
}

// Cache is a bounded LRU over arbitrary read results, keyed by Key.
type Cache[V any] struct {
	inner *lru.Cache[Key, V]
}

// New creates a Cache with the given capacity (DefaultSize if size <= 0).
func New[V any](size int) (*Cache[V], error) {
	if size <= 0 {
		size = DefaultSize
	}
	inner, err := lru.New[Key, V](size)
	if err != nil {
		return nil, err
	}
	return &Cache[V]{inner: inner}, nil
}

// Get returns the cached value for key, if present.
func (c *Cache[V]) Get(key Key) (V, bool) {
	return c.inner.Get(key)
}

// Put stores value under key, evicting the least-recently-used entry if full.
func (c *Cache[V]) Put(key Key, value V) {
	c.inner.Add(key, value)
}

// PurgeFingerprint removes every cached entry for the given fingerprint,
// regardless of query. Called on any cache mutation (upsert_document,
// replace_documents, delete_document, any embedding write) so a write
// invalidates every entry whose fingerprint it has staled.
func (c *Cache[V]) PurgeFingerprint(fingerprint string) {
	for _, key := range c.inner.Keys() {
		if key.Fingerprint == fingerprint {
			c.inner.Remove(key)
		}
	}
}

// Purge drops every cached entry.
func (c *Cache[V]) Purge() {
	c.inner.Purge()
}

// Len returns the number of entries currently cached.
func (c *Cache[V]) Len() int {
	return c.inner.Len()
}
