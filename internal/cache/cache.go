package cache

import (
	"context"
	"encoding/base64"
	"strings"
	"time"
)

// Cache is a best-effort byte store for answer results. The interface is
// deliberately errorless: a broken cache degrades to a miss on reads and a
// no-op on writes, it never fails a request.
type Cache interface {
	// Get returns the cached value and whether the key was present.
	Get(ctx context.Context, key string) ([]byte, bool)

	// Set stores the value under key for at most ttl.
	Set(ctx context.Context, key string, value []byte, ttl time.Duration)

	// Invalidate removes every key matching the glob pattern and returns
	// how many were removed.
	Invalidate(ctx context.Context, pattern string) int
}

// Fingerprint builds the cache key for a query. The query text is lowercased
// and whitespace-collapsed first, so trivially different spellings share an
// entry, then base64-encoded to keep the key safe for any backend. A
// document-scoped query carries a ":doc:" suffix so per-document entries can
// be invalidated with a glob when that document is re-indexed.
func Fingerprint(query, documentID string) string {
	normalized := strings.ToLower(strings.Join(strings.Fields(query), " "))
	key := "query:" + base64.StdEncoding.EncodeToString([]byte(normalized))
	if documentID != "" {
		key += ":doc:" + documentID
	}
	return key
}
