package cache

import "time"

// Cache defines the interface for response caching
// This interface allows for different implementations (in-memory, Redis, etc.)
type Cache interface {
	// Get retrieves a cached value by resource path and request params
	// Returns the value and true if found and not expired, nil and false otherwise
	Get(path string, params map[string]any) (any, bool)

	// Set stores a value under the given resource path and params with the default TTL
	Set(path string, value any, params map[string]any)

	// SetWithTTL stores a value with a per-entry TTL override
	SetWithTTL(path string, value any, params map[string]any, ttl time.Duration)

	// Has reports whether a live entry exists without affecting recency or hit counts
	Has(path string, params map[string]any) bool

	// Stats returns a diagnostics snapshot
	Stats() Stats

	// Clear removes all entries unconditionally
	Clear()

	// Close releases any resources held by the cache
	Close()
}

// Stats is a read-only diagnostics snapshot of a cache
type Stats struct {
	Size      int
	TotalHits uint64
	Misses    uint64
	Evictions uint64
}
