package cache

import (
	"errors"
	"sync"
	"time"

	lru "github.com/hashicorp/golang-lru/v2"
)

// entry represents a cached item with expiration and access bookkeeping
type entry struct {
	value        any
	expiresAt    time.Time
	hits         uint64
	lastAccessed time.Time
}

// Store is an in-memory LRU cache with per-entry TTL support.
//
// Expiry is checked lazily on access: an entry past its TTL is treated as a
// miss and removed on the spot. The background sweep only reclaims memory for
// entries nobody reads again.
type Store struct {
	lru        *lru.Cache[string, *entry]
	defaultTTL time.Duration
	mu         sync.Mutex

	totalHits uint64
	misses    uint64
	evictions uint64
	skipEvict bool // suppresses the eviction counter during Remove/Purge

	now       func() time.Time
	done      chan struct{}
	closeOnce sync.Once
}

// New creates a new Store holding at most maxSize entries
func New(maxSize int, defaultTTL time.Duration) (*Store, error) {
	if maxSize <= 0 {
		return nil, errors.New("cache size must be positive")
	}
	if defaultTTL <= 0 {
		return nil, errors.New("cache TTL must be positive")
	}

	s := &Store{
		defaultTTL: defaultTTL,
		now:        time.Now,
		done:       make(chan struct{}),
	}

	c, err := lru.NewWithEvict[string, *entry](maxSize, func(string, *entry) {
		// Invoked while s.mu is held: all lru mutations go through Store methods
		if !s.skipEvict {
			s.evictions++
		}
	})
	if err != nil {
		return nil, err
	}
	s.lru = c

	go s.sweepLoop()

	return s, nil
}

// Get retrieves a value from the cache.
// A hit bumps the entry's hit count, last-accessed time and LRU recency.
func (s *Store) Get(path string, params map[string]any) (any, bool) {
	key := Key(path, params)

	s.mu.Lock()
	defer s.mu.Unlock()

	e, ok := s.lru.Get(key)
	if !ok {
		s.misses++
		return nil, false
	}

	if !s.now().Before(e.expiresAt) {
		s.removeLocked(key)
		s.misses++
		return nil, false
	}

	e.hits++
	e.lastAccessed = s.now()
	s.totalHits++
	return e.value, true
}

// Set stores a value in the cache with the default TTL
func (s *Store) Set(path string, value any, params map[string]any) {
	s.SetWithTTL(path, value, params, s.defaultTTL)
}

// SetWithTTL stores a value with a per-entry TTL override.
// A repeated Set for the same key replaces the value, restarts the TTL and
// resets the entry's LRU position.
func (s *Store) SetWithTTL(path string, value any, params map[string]any, ttl time.Duration) {
	if ttl <= 0 {
		ttl = s.defaultTTL
	}
	key := Key(path, params)

	s.mu.Lock()
	defer s.mu.Unlock()

	now := s.now()
	s.lru.Add(key, &entry{
		value:        value,
		expiresAt:    now.Add(ttl),
		lastAccessed: now,
	})
}

// Has reports whether a live entry exists.
// Unlike Get it does not touch recency or hit counts (lru Peek).
func (s *Store) Has(path string, params map[string]any) bool {
	key := Key(path, params)

	s.mu.Lock()
	defer s.mu.Unlock()

	e, ok := s.lru.Peek(key)
	if !ok {
		return false
	}
	if !s.now().Before(e.expiresAt) {
		s.removeLocked(key)
		return false
	}
	return true
}

// Stats returns a diagnostics snapshot
func (s *Store) Stats() Stats {
	s.mu.Lock()
	defer s.mu.Unlock()

	return Stats{
		Size:      s.lru.Len(),
		TotalHits: s.totalHits,
		Misses:    s.misses,
		Evictions: s.evictions,
	}
}

// Clear removes all entries unconditionally. Counters are preserved.
func (s *Store) Clear() {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.skipEvict = true
	s.lru.Purge()
	s.skipEvict = false
}

// Close stops the background sweep goroutine
func (s *Store) Close() {
	s.closeOnce.Do(func() {
		close(s.done)
	})
}

// removeLocked removes an expired entry without counting it as an LRU eviction
func (s *Store) removeLocked(key string) {
	s.skipEvict = true
	s.lru.Remove(key)
	s.skipEvict = false
}

// sweepLoop periodically removes expired entries
func (s *Store) sweepLoop() {
	ticker := time.NewTicker(s.defaultTTL / 2)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			s.removeExpired()
		case <-s.done:
			return
		}
	}
}

// removeExpired removes all expired entries from the cache
func (s *Store) removeExpired() {
	s.mu.Lock()
	defer s.mu.Unlock()

	now := s.now()
	for _, key := range s.lru.Keys() {
		e, ok := s.lru.Peek(key)
		if ok && !now.Before(e.expiresAt) {
			s.removeLocked(key)
		}
	}
}

// NoopCache is a cache that does nothing (used when caching is disabled)
type NoopCache struct{}

// NewNoopCache creates a new no-op cache
func NewNoopCache() *NoopCache {
	return &NoopCache{}
}

// Get always returns not found
func (nc *NoopCache) Get(path string, params map[string]any) (any, bool) {
	return nil, false
}

// Set does nothing
func (nc *NoopCache) Set(path string, value any, params map[string]any) {}

// SetWithTTL does nothing
func (nc *NoopCache) SetWithTTL(path string, value any, params map[string]any, ttl time.Duration) {
}

// Has always returns false
func (nc *NoopCache) Has(path string, params map[string]any) bool {
	return false
}

// Stats returns an empty snapshot
func (nc *NoopCache) Stats() Stats {
	return Stats{}
}

// Clear does nothing
func (nc *NoopCache) Clear() {}

// Close does nothing
func (nc *NoopCache) Close() {}
