package cache

import (
	"testing"
	"time"
)

// testClock lets tests move the store's clock manually
type testClock struct {
	now time.Time
}

func (c *testClock) advance(d time.Duration) {
	c.now = c.now.Add(d)
}

func newTestStore(t *testing.T, size int, ttl time.Duration) (*Store, *testClock) {
	t.Helper()

	s, err := New(size, ttl)
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	t.Cleanup(s.Close)

	clock := &testClock{now: time.Unix(1700000000, 0)}
	s.now = func() time.Time { return clock.now }
	return s, clock
}

func TestStore_SetGet(t *testing.T) {
	s, _ := newTestStore(t, 10, time.Minute)

	s.Set("/issues", "payload", map[string]any{"query": "is:unresolved"})

	v, ok := s.Get("/issues", map[string]any{"query": "is:unresolved"})
	if !ok {
		t.Fatal("expected cache hit")
	}
	if v != "payload" {
		t.Errorf("value = %v, want payload", v)
	}

	if _, ok := s.Get("/issues", map[string]any{"query": "is:resolved"}); ok {
		t.Error("different params should miss")
	}
	if _, ok := s.Get("/events", map[string]any{"query": "is:unresolved"}); ok {
		t.Error("different path should miss")
	}
}

func TestStore_TTLExpiry(t *testing.T) {
	s, clock := newTestStore(t, 10, time.Minute)

	s.SetWithTTL("/issues", "payload", nil, 100*time.Millisecond)

	clock.advance(99 * time.Millisecond)
	if _, ok := s.Get("/issues", nil); !ok {
		t.Fatal("entry expired before its TTL")
	}

	clock.advance(2 * time.Millisecond)
	if _, ok := s.Get("/issues", nil); ok {
		t.Fatal("entry survived past its TTL")
	}

	// The expired read removes the entry
	if got := s.Stats().Size; got != 0 {
		t.Errorf("Size after expired read = %d, want 0", got)
	}
}

func TestStore_SetRefreshesTTL(t *testing.T) {
	s, clock := newTestStore(t, 10, time.Minute)

	s.SetWithTTL("/issues", "v1", nil, 100*time.Millisecond)
	clock.advance(60 * time.Millisecond)
	s.SetWithTTL("/issues", "v2", nil, 100*time.Millisecond)

	// 120ms after the first Set, 60ms after the refresh
	clock.advance(60 * time.Millisecond)
	v, ok := s.Get("/issues", nil)
	if !ok {
		t.Fatal("refreshed entry should still be live")
	}
	if v != "v2" {
		t.Errorf("value = %v, want v2", v)
	}
}

func TestStore_LRUEviction(t *testing.T) {
	s, _ := newTestStore(t, 2, time.Minute)

	s.Set("/a", 1, nil)
	s.Set("/b", 2, nil)

	// Reading A makes it most recently used
	if _, ok := s.Get("/a", nil); !ok {
		t.Fatal("expected hit on /a")
	}

	s.Set("/c", 3, nil)

	if _, ok := s.Get("/b", nil); ok {
		t.Error("/b should have been evicted")
	}
	if _, ok := s.Get("/a", nil); !ok {
		t.Error("/a should have survived")
	}
	if _, ok := s.Get("/c", nil); !ok {
		t.Error("/c should be present")
	}

	if got := s.Stats().Evictions; got != 1 {
		t.Errorf("Evictions = %d, want 1", got)
	}
}

func TestStore_HasDoesNotTouchRecency(t *testing.T) {
	s, _ := newTestStore(t, 2, time.Minute)

	s.Set("/a", 1, nil)
	s.Set("/b", 2, nil)

	if !s.Has("/a", nil) {
		t.Fatal("expected Has(/a) = true")
	}

	// Has did not promote /a, so it is still the LRU entry
	s.Set("/c", 3, nil)

	if _, ok := s.Get("/a", nil); ok {
		t.Error("/a should have been evicted despite the Has check")
	}
	if _, ok := s.Get("/b", nil); !ok {
		t.Error("/b should have survived")
	}

	// Has did not count as a hit either
	if got := s.Stats().TotalHits; got != 1 {
		t.Errorf("TotalHits = %d, want 1", got)
	}
}

func TestStore_HasExpired(t *testing.T) {
	s, clock := newTestStore(t, 10, time.Minute)

	s.SetWithTTL("/a", 1, nil, 50*time.Millisecond)
	clock.advance(51 * time.Millisecond)

	if s.Has("/a", nil) {
		t.Error("Has should treat an expired entry as absent")
	}
	if got := s.Stats().Size; got != 0 {
		t.Errorf("Size = %d, want 0", got)
	}
}

func TestStore_HitCounting(t *testing.T) {
	s, _ := newTestStore(t, 10, time.Minute)

	s.Set("/issues", "payload", nil)
	for i := 0; i < 3; i++ {
		if _, ok := s.Get("/issues", nil); !ok {
			t.Fatalf("get %d missed", i)
		}
	}

	stats := s.Stats()
	if stats.TotalHits != 3 {
		t.Errorf("TotalHits = %d, want 3", stats.TotalHits)
	}
	if stats.Misses != 0 {
		t.Errorf("Misses = %d, want 0", stats.Misses)
	}

	s.Get("/missing", nil)
	if got := s.Stats().Misses; got != 1 {
		t.Errorf("Misses = %d, want 1", got)
	}
}

func TestStore_Clear(t *testing.T) {
	s, _ := newTestStore(t, 10, time.Minute)

	s.Set("/a", 1, nil)
	s.Set("/b", 2, nil)
	s.Get("/a", nil)

	s.Clear()

	if got := s.Stats().Size; got != 0 {
		t.Errorf("Size = %d, want 0", got)
	}
	if _, ok := s.Get("/a", nil); ok {
		t.Error("cleared entry should miss")
	}
	// Clear does not count as eviction and preserves hit counters
	stats := s.Stats()
	if stats.Evictions != 0 {
		t.Errorf("Evictions = %d, want 0", stats.Evictions)
	}
	if stats.TotalHits != 1 {
		t.Errorf("TotalHits = %d, want 1", stats.TotalHits)
	}
}

func TestStore_RemoveExpiredSweep(t *testing.T) {
	s, clock := newTestStore(t, 10, time.Minute)

	s.SetWithTTL("/a", 1, nil, 10*time.Millisecond)
	s.SetWithTTL("/b", 2, nil, 10*time.Millisecond)
	s.SetWithTTL("/c", 3, nil, time.Hour)

	clock.advance(20 * time.Millisecond)
	s.removeExpired()

	if got := s.Stats().Size; got != 1 {
		t.Errorf("Size after sweep = %d, want 1", got)
	}
	if _, ok := s.Get("/c", nil); !ok {
		t.Error("unexpired entry should survive the sweep")
	}
}

func TestStore_InvalidConfig(t *testing.T) {
	if _, err := New(0, time.Minute); err == nil {
		t.Error("expected error for zero size")
	}
	if _, err := New(10, 0); err == nil {
		t.Error("expected error for zero TTL")
	}
}

func TestNoopCache(t *testing.T) {
	nc := NewNoopCache()
	nc.Set("/a", 1, nil)
	if _, ok := nc.Get("/a", nil); ok {
		t.Error("noop cache should never hit")
	}
	if nc.Has("/a", nil) {
		t.Error("noop cache should never report entries")
	}
	nc.Clear()
	nc.Close()
}
