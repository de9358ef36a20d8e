// Package dedup collapses concurrent calls for the same logical operation
// into a single execution whose result (or error) is shared by every caller.
//
// Deduplication only affects concurrent callers: the bookkeeping entry for a
// key is dropped before its result is released, so a call issued after the
// previous one settled always starts fresh work.
package dedup

import (
	"sync"
	"time"

	"github.com/rs/zerolog"
)

// Default values
const (
	DefaultMaxAge        = 30 * time.Second
	DefaultSweepInterval = 10 * time.Second
)

// call is a single in-flight operation shared by all concurrent callers
type call struct {
	done      chan struct{}
	val       any
	err       error
	createdAt time.Time
}

// Flight tracks in-flight operations by key
type Flight struct {
	mu    sync.Mutex
	calls map[string]*call

	maxAge   time.Duration
	logger   zerolog.Logger
	now      func() time.Time
	done     chan struct{}
	stopOnce sync.Once
}

// New creates a Flight. Pending entries older than maxAge are reclaimed by a
// background sweep every sweepInterval, so a hung operation cannot block its
// key forever. Non-positive values fall back to the defaults.
func New(maxAge, sweepInterval time.Duration, logger zerolog.Logger) *Flight {
	if maxAge <= 0 {
		maxAge = DefaultMaxAge
	}
	if sweepInterval <= 0 {
		sweepInterval = DefaultSweepInterval
	}

	f := &Flight{
		calls:  make(map[string]*call),
		maxAge: maxAge,
		logger: logger.With().Str("component", "dedup").Logger(),
		now:    time.Now,
		done:   make(chan struct{}),
	}

	go f.sweepLoop(sweepInterval)

	return f
}

// Do executes fn under key, unless an operation for the same key is already
// in flight, in which case the caller blocks and receives that operation's
// result or error verbatim.
func (f *Flight) Do(key string, fn func() (any, error)) (any, error) {
	f.mu.Lock()
	if c, ok := f.calls[key]; ok {
		f.mu.Unlock()
		<-c.done
		return c.val, c.err
	}

	c := &call{
		done:      make(chan struct{}),
		createdAt: f.now(),
	}
	f.calls[key] = c
	f.mu.Unlock()

	c.val, c.err = fn()

	f.mu.Lock()
	// The sweep may have reclaimed the key and a new call taken its place;
	// only remove our own entry
	if f.calls[key] == c {
		delete(f.calls, key)
	}
	f.mu.Unlock()

	// The entry is gone before any waiter observes settlement, so a caller
	// chaining a follow-up Do always starts fresh work
	close(c.done)

	return c.val, c.err
}

// PendingCount returns the number of in-flight, not yet settled keys
func (f *Flight) PendingCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.calls)
}

// Stop tears down the sweep goroutine and clears bookkeeping.
// Waiters of still-running operations are unaffected.
func (f *Flight) Stop() {
	f.stopOnce.Do(func() {
		close(f.done)
	})

	f.mu.Lock()
	f.calls = make(map[string]*call)
	f.mu.Unlock()
}

// sweepLoop periodically reclaims keys whose operation never settled
func (f *Flight) sweepLoop(interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			f.removeStale()
		case <-f.done:
			return
		}
	}
}

// removeStale drops pending entries older than maxAge. The underlying
// operation keeps running; only its key becomes available for new work,
// which may race with the original hung call.
func (f *Flight) removeStale() {
	f.mu.Lock()
	defer f.mu.Unlock()

	now := f.now()
	for key, c := range f.calls {
		if now.Sub(c.createdAt) > f.maxAge {
			delete(f.calls, key)
			f.logger.Warn().
				Str("key", key).
				Dur("age", now.Sub(c.createdAt)).
				Msg("reclaimed stale in-flight key")
		}
	}
}
