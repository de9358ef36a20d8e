// Package batcher coalesces independent unit requests issued within a short
// time window (or up to a size limit) into one call to a registered
// processor function.
//
// Each registered batch key (by convention "METHOD:path") owns an
// independent queue. A queue flushes when it reaches maxBatchSize or when
// maxWait elapses after its first item, whichever happens first. A burst
// larger than maxBatchSize drains in sequential chunks, none exceeding the
// limit.
package batcher

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/rs/zerolog"
)

// Default values
const (
	DefaultMaxBatchSize = 10
	DefaultMaxWait      = 50 * time.Millisecond
)

// Batcher aggregates unit requests into batched processor calls
type Batcher struct {
	maxBatchSize int
	maxWait      time.Duration

	mu     sync.Mutex
	procs  map[string]Processor
	queues map[string]*queue

	logger zerolog.Logger
}

// New creates a Batcher. Non-positive limits fall back to the defaults.
func New(maxBatchSize int, maxWait time.Duration, logger zerolog.Logger) *Batcher {
	if maxBatchSize <= 0 {
		maxBatchSize = DefaultMaxBatchSize
	}
	if maxWait <= 0 {
		maxWait = DefaultMaxWait
	}

	return &Batcher{
		maxBatchSize: maxBatchSize,
		maxWait:      maxWait,
		procs:        make(map[string]Processor),
		queues:       make(map[string]*queue),
		logger:       logger.With().Str("component", "batcher").Logger(),
	}
}

// RegisterProcessor associates a flush handler with a batch key
func (b *Batcher) RegisterProcessor(batchKey string, proc Processor) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.procs[batchKey] = proc
}

// Batch enqueues itemKey under the given batch key and blocks until the
// item's slot in a later batch result settles. The batch key must have been
// registered; callers pass it explicitly rather than having it inferred from
// the item key.
//
// ctx only bounds the caller's wait: a cancelled caller abandons its slot,
// the batch itself still flushes.
func (b *Batcher) Batch(ctx context.Context, batchKey, itemKey string) (any, error) {
	b.mu.Lock()

	proc, ok := b.procs[batchKey]
	if !ok {
		b.mu.Unlock()
		return nil, fmt.Errorf("no processor registered for batch key '%s'", batchKey)
	}

	q := b.queues[batchKey]
	if q == nil {
		q = &queue{}
		b.queues[batchKey] = q
	}

	it := &item{
		key: itemKey,
		ch:  make(chan result, 1),
	}
	q.items = append(q.items, it)

	if len(q.items) >= b.maxBatchSize {
		items := q.detach()
		b.mu.Unlock()
		go b.process(context.Background(), batchKey, proc, items)
	} else {
		// Arm the wait timer on the first item of an empty queue
		if q.timer == nil {
			q.timer = time.AfterFunc(b.maxWait, func() {
				b.flush(batchKey)
			})
		}
		b.mu.Unlock()
	}

	select {
	case r := <-it.ch:
		return r.val, r.err
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}

// flush drains the queue for batchKey when its wait timer fires
func (b *Batcher) flush(batchKey string) {
	b.mu.Lock()
	q := b.queues[batchKey]
	if q == nil || len(q.items) == 0 {
		b.mu.Unlock()
		return
	}
	proc := b.procs[batchKey]
	items := q.detach()
	b.mu.Unlock()

	b.process(context.Background(), batchKey, proc, items)
}

// process invokes the processor in sequential chunks of at most maxBatchSize
// and distributes per-item results. Runs outside the batcher lock.
func (b *Batcher) process(ctx context.Context, batchKey string, proc Processor, items []*item) {
	for start := 0; start < len(items); start += b.maxBatchSize {
		end := start + b.maxBatchSize
		if end > len(items) {
			end = len(items)
		}
		chunk := items[start:end]

		keys := make([]string, len(chunk))
		for i, it := range chunk {
			keys[i] = it.key
		}

		b.logger.Debug().
			Str("batchKey", batchKey).
			Int("items", len(keys)).
			Msg("executing batch")

		results, err := proc(ctx, keys)
		if err != nil {
			for _, it := range chunk {
				it.ch <- result{err: err}
			}
			continue
		}

		if len(results) != len(keys) {
			b.logger.Error().
				Str("batchKey", batchKey).
				Int("expected", len(keys)).
				Int("got", len(results)).
				Msg("batch result size mismatch")

			mismatch := fmt.Errorf("batch result size mismatch: expected %d, got %d", len(keys), len(results))
			for _, it := range chunk {
				it.ch <- result{err: mismatch}
			}
			continue
		}

		for i, it := range chunk {
			it.ch <- result{val: results[i]}
		}
	}
}

// PendingCount returns the number of queued, not yet flushed items
func (b *Batcher) PendingCount() int {
	b.mu.Lock()
	defer b.mu.Unlock()

	count := 0
	for _, q := range b.queues {
		count += len(q.items)
	}
	return count
}

// Clear discards all pending queues without settling their items.
// Teardown/test path only: callers blocked in Batch stay blocked until their
// context expires.
func (b *Batcher) Clear() {
	b.mu.Lock()
	defer b.mu.Unlock()

	for _, q := range b.queues {
		if q.timer != nil {
			q.timer.Stop()
			q.timer = nil
		}
	}
	b.queues = make(map[string]*queue)
}

// Close stops all timers and flushes pending batches (graceful shutdown)
func (b *Batcher) Close(ctx context.Context) {
	b.mu.Lock()
	type pending struct {
		batchKey string
		proc     Processor
		items    []*item
	}
	var drained []pending
	for key, q := range b.queues {
		if len(q.items) == 0 {
			q.detach()
			continue
		}
		drained = append(drained, pending{batchKey: key, proc: b.procs[key], items: q.detach()})
	}
	b.queues = make(map[string]*queue)
	b.mu.Unlock()

	for _, p := range drained {
		b.process(ctx, p.batchKey, p.proc, p.items)
	}

	b.logger.Info().Msg("batcher closed")
}
