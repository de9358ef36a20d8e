package batcher

import (
	"context"
	"time"
)

// Processor executes one flushed batch. It receives the item keys collected
// since the last flush, in submission order, and must return one result per
// key in the same order. An error fails every item of the batch.
type Processor func(ctx context.Context, itemKeys []string) ([]any, error)

// result is delivered on an item's channel when its batch settles
type result struct {
	val any
	err error
}

// item represents a single request waiting in a queue
type item struct {
	key string
	ch  chan result // buffered (1), settled exactly once
}

// queue accumulates items for a single registered batch key.
// All mutation happens under the owning Batcher's lock.
type queue struct {
	items []*item
	timer *time.Timer
}

// detach takes the queued items and disarms the flush timer.
// Items added afterwards belong to the next batch.
func (q *queue) detach() []*item {
	if q.timer != nil {
		q.timer.Stop()
		q.timer = nil
	}

	items := q.items
	q.items = nil
	return items
}
