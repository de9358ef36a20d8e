// Package fetch composes the cache, dedup and batcher layers around plain
// load functions. The wrappers are higher-order functions: they take an
// async-style Func plus configuration and return a wrapped Func, so any
// loader can be optimized without the components knowing about transports.
package fetch

import (
	"context"
	"time"

	"reqflow/internal/cache"
	"reqflow/internal/dedup"
)

// Func loads a value. It is the unit every wrapper accepts and returns.
type Func func(ctx context.Context) (any, error)

// Cached wraps fn with a cache lookup before and a cache fill after the
// load. A ttl of zero uses the store's default.
func Cached(store cache.Cache, path string, params map[string]any, ttl time.Duration, fn Func) Func {
	return func(ctx context.Context) (any, error) {
		if v, ok := store.Get(path, params); ok {
			return v, nil
		}

		v, err := fn(ctx)
		if err != nil {
			return nil, err
		}

		if ttl > 0 {
			store.SetWithTTL(path, v, params, ttl)
		} else {
			store.Set(path, v, params)
		}
		return v, nil
	}
}

// Deduplicated wraps fn so that concurrent invocations sharing key collapse
// into a single execution of fn.
func Deduplicated(flight *dedup.Flight, key string, fn Func) Func {
	return func(ctx context.Context) (any, error) {
		return flight.Do(key, func() (any, error) {
			return fn(ctx)
		})
	}
}

// Optimizer runs loads through the canonical cache -> dedup -> loader flow.
// Nil components are skipped, so each layer stays independently usable.
type Optimizer struct {
	Cache  cache.Cache
	Flight *dedup.Flight

	// TTL overrides the cache's default for entries written by Fetch.
	// Zero means use the default.
	TTL time.Duration
}

// Fetch returns the cached value for path+params when present; otherwise it
// runs loader (deduplicated against concurrent fetches of the same resource)
// and caches the result.
func (o *Optimizer) Fetch(ctx context.Context, path string, params map[string]any, loader Func) (any, error) {
	fn := loader
	if o.Flight != nil {
		fn = Deduplicated(o.Flight, cache.Key(path, params), fn)
	}
	if o.Cache != nil {
		fn = Cached(o.Cache, path, params, o.TTL, fn)
	}
	return fn(ctx)
}
