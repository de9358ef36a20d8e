package server

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"time"

	"github.com/rs/zerolog"

	"reqflow/internal/batcher"
	"reqflow/internal/cache"
	"reqflow/internal/config"
	"reqflow/internal/dedup"
	"reqflow/internal/proxy"
	"reqflow/internal/upstream"
)

// Server represents the main server
type Server struct {
	cfg        *config.Config
	cache      cache.Cache
	flight     *dedup.Flight
	batcher    *batcher.Batcher
	client     *upstream.Client
	httpServer *http.Server
	logger     zerolog.Logger
}

// New creates a new Server
func New(cfg *config.Config, logger zerolog.Logger) (*Server, error) {
	client, err := upstream.NewClientFromConfig(cfg, logger)
	if err != nil {
		return nil, fmt.Errorf("failed to create upstream client: %w", err)
	}

	// Create cache based on config
	var respCache cache.Cache
	if cfg.IsCacheEnabled() {
		respCache, err = cache.New(cfg.Cache.Size, cfg.Cache.GetTTLDuration())
		if err != nil {
			return nil, fmt.Errorf("failed to create cache: %w", err)
		}

		if len(cfg.Cache.DisabledPaths) > 0 {
			logger.Info().
				Strs("disabledPaths", cfg.Cache.DisabledPaths).
				Msg("cache disabled for specific paths")
		}

		logger.Info().
			Int("size", cfg.Cache.Size).
			Int("ttl", cfg.Cache.TTL).
			Msg("cache enabled")
	} else {
		respCache = cache.NewNoopCache()
		logger.Info().Msg("cache disabled")
	}

	// Create deduplicator based on config
	var flight *dedup.Flight
	if cfg.IsDedupEnabled() {
		flight = dedup.New(cfg.Dedup.GetMaxAgeDuration(), cfg.Dedup.GetSweepIntervalDuration(), logger)
		logger.Info().
			Int("maxAge", cfg.Dedup.MaxAge).
			Msg("deduplication enabled")
	} else {
		logger.Info().Msg("deduplication disabled")
	}

	// Create batcher based on config
	var batchAgg *batcher.Batcher
	if cfg.IsBatchingEnabled() {
		batchAgg = batcher.New(cfg.Batching.MaxSize, cfg.Batching.GetMaxWaitDuration(), logger)

		endpoints := make([]string, 0, len(cfg.Batching.Endpoints))
		for key, ep := range cfg.Batching.Endpoints {
			registerBatchEndpoint(batchAgg, client, key, ep)
			endpoints = append(endpoints, key)
		}

		logger.Info().
			Strs("endpoints", endpoints).
			Int("maxSize", cfg.Batching.MaxSize).
			Int("maxWait", cfg.Batching.MaxWait).
			Msg("batching enabled")
	} else {
		logger.Info().Msg("batching disabled")
	}

	return &Server{
		cfg:     cfg,
		cache:   respCache,
		flight:  flight,
		batcher: batchAgg,
		client:  client,
		logger:  logger,
	}, nil
}

// registerBatchEndpoint wires one configured endpoint into the batcher: the
// processor issues a single origin GET with the aggregate param repeated per
// item key and expects a same-length, same-order JSON array back.
func registerBatchEndpoint(b *batcher.Batcher, client *upstream.Client, batchKey string, ep config.BatchEndpointConfig) {
	_, path, _ := config.SplitBatchKey(batchKey) // validated at config load

	b.RegisterProcessor(batchKey, func(ctx context.Context, itemKeys []string) ([]any, error) {
		query := url.Values{ep.Param: itemKeys}
		raw, err := client.Get(ctx, path, query)
		if err != nil {
			return nil, err
		}

		var elements []json.RawMessage
		if err := json.Unmarshal(raw, &elements); err != nil {
			return nil, fmt.Errorf("batch response for '%s' is not an array: %w", batchKey, err)
		}

		results := make([]any, len(elements))
		for i, el := range elements {
			results[i] = el
		}
		return results, nil
	})
}

// Start starts the server
func (s *Server) Start() error {
	handler := proxy.NewHandler(s.cache, s.flight, s.batcher, s.client, s.cfg, s.logger)

	addr := fmt.Sprintf("%s:%d", s.cfg.Host, s.cfg.Port)
	s.httpServer = &http.Server{
		Addr:         addr,
		Handler:      handler,
		ReadTimeout:  30 * time.Second,
		WriteTimeout: 30 * time.Second,
		IdleTimeout:  120 * time.Second,
	}

	go func() {
		s.logger.Info().
			Str("addr", addr).
			Str("upstream", s.cfg.Upstream.BaseURL).
			Msg("starting proxy server")
		if err := s.httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			s.logger.Error().Err(err).Msg("proxy server error")
		}
	}()

	return nil
}

// Stop gracefully stops the server
func (s *Server) Stop(ctx context.Context) error {
	s.logger.Info().Msg("shutting down server...")

	var shutdownErr error
	if s.httpServer != nil {
		shutdownErr = s.httpServer.Shutdown(ctx)
	}

	// Flush pending batches before the components below them go away
	if s.batcher != nil {
		s.batcher.Close(ctx)
	}

	if s.flight != nil {
		s.flight.Stop()
	}

	if s.cache != nil {
		s.cache.Close()
	}

	if shutdownErr != nil {
		return fmt.Errorf("server shutdown error: %w", shutdownErr)
	}

	return nil
}
