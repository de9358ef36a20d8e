// Package proxy implements the HTTP passthrough handler. Every GET is run
// through the cache / dedup / batch pipeline before (possibly) reaching the
// origin API.
package proxy

import (
	"encoding/json"
	"errors"
	"net/http"
	"net/url"

	"github.com/rs/zerolog"

	"reqflow/internal/batcher"
	"reqflow/internal/cache"
	"reqflow/internal/config"
	"reqflow/internal/dedup"
	"reqflow/internal/upstream"
)

// Handler handles HTTP requests to the proxy
type Handler struct {
	cache          cache.Cache
	flight         *dedup.Flight
	batcher        *batcher.Batcher
	client         *upstream.Client
	batchEndpoints map[string]config.BatchEndpointConfig // batch key -> endpoint config
	disabledPaths  map[string]bool
	logger         zerolog.Logger
}

// NewHandler creates a new Handler
func NewHandler(c cache.Cache, flight *dedup.Flight, b *batcher.Batcher, client *upstream.Client, cfg *config.Config, logger zerolog.Logger) *Handler {
	disabled := make(map[string]bool)
	if cfg.Cache != nil {
		for _, path := range cfg.Cache.DisabledPaths {
			disabled[path] = true
		}
	}

	endpoints := make(map[string]config.BatchEndpointConfig)
	if cfg.IsBatchingEnabled() {
		for key, ep := range cfg.Batching.Endpoints {
			endpoints[key] = ep
		}
	}

	return &Handler{
		cache:          c,
		flight:         flight,
		batcher:        b,
		client:         client,
		batchEndpoints: endpoints,
		disabledPaths:  disabled,
		logger:         logger.With().Str("component", "proxy").Logger(),
	}
}

// ServeHTTP handles HTTP requests
func (h *Handler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		h.writeError(w, http.StatusMethodNotAllowed, "method not allowed")
		return
	}

	path := r.URL.Path
	query := r.URL.Query()
	params := paramsFromQuery(query)
	cacheable := !h.disabledPaths[path]

	// Check cache first
	if cacheable {
		if value, ok := h.cache.Get(path, params); ok {
			h.logger.Debug().
				Str("path", path).
				Msg("cache hit")
			w.Header().Set("X-Cache", "HIT")
			h.writeValue(w, value)
			return
		}
	}

	load := func() (any, error) {
		return h.fetchOrigin(r, path, query)
	}

	var value any
	var err error
	if h.flight != nil {
		// Concurrent requests for the same resource share one origin call
		value, err = h.flight.Do(r.Method+":"+cache.Key(path, params), load)
	} else {
		value, err = load()
	}
	if err != nil {
		h.writeUpstreamError(w, path, err)
		return
	}

	if cacheable {
		h.cache.Set(path, value, params)
	}

	w.Header().Set("X-Cache", "MISS")
	h.writeValue(w, value)
}

// fetchOrigin fetches the resource from the origin API, routing through the
// batcher when the endpoint is configured for batching and the request
// carries exactly one value of the aggregate param.
func (h *Handler) fetchOrigin(r *http.Request, path string, query url.Values) (any, error) {
	batchKey := r.Method + ":" + path
	if ep, ok := h.batchEndpoints[batchKey]; ok && h.batcher != nil {
		if ids := query[ep.Param]; len(ids) == 1 && len(query) == 1 {
			return h.batcher.Batch(r.Context(), batchKey, ids[0])
		}
	}

	return h.client.Get(r.Context(), path, query)
}

// writeValue writes a fetched or cached value as a JSON response
func (h *Handler) writeValue(w http.ResponseWriter, value any) {
	w.Header().Set("Content-Type", "application/json")

	if raw, ok := value.(json.RawMessage); ok {
		w.Write(raw)
		return
	}

	data, err := json.Marshal(value)
	if err != nil {
		h.writeError(w, http.StatusInternalServerError, "failed to encode response")
		return
	}
	w.Write(data)
}

// writeUpstreamError maps an origin failure onto the proxy response
func (h *Handler) writeUpstreamError(w http.ResponseWriter, path string, err error) {
	h.logger.Warn().
		Err(err).
		Str("path", path).
		Msg("origin fetch failed")

	var statusErr *upstream.StatusError
	if errors.As(err, &statusErr) {
		h.writeError(w, statusErr.Code, statusErr.Body)
		return
	}
	h.writeError(w, http.StatusBadGateway, err.Error())
}

// writeError writes a JSON error envelope
func (h *Handler) writeError(w http.ResponseWriter, status int, message string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(map[string]string{"error": message})
}

// paramsFromQuery converts URL query values into cache key params.
// Single-valued params map to their value, repeated params to a slice, so
// the canonical key is stable across value representations.
func paramsFromQuery(query url.Values) map[string]any {
	if len(query) == 0 {
		return nil
	}

	params := make(map[string]any, len(query))
	for k, vs := range query {
		if len(vs) == 1 {
			params[k] = vs[0]
		} else {
			params[k] = vs
		}
	}
	return params
}
