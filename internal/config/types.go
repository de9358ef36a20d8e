package config

import "time"

// Config represents the main configuration structure
type Config struct {
	Host           string          `json:"host"`
	Port           int             `json:"port"`
	LogLevel       string          `json:"logLevel"`
	RequestTimeout int             `json:"requestTimeout"` // ms - timeout for a single upstream request
	Upstream       UpstreamConfig  `json:"upstream"`
	Cache          *CacheConfig    `json:"cache,omitempty"`
	Dedup          *DedupConfig    `json:"dedup,omitempty"`
	Batching       *BatchingConfig `json:"batching,omitempty"`
}

// UpstreamConfig represents the origin API the proxy forwards to
type UpstreamConfig struct {
	BaseURL string            `json:"baseUrl"`
	Headers map[string]string `json:"headers,omitempty"` // sent with every upstream request (e.g. Authorization)
	Retry   *RetryConfig      `json:"retry,omitempty"`
}

// RetryConfig represents upstream retry behaviour
type RetryConfig struct {
	Enabled     bool `json:"enabled"`
	MaxAttempts int  `json:"maxAttempts"`
	BaseDelay   int  `json:"baseDelay"` // ms - first backoff delay, doubled per attempt
	MaxDelay    int  `json:"maxDelay"`  // ms - backoff ceiling
}

// CacheConfig represents response cache configuration
type CacheConfig struct {
	Enabled       bool     `json:"enabled"`
	Size          int      `json:"size"`          // number of entries
	TTL           int      `json:"ttl"`           // seconds
	DisabledPaths []string `json:"disabledPaths"` // resource paths to exclude from caching
}

// DedupConfig represents in-flight request deduplication configuration
type DedupConfig struct {
	Enabled       bool `json:"enabled"`
	MaxAge        int  `json:"maxAge"`        // ms - max age of a pending entry before defensive sweep
	SweepInterval int  `json:"sweepInterval"` // ms - interval between sweeps
}

// BatchingConfig represents request batching configuration
type BatchingConfig struct {
	Enabled   bool                           `json:"enabled"`
	MaxSize   int                            `json:"maxSize"` // flush as soon as a queue reaches this many items
	MaxWait   int                            `json:"maxWait"` // ms - flush this long after a queue's first item
	Endpoints map[string]BatchEndpointConfig `json:"endpoints"`
}

// BatchEndpointConfig describes one batchable endpoint.
// The map key is the batch key in "METHOD:path" form, e.g. "GET:/api/0/issues".
type BatchEndpointConfig struct {
	Param string `json:"param"` // query parameter holding the unit key, repeated in the batched request
}

// Default values
const (
	DefaultHost           = "localhost"
	DefaultPort           = 8545
	DefaultLogLevel       = "info"
	DefaultRequestTimeout = 5000 // ms

	DefaultRetryEnabled     = true
	DefaultRetryMaxAttempts = 3
	DefaultRetryBaseDelay   = 200  // ms
	DefaultRetryMaxDelay    = 3000 // ms

	DefaultCacheSize = 1000
	DefaultCacheTTL  = 60 // seconds

	DefaultDedupMaxAge        = 30000 // ms
	DefaultDedupSweepInterval = 10000 // ms

	DefaultBatchMaxSize = 10
	DefaultBatchMaxWait = 50 // ms
)

// GetRequestTimeoutDuration returns request timeout as time.Duration
func (c *Config) GetRequestTimeoutDuration() time.Duration {
	return time.Duration(c.RequestTimeout) * time.Millisecond
}

// IsCacheEnabled returns true if the cache is configured and enabled
func (c *Config) IsCacheEnabled() bool {
	return c.Cache != nil && c.Cache.Enabled
}

// IsDedupEnabled returns true if deduplication is configured and enabled
func (c *Config) IsDedupEnabled() bool {
	return c.Dedup != nil && c.Dedup.Enabled
}

// IsBatchingEnabled returns true if batching is configured and enabled
func (c *Config) IsBatchingEnabled() bool {
	return c.Batching != nil && c.Batching.Enabled && len(c.Batching.Endpoints) > 0
}

// GetTTLDuration returns the cache TTL as time.Duration
func (c *CacheConfig) GetTTLDuration() time.Duration {
	return time.Duration(c.TTL) * time.Second
}

// GetMaxAgeDuration returns the dedup max age as time.Duration
func (c *DedupConfig) GetMaxAgeDuration() time.Duration {
	return time.Duration(c.MaxAge) * time.Millisecond
}

// GetSweepIntervalDuration returns the dedup sweep interval as time.Duration
func (c *DedupConfig) GetSweepIntervalDuration() time.Duration {
	return time.Duration(c.SweepInterval) * time.Millisecond
}

// GetMaxWaitDuration returns the batch wait window as time.Duration
func (c *BatchingConfig) GetMaxWaitDuration() time.Duration {
	return time.Duration(c.MaxWait) * time.Millisecond
}

// GetBaseDelayDuration returns the first backoff delay as time.Duration
func (c *RetryConfig) GetBaseDelayDuration() time.Duration {
	return time.Duration(c.BaseDelay) * time.Millisecond
}

// GetMaxDelayDuration returns the backoff ceiling as time.Duration
func (c *RetryConfig) GetMaxDelayDuration() time.Duration {
	return time.Duration(c.MaxDelay) * time.Millisecond
}
