package config

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/url"
	"os"
	"strings"
)

// Load reads and parses the configuration file
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}

	cfg := &Config{}
	if err := json.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config: %w", err)
	}

	applyDefaults(cfg)

	if err := validate(cfg); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}

	return cfg, nil
}

// applyDefaults sets default values for unset fields
func applyDefaults(cfg *Config) {
	if cfg.Host == "" {
		cfg.Host = DefaultHost
	}
	if cfg.Port == 0 {
		cfg.Port = DefaultPort
	}
	if cfg.LogLevel == "" {
		cfg.LogLevel = DefaultLogLevel
	}
	if cfg.RequestTimeout == 0 {
		cfg.RequestTimeout = DefaultRequestTimeout
	}

	if cfg.Upstream.Retry == nil {
		cfg.Upstream.Retry = &RetryConfig{Enabled: DefaultRetryEnabled}
	}
	if cfg.Upstream.Retry.MaxAttempts == 0 {
		cfg.Upstream.Retry.MaxAttempts = DefaultRetryMaxAttempts
	}
	if cfg.Upstream.Retry.BaseDelay == 0 {
		cfg.Upstream.Retry.BaseDelay = DefaultRetryBaseDelay
	}
	if cfg.Upstream.Retry.MaxDelay == 0 {
		cfg.Upstream.Retry.MaxDelay = DefaultRetryMaxDelay
	}

	if cfg.Cache != nil {
		if cfg.Cache.Size == 0 {
			cfg.Cache.Size = DefaultCacheSize
		}
		if cfg.Cache.TTL == 0 {
			cfg.Cache.TTL = DefaultCacheTTL
		}
	}

	if cfg.Dedup != nil {
		if cfg.Dedup.MaxAge == 0 {
			cfg.Dedup.MaxAge = DefaultDedupMaxAge
		}
		if cfg.Dedup.SweepInterval == 0 {
			cfg.Dedup.SweepInterval = DefaultDedupSweepInterval
		}
	}

	if cfg.Batching != nil {
		if cfg.Batching.MaxSize == 0 {
			cfg.Batching.MaxSize = DefaultBatchMaxSize
		}
		if cfg.Batching.MaxWait == 0 {
			cfg.Batching.MaxWait = DefaultBatchMaxWait
		}
	}
}

// validate checks the configuration for errors
func validate(cfg *Config) error {
	if cfg.Port < 1 || cfg.Port > 65535 {
		return errors.New("port must be between 1 and 65535")
	}

	validLogLevels := map[string]bool{
		"debug": true,
		"info":  true,
		"warn":  true,
		"error": true,
	}
	if !validLogLevels[cfg.LogLevel] {
		return errors.New("logLevel must be one of: debug, info, warn, error")
	}

	if cfg.RequestTimeout < 0 {
		return errors.New("requestTimeout must be non-negative")
	}

	if cfg.Upstream.BaseURL == "" {
		return errors.New("upstream.baseUrl is required")
	}
	u, err := url.Parse(cfg.Upstream.BaseURL)
	if err != nil || u.Scheme == "" || u.Host == "" {
		return fmt.Errorf("upstream.baseUrl '%s' is not a valid absolute URL", cfg.Upstream.BaseURL)
	}

	if cfg.Upstream.Retry.MaxAttempts < 0 {
		return errors.New("upstream.retry.maxAttempts must be non-negative")
	}
	if cfg.Upstream.Retry.BaseDelay < 0 || cfg.Upstream.Retry.MaxDelay < 0 {
		return errors.New("upstream.retry delays must be non-negative")
	}

	if cfg.Cache != nil && cfg.Cache.Enabled {
		if cfg.Cache.TTL <= 0 {
			return errors.New("cache.ttl must be positive when cache is enabled")
		}
		if cfg.Cache.Size <= 0 {
			return errors.New("cache.size must be positive when cache is enabled")
		}
	}

	if cfg.Dedup != nil && cfg.Dedup.Enabled {
		if cfg.Dedup.MaxAge <= 0 {
			return errors.New("dedup.maxAge must be positive when dedup is enabled")
		}
		if cfg.Dedup.SweepInterval <= 0 {
			return errors.New("dedup.sweepInterval must be positive when dedup is enabled")
		}
	}

	if cfg.Batching != nil && cfg.Batching.Enabled {
		if cfg.Batching.MaxSize <= 0 {
			return errors.New("batching.maxSize must be positive when batching is enabled")
		}
		if cfg.Batching.MaxWait <= 0 {
			return errors.New("batching.maxWait must be positive when batching is enabled")
		}
		if len(cfg.Batching.Endpoints) == 0 {
			return errors.New("batching.endpoints is required when batching is enabled")
		}
		for key, ep := range cfg.Batching.Endpoints {
			if _, _, err := SplitBatchKey(key); err != nil {
				return fmt.Errorf("batching.endpoints: %w", err)
			}
			if ep.Param == "" {
				return fmt.Errorf("batching.endpoints['%s']: param is required", key)
			}
		}
	}

	return nil
}

// SplitBatchKey splits a "METHOD:path" batch key into its parts
func SplitBatchKey(key string) (method, path string, err error) {
	method, path, ok := strings.Cut(key, ":")
	if !ok || method == "" || !strings.HasPrefix(path, "/") {
		return "", "", fmt.Errorf("batch key '%s' must have the form 'METHOD:/path'", key)
	}
	return method, path, nil
}
