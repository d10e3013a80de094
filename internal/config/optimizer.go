// Optimizer configuration - header and compression rules.
package config

import (
	"fmt"
	"time"
)

// OptimizerConfig contains the header/compression knobs for the
// optimization middleware. Every field has a default; an empty section
// is valid.
type OptimizerConfig struct {
	// CompressionThreshold is the minimum body size (bytes) before SSR
	// responses are gzipped.
	CompressionThreshold int `yaml:"compression_threshold"`

	// CacheControl is the default Cache-Control applied when no path
	// rule matches.
	CacheControl string `yaml:"cache_control"`

	// APIVersion is advertised in X-API-Version on API responses.
	APIVersion string `yaml:"api_version"`

	// SlowRequestThreshold triggers X-Performance-Warning and a warning
	// log when a request takes longer.
	SlowRequestThreshold time.Duration `yaml:"slow_request_threshold"`
}

func (o *OptimizerConfig) applyDefaults() {
	if o.CompressionThreshold == 0 {
		o.CompressionThreshold = DefaultCompressionThreshold
	}
	if o.CacheControl == "" {
		o.CacheControl = DefaultCacheControl
	}
	if o.APIVersion == "" {
		o.APIVersion = DefaultAPIVersion
	}
	if o.SlowRequestThreshold == 0 {
		o.SlowRequestThreshold = DefaultSlowRequestThreshold
	}
}

// Validate checks optimizer settings.
func (o *OptimizerConfig) Validate() error {
	if o.CompressionThreshold < 0 {
		return fmt.Errorf("optimizer.compression_threshold must not be negative")
	}
	if o.SlowRequestThreshold < 0 {
		return fmt.Errorf("optimizer.slow_request_threshold must not be negative")
	}
	return nil
}
