// Package config - defaults.go centralizes magic numbers and default values.
//
// DESIGN: All default values that appear in multiple places should be
// defined here. This makes configuration more maintainable and auditable.
package config

import "time"

// =============================================================================
// OPTIMIZER DEFAULTS
// =============================================================================

// DefaultCompressionThreshold is the minimum SSR body size, in bytes,
// before gzip kicks in. Smaller bodies cost more to compress than to send.
const DefaultCompressionThreshold = 1024

// DefaultCacheControl is applied when no path rule selects a more
// specific policy.
const DefaultCacheControl = "public, max-age=60"

// DefaultAPIVersion is advertised on API responses.
const DefaultAPIVersion = "0.6.4"

// DefaultSlowRequestThreshold flags requests as slow past this latency.
const DefaultSlowRequestThreshold = time.Second

// =============================================================================
// UPSTREAM AND HISTORY DEFAULTS
// =============================================================================

// DefaultUpstreamTimeout bounds a single proxied request.
// Streaming responses are exempt; they hold the connection open.
const DefaultUpstreamTimeout = 30 * time.Second

// DefaultHistoryRetention is how long request-history rows are kept.
const DefaultHistoryRetention = 7 * 24 * time.Hour

// DefaultHistoryPruneInterval is the frequency of history pruning.
const DefaultHistoryPruneInterval = time.Hour
