// Package monitoring - types.go defines shared types.
//
// DESIGN: These types are used by both gateway/ and monitoring/ packages.
// Defined here ONCE to avoid duplication and circular imports.
//
// TYPES:
//   - TrafficClass:  Identifies how the classifier tagged a request
//   - RequestEvent:  Telemetry data for each request
//   - Config types:  TelemetryConfig, LoggerConfig, AlertConfig
package monitoring

import "time"

// =============================================================================
// TRAFFIC CLASSES - Used by the optimizer and telemetry
// =============================================================================

// TrafficClass identifies the classification outcome for a request.
type TrafficClass string

const (
	ClassPlain     TrafficClass = "plain"
	ClassSSR       TrafficClass = "ssr"
	ClassAPI       TrafficClass = "api"
	ClassStreaming TrafficClass = "streaming"
)

// =============================================================================
// EVENT TYPES - Structured data for telemetry recording
// =============================================================================

// RequestEvent captures a request through the gateway.
type RequestEvent struct {
	RequestID        string       `json:"request_id"`
	Timestamp        time.Time    `json:"timestamp"`
	Method           string       `json:"method"`
	Path             string       `json:"path"`
	ClientIP         string       `json:"client_ip"`
	Class            TrafficClass `json:"class"`
	SSR              bool         `json:"ssr"`
	API              bool         `json:"api"`
	Streaming        bool         `json:"streaming"`
	StatusCode       int          `json:"status_code"`
	CacheStatus      string       `json:"cache_status,omitempty"` // HIT or MISS
	ResponseBodySize int          `json:"response_body_size"`
	Compressed       bool         `json:"compressed"`
	BytesSaved       int          `json:"bytes_saved,omitempty"`
	Success          bool         `json:"success"`
	Error            string       `json:"error,omitempty"`
	UpstreamLatencyMs int64       `json:"upstream_latency_ms"`
	TotalLatencyMs    int64       `json:"total_latency_ms"`

	// Headers is only populated in verbose mode. The tracker strips
	// credential-bearing keys before the event reaches disk.
	Headers map[string]string `json:"headers,omitempty"`
}

// InitEvent captures gateway startup configuration.
type InitEvent struct {
	Timestamp            time.Time `json:"timestamp"`
	Event                string    `json:"event"`
	ServerPort           int       `json:"server_port"`
	ServerReadTimeoutMs  int64     `json:"server_read_timeout_ms"`
	ServerWriteTimeoutMs int64     `json:"server_write_timeout_ms"`
	UpstreamURL          string    `json:"upstream_url,omitempty"`
	CompressionThreshold int       `json:"compression_threshold"`
	DefaultCacheControl  string    `json:"default_cache_control,omitempty"`
	HistoryEnabled       bool      `json:"history_enabled"`
	TelemetryPath        string    `json:"telemetry_path,omitempty"`
}

// =============================================================================
// CONFIG TYPES
// =============================================================================

// TelemetryConfig contains telemetry configuration.
type TelemetryConfig struct {
	Enabled         bool   `yaml:"enabled"`
	LogPath         string `yaml:"log_path"`
	LogToStdout     bool   `yaml:"log_to_stdout"`
	VerbosePayloads bool   `yaml:"verbose_payloads"` // include request headers in events
}

// LoggerConfig contains logging configuration.
type LoggerConfig struct {
	Level  string `yaml:"level"`  // debug, info, warn, error
	Format string `yaml:"format"` // json, console
	Output string `yaml:"output"` // stdout, stderr, or file path
}

// AlertConfig contains alert thresholds.
type AlertConfig struct {
	SlowRequestThreshold time.Duration `yaml:"slow_request_threshold"`
}
