// Package monitoring - metrics.go provides simple counters.
//
// DESIGN: Lightweight in-memory counters for operational metrics:
//   - requests/successes:   Total and successful request counts
//   - response time:        Cumulative latency for the average
//   - cache_hits:           Upstream cache performance (HIT responses)
//   - compressions:         Responses gzipped and bytes saved doing so
//
// Counters are atomic: every request runs on its own goroutine.
// For production, export these to Prometheus or similar.
package monitoring

import (
	"sync/atomic"
	"time"
)

// MetricsCollector collects operational metrics.
type MetricsCollector struct {
	startedAt time.Time

	requests     atomic.Int64
	successes    atomic.Int64
	responseTime atomic.Int64 // cumulative, nanoseconds
	cacheHits    atomic.Int64

	compressions atomic.Int64
	bytesSaved   atomic.Int64
}

// NewMetricsCollector creates a new metrics collector.
func NewMetricsCollector() *MetricsCollector {
	return &MetricsCollector{startedAt: time.Now()}
}

// RecordRequest records one completed request and its latency.
func (mc *MetricsCollector) RecordRequest(success bool, latency time.Duration) {
	mc.requests.Add(1)
	mc.responseTime.Add(int64(latency))
	if success {
		mc.successes.Add(1)
	}
}

// RecordCacheHit records a response served from the upstream cache.
// Called at most once per request, so cache hits never exceed requests.
func (mc *MetricsCollector) RecordCacheHit() { mc.cacheHits.Add(1) }

// RecordCompression records a gzipped response body.
func (mc *MetricsCollector) RecordCompression(originalBytes, compressedBytes int) {
	mc.compressions.Add(1)
	if saved := originalBytes - compressedBytes; saved > 0 {
		mc.bytesSaved.Add(int64(saved))
	}
}

// StartedAt returns when the metrics collector was created.
func (mc *MetricsCollector) StartedAt() time.Time { return mc.startedAt }

// PerformanceStats is the snapshot returned for the stats endpoint.
type PerformanceStats struct {
	TotalRequests       int64   `json:"total_requests"`
	AverageResponseTime float64 `json:"average_response_time"` // seconds
	CacheHitRatio       float64 `json:"cache_hit_ratio"`
	TotalCacheHits      int64   `json:"total_cache_hits"`
}

// Performance returns the current performance snapshot.
// Ratios are 0.0 until the first request has been recorded.
func (mc *MetricsCollector) Performance() PerformanceStats {
	requests := mc.requests.Load()
	if requests == 0 {
		return PerformanceStats{}
	}

	total := time.Duration(mc.responseTime.Load()).Seconds()
	hits := mc.cacheHits.Load()

	return PerformanceStats{
		TotalRequests:       requests,
		AverageResponseTime: total / float64(requests),
		CacheHitRatio:       float64(hits) / float64(requests),
		TotalCacheHits:      hits,
	}
}

// CompressionStats is the compression part of the stats snapshot.
type CompressionStats struct {
	CompressedResponses int64 `json:"compressed_responses"`
	BytesSaved          int64 `json:"bytes_saved"`
}

// Compression returns the current compression snapshot.
func (mc *MetricsCollector) Compression() CompressionStats {
	return CompressionStats{
		CompressedResponses: mc.compressions.Load(),
		BytesSaved:          mc.bytesSaved.Load(),
	}
}

// Stats returns current counters as a flat map.
func (mc *MetricsCollector) Stats() map[string]int64 {
	return map[string]int64{
		"requests":     mc.requests.Load(),
		"successes":    mc.successes.Load(),
		"cache_hits":   mc.cacheHits.Load(),
		"compressions": mc.compressions.Load(),
		"bytes_saved":  mc.bytesSaved.Load(),
	}
}
