// Response annotation for SSR and API traffic.
//
// DESIGN: Annotators run after the downstream handler has produced a
// buffered response. They only merge headers (last writer wins) and,
// for large SSR bodies, swap in a gzipped body. Exact header names are
// contract: the Next.js frontend, CDNs, and proxies key off them.
package optimizer

import (
	"fmt"
	"net/http"
	"strconv"
	"strings"
	"time"
)

// annotateSSR applies SSR cache policy and compression.
func (o *Optimizer) annotateSSR(resp *bufferedResponse, r *http.Request, state *RequestState) error {
	header := resp.Header()

	header.Set("X-SSR-Optimized", "true")
	if state != nil && state.CacheHit {
		header.Set("X-Next-Cache", "HIT")
	} else {
		header.Set("X-Next-Cache", "MISS")
	}
	header.Set("Vary", "User-Agent, Accept-Encoding, Accept")

	if rule := matchSSRCacheRule(r.URL.Path); rule != nil {
		for _, h := range rule.headers {
			header.Set(h.name, h.value)
		}
	} else if header.Get("Cache-Control") == "" {
		// No path rule and the handler set no policy of its own:
		// fall back to the configured default.
		header.Set("Cache-Control", o.cacheControl)
	}

	return o.compressBody(resp, r, state)
}

// compressBody gzips the buffered body when it is worth it and the
// client can take it.
func (o *Optimizer) compressBody(resp *bufferedResponse, r *http.Request, state *RequestState) error {
	if resp.body.Len() <= o.compressionThreshold {
		return nil
	}
	if !strings.Contains(r.Header.Get("Accept-Encoding"), "gzip") {
		return nil
	}
	if resp.Header().Get("Content-Encoding") != "" {
		return nil
	}

	original := resp.body.Len()
	compressed, err := gzipBytes(resp.body.Bytes())
	if err != nil {
		return fmt.Errorf("gzip response body: %w", err)
	}

	resp.body.Reset()
	resp.body.Write(compressed)
	resp.Header().Set("Content-Encoding", "gzip")
	resp.Header().Set("Content-Length", strconv.Itoa(len(compressed)))

	o.metrics.RecordCompression(original, len(compressed))
	if state != nil {
		state.BytesSaved = original - len(compressed)
	}
	return nil
}

// annotateAPI applies CORS and static-asset caching for /api/ traffic.
func (o *Optimizer) annotateAPI(resp *bufferedResponse, r *http.Request) {
	header := resp.Header()

	header.Set("X-API-Version", o.apiVersion)
	header.Set("Access-Control-Allow-Origin", "*")
	header.Set("Access-Control-Allow-Methods", "GET, POST, PUT, DELETE, OPTIONS")
	header.Set("Access-Control-Allow-Headers", "Content-Type, Authorization, X-Requested-With")

	if r.Method == http.MethodOptions {
		header.Set("Access-Control-Max-Age", "86400")
	}

	if r.Method == http.MethodGet && strings.Contains(r.URL.Path, "/static/") {
		header.Set("Cache-Control", "public, max-age=86400, immutable")
	}
}

// annotatePerformance attaches timing and cache diagnostics. It runs on
// every buffered response regardless of classification.
func (o *Optimizer) annotatePerformance(resp *bufferedResponse, r *http.Request, state *RequestState, start time.Time) {
	header := resp.Header()
	elapsed := time.Since(start)

	header.Set("X-Response-Time", formatSeconds(elapsed))
	header.Set("X-Request-ID", requestID(r.Context()))
	header.Set("X-Server-Timing", formatServerTiming(elapsed))

	if state != nil && state.CacheHit {
		header.Set("X-Cache-Status", "HIT")
		o.metrics.RecordCacheHit()
	} else {
		header.Set("X-Cache-Status", "MISS")
	}

	if o.alerts.FlagSlowRequest(requestID(r.Context()), r.URL.Path, elapsed) {
		header.Set("X-Performance-Warning", "slow-response")
	}
}

// formatSeconds renders latency as wakedock-compatible seconds, e.g. "0.042s".
func formatSeconds(d time.Duration) string {
	return fmt.Sprintf("%.3fs", d.Seconds())
}

// formatServerTiming renders the Server-Timing total in milliseconds.
func formatServerTiming(d time.Duration) string {
	return fmt.Sprintf("total;dur=%.1f", float64(d.Microseconds())/1000.0)
}

// errorHeaders is the fixed header set for dispatcher-level failures.
func errorHeaders() http.Header {
	return http.Header{
		"X-Error-Middleware": {"nextjs-optimizer"},
		"Cache-Control":      {"no-cache, no-store, must-revalidate"},
		"Content-Type":       {"application/json"},
	}
}
