// Package gateway - stats.go exposes aggregated metrics as JSON.
//
// GET /stats returns performance, compression, and streaming metrics.
// GET /stats/history returns recent request rows from the SQLite store.
package gateway

import (
	"encoding/json"
	"net/http"
	"strconv"
	"time"
)

// StatsResponse is the JSON response for GET /stats.
type StatsResponse struct {
	Uptime string `json:"uptime"`

	Performance struct {
		TotalRequests       int64   `json:"total_requests"`
		AverageResponseTime float64 `json:"average_response_time"`
		CacheHitRatio       float64 `json:"cache_hit_ratio"`
		TotalCacheHits      int64   `json:"total_cache_hits"`
	} `json:"performance"`

	Compression struct {
		Compressions int64 `json:"compressions"`
		BytesSaved   int64 `json:"bytes_saved"`
	} `json:"compression"`

	Streaming struct {
		ActiveStreams int64 `json:"active_streams"`
	} `json:"streaming"`
}

// snapshotStats assembles the current metrics snapshot.
func (g *Gateway) snapshotStats() StatsResponse {
	var resp StatsResponse
	resp.Uptime = time.Since(g.metrics.StartedAt()).Truncate(time.Second).String()

	perf := g.metrics.Performance()
	resp.Performance.TotalRequests = perf.TotalRequests
	resp.Performance.AverageResponseTime = perf.AverageResponseTime
	resp.Performance.CacheHitRatio = perf.CacheHitRatio
	resp.Performance.TotalCacheHits = perf.TotalCacheHits

	comp := g.metrics.Compression()
	resp.Compression.Compressions = comp.CompressedResponses
	resp.Compression.BytesSaved = comp.BytesSaved

	resp.Streaming.ActiveStreams = g.optimizer.StreamingStats().ActiveStreams
	return resp
}

// handleStats returns aggregated metrics as JSON.
// Restricted to localhost to prevent external access to operational metrics.
func (g *Gateway) handleStats(w http.ResponseWriter, r *http.Request) {
	if !isLoopback(r.RemoteAddr) {
		http.Error(w, "forbidden", http.StatusForbidden)
		return
	}

	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(g.snapshotStats())
}

// handleHistory returns the most recent request rows.
func (g *Gateway) handleHistory(w http.ResponseWriter, r *http.Request) {
	if !isLoopback(r.RemoteAddr) {
		http.Error(w, "forbidden", http.StatusForbidden)
		return
	}

	limit := 100
	if v := r.URL.Query().Get("limit"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n <= 0 || n > 1000 {
			http.Error(w, "invalid limit", http.StatusBadRequest)
			return
		}
		limit = n
	}

	entries, err := g.history.Recent(r.Context(), limit)
	if err != nil {
		g.logger.Error().Err(err).Msg("history query failed")
		http.Error(w, "history unavailable", http.StatusInternalServerError)
		return
	}

	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(map[string]any{
		"count":   len(entries),
		"entries": entries,
	})
}
