// Streaming annotation and active-stream accounting.
//
// DESIGN: Streaming responses cannot be buffered, so their headers are
// applied just before the first byte leaves. The active-stream gauge is
// incremented before delegating and decremented in a deferred block, so
// it unwinds even when the handler panics or the client goes away.
package optimizer

import (
	"net/http"
	"strings"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
)

// streamGauge counts in-flight streaming requests.
type streamGauge struct {
	active atomic.Int64
}

// enter registers a stream and returns the paired release. The release
// is idempotent-unsafe on purpose; callers defer it exactly once.
func (g *streamGauge) enter() func() {
	g.active.Add(1)
	return func() { g.active.Add(-1) }
}

// Active returns the number of in-flight streams. Never negative once
// all requests have completed.
func (g *streamGauge) Active() int64 { return g.active.Load() }

// StreamingStats is the snapshot returned for the stats endpoint.
type StreamingStats struct {
	ActiveStreams int64 `json:"active_streams"`
}

// annotateStreaming sets the transport headers a streaming response
// needs to cross proxies unbuffered.
func (o *Optimizer) annotateStreaming(w http.ResponseWriter, state *RequestState) {
	header := w.Header()

	header.Set("X-Accel-Buffering", "no")
	header.Set("Cache-Control", "no-cache, no-store")
	header.Set("Connection", "keep-alive")
	header.Set("Keep-Alive", "timeout=300, max=1000")
	header.Set("X-Content-Type-Options", "nosniff")

	if mediaType(header.Get("Content-Type")) == "text/event-stream" {
		header.Set("Access-Control-Allow-Origin", "*")
		header.Set("Access-Control-Allow-Headers", "Cache-Control")
		header.Set("Access-Control-Expose-Headers", "X-Stream-ID")

		if state != nil {
			if state.StreamID == "" {
				state.StreamID = uuid.New().String()
			}
			header.Set("X-Stream-ID", state.StreamID)
		}
	}
}

// streamingBeforeFirst builds the hook the streamWriter runs before the
// first byte: streaming headers plus everything from the always-applied
// diagnostic set that is still known at that point. The slow-response
// header is the one exception; full latency only exists at stream end,
// so the dispatcher logs it instead.
func (o *Optimizer) streamingBeforeFirst(r *http.Request, state *RequestState, start time.Time) func(http.ResponseWriter, int) {
	return func(w http.ResponseWriter, status int) {
		o.annotateStreaming(w, state)

		elapsed := time.Since(start)
		header := w.Header()
		header.Set("X-Response-Time", formatSeconds(elapsed))
		header.Set("X-Request-ID", requestID(r.Context()))
		header.Set("X-Server-Timing", formatServerTiming(elapsed))

		cacheHit := state != nil && state.CacheHit
		if cacheHit {
			header.Set("X-Cache-Status", "HIT")
			o.metrics.RecordCacheHit()
		} else {
			header.Set("X-Cache-Status", "MISS")
		}

		// Streams under SSR paths still carry the SSR marker set. The
		// cache rule table is skipped: the streaming headers above
		// already pin Cache-Control to no-cache, no-store.
		if state != nil && state.SSR {
			header.Set("X-SSR-Optimized", "true")
			if cacheHit {
				header.Set("X-Next-Cache", "HIT")
			} else {
				header.Set("X-Next-Cache", "MISS")
			}
			header.Set("Vary", "User-Agent, Accept-Encoding, Accept")
		}
	}
}

// mediaType strips parameters from a Content-Type value.
func mediaType(contentType string) string {
	base, _, _ := strings.Cut(contentType, ";")
	return strings.TrimSpace(base)
}
