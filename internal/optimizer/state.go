// Request-scoped state shared along the pipeline.
//
// DESIGN: A single mutable *RequestState is injected into the request
// context at dispatch entry. Downstream links (the upstream proxy, a
// cache collaborator) set flags on it; the annotators read them after
// the handler returns. This mirrors per-request state without globals.
package optimizer

import (
	"context"
	"net/http"
	"time"
)

type stateKey struct{}

// RequestState carries per-request flags through the pipeline.
// It is created once per request and discarded when the request ends.
type RequestState struct {
	ID    string
	Start time.Time

	SSR       bool
	API       bool
	Streaming bool

	// CacheHit is set by the upstream cache collaborator (the proxy
	// marks it from the backend's cache headers). The optimizer only
	// reads it.
	CacheHit bool

	// StreamID identifies an event-stream response, exposed via
	// X-Stream-ID on SSE responses.
	StreamID string

	// UpstreamLatency is set by the proxy once the backend has
	// answered, so telemetry can split upstream time from total time.
	UpstreamLatency time.Duration

	// BytesSaved records the compression gain for this response.
	BytesSaved int
}

// WithState returns a request whose context carries the given state.
func WithState(r *http.Request, state *RequestState) *http.Request {
	return r.WithContext(context.WithValue(r.Context(), stateKey{}, state))
}

// StateFromContext retrieves the request state, or nil when absent.
func StateFromContext(ctx context.Context) *RequestState {
	if state, ok := ctx.Value(stateKey{}).(*RequestState); ok {
		return state
	}
	return nil
}

// requestID returns the state's request ID, or "unknown" when the
// request never passed through the dispatcher.
func requestID(ctx context.Context) string {
	if state := StateFromContext(ctx); state != nil && state.ID != "" {
		return state.ID
	}
	return "unknown"
}
