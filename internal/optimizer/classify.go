// Request classification - tags traffic as SSR, API, streaming, or plain.
//
// DESIGN: Classification is pure and total: missing headers read as empty
// strings, any request shape classifies without error, and classifying
// the same request twice yields the same result.
package optimizer

import (
	"net/http"
	"strings"

	"github.com/tidwall/gjson"

	"github.com/wakedock/nextjs-gateway/internal/monitoring"
)

// Classification is the outcome of inspecting one inbound request.
type Classification struct {
	SSR       bool
	API       bool
	Streaming bool
}

// Class maps the classification to the telemetry traffic class.
// Streaming wins over SSR, SSR over API, matching the pipeline order.
func (c Classification) Class() monitoring.TrafficClass {
	switch {
	case c.Streaming:
		return monitoring.ClassStreaming
	case c.SSR:
		return monitoring.ClassSSR
	case c.API:
		return monitoring.ClassAPI
	default:
		return monitoring.ClassPlain
	}
}

// ssrPathMarkers are literal substrings that mark a path as SSR traffic.
var ssrPathMarkers = []string{
	"/nextjs/",
	"/dashboard/ssr",
	"/components/",
	"/stream/",
}

// Classify inspects the request's headers and path. body may be nil;
// when provided it is only read, never consumed, so the caller can still
// forward it upstream.
func Classify(r *http.Request, body []byte) Classification {
	path := r.URL.Path

	return Classification{
		SSR:       isSSRRequest(r, path),
		API:       strings.HasPrefix(path, "/api/"),
		Streaming: isStreamingRequest(r, path, body),
	}
}

// isSSRRequest detects Next.js server-side rendering traffic.
func isSSRRequest(r *http.Request, path string) bool {
	userAgent := strings.ToLower(r.Header.Get("User-Agent"))
	if strings.Contains(userAgent, "next.js") || strings.Contains(userAgent, "nextjs") {
		return true
	}

	if r.Header.Get("X-Nextjs-Page") != "" || r.Header.Get("X-Middleware-Request-Id") != "" {
		return true
	}

	for _, marker := range ssrPathMarkers {
		if strings.Contains(path, marker) {
			return true
		}
	}

	// React Server Component payloads, e.g. /dashboard?rsc or /_rsc/...
	return strings.Contains(strings.ToLower(path), "rsc")
}

// isStreamingRequest detects event-stream and NDJSON traffic.
func isStreamingRequest(r *http.Request, path string, body []byte) bool {
	if strings.Contains(path, "/stream/") {
		return true
	}

	accept := r.Header.Get("Accept")
	if strings.Contains(accept, "text/event-stream") || strings.Contains(accept, "application/x-ndjson") {
		return true
	}

	// JSON bodies can request streaming explicitly ({"stream": true}).
	return len(body) > 0 && gjson.GetBytes(body, "stream").Bool()
}
