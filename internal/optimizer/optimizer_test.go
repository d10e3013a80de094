package optimizer

import (
	"bytes"
	"compress/gzip"
	"fmt"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/wakedock/nextjs-gateway/internal/monitoring"
)

func newTestOptimizer(opts Options) *Optimizer {
	logger := monitoring.New(monitoring.LoggerConfig{Level: "error", Format: "json", Output: "stderr"})
	metrics := monitoring.NewMetricsCollector()
	alerts := monitoring.NewAlertManager(logger, monitoring.AlertConfig{})
	return New(opts, metrics, alerts, logger)
}

func serve(o *Optimizer, r *http.Request, handler http.HandlerFunc) *httptest.ResponseRecorder {
	w := httptest.NewRecorder()
	o.Middleware(handler).ServeHTTP(w, r)
	return w
}

func okHandler(body string) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "text/html")
		_, _ = io.WriteString(w, body)
	}
}

func TestSSRAnnotations(t *testing.T) {
	o := newTestOptimizer(Options{})

	r := httptest.NewRequest("GET", "/nextjs/dashboard/overview", nil)
	w := serve(o, r, okHandler("<html>dashboard</html>"))

	h := w.Header()
	assert.Equal(t, "true", h.Get("X-SSR-Optimized"))
	assert.Equal(t, "MISS", h.Get("X-Next-Cache"))
	assert.Equal(t, "User-Agent, Accept-Encoding, Accept", h.Get("Vary"))
	assert.Equal(t, "public, max-age=60, stale-while-revalidate=300", h.Get("Cache-Control"))
}

func TestSSRDefaultCacheControl(t *testing.T) {
	o := newTestOptimizer(Options{CacheControl: "public, max-age=15"})

	// SSR via header, path matches no cache rule.
	r := httptest.NewRequest("GET", "/profile", nil)
	r.Header.Set("X-Nextjs-Page", "/profile")
	w := serve(o, r, okHandler("<html></html>"))

	assert.Equal(t, "public, max-age=15", w.Header().Get("Cache-Control"))
}

func TestSSRHandlerCacheControlWins(t *testing.T) {
	o := newTestOptimizer(Options{})

	r := httptest.NewRequest("GET", "/profile", nil)
	r.Header.Set("X-Nextjs-Page", "/profile")
	w := serve(o, r, func(w http.ResponseWriter, req *http.Request) {
		w.Header().Set("Cache-Control", "private, no-store")
		_, _ = io.WriteString(w, "<html></html>")
	})

	assert.Equal(t, "private, no-store", w.Header().Get("Cache-Control"))
}

func TestSSRCompression(t *testing.T) {
	o := newTestOptimizer(Options{CompressionThreshold: 100})

	large := strings.Repeat("<div>container row</div>", 50)
	r := httptest.NewRequest("GET", "/nextjs/dashboard", nil)
	r.Header.Set("Accept-Encoding", "gzip, deflate")
	w := serve(o, r, okHandler(large))

	require.Equal(t, "gzip", w.Header().Get("Content-Encoding"))
	assert.Equal(t, fmt.Sprint(w.Body.Len()), w.Header().Get("Content-Length"))

	zr, err := gzip.NewReader(bytes.NewReader(w.Body.Bytes()))
	require.NoError(t, err)
	decoded, err := io.ReadAll(zr)
	require.NoError(t, err)
	assert.Equal(t, large, string(decoded))

	comp := o.Metrics().Compression()
	assert.Equal(t, int64(1), comp.CompressedResponses)
	assert.Greater(t, comp.BytesSaved, int64(0))
}

func TestSSRCompressionSkipsSmallBodies(t *testing.T) {
	o := newTestOptimizer(Options{CompressionThreshold: 1024})

	r := httptest.NewRequest("GET", "/nextjs/dashboard", nil)
	r.Header.Set("Accept-Encoding", "gzip")
	w := serve(o, r, okHandler("small"))

	assert.Empty(t, w.Header().Get("Content-Encoding"))
	assert.Equal(t, "small", w.Body.String())
}

func TestSSRCompressionRequiresGzipAccept(t *testing.T) {
	o := newTestOptimizer(Options{CompressionThreshold: 10})

	r := httptest.NewRequest("GET", "/nextjs/dashboard", nil)
	w := serve(o, r, okHandler(strings.Repeat("x", 100)))

	assert.Empty(t, w.Header().Get("Content-Encoding"))
}

func TestAPIAnnotations(t *testing.T) {
	o := newTestOptimizer(Options{APIVersion: "0.9.1"})

	r := httptest.NewRequest("GET", "/api/v1/containers", nil)
	w := serve(o, r, okHandler(`[]`))

	h := w.Header()
	assert.Equal(t, "0.9.1", h.Get("X-API-Version"))
	assert.Equal(t, "*", h.Get("Access-Control-Allow-Origin"))
	assert.Equal(t, "GET, POST, PUT, DELETE, OPTIONS", h.Get("Access-Control-Allow-Methods"))
	assert.Equal(t, "Content-Type, Authorization, X-Requested-With", h.Get("Access-Control-Allow-Headers"))
	assert.Empty(t, h.Get("Access-Control-Max-Age"))
}

func TestAPIPreflight(t *testing.T) {
	o := newTestOptimizer(Options{})

	r := httptest.NewRequest("OPTIONS", "/api/v1/containers", nil)
	w := serve(o, r, okHandler(""))

	assert.Equal(t, "86400", w.Header().Get("Access-Control-Max-Age"))
}

func TestAPIStaticAssetCaching(t *testing.T) {
	o := newTestOptimizer(Options{})

	r := httptest.NewRequest("GET", "/api/static/logo.svg", nil)
	w := serve(o, r, okHandler("<svg/>"))
	assert.Equal(t, "public, max-age=86400, immutable", w.Header().Get("Cache-Control"))

	// POST to the same path gets no asset caching.
	r = httptest.NewRequest("POST", "/api/static/logo.svg", nil)
	w = serve(o, r, okHandler(""))
	assert.Empty(t, w.Header().Get("Cache-Control"))
}

func TestPerformanceHeaders(t *testing.T) {
	o := newTestOptimizer(Options{})

	r := httptest.NewRequest("GET", "/anything", nil)
	w := serve(o, r, okHandler("hello"))

	h := w.Header()
	assert.Regexp(t, `^\d+\.\d{3}s$`, h.Get("X-Response-Time"))
	assert.Regexp(t, `^total;dur=\d+\.\d$`, h.Get("X-Server-Timing"))
	assert.NotEmpty(t, h.Get("X-Request-ID"))
	assert.Equal(t, "MISS", h.Get("X-Cache-Status"))
	assert.Empty(t, h.Get("X-Performance-Warning"))
}

func TestCacheHitFlowsToHeaders(t *testing.T) {
	o := newTestOptimizer(Options{})

	r := httptest.NewRequest("GET", "/nextjs/dashboard", nil)
	w := serve(o, r, func(w http.ResponseWriter, req *http.Request) {
		// A downstream collaborator marks the cache verdict on the
		// shared request state.
		StateFromContext(req.Context()).CacheHit = true
		_, _ = io.WriteString(w, "<html></html>")
	})

	assert.Equal(t, "HIT", w.Header().Get("X-Cache-Status"))
	assert.Equal(t, "HIT", w.Header().Get("X-Next-Cache"))

	perf := o.Metrics().Performance()
	assert.Equal(t, int64(1), perf.TotalCacheHits)
	assert.Equal(t, 1.0, perf.CacheHitRatio)
}

func TestPanicBecomesFixed500(t *testing.T) {
	o := newTestOptimizer(Options{})

	r := httptest.NewRequest("GET", "/api/v1/explode", nil)
	w := serve(o, r, func(w http.ResponseWriter, req *http.Request) {
		panic("boom")
	})

	assert.Equal(t, http.StatusInternalServerError, w.Code)
	assert.JSONEq(t, `{"error":"internal server error"}`, w.Body.String())

	h := w.Header()
	assert.Equal(t, "nextjs-optimizer", h.Get("X-Error-Middleware"))
	assert.Equal(t, "no-cache, no-store, must-revalidate", h.Get("Cache-Control"))
	assert.Equal(t, "application/json", h.Get("Content-Type"))
	assert.NotEmpty(t, h.Get("X-Request-ID"))
}

func TestErrorStatusCountsAsFailure(t *testing.T) {
	o := newTestOptimizer(Options{})

	r := httptest.NewRequest("GET", "/api/v1/missing", nil)
	serve(o, r, func(w http.ResponseWriter, req *http.Request) {
		http.Error(w, "not found", http.StatusNotFound)
	})

	stats := o.Metrics().Stats()
	assert.Equal(t, int64(1), stats["requests"])
	assert.Equal(t, int64(0), stats["successes"])
}

func TestMetricsStartEmpty(t *testing.T) {
	o := newTestOptimizer(Options{})

	perf := o.Metrics().Performance()
	assert.Equal(t, int64(0), perf.TotalRequests)
	assert.Equal(t, 0.0, perf.CacheHitRatio)
	assert.Equal(t, 0.0, perf.AverageResponseTime)
}

func TestCacheHitRatioStaysInRange(t *testing.T) {
	o := newTestOptimizer(Options{})

	for i := 0; i < 10; i++ {
		hit := i%3 == 0
		r := httptest.NewRequest("GET", "/nextjs/dashboard", nil)
		serve(o, r, func(w http.ResponseWriter, req *http.Request) {
			if hit {
				StateFromContext(req.Context()).CacheHit = true
			}
			_, _ = io.WriteString(w, "<html></html>")
		})
	}

	perf := o.Metrics().Performance()
	assert.Equal(t, int64(10), perf.TotalRequests)
	assert.GreaterOrEqual(t, perf.CacheHitRatio, 0.0)
	assert.LessOrEqual(t, perf.CacheHitRatio, 1.0)
	assert.Equal(t, int64(4), perf.TotalCacheHits)
}

func TestBodyRestoredAfterClassification(t *testing.T) {
	o := newTestOptimizer(Options{})

	payload := `{"stream": false, "cmd": "restart"}`
	r := httptest.NewRequest("POST", "/api/v1/containers/restart", strings.NewReader(payload))
	r.Header.Set("Content-Type", "application/json")

	var seen string
	serve(o, r, func(w http.ResponseWriter, req *http.Request) {
		body, _ := io.ReadAll(req.Body)
		seen = string(body)
	})

	assert.Equal(t, payload, seen)
}

func TestObserveReceivesEvent(t *testing.T) {
	var events []*monitoring.RequestEvent
	o := newTestOptimizer(Options{
		Observe: func(ev *monitoring.RequestEvent) { events = append(events, ev) },
	})

	r := httptest.NewRequest("GET", "/api/v1/system", nil)
	serve(o, r, okHandler(`{"ok":true}`))

	require.Len(t, events, 1)
	ev := events[0]
	assert.Equal(t, "GET", ev.Method)
	assert.Equal(t, "/api/v1/system", ev.Path)
	assert.Equal(t, monitoring.ClassAPI, ev.Class)
	assert.True(t, ev.API)
	assert.True(t, ev.Success)
	assert.Equal(t, http.StatusOK, ev.StatusCode)
	assert.NotEmpty(t, ev.RequestID)
}

func TestSlowRequestWarning(t *testing.T) {
	logger := monitoring.New(monitoring.LoggerConfig{Level: "error", Format: "json", Output: "stderr"})
	metrics := monitoring.NewMetricsCollector()
	alerts := monitoring.NewAlertManager(logger, monitoring.AlertConfig{SlowRequestThreshold: time.Millisecond})
	o := New(Options{}, metrics, alerts, logger)

	r := httptest.NewRequest("GET", "/slow", nil)
	w := serve(o, r, func(w http.ResponseWriter, req *http.Request) {
		time.Sleep(5 * time.Millisecond)
		_, _ = io.WriteString(w, "done")
	})

	assert.Equal(t, "slow-response", w.Header().Get("X-Performance-Warning"))
}
