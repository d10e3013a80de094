package gateway

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"runtime"
	"strings"
	"testing"
	"time"

	"github.com/coder/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/wakedock/nextjs-gateway/internal/config"
)

func testConfig(t *testing.T, upstreamURL string) *config.Config {
	t.Helper()
	dir := t.TempDir()

	cfg, err := config.LoadFromBytes([]byte(`
server:
  port: 8080
  read_timeout: 30s
  write_timeout: 30s
upstream:
  url: ` + upstreamURL + `
monitoring:
  log_level: error
  telemetry_enabled: true
  telemetry_path: ` + filepath.Join(dir, "telemetry.jsonl") + `
history:
  enabled: true
  path: ` + filepath.Join(dir, "history.db") + `
`))
	require.NoError(t, err)
	return cfg
}

// newTestGateway spins up a fake backend and a gateway fronting it.
func newTestGateway(t *testing.T, backend http.HandlerFunc) (*Gateway, *httptest.Server) {
	t.Helper()

	upstream := httptest.NewServer(backend)
	t.Cleanup(upstream.Close)

	gw, err := New(testConfig(t, upstream.URL))
	require.NoError(t, err)
	t.Cleanup(func() {
		ctx, cancel := context.WithTimeout(context.Background(), time.Second)
		defer cancel()
		_ = gw.Shutdown(ctx)
	})

	front := httptest.NewServer(gw.Handler())
	t.Cleanup(front.Close)

	return gw, front
}

func TestProxyForwardsRequest(t *testing.T) {
	var gotPath, gotMethod, gotBody, gotForwardedFor string
	_, front := newTestGateway(t, func(w http.ResponseWriter, r *http.Request) {
		gotPath = r.URL.Path
		gotMethod = r.Method
		gotForwardedFor = r.Header.Get("X-Forwarded-For")
		body, _ := io.ReadAll(r.Body)
		gotBody = string(body)
		w.Header().Set("Content-Type", "application/json")
		_, _ = io.WriteString(w, `{"containers":[]}`)
	})

	resp, err := http.Post(front.URL+"/api/v1/containers", "application/json", strings.NewReader(`{"all":true}`))
	require.NoError(t, err)
	defer resp.Body.Close()

	body, _ := io.ReadAll(resp.Body)
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.JSONEq(t, `{"containers":[]}`, string(body))
	assert.Equal(t, "/api/v1/containers", gotPath)
	assert.Equal(t, "POST", gotMethod)
	assert.Equal(t, `{"all":true}`, gotBody)
	assert.NotEmpty(t, gotForwardedFor)
}

func TestProxiedResponseIsAnnotated(t *testing.T) {
	_, front := newTestGateway(t, func(w http.ResponseWriter, r *http.Request) {
		_, _ = io.WriteString(w, `{"ok":true}`)
	})

	resp, err := http.Get(front.URL + "/api/v1/system")
	require.NoError(t, err)
	defer resp.Body.Close()

	assert.Equal(t, "*", resp.Header.Get("Access-Control-Allow-Origin"))
	assert.NotEmpty(t, resp.Header.Get("X-API-Version"))
	assert.NotEmpty(t, resp.Header.Get("X-Request-ID"))
	assert.NotEmpty(t, resp.Header.Get("X-Response-Time"))
	assert.Equal(t, "MISS", resp.Header.Get("X-Cache-Status"))
}

func TestUpstreamCacheHitPropagates(t *testing.T) {
	_, front := newTestGateway(t, func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("X-Nextjs-Cache", "HIT")
		_, _ = io.WriteString(w, "<html>cached</html>")
	})

	req, _ := http.NewRequest("GET", front.URL+"/nextjs/dashboard", nil)
	resp, err := http.DefaultClient.Do(req)
	require.NoError(t, err)
	defer resp.Body.Close()

	assert.Equal(t, "HIT", resp.Header.Get("X-Cache-Status"))
	assert.Equal(t, "HIT", resp.Header.Get("X-Next-Cache"))
}

func TestUpstreamDownIs502(t *testing.T) {
	upstream := httptest.NewServer(http.NotFoundHandler())
	upstream.Close() // nothing listening anymore

	gw, err := New(testConfig(t, upstream.URL))
	require.NoError(t, err)
	t.Cleanup(func() { _ = gw.history.Close() })
	front := httptest.NewServer(gw.Handler())
	t.Cleanup(front.Close)

	resp, err := http.Get(front.URL + "/api/v1/system")
	require.NoError(t, err)
	defer resp.Body.Close()

	body, _ := io.ReadAll(resp.Body)
	assert.Equal(t, http.StatusBadGateway, resp.StatusCode)
	assert.JSONEq(t, `{"error":"upstream unavailable"}`, string(body))
}

func TestHealthz(t *testing.T) {
	_, front := newTestGateway(t, func(w http.ResponseWriter, r *http.Request) {})

	resp, err := http.Get(front.URL + "/healthz")
	require.NoError(t, err)
	defer resp.Body.Close()

	assert.Equal(t, http.StatusOK, resp.StatusCode)

	var health map[string]any
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&health))
	assert.Equal(t, "ok", health["status"])
}

func TestStatsEndpoint(t *testing.T) {
	_, front := newTestGateway(t, func(w http.ResponseWriter, r *http.Request) {
		_, _ = io.WriteString(w, `{}`)
	})

	// Generate some traffic first.
	for i := 0; i < 3; i++ {
		resp, err := http.Get(front.URL + "/api/v1/system")
		require.NoError(t, err)
		resp.Body.Close()
	}

	resp, err := http.Get(front.URL + "/stats")
	require.NoError(t, err)
	defer resp.Body.Close()

	require.Equal(t, http.StatusOK, resp.StatusCode)

	var stats StatsResponse
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&stats))
	assert.Equal(t, int64(3), stats.Performance.TotalRequests)
	assert.GreaterOrEqual(t, stats.Performance.CacheHitRatio, 0.0)
	assert.LessOrEqual(t, stats.Performance.CacheHitRatio, 1.0)
	assert.Equal(t, int64(0), stats.Streaming.ActiveStreams)
}

func TestStatsForbiddenFromOutside(t *testing.T) {
	gw, _ := newTestGateway(t, func(w http.ResponseWriter, r *http.Request) {})

	// httptest requests default to a non-loopback RemoteAddr.
	r := httptest.NewRequest("GET", "/stats", nil)
	w := httptest.NewRecorder()
	gw.Handler().ServeHTTP(w, r)
	assert.Equal(t, http.StatusForbidden, w.Code)

	r = httptest.NewRequest("GET", "/stats/history", nil)
	w = httptest.NewRecorder()
	gw.Handler().ServeHTTP(w, r)
	assert.Equal(t, http.StatusForbidden, w.Code)
}

func TestHistoryEndpoint(t *testing.T) {
	_, front := newTestGateway(t, func(w http.ResponseWriter, r *http.Request) {
		_, _ = io.WriteString(w, `{}`)
	})

	resp, err := http.Get(front.URL + "/api/v1/containers")
	require.NoError(t, err)
	resp.Body.Close()

	resp, err = http.Get(front.URL + "/stats/history?limit=10")
	require.NoError(t, err)
	defer resp.Body.Close()

	require.Equal(t, http.StatusOK, resp.StatusCode)

	var payload struct {
		Count   int `json:"count"`
		Entries []struct {
			RequestID string `json:"request_id"`
			Path      string `json:"path"`
			Class     string `json:"class"`
		} `json:"entries"`
	}
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&payload))
	require.Equal(t, 1, payload.Count)
	assert.Equal(t, "/api/v1/containers", payload.Entries[0].Path)
	assert.Equal(t, "api", payload.Entries[0].Class)
}

func TestHistoryEndpointRejectsBadLimit(t *testing.T) {
	_, front := newTestGateway(t, func(w http.ResponseWriter, r *http.Request) {})

	resp, err := http.Get(front.URL + "/stats/history?limit=nope")
	require.NoError(t, err)
	resp.Body.Close()
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)

	resp, err = http.Get(front.URL + "/stats/history?limit=100000")
	require.NoError(t, err)
	resp.Body.Close()
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
}

func TestStreamingProxied(t *testing.T) {
	_, front := newTestGateway(t, func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "text/event-stream")
		flusher := w.(http.Flusher)
		for i := 0; i < 3; i++ {
			_, _ = io.WriteString(w, "data: event\n\n")
			flusher.Flush()
		}
	})

	req, _ := http.NewRequest("GET", front.URL+"/api/v1/logs", nil)
	req.Header.Set("Accept", "text/event-stream")
	resp, err := http.DefaultClient.Do(req)
	require.NoError(t, err)
	defer resp.Body.Close()

	assert.Equal(t, "no", resp.Header.Get("X-Accel-Buffering"))
	assert.Equal(t, "no-cache, no-store", resp.Header.Get("Cache-Control"))
	assert.NotEmpty(t, resp.Header.Get("X-Stream-ID"))

	body, err := io.ReadAll(resp.Body)
	require.NoError(t, err)
	assert.Equal(t, strings.Repeat("data: event\n\n", 3), string(body))
}

func TestStatsWebSocket(t *testing.T) {
	_, front := newTestGateway(t, func(w http.ResponseWriter, r *http.Request) {})

	wsURL := "ws" + strings.TrimPrefix(front.URL, "http") + "/stats/ws"

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	conn, resp, err := websocket.Dial(ctx, wsURL, nil)
	if resp != nil && resp.Body != nil {
		_ = resp.Body.Close()
	}
	require.NoError(t, err)
	defer conn.Close(websocket.StatusNormalClosure, "done")

	_, data, err := conn.Read(ctx)
	require.NoError(t, err)

	var stats StatsResponse
	require.NoError(t, json.Unmarshal(data, &stats))
	assert.NotEmpty(t, stats.Uptime)
}

func TestNewClosesHistoryOnProxyError(t *testing.T) {
	cfg := testConfig(t, "http://localhost:9")
	// Bypass Load-time validation with a URL that fails url.Parse.
	cfg.Upstream.URL = "http://[::1"

	before := runtime.NumGoroutine()
	_, err := New(cfg)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "init upstream proxy")

	// The history store was already open; a failed New must close it,
	// which stops its prune loop. Poll from the test goroutine itself:
	// assert.Eventually runs its condition in a fresh goroutine, which
	// would inflate the count by one and never satisfy the check.
	deadline := time.Now().Add(2 * time.Second)
	for runtime.NumGoroutine() > before {
		if time.Now().After(deadline) {
			break
		}
		time.Sleep(10 * time.Millisecond)
	}
	assert.LessOrEqual(t, runtime.NumGoroutine(), before)
}
