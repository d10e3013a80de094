// Package gateway wires the optimization middleware, the upstream
// proxy, and the operational endpoints into one HTTP server.
//
// DESIGN: Request flow:
//   - /healthz, /stats, /stats/ws: handled locally
//   - everything else: optimizer.Middleware -> upstream proxy
//
// The optimizer classifies and annotates; the proxy only forwards and
// marks cache hits. Telemetry and request history hang off the
// optimizer's per-request events so both dispatch paths feed them.
package gateway

import (
	"context"
	"fmt"
	"net"
	"net/http"
	"time"

	"github.com/wakedock/nextjs-gateway/internal/config"
	"github.com/wakedock/nextjs-gateway/internal/monitoring"
	"github.com/wakedock/nextjs-gateway/internal/optimizer"
	"github.com/wakedock/nextjs-gateway/internal/store"
)

// Gateway is the running server instance.
type Gateway struct {
	config    *config.Config
	logger    *monitoring.Logger
	metrics   *monitoring.MetricsCollector
	tracker   *monitoring.Tracker
	optimizer *optimizer.Optimizer
	history   store.History
	proxy     *upstreamProxy

	srv *http.Server
}

// New builds a Gateway from config. All collaborators are constructed
// here; nothing starts listening until Start.
func New(cfg *config.Config) (*Gateway, error) {
	logger := monitoring.New(cfg.LoggerConfig())
	metrics := monitoring.NewMetricsCollector()
	alerts := monitoring.NewAlertManager(logger, monitoring.AlertConfig{
		SlowRequestThreshold: cfg.Optimizer.SlowRequestThreshold,
	})

	tracker, err := monitoring.NewTracker(cfg.TelemetryConfig())
	if err != nil {
		return nil, fmt.Errorf("init telemetry: %w", err)
	}

	var history store.History = store.NopHistory{}
	if cfg.History.Enabled {
		h, err := store.OpenSQLite(cfg.History.Path, cfg.History.Retention, config.DefaultHistoryPruneInterval)
		if err != nil {
			return nil, fmt.Errorf("open request history: %w", err)
		}
		history = h
	}

	g := &Gateway{
		config:  cfg,
		logger:  logger,
		metrics: metrics,
		tracker: tracker,
		history: history,
	}

	g.optimizer = optimizer.New(optimizer.Options{
		CompressionThreshold: cfg.Optimizer.CompressionThreshold,
		CacheControl:         cfg.Optimizer.CacheControl,
		APIVersion:           cfg.Optimizer.APIVersion,
		Observe:              g.recordEvent,
	}, metrics, alerts, logger)

	g.proxy, err = newUpstreamProxy(cfg.Upstream, logger)
	if err != nil {
		_ = history.Close()
		return nil, fmt.Errorf("init upstream proxy: %w", err)
	}

	mux := http.NewServeMux()
	mux.HandleFunc("/healthz", g.handleHealth)
	mux.HandleFunc("/stats", g.handleStats)
	mux.HandleFunc("/stats/ws", g.handleStatsWS)
	mux.HandleFunc("/stats/history", g.handleHistory)
	mux.Handle("/", g.optimizer.Middleware(g.proxy))

	g.srv = &http.Server{
		Addr:         fmt.Sprintf(":%d", cfg.Server.Port),
		Handler:      mux,
		ReadTimeout:  cfg.Server.ReadTimeout,
		WriteTimeout: cfg.Server.WriteTimeout,
	}

	return g, nil
}

// recordEvent fans a completed request out to telemetry and history.
func (g *Gateway) recordEvent(ev *monitoring.RequestEvent) {
	g.tracker.RecordRequest(ev)

	entry := store.Entry{
		RequestID:   ev.RequestID,
		Timestamp:   ev.Timestamp,
		Method:      ev.Method,
		Path:        ev.Path,
		Class:       string(ev.Class),
		StatusCode:  ev.StatusCode,
		CacheStatus: ev.CacheStatus,
		LatencyMs:   ev.TotalLatencyMs,
	}
	if err := g.history.Append(context.Background(), entry); err != nil {
		g.logger.Warn().Err(err).Str("request_id", ev.RequestID).Msg("history append failed")
	}
}

// Start begins serving. Blocks until the server stops.
func (g *Gateway) Start() error {
	g.logger.Info().
		Int("port", g.config.Server.Port).
		Str("upstream", g.config.Upstream.URL).
		Msg("gateway starting")

	g.tracker.RecordInit(&monitoring.InitEvent{
		Timestamp:            time.Now().UTC(),
		Event:                "gateway_init",
		ServerPort:           g.config.Server.Port,
		ServerReadTimeoutMs:  g.config.Server.ReadTimeout.Milliseconds(),
		ServerWriteTimeoutMs: g.config.Server.WriteTimeout.Milliseconds(),
		UpstreamURL:          g.config.Upstream.URL,
		CompressionThreshold: g.config.Optimizer.CompressionThreshold,
		DefaultCacheControl:  g.config.Optimizer.CacheControl,
		HistoryEnabled:       g.config.History.Enabled,
		TelemetryPath:        g.config.Monitoring.TelemetryPath,
	})

	if err := g.srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		return err
	}
	return nil
}

// Shutdown stops the server gracefully and closes the history store.
func (g *Gateway) Shutdown(ctx context.Context) error {
	g.logger.Info().Msg("gateway shutting down")
	err := g.srv.Shutdown(ctx)
	if cerr := g.history.Close(); err == nil {
		err = cerr
	}
	return err
}

// Handler exposes the full routing tree, mainly for tests.
func (g *Gateway) Handler() http.Handler { return g.srv.Handler }

// handleHealth returns gateway liveness.
func (g *Gateway) handleHealth(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	fmt.Fprintf(w, `{"status":"ok","time":%q}`+"\n", time.Now().UTC().Format(time.RFC3339))
}

// isLoopback reports whether the remote address is localhost.
func isLoopback(remoteAddr string) bool {
	host, _, err := net.SplitHostPort(remoteAddr)
	if err != nil {
		host = remoteAddr
	}
	ip := net.ParseIP(host)
	return ip != nil && ip.IsLoopback()
}
