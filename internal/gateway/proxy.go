// Upstream reverse proxy.
//
// DESIGN: The proxy is the innermost handler behind the optimizer. It
// forwards the request to the configured backend, copies the response
// back, and for streaming bodies flushes chunk by chunk. It also marks
// the request state with the backend's cache verdict so the annotators
// upstream of it can emit X-Cache-Status / X-Next-Cache.
package gateway

import (
	"context"
	"fmt"
	"io"
	"net"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/wakedock/nextjs-gateway/internal/config"
	"github.com/wakedock/nextjs-gateway/internal/monitoring"
	"github.com/wakedock/nextjs-gateway/internal/optimizer"
)

// proxyBufferSize is the chunk size for streamed response bodies.
const proxyBufferSize = 32 * 1024

// hopHeaders are stripped in both directions per RFC 7230 section 6.1.
var hopHeaders = []string{
	"Connection",
	"Keep-Alive",
	"Proxy-Authenticate",
	"Proxy-Authorization",
	"Te",
	"Trailer",
	"Transfer-Encoding",
	"Upgrade",
}

type upstreamProxy struct {
	base    *url.URL
	client  *http.Client
	timeout time.Duration
	logger  *monitoring.Logger
	reqLog  *monitoring.RequestLogger
}

func newUpstreamProxy(cfg config.UpstreamConfig, logger *monitoring.Logger) (*upstreamProxy, error) {
	base, err := url.Parse(cfg.URL)
	if err != nil {
		return nil, fmt.Errorf("invalid upstream URL: %w", err)
	}

	return &upstreamProxy{
		base: base,
		// No Timeout on the client itself: streaming responses hold
		// the connection open. Non-streaming requests are bounded by
		// a per-request context instead.
		client:  &http.Client{},
		timeout: cfg.Timeout,
		logger:  logger,
		reqLog:  monitoring.NewRequestLogger(logger),
	}, nil
}

func (p *upstreamProxy) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	state := optimizer.StateFromContext(r.Context())

	ctx := r.Context()
	if state == nil || !state.Streaming {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, p.timeout)
		defer cancel()
	}

	target := p.base.ResolveReference(&url.URL{Path: r.URL.Path, RawQuery: r.URL.RawQuery})

	req, err := http.NewRequestWithContext(ctx, r.Method, target.String(), r.Body)
	if err != nil {
		p.writeBadGateway(w, r, err)
		return
	}
	copyHeaders(req.Header, r.Header)
	for _, h := range hopHeaders {
		req.Header.Del(h)
	}
	req.Header.Set("X-Forwarded-For", clientIP(r))
	req.Header.Set("X-Forwarded-Host", r.Host)

	forward := &monitoring.ForwardInfo{
		TargetURL: target.String(),
		Method:    r.Method,
	}
	if state != nil {
		forward.RequestID = state.ID
		forward.Streaming = state.Streaming
	}
	p.reqLog.LogForward(forward)

	forwardStart := time.Now()
	resp, err := p.client.Do(req)
	if err != nil {
		p.writeBadGateway(w, r, err)
		return
	}
	defer resp.Body.Close()

	if state != nil {
		state.UpstreamLatency = time.Since(forwardStart)
		state.CacheHit = isCacheHit(resp.Header)
		if id := resp.Header.Get("X-Stream-ID"); id != "" {
			state.StreamID = id
		}
	}

	copyHeaders(w.Header(), resp.Header)
	for _, h := range hopHeaders {
		w.Header().Del(h)
	}
	w.WriteHeader(resp.StatusCode)

	if state != nil && state.Streaming {
		p.streamResponse(w, resp.Body)
		return
	}

	if _, err := io.Copy(w, resp.Body); err != nil {
		p.logger.Debug().Err(err).Str("path", r.URL.Path).Msg("client disconnected mid-copy")
	}
}

// streamResponse forwards the body chunk by chunk, flushing after each
// write so SSE and NDJSON consumers see events as they happen.
func (p *upstreamProxy) streamResponse(w http.ResponseWriter, body io.Reader) {
	flusher, canFlush := w.(http.Flusher)

	buf := make([]byte, proxyBufferSize)
	for {
		n, err := body.Read(buf)
		if n > 0 {
			if _, werr := w.Write(buf[:n]); werr != nil {
				p.logger.Debug().Err(werr).Msg("stream client disconnected")
				return
			}
			if canFlush {
				flusher.Flush()
			}
		}
		if err != nil {
			if err != io.EOF {
				p.logger.Debug().Err(err).Msg("upstream stream ended with error")
			}
			return
		}
	}
}

func (p *upstreamProxy) writeBadGateway(w http.ResponseWriter, r *http.Request, err error) {
	p.logger.Error().Err(err).Str("path", r.URL.Path).Msg("upstream request failed")
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusBadGateway)
	_, _ = w.Write([]byte(`{"error":"upstream unavailable"}`))
}

// copyHeaders copies all values from src into dst.
func copyHeaders(dst, src http.Header) {
	for name, values := range src {
		dst[name] = values
	}
}

// isCacheHit interprets the backend's cache headers. Next.js sets
// x-nextjs-cache; generic caches use X-Cache.
func isCacheHit(h http.Header) bool {
	for _, name := range []string{"X-Nextjs-Cache", "X-Cache", "X-Cache-Status"} {
		if strings.EqualFold(strings.TrimSpace(h.Get(name)), "HIT") {
			return true
		}
	}
	return false
}

func clientIP(r *http.Request) string {
	if prior := r.Header.Get("X-Forwarded-For"); prior != "" {
		return prior + ", " + hostOnly(r.RemoteAddr)
	}
	return hostOnly(r.RemoteAddr)
}

func hostOnly(remoteAddr string) string {
	if host, _, err := net.SplitHostPort(remoteAddr); err == nil {
		return host
	}
	return remoteAddr
}
