// Package optimizer implements the Next.js optimization pipeline.
//
// DESIGN: One middleware link with a fixed internal order:
//  1. classify the inbound request (SSR / API / streaming)
//  2. delegate to the downstream handler
//  3. annotate the response for its traffic class
//  4. record performance counters
//
// Streaming requests bypass buffering: their headers go out before the
// first byte and the active-stream gauge brackets the delegation.
// Panics and annotation failures are converted to one fixed 500 JSON
// response at this boundary; nothing leaks to the client as a trace.
package optimizer

import (
	"bytes"
	"io"
	"net/http"
	"runtime/debug"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/wakedock/nextjs-gateway/internal/monitoring"
)

// maxClassifyBodyBytes caps how much of a JSON body the classifier will
// buffer to look for a {"stream": true} flag.
const maxClassifyBodyBytes = 1 << 20

// Options are the construction-time knobs. Zero values fall back to the
// wakedock defaults.
type Options struct {
	CompressionThreshold int
	CacheControl         string
	APIVersion           string

	// Observe, when set, receives one event per completed request.
	// The gateway uses it to feed telemetry and request history.
	Observe func(*monitoring.RequestEvent)
}

// Optimizer is the process-wide middleware instance. It is attached to
// the serving pipeline once and carries only aggregate counters as
// mutable state.
type Optimizer struct {
	compressionThreshold int
	cacheControl         string
	apiVersion           string

	metrics       *monitoring.MetricsCollector
	alerts        *monitoring.AlertManager
	requestLogger *monitoring.RequestLogger
	observe       func(*monitoring.RequestEvent)

	streams streamGauge
}

// New creates an Optimizer with the given options and collaborators.
func New(opts Options, metrics *monitoring.MetricsCollector, alerts *monitoring.AlertManager, logger *monitoring.Logger) *Optimizer {
	if opts.CompressionThreshold == 0 {
		opts.CompressionThreshold = 1024
	}
	if opts.CacheControl == "" {
		opts.CacheControl = "public, max-age=60"
	}
	if opts.APIVersion == "" {
		opts.APIVersion = "0.6.4"
	}

	return &Optimizer{
		compressionThreshold: opts.CompressionThreshold,
		cacheControl:         opts.CacheControl,
		apiVersion:           opts.APIVersion,
		metrics:              metrics,
		alerts:               alerts,
		requestLogger:        monitoring.NewRequestLogger(logger),
		observe:              opts.Observe,
	}
}

// Metrics exposes the performance snapshot accessor.
func (o *Optimizer) Metrics() *monitoring.MetricsCollector { return o.metrics }

// StreamingStats returns the streaming snapshot.
func (o *Optimizer) StreamingStats() StreamingStats {
	return StreamingStats{ActiveStreams: o.streams.Active()}
}

// Middleware composes the optimizer into a handler chain.
func (o *Optimizer) Middleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		o.dispatch(w, r, next)
	})
}

// dispatch is the single entry point each request flows through.
func (o *Optimizer) dispatch(w http.ResponseWriter, r *http.Request, next http.Handler) {
	start := time.Now()

	body := peekBody(r)
	cls := Classify(r, body)

	state := &RequestState{
		ID:        uuid.New().String(),
		Start:     start,
		SSR:       cls.SSR,
		API:       cls.API,
		Streaming: cls.Streaming,
	}
	r = WithState(r, state)

	// One conversion point for every failure mode in the pipeline.
	defer func() {
		if rec := recover(); rec != nil {
			o.alerts.FlagPanic(state.ID, rec, string(debug.Stack()))
			writeErrorResponse(w, state.ID)
		}
	}()

	o.requestLogger.LogIncoming(monitoring.NewRequestInfo(r, state.ID, cls.Class()))

	if cls.Streaming {
		o.dispatchStreaming(w, r, next, state, start)
		return
	}

	resp := newBufferedResponse()
	next.ServeHTTP(resp, r)

	if resp.status >= http.StatusInternalServerError {
		o.alerts.FlagUpstreamError(state.ID, r.URL.Path, resp.status)
	}

	var err error
	switch {
	case cls.SSR:
		err = o.annotateSSR(resp, r, state)
	case cls.API:
		o.annotateAPI(resp, r)
	}
	if err != nil {
		o.alerts.FlagAnnotationFailure(state.ID, r.URL.Path, err)
		writeErrorResponse(w, state.ID)
		return
	}

	o.annotatePerformance(resp, r, state, start)

	if err := resp.flush(w); err != nil {
		// Client went away mid-write; the response was already built.
		o.requestLogger.LogWriteFailure(state.ID, err)
	}

	latency := time.Since(start)
	o.metrics.RecordRequest(resp.status < http.StatusBadRequest, latency)
	o.requestLogger.LogResponse(&monitoring.ResponseInfo{
		RequestID:   state.ID,
		StatusCode:  resp.status,
		CacheStatus: resp.Header().Get("X-Cache-Status"),
		Compressed:  resp.Header().Get("Content-Encoding") == "gzip",
		Latency:     latency,
	})

	ev := o.newEvent(r, state, resp.status, latency)
	ev.CacheStatus = resp.Header().Get("X-Cache-Status")
	ev.Compressed = resp.Header().Get("Content-Encoding") == "gzip"
	ev.ResponseBodySize = resp.body.Len()
	ev.BytesSaved = state.BytesSaved
	o.emit(ev)
}

// dispatchStreaming handles event-stream and NDJSON traffic without
// buffering. The gauge decrement is deferred so it fires even when the
// downstream handler panics.
func (o *Optimizer) dispatchStreaming(w http.ResponseWriter, r *http.Request, next http.Handler, state *RequestState, start time.Time) {
	release := o.streams.enter()
	defer release()

	sw := &streamWriter{
		ResponseWriter: w,
		status:         http.StatusOK,
		beforeFirst:    o.streamingBeforeFirst(r, state, start),
	}
	next.ServeHTTP(sw, r)

	// A stream with no body still gets the full header contract.
	if !sw.wroteHeader {
		sw.WriteHeader(http.StatusOK)
	}

	if sw.status >= http.StatusInternalServerError {
		o.alerts.FlagUpstreamError(state.ID, r.URL.Path, sw.status)
	}

	latency := time.Since(start)

	// Headers are long gone; the slow-response signal is log-only here.
	o.alerts.FlagSlowRequest(state.ID, r.URL.Path, latency)

	cacheStatus := sw.Header().Get("X-Cache-Status")
	o.metrics.RecordRequest(sw.status < http.StatusBadRequest, latency)
	o.requestLogger.LogResponse(&monitoring.ResponseInfo{
		RequestID:   state.ID,
		StatusCode:  sw.status,
		CacheStatus: cacheStatus,
		Latency:     latency,
	})

	ev := o.newEvent(r, state, sw.status, latency)
	ev.CacheStatus = cacheStatus
	o.emit(ev)
}

// newEvent builds the telemetry event shared by both dispatch paths.
func (o *Optimizer) newEvent(r *http.Request, state *RequestState, status int, latency time.Duration) *monitoring.RequestEvent {
	return &monitoring.RequestEvent{
		RequestID:         state.ID,
		Timestamp:         time.Now().UTC(),
		Method:            r.Method,
		Path:              r.URL.Path,
		ClientIP:          r.RemoteAddr,
		Class:             classOf(state),
		SSR:               state.SSR,
		API:               state.API,
		Streaming:         state.Streaming,
		StatusCode:        status,
		Success:           status < http.StatusBadRequest,
		UpstreamLatencyMs: state.UpstreamLatency.Milliseconds(),
		TotalLatencyMs:    latency.Milliseconds(),
		Headers:           flattenHeaders(r.Header),
	}
}

func (o *Optimizer) emit(ev *monitoring.RequestEvent) {
	if o.observe != nil {
		o.observe(ev)
	}
}

func classOf(state *RequestState) monitoring.TrafficClass {
	switch {
	case state.Streaming:
		return monitoring.ClassStreaming
	case state.SSR:
		return monitoring.ClassSSR
	case state.API:
		return monitoring.ClassAPI
	default:
		return monitoring.ClassPlain
	}
}

func flattenHeaders(h http.Header) map[string]string {
	out := make(map[string]string, len(h))
	for name, values := range h {
		if len(values) > 0 {
			out[strings.ToLower(name)] = values[0]
		}
	}
	return out
}

// peekBody reads a small JSON body for classification and puts it back
// so the downstream handler still sees the full request.
func peekBody(r *http.Request) []byte {
	if r.Body == nil || r.ContentLength <= 0 || r.ContentLength > maxClassifyBodyBytes {
		return nil
	}
	if !strings.Contains(r.Header.Get("Content-Type"), "json") {
		return nil
	}

	body, err := io.ReadAll(io.LimitReader(r.Body, maxClassifyBodyBytes))
	r.Body.Close()
	r.Body = io.NopCloser(bytes.NewReader(body))
	if err != nil {
		return nil
	}
	return body
}

// writeErrorResponse emits the fixed 500 payload for pipeline failures.
func writeErrorResponse(w http.ResponseWriter, requestID string) {
	header := w.Header()
	for name, values := range errorHeaders() {
		header[name] = values
	}
	header.Set("X-Request-ID", requestID)

	w.WriteHeader(http.StatusInternalServerError)
	_, _ = w.Write([]byte(`{"error":"internal server error"}`))
}
