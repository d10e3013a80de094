// Package monitoring - request_logger.go logs HTTP request lifecycle.
//
// DESIGN: Structured logging for request tracing at DEBUG level:
//   - LogIncoming:  Request received from the frontend
//   - LogForward:   Request forwarded to the backend
//   - LogResponse:  Response sent back, with classification and timing
package monitoring

import (
	"net/http"
	"time"

	"github.com/wakedock/nextjs-gateway/internal/utils"
)

// RequestLogger logs HTTP request lifecycle events.
type RequestLogger struct {
	logger *Logger
}

// NewRequestLogger creates a new request logger.
func NewRequestLogger(logger *Logger) *RequestLogger {
	return &RequestLogger{logger: logger}
}

// RequestInfo contains incoming request information.
type RequestInfo struct {
	RequestID  string
	Method     string
	Path       string
	RemoteAddr string
	Class      TrafficClass
	AuthMasked string
	StartTime  time.Time
}

// NewRequestInfo creates RequestInfo from an HTTP request.
func NewRequestInfo(r *http.Request, requestID string, class TrafficClass) *RequestInfo {
	return &RequestInfo{
		RequestID:  requestID,
		Method:     r.Method,
		Path:       r.URL.Path,
		RemoteAddr: r.RemoteAddr,
		Class:      class,
		AuthMasked: utils.MaskKey(r.Header.Get("Authorization")),
		StartTime:  time.Now(),
	}
}

// LogIncoming logs an incoming request.
func (rl *RequestLogger) LogIncoming(info *RequestInfo) {
	rl.logger.Debug().
		Str("request_id", info.RequestID).
		Str("method", info.Method).
		Str("path", info.Path).
		Str("class", string(info.Class)).
		Str("authorization", info.AuthMasked).
		Msg("incoming")
}

// ForwardInfo contains forwarded request information.
type ForwardInfo struct {
	RequestID string
	TargetURL string
	Method    string
	Streaming bool
}

// LogForward logs a request forwarded upstream.
func (rl *RequestLogger) LogForward(info *ForwardInfo) {
	event := rl.logger.Debug().
		Str("request_id", info.RequestID).
		Str("target", info.TargetURL)
	if info.Streaming {
		event = event.Bool("streaming", true)
	}
	event.Msg("forward")
}

// ResponseInfo contains response information.
type ResponseInfo struct {
	RequestID   string
	StatusCode  int
	CacheStatus string
	Compressed  bool
	Latency     time.Duration
}

// LogResponse logs a response.
func (rl *RequestLogger) LogResponse(info *ResponseInfo) {
	event := rl.logger.Debug().
		Str("request_id", info.RequestID).
		Int("status", info.StatusCode).
		Dur("latency", info.Latency)
	if info.CacheStatus != "" {
		event = event.Str("cache", info.CacheStatus)
	}
	if info.Compressed {
		event = event.Bool("compressed", true)
	}
	event.Msg("response")
}

// LogWriteFailure logs a failed write to the client connection.
func (rl *RequestLogger) LogWriteFailure(requestID string, err error) {
	rl.logger.Debug().
		Str("request_id", requestID).
		Err(err).
		Msg("client_write_failed")
}
