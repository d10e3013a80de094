// Package monitoring - alerts.go flags anomalies and errors.
//
// DESIGN: AlertManager logs notable events at appropriate levels:
//   - FlagSlowRequest: Warn when a request exceeds the slow threshold
//   - FlagUpstreamError: Warn on upstream 5xx responses
//   - FlagPanic:       Error on recovered panics
package monitoring

import "time"

// AlertManager flags anomalies and errors.
type AlertManager struct {
	logger               *Logger
	slowRequestThreshold time.Duration
}

// NewAlertManager creates a new alert manager.
func NewAlertManager(logger *Logger, cfg AlertConfig) *AlertManager {
	threshold := cfg.SlowRequestThreshold
	if threshold == 0 {
		threshold = time.Second
	}
	return &AlertManager{logger: logger, slowRequestThreshold: threshold}
}

// SlowRequestThreshold returns the configured slow-request threshold.
func (am *AlertManager) SlowRequestThreshold() time.Duration {
	return am.slowRequestThreshold
}

// FlagSlowRequest logs when request latency exceeds the threshold.
// Returns true when the request was flagged.
func (am *AlertManager) FlagSlowRequest(requestID, path string, latency time.Duration) bool {
	if latency <= am.slowRequestThreshold {
		return false
	}
	am.logger.Warn().
		Str("request_id", requestID).
		Str("path", path).
		Dur("latency", latency).
		Msg("slow_response")
	return true
}

// FlagUpstreamError logs an upstream 5xx response.
func (am *AlertManager) FlagUpstreamError(requestID, path string, statusCode int) {
	am.logger.Warn().
		Str("request_id", requestID).
		Str("path", path).
		Int("status", statusCode).
		Msg("upstream_error")
}

// FlagAnnotationFailure logs a response-annotation failure. The client
// gets the generic error payload; the detail stays in the log.
func (am *AlertManager) FlagAnnotationFailure(requestID, path string, err error) {
	am.logger.Error().
		Str("request_id", requestID).
		Str("path", path).
		Err(err).
		Msg("annotation_failed")
}

// FlagPanic logs a recovered panic.
func (am *AlertManager) FlagPanic(requestID string, panicValue interface{}, stack string) {
	am.logger.Error().
		Str("request_id", requestID).
		Interface("panic", panicValue).
		Str("stack", stack).
		Msg("panic_recovered")
}
