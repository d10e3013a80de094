// Package monitoring - telemetry.go records events to JSONL files.
//
// DESIGN: Tracker writes structured events as JSONL (one JSON object per line):
//   - RequestEvent: Every request through the gateway
//   - InitEvent:    Startup configuration snapshot
//
// Events are appended immediately after each event for real-time tailing.
// Credential-bearing headers are stripped before anything hits disk.
package monitoring

import (
	"encoding/json"
	"os"
	"path/filepath"
	"sync"

	"github.com/rs/zerolog/log"
	"github.com/tidwall/sjson"

	"github.com/wakedock/nextjs-gateway/internal/utils"
)

// redactedHeaderKeys are removed from verbose telemetry events.
var redactedHeaderKeys = []string{
	"headers.authorization",
	"headers.cookie",
	"headers.x-api-key",
	"headers.proxy-authorization",
}

// Tracker handles telemetry event recording to file and stdout.
type Tracker struct {
	config       TelemetryConfig
	logPath      string
	requestCount int
	mu           sync.Mutex
}

// NewTracker creates a new telemetry tracker.
func NewTracker(cfg TelemetryConfig) (*Tracker, error) {
	t := &Tracker{config: cfg}

	if !cfg.Enabled || cfg.LogPath == "" {
		return t, nil
	}

	if err := os.MkdirAll(filepath.Dir(cfg.LogPath), 0750); err != nil {
		return nil, err
	}
	t.logPath = cfg.LogPath
	if _, err := os.Stat(cfg.LogPath); os.IsNotExist(err) {
		if f, err := os.Create(cfg.LogPath); err == nil {
			f.Close()
		}
	}

	return t, nil
}

// marshalRedacted marshals an event and strips sensitive header keys.
// HTML escaping is off so URL paths land in the log as written.
func marshalRedacted(event any) ([]byte, error) {
	data, err := utils.MarshalNoEscape(event)
	if err != nil {
		return nil, err
	}
	for _, key := range redactedHeaderKeys {
		if data, err = sjson.DeleteBytes(data, key); err != nil {
			return nil, err
		}
	}
	return data, nil
}

// appendJSONL appends a single JSON object as a line to the file.
func appendJSONL(path string, data []byte) error {
	data = append(data, '\n')

	f, err := os.OpenFile(path, os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0600)
	if err != nil {
		return err
	}
	defer f.Close()

	_, err = f.Write(data)
	return err
}

// RecordRequest records a request event.
func (t *Tracker) RecordRequest(event *RequestEvent) {
	if !t.config.Enabled {
		return
	}
	if !t.config.VerbosePayloads {
		event.Headers = nil
	}

	data, err := marshalRedacted(event)
	if err != nil {
		log.Error().Err(err).Msg("telemetry: marshal request event")
		return
	}

	t.mu.Lock()
	defer t.mu.Unlock()
	t.requestCount++

	if t.logPath != "" {
		if err := appendJSONL(t.logPath, data); err != nil {
			log.Error().Err(err).Str("path", t.logPath).Msg("telemetry: append request event")
		}
	}
	if t.config.LogToStdout {
		os.Stdout.Write(append(data, '\n'))
	}
}

// RecordInit records the startup event.
func (t *Tracker) RecordInit(event *InitEvent) {
	if !t.config.Enabled || t.logPath == "" {
		return
	}
	data, err := json.Marshal(event)
	if err != nil {
		log.Error().Err(err).Msg("telemetry: marshal init event")
		return
	}

	t.mu.Lock()
	defer t.mu.Unlock()
	if err := appendJSONL(t.logPath, data); err != nil {
		log.Error().Err(err).Str("path", t.logPath).Msg("telemetry: append init event")
	}
}

// RequestCount returns the number of request events recorded.
func (t *Tracker) RequestCount() int {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.requestCount
}
