// Package store persists per-request history rows for the dashboard.
//
// DESIGN: One row per completed request, pruned on a background loop by
// retention window. SQLite keeps single-binary deployments simple; for
// multi-instance deployments, implement History against a shared DB.
package store

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	_ "modernc.org/sqlite"
)

// Entry is one completed request.
type Entry struct {
	RequestID   string    `json:"request_id"`
	Timestamp   time.Time `json:"timestamp"`
	Method      string    `json:"method"`
	Path        string    `json:"path"`
	Class       string    `json:"class"`
	StatusCode  int       `json:"status_code"`
	CacheStatus string    `json:"cache_status"`
	LatencyMs   int64     `json:"latency_ms"`
}

// History records completed requests and serves recent ones back.
type History interface {
	// Append stores one completed request.
	Append(ctx context.Context, e Entry) error

	// Recent returns up to limit entries, newest first.
	Recent(ctx context.Context, limit int) ([]Entry, error)

	// Prune removes entries older than the cutoff.
	Prune(ctx context.Context, olderThan time.Time) error

	// Close releases resources.
	Close() error
}

const schema = `
CREATE TABLE IF NOT EXISTS request_history (
	id           INTEGER PRIMARY KEY AUTOINCREMENT,
	request_id   TEXT NOT NULL,
	ts           INTEGER NOT NULL,
	method       TEXT NOT NULL,
	path         TEXT NOT NULL,
	class        TEXT NOT NULL,
	status_code  INTEGER NOT NULL,
	cache_status TEXT NOT NULL DEFAULT '',
	latency_ms   INTEGER NOT NULL
);
CREATE INDEX IF NOT EXISTS idx_request_history_ts ON request_history (ts);
`

// SQLiteHistory is the SQLite-backed History.
type SQLiteHistory struct {
	db        *sql.DB
	retention time.Duration
	stopChan  chan struct{}
}

// OpenSQLite opens (or creates) the history database at path and starts
// the background prune loop.
func OpenSQLite(path string, retention, pruneInterval time.Duration) (*SQLiteHistory, error) {
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("open history db: %w", err)
	}

	// Single writer; the gateway appends from many request goroutines.
	db.SetMaxOpenConns(1)

	if _, err := db.Exec(schema); err != nil {
		db.Close()
		return nil, fmt.Errorf("apply history schema: %w", err)
	}

	h := &SQLiteHistory{
		db:        db,
		retention: retention,
		stopChan:  make(chan struct{}),
	}
	go h.pruneLoop(pruneInterval)
	return h, nil
}

func (h *SQLiteHistory) Append(ctx context.Context, e Entry) error {
	_, err := h.db.ExecContext(ctx,
		`INSERT INTO request_history
			(request_id, ts, method, path, class, status_code, cache_status, latency_ms)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?)`,
		e.RequestID, e.Timestamp.UnixMilli(), e.Method, e.Path, e.Class,
		e.StatusCode, e.CacheStatus, e.LatencyMs,
	)
	if err != nil {
		return fmt.Errorf("append history row: %w", err)
	}
	return nil
}

func (h *SQLiteHistory) Recent(ctx context.Context, limit int) ([]Entry, error) {
	if limit <= 0 {
		limit = 100
	}

	rows, err := h.db.QueryContext(ctx,
		`SELECT request_id, ts, method, path, class, status_code, cache_status, latency_ms
		 FROM request_history ORDER BY ts DESC, id DESC LIMIT ?`, limit)
	if err != nil {
		return nil, fmt.Errorf("query history: %w", err)
	}
	defer rows.Close()

	var entries []Entry
	for rows.Next() {
		var e Entry
		var ts int64
		if err := rows.Scan(&e.RequestID, &ts, &e.Method, &e.Path, &e.Class,
			&e.StatusCode, &e.CacheStatus, &e.LatencyMs); err != nil {
			return nil, fmt.Errorf("scan history row: %w", err)
		}
		e.Timestamp = time.UnixMilli(ts)
		entries = append(entries, e)
	}
	return entries, rows.Err()
}

func (h *SQLiteHistory) Prune(ctx context.Context, olderThan time.Time) error {
	_, err := h.db.ExecContext(ctx,
		`DELETE FROM request_history WHERE ts < ?`, olderThan.UnixMilli())
	if err != nil {
		return fmt.Errorf("prune history: %w", err)
	}
	return nil
}

func (h *SQLiteHistory) pruneLoop(interval time.Duration) {
	if interval <= 0 {
		interval = time.Hour
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
			_ = h.Prune(ctx, time.Now().Add(-h.retention))
			cancel()
		case <-h.stopChan:
			return
		}
	}
}

func (h *SQLiteHistory) Close() error {
	close(h.stopChan)
	return h.db.Close()
}

// NopHistory discards everything; used when history is disabled.
type NopHistory struct{}

func (NopHistory) Append(context.Context, Entry) error { return nil }

func (NopHistory) Recent(context.Context, int) ([]Entry, error) { return nil, nil }

func (NopHistory) Prune(context.Context, time.Time) error { return nil }

func (NopHistory) Close() error { return nil }
