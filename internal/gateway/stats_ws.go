// Live metrics over WebSocket.
//
// GET /stats/ws upgrades the connection and pushes a metrics snapshot
// every interval until the client goes away. Dashboards subscribe here
// instead of polling /stats.
package gateway

import (
	"context"
	"encoding/json"
	"net/http"
	"time"

	"github.com/coder/websocket"
)

// statsPushInterval is how often a snapshot is pushed to subscribers.
const statsPushInterval = 2 * time.Second

// handleStatsWS streams metrics snapshots over a WebSocket connection.
func (g *Gateway) handleStatsWS(w http.ResponseWriter, r *http.Request) {
	if !isLoopback(r.RemoteAddr) {
		http.Error(w, "forbidden", http.StatusForbidden)
		return
	}

	conn, err := websocket.Accept(w, r, nil)
	if err != nil {
		g.logger.Debug().Err(err).Msg("websocket accept failed")
		return
	}
	defer conn.Close(websocket.StatusNormalClosure, "done")

	ctx := r.Context()

	// Drain client frames so pings are answered and closure is noticed.
	go func() {
		for {
			if _, _, err := conn.Read(ctx); err != nil {
				return
			}
		}
	}()

	ticker := time.NewTicker(statsPushInterval)
	defer ticker.Stop()

	// First snapshot goes out immediately.
	if err := g.pushSnapshot(ctx, conn); err != nil {
		return
	}

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if err := g.pushSnapshot(ctx, conn); err != nil {
				g.logger.Debug().Err(err).Msg("stats subscriber disconnected")
				return
			}
		}
	}
}

func (g *Gateway) pushSnapshot(ctx context.Context, conn *websocket.Conn) error {
	data, err := json.Marshal(g.snapshotStats())
	if err != nil {
		return err
	}

	writeCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	return conn.Write(writeCtx, websocket.MessageText, data)
}
