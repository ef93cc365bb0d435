package nbi

import (
	"net/http"
	"time"

	"github.com/gorilla/websocket"

	"github.com/citypulse/dispatch-twin/internal/logging"
)

// snapshotPushInterval is how often the websocket stream pushes the latest
// snapshot to each connected client. Snapshots are published every tick;
// pushing a subset keeps slow clients from backing up the loop.
const snapshotPushInterval = 250 * time.Millisecond

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 4096,
	// The dashboard client is served from another origin in development.
	CheckOrigin: func(r *http.Request) bool { return true },
}

// handlePositionsSocket streams the agent snapshot to a websocket client
// until the client disconnects. Each push reads the latest published
// snapshot; it never locks simulation state.
func (s *Server) handlePositionsSocket(w http.ResponseWriter, r *http.Request) {
	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		// Upgrade already wrote the HTTP error.
		return
	}
	defer conn.Close()

	ctx, log := logging.WithRequestLogger(r.Context(), s.log)
	log.Debug(ctx, "positions stream opened",
		logging.String("remote", conn.RemoteAddr().String()))

	// Discard inbound frames so pings and close frames are processed.
	go func() {
		for {
			if _, _, err := conn.ReadMessage(); err != nil {
				return
			}
		}
	}()

	ticker := time.NewTicker(snapshotPushInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if err := conn.WriteJSON(s.state.Positions()); err != nil {
				log.Debug(ctx, "positions stream closed",
					logging.String("error", err.Error()))
				return
			}
		}
	}
}
