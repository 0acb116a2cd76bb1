package controllers

import (
	"net/http"

	"github.com/gorilla/websocket"

	"github.com/aria7-op/school-mis-backend/internal/realtime"
	"github.com/aria7-op/school-mis-backend/pkg/config"
	"github.com/aria7-op/school-mis-backend/pkg/logger"
	"github.com/aria7-op/school-mis-backend/pkg/metrics"
)

// RealtimeSocket upgrades the request to a WebSocket and runs a session
// until the peer disconnects. Authentication happens in-band via the
// auth:login handshake, so the route itself is unauthenticated.
func RealtimeSocket(cfg *config.Config, hub *realtime.Hub, mirror realtime.MirrorHandler, m *metrics.RealtimeMetrics, logg *logger.Logger) http.HandlerFunc {
	upgrader := websocket.Upgrader{
		ReadBufferSize:  4096,
		WriteBufferSize: 4096,
		CheckOrigin: func(r *http.Request) bool {
			// Browser origin checks add nothing here: the handshake
			// requires a valid bearer token before any data flows.
			return true
		},
	}

	return func(w http.ResponseWriter, r *http.Request) {
		conn, err := upgrader.Upgrade(w, r, nil)
		if err != nil {
			// Upgrade already wrote an HTTP error to the client.
			logg.Warn(logg.WithField(r.Context(), "error", err.Error()), "websocket upgrade failed")
			return
		}

		session, err := realtime.NewSession(conn, hub, mirror, cfg.JWT, cfg.Realtime, m, logg)
		if err != nil {
			logg.Error(r.Context(), "realtime session setup failed", err)
			_ = conn.Close()
			return
		}
		if err := session.Run(r.Context()); err != nil {
			logg.Warn(logg.WithField(r.Context(), "error", err.Error()), "realtime session ended")
		}
	}
}
