// Package server exposes the HTTP handlers: the authenticated websocket
// upgrade and the health check.
package server

import (
	"fmt"
	"net/http"
	"strings"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"
)

// WebSocketHandler authenticates the handshake and upgrades the connection.
// The credential is verified before the upgrade, so a rejected connection is
// refused with 401 and never subscribes to any group.
func WebSocketHandler(hub *Hub, cfg *Config) http.HandlerFunc {
	upgrader := websocket.Upgrader{
		ReadBufferSize:  1024,
		WriteBufferSize: 1024,
		CheckOrigin:     newOriginPolicy(cfg.Origins(), hub.log).check,
	}
	secret := []byte(cfg.JWTSecret)

	return func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodGet {
			http.Error(w, "websocket endpoint only accepts GET", http.StatusMethodNotAllowed)
			return
		}

		connID := uuid.NewString()
		identity, err := VerifyToken(bearerToken(r), secret)
		if err != nil {
			hub.audit.Consume(AuditEvent{
				Kind:   AuditConnectionRejected,
				ConnID: connID,
				Reason: rejectReason(err),
			})
			http.Error(w, "unauthorized", http.StatusUnauthorized)
			return
		}

		conn, err := upgrader.Upgrade(w, r, nil)
		if err != nil {
			// Upgrade already wrote the HTTP error response.
			hub.log.Debug("websocket upgrade failed", "conn_id", connID, "error", err)
			return
		}

		hub.register <- newClient(connID, conn, hub, identity)
	}
}

// bearerToken extracts the handshake credential from the token query
// parameter or the Authorization header. Browser websocket clients cannot
// set headers, hence the query fallback.
func bearerToken(r *http.Request) string {
	if token := r.URL.Query().Get("token"); token != "" {
		return token
	}

	const prefix = "Bearer "
	header := r.Header.Get("Authorization")
	if strings.HasPrefix(header, prefix) {
		return strings.TrimSpace(header[len(prefix):])
	}
	return ""
}

// HealthHandler reports process liveness.
func HealthHandler(w http.ResponseWriter, _ *http.Request) {
	w.Header().Set("Content-Type", "text/plain")
	_, _ = fmt.Fprint(w, "ok")
}
