// Package server wires the HTTP handlers into a ServeMux.
package server

import "net/http"

// SetupRoutes returns the relay's HTTP mux: health check and the
// authenticated websocket endpoint.
func SetupRoutes(hub *Hub, cfg *Config) *http.ServeMux {
	mux := http.NewServeMux()
	mux.HandleFunc("/healthz", HealthHandler)
	mux.HandleFunc("/ws", WebSocketHandler(hub, cfg))
	return mux
}
