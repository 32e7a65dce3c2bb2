// Package server wires HTTP handlers into a ServeMux for the forum gateway
// via routing helpers.
package server

import "net/http"

// SetupRoutes configures and returns an HTTP ServeMux with all gateway routes.
// The WebSocket endpoint is served at /api/ws and at the legacy /ws path.
func SetupRoutes(g *Gateway) *http.ServeMux {
	mux := http.NewServeMux()
	mux.HandleFunc("/", HealthHandler)
	mux.HandleFunc("/api/ws", g.WebSocketHandler)
	mux.HandleFunc("/ws", g.WebSocketHandler)
	mux.HandleFunc("/test", TestPageHandler)
	return mux
}
