// Package server wires HTTP handlers into a ServeMux for the relay.
package server

import "net/http"

// Routes configures and returns the ServeMux with all application routes:
// the health probe and the WebSocket endpoint.
func (s *Server) Routes() *http.ServeMux {
	mux := http.NewServeMux()
	mux.HandleFunc("/healthz", s.HealthHandler)
	mux.HandleFunc("/websocket", s.WebSocketHandler)
	return mux
}
