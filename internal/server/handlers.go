// Package server exposes the HTTP handlers: the WebSocket upgrade endpoint
// that runs each session loop, and the health probe.
package server

import (
	"fmt"
	"log/slog"
	"net/http"

	"github.com/gorilla/websocket"
)

// Server owns the shared relay state and the HTTP-facing surface.
type Server struct {
	cfg      Config
	log      *slog.Logger
	registry *SessionRegistry
	rooms    *RoomIndex
	caster   *Broadcaster
	upgrader websocket.Upgrader
}

// NewServer assembles the relay: session registry, room index, and broadcast
// engine wired to the given configuration and logger.
func NewServer(cfg Config, log *slog.Logger) *Server {
	registry := NewSessionRegistry()
	rooms := NewRoomIndex()
	policy := newOriginPolicy(cfg.AllowedOrigins)

	return &Server{
		cfg:      cfg,
		log:      log,
		registry: registry,
		rooms:    rooms,
		caster:   NewBroadcaster(registry, rooms, log, cfg.SendTimeout),
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 1024,
			CheckOrigin:     policy.check,
		},
	}
}

// Registry returns the session registry, used by tests and shutdown logging.
func (s *Server) Registry() *SessionRegistry { return s.registry }

// Rooms returns the room index.
func (s *Server) Rooms() *RoomIndex { return s.rooms }

// WebSocketHandler upgrades the request and runs the session loop to
// completion in the handler goroutine. Every termination path ends with the
// session gone from the registry and from every room.
func (s *Server) WebSocketHandler(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.Error(w, "Method not allowed. WebSocket endpoint only accepts GET requests.", http.StatusMethodNotAllowed)
		return
	}

	conn, err := s.upgrader.Upgrade(w, r, nil)
	if err != nil {
		s.log.Warn("ws.upgrade", "remote", r.RemoteAddr, "err", err)
		return
	}

	handle := NewWSHandle(conn, s.cfg.MaxMessageSize, s.cfg.SendTimeout)
	limiter := newRateLimiter(s.cfg.RateLimitBurst, s.cfg.RateLimitRefillInterval)
	session := NewSession(handle, s.registry, s.rooms, s.caster, limiter, s.log)

	s.log.Info("session.connected", "session", session.ID(), "remote", r.RemoteAddr)
	if err := session.Run(r.Context()); err != nil {
		s.log.Warn("session.ended", "session", session.ID(), "err", err)
	} else {
		s.log.Info("session.ended", "session", session.ID())
	}
	_ = handle.Close()
}

// HealthHandler provides a simple health check endpoint that returns relay
// status as plain text.
func (s *Server) HealthHandler(w http.ResponseWriter, _ *http.Request) {
	w.Header().Set("Content-Type", "text/plain")
	_, _ = fmt.Fprintf(w, "relay is running: %d sessions, %d rooms", s.registry.Len(), s.rooms.Len())
}
