// Package server constructs and stops the relay's HTTP listener with
// production timeout defaults.
package server

import (
	"context"
	"log/slog"
	"net/http"
	"time"
)

// CreateServer creates an HTTP server for the given address and handler.
func CreateServer(port string, handler http.Handler) *http.Server {
	return &http.Server{
		Addr:        port,
		Handler:     handler,
		ReadTimeout: 15 * time.Second,
		// No WriteTimeout: WebSocket connections outlive any fixed window.
		ReadHeaderTimeout: 10 * time.Second,
		IdleTimeout:       60 * time.Second,
	}
}

// ShutdownServer gracefully shuts down the HTTP server, waiting for active
// connections to close or the timeout to expire.
func ShutdownServer(srv *http.Server, timeout time.Duration, log *slog.Logger) error {
	ctx, cancel := context.WithTimeout(context.Background(), timeout)
	defer cancel()

	if err := srv.Shutdown(ctx); err != nil {
		log.Error("http.shutdown", "err", err)
		return err
	}
	log.Info("http.shutdown.complete")
	return nil
}
