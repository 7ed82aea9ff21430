package main

import (
	"context"
	"errors"
	"log"
	"net/http"
	"os/signal"
	"syscall"

	"github.com/joho/godotenv"

	"github.com/roomrelay/relay/internal/server"
)

func main() {
	// Local .env is a dev convenience; absence is fine.
	_ = godotenv.Load()

	cfg, err := server.LoadConfig()
	if err != nil {
		log.Fatal(err)
	}
	logger := server.NewLogger(cfg.Env)

	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	relay := server.NewServer(cfg, logger)
	srv := server.CreateServer(cfg.Port, relay.Routes())

	go func() {
		logger.Info("server.listening", "addr", cfg.Port, "env", cfg.Env)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Error("server.crash", "err", err)
			cancel()
		}
	}()

	<-ctx.Done()
	logger.Info("server.shutdown.start")
	_ = server.ShutdownServer(srv, cfg.ShutdownTimeout, logger)
}
