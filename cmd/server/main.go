// Package main implements the entry point for the task API server:
// it accepts tasks over HTTP and records them, together with their
// outbox events, for asynchronous dispatch.
package main

import (
	"context"
	"fmt"
	"log"

	"github.com/gosdep/taskflow-api/internal/config"
	"github.com/gosdep/taskflow-api/internal/platform/logger"
)

func main() {
	if err := run(); err != nil {
		log.Fatalf("server exited with error: %v", err)
	}
}

// run loads configuration, wires the application and serves until
// shutdown. Split from main so every failure path returns an error
// instead of exiting in place.
func run() error {
	cfg, err := config.Load()
	if err != nil {
		return fmt.Errorf("failed to load configuration: %w", err)
	}

	appLogger := logger.Setup(cfg.Server.LogLevel)

	appLogger.Info("server configuration loaded",
		"port", cfg.Server.Port,
		"log_level", cfg.Server.LogLevel)

	ctx := context.Background()
	app, err := newApplication(ctx, cfg, appLogger)
	if err != nil {
		return fmt.Errorf("failed to initialize application: %w", err)
	}

	return app.startHTTPServer(ctx, app.setupRouter())
}
