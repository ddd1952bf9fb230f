// Package main implements the outbox publisher process: it polls the
// outbox table for unsent events and moves them onto the broker.
package main

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log"
	"os"
	"os/signal"
	"syscall"
	"time"

	_ "github.com/jackc/pgx/v5/stdlib" // pgx driver

	"github.com/gosdep/taskflow-api/internal/config"
	"github.com/gosdep/taskflow-api/internal/outbox"
	"github.com/gosdep/taskflow-api/internal/platform/logger"
	"github.com/gosdep/taskflow-api/internal/platform/postgres"
	"github.com/gosdep/taskflow-api/internal/platform/rabbitmq"
)

func main() {
	if err := run(); err != nil && !errors.Is(err, context.Canceled) {
		log.Fatalf("outbox publisher exited with error: %v", err)
	}
}

func run() error {
	cfg, err := config.Load()
	if err != nil {
		return fmt.Errorf("failed to load configuration: %w", err)
	}

	appLogger := logger.Setup(cfg.Server.LogLevel)

	db, err := sql.Open("pgx", cfg.Database.URL)
	if err != nil {
		return fmt.Errorf("failed to open database: %w", err)
	}
	defer func() { _ = db.Close() }()

	pingCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	err = db.PingContext(pingCtx)
	cancel()
	if err != nil {
		return fmt.Errorf("failed to ping database: %w", err)
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	broker := rabbitmq.NewClient(cfg.Broker, appLogger)
	defer func() {
		if err := broker.Close(); err != nil {
			appLogger.Error("failed to close broker connection", "error", err)
		}
	}()
	if err := broker.Configure(ctx); err != nil {
		return fmt.Errorf("failed to configure broker: %w", err)
	}

	publisher, err := outbox.NewPublisher(
		db,
		postgres.NewPostgresOutboxStore(db, appLogger),
		broker,
		cfg.Outbox,
		appLogger,
	)
	if err != nil {
		return fmt.Errorf("failed to create publisher: %w", err)
	}

	return publisher.Run(ctx)
}
