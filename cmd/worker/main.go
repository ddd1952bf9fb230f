// Package main implements the worker process: it consumes one priority
// queue and completes the tasks its messages name.
package main

import (
	"context"
	"database/sql"
	"errors"
	"flag"
	"fmt"
	"log"
	"os"
	"os/signal"
	"syscall"
	"time"

	_ "github.com/jackc/pgx/v5/stdlib" // pgx driver

	"github.com/gosdep/taskflow-api/internal/config"
	"github.com/gosdep/taskflow-api/internal/platform/logger"
	"github.com/gosdep/taskflow-api/internal/platform/postgres"
	"github.com/gosdep/taskflow-api/internal/platform/rabbitmq"
	"github.com/gosdep/taskflow-api/internal/service"
	"github.com/gosdep/taskflow-api/internal/worker"
)

func main() {
	queue := flag.String("queue", rabbitmq.RoutingKeyMedium,
		"priority queue to consume (high, medium or low)")
	flag.Parse()

	if err := run(*queue); err != nil && !errors.Is(err, context.Canceled) {
		log.Fatalf("worker exited with error: %v", err)
	}
}

func run(queue string) error {
	switch queue {
	case rabbitmq.RoutingKeyHigh, rabbitmq.RoutingKeyMedium, rabbitmq.RoutingKeyLow:
	default:
		return fmt.Errorf("unknown queue %q: must be high, medium or low", queue)
	}

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

	taskService, err := service.NewTaskService(
		service.NewTaskRepositoryAdapter(postgres.NewPostgresTaskStore(db, appLogger), db),
		service.NewOutboxRepositoryAdapter(postgres.NewPostgresOutboxStore(db, appLogger)),
		appLogger,
	)
	if err != nil {
		return fmt.Errorf("failed to create task service: %w", err)
	}

	handler, err := worker.NewCompleteTaskHandler(taskService, appLogger)
	if err != nil {
		return fmt.Errorf("failed to create handler: %w", err)
	}

	w, err := worker.NewWorker(broker, handler, queue, cfg.Worker, appLogger)
	if err != nil {
		return fmt.Errorf("failed to create worker: %w", err)
	}

	return w.Run(ctx)
}
