package main

import (
	"context"
	"database/sql"
	"fmt"
	"log/slog"
	"time"

	_ "github.com/jackc/pgx/v5/stdlib" // pgx driver

	"github.com/gosdep/taskflow-api/internal/config"
	"github.com/gosdep/taskflow-api/internal/platform/postgres"
	"github.com/gosdep/taskflow-api/internal/platform/rabbitmq"
	"github.com/gosdep/taskflow-api/internal/service"
)

// application holds the wired dependencies of the API server process.
type application struct {
	config      *config.Config
	logger      *slog.Logger
	db          *sql.DB
	broker      *rabbitmq.Client
	taskService service.TaskService
}

// newApplication builds the dependency graph: database, migrations, broker
// topology, stores and services. The broker is configured here so exchanges
// and queues exist before the first task is accepted.
func newApplication(ctx context.Context, cfg *config.Config, logger *slog.Logger) (*application, error) {
	db, err := openDatabase(ctx, cfg.Database)
	if err != nil {
		return nil, err
	}

	if err := postgres.RunMigrations(ctx, db, logger); err != nil {
		_ = db.Close()
		return nil, err
	}

	broker := rabbitmq.NewClient(cfg.Broker, logger)
	if err := broker.Configure(ctx); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("failed to configure broker: %w", err)
	}

	taskStore := postgres.NewPostgresTaskStore(db, logger)
	outboxStore := postgres.NewPostgresOutboxStore(db, logger)

	taskService, err := service.NewTaskService(
		service.NewTaskRepositoryAdapter(taskStore, db),
		service.NewOutboxRepositoryAdapter(outboxStore),
		logger,
	)
	if err != nil {
		_ = broker.Close()
		_ = db.Close()
		return nil, fmt.Errorf("failed to create task service: %w", err)
	}

	return &application{
		config:      cfg,
		logger:      logger,
		db:          db,
		broker:      broker,
		taskService: taskService,
	}, nil
}

// cleanup releases external resources on shutdown.
func (app *application) cleanup() {
	if err := app.broker.Close(); err != nil {
		app.logger.Error("failed to close broker connection", "error", err)
	}
	if err := app.db.Close(); err != nil {
		app.logger.Error("failed to close database connection", "error", err)
	}
}

// openDatabase connects to Postgres and verifies the connection answers.
func openDatabase(ctx context.Context, cfg config.DatabaseConfig) (*sql.DB, error) {
	db, err := sql.Open("pgx", cfg.URL)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	pingCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	if err := db.PingContext(pingCtx); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("failed to ping database: %w", err)
	}

	return db, nil
}
