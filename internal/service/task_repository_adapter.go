package service

import (
	"context"
	"database/sql"

	"github.com/google/uuid"

	"github.com/gosdep/taskflow-api/internal/domain"
	"github.com/gosdep/taskflow-api/internal/store"
)

// NewTaskRepositoryAdapter creates a new adapter that allows a store.TaskStore
// to be used where a TaskRepository is expected.
func NewTaskRepositoryAdapter(taskStore store.TaskStore, db *sql.DB) TaskRepository {
	return &taskRepositoryAdapter{
		taskStore: taskStore,
		db:        db,
	}
}

// taskRepositoryAdapter adapts a store.TaskStore to the TaskRepository interface
type taskRepositoryAdapter struct {
	taskStore store.TaskStore
	db        *sql.DB
}

// Create implements TaskRepository.Create
func (a *taskRepositoryAdapter) Create(ctx context.Context, task *domain.Task) error {
	return a.taskStore.Create(ctx, task)
}

// GetByID implements TaskRepository.GetByID
func (a *taskRepositoryAdapter) GetByID(ctx context.Context, id uuid.UUID) (*domain.Task, error) {
	return a.taskStore.GetByID(ctx, id)
}

// Update implements TaskRepository.Update
func (a *taskRepositoryAdapter) Update(ctx context.Context, task *domain.Task) error {
	return a.taskStore.Update(ctx, task)
}

// List implements TaskRepository.List
func (a *taskRepositoryAdapter) List(
	ctx context.Context,
	filter store.TaskFilter,
	offset, limit int,
) ([]*domain.Task, int, error) {
	return a.taskStore.List(ctx, filter, offset, limit)
}

// WithTx implements TaskRepository.WithTx
func (a *taskRepositoryAdapter) WithTx(tx *sql.Tx) TaskRepository {
	return &taskRepositoryAdapter{
		taskStore: a.taskStore.WithTx(tx),
		db:        a.db,
	}
}

// DB implements TaskRepository.DB
func (a *taskRepositoryAdapter) DB() *sql.DB {
	return a.db
}

// NewOutboxRepositoryAdapter creates a new adapter that allows a
// store.OutboxStore to be used where an OutboxRepository is expected.
func NewOutboxRepositoryAdapter(outboxStore store.OutboxStore) OutboxRepository {
	return &outboxRepositoryAdapter{outboxStore: outboxStore}
}

// outboxRepositoryAdapter adapts a store.OutboxStore to the OutboxRepository interface
type outboxRepositoryAdapter struct {
	outboxStore store.OutboxStore
}

// Add implements OutboxRepository.Add
func (a *outboxRepositoryAdapter) Add(ctx context.Context, event *domain.OutboxEvent) error {
	return a.outboxStore.Add(ctx, event)
}

// WithTx implements OutboxRepository.WithTx
func (a *outboxRepositoryAdapter) WithTx(tx *sql.Tx) OutboxRepository {
	return &outboxRepositoryAdapter{outboxStore: a.outboxStore.WithTx(tx)}
}
