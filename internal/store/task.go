// Package store defines interfaces for data persistence operations.
// These interfaces abstract the underlying data storage mechanism from
// the application's core logic, allowing business rules to remain
// independent of specific database technologies or persistence details.
package store

import (
	"context"
	"database/sql"

	"github.com/google/uuid"

	"github.com/gosdep/taskflow-api/internal/domain"
)

// TaskFilter narrows ListTasks results. Zero-value fields are ignored.
type TaskFilter struct {
	Priority domain.TaskPriority
	Status   domain.TaskStatus
}

// TaskStore defines the interface for persisting tasks.
type TaskStore interface {
	// Create saves a new task to the store.
	// Returns validation errors from the domain entity, or a wrapped
	// store error if the insert fails.
	Create(ctx context.Context, task *domain.Task) error

	// GetByID retrieves a task by its unique ID.
	// Returns ErrTaskNotFound if the task does not exist.
	GetByID(ctx context.Context, id uuid.UUID) (*domain.Task, error)

	// Update saves changes to an existing task.
	// Returns ErrTaskNotFound if the task does not exist.
	Update(ctx context.Context, task *domain.Task) error

	// List retrieves tasks matching the filter, newest first, along with
	// the total number of matching rows for pagination.
	List(ctx context.Context, filter TaskFilter, offset, limit int) ([]*domain.Task, int, error)

	// WithTx returns a new TaskStore instance that uses the provided transaction.
	// This allows multiple operations to be executed within a single transaction.
	// The transaction is created and managed by the caller (typically a service).
	WithTx(tx *sql.Tx) TaskStore
}
