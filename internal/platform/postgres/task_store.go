package postgres

import (
	"context"
	"database/sql"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/gosdep/taskflow-api/internal/domain"
	"github.com/gosdep/taskflow-api/internal/platform/logger"
	"github.com/gosdep/taskflow-api/internal/store"
)

// PostgresTaskStore implements the store.TaskStore interface using PostgreSQL.
type PostgresTaskStore struct {
	db     store.DBTX
	logger *slog.Logger
}

// NewPostgresTaskStore creates a new PostgresTaskStore.
func NewPostgresTaskStore(db store.DBTX, logger *slog.Logger) *PostgresTaskStore {
	return &PostgresTaskStore{
		db:     db,
		logger: logger.With("component", "task_store"),
	}
}

// Ensure PostgresTaskStore implements store.TaskStore
var _ store.TaskStore = (*PostgresTaskStore)(nil)

// WithTx returns a new TaskStore instance bound to the provided transaction.
func (s *PostgresTaskStore) WithTx(tx *sql.Tx) store.TaskStore {
	return &PostgresTaskStore{
		db:     tx,
		logger: s.logger,
	}
}

// Create saves a new task to the database.
func (s *PostgresTaskStore) Create(ctx context.Context, task *domain.Task) error {
	log := logger.FromContextOrDefault(ctx, s.logger)

	if err := task.Validate(); err != nil {
		return fmt.Errorf("%w: %v", store.ErrInvalidEntity, err)
	}

	query := `
		INSERT INTO tasks (id, title, description, priority, status, created_at, started_at, finished_at, result, error)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)
	`

	_, err := s.db.ExecContext(ctx, query,
		task.ID,
		task.Title,
		task.Description,
		task.Priority,
		task.Status,
		task.CreatedAt,
		task.StartedAt,
		task.FinishedAt,
		task.Result,
		task.Error,
	)
	if err != nil {
		log.Error("failed to create task",
			"task_id", task.ID,
			"error", err)
		return MapError(err)
	}

	log.Debug("task created",
		"task_id", task.ID,
		"priority", task.Priority)
	return nil
}

// GetByID retrieves a task by its unique ID.
// Returns store.ErrTaskNotFound if the task does not exist.
func (s *PostgresTaskStore) GetByID(ctx context.Context, id uuid.UUID) (*domain.Task, error) {
	log := logger.FromContextOrDefault(ctx, s.logger)

	query := `
		SELECT id, title, description, priority, status, created_at, started_at, finished_at, result, error
		FROM tasks
		WHERE id = $1
	`

	task, err := scanTask(s.db.QueryRowContext(ctx, query, id))
	if err != nil {
		if IsNotFoundError(MapError(err)) {
			return nil, store.ErrTaskNotFound
		}
		log.Error("failed to get task",
			"task_id", id,
			"error", err)
		return nil, MapError(err)
	}

	return task, nil
}

// Update saves changes to an existing task.
// Returns store.ErrTaskNotFound if the task does not exist.
// Updates carry no version guard: a completion racing a cancellation is
// last-write-wins.
func (s *PostgresTaskStore) Update(ctx context.Context, task *domain.Task) error {
	log := logger.FromContextOrDefault(ctx, s.logger)

	if err := task.Validate(); err != nil {
		return fmt.Errorf("%w: %v", store.ErrInvalidEntity, err)
	}

	query := `
		UPDATE tasks
		SET title = $2, description = $3, priority = $4, status = $5,
		    started_at = $6, finished_at = $7, result = $8, error = $9
		WHERE id = $1
	`

	result, err := s.db.ExecContext(ctx, query,
		task.ID,
		task.Title,
		task.Description,
		task.Priority,
		task.Status,
		task.StartedAt,
		task.FinishedAt,
		task.Result,
		task.Error,
	)
	if err != nil {
		log.Error("failed to update task",
			"task_id", task.ID,
			"error", err)
		return MapError(err)
	}

	if err := CheckRowsAffected(result, "task"); err != nil {
		return store.ErrTaskNotFound
	}

	log.Debug("task updated",
		"task_id", task.ID,
		"status", task.Status)
	return nil
}

// List retrieves tasks matching the filter, newest first, along with the
// total number of matching rows.
func (s *PostgresTaskStore) List(
	ctx context.Context,
	filter store.TaskFilter,
	offset, limit int,
) ([]*domain.Task, int, error) {
	log := logger.FromContextOrDefault(ctx, s.logger)

	where, args := buildTaskFilter(filter)

	countQuery := "SELECT COUNT(id) FROM tasks" + where

	var total int
	if err := s.db.QueryRowContext(ctx, countQuery, args...).Scan(&total); err != nil {
		log.Error("failed to count tasks", "error", err)
		return nil, 0, MapError(err)
	}

	listQuery := fmt.Sprintf(`
		SELECT id, title, description, priority, status, created_at, started_at, finished_at, result, error
		FROM tasks%s
		ORDER BY created_at DESC
		OFFSET $%d LIMIT $%d
	`, where, len(args)+1, len(args)+2)

	rows, err := s.db.QueryContext(ctx, listQuery, append(args, offset, limit)...)
	if err != nil {
		log.Error("failed to list tasks", "error", err)
		return nil, 0, MapError(err)
	}
	defer func() { _ = rows.Close() }()

	var tasks []*domain.Task
	for rows.Next() {
		task, err := scanTask(rows)
		if err != nil {
			log.Error("failed to scan task row", "error", err)
			return nil, 0, MapError(err)
		}
		tasks = append(tasks, task)
	}

	if err := rows.Err(); err != nil {
		log.Error("error iterating task rows", "error", err)
		return nil, 0, MapError(err)
	}

	return tasks, total, nil
}

// buildTaskFilter assembles the WHERE clause for List queries.
func buildTaskFilter(filter store.TaskFilter) (string, []any) {
	var clauses []string
	var args []any

	if filter.Priority != "" {
		args = append(args, filter.Priority)
		clauses = append(clauses, fmt.Sprintf("priority = $%d", len(args)))
	}
	if filter.Status != "" {
		args = append(args, filter.Status)
		clauses = append(clauses, fmt.Sprintf("status = $%d", len(args)))
	}

	if len(clauses) == 0 {
		return "", nil
	}
	return " WHERE " + strings.Join(clauses, " AND "), args
}

// rowScanner is satisfied by both *sql.Row and *sql.Rows.
type rowScanner interface {
	Scan(dest ...any) error
}

// scanTask reads one task row into a domain.Task.
func scanTask(row rowScanner) (*domain.Task, error) {
	var (
		task        domain.Task
		description sql.NullString
		startedAt   sql.NullTime
		finishedAt  sql.NullTime
		result      sql.NullString
		errMsg      sql.NullString
		createdAt   time.Time
	)

	err := row.Scan(
		&task.ID,
		&task.Title,
		&description,
		&task.Priority,
		&task.Status,
		&createdAt,
		&startedAt,
		&finishedAt,
		&result,
		&errMsg,
	)
	if err != nil {
		return nil, err
	}

	task.Description = description.String
	task.CreatedAt = createdAt
	task.Result = result.String
	task.Error = errMsg.String
	if startedAt.Valid {
		task.StartedAt = &startedAt.Time
	}
	if finishedAt.Valid {
		task.FinishedAt = &finishedAt.Time
	}

	return &task, nil
}
