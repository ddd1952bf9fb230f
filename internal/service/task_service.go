package service

import (
	"context"
	"database/sql"
	"errors"
	"log/slog"

	"github.com/google/uuid"

	"github.com/gosdep/taskflow-api/internal/domain"
	"github.com/gosdep/taskflow-api/internal/platform/logger"
	"github.com/gosdep/taskflow-api/internal/store"
)

// TaskRepository defines the repository interface for the service layer
type TaskRepository interface {
	// Create saves a new task to the store
	Create(ctx context.Context, task *domain.Task) error

	// GetByID retrieves a task by its unique ID
	GetByID(ctx context.Context, id uuid.UUID) (*domain.Task, error)

	// Update saves changes to an existing task
	Update(ctx context.Context, task *domain.Task) error

	// List retrieves tasks matching the filter with the total match count
	List(ctx context.Context, filter store.TaskFilter, offset, limit int) ([]*domain.Task, int, error)

	// WithTx returns a new repository instance that uses the provided transaction
	// This is used for transactional operations
	WithTx(tx *sql.Tx) TaskRepository

	// DB returns the underlying database connection
	DB() *sql.DB
}

// OutboxRepository defines the outbox-side repository interface for the
// service layer. Only Add is needed here: draining the outbox belongs to
// the publisher, not to request handling.
type OutboxRepository interface {
	// Add inserts a new unsent outbox event
	Add(ctx context.Context, event *domain.OutboxEvent) error

	// WithTx returns a new repository instance that uses the provided transaction
	WithTx(tx *sql.Tx) OutboxRepository
}

// TaskService provides task-related operations. Every state mutation is
// paired with its outbox event inside one transaction, so an observer of
// the outbox sees exactly the mutations that committed.
type TaskService interface {
	// CreateTask creates a new PENDING task and records a "task.created"
	// outbox event in the same transaction.
	CreateTask(ctx context.Context, title, description string, priority domain.TaskPriority) (*domain.Task, error)

	// GetTask retrieves a task by its ID.
	GetTask(ctx context.Context, id uuid.UUID) (*domain.Task, error)

	// GetTaskStatus retrieves just the current status of a task.
	GetTaskStatus(ctx context.Context, id uuid.UUID) (domain.TaskStatus, error)

	// ListTasks retrieves tasks matching the filter, newest first, along
	// with the total number of matching tasks.
	ListTasks(ctx context.Context, filter store.TaskFilter, offset, limit int) ([]*domain.Task, int, error)

	// DeleteTask cancels a task and records a "task.deleted" outbox event
	// in the same transaction. Completed and failed tasks cannot be
	// cancelled; domain.ErrInvalidTransition is returned for those.
	DeleteTask(ctx context.Context, id uuid.UUID) error

	// CompleteTask marks a task COMPLETED and records the finish time.
	// Called by workers after successful processing. Tasks already in a
	// terminal state return domain.ErrInvalidTransition.
	CompleteTask(ctx context.Context, id uuid.UUID) error
}

// taskServiceImpl implements the TaskService interface
type taskServiceImpl struct {
	taskRepo   TaskRepository
	outboxRepo OutboxRepository
	logger     *slog.Logger
}

// NewTaskService creates a new TaskService.
// It returns an error if any of the required dependencies are nil.
func NewTaskService(
	taskRepo TaskRepository,
	outboxRepo OutboxRepository,
	logger *slog.Logger,
) (TaskService, error) {
	if taskRepo == nil {
		return nil, NewTaskServiceError("new", "taskRepo cannot be nil", nil)
	}
	if outboxRepo == nil {
		return nil, NewTaskServiceError("new", "outboxRepo cannot be nil", nil)
	}
	if logger == nil {
		logger = slog.Default()
	}

	return &taskServiceImpl{
		taskRepo:   taskRepo,
		outboxRepo: outboxRepo,
		logger:     logger.With(slog.String("component", "task_service")),
	}, nil
}

// CreateTask implements TaskService.CreateTask
func (s *taskServiceImpl) CreateTask(
	ctx context.Context,
	title, description string,
	priority domain.TaskPriority,
) (*domain.Task, error) {
	log := logger.FromContextOrDefault(ctx, s.logger)

	task, err := domain.NewTask(title, description, priority)
	if err != nil {
		// Domain validation sentinels pass through for the API layer.
		return nil, err
	}

	payload := domain.TaskCreatedPayload{
		TaskID:      task.ID,
		Title:       task.Title,
		Description: task.Description,
		Priority:    string(task.Priority),
	}
	event, err := domain.NewOutboxEvent(
		domain.AggregateTypeTask,
		task.ID,
		domain.EventTypeTaskCreated,
		payload,
	)
	if err != nil {
		return nil, NewTaskServiceError("create_task", "failed to build outbox event", err)
	}

	err = store.RunInTransaction(ctx, s.taskRepo.DB(), func(ctx context.Context, tx *sql.Tx) error {
		txTaskRepo := s.taskRepo.WithTx(tx)
		txOutboxRepo := s.outboxRepo.WithTx(tx)

		if err := txTaskRepo.Create(ctx, task); err != nil {
			return NewTaskServiceError("create_task", "failed to save task", err)
		}
		if err := txOutboxRepo.Add(ctx, event); err != nil {
			return NewTaskServiceError("create_task", "failed to record outbox event", err)
		}
		return nil
	})
	if err != nil {
		log.Error("task creation failed",
			slog.String("error", err.Error()))
		return nil, err
	}

	log.Info("task created",
		slog.String("task_id", task.ID.String()),
		slog.String("priority", string(task.Priority)))
	return task, nil
}

// GetTask implements TaskService.GetTask
func (s *taskServiceImpl) GetTask(ctx context.Context, id uuid.UUID) (*domain.Task, error) {
	task, err := s.taskRepo.GetByID(ctx, id)
	if err != nil {
		if store.IsNotFoundError(err) {
			return nil, ErrTaskNotFound
		}
		return nil, NewTaskServiceError("get_task", "failed to retrieve task", err)
	}
	return task, nil
}

// GetTaskStatus implements TaskService.GetTaskStatus
func (s *taskServiceImpl) GetTaskStatus(ctx context.Context, id uuid.UUID) (domain.TaskStatus, error) {
	task, err := s.GetTask(ctx, id)
	if err != nil {
		return "", err
	}
	return task.Status, nil
}

// ListTasks implements TaskService.ListTasks
func (s *taskServiceImpl) ListTasks(
	ctx context.Context,
	filter store.TaskFilter,
	offset, limit int,
) ([]*domain.Task, int, error) {
	tasks, total, err := s.taskRepo.List(ctx, filter, offset, limit)
	if err != nil {
		return nil, 0, NewTaskServiceError("list_tasks", "failed to list tasks", err)
	}
	return tasks, total, nil
}

// DeleteTask implements TaskService.DeleteTask
func (s *taskServiceImpl) DeleteTask(ctx context.Context, id uuid.UUID) error {
	log := logger.FromContextOrDefault(ctx, s.logger)

	err := store.RunInTransaction(ctx, s.taskRepo.DB(), func(ctx context.Context, tx *sql.Tx) error {
		txTaskRepo := s.taskRepo.WithTx(tx)
		txOutboxRepo := s.outboxRepo.WithTx(tx)

		task, err := txTaskRepo.GetByID(ctx, id)
		if err != nil {
			if store.IsNotFoundError(err) {
				return ErrTaskNotFound
			}
			return NewTaskServiceError("delete_task", "failed to retrieve task", err)
		}

		if err := task.Cancel(); err != nil {
			// Terminal-state guard; the API layer maps this to a client error.
			return err
		}

		if err := txTaskRepo.Update(ctx, task); err != nil {
			return NewTaskServiceError("delete_task", "failed to update task", err)
		}

		event, err := domain.NewOutboxEvent(
			domain.AggregateTypeTask,
			task.ID,
			domain.EventTypeTaskDeleted,
			domain.TaskDeletedPayload{TaskID: task.ID},
		)
		if err != nil {
			return NewTaskServiceError("delete_task", "failed to build outbox event", err)
		}
		if err := txOutboxRepo.Add(ctx, event); err != nil {
			return NewTaskServiceError("delete_task", "failed to record outbox event", err)
		}
		return nil
	})
	if err != nil {
		if errors.Is(err, ErrTaskNotFound) || errors.Is(err, domain.ErrInvalidTransition) {
			return err
		}
		log.Error("task deletion failed",
			slog.String("task_id", id.String()),
			slog.String("error", err.Error()))
		return err
	}

	log.Info("task cancelled",
		slog.String("task_id", id.String()))
	return nil
}

// CompleteTask implements TaskService.CompleteTask
func (s *taskServiceImpl) CompleteTask(ctx context.Context, id uuid.UUID) error {
	log := logger.FromContextOrDefault(ctx, s.logger)

	err := store.RunInTransaction(ctx, s.taskRepo.DB(), func(ctx context.Context, tx *sql.Tx) error {
		txTaskRepo := s.taskRepo.WithTx(tx)

		task, err := txTaskRepo.GetByID(ctx, id)
		if err != nil {
			if store.IsNotFoundError(err) {
				return ErrTaskNotFound
			}
			return NewTaskServiceError("complete_task", "failed to retrieve task", err)
		}

		if err := task.Complete(); err != nil {
			return err
		}

		if err := txTaskRepo.Update(ctx, task); err != nil {
			return NewTaskServiceError("complete_task", "failed to update task", err)
		}
		return nil
	})
	if err != nil {
		return err
	}

	log.Info("task completed",
		slog.String("task_id", id.String()))
	return nil
}
