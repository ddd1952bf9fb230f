package worker

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/gosdep/taskflow-api/internal/domain"
	"github.com/gosdep/taskflow-api/internal/service"
)

// CompleteTaskHandler is the standard task handler: it marks the consumed
// task COMPLETED. An unknown task id is a handler error and goes through
// escalation, since the outbox guarantees the row committed before the
// message existed and a retry may be racing replication or a slow commit.
type CompleteTaskHandler struct {
	taskService service.TaskService
	logger      *slog.Logger
}

// NewCompleteTaskHandler creates a CompleteTaskHandler.
func NewCompleteTaskHandler(taskService service.TaskService, logger *slog.Logger) (*CompleteTaskHandler, error) {
	if taskService == nil {
		return nil, errors.New("worker: taskService cannot be nil")
	}
	if logger == nil {
		logger = slog.Default()
	}

	return &CompleteTaskHandler{
		taskService: taskService,
		logger:      logger.With(slog.String("component", "complete_task_handler")),
	}, nil
}

// Handle implements Handler.
func (h *CompleteTaskHandler) Handle(ctx context.Context, msg domain.TaskMessage) error {
	if err := h.taskService.CompleteTask(ctx, msg.TaskID); err != nil {
		// Delivery is at-least-once, so a redelivered message can find the
		// task already in a terminal state. That is a duplicate, not a
		// failure; retrying it would never succeed.
		if errors.Is(err, domain.ErrInvalidTransition) {
			h.logger.InfoContext(ctx, "task already in a terminal state, discarding duplicate delivery",
				slog.String("task_id", msg.TaskID.String()))
			return nil
		}
		return fmt.Errorf("failed to complete task %s: %w", msg.TaskID, err)
	}
	return nil
}
