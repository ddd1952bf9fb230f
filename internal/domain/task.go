package domain

import (
	"errors"
	"strings"
	"time"

	"github.com/google/uuid"
)

// TaskPriority determines which broker queue a task is dispatched to.
type TaskPriority string

// Possible task priority values
const (
	TaskPriorityLow    TaskPriority = "LOW"
	TaskPriorityMedium TaskPriority = "MEDIUM"
	TaskPriorityHigh   TaskPriority = "HIGH"
)

// TaskStatus represents the current state of a task
type TaskStatus string

// Possible task status values
const (
	TaskStatusNew        TaskStatus = "NEW"
	TaskStatusPending    TaskStatus = "PENDING"
	TaskStatusInProgress TaskStatus = "IN_PROGRESS"
	TaskStatusCompleted  TaskStatus = "COMPLETED"
	TaskStatusFailed     TaskStatus = "FAILED"
	TaskStatusCancelled  TaskStatus = "CANCELLED"
)

// Common validation errors for Task
var (
	ErrEmptyTaskID      = errors.New("task ID cannot be empty")
	ErrEmptyTaskTitle   = errors.New("task title cannot be empty")
	ErrTaskTitleTooLong = errors.New("task title cannot exceed 255 characters")
	ErrInvalidPriority  = errors.New("invalid task priority")
	ErrInvalidStatus    = errors.New("invalid task status")
)

// maxTitleLength mirrors the VARCHAR(255) column constraint.
const maxTitleLength = 255

// Task represents a unit of user-submitted work dispatched to
// asynchronous workers through the broker. Status moves monotonically
// toward one of the terminal states; terminal tasks accept no further
// guarded transitions.
type Task struct {
	ID          uuid.UUID    `json:"id"`
	Title       string       `json:"title"`
	Description string       `json:"description"`
	Priority    TaskPriority `json:"priority"`
	Status      TaskStatus   `json:"status"`
	CreatedAt   time.Time    `json:"created_at"`
	StartedAt   *time.Time   `json:"started_at,omitempty"`
	FinishedAt  *time.Time   `json:"finished_at,omitempty"`
	Result      string       `json:"result,omitempty"`
	Error       string       `json:"error,omitempty"`
}

// NewTask creates a new Task with the given title, description and priority.
// It generates a new UUID, sets the status to PENDING (NEW is defined in the
// schema but bypassed at creation), and sets the creation timestamp.
// Returns an error if validation fails.
func NewTask(title, description string, priority TaskPriority) (*Task, error) {
	if priority == "" {
		priority = TaskPriorityMedium
	}

	task := &Task{
		ID:          uuid.New(),
		Title:       title,
		Description: description,
		Priority:    priority,
		Status:      TaskStatusPending,
		CreatedAt:   time.Now().UTC(),
	}

	if err := task.Validate(); err != nil {
		return nil, err
	}

	return task, nil
}

// Validate checks if the Task has valid data.
// Returns an error if any field fails validation.
func (t *Task) Validate() error {
	if t.ID == uuid.Nil {
		return ErrEmptyTaskID
	}

	if t.Title == "" {
		return ErrEmptyTaskTitle
	}

	if len(t.Title) > maxTitleLength {
		return ErrTaskTitleTooLong
	}

	if !IsValidPriority(t.Priority) {
		return ErrInvalidPriority
	}

	if !isValidStatus(t.Status) {
		return ErrInvalidStatus
	}

	return nil
}

// IsTerminal reports whether the task is in a terminal state.
// Terminal tasks reject further guarded transitions.
func (t *Task) IsTerminal() bool {
	switch t.Status {
	case TaskStatusCompleted, TaskStatusFailed, TaskStatusCancelled:
		return true
	default:
		return false
	}
}

// Cancel transitions the task to CANCELLED. Completed and failed tasks
// cannot be cancelled; attempting to do so returns ErrInvalidTransition
// so the boundary layer can surface a client error rather than a silent
// no-op.
func (t *Task) Cancel() error {
	if t.Status == TaskStatusCompleted || t.Status == TaskStatusFailed {
		return ErrInvalidTransition
	}

	t.Status = TaskStatusCancelled
	return nil
}

// Complete transitions the task to COMPLETED and records the finish time.
// Terminal tasks reject the transition; a redelivered completion message
// for an already-terminal task surfaces here as ErrInvalidTransition.
func (t *Task) Complete() error {
	if t.IsTerminal() {
		return ErrInvalidTransition
	}

	now := time.Now().UTC()
	t.Status = TaskStatusCompleted
	t.FinishedAt = &now
	return nil
}

// Fail transitions the task to FAILED, recording the finish time and the
// failure message. Reserved for handlers that report processing failure.
func (t *Task) Fail(errMsg string) error {
	if t.IsTerminal() {
		return ErrInvalidTransition
	}

	now := time.Now().UTC()
	t.Status = TaskStatusFailed
	t.FinishedAt = &now
	t.Error = errMsg
	return nil
}

// ParsePriority converts a raw string into a TaskPriority,
// accepting any casing. Returns ErrInvalidPriority for unknown values.
func ParsePriority(raw string) (TaskPriority, error) {
	switch TaskPriority(strings.ToUpper(raw)) {
	case TaskPriorityLow:
		return TaskPriorityLow, nil
	case TaskPriorityMedium:
		return TaskPriorityMedium, nil
	case TaskPriorityHigh:
		return TaskPriorityHigh, nil
	default:
		return "", ErrInvalidPriority
	}
}

// ParseStatus converts a raw string into a TaskStatus,
// accepting any casing. Returns ErrInvalidStatus for unknown values.
func ParseStatus(raw string) (TaskStatus, error) {
	status := TaskStatus(strings.ToUpper(raw))
	if !isValidStatus(status) {
		return "", ErrInvalidStatus
	}
	return status, nil
}

// IsValidPriority checks if the given priority is a valid TaskPriority.
func IsValidPriority(priority TaskPriority) bool {
	switch priority {
	case TaskPriorityLow, TaskPriorityMedium, TaskPriorityHigh:
		return true
	default:
		return false
	}
}

// isValidStatus checks if the given status is a valid TaskStatus.
func isValidStatus(status TaskStatus) bool {
	switch status {
	case TaskStatusNew, TaskStatusPending, TaskStatusInProgress,
		TaskStatusCompleted, TaskStatusFailed, TaskStatusCancelled:
		return true
	default:
		return false
	}
}
