package domain

import "github.com/google/uuid"

// TaskCreatedPayload is the body of a "task.created" outbox event and,
// after dispatch, of the broker message workers consume. Priority rides
// along so the publisher can derive the routing key without a task lookup.
type TaskCreatedPayload struct {
	TaskID      uuid.UUID `json:"task_id"`
	Title       string    `json:"title"`
	Description string    `json:"description,omitempty"`
	Priority    string    `json:"priority"`
}

// TaskDeletedPayload is the body of a "task.deleted" outbox event.
type TaskDeletedPayload struct {
	TaskID uuid.UUID `json:"task_id"`
}

// TaskMessage is the part of a broker message body every consumer must
// understand. Bodies that fail to yield a task id are discarded, not
// retried: malformed input never becomes well-formed.
type TaskMessage struct {
	TaskID uuid.UUID `json:"task_id"`
}
