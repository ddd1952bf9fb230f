package domain

import (
	"encoding/json"
	"errors"
	"time"

	"github.com/google/uuid"
)

// Outbox event types emitted by task operations.
const (
	EventTypeTaskCreated = "task.created"
	EventTypeTaskDeleted = "task.deleted"
)

// Aggregate type for task outbox events.
const AggregateTypeTask = "task"

// Common validation errors for OutboxEvent
var (
	ErrEmptyEventID       = errors.New("outbox event ID cannot be empty")
	ErrEmptyAggregateID   = errors.New("outbox event aggregate ID cannot be empty")
	ErrEmptyEventType     = errors.New("outbox event type cannot be empty")
	ErrEmptyEventPayload  = errors.New("outbox event payload cannot be empty")
	ErrEmptyAggregateType = errors.New("outbox event aggregate type cannot be empty")
)

// OutboxEvent is a durable intent-to-publish record. It is inserted in the
// same transaction as the domain mutation it announces, which is what makes
// the dispatch pipeline reliable: a crash before commit yields neither the
// mutation nor the event, a crash after commit leaves the event for the
// publisher to pick up. Sent flips true only after an acknowledged publish.
type OutboxEvent struct {
	ID            uuid.UUID       `json:"id"`
	AggregateType string          `json:"aggregate_type"`
	AggregateID   uuid.UUID       `json:"aggregate_id"`
	EventType     string          `json:"event_type"`
	Payload       json.RawMessage `json:"payload"`
	CreatedAt     time.Time       `json:"created_at"`
	Sent          bool            `json:"sent"`
	SentAt        *time.Time      `json:"sent_at,omitempty"`
}

// NewOutboxEvent creates a new unsent OutboxEvent for the given aggregate.
// The payload is serialized to JSON. Returns an error if the payload cannot
// be serialized or validation fails.
func NewOutboxEvent(
	aggregateType string,
	aggregateID uuid.UUID,
	eventType string,
	payload interface{},
) (*OutboxEvent, error) {
	payloadBytes, err := json.Marshal(payload)
	if err != nil {
		return nil, err
	}

	event := &OutboxEvent{
		ID:            uuid.New(),
		AggregateType: aggregateType,
		AggregateID:   aggregateID,
		EventType:     eventType,
		Payload:       payloadBytes,
		CreatedAt:     time.Now().UTC(),
		Sent:          false,
	}

	if err := event.Validate(); err != nil {
		return nil, err
	}

	return event, nil
}

// Validate checks if the OutboxEvent has valid data.
func (e *OutboxEvent) Validate() error {
	if e.ID == uuid.Nil {
		return ErrEmptyEventID
	}

	if e.AggregateType == "" {
		return ErrEmptyAggregateType
	}

	if e.AggregateID == uuid.Nil {
		return ErrEmptyAggregateID
	}

	if e.EventType == "" {
		return ErrEmptyEventType
	}

	if len(e.Payload) == 0 {
		return ErrEmptyEventPayload
	}

	return nil
}

// UnmarshalPayload decodes the event payload into the provided structure.
func (e *OutboxEvent) UnmarshalPayload(v interface{}) error {
	return json.Unmarshal(e.Payload, v)
}
