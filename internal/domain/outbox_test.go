package domain

import (
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewOutboxEvent(t *testing.T) {
	t.Parallel()

	aggregateID := uuid.New()

	t.Run("creates an unsent event with serialized payload", func(t *testing.T) {
		t.Parallel()

		event, err := NewOutboxEvent(
			AggregateTypeTask,
			aggregateID,
			EventTypeTaskCreated,
			map[string]string{"task_id": aggregateID.String(), "priority": "HIGH"},
		)
		require.NoError(t, err)

		assert.NotEqual(t, uuid.Nil, event.ID)
		assert.Equal(t, AggregateTypeTask, event.AggregateType)
		assert.Equal(t, aggregateID, event.AggregateID)
		assert.Equal(t, EventTypeTaskCreated, event.EventType)
		assert.False(t, event.Sent)
		assert.Nil(t, event.SentAt)

		var payload map[string]string
		require.NoError(t, event.UnmarshalPayload(&payload))
		assert.Equal(t, "HIGH", payload["priority"])
	})

	t.Run("rejects nil aggregate ID", func(t *testing.T) {
		t.Parallel()

		_, err := NewOutboxEvent(AggregateTypeTask, uuid.Nil, EventTypeTaskDeleted, map[string]string{"task_id": "x"})
		assert.ErrorIs(t, err, ErrEmptyAggregateID)
	})

	t.Run("rejects empty event type", func(t *testing.T) {
		t.Parallel()

		_, err := NewOutboxEvent(AggregateTypeTask, aggregateID, "", map[string]string{"task_id": "x"})
		assert.ErrorIs(t, err, ErrEmptyEventType)
	})

	t.Run("rejects unserializable payload", func(t *testing.T) {
		t.Parallel()

		_, err := NewOutboxEvent(AggregateTypeTask, aggregateID, EventTypeTaskCreated, make(chan int))
		assert.Error(t, err)
	})
}
