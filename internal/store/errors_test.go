package store

import (
	"errors"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestIsNotFoundError(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name string
		err  error
		want bool
	}{
		{name: "generic not found", err: ErrNotFound, want: true},
		{name: "task not found", err: ErrTaskNotFound, want: true},
		{name: "outbox event not found", err: ErrOutboxEventNotFound, want: true},
		{name: "wrapped task not found", err: fmt.Errorf("lookup: %w", ErrTaskNotFound), want: true},
		{name: "duplicate", err: ErrDuplicate, want: false},
		{name: "unrelated", err: errors.New("boom"), want: false},
		{name: "nil", err: nil, want: false},
	}

	for _, tc := range tests {
		tc := tc
		t.Run(tc.name, func(t *testing.T) {
			t.Parallel()
			assert.Equal(t, tc.want, IsNotFoundError(tc.err))
		})
	}
}

func TestStoreError(t *testing.T) {
	t.Parallel()

	t.Run("formats with wrapped error", func(t *testing.T) {
		t.Parallel()

		cause := errors.New("connection refused")
		err := NewStoreError("task", "create", "insert failed", cause)

		assert.Equal(t, "create operation on task failed: insert failed: connection refused", err.Error())
		assert.ErrorIs(t, err, cause)
	})

	t.Run("formats without wrapped error", func(t *testing.T) {
		t.Parallel()

		err := NewStoreError("outbox_event", "update", "nothing to do", nil)
		assert.Equal(t, "update operation on outbox_event failed: nothing to do", err.Error())
		assert.Nil(t, errors.Unwrap(err))
	})

	t.Run("unwraps to sentinel", func(t *testing.T) {
		t.Parallel()

		err := NewStoreError("task", "get", "missing", ErrTaskNotFound)
		assert.True(t, IsNotFoundError(err))
	})
}
