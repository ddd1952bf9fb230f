package api_test

import (
	"errors"
	"fmt"
	"net/http"
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/gosdep/taskflow-api/internal/api"
	"github.com/gosdep/taskflow-api/internal/domain"
	"github.com/gosdep/taskflow-api/internal/service"
	"github.com/gosdep/taskflow-api/internal/store"
)

func TestMapErrorToStatusCode(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name string
		err  error
		want int
	}{
		{name: "service not-found", err: service.ErrTaskNotFound, want: http.StatusNotFound},
		{name: "store not-found", err: store.ErrTaskNotFound, want: http.StatusNotFound},
		{name: "invalid transition", err: domain.ErrInvalidTransition, want: http.StatusConflict},
		{name: "empty title", err: domain.ErrEmptyTaskTitle, want: http.StatusBadRequest},
		{name: "invalid priority", err: domain.ErrInvalidPriority, want: http.StatusBadRequest},
		{name: "invalid entity", err: store.ErrInvalidEntity, want: http.StatusBadRequest},
		{
			name: "wrapped sentinel keeps its mapping",
			err:  fmt.Errorf("context: %w", service.ErrTaskNotFound),
			want: http.StatusNotFound,
		},
		{name: "unknown error", err: errors.New("boom"), want: http.StatusInternalServerError},
	}

	for _, tc := range tests {
		tc := tc
		t.Run(tc.name, func(t *testing.T) {
			t.Parallel()
			assert.Equal(t, tc.want, api.MapErrorToStatusCode(tc.err))
		})
	}
}

func TestGetSafeErrorMessage(t *testing.T) {
	t.Parallel()

	assert.Equal(t, "Task not found", api.GetSafeErrorMessage(service.ErrTaskNotFound))
	assert.Equal(t,
		"Task is already finished and cannot be cancelled",
		api.GetSafeErrorMessage(domain.ErrInvalidTransition))
	assert.Equal(t, "An unexpected error occurred", api.GetSafeErrorMessage(nil))

	// Internal error text never reaches the client.
	leaky := errors.New("pq: connection to 10.0.0.5 refused")
	assert.NotContains(t, api.GetSafeErrorMessage(leaky), "10.0.0.5")
}

func TestSanitizeValidationError(t *testing.T) {
	t.Parallel()

	err := errors.New(
		"Key: 'CreateTaskRequest.Title' Error:Field validation for 'Title' failed on the 'required' tag",
	)
	assert.Equal(t, "Invalid Title: required field", api.SanitizeValidationError(err))

	assert.Equal(t, "Validation error", api.SanitizeValidationError(errors.New("boom")))
}
