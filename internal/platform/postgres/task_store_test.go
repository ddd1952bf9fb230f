package postgres_test

import (
	"context"
	"log/slog"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/gosdep/taskflow-api/internal/domain"
	"github.com/gosdep/taskflow-api/internal/platform/postgres"
	"github.com/gosdep/taskflow-api/internal/store"
	"github.com/gosdep/taskflow-api/internal/testutils"
)

func TestPostgresTaskStore(t *testing.T) {
	if !testutils.IsIntegrationTestEnvironment() {
		t.Skip("Skipping integration test - DATABASE_URL not set")
	}

	db := testutils.GetTestDBWithT(t)
	taskStore := postgres.NewPostgresTaskStore(db, slog.Default())
	ctx := context.Background()

	createTask := func(t *testing.T, title string, priority domain.TaskPriority) *domain.Task {
		t.Helper()
		task, err := domain.NewTask(title, "integration test task", priority)
		require.NoError(t, err)
		require.NoError(t, taskStore.Create(ctx, task))
		t.Cleanup(func() {
			_, _ = db.Exec("DELETE FROM tasks WHERE id = $1", task.ID)
		})
		return task
	}

	t.Run("create and get roundtrip", func(t *testing.T) {
		task := createTask(t, "roundtrip task", domain.TaskPriorityHigh)

		stored, err := taskStore.GetByID(ctx, task.ID)
		require.NoError(t, err)
		assert.Equal(t, task.ID, stored.ID)
		assert.Equal(t, task.Title, stored.Title)
		assert.Equal(t, domain.TaskPriorityHigh, stored.Priority)
		assert.Equal(t, domain.TaskStatusPending, stored.Status)
		assert.Nil(t, stored.FinishedAt)
	})

	t.Run("create rejects invalid entity", func(t *testing.T) {
		task, err := domain.NewTask("valid at first", "", domain.TaskPriorityLow)
		require.NoError(t, err)
		task.Title = ""

		err = taskStore.Create(ctx, task)
		assert.ErrorIs(t, err, store.ErrInvalidEntity)
	})

	t.Run("get unknown task returns not-found", func(t *testing.T) {
		_, err := taskStore.GetByID(ctx, uuid.New())
		assert.ErrorIs(t, err, store.ErrTaskNotFound)
	})

	t.Run("update persists status changes", func(t *testing.T) {
		task := createTask(t, "updatable task", domain.TaskPriorityMedium)
		require.NoError(t, task.Complete())

		require.NoError(t, taskStore.Update(ctx, task))

		stored, err := taskStore.GetByID(ctx, task.ID)
		require.NoError(t, err)
		assert.Equal(t, domain.TaskStatusCompleted, stored.Status)
		require.NotNil(t, stored.FinishedAt)
	})

	t.Run("update unknown task returns not-found", func(t *testing.T) {
		task, err := domain.NewTask("never persisted", "", domain.TaskPriorityLow)
		require.NoError(t, err)

		err = taskStore.Update(ctx, task)
		assert.ErrorIs(t, err, store.ErrTaskNotFound)
	})

	t.Run("list filters by priority and status", func(t *testing.T) {
		high := createTask(t, "filtered high", domain.TaskPriorityHigh)
		low := createTask(t, "filtered low", domain.TaskPriorityLow)

		tasks, total, err := taskStore.List(ctx,
			store.TaskFilter{Priority: domain.TaskPriorityHigh, Status: domain.TaskStatusPending},
			0, 100)
		require.NoError(t, err)
		assert.GreaterOrEqual(t, total, 1)

		ids := make(map[uuid.UUID]bool, len(tasks))
		for _, task := range tasks {
			assert.Equal(t, domain.TaskPriorityHigh, task.Priority)
			ids[task.ID] = true
		}
		assert.True(t, ids[high.ID])
		assert.False(t, ids[low.ID])
	})
}
