package api_test

import (
	"bytes"
	"context"
	"encoding/json"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"github.com/gosdep/taskflow-api/internal/api"
	"github.com/gosdep/taskflow-api/internal/domain"
	"github.com/gosdep/taskflow-api/internal/service"
	"github.com/gosdep/taskflow-api/internal/store"
)

// MockTaskService is a testify mock for service.TaskService.
type MockTaskService struct {
	mock.Mock
}

func (m *MockTaskService) CreateTask(
	ctx context.Context, title, description string, priority domain.TaskPriority,
) (*domain.Task, error) {
	args := m.Called(ctx, title, description, priority)
	if task, ok := args.Get(0).(*domain.Task); ok {
		return task, args.Error(1)
	}
	return nil, args.Error(1)
}

func (m *MockTaskService) GetTask(ctx context.Context, id uuid.UUID) (*domain.Task, error) {
	args := m.Called(ctx, id)
	if task, ok := args.Get(0).(*domain.Task); ok {
		return task, args.Error(1)
	}
	return nil, args.Error(1)
}

func (m *MockTaskService) GetTaskStatus(ctx context.Context, id uuid.UUID) (domain.TaskStatus, error) {
	args := m.Called(ctx, id)
	return args.Get(0).(domain.TaskStatus), args.Error(1)
}

func (m *MockTaskService) ListTasks(
	ctx context.Context, filter store.TaskFilter, offset, limit int,
) ([]*domain.Task, int, error) {
	args := m.Called(ctx, filter, offset, limit)
	if tasks, ok := args.Get(0).([]*domain.Task); ok {
		return tasks, args.Int(1), args.Error(2)
	}
	return nil, args.Int(1), args.Error(2)
}

func (m *MockTaskService) DeleteTask(ctx context.Context, id uuid.UUID) error {
	args := m.Called(ctx, id)
	return args.Error(0)
}

func (m *MockTaskService) CompleteTask(ctx context.Context, id uuid.UUID) error {
	args := m.Called(ctx, id)
	return args.Error(0)
}

// newTestRouter mounts the handler the way the server does.
func newTestRouter(svc service.TaskService) http.Handler {
	handler := api.NewTaskHandler(svc, slog.Default())

	r := chi.NewRouter()
	r.Route("/api/v1/tasks", func(r chi.Router) {
		r.Post("/", handler.CreateTask)
		r.Get("/", handler.ListTasks)
		r.Get("/{id}", handler.GetTask)
		r.Get("/{id}/status", handler.GetTaskStatus)
		r.Delete("/{id}", handler.DeleteTask)
	})
	return r
}

func TestCreateTaskEndpoint(t *testing.T) {
	t.Parallel()

	t.Run("valid request returns 201 with the task", func(t *testing.T) {
		t.Parallel()

		task, err := domain.NewTask("encode video", "to 720p", domain.TaskPriorityHigh)
		require.NoError(t, err)

		svc := &MockTaskService{}
		svc.On("CreateTask", mock.Anything, "encode video", "to 720p", domain.TaskPriorityHigh).
			Return(task, nil)

		body := bytes.NewBufferString(`{"title":"encode video","description":"to 720p","priority":"high"}`)
		req := httptest.NewRequest(http.MethodPost, "/api/v1/tasks/", body)
		rec := httptest.NewRecorder()
		newTestRouter(svc).ServeHTTP(rec, req)

		assert.Equal(t, http.StatusCreated, rec.Code)

		var resp api.TaskResponse
		require.NoError(t, json.NewDecoder(rec.Body).Decode(&resp))
		assert.Equal(t, task.ID.String(), resp.ID)
		assert.Equal(t, "PENDING", resp.Status)
		assert.Equal(t, "HIGH", resp.Priority)
		svc.AssertExpectations(t)
	})

	t.Run("priority defaults to medium when omitted", func(t *testing.T) {
		t.Parallel()

		task, err := domain.NewTask("cleanup", "", "")
		require.NoError(t, err)

		svc := &MockTaskService{}
		svc.On("CreateTask", mock.Anything, "cleanup", "", domain.TaskPriorityMedium).
			Return(task, nil)

		body := bytes.NewBufferString(`{"title":"cleanup"}`)
		req := httptest.NewRequest(http.MethodPost, "/api/v1/tasks/", body)
		rec := httptest.NewRecorder()
		newTestRouter(svc).ServeHTTP(rec, req)

		assert.Equal(t, http.StatusCreated, rec.Code)
		svc.AssertExpectations(t)
	})

	t.Run("missing title returns 400", func(t *testing.T) {
		t.Parallel()

		svc := &MockTaskService{}
		body := bytes.NewBufferString(`{"description":"no title"}`)
		req := httptest.NewRequest(http.MethodPost, "/api/v1/tasks/", body)
		rec := httptest.NewRecorder()
		newTestRouter(svc).ServeHTTP(rec, req)

		assert.Equal(t, http.StatusBadRequest, rec.Code)
		svc.AssertNotCalled(t, "CreateTask")
	})

	t.Run("malformed body returns 400", func(t *testing.T) {
		t.Parallel()

		svc := &MockTaskService{}
		body := bytes.NewBufferString(`{not json`)
		req := httptest.NewRequest(http.MethodPost, "/api/v1/tasks/", body)
		rec := httptest.NewRecorder()
		newTestRouter(svc).ServeHTTP(rec, req)

		assert.Equal(t, http.StatusBadRequest, rec.Code)
	})
}

func TestGetTaskEndpoint(t *testing.T) {
	t.Parallel()

	t.Run("existing task returns 200", func(t *testing.T) {
		t.Parallel()

		task, err := domain.NewTask("reindex", "", domain.TaskPriorityLow)
		require.NoError(t, err)

		svc := &MockTaskService{}
		svc.On("GetTask", mock.Anything, task.ID).Return(task, nil)

		req := httptest.NewRequest(http.MethodGet, "/api/v1/tasks/"+task.ID.String(), nil)
		rec := httptest.NewRecorder()
		newTestRouter(svc).ServeHTTP(rec, req)

		assert.Equal(t, http.StatusOK, rec.Code)
	})

	t.Run("unknown task returns 404", func(t *testing.T) {
		t.Parallel()

		id := uuid.New()
		svc := &MockTaskService{}
		svc.On("GetTask", mock.Anything, id).Return(nil, service.ErrTaskNotFound)

		req := httptest.NewRequest(http.MethodGet, "/api/v1/tasks/"+id.String(), nil)
		rec := httptest.NewRecorder()
		newTestRouter(svc).ServeHTTP(rec, req)

		assert.Equal(t, http.StatusNotFound, rec.Code)
	})

	t.Run("malformed id returns 400", func(t *testing.T) {
		t.Parallel()

		svc := &MockTaskService{}
		req := httptest.NewRequest(http.MethodGet, "/api/v1/tasks/not-a-uuid", nil)
		rec := httptest.NewRecorder()
		newTestRouter(svc).ServeHTTP(rec, req)

		assert.Equal(t, http.StatusBadRequest, rec.Code)
		svc.AssertNotCalled(t, "GetTask")
	})
}

func TestGetTaskStatusEndpoint(t *testing.T) {
	t.Parallel()

	id := uuid.New()
	svc := &MockTaskService{}
	svc.On("GetTaskStatus", mock.Anything, id).Return(domain.TaskStatusInProgress, nil)

	req := httptest.NewRequest(http.MethodGet, "/api/v1/tasks/"+id.String()+"/status", nil)
	rec := httptest.NewRecorder()
	newTestRouter(svc).ServeHTTP(rec, req)

	assert.Equal(t, http.StatusOK, rec.Code)

	var resp api.TaskStatusResponse
	require.NoError(t, json.NewDecoder(rec.Body).Decode(&resp))
	assert.Equal(t, "IN_PROGRESS", resp.Status)
}

func TestListTasksEndpoint(t *testing.T) {
	t.Parallel()

	t.Run("returns a page with totals", func(t *testing.T) {
		t.Parallel()

		task, err := domain.NewTask("archive", "", domain.TaskPriorityMedium)
		require.NoError(t, err)

		svc := &MockTaskService{}
		svc.On("ListTasks", mock.Anything,
			store.TaskFilter{Status: domain.TaskStatusPending}, 20, 20).
			Return([]*domain.Task{task}, 21, nil)

		req := httptest.NewRequest(http.MethodGet, "/api/v1/tasks/?status=pending&page=2", nil)
		rec := httptest.NewRecorder()
		newTestRouter(svc).ServeHTTP(rec, req)

		assert.Equal(t, http.StatusOK, rec.Code)

		var resp api.TaskListResponse
		require.NoError(t, json.NewDecoder(rec.Body).Decode(&resp))
		assert.Len(t, resp.Items, 1)
		assert.Equal(t, 21, resp.Total)
		assert.Equal(t, 2, resp.Page)
		assert.Equal(t, 20, resp.PageSize)
	})

	t.Run("invalid filter value returns 400", func(t *testing.T) {
		t.Parallel()

		svc := &MockTaskService{}
		req := httptest.NewRequest(http.MethodGet, "/api/v1/tasks/?priority=urgent", nil)
		rec := httptest.NewRecorder()
		newTestRouter(svc).ServeHTTP(rec, req)

		assert.Equal(t, http.StatusBadRequest, rec.Code)
		svc.AssertNotCalled(t, "ListTasks")
	})

	t.Run("page size is clamped", func(t *testing.T) {
		t.Parallel()

		svc := &MockTaskService{}
		svc.On("ListTasks", mock.Anything, store.TaskFilter{}, 0, 100).
			Return([]*domain.Task{}, 0, nil)

		req := httptest.NewRequest(http.MethodGet, "/api/v1/tasks/?page_size=5000", nil)
		rec := httptest.NewRecorder()
		newTestRouter(svc).ServeHTTP(rec, req)

		assert.Equal(t, http.StatusOK, rec.Code)
		svc.AssertExpectations(t)
	})
}

func TestDeleteTaskEndpoint(t *testing.T) {
	t.Parallel()

	t.Run("cancellable task returns 204", func(t *testing.T) {
		t.Parallel()

		id := uuid.New()
		svc := &MockTaskService{}
		svc.On("DeleteTask", mock.Anything, id).Return(nil)

		req := httptest.NewRequest(http.MethodDelete, "/api/v1/tasks/"+id.String(), nil)
		rec := httptest.NewRecorder()
		newTestRouter(svc).ServeHTTP(rec, req)

		assert.Equal(t, http.StatusNoContent, rec.Code)
	})

	t.Run("finished task returns 409", func(t *testing.T) {
		t.Parallel()

		id := uuid.New()
		svc := &MockTaskService{}
		svc.On("DeleteTask", mock.Anything, id).Return(domain.ErrInvalidTransition)

		req := httptest.NewRequest(http.MethodDelete, "/api/v1/tasks/"+id.String(), nil)
		rec := httptest.NewRecorder()
		newTestRouter(svc).ServeHTTP(rec, req)

		assert.Equal(t, http.StatusConflict, rec.Code)
	})

	t.Run("unknown task returns 404", func(t *testing.T) {
		t.Parallel()

		id := uuid.New()
		svc := &MockTaskService{}
		svc.On("DeleteTask", mock.Anything, id).Return(service.ErrTaskNotFound)

		req := httptest.NewRequest(http.MethodDelete, "/api/v1/tasks/"+id.String(), nil)
		rec := httptest.NewRecorder()
		newTestRouter(svc).ServeHTTP(rec, req)

		assert.Equal(t, http.StatusNotFound, rec.Code)
	})
}
