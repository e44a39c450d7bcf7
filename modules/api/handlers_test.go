package api

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/example/collab-tracker/domain/apperror"
	"github.com/example/collab-tracker/domain/message"
	domain "github.com/example/collab-tracker/domain/task"
	"github.com/example/collab-tracker/modules/chat"
	"github.com/example/collab-tracker/modules/task"
	"github.com/gofiber/fiber/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// fakeTasks overrides the TaskPort methods a test needs. Calling any other
// method panics on the nil embedded interface.
type fakeTasks struct {
	task.TaskPort
	getTask    func(id string) (*domain.Task, error)
	updateTask func(req *task.UpdateTaskRequest) (*task.TaskResponse, error)
	createTask func(req *task.CreateTaskRequest) (*domain.Task, error)
}

func (f *fakeTasks) GetTask(_ context.Context, id string) (*domain.Task, error) {
	return f.getTask(id)
}

func (f *fakeTasks) UpdateTask(_ context.Context, req *task.UpdateTaskRequest) (*task.TaskResponse, error) {
	return f.updateTask(req)
}

func (f *fakeTasks) CreateTask(_ context.Context, req *task.CreateTaskRequest) (*domain.Task, error) {
	return f.createTask(req)
}

type fakeChat struct {
	chat.ChatPort
	send    func(req *chat.SendMessageRequest) (*message.Message, error)
	history func(req *chat.HistoryRequest) ([]message.Message, error)
	unreact func(req *chat.ReactionRequest) (*message.Message, error)
}

func (f *fakeChat) Send(_ context.Context, req *chat.SendMessageRequest) (*message.Message, error) {
	return f.send(req)
}

func (f *fakeChat) History(_ context.Context, req *chat.HistoryRequest) ([]message.Message, error) {
	return f.history(req)
}

func (f *fakeChat) RemoveReaction(_ context.Context, req *chat.ReactionRequest) (*message.Message, error) {
	return f.unreact(req)
}

func newTestApp(tasks task.TaskPort, msgs chat.ChatPort) *fiber.App {
	app := fiber.New(fiber.Config{ErrorHandler: customErrorHandler})
	v1 := app.Group("/api/v1", AuthMiddleware(acceptToken("alice")))
	NewHandlers(tasks, msgs).Register(v1)
	return app
}

func do(t *testing.T, app *fiber.App, method, target, body string) *http.Response {
	t.Helper()
	var req *http.Request
	if body == "" {
		req = httptest.NewRequest(method, target, nil)
	} else {
		req = httptest.NewRequest(method, target, strings.NewReader(body))
		req.Header.Set("Content-Type", "application/json")
	}
	req.Header.Set("Authorization", "Bearer valid-token")

	resp, err := app.Test(req, -1)
	require.NoError(t, err)
	t.Cleanup(func() { resp.Body.Close() })
	return resp
}

func TestHandlers_ErrorStatus(t *testing.T) {
	tests := []struct {
		name   string
		err    error
		status int
		code   string
	}{
		{"not found", fmt.Errorf("%w: task t1", apperror.ErrNotFound), http.StatusNotFound, "not_found"},
		{"not the owner", apperror.ErrUnauthorized, http.StatusForbidden, "unauthorized"},
		{"invalid input", apperror.ErrInvalidInput, http.StatusBadRequest, "invalid_input"},
		{"invalid shape", apperror.ErrInvalidShape, http.StatusBadRequest, "invalid_shape"},
		{"conflict", apperror.ErrConflict, http.StatusConflict, "conflict"},
		{"anything else", fmt.Errorf("disk full"), http.StatusInternalServerError, "internal"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			app := newTestApp(&fakeTasks{
				getTask: func(string) (*domain.Task, error) { return nil, tt.err },
			}, nil)

			resp := do(t, app, http.MethodGet, "/api/v1/tasks/t1", "")
			assert.Equal(t, tt.status, resp.StatusCode)

			var body ErrorResponse
			require.NoError(t, json.NewDecoder(resp.Body).Decode(&body))
			assert.Equal(t, tt.code, body.Error)
		})
	}
}

func TestHandlers_CreateTask_ActorIsTokenSubject(t *testing.T) {
	var got *task.CreateTaskRequest
	app := newTestApp(&fakeTasks{
		createTask: func(req *task.CreateTaskRequest) (*domain.Task, error) {
			got = req
			return &domain.Task{ID: "t1", Title: req.Title, CreatorID: req.ActorID}, nil
		},
	}, nil)

	resp := do(t, app, http.MethodPost, "/api/v1/tasks", `{"title":"Write docs","priority":"high"}`)
	assert.Equal(t, http.StatusCreated, resp.StatusCode)

	require.NotNil(t, got)
	assert.Equal(t, "alice", got.ActorID)
	assert.Equal(t, "Write docs", got.Title)
	assert.Equal(t, domain.Priority("high"), got.Priority)
}

func TestHandlers_UpdateTask_NullDueDateClears(t *testing.T) {
	var got *task.UpdateTaskRequest
	app := newTestApp(&fakeTasks{
		updateTask: func(req *task.UpdateTaskRequest) (*task.TaskResponse, error) {
			got = req
			return &task.TaskResponse{Task: &domain.Task{ID: req.TaskID}}, nil
		},
	}, nil)

	resp := do(t, app, http.MethodPatch, "/api/v1/tasks/t1", `{"dueDate":null,"status":"done"}`)
	assert.Equal(t, http.StatusOK, resp.StatusCode)

	require.NotNil(t, got)
	assert.Equal(t, "t1", got.TaskID)
	assert.Equal(t, "alice", got.ActorID)
	assert.True(t, got.Patch.ClearDueDate)
	assert.Nil(t, got.Patch.DueDate)
	require.NotNil(t, got.Patch.Status)
	assert.Equal(t, domain.Status("done"), *got.Patch.Status)
}

func TestHandlers_UpdateTask_MalformedBody(t *testing.T) {
	app := newTestApp(&fakeTasks{}, nil)

	resp := do(t, app, http.MethodPatch, "/api/v1/tasks/t1", `{"title":`)
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
}

func TestParsePatch(t *testing.T) {
	patch, err := parsePatch([]byte(`{"title":"New","dueDate":"2024-06-01T00:00:00Z"}`))
	require.NoError(t, err)
	require.NotNil(t, patch.Title)
	assert.Equal(t, "New", *patch.Title)
	require.NotNil(t, patch.DueDate)
	assert.False(t, patch.ClearDueDate)
	assert.Equal(t, []string{"title", "dueDate"}, patch.FieldNames())

	patch, err = parsePatch([]byte(`{}`))
	require.NoError(t, err)
	assert.True(t, patch.IsEmpty())
}

func TestHandlers_SendMessage(t *testing.T) {
	var got *chat.SendMessageRequest
	app := newTestApp(nil, &fakeChat{
		send: func(req *chat.SendMessageRequest) (*message.Message, error) {
			got = req
			return &message.Message{ID: "m1", SenderID: req.SenderID, Content: req.Content, Channel: req.Channel}, nil
		},
	})

	resp := do(t, app, http.MethodPost, "/api/v1/messages", `{"content":"hi","channel":"general","senderId":"mallory"}`)
	assert.Equal(t, http.StatusCreated, resp.StatusCode)

	require.NotNil(t, got)
	assert.Equal(t, "alice", got.SenderID)
	require.NotNil(t, got.Channel)
	assert.Equal(t, "general", *got.Channel)
	assert.Nil(t, got.RecipientID)
}

func TestHandlers_History(t *testing.T) {
	var got *chat.HistoryRequest
	app := newTestApp(nil, &fakeChat{
		history: func(req *chat.HistoryRequest) ([]message.Message, error) {
			got = req
			return []message.Message{}, nil
		},
	})

	resp := do(t, app, http.MethodGet, "/api/v1/channels/general/messages?limit=10&before=2024-05-01T10:00:00Z", "")
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	require.NotNil(t, got)
	assert.Equal(t, "general", got.Channel)
	assert.Equal(t, "alice", got.UserID)
	assert.Equal(t, 10, got.Limit)
	assert.False(t, got.Before.IsZero())

	resp = do(t, app, http.MethodGet, "/api/v1/conversations/bob/messages", "")
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, "bob", got.Counterpart)
	assert.Empty(t, got.Channel)
	assert.Equal(t, 50, got.Limit)

	resp = do(t, app, http.MethodGet, "/api/v1/channels/general/messages?before=yesterday", "")
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
}

func TestHandlers_RemoveReaction_DecodesEmoji(t *testing.T) {
	var got *chat.ReactionRequest
	app := newTestApp(nil, &fakeChat{
		unreact: func(req *chat.ReactionRequest) (*message.Message, error) {
			got = req
			return &message.Message{ID: req.MessageID}, nil
		},
	})

	resp := do(t, app, http.MethodDelete, "/api/v1/messages/m1/reactions/%F0%9F%91%8D", "")
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	require.NotNil(t, got)
	assert.Equal(t, "👍", got.Emoji)
	assert.Equal(t, "alice", got.ActorID)
}

func TestHandlers_RequireToken(t *testing.T) {
	app := newTestApp(&fakeTasks{}, &fakeChat{})

	resp, err := app.Test(httptest.NewRequest(http.MethodGet, "/api/v1/tasks", nil), -1)
	require.NoError(t, err)
	defer resp.Body.Close()
	assert.Equal(t, http.StatusUnauthorized, resp.StatusCode)
}
