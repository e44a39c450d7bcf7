package task

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/example/collab-tracker/domain/apperror"
	domain "github.com/example/collab-tracker/domain/task"
	"github.com/go-monolith/mono"
	"github.com/go-monolith/mono/pkg/helper"
)

// taskAdapter implements TaskPort over the task module's request-reply
// services.
type taskAdapter struct {
	container mono.ServiceContainer
}

// NewTaskAdapter creates a new adapter for task services.
// container is the ServiceContainer received via SetDependencyServiceContainer.
func NewTaskAdapter(container mono.ServiceContainer) TaskPort {
	if container == nil {
		panic("task adapter requires non-nil ServiceContainer")
	}
	return &taskAdapter{container: container}
}

// callService invokes a task service with JSON encoding.
func callService[Req, Resp any](ctx context.Context, container mono.ServiceContainer, service string, req *Req, resp *Resp) error {
	if err := helper.CallRequestReplyService(
		ctx,
		container,
		service,
		json.Marshal,
		json.Unmarshal,
		req,
		resp,
	); err != nil {
		return fmt.Errorf("%s service call failed: %w", service, err)
	}
	return nil
}

// replied is implemented by every response carrying an error reply.
type replied interface {
	TaskResponse | ListTasksResponse | DeleteResponse | BulkResponse | CommentResponse
}

// call invokes service and converts an error reply back into an error.
func call[Req any, Resp replied](ctx context.Context, container mono.ServiceContainer, service string, req *Req) (*Resp, error) {
	var resp Resp
	if err := callService(ctx, container, service, req, &resp); err != nil {
		return nil, err
	}
	if err := replyOf(&resp).Err(); err != nil {
		return nil, err
	}
	return &resp, nil
}

func replyOf(resp any) *apperror.Reply {
	switch r := resp.(type) {
	case *TaskResponse:
		return r.Error
	case *ListTasksResponse:
		return r.Error
	case *DeleteResponse:
		return r.Error
	case *BulkResponse:
		return r.Error
	case *CommentResponse:
		return r.Error
	}
	return nil
}

// CreateTask creates a task via the create-task service.
func (a *taskAdapter) CreateTask(ctx context.Context, req *CreateTaskRequest) (*domain.Task, error) {
	resp, err := call[CreateTaskRequest, TaskResponse](ctx, a.container, ServiceCreateTask, req)
	if err != nil {
		return nil, err
	}
	return resp.Task, nil
}

// GetTask retrieves a task via the get-task service.
func (a *taskAdapter) GetTask(ctx context.Context, taskID string) (*domain.Task, error) {
	resp, err := call[GetTaskRequest, TaskResponse](ctx, a.container, ServiceGetTask, &GetTaskRequest{TaskID: taskID})
	if err != nil {
		return nil, err
	}
	return resp.Task, nil
}

// ListTasks lists tasks via the list-tasks service.
func (a *taskAdapter) ListTasks(ctx context.Context, req *ListTasksRequest) ([]*domain.Task, error) {
	resp, err := call[ListTasksRequest, ListTasksResponse](ctx, a.container, ServiceListTasks, req)
	if err != nil {
		return nil, err
	}
	return resp.Tasks, nil
}

// UpdateTask applies a partial update via the update-task service.
func (a *taskAdapter) UpdateTask(ctx context.Context, req *UpdateTaskRequest) (*TaskResponse, error) {
	return call[UpdateTaskRequest, TaskResponse](ctx, a.container, ServiceUpdateTask, req)
}

// DeleteTask deletes a task via the delete-task service.
func (a *taskAdapter) DeleteTask(ctx context.Context, taskID, actorID string) error {
	_, err := call[DeleteTaskRequest, DeleteResponse](ctx, a.container, ServiceDeleteTask,
		&DeleteTaskRequest{TaskID: taskID, ActorID: actorID})
	return err
}

// BulkUpdateStatus moves tasks to one status via the bulk-update-status service.
func (a *taskAdapter) BulkUpdateStatus(ctx context.Context, req *BulkUpdateStatusRequest) ([]string, error) {
	resp, err := call[BulkUpdateStatusRequest, BulkResponse](ctx, a.container, ServiceBulkUpdateStatus, req)
	if err != nil {
		return nil, err
	}
	return resp.Updated, nil
}

// ReorderTasks ranks tasks via the reorder-tasks service.
func (a *taskAdapter) ReorderTasks(ctx context.Context, req *ReorderTasksRequest) ([]string, error) {
	resp, err := call[ReorderTasksRequest, BulkResponse](ctx, a.container, ServiceReorderTasks, req)
	if err != nil {
		return nil, err
	}
	return resp.Updated, nil
}

// AddComment comments on a task via the add-comment service.
func (a *taskAdapter) AddComment(ctx context.Context, req *AddCommentRequest) (*domain.Comment, error) {
	resp, err := call[AddCommentRequest, CommentResponse](ctx, a.container, ServiceAddComment, req)
	if err != nil {
		return nil, err
	}
	return resp.Comment, nil
}

// EditComment edits a comment via the edit-comment service.
func (a *taskAdapter) EditComment(ctx context.Context, req *EditCommentRequest) (*domain.Comment, error) {
	resp, err := call[EditCommentRequest, CommentResponse](ctx, a.container, ServiceEditComment, req)
	if err != nil {
		return nil, err
	}
	return resp.Comment, nil
}

// DeleteComment deletes a comment via the delete-comment service.
func (a *taskAdapter) DeleteComment(ctx context.Context, req *DeleteCommentRequest) error {
	_, err := call[DeleteCommentRequest, DeleteResponse](ctx, a.container, ServiceDeleteComment, req)
	return err
}

// AddAttachment links an attachment via the add-attachment service.
func (a *taskAdapter) AddAttachment(ctx context.Context, req *AddAttachmentRequest) (*TaskResponse, error) {
	return call[AddAttachmentRequest, TaskResponse](ctx, a.container, ServiceAddAttachment, req)
}

// RemoveAttachment unlinks an attachment via the remove-attachment service.
func (a *taskAdapter) RemoveAttachment(ctx context.Context, req *RemoveAttachmentRequest) (*TaskResponse, error) {
	return call[RemoveAttachmentRequest, TaskResponse](ctx, a.container, ServiceRemoveAttachment, req)
}

// AddTag adds a tag via the add-tag service.
func (a *taskAdapter) AddTag(ctx context.Context, req *TagRequest) (*TaskResponse, error) {
	return call[TagRequest, TaskResponse](ctx, a.container, ServiceAddTag, req)
}

// RemoveTag removes a tag via the remove-tag service.
func (a *taskAdapter) RemoveTag(ctx context.Context, req *TagRequest) (*TaskResponse, error) {
	return call[TagRequest, TaskResponse](ctx, a.container, ServiceRemoveTag, req)
}
