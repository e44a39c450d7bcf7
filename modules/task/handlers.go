package task

import (
	"context"

	"github.com/example/collab-tracker/domain/apperror"
	"github.com/go-monolith/mono"
)

// Request-reply service names exposed by the task module.
const (
	ServiceCreateTask       = "create-task"
	ServiceGetTask          = "get-task"
	ServiceListTasks        = "list-tasks"
	ServiceUpdateTask       = "update-task"
	ServiceDeleteTask       = "delete-task"
	ServiceBulkUpdateStatus = "bulk-update-status"
	ServiceReorderTasks     = "reorder-tasks"
	ServiceAddComment       = "add-comment"
	ServiceEditComment      = "edit-comment"
	ServiceDeleteComment    = "delete-comment"
	ServiceAddAttachment    = "add-attachment"
	ServiceRemoveAttachment = "remove-attachment"
	ServiceAddTag           = "add-tag"
	ServiceRemoveTag        = "remove-tag"
)

// Handlers report failures inside the response so the error category
// survives the hop; the returned error is reserved for transport problems.

func (m *TaskModule) createTask(ctx context.Context, req CreateTaskRequest, _ *mono.Msg) (TaskResponse, error) {
	task, err := m.service.Create(ctx, req)
	return TaskResponse{Task: task, Error: apperror.ToReply(err)}, nil
}

func (m *TaskModule) getTask(ctx context.Context, req GetTaskRequest, _ *mono.Msg) (TaskResponse, error) {
	task, err := m.service.Get(ctx, req.TaskID)
	return TaskResponse{Task: task, Error: apperror.ToReply(err)}, nil
}

func (m *TaskModule) listTasks(ctx context.Context, req ListTasksRequest, _ *mono.Msg) (ListTasksResponse, error) {
	tasks, err := m.service.List(ctx, ListFilter{
		Status:    req.Status,
		Assignee:  req.Assignee,
		CreatorID: req.CreatorID,
		Tag:       req.Tag,
		ParentID:  req.ParentID,
	})
	return ListTasksResponse{Tasks: tasks, Total: len(tasks), Error: apperror.ToReply(err)}, nil
}

func (m *TaskModule) updateTask(ctx context.Context, req UpdateTaskRequest, _ *mono.Msg) (TaskResponse, error) {
	task, activities, err := m.service.Update(ctx, req.TaskID, req.ActorID, req.Patch)
	return TaskResponse{Task: task, Activities: activities, Error: apperror.ToReply(err)}, nil
}

func (m *TaskModule) deleteTask(ctx context.Context, req DeleteTaskRequest, _ *mono.Msg) (DeleteResponse, error) {
	err := m.service.Delete(ctx, req.TaskID, req.ActorID)
	return DeleteResponse{Deleted: err == nil, Error: apperror.ToReply(err)}, nil
}

func (m *TaskModule) bulkUpdateStatus(ctx context.Context, req BulkUpdateStatusRequest, _ *mono.Msg) (BulkResponse, error) {
	updated, err := m.service.BulkUpdateStatus(ctx, req.TaskIDs, req.Status, req.ActorID)
	return BulkResponse{Updated: updated, Error: apperror.ToReply(err)}, nil
}

func (m *TaskModule) reorderTasks(ctx context.Context, req ReorderTasksRequest, _ *mono.Msg) (BulkResponse, error) {
	updated, err := m.service.Reorder(ctx, req.Items, req.ActorID)
	return BulkResponse{Updated: updated, Error: apperror.ToReply(err)}, nil
}

func (m *TaskModule) addComment(ctx context.Context, req AddCommentRequest, _ *mono.Msg) (CommentResponse, error) {
	comment, err := m.service.AddComment(ctx, req.TaskID, req.ActorID, req.Content, req.Mentions)
	return CommentResponse{Comment: comment, Error: apperror.ToReply(err)}, nil
}

func (m *TaskModule) editComment(ctx context.Context, req EditCommentRequest, _ *mono.Msg) (CommentResponse, error) {
	comment, err := m.service.EditComment(ctx, req.TaskID, req.CommentID, req.ActorID, req.Content, req.Mentions)
	return CommentResponse{Comment: comment, Error: apperror.ToReply(err)}, nil
}

func (m *TaskModule) deleteComment(ctx context.Context, req DeleteCommentRequest, _ *mono.Msg) (DeleteResponse, error) {
	err := m.service.DeleteComment(ctx, req.TaskID, req.CommentID, req.ActorID)
	return DeleteResponse{Deleted: err == nil, Error: apperror.ToReply(err)}, nil
}

func (m *TaskModule) addAttachment(ctx context.Context, req AddAttachmentRequest, _ *mono.Msg) (TaskResponse, error) {
	task, activities, err := m.service.AddAttachment(ctx, req)
	return TaskResponse{Task: task, Activities: activities, Error: apperror.ToReply(err)}, nil
}

func (m *TaskModule) removeAttachment(ctx context.Context, req RemoveAttachmentRequest, _ *mono.Msg) (TaskResponse, error) {
	task, activities, err := m.service.RemoveAttachment(ctx, req.TaskID, req.AttachmentID, req.ActorID)
	return TaskResponse{Task: task, Activities: activities, Error: apperror.ToReply(err)}, nil
}

func (m *TaskModule) addTag(ctx context.Context, req TagRequest, _ *mono.Msg) (TaskResponse, error) {
	task, activities, err := m.service.AddTag(ctx, req.TaskID, req.ActorID, req.Tag)
	return TaskResponse{Task: task, Activities: activities, Error: apperror.ToReply(err)}, nil
}

func (m *TaskModule) removeTag(ctx context.Context, req TagRequest, _ *mono.Msg) (TaskResponse, error) {
	task, activities, err := m.service.RemoveTag(ctx, req.TaskID, req.ActorID, req.Tag)
	return TaskResponse{Task: task, Activities: activities, Error: apperror.ToReply(err)}, nil
}
