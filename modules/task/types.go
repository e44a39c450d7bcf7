package task

import (
	"context"
	"time"

	"github.com/example/collab-tracker/domain/apperror"
	domain "github.com/example/collab-tracker/domain/task"
)

// CreateTaskRequest is the request for creating a task.
type CreateTaskRequest struct {
	ActorID        string          `json:"actor_id"`
	Title          string          `json:"title"`
	Description    string          `json:"description"`
	Status         domain.Status   `json:"status,omitempty"`
	Priority       domain.Priority `json:"priority,omitempty"`
	Assignees      []string        `json:"assignees,omitempty"`
	DueDate        *time.Time      `json:"due_date,omitempty"`
	StartDate      *time.Time      `json:"start_date,omitempty"`
	EstimatedHours *float64        `json:"estimated_hours,omitempty"`
	Tags           []string        `json:"tags,omitempty"`
	ParentID       *string         `json:"parent_id,omitempty"`
	Order          float64         `json:"order,omitempty"`
}

// GetTaskRequest is the request for getting a task.
type GetTaskRequest struct {
	TaskID string `json:"task_id"`
}

// TaskResponse is the response for any operation returning a single task.
// Activities holds the entries appended by that operation.
type TaskResponse struct {
	Task       *domain.Task      `json:"task,omitempty"`
	Activities []domain.Activity `json:"activities,omitempty"`
	Error      *apperror.Reply   `json:"error,omitempty"`
}

// ListTasksRequest is the request for listing tasks.
type ListTasksRequest struct {
	Status    domain.Status `json:"status,omitempty"`
	Assignee  string        `json:"assignee,omitempty"`
	CreatorID string        `json:"creator_id,omitempty"`
	Tag       string        `json:"tag,omitempty"`
	ParentID  string        `json:"parent_id,omitempty"`
}

// ListTasksResponse is the response for listing tasks.
type ListTasksResponse struct {
	Tasks []*domain.Task  `json:"tasks"`
	Total int             `json:"total"`
	Error *apperror.Reply `json:"error,omitempty"`
}

// UpdateTaskRequest is the request for a partial task update.
type UpdateTaskRequest struct {
	TaskID  string `json:"task_id"`
	ActorID string `json:"actor_id"`
	Patch   Patch  `json:"patch"`
}

// DeleteTaskRequest is the request for deleting a task.
type DeleteTaskRequest struct {
	TaskID  string `json:"task_id"`
	ActorID string `json:"actor_id"`
}

// DeleteResponse is the response for delete operations.
type DeleteResponse struct {
	Deleted bool            `json:"deleted"`
	Error   *apperror.Reply `json:"error,omitempty"`
}

// BulkUpdateStatusRequest moves several tasks to one status.
type BulkUpdateStatusRequest struct {
	TaskIDs []string      `json:"task_ids"`
	Status  domain.Status `json:"status"`
	ActorID string        `json:"actor_id"`
}

// ReorderItem is the new rank of one task.
type ReorderItem struct {
	TaskID string  `json:"task_id"`
	Order  float64 `json:"order"`
}

// ReorderTasksRequest sets the rank of several tasks.
type ReorderTasksRequest struct {
	Items   []ReorderItem `json:"items"`
	ActorID string        `json:"actor_id"`
}

// BulkResponse lists the tasks a bulk operation changed.
type BulkResponse struct {
	Updated []string        `json:"updated"`
	Error   *apperror.Reply `json:"error,omitempty"`
}

// AddCommentRequest is the request for commenting on a task.
type AddCommentRequest struct {
	TaskID   string   `json:"task_id"`
	ActorID  string   `json:"actor_id"`
	Content  string   `json:"content"`
	Mentions []string `json:"mentions,omitempty"`
}

// EditCommentRequest is the request for editing a comment.
type EditCommentRequest struct {
	TaskID    string   `json:"task_id"`
	CommentID string   `json:"comment_id"`
	ActorID   string   `json:"actor_id"`
	Content   string   `json:"content"`
	Mentions  []string `json:"mentions,omitempty"`
}

// DeleteCommentRequest is the request for deleting a comment.
type DeleteCommentRequest struct {
	TaskID    string `json:"task_id"`
	CommentID string `json:"comment_id"`
	ActorID   string `json:"actor_id"`
}

// CommentResponse is the response for comment operations.
type CommentResponse struct {
	Comment *domain.Comment `json:"comment,omitempty"`
	Error   *apperror.Reply `json:"error,omitempty"`
}

// AddAttachmentRequest links stored file metadata to a task.
type AddAttachmentRequest struct {
	TaskID   string `json:"task_id"`
	ActorID  string `json:"actor_id"`
	Filename string `json:"filename"`
	URL      string `json:"url"`
	MimeType string `json:"mime_type,omitempty"`
	Size     int64  `json:"size,omitempty"`
}

// RemoveAttachmentRequest unlinks an attachment from a task.
type RemoveAttachmentRequest struct {
	TaskID       string `json:"task_id"`
	AttachmentID string `json:"attachment_id"`
	ActorID      string `json:"actor_id"`
}

// TagRequest adds or removes one tag.
type TagRequest struct {
	TaskID  string `json:"task_id"`
	ActorID string `json:"actor_id"`
	Tag     string `json:"tag"`
}

// TaskPort defines the task operations available to other modules.
type TaskPort interface {
	CreateTask(ctx context.Context, req *CreateTaskRequest) (*domain.Task, error)
	GetTask(ctx context.Context, taskID string) (*domain.Task, error)
	ListTasks(ctx context.Context, req *ListTasksRequest) ([]*domain.Task, error)
	UpdateTask(ctx context.Context, req *UpdateTaskRequest) (*TaskResponse, error)
	DeleteTask(ctx context.Context, taskID, actorID string) error
	BulkUpdateStatus(ctx context.Context, req *BulkUpdateStatusRequest) ([]string, error)
	ReorderTasks(ctx context.Context, req *ReorderTasksRequest) ([]string, error)
	AddComment(ctx context.Context, req *AddCommentRequest) (*domain.Comment, error)
	EditComment(ctx context.Context, req *EditCommentRequest) (*domain.Comment, error)
	DeleteComment(ctx context.Context, req *DeleteCommentRequest) error
	AddAttachment(ctx context.Context, req *AddAttachmentRequest) (*TaskResponse, error)
	RemoveAttachment(ctx context.Context, req *RemoveAttachmentRequest) (*TaskResponse, error)
	AddTag(ctx context.Context, req *TagRequest) (*TaskResponse, error)
	RemoveTag(ctx context.Context, req *TagRequest) (*TaskResponse, error)
}
