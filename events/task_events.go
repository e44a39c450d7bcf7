package events

import (
	"time"

	"github.com/example/collab-tracker/domain/task"
	"github.com/go-monolith/mono/pkg/helper"
)

// TaskCreatedEvent is emitted after a task and its "created" activity are stored.
type TaskCreatedEvent struct {
	Task    task.Task `json:"task"`
	ActorID string    `json:"actor_id"`
}

// TaskCreatedV1 is the typed event definition for task creation.
// Subject: events.task.v1.task-created
var TaskCreatedV1 = helper.EventDefinition[TaskCreatedEvent](
	"task", "TaskCreated", "v1",
)

// TaskUpdatedEvent is emitted after a task mutation is stored. Activities
// holds only the entries appended by that mutation.
type TaskUpdatedEvent struct {
	Task       task.Task       `json:"task"`
	Activities []task.Activity `json:"activities"`
	ActorID    string          `json:"actor_id"`
}

// TaskUpdatedV1 is the typed event definition for task updates.
// Subject: events.task.v1.task-updated
var TaskUpdatedV1 = helper.EventDefinition[TaskUpdatedEvent](
	"task", "TaskUpdated", "v1",
)

// TaskDeletedEvent is emitted after a task and its children are removed.
type TaskDeletedEvent struct {
	TaskID    string    `json:"task_id"`
	ActorID   string    `json:"actor_id"`
	DeletedAt time.Time `json:"deleted_at"`
}

// TaskDeletedV1 is the typed event definition for task deletion.
// Subject: events.task.v1.task-deleted
var TaskDeletedV1 = helper.EventDefinition[TaskDeletedEvent](
	"task", "TaskDeleted", "v1",
)

// CommentAction describes what happened to a comment.
type CommentAction string

const (
	CommentAdded   CommentAction = "added"
	CommentEdited  CommentAction = "edited"
	CommentDeleted CommentAction = "deleted"
)

// TaskCommentedEvent is emitted when a comment is added, edited or deleted.
type TaskCommentedEvent struct {
	TaskID  string        `json:"task_id"`
	Action  CommentAction `json:"action"`
	Comment task.Comment  `json:"comment"`
	ActorID string        `json:"actor_id"`
}

// TaskCommentedV1 is the typed event definition for comment changes.
// Subject: events.task.v1.task-commented
var TaskCommentedV1 = helper.EventDefinition[TaskCommentedEvent](
	"task", "TaskCommented", "v1",
)

// TasksBulkUpdatedEvent is emitted after a bulk status change or a reorder.
type TasksBulkUpdatedEvent struct {
	TaskIDs []string    `json:"task_ids"`
	Status  task.Status `json:"status,omitempty"`
	Reorder bool        `json:"reorder,omitempty"`
	ActorID string      `json:"actor_id"`
}

// TasksBulkUpdatedV1 is the typed event definition for bulk task changes.
// Subject: events.task.v1.tasks-bulk-updated
var TasksBulkUpdatedV1 = helper.EventDefinition[TasksBulkUpdatedEvent](
	"task", "TasksBulkUpdated", "v1",
)

// TaskMentionV1 carries mentions made in task comments. Chat mentions use
// MentionCreatedV1; both share the payload.
// Subject: events.task.v1.task-mention
var TaskMentionV1 = helper.EventDefinition[MentionCreatedEvent](
	"task", "TaskMention", "v1",
)
