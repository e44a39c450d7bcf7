package task

import (
	"time"

	"gorm.io/datatypes"
)

// Status is the lifecycle column a task sits in.
type Status string

const (
	StatusBacklog    Status = "backlog"
	StatusTodo       Status = "todo"
	StatusInProgress Status = "in_progress"
	StatusInReview   Status = "in_review"
	StatusDone       Status = "done"
	StatusArchived   Status = "archived"
)

// Valid reports whether s is a known status.
func (s Status) Valid() bool {
	switch s {
	case StatusBacklog, StatusTodo, StatusInProgress, StatusInReview, StatusDone, StatusArchived:
		return true
	}
	return false
}

// Priority ranks a task's urgency.
type Priority string

const (
	PriorityLow    Priority = "low"
	PriorityMedium Priority = "medium"
	PriorityHigh   Priority = "high"
	PriorityUrgent Priority = "urgent"
)

// Valid reports whether p is a known priority.
func (p Priority) Valid() bool {
	switch p {
	case PriorityLow, PriorityMedium, PriorityHigh, PriorityUrgent:
		return true
	}
	return false
}

// ActivityType enumerates the audit trail entries a task can receive.
type ActivityType string

const (
	ActivityCreated           ActivityType = "created"
	ActivityUpdated           ActivityType = "updated"
	ActivityStatusChanged     ActivityType = "status_changed"
	ActivityAssigned          ActivityType = "assigned"
	ActivityUnassigned        ActivityType = "unassigned"
	ActivityPriorityChanged   ActivityType = "priority_changed"
	ActivityDueDateChanged    ActivityType = "due_date_changed"
	ActivityCommentAdded      ActivityType = "comment_added"
	ActivityAttachmentAdded   ActivityType = "attachment_added"
	ActivityAttachmentRemoved ActivityType = "attachment_removed"
	ActivityTagAdded          ActivityType = "tag_added"
	ActivityTagRemoved        ActivityType = "tag_removed"
)

// Task is a unit of tracked work.
type Task struct {
	ID             string     `gorm:"primarykey;size:36" json:"id"`
	Title          string     `gorm:"size:200;not null" json:"title"`
	Description    string     `gorm:"size:5000" json:"description"`
	Status         Status     `gorm:"size:20;not null;index" json:"status"`
	Priority       Priority   `gorm:"size:10;not null" json:"priority"`
	Assignees      []string   `gorm:"serializer:json;type:text" json:"assignees"`
	CreatorID      string     `gorm:"size:64;not null;index" json:"creatorId"`
	DueDate        *time.Time `json:"dueDate,omitempty"`
	StartDate      *time.Time `json:"startDate,omitempty"`
	EstimatedHours *float64   `json:"estimatedHours,omitempty"`
	ActualHours    *float64   `json:"actualHours,omitempty"`
	Tags           []string   `gorm:"serializer:json;type:text" json:"tags"`
	ParentID       *string    `gorm:"size:36;index" json:"parentId,omitempty"`
	Order          float64    `gorm:"column:sort_order;not null;default:0" json:"order"`
	CompletedAt    *time.Time `json:"completedAt,omitempty"`
	Version        int64      `gorm:"not null;default:1" json:"version"`
	CreatedAt      time.Time  `json:"createdAt"`
	UpdatedAt      time.Time  `json:"updatedAt"`

	Comments    []Comment    `gorm:"foreignKey:TaskID" json:"comments"`
	Attachments []Attachment `gorm:"foreignKey:TaskID" json:"attachments"`
	Activities  []Activity   `gorm:"foreignKey:TaskID" json:"activities"`
	Subtasks    []string     `gorm:"-" json:"subtasks"`
}

// TableName returns the table name for Task model.
func (Task) TableName() string {
	return "tasks"
}

// HasAssignee reports whether userID is assigned to the task.
func (t *Task) HasAssignee(userID string) bool {
	for _, a := range t.Assignees {
		if a == userID {
			return true
		}
	}
	return false
}

// HasTag reports whether the task carries tag.
func (t *Task) HasTag(tag string) bool {
	for _, existing := range t.Tags {
		if existing == tag {
			return true
		}
	}
	return false
}

// Activity is one immutable audit trail entry. Rows are only ever inserted;
// Seq orders them within a task.
type Activity struct {
	ID          string            `gorm:"primarykey;size:36" json:"id"`
	TaskID      string            `gorm:"size:36;not null;uniqueIndex:idx_activity_task_seq,priority:1" json:"taskId"`
	Seq         int               `gorm:"not null;uniqueIndex:idx_activity_task_seq,priority:2" json:"seq"`
	Type        ActivityType      `gorm:"size:32;not null" json:"type"`
	ActorID     string            `gorm:"size:64;not null" json:"actorId"`
	Description string            `gorm:"size:500" json:"description"`
	Metadata    datatypes.JSONMap `json:"metadata,omitempty"`
	CreatedAt   time.Time         `json:"timestamp"`
}

// TableName returns the table name for Activity model.
func (Activity) TableName() string {
	return "task_activities"
}

// Comment is a note left on a task.
type Comment struct {
	ID        string    `gorm:"primarykey;size:36" json:"id"`
	TaskID    string    `gorm:"size:36;not null;index" json:"taskId"`
	Content   string    `gorm:"size:5000;not null" json:"content"`
	AuthorID  string    `gorm:"size:64;not null" json:"authorId"`
	Mentions  []string  `gorm:"serializer:json;type:text" json:"mentions"`
	IsEdited  bool      `gorm:"not null;default:false" json:"isEdited"`
	CreatedAt time.Time `json:"createdAt"`
	UpdatedAt time.Time `json:"updatedAt"`
}

// TableName returns the table name for Comment model.
func (Comment) TableName() string {
	return "task_comments"
}

// Attachment records a file stored elsewhere and linked to a task.
type Attachment struct {
	ID         string    `gorm:"primarykey;size:36" json:"id"`
	TaskID     string    `gorm:"size:36;not null;index" json:"taskId"`
	Filename   string    `gorm:"size:255;not null" json:"filename"`
	URL        string    `gorm:"size:1024;not null" json:"url"`
	MimeType   string    `gorm:"size:100" json:"mimeType"`
	Size       int64     `json:"size"`
	UploadedBy string    `gorm:"size:64;not null" json:"uploadedBy"`
	CreatedAt  time.Time `json:"createdAt"`
}

// TableName returns the table name for Attachment model.
func (Attachment) TableName() string {
	return "task_attachments"
}
