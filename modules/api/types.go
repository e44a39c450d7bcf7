package api

import (
	"bytes"
	"encoding/json"
	"time"

	"github.com/example/collab-tracker/domain/message"
	domain "github.com/example/collab-tracker/domain/task"
	"github.com/example/collab-tracker/modules/task"
)

// CreateTaskBody is the body of POST /tasks.
type CreateTaskBody struct {
	Title          string          `json:"title"`
	Description    string          `json:"description"`
	Status         domain.Status   `json:"status"`
	Priority       domain.Priority `json:"priority"`
	Assignees      []string        `json:"assignees"`
	DueDate        *time.Time      `json:"dueDate"`
	StartDate      *time.Time      `json:"startDate"`
	EstimatedHours *float64        `json:"estimatedHours"`
	Tags           []string        `json:"tags"`
	ParentID       *string         `json:"parentId"`
	Order          float64         `json:"order"`
}

// BulkStatusBody is the body of POST /tasks/bulk/status.
type BulkStatusBody struct {
	TaskIDs []string      `json:"taskIds"`
	Status  domain.Status `json:"status"`
}

// ReorderBody is the body of POST /tasks/reorder.
type ReorderBody struct {
	Items []struct {
		TaskID string  `json:"taskId"`
		Order  float64 `json:"order"`
	} `json:"items"`
}

// CommentBody is the body of comment create and edit requests.
type CommentBody struct {
	Content  string   `json:"content"`
	Mentions []string `json:"mentions"`
}

// AttachmentBody links an uploaded file to a task.
type AttachmentBody struct {
	Filename string `json:"filename"`
	URL      string `json:"url"`
	MimeType string `json:"mimeType"`
	Size     int64  `json:"size"`
}

// TagBody names one tag.
type TagBody struct {
	Tag string `json:"tag"`
}

// SendMessageBody is the body of POST /messages.
type SendMessageBody struct {
	Content     string                  `json:"content"`
	Channel     *string                 `json:"channel"`
	RecipientID *string                 `json:"recipientId"`
	TaskRef     *string                 `json:"taskRef"`
	Mentions    []string                `json:"mentions"`
	Attachments []message.AttachmentRef `json:"attachments"`
	ReplyTo     *string                 `json:"replyTo"`
}

// EditMessageBody is the body of PATCH /messages/:id.
type EditMessageBody struct {
	Content string `json:"content"`
}

// ReactionBody names one emoji.
type ReactionBody struct {
	Emoji string `json:"emoji"`
}

// MarkReadBody selects the messages to mark as read.
type MarkReadBody struct {
	MessageIDs  []string `json:"messageIds"`
	Channel     string   `json:"channel"`
	Counterpart string   `json:"counterpart"`
}

// HealthResponse is the body of GET /health.
type HealthResponse struct {
	Status           string `json:"status"`
	ConnectedClients int    `json:"connectedClients"`
	OnlineUsers      int    `json:"onlineUsers"`
}

// parsePatch decodes a partial task update. An explicit "dueDate": null
// clears the due date, which a plain pointer field cannot express.
func parsePatch(body []byte) (task.Patch, error) {
	var patch task.Patch
	if err := json.Unmarshal(body, &patch); err != nil {
		return patch, err
	}

	var fields map[string]json.RawMessage
	if err := json.Unmarshal(body, &fields); err != nil {
		return patch, err
	}
	if raw, ok := fields["dueDate"]; ok && bytes.Equal(bytes.TrimSpace(raw), []byte("null")) {
		patch.DueDate = nil
		patch.ClearDueDate = true
	}
	return patch, nil
}
