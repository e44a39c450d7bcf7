package realtime

import (
	"encoding/json"
	"time"

	"github.com/example/collab-tracker/domain/message"
	"github.com/example/collab-tracker/domain/task"
)

// Outbound event names.
const (
	EventUserOnline       = "user:online"
	EventUserPresence     = "user:presence"
	EventTyping           = "typing"
	EventTaskCreated      = "task:created"
	EventTaskUpdated      = "task:updated"
	EventTaskDeleted      = "task:deleted"
	EventTaskComment      = "task:comment"
	EventTaskBulkUpdated  = "task:bulk-updated"
	EventMessageNew       = "message:new"
	EventMessageEdited    = "message:edited"
	EventMessageDeleted   = "message:deleted"
	EventMessageReaction  = "message:reaction"
	EventMentionNew       = "mention:new"
	EventError            = "error"
	EventConnected        = "connected"
	EventChannelJoined    = "channel:joined"
	EventChannelLeft      = "channel:left"
	EventTaskSubscribed   = "task:subscribed"
	EventTaskUnsubscribed = "task:unsubscribed"
)

// Inbound event names.
const (
	InChannelJoin     = "channel:join"
	InChannelLeave    = "channel:leave"
	InTypingStart     = "typing:start"
	InTypingStop      = "typing:stop"
	InPresenceUpdate  = "presence:update"
	InTaskSubscribe   = "task:subscribe"
	InTaskUnsubscribe = "task:unsubscribe"
)

// Frame is the wire envelope in both directions.
type Frame struct {
	Event string          `json:"event"`
	Data  json.RawMessage `json:"data,omitempty"`
}

// encodeFrame renders an outbound frame.
func encodeFrame(event string, payload any) ([]byte, error) {
	data, err := json.Marshal(payload)
	if err != nil {
		return nil, err
	}
	return json.Marshal(Frame{Event: event, Data: data})
}

// ChannelPayload names a channel.
type ChannelPayload struct {
	Channel string `json:"channel"`
}

// TypingPayload addresses a typing indicator. Exactly one of Channel and
// RecipientID is set.
type TypingPayload struct {
	Channel     string `json:"channel,omitempty"`
	RecipientID string `json:"recipientId,omitempty"`
}

// PresencePayload carries a presence status update.
type PresencePayload struct {
	Status Status `json:"status"`
}

// TaskRefPayload names a task.
type TaskRefPayload struct {
	TaskID string `json:"taskId"`
}

// UserPresence is sent on user:presence.
type UserPresence struct {
	UserID string `json:"userId"`
	Status Status `json:"status"`
}

// Typing is sent on typing.
type Typing struct {
	UserID      string `json:"userId"`
	Typing      bool   `json:"typing"`
	Channel     string `json:"channel,omitempty"`
	RecipientID string `json:"recipientId,omitempty"`
}

// Connected is sent to a connection once it is registered.
type Connected struct {
	ConnectionID string   `json:"connectionId"`
	UserID       string   `json:"userId"`
	Channels     []string `json:"channels"`
	OnlineUsers  []string `json:"onlineUsers"`
}

// ErrorPayload is sent on error, only to the offending connection.
type ErrorPayload struct {
	Event   string `json:"event,omitempty"`
	Message string `json:"message"`
}

// TaskChange is sent on task:created and task:updated.
type TaskChange struct {
	Task       task.Task       `json:"task"`
	Activities []task.Activity `json:"activities,omitempty"`
	ActorID    string          `json:"actorId"`
}

// TaskRemoved is sent on task:deleted.
type TaskRemoved struct {
	TaskID    string    `json:"taskId"`
	ActorID   string    `json:"actorId"`
	DeletedAt time.Time `json:"deletedAt"`
}

// TaskComment is sent on task:comment.
type TaskComment struct {
	TaskID  string       `json:"taskId"`
	Action  string       `json:"action"`
	Comment task.Comment `json:"comment"`
	ActorID string       `json:"actorId"`
}

// TaskBulk is sent on task:bulk-updated.
type TaskBulk struct {
	TaskIDs []string    `json:"taskIds"`
	Status  task.Status `json:"status,omitempty"`
	Reorder bool        `json:"reorder,omitempty"`
	ActorID string      `json:"actorId"`
}

// MessageRemoved is sent on message:deleted.
type MessageRemoved struct {
	MessageID   string  `json:"messageId"`
	Channel     *string `json:"channel,omitempty"`
	RecipientID *string `json:"recipientId,omitempty"`
}

// MessageReactions is sent on message:reaction.
type MessageReactions struct {
	MessageID string             `json:"messageId"`
	Reactions []message.Reaction `json:"reactions"`
}

// Mention is sent on mention:new.
type Mention struct {
	Source   string `json:"source"`
	SourceID string `json:"sourceId"`
	ActorID  string `json:"actorId"`
	TaskID   string `json:"taskId,omitempty"`
	Channel  string `json:"channel,omitempty"`
	Preview  string `json:"preview"`
}
