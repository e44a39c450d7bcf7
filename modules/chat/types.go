package chat

import (
	"context"
	"time"

	"github.com/example/collab-tracker/domain/apperror"
	"github.com/example/collab-tracker/domain/message"
)

// SendMessageRequest is the request for sending a message. Exactly one of
// Channel and RecipientID must be set.
type SendMessageRequest struct {
	SenderID    string                  `json:"sender_id"`
	Content     string                  `json:"content"`
	Channel     *string                 `json:"channel,omitempty"`
	RecipientID *string                 `json:"recipient_id,omitempty"`
	TaskRef     *string                 `json:"task_ref,omitempty"`
	Mentions    []string                `json:"mentions,omitempty"`
	Attachments []message.AttachmentRef `json:"attachments,omitempty"`
	ReplyTo     *string                 `json:"reply_to,omitempty"`
}

// EditMessageRequest is the request for editing a message.
type EditMessageRequest struct {
	MessageID string `json:"message_id"`
	ActorID   string `json:"actor_id"`
	Content   string `json:"content"`
}

// DeleteMessageRequest is the request for deleting a message.
type DeleteMessageRequest struct {
	MessageID string `json:"message_id"`
	ActorID   string `json:"actor_id"`
}

// ReactionRequest adds or removes one reaction.
type ReactionRequest struct {
	MessageID string `json:"message_id"`
	ActorID   string `json:"actor_id"`
	Emoji     string `json:"emoji"`
}

// MessageResponse is the response for operations returning one message.
type MessageResponse struct {
	Message *message.Message `json:"message,omitempty"`
	Error   *apperror.Reply  `json:"error,omitempty"`
}

// MarkReadRequest marks messages as read. Either MessageIDs, Channel or
// Counterpart selects the messages.
type MarkReadRequest struct {
	UserID      string   `json:"user_id"`
	MessageIDs  []string `json:"message_ids,omitempty"`
	Channel     string   `json:"channel,omitempty"`
	Counterpart string   `json:"counterpart,omitempty"`
}

// MarkReadResponse reports how many receipts were added.
type MarkReadResponse struct {
	Marked int             `json:"marked"`
	Error  *apperror.Reply `json:"error,omitempty"`
}

// UserRequest is the request for per-user queries.
type UserRequest struct {
	UserID string `json:"user_id"`
}

// UnreadResponse carries a user's unread summary.
type UnreadResponse struct {
	Summary UnreadSummary   `json:"summary"`
	Error   *apperror.Reply `json:"error,omitempty"`
}

// ConversationsResponse lists a user's direct-message conversations.
type ConversationsResponse struct {
	Conversations []Conversation  `json:"conversations"`
	Error         *apperror.Reply `json:"error,omitempty"`
}

// HistoryRequest selects a page of channel or direct history.
type HistoryRequest struct {
	UserID      string    `json:"user_id"`
	Channel     string    `json:"channel,omitempty"`
	Counterpart string    `json:"counterpart,omitempty"`
	Before      time.Time `json:"before,omitempty"`
	Limit       int       `json:"limit,omitempty"`
}

// HistoryResponse is a page of messages, newest first.
type HistoryResponse struct {
	Messages []message.Message `json:"messages"`
	Error    *apperror.Reply   `json:"error,omitempty"`
}

// ChannelRequest joins or leaves a channel.
type ChannelRequest struct {
	Channel string `json:"channel"`
	UserID  string `json:"user_id"`
}

// ChannelsResponse lists channel names.
type ChannelsResponse struct {
	Channels []string        `json:"channels"`
	Error    *apperror.Reply `json:"error,omitempty"`
}

// ChatPort defines the chat operations available to other modules.
type ChatPort interface {
	Send(ctx context.Context, req *SendMessageRequest) (*message.Message, error)
	Edit(ctx context.Context, req *EditMessageRequest) (*message.Message, error)
	Delete(ctx context.Context, messageID, actorID string) error
	AddReaction(ctx context.Context, req *ReactionRequest) (*message.Message, error)
	RemoveReaction(ctx context.Context, req *ReactionRequest) (*message.Message, error)
	MarkRead(ctx context.Context, req *MarkReadRequest) (int, error)
	UnreadSummary(ctx context.Context, userID string) (*UnreadSummary, error)
	Conversations(ctx context.Context, userID string) ([]Conversation, error)
	History(ctx context.Context, req *HistoryRequest) ([]message.Message, error)
	JoinChannel(ctx context.Context, channel, userID string) error
	LeaveChannel(ctx context.Context, channel, userID string) error
	Channels(ctx context.Context, userID string) ([]string, error)
}

// AckResponse is the response for operations without a result.
type AckResponse struct {
	OK    bool            `json:"ok"`
	Error *apperror.Reply `json:"error,omitempty"`
}
