package events

import (
	"github.com/example/collab-tracker/domain/message"
	"github.com/go-monolith/mono/pkg/helper"
)

// MessageRef carries the addressing of a message so consumers can route it
// without loading the message.
type MessageRef struct {
	MessageID   string  `json:"message_id"`
	SenderID    string  `json:"sender_id"`
	Channel     *string `json:"channel,omitempty"`
	RecipientID *string `json:"recipient_id,omitempty"`
}

// RefOf builds the routing reference of msg.
func RefOf(msg *message.Message) MessageRef {
	return MessageRef{
		MessageID:   msg.ID,
		SenderID:    msg.SenderID,
		Channel:     msg.Channel,
		RecipientID: msg.RecipientID,
	}
}

// MessageSentEvent is emitted after a message is stored.
type MessageSentEvent struct {
	Message message.Message `json:"message"`
}

// MessageSentV1 is the typed event definition for new messages.
// Subject: events.chat.v1.message-sent
var MessageSentV1 = helper.EventDefinition[MessageSentEvent](
	"chat", "MessageSent", "v1",
)

// MessageEditedEvent is emitted after the sender edits a message.
type MessageEditedEvent struct {
	Message message.Message `json:"message"`
}

// MessageEditedV1 is the typed event definition for message edits.
// Subject: events.chat.v1.message-edited
var MessageEditedV1 = helper.EventDefinition[MessageEditedEvent](
	"chat", "MessageEdited", "v1",
)

// MessageDeletedEvent is emitted after the sender soft-deletes a message.
type MessageDeletedEvent struct {
	MessageRef
}

// MessageDeletedV1 is the typed event definition for message deletion.
// Subject: events.chat.v1.message-deleted
var MessageDeletedV1 = helper.EventDefinition[MessageDeletedEvent](
	"chat", "MessageDeleted", "v1",
)

// MessageReactionEvent is emitted when a reaction set changes.
type MessageReactionEvent struct {
	MessageRef
	Reactions []message.Reaction `json:"reactions"`
}

// MessageReactionV1 is the typed event definition for reaction changes.
// Subject: events.chat.v1.message-reaction
var MessageReactionV1 = helper.EventDefinition[MessageReactionEvent](
	"chat", "MessageReaction", "v1",
)

// MentionSource names where a mention was written.
type MentionSource string

const (
	MentionInMessage MentionSource = "message"
	MentionInComment MentionSource = "comment"
)

// MentionCreatedEvent is emitted once per mentioning message or comment.
type MentionCreatedEvent struct {
	UserIDs  []string      `json:"user_ids"`
	ActorID  string        `json:"actor_id"`
	Source   MentionSource `json:"source"`
	SourceID string        `json:"source_id"`
	TaskID   string        `json:"task_id,omitempty"`
	Channel  string        `json:"channel,omitempty"`
	Preview  string        `json:"preview"`
}

// MentionCreatedV1 is the typed event definition for mentions.
// Subject: events.chat.v1.mention-created
var MentionCreatedV1 = helper.EventDefinition[MentionCreatedEvent](
	"chat", "MentionCreated", "v1",
)
