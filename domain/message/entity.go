package message

import (
	"time"

	"gorm.io/gorm"
)

// ReadReceipt records when a user first read a message.
type ReadReceipt struct {
	UserID string    `json:"userId"`
	ReadAt time.Time `json:"readAt"`
}

// Reaction groups the users who reacted to a message with one emoji.
type Reaction struct {
	Emoji string   `json:"emoji"`
	Users []string `json:"users"`
}

// AttachmentRef points at a file stored outside this service.
type AttachmentRef struct {
	Filename string `json:"filename"`
	URL      string `json:"url"`
	MimeType string `json:"mimeType,omitempty"`
	Size     int64  `json:"size,omitempty"`
}

// Message is a chat message sent either to a channel or directly to one user.
type Message struct {
	ID          string          `gorm:"primarykey;size:36" json:"id"`
	Content     string          `gorm:"size:5000;not null" json:"content"`
	SenderID    string          `gorm:"size:64;not null;index" json:"senderId"`
	RecipientID *string         `gorm:"size:64;index" json:"recipientId,omitempty"`
	Channel     *string         `gorm:"size:100;index" json:"channel,omitempty"`
	TaskRef     *string         `gorm:"size:36" json:"taskRef,omitempty"`
	Mentions    []string        `gorm:"serializer:json;type:text" json:"mentions"`
	Attachments []AttachmentRef `gorm:"serializer:json;type:text" json:"attachments"`
	ReadBy      []ReadReceipt   `gorm:"serializer:json;type:text" json:"readBy"`
	Reactions   []Reaction      `gorm:"serializer:json;type:text" json:"reactions"`
	IsEdited    bool            `gorm:"not null;default:false" json:"isEdited"`
	EditedAt    *time.Time      `json:"editedAt,omitempty"`
	ReplyTo     *string         `gorm:"size:36" json:"replyTo,omitempty"`
	Version     int64           `gorm:"not null;default:1" json:"-"`
	CreatedAt   time.Time       `gorm:"index" json:"createdAt"`
	UpdatedAt   time.Time       `json:"updatedAt"`
	DeletedAt   gorm.DeletedAt  `gorm:"index" json:"-"`
}

// TableName returns the table name for Message model.
func (Message) TableName() string {
	return "messages"
}

// IsDirect reports whether the message is addressed to a single user.
func (m *Message) IsDirect() bool {
	return m.RecipientID != nil
}

// Counterpart returns the other party of a direct message from viewer's side.
func (m *Message) Counterpart(viewer string) string {
	if m.RecipientID == nil {
		return ""
	}
	if m.SenderID == viewer {
		return *m.RecipientID
	}
	return m.SenderID
}

// ReadByUser reports whether userID has a read receipt on the message.
func (m *Message) ReadByUser(userID string) bool {
	for _, r := range m.ReadBy {
		if r.UserID == userID {
			return true
		}
	}
	return false
}

// Lifecycle is either Active or Deleted.
type Lifecycle interface {
	lifecycle()
}

// Active is the lifecycle of a message that can be read and mutated.
type Active struct{}

// Deleted is the lifecycle of a soft-deleted message.
type Deleted struct {
	At time.Time
}

func (Active) lifecycle()  {}
func (Deleted) lifecycle() {}

// Lifecycle derives the message's lifecycle from its deletion timestamp.
func (m *Message) Lifecycle() Lifecycle {
	if m.DeletedAt.Valid {
		return Deleted{At: m.DeletedAt.Time}
	}
	return Active{}
}

// ChannelMember records that a user participates in a channel.
type ChannelMember struct {
	Channel  string    `gorm:"primarykey;size:100" json:"channel"`
	UserID   string    `gorm:"primarykey;size:64;index" json:"userId"`
	JoinedAt time.Time `json:"joinedAt"`
}

// TableName returns the table name for ChannelMember model.
func (ChannelMember) TableName() string {
	return "channel_members"
}
