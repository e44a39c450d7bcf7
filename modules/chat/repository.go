package chat

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/example/collab-tracker/domain/apperror"
	"github.com/example/collab-tracker/domain/message"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// Repository provides access to message and channel membership storage.
// Soft-deleted messages are invisible to every query through gorm's
// DeletedAt scope.
type Repository struct {
	db *gorm.DB
}

// NewRepository creates a new message repository.
func NewRepository(db *gorm.DB) *Repository {
	return &Repository{db: db}
}

// Migrate creates or updates the chat tables.
func Migrate(db *gorm.DB) error {
	return db.AutoMigrate(&message.Message{}, &message.ChannelMember{})
}

// Create stores a new message.
func (r *Repository) Create(ctx context.Context, msg *message.Message) error {
	if err := r.db.WithContext(ctx).Create(msg).Error; err != nil {
		return fmt.Errorf("failed to create message: %w", err)
	}
	return nil
}

// FindByID retrieves an active message.
func (r *Repository) FindByID(ctx context.Context, id string) (*message.Message, error) {
	var msg message.Message
	if err := r.db.WithContext(ctx).First(&msg, "id = ?", id).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, fmt.Errorf("message %s: %w", id, apperror.ErrNotFound)
		}
		return nil, fmt.Errorf("failed to find message: %w", err)
	}
	return &msg, nil
}

// UpdateIfVersion writes columns of msg if the stored version still equals
// expectedVersion. On success msg.Version is advanced.
func (r *Repository) UpdateIfVersion(ctx context.Context, msg *message.Message, expectedVersion int64, columns ...string) error {
	next := *msg
	next.Version = expectedVersion + 1
	next.UpdatedAt = time.Now()

	result := r.db.WithContext(ctx).Model(&message.Message{}).
		Where("id = ? AND version = ?", msg.ID, expectedVersion).
		Select(append([]string{"version", "updated_at"}, columns...)).
		Updates(&next)
	if err := result.Error; err != nil {
		return fmt.Errorf("failed to update message: %w", err)
	}
	if result.RowsAffected == 0 {
		if _, err := r.FindByID(ctx, msg.ID); err != nil {
			return err
		}
		return fmt.Errorf("message %s: %w", msg.ID, apperror.ErrConflict)
	}

	msg.Version = next.Version
	msg.UpdatedAt = next.UpdatedAt
	return nil
}

// SoftDelete marks a message deleted.
func (r *Repository) SoftDelete(ctx context.Context, id string) error {
	result := r.db.WithContext(ctx).Delete(&message.Message{}, "id = ?", id)
	if err := result.Error; err != nil {
		return fmt.Errorf("failed to delete message: %w", err)
	}
	if result.RowsAffected == 0 {
		return fmt.Errorf("message %s: %w", id, apperror.ErrNotFound)
	}
	return nil
}

// Page bounds a history query. A zero Before means "now".
type Page struct {
	Before time.Time
	Limit  int
}

const (
	defaultPageSize = 50
	maxPageSize     = 200
)

func (p Page) apply(query *gorm.DB) *gorm.DB {
	limit := p.Limit
	if limit <= 0 {
		limit = defaultPageSize
	}
	if limit > maxPageSize {
		limit = maxPageSize
	}
	if !p.Before.IsZero() {
		query = query.Where("created_at < ?", p.Before)
	}
	return query.Order("created_at DESC").Limit(limit)
}

// ChannelHistory returns a page of channel messages, newest first.
func (r *Repository) ChannelHistory(ctx context.Context, channel string, page Page) ([]message.Message, error) {
	var msgs []message.Message
	query := r.db.WithContext(ctx).Where("channel = ?", channel)
	if err := page.apply(query).Find(&msgs).Error; err != nil {
		return nil, fmt.Errorf("failed to load channel history: %w", err)
	}
	return msgs, nil
}

// DirectHistory returns a page of direct messages between two users, newest first.
func (r *Repository) DirectHistory(ctx context.Context, userID, counterpart string, page Page) ([]message.Message, error) {
	var msgs []message.Message
	query := r.db.WithContext(ctx).Where(
		"(sender_id = ? AND recipient_id = ?) OR (sender_id = ? AND recipient_id = ?)",
		userID, counterpart, counterpart, userID,
	)
	if err := page.apply(query).Find(&msgs).Error; err != nil {
		return nil, fmt.Errorf("failed to load direct history: %w", err)
	}
	return msgs, nil
}

// InboundFor returns messages sent by someone else to userID, either in one
// of channels or directly. Read receipts are not filtered here.
func (r *Repository) InboundFor(ctx context.Context, userID string, channels []string) ([]message.Message, error) {
	query := r.db.WithContext(ctx).Where("sender_id <> ?", userID)
	if len(channels) > 0 {
		query = query.Where("(channel IN ? OR recipient_id = ?)", channels, userID)
	} else {
		query = query.Where("recipient_id = ?", userID)
	}

	var msgs []message.Message
	if err := query.Order("created_at ASC").Find(&msgs).Error; err != nil {
		return nil, fmt.Errorf("failed to load inbound messages: %w", err)
	}
	return msgs, nil
}

// InboundInChannel returns messages in channel not sent by userID.
func (r *Repository) InboundInChannel(ctx context.Context, userID, channel string) ([]message.Message, error) {
	var msgs []message.Message
	if err := r.db.WithContext(ctx).
		Where("channel = ? AND sender_id <> ?", channel, userID).
		Find(&msgs).Error; err != nil {
		return nil, fmt.Errorf("failed to load channel messages: %w", err)
	}
	return msgs, nil
}

// InboundFrom returns direct messages sent by counterpart to userID.
func (r *Repository) InboundFrom(ctx context.Context, userID, counterpart string) ([]message.Message, error) {
	var msgs []message.Message
	if err := r.db.WithContext(ctx).
		Where("sender_id = ? AND recipient_id = ?", counterpart, userID).
		Find(&msgs).Error; err != nil {
		return nil, fmt.Errorf("failed to load direct messages: %w", err)
	}
	return msgs, nil
}

// DirectFor returns every direct message the user sent or received.
func (r *Repository) DirectFor(ctx context.Context, userID string) ([]message.Message, error) {
	var msgs []message.Message
	if err := r.db.WithContext(ctx).
		Where("recipient_id IS NOT NULL AND (sender_id = ? OR recipient_id = ?)", userID, userID).
		Find(&msgs).Error; err != nil {
		return nil, fmt.Errorf("failed to load direct messages: %w", err)
	}
	return msgs, nil
}

// JoinChannel records membership; joining twice is a no-op.
func (r *Repository) JoinChannel(ctx context.Context, channel, userID string) error {
	member := message.ChannelMember{Channel: channel, UserID: userID, JoinedAt: time.Now()}
	if err := r.db.WithContext(ctx).Clauses(clause.OnConflict{DoNothing: true}).Create(&member).Error; err != nil {
		return fmt.Errorf("failed to join channel: %w", err)
	}
	return nil
}

// LeaveChannel removes membership; leaving a channel not joined is a no-op.
func (r *Repository) LeaveChannel(ctx context.Context, channel, userID string) error {
	if err := r.db.WithContext(ctx).
		Where("channel = ? AND user_id = ?", channel, userID).
		Delete(&message.ChannelMember{}).Error; err != nil {
		return fmt.Errorf("failed to leave channel: %w", err)
	}
	return nil
}

// ChannelsOf returns the channels userID has joined.
func (r *Repository) ChannelsOf(ctx context.Context, userID string) ([]string, error) {
	var channels []string
	if err := r.db.WithContext(ctx).Model(&message.ChannelMember{}).
		Where("user_id = ?", userID).Order("channel ASC").
		Pluck("channel", &channels).Error; err != nil {
		return nil, fmt.Errorf("failed to load channels: %w", err)
	}
	return channels, nil
}

// MembersOf returns the users who joined channel.
func (r *Repository) MembersOf(ctx context.Context, channel string) ([]string, error) {
	var members []string
	if err := r.db.WithContext(ctx).Model(&message.ChannelMember{}).
		Where("channel = ?", channel).
		Pluck("user_id", &members).Error; err != nil {
		return nil, fmt.Errorf("failed to load channel members: %w", err)
	}
	return members, nil
}
