package chat

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/example/collab-tracker/domain/apperror"
	"github.com/example/collab-tracker/domain/message"
	"github.com/example/collab-tracker/events"
	"github.com/go-monolith/mono/pkg/types"
	"github.com/google/uuid"
	"golang.org/x/sync/singleflight"
)

// maxWriteAttempts bounds retries after losing a message version race.
const maxWriteAttempts = 3

// Publisher announces committed chat mutations. Implementations must not
// fail the caller; delivery is best effort.
type Publisher interface {
	MessageSent(events.MessageSentEvent)
	MessageEdited(events.MessageEditedEvent)
	MessageDeleted(events.MessageDeletedEvent)
	MessageReaction(events.MessageReactionEvent)
	MentionCreated(events.MentionCreatedEvent)
}

// Service implements messaging, read receipts, reactions and unread
// bookkeeping.
type Service struct {
	repo      *Repository
	publisher Publisher
	logger    types.Logger
	now       func() time.Time

	mu     sync.RWMutex
	unread UnreadCache
	group  singleflight.Group

	// generations counts unread invalidations per user. A summary computed
	// under an older generation is returned but never cached.
	genMu       sync.Mutex
	generations map[string]uint64
}

// NewService creates a chat service without an unread cache.
func NewService(repo *Repository, publisher Publisher, logger types.Logger) *Service {
	return &Service{
		repo:        repo,
		publisher:   publisher,
		logger:      logger,
		now:         time.Now,
		unread:      noopUnreadCache{},
		generations: make(map[string]uint64),
	}
}

// SetUnreadCache replaces the unread summary cache.
func (s *Service) SetUnreadCache(c UnreadCache) {
	if c == nil {
		c = noopUnreadCache{}
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.unread = c
}

func (s *Service) unreadGeneration(userID string) uint64 {
	s.genMu.Lock()
	defer s.genMu.Unlock()
	return s.generations[userID]
}

// invalidateUnread drops the cached summaries of userIDs and retires any
// computation already in flight for them.
func (s *Service) invalidateUnread(ctx context.Context, userIDs ...string) {
	s.genMu.Lock()
	for _, id := range userIDs {
		s.generations[id]++
	}
	s.genMu.Unlock()
	s.unreadCache().Invalidate(ctx, userIDs...)
}

// storeUnread caches summary unless userID was invalidated after gen.
func (s *Service) storeUnread(ctx context.Context, userID string, gen uint64, summary UnreadSummary) bool {
	s.genMu.Lock()
	defer s.genMu.Unlock()
	if s.generations[userID] != gen {
		return false
	}
	s.unreadCache().Set(ctx, userID, summary)
	return true
}

func (s *Service) unreadCache() UnreadCache {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.unread
}

// Send validates addressing and stores a new message. The sender is
// recorded as having read it.
func (s *Service) Send(ctx context.Context, req SendMessageRequest) (*message.Message, error) {
	channel, recipient := optional(req.Channel), optional(req.RecipientID)
	if (channel == nil) == (recipient == nil) {
		return nil, apperror.ErrInvalidShape
	}
	content := strings.TrimSpace(req.Content)
	if content == "" && len(req.Attachments) == 0 {
		return nil, fmt.Errorf("%w: message content is required", apperror.ErrInvalidInput)
	}
	if req.SenderID == "" {
		return nil, fmt.Errorf("%w: sender is required", apperror.ErrInvalidInput)
	}
	if recipient != nil && *recipient == req.SenderID {
		return nil, fmt.Errorf("%w: cannot send a direct message to yourself", apperror.ErrInvalidInput)
	}
	if replyTo := optional(req.ReplyTo); replyTo != nil {
		if _, err := s.repo.FindByID(ctx, *replyTo); err != nil {
			return nil, err
		}
	}

	now := s.now()
	msg := &message.Message{
		ID:          uuid.New().String(),
		Content:     content,
		SenderID:    req.SenderID,
		RecipientID: recipient,
		Channel:     channel,
		TaskRef:     optional(req.TaskRef),
		Mentions:    mentionTargets(req.Mentions, req.SenderID),
		Attachments: req.Attachments,
		ReadBy:      []message.ReadReceipt{{UserID: req.SenderID, ReadAt: now}},
		Reactions:   []message.Reaction{},
		ReplyTo:     optional(req.ReplyTo),
		Version:     1,
		CreatedAt:   now,
	}
	if msg.Attachments == nil {
		msg.Attachments = []message.AttachmentRef{}
	}

	if err := s.repo.Create(ctx, msg); err != nil {
		return nil, err
	}

	s.invalidateAudience(ctx, msg)
	s.logger.Info("Message sent", "messageID", msg.ID, "sender", msg.SenderID, "direct", msg.IsDirect())
	s.publisher.MessageSent(events.MessageSentEvent{Message: *msg})

	if len(msg.Mentions) > 0 {
		mention := events.MentionCreatedEvent{
			UserIDs:  msg.Mentions,
			ActorID:  msg.SenderID,
			Source:   events.MentionInMessage,
			SourceID: msg.ID,
			Preview:  preview(msg.Content),
		}
		if msg.Channel != nil {
			mention.Channel = *msg.Channel
		}
		s.publisher.MentionCreated(mention)
	}
	return msg, nil
}

// Edit replaces the content of a message. Only the sender may edit it.
func (s *Service) Edit(ctx context.Context, messageID, actorID, content string) (*message.Message, error) {
	content = strings.TrimSpace(content)
	if content == "" {
		return nil, fmt.Errorf("%w: message content is required", apperror.ErrInvalidInput)
	}

	msg, err := s.mutate(ctx, messageID, func(msg *message.Message) ([]string, error) {
		if msg.SenderID != actorID {
			return nil, fmt.Errorf("edit message %s: %w", messageID, apperror.ErrUnauthorized)
		}
		now := s.now()
		msg.Content = content
		msg.IsEdited = true
		msg.EditedAt = &now
		return []string{"content", "is_edited", "edited_at"}, nil
	})
	if err != nil {
		return nil, err
	}

	s.publisher.MessageEdited(events.MessageEditedEvent{Message: *msg})
	return msg, nil
}

// Delete soft-deletes a message. Only the sender may delete it.
func (s *Service) Delete(ctx context.Context, messageID, actorID string) error {
	msg, err := s.repo.FindByID(ctx, messageID)
	if err != nil {
		return err
	}
	if msg.SenderID != actorID {
		return fmt.Errorf("delete message %s: %w", messageID, apperror.ErrUnauthorized)
	}
	if err := s.repo.SoftDelete(ctx, messageID); err != nil {
		return err
	}

	s.invalidateAudience(ctx, msg)
	s.logger.Info("Message deleted", "messageID", messageID, "actor", actorID)
	s.publisher.MessageDeleted(events.MessageDeletedEvent{MessageRef: events.RefOf(msg)})
	return nil
}

// AddReaction puts actorID on emoji for a message. Repeating it is a no-op.
func (s *Service) AddReaction(ctx context.Context, messageID, actorID, emoji string) (*message.Message, error) {
	return s.react(ctx, messageID, actorID, emoji, AddReaction)
}

// RemoveReaction takes actorID off emoji for a message. Removing an absent
// reaction is a no-op.
func (s *Service) RemoveReaction(ctx context.Context, messageID, actorID, emoji string) (*message.Message, error) {
	return s.react(ctx, messageID, actorID, emoji, RemoveReaction)
}

type reactionToggle func([]message.Reaction, string, string) ([]message.Reaction, bool)

func (s *Service) react(ctx context.Context, messageID, actorID, emoji string, toggle reactionToggle) (*message.Message, error) {
	emoji = strings.TrimSpace(emoji)
	if emoji == "" {
		return nil, fmt.Errorf("%w: emoji is required", apperror.ErrInvalidInput)
	}

	changed := false
	msg, err := s.mutate(ctx, messageID, func(msg *message.Message) ([]string, error) {
		next, ok := toggle(msg.Reactions, emoji, actorID)
		changed = ok
		if !ok {
			return nil, nil
		}
		msg.Reactions = next
		return []string{"reactions"}, nil
	})
	if err != nil {
		return nil, err
	}

	if changed {
		s.publisher.MessageReaction(events.MessageReactionEvent{
			MessageRef: events.RefOf(msg),
			Reactions:  msg.Reactions,
		})
	}
	return msg, nil
}

// MarkRead records that userID read each message. Messages already read by
// userID and unknown ids are skipped. It returns how many receipts were added.
func (s *Service) MarkRead(ctx context.Context, messageIDs []string, userID string) (int, error) {
	marked := 0
	seen := make(map[string]struct{}, len(messageIDs))
	for _, id := range messageIDs {
		if _, dup := seen[id]; dup {
			continue
		}
		seen[id] = struct{}{}

		ok, err := s.markOne(ctx, id, userID)
		if errors.Is(err, apperror.ErrNotFound) {
			continue
		}
		if err != nil {
			return marked, err
		}
		if ok {
			marked++
		}
	}

	if marked > 0 {
		s.invalidateUnread(ctx, userID)
	}
	return marked, nil
}

// MarkConversationRead marks every message userID received in channel, or
// directly from counterpart, as read. Exactly one of the two must be set.
func (s *Service) MarkConversationRead(ctx context.Context, userID, channel, counterpart string) (int, error) {
	if (channel == "") == (counterpart == "") {
		return 0, fmt.Errorf("%w: exactly one of channel or counterpart is required", apperror.ErrInvalidInput)
	}

	var (
		msgs []message.Message
		err  error
	)
	if channel != "" {
		msgs, err = s.repo.InboundInChannel(ctx, userID, channel)
	} else {
		msgs, err = s.repo.InboundFrom(ctx, userID, counterpart)
	}
	if err != nil {
		return 0, err
	}

	ids := make([]string, 0, len(msgs))
	for i := range msgs {
		if !msgs[i].ReadByUser(userID) {
			ids = append(ids, msgs[i].ID)
		}
	}
	return s.MarkRead(ctx, ids, userID)
}

func (s *Service) markOne(ctx context.Context, messageID, userID string) (bool, error) {
	changed := false
	_, err := s.mutate(ctx, messageID, func(msg *message.Message) ([]string, error) {
		next, ok := MarkRead(msg.ReadBy, userID, s.now())
		changed = ok
		if !ok {
			return nil, nil
		}
		msg.ReadBy = next
		return []string{"read_by"}, nil
	})
	return changed, err
}

// mutate loads a message, lets change modify it and writes the returned
// columns with a version check, retrying on conflicts. A change returning
// no columns leaves the message untouched.
func (s *Service) mutate(ctx context.Context, messageID string, change func(*message.Message) ([]string, error)) (*message.Message, error) {
	for attempt := 1; ; attempt++ {
		msg, err := s.repo.FindByID(ctx, messageID)
		if err != nil {
			return nil, err
		}

		expected := msg.Version
		columns, err := change(msg)
		if err != nil {
			return nil, err
		}
		if len(columns) == 0 {
			return msg, nil
		}

		err = s.repo.UpdateIfVersion(ctx, msg, expected, columns...)
		if errors.Is(err, apperror.ErrConflict) && attempt < maxWriteAttempts {
			s.logger.Debug("Retrying message write after version conflict", "messageID", messageID, "attempt", attempt)
			continue
		}
		if err != nil {
			return nil, err
		}
		return msg, nil
	}
}

// UnreadSummary returns the user's unread counts per channel and per
// direct-message sender. Concurrent misses for one user share a single
// computation, which outlives the caller that started it.
func (s *Service) UnreadSummary(ctx context.Context, userID string) (UnreadSummary, error) {
	cache := s.unreadCache()
	if cached, ok := cache.Get(ctx, userID); ok {
		return *cached, nil
	}

	gen := s.unreadGeneration(userID)
	key := userID + "#" + strconv.FormatUint(gen, 10)
	shared := context.WithoutCancel(ctx)
	v, err, _ := s.group.Do(key, func() (any, error) {
		channels, err := s.repo.ChannelsOf(shared, userID)
		if err != nil {
			return nil, err
		}
		msgs, err := s.repo.InboundFor(shared, userID, channels)
		if err != nil {
			return nil, err
		}

		joined := make(map[string]struct{}, len(channels))
		for _, c := range channels {
			joined[c] = struct{}{}
		}
		summary := SummarizeUnread(msgs, userID, joined)
		s.storeUnread(shared, userID, gen, summary)
		return summary, nil
	})
	if err != nil {
		return UnreadSummary{}, err
	}
	return v.(UnreadSummary), nil
}

// Conversations lists the user's direct-message conversations, most recent first.
func (s *Service) Conversations(ctx context.Context, userID string) ([]Conversation, error) {
	msgs, err := s.repo.DirectFor(ctx, userID)
	if err != nil {
		return nil, err
	}
	return BuildConversations(msgs, userID), nil
}

// ChannelHistory returns a page of channel messages, newest first.
func (s *Service) ChannelHistory(ctx context.Context, channel string, page Page) ([]message.Message, error) {
	if channel == "" {
		return nil, fmt.Errorf("%w: channel is required", apperror.ErrInvalidInput)
	}
	return s.repo.ChannelHistory(ctx, channel, page)
}

// DirectHistory returns a page of direct messages between two users, newest first.
func (s *Service) DirectHistory(ctx context.Context, userID, counterpart string, page Page) ([]message.Message, error) {
	if counterpart == "" {
		return nil, fmt.Errorf("%w: counterpart is required", apperror.ErrInvalidInput)
	}
	return s.repo.DirectHistory(ctx, userID, counterpart, page)
}

// JoinChannel makes userID a participant of channel.
func (s *Service) JoinChannel(ctx context.Context, channel, userID string) error {
	if channel == "" {
		return fmt.Errorf("%w: channel is required", apperror.ErrInvalidInput)
	}
	if err := s.repo.JoinChannel(ctx, channel, userID); err != nil {
		return err
	}
	s.invalidateUnread(ctx, userID)
	return nil
}

// LeaveChannel removes userID from channel.
func (s *Service) LeaveChannel(ctx context.Context, channel, userID string) error {
	if err := s.repo.LeaveChannel(ctx, channel, userID); err != nil {
		return err
	}
	s.invalidateUnread(ctx, userID)
	return nil
}

// Channels lists the channels userID participates in.
func (s *Service) Channels(ctx context.Context, userID string) ([]string, error) {
	return s.repo.ChannelsOf(ctx, userID)
}

// invalidateAudience drops cached unread summaries of everyone who can see msg.
func (s *Service) invalidateAudience(ctx context.Context, msg *message.Message) {
	var audience []string
	switch {
	case msg.RecipientID != nil:
		audience = []string{*msg.RecipientID}
	case msg.Channel != nil:
		members, err := s.repo.MembersOf(ctx, *msg.Channel)
		if err != nil {
			s.logger.Warn("Failed to load channel members for cache invalidation", "channel", *msg.Channel, "error", err)
			return
		}
		audience = members
	}
	if len(audience) > 0 {
		s.invalidateUnread(ctx, audience...)
	}
}

func optional(s *string) *string {
	if s == nil || strings.TrimSpace(*s) == "" {
		return nil
	}
	v := strings.TrimSpace(*s)
	return &v
}

// mentionTargets drops duplicates, blanks and the author from a mention list.
func mentionTargets(mentions []string, authorID string) []string {
	seen := make(map[string]struct{}, len(mentions))
	targets := make([]string, 0, len(mentions))
	for _, id := range mentions {
		if id == "" || id == authorID {
			continue
		}
		if _, ok := seen[id]; ok {
			continue
		}
		seen[id] = struct{}{}
		targets = append(targets, id)
	}
	return targets
}

func preview(content string) string {
	const limit = 120
	runes := []rune(content)
	if len(runes) <= limit {
		return content
	}
	return string(runes[:limit]) + "..."
}
