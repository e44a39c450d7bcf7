package chat

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/example/collab-tracker/domain/apperror"
	"github.com/example/collab-tracker/domain/message"
	"github.com/example/collab-tracker/events"
	"github.com/go-monolith/mono/pkg/types"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// mockLogger implements types.Logger for testing
type mockLogger struct{}

func (m *mockLogger) Debug(_ string, _ ...any)         {}
func (m *mockLogger) Info(_ string, _ ...any)          {}
func (m *mockLogger) Warn(_ string, _ ...any)          {}
func (m *mockLogger) Error(_ string, _ ...any)         {}
func (m *mockLogger) With(_ ...any) types.Logger       { return m }
func (m *mockLogger) WithModule(_ string) types.Logger { return m }
func (m *mockLogger) WithError(_ error) types.Logger   { return m }

// recordingPublisher captures published events.
type recordingPublisher struct {
	mu        sync.Mutex
	sent      []events.MessageSentEvent
	edited    []events.MessageEditedEvent
	deleted   []events.MessageDeletedEvent
	reactions []events.MessageReactionEvent
	mentions  []events.MentionCreatedEvent
}

func (p *recordingPublisher) MessageSent(e events.MessageSentEvent) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.sent = append(p.sent, e)
}

func (p *recordingPublisher) MessageEdited(e events.MessageEditedEvent) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.edited = append(p.edited, e)
}

func (p *recordingPublisher) MessageDeleted(e events.MessageDeletedEvent) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.deleted = append(p.deleted, e)
}

func (p *recordingPublisher) MessageReaction(e events.MessageReactionEvent) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.reactions = append(p.reactions, e)
}

func (p *recordingPublisher) MentionCreated(e events.MentionCreatedEvent) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.mentions = append(p.mentions, e)
}

// memoryUnreadCache is an UnreadCache backed by a map.
type memoryUnreadCache struct {
	mu          sync.Mutex
	entries     map[string]UnreadSummary
	invalidated []string
}

func newMemoryUnreadCache() *memoryUnreadCache {
	return &memoryUnreadCache{entries: make(map[string]UnreadSummary)}
}

func (c *memoryUnreadCache) Get(_ context.Context, userID string) (*UnreadSummary, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	s, ok := c.entries[userID]
	if !ok {
		return nil, false
	}
	return &s, true
}

func (c *memoryUnreadCache) Set(_ context.Context, userID string, summary UnreadSummary) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.entries[userID] = summary
}

func (c *memoryUnreadCache) Invalidate(_ context.Context, userIDs ...string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	for _, id := range userIDs {
		delete(c.entries, id)
		c.invalidated = append(c.invalidated, id)
	}
}

func setupService(t *testing.T) (*Service, *recordingPublisher) {
	t.Helper()
	pub := &recordingPublisher{}
	svc := NewService(NewRepository(setupTestDB(t)), pub, &mockLogger{})
	clock := time.Date(2024, 5, 1, 9, 0, 0, 0, time.UTC)
	svc.now = func() time.Time {
		clock = clock.Add(time.Second)
		return clock
	}
	return svc, pub
}

func send(t *testing.T, svc *Service, req SendMessageRequest) *message.Message {
	t.Helper()
	msg, err := svc.Send(context.Background(), req)
	require.NoError(t, err)
	return msg
}

func TestService_Send_InvalidShape(t *testing.T) {
	svc, pub := setupService(t)
	ctx := context.Background()

	tests := []struct {
		name string
		req  SendMessageRequest
	}{
		{"neither channel nor recipient", SendMessageRequest{SenderID: "A", Content: "hi"}},
		{"both channel and recipient", SendMessageRequest{SenderID: "A", Content: "hi", Channel: strPtr("general"), RecipientID: strPtr("B")}},
		{"blank channel only", SendMessageRequest{SenderID: "A", Content: "hi", Channel: strPtr("  ")}},
		{"shape is checked before content", SendMessageRequest{SenderID: "A"}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := svc.Send(ctx, tt.req)
			assert.ErrorIs(t, err, apperror.ErrInvalidShape)
		})
	}

	history, err := svc.ChannelHistory(ctx, "general", Page{})
	require.NoError(t, err)
	assert.Empty(t, history)
	assert.Empty(t, pub.sent)
}

func TestService_Send(t *testing.T) {
	svc, pub := setupService(t)
	ctx := context.Background()

	t.Run("empty content is invalid input", func(t *testing.T) {
		_, err := svc.Send(ctx, SendMessageRequest{SenderID: "A", Channel: strPtr("general"), Content: "   "})
		assert.ErrorIs(t, err, apperror.ErrInvalidInput)
	})

	t.Run("direct message to self is invalid input", func(t *testing.T) {
		_, err := svc.Send(ctx, SendMessageRequest{SenderID: "A", RecipientID: strPtr("A"), Content: "note"})
		assert.ErrorIs(t, err, apperror.ErrInvalidInput)
	})

	t.Run("unknown reply target is not found", func(t *testing.T) {
		_, err := svc.Send(ctx, SendMessageRequest{SenderID: "A", Channel: strPtr("general"), Content: "re", ReplyTo: strPtr("missing")})
		assert.ErrorIs(t, err, apperror.ErrNotFound)
	})

	msg := send(t, svc, SendMessageRequest{
		SenderID: "A",
		Channel:  strPtr("general"),
		Content:  "ping @B",
		Mentions: []string{"B", "A", "B"},
	})

	assert.True(t, msg.ReadByUser("A"))
	assert.Equal(t, []string{"B"}, msg.Mentions)
	require.Len(t, pub.sent, 1)
	assert.Equal(t, msg.ID, pub.sent[0].Message.ID)
	require.Len(t, pub.mentions, 1)
	assert.Equal(t, events.MentionInMessage, pub.mentions[0].Source)
	assert.Equal(t, "general", pub.mentions[0].Channel)
}

func TestService_EditAndDelete(t *testing.T) {
	svc, pub := setupService(t)
	ctx := context.Background()
	msg := send(t, svc, SendMessageRequest{SenderID: "A", RecipientID: strPtr("B"), Content: "draft"})

	_, err := svc.Edit(ctx, msg.ID, "B", "hijack")
	assert.ErrorIs(t, err, apperror.ErrUnauthorized)

	edited, err := svc.Edit(ctx, msg.ID, "A", "final")
	require.NoError(t, err)
	assert.Equal(t, "final", edited.Content)
	assert.True(t, edited.IsEdited)
	assert.NotNil(t, edited.EditedAt)
	assert.Len(t, pub.edited, 1)

	assert.ErrorIs(t, svc.Delete(ctx, msg.ID, "B"), apperror.ErrUnauthorized)
	require.NoError(t, svc.Delete(ctx, msg.ID, "A"))
	require.Len(t, pub.deleted, 1)
	assert.Equal(t, "B", *pub.deleted[0].RecipientID)

	assert.ErrorIs(t, svc.Delete(ctx, msg.ID, "A"), apperror.ErrNotFound)
}

// interleaveReactions makes user C react to the message between the
// service's read and its write, for the first n write attempts.
func interleaveReactions(t *testing.T, svc *Service, messageID string, n int) *int {
	t.Helper()
	clock := time.Date(2024, 5, 2, 9, 0, 0, 0, time.UTC)
	attempts := 0
	svc.now = func() time.Time {
		attempts++
		if attempts <= n {
			other, err := svc.repo.FindByID(context.Background(), messageID)
			require.NoError(t, err)
			other.Reactions, _ = AddReaction(other.Reactions, "👀", "C")
			require.NoError(t, svc.repo.UpdateIfVersion(context.Background(), other, other.Version, "reactions"))
		}
		clock = clock.Add(time.Second)
		return clock
	}
	return &attempts
}

func TestService_MarkRead_RetriesWithoutLosingConcurrentWrite(t *testing.T) {
	svc, _ := setupService(t)
	ctx := context.Background()
	msg := send(t, svc, SendMessageRequest{SenderID: "A", RecipientID: strPtr("B"), Content: "review please"})
	attempts := interleaveReactions(t, svc, msg.ID, 1)

	marked, err := svc.MarkRead(ctx, []string{msg.ID}, "B")
	require.NoError(t, err)
	assert.Equal(t, 1, marked)
	assert.Equal(t, 2, *attempts)

	stored, err := svc.repo.FindByID(ctx, msg.ID)
	require.NoError(t, err)
	assert.True(t, stored.ReadByUser("B"))
	assert.Equal(t, []message.Reaction{{Emoji: "👀", Users: []string{"C"}}}, stored.Reactions)
}

func TestService_Edit_GivesUpAfterRepeatedConflicts(t *testing.T) {
	svc, pub := setupService(t)
	ctx := context.Background()
	msg := send(t, svc, SendMessageRequest{SenderID: "A", RecipientID: strPtr("B"), Content: "draft"})
	attempts := interleaveReactions(t, svc, msg.ID, maxWriteAttempts)

	_, err := svc.Edit(ctx, msg.ID, "A", "final")
	assert.ErrorIs(t, err, apperror.ErrConflict)
	assert.Equal(t, maxWriteAttempts, *attempts)
	assert.Empty(t, pub.edited)

	stored, err := svc.repo.FindByID(ctx, msg.ID)
	require.NoError(t, err)
	assert.Equal(t, "draft", stored.Content)
	assert.False(t, stored.IsEdited)
}

func TestService_Reactions(t *testing.T) {
	svc, pub := setupService(t)
	ctx := context.Background()
	msg := send(t, svc, SendMessageRequest{SenderID: "A", Channel: strPtr("general"), Content: "ship it"})

	got, err := svc.AddReaction(ctx, msg.ID, "B", "🚀")
	require.NoError(t, err)
	assert.Equal(t, []message.Reaction{{Emoji: "🚀", Users: []string{"B"}}}, got.Reactions)

	_, err = svc.AddReaction(ctx, msg.ID, "B", "🚀")
	require.NoError(t, err)
	assert.Len(t, pub.reactions, 1, "repeating a reaction publishes nothing")

	got, err = svc.RemoveReaction(ctx, msg.ID, "B", "🚀")
	require.NoError(t, err)
	assert.Empty(t, got.Reactions)
	assert.Len(t, pub.reactions, 2)

	_, err = svc.AddReaction(ctx, msg.ID, "B", "")
	assert.ErrorIs(t, err, apperror.ErrInvalidInput)
}

func TestService_UnreadAndMarkRead(t *testing.T) {
	svc, _ := setupService(t)
	ctx := context.Background()
	cache := newMemoryUnreadCache()
	svc.SetUnreadCache(cache)

	require.NoError(t, svc.JoinChannel(ctx, "general", "A"))
	require.NoError(t, svc.JoinChannel(ctx, "general", "B"))

	inChannel := send(t, svc, SendMessageRequest{SenderID: "A", Channel: strPtr("general"), Content: "standup"})
	send(t, svc, SendMessageRequest{SenderID: "A", Channel: strPtr("random"), Content: "not joined"})
	send(t, svc, SendMessageRequest{SenderID: "A", RecipientID: strPtr("B"), Content: "one"})
	send(t, svc, SendMessageRequest{SenderID: "A", RecipientID: strPtr("B"), Content: "two"})

	summary, err := svc.UnreadSummary(ctx, "B")
	require.NoError(t, err)
	assert.Equal(t, 3, summary.Total)
	assert.Equal(t, map[string]int{"general": 1}, summary.Channels)
	assert.Equal(t, map[string]int{"A": 2}, summary.Direct)

	_, cached := cache.Get(ctx, "B")
	assert.True(t, cached)

	marked, err := svc.MarkRead(ctx, []string{inChannel.ID, inChannel.ID, "missing"}, "B")
	require.NoError(t, err)
	assert.Equal(t, 1, marked)

	marked, err = svc.MarkRead(ctx, []string{inChannel.ID}, "B")
	require.NoError(t, err)
	assert.Equal(t, 0, marked, "marking twice adds no receipt")

	stored, err := svc.repo.FindByID(ctx, inChannel.ID)
	require.NoError(t, err)
	assert.Len(t, stored.ReadBy, 2)

	summary, err = svc.UnreadSummary(ctx, "B")
	require.NoError(t, err)
	assert.Equal(t, 2, summary.Total)

	marked, err = svc.MarkConversationRead(ctx, "B", "", "A")
	require.NoError(t, err)
	assert.Equal(t, 2, marked)

	summary, err = svc.UnreadSummary(ctx, "B")
	require.NoError(t, err)
	assert.Zero(t, summary.Total)

	_, err = svc.MarkConversationRead(ctx, "B", "general", "A")
	assert.ErrorIs(t, err, apperror.ErrInvalidInput)
}

func TestService_UnreadSummary_StaleComputationIsNotCached(t *testing.T) {
	svc, _ := setupService(t)
	ctx := context.Background()
	cache := newMemoryUnreadCache()
	svc.SetUnreadCache(cache)

	gen := svc.unreadGeneration("B")
	stale := UnreadSummary{Total: 1, Channels: map[string]int{}, Direct: map[string]int{"A": 1}}
	// A read receipt lands while the summary is being computed.
	svc.invalidateUnread(ctx, "B")

	assert.False(t, svc.storeUnread(ctx, "B", gen, stale))
	_, cached := cache.Get(ctx, "B")
	assert.False(t, cached)

	assert.True(t, svc.storeUnread(ctx, "B", svc.unreadGeneration("B"), stale))
	_, cached = cache.Get(ctx, "B")
	assert.True(t, cached)
}

func TestService_UnreadSummary_SurvivesCallerCancel(t *testing.T) {
	svc, _ := setupService(t)
	send(t, svc, SendMessageRequest{SenderID: "A", RecipientID: strPtr("B"), Content: "one"})

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	summary, err := svc.UnreadSummary(ctx, "B")
	require.NoError(t, err)
	assert.Equal(t, 1, summary.Total)
}

func TestService_Conversations(t *testing.T) {
	svc, _ := setupService(t)
	ctx := context.Background()

	send(t, svc, SendMessageRequest{SenderID: "A", RecipientID: strPtr("B"), Content: "hi B"})
	send(t, svc, SendMessageRequest{SenderID: "C", RecipientID: strPtr("A"), Content: "hi A"})
	send(t, svc, SendMessageRequest{SenderID: "C", RecipientID: strPtr("A"), Content: "still there?"})
	send(t, svc, SendMessageRequest{SenderID: "A", Channel: strPtr("general"), Content: "not a DM"})

	convs, err := svc.Conversations(ctx, "A")
	require.NoError(t, err)
	require.Len(t, convs, 2)

	byCounterpart := map[string]Conversation{}
	for _, c := range convs {
		byCounterpart[c.Counterpart] = c
	}
	assert.Equal(t, 0, byCounterpart["B"].UnreadCount)
	assert.Equal(t, 2, byCounterpart["C"].UnreadCount)
	assert.Equal(t, "still there?", byCounterpart["C"].LastMessage.Content)
}
