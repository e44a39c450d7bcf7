package realtime

import (
	"context"
	"testing"
	"time"

	"github.com/example/collab-tracker/domain/message"
	domain "github.com/example/collab-tracker/domain/task"
	"github.com/example/collab-tracker/events"
	"github.com/example/collab-tracker/modules/task"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"
)

// recordingRoomPublisher captures PublishRooms calls.
type recordingRoomPublisher struct {
	calls []Envelope
}

func (p *recordingRoomPublisher) PublishRooms(rooms []Room, event string, payload any) int {
	p.calls = append(p.calls, Envelope{Event: event, Targets: rooms, Payload: payload})
	return len(rooms)
}

func strPtr(s string) *string { return &s }

func TestDispatcher_Targets(t *testing.T) {
	channelMsg := message.Message{ID: "m1", SenderID: "A", Channel: strPtr("general")}
	directMsg := message.Message{ID: "m2", SenderID: "A", RecipientID: strPtr("B")}

	tests := []struct {
		name      string
		envelope  Envelope
		wantEvent string
		wantRooms []Room
	}{
		{
			name:      "task created",
			envelope:  TaskCreatedEnvelope(events.TaskCreatedEvent{Task: domain.Task{ID: "t1"}}),
			wantEvent: EventTaskCreated,
			wantRooms: []Room{TaskRoom("t1"), BroadcastRoom()},
		},
		{
			name:      "task updated",
			envelope:  TaskUpdatedEnvelope(events.TaskUpdatedEvent{Task: domain.Task{ID: "t1"}}),
			wantEvent: EventTaskUpdated,
			wantRooms: []Room{TaskRoom("t1"), BroadcastRoom()},
		},
		{
			name:      "task deleted",
			envelope:  TaskDeletedEnvelope(events.TaskDeletedEvent{TaskID: "t1"}),
			wantEvent: EventTaskDeleted,
			wantRooms: []Room{TaskRoom("t1"), BroadcastRoom()},
		},
		{
			name:      "task comment",
			envelope:  TaskCommentEnvelope(events.TaskCommentedEvent{TaskID: "t1", Action: events.CommentAdded}),
			wantEvent: EventTaskComment,
			wantRooms: []Room{TaskRoom("t1"), BroadcastRoom()},
		},
		{
			name:      "bulk update",
			envelope:  TasksBulkEnvelope(events.TasksBulkUpdatedEvent{TaskIDs: []string{"t1", "t2"}, Status: domain.StatusDone}),
			wantEvent: EventTaskBulkUpdated,
			wantRooms: []Room{TaskRoom("t1"), TaskRoom("t2"), BroadcastRoom()},
		},
		{
			name:      "channel message",
			envelope:  MessageSentEnvelope(events.MessageSentEvent{Message: channelMsg}),
			wantEvent: EventMessageNew,
			wantRooms: []Room{ChannelRoom("general")},
		},
		{
			name:      "direct message",
			envelope:  MessageSentEnvelope(events.MessageSentEvent{Message: directMsg}),
			wantEvent: EventMessageNew,
			wantRooms: []Room{UserRoom("A"), UserRoom("B")},
		},
		{
			name:      "edited direct message",
			envelope:  MessageEditedEnvelope(events.MessageEditedEvent{Message: directMsg}),
			wantEvent: EventMessageEdited,
			wantRooms: []Room{UserRoom("A"), UserRoom("B")},
		},
		{
			name:      "deleted channel message",
			envelope:  MessageDeletedEnvelope(events.MessageDeletedEvent{MessageRef: events.RefOf(&channelMsg)}),
			wantEvent: EventMessageDeleted,
			wantRooms: []Room{ChannelRoom("general")},
		},
		{
			name:      "reaction",
			envelope:  MessageReactionEnvelope(events.MessageReactionEvent{MessageRef: events.RefOf(&directMsg)}),
			wantEvent: EventMessageReaction,
			wantRooms: []Room{UserRoom("A"), UserRoom("B")},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.wantEvent, tt.envelope.Event)
			assert.Equal(t, tt.wantRooms, tt.envelope.Targets)
		})
	}
}

func TestDispatcher_Mentions(t *testing.T) {
	pub := &recordingRoomPublisher{}
	d := NewDispatcher(pub, &mockLogger{})

	d.DispatchAll(MentionEnvelopes(events.MentionCreatedEvent{
		UserIDs:  []string{"B", "C"},
		ActorID:  "A",
		Source:   events.MentionInComment,
		SourceID: "c1",
		TaskID:   "t1",
		Preview:  "@B @C please review",
	}))

	require.Len(t, pub.calls, 2)
	for i, user := range []string{"B", "C"} {
		assert.Equal(t, EventMentionNew, pub.calls[i].Event)
		assert.Equal(t, []Room{UserRoom(user)}, pub.calls[i].Targets)
		assert.Equal(t, "t1", pub.calls[i].Payload.(Mention).TaskID)
	}
}

func TestDispatcher_SkipsEnvelopeWithoutTargets(t *testing.T) {
	pub := &recordingRoomPublisher{}
	d := NewDispatcher(pub, &mockLogger{})

	d.Dispatch(MessageSentEnvelope(events.MessageSentEvent{Message: message.Message{ID: "m1"}}))
	assert.Empty(t, pub.calls)
}

// dispatchingPublisher forwards task service events straight to a dispatcher.
type dispatchingPublisher struct {
	d *Dispatcher
}

func (p dispatchingPublisher) TaskCreated(e events.TaskCreatedEvent) {
	p.d.Dispatch(TaskCreatedEnvelope(e))
}
func (p dispatchingPublisher) TaskUpdated(e events.TaskUpdatedEvent) {
	p.d.Dispatch(TaskUpdatedEnvelope(e))
}
func (p dispatchingPublisher) TaskDeleted(e events.TaskDeletedEvent) {
	p.d.Dispatch(TaskDeletedEnvelope(e))
}
func (p dispatchingPublisher) TaskCommented(e events.TaskCommentedEvent) {
	p.d.Dispatch(TaskCommentEnvelope(e))
}
func (p dispatchingPublisher) TasksBulkUpdated(e events.TasksBulkUpdatedEvent) {
	p.d.Dispatch(TasksBulkEnvelope(e))
}
func (p dispatchingPublisher) MentionCreated(e events.MentionCreatedEvent) {
	p.d.DispatchAll(MentionEnvelopes(e))
}

func TestDispatcher_TaskCompletionReachesTaskRoom(t *testing.T) {
	db, err := gorm.Open(sqlite.Open(":memory:"), &gorm.Config{Logger: logger.Default.LogMode(logger.Silent)})
	require.NoError(t, err)
	sqlDB, err := db.DB()
	require.NoError(t, err)
	sqlDB.SetMaxOpenConns(1)
	require.NoError(t, task.Migrate(db))

	router := newTestRouter(t)
	svc := task.NewService(task.NewRepository(db), dispatchingPublisher{d: NewDispatcher(router, &mockLogger{})}, &mockLogger{})
	ctx := context.Background()

	created, err := svc.Create(ctx, task.CreateTaskRequest{ActorID: "A", Title: "Release notes", Status: domain.StatusTodo})
	require.NoError(t, err)

	watcher := &recordingSender{}
	conn := router.Attach("W", watcher)
	require.NoError(t, router.Subscribe(conn.ID(), TaskRoom(created.ID)))

	done := domain.StatusDone
	updated, activities, err := svc.Update(ctx, created.ID, "A", task.Patch{Status: &done})
	require.NoError(t, err)
	require.NotNil(t, updated.CompletedAt)
	require.Len(t, activities, 1)

	waitFor(t, watcher, EventTaskUpdated, 1)

	var got TaskChange
	watcher.last(t, EventTaskUpdated, &got)
	assert.Equal(t, created.ID, got.Task.ID)
	assert.Equal(t, domain.StatusDone, got.Task.Status)
	assert.NotNil(t, got.Task.CompletedAt)
	assert.Equal(t, "A", got.ActorID)
	require.Len(t, got.Activities, 1)
	assert.Equal(t, domain.ActivityStatusChanged, got.Activities[0].Type)
	assert.Equal(t, "todo", got.Activities[0].Metadata["from"])
	assert.Equal(t, "done", got.Activities[0].Metadata["to"])
	assert.WithinDuration(t, time.Now(), got.Activities[0].CreatedAt, time.Minute)
}
