package realtime

import (
	"github.com/example/collab-tracker/events"
	"github.com/go-monolith/mono/pkg/types"
)

// Envelope is a committed mutation ready for delivery: one outbound event,
// the rooms that should see it and its payload.
type Envelope struct {
	Event   string
	Targets []Room
	Payload any
}

// RoomPublisher delivers a frame once to every connection in any of rooms.
type RoomPublisher interface {
	PublishRooms(rooms []Room, event string, payload any) int
}

// Dispatcher maps committed mutations to room publishes. Delivery is best
// effort and never reported back to the mutation's caller.
type Dispatcher struct {
	publisher RoomPublisher
	logger    types.Logger
}

// NewDispatcher creates a dispatcher publishing through p.
func NewDispatcher(p RoomPublisher, logger types.Logger) *Dispatcher {
	return &Dispatcher{publisher: p, logger: logger}
}

// Dispatch publishes env to its targets.
func (d *Dispatcher) Dispatch(env Envelope) {
	if len(env.Targets) == 0 {
		d.logger.Debug("Dropping envelope without targets", "event", env.Event)
		return
	}
	delivered := d.publisher.PublishRooms(env.Targets, env.Event, env.Payload)
	d.logger.Debug("Dispatched event", "event", env.Event, "rooms", len(env.Targets), "connections", delivered)
}

// DispatchAll publishes each envelope in order.
func (d *Dispatcher) DispatchAll(envs []Envelope) {
	for _, env := range envs {
		d.Dispatch(env)
	}
}

// taskTargets is a task's own room plus the broadcast room.
func taskTargets(taskIDs ...string) []Room {
	rooms := make([]Room, 0, len(taskIDs)+1)
	for _, id := range taskIDs {
		rooms = append(rooms, TaskRoom(id))
	}
	return append(rooms, BroadcastRoom())
}

// messageTargets is the channel room of a channel message, or the personal
// rooms of both parties of a direct message.
func messageTargets(ref events.MessageRef) []Room {
	switch {
	case ref.Channel != nil:
		return []Room{ChannelRoom(*ref.Channel)}
	case ref.RecipientID != nil:
		return []Room{UserRoom(ref.SenderID), UserRoom(*ref.RecipientID)}
	}
	return nil
}

// MentionEnvelopes maps a mention to one mention:new per mentioned user.
func MentionEnvelopes(e events.MentionCreatedEvent) []Envelope {
	payload := Mention{
		Source:   string(e.Source),
		SourceID: e.SourceID,
		ActorID:  e.ActorID,
		TaskID:   e.TaskID,
		Channel:  e.Channel,
		Preview:  e.Preview,
	}
	envs := make([]Envelope, 0, len(e.UserIDs))
	for _, id := range e.UserIDs {
		envs = append(envs, Envelope{Event: EventMentionNew, Targets: []Room{UserRoom(id)}, Payload: payload})
	}
	return envs
}

// TaskCreatedEnvelope maps a created task.
func TaskCreatedEnvelope(e events.TaskCreatedEvent) Envelope {
	return Envelope{
		Event:   EventTaskCreated,
		Targets: taskTargets(e.Task.ID),
		Payload: TaskChange{Task: e.Task, Activities: e.Task.Activities, ActorID: e.ActorID},
	}
}

// TaskUpdatedEnvelope maps an updated task with the activities the update appended.
func TaskUpdatedEnvelope(e events.TaskUpdatedEvent) Envelope {
	return Envelope{
		Event:   EventTaskUpdated,
		Targets: taskTargets(e.Task.ID),
		Payload: TaskChange{Task: e.Task, Activities: e.Activities, ActorID: e.ActorID},
	}
}

// TaskDeletedEnvelope maps a deleted task.
func TaskDeletedEnvelope(e events.TaskDeletedEvent) Envelope {
	return Envelope{
		Event:   EventTaskDeleted,
		Targets: taskTargets(e.TaskID),
		Payload: TaskRemoved{TaskID: e.TaskID, ActorID: e.ActorID, DeletedAt: e.DeletedAt},
	}
}

// TaskCommentEnvelope maps a comment change.
func TaskCommentEnvelope(e events.TaskCommentedEvent) Envelope {
	return Envelope{
		Event:   EventTaskComment,
		Targets: taskTargets(e.TaskID),
		Payload: TaskComment{TaskID: e.TaskID, Action: string(e.Action), Comment: e.Comment, ActorID: e.ActorID},
	}
}

// TasksBulkEnvelope maps a bulk status change or reorder.
func TasksBulkEnvelope(e events.TasksBulkUpdatedEvent) Envelope {
	return Envelope{
		Event:   EventTaskBulkUpdated,
		Targets: taskTargets(e.TaskIDs...),
		Payload: TaskBulk{TaskIDs: e.TaskIDs, Status: e.Status, Reorder: e.Reorder, ActorID: e.ActorID},
	}
}

// MessageSentEnvelope maps a new message.
func MessageSentEnvelope(e events.MessageSentEvent) Envelope {
	return Envelope{
		Event:   EventMessageNew,
		Targets: messageTargets(events.RefOf(&e.Message)),
		Payload: e.Message,
	}
}

// MessageEditedEnvelope maps an edited message.
func MessageEditedEnvelope(e events.MessageEditedEvent) Envelope {
	return Envelope{
		Event:   EventMessageEdited,
		Targets: messageTargets(events.RefOf(&e.Message)),
		Payload: e.Message,
	}
}

// MessageDeletedEnvelope maps a deleted message.
func MessageDeletedEnvelope(e events.MessageDeletedEvent) Envelope {
	return Envelope{
		Event:   EventMessageDeleted,
		Targets: messageTargets(e.MessageRef),
		Payload: MessageRemoved{MessageID: e.MessageID, Channel: e.Channel, RecipientID: e.RecipientID},
	}
}

// MessageReactionEnvelope maps a reaction change.
func MessageReactionEnvelope(e events.MessageReactionEvent) Envelope {
	return Envelope{
		Event:   EventMessageReaction,
		Targets: messageTargets(e.MessageRef),
		Payload: MessageReactions{MessageID: e.MessageID, Reactions: e.Reactions},
	}
}
