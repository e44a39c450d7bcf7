package realtime

import (
	"context"
	"fmt"

	"github.com/example/collab-tracker/events"
	"github.com/go-monolith/mono"
	"github.com/go-monolith/mono/pkg/helper"
	"github.com/go-monolith/mono/pkg/types"
)

// RealtimeModule consumes task and chat events and fans them out to
// connected clients. It owns the presence registry and the room router.
type RealtimeModule struct {
	router     *Router
	presence   *Presence
	dispatcher *Dispatcher
	logger     types.Logger
}

// Compile-time interface checks.
var (
	_ mono.Module                = (*RealtimeModule)(nil)
	_ mono.EventConsumerModule   = (*RealtimeModule)(nil)
	_ mono.HealthCheckableModule = (*RealtimeModule)(nil)
)

// NewModule creates a new RealtimeModule with per-connection queues of
// queueSize frames.
func NewModule(queueSize int, logger types.Logger) *RealtimeModule {
	router := NewRouter(queueSize, logger)
	presence := NewPresence()
	presence.OnChange(func(change PresenceChange) {
		router.PublishToUsersExcept(BroadcastRoom(), change.UserID, EventUserOnline, change)
	})

	return &RealtimeModule{
		router:     router,
		presence:   presence,
		dispatcher: NewDispatcher(router, logger),
		logger:     logger,
	}
}

// Name returns the module name.
func (m *RealtimeModule) Name() string {
	return "realtime"
}

// Start initializes the module.
func (m *RealtimeModule) Start(_ context.Context) error {
	m.logger.Info("Realtime module started")
	return nil
}

// Stop detaches every connection after flushing queued frames.
func (m *RealtimeModule) Stop(_ context.Context) error {
	clients := m.router.ConnectionCount()
	m.router.Close()
	m.logger.Info("Realtime module stopped", "clients", clients)
	return nil
}

// Health reports connection and delivery counters.
func (m *RealtimeModule) Health(_ context.Context) mono.HealthStatus {
	stats := m.router.Stats()
	return mono.HealthStatus{
		Healthy: true,
		Message: "operational",
		Details: map[string]any{
			"connected_clients": stats.Connections,
			"rooms":             stats.Rooms,
			"online_users":      len(m.presence.OnlineUsers()),
			"frames_written":    stats.Written,
			"frames_dropped":    stats.Dropped,
			"frames_failed":     stats.Failed,
		},
	}
}

// RegisterEventConsumers subscribes to every task and chat event.
func (m *RealtimeModule) RegisterEventConsumers(registry mono.EventRegistry) error {
	register := []struct {
		name string
		fn   func() error
	}{
		{"TaskCreated", func() error {
			return helper.RegisterTypedEventConsumer(registry, events.TaskCreatedV1, m.onTaskCreated, m)
		}},
		{"TaskUpdated", func() error {
			return helper.RegisterTypedEventConsumer(registry, events.TaskUpdatedV1, m.onTaskUpdated, m)
		}},
		{"TaskDeleted", func() error {
			return helper.RegisterTypedEventConsumer(registry, events.TaskDeletedV1, m.onTaskDeleted, m)
		}},
		{"TaskCommented", func() error {
			return helper.RegisterTypedEventConsumer(registry, events.TaskCommentedV1, m.onTaskCommented, m)
		}},
		{"TasksBulkUpdated", func() error {
			return helper.RegisterTypedEventConsumer(registry, events.TasksBulkUpdatedV1, m.onTasksBulkUpdated, m)
		}},
		{"TaskMention", func() error {
			return helper.RegisterTypedEventConsumer(registry, events.TaskMentionV1, m.onMention, m)
		}},
		{"MessageSent", func() error {
			return helper.RegisterTypedEventConsumer(registry, events.MessageSentV1, m.onMessageSent, m)
		}},
		{"MessageEdited", func() error {
			return helper.RegisterTypedEventConsumer(registry, events.MessageEditedV1, m.onMessageEdited, m)
		}},
		{"MessageDeleted", func() error {
			return helper.RegisterTypedEventConsumer(registry, events.MessageDeletedV1, m.onMessageDeleted, m)
		}},
		{"MessageReaction", func() error {
			return helper.RegisterTypedEventConsumer(registry, events.MessageReactionV1, m.onMessageReaction, m)
		}},
		{"MentionCreated", func() error {
			return helper.RegisterTypedEventConsumer(registry, events.MentionCreatedV1, m.onMention, m)
		}},
	}

	for _, r := range register {
		if err := r.fn(); err != nil {
			return fmt.Errorf("failed to register %s consumer: %w", r.name, err)
		}
	}

	m.logger.Info("Registered event consumers", "count", len(register))
	return nil
}

func (m *RealtimeModule) onTaskCreated(_ context.Context, e events.TaskCreatedEvent, _ *mono.Msg) error {
	m.dispatcher.Dispatch(TaskCreatedEnvelope(e))
	return nil
}

func (m *RealtimeModule) onTaskUpdated(_ context.Context, e events.TaskUpdatedEvent, _ *mono.Msg) error {
	m.dispatcher.Dispatch(TaskUpdatedEnvelope(e))
	return nil
}

func (m *RealtimeModule) onTaskDeleted(_ context.Context, e events.TaskDeletedEvent, _ *mono.Msg) error {
	m.dispatcher.Dispatch(TaskDeletedEnvelope(e))
	return nil
}

func (m *RealtimeModule) onTaskCommented(_ context.Context, e events.TaskCommentedEvent, _ *mono.Msg) error {
	m.dispatcher.Dispatch(TaskCommentEnvelope(e))
	return nil
}

func (m *RealtimeModule) onTasksBulkUpdated(_ context.Context, e events.TasksBulkUpdatedEvent, _ *mono.Msg) error {
	m.dispatcher.Dispatch(TasksBulkEnvelope(e))
	return nil
}

func (m *RealtimeModule) onMessageSent(_ context.Context, e events.MessageSentEvent, _ *mono.Msg) error {
	m.dispatcher.Dispatch(MessageSentEnvelope(e))
	return nil
}

func (m *RealtimeModule) onMessageEdited(_ context.Context, e events.MessageEditedEvent, _ *mono.Msg) error {
	m.dispatcher.Dispatch(MessageEditedEnvelope(e))
	return nil
}

func (m *RealtimeModule) onMessageDeleted(_ context.Context, e events.MessageDeletedEvent, _ *mono.Msg) error {
	m.dispatcher.Dispatch(MessageDeletedEnvelope(e))
	return nil
}

func (m *RealtimeModule) onMessageReaction(_ context.Context, e events.MessageReactionEvent, _ *mono.Msg) error {
	m.dispatcher.Dispatch(MessageReactionEnvelope(e))
	return nil
}

func (m *RealtimeModule) onMention(_ context.Context, e events.MentionCreatedEvent, _ *mono.Msg) error {
	m.dispatcher.DispatchAll(MentionEnvelopes(e))
	return nil
}

// GetRouter returns the room router for the connection boundary.
func (m *RealtimeModule) GetRouter() *Router {
	return m.router
}

// GetPresence returns the presence registry.
func (m *RealtimeModule) GetPresence() *Presence {
	return m.presence
}
