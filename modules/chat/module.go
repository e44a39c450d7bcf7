package chat

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/example/collab-tracker/domain/message"
	"github.com/example/collab-tracker/events"
	"github.com/go-monolith/mono"
	"github.com/go-monolith/mono/pkg/helper"
	"github.com/go-monolith/mono/pkg/types"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"
)

// ChatModule stores messages and channel membership in SQLite and serves
// chat operations over request-reply.
type ChatModule struct {
	db       *gorm.DB
	service  *Service
	dbPath   string
	dbDebug  bool
	eventBus mono.EventBus
	logger   types.Logger
}

// Compile-time interface checks.
var (
	_ mono.Module                = (*ChatModule)(nil)
	_ mono.ServiceProviderModule = (*ChatModule)(nil)
	_ mono.EventBusAwareModule   = (*ChatModule)(nil)
	_ mono.EventEmitterModule    = (*ChatModule)(nil)
	_ mono.HealthCheckableModule = (*ChatModule)(nil)
)

// NewModule creates a new ChatModule backed by the SQLite file at dbPath.
func NewModule(dbPath string, dbDebug bool, logger types.Logger) *ChatModule {
	return &ChatModule{
		dbPath:  dbPath,
		dbDebug: dbDebug,
		logger:  logger,
	}
}

// Name returns the module name.
func (m *ChatModule) Name() string {
	return "chat"
}

// SetEventBus receives the EventBus from the framework.
func (m *ChatModule) SetEventBus(bus mono.EventBus) {
	m.eventBus = bus
}

// EmitEvents declares the events this module can emit.
func (m *ChatModule) EmitEvents() []mono.BaseEventDefinition {
	return []mono.BaseEventDefinition{
		events.MessageSentV1.ToBase(),
		events.MessageEditedV1.ToBase(),
		events.MessageDeletedV1.ToBase(),
		events.MessageReactionV1.ToBase(),
		events.MentionCreatedV1.ToBase(),
	}
}

// RegisterServices registers request-reply services in the service container.
func (m *ChatModule) RegisterServices(container mono.ServiceContainer) error {
	register := []struct {
		name string
		fn   func(mono.ServiceContainer, string) error
	}{
		{ServiceSendMessage, typed(m.sendMessage)},
		{ServiceEditMessage, typed(m.editMessage)},
		{ServiceDeleteMessage, typed(m.deleteMessage)},
		{ServiceAddReaction, typed(m.addReaction)},
		{ServiceRemoveReaction, typed(m.removeReaction)},
		{ServiceMarkRead, typed(m.markRead)},
		{ServiceUnreadSummary, typed(m.unreadSummary)},
		{ServiceConversations, typed(m.conversations)},
		{ServiceHistory, typed(m.history)},
		{ServiceJoinChannel, typed(m.joinChannel)},
		{ServiceLeaveChannel, typed(m.leaveChannel)},
		{ServiceListChannels, typed(m.listChannels)},
	}

	for _, r := range register {
		if err := r.fn(container, r.name); err != nil {
			return fmt.Errorf("failed to register %s service: %w", r.name, err)
		}
	}

	m.logger.Info("Registered chat services", "count", len(register))
	return nil
}

func typed[Req, Resp any](handler func(context.Context, Req, *mono.Msg) (Resp, error)) func(mono.ServiceContainer, string) error {
	return func(container mono.ServiceContainer, name string) error {
		return helper.RegisterTypedRequestReplyService(container, name, json.Unmarshal, json.Marshal, handler)
	}
}

// Start opens the database, runs migrations and builds the service.
func (m *ChatModule) Start(_ context.Context) error {
	m.logger.Info("Connecting to SQLite database", "path", m.dbPath)

	logLevel := logger.Silent
	if m.dbDebug {
		logLevel = logger.Info
	}

	db, err := gorm.Open(sqlite.Open(m.dbPath), &gorm.Config{
		Logger: logger.Default.LogMode(logLevel),
	})
	if err != nil {
		return fmt.Errorf("failed to connect to database: %w", err)
	}
	m.db = db

	if err := Migrate(m.db); err != nil {
		return fmt.Errorf("failed to run migrations: %w", err)
	}

	if m.eventBus == nil {
		m.logger.Warn("EventBus not set, chat events will not be published")
	}
	m.service = NewService(NewRepository(m.db), &busPublisher{bus: m.eventBus, logger: m.logger}, m.logger)

	m.logger.Info("Chat module started")
	return nil
}

// SetUnreadCache installs a cache for unread summaries. It must be called
// after Start.
func (m *ChatModule) SetUnreadCache(c UnreadCache) {
	if m.service == nil {
		m.logger.Warn("Chat service not started, unread cache ignored")
		return
	}
	m.service.SetUnreadCache(c)
	m.logger.Info("Unread summary cache enabled")
}

// Stop closes the database connection.
func (m *ChatModule) Stop(_ context.Context) error {
	if m.db == nil {
		return nil
	}

	sqlDB, err := m.db.DB()
	if err != nil {
		return fmt.Errorf("failed to get sql.DB: %w", err)
	}
	if err := sqlDB.Close(); err != nil {
		return fmt.Errorf("failed to close database: %w", err)
	}

	m.logger.Info("Chat module stopped")
	return nil
}

// Health reports database reachability and stored message counts.
func (m *ChatModule) Health(ctx context.Context) mono.HealthStatus {
	if m.db == nil {
		return mono.HealthStatus{Healthy: false, Message: "database not initialized"}
	}

	sqlDB, err := m.db.DB()
	if err != nil {
		return mono.HealthStatus{Healthy: false, Message: fmt.Sprintf("failed to get sql.DB: %v", err)}
	}
	if err := sqlDB.PingContext(ctx); err != nil {
		return mono.HealthStatus{Healthy: false, Message: fmt.Sprintf("database ping failed: %v", err)}
	}

	details := map[string]any{"driver": "sqlite", "path": m.dbPath}
	var messages, channels int64
	if err := m.db.WithContext(ctx).Model(&message.Message{}).Count(&messages).Error; err != nil {
		details["error"] = err.Error()
		return mono.HealthStatus{Healthy: false, Message: "failed to count messages", Details: details}
	}
	if err := m.db.WithContext(ctx).Model(&message.ChannelMember{}).Distinct("channel").Count(&channels).Error; err != nil {
		details["error"] = err.Error()
		return mono.HealthStatus{Healthy: false, Message: "failed to count channels", Details: details}
	}
	details["messages"] = messages
	details["channels"] = channels

	return mono.HealthStatus{
		Healthy: true,
		Message: "operational",
		Details: details,
	}
}

// busPublisher publishes chat events on the mono event bus. Failures are
// logged and swallowed.
type busPublisher struct {
	bus    mono.EventBus
	logger types.Logger
}

func (p *busPublisher) MessageSent(e events.MessageSentEvent) {
	p.publish("MessageSent", e.Message.ID, func() error { return events.MessageSentV1.Publish(p.bus, e, nil) })
}

func (p *busPublisher) MessageEdited(e events.MessageEditedEvent) {
	p.publish("MessageEdited", e.Message.ID, func() error { return events.MessageEditedV1.Publish(p.bus, e, nil) })
}

func (p *busPublisher) MessageDeleted(e events.MessageDeletedEvent) {
	p.publish("MessageDeleted", e.MessageID, func() error { return events.MessageDeletedV1.Publish(p.bus, e, nil) })
}

func (p *busPublisher) MessageReaction(e events.MessageReactionEvent) {
	p.publish("MessageReaction", e.MessageID, func() error { return events.MessageReactionV1.Publish(p.bus, e, nil) })
}

func (p *busPublisher) MentionCreated(e events.MentionCreatedEvent) {
	p.publish("MentionCreated", e.SourceID, func() error { return events.MentionCreatedV1.Publish(p.bus, e, nil) })
}

func (p *busPublisher) publish(name, messageID string, fn func() error) {
	if p.bus == nil {
		return
	}
	if err := fn(); err != nil {
		p.logger.Warn("Failed to publish event", "event", name, "messageID", messageID, "error", err)
	}
}
