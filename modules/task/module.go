package task

import (
	"context"
	"encoding/json"
	"fmt"

	domain "github.com/example/collab-tracker/domain/task"
	"github.com/example/collab-tracker/events"
	"github.com/go-monolith/mono"
	"github.com/go-monolith/mono/pkg/helper"
	"github.com/go-monolith/mono/pkg/types"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"
)

// TaskModule stores tasks and their audit trail in SQLite and serves task
// operations over request-reply.
type TaskModule struct {
	db       *gorm.DB
	repo     *Repository
	service  *Service
	dbPath   string
	dbDebug  bool
	eventBus mono.EventBus
	logger   types.Logger
}

// Compile-time interface checks.
var (
	_ mono.Module                = (*TaskModule)(nil)
	_ mono.ServiceProviderModule = (*TaskModule)(nil)
	_ mono.EventBusAwareModule   = (*TaskModule)(nil)
	_ mono.EventEmitterModule    = (*TaskModule)(nil)
	_ mono.HealthCheckableModule = (*TaskModule)(nil)
)

// NewModule creates a new TaskModule backed by the SQLite file at dbPath.
func NewModule(dbPath string, dbDebug bool, logger types.Logger) *TaskModule {
	return &TaskModule{
		dbPath:  dbPath,
		dbDebug: dbDebug,
		logger:  logger,
	}
}

// Name returns the module name.
func (m *TaskModule) Name() string {
	return "task"
}

// SetEventBus receives the EventBus from the framework.
func (m *TaskModule) SetEventBus(bus mono.EventBus) {
	m.eventBus = bus
}

// EmitEvents declares the events this module can emit.
func (m *TaskModule) EmitEvents() []mono.BaseEventDefinition {
	return []mono.BaseEventDefinition{
		events.TaskCreatedV1.ToBase(),
		events.TaskUpdatedV1.ToBase(),
		events.TaskDeletedV1.ToBase(),
		events.TaskCommentedV1.ToBase(),
		events.TasksBulkUpdatedV1.ToBase(),
		events.TaskMentionV1.ToBase(),
	}
}

// RegisterServices registers request-reply services in the service container.
// Names are prefixed by the framework, e.g. "services.task.update-task".
func (m *TaskModule) RegisterServices(container mono.ServiceContainer) error {
	register := []struct {
		name string
		fn   func(mono.ServiceContainer, string) error
	}{
		{ServiceCreateTask, typed(m.createTask)},
		{ServiceGetTask, typed(m.getTask)},
		{ServiceListTasks, typed(m.listTasks)},
		{ServiceUpdateTask, typed(m.updateTask)},
		{ServiceDeleteTask, typed(m.deleteTask)},
		{ServiceBulkUpdateStatus, typed(m.bulkUpdateStatus)},
		{ServiceReorderTasks, typed(m.reorderTasks)},
		{ServiceAddComment, typed(m.addComment)},
		{ServiceEditComment, typed(m.editComment)},
		{ServiceDeleteComment, typed(m.deleteComment)},
		{ServiceAddAttachment, typed(m.addAttachment)},
		{ServiceRemoveAttachment, typed(m.removeAttachment)},
		{ServiceAddTag, typed(m.addTag)},
		{ServiceRemoveTag, typed(m.removeTag)},
	}

	for _, r := range register {
		if err := r.fn(container, r.name); err != nil {
			return fmt.Errorf("failed to register %s service: %w", r.name, err)
		}
	}

	m.logger.Info("Registered task services", "count", len(register))
	return nil
}

// typed adapts a handler to helper.RegisterTypedRequestReplyService with
// JSON encoding.
func typed[Req, Resp any](handler func(context.Context, Req, *mono.Msg) (Resp, error)) func(mono.ServiceContainer, string) error {
	return func(container mono.ServiceContainer, name string) error {
		return helper.RegisterTypedRequestReplyService(container, name, json.Unmarshal, json.Marshal, handler)
	}
}

// Start opens the database, runs migrations and builds the service.
func (m *TaskModule) Start(_ context.Context) error {
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
		m.logger.Warn("EventBus not set, task events will not be published")
	}
	m.repo = NewRepository(m.db)
	m.service = NewService(m.repo, &busPublisher{bus: m.eventBus, logger: m.logger}, m.logger)

	m.logger.Info("Task module started")
	return nil
}

// Stop closes the database connection.
func (m *TaskModule) Stop(_ context.Context) error {
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

	m.logger.Info("Task module stopped")
	return nil
}

// Health reports database reachability and task counts per status.
func (m *TaskModule) Health(ctx context.Context) mono.HealthStatus {
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

	var counts []struct {
		Status domain.Status
		Count  int64
	}
	details := map[string]any{"driver": "sqlite", "path": m.dbPath}
	err = m.db.WithContext(ctx).Model(&domain.Task{}).
		Select("status, COUNT(*) AS count").Group("status").Scan(&counts).Error
	if err != nil {
		details["error"] = err.Error()
		return mono.HealthStatus{Healthy: false, Message: "failed to count tasks", Details: details}
	}
	for _, c := range counts {
		details["tasks_"+string(c.Status)] = c.Count
	}
	return mono.HealthStatus{Healthy: true, Message: "operational", Details: details}
}

// busPublisher publishes task events on the mono event bus. Failures are
// logged and swallowed.
type busPublisher struct {
	bus    mono.EventBus
	logger types.Logger
}

func (p *busPublisher) TaskCreated(e events.TaskCreatedEvent) {
	p.publish("TaskCreated", e.Task.ID, func() error { return events.TaskCreatedV1.Publish(p.bus, e, nil) })
}

func (p *busPublisher) TaskUpdated(e events.TaskUpdatedEvent) {
	p.publish("TaskUpdated", e.Task.ID, func() error { return events.TaskUpdatedV1.Publish(p.bus, e, nil) })
}

func (p *busPublisher) TaskDeleted(e events.TaskDeletedEvent) {
	p.publish("TaskDeleted", e.TaskID, func() error { return events.TaskDeletedV1.Publish(p.bus, e, nil) })
}

func (p *busPublisher) TaskCommented(e events.TaskCommentedEvent) {
	p.publish("TaskCommented", e.TaskID, func() error { return events.TaskCommentedV1.Publish(p.bus, e, nil) })
}

func (p *busPublisher) TasksBulkUpdated(e events.TasksBulkUpdatedEvent) {
	p.publish("TasksBulkUpdated", "", func() error { return events.TasksBulkUpdatedV1.Publish(p.bus, e, nil) })
}

func (p *busPublisher) MentionCreated(e events.MentionCreatedEvent) {
	p.publish("MentionCreated", e.TaskID, func() error { return events.TaskMentionV1.Publish(p.bus, e, nil) })
}

func (p *busPublisher) publish(name, taskID string, fn func() error) {
	if p.bus == nil {
		return
	}
	if err := fn(); err != nil {
		p.logger.Warn("Failed to publish event", "event", name, "taskID", taskID, "error", err)
	}
}
