package api

import (
	"context"
	"fmt"
	"time"

	"github.com/example/collab-tracker/modules/auth"
	"github.com/example/collab-tracker/modules/chat"
	"github.com/example/collab-tracker/modules/ratelimit"
	"github.com/example/collab-tracker/modules/realtime"
	"github.com/example/collab-tracker/modules/task"
	"github.com/go-monolith/mono"
	"github.com/go-monolith/mono/pkg/types"
	"github.com/gofiber/contrib/websocket"
	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/cors"
	"github.com/gofiber/fiber/v2/middleware/logger"
	"github.com/gofiber/fiber/v2/middleware/recover"
)

// Config holds HTTP server settings.
type Config struct {
	Port               int
	CORSAllowedOrigins string
	DefaultChannel     string
}

// APIModule serves the REST API and the WebSocket endpoint.
type APIModule struct {
	config   Config
	tokens   auth.TokenValidator
	realtime *realtime.RealtimeModule
	logger   types.Logger
	limiter  *ratelimit.Limiter

	app      *fiber.App
	tasks    task.TaskPort
	chat     chat.ChatPort
	gateway  *realtime.Gateway
	handlers *Handlers
}

// Compile-time interface checks.
var (
	_ mono.Module                = (*APIModule)(nil)
	_ mono.DependentModule       = (*APIModule)(nil)
	_ mono.HealthCheckableModule = (*APIModule)(nil)
)

// NewModule creates a new APIModule. Sessions are routed through rt.
func NewModule(config Config, tokens auth.TokenValidator, rt *realtime.RealtimeModule, logger types.Logger) *APIModule {
	return &APIModule{
		config:   config,
		tokens:   tokens,
		realtime: rt,
		logger:   logger,
	}
}

// SetRateLimiter throttles every /api/v1 request per authenticated user.
// It must be called before Start.
func (m *APIModule) SetRateLimiter(l *ratelimit.Limiter) {
	m.limiter = l
}

// Name returns the module name.
func (m *APIModule) Name() string {
	return "api"
}

// Dependencies returns the list of module dependencies.
func (m *APIModule) Dependencies() []string {
	return []string{"task", "chat"}
}

// SetDependencyServiceContainer receives service containers from dependencies.
func (m *APIModule) SetDependencyServiceContainer(dependency string, container mono.ServiceContainer) {
	switch dependency {
	case "task":
		m.tasks = task.NewTaskAdapter(container)
	case "chat":
		m.chat = chat.NewChatAdapter(container)
	}
}

// Start builds the Fiber app and starts listening.
func (m *APIModule) Start(_ context.Context) error {
	if m.tasks == nil {
		return fmt.Errorf("task dependency not set")
	}
	if m.chat == nil {
		return fmt.Errorf("chat dependency not set")
	}

	m.handlers = NewHandlers(m.tasks, m.chat)
	m.gateway = realtime.NewGateway(
		m.realtime.GetRouter(),
		m.realtime.GetPresence(),
		m.chat,
		m.config.DefaultChannel,
		m.logger,
	)
	m.gateway.SetDrainTimeout(writeWait)
	m.app = m.newApp()

	addr := fmt.Sprintf(":%d", m.config.Port)
	errCh := make(chan error, 1)
	go func() {
		if err := m.app.Listen(addr); err != nil {
			errCh <- err
		}
	}()

	select {
	case err := <-errCh:
		return fmt.Errorf("HTTP server failed to start: %w", err)
	case <-time.After(100 * time.Millisecond):
	}

	m.logger.Info("HTTP server started", "addr", addr)
	return nil
}

func (m *APIModule) newApp() *fiber.App {
	app := fiber.New(fiber.Config{
		AppName:               "Collab Tracker",
		DisableStartupMessage: true,
		ErrorHandler:          customErrorHandler,
	})

	app.Use(recover.New())
	app.Use(logger.New(logger.Config{
		Format: "[${time}] ${status} - ${latency} ${method} ${path}\n",
	}))
	app.Use(cors.New(cors.Config{
		AllowOrigins: m.config.CORSAllowedOrigins,
		AllowMethods: "GET,POST,PATCH,DELETE,OPTIONS",
		AllowHeaders: "Content-Type,Authorization",
	}))

	app.Get("/health", m.healthCheck)

	app.Use("/ws", SocketAuthMiddleware(m.tokens), requireUpgrade)
	app.Get("/ws", websocket.New(m.handleSocket))

	v1 := app.Group("/api/v1", AuthMiddleware(m.tokens))
	if m.limiter != nil {
		v1.Use(ratelimit.Middleware(m.limiter, actorID, m.logger))
	}
	m.handlers.Register(v1)

	return app
}

func (m *APIModule) healthCheck(c *fiber.Ctx) error {
	return c.JSON(HealthResponse{
		Status:           "healthy",
		ConnectedClients: m.realtime.GetRouter().ConnectionCount(),
		OnlineUsers:      len(m.realtime.GetPresence().OnlineUsers()),
	})
}

// Stop shuts down the HTTP server.
func (m *APIModule) Stop(ctx context.Context) error {
	if m.app == nil {
		return nil
	}
	if err := m.app.ShutdownWithContext(ctx); err != nil {
		return fmt.Errorf("failed to shutdown server: %w", err)
	}
	m.logger.Info("HTTP server stopped")
	return nil
}

// Health returns the health status of the module.
func (m *APIModule) Health(_ context.Context) mono.HealthStatus {
	return mono.HealthStatus{
		Healthy: m.app != nil,
		Message: "operational",
		Details: map[string]any{
			"port":              m.config.Port,
			"connected_clients": m.realtime.GetRouter().ConnectionCount(),
		},
	}
}
