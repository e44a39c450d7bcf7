package main

import (
	"context"
	"log"
	"os"
	"time"

	"github.com/example/collab-tracker/config"
	"github.com/example/collab-tracker/modules/api"
	"github.com/example/collab-tracker/modules/auth"
	"github.com/example/collab-tracker/modules/cache"
	"github.com/example/collab-tracker/modules/chat"
	"github.com/example/collab-tracker/modules/ratelimit"
	"github.com/example/collab-tracker/modules/realtime"
	"github.com/example/collab-tracker/modules/task"
	gfshutdown "github.com/gelmium/graceful-shutdown"
	"github.com/go-monolith/mono"
)

func main() {
	log.Println("=== Collab Tracker ===")

	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("Invalid configuration: %v", err)
	}

	app, err := mono.NewMonoApplication(
		mono.WithShutdownTimeout(cfg.ShutdownTimeout),
		mono.WithLogLevel(mono.LogLevelInfo),
		mono.WithLogFormat(mono.LogFormatText),
	)
	if err != nil {
		log.Fatalf("Failed to create application: %v", err)
	}
	logger := app.Logger()

	if cfg.UsingDefaultSecret() {
		logger.Warn("JWT_SECRET_KEY is not set, using the development secret")
	}

	var cacheModule *cache.Module
	if cfg.CacheEnabled() {
		cacheModule = cache.NewModule(cfg.RedisAddr, "collab:", cfg.UnreadCacheTTL, logger.WithModule("cache"))
	}
	taskModule := task.NewModule(cfg.TaskDBPath, cfg.DBDebug, logger.WithModule("task"))
	chatModule := chat.NewModule(cfg.ChatDBPath, cfg.DBDebug, logger.WithModule("chat"))
	realtimeModule := realtime.NewModule(cfg.ConnQueueSize, logger.WithModule("realtime"))
	tokens := auth.NewJWTManager(auth.JWTConfig{
		SecretKey: cfg.JWTSecretKey,
		Issuer:    cfg.JWTIssuer,
	})
	apiModule := api.NewModule(api.Config{
		Port:               cfg.Port,
		CORSAllowedOrigins: cfg.CORSAllowedOrigins,
		DefaultChannel:     cfg.DefaultChannel,
	}, tokens, realtimeModule, logger.WithModule("api"))
	if cfg.RateLimitEnabled() {
		apiModule.SetRateLimiter(ratelimit.New(cacheModule.Client(), ratelimit.Config{
			RequestsPerWindow: cfg.RateLimitPerMinute,
			WindowSize:        time.Minute,
		}, "collab:ratelimit:"))
	}

	// Providers first, then the consumers that depend on them.
	if cacheModule != nil {
		app.Register(cacheModule)
	}
	app.Register(taskModule)
	app.Register(chatModule)
	app.Register(realtimeModule)
	app.Register(apiModule)

	if err := app.Start(context.Background()); err != nil {
		log.Fatalf("Failed to start application: %v", err)
	}

	if cacheModule != nil {
		chatModule.SetUnreadCache(chat.NewRedisUnreadCache(cacheModule.GetCache(), logger.Warn))
	}

	printStartupInfo(cfg)

	wait := gfshutdown.GracefulShutdown(
		context.Background(),
		cfg.ShutdownTimeout,
		map[string]gfshutdown.Operation{
			"mono-app": func(ctx context.Context) error {
				log.Println("Graceful shutdown initiated...")
				return app.Stop(ctx)
			},
		},
	)

	exitCode := <-wait
	log.Printf("Application exited with code: %d", exitCode)
	os.Exit(exitCode)
}

func printStartupInfo(cfg *config.Config) {
	log.Println("")
	log.Println("Application started successfully!")
	log.Println("")
	log.Printf("REST API:   http://localhost:%d/api/v1 (Bearer token required)", cfg.Port)
	log.Printf("WebSocket:  ws://localhost:%d/ws?token=<jwt>", cfg.Port)
	log.Printf("Health:     http://localhost:%d/health", cfg.Port)
	log.Println("")
	log.Println("  Tasks:    /tasks, /tasks/:id, /tasks/:id/comments, /tasks/:id/attachments, /tasks/:id/tags")
	log.Println("  Bulk:     POST /tasks/bulk/status, POST /tasks/reorder")
	log.Println("  Messages: /messages, /messages/read, /messages/unread, /conversations, /channels")
	log.Println("")
	if cfg.CacheEnabled() {
		log.Printf("Unread cache: redis at %s (ttl %s)", cfg.RedisAddr, cfg.UnreadCacheTTL)
	} else {
		log.Println("Unread cache: disabled (set REDIS_ADDR to enable)")
	}
	if cfg.RateLimitEnabled() {
		log.Printf("Rate limit:   %d requests/minute per user", cfg.RateLimitPerMinute)
	}
	log.Println("")
	log.Println("Press Ctrl+C to shutdown")
}
