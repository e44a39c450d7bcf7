package ratelimit

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/go-monolith/mono/pkg/types"
	"github.com/gofiber/fiber/v2"
	"github.com/redis/go-redis/v9"
)

type mockLogger struct{}

func (m *mockLogger) Debug(_ string, _ ...any)         {}
func (m *mockLogger) Info(_ string, _ ...any)          {}
func (m *mockLogger) Warn(_ string, _ ...any)          {}
func (m *mockLogger) Error(_ string, _ ...any)         {}
func (m *mockLogger) With(_ ...any) types.Logger       { return m }
func (m *mockLogger) WithModule(_ string) types.Logger { return m }
func (m *mockLogger) WithError(_ error) types.Logger   { return m }

// redisClient returns a client for localhost:6379, skipping the test when
// Redis is not running.
func redisClient(t *testing.T) *redis.Client {
	t.Helper()
	client := redis.NewClient(&redis.Options{Addr: "localhost:6379"})
	if err := client.Ping(context.Background()).Err(); err != nil {
		client.Close()
		t.Skip("Redis not available, skipping integration test")
	}
	t.Cleanup(func() { client.Close() })
	return client
}

func TestLimiter_Allow(t *testing.T) {
	client := redisClient(t)
	ctx := context.Background()
	prefix := "test:ratelimit:"
	t.Cleanup(func() { client.Del(ctx, prefix+"alice", prefix+"alice:seq") })

	limiter := New(client, Config{RequestsPerWindow: 3, WindowSize: time.Minute}, prefix)

	for i := 0; i < 3; i++ {
		result, err := limiter.Allow(ctx, "alice")
		if err != nil {
			t.Fatalf("Allow() error = %v", err)
		}
		if !result.Allowed {
			t.Errorf("request %d should be allowed", i+1)
		}
		if result.Remaining != 3-i-1 {
			t.Errorf("Remaining = %d, want %d", result.Remaining, 3-i-1)
		}
	}

	result, err := limiter.Allow(ctx, "alice")
	if err != nil {
		t.Fatalf("Allow() error = %v", err)
	}
	if result.Allowed {
		t.Error("4th request should be denied")
	}
	if result.RetryAfter <= 0 || result.RetryAfter > time.Minute {
		t.Errorf("RetryAfter = %v, want within (0, 1m]", result.RetryAfter)
	}
}

func TestLimiter_KeysAreIndependent(t *testing.T) {
	client := redisClient(t)
	ctx := context.Background()
	prefix := "test:ratelimit:independent:"
	t.Cleanup(func() {
		client.Del(ctx, prefix+"alice", prefix+"alice:seq", prefix+"bob", prefix+"bob:seq")
	})

	limiter := New(client, Config{RequestsPerWindow: 1, WindowSize: time.Minute}, prefix)

	if r, err := limiter.Allow(ctx, "alice"); err != nil || !r.Allowed {
		t.Fatalf("alice first request: allowed=%v err=%v", r != nil && r.Allowed, err)
	}
	if r, err := limiter.Allow(ctx, "bob"); err != nil || !r.Allowed {
		t.Fatalf("bob first request: allowed=%v err=%v", r != nil && r.Allowed, err)
	}
	if r, err := limiter.Allow(ctx, "alice"); err != nil || r.Allowed {
		t.Fatalf("alice second request should be denied: err=%v", err)
	}
}

func TestMiddleware_RejectsOverBudget(t *testing.T) {
	client := redisClient(t)
	ctx := context.Background()
	prefix := "test:ratelimit:mw:"
	t.Cleanup(func() { client.Del(ctx, prefix+"carol", prefix+"carol:seq") })

	limiter := New(client, Config{RequestsPerWindow: 1, WindowSize: time.Minute}, prefix)
	app := fiber.New()
	app.Use(Middleware(limiter, func(*fiber.Ctx) string { return "carol" }, &mockLogger{}))
	app.Get("/", func(c *fiber.Ctx) error { return c.SendString("ok") })

	statuses := []int{http.StatusOK, http.StatusTooManyRequests}
	for i, want := range statuses {
		resp, err := app.Test(httptest.NewRequest(http.MethodGet, "/", nil), -1)
		if err != nil {
			t.Fatalf("app.Test() error = %v", err)
		}
		resp.Body.Close()
		if resp.StatusCode != want {
			t.Errorf("request %d: status = %d, want %d", i+1, resp.StatusCode, want)
		}
		if want == http.StatusTooManyRequests && resp.Header.Get("Retry-After") == "" {
			t.Error("Retry-After header missing")
		}
	}
}

func TestMiddleware_PassesWhenRedisDown(t *testing.T) {
	client := redis.NewClient(&redis.Options{
		Addr:        "127.0.0.1:1",
		DialTimeout: 100 * time.Millisecond,
		MaxRetries:  -1,
	})
	defer client.Close()

	limiter := New(client, Config{RequestsPerWindow: 60, WindowSize: time.Minute}, "test:")
	app := fiber.New()
	app.Use(Middleware(limiter, func(*fiber.Ctx) string { return "" }, &mockLogger{}))
	app.Get("/", func(c *fiber.Ctx) error { return c.SendString("ok") })

	resp, err := app.Test(httptest.NewRequest(http.MethodGet, "/", nil), -1)
	if err != nil {
		t.Fatalf("app.Test() error = %v", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		t.Errorf("status = %d, want %d", resp.StatusCode, http.StatusOK)
	}
}
