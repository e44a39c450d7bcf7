package cache

import (
	"context"
	"testing"
	"time"

	"github.com/redis/go-redis/v9"
)

// Requires Redis on localhost:6379; tests skip otherwise.
const testRedisAddr = "localhost:6379"

// setupTestCache creates a cache instance for testing.
// Returns the cache and a cleanup function.
func setupTestCache(t *testing.T, prefix string) (*Cache, func()) {
	t.Helper()

	client := redis.NewClient(&redis.Options{Addr: testRedisAddr})

	ctx := context.Background()
	if err := client.Ping(ctx).Err(); err != nil {
		t.Skipf("Redis not available at %s: %v", testRedisAddr, err)
	}

	cleanupKeys(ctx, client, prefix+"*")
	cache := New(client, prefix, time.Minute)

	cleanup := func() {
		cleanupKeys(ctx, client, prefix+"*")
		client.Close()
	}
	return cache, cleanup
}

// cleanupKeys removes all keys matching the pattern.
func cleanupKeys(ctx context.Context, client *redis.Client, pattern string) {
	var cursor uint64
	for {
		keys, next, err := client.Scan(ctx, cursor, pattern, 100).Result()
		if err != nil {
			return
		}
		if len(keys) > 0 {
			client.Del(ctx, keys...)
		}
		cursor = next
		if cursor == 0 {
			break
		}
	}
}

type summary struct {
	Total    int            `json:"total"`
	Channels map[string]int `json:"channels"`
}

func TestCache_GetSet(t *testing.T) {
	cache, cleanup := setupTestCache(t, "test:unread:")
	defer cleanup()
	ctx := context.Background()

	var got summary
	found, err := cache.Get(ctx, "alice", &got)
	if err != nil {
		t.Fatalf("Get() error = %v", err)
	}
	if found {
		t.Fatal("expected cache miss on empty cache")
	}

	want := summary{Total: 3, Channels: map[string]int{"general": 3}}
	if err := cache.Set(ctx, "alice", want); err != nil {
		t.Fatalf("Set() error = %v", err)
	}

	found, err = cache.Get(ctx, "alice", &got)
	if err != nil {
		t.Fatalf("Get() error = %v", err)
	}
	if !found {
		t.Fatal("expected cache hit after Set")
	}
	if got.Total != 3 || got.Channels["general"] != 3 {
		t.Errorf("unexpected cached value %+v", got)
	}

	stats := cache.GetStats()
	if stats.Hits != 1 || stats.Misses != 1 || stats.Sets != 1 {
		t.Errorf("unexpected stats %+v", stats)
	}
}

func TestCache_Delete(t *testing.T) {
	cache, cleanup := setupTestCache(t, "test:unread:")
	defer cleanup()
	ctx := context.Background()

	for _, user := range []string{"alice", "bob"} {
		if err := cache.Set(ctx, user, summary{Total: 1}); err != nil {
			t.Fatalf("Set() error = %v", err)
		}
	}

	if err := cache.Delete(ctx, "alice", "bob", "carol"); err != nil {
		t.Fatalf("Delete() error = %v", err)
	}

	var got summary
	for _, user := range []string{"alice", "bob"} {
		found, err := cache.Get(ctx, user, &got)
		if err != nil {
			t.Fatalf("Get() error = %v", err)
		}
		if found {
			t.Errorf("expected %s to be evicted", user)
		}
	}
	if stats := cache.GetStats(); stats.Deletes != 2 {
		t.Errorf("expected 2 deletes, got %d", stats.Deletes)
	}

	if err := cache.Delete(ctx); err != nil {
		t.Errorf("Delete() with no keys error = %v", err)
	}
}
