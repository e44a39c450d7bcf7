package chat

import (
	"context"

	"github.com/example/collab-tracker/modules/cache"
)

// UnreadCache stores computed unread summaries per user.
type UnreadCache interface {
	Get(ctx context.Context, userID string) (*UnreadSummary, bool)
	Set(ctx context.Context, userID string, summary UnreadSummary)
	Invalidate(ctx context.Context, userIDs ...string)
}

// noopUnreadCache is used when no Redis server is configured.
type noopUnreadCache struct{}

func (noopUnreadCache) Get(context.Context, string) (*UnreadSummary, bool) { return nil, false }
func (noopUnreadCache) Set(context.Context, string, UnreadSummary)         {}
func (noopUnreadCache) Invalidate(context.Context, ...string)              {}

// redisUnreadCache keeps unread summaries in Redis. Errors degrade to
// cache misses.
type redisUnreadCache struct {
	cache *cache.Cache
	log   func(msg string, args ...any)
}

// NewRedisUnreadCache wraps c as an UnreadCache. logWarn receives cache
// errors.
func NewRedisUnreadCache(c *cache.Cache, logWarn func(msg string, args ...any)) UnreadCache {
	if c == nil {
		return noopUnreadCache{}
	}
	return &redisUnreadCache{cache: c, log: logWarn}
}

func unreadKey(userID string) string {
	return "unread:" + userID
}

func (r *redisUnreadCache) Get(ctx context.Context, userID string) (*UnreadSummary, bool) {
	var summary UnreadSummary
	found, err := r.cache.Get(ctx, unreadKey(userID), &summary)
	if err != nil {
		r.log("Unread cache read failed", "userID", userID, "error", err)
		return nil, false
	}
	if !found {
		return nil, false
	}
	return &summary, true
}

func (r *redisUnreadCache) Set(ctx context.Context, userID string, summary UnreadSummary) {
	if err := r.cache.Set(ctx, unreadKey(userID), summary); err != nil {
		r.log("Unread cache write failed", "userID", userID, "error", err)
	}
}

func (r *redisUnreadCache) Invalidate(ctx context.Context, userIDs ...string) {
	keys := make([]string, len(userIDs))
	for i, id := range userIDs {
		keys[i] = unreadKey(id)
	}
	if err := r.cache.Delete(ctx, keys...); err != nil {
		r.log("Unread cache invalidation failed", "users", len(userIDs), "error", err)
	}
}
