package ratelimit

import (
	"fmt"
	"strconv"

	"github.com/go-monolith/mono/pkg/types"
	"github.com/gofiber/fiber/v2"
)

// KeyFunc picks the budget a request is charged to. An empty key falls
// back to the client IP.
type KeyFunc func(c *fiber.Ctx) string

// Middleware charges every request to the key returned by keyOf and answers
// 429 once the budget is spent. Requests pass when Redis is unavailable.
func Middleware(l *Limiter, keyOf KeyFunc, logger types.Logger) fiber.Handler {
	return func(c *fiber.Ctx) error {
		key := keyOf(c)
		if key == "" {
			key = "ip:" + c.IP()
		}

		result, err := l.Allow(c.UserContext(), key)
		if err != nil {
			logger.Warn("Rate limit check failed", "key", key, "error", err)
			return c.Next()
		}

		c.Set("X-RateLimit-Limit", strconv.Itoa(l.config.RequestsPerWindow))
		c.Set("X-RateLimit-Remaining", strconv.Itoa(result.Remaining))
		c.Set("X-RateLimit-Reset", strconv.FormatInt(result.ResetAt.Unix(), 10))

		if result.Allowed {
			return c.Next()
		}

		retryAfter := int(result.RetryAfter.Seconds())
		if retryAfter < 1 {
			retryAfter = 1
		}
		c.Set("Retry-After", strconv.Itoa(retryAfter))
		return c.Status(fiber.StatusTooManyRequests).JSON(fiber.Map{
			"error":   "rate_limited",
			"message": fmt.Sprintf("Rate limit exceeded. Please retry after %d seconds.", retryAfter),
		})
	}
}
