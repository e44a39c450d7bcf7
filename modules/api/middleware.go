package api

import (
	"strings"

	"github.com/example/collab-tracker/modules/auth"
	"github.com/gofiber/fiber/v2"
)

const (
	// UserContextKey is the key used to store user claims in the Fiber context.
	UserContextKey = "user"
)

func unauthorized(c *fiber.Ctx, message string) error {
	return c.Status(fiber.StatusUnauthorized).JSON(ErrorResponse{
		Error:   "unauthorized",
		Message: message,
	})
}

// AuthMiddleware creates a middleware that validates bearer tokens.
func AuthMiddleware(validator auth.TokenValidator) fiber.Handler {
	return func(c *fiber.Ctx) error {
		authHeader := c.Get("Authorization")
		if authHeader == "" {
			return unauthorized(c, "Authorization header is required")
		}
		if !strings.HasPrefix(authHeader, "Bearer ") {
			return unauthorized(c, "Invalid authorization header format. Use: Bearer <token>")
		}

		token := strings.TrimPrefix(authHeader, "Bearer ")
		if token == "" {
			return unauthorized(c, "Token is required")
		}

		claims, err := validator.ValidateAccessToken(token)
		if err != nil {
			return unauthorized(c, "Invalid or expired token")
		}

		c.Locals(UserContextKey, claims)
		return c.Next()
	}
}

// SocketAuthMiddleware authenticates a WebSocket handshake. Browsers cannot
// set headers on an upgrade request, so the token may also come from the
// token query parameter.
func SocketAuthMiddleware(validator auth.TokenValidator) fiber.Handler {
	return func(c *fiber.Ctx) error {
		token := c.Query("token")
		if token == "" {
			token = strings.TrimPrefix(c.Get("Authorization"), "Bearer ")
		}
		if token == "" {
			return unauthorized(c, "Token is required")
		}

		claims, err := validator.ValidateAccessToken(token)
		if err != nil {
			return unauthorized(c, "Invalid or expired token")
		}

		c.Locals(UserContextKey, claims)
		return c.Next()
	}
}

// actorID returns the authenticated user's id.
func actorID(c *fiber.Ctx) string {
	claims, ok := c.Locals(UserContextKey).(*auth.Claims)
	if !ok || claims == nil {
		return ""
	}
	return claims.UserID
}
