package api

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/example/collab-tracker/modules/auth"
	"github.com/example/collab-tracker/modules/realtime"
	"github.com/gofiber/contrib/websocket"
	"github.com/gofiber/fiber/v2"
	"golang.org/x/time/rate"
)

const (
	writeWait = 10 * time.Second

	// Inbound frame budget per connection.
	framesPerSecond = 10
	frameBurst      = 20
)

var errSocketClosed = errors.New("socket closed")

// socketSender writes frames to a WebSocket connection. Once closed it
// never touches the connection again, since fiber recycles it after the
// handler returns.
type socketSender struct {
	mu     sync.Mutex
	conn   *websocket.Conn
	closed bool
}

func (s *socketSender) Send(frame []byte) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return errSocketClosed
	}
	if err := s.conn.SetWriteDeadline(time.Now().Add(writeWait)); err != nil {
		return err
	}
	return s.conn.WriteMessage(websocket.TextMessage, frame)
}

// close waits for an in-flight write and blocks later ones.
func (s *socketSender) close() {
	s.mu.Lock()
	s.closed = true
	s.mu.Unlock()
}

// requireUpgrade rejects plain HTTP requests to the socket endpoint.
func requireUpgrade(c *fiber.Ctx) error {
	if websocket.IsWebSocketUpgrade(c) {
		return c.Next()
	}
	return fiber.ErrUpgradeRequired
}

// handleSocket runs one client session until the socket closes.
func (m *APIModule) handleSocket(c *websocket.Conn) {
	claims, ok := c.Locals(UserContextKey).(*auth.Claims)
	if !ok || claims == nil {
		return
	}

	ctx := context.Background()
	sender := &socketSender{conn: c}
	defer sender.close()

	conn, err := m.gateway.Open(ctx, claims.UserID, sender)
	if err != nil {
		m.logger.Error("Failed to open session", "userID", claims.UserID, "error", err)
		return
	}
	defer m.gateway.Close(conn)

	limiter := rate.NewLimiter(rate.Limit(framesPerSecond), frameBurst)
	for {
		_, raw, err := c.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseAbnormalClosure) {
				m.logger.Warn("WebSocket read error", "connID", conn.ID(), "error", err)
			}
			return
		}
		if !limiter.Allow() {
			m.gateway.Reject(conn, "", "rate limit exceeded")
			continue
		}
		m.gateway.Handle(ctx, conn, raw)
	}
}

var _ realtime.Sender = (*socketSender)(nil)
