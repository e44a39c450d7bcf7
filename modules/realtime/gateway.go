package realtime

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/go-monolith/mono/pkg/types"
)

// DefaultDrainTimeout bounds how long Close waits for queued frames.
const DefaultDrainTimeout = 10 * time.Second

// ChannelMembership persists which channels a user participates in.
type ChannelMembership interface {
	JoinChannel(ctx context.Context, channel, userID string) error
	LeaveChannel(ctx context.Context, channel, userID string) error
	Channels(ctx context.Context, userID string) ([]string, error)
}

// Gateway runs the lifecycle of client sessions: registration, inbound
// frames and teardown.
type Gateway struct {
	router         *Router
	presence       *Presence
	channels       ChannelMembership
	defaultChannel string
	drainTimeout   time.Duration
	logger         types.Logger
}

// NewGateway creates a gateway. channels may be nil, in which case channel
// membership is kept in the router only.
func NewGateway(router *Router, presence *Presence, channels ChannelMembership, defaultChannel string, logger types.Logger) *Gateway {
	return &Gateway{
		router:         router,
		presence:       presence,
		channels:       channels,
		defaultChannel: defaultChannel,
		drainTimeout:   DefaultDrainTimeout,
		logger:         logger,
	}
}

// SetDrainTimeout changes how long Close waits for the writer to flush.
func (g *Gateway) SetDrainTimeout(d time.Duration) {
	if d > 0 {
		g.drainTimeout = d
	}
}

// Open registers an authenticated client. The connection joins its user
// room, the broadcast room, the default channel and every channel the user
// already belongs to.
func (g *Gateway) Open(ctx context.Context, userID string, sender Sender) (*Conn, error) {
	if userID == "" {
		return nil, errors.New("user id is required")
	}

	joined := []string{}
	if g.channels != nil {
		if g.defaultChannel != "" {
			if err := g.channels.JoinChannel(ctx, g.defaultChannel, userID); err != nil {
				return nil, fmt.Errorf("failed to join default channel: %w", err)
			}
		}
		channels, err := g.channels.Channels(ctx, userID)
		if err != nil {
			return nil, fmt.Errorf("failed to load channels: %w", err)
		}
		joined = channels
	} else if g.defaultChannel != "" {
		joined = append(joined, g.defaultChannel)
	}

	conn := g.router.Attach(userID, sender)
	rooms := []Room{UserRoom(userID), BroadcastRoom()}
	for _, ch := range joined {
		rooms = append(rooms, ChannelRoom(ch))
	}
	for _, room := range rooms {
		if err := g.router.Subscribe(conn.ID(), room); err != nil {
			g.router.Detach(conn.ID())
			return nil, err
		}
	}

	g.presence.Connect(userID, conn.ID())

	_ = g.router.SendTo(conn.ID(), EventConnected, Connected{
		ConnectionID: conn.ID(),
		UserID:       userID,
		Channels:     joined,
		OnlineUsers:  g.presence.OnlineUsers(),
	})

	g.logger.Info("Client connected", "connID", conn.ID(), "userID", userID, "channels", len(joined))
	return conn, nil
}

// Close tears a session down and waits, up to the drain timeout, for the
// writer to stop using the sender. It reports whether the writer finished
// in time. It is safe to call more than once.
func (g *Gateway) Close(conn *Conn) bool {
	if g.router.Detach(conn.ID()) {
		g.presence.Disconnect(conn.UserID(), conn.ID())
		g.logger.Info("Client disconnected", "connID", conn.ID(), "userID", conn.UserID())
	}

	timer := time.NewTimer(g.drainTimeout)
	defer timer.Stop()
	select {
	case <-conn.Done():
		return true
	case <-timer.C:
		g.logger.Warn("Writer still busy after close", "connID", conn.ID(), "userID", conn.UserID())
		return false
	}
}

// Handle processes one inbound frame. Malformed frames are answered with
// an error event on the same connection.
func (g *Gateway) Handle(ctx context.Context, conn *Conn, raw []byte) {
	var frame Frame
	if err := json.Unmarshal(raw, &frame); err != nil || frame.Event == "" {
		g.Reject(conn, "", "malformed frame")
		return
	}

	if err := g.handle(ctx, conn, frame); err != nil {
		g.logger.Debug("Rejected inbound event", "connID", conn.ID(), "event", frame.Event, "error", err)
		g.Reject(conn, frame.Event, err.Error())
	}
}

func (g *Gateway) handle(ctx context.Context, conn *Conn, frame Frame) error {
	switch frame.Event {
	case InChannelJoin, InChannelLeave:
		var p ChannelPayload
		if err := decode(frame.Data, &p); err != nil {
			return err
		}
		channel := strings.TrimSpace(p.Channel)
		if channel == "" {
			return errors.New("channel is required")
		}
		if frame.Event == InChannelJoin {
			return g.joinChannel(ctx, conn, channel)
		}
		return g.leaveChannel(ctx, conn, channel)

	case InTypingStart, InTypingStop:
		var p TypingPayload
		if err := decode(frame.Data, &p); err != nil {
			return err
		}
		return g.typing(conn, p, frame.Event == InTypingStart)

	case InPresenceUpdate:
		var p PresencePayload
		if err := decode(frame.Data, &p); err != nil {
			return err
		}
		return g.setStatus(conn, p.Status)

	case InTaskSubscribe, InTaskUnsubscribe:
		var p TaskRefPayload
		if err := decode(frame.Data, &p); err != nil {
			return err
		}
		if p.TaskID == "" {
			return errors.New("taskId is required")
		}
		if frame.Event == InTaskSubscribe {
			if err := g.router.Subscribe(conn.ID(), TaskRoom(p.TaskID)); err != nil {
				return err
			}
			return g.router.SendTo(conn.ID(), EventTaskSubscribed, p)
		}
		if err := g.router.Unsubscribe(conn.ID(), TaskRoom(p.TaskID)); err != nil {
			return err
		}
		return g.router.SendTo(conn.ID(), EventTaskUnsubscribed, p)
	}

	return fmt.Errorf("unknown event %q", frame.Event)
}

func (g *Gateway) joinChannel(ctx context.Context, conn *Conn, channel string) error {
	if g.channels != nil {
		if err := g.channels.JoinChannel(ctx, channel, conn.UserID()); err != nil {
			return fmt.Errorf("failed to join channel: %w", err)
		}
	}
	if err := g.router.Subscribe(conn.ID(), ChannelRoom(channel)); err != nil {
		return err
	}
	return g.router.SendTo(conn.ID(), EventChannelJoined, ChannelPayload{Channel: channel})
}

func (g *Gateway) leaveChannel(ctx context.Context, conn *Conn, channel string) error {
	if g.channels != nil {
		if err := g.channels.LeaveChannel(ctx, channel, conn.UserID()); err != nil {
			return fmt.Errorf("failed to leave channel: %w", err)
		}
	}
	if err := g.router.Unsubscribe(conn.ID(), ChannelRoom(channel)); err != nil {
		return err
	}
	return g.router.SendTo(conn.ID(), EventChannelLeft, ChannelPayload{Channel: channel})
}

// typing echoes an indicator to the channel without the typing connection,
// or to the recipient's personal room.
func (g *Gateway) typing(conn *Conn, p TypingPayload, active bool) error {
	if (p.Channel == "") == (p.RecipientID == "") {
		return errors.New("exactly one of channel or recipientId is required")
	}
	payload := Typing{UserID: conn.UserID(), Typing: active, Channel: p.Channel, RecipientID: p.RecipientID}
	if p.Channel != "" {
		g.router.PublishExcept(ChannelRoom(p.Channel), conn.ID(), EventTyping, payload)
		return nil
	}
	g.router.Publish(UserRoom(p.RecipientID), EventTyping, payload)
	return nil
}

func (g *Gateway) setStatus(conn *Conn, status Status) error {
	changed, err := g.presence.SetStatus(conn.UserID(), status)
	if err != nil {
		return err
	}
	if changed {
		g.router.PublishToUsersExcept(BroadcastRoom(), conn.UserID(), EventUserPresence,
			UserPresence{UserID: conn.UserID(), Status: status})
	}
	return nil
}

// Reject answers conn with an error event.
func (g *Gateway) Reject(conn *Conn, event, msg string) {
	_ = g.router.SendTo(conn.ID(), EventError, ErrorPayload{Event: event, Message: msg})
}

func decode(data json.RawMessage, v any) error {
	if len(data) == 0 {
		return errors.New("data is required")
	}
	if err := json.Unmarshal(data, v); err != nil {
		return fmt.Errorf("invalid data: %w", err)
	}
	return nil
}
