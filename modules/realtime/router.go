package realtime

import (
	"errors"
	"sync"
	"sync/atomic"

	"github.com/go-monolith/mono/pkg/types"
	nanoid "github.com/jaevor/go-nanoid"
)

// DefaultQueueSize is the outbound buffer of each connection.
const DefaultQueueSize = 64

// ErrUnknownConnection is returned for operations on detached connections.
var ErrUnknownConnection = errors.New("unknown connection")

// Sender writes encoded frames to one client.
type Sender interface {
	Send(data []byte) error
}

var newConnID = func() func() string {
	gen, err := nanoid.Standard(21)
	if err != nil {
		panic(err)
	}
	return gen
}()

// Conn is a client connection registered with the Router. Frames are
// queued and written by a dedicated goroutine.
type Conn struct {
	id     string
	userID string
	sender Sender
	queue  chan []byte
	rooms  map[Room]struct{}
	done   chan struct{}
}

func (c *Conn) ID() string     { return c.id }
func (c *Conn) UserID() string { return c.userID }

// Done is closed once the writer has returned and the sender is no longer
// used.
func (c *Conn) Done() <-chan struct{} { return c.done }

// RouterStats counts frame deliveries.
type RouterStats struct {
	Connections int    `json:"connections"`
	Rooms       int    `json:"rooms"`
	Queued      uint64 `json:"queued"`
	Written     uint64 `json:"written"`
	Dropped     uint64 `json:"dropped"`
	Failed      uint64 `json:"failed"`
}

// Router fans frames out to the connections subscribed to a room. Each
// connection receives at most one copy per publish call.
type Router struct {
	mu        sync.RWMutex
	conns     map[string]*Conn
	rooms     map[Room]map[string]*Conn
	queueSize int
	logger    types.Logger
	writers   sync.WaitGroup

	queued  atomic.Uint64
	written atomic.Uint64
	dropped atomic.Uint64
	failed  atomic.Uint64
}

// NewRouter creates a router. queueSize <= 0 selects DefaultQueueSize.
func NewRouter(queueSize int, logger types.Logger) *Router {
	if queueSize <= 0 {
		queueSize = DefaultQueueSize
	}
	return &Router{
		conns:     make(map[string]*Conn),
		rooms:     make(map[Room]map[string]*Conn),
		queueSize: queueSize,
		logger:    logger,
	}
}

// Attach registers a new connection for userID and starts its writer.
func (r *Router) Attach(userID string, sender Sender) *Conn {
	conn := &Conn{
		id:     newConnID(),
		userID: userID,
		sender: sender,
		queue:  make(chan []byte, r.queueSize),
		rooms:  make(map[Room]struct{}),
		done:   make(chan struct{}),
	}

	r.mu.Lock()
	r.conns[conn.id] = conn
	r.mu.Unlock()

	r.writers.Add(1)
	go r.writeLoop(conn)

	r.logger.Debug("Connection attached", "connID", conn.id, "userID", userID)
	return conn
}

func (r *Router) writeLoop(conn *Conn) {
	defer r.writers.Done()
	defer close(conn.done)
	for data := range conn.queue {
		if err := conn.sender.Send(data); err != nil {
			r.failed.Add(1)
			r.logger.Warn("Failed to write to connection", "connID", conn.id, "userID", conn.userID, "error", err)
			continue
		}
		r.written.Add(1)
	}
}

// Detach removes a connection from every room and stops its writer once
// queued frames are flushed. It reports whether the connection was known.
func (r *Router) Detach(connID string) bool {
	r.mu.Lock()
	defer r.mu.Unlock()

	conn, ok := r.conns[connID]
	if !ok {
		return false
	}
	for room := range conn.rooms {
		r.removeMember(room, connID)
	}
	delete(r.conns, connID)
	close(conn.queue)

	r.logger.Debug("Connection detached", "connID", connID, "userID", conn.userID)
	return true
}

// Subscribe adds a connection to room. Subscribing twice is a no-op.
func (r *Router) Subscribe(connID string, room Room) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	conn, ok := r.conns[connID]
	if !ok {
		return ErrUnknownConnection
	}
	members, ok := r.rooms[room]
	if !ok {
		members = make(map[string]*Conn)
		r.rooms[room] = members
	}
	members[connID] = conn
	conn.rooms[room] = struct{}{}
	return nil
}

// Unsubscribe removes a connection from room.
func (r *Router) Unsubscribe(connID string, room Room) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	conn, ok := r.conns[connID]
	if !ok {
		return ErrUnknownConnection
	}
	delete(conn.rooms, room)
	r.removeMember(room, connID)
	return nil
}

func (r *Router) removeMember(room Room, connID string) {
	members, ok := r.rooms[room]
	if !ok {
		return
	}
	delete(members, connID)
	if len(members) == 0 {
		delete(r.rooms, room)
	}
}

// Publish queues event to every connection in room and returns how many
// connections accepted it.
func (r *Router) Publish(room Room, event string, payload any) int {
	return r.publish([]Room{room}, event, payload, func(*Conn) bool { return true })
}

// PublishRooms queues event once to every connection subscribed to any of
// rooms.
func (r *Router) PublishRooms(rooms []Room, event string, payload any) int {
	return r.publish(rooms, event, payload, func(*Conn) bool { return true })
}

// PublishExcept queues event to room, skipping the connection exceptConnID.
func (r *Router) PublishExcept(room Room, exceptConnID, event string, payload any) int {
	return r.publish([]Room{room}, event, payload, func(c *Conn) bool { return c.id != exceptConnID })
}

// PublishToUsersExcept queues event to room, skipping every connection of
// exceptUserID.
func (r *Router) PublishToUsersExcept(room Room, exceptUserID, event string, payload any) int {
	return r.publish([]Room{room}, event, payload, func(c *Conn) bool { return c.userID != exceptUserID })
}

// SendTo queues event to a single connection.
func (r *Router) SendTo(connID, event string, payload any) error {
	data, err := encodeFrame(event, payload)
	if err != nil {
		return err
	}

	r.mu.RLock()
	defer r.mu.RUnlock()
	conn, ok := r.conns[connID]
	if !ok {
		return ErrUnknownConnection
	}
	r.enqueue(conn, event, data)
	return nil
}

func (r *Router) publish(rooms []Room, event string, payload any, include func(*Conn) bool) int {
	data, err := encodeFrame(event, payload)
	if err != nil {
		r.logger.Error("Failed to encode frame", "event", event, "error", err)
		return 0
	}

	r.mu.RLock()
	defer r.mu.RUnlock()

	delivered := 0
	seen := make(map[string]struct{})
	for _, room := range rooms {
		for id, conn := range r.rooms[room] {
			if _, dup := seen[id]; dup || !include(conn) {
				continue
			}
			seen[id] = struct{}{}
			if r.enqueue(conn, event, data) {
				delivered++
			}
		}
	}
	return delivered
}

// enqueue must be called with r.mu held; Detach closes queues under the
// write lock.
func (r *Router) enqueue(conn *Conn, event string, data []byte) bool {
	select {
	case conn.queue <- data:
		r.queued.Add(1)
		return true
	default:
		r.dropped.Add(1)
		r.logger.Warn("Outbound queue full, frame dropped", "connID", conn.id, "userID", conn.userID, "event", event)
		return false
	}
}

// Rooms returns the rooms a connection is subscribed to.
func (r *Router) Rooms(connID string) []Room {
	r.mu.RLock()
	defer r.mu.RUnlock()

	conn, ok := r.conns[connID]
	if !ok {
		return nil
	}
	rooms := make([]Room, 0, len(conn.rooms))
	for room := range conn.rooms {
		rooms = append(rooms, room)
	}
	return rooms
}

// RoomSize returns the number of connections subscribed to room.
func (r *Router) RoomSize(room Room) int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.rooms[room])
}

// ConnectionCount returns the number of attached connections.
func (r *Router) ConnectionCount() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.conns)
}

// Stats returns delivery counters.
func (r *Router) Stats() RouterStats {
	r.mu.RLock()
	conns, rooms := len(r.conns), len(r.rooms)
	r.mu.RUnlock()

	return RouterStats{
		Connections: conns,
		Rooms:       rooms,
		Queued:      r.queued.Load(),
		Written:     r.written.Load(),
		Dropped:     r.dropped.Load(),
		Failed:      r.failed.Load(),
	}
}

// Close detaches every connection and waits for writers to flush.
func (r *Router) Close() {
	r.mu.Lock()
	ids := make([]string, 0, len(r.conns))
	for id := range r.conns {
		ids = append(ids, id)
	}
	r.mu.Unlock()

	for _, id := range ids {
		r.Detach(id)
	}
	r.writers.Wait()
}
