package realtime

import (
	"context"
	"sort"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// memoryMembership keeps channel membership in a map.
type memoryMembership struct {
	mu      sync.Mutex
	members map[string]map[string]bool
}

func newMemoryMembership() *memoryMembership {
	return &memoryMembership{members: make(map[string]map[string]bool)}
}

func (m *memoryMembership) JoinChannel(_ context.Context, channel, userID string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.members[userID] == nil {
		m.members[userID] = make(map[string]bool)
	}
	m.members[userID][channel] = true
	return nil
}

func (m *memoryMembership) LeaveChannel(_ context.Context, channel, userID string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.members[userID], channel)
	return nil
}

func (m *memoryMembership) Channels(_ context.Context, userID string) ([]string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var channels []string
	for ch := range m.members[userID] {
		channels = append(channels, ch)
	}
	sort.Strings(channels)
	return channels, nil
}

type gatewayFixture struct {
	router   *Router
	presence *Presence
	members  *memoryMembership
	gateway  *Gateway
}

func newGatewayFixture(t *testing.T) *gatewayFixture {
	t.Helper()
	router := newTestRouter(t)
	presence := NewPresence()
	presence.OnChange(func(c PresenceChange) {
		router.PublishToUsersExcept(BroadcastRoom(), c.UserID, EventUserOnline, c)
	})
	members := newMemoryMembership()
	return &gatewayFixture{
		router:   router,
		presence: presence,
		members:  members,
		gateway:  NewGateway(router, presence, members, "general", &mockLogger{}),
	}
}

func (f *gatewayFixture) open(t *testing.T, userID string) (*Conn, *recordingSender) {
	t.Helper()
	sender := &recordingSender{}
	conn, err := f.gateway.Open(context.Background(), userID, sender)
	require.NoError(t, err)
	return conn, sender
}

func TestGateway_Open(t *testing.T) {
	f := newGatewayFixture(t)
	require.NoError(t, f.members.JoinChannel(context.Background(), "design", "A"))

	conn, sender := f.open(t, "A")

	assert.ElementsMatch(t,
		[]Room{UserRoom("A"), BroadcastRoom(), ChannelRoom("design"), ChannelRoom("general")},
		f.router.Rooms(conn.ID()))
	assert.True(t, f.presence.IsOnline("A"))

	channels, _ := f.members.Channels(context.Background(), "A")
	assert.Equal(t, []string{"design", "general"}, channels, "default channel membership is persisted")

	waitFor(t, sender, EventConnected, 1)
	var hello Connected
	sender.last(t, EventConnected, &hello)
	assert.Equal(t, conn.ID(), hello.ConnectionID)
	assert.Equal(t, []string{"A"}, hello.OnlineUsers)
}

func TestGateway_PresenceAcrossTabs(t *testing.T) {
	f := newGatewayFixture(t)
	_, observer := f.open(t, "B")

	tab1, _ := f.open(t, "U")
	tab2, _ := f.open(t, "U")

	f.gateway.Close(tab1)
	assert.True(t, f.presence.IsOnline("U"))

	f.gateway.Close(tab2)
	f.gateway.Close(tab2)
	assert.False(t, f.presence.IsOnline("U"))

	waitFor(t, observer, EventUserOnline, 2)
	f.router.Close()
	assert.Equal(t, 2, observer.count(EventUserOnline), "one online and one offline edge")

	var last PresenceChange
	observer.last(t, EventUserOnline, &last)
	assert.Equal(t, PresenceChange{UserID: "U", Online: false}, last)
}

func TestGateway_Handle(t *testing.T) {
	f := newGatewayFixture(t)
	ctx := context.Background()
	a, aSender := f.open(t, "A")
	_, bSender := f.open(t, "B")

	t.Run("typing in channel skips the typist", func(t *testing.T) {
		f.gateway.Handle(ctx, a, []byte(`{"event":"typing:start","data":{"channel":"general"}}`))
		waitFor(t, bSender, EventTyping, 1)

		var typing Typing
		bSender.last(t, EventTyping, &typing)
		assert.Equal(t, Typing{UserID: "A", Typing: true, Channel: "general"}, typing)
		assert.Zero(t, aSender.count(EventTyping))
	})

	t.Run("typing to a user", func(t *testing.T) {
		f.gateway.Handle(ctx, a, []byte(`{"event":"typing:stop","data":{"recipientId":"B"}}`))
		waitFor(t, bSender, EventTyping, 2)
	})

	t.Run("task subscription", func(t *testing.T) {
		f.gateway.Handle(ctx, a, []byte(`{"event":"task:subscribe","data":{"taskId":"t1"}}`))
		waitFor(t, aSender, EventTaskSubscribed, 1)
		assert.Equal(t, 1, f.router.RoomSize(TaskRoom("t1")))

		f.gateway.Handle(ctx, a, []byte(`{"event":"task:unsubscribe","data":{"taskId":"t1"}}`))
		waitFor(t, aSender, EventTaskUnsubscribed, 1)
		assert.Zero(t, f.router.RoomSize(TaskRoom("t1")))
	})

	t.Run("channel join and leave persist membership", func(t *testing.T) {
		f.gateway.Handle(ctx, a, []byte(`{"event":"channel:join","data":{"channel":"ops"}}`))
		waitFor(t, aSender, EventChannelJoined, 1)
		assert.Equal(t, 1, f.router.RoomSize(ChannelRoom("ops")))
		channels, _ := f.members.Channels(ctx, "A")
		assert.Contains(t, channels, "ops")

		f.gateway.Handle(ctx, a, []byte(`{"event":"channel:leave","data":{"channel":"ops"}}`))
		waitFor(t, aSender, EventChannelLeft, 1)
		channels, _ = f.members.Channels(ctx, "A")
		assert.NotContains(t, channels, "ops")
	})

	t.Run("presence update reaches other users", func(t *testing.T) {
		f.gateway.Handle(ctx, a, []byte(`{"event":"presence:update","data":{"status":"away"}}`))
		waitFor(t, bSender, EventUserPresence, 1)

		var p UserPresence
		bSender.last(t, EventUserPresence, &p)
		assert.Equal(t, UserPresence{UserID: "A", Status: StatusAway}, p)
		assert.Zero(t, aSender.count(EventUserPresence))
	})

	t.Run("malformed frames are answered with errors", func(t *testing.T) {
		frames := []string{
			`not json`,
			`{"event":"teleport","data":{}}`,
			`{"event":"typing:start","data":{}}`,
			`{"event":"channel:join"}`,
			`{"event":"presence:update","data":{"status":"asleep"}}`,
		}
		for _, frame := range frames {
			f.gateway.Handle(ctx, a, []byte(frame))
		}
		waitFor(t, aSender, EventError, len(frames))
	})
}

func TestGateway_OpenRequiresUser(t *testing.T) {
	f := newGatewayFixture(t)
	_, err := f.gateway.Open(context.Background(), "", &recordingSender{})
	assert.Error(t, err)
	assert.Zero(t, f.router.ConnectionCount())
}

// gatedSender blocks every write until release is closed.
type gatedSender struct {
	release chan struct{}
	sends   atomic.Int32
}

func (s *gatedSender) Send(_ []byte) error {
	<-s.release
	s.sends.Add(1)
	return nil
}

func TestGateway_CloseWaitsForWriter(t *testing.T) {
	f := newGatewayFixture(t)
	sender := &gatedSender{release: make(chan struct{})}
	conn, err := f.gateway.Open(context.Background(), "u1", sender)
	require.NoError(t, err)
	for i := 0; i < 5; i++ {
		f.router.Publish(UserRoom("u1"), EventMessageNew, map[string]int{"n": i})
	}

	closed := make(chan bool, 1)
	go func() { closed <- f.gateway.Close(conn) }()

	select {
	case <-closed:
		t.Fatal("Close returned while the writer still held the sender")
	case <-time.After(50 * time.Millisecond):
	}

	close(sender.release)
	require.True(t, <-closed)
	// connected plus the five published frames, all written before Close returned
	assert.Equal(t, int32(6), sender.sends.Load())
	select {
	case <-conn.Done():
	default:
		t.Fatal("writer still running after Close")
	}
	assert.False(t, f.presence.IsOnline("u1"))
}

func TestGateway_CloseGivesUpAfterDrainTimeout(t *testing.T) {
	f := newGatewayFixture(t)
	f.gateway.SetDrainTimeout(20 * time.Millisecond)
	sender := &gatedSender{release: make(chan struct{})}
	defer close(sender.release)

	conn, err := f.gateway.Open(context.Background(), "u1", sender)
	require.NoError(t, err)

	start := time.Now()
	assert.False(t, f.gateway.Close(conn))
	assert.Less(t, time.Since(start), time.Second)
	assert.Zero(t, f.router.ConnectionCount())
}
