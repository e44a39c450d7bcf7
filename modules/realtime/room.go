package realtime

// RoomKind distinguishes the address spaces of rooms.
type RoomKind uint8

const (
	RoomUser RoomKind = iota + 1
	RoomChannel
	RoomTask
	RoomBroadcast
)

func (k RoomKind) String() string {
	switch k {
	case RoomUser:
		return "user"
	case RoomChannel:
		return "channel"
	case RoomTask:
		return "task"
	case RoomBroadcast:
		return "broadcast"
	}
	return "unknown"
}

// Room is a broadcast group connections subscribe to. Rooms are comparable
// values, so a user "general" and a channel "general" never collide.
type Room struct {
	kind RoomKind
	id   string
}

// UserRoom is the personal room of a user, joined by each of their connections.
func UserRoom(userID string) Room { return Room{kind: RoomUser, id: userID} }

// ChannelRoom is the room of a chat channel.
func ChannelRoom(name string) Room { return Room{kind: RoomChannel, id: name} }

// TaskRoom carries live updates for one task.
func TaskRoom(taskID string) Room { return Room{kind: RoomTask, id: taskID} }

// BroadcastRoom is joined by every connection.
func BroadcastRoom() Room { return Room{kind: RoomBroadcast} }

func (r Room) Kind() RoomKind { return r.kind }
func (r Room) ID() string     { return r.id }

// String renders the room for logs, e.g. "task:42".
func (r Room) String() string {
	if r.kind == RoomBroadcast {
		return r.kind.String()
	}
	return r.kind.String() + ":" + r.id
}
