package realtime

import (
	"errors"
	"fmt"
	"sort"
	"sync"
)

// Status is the self-reported availability of an online user.
type Status string

const (
	StatusOnline  Status = "online"
	StatusAway    Status = "away"
	StatusBusy    Status = "busy"
	StatusOffline Status = "offline"
)

// ErrInvalidStatus is returned by SetStatus for unknown statuses.
var ErrInvalidStatus = errors.New("invalid presence status")

// PresenceChange describes an online/offline transition of a user.
type PresenceChange struct {
	UserID string `json:"userId"`
	Online bool   `json:"online"`
}

// Presence tracks which users are online. A user is online while at least
// one of their connections is registered.
//
// Observers run while the registry lock is held, so edges are delivered in
// order. They must not call back into the registry.
type Presence struct {
	mu        sync.Mutex
	conns     map[string]map[string]struct{}
	statuses  map[string]Status
	observers []func(PresenceChange)
}

// NewPresence creates an empty registry.
func NewPresence() *Presence {
	return &Presence{
		conns:    make(map[string]map[string]struct{}),
		statuses: make(map[string]Status),
	}
}

// OnChange registers fn to be called once per online/offline edge.
func (p *Presence) OnChange(fn func(PresenceChange)) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.observers = append(p.observers, fn)
}

// Connect registers connID for userID. It reports whether the user just
// came online.
func (p *Presence) Connect(userID, connID string) bool {
	p.mu.Lock()
	defer p.mu.Unlock()

	set, ok := p.conns[userID]
	if !ok {
		set = make(map[string]struct{})
		p.conns[userID] = set
	}
	if _, dup := set[connID]; dup {
		return false
	}
	set[connID] = struct{}{}
	if len(set) > 1 {
		return false
	}

	p.statuses[userID] = StatusOnline
	p.notify(PresenceChange{UserID: userID, Online: true})
	return true
}

// Disconnect removes connID for userID. It reports whether the user just
// went offline. Unknown connections are ignored.
func (p *Presence) Disconnect(userID, connID string) bool {
	p.mu.Lock()
	defer p.mu.Unlock()

	set, ok := p.conns[userID]
	if !ok {
		return false
	}
	if _, known := set[connID]; !known {
		return false
	}
	delete(set, connID)
	if len(set) > 0 {
		return false
	}

	delete(p.conns, userID)
	delete(p.statuses, userID)
	p.notify(PresenceChange{UserID: userID, Online: false})
	return true
}

func (p *Presence) notify(change PresenceChange) {
	for _, fn := range p.observers {
		fn(change)
	}
}

// IsOnline reports whether userID has at least one connection.
func (p *Presence) IsOnline(userID string) bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	_, ok := p.conns[userID]
	return ok
}

// OnlineUsers returns the online user ids in ascending order.
func (p *Presence) OnlineUsers() []string {
	p.mu.Lock()
	defer p.mu.Unlock()

	users := make([]string, 0, len(p.conns))
	for id := range p.conns {
		users = append(users, id)
	}
	sort.Strings(users)
	return users
}

// ConnectionCount returns how many connections userID has.
func (p *Presence) ConnectionCount(userID string) int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return len(p.conns[userID])
}

// Status returns the availability of userID, StatusOffline when not connected.
func (p *Presence) Status(userID string) Status {
	p.mu.Lock()
	defer p.mu.Unlock()
	if s, ok := p.statuses[userID]; ok {
		return s
	}
	return StatusOffline
}

// SetStatus records the availability of an online user. It reports whether
// the status changed; offline users are left untouched.
func (p *Presence) SetStatus(userID string, status Status) (bool, error) {
	switch status {
	case StatusOnline, StatusAway, StatusBusy:
	default:
		return false, fmt.Errorf("%w: %q", ErrInvalidStatus, status)
	}

	p.mu.Lock()
	defer p.mu.Unlock()

	current, ok := p.statuses[userID]
	if !ok || current == status {
		return false, nil
	}
	p.statuses[userID] = status
	return true, nil
}
