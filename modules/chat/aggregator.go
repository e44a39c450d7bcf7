package chat

import (
	"sort"
	"time"

	"github.com/example/collab-tracker/domain/message"
)

// AddReaction puts userID on the emoji entry, creating the entry when the
// emoji is new. It reports whether the list changed.
func AddReaction(reactions []message.Reaction, emoji, userID string) ([]message.Reaction, bool) {
	out := cloneReactions(reactions)
	for i := range out {
		if out[i].Emoji != emoji {
			continue
		}
		for _, u := range out[i].Users {
			if u == userID {
				return out, false
			}
		}
		out[i].Users = append(out[i].Users, userID)
		return out, true
	}
	return append(out, message.Reaction{Emoji: emoji, Users: []string{userID}}), true
}

// RemoveReaction takes userID off the emoji entry and prunes the entry once
// nobody is left on it. It reports whether the list changed.
func RemoveReaction(reactions []message.Reaction, emoji, userID string) ([]message.Reaction, bool) {
	out := make([]message.Reaction, 0, len(reactions))
	changed := false
	for _, r := range cloneReactions(reactions) {
		if r.Emoji == emoji {
			users := r.Users[:0]
			for _, u := range r.Users {
				if u == userID {
					changed = true
					continue
				}
				users = append(users, u)
			}
			if len(users) == 0 {
				continue
			}
			r.Users = users
		}
		out = append(out, r)
	}
	return out, changed
}

func cloneReactions(reactions []message.Reaction) []message.Reaction {
	out := make([]message.Reaction, len(reactions))
	for i, r := range reactions {
		out[i] = message.Reaction{Emoji: r.Emoji, Users: append([]string(nil), r.Users...)}
	}
	return out
}

// MarkRead appends a receipt for userID unless one exists. It reports
// whether the list changed.
func MarkRead(receipts []message.ReadReceipt, userID string, now time.Time) ([]message.ReadReceipt, bool) {
	for _, r := range receipts {
		if r.UserID == userID {
			return receipts, false
		}
	}
	out := make([]message.ReadReceipt, len(receipts), len(receipts)+1)
	copy(out, receipts)
	return append(out, message.ReadReceipt{UserID: userID, ReadAt: now}), true
}

// IsUnread reports whether msg counts as unread for userID: someone else
// sent it, it reached userID through a joined channel or directly, and
// userID has no receipt on it.
func IsUnread(msg *message.Message, userID string, channels map[string]struct{}) bool {
	if msg.SenderID == userID || msg.ReadByUser(userID) {
		return false
	}
	if _, deleted := msg.Lifecycle().(message.Deleted); deleted {
		return false
	}
	switch {
	case msg.Channel != nil:
		_, joined := channels[*msg.Channel]
		return joined
	case msg.RecipientID != nil:
		return *msg.RecipientID == userID
	}
	return false
}

// UnreadSummary counts unread messages per channel and per direct-message
// sender.
type UnreadSummary struct {
	Channels map[string]int `json:"channels"`
	Direct   map[string]int `json:"direct"`
	Total    int            `json:"total"`
}

// SummarizeUnread groups the unread messages among msgs for userID.
func SummarizeUnread(msgs []message.Message, userID string, channels map[string]struct{}) UnreadSummary {
	summary := UnreadSummary{
		Channels: make(map[string]int),
		Direct:   make(map[string]int),
	}
	for i := range msgs {
		msg := &msgs[i]
		if !IsUnread(msg, userID, channels) {
			continue
		}
		if msg.Channel != nil {
			summary.Channels[*msg.Channel]++
		} else {
			summary.Direct[msg.SenderID]++
		}
		summary.Total++
	}
	return summary
}

// Conversation summarizes the direct messages between the viewer and one
// counterpart.
type Conversation struct {
	Counterpart string          `json:"counterpart"`
	LastMessage message.Message `json:"lastMessage"`
	UnreadCount int             `json:"unreadCount"`
}

// BuildConversations groups the viewer's direct messages by counterpart,
// most recent conversation first.
func BuildConversations(msgs []message.Message, viewer string) []Conversation {
	byCounterpart := make(map[string]*Conversation)
	for i := range msgs {
		msg := &msgs[i]
		if !msg.IsDirect() {
			continue
		}
		if msg.SenderID != viewer && *msg.RecipientID != viewer {
			continue
		}
		other := msg.Counterpart(viewer)

		conv, ok := byCounterpart[other]
		if !ok {
			conv = &Conversation{Counterpart: other, LastMessage: *msg}
			byCounterpart[other] = conv
		} else if msg.CreatedAt.After(conv.LastMessage.CreatedAt) {
			conv.LastMessage = *msg
		}
		if IsUnread(msg, viewer, nil) {
			conv.UnreadCount++
		}
	}

	out := make([]Conversation, 0, len(byCounterpart))
	for _, conv := range byCounterpart {
		out = append(out, *conv)
	}
	sort.Slice(out, func(i, j int) bool {
		a, b := out[i].LastMessage.CreatedAt, out[j].LastMessage.CreatedAt
		if !a.Equal(b) {
			return a.After(b)
		}
		return out[i].Counterpart < out[j].Counterpart
	})
	return out
}
