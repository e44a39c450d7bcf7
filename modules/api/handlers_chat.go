package api

import (
	"time"

	"github.com/example/collab-tracker/modules/chat"
	"github.com/gofiber/fiber/v2"
)

// SendMessage handles POST /messages.
func (h *Handlers) SendMessage(c *fiber.Ctx) error {
	var body SendMessageBody
	if err := c.BodyParser(&body); err != nil {
		return badRequest(c, "Invalid request body")
	}

	msg, err := h.chat.Send(c.UserContext(), &chat.SendMessageRequest{
		SenderID:    actorID(c),
		Content:     body.Content,
		Channel:     body.Channel,
		RecipientID: body.RecipientID,
		TaskRef:     body.TaskRef,
		Mentions:    body.Mentions,
		Attachments: body.Attachments,
		ReplyTo:     body.ReplyTo,
	})
	if err != nil {
		return writeError(c, err)
	}
	return c.Status(fiber.StatusCreated).JSON(msg)
}

// EditMessage handles PATCH /messages/:id.
func (h *Handlers) EditMessage(c *fiber.Ctx) error {
	var body EditMessageBody
	if err := c.BodyParser(&body); err != nil {
		return badRequest(c, "Invalid request body")
	}

	msg, err := h.chat.Edit(c.UserContext(), &chat.EditMessageRequest{
		MessageID: c.Params("id"),
		ActorID:   actorID(c),
		Content:   body.Content,
	})
	if err != nil {
		return writeError(c, err)
	}
	return c.JSON(msg)
}

// DeleteMessage handles DELETE /messages/:id.
func (h *Handlers) DeleteMessage(c *fiber.Ctx) error {
	if err := h.chat.Delete(c.UserContext(), c.Params("id"), actorID(c)); err != nil {
		return writeError(c, err)
	}
	return c.SendStatus(fiber.StatusNoContent)
}

// AddReaction handles POST /messages/:id/reactions.
func (h *Handlers) AddReaction(c *fiber.Ctx) error {
	var body ReactionBody
	if err := c.BodyParser(&body); err != nil {
		return badRequest(c, "Invalid request body")
	}

	msg, err := h.chat.AddReaction(c.UserContext(), &chat.ReactionRequest{
		MessageID: c.Params("id"),
		ActorID:   actorID(c),
		Emoji:     body.Emoji,
	})
	if err != nil {
		return writeError(c, err)
	}
	return c.JSON(msg)
}

// RemoveReaction handles DELETE /messages/:id/reactions/:emoji.
func (h *Handlers) RemoveReaction(c *fiber.Ctx) error {
	msg, err := h.chat.RemoveReaction(c.UserContext(), &chat.ReactionRequest{
		MessageID: c.Params("id"),
		ActorID:   actorID(c),
		Emoji:     param(c, "emoji"),
	})
	if err != nil {
		return writeError(c, err)
	}
	return c.JSON(msg)
}

// MarkRead handles POST /messages/read.
func (h *Handlers) MarkRead(c *fiber.Ctx) error {
	var body MarkReadBody
	if err := c.BodyParser(&body); err != nil {
		return badRequest(c, "Invalid request body")
	}

	marked, err := h.chat.MarkRead(c.UserContext(), &chat.MarkReadRequest{
		UserID:      actorID(c),
		MessageIDs:  body.MessageIDs,
		Channel:     body.Channel,
		Counterpart: body.Counterpart,
	})
	if err != nil {
		return writeError(c, err)
	}
	return c.JSON(fiber.Map{"marked": marked})
}

// UnreadSummary handles GET /messages/unread.
func (h *Handlers) UnreadSummary(c *fiber.Ctx) error {
	summary, err := h.chat.UnreadSummary(c.UserContext(), actorID(c))
	if err != nil {
		return writeError(c, err)
	}
	return c.JSON(summary)
}

// Conversations handles GET /conversations.
func (h *Handlers) Conversations(c *fiber.Ctx) error {
	list, err := h.chat.Conversations(c.UserContext(), actorID(c))
	if err != nil {
		return writeError(c, err)
	}
	return c.JSON(fiber.Map{"conversations": list})
}

// ChannelHistory handles GET /channels/:name/messages.
func (h *Handlers) ChannelHistory(c *fiber.Ctx) error {
	return h.history(c, &chat.HistoryRequest{Channel: param(c, "name")})
}

// DirectHistory handles GET /conversations/:userId/messages.
func (h *Handlers) DirectHistory(c *fiber.Ctx) error {
	return h.history(c, &chat.HistoryRequest{Counterpart: c.Params("userId")})
}

// history pages backwards from the optional before timestamp (RFC 3339).
func (h *Handlers) history(c *fiber.Ctx, req *chat.HistoryRequest) error {
	req.UserID = actorID(c)
	req.Limit = c.QueryInt("limit", 50)
	if before := c.Query("before"); before != "" {
		t, err := time.Parse(time.RFC3339, before)
		if err != nil {
			return badRequest(c, "before must be an RFC 3339 timestamp")
		}
		req.Before = t
	}

	msgs, err := h.chat.History(c.UserContext(), req)
	if err != nil {
		return writeError(c, err)
	}
	return c.JSON(fiber.Map{"messages": msgs})
}

// Channels handles GET /channels.
func (h *Handlers) Channels(c *fiber.Ctx) error {
	channels, err := h.chat.Channels(c.UserContext(), actorID(c))
	if err != nil {
		return writeError(c, err)
	}
	return c.JSON(fiber.Map{"channels": channels})
}

// JoinChannel handles POST /channels/:name/join.
func (h *Handlers) JoinChannel(c *fiber.Ctx) error {
	if err := h.chat.JoinChannel(c.UserContext(), param(c, "name"), actorID(c)); err != nil {
		return writeError(c, err)
	}
	return c.JSON(fiber.Map{"channel": param(c, "name"), "joined": true})
}

// LeaveChannel handles POST /channels/:name/leave.
func (h *Handlers) LeaveChannel(c *fiber.Ctx) error {
	if err := h.chat.LeaveChannel(c.UserContext(), param(c, "name"), actorID(c)); err != nil {
		return writeError(c, err)
	}
	return c.JSON(fiber.Map{"channel": param(c, "name"), "joined": false})
}
