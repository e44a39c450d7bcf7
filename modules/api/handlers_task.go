package api

import (
	"net/url"

	domain "github.com/example/collab-tracker/domain/task"
	"github.com/example/collab-tracker/modules/chat"
	"github.com/example/collab-tracker/modules/task"
	"github.com/gofiber/fiber/v2"
)

// Handlers contains the REST handlers. Every mutation is attributed to the
// authenticated user.
type Handlers struct {
	tasks task.TaskPort
	chat  chat.ChatPort
}

// NewHandlers creates a new Handlers instance.
func NewHandlers(tasks task.TaskPort, messages chat.ChatPort) *Handlers {
	return &Handlers{tasks: tasks, chat: messages}
}

// param returns a path parameter with percent-encoding removed, so tag,
// emoji and channel names may contain reserved characters.
func param(c *fiber.Ctx, name string) string {
	raw := c.Params(name)
	if v, err := url.PathUnescape(raw); err == nil {
		return v
	}
	return raw
}

// Register mounts the REST routes on router.
func (h *Handlers) Register(router fiber.Router) {
	tasks := router.Group("/tasks")
	tasks.Post("/", h.CreateTask)
	tasks.Get("/", h.ListTasks)
	tasks.Post("/bulk/status", h.BulkUpdateStatus)
	tasks.Post("/reorder", h.ReorderTasks)
	tasks.Get("/:id", h.GetTask)
	tasks.Patch("/:id", h.UpdateTask)
	tasks.Delete("/:id", h.DeleteTask)
	tasks.Post("/:id/comments", h.AddComment)
	tasks.Patch("/:id/comments/:commentId", h.EditComment)
	tasks.Delete("/:id/comments/:commentId", h.DeleteComment)
	tasks.Post("/:id/attachments", h.AddAttachment)
	tasks.Delete("/:id/attachments/:attachmentId", h.RemoveAttachment)
	tasks.Post("/:id/tags", h.AddTag)
	tasks.Delete("/:id/tags/:tag", h.RemoveTag)

	messages := router.Group("/messages")
	messages.Post("/", h.SendMessage)
	messages.Post("/read", h.MarkRead)
	messages.Get("/unread", h.UnreadSummary)
	messages.Patch("/:id", h.EditMessage)
	messages.Delete("/:id", h.DeleteMessage)
	messages.Post("/:id/reactions", h.AddReaction)
	messages.Delete("/:id/reactions/:emoji", h.RemoveReaction)

	router.Get("/conversations", h.Conversations)
	router.Get("/conversations/:userId/messages", h.DirectHistory)

	channels := router.Group("/channels")
	channels.Get("/", h.Channels)
	channels.Get("/:name/messages", h.ChannelHistory)
	channels.Post("/:name/join", h.JoinChannel)
	channels.Post("/:name/leave", h.LeaveChannel)
}

// CreateTask handles POST /tasks.
func (h *Handlers) CreateTask(c *fiber.Ctx) error {
	var body CreateTaskBody
	if err := c.BodyParser(&body); err != nil {
		return badRequest(c, "Invalid request body")
	}

	created, err := h.tasks.CreateTask(c.UserContext(), &task.CreateTaskRequest{
		ActorID:        actorID(c),
		Title:          body.Title,
		Description:    body.Description,
		Status:         body.Status,
		Priority:       body.Priority,
		Assignees:      body.Assignees,
		DueDate:        body.DueDate,
		StartDate:      body.StartDate,
		EstimatedHours: body.EstimatedHours,
		Tags:           body.Tags,
		ParentID:       body.ParentID,
		Order:          body.Order,
	})
	if err != nil {
		return writeError(c, err)
	}
	return c.Status(fiber.StatusCreated).JSON(created)
}

// ListTasks handles GET /tasks with optional status, assignee, creator,
// tag and parent filters.
func (h *Handlers) ListTasks(c *fiber.Ctx) error {
	list, err := h.tasks.ListTasks(c.UserContext(), &task.ListTasksRequest{
		Status:    domain.Status(c.Query("status")),
		Assignee:  c.Query("assignee"),
		CreatorID: c.Query("creator"),
		Tag:       c.Query("tag"),
		ParentID:  c.Query("parent"),
	})
	if err != nil {
		return writeError(c, err)
	}
	return c.JSON(fiber.Map{"tasks": list, "total": len(list)})
}

// GetTask handles GET /tasks/:id.
func (h *Handlers) GetTask(c *fiber.Ctx) error {
	t, err := h.tasks.GetTask(c.UserContext(), c.Params("id"))
	if err != nil {
		return writeError(c, err)
	}
	return c.JSON(t)
}

// UpdateTask handles PATCH /tasks/:id.
func (h *Handlers) UpdateTask(c *fiber.Ctx) error {
	patch, err := parsePatch(c.Body())
	if err != nil {
		return badRequest(c, "Invalid request body")
	}

	resp, err := h.tasks.UpdateTask(c.UserContext(), &task.UpdateTaskRequest{
		TaskID:  c.Params("id"),
		ActorID: actorID(c),
		Patch:   patch,
	})
	if err != nil {
		return writeError(c, err)
	}
	return c.JSON(fiber.Map{"task": resp.Task, "activities": resp.Activities})
}

// DeleteTask handles DELETE /tasks/:id.
func (h *Handlers) DeleteTask(c *fiber.Ctx) error {
	if err := h.tasks.DeleteTask(c.UserContext(), c.Params("id"), actorID(c)); err != nil {
		return writeError(c, err)
	}
	return c.SendStatus(fiber.StatusNoContent)
}

// BulkUpdateStatus handles POST /tasks/bulk/status.
func (h *Handlers) BulkUpdateStatus(c *fiber.Ctx) error {
	var body BulkStatusBody
	if err := c.BodyParser(&body); err != nil {
		return badRequest(c, "Invalid request body")
	}

	updated, err := h.tasks.BulkUpdateStatus(c.UserContext(), &task.BulkUpdateStatusRequest{
		TaskIDs: body.TaskIDs,
		Status:  body.Status,
		ActorID: actorID(c),
	})
	if err != nil {
		return writeError(c, err)
	}
	return c.JSON(fiber.Map{"updated": updated})
}

// ReorderTasks handles POST /tasks/reorder.
func (h *Handlers) ReorderTasks(c *fiber.Ctx) error {
	var body ReorderBody
	if err := c.BodyParser(&body); err != nil {
		return badRequest(c, "Invalid request body")
	}

	items := make([]task.ReorderItem, 0, len(body.Items))
	for _, it := range body.Items {
		items = append(items, task.ReorderItem{TaskID: it.TaskID, Order: it.Order})
	}
	updated, err := h.tasks.ReorderTasks(c.UserContext(), &task.ReorderTasksRequest{
		Items:   items,
		ActorID: actorID(c),
	})
	if err != nil {
		return writeError(c, err)
	}
	return c.JSON(fiber.Map{"updated": updated})
}

// AddComment handles POST /tasks/:id/comments.
func (h *Handlers) AddComment(c *fiber.Ctx) error {
	var body CommentBody
	if err := c.BodyParser(&body); err != nil {
		return badRequest(c, "Invalid request body")
	}

	comment, err := h.tasks.AddComment(c.UserContext(), &task.AddCommentRequest{
		TaskID:   c.Params("id"),
		ActorID:  actorID(c),
		Content:  body.Content,
		Mentions: body.Mentions,
	})
	if err != nil {
		return writeError(c, err)
	}
	return c.Status(fiber.StatusCreated).JSON(comment)
}

// EditComment handles PATCH /tasks/:id/comments/:commentId.
func (h *Handlers) EditComment(c *fiber.Ctx) error {
	var body CommentBody
	if err := c.BodyParser(&body); err != nil {
		return badRequest(c, "Invalid request body")
	}

	comment, err := h.tasks.EditComment(c.UserContext(), &task.EditCommentRequest{
		TaskID:    c.Params("id"),
		CommentID: c.Params("commentId"),
		ActorID:   actorID(c),
		Content:   body.Content,
		Mentions:  body.Mentions,
	})
	if err != nil {
		return writeError(c, err)
	}
	return c.JSON(comment)
}

// DeleteComment handles DELETE /tasks/:id/comments/:commentId.
func (h *Handlers) DeleteComment(c *fiber.Ctx) error {
	err := h.tasks.DeleteComment(c.UserContext(), &task.DeleteCommentRequest{
		TaskID:    c.Params("id"),
		CommentID: c.Params("commentId"),
		ActorID:   actorID(c),
	})
	if err != nil {
		return writeError(c, err)
	}
	return c.SendStatus(fiber.StatusNoContent)
}

// AddAttachment handles POST /tasks/:id/attachments.
func (h *Handlers) AddAttachment(c *fiber.Ctx) error {
	var body AttachmentBody
	if err := c.BodyParser(&body); err != nil {
		return badRequest(c, "Invalid request body")
	}

	resp, err := h.tasks.AddAttachment(c.UserContext(), &task.AddAttachmentRequest{
		TaskID:   c.Params("id"),
		ActorID:  actorID(c),
		Filename: body.Filename,
		URL:      body.URL,
		MimeType: body.MimeType,
		Size:     body.Size,
	})
	if err != nil {
		return writeError(c, err)
	}
	return c.Status(fiber.StatusCreated).JSON(resp.Task)
}

// RemoveAttachment handles DELETE /tasks/:id/attachments/:attachmentId.
func (h *Handlers) RemoveAttachment(c *fiber.Ctx) error {
	resp, err := h.tasks.RemoveAttachment(c.UserContext(), &task.RemoveAttachmentRequest{
		TaskID:       c.Params("id"),
		AttachmentID: c.Params("attachmentId"),
		ActorID:      actorID(c),
	})
	if err != nil {
		return writeError(c, err)
	}
	return c.JSON(resp.Task)
}

// AddTag handles POST /tasks/:id/tags.
func (h *Handlers) AddTag(c *fiber.Ctx) error {
	var body TagBody
	if err := c.BodyParser(&body); err != nil {
		return badRequest(c, "Invalid request body")
	}

	resp, err := h.tasks.AddTag(c.UserContext(), &task.TagRequest{
		TaskID:  c.Params("id"),
		ActorID: actorID(c),
		Tag:     body.Tag,
	})
	if err != nil {
		return writeError(c, err)
	}
	return c.JSON(resp.Task)
}

// RemoveTag handles DELETE /tasks/:id/tags/:tag.
func (h *Handlers) RemoveTag(c *fiber.Ctx) error {
	resp, err := h.tasks.RemoveTag(c.UserContext(), &task.TagRequest{
		TaskID:  c.Params("id"),
		ActorID: actorID(c),
		Tag:     param(c, "tag"),
	})
	if err != nil {
		return writeError(c, err)
	}
	return c.JSON(resp.Task)
}
