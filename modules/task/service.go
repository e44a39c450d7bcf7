package task

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/example/collab-tracker/domain/apperror"
	domain "github.com/example/collab-tracker/domain/task"
	"github.com/example/collab-tracker/events"
	"github.com/go-monolith/mono/pkg/types"
	"github.com/google/uuid"
)

// maxUpdateAttempts bounds how often a diff is recomputed after losing a
// version race.
const maxUpdateAttempts = 3

// Publisher announces committed task mutations. Implementations must not
// fail the caller; delivery is best effort.
type Publisher interface {
	TaskCreated(events.TaskCreatedEvent)
	TaskUpdated(events.TaskUpdatedEvent)
	TaskDeleted(events.TaskDeletedEvent)
	TaskCommented(events.TaskCommentedEvent)
	TasksBulkUpdated(events.TasksBulkUpdatedEvent)
	MentionCreated(events.MentionCreatedEvent)
}

// Service implements task mutations and their audit trail.
type Service struct {
	repo      *Repository
	publisher Publisher
	logger    types.Logger
	now       func() time.Time
}

// NewService creates a task service.
func NewService(repo *Repository, publisher Publisher, logger types.Logger) *Service {
	return &Service{
		repo:      repo,
		publisher: publisher,
		logger:    logger,
		now:       time.Now,
	}
}

// Create validates and stores a new task with its "created" activity.
func (s *Service) Create(ctx context.Context, req CreateTaskRequest) (*domain.Task, error) {
	title := strings.TrimSpace(req.Title)
	if title == "" {
		return nil, fmt.Errorf("%w: title is required", apperror.ErrInvalidInput)
	}
	if req.ActorID == "" {
		return nil, fmt.Errorf("%w: actor is required", apperror.ErrInvalidInput)
	}

	status := req.Status
	if status == "" {
		status = domain.StatusTodo
	}
	priority := req.Priority
	if priority == "" {
		priority = domain.PriorityMedium
	}
	if err := validateEnums(&status, &priority); err != nil {
		return nil, err
	}
	if req.ParentID != nil {
		exists, err := s.repo.Exists(ctx, *req.ParentID)
		if err != nil {
			return nil, err
		}
		if !exists {
			return nil, fmt.Errorf("parent task %s: %w", *req.ParentID, apperror.ErrNotFound)
		}
	}

	now := s.now()
	task := &domain.Task{
		ID:             uuid.New().String(),
		Title:          title,
		Description:    req.Description,
		Status:         status,
		Priority:       priority,
		Assignees:      dedupe(req.Assignees),
		CreatorID:      req.ActorID,
		DueDate:        req.DueDate,
		StartDate:      req.StartDate,
		EstimatedHours: req.EstimatedHours,
		Tags:           normalizeTags(req.Tags),
		ParentID:       req.ParentID,
		Order:          req.Order,
		Version:        1,
	}
	if status == domain.StatusDone {
		task.CompletedAt = &now
	}

	created := s.activity(Change{
		Type:        domain.ActivityCreated,
		Description: "created the task",
	}, req.ActorID, now)
	if err := s.repo.Create(ctx, task, created); err != nil {
		return nil, err
	}

	stored, err := s.repo.FindByID(ctx, task.ID)
	if err != nil {
		return nil, err
	}
	s.logger.Info("Task created", "taskID", task.ID, "actor", req.ActorID)
	s.publisher.TaskCreated(events.TaskCreatedEvent{Task: *stored, ActorID: req.ActorID})
	return stored, nil
}

// Get returns a task with its children.
func (s *Service) Get(ctx context.Context, taskID string) (*domain.Task, error) {
	return s.repo.FindByID(ctx, taskID)
}

// List returns tasks matching filter.
func (s *Service) List(ctx context.Context, filter ListFilter) ([]*domain.Task, error) {
	return s.repo.List(ctx, filter)
}

// Update diffs patch against the stored task, writes the changed columns
// and the resulting activities atomically, and announces the update.
// A lost version race is retried against a fresh snapshot.
func (s *Service) Update(ctx context.Context, taskID, actorID string, patch Patch) (*domain.Task, []domain.Activity, error) {
	if err := validatePatch(taskID, &patch); err != nil {
		return nil, nil, err
	}
	if patch.ParentID != nil {
		exists, err := s.repo.Exists(ctx, *patch.ParentID)
		if err != nil {
			return nil, nil, err
		}
		if !exists {
			return nil, nil, fmt.Errorf("parent task %s: %w", *patch.ParentID, apperror.ErrNotFound)
		}
	}

	stored, err := s.applyUpdate(ctx, taskID, actorID, &patch)
	if err != nil {
		return nil, nil, err
	}

	task, err := s.repo.FindByID(ctx, taskID)
	if err != nil {
		return nil, nil, err
	}
	if len(stored) > 0 {
		s.logger.Info("Task updated", "taskID", taskID, "actor", actorID, "activities", len(stored))
		s.publisher.TaskUpdated(events.TaskUpdatedEvent{Task: *task, Activities: stored, ActorID: actorID})
	}
	return task, stored, nil
}

func (s *Service) applyUpdate(ctx context.Context, taskID, actorID string, patch *Patch) ([]domain.Activity, error) {
	if patch.IsEmpty() {
		if _, err := s.repo.FindByID(ctx, taskID); err != nil {
			return nil, err
		}
		return nil, nil
	}

	for attempt := 1; ; attempt++ {
		current, err := s.repo.FindByID(ctx, taskID)
		if err != nil {
			return nil, err
		}

		now := s.now()
		plan := NewPlan(current, patch, now)
		activities := s.activities(plan.Changes, actorID, now)

		stored, err := s.repo.ApplyPlan(ctx, current.Version, plan, activities)
		if errors.Is(err, apperror.ErrConflict) && attempt < maxUpdateAttempts {
			s.logger.Debug("Retrying task update after version conflict", "taskID", taskID, "attempt", attempt)
			continue
		}
		return stored, err
	}
}

// Delete removes a task and everything attached to it.
func (s *Service) Delete(ctx context.Context, taskID, actorID string) error {
	if err := s.repo.Delete(ctx, taskID); err != nil {
		return err
	}
	s.logger.Info("Task deleted", "taskID", taskID, "actor", actorID)
	s.publisher.TaskDeleted(events.TaskDeletedEvent{TaskID: taskID, ActorID: actorID, DeletedAt: s.now()})
	return nil
}

// BulkUpdateStatus moves every listed task to status through the regular
// update path. Unknown ids and tasks already in status are skipped.
func (s *Service) BulkUpdateStatus(ctx context.Context, taskIDs []string, status domain.Status, actorID string) ([]string, error) {
	if !status.Valid() {
		return nil, fmt.Errorf("%w: unknown status %q", apperror.ErrInvalidInput, status)
	}

	updated := make([]string, 0, len(taskIDs))
	for _, id := range dedupe(taskIDs) {
		current, err := s.repo.FindByID(ctx, id)
		if errors.Is(err, apperror.ErrNotFound) {
			s.logger.Warn("Skipping unknown task in bulk update", "taskID", id)
			continue
		}
		if err != nil {
			return updated, err
		}
		if current.Status == status {
			continue
		}

		stored, err := s.applyUpdate(ctx, id, actorID, &Patch{Status: &status})
		if err != nil {
			return updated, err
		}
		if len(stored) > 0 {
			updated = append(updated, id)
		}
	}

	if len(updated) > 0 {
		s.publisher.TasksBulkUpdated(events.TasksBulkUpdatedEvent{TaskIDs: updated, Status: status, ActorID: actorID})
	}
	return updated, nil
}

// Reorder sets the manual rank of tasks within their columns.
func (s *Service) Reorder(ctx context.Context, items []ReorderItem, actorID string) ([]string, error) {
	orders := make(map[string]float64, len(items))
	for _, item := range items {
		if item.TaskID == "" {
			return nil, fmt.Errorf("%w: task id is required", apperror.ErrInvalidInput)
		}
		orders[item.TaskID] = item.Order
	}

	updated, err := s.repo.Reorder(ctx, orders)
	if err != nil {
		return nil, err
	}
	if len(updated) > 0 {
		s.publisher.TasksBulkUpdated(events.TasksBulkUpdatedEvent{TaskIDs: updated, Reorder: true, ActorID: actorID})
	}
	return updated, nil
}

// AddComment stores a comment, records a comment_added activity and
// notifies mentioned users.
func (s *Service) AddComment(ctx context.Context, taskID, actorID, content string, mentions []string) (*domain.Comment, error) {
	content = strings.TrimSpace(content)
	if content == "" {
		return nil, fmt.Errorf("%w: comment content is required", apperror.ErrInvalidInput)
	}

	now := s.now()
	comment := &domain.Comment{
		ID:       uuid.New().String(),
		TaskID:   taskID,
		Content:  content,
		AuthorID: actorID,
		Mentions: mentionTargets(mentions, actorID),
	}
	activity := s.activity(Change{
		Type:        domain.ActivityCommentAdded,
		Description: "added a comment",
		Metadata:    map[string]any{"commentId": comment.ID},
	}, actorID, now)

	if _, err := s.repo.AddComment(ctx, comment, []domain.Activity{activity}); err != nil {
		return nil, err
	}

	s.publisher.TaskCommented(events.TaskCommentedEvent{
		TaskID: taskID, Action: events.CommentAdded, Comment: *comment, ActorID: actorID,
	})
	s.announceMentions(comment, actorID)
	return comment, nil
}

// EditComment changes a comment's content. Only its author may edit it.
func (s *Service) EditComment(ctx context.Context, taskID, commentID, actorID, content string, mentions []string) (*domain.Comment, error) {
	content = strings.TrimSpace(content)
	if content == "" {
		return nil, fmt.Errorf("%w: comment content is required", apperror.ErrInvalidInput)
	}

	comment, err := s.repo.FindComment(ctx, taskID, commentID)
	if err != nil {
		return nil, err
	}
	if comment.AuthorID != actorID {
		return nil, fmt.Errorf("edit comment %s: %w", commentID, apperror.ErrUnauthorized)
	}

	previous := toSet(comment.Mentions)
	comment.Content = content
	comment.Mentions = mentionTargets(mentions, actorID)
	comment.IsEdited = true
	comment.UpdatedAt = s.now()
	if err := s.repo.UpdateComment(ctx, comment); err != nil {
		return nil, err
	}

	s.publisher.TaskCommented(events.TaskCommentedEvent{
		TaskID: taskID, Action: events.CommentEdited, Comment: *comment, ActorID: actorID,
	})

	// Only users newly mentioned by the edit are notified.
	fresh := *comment
	fresh.Mentions = nil
	for _, id := range comment.Mentions {
		if _, ok := previous[id]; !ok {
			fresh.Mentions = append(fresh.Mentions, id)
		}
	}
	s.announceMentions(&fresh, actorID)
	return comment, nil
}

// DeleteComment removes a comment. Only its author may delete it.
func (s *Service) DeleteComment(ctx context.Context, taskID, commentID, actorID string) error {
	comment, err := s.repo.FindComment(ctx, taskID, commentID)
	if err != nil {
		return err
	}
	if comment.AuthorID != actorID {
		return fmt.Errorf("delete comment %s: %w", commentID, apperror.ErrUnauthorized)
	}
	if err := s.repo.DeleteComment(ctx, taskID, commentID); err != nil {
		return err
	}

	s.publisher.TaskCommented(events.TaskCommentedEvent{
		TaskID: taskID, Action: events.CommentDeleted, Comment: *comment, ActorID: actorID,
	})
	return nil
}

// AddAttachment links file metadata to a task.
func (s *Service) AddAttachment(ctx context.Context, req AddAttachmentRequest) (*domain.Task, []domain.Activity, error) {
	if strings.TrimSpace(req.Filename) == "" || strings.TrimSpace(req.URL) == "" {
		return nil, nil, fmt.Errorf("%w: filename and url are required", apperror.ErrInvalidInput)
	}

	now := s.now()
	attachment := &domain.Attachment{
		ID:         uuid.New().String(),
		TaskID:     req.TaskID,
		Filename:   req.Filename,
		URL:        req.URL,
		MimeType:   req.MimeType,
		Size:       req.Size,
		UploadedBy: req.ActorID,
	}
	activity := s.activity(Change{
		Type:        domain.ActivityAttachmentAdded,
		Description: "attached " + req.Filename,
		Metadata:    map[string]any{"attachmentId": attachment.ID, "filename": req.Filename},
	}, req.ActorID, now)

	stored, err := s.repo.AddAttachment(ctx, attachment, []domain.Activity{activity})
	if err != nil {
		return nil, nil, err
	}
	return s.announceUpdate(ctx, req.TaskID, req.ActorID, stored)
}

// RemoveAttachment unlinks an attachment from a task.
func (s *Service) RemoveAttachment(ctx context.Context, taskID, attachmentID, actorID string) (*domain.Task, []domain.Activity, error) {
	attachment, err := s.repo.FindAttachment(ctx, taskID, attachmentID)
	if err != nil {
		return nil, nil, err
	}

	activity := s.activity(Change{
		Type:        domain.ActivityAttachmentRemoved,
		Description: "removed " + attachment.Filename,
		Metadata:    map[string]any{"attachmentId": attachment.ID, "filename": attachment.Filename},
	}, actorID, s.now())

	stored, err := s.repo.RemoveAttachment(ctx, taskID, attachmentID, []domain.Activity{activity})
	if err != nil {
		return nil, nil, err
	}
	return s.announceUpdate(ctx, taskID, actorID, stored)
}

// AddTag adds tag to the task's tag set. Adding a present tag is a no-op.
func (s *Service) AddTag(ctx context.Context, taskID, actorID, tag string) (*domain.Task, []domain.Activity, error) {
	return s.changeTags(ctx, taskID, actorID, tag, true)
}

// RemoveTag removes tag from the task's tag set. Removing an absent tag is a no-op.
func (s *Service) RemoveTag(ctx context.Context, taskID, actorID, tag string) (*domain.Task, []domain.Activity, error) {
	return s.changeTags(ctx, taskID, actorID, tag, false)
}

func (s *Service) changeTags(ctx context.Context, taskID, actorID, tag string, add bool) (*domain.Task, []domain.Activity, error) {
	tag = strings.TrimSpace(tag)
	if tag == "" {
		return nil, nil, fmt.Errorf("%w: tag is required", apperror.ErrInvalidInput)
	}

	for attempt := 1; ; attempt++ {
		current, err := s.repo.FindByID(ctx, taskID)
		if err != nil {
			return nil, nil, err
		}
		if current.HasTag(tag) == add {
			return current, nil, nil
		}

		change := Change{
			Type:        domain.ActivityTagAdded,
			Description: "added tag " + tag,
			Metadata:    map[string]any{"tag": tag},
		}
		tags := append(append([]string{}, current.Tags...), tag)
		if !add {
			change.Type = domain.ActivityTagRemoved
			change.Description = "removed tag " + tag
			tags = tags[:0]
			for _, existing := range current.Tags {
				if existing != tag {
					tags = append(tags, existing)
				}
			}
		}

		activity := s.activity(change, actorID, s.now())
		stored, err := s.repo.SetTags(ctx, taskID, current.Version, tags, []domain.Activity{activity})
		if errors.Is(err, apperror.ErrConflict) && attempt < maxUpdateAttempts {
			continue
		}
		if err != nil {
			return nil, nil, err
		}
		return s.announceUpdate(ctx, taskID, actorID, stored)
	}
}

func (s *Service) announceUpdate(ctx context.Context, taskID, actorID string, stored []domain.Activity) (*domain.Task, []domain.Activity, error) {
	task, err := s.repo.FindByID(ctx, taskID)
	if err != nil {
		return nil, nil, err
	}
	s.publisher.TaskUpdated(events.TaskUpdatedEvent{Task: *task, Activities: stored, ActorID: actorID})
	return task, stored, nil
}

func (s *Service) announceMentions(comment *domain.Comment, actorID string) {
	if len(comment.Mentions) == 0 {
		return
	}
	s.publisher.MentionCreated(events.MentionCreatedEvent{
		UserIDs:  comment.Mentions,
		ActorID:  actorID,
		Source:   events.MentionInComment,
		SourceID: comment.ID,
		TaskID:   comment.TaskID,
		Preview:  preview(comment.Content),
	})
}

func (s *Service) activities(changes []Change, actorID string, now time.Time) []domain.Activity {
	out := make([]domain.Activity, 0, len(changes))
	for _, c := range changes {
		out = append(out, s.activity(c, actorID, now))
	}
	return out
}

func (s *Service) activity(c Change, actorID string, now time.Time) domain.Activity {
	return domain.Activity{
		ID:          uuid.New().String(),
		Type:        c.Type,
		ActorID:     actorID,
		Description: c.Description,
		Metadata:    c.Metadata,
		CreatedAt:   now,
	}
}

func validateEnums(status *domain.Status, priority *domain.Priority) error {
	if status != nil && !status.Valid() {
		return fmt.Errorf("%w: unknown status %q", apperror.ErrInvalidInput, *status)
	}
	if priority != nil && !priority.Valid() {
		return fmt.Errorf("%w: unknown priority %q", apperror.ErrInvalidInput, *priority)
	}
	return nil
}

func validatePatch(taskID string, patch *Patch) error {
	if err := validateEnums(patch.Status, patch.Priority); err != nil {
		return err
	}
	if patch.Title != nil && strings.TrimSpace(*patch.Title) == "" {
		return fmt.Errorf("%w: title cannot be empty", apperror.ErrInvalidInput)
	}
	if patch.ParentID != nil && *patch.ParentID == taskID {
		return fmt.Errorf("%w: a task cannot be its own parent", apperror.ErrInvalidInput)
	}
	return nil
}

func normalizeTags(tags []string) []string {
	trimmed := make([]string, 0, len(tags))
	for _, t := range tags {
		trimmed = append(trimmed, strings.TrimSpace(t))
	}
	return dedupe(trimmed)
}

// mentionTargets drops duplicates and the author from a mention list.
func mentionTargets(mentions []string, authorID string) []string {
	targets := make([]string, 0, len(mentions))
	for _, id := range dedupe(mentions) {
		if id != authorID {
			targets = append(targets, id)
		}
	}
	return targets
}

func preview(content string) string {
	const limit = 120
	runes := []rune(content)
	if len(runes) <= limit {
		return content
	}
	return string(runes[:limit]) + "..."
}
