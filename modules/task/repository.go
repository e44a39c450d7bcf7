package task

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/example/collab-tracker/domain/apperror"
	domain "github.com/example/collab-tracker/domain/task"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// Repository provides access to task storage.
type Repository struct {
	db *gorm.DB
}

// NewRepository creates a new task repository.
func NewRepository(db *gorm.DB) *Repository {
	return &Repository{db: db}
}

// Migrate creates or updates the task tables.
func Migrate(db *gorm.DB) error {
	return db.AutoMigrate(
		&domain.Task{},
		&domain.Activity{},
		&domain.Comment{},
		&domain.Attachment{},
	)
}

// Transaction runs fn against a repository bound to a single transaction.
func (r *Repository) Transaction(ctx context.Context, fn func(tx *Repository) error) error {
	return r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		return fn(&Repository{db: tx})
	})
}

// ListFilter narrows a task listing. Empty fields match everything.
type ListFilter struct {
	Status    domain.Status
	Assignee  string
	CreatorID string
	Tag       string
	ParentID  string
}

// Create stores a new task together with its first activity.
func (r *Repository) Create(ctx context.Context, task *domain.Task, created domain.Activity) error {
	return r.Transaction(ctx, func(tx *Repository) error {
		if err := tx.db.Omit(clause.Associations).Create(task).Error; err != nil {
			return fmt.Errorf("failed to create task: %w", err)
		}
		_, err := tx.appendActivities(task.ID, []domain.Activity{created})
		return err
	})
}

// FindByID retrieves a task with its comments, attachments, activities and
// subtask ids.
func (r *Repository) FindByID(ctx context.Context, id string) (*domain.Task, error) {
	var task domain.Task
	err := r.db.WithContext(ctx).
		Preload("Comments", func(db *gorm.DB) *gorm.DB { return db.Order("created_at ASC") }).
		Preload("Attachments", func(db *gorm.DB) *gorm.DB { return db.Order("created_at ASC") }).
		Preload("Activities", func(db *gorm.DB) *gorm.DB { return db.Order("seq ASC") }).
		First(&task, "id = ?", id).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, fmt.Errorf("task %s: %w", id, apperror.ErrNotFound)
		}
		return nil, fmt.Errorf("failed to find task: %w", err)
	}

	if err := r.db.WithContext(ctx).Model(&domain.Task{}).
		Where("parent_id = ?", id).Order("sort_order ASC").
		Pluck("id", &task.Subtasks).Error; err != nil {
		return nil, fmt.Errorf("failed to load subtasks: %w", err)
	}
	return &task, nil
}

// Exists reports whether a task with id is stored.
func (r *Repository) Exists(ctx context.Context, id string) (bool, error) {
	var count int64
	if err := r.db.WithContext(ctx).Model(&domain.Task{}).Where("id = ?", id).Count(&count).Error; err != nil {
		return false, fmt.Errorf("failed to check task: %w", err)
	}
	return count > 0, nil
}

// List returns tasks matching filter ordered by status column then rank.
// Children are not loaded.
func (r *Repository) List(ctx context.Context, filter ListFilter) ([]*domain.Task, error) {
	query := r.db.WithContext(ctx).Model(&domain.Task{})
	if filter.Status != "" {
		query = query.Where("status = ?", filter.Status)
	}
	if filter.CreatorID != "" {
		query = query.Where("creator_id = ?", filter.CreatorID)
	}
	if filter.ParentID != "" {
		query = query.Where("parent_id = ?", filter.ParentID)
	}

	var tasks []*domain.Task
	if err := query.Order("status ASC").Order("sort_order ASC").Order("created_at ASC").Find(&tasks).Error; err != nil {
		return nil, fmt.Errorf("failed to list tasks: %w", err)
	}

	// Assignees and tags are JSON columns; match them after decoding.
	if filter.Assignee == "" && filter.Tag == "" {
		return tasks, nil
	}
	filtered := tasks[:0]
	for _, t := range tasks {
		if filter.Assignee != "" && !t.HasAssignee(filter.Assignee) {
			continue
		}
		if filter.Tag != "" && !t.HasTag(filter.Tag) {
			continue
		}
		filtered = append(filtered, t)
	}
	return filtered, nil
}

// ApplyPlan writes plan.Columns of plan.Next if the stored version still
// equals expectedVersion, and appends activities in the same transaction.
// It returns the stored activities with their sequence numbers.
func (r *Repository) ApplyPlan(ctx context.Context, expectedVersion int64, plan Plan, activities []domain.Activity) ([]domain.Activity, error) {
	var stored []domain.Activity
	err := r.Transaction(ctx, func(tx *Repository) error {
		next := plan.Next
		next.Version = expectedVersion + 1
		next.UpdatedAt = time.Now()
		columns := append([]string{"version", "updated_at"}, plan.Columns...)

		result := tx.db.Model(&domain.Task{}).
			Where("id = ? AND version = ?", next.ID, expectedVersion).
			Select(columns).
			Updates(&next)
		if err := result.Error; err != nil {
			return fmt.Errorf("failed to update task: %w", err)
		}
		if result.RowsAffected == 0 {
			return tx.missingOrConflict(next.ID)
		}

		var err error
		stored, err = tx.appendActivities(next.ID, activities)
		return err
	})
	if err != nil {
		return nil, err
	}
	return stored, nil
}

// SetTags replaces the tag set if the stored version still equals
// expectedVersion, appending activities in the same transaction.
func (r *Repository) SetTags(ctx context.Context, taskID string, expectedVersion int64, tags []string, activities []domain.Activity) ([]domain.Activity, error) {
	var stored []domain.Activity
	err := r.Transaction(ctx, func(tx *Repository) error {
		result := tx.db.Model(&domain.Task{}).
			Where("id = ? AND version = ?", taskID, expectedVersion).
			Select("tags", "version", "updated_at").
			Updates(&domain.Task{Tags: tags, Version: expectedVersion + 1, UpdatedAt: time.Now()})
		if err := result.Error; err != nil {
			return fmt.Errorf("failed to update tags: %w", err)
		}
		if result.RowsAffected == 0 {
			return tx.missingOrConflict(taskID)
		}

		var err error
		stored, err = tx.appendActivities(taskID, activities)
		return err
	})
	if err != nil {
		return nil, err
	}
	return stored, nil
}

// Reorder sets the rank of each task. Unknown ids are skipped; last writer wins.
func (r *Repository) Reorder(ctx context.Context, orders map[string]float64) ([]string, error) {
	var updated []string
	err := r.Transaction(ctx, func(tx *Repository) error {
		for id, order := range orders {
			result := tx.db.Model(&domain.Task{}).Where("id = ?", id).Updates(map[string]any{
				"sort_order": order,
				"version":    gorm.Expr("version + 1"),
			})
			if err := result.Error; err != nil {
				return fmt.Errorf("failed to reorder task %s: %w", id, err)
			}
			if result.RowsAffected > 0 {
				updated = append(updated, id)
			}
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return updated, nil
}

// Delete removes a task with its comments, attachments and activities.
// Subtasks are detached from the deleted parent.
func (r *Repository) Delete(ctx context.Context, id string) error {
	return r.Transaction(ctx, func(tx *Repository) error {
		result := tx.db.Delete(&domain.Task{}, "id = ?", id)
		if err := result.Error; err != nil {
			return fmt.Errorf("failed to delete task: %w", err)
		}
		if result.RowsAffected == 0 {
			return fmt.Errorf("task %s: %w", id, apperror.ErrNotFound)
		}

		for _, child := range []any{&domain.Activity{}, &domain.Comment{}, &domain.Attachment{}} {
			if err := tx.db.Where("task_id = ?", id).Delete(child).Error; err != nil {
				return fmt.Errorf("failed to delete task children: %w", err)
			}
		}
		if err := tx.db.Model(&domain.Task{}).Where("parent_id = ?", id).Update("parent_id", nil).Error; err != nil {
			return fmt.Errorf("failed to detach subtasks: %w", err)
		}
		return nil
	})
}

// AddComment stores a comment and appends activities to its task.
func (r *Repository) AddComment(ctx context.Context, comment *domain.Comment, activities []domain.Activity) ([]domain.Activity, error) {
	var stored []domain.Activity
	err := r.Transaction(ctx, func(tx *Repository) error {
		if err := tx.touch(comment.TaskID); err != nil {
			return err
		}
		if err := tx.db.Create(comment).Error; err != nil {
			return fmt.Errorf("failed to create comment: %w", err)
		}
		var err error
		stored, err = tx.appendActivities(comment.TaskID, activities)
		return err
	})
	if err != nil {
		return nil, err
	}
	return stored, nil
}

// FindComment retrieves a comment belonging to taskID.
func (r *Repository) FindComment(ctx context.Context, taskID, commentID string) (*domain.Comment, error) {
	var comment domain.Comment
	if err := r.db.WithContext(ctx).First(&comment, "id = ? AND task_id = ?", commentID, taskID).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, fmt.Errorf("comment %s: %w", commentID, apperror.ErrNotFound)
		}
		return nil, fmt.Errorf("failed to find comment: %w", err)
	}
	return &comment, nil
}

// UpdateComment writes the editable fields of comment.
func (r *Repository) UpdateComment(ctx context.Context, comment *domain.Comment) error {
	result := r.db.WithContext(ctx).Model(comment).
		Select("content", "mentions", "is_edited", "updated_at").
		Updates(comment)
	if err := result.Error; err != nil {
		return fmt.Errorf("failed to update comment: %w", err)
	}
	if result.RowsAffected == 0 {
		return fmt.Errorf("comment %s: %w", comment.ID, apperror.ErrNotFound)
	}
	return nil
}

// DeleteComment removes a comment.
func (r *Repository) DeleteComment(ctx context.Context, taskID, commentID string) error {
	result := r.db.WithContext(ctx).Delete(&domain.Comment{}, "id = ? AND task_id = ?", commentID, taskID)
	if err := result.Error; err != nil {
		return fmt.Errorf("failed to delete comment: %w", err)
	}
	if result.RowsAffected == 0 {
		return fmt.Errorf("comment %s: %w", commentID, apperror.ErrNotFound)
	}
	return nil
}

// AddAttachment stores attachment metadata and appends activities to its task.
func (r *Repository) AddAttachment(ctx context.Context, attachment *domain.Attachment, activities []domain.Activity) ([]domain.Activity, error) {
	var stored []domain.Activity
	err := r.Transaction(ctx, func(tx *Repository) error {
		if err := tx.touch(attachment.TaskID); err != nil {
			return err
		}
		if err := tx.db.Create(attachment).Error; err != nil {
			return fmt.Errorf("failed to create attachment: %w", err)
		}
		var err error
		stored, err = tx.appendActivities(attachment.TaskID, activities)
		return err
	})
	if err != nil {
		return nil, err
	}
	return stored, nil
}

// FindAttachment retrieves an attachment belonging to taskID.
func (r *Repository) FindAttachment(ctx context.Context, taskID, attachmentID string) (*domain.Attachment, error) {
	var attachment domain.Attachment
	if err := r.db.WithContext(ctx).First(&attachment, "id = ? AND task_id = ?", attachmentID, taskID).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, fmt.Errorf("attachment %s: %w", attachmentID, apperror.ErrNotFound)
		}
		return nil, fmt.Errorf("failed to find attachment: %w", err)
	}
	return &attachment, nil
}

// RemoveAttachment deletes attachment metadata and appends activities.
func (r *Repository) RemoveAttachment(ctx context.Context, taskID, attachmentID string, activities []domain.Activity) ([]domain.Activity, error) {
	var stored []domain.Activity
	err := r.Transaction(ctx, func(tx *Repository) error {
		result := tx.db.Delete(&domain.Attachment{}, "id = ? AND task_id = ?", attachmentID, taskID)
		if err := result.Error; err != nil {
			return fmt.Errorf("failed to delete attachment: %w", err)
		}
		if result.RowsAffected == 0 {
			return fmt.Errorf("attachment %s: %w", attachmentID, apperror.ErrNotFound)
		}
		if err := tx.touch(taskID); err != nil {
			return err
		}
		var err error
		stored, err = tx.appendActivities(taskID, activities)
		return err
	})
	if err != nil {
		return nil, err
	}
	return stored, nil
}

// touch bumps the version of a task so concurrent plans against the old
// snapshot fail their compare-and-swap.
func (r *Repository) touch(taskID string) error {
	result := r.db.Model(&domain.Task{}).Where("id = ?", taskID).Updates(map[string]any{
		"version":    gorm.Expr("version + 1"),
		"updated_at": time.Now(),
	})
	if err := result.Error; err != nil {
		return fmt.Errorf("failed to touch task: %w", err)
	}
	if result.RowsAffected == 0 {
		return fmt.Errorf("task %s: %w", taskID, apperror.ErrNotFound)
	}
	return nil
}

// appendActivities inserts activities after the task's last sequence number.
func (r *Repository) appendActivities(taskID string, activities []domain.Activity) ([]domain.Activity, error) {
	if len(activities) == 0 {
		return nil, nil
	}

	var last int
	if err := r.db.Model(&domain.Activity{}).
		Where("task_id = ?", taskID).
		Select("COALESCE(MAX(seq), 0)").
		Scan(&last).Error; err != nil {
		return nil, fmt.Errorf("failed to read activity sequence: %w", err)
	}

	stored := make([]domain.Activity, len(activities))
	for i, a := range activities {
		a.TaskID = taskID
		a.Seq = last + i + 1
		stored[i] = a
	}
	if err := r.db.Create(&stored).Error; err != nil {
		return nil, fmt.Errorf("failed to append activities: %w", err)
	}
	return stored, nil
}

func (r *Repository) missingOrConflict(taskID string) error {
	var count int64
	if err := r.db.Model(&domain.Task{}).Where("id = ?", taskID).Count(&count).Error; err != nil {
		return fmt.Errorf("failed to check task: %w", err)
	}
	if count == 0 {
		return fmt.Errorf("task %s: %w", taskID, apperror.ErrNotFound)
	}
	return fmt.Errorf("task %s: %w", taskID, apperror.ErrConflict)
}
