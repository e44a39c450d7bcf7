package task

import (
	"fmt"
	"slices"
	"sort"
	"strings"
	"time"

	domain "github.com/example/collab-tracker/domain/task"
)

// Patch is a partial task update. A nil field is absent from the update;
// ClearDueDate marks an explicit null due date.
type Patch struct {
	Title          *string          `json:"title,omitempty"`
	Description    *string          `json:"description,omitempty"`
	Status         *domain.Status   `json:"status,omitempty"`
	Priority       *domain.Priority `json:"priority,omitempty"`
	Assignees      *[]string        `json:"assignees,omitempty"`
	DueDate        *time.Time       `json:"dueDate,omitempty"`
	ClearDueDate   bool             `json:"clearDueDate,omitempty"`
	StartDate      *time.Time       `json:"startDate,omitempty"`
	EstimatedHours *float64         `json:"estimatedHours,omitempty"`
	ActualHours    *float64         `json:"actualHours,omitempty"`
	ParentID       *string          `json:"parentId,omitempty"`
	Order          *float64         `json:"order,omitempty"`
}

func (p *Patch) hasDueDate() bool {
	return p.DueDate != nil || p.ClearDueDate
}

// FieldNames lists the fields present in the patch in a fixed order.
func (p *Patch) FieldNames() []string {
	var names []string
	add := func(present bool, name string) {
		if present {
			names = append(names, name)
		}
	}
	add(p.Title != nil, "title")
	add(p.Description != nil, "description")
	add(p.Status != nil, "status")
	add(p.Priority != nil, "priority")
	add(p.Assignees != nil, "assignees")
	add(p.hasDueDate(), "dueDate")
	add(p.StartDate != nil, "startDate")
	add(p.EstimatedHours != nil, "estimatedHours")
	add(p.ActualHours != nil, "actualHours")
	add(p.ParentID != nil, "parentId")
	add(p.Order != nil, "order")
	return names
}

// IsEmpty reports whether the patch carries no field at all.
func (p *Patch) IsEmpty() bool {
	return len(p.FieldNames()) == 0
}

// Change is an activity computed from a patch, before it is attributed to
// an actor and stored.
type Change struct {
	Type        domain.ActivityType
	Description string
	Metadata    map[string]any
}

// rule inspects one concern of a patch against the current task.
type rule func(current *domain.Task, patch *Patch) []Change

// rules run in this order and every rule that applies contributes.
var rules = []rule{
	statusRule,
	priorityRule,
	dueDateRule,
	assigneesRule,
}

// Diff computes the activities implied by applying patch to current.
// When no rule fires, a single updated activity names the fields whose
// value differs; a patch that changes nothing yields no activity.
func Diff(current *domain.Task, patch *Patch) []Change {
	var changes []Change
	for _, r := range rules {
		changes = append(changes, r(current, patch)...)
	}
	if len(changes) > 0 {
		return changes
	}
	if fields := changedFields(current, patch); len(fields) > 0 {
		changes = append(changes, Change{
			Type:        domain.ActivityUpdated,
			Description: "updated " + strings.Join(fields, ", "),
			Metadata:    map[string]any{"fields": fields},
		})
	}
	return changes
}

// changedFields lists, in FieldNames order, the patch fields whose value
// differs from current. Due dates compare by calendar day.
func changedFields(current *domain.Task, patch *Patch) []string {
	var names []string
	add := func(changed bool, name string) {
		if changed {
			names = append(names, name)
		}
	}
	add(patch.Title != nil && *patch.Title != current.Title, "title")
	add(patch.Description != nil && *patch.Description != current.Description, "description")
	add(patch.Status != nil && *patch.Status != current.Status, "status")
	add(patch.Priority != nil && *patch.Priority != current.Priority, "priority")
	add(patch.Assignees != nil && !slices.Equal(dedupe(*patch.Assignees), current.Assignees), "assignees")
	if patch.hasDueDate() {
		var proposed *time.Time
		if !patch.ClearDueDate {
			proposed = patch.DueDate
		}
		add(calendarDay(proposed) != calendarDay(current.DueDate), "dueDate")
	}
	add(patch.StartDate != nil && !sameTime(patch.StartDate, current.StartDate), "startDate")
	add(patch.EstimatedHours != nil && !samePtr(patch.EstimatedHours, current.EstimatedHours), "estimatedHours")
	add(patch.ActualHours != nil && !samePtr(patch.ActualHours, current.ActualHours), "actualHours")
	add(patch.ParentID != nil && !samePtr(patch.ParentID, current.ParentID), "parentId")
	add(patch.Order != nil && *patch.Order != current.Order, "order")
	return names
}

func sameTime(a, b *time.Time) bool {
	if a == nil || b == nil {
		return a == b
	}
	return a.Equal(*b)
}

func samePtr[T comparable](a, b *T) bool {
	if a == nil || b == nil {
		return a == b
	}
	return *a == *b
}

func statusRule(current *domain.Task, patch *Patch) []Change {
	if patch.Status == nil || *patch.Status == current.Status {
		return nil
	}
	return []Change{{
		Type:        domain.ActivityStatusChanged,
		Description: fmt.Sprintf("changed status from %s to %s", current.Status, *patch.Status),
		Metadata:    map[string]any{"from": string(current.Status), "to": string(*patch.Status)},
	}}
}

func priorityRule(current *domain.Task, patch *Patch) []Change {
	if patch.Priority == nil || *patch.Priority == current.Priority {
		return nil
	}
	return []Change{{
		Type:        domain.ActivityPriorityChanged,
		Description: fmt.Sprintf("changed priority from %s to %s", current.Priority, *patch.Priority),
		Metadata:    map[string]any{"from": string(current.Priority), "to": string(*patch.Priority)},
	}}
}

func dueDateRule(current *domain.Task, patch *Patch) []Change {
	if !patch.hasDueDate() {
		return nil
	}
	var proposed *time.Time
	if !patch.ClearDueDate {
		proposed = patch.DueDate
	}
	from, to := calendarDay(current.DueDate), calendarDay(proposed)
	if from == to {
		return nil
	}

	var description string
	switch {
	case to == "":
		description = "removed the due date"
	case from == "":
		description = "set the due date to " + to
	default:
		description = fmt.Sprintf("changed the due date from %s to %s", from, to)
	}
	return []Change{{
		Type:        domain.ActivityDueDateChanged,
		Description: description,
		Metadata:    map[string]any{"from": nullable(from), "to": nullable(to)},
	}}
}

func assigneesRule(current *domain.Task, patch *Patch) []Change {
	if patch.Assignees == nil {
		return nil
	}
	added, removed := symmetricDifference(current.Assignees, *patch.Assignees)

	var changes []Change
	if len(added) > 0 {
		changes = append(changes, Change{
			Type:        domain.ActivityAssigned,
			Description: "assigned " + strings.Join(added, ", "),
			Metadata:    map[string]any{"added": added},
		})
	}
	if len(removed) > 0 {
		changes = append(changes, Change{
			Type:        domain.ActivityUnassigned,
			Description: "unassigned " + strings.Join(removed, ", "),
			Metadata:    map[string]any{"removed": removed},
		})
	}
	return changes
}

// calendarDay normalizes t to YYYY-MM-DD in UTC, or "" when absent.
func calendarDay(t *time.Time) string {
	if t == nil || t.IsZero() {
		return ""
	}
	return t.UTC().Format(time.DateOnly)
}

func nullable(day string) any {
	if day == "" {
		return nil
	}
	return day
}

// symmetricDifference returns the sorted ids present only in next (added)
// and only in prev (removed).
func symmetricDifference(prev, next []string) (added, removed []string) {
	prevSet := toSet(prev)
	nextSet := toSet(next)
	for id := range nextSet {
		if _, ok := prevSet[id]; !ok {
			added = append(added, id)
		}
	}
	for id := range prevSet {
		if _, ok := nextSet[id]; !ok {
			removed = append(removed, id)
		}
	}
	sort.Strings(added)
	sort.Strings(removed)
	return added, removed
}

func toSet(ids []string) map[string]struct{} {
	set := make(map[string]struct{}, len(ids))
	for _, id := range ids {
		set[id] = struct{}{}
	}
	return set
}

// dedupe keeps the first occurrence of every id, preserving order.
func dedupe(ids []string) []string {
	seen := make(map[string]struct{}, len(ids))
	out := make([]string, 0, len(ids))
	for _, id := range ids {
		if id == "" {
			continue
		}
		if _, ok := seen[id]; ok {
			continue
		}
		seen[id] = struct{}{}
		out = append(out, id)
	}
	return out
}

// Plan is a patch resolved against a task snapshot: the row to write, the
// columns to write, and the activities to append with it.
type Plan struct {
	Next    domain.Task
	Columns []string
	Changes []Change
}

// NewPlan applies patch to a copy of current. Moving into done stamps
// CompletedAt with now unless already set; moving out of done clears it.
func NewPlan(current *domain.Task, patch *Patch, now time.Time) Plan {
	next := *current
	next.Comments, next.Attachments, next.Activities, next.Subtasks = nil, nil, nil, nil

	var columns []string
	set := func(present bool, column string, apply func()) {
		if present {
			apply()
			columns = append(columns, column)
		}
	}

	set(patch.Title != nil, "title", func() { next.Title = *patch.Title })
	set(patch.Description != nil, "description", func() { next.Description = *patch.Description })
	set(patch.Status != nil, "status", func() { next.Status = *patch.Status })
	set(patch.Priority != nil, "priority", func() { next.Priority = *patch.Priority })
	set(patch.Assignees != nil, "assignees", func() { next.Assignees = dedupe(*patch.Assignees) })
	set(patch.hasDueDate(), "due_date", func() {
		if patch.ClearDueDate {
			next.DueDate = nil
		} else {
			next.DueDate = patch.DueDate
		}
	})
	set(patch.StartDate != nil, "start_date", func() { next.StartDate = patch.StartDate })
	set(patch.EstimatedHours != nil, "estimated_hours", func() { next.EstimatedHours = patch.EstimatedHours })
	set(patch.ActualHours != nil, "actual_hours", func() { next.ActualHours = patch.ActualHours })
	set(patch.ParentID != nil, "parent_id", func() { next.ParentID = patch.ParentID })
	set(patch.Order != nil, "sort_order", func() { next.Order = *patch.Order })

	if patch.Status != nil {
		switch {
		case next.Status == domain.StatusDone && current.CompletedAt == nil:
			completed := now
			next.CompletedAt = &completed
			columns = append(columns, "completed_at")
		case next.Status != domain.StatusDone && current.CompletedAt != nil:
			next.CompletedAt = nil
			columns = append(columns, "completed_at")
		}
	}

	return Plan{
		Next:    next,
		Columns: columns,
		Changes: Diff(current, patch),
	}
}
