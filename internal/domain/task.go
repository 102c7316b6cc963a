// Package domain holds the authoritative Task entity and the invariants
// that every writer (gateway, recurrence worker) must uphold.
package domain

import (
	"unicode/utf8"

	"github.com/gocodealone/taskrecur/internal/apperr"
	"github.com/gocodealone/taskrecur/internal/calendar"
	"github.com/gocodealone/taskrecur/internal/ids"
)

// Priority is one of the four task priority levels.
type Priority string

const (
	PriorityLow    Priority = "low"
	PriorityMedium Priority = "medium"
	PriorityHigh   Priority = "high"
	PriorityUrgent Priority = "urgent"
)

func (p Priority) Valid() bool {
	switch p {
	case PriorityLow, PriorityMedium, PriorityHigh, PriorityUrgent:
		return true
	}
	return false
}

// Task is the authoritative row described in §3. Pointer fields are
// optional columns; a nil pointer is the database NULL.
type Task struct {
	ID       ids.ID
	UserID   ids.ID
	Title    string
	Description string
	Priority Priority
	Tags     []string

	IsCompleted bool
	CreatedAt   calendar.Time
	UpdatedAt   calendar.Time

	DueDate  *calendar.Time
	RemindAt *calendar.Time

	IsRecurring       bool
	RecurrencePattern *calendar.Pattern

	ParentTaskID     *ids.ID
	NextOccurrenceID *ids.ID

	Deleted bool
}

// Validate checks the content invariants from §3: title length, description
// length, priority enum, and the is_recurring<=>recurrence_pattern biconditional.
func (t *Task) Validate() error {
	if t.Title == "" {
		return apperr.ErrEmptyTitle
	}
	if utf8.RuneCountInString(t.Title) > 255 {
		return apperr.ErrTitleTooLong
	}
	if utf8.RuneCountInString(t.Description) > 2000 {
		return apperr.ErrDescriptionTooLong
	}
	if t.Priority != "" && !t.Priority.Valid() {
		return apperr.ErrInvalidPriority
	}
	if t.IsRecurring != (t.RecurrencePattern != nil) {
		return apperr.ErrRecurrenceMismatch
	}
	if t.RecurrencePattern != nil && !t.RecurrencePattern.Valid() {
		return apperr.ErrUnknownPattern
	}
	return nil
}

// CloneForSuccessor copies the fields a recurrence successor inherits from
// its parent: content fields and recurrence metadata, never lineage,
// completion, or scheduling (those are computed fresh by the caller).
func (t *Task) CloneForSuccessor() Task {
	tags := make([]string, len(t.Tags))
	copy(tags, t.Tags)
	return Task{
		Title:             t.Title,
		Description:       t.Description,
		Priority:          t.Priority,
		Tags:              tags,
		IsRecurring:       t.IsRecurring,
		RecurrencePattern: t.RecurrencePattern,
	}
}
