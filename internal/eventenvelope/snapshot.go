package eventenvelope

import (
	"github.com/gocodealone/taskrecur/internal/domain"
	"github.com/gocodealone/taskrecur/internal/ids"
)

// SnapshotOf renders a domain.Task into its wire TaskSnapshot form,
// converting opaque identifiers to canonical strings and timestamps to
// ISO-8601, per the wire-format invariants in §3 and §6.
func SnapshotOf(t domain.Task, changedFields ...string) TaskSnapshot {
	s := TaskSnapshot{
		TaskID:      ids.Canonical(t.ID),
		UserID:      ids.Canonical(t.UserID),
		Title:       t.Title,
		Description: t.Description,
		Priority:    string(t.Priority),
		Tags:        t.Tags,
		IsCompleted: t.IsCompleted,
		CreatedAt:   t.CreatedAt.ISO8601(),
		UpdatedAt:   t.UpdatedAt.ISO8601(),
		IsRecurring: t.IsRecurring,
	}
	if t.DueDate != nil {
		v := t.DueDate.ISO8601()
		s.DueDate = &v
	}
	if t.RemindAt != nil {
		v := t.RemindAt.ISO8601()
		s.RemindAt = &v
	}
	if t.RecurrencePattern != nil {
		v := string(*t.RecurrencePattern)
		s.RecurrencePattern = &v
	}
	if t.ParentTaskID != nil {
		v := ids.Canonical(*t.ParentTaskID)
		s.ParentTaskID = &v
	}
	if t.NextOccurrenceID != nil {
		v := ids.Canonical(*t.NextOccurrenceID)
		s.NextOccurrenceID = &v
	}
	if len(changedFields) > 0 {
		s.ChangedFields = changedFields
	}
	return s
}
