package store

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/lib/pq"

	"github.com/gocodealone/taskrecur/internal/calendar"
	"github.com/gocodealone/taskrecur/internal/ids"
)

// ReminderStatus mirrors the lifecycle a reminders row moves through.
type ReminderStatus string

const (
	ReminderScheduled ReminderStatus = "scheduled"
	ReminderFired     ReminderStatus = "fired"
	ReminderCancelled ReminderStatus = "cancelled"
	ReminderFailed    ReminderStatus = "failed"
)

// Reminder is the scheduler's mirror of one task's remind_at commitment,
// kept separately from the tasks table so the scheduler can recover its
// in-memory timer set after a restart without scanning every task.
type Reminder struct {
	TaskID   ids.ID
	UserID   ids.ID
	FireAt   calendar.Time
	Channels []string
	Status   ReminderStatus
}

// ReminderStore is the sole data-access path to the reminders table.
type ReminderStore struct {
	db *sql.DB
}

func NewReminderStore(db *sql.DB) *ReminderStore {
	return &ReminderStore{db: db}
}

// Upsert inserts or replaces the reminder row for r.TaskID, the operation
// the gateway and recurrence worker both call whenever a task's remind_at
// changes.
func (s *ReminderStore) Upsert(ctx context.Context, r Reminder) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO reminders (task_id, user_id, fire_at, channels, status)
		VALUES ($1,$2,$3,$4,$5)
		ON CONFLICT (task_id) DO UPDATE SET
			fire_at = EXCLUDED.fire_at,
			channels = EXCLUDED.channels,
			status = EXCLUDED.status
	`, r.TaskID, r.UserID, r.FireAt.Std(), pq.StringArray(r.Channels), string(r.Status))
	if err != nil {
		return fmt.Errorf("upserting reminder: %w", err)
	}
	return nil
}

// Cancel marks a reminder cancelled rather than deleting the row, so a
// restarted scheduler's recovery pass, which loads only scheduled rows, does
// not re-register it. A running scheduler is not told about the change and
// keeps the reminder in its in-memory pending set.
func (s *ReminderStore) Cancel(ctx context.Context, taskID ids.ID) error {
	_, err := s.db.ExecContext(ctx, `UPDATE reminders SET status=$1 WHERE task_id=$2`, string(ReminderCancelled), taskID)
	if err != nil {
		return fmt.Errorf("cancelling reminder: %w", err)
	}
	return nil
}

// MarkFired records that a reminder's notification was delivered.
func (s *ReminderStore) MarkFired(ctx context.Context, taskID ids.ID) error {
	_, err := s.db.ExecContext(ctx, `UPDATE reminders SET status=$1 WHERE task_id=$2`, string(ReminderFired), taskID)
	if err != nil {
		return fmt.Errorf("marking reminder fired: %w", err)
	}
	return nil
}

// MarkFailed records that a reminder could not be delivered, leaving it
// visible to operators without blocking the scheduler's recovery scan.
func (s *ReminderStore) MarkFailed(ctx context.Context, taskID ids.ID) error {
	_, err := s.db.ExecContext(ctx, `UPDATE reminders SET status=$1 WHERE task_id=$2`, string(ReminderFailed), taskID)
	if err != nil {
		return fmt.Errorf("marking reminder failed: %w", err)
	}
	return nil
}

// ListScheduled returns every reminder still awaiting delivery, ordered by
// fire_at ascending, the query the scheduler runs once at startup to
// rebuild its timer set after a restart.
func (s *ReminderStore) ListScheduled(ctx context.Context) ([]Reminder, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT task_id, user_id, fire_at, channels, status FROM reminders
		WHERE status = $1 ORDER BY fire_at ASC
	`, string(ReminderScheduled))
	if err != nil {
		return nil, fmt.Errorf("listing scheduled reminders: %w", err)
	}
	defer rows.Close()

	var out []Reminder
	for rows.Next() {
		var r Reminder
		var fireAt sql.NullTime
		var channels pq.StringArray
		var status string
		if err := rows.Scan(&r.TaskID, &r.UserID, &fireAt, &channels, &status); err != nil {
			return nil, fmt.Errorf("scanning reminder: %w", err)
		}
		r.FireAt = calendar.MustFrom(fireAt.Time)
		r.Channels = []string(channels)
		r.Status = ReminderStatus(status)
		out = append(out, r)
	}
	return out, rows.Err()
}
