package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/lib/pq"

	"github.com/gocodealone/taskrecur/internal/calendar"
	"github.com/gocodealone/taskrecur/internal/domain"
	"github.com/gocodealone/taskrecur/internal/ids"
)

// TaskStore is the sole data-access path to the tasks table. Its methods
// correspond to the ownership split in §3: the gateway calls the
// non-lineage methods, the recurrence worker calls Insert and
// SetNextOccurrenceIfNull inside one transaction.
type TaskStore struct {
	db *sql.DB
}

func NewTaskStore(db *sql.DB) *TaskStore {
	return &TaskStore{db: db}
}

const taskColumns = `task_id, user_id, title, description, priority, tags, is_completed,
	created_at, updated_at, due_date, remind_at, is_recurring, recurrence_pattern,
	parent_task_id, next_occurrence_id, deleted`

func scanTask(row interface{ Scan(...any) error }) (domain.Task, error) {
	var t domain.Task
	var tags pq.StringArray
	var pattern sql.NullString
	var dueDate, remindAt sql.NullTime
	var parentID, nextID sql.NullString
	var createdAt, updatedAt time.Time

	err := row.Scan(
		&t.ID, &t.UserID, &t.Title, &t.Description, &t.Priority, &tags, &t.IsCompleted,
		&createdAt, &updatedAt, &dueDate, &remindAt, &t.IsRecurring, &pattern,
		&parentID, &nextID, &t.Deleted,
	)
	if err != nil {
		return domain.Task{}, err
	}
	t.CreatedAt = calendar.MustFrom(createdAt)
	t.UpdatedAt = calendar.MustFrom(updatedAt)
	t.Tags = []string(tags)
	if pattern.Valid {
		p := calendar.Pattern(pattern.String)
		t.RecurrencePattern = &p
	}
	if dueDate.Valid {
		ct := calendar.MustFrom(dueDate.Time)
		t.DueDate = &ct
	}
	if remindAt.Valid {
		ct := calendar.MustFrom(remindAt.Time)
		t.RemindAt = &ct
	}
	if parentID.Valid {
		pid, err := ids.Parse(parentID.String)
		if err != nil {
			return domain.Task{}, fmt.Errorf("parsing parent_task_id: %w", err)
		}
		t.ParentTaskID = &pid
	}
	if nextID.Valid {
		nid, err := ids.Parse(nextID.String)
		if err != nil {
			return domain.Task{}, fmt.Errorf("parsing next_occurrence_id: %w", err)
		}
		t.NextOccurrenceID = &nid
	}
	return t, nil
}

// ErrNotFound is returned when a task lookup misses.
var ErrNotFound = errors.New("store: task not found")

// Insert writes a new task row outside any transaction, the path the
// gateway uses for a plain create.
func (s *TaskStore) Insert(ctx context.Context, t domain.Task) error {
	return Insert(ctx, s.db, t)
}

// InsertTx writes a new task row inside tx, the path the recurrence worker
// uses so the successor insert and the parent's next_occurrence_id update
// commit atomically together.
func InsertTx(ctx context.Context, tx *sql.Tx, t domain.Task) error {
	return Insert(ctx, tx, t)
}

// Insert writes a new task row. Used by both the gateway (create) and the
// recurrence worker (successor creation), the latter always inside a
// transaction obtained from BeginTx.
func Insert(ctx context.Context, q queryer, t domain.Task) error {
	var patternStr *string
	if t.RecurrencePattern != nil {
		s := string(*t.RecurrencePattern)
		patternStr = &s
	}
	var dueDate, remindAt *calendarTimeValue
	if t.DueDate != nil {
		v := calendarTimeValue(*t.DueDate)
		dueDate = &v
	}
	if t.RemindAt != nil {
		v := calendarTimeValue(*t.RemindAt)
		remindAt = &v
	}
	var parentID, nextID *string
	if t.ParentTaskID != nil {
		s := ids.Canonical(*t.ParentTaskID)
		parentID = &s
	}
	if t.NextOccurrenceID != nil {
		s := ids.Canonical(*t.NextOccurrenceID)
		nextID = &s
	}
	tags := pq.StringArray(t.Tags)
	if tags == nil {
		tags = pq.StringArray{}
	}

	_, err := q.ExecContext(ctx, `
		INSERT INTO tasks (`+taskColumns+`)
		VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11,$12,$13,$14,$15,$16)
	`,
		t.ID, t.UserID, t.Title, t.Description, t.Priority, tags, t.IsCompleted,
		t.CreatedAt.Std(), t.UpdatedAt.Std(), nullableTime(dueDate), nullableTime(remindAt),
		t.IsRecurring, patternStr, parentID, nextID, t.Deleted,
	)
	if err != nil {
		return fmt.Errorf("inserting task: %w", err)
	}
	return nil
}

// queryer is satisfied by both *sql.DB and *sql.Tx.
type queryer interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
}

type calendarTimeValue calendar.Time

func nullableTime(v *calendarTimeValue) any {
	if v == nil {
		return nil
	}
	ct := calendar.Time(*v)
	return ct.Std()
}

// Get fetches a task by id without locking, for reads that don't mutate.
func (s *TaskStore) Get(ctx context.Context, taskID ids.ID) (domain.Task, error) {
	row := s.db.QueryRowContext(ctx, `SELECT `+taskColumns+` FROM tasks WHERE task_id = $1 AND deleted = FALSE`, taskID)
	t, err := scanTask(row)
	if errors.Is(err, sql.ErrNoRows) {
		return domain.Task{}, ErrNotFound
	}
	if err != nil {
		return domain.Task{}, fmt.Errorf("querying task: %w", err)
	}
	return t, nil
}

// GetForUpdate fetches a task row and takes a row-level lock within tx, the
// serialization point for concurrent completions described in §4.2.
func GetForUpdate(ctx context.Context, tx *sql.Tx, taskID ids.ID) (domain.Task, error) {
	row := tx.QueryRowContext(ctx, `SELECT `+taskColumns+` FROM tasks WHERE task_id = $1 AND deleted = FALSE FOR UPDATE`, taskID)
	t, err := scanTask(row)
	if errors.Is(err, sql.ErrNoRows) {
		return domain.Task{}, ErrNotFound
	}
	if err != nil {
		return domain.Task{}, fmt.Errorf("querying task for update: %w", err)
	}
	return t, nil
}

// UpdateContent persists a content edit (title/description/priority/tags/
// due_date/remind_at/is_recurring/recurrence_pattern) and bumps updated_at.
// Lineage fields are never touched here.
func (s *TaskStore) UpdateContent(ctx context.Context, t domain.Task) error {
	var dueDate, remindAt, pattern any
	if t.DueDate != nil {
		dueDate = t.DueDate.Std()
	}
	if t.RemindAt != nil {
		remindAt = t.RemindAt.Std()
	}
	if t.RecurrencePattern != nil {
		pattern = string(*t.RecurrencePattern)
	}
	res, err := s.db.ExecContext(ctx, `
		UPDATE tasks SET title=$1, description=$2, priority=$3, tags=$4,
			due_date=$5, remind_at=$6, is_recurring=$7, recurrence_pattern=$8, updated_at=$9
		WHERE task_id = $10 AND deleted = FALSE
	`, t.Title, t.Description, t.Priority, pq.StringArray(t.Tags), dueDate, remindAt,
		t.IsRecurring, pattern, t.UpdatedAt.Std(), t.ID)
	if err != nil {
		return fmt.Errorf("updating task content: %w", err)
	}
	return requireRowAffected(res)
}

// SetCompleted toggles is_completed and bumps updated_at, inside a
// transaction the caller has already opened with GetForUpdate's lock held.
func SetCompleted(ctx context.Context, tx *sql.Tx, taskID ids.ID, completed bool, now calendar.Time) error {
	res, err := tx.ExecContext(ctx, `
		UPDATE tasks SET is_completed=$1, updated_at=$2 WHERE task_id=$3 AND deleted = FALSE
	`, completed, now.Std(), taskID)
	if err != nil {
		return fmt.Errorf("setting completion: %w", err)
	}
	return requireRowAffected(res)
}

// Tombstone marks a task deleted without physically removing the row,
// preserving lineage for any successor that already references it.
func (s *TaskStore) Tombstone(ctx context.Context, taskID ids.ID, now calendar.Time) error {
	res, err := s.db.ExecContext(ctx, `
		UPDATE tasks SET deleted=TRUE, updated_at=$1 WHERE task_id=$2 AND deleted = FALSE
	`, now.Std(), taskID)
	if err != nil {
		return fmt.Errorf("tombstoning task: %w", err)
	}
	return requireRowAffected(res)
}

// SetNextOccurrenceIfNull atomically assigns successorID to parent's
// next_occurrence_id only if it is still null, returning false without
// error if a successor already exists — the idempotency check at the heart
// of the recurrence worker's at-least-once handling.
func SetNextOccurrenceIfNull(ctx context.Context, tx *sql.Tx, parentID, successorID ids.ID) (bool, error) {
	res, err := tx.ExecContext(ctx, `
		UPDATE tasks SET next_occurrence_id=$1 WHERE task_id=$2 AND next_occurrence_id IS NULL
	`, successorID, parentID)
	if err != nil {
		return false, fmt.Errorf("setting next_occurrence_id: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, err
	}
	return n == 1, nil
}

// BeginTx opens a transaction for multi-statement operations (completion
// toggle, recurrence successor creation).
func (s *TaskStore) BeginTx(ctx context.Context) (*sql.Tx, error) {
	return s.db.BeginTx(ctx, nil)
}

func requireRowAffected(res sql.Result) error {
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return ErrNotFound
	}
	return nil
}
