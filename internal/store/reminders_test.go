package store

import (
	"context"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/lib/pq"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/gocodealone/taskrecur/internal/calendar"
	"github.com/gocodealone/taskrecur/internal/ids"
)

func newMockReminderStore(t *testing.T) (*ReminderStore, sqlmock.Sqlmock) {
	t.Helper()
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })
	return NewReminderStore(db), mock
}

func TestReminderStore_Upsert(t *testing.T) {
	store, mock := newMockReminderStore(t)
	r := Reminder{
		TaskID:   ids.New(),
		UserID:   ids.New(),
		FireAt:   calendar.Now(),
		Channels: []string{"push"},
		Status:   ReminderScheduled,
	}

	mock.ExpectExec("INSERT INTO reminders").
		WithArgs(r.TaskID, r.UserID, sqlmock.AnyArg(), sqlmock.AnyArg(), string(ReminderScheduled)).
		WillReturnResult(sqlmock.NewResult(0, 1))

	require.NoError(t, store.Upsert(context.Background(), r))
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestReminderStore_Cancel(t *testing.T) {
	store, mock := newMockReminderStore(t)
	taskID := ids.New()

	mock.ExpectExec("UPDATE reminders SET status").
		WithArgs(string(ReminderCancelled), taskID).
		WillReturnResult(sqlmock.NewResult(0, 1))

	require.NoError(t, store.Cancel(context.Background(), taskID))
}

func TestReminderStore_ListScheduled_OrdersByFireAtAscending(t *testing.T) {
	store, mock := newMockReminderStore(t)
	taskA, taskB := ids.New(), ids.New()
	userID := ids.New()
	earlier := calendar.Now().Std()
	later := earlier.Add(24 * time.Hour)

	rows := sqlmock.NewRows([]string{"task_id", "user_id", "fire_at", "channels", "status"}).
		AddRow(taskA, userID, earlier, pq.StringArray{"push"}, string(ReminderScheduled)).
		AddRow(taskB, userID, later, pq.StringArray{"push"}, string(ReminderScheduled))

	mock.ExpectQuery("SELECT task_id, user_id, fire_at, channels, status FROM reminders").
		WithArgs(string(ReminderScheduled)).
		WillReturnRows(rows)

	reminders, err := store.ListScheduled(context.Background())
	require.NoError(t, err)
	require.Len(t, reminders, 2)
	assert.Equal(t, taskA, reminders[0].TaskID)
	assert.Equal(t, taskB, reminders[1].TaskID)
	assert.True(t, reminders[0].FireAt.Before(reminders[1].FireAt))
}
