package store

import (
	"context"
	"testing"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/lib/pq"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/gocodealone/taskrecur/internal/calendar"
	"github.com/gocodealone/taskrecur/internal/domain"
	"github.com/gocodealone/taskrecur/internal/ids"
)

func newMockStore(t *testing.T) (*TaskStore, sqlmock.Sqlmock) {
	t.Helper()
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })
	return NewTaskStore(db), mock
}

var taskColumnNames = []string{
	"task_id", "user_id", "title", "description", "priority", "tags", "is_completed",
	"created_at", "updated_at", "due_date", "remind_at", "is_recurring", "recurrence_pattern",
	"parent_task_id", "next_occurrence_id", "deleted",
}

func TestTaskStore_Get_ReturnsErrNotFoundOnMiss(t *testing.T) {
	store, mock := newMockStore(t)
	taskID := ids.New()

	mock.ExpectQuery("SELECT .* FROM tasks WHERE task_id").
		WithArgs(taskID).
		WillReturnRows(sqlmock.NewRows(taskColumnNames))

	_, err := store.Get(context.Background(), taskID)
	assert.ErrorIs(t, err, ErrNotFound)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestTaskStore_Get_ScansFullRow(t *testing.T) {
	store, mock := newMockStore(t)
	taskID, userID := ids.New(), ids.New()
	now := calendar.Now().Std()

	rows := sqlmock.NewRows(taskColumnNames).AddRow(
		taskID, userID, "Water plants", "", "medium", pq.StringArray{}, false,
		now, now, nil, nil, false, nil,
		nil, nil, false,
	)

	mock.ExpectQuery("SELECT .* FROM tasks WHERE task_id").
		WithArgs(taskID).
		WillReturnRows(rows)

	task, err := store.Get(context.Background(), taskID)
	require.NoError(t, err)
	assert.Equal(t, taskID, task.ID)
	assert.Equal(t, userID, task.UserID)
	assert.Equal(t, "Water plants", task.Title)
	assert.Nil(t, task.DueDate)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestTaskStore_Get_DecodesOptionalFields(t *testing.T) {
	store, mock := newMockStore(t)
	taskID, userID, parentID := ids.New(), ids.New(), ids.New()
	now := calendar.Now().Std()

	rows := sqlmock.NewRows(taskColumnNames).AddRow(
		taskID, userID, "Pay rent", "monthly wire", "high", pq.StringArray{"finance"}, false,
		now, now, now, now, true, "monthly",
		parentID.String(), nil, false,
	)

	mock.ExpectQuery("SELECT .* FROM tasks WHERE task_id").
		WithArgs(taskID).
		WillReturnRows(rows)

	task, err := store.Get(context.Background(), taskID)
	require.NoError(t, err)
	require.NotNil(t, task.DueDate)
	require.NotNil(t, task.RemindAt)
	require.NotNil(t, task.RecurrencePattern)
	assert.Equal(t, calendar.Monthly, *task.RecurrencePattern)
	require.NotNil(t, task.ParentTaskID)
	assert.Equal(t, parentID, *task.ParentTaskID)
	assert.Equal(t, []string{"finance"}, task.Tags)
}

func TestTaskStore_Insert_SendsAllColumns(t *testing.T) {
	store, mock := newMockStore(t)
	task := domain.Task{
		ID:        ids.New(),
		UserID:    ids.New(),
		Title:     "New task",
		Priority:  domain.PriorityMedium,
		CreatedAt: calendar.Now(),
		UpdatedAt: calendar.Now(),
	}

	mock.ExpectExec("INSERT INTO tasks").
		WithArgs(task.ID, task.UserID, task.Title, task.Description, task.Priority, sqlmock.AnyArg(), task.IsCompleted,
			sqlmock.AnyArg(), sqlmock.AnyArg(), nil, nil, task.IsRecurring, nil, nil, nil, task.Deleted).
		WillReturnResult(sqlmock.NewResult(0, 1))

	err := store.Insert(context.Background(), task)
	require.NoError(t, err)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestRequireRowAffected_ErrorsOnZeroRows(t *testing.T) {
	err := requireRowAffected(sqlmock.NewResult(0, 0))
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestRequireRowAffected_OKOnOneRow(t *testing.T) {
	err := requireRowAffected(sqlmock.NewResult(0, 1))
	assert.NoError(t, err)
}

func TestSetNextOccurrenceIfNull_ReturnsFalseWhenAlreadySet(t *testing.T) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer db.Close()

	parentID, successorID := ids.New(), ids.New()
	mock.ExpectBegin()
	mock.ExpectExec("UPDATE tasks SET next_occurrence_id").
		WithArgs(successorID, parentID).
		WillReturnResult(sqlmock.NewResult(0, 0))

	tx, err := db.Begin()
	require.NoError(t, err)
	ok, err := SetNextOccurrenceIfNull(context.Background(), tx, parentID, successorID)
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestSetNextOccurrenceIfNull_ReturnsTrueOnFirstWinner(t *testing.T) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer db.Close()

	parentID, successorID := ids.New(), ids.New()
	mock.ExpectBegin()
	mock.ExpectExec("UPDATE tasks SET next_occurrence_id").
		WithArgs(successorID, parentID).
		WillReturnResult(sqlmock.NewResult(0, 1))

	tx, err := db.Begin()
	require.NoError(t, err)
	ok, err := SetNextOccurrenceIfNull(context.Background(), tx, parentID, successorID)
	require.NoError(t, err)
	assert.True(t, ok)
}
