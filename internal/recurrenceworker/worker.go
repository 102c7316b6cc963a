// Package recurrenceworker implements the Recurrence Worker (R): the
// consumer of task.completed that is responsible for creating the next occurrence
// of a recurring task with calendar-aware arithmetic and idempotent
// successor creation under at-least-once redelivery.
package recurrenceworker

import (
	"context"
	"database/sql"
	"errors"

	"github.com/gocodealone/taskrecur/internal/apperr"
	"github.com/gocodealone/taskrecur/internal/applog"
	"github.com/gocodealone/taskrecur/internal/calendar"
	"github.com/gocodealone/taskrecur/internal/domain"
	"github.com/gocodealone/taskrecur/internal/eventenvelope"
	"github.com/gocodealone/taskrecur/internal/ids"
	"github.com/gocodealone/taskrecur/internal/messaging"
	"github.com/gocodealone/taskrecur/internal/store"
)

// Worker consumes task.completed and, for a recurring task, produces the
// next occurrence.
type Worker struct {
	db        *sql.DB
	reminders *store.ReminderStore
	bus       *messaging.Bus
	logger    applog.Logger
}

func New(db *sql.DB, reminders *store.ReminderStore, bus *messaging.Bus, logger applog.Logger) *Worker {
	return &Worker{db: db, reminders: reminders, bus: bus, logger: logger}
}

// Subscribe registers Handle against task-events for task.completed.
func (w *Worker) Subscribe() {
	w.bus.Subscribe(eventenvelope.TopicTaskEvents, w.Handle)
}

// Handle dispatches only task.completed events; every other event_type on
// the shared topic is acknowledged untouched.
func (w *Worker) Handle(ctx context.Context, env eventenvelope.Envelope) messaging.Outcome {
	if env.EventType != eventenvelope.TaskCompleted {
		return messaging.ACK
	}
	if err := w.handleCompletion(ctx, env); err != nil {
		w.logger.Warn("recurrence handling failed", "task_id", env.TaskID, "error", err)
		return messaging.ClassifyConsumerError(err)
	}
	return messaging.ACK
}

// handleCompletion loads the completed task, and if it is recurring and has
// not yet spawned a successor, computes and inserts the next occurrence
// transactionally.
func (w *Worker) handleCompletion(ctx context.Context, env eventenvelope.Envelope) error {
	snap, err := env.DecodeTaskSnapshot()
	if err != nil {
		return apperr.Wrap(apperr.KindValidation, "decoding task.completed payload", err)
	}
	if !snap.IsCompleted {
		// A redelivered stale snapshot with is_completed=false for what is
		// now a completed task: nothing to do, and definitely not a reason
		// to spawn a second successor.
		return nil
	}

	tx, err := w.db.BeginTx(ctx, nil)
	if err != nil {
		return apperr.Wrap(apperr.KindConsumerProcessing, "beginning recurrence transaction", err)
	}
	defer tx.Rollback()

	parent, err := store.GetForUpdate(ctx, tx, env.TaskID)
	if errors.Is(err, store.ErrNotFound) {
		// The task was hard-deleted or never existed; a completed task the
		// gateway doesn't know about is not this worker's problem to retry.
		return nil
	}
	if err != nil {
		return apperr.Wrap(apperr.KindConsumerProcessing, "fetching parent task", err)
	}

	if !parent.IsRecurring || parent.RecurrencePattern == nil {
		return nil
	}
	if parent.NextOccurrenceID != nil {
		// Already handled by a prior delivery of this same event.
		return nil
	}
	anchor := parent.DueDate
	if anchor == nil {
		n := calendar.Now()
		anchor = &n
	}

	nextDue, err := calendar.NextOccurrence(*anchor, *parent.RecurrencePattern)
	if err != nil {
		return apperr.Wrap(apperr.KindValidation, "computing next occurrence", err)
	}

	successor := parent.CloneForSuccessor()
	successor.ID = ids.New()
	successor.UserID = parent.UserID
	now := calendar.Now()
	successor.CreatedAt = now
	successor.UpdatedAt = now
	successor.DueDate = &nextDue
	successor.ParentTaskID = &parent.ID

	if parent.RemindAt != nil {
		offset := calendar.Offset(*anchor, *parent.RemindAt)
		nextRemind := calendar.ApplyPreservedOffset(nextDue, offset)
		successor.RemindAt = &nextRemind
	}

	if err := successor.Validate(); err != nil {
		return apperr.Wrap(apperr.KindValidation, "computed successor task invalid", err)
	}

	if err := store.InsertTx(ctx, tx, successor); err != nil {
		return apperr.Wrap(apperr.KindConsumerProcessing, "inserting successor task", err)
	}

	assigned, err := store.SetNextOccurrenceIfNull(ctx, tx, parent.ID, successor.ID)
	if err != nil {
		return apperr.Wrap(apperr.KindConsumerProcessing, "linking successor to parent", err)
	}
	if !assigned {
		// Lost the race to a concurrent redelivery that already linked a
		// successor; roll back this extra row rather than committing two
		// successors for one completion.
		return nil
	}

	if err := tx.Commit(); err != nil {
		return apperr.Wrap(apperr.KindConsumerProcessing, "committing recurrence transaction", err)
	}

	if successor.RemindAt != nil {
		channels := []string{"push"}
		if err := w.reminders.Upsert(ctx, store.Reminder{
			TaskID:   successor.ID,
			UserID:   successor.UserID,
			FireAt:   *successor.RemindAt,
			Channels: channels,
			Status:   store.ReminderScheduled,
		}); err != nil {
			w.logger.Warn("reminder upsert failed for successor task", "task_id", successor.ID, "error", err)
		} else {
			payload := eventenvelope.ReminderScheduledPayload{FireAt: successor.RemindAt.ISO8601(), Channels: channels}
			if remindEnv, err := eventenvelope.New(eventenvelope.ReminderScheduled, successor.UserID, successor.ID, payload); err == nil {
				if err := w.bus.Publish(ctx, eventenvelope.TopicReminders, remindEnv); err != nil {
					w.logger.Warn("publishing reminder.scheduled for successor", "task_id", successor.ID, "error", err)
				}
			}
		}
	}

	w.publishCreated(ctx, successor)
	return nil
}

func (w *Worker) publishCreated(ctx context.Context, t domain.Task) {
	snap := eventenvelope.SnapshotOf(t)
	env, err := eventenvelope.New(eventenvelope.TaskCreated, t.UserID, t.ID, snap)
	if err != nil {
		w.logger.Error("encoding successor created envelope", "task_id", t.ID, "error", err)
		return
	}
	if err := w.bus.Publish(ctx, eventenvelope.TopicTaskEvents, env); err != nil {
		w.logger.Warn("publishing successor created event", "task_id", t.ID, "error", err)
	}
}
