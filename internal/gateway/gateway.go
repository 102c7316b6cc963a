// Package gateway implements the Task Mutation Gateway (G): the one
// component with write access to the tasks table via direct API calls, and
// the publisher of task.created/task.updated/task.completed/task.deleted
// events for user mutations (the recurrence worker separately publishes
// task.created for each successor it creates), following the teacher's pattern of one module owning a resource's HTTP
// surface and its backing store together.
package gateway

import (
	"context"
	"errors"
	"fmt"

	"github.com/go-playground/validator/v10"

	"github.com/gocodealone/taskrecur/internal/apperr"
	"github.com/gocodealone/taskrecur/internal/applog"
	"github.com/gocodealone/taskrecur/internal/calendar"
	"github.com/gocodealone/taskrecur/internal/domain"
	"github.com/gocodealone/taskrecur/internal/eventenvelope"
	"github.com/gocodealone/taskrecur/internal/ids"
	"github.com/gocodealone/taskrecur/internal/messaging"
	"github.com/gocodealone/taskrecur/internal/store"
)

// Gateway wires the HTTP surface to the task store, the reminder mirror,
// and the messaging bus.
type Gateway struct {
	tasks     *store.TaskStore
	reminders *store.ReminderStore
	bus       *messaging.Bus
	validate  *validator.Validate
	logger    applog.Logger
}

func New(tasks *store.TaskStore, reminders *store.ReminderStore, bus *messaging.Bus, logger applog.Logger) *Gateway {
	return &Gateway{
		tasks:     tasks,
		reminders: reminders,
		bus:       bus,
		validate:  validator.New(),
		logger:    logger,
	}
}

// CreateTask validates req, inserts a new task owned by userID, and
// publishes task.created. A reminder row is upserted when the request names
// a remind_at.
func (g *Gateway) CreateTask(ctx context.Context, userID ids.ID, req CreateTaskRequest) (domain.Task, error) {
	if err := g.validate.Struct(req); err != nil {
		return domain.Task{}, apperr.Wrap(apperr.KindValidation, "invalid task payload", err)
	}

	now := calendar.Now()
	t := domain.Task{
		ID:          ids.New(),
		UserID:      userID,
		Title:       req.Title,
		Description: req.Description,
		Priority:    domain.Priority(req.Priority),
		Tags:        req.Tags,
		CreatedAt:   now,
		UpdatedAt:   now,
		IsRecurring: req.IsRecurring,
	}
	if t.Priority == "" {
		t.Priority = domain.PriorityMedium
	}
	if req.RecurrencePattern != nil {
		p := calendar.Pattern(*req.RecurrencePattern)
		t.RecurrencePattern = &p
	}
	if req.DueDate != nil {
		ct, err := calendar.ParseISO8601(*req.DueDate)
		if err != nil {
			return domain.Task{}, apperr.Wrap(apperr.KindValidation, "invalid due_date", err)
		}
		t.DueDate = &ct
	}
	if req.RemindAt != nil {
		ct, err := calendar.ParseISO8601(*req.RemindAt)
		if err != nil {
			return domain.Task{}, apperr.Wrap(apperr.KindValidation, "invalid remind_at", err)
		}
		t.RemindAt = &ct
	}

	if err := t.Validate(); err != nil {
		return domain.Task{}, apperr.Wrap(apperr.KindValidation, "invalid task", err)
	}

	if err := g.tasks.Insert(ctx, t); err != nil {
		return domain.Task{}, apperr.Wrap(apperr.KindConsumerProcessing, "inserting task", err)
	}

	if t.RemindAt != nil {
		if err := g.upsertReminder(ctx, t); err != nil {
			g.logger.Warn("reminder upsert failed after task create", "task_id", t.ID, "error", err)
		}
	}

	g.publish(ctx, eventenvelope.TaskCreated, eventenvelope.TopicTaskEvents, t, nil)
	return t, nil
}

// GetTask returns the task if it exists and belongs to userID.
func (g *Gateway) GetTask(ctx context.Context, userID, taskID ids.ID) (domain.Task, error) {
	t, err := g.tasks.Get(ctx, taskID)
	if errors.Is(err, store.ErrNotFound) {
		return domain.Task{}, apperr.Wrap(apperr.KindNotFound, "task not found", apperr.ErrTaskNotFound)
	}
	if err != nil {
		return domain.Task{}, apperr.Wrap(apperr.KindConsumerProcessing, "fetching task", err)
	}
	if t.UserID != userID {
		// Deliberately the same NotFound kind as a genuine miss, per §7's
		// rule against leaking another user's task existence.
		return domain.Task{}, apperr.Wrap(apperr.KindNotFound, "task not found", apperr.ErrTaskNotFound)
	}
	return t, nil
}

// UpdateTask applies a partial content edit and publishes task.updated with
// the changed field names.
func (g *Gateway) UpdateTask(ctx context.Context, userID, taskID ids.ID, req UpdateTaskRequest) (domain.Task, error) {
	if err := g.validate.Struct(req); err != nil {
		return domain.Task{}, apperr.Wrap(apperr.KindValidation, "invalid task payload", err)
	}

	t, err := g.GetTask(ctx, userID, taskID)
	if err != nil {
		return domain.Task{}, err
	}

	var changed []string
	if req.Title != nil {
		t.Title = *req.Title
		changed = append(changed, "title")
	}
	if req.Description != nil {
		t.Description = *req.Description
		changed = append(changed, "description")
	}
	if req.Priority != nil {
		t.Priority = domain.Priority(*req.Priority)
		changed = append(changed, "priority")
	}
	if req.Tags != nil {
		t.Tags = req.Tags
		changed = append(changed, "tags")
	}
	if req.DueDate != nil {
		ct, err := calendar.ParseISO8601(*req.DueDate)
		if err != nil {
			return domain.Task{}, apperr.Wrap(apperr.KindValidation, "invalid due_date", err)
		}
		t.DueDate = &ct
		changed = append(changed, "due_date")
	}
	if req.RemindAt != nil {
		ct, err := calendar.ParseISO8601(*req.RemindAt)
		if err != nil {
			return domain.Task{}, apperr.Wrap(apperr.KindValidation, "invalid remind_at", err)
		}
		t.RemindAt = &ct
		changed = append(changed, "remind_at")
	}
	if req.IsRecurring != nil {
		t.IsRecurring = *req.IsRecurring
		changed = append(changed, "is_recurring")
	}
	if req.RecurrencePattern != nil {
		p := calendar.Pattern(*req.RecurrencePattern)
		t.RecurrencePattern = &p
		changed = append(changed, "recurrence_pattern")
	}
	if len(changed) == 0 {
		return t, nil
	}

	t.UpdatedAt = calendar.Now()
	if err := t.Validate(); err != nil {
		return domain.Task{}, apperr.Wrap(apperr.KindValidation, "invalid task", err)
	}

	if err := g.tasks.UpdateContent(ctx, t); err != nil {
		return domain.Task{}, apperr.Wrap(apperr.KindConsumerProcessing, "updating task", err)
	}

	if t.RemindAt != nil {
		if err := g.upsertReminder(ctx, t); err != nil {
			g.logger.Warn("reminder upsert failed after task update", "task_id", t.ID, "error", err)
		}
	} else if err := g.reminders.Cancel(ctx, t.ID); err != nil {
		g.logger.Warn("reminder cancel failed after remind_at cleared", "task_id", t.ID, "error", err)
	}

	g.publish(ctx, eventenvelope.TaskUpdated, eventenvelope.TopicTaskEvents, t, changed)
	return t, nil
}

// SetCompleted toggles a task's completion state inside a transaction that
// holds a row lock for the duration, the serialization point described for
// concurrent completion toggles. Setting the state to its current value is
// rejected so the recurrence worker never observes two task.completed
// events for the same transition.
func (g *Gateway) SetCompleted(ctx context.Context, userID, taskID ids.ID, completed bool) (domain.Task, error) {
	tx, err := g.tasks.BeginTx(ctx)
	if err != nil {
		return domain.Task{}, apperr.Wrap(apperr.KindConsumerProcessing, "beginning transaction", err)
	}
	defer tx.Rollback()

	t, err := store.GetForUpdate(ctx, tx, taskID)
	if errors.Is(err, store.ErrNotFound) {
		return domain.Task{}, apperr.Wrap(apperr.KindNotFound, "task not found", apperr.ErrTaskNotFound)
	}
	if err != nil {
		return domain.Task{}, apperr.Wrap(apperr.KindConsumerProcessing, "fetching task for update", err)
	}
	if t.UserID != userID {
		return domain.Task{}, apperr.Wrap(apperr.KindNotFound, "task not found", apperr.ErrTaskNotFound)
	}
	if t.IsCompleted == completed {
		return domain.Task{}, apperr.Wrap(apperr.KindValidation, "task already in requested state", apperr.ErrAlreadyInState)
	}

	now := calendar.Now()
	if err := store.SetCompleted(ctx, tx, taskID, completed, now); err != nil {
		return domain.Task{}, apperr.Wrap(apperr.KindConsumerProcessing, "setting completion", err)
	}
	if err := tx.Commit(); err != nil {
		return domain.Task{}, apperr.Wrap(apperr.KindConsumerProcessing, "committing completion", err)
	}

	t.IsCompleted = completed
	t.UpdatedAt = now

	if completed {
		g.publish(ctx, eventenvelope.TaskCompleted, eventenvelope.TopicTaskEvents, t, []string{"is_completed"})
	} else {
		g.publish(ctx, eventenvelope.TaskUpdated, eventenvelope.TopicTaskEvents, t, []string{"is_completed"})
	}
	return t, nil
}

// DeleteTask tombstones the task and publishes task.deleted, cancelling any
// pending reminder.
func (g *Gateway) DeleteTask(ctx context.Context, userID, taskID ids.ID) error {
	t, err := g.GetTask(ctx, userID, taskID)
	if err != nil {
		return err
	}
	if err := g.tasks.Tombstone(ctx, taskID, calendar.Now()); err != nil {
		return apperr.Wrap(apperr.KindConsumerProcessing, "deleting task", err)
	}
	if err := g.reminders.Cancel(ctx, taskID); err != nil {
		g.logger.Warn("reminder cancel failed after task delete", "task_id", taskID, "error", err)
	}
	t.Deleted = true
	g.publish(ctx, eventenvelope.TaskDeleted, eventenvelope.TopicTaskEvents, t, nil)
	return nil
}

// Replay re-publishes the canonical event for a task's current persisted
// state, for an operator to invoke after a sidecar outage has been
// resolved and a consumer needs to catch up on a mutation it never saw.
// It does not re-run validation or touch the tasks table: the row already
// reflects the truth, only the downstream notification was lost. The lookup
// goes through TaskStore.Get, which skips deleted rows, so a deleted task
// is reported as not found and task.deleted is never replayed.
func (g *Gateway) Replay(ctx context.Context, taskID ids.ID) (domain.Task, error) {
	t, err := g.tasks.Get(ctx, taskID)
	if errors.Is(err, store.ErrNotFound) {
		return domain.Task{}, apperr.Wrap(apperr.KindNotFound, "task not found", apperr.ErrTaskNotFound)
	}
	if err != nil {
		return domain.Task{}, apperr.Wrap(apperr.KindConsumerProcessing, "fetching task", err)
	}

	eventType := eventenvelope.TaskUpdated
	switch {
	case t.Deleted:
		eventType = eventenvelope.TaskDeleted
	case t.IsCompleted:
		eventType = eventenvelope.TaskCompleted
	}
	g.publish(ctx, eventType, eventenvelope.TopicTaskEvents, t, nil)
	return t, nil
}

// upsertReminder persists the reminders table mirror and publishes
// reminder.scheduled so a running scheduler process registers the sidecar
// job immediately rather than waiting on its own recovery scan.
func (g *Gateway) upsertReminder(ctx context.Context, t domain.Task) error {
	channels := []string{"push"}
	if err := g.reminders.Upsert(ctx, store.Reminder{
		TaskID:   t.ID,
		UserID:   t.UserID,
		FireAt:   *t.RemindAt,
		Channels: channels,
		Status:   store.ReminderScheduled,
	}); err != nil {
		return err
	}

	payload := eventenvelope.ReminderScheduledPayload{FireAt: t.RemindAt.ISO8601(), Channels: channels}
	env, err := eventenvelope.New(eventenvelope.ReminderScheduled, t.UserID, t.ID, payload)
	if err != nil {
		return fmt.Errorf("encoding reminder.scheduled envelope: %w", err)
	}
	if err := g.bus.Publish(ctx, eventenvelope.TopicReminders, env); err != nil {
		g.logger.Warn("publishing reminder.scheduled", "task_id", t.ID, "error", err)
	}
	return nil
}

// publish builds and sends a task event, logging rather than failing the
// caller on publish error — per §4.2, the primary mutation has already
// committed and must not be rolled back because of a downstream messaging
// hiccup.
// publish emits the primary event on task-events and the corresponding
// user-visible delta on task-updates, per §4.2's event table: every Gateway
// mutation is mirrored onto task-updates so Fanout has something to push.
func (g *Gateway) publish(ctx context.Context, eventType eventenvelope.Type, topic string, t domain.Task, changedFields []string) {
	snap := eventenvelope.SnapshotOf(t, changedFields...)
	env, err := eventenvelope.New(eventType, t.UserID, t.ID, snap)
	if err != nil {
		g.logger.Error("encoding event envelope", "event_type", eventType, "task_id", t.ID, "error", err)
		return
	}
	g.publishEnvelope(ctx, topic, env)
	if topic != eventenvelope.TopicTaskUpdates {
		g.publishEnvelope(ctx, eventenvelope.TopicTaskUpdates, env)
	}
}

func (g *Gateway) publishEnvelope(ctx context.Context, topic string, env eventenvelope.Envelope) {
	if err := g.bus.Publish(ctx, topic, env); err != nil {
		g.logger.Warn("publishing event", "event_type", env.EventType, "topic", topic, "task_id", env.TaskID, "error", err)
	}
}
