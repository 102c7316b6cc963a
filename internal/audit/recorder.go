// Package audit implements the Audit Recorder (A): the single consumer of
// all three topics whose job is purely to persist an immutable activity
// record per event, deduplicated by event_id so at-least-once redelivery
// never double-counts an action in a user's activity feed.
package audit

import (
	"context"
	"encoding/json"

	"github.com/gocodealone/taskrecur/internal/applog"
	"github.com/gocodealone/taskrecur/internal/eventenvelope"
	"github.com/gocodealone/taskrecur/internal/ids"
	"github.com/gocodealone/taskrecur/internal/messaging"
	"github.com/gocodealone/taskrecur/internal/store"
)

// Recorder writes one AuditRecord per delivered event.
type Recorder struct {
	audit  *store.AuditStore
	bus    *messaging.Bus
	logger applog.Logger
}

func New(audit *store.AuditStore, bus *messaging.Bus, logger applog.Logger) *Recorder {
	return &Recorder{audit: audit, bus: bus, logger: logger}
}

// Subscribe registers Handle against every topic this engine publishes on.
func (r *Recorder) Subscribe() {
	r.bus.Subscribe(eventenvelope.TopicTaskEvents, r.Handle)
	r.bus.Subscribe(eventenvelope.TopicReminders, r.Handle)
	r.bus.Subscribe(eventenvelope.TopicTaskUpdates, r.Handle)
}

// Handle appends an audit record for env, mapping the event_type to an
// entity_type ("task" for every task.* and reminder.* event) and leaving
// prior_state null — the gateway does not currently hand this consumer a
// before/after pair, only the resulting snapshot, so new_state alone
// captures what happened.
func (r *Recorder) Handle(ctx context.Context, env eventenvelope.Envelope) messaging.Outcome {
	newState, err := stateFor(env)
	if err != nil {
		r.logger.Warn("poisoned audit event: undecodable payload", "event_id", env.EventID, "event_type", env.EventType, "error", err)
		r.recordPoisoned(ctx, env, err)
		return messaging.DROP
	}

	rec := store.AuditRecord{
		EventID:    env.EventID,
		UserID:     env.UserID,
		EventType:  string(env.EventType),
		EntityID:   env.TaskID,
		EntityType: "task",
		NewState:   newState,
		Source:     string(env.EventType),
		Timestamp:  env.Timestamp,
	}
	if err := r.audit.Append(ctx, rec); err != nil {
		r.logger.Warn("appending audit record", "event_id", env.EventID, "error", err)
		return messaging.RETRY
	}
	return messaging.ACK
}

func stateFor(env eventenvelope.Envelope) (json.RawMessage, error) {
	switch env.EventType {
	case eventenvelope.TaskCreated, eventenvelope.TaskUpdated, eventenvelope.TaskCompleted, eventenvelope.TaskDeleted:
		snap, err := env.DecodeTaskSnapshot()
		if err != nil {
			return nil, err
		}
		return json.Marshal(snap)
	case eventenvelope.ReminderScheduled:
		payload, err := env.DecodeReminderScheduled()
		if err != nil {
			return nil, err
		}
		return json.Marshal(payload)
	case eventenvelope.ReminderFired:
		payload, err := env.DecodeReminderFired()
		if err != nil {
			return nil, err
		}
		return json.Marshal(payload)
	default:
		return env.Payload, nil
	}
}

// recordPoisoned appends a ledger entry for a message this consumer could
// not process, with new_state holding the decode failure reason instead of
// the (unrecoverable) payload, per the poisoned-message ledger requirement.
func (r *Recorder) recordPoisoned(ctx context.Context, env eventenvelope.Envelope, cause error) {
	reason, _ := json.Marshal(map[string]string{
		"decode_error":      cause.Error(),
		"original_event_type": string(env.EventType),
	})
	rec := store.AuditRecord{
		EventID:    env.EventID,
		UserID:     env.UserID,
		EventType:  "message.poisoned",
		EntityID:   env.TaskID,
		EntityType: "task",
		NewState:   reason,
		Source:     "audit-recorder",
		Timestamp:  env.Timestamp,
	}
	if err := r.audit.Append(ctx, rec); err != nil {
		r.logger.Error("recording poisoned message", "event_id", env.EventID, "error", err)
	}
}

// ListActivity returns the audit feed for a user, used by the gateway's
// read-only activity endpoint.
func (r *Recorder) ListActivity(ctx context.Context, userID ids.ID, limit int) ([]store.AuditRecord, error) {
	return r.audit.ListForUser(ctx, userID, limit)
}
