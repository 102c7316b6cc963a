// Package eventenvelope defines the fixed wire envelope (§6) shared by all
// three topics, and the typed payloads for each event_type. The envelope is
// carried on the wire as a CloudEvent (the format Dapr's pub/sub building
// block wraps every message in), but decoding the inner payload is explicit
// per event_type rather than reflection-based, per the
// dynamic-import-and-reflection redesign flag in the spec's design notes.
package eventenvelope

import (
	"encoding/json"
	"fmt"

	cloudevents "github.com/cloudevents/sdk-go/v2"

	"github.com/gocodealone/taskrecur/internal/calendar"
	"github.com/gocodealone/taskrecur/internal/ids"
)

// ceSource is the CloudEvents "source" attribute for every event this
// engine emits; there is only one producer identity, not one per
// component, since all components share the same event model.
const ceSource = "taskrecur"

const userIDExtension = "taskrecuruserid"
const taskIDExtension = "taskrecurtaskid"

// Type is one of the six event_type wire values.
type Type string

const (
	TaskCreated      Type = "task.created"
	TaskUpdated      Type = "task.updated"
	TaskCompleted    Type = "task.completed"
	TaskDeleted      Type = "task.deleted"
	ReminderScheduled Type = "reminder.scheduled"
	ReminderFired    Type = "reminder.fired"
)

// Topic names carried in §6.
const (
	TopicTaskEvents  = "task-events"
	TopicReminders   = "reminders"
	TopicTaskUpdates = "task-updates"
)

// Envelope is the fixed outer structure wrapping every published event. Its
// JSON form is a CloudEvent: MarshalJSON/UnmarshalJSON translate between
// this plain struct and the CloudEvents attribute set, so the rest of the
// engine never touches the cloudevents.Event type directly.
type Envelope struct {
	EventID   ids.ID
	EventType Type
	UserID    ids.ID
	TaskID    ids.ID
	Timestamp calendar.Time
	Payload   json.RawMessage
}

// MarshalJSON renders the envelope as a CloudEvent: standard id/type/
// source/time attributes, user_id and task_id as CloudEvents extension
// attributes, and Payload as the event data.
func (e Envelope) MarshalJSON() ([]byte, error) {
	ev := cloudevents.NewEvent()
	ev.SetID(ids.Canonical(e.EventID))
	ev.SetType(string(e.EventType))
	ev.SetSource(ceSource)
	ev.SetTime(e.Timestamp.Std())
	ev.SetExtension(userIDExtension, ids.Canonical(e.UserID))
	ev.SetExtension(taskIDExtension, ids.Canonical(e.TaskID))
	if err := ev.SetData("application/json", []byte(e.Payload)); err != nil {
		return nil, fmt.Errorf("setting cloudevent data: %w", err)
	}
	return json.Marshal(ev)
}

// UnmarshalJSON parses a CloudEvent wire body back into an Envelope.
func (e *Envelope) UnmarshalJSON(data []byte) error {
	var ev cloudevents.Event
	if err := json.Unmarshal(data, &ev); err != nil {
		return fmt.Errorf("decoding cloudevent envelope: %w", err)
	}

	eventID, err := ids.Parse(ev.ID())
	if err != nil {
		return fmt.Errorf("cloudevent id %q is not a valid event id: %w", ev.ID(), err)
	}

	userIDRaw, ok := ev.Extensions()[userIDExtension].(string)
	if !ok {
		return fmt.Errorf("cloudevent missing %s extension", userIDExtension)
	}
	userID, err := ids.Parse(userIDRaw)
	if err != nil {
		return fmt.Errorf("cloudevent %s extension %q is not a valid user id: %w", userIDExtension, userIDRaw, err)
	}

	taskIDRaw, ok := ev.Extensions()[taskIDExtension].(string)
	if !ok {
		return fmt.Errorf("cloudevent missing %s extension", taskIDExtension)
	}
	taskID, err := ids.Parse(taskIDRaw)
	if err != nil {
		return fmt.Errorf("cloudevent %s extension %q is not a valid task id: %w", taskIDExtension, taskIDRaw, err)
	}

	ts, err := calendar.From(ev.Time())
	if err != nil {
		return fmt.Errorf("cloudevent time attribute: %w", err)
	}

	e.EventID = eventID
	e.EventType = Type(ev.Type())
	e.UserID = userID
	e.TaskID = taskID
	e.Timestamp = ts
	e.Payload = json.RawMessage(ev.Data())
	return nil
}

// New builds an Envelope with a freshly generated event_id and the current
// instant, encoding payload to JSON.
func New(eventType Type, userID, taskID ids.ID, payload any) (Envelope, error) {
	raw, err := json.Marshal(payload)
	if err != nil {
		return Envelope{}, fmt.Errorf("encoding payload for %s: %w", eventType, err)
	}
	return Envelope{
		EventID:   ids.New(),
		EventType: eventType,
		UserID:    userID,
		TaskID:    taskID,
		Timestamp: calendar.Now(),
		Payload:   raw,
	}, nil
}

// TaskSnapshot is the payload shape for all task.* events: the full task
// state, plus changed_fields on updates.
type TaskSnapshot struct {
	TaskID            string   `json:"task_id"`
	UserID            string   `json:"user_id"`
	Title             string   `json:"title"`
	Description       string   `json:"description,omitempty"`
	Priority          string   `json:"priority"`
	Tags              []string `json:"tags,omitempty"`
	IsCompleted       bool     `json:"is_completed"`
	CreatedAt         string   `json:"created_at"`
	UpdatedAt         string   `json:"updated_at"`
	DueDate           *string  `json:"due_date,omitempty"`
	RemindAt          *string  `json:"remind_at,omitempty"`
	IsRecurring       bool     `json:"is_recurring"`
	RecurrencePattern *string  `json:"recurrence_pattern,omitempty"`
	ParentTaskID      *string  `json:"parent_task_id,omitempty"`
	NextOccurrenceID  *string  `json:"next_occurrence_id,omitempty"`
	ChangedFields     []string `json:"changed_fields,omitempty"`
}

// ReminderScheduledPayload is the payload for reminder.scheduled.
type ReminderScheduledPayload struct {
	FireAt   string   `json:"fire_at"`
	Channels []string `json:"channels"`
}

// ReminderFiredPayload is the payload for reminder.fired: the task snapshot
// at fire time plus the channels the reminder was requested on.
type ReminderFiredPayload struct {
	Task     TaskSnapshot `json:"task"`
	Channels []string     `json:"channels"`
}

// DecodeTaskSnapshot decodes a task.* payload.
func (e Envelope) DecodeTaskSnapshot() (TaskSnapshot, error) {
	var p TaskSnapshot
	if err := json.Unmarshal(e.Payload, &p); err != nil {
		return TaskSnapshot{}, fmt.Errorf("decoding task snapshot payload: %w", err)
	}
	return p, nil
}

// DecodeReminderScheduled decodes a reminder.scheduled payload.
func (e Envelope) DecodeReminderScheduled() (ReminderScheduledPayload, error) {
	var p ReminderScheduledPayload
	if err := json.Unmarshal(e.Payload, &p); err != nil {
		return ReminderScheduledPayload{}, fmt.Errorf("decoding reminder.scheduled payload: %w", err)
	}
	return p, nil
}

// DecodeReminderFired decodes a reminder.fired payload.
func (e Envelope) DecodeReminderFired() (ReminderFiredPayload, error) {
	var p ReminderFiredPayload
	if err := json.Unmarshal(e.Payload, &p); err != nil {
		return ReminderFiredPayload{}, fmt.Errorf("decoding reminder.fired payload: %w", err)
	}
	return p, nil
}
