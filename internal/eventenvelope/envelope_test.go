package eventenvelope

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/gocodealone/taskrecur/internal/ids"
)

func TestEnvelope_JSONRoundTripPreservesAllFields(t *testing.T) {
	userID, taskID := ids.New(), ids.New()
	payload := ReminderScheduledPayload{FireAt: "2026-06-01T09:00:00Z", Channels: []string{"push"}}

	original, err := New(ReminderScheduled, userID, taskID, payload)
	require.NoError(t, err)

	wire, err := json.Marshal(original)
	require.NoError(t, err)

	var decoded Envelope
	require.NoError(t, json.Unmarshal(wire, &decoded))

	assert.Equal(t, original.EventID, decoded.EventID)
	assert.Equal(t, original.EventType, decoded.EventType)
	assert.Equal(t, original.UserID, decoded.UserID)
	assert.Equal(t, original.TaskID, decoded.TaskID)
	assert.True(t, original.Timestamp.Equal(decoded.Timestamp))

	decodedPayload, err := decoded.DecodeReminderScheduled()
	require.NoError(t, err)
	assert.Equal(t, payload, decodedPayload)
}

func TestEnvelope_WireFormIsACloudEvent(t *testing.T) {
	env, err := New(TaskCreated, ids.New(), ids.New(), TaskSnapshot{Title: "x"})
	require.NoError(t, err)

	wire, err := json.Marshal(env)
	require.NoError(t, err)

	var raw map[string]any
	require.NoError(t, json.Unmarshal(wire, &raw))

	assert.Equal(t, "taskrecur", raw["source"])
	assert.Equal(t, string(TaskCreated), raw["type"])
	assert.Contains(t, raw, "id")
	assert.Contains(t, raw, "time")
	assert.Contains(t, raw, "taskrecuruserid")
	assert.Contains(t, raw, "taskrecurtaskid")
}

func TestEnvelope_UnmarshalRejectsMissingExtension(t *testing.T) {
	body := []byte(`{"specversion":"1.0","id":"` + ids.New().String() + `","source":"taskrecur","type":"task.created","time":"2026-06-01T09:00:00Z","data":{}}`)
	var env Envelope
	err := json.Unmarshal(body, &env)
	assert.Error(t, err)
}

func TestUnmarshalJSON_RejectsUnparsableEventID(t *testing.T) {
	body := []byte(`{"specversion":"1.0","id":"not-a-uuid","source":"taskrecur","type":"task.created","time":"2026-06-01T09:00:00Z","taskrecuruserid":"` + ids.New().String() + `","taskrecurtaskid":"` + ids.New().String() + `","data":{}}`)
	var env Envelope
	assert.Error(t, json.Unmarshal(body, &env))
}
