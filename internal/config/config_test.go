package config

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestFromEnv_RequiresDatabaseURL(t *testing.T) {
	t.Setenv("JWT_SIGNING_KEY", "secret")
	_, err := FromEnv()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "DATABASE_URL")
}

func TestFromEnv_RequiresJWTSigningKey(t *testing.T) {
	t.Setenv("DATABASE_URL", "postgres://localhost/taskrecur")
	_, err := FromEnv()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "JWT_SIGNING_KEY")
}

func TestFromEnv_AppliesDefaultsWhenUnset(t *testing.T) {
	t.Setenv("DATABASE_URL", "postgres://localhost/taskrecur")
	t.Setenv("JWT_SIGNING_KEY", "secret")

	c, err := FromEnv()
	require.NoError(t, err)
	assert.Equal(t, 3500, c.SidecarHTTPPort)
	assert.Equal(t, "pubsub", c.PubsubComponent)
	assert.Equal(t, 5000, c.ReminderVarianceBudgetMS)
	assert.Equal(t, 64, c.SessionOutboundBuffer)
	assert.Equal(t, ":8080", c.HTTPAddr)
}

func TestFromEnv_OverridesFromEnvironment(t *testing.T) {
	t.Setenv("DATABASE_URL", "postgres://localhost/taskrecur")
	t.Setenv("JWT_SIGNING_KEY", "secret")
	t.Setenv("SIDECAR_HTTP_PORT", "4000")
	t.Setenv("PUBSUB_COMPONENT", "kafka-pubsub")
	t.Setenv("CONSUMER_MESSAGE_DEADLINE_MS", "15000")

	c, err := FromEnv()
	require.NoError(t, err)
	assert.Equal(t, 4000, c.SidecarHTTPPort)
	assert.Equal(t, "kafka-pubsub", c.PubsubComponent)
	assert.Equal(t, 15*time.Second, c.ConsumerMessageDeadline)
}

func TestFromEnv_RejectsUnparsableInt(t *testing.T) {
	t.Setenv("DATABASE_URL", "postgres://localhost/taskrecur")
	t.Setenv("JWT_SIGNING_KEY", "secret")
	t.Setenv("SIDECAR_HTTP_PORT", "not-a-port")

	_, err := FromEnv()
	require.Error(t, err)
}

func TestSidecarPort_FallsBackWhenEnvAbsent(t *testing.T) {
	assert.Equal(t, 3500, SidecarPort(3500))
}

func TestSidecarPort_ReadsLiveEnvironment(t *testing.T) {
	t.Setenv("SIDECAR_HTTP_PORT", "9999")
	assert.Equal(t, 9999, SidecarPort(3500))
}
