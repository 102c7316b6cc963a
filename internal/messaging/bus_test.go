package messaging

import (
	"context"
	"net/http"
	"net/http/httptest"
	"net/url"
	"strconv"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/gocodealone/taskrecur/internal/apperr"
	"github.com/gocodealone/taskrecur/internal/applog"
	"github.com/gocodealone/taskrecur/internal/eventenvelope"
	"github.com/gocodealone/taskrecur/internal/ids"
	"github.com/gocodealone/taskrecur/internal/sidecar"
)

type nopLogger struct{}

func (nopLogger) Debug(string, ...any)  {}
func (nopLogger) Info(string, ...any)   {}
func (nopLogger) Warn(string, ...any)   {}
func (nopLogger) Error(string, ...any)  {}
func (l nopLogger) With(...any) applog.Logger { return l }

func testSidecarClient(t *testing.T, handler http.HandlerFunc) *sidecar.Client {
	t.Helper()
	server := httptest.NewServer(handler)
	t.Cleanup(server.Close)
	u, err := url.Parse(server.URL)
	require.NoError(t, err)
	port, err := strconv.Atoi(u.Port())
	require.NoError(t, err)
	t.Setenv("SIDECAR_HTTP_PORT", strconv.Itoa(port))
	return sidecar.New(port)
}

func testEnvelope(t *testing.T) eventenvelope.Envelope {
	t.Helper()
	env, err := eventenvelope.New(eventenvelope.TaskCreated, ids.New(), ids.New(), eventenvelope.TaskSnapshot{Title: "x"})
	require.NoError(t, err)
	return env
}

func TestBus_PublishSucceeds(t *testing.T) {
	client := testSidecarClient(t, func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	})
	bus := New(client, "pubsub", nopLogger{})
	err := bus.Publish(context.Background(), eventenvelope.TopicTaskEvents, testEnvelope(t))
	assert.NoError(t, err)
}

func TestBus_PublishMisconfiguredComponent(t *testing.T) {
	client := testSidecarClient(t, func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusNotFound)
		_, _ = w.Write([]byte(`{"errorCode":"ERR_PUBSUB_NOT_FOUND"}`))
	})
	bus := New(client, "missing", nopLogger{})
	err := bus.Publish(context.Background(), eventenvelope.TopicTaskEvents, testEnvelope(t))
	require.Error(t, err)
	assert.True(t, apperr.Is(err, apperr.KindComponentMisconfiguration))
}

func TestBus_SubscribeAndDispatch(t *testing.T) {
	bus := New(nil, "pubsub", nopLogger{})

	var received eventenvelope.Envelope
	bus.Subscribe(eventenvelope.TopicTaskEvents, func(ctx context.Context, env eventenvelope.Envelope) Outcome {
		received = env
		return ACK
	})

	env := testEnvelope(t)
	outcome, found := bus.Dispatch(context.Background(), eventenvelope.TopicTaskEvents, env)
	assert.True(t, found)
	assert.Equal(t, ACK, outcome)
	assert.Equal(t, env.EventID, received.EventID)
}

func TestBus_DispatchUnknownTopicReturnsNotFound(t *testing.T) {
	bus := New(nil, "pubsub", nopLogger{})
	_, found := bus.Dispatch(context.Background(), "nonexistent-topic", testEnvelope(t))
	assert.False(t, found)
}

func TestBus_RoutesAdvertisesEveryRegisteredSubscription(t *testing.T) {
	bus := New(nil, "pubsub", nopLogger{})
	bus.Subscribe(eventenvelope.TopicTaskEvents, func(context.Context, eventenvelope.Envelope) Outcome { return ACK })
	bus.Subscribe(eventenvelope.TopicReminders, func(context.Context, eventenvelope.Envelope) Outcome { return ACK })

	routes := bus.Routes()
	require.Len(t, routes, 2)
	assert.Equal(t, "/events/"+eventenvelope.TopicTaskEvents, routes[0].Route)
	assert.Equal(t, "pubsub", routes[0].PubsubComponent)
}

func TestClassifyConsumerError(t *testing.T) {
	assert.Equal(t, ACK, ClassifyConsumerError(nil))
}
