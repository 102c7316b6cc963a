// Package messaging is the broker-neutral Messaging Abstraction (M): the
// rest of the engine calls Publish/Subscribe here and never touches the
// sidecar HTTP client directly, so the concrete broker behind the sidecar
// can be replaced without touching consumer or publisher code.
package messaging

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"

	"github.com/gocodealone/taskrecur/internal/apperr"
	"github.com/gocodealone/taskrecur/internal/applog"
	"github.com/gocodealone/taskrecur/internal/eventenvelope"
	"github.com/gocodealone/taskrecur/internal/sidecar"
)

// Outcome is a subscriber's processing verdict, returned to the sidecar so
// it knows whether to redeliver.
type Outcome int

const (
	// ACK means processing succeeded; do not redeliver.
	ACK Outcome = iota
	// RETRY means redeliver with the broker's own backoff.
	RETRY
	// DROP means acknowledge but record the message as poisoned.
	DROP
)

func (o Outcome) String() string {
	switch o {
	case ACK:
		return "SUCCESS"
	case RETRY:
		return "RETRY"
	case DROP:
		return "DROP"
	default:
		return "RETRY"
	}
}

// Handler processes one delivered event and returns a processing Outcome.
type Handler func(ctx context.Context, env eventenvelope.Envelope) Outcome

// RouteAdvertisement is one row of the GET /subscriptions response body the
// sidecar reads at startup to learn where to deliver each topic.
type RouteAdvertisement struct {
	PubsubComponent string `json:"pubsub_component"`
	Topic           string `json:"topic"`
	Route           string `json:"route"`
}

type subscription struct {
	topic   string
	route   string
	handler Handler
}

// Bus is the Messaging Abstraction's concrete implementation: it publishes
// through the sidecar.Client and dispatches inbound webhook deliveries to
// locally registered handlers.
type Bus struct {
	client    *sidecar.Client
	component string
	logger    applog.Logger

	mu   sync.RWMutex
	subs []subscription
}

// New builds a Bus bound to one sidecar pub/sub component name (the value
// of PUBSUB_COMPONENT, itself a first-class configuration knob per the
// spec's open question about the component alias).
func New(client *sidecar.Client, component string, logger applog.Logger) *Bus {
	return &Bus{client: client, component: component, logger: logger}
}

// Publish serializes env and sends it to topic via the sidecar, honoring
// the retry/misconfiguration policy of §4.1. It returns an *apperr.Error
// classifying the failure so the call site can decide whether derived work
// being dropped should also fail the caller (the default, per §4.2, is
// never — the primary write has already committed).
func (b *Bus) Publish(ctx context.Context, topic string, env eventenvelope.Envelope) error {
	body, err := json.Marshal(env)
	if err != nil {
		return apperr.Wrap(apperr.KindValidation, "encoding event envelope", err)
	}

	outcome, err := b.client.Publish(ctx, b.component, topic, body)
	switch outcome {
	case sidecar.PublishSucceeded:
		return nil
	case sidecar.PublishMisconfigured:
		b.logger.Error("pubsub component not configured",
			"component", b.component, "topic", topic, "event_id", env.EventID, "error", err)
		return apperr.Wrap(apperr.KindComponentMisconfiguration,
			fmt.Sprintf("component %q not registered with sidecar for topic %q", b.component, topic), err)
	default:
		b.logger.Warn("publish failed after retries",
			"component", b.component, "topic", topic, "event_id", env.EventID, "error", err)
		return apperr.Wrap(apperr.KindTransientMessaging, "publish exhausted retries", err)
	}
}

// Subscribe registers handler for topic, mounting it at a deterministic
// webhook route the sidecar will be told about via /subscriptions.
func (b *Bus) Subscribe(topic string, handler Handler) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.subs = append(b.subs, subscription{
		topic:   topic,
		route:   "/events/" + topic,
		handler: handler,
	})
}

// Routes returns the subscription advertisement table for GET /subscriptions.
func (b *Bus) Routes() []RouteAdvertisement {
	b.mu.RLock()
	defer b.mu.RUnlock()
	out := make([]RouteAdvertisement, 0, len(b.subs))
	for _, s := range b.subs {
		out = append(out, RouteAdvertisement{
			PubsubComponent: b.component,
			Topic:           s.topic,
			Route:           s.route,
		})
	}
	return out
}

// Dispatch finds the registered handler for topic and invokes it. Returns
// (outcome, true) if a handler was found, (RETRY, false) otherwise — the
// latter should translate to a 404 at the HTTP layer so the sidecar doesn't
// retry a route that will never exist.
func (b *Bus) Dispatch(ctx context.Context, topic string, env eventenvelope.Envelope) (Outcome, bool) {
	b.mu.RLock()
	var h Handler
	found := false
	for _, s := range b.subs {
		if s.topic == topic {
			h = s.handler
			found = true
			break
		}
	}
	b.mu.RUnlock()
	if !found {
		return RETRY, false
	}
	return h(ctx, env), true
}
