// Package sidecar is the low-level HTTP client for the pub/sub and job
// sidecar described in §4.1 and §4.4: it knows how to discover the
// sidecar's dynamic port, POST a publish request with the fixed 1s/2s/4s
// retry schedule, and distinguish a transient failure from a "component not
// found" misconfiguration.
package sidecar

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/sony/gobreaker"

	"github.com/gocodealone/taskrecur/internal/config"
)

// ErrComponentNotFound is returned when the sidecar responds 404 with the
// "component not found" signature: the caller should stop retrying.
var ErrComponentNotFound = errors.New("sidecar: pubsub component not configured")

// ErrPublishFailed is returned after the retry schedule is exhausted against
// connection failures or 5xx responses.
var ErrPublishFailed = errors.New("sidecar: publish failed after retries")

// componentNotFoundSignature is the substring the sidecar embeds in a 404
// body when the requested component alias isn't registered, distinguishing
// "wrong component name" from "request temporarily undeliverable".
const componentNotFoundSignature = "ERR_PUBSUB_NOT_FOUND"

// backoffSchedule is the fixed 1s, 2s, 4s retry schedule mandated by §4.1.
// It is not exposed as a configurable policy because the spec names these
// exact durations, not a general exponential-backoff contract.
var backoffSchedule = []time.Duration{1 * time.Second, 2 * time.Second, 4 * time.Second}

// Client talks to the sidecar over HTTP. The sidecar's port is re-read from
// the environment on every call per §4.1's discovery rule — a restarted
// sidecar on a new port must not require this client to restart too.
type Client struct {
	httpClient *http.Client
	fallback   int
	breaker    *gobreaker.CircuitBreaker
	sleep      func(time.Duration)
}

// New builds a sidecar Client. fallbackPort seeds the port lookup if
// SIDECAR_HTTP_PORT is briefly unset; it is never cached beyond that.
func New(fallbackPort int) *Client {
	breaker := gobreaker.NewCircuitBreaker(gobreaker.Settings{
		Name:        "sidecar-http",
		MaxRequests: 1,
		Interval:    30 * time.Second,
		Timeout:     10 * time.Second,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			return counts.ConsecutiveFailures >= 5
		},
	})
	return &Client{
		httpClient: &http.Client{Timeout: 10 * time.Second},
		fallback:   fallbackPort,
		breaker:    breaker,
		sleep:      time.Sleep,
	}
}

func (c *Client) baseURL() string {
	return fmt.Sprintf("http://localhost:%d", config.SidecarPort(c.fallback))
}

// PublishOutcome classifies the result of a Publish call.
type PublishOutcome int

const (
	// PublishSucceeded means the sidecar accepted the envelope.
	PublishSucceeded PublishOutcome = iota
	// PublishMisconfigured means the component alias is not registered;
	// retrying would never help, so the caller should stop and log.
	PublishMisconfigured
	// PublishFailedTransient means retries were exhausted against
	// connection failures or 5xx; the caller decides whether this blocks
	// its own operation (the gateway's policy is to continue regardless).
	PublishFailedTransient
)

// Publish POSTs body to http://localhost:<port>/publish/<component>/<topic>,
// retrying on connection refused or 5xx per the fixed backoff schedule, and
// stopping immediately on a component-not-found 404.
func (c *Client) Publish(ctx context.Context, component, topic string, body []byte) (PublishOutcome, error) {
	url := fmt.Sprintf("%s/publish/%s/%s", c.baseURL(), component, topic)

	var lastErr error
	for attempt := 0; attempt <= len(backoffSchedule); attempt++ {
		outcome, err := c.breaker.Execute(func() (interface{}, error) {
			return c.attemptPublish(ctx, url, body)
		})
		if err == nil {
			return outcome.(PublishOutcome), nil
		}
		if errors.Is(err, ErrComponentNotFound) {
			return PublishMisconfigured, fmt.Errorf("publishing to component %q at %s: %w", component, url, ErrComponentNotFound)
		}
		lastErr = err
		if attempt < len(backoffSchedule) {
			select {
			case <-ctx.Done():
				return PublishFailedTransient, ctx.Err()
			default:
				c.sleep(backoffSchedule[attempt])
			}
		}
	}
	return PublishFailedTransient, fmt.Errorf("%w: %v", ErrPublishFailed, lastErr)
}

func (c *Client) attemptPublish(ctx context.Context, url string, body []byte) (PublishOutcome, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(body))
	if err != nil {
		return PublishFailedTransient, err
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return PublishFailedTransient, err
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 200 && resp.StatusCode < 300 {
		return PublishSucceeded, nil
	}
	if resp.StatusCode == http.StatusNotFound {
		respBody, _ := io.ReadAll(resp.Body)
		if bytes.Contains(respBody, []byte(componentNotFoundSignature)) {
			return PublishMisconfigured, ErrComponentNotFound
		}
	}
	return PublishFailedTransient, fmt.Errorf("sidecar responded %d", resp.StatusCode)
}
