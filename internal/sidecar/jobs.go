package sidecar

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"time"
)

// JobRequest registers or replaces a scheduler job keyed by Name. The
// sidecar's job facility persists it so a scheduler process restart does
// not lose pending jobs.
type JobRequest struct {
	Name    string    `json:"name"`
	FireAt  time.Time `json:"fire_at"`
	Payload []byte    `json:"payload"`
}

// jobRetries is the "three retries" called for in §4.4's timeout policy.
const jobRetries = 3

// RegisterJob PUTs a job definition to the sidecar's job facility, replacing
// any existing job with the same Name. Each attempt carries its own 10s
// deadline, derived from ctx, so a shorter deadline or a cancellation on the
// caller's context still ends the attempt early.
func (c *Client) RegisterJob(ctx context.Context, job JobRequest) error {
	body, err := json.Marshal(job)
	if err != nil {
		return fmt.Errorf("encoding job request: %w", err)
	}
	url := fmt.Sprintf("%s/jobs/%s", c.baseURL(), job.Name)
	return c.doWithRetries(ctx, http.MethodPut, url, body)
}

// CancelJob deletes a previously registered job. Deleting a job that
// doesn't exist is not an error — cancellation must be idempotent.
func (c *Client) CancelJob(ctx context.Context, name string) error {
	url := fmt.Sprintf("%s/jobs/%s", c.baseURL(), name)
	return c.doWithRetries(ctx, http.MethodDelete, url, nil)
}

func (c *Client) doWithRetries(ctx context.Context, method, url string, body []byte) error {
	var lastErr error
	for attempt := 0; attempt <= jobRetries; attempt++ {
		attemptCtx, cancel := context.WithTimeout(ctx, 10*time.Second)
		err := c.doOnce(attemptCtx, method, url, body)
		cancel()
		if err == nil {
			return nil
		}
		lastErr = err
		if attempt < jobRetries {
			c.sleep(time.Duration(attempt+1) * 500 * time.Millisecond)
		}
	}
	return fmt.Errorf("sidecar job facility %s %s failed after %d attempts: %w", method, url, jobRetries+1, lastErr)
}

func (c *Client) doOnce(ctx context.Context, method, url string, body []byte) error {
	var reader *bytes.Reader
	if body != nil {
		reader = bytes.NewReader(body)
	} else {
		reader = bytes.NewReader(nil)
	}
	req, err := http.NewRequestWithContext(ctx, method, url, reader)
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	if resp.StatusCode >= 200 && resp.StatusCode < 300 {
		return nil
	}
	if method == http.MethodDelete && resp.StatusCode == http.StatusNotFound {
		// The job is already gone, which is what a cancellation asks for.
		return nil
	}
	return fmt.Errorf("sidecar responded %d", resp.StatusCode)
}
