// Package config loads the engine's environment configuration. Every
// component reads the same Config; which fields it uses depends on which
// component is running, mirroring the way the teacher framework lets each
// module pull only the config section it needs from one shared source.
package config

import (
	"fmt"
	"os"
	"time"

	"github.com/golobby/cast"
)

// Config holds every environment-configurable knob named in the wire spec
// plus the ambient additions (HTTP listen address, log level, consumer
// worker tuning) needed to run a complete process.
type Config struct {
	// SidecarHTTPPort is read fresh on every publish call elsewhere; this
	// field is only the process-start default used to seed that lookup
	// when the environment variable is briefly absent.
	SidecarHTTPPort          int
	PubsubComponent          string
	DatabaseURL              string
	JWTSigningKey            string
	ReminderVarianceBudgetMS int
	SessionOutboundBuffer    int

	HTTPAddr                  string
	LogLevel                  string
	ConsumerWorkerCount       int
	ConsumerMessageDeadline   time.Duration
	ConsumerDrainDeadline     time.Duration
}

// defaults mirror §6: SIDECAR_HTTP_PORT=3500, PUBSUB_COMPONENT=pubsub,
// REMINDER_VARIANCE_BUDGET_MS=5000, SESSION_OUTBOUND_BUFFER=64.
func defaults() Config {
	return Config{
		SidecarHTTPPort:          3500,
		PubsubComponent:          "pubsub",
		ReminderVarianceBudgetMS: 5000,
		SessionOutboundBuffer:    64,
		HTTPAddr:                 ":8080",
		LogLevel:                 "info",
		ConsumerWorkerCount:      5,
		ConsumerMessageDeadline:  30 * time.Second,
		ConsumerDrainDeadline:    20 * time.Second,
	}
}

// FromEnv loads Config from the process environment, applying defaults for
// anything unset. DATABASE_URL and JWT_SIGNING_KEY are required; their
// absence is a startup error rather than a silently empty string.
func FromEnv() (Config, error) {
	c := defaults()

	if v, ok := lookup("SIDECAR_HTTP_PORT"); ok {
		n, err := cast.ToInt(v)
		if err != nil {
			return Config{}, fmt.Errorf("SIDECAR_HTTP_PORT: %w", err)
		}
		c.SidecarHTTPPort = n
	}
	if v, ok := lookup("PUBSUB_COMPONENT"); ok {
		c.PubsubComponent = v
	}
	if v, ok := lookup("REMINDER_VARIANCE_BUDGET_MS"); ok {
		n, err := cast.ToInt(v)
		if err != nil {
			return Config{}, fmt.Errorf("REMINDER_VARIANCE_BUDGET_MS: %w", err)
		}
		c.ReminderVarianceBudgetMS = n
	}
	if v, ok := lookup("SESSION_OUTBOUND_BUFFER"); ok {
		n, err := cast.ToInt(v)
		if err != nil {
			return Config{}, fmt.Errorf("SESSION_OUTBOUND_BUFFER: %w", err)
		}
		c.SessionOutboundBuffer = n
	}
	if v, ok := lookup("HTTP_ADDR"); ok {
		c.HTTPAddr = v
	}
	if v, ok := lookup("LOG_LEVEL"); ok {
		c.LogLevel = v
	}
	if v, ok := lookup("CONSUMER_WORKER_COUNT"); ok {
		n, err := cast.ToInt(v)
		if err != nil {
			return Config{}, fmt.Errorf("CONSUMER_WORKER_COUNT: %w", err)
		}
		c.ConsumerWorkerCount = n
	}
	if v, ok := lookup("CONSUMER_MESSAGE_DEADLINE_MS"); ok {
		n, err := cast.ToInt(v)
		if err != nil {
			return Config{}, fmt.Errorf("CONSUMER_MESSAGE_DEADLINE_MS: %w", err)
		}
		c.ConsumerMessageDeadline = time.Duration(n) * time.Millisecond
	}
	if v, ok := lookup("CONSUMER_DRAIN_DEADLINE_MS"); ok {
		n, err := cast.ToInt(v)
		if err != nil {
			return Config{}, fmt.Errorf("CONSUMER_DRAIN_DEADLINE_MS: %w", err)
		}
		c.ConsumerDrainDeadline = time.Duration(n) * time.Millisecond
	}

	dbURL, ok := lookup("DATABASE_URL")
	if !ok || dbURL == "" {
		return Config{}, fmt.Errorf("DATABASE_URL is required")
	}
	c.DatabaseURL = dbURL

	signingKey, ok := lookup("JWT_SIGNING_KEY")
	if !ok || signingKey == "" {
		return Config{}, fmt.Errorf("JWT_SIGNING_KEY is required")
	}
	c.JWTSigningKey = signingKey

	return c, nil
}

func lookup(name string) (string, bool) {
	return os.LookupEnv(name)
}

// SidecarPort re-reads SIDECAR_HTTP_PORT from the live environment. The
// sidecar client must call this on every publish rather than caching
// Config.SidecarHTTPPort, because sidecars may be restarted and reassigned
// ports at any time; caching causes silent publish failures against a dead
// port.
func SidecarPort(fallback int) int {
	if v, ok := lookup("SIDECAR_HTTP_PORT"); ok {
		if n, err := cast.ToInt(v); err == nil {
			return n
		}
	}
	return fallback
}
