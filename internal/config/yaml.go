package config

import (
	"os"

	"gopkg.in/yaml.v3"
)

// overlay mirrors Config with pointer fields so an absent YAML key leaves
// the corresponding Config field untouched.
type overlay struct {
	PubsubComponent          *string `yaml:"pubsub_component"`
	ReminderVarianceBudgetMS *int    `yaml:"reminder_variance_budget_ms"`
	SessionOutboundBuffer    *int    `yaml:"session_outbound_buffer"`
	HTTPAddr                 *string `yaml:"http_addr"`
	LogLevel                 *string `yaml:"log_level"`
	ConsumerWorkerCount      *int    `yaml:"consumer_worker_count"`
}

// ApplyYAMLFile overlays non-secret operational settings from a YAML file
// onto c, leaving any field absent from the file untouched. Secrets
// (DATABASE_URL, JWT_SIGNING_KEY) are deliberately not part of the overlay
// schema: they come from the environment only, matching the corpus's
// posture of never committing credentials to a config file a deployment
// manifest might expose.
func ApplyYAMLFile(c *Config, path string) error {
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil
		}
		return err
	}
	var o overlay
	if err := yaml.Unmarshal(data, &o); err != nil {
		return err
	}
	if o.PubsubComponent != nil {
		c.PubsubComponent = *o.PubsubComponent
	}
	if o.ReminderVarianceBudgetMS != nil {
		c.ReminderVarianceBudgetMS = *o.ReminderVarianceBudgetMS
	}
	if o.SessionOutboundBuffer != nil {
		c.SessionOutboundBuffer = *o.SessionOutboundBuffer
	}
	if o.HTTPAddr != nil {
		c.HTTPAddr = *o.HTTPAddr
	}
	if o.LogLevel != nil {
		c.LogLevel = *o.LogLevel
	}
	if o.ConsumerWorkerCount != nil {
		c.ConsumerWorkerCount = *o.ConsumerWorkerCount
	}
	return nil
}
