// Package config defines job configuration structures and loading hooks.
//
// Conventions:
// - Provide New() to build a Config with defaults.
// - Load layers defaults, an optional YAML file and STATSMAIL_* env vars.
// - Validation errors are marked with ErrInvalidConfig.
package config

import (
	"time"

	"github.com/cockroachdb/errors"
)

// NumWeeks is the width of the coding-time graph. It is not tunable; the
// upstream query aggregates exactly this many weeks.
const NumWeeks = 6

// Progress store drivers.
const (
	ProgressDriverMemory = "memory"
	ProgressDriverSQLite = "sqlite"
)

// Config contains process configuration.
type Config struct {
	// LogLevel controls verbosity: debug, info, warn, error.
	LogLevel string `koanf:"log_level"`

	// LogFormat selects the log encoding: text or json.
	LogFormat string `koanf:"log_format"`

	// NumWeeks must equal NumWeeks; it is carried so misconfiguration fails loudly.
	NumWeeks int `koanf:"num_weeks"`

	// EventName is the tracking event every shaped row is sent as.
	EventName string `koanf:"event_name"`

	// MaxConcurrentRequests bounds outbound tracking calls (worker pool width).
	MaxConcurrentRequests int `koanf:"max_concurrent_requests"`

	// QueueSize caps rows submitted but not yet completed.
	QueueSize int `koanf:"queue_size"`

	// WaitTimeout is the liveness backstop for waiting on in-flight rows.
	WaitTimeout time.Duration `koanf:"wait_timeout"`

	// UserLimit stops dispatch after that many rows when > 0.
	UserLimit int `koanf:"user_limit"`

	// Timezone anchors the weekly buckets (IANA name).
	Timezone string `koanf:"timezone"`

	// TaskIDPrefix scopes persisted progress to this job's dispatcher task.
	TaskIDPrefix string `koanf:"task_id_prefix"`

	Inputs   InputsConfig   `koanf:"inputs"`
	Tracking TrackingConfig `koanf:"tracking"`
	Progress ProgressConfig `koanf:"progress"`
	Metrics  MetricsConfig  `koanf:"metrics"`
	Alert    AlertConfig    `koanf:"alert"`
	AWS      AWSConfig      `koanf:"aws"`
}

// InputsConfig locates the two CSVs of a run: local paths or s3:// URIs.
type InputsConfig struct {
	Percentiles string `koanf:"percentiles"`
	Stats       string `koanf:"stats"`
}

// TrackingConfig configures the marketing automation Track API.
type TrackingConfig struct {
	SiteID            string        `koanf:"site_id"`
	APIKey            string        `koanf:"api_key"`
	BaseURL           string        `koanf:"base_url"`
	Timeout           time.Duration `koanf:"timeout"`
	RequestsPerSecond float64       `koanf:"requests_per_second"`
}

// ProgressConfig selects where the resume cursor lives.
type ProgressConfig struct {
	Driver string `koanf:"driver"`
	DSN    string `koanf:"dsn"`
}

// MetricsConfig controls metric exposure for the batch run.
type MetricsConfig struct {
	// Addr serves /metrics and /healthz while the job runs, if set.
	Addr string `koanf:"addr"`
	// PushgatewayURL receives a final push at the end of the run, if set.
	PushgatewayURL string `koanf:"pushgateway_url"`
	Job            string `koanf:"job"`
}

// AlertConfig configures failure notifications.
type AlertConfig struct {
	SlackWebhookURL string `koanf:"slack_webhook_url"`
}

// AWSConfig configures blob store access for s3:// inputs.
type AWSConfig struct {
	Region string `koanf:"region"`
}

// New creates a Config populated with defaults.
func New() *Config {
	return &Config{
		LogLevel:              "info",
		LogFormat:             "text",
		NumWeeks:              NumWeeks,
		EventName:             "send_stats_email_weekly",
		MaxConcurrentRequests: 20,
		QueueSize:             100,
		WaitTimeout:           6000 * time.Second,
		UserLimit:             -1,
		Timezone:              "UTC",
		TaskIDPrefix:          "kite_coding_stats_mail/submissions_to_cio",
		Tracking: TrackingConfig{
			BaseURL: "https://track.customer.io",
			Timeout: 30 * time.Second,
		},
		Progress: ProgressConfig{
			Driver: ProgressDriverSQLite,
			DSN:    "statsmail.db",
		},
		Metrics: MetricsConfig{
			Job: "statsmail",
		},
		AWS: AWSConfig{
			Region: "us-east-1",
		},
	}
}

// Location resolves the configured time zone.
func (c *Config) Location() (*time.Location, error) {
	loc, err := time.LoadLocation(c.Timezone)
	if err != nil {
		return nil, errors.Mark(errors.Wrapf(err, "timezone %q", c.Timezone), ErrInvalidConfig)
	}
	return loc, nil
}

// Validate checks invariants the job relies on.
func (c *Config) Validate() error {
	switch {
	case c.NumWeeks != NumWeeks:
		return invalidf("num_weeks must be %d, got %d", NumWeeks, c.NumWeeks)
	case c.EventName == "":
		return invalidf("event_name must not be empty")
	case c.MaxConcurrentRequests < 1:
		return invalidf("max_concurrent_requests must be positive, got %d", c.MaxConcurrentRequests)
	case c.QueueSize < c.MaxConcurrentRequests:
		return invalidf("queue_size (%d) must be at least max_concurrent_requests (%d)", c.QueueSize, c.MaxConcurrentRequests)
	case c.WaitTimeout <= 0:
		return invalidf("wait_timeout must be positive")
	case c.TaskIDPrefix == "":
		return invalidf("task_id_prefix must not be empty")
	case c.Tracking.RequestsPerSecond < 0:
		return invalidf("tracking.requests_per_second must not be negative")
	}

	switch c.Progress.Driver {
	case ProgressDriverMemory:
	case ProgressDriverSQLite:
		if c.Progress.DSN == "" {
			return invalidf("progress.dsn is required for the sqlite driver")
		}
	default:
		return invalidf("unknown progress.driver %q", c.Progress.Driver)
	}

	if _, err := c.Location(); err != nil {
		return err
	}
	return nil
}

// ValidateTracking checks the credentials needed to send events.
func (c *Config) ValidateTracking() error {
	if c.Tracking.SiteID == "" || c.Tracking.APIKey == "" {
		return invalidf("tracking.site_id and tracking.api_key are required")
	}
	if c.Tracking.BaseURL == "" {
		return invalidf("tracking.base_url must not be empty")
	}
	return nil
}

// ValidateInputs checks that both input locations are set.
func (c *Config) ValidateInputs() error {
	if c.Inputs.Percentiles == "" {
		return invalidf("inputs.percentiles is required")
	}
	if c.Inputs.Stats == "" {
		return invalidf("inputs.stats is required")
	}
	return nil
}

func invalidf(format string, args ...interface{}) error {
	return errors.Mark(errors.Newf(format, args...), ErrInvalidConfig)
}
