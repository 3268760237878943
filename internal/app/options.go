package app

import (
	"time"

	"github.com/okian/statsmail/internal/adapters/alert"
	"github.com/okian/statsmail/internal/adapters/progress"
	"github.com/okian/statsmail/internal/adapters/tracking"
	"github.com/okian/statsmail/pkg/logger"
	"github.com/okian/statsmail/pkg/metrics"
)

// Option applies a configuration option to the Job.
type Option func(*Job)

// WithLogger sets a custom logger for the job.
func WithLogger(l logger.Logger) Option {
	return func(j *Job) {
		if l != nil {
			j.logger = l
		}
	}
}

// WithTrackerFactory replaces the factory built from the tracking config.
func WithTrackerFactory(f tracking.Factory) Option {
	return func(j *Job) {
		if f != nil {
			j.factory = f
		}
	}
}

// WithProgressStore sets where the resume cursor lives.
func WithProgressStore(s progress.Store) Option {
	return func(j *Job) {
		if s != nil {
			j.harness = progress.NewHarness(s)
		}
	}
}

// WithOpener sets how input URIs are resolved.
func WithOpener(o Opener) Option {
	return func(j *Job) {
		if o != nil {
			j.opener = o
		}
	}
}

// WithNotifier sets the failure alert sink.
func WithNotifier(n alert.Notifier) Option {
	return func(j *Job) {
		if n != nil {
			j.notifier = n
		}
	}
}

// WithMetrics sets the metrics manager.
func WithMetrics(m *metrics.Manager) Option {
	return func(j *Job) {
		if m != nil {
			j.metrics = m
		}
	}
}

// WithClock overrides time.Now.
func WithClock(now func() time.Time) Option {
	return func(j *Job) {
		if now != nil {
			j.now = now
		}
	}
}
