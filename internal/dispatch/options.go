package dispatch

import (
	"time"

	"github.com/okian/statsmail/pkg/logger"
	"github.com/okian/statsmail/pkg/metrics"
)

// Option applies a configuration option to the Dispatcher.
type Option func(*Dispatcher)

// WithEventName sets the tracking event name.
func WithEventName(name string) Option {
	return func(d *Dispatcher) {
		if name != "" {
			d.eventName = name
		}
	}
}

// WithConcurrency sets the number of workers calling the tracking API.
func WithConcurrency(n int) Option {
	return func(d *Dispatcher) {
		if n > 0 {
			d.concurrency = n
		}
	}
}

// WithQueueSize caps rows submitted but not yet completed.
func WithQueueSize(n int) Option {
	return func(d *Dispatcher) {
		if n > 0 {
			d.queueSize = n
		}
	}
}

// WithWaitTimeout bounds each wait for in-flight rows.
func WithWaitTimeout(t time.Duration) Option {
	return func(d *Dispatcher) {
		if t > 0 {
			d.waitTimeout = t
		}
	}
}

// WithUserLimit stops after n dispatched rows when n > 0.
func WithUserLimit(n int) Option {
	return func(d *Dispatcher) {
		d.userLimit = n
	}
}

// WithProgressEvery sets how many completed rows pass between progress logs.
func WithProgressEvery(n int) Option {
	return func(d *Dispatcher) {
		if n > 0 {
			d.progressEvery = n
		}
	}
}

// WithLogger sets a custom logger.
func WithLogger(l logger.Logger) Option {
	return func(d *Dispatcher) {
		if l != nil {
			d.logger = l
		}
	}
}

// WithMetrics sets the metrics manager.
func WithMetrics(m *metrics.Manager) Option {
	return func(d *Dispatcher) {
		if m != nil {
			d.metrics = m
		}
	}
}
