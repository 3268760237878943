package tracking

import (
	"github.com/okian/statsmail/internal/config"
	"golang.org/x/time/rate"
)

// Factory builds a fresh Tracker for one worker.
type Factory func() (Tracker, error)

// NewFactory returns a Factory producing Clients from cfg. All clients share
// one rate limiter when cfg.RequestsPerSecond is positive; nothing else is
// shared.
func NewFactory(cfg config.TrackingConfig, opts ...Option) Factory {
	var limiter *rate.Limiter
	if cfg.RequestsPerSecond > 0 {
		burst := int(cfg.RequestsPerSecond)
		if burst < 1 {
			burst = 1
		}
		limiter = rate.NewLimiter(rate.Limit(cfg.RequestsPerSecond), burst)
	}

	return func() (Tracker, error) {
		base := []Option{
			WithBaseURL(cfg.BaseURL),
			WithTimeout(cfg.Timeout),
			WithLimiter(limiter),
		}
		return NewClient(cfg.SiteID, cfg.APIKey, append(base, opts...)...), nil
	}
}
