package config_test

import (
	"testing"
	"time"

	"github.com/cockroachdb/errors"
	"github.com/okian/statsmail/internal/config"
	"github.com/smartystreets/goconvey/convey"
)

func TestConfig_New(t *testing.T) {
	convey.Convey("Given a new config with default options", t, func() {
		cfg := config.New()

		convey.Convey("Then it should have sensible defaults", func() {
			convey.So(cfg.NumWeeks, convey.ShouldEqual, 6)
			convey.So(cfg.EventName, convey.ShouldEqual, "send_stats_email_weekly")
			convey.So(cfg.MaxConcurrentRequests, convey.ShouldEqual, 20)
			convey.So(cfg.QueueSize, convey.ShouldEqual, 100)
			convey.So(cfg.WaitTimeout, convey.ShouldEqual, 6000*time.Second)
			convey.So(cfg.UserLimit, convey.ShouldEqual, -1)
			convey.So(cfg.Timezone, convey.ShouldEqual, "UTC")
			convey.So(cfg.Progress.Driver, convey.ShouldEqual, config.ProgressDriverSQLite)
		})

		convey.Convey("Then the defaults validate", func() {
			convey.So(cfg.Validate(), convey.ShouldBeNil)
		})

		convey.Convey("Then inputs are required to send", func() {
			err := cfg.ValidateInputs()
			convey.So(errors.Is(err, config.ErrInvalidConfig), convey.ShouldBeTrue)
			convey.So(err.Error(), convey.ShouldContainSubstring, "inputs.percentiles")

			cfg.Inputs.Percentiles = "pct.csv"
			err = cfg.ValidateInputs()
			convey.So(err.Error(), convey.ShouldContainSubstring, "inputs.stats")

			cfg.Inputs.Stats = "s3://bucket/stats.csv"
			convey.So(cfg.ValidateInputs(), convey.ShouldBeNil)
		})

		convey.Convey("Then tracking credentials are still required to send", func() {
			err := cfg.ValidateTracking()
			convey.So(err, convey.ShouldNotBeNil)
			convey.So(errors.Is(err, config.ErrInvalidConfig), convey.ShouldBeTrue)
		})
	})
}

func TestConfig_Validate(t *testing.T) {
	convey.Convey("Given a valid config", t, func() {
		cfg := config.New()

		cases := []struct {
			name   string
			mutate func(*config.Config)
			substr string
		}{
			{"num_weeks", func(c *config.Config) { c.NumWeeks = 4 }, "num_weeks"},
			{"event_name", func(c *config.Config) { c.EventName = "" }, "event_name"},
			{"pool width", func(c *config.Config) { c.MaxConcurrentRequests = 0 }, "max_concurrent_requests"},
			{"queue below pool", func(c *config.Config) { c.QueueSize = 5 }, "queue_size"},
			{"wait timeout", func(c *config.Config) { c.WaitTimeout = 0 }, "wait_timeout"},
			{"timezone", func(c *config.Config) { c.Timezone = "Mars/Olympus" }, "timezone"},
			{"driver", func(c *config.Config) { c.Progress.Driver = "etcd" }, "progress.driver"},
			{"sqlite dsn", func(c *config.Config) { c.Progress.DSN = "" }, "progress.dsn"},
			{"rate", func(c *config.Config) { c.Tracking.RequestsPerSecond = -1 }, "requests_per_second"},
		}

		for _, tc := range cases {
			tc := tc
			convey.Convey("When "+tc.name+" is invalid", func() {
				tc.mutate(cfg)
				err := cfg.Validate()

				convey.Convey("Then validation fails with ErrInvalidConfig", func() {
					convey.So(err, convey.ShouldNotBeNil)
					convey.So(errors.Is(err, config.ErrInvalidConfig), convey.ShouldBeTrue)
					convey.So(err.Error(), convey.ShouldContainSubstring, tc.substr)
				})
			})
		}

		convey.Convey("When the memory driver is selected without a dsn", func() {
			cfg.Progress.Driver = config.ProgressDriverMemory
			cfg.Progress.DSN = ""

			convey.Convey("Then it validates", func() {
				convey.So(cfg.Validate(), convey.ShouldBeNil)
			})
		})

		convey.Convey("When a named time zone is configured", func() {
			cfg.Timezone = "America/Los_Angeles"
			loc, err := cfg.Location()

			convey.Convey("Then it resolves", func() {
				convey.So(err, convey.ShouldBeNil)
				convey.So(loc.String(), convey.ShouldEqual, "America/Los_Angeles")
			})
		})
	})
}
