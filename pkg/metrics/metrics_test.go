package metrics

import (
	"context"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/cockroachdb/errors"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	. "github.com/smartystreets/goconvey/convey"
)

func TestMetricsManagerCreation(t *testing.T) {
	Convey("Given metrics manager creation", t, func() {
		Convey("When creating with a custom registry", func() {
			registry := prometheus.NewRegistry()
			manager := NewManager(WithPrometheusRegistry(registry))

			Convey("Then collectors are registered on that registry", func() {
				So(manager.Registry(), ShouldEqual, registry)
				manager.RecordRowRead()
				families, err := registry.Gather()
				So(err, ShouldBeNil)
				So(len(families), ShouldBeGreaterThan, 0)
			})
		})

		Convey("When creating two managers without a registry", func() {
			Convey("Then they do not collide", func() {
				So(func() {
					NewManager()
					NewManager()
				}, ShouldNotPanic)
			})
		})

		Convey("When using custom naming", func() {
			manager := NewManager(WithNamespace("test"), WithSubsystem("unit"), WithHistogramBuckets([]float64{0.1, 1}))
			manager.RecordSent(50 * time.Millisecond)

			Convey("Then metric names carry the prefix", func() {
				families, err := manager.Registry().Gather()
				So(err, ShouldBeNil)
				names := make([]string, 0, len(families))
				for _, f := range families {
					names = append(names, f.GetName())
				}
				So(names, ShouldContain, "test_unit_events_sent_total")
			})
		})
	})
}

func TestMetricsRecording(t *testing.T) {
	Convey("Given a fresh manager", t, func() {
		m := NewManager()

		Convey("When rows flow through dispatch", func() {
			m.RecordRowRead()
			m.RecordRowRead()
			m.RecordDispatched()
			m.RecordDispatched()
			m.RecordSkipped()
			m.RecordCompleted()
			m.RecordSent(10 * time.Millisecond)
			m.RecordTrackingError("status", 5*time.Millisecond)

			Convey("Then counters and gauges track them", func() {
				So(testutil.ToFloat64(m.rowsRead), ShouldEqual, 2)
				So(testutil.ToFloat64(m.eventsDispatched), ShouldEqual, 2)
				So(testutil.ToFloat64(m.eventsSkipped), ShouldEqual, 1)
				So(testutil.ToFloat64(m.inflight), ShouldEqual, 1)
				So(testutil.ToFloat64(m.eventsSent), ShouldEqual, 1)
				So(testutil.ToFloat64(m.trackingErrors.WithLabelValues("status")), ShouldEqual, 1)
			})

			Convey("And the in-flight gauge can be reset", func() {
				m.ResetInflight()
				So(testutil.ToFloat64(m.inflight), ShouldEqual, 0)
			})
		})

		Convey("When the cursor is written", func() {
			m.RecordCursor(17)
			m.RecordCursorWrite()

			Convey("Then the gauge holds the value", func() {
				So(testutil.ToFloat64(m.cursor), ShouldEqual, 17)
				So(testutil.ToFloat64(m.cursorWrites), ShouldEqual, 1)
			})
		})

		Convey("When a run succeeds", func() {
			now := time.Unix(1_611_446_400, 0)
			m.RecordRunSuccess(now)
			m.RecordRunDuration(3 * time.Second)

			Convey("Then the timestamp is exported", func() {
				So(testutil.ToFloat64(m.lastSuccess), ShouldEqual, 1_611_446_400)
			})
		})
	})
}

func TestHTTPRequestMetrics(t *testing.T) {
	Convey("Given a fresh manager", t, func() {
		m := NewManager()

		Convey("When the ops endpoint serves requests", func() {
			m.RecordHTTPRequest("healthz", http.MethodGet, "200", 2*time.Millisecond)
			m.RecordHTTPRequest("healthz", http.MethodGet, "200", time.Millisecond)
			m.RecordHTTPRequest("stats", http.MethodPost, "404", time.Millisecond)

			Convey("Then requests are counted per endpoint and status", func() {
				So(testutil.ToFloat64(m.httpRequests.WithLabelValues("healthz", http.MethodGet, "200")), ShouldEqual, 2)
				So(testutil.ToFloat64(m.httpRequests.WithLabelValues("stats", http.MethodPost, "404")), ShouldEqual, 1)
			})
		})
	})
}

func TestMetricsHandler(t *testing.T) {
	Convey("Given a manager with a recorded row", t, func() {
		m := NewManager()
		m.RecordRowRead()

		Convey("When scraping the handler", func() {
			srv := httptest.NewServer(m.Handler())
			defer srv.Close()

			resp, err := http.Get(srv.URL)
			So(err, ShouldBeNil)
			defer resp.Body.Close()
			body, _ := io.ReadAll(resp.Body)

			Convey("Then the exposition contains the counter", func() {
				So(resp.StatusCode, ShouldEqual, http.StatusOK)
				So(string(body), ShouldContainSubstring, "statsmail_dispatch_rows_read_total 1")
			})
		})
	})
}

func TestMetricsPush(t *testing.T) {
	Convey("Given a Pushgateway", t, func() {
		var gotPath string
		status := http.StatusOK
		gw := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			gotPath = r.URL.Path
			w.WriteHeader(status)
		}))
		defer gw.Close()

		m := NewManager()
		m.RecordRowRead()

		Convey("When pushing with a grouping label", func() {
			err := m.Push(context.Background(), gw.URL, "statsmail", map[string]string{"run_id": "abc"})

			Convey("Then the job and grouping end up in the path", func() {
				So(err, ShouldBeNil)
				So(strings.HasPrefix(gotPath, "/metrics/job/statsmail"), ShouldBeTrue)
				So(gotPath, ShouldContainSubstring, "run_id/abc")
			})
		})

		Convey("When the gateway rejects the push", func() {
			status = http.StatusInternalServerError
			err := m.Push(context.Background(), gw.URL, "statsmail", nil)

			Convey("Then the error is marked", func() {
				So(err, ShouldNotBeNil)
				So(errors.Is(err, ErrPushFailed), ShouldBeTrue)
			})
		})
	})
}

func TestDefaultManager(t *testing.T) {
	Convey("Given the process-wide manager", t, func() {
		Convey("Then it is registered on the custom registry", func() {
			So(Default(), ShouldNotBeNil)
			So(Default().Registry(), ShouldEqual, GetRegistry())
		})
	})
}
