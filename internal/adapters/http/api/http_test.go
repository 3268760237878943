package api_test

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"os"
	"testing"
	"time"

	"github.com/cockroachdb/errors"
	"github.com/okian/statsmail/internal/adapters/http/api"
	"github.com/okian/statsmail/pkg/logger"
	"github.com/okian/statsmail/pkg/metrics"
	"github.com/prometheus/client_golang/prometheus/testutil"
	. "github.com/smartystreets/goconvey/convey"
)

func TestMain(m *testing.M) {
	if err := logger.InitWith(io.Discard, logger.FormatText); err != nil {
		panic(err)
	}
	os.Exit(m.Run())
}

type staticStats map[string]interface{}

func (s staticStats) GetStats() map[string]interface{} { return s }

func decode(t *testing.T, resp *http.Response) map[string]interface{} {
	t.Helper()
	defer resp.Body.Close()
	var out map[string]interface{}
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		t.Fatalf("decode: %v", err)
	}
	return out
}

func TestOpsRoutes(t *testing.T) {
	Convey("Given an ops server over a fresh manager", t, func() {
		m := metrics.NewManager()
		m.RecordRowRead()
		srv := httptest.NewServer(api.NewServer(m, staticStats{"state": "running", "start_row": 17}).Handler())
		defer srv.Close()

		Convey("When GET /healthz", func() {
			resp, err := http.Get(srv.URL + "/healthz")
			So(err, ShouldBeNil)
			body := decode(t, resp)

			Convey("Then it reports ok and records the request", func() {
				So(resp.StatusCode, ShouldEqual, http.StatusOK)
				So(resp.Header.Get("Content-Type"), ShouldStartWith, "application/json")
				So(body["status"], ShouldEqual, "ok")
				n, err := testutil.GatherAndCount(m.Registry(), "statsmail_http_requests_total")
				So(err, ShouldBeNil)
				So(n, ShouldEqual, 1)
			})
		})

		Convey("When POST /healthz", func() {
			resp, err := http.Post(srv.URL+"/healthz", "text/plain", nil)
			So(err, ShouldBeNil)
			body := decode(t, resp)

			Convey("Then it is rejected", func() {
				So(resp.StatusCode, ShouldEqual, http.StatusMethodNotAllowed)
				So(body["code"], ShouldEqual, "method_not_allowed")
			})
		})

		Convey("When GET /stats", func() {
			resp, err := http.Get(srv.URL + "/stats")
			So(err, ShouldBeNil)
			body := decode(t, resp)

			Convey("Then the provider snapshot is returned", func() {
				So(resp.StatusCode, ShouldEqual, http.StatusOK)
				So(body["state"], ShouldEqual, "running")
				So(body["start_row"], ShouldEqual, 17.0)
			})
		})

		Convey("When GET /openapi.yaml", func() {
			resp, err := http.Get(srv.URL + "/openapi.yaml")
			So(err, ShouldBeNil)
			resp.Body.Close()

			Convey("Then the OpenAPI document is served", func() {
				So(resp.StatusCode, ShouldEqual, http.StatusOK)
			})
		})

		Convey("When GET /metrics", func() {
			resp, err := http.Get(srv.URL + "/metrics")
			So(err, ShouldBeNil)
			defer resp.Body.Close()
			raw, _ := io.ReadAll(resp.Body)

			Convey("Then the manager's registry is exposed", func() {
				So(resp.StatusCode, ShouldEqual, http.StatusOK)
				So(string(raw), ShouldContainSubstring, "statsmail_dispatch_rows_read_total 1")
			})
		})
	})

	Convey("Given an ops server without a stats provider", t, func() {
		srv := httptest.NewServer(api.NewServer(metrics.NewManager(), nil).Handler())
		defer srv.Close()

		Convey("When GET /stats", func() {
			resp, err := http.Get(srv.URL + "/stats")
			So(err, ShouldBeNil)
			resp.Body.Close()

			Convey("Then it is not found", func() {
				So(resp.StatusCode, ShouldEqual, http.StatusNotFound)
			})
		})
	})
}

func TestServe(t *testing.T) {
	Convey("Given an ops server", t, func() {
		s := api.NewServer(metrics.NewManager(), nil)

		Convey("When the address cannot be bound", func() {
			err := s.Serve(context.Background(), "256.0.0.1:bad")

			Convey("Then ErrServe is returned", func() {
				So(errors.Is(err, api.ErrServe), ShouldBeTrue)
			})
		})

		Convey("When the context ends", func() {
			ctx, cancel := context.WithCancel(context.Background())
			done := make(chan error, 1)
			go func() { done <- s.Serve(ctx, "127.0.0.1:0") }()
			time.Sleep(50 * time.Millisecond)
			cancel()

			Convey("Then it shuts down cleanly", func() {
				select {
				case err := <-done:
					So(err, ShouldBeNil)
				case <-time.After(5 * time.Second):
					t.Fatal("server did not stop")
				}
			})
		})
	})
}
