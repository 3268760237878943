package dispatch_test

import (
	"context"
	"io"
	"os"
	"strconv"
	"strings"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/cockroachdb/errors"
	"github.com/okian/statsmail/internal/adapters/progress"
	"github.com/okian/statsmail/internal/adapters/source"
	"github.com/okian/statsmail/internal/adapters/tracking"
	"github.com/okian/statsmail/internal/dispatch"
	"github.com/okian/statsmail/internal/domain/model"
	"github.com/okian/statsmail/internal/domain/percentile"
	"github.com/okian/statsmail/internal/domain/shaper"
	"github.com/okian/statsmail/internal/domain/statsrow"
	"github.com/okian/statsmail/pkg/logger"
	"github.com/okian/statsmail/pkg/metrics"
	"github.com/prometheus/client_golang/prometheus/testutil"
	. "github.com/smartystreets/goconvey/convey"
)

const taskID = "stats/2021-01-24"

func TestMain(m *testing.M) {
	if err := logger.InitWith(io.Discard, logger.FormatText); err != nil {
		panic(err)
	}
	os.Exit(m.Run())
}

// sliceRows serves pre-built records in order.
type sliceRows struct {
	recs []source.Record
	pos  int
}

func (r *sliceRows) Next() (source.Record, bool, error) {
	if r.pos >= len(r.recs) {
		return source.Record{}, false, nil
	}
	rec := r.recs[r.pos]
	r.pos++
	return rec, true, nil
}

// makeRows builds n rows; rows whose index is in inactive carry no activity.
func makeRows(n int, inactive ...int) *sliceRows {
	skip := map[int]bool{}
	for _, i := range inactive {
		skip[i] = true
	}
	rows := &sliceRows{}
	for i := 0; i < n; i++ {
		row := model.CodingStatRow{
			UserID:              "u" + strconv.Itoa(i),
			TotalWeeks:          i,
			CodingHours:         model.WeeklyHours{},
			PythonHours:         model.WeeklyHours{},
			CompletionsSelected: model.WeeklyCounts{},
		}
		if !skip[i] {
			row.CodingHours[0] = float64(i%10 + 1)
		}
		rows.recs = append(rows.recs, source.Record{Index: i, Fields: statsrow.Format(row)})
	}
	return rows
}

// fakeTracker records calls; rows listed in fail return an error.
type fakeTracker struct {
	mu       sync.Mutex
	calls    []int
	fail     map[int]error
	block    bool
	delay    time.Duration
	built    int32
	lastName string
}

func (f *fakeTracker) factory() (tracking.Tracker, error) {
	atomic.AddInt32(&f.built, 1)
	return trackerFunc(f.track), nil
}

type trackerFunc func(ctx context.Context, customerID, name string, data any) error

func (fn trackerFunc) Track(ctx context.Context, customerID, name string, data any) error {
	return fn(ctx, customerID, name, data)
}

func (f *fakeTracker) track(ctx context.Context, customerID, name string, data any) error {
	idx, _ := strconv.Atoi(strings.TrimPrefix(customerID, "u"))
	if _, ok := data.(*model.Event); !ok {
		return errors.Newf("unexpected payload %T", data)
	}
	if f.block {
		<-ctx.Done()
		return ctx.Err()
	}
	if f.delay > 0 {
		time.Sleep(f.delay)
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls = append(f.calls, idx)
	f.lastName = name
	if err, ok := f.fail[idx]; ok {
		return err
	}
	return nil
}

func (f *fakeTracker) called() []int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]int(nil), f.calls...)
}

type failingCursor struct{}

func (failingCursor) StoreCursor(context.Context, string, int) error {
	return errors.New("disk full")
}

func testShaper() *shaper.Shaper {
	values := make([]float64, percentile.Count)
	for i := range values {
		values[i] = float64(i+1) * 0.1
	}
	table, err := percentile.New(values)
	if err != nil {
		panic(err)
	}
	return shaper.New(table, time.Date(2021, time.January, 24, 0, 0, 0, 0, time.UTC), time.UTC)
}

func counts(indices []int) map[int]int {
	out := map[int]int{}
	for _, i := range indices {
		out[i]++
	}
	return out
}

func TestDispatcher(t *testing.T) {
	ctx := context.Background()

	Convey("Given a dispatcher with 20 workers and a queue of 100", t, func() {
		tracker := &fakeTracker{fail: map[int]error{}}
		store := progress.NewMemoryStore()
		harness := progress.NewHarness(store)
		m := metrics.NewManager()
		opts := []dispatch.Option{
			dispatch.WithConcurrency(20),
			dispatch.WithQueueSize(100),
			dispatch.WithMetrics(m),
			dispatch.WithProgressEvery(50),
		}
		d := dispatch.New(tracker.factory, harness, opts...)

		Convey("When every row succeeds from cursor 0", func() {
			sum, err := d.Run(ctx, taskID, makeRows(250), testShaper(), 0)

			Convey("Then each row after the cursor is tracked exactly once", func() {
				So(err, ShouldBeNil)
				got := counts(tracker.called())
				So(got, ShouldHaveLength, 249)
				for i := 1; i < 250; i++ {
					So(got[i], ShouldEqual, 1)
				}
				So(got[0], ShouldEqual, 0)
				So(sum.Dispatched, ShouldEqual, 249)
				So(sum.Sent, ShouldEqual, 249)
				So(sum.Completed, ShouldEqual, 249)
				So(tracker.lastName, ShouldEqual, "send_stats_email_weekly")
			})

			Convey("Then no cursor is written", func() {
				_, ok, err := store.Get(ctx, taskID, progress.CursorKey)
				So(err, ShouldBeNil)
				So(ok, ShouldBeFalse)
			})

			Convey("Then at most one tracker is built per worker", func() {
				built := atomic.LoadInt32(&tracker.built)
				So(built, ShouldBeGreaterThanOrEqualTo, 1)
				So(built, ShouldBeLessThanOrEqualTo, 20)
			})
		})

		Convey("When some users are inactive", func() {
			sum, err := d.Run(ctx, taskID, makeRows(10, 2, 5, 6), testShaper(), 0)

			Convey("Then they are dispatched but never tracked", func() {
				So(err, ShouldBeNil)
				got := counts(tracker.called())
				So(got, ShouldNotContainKey, 2)
				So(got, ShouldNotContainKey, 5)
				So(got, ShouldNotContainKey, 6)
				So(got, ShouldHaveLength, 6)
				So(sum.Dispatched, ShouldEqual, 9)
				So(sum.Skipped, ShouldEqual, 3)
				So(sum.Sent, ShouldEqual, 6)

				expected := `
# HELP statsmail_dispatch_events_skipped_total Rows that produced no event because the user was inactive
# TYPE statsmail_dispatch_events_skipped_total counter
statsmail_dispatch_events_skipped_total 3
`
				So(testutil.GatherAndCompare(m.Registry(), strings.NewReader(expected),
					"statsmail_dispatch_events_skipped_total"), ShouldBeNil)
			})
		})

		Convey("When the worker fails on row 37", func() {
			cause := errors.New("tracking api returned 500")
			tracker.fail[37] = cause

			_, err := d.Run(ctx, taskID, makeRows(200), testShaper(), 0)

			Convey("Then the worker error is returned unchanged underneath", func() {
				var werr *dispatch.WorkerError
				So(errors.As(err, &werr), ShouldBeTrue)
				So(werr.Index, ShouldEqual, 37)
				So(werr.UserID, ShouldEqual, "u37")
				So(errors.Is(err, cause), ShouldBeTrue)
			})

			Convey("Then the cursor backs off by the pool width", func() {
				cursor, err := harness.LoadCursor(ctx, taskID)
				So(err, ShouldBeNil)
				So(cursor, ShouldEqual, 17)
			})

			Convey("And the next run resumes after the cursor", func() {
				delete(tracker.fail, 37)
				tracker.calls = nil
				cursor, _ := harness.LoadCursor(ctx, taskID)

				_, err := d.Run(ctx, taskID, makeRows(200), testShaper(), cursor)
				So(err, ShouldBeNil)

				got := counts(tracker.called())
				So(got, ShouldHaveLength, 200-18)
				for i := 18; i <= 37; i++ {
					So(got[i], ShouldEqual, 1)
				}
				So(got, ShouldNotContainKey, 17)
			})
		})

		Convey("When the failure is on an early row", func() {
			tracker.fail[3] = errors.New("boom")
			_, err := d.Run(ctx, taskID, makeRows(50), testShaper(), 0)

			Convey("Then the cursor never goes below zero", func() {
				So(err, ShouldNotBeNil)
				cursor, _ := harness.LoadCursor(ctx, taskID)
				So(cursor, ShouldEqual, 0)
			})
		})

		Convey("When the cursor cannot be stored", func() {
			tracker.fail[30] = errors.New("boom")
			d := dispatch.New(tracker.factory, failingCursor{}, opts...)
			_, err := d.Run(ctx, taskID, makeRows(60), testShaper(), 0)

			Convey("Then the worker error still surfaces", func() {
				var werr *dispatch.WorkerError
				So(errors.As(err, &werr), ShouldBeTrue)
				So(werr.Index, ShouldEqual, 30)
			})
		})

		Convey("When a row cannot be parsed", func() {
			rows := makeRows(20)
			rows.recs[9].Fields["streak"] = "many"
			_, err := d.Run(ctx, taskID, rows, testShaper(), 0)

			Convey("Then an input format error surfaces and no cursor is written", func() {
				So(errors.Is(err, model.ErrInputFormat), ShouldBeTrue)
				So(err.Error(), ShouldContainSubstring, "row 9")
				_, ok, _ := store.Get(ctx, taskID, progress.CursorKey)
				So(ok, ShouldBeFalse)
			})
		})

		Convey("When a user limit of 5 is set", func() {
			d := dispatch.New(tracker.factory, harness, append(opts, dispatch.WithUserLimit(5))...)
			sum, err := d.Run(ctx, taskID, makeRows(50), testShaper(), 0)

			Convey("Then rows 1 through 5 are sent and iteration stops", func() {
				So(err, ShouldBeNil)
				So(sum.Dispatched, ShouldEqual, 5)
				So(counts(tracker.called()), ShouldResemble, map[int]int{1: 1, 2: 1, 3: 1, 4: 1, 5: 1})
			})
		})

		Convey("When the tracker factory fails", func() {
			d := dispatch.New(func() (tracking.Tracker, error) {
				return nil, errors.New("no credentials")
			}, harness, opts...)
			_, err := d.Run(ctx, taskID, makeRows(40), testShaper(), 0)

			Convey("Then it is reported as a worker error", func() {
				var werr *dispatch.WorkerError
				So(errors.As(err, &werr), ShouldBeTrue)
				So(err.Error(), ShouldContainSubstring, "no credentials")
			})
		})

		Convey("When the source is empty past the cursor", func() {
			sum, err := d.Run(ctx, taskID, makeRows(10), testShaper(), 9)

			Convey("Then the run is a clean no-op", func() {
				So(err, ShouldBeNil)
				So(sum.Dispatched, ShouldEqual, 0)
				So(tracker.called(), ShouldBeEmpty)
			})
		})
	})
}

func TestDispatcherOrdering(t *testing.T) {
	Convey("Given a single worker", t, func() {
		tracker := &fakeTracker{fail: map[int]error{}}
		d := dispatch.New(tracker.factory, progress.NewHarness(progress.NewMemoryStore()),
			dispatch.WithConcurrency(1),
			dispatch.WithQueueSize(4),
			dispatch.WithMetrics(metrics.NewManager()),
		)

		Convey("When rows are dispatched from cursor 12", func() {
			_, err := d.Run(context.Background(), taskID, makeRows(60), testShaper(), 12)

			Convey("Then submissions are strictly increasing from cursor+1", func() {
				So(err, ShouldBeNil)
				calls := tracker.called()
				So(calls, ShouldHaveLength, 47)
				So(calls[0], ShouldEqual, 13)
				for i := 1; i < len(calls); i++ {
					So(calls[i], ShouldEqual, calls[i-1]+1)
				}
			})
		})
	})
}

func TestDispatcherTimeouts(t *testing.T) {
	Convey("Given workers that never finish", t, func() {
		tracker := &fakeTracker{block: true}
		harness := progress.NewHarness(progress.NewMemoryStore())
		d := dispatch.New(tracker.factory, harness,
			dispatch.WithConcurrency(4),
			dispatch.WithQueueSize(8),
			dispatch.WithWaitTimeout(50*time.Millisecond),
			dispatch.WithMetrics(metrics.NewManager()),
		)

		Convey("When the wait timeout elapses", func() {
			_, err := d.Run(context.Background(), taskID, makeRows(30), testShaper(), 10)

			Convey("Then the run fails and the cursor backs off from the oldest row", func() {
				So(errors.Is(err, dispatch.ErrWaitTimeout), ShouldBeTrue)
				cursor, _ := harness.LoadCursor(context.Background(), taskID)
				So(cursor, ShouldEqual, 11-4)
			})
		})

		Convey("When the caller cancels", func() {
			ctx, cancel := context.WithCancel(context.Background())
			time.AfterFunc(20*time.Millisecond, cancel)
			d := dispatch.New(tracker.factory, harness,
				dispatch.WithConcurrency(4),
				dispatch.WithQueueSize(8),
				dispatch.WithMetrics(metrics.NewManager()),
			)
			_, err := d.Run(ctx, taskID, makeRows(30), testShaper(), 20)

			Convey("Then the run is interrupted and a cursor is kept", func() {
				So(errors.Is(err, dispatch.ErrInterrupted), ShouldBeTrue)
				So(errors.Is(err, context.Canceled), ShouldBeTrue)
				cursor, _ := harness.LoadCursor(context.Background(), taskID)
				So(cursor, ShouldEqual, 17)
			})
		})
	})
}
