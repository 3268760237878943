// Package dispatch streams stats rows to the tracking API with bounded
// concurrency and persists a resume cursor when a row fails.
//
// One producer (the caller of Run) owns the row iterator and the in-flight
// set. A fixed pool of workers performs the tracking calls; each worker builds
// its own tracker on first use so no client state is shared.
package dispatch

import (
	"context"
	"time"

	"github.com/cockroachdb/errors"
	"github.com/okian/statsmail/internal/adapters/source"
	"github.com/okian/statsmail/internal/adapters/tracking"
	"github.com/okian/statsmail/internal/domain/model"
	"github.com/okian/statsmail/pkg/logger"
	"github.com/okian/statsmail/pkg/metrics"
	"golang.org/x/sync/errgroup"
)

// Default dispatcher configuration constants.
const (
	defaultEventName     = "send_stats_email_weekly"
	defaultConcurrency   = 20
	defaultQueueSize     = 100
	defaultWaitTimeout   = 6000 * time.Second
	defaultProgressEvery = 1000
)

// Rows yields stats CSV records in file order. The bool is false once the
// input is drained.
type Rows interface {
	Next() (source.Record, bool, error)
}

// Shaper parses a record and builds its event; ok is false for rows that
// should not be sent.
type Shaper interface {
	ShapeFields(fields map[string]string) (userID string, ev model.Event, ok bool, err error)
}

// CursorStore persists the resume cursor of a task instance.
type CursorStore interface {
	StoreCursor(ctx context.Context, taskID string, v int) error
}

// Summary describes a finished run.
type Summary struct {
	Dispatched int
	Completed  int
	Sent       int
	Skipped    int
	Elapsed    time.Duration
}

type item struct {
	index  int
	userID string
	event  *model.Event
}

type result struct {
	index  int
	userID string
	sent   bool
	err    error
}

// Dispatcher drives one run. It is not safe for concurrent Runs.
type Dispatcher struct {
	factory tracking.Factory
	cursor  CursorStore

	eventName     string
	concurrency   int
	queueSize     int
	waitTimeout   time.Duration
	userLimit     int
	progressEvery int

	logger  logger.Logger
	metrics *metrics.Manager
}

// New creates a Dispatcher with configuration options.
func New(factory tracking.Factory, cursor CursorStore, opts ...Option) *Dispatcher {
	d := &Dispatcher{
		factory:       factory,
		cursor:        cursor,
		eventName:     defaultEventName,
		concurrency:   defaultConcurrency,
		queueSize:     defaultQueueSize,
		waitTimeout:   defaultWaitTimeout,
		userLimit:     -1,
		progressEvery: defaultProgressEvery,
		logger:        logger.Get().Named("dispatch"),
		metrics:       metrics.Default(),
	}
	for _, opt := range opts {
		opt(d)
	}
	if d.queueSize < d.concurrency {
		d.queueSize = d.concurrency
	}
	return d
}

// Run sends every row with index > startRow. On a worker failure at row k it
// stores max(0, k-P) as the cursor of taskID and returns the *WorkerError.
// A clean run writes nothing.
func (d *Dispatcher) Run(ctx context.Context, taskID string, rows Rows, shaper Shaper, startRow int) (Summary, error) {
	began := time.Now()
	var sum Summary

	runCtx, cancel := context.WithCancel(ctx)
	work := make(chan item, d.queueSize)
	results := make(chan result, d.queueSize)

	var g errgroup.Group
	for w := 0; w < d.concurrency; w++ {
		w := w
		g.Go(func() error {
			d.work(runCtx, w, work, results)
			return nil
		})
	}
	defer func() {
		close(work)
		cancel()
		_ = g.Wait()
		d.metrics.ResetInflight()
	}()

	d.logger.Info(ctx, "dispatch started",
		logger.String("task_id", taskID),
		logger.Int("start_row", startRow),
		logger.Int("workers", d.concurrency),
		logger.Int("queue_size", d.queueSize),
		logger.Int("user_limit", d.userLimit),
	)

	inflight := make(map[int]struct{}, d.queueSize)
	hasMore := true
	for hasMore || len(inflight) > 0 {
		for hasMore && len(inflight) < d.queueSize {
			it, ok, err := d.next(ctx, rows, shaper, startRow)
			if err != nil {
				sum.Elapsed = time.Since(began)
				return sum, err
			}
			if !ok {
				hasMore = false
				break
			}

			work <- it
			inflight[it.index] = struct{}{}
			sum.Dispatched++
			d.metrics.RecordDispatched()
			if it.event == nil {
				sum.Skipped++
				d.metrics.RecordSkipped()
			}
			if d.userLimit > 0 && sum.Dispatched >= d.userLimit {
				hasMore = false
			}
		}
		if len(inflight) == 0 {
			break
		}

		if err := d.await(ctx, taskID, results, inflight, !hasMore, &sum); err != nil {
			sum.Elapsed = time.Since(began)
			return sum, err
		}
	}

	sum.Elapsed = time.Since(began)
	d.logger.Info(ctx, "dispatch finished",
		logger.String("task_id", taskID),
		logger.Int("dispatched", sum.Dispatched),
		logger.Int("sent", sum.Sent),
		logger.Int("skipped", sum.Skipped),
		logger.Any("elapsed", sum.Elapsed),
	)
	return sum, nil
}

// next reads records until one past startRow, then parses and shapes it.
func (d *Dispatcher) next(ctx context.Context, rows Rows, shaper Shaper, startRow int) (item, bool, error) {
	for {
		rec, more, err := rows.Next()
		if err != nil {
			return item{}, false, errors.Wrap(err, "read stats row")
		}
		if !more {
			return item{}, false, nil
		}
		d.metrics.RecordRowRead()
		if rec.Index <= startRow {
			continue
		}

		userID, ev, ok, err := shaper.ShapeFields(rec.Fields)
		if err != nil {
			d.logger.Error(ctx, "stats row rejected", logger.Int("row", rec.Index), logger.Error(err))
			return item{}, false, errors.Wrapf(err, "row %d", rec.Index)
		}
		it := item{index: rec.Index, userID: userID}
		if ok {
			it.event = &ev
		}
		return it, true, nil
	}
}

// await blocks for one completion, then collects whatever else is ready. With
// all set it blocks until the in-flight set is empty. A single timeout covers
// the whole call.
func (d *Dispatcher) await(ctx context.Context, taskID string, results <-chan result, inflight map[int]struct{}, all bool, sum *Summary) error {
	timer := time.NewTimer(d.waitTimeout)
	defer timer.Stop()

	for blocking := true; len(inflight) > 0; blocking = all {
		var res result
		if blocking {
			select {
			case res = <-results:
			case <-timer.C:
				oldest := oldestIndex(inflight)
				cause := errors.Mark(
					errors.Newf("no row completed within %s, oldest in-flight row %d", d.waitTimeout, oldest),
					ErrWaitTimeout)
				return d.persist(ctx, taskID, oldest, cause)
			case <-ctx.Done():
				return d.persist(ctx, taskID, oldestIndex(inflight),
					errors.Mark(errors.Wrap(ctx.Err(), "dispatch"), ErrInterrupted))
			}
		} else {
			select {
			case res = <-results:
			default:
				return nil
			}
		}

		delete(inflight, res.index)
		d.metrics.RecordCompleted()
		if res.err != nil {
			if ctx.Err() != nil {
				return d.persist(ctx, taskID, minIndex(res.index, inflight),
					errors.Mark(errors.Wrap(ctx.Err(), "dispatch"), ErrInterrupted))
			}
			return d.persist(ctx, taskID, res.index, &WorkerError{Index: res.index, UserID: res.userID, Err: res.err})
		}

		sum.Completed++
		if res.sent {
			sum.Sent++
		}
		if sum.Completed%d.progressEvery == 0 {
			d.logger.Info(ctx, "processed rows",
				logger.Int("completed", sum.Completed),
				logger.Int("last_row", res.index),
				logger.Int("inflight", len(inflight)),
			)
		}
	}
	return nil
}

// persist stores the cursor for a failure at row index and returns cause.
func (d *Dispatcher) persist(ctx context.Context, taskID string, index int, cause error) error {
	cursor := max(0, index-d.concurrency)
	d.metrics.RecordCursor(cursor)

	if err := d.cursor.StoreCursor(context.WithoutCancel(ctx), taskID, cursor); err != nil {
		d.logger.Error(ctx, "cursor write failed",
			logger.String("task_id", taskID),
			logger.Int("cursor", cursor),
			logger.Error(err),
		)
		return errors.WithSecondaryError(cause, err)
	}
	d.metrics.RecordCursorWrite()
	d.logger.Warn(ctx, "cursor persisted after failure",
		logger.String("task_id", taskID),
		logger.Int("failed_row", index),
		logger.Int("cursor", cursor),
		logger.Error(cause),
	)
	return cause
}

// work runs one worker until in is closed.
func (d *Dispatcher) work(ctx context.Context, id int, in <-chan item, out chan<- result) {
	var tracker tracking.Tracker
	log := d.logger.With(logger.Int("worker", id))

	for it := range in {
		res := result{index: it.index, userID: it.userID}
		switch {
		case ctx.Err() != nil:
			res.err = ctx.Err()
		case it.event == nil:
		default:
			if tracker == nil {
				t, err := d.factory()
				if err != nil {
					res.err = errors.Wrap(err, "build tracker")
					break
				}
				tracker = t
			}
			began := time.Now()
			err := tracker.Track(ctx, it.userID, d.eventName, it.event)
			latency := time.Since(began)
			if err != nil {
				d.metrics.RecordTrackingError(errorKind(err), latency)
				log.Debug(ctx, "track failed", logger.Int("row", it.index), logger.Error(err))
				res.err = err
				break
			}
			d.metrics.RecordSent(latency)
			res.sent = true
		}
		out <- res
	}
}

func errorKind(err error) string {
	var se *tracking.StatusError
	switch {
	case errors.As(err, &se) && se.StatusCode >= 500:
		return "status_5xx"
	case errors.As(err, &se):
		return "status_4xx"
	case errors.Is(err, context.Canceled), errors.Is(err, context.DeadlineExceeded):
		return "canceled"
	case errors.Is(err, tracking.ErrTransport):
		return "transport"
	default:
		return "other"
	}
}

func oldestIndex(inflight map[int]struct{}) int {
	oldest := -1
	for i := range inflight {
		if oldest < 0 || i < oldest {
			oldest = i
		}
	}
	return oldest
}

func minIndex(index int, inflight map[int]struct{}) int {
	if o := oldestIndex(inflight); o >= 0 && o < index {
		return o
	}
	return index
}
