// Package app wires the weekly stats mail job: inputs, progress, dispatch and
// the failure alert.
package app

import (
	"context"
	"io"
	"sync"
	"time"

	"github.com/cockroachdb/errors"
	"github.com/google/uuid"
	"github.com/okian/statsmail/internal/adapters/alert"
	"github.com/okian/statsmail/internal/adapters/progress"
	"github.com/okian/statsmail/internal/adapters/source"
	"github.com/okian/statsmail/internal/adapters/tracking"
	"github.com/okian/statsmail/internal/config"
	"github.com/okian/statsmail/internal/dispatch"
	"github.com/okian/statsmail/internal/domain/percentile"
	"github.com/okian/statsmail/internal/domain/shaper"
	"github.com/okian/statsmail/pkg/logger"
	"github.com/okian/statsmail/pkg/metrics"
)

// Run states reported by GetStats.
const (
	StateIdle      = "idle"
	StateRunning   = "running"
	StateSucceeded = "succeeded"
	StateFailed    = "failed"
)

// Opener resolves input URIs.
type Opener interface {
	Open(ctx context.Context, uri string) (*source.Reader, error)
	OpenFile(ctx context.Context, uri string) (io.ReadCloser, error)
}

// Job runs one scheduled instance of the weekly send.
type Job struct {
	cfg *config.Config

	factory  tracking.Factory
	harness  *progress.Harness
	opener   Opener
	notifier alert.Notifier
	metrics  *metrics.Manager
	logger   logger.Logger
	now      func() time.Time

	mu    sync.RWMutex
	state runState
}

type runState struct {
	runID      string
	taskID     string
	state      string
	startRow   int
	startedAt  time.Time
	finishedAt time.Time
	summary    dispatch.Summary
	err        error
}

// New constructs a Job from cfg. Dependencies not supplied through options
// are built from cfg: Customer.io clients, an in-memory progress store, a
// local/S3 opener, and a Slack notifier when a webhook is configured.
func New(cfg *config.Config, opts ...Option) *Job {
	j := &Job{
		cfg:      cfg,
		factory:  tracking.NewFactory(cfg.Tracking),
		harness:  progress.NewHarness(progress.NewMemoryStore()),
		opener:   source.NewOpener(source.WithRegion(cfg.AWS.Region)),
		notifier: alert.Nop{},
		metrics:  metrics.Default(),
		logger:   logger.Get().Named("job"),
		now:      time.Now,
		state:    runState{state: StateIdle},
	}
	if cfg.Alert.SlackWebhookURL != "" {
		j.notifier = alert.NewSlack(cfg.Alert.SlackWebhookURL)
	}
	for _, opt := range opts {
		opt(j)
	}
	return j
}

// TaskID returns the progress scope of the instance for executionDate.
func (j *Job) TaskID(executionDate time.Time) string {
	return progress.TaskID(j.cfg.TaskIDPrefix, executionDate)
}

// Run sends the weekly event to every active user in the stats CSV, resuming
// from the persisted cursor. On failure it alerts and returns the error; the
// cursor has already been written by the dispatcher.
func (j *Job) Run(ctx context.Context, executionDate time.Time) (dispatch.Summary, error) {
	runID := uuid.NewString()
	taskID := j.TaskID(executionDate)
	log := j.logger.With(logger.String("run_id", runID), logger.String("task_id", taskID))
	began := j.now()

	j.mu.Lock()
	j.state = runState{runID: runID, taskID: taskID, state: StateRunning, startedAt: began}
	j.mu.Unlock()

	log.Info(ctx, "run started",
		logger.String("execution_date", executionDate.Format("2006-01-02")),
		logger.String("percentiles", j.cfg.Inputs.Percentiles),
		logger.String("stats", j.cfg.Inputs.Stats),
	)

	sum, err := j.run(ctx, log, taskID, executionDate)

	j.mu.Lock()
	j.state.summary = sum
	j.state.finishedAt = j.now()
	j.state.err = err
	if err != nil {
		j.state.state = StateFailed
	} else {
		j.state.state = StateSucceeded
	}
	j.mu.Unlock()

	if err != nil {
		log.Error(ctx, "run failed", logger.Error(err))
		j.alert(ctx, log, alert.Failure{
			TaskID:        taskID,
			ExecutionDate: executionDate,
			RunID:         runID,
			Err:           err,
		})
	} else {
		j.metrics.RecordRunSuccess(j.now())
		j.metrics.RecordRunDuration(j.now().Sub(began))
		log.Info(ctx, "run succeeded",
			logger.Int("sent", sum.Sent),
			logger.Int("skipped", sum.Skipped),
			logger.Any("elapsed", sum.Elapsed),
		)
	}

	j.push(ctx, log, taskID, runID)
	return sum, err
}

func (j *Job) run(ctx context.Context, log logger.Logger, taskID string, executionDate time.Time) (dispatch.Summary, error) {
	if err := j.cfg.ValidateInputs(); err != nil {
		return dispatch.Summary{}, err
	}
	loc, err := j.cfg.Location()
	if err != nil {
		return dispatch.Summary{}, err
	}

	table, err := j.loadPercentiles(ctx)
	if err != nil {
		return dispatch.Summary{}, err
	}

	start, err := j.harness.LoadCursor(ctx, taskID)
	if err != nil {
		return dispatch.Summary{}, errors.Wrap(err, "load cursor")
	}
	j.metrics.RecordCursor(start)
	j.mu.Lock()
	j.state.startRow = start
	j.mu.Unlock()

	rows, err := j.opener.Open(ctx, j.cfg.Inputs.Stats)
	if err != nil {
		return dispatch.Summary{}, err
	}
	defer func() {
		if cerr := rows.Close(); cerr != nil {
			log.Warn(ctx, "close stats source", logger.Error(cerr))
		}
	}()

	d := dispatch.New(j.factory, j.harness,
		dispatch.WithEventName(j.cfg.EventName),
		dispatch.WithConcurrency(j.cfg.MaxConcurrentRequests),
		dispatch.WithQueueSize(j.cfg.QueueSize),
		dispatch.WithWaitTimeout(j.cfg.WaitTimeout),
		dispatch.WithUserLimit(j.cfg.UserLimit),
		dispatch.WithLogger(log.Named("dispatch")),
		dispatch.WithMetrics(j.metrics),
	)
	return d.Run(ctx, taskID, rows, shaper.New(table, executionDate, loc), start)
}

func (j *Job) loadPercentiles(ctx context.Context) (*percentile.Table, error) {
	uri := j.cfg.Inputs.Percentiles
	rc, err := j.opener.OpenFile(ctx, uri)
	if err != nil {
		return nil, errors.Mark(err, ErrPercentiles)
	}
	defer rc.Close()

	table, err := percentile.Load(rc)
	if err != nil {
		return nil, errors.Mark(errors.Wrapf(err, "percentiles %s", uri), ErrPercentiles)
	}
	return table, nil
}

// alert reports a failure with the cursor the next attempt will resume from.
// Delivery problems are logged and never replace the run error.
func (j *Job) alert(ctx context.Context, log logger.Logger, f alert.Failure) {
	ctx = context.WithoutCancel(ctx)
	cursor, err := j.harness.LoadCursor(ctx, f.TaskID)
	if err != nil {
		log.Warn(ctx, "cursor unavailable for alert", logger.Error(err))
	}
	f.Cursor = cursor

	if err := j.notifier.Notify(ctx, f); err != nil {
		log.Error(ctx, "failure alert not delivered", logger.Error(err))
	}
}

func (j *Job) push(ctx context.Context, log logger.Logger, taskID, runID string) {
	url := j.cfg.Metrics.PushgatewayURL
	if url == "" {
		return
	}
	grouping := map[string]string{"task_id": taskID, "run_id": runID}
	if err := j.metrics.Push(context.WithoutCancel(ctx), url, j.cfg.Metrics.Job, grouping); err != nil {
		log.Warn(ctx, "metrics push failed", logger.Error(err))
	}
}

// InitProgress resets the cursor of the instance for executionDate to zero.
func (j *Job) InitProgress(ctx context.Context, executionDate time.Time) error {
	taskID := j.TaskID(executionDate)
	if err := j.harness.InitCursor(ctx, taskID); err != nil {
		return errors.Wrapf(err, "init progress %s", taskID)
	}
	j.logger.Info(ctx, "progress initialized", logger.String("task_id", taskID))
	return nil
}

// Cursor returns the persisted cursor of the instance for executionDate.
func (j *Job) Cursor(ctx context.Context, executionDate time.Time) (int, error) {
	return j.harness.LoadCursor(ctx, j.TaskID(executionDate))
}

// SetCursor overwrites the cursor of the instance for executionDate.
func (j *Job) SetCursor(ctx context.Context, executionDate time.Time, v int) error {
	taskID := j.TaskID(executionDate)
	if err := j.harness.StoreCursor(ctx, taskID, v); err != nil {
		return errors.Wrapf(err, "set progress %s", taskID)
	}
	j.logger.Info(ctx, "progress set", logger.String("task_id", taskID), logger.Int("cursor", v))
	return nil
}

// GetStats returns a snapshot of the current or last run.
func (j *Job) GetStats() map[string]interface{} {
	j.mu.RLock()
	defer j.mu.RUnlock()

	s := j.state
	stats := map[string]interface{}{
		"state":                   s.state,
		"max_concurrent_requests": j.cfg.MaxConcurrentRequests,
		"queue_size":              j.cfg.QueueSize,
	}
	if s.state == StateIdle {
		return stats
	}

	stats["run_id"] = s.runID
	stats["task_id"] = s.taskID
	stats["start_row"] = s.startRow
	stats["started_at"] = s.startedAt.UTC().Format(time.RFC3339)
	if !s.finishedAt.IsZero() {
		stats["finished_at"] = s.finishedAt.UTC().Format(time.RFC3339)
		stats["dispatched"] = s.summary.Dispatched
		stats["sent"] = s.summary.Sent
		stats["skipped"] = s.summary.Skipped
	}
	if s.err != nil {
		stats["error"] = s.err.Error()
	}
	return stats
}
