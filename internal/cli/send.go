package cli

import (
	"context"
	"fmt"
	"time"

	"github.com/okian/statsmail/internal/adapters/http/api"
	"github.com/okian/statsmail/internal/adapters/progress"
	"github.com/okian/statsmail/internal/adapters/tracking"
	"github.com/okian/statsmail/internal/app"
	"github.com/okian/statsmail/pkg/logger"
	"github.com/okian/statsmail/pkg/metrics"
	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"
)

// SendOptions holds flags for the send command.
type SendOptions struct {
	*RootOptions
	ExecutionDate string
	Percentiles   string
	Stats         string
	UserLimit     int

	// TrackerFactory overrides the Customer.io clients (for testing).
	TrackerFactory tracking.Factory
}

// NewSendCommand creates the send command.
func NewSendCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &SendOptions{RootOptions: rootOpts}

	cmd := &cobra.Command{
		Use:   "send",
		Short: "Send the weekly stats event to every active user",
		Long: `Read the percentile table and the stats CSV, then send one tracking event
per active user. On failure the resume cursor of the execution date is
persisted, and the next attempt continues from it.

Example:
  statsmail send --execution-date 2021-01-24 \
    --percentiles s3://bucket/pct.csv --stats s3://bucket/stats.csv`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return runSend(cmd, opts)
		},
	}

	cmd.Flags().StringVar(&opts.ExecutionDate, "execution-date", "", "scheduled date, YYYY-MM-DD (required)")
	cmd.Flags().StringVar(&opts.Percentiles, "percentiles", "", "percentile CSV path or s3:// URI (overrides inputs.percentiles)")
	cmd.Flags().StringVar(&opts.Stats, "stats", "", "stats CSV path or s3:// URI (overrides inputs.stats)")
	cmd.Flags().IntVar(&opts.UserLimit, "user-limit", -1, "stop after this many rows when positive (overrides user_limit)")
	_ = cmd.MarkFlagRequired("execution-date")

	return cmd
}

func runSend(cmd *cobra.Command, opts *SendOptions) error {
	ctx := commandContext(cmd)
	cfg := opts.Config

	if opts.Percentiles != "" {
		cfg.Inputs.Percentiles = opts.Percentiles
	}
	if opts.Stats != "" {
		cfg.Inputs.Stats = opts.Stats
	}
	if cmd.Flags().Changed("user-limit") {
		cfg.UserLimit = opts.UserLimit
	}

	date, err := parseDate(opts.ExecutionDate)
	if err != nil {
		return err
	}
	if err := cfg.ValidateInputs(); err != nil {
		return err
	}
	if opts.TrackerFactory == nil {
		if err := cfg.ValidateTracking(); err != nil {
			return err
		}
	}

	store, err := progress.Open(cfg.Progress.Driver, cfg.Progress.DSN)
	if err != nil {
		return err
	}
	defer func() {
		if cerr := store.Close(); cerr != nil {
			logger.Get().Warn(ctx, "close progress store", logger.Error(cerr))
		}
	}()

	job := app.New(cfg,
		app.WithProgressStore(store),
		app.WithTrackerFactory(opts.TrackerFactory),
	)

	serveCtx, stopServe := context.WithCancel(ctx)
	defer stopServe()
	var g errgroup.Group
	if cfg.Metrics.Addr != "" {
		srv := api.NewServer(metrics.Default(), job)
		g.Go(func() error { return srv.Serve(serveCtx, cfg.Metrics.Addr) })
	}

	sum, runErr := job.Run(ctx, date)

	stopServe()
	if err := g.Wait(); err != nil {
		logger.Get().Warn(ctx, "ops server", logger.Error(err))
	}
	if runErr != nil {
		return runErr
	}

	_, err = fmt.Fprintf(cmd.OutOrStdout(), "%s: sent %d, skipped %d, elapsed %s\n",
		job.TaskID(date), sum.Sent, sum.Skipped, sum.Elapsed.Round(time.Millisecond))
	return err
}
