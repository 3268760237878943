package cli

import (
	"fmt"
	"strconv"

	"github.com/cockroachdb/errors"
	"github.com/okian/statsmail/internal/adapters/progress"
	"github.com/okian/statsmail/internal/app"
	"github.com/okian/statsmail/pkg/logger"
	"github.com/spf13/cobra"
)

// ProgressOptions holds flags for the progress commands.
type ProgressOptions struct {
	*RootOptions
	ExecutionDate string
}

// NewProgressCommand creates the progress command and its init, show and set
// subcommands.
func NewProgressCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &ProgressOptions{RootOptions: rootOpts}

	cmd := &cobra.Command{
		Use:   "progress",
		Short: "Inspect or reset the resume cursor of an execution date",
	}
	cmd.PersistentFlags().StringVar(&opts.ExecutionDate, "execution-date", "", "scheduled date, YYYY-MM-DD (required)")
	_ = cmd.MarkPersistentFlagRequired("execution-date")

	cmd.AddCommand(&cobra.Command{
		Use:   "init",
		Short: "Reset the cursor to zero before a fresh run",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return withJob(cmd, opts, func(job *app.Job) error {
				date, _ := parseDate(opts.ExecutionDate)
				return job.InitProgress(commandContext(cmd), date)
			})
		},
	})

	cmd.AddCommand(&cobra.Command{
		Use:   "show",
		Short: "Print the persisted cursor",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return withJob(cmd, opts, func(job *app.Job) error {
				date, _ := parseDate(opts.ExecutionDate)
				v, err := job.Cursor(commandContext(cmd), date)
				if err != nil {
					return err
				}
				_, err = fmt.Fprintf(cmd.OutOrStdout(), "%s %d\n", job.TaskID(date), v)
				return err
			})
		},
	})

	cmd.AddCommand(&cobra.Command{
		Use:   "set <cursor>",
		Short: "Overwrite the persisted cursor",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			v, err := strconv.Atoi(args[0])
			if err != nil {
				return errors.Wrapf(err, "cursor %q", args[0])
			}
			return withJob(cmd, opts, func(job *app.Job) error {
				date, _ := parseDate(opts.ExecutionDate)
				return job.SetCursor(commandContext(cmd), date, v)
			})
		},
	})

	return cmd
}

// withJob opens the configured progress store around fn.
func withJob(cmd *cobra.Command, opts *ProgressOptions, fn func(*app.Job) error) error {
	if _, err := parseDate(opts.ExecutionDate); err != nil {
		return err
	}
	cfg := opts.Config
	store, err := progress.Open(cfg.Progress.Driver, cfg.Progress.DSN)
	if err != nil {
		return err
	}
	defer func() {
		if cerr := store.Close(); cerr != nil {
			logger.Get().Warn(commandContext(cmd), "close progress store", logger.Error(cerr))
		}
	}()
	return fn(app.New(cfg, app.WithProgressStore(store)))
}
