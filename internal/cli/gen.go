package cli

import (
	"fmt"

	"github.com/okian/statsmail/internal/devdata"
	"github.com/spf13/cobra"
)

// GenOptions holds flags for the gen command.
type GenOptions struct {
	*RootOptions
	Gen devdata.Config
}

// NewGenCommand creates the gen command.
func NewGenCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &GenOptions{RootOptions: rootOpts}

	cmd := &cobra.Command{
		Use:   "gen",
		Short: "Write synthetic percentile and stats CSVs",
		Long: `Generate a percentile table and a stats CSV for local runs. The same seed
always produces the same files.

Example:
  statsmail gen --users 5000 --out-dir ./dev --seed 7`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			res, err := devdata.Run(commandContext(cmd), opts.Gen)
			if err != nil {
				return err
			}
			_, err = fmt.Fprintf(cmd.OutOrStdout(), "percentiles: %s\nstats: %s\nusers: %d (inactive %d)\n",
				res.PercentilesPath, res.StatsPath, res.Users, res.Inactive)
			return err
		},
	}

	cmd.Flags().IntVar(&opts.Gen.Users, "users", devdata.DefaultUsers, "number of stats rows")
	cmd.Flags().StringVar(&opts.Gen.OutDir, "out-dir", ".", "output directory")
	cmd.Flags().Int64Var(&opts.Gen.Seed, "seed", 1, "random seed")
	cmd.Flags().Float64Var(&opts.Gen.InactiveRatio, "inactive-ratio", devdata.DefaultInactiveRatio, "share of users with no recent activity")

	return cmd
}
