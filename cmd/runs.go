package cmd

import (
	"context"
	"errors"
	"fmt"
	"text/tabwriter"
	"time"

	"github.com/spf13/cobra"

	"github.com/FridgeSeal/swarm/internal/crawler"
)

// errNoLedger is returned by runs when ledger.dsn is unset.
var errNoLedger = errors.New("run ledger is not configured (set ledger.dsn)")

type runLister interface {
	RecentRuns(ctx context.Context, limit int) ([]crawler.Report, error)
}

func newRunsCmd() *cobra.Command {
	var limit int
	cmd := &cobra.Command{
		Use:   "runs",
		Short: "Lists recent crawl runs from the run ledger",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			a, err := resolveApp(cmd.Context())
			if err != nil {
				return err
			}
			lister, ok := a.Ledger.(runLister)
			if !ok {
				return errNoLedger
			}
			reports, err := lister.RecentRuns(cmd.Context(), limit)
			if err != nil {
				return fmt.Errorf("list runs: %w", err)
			}
			return printRuns(cmd, reports)
		},
	}
	cmd.Flags().IntVar(&limit, "limit", 20, "number of runs to show")
	return cmd
}

func printRuns(cmd *cobra.Command, reports []crawler.Report) error {
	w := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 4, 2, ' ', 0)
	fmt.Fprintln(w, "RUN ID\tSTATUS\tSTARTED\tDURATION\tFETCHED\tWRITTEN\tERROR")
	for _, r := range reports {
		fmt.Fprintf(w, "%s\t%s\t%s\t%s\t%d\t%d\t%s\n",
			r.RunID, r.Status, r.StartedAt.Format("2006-01-02 15:04:05"), r.Duration().Round(time.Millisecond),
			r.Fetched, r.Written, r.Error)
	}
	return w.Flush()
}
