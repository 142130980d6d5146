package cmd

import (
	"context"
	"fmt"
	"io"
	"text/tabwriter"
	"time"

	"github.com/spf13/cobra"

	"github.com/teemow/gistflow/internal/ledger"
)

func newStatsCmd() *cobra.Command {
	var (
		runs       int
		jsonOutput bool
	)

	cmd := &cobra.Command{
		Use:   "stats",
		Short: "Show ledger totals and recent runs",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return withLedger(cmd.Context(), func(ctx context.Context, l *ledger.Ledger) error {
				stats, err := l.Stats(ctx)
				if err != nil {
					return err
				}
				recent, err := l.RecentRuns(ctx, runs)
				if err != nil {
					return err
				}
				if jsonOutput {
					if recent == nil {
						recent = []ledger.RunRecord{}
					}
					return writeJSON(cmd.OutOrStdout(), map[string]any{
						"stats": stats,
						"runs":  recent,
					})
				}
				printStats(cmd.OutOrStdout(), stats, recent)
				return nil
			})
		},
	}

	cmd.Flags().IntVar(&runs, "runs", 5, "Number of recent runs to show")
	cmd.Flags().BoolVar(&jsonOutput, "json", false, "Print the statistics as JSON")

	return cmd
}

func printStats(w io.Writer, stats ledger.Stats, runs []ledger.RunRecord) {
	fmt.Fprintf(w, "Processed:     %d\n", stats.Processed)
	fmt.Fprintf(w, "Low value:     %d\n", stats.LowValue)
	fmt.Fprintf(w, "Degraded:      %d\n", stats.Degraded)
	fmt.Fprintf(w, "Failed:        %d\n", stats.Failed)
	fmt.Fprintf(w, "Error records: %d\n", stats.ErrorRecords)
	fmt.Fprintf(w, "Average score: %.1f\n", stats.AverageScore)
	fmt.Fprintf(w, "Runs:          %d\n", stats.Runs)
	if stats.LastProcessedAt != nil {
		fmt.Fprintf(w, "Last item:     %s\n", stats.LastProcessedAt.Format(time.RFC3339))
	}
	if len(runs) == 0 {
		return
	}

	fmt.Fprintln(w)
	tw := tabwriter.NewWriter(w, 0, 0, 2, ' ', 0)
	fmt.Fprintln(tw, "RUN\tSTARTED\tFOUND\tPROCESSED\tSKIPPED\tFAILED\tPUBLISHED\tERROR")
	for _, r := range runs {
		fmt.Fprintf(tw, "%d\t%s\t%d\t%d\t%d\t%d\t%d\t%s\n",
			r.ID, r.StartedAt.Format(time.RFC3339), r.Found, r.Processed, r.Skipped, r.Failed, r.Published, r.Error)
	}
	tw.Flush()
}
