package cmd

import (
	"context"
	"fmt"
	"io"
	"strings"
	"text/tabwriter"
	"time"

	"github.com/spf13/cobra"

	"github.com/teemow/gistflow/internal/gist"
	"github.com/teemow/gistflow/internal/ledger"
	"github.com/teemow/gistflow/internal/logging"
	"github.com/teemow/gistflow/internal/tools/batch"
)

func newErrorsCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "errors",
		Short: "Inspect and clear recorded processing errors",
	}
	cmd.AddCommand(newErrorsListCmd())
	cmd.AddCommand(newErrorsClearCmd())
	return cmd
}

func newErrorsListCmd() *cobra.Command {
	var (
		since      string
		jsonOutput bool
	)

	cmd := &cobra.Command{
		Use:   "list",
		Short: "List recorded errors, newest first",
		Long: `List the errors recorded in the ledger.

--since accepts an RFC3339 timestamp or a duration such as 24h, meaning that
long ago.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			from, err := parseSince(since, time.Now())
			if err != nil {
				return err
			}
			return withLedger(cmd.Context(), func(ctx context.Context, l *ledger.Ledger) error {
				records, err := l.ListErrors(ctx, from)
				if err != nil {
					return err
				}
				if jsonOutput {
					if records == nil {
						records = []gist.ErrorRecord{}
					}
					return writeJSON(cmd.OutOrStdout(), records)
				}
				printErrors(cmd.OutOrStdout(), records)
				return nil
			})
		},
	}

	cmd.Flags().StringVar(&since, "since", "", "Only list errors at or after this time (RFC3339 or duration)")
	cmd.Flags().BoolVar(&jsonOutput, "json", false, "Print the errors as JSON")

	return cmd
}

func newErrorsClearCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "clear <source-id>...",
		Short: "Clear failed items so they are fetched again",
		Long: `Delete the failed ledger entry of each source message so it is picked up
again on the next run. Error records are kept.

IDs may be given as separate arguments or comma-separated.`,
		Args: cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ids, err := batch.ParseIDs(strings.Join(args, ","), "source-id")
			if err != nil {
				return err
			}
			return withLedger(cmd.Context(), func(ctx context.Context, l *ledger.Ledger) error {
				summary := batch.Run(ctx, ids, func(ctx context.Context, id string) (string, error) {
					if err := l.ClearError(ctx, id); err != nil {
						return "", err
					}
					return "cleared", nil
				})
				fmt.Fprintln(cmd.OutOrStdout(), summary.JSON())
				if r, failed := summary.FirstFailure(); failed {
					return fmt.Errorf("failed to clear %s: %s", r.ID, r.Error)
				}
				return nil
			})
		},
	}
	return cmd
}

// withLedger opens the configured ledger for a read or maintenance command.
// These commands need neither credentials nor a valid destination set.
func withLedger(ctx context.Context, fn func(ctx context.Context, l *ledger.Ledger) error) error {
	cfg, logger, err := loadConfig(false)
	if err != nil {
		return err
	}
	l, err := openLedger(ctx, cfg)
	if err != nil {
		return err
	}
	defer func() {
		if err := l.Close(); err != nil {
			logger.Warn("failed to close ledger", logging.Err(err))
		}
	}()
	return fn(ctx, l)
}

// parseSince accepts an empty string (no lower bound), an RFC3339 timestamp
// or a positive duration counted back from now.
func parseSince(value string, now time.Time) (time.Time, error) {
	value = strings.TrimSpace(value)
	if value == "" {
		return time.Time{}, nil
	}
	if t, err := time.Parse(time.RFC3339, value); err == nil {
		return t, nil
	}
	d, err := time.ParseDuration(value)
	if err != nil {
		return time.Time{}, fmt.Errorf("invalid --since %q: want RFC3339 timestamp or duration", value)
	}
	if d <= 0 {
		return time.Time{}, fmt.Errorf("invalid --since %q: duration must be positive", value)
	}
	return now.Add(-d), nil
}

func printErrors(w io.Writer, records []gist.ErrorRecord) {
	if len(records) == 0 {
		fmt.Fprintln(w, "No errors recorded.")
		return
	}
	tw := tabwriter.NewWriter(w, 0, 0, 2, ' ', 0)
	fmt.Fprintln(tw, "OCCURRED\tSOURCE ID\tCATEGORY\tMESSAGE")
	for _, r := range records {
		fmt.Fprintf(tw, "%s\t%s\t%s\t%s\n", r.OccurredAt.Format(time.RFC3339), r.SourceID, r.Category, r.Message)
	}
	tw.Flush()
}
