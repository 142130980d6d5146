package cmd

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"maps"
	"os"
	"os/signal"
	"slices"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/teemow/gistflow/internal/instrumentation"
	"github.com/teemow/gistflow/internal/logging"
	"github.com/teemow/gistflow/internal/pipeline"
)

// DefaultShutdownTimeout bounds telemetry flushing and server shutdown.
const DefaultShutdownTimeout = 30 * time.Second

func newRunCmd() *cobra.Command {
	var jsonOutput bool

	cmd := &cobra.Command{
		Use:   "run",
		Short: "Process pending newsletters once",
		Long: `Fetch unread newsletters carrying the target label, extract a gist for
each one and publish it to every enabled destination. Processed messages are
marked read and labelled so they are not fetched again.

Interrupting the command stops it between two messages.`,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, logger, err := loadConfig(true)
			if err != nil {
				return err
			}

			ctx, cancel := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer cancel()

			a, err := newApp(ctx, cfg, logger)
			if err != nil {
				return err
			}
			defer func() {
				shutdownCtx, cancel := context.WithTimeout(context.Background(), DefaultShutdownTimeout)
				defer cancel()
				if err := a.Close(shutdownCtx); err != nil {
					logger.Warn("shutdown incomplete", logging.Err(err))
				}
			}()

			stats, runErr := a.pipeline.RunWithTrigger(ctx, instrumentation.TriggerCLI)
			out := cmd.OutOrStdout()
			if jsonOutput {
				if err := writeJSON(out, stats); err != nil {
					return err
				}
			} else {
				printRunSummary(out, stats)
			}
			if runErr != nil {
				return fmt.Errorf("run failed: %w", runErr)
			}
			return nil
		},
	}

	cmd.Flags().BoolVar(&jsonOutput, "json", false, "Print the run statistics as JSON")

	return cmd
}

// printRunSummary writes a short human readable summary of one run.
func printRunSummary(w io.Writer, stats pipeline.RunStats) {
	fmt.Fprintf(w, "Run %s finished in %s\n", stats.RunID, stats.Duration)
	fmt.Fprintf(w, "  found:      %d (candidates %d, deferred %d)\n", stats.Found, stats.Candidates, stats.Deferred)
	fmt.Fprintf(w, "  processed:  %d\n", stats.Processed)
	fmt.Fprintf(w, "  low value:  %d\n", stats.LowValueSkipped)
	fmt.Fprintf(w, "  degraded:   %d\n", stats.Degraded)
	fmt.Fprintf(w, "  failed:     %d\n", stats.Failed)

	for _, kind := range slices.Sorted(maps.Keys(stats.Published)) {
		fmt.Fprintf(w, "  published:  %s=%d\n", kind, stats.Published[kind])
	}
	if stats.Stopped {
		fmt.Fprintln(w, "  stopped before all candidates were processed")
	}
	if stats.Error != "" {
		fmt.Fprintf(w, "  error:      %s\n", stats.Error)
	}
}

// writeJSON pretty prints v to w.
func writeJSON(w io.Writer, v any) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	if err := enc.Encode(v); err != nil {
		return fmt.Errorf("failed to encode output: %w", err)
	}
	return nil
}
