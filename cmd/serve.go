package cmd

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"

	"github.com/teemow/gistflow/internal/instrumentation"
	"github.com/teemow/gistflow/internal/logging"
	"github.com/teemow/gistflow/internal/scheduler"
	"github.com/teemow/gistflow/internal/server"
)

// serveOptions holds the serve command flags.
type serveOptions struct {
	// Paused starts the scheduler without running ticks until resumed.
	Paused bool
	// RunOnStart triggers one run as soon as the service is up.
	RunOnStart bool
	// Addr overrides server.addr from the config when set.
	Addr string
}

func newServeCmd() *cobra.Command {
	var opts serveOptions

	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Run the pipeline on a schedule with an admin API",
		Long: `Start the scheduler and the admin HTTP server.

The scheduler runs the pipeline every pipeline.checkInterval. The admin server
exposes health probes and a JSON API to inspect runs, list and clear errors,
pause or resume the scheduler, trigger a run and reload the prompt files.

When server.metricsEnabled is true a separate listener on server.metricsAddr
serves Prometheus metrics.`,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runServe(cmd.Context(), opts)
		},
	}

	cmd.Flags().BoolVar(&opts.Paused, "paused", false, "Start with the scheduler paused")
	cmd.Flags().BoolVar(&opts.RunOnStart, "run-on-start", false, "Trigger a run immediately after startup")
	cmd.Flags().StringVar(&opts.Addr, "addr", "", "Admin server address (overrides server.addr)")

	return cmd
}

func runServe(parent context.Context, opts serveOptions) error {
	cfg, logger, err := loadConfig(true)
	if err != nil {
		return err
	}
	if opts.Addr != "" {
		cfg.Server.Addr = opts.Addr
	}

	// Setup graceful shutdown
	ctx, cancel := signal.NotifyContext(parent, os.Interrupt, syscall.SIGTERM)
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

	sched, err := scheduler.New(a.pipeline, cfg.Pipeline.CheckInterval, logger)
	if err != nil {
		return err
	}

	admin, err := server.New(server.Config{
		Addr:    cfg.Server.Addr,
		Version: version,
		Metrics: a.provider.Metrics(),
		Logger:  logger,
	}, server.Deps{
		Pipeline:  a.pipeline,
		Scheduler: sched,
		Ledger:    a.ledger,
		Prompts:   a.extractor,
		Checks: map[string]server.CheckFunc{
			"ledger": a.ledger.Ping,
		},
	})
	if err != nil {
		return fmt.Errorf("failed to create admin server: %w", err)
	}

	var metricsServer *server.MetricsServer
	if cfg.Server.MetricsEnabled && a.provider.Enabled() {
		metricsServer, err = server.NewMetricsServer(server.MetricsServerConfig{
			Addr:     cfg.Server.MetricsAddr,
			Provider: a.provider,
			Logger:   logger,
		})
		if err != nil {
			return fmt.Errorf("failed to create metrics server: %w", err)
		}
	}

	// Not ready until the scheduler is running.
	admin.Health().SetReady(false)

	g, gctx := errgroup.WithContext(ctx)
	g.Go(admin.ListenAndServe)
	if metricsServer != nil {
		g.Go(metricsServer.Start)
	}
	g.Go(func() error {
		<-gctx.Done()
		return shutdown(sched, admin, metricsServer, logger)
	})

	if err := startScheduler(gctx, sched, opts, logger); err != nil {
		cancel()
		_ = g.Wait()
		return err
	}
	admin.Health().SetReady(true)
	logger.Info("gistflow is serving",
		slog.String("admin_addr", admin.Addr()),
		slog.String("interval", cfg.Pipeline.CheckInterval.String()),
		slog.Bool("paused", opts.Paused),
	)

	if err := g.Wait(); err != nil && !errors.Is(err, context.Canceled) {
		return err
	}
	logger.Info("gistflow stopped")
	return nil
}

// startScheduler starts sched and applies the startup flags.
func startScheduler(ctx context.Context, sched *scheduler.Scheduler, opts serveOptions, logger *slog.Logger) error {
	if err := sched.Start(ctx); err != nil {
		return fmt.Errorf("failed to start scheduler: %w", err)
	}
	if opts.Paused {
		if err := sched.Pause(); err != nil {
			return err
		}
	}
	if opts.RunOnStart {
		if err := sched.Trigger(instrumentation.TriggerSchedule); err != nil {
			logger.Warn("startup run not triggered", logging.Err(err))
		}
	}
	return nil
}

// shutdown stops the scheduler first so no new run starts, then drains the
// listeners within DefaultShutdownTimeout.
func shutdown(sched *scheduler.Scheduler, admin *server.Server, metricsServer *server.MetricsServer, logger *slog.Logger) error {
	ctx, cancel := context.WithTimeout(context.Background(), DefaultShutdownTimeout)
	defer cancel()

	var errs []error
	if err := sched.Stop(ctx); err != nil {
		errs = append(errs, fmt.Errorf("scheduler: %w", err))
	}
	if err := admin.Shutdown(ctx); err != nil {
		errs = append(errs, fmt.Errorf("admin server: %w", err))
	}
	if metricsServer != nil {
		if err := metricsServer.Shutdown(ctx); err != nil {
			errs = append(errs, fmt.Errorf("metrics server: %w", err))
		}
	}
	if len(errs) > 0 {
		err := errors.Join(errs...)
		logger.Error("graceful shutdown failed", logging.Err(err))
		return err
	}
	return nil
}
