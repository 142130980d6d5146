package cmd

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	mcpserver "github.com/mark3labs/mcp-go/server"
	"github.com/spf13/cobra"

	"github.com/teemow/gistflow/internal/logging"
	"github.com/teemow/gistflow/internal/tools/gistflow_tools"
)

func newMCPCmd() *cobra.Command {
	var yolo bool

	cmd := &cobra.Command{
		Use:   "mcp",
		Short: "Start an MCP server on stdio",
		Long: `Start a Model Context Protocol server on stdin/stdout so AI assistants can
inspect pipeline runs and errors.

By default only read-only tools are registered. Pass --yolo to also register
the tools that run the pipeline and clear recorded errors.

Logs go to stderr in JSON so they never mix with the protocol stream.`,
		RunE: func(cmd *cobra.Command, args []string) error {
			if logFormat == "" {
				logFormat = logging.FormatJSON
			}
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

			mcpSrv := mcpserver.NewMCPServer("gistflow", version,
				mcpserver.WithToolCapabilities(true),
			)

			// readOnly is the inverse of yolo
			readOnly := !yolo
			if err := gistflow_tools.RegisterGistflowTools(mcpSrv, gistflow_tools.Deps{
				Runner:      a.pipeline,
				Ledger:      a.ledger,
				Source:      a.source,
				Seen:        a.ledger,
				TargetLabel: cfg.Source.TargetLabel,
				Metrics:     a.provider.Metrics(),
				Logger:      logger,
			}, readOnly); err != nil {
				return fmt.Errorf("failed to register tools: %w", err)
			}
			logger.Info("starting MCP server on stdio", slog.Bool("read_only", readOnly))

			return runStdioServer(mcpSrv)
		},
	}

	cmd.Flags().BoolVar(&yolo, "yolo", false, "Enable write operations (run the pipeline, clear errors). Default is read-only mode.")

	return cmd
}

func runStdioServer(mcpSrv *mcpserver.MCPServer) error {
	if err := mcpserver.ServeStdio(mcpSrv); err != nil {
		return fmt.Errorf("server stopped with error: %w", err)
	}
	return nil
}
