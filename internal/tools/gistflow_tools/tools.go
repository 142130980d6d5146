package gistflow_tools

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/mark3labs/mcp-go/mcp"
	mcpserver "github.com/mark3labs/mcp-go/server"

	"github.com/teemow/gistflow/internal/gist"
	"github.com/teemow/gistflow/internal/instrumentation"
	"github.com/teemow/gistflow/internal/ledger"
	"github.com/teemow/gistflow/internal/pipeline"
	"github.com/teemow/gistflow/internal/scheduler"
	"github.com/teemow/gistflow/internal/tools/batch"
	"github.com/teemow/gistflow/internal/tools/common"
)

// Tool names.
const (
	ToolRun        = "gistflow_run"
	ToolStatus     = "gistflow_status"
	ToolStats      = "gistflow_stats"
	ToolListErrors = "gistflow_list_errors"
	ToolClearError = "gistflow_clear_error"
	ToolPending    = "gistflow_pending"
)

const (
	defaultRuns   = 5
	maxRuns       = 50
	defaultErrors = 50
	maxErrors     = 500
	defaultItems  = 10
	maxItems      = 100
)

// Runner is the pipeline.
type Runner interface {
	RunWithTrigger(ctx context.Context, trigger string) (pipeline.RunStats, error)
	Status() pipeline.Status
}

// Ledger is the subset of the ledger the tools read and repair.
type Ledger interface {
	Stats(ctx context.Context) (ledger.Stats, error)
	RecentRuns(ctx context.Context, limit int) ([]ledger.RunRecord, error)
	ListErrors(ctx context.Context, since time.Time) ([]gist.ErrorRecord, error)
	ClearError(ctx context.Context, sourceID string) error
}

// Source lists unread messages carrying the target label.
type Source interface {
	Search(ctx context.Context, label string, unseenOnly bool) ([]gist.SourceItem, error)
}

// Seen answers whether the ledger already holds an item.
type Seen interface {
	HasSeen(ctx context.Context, sourceID string) (bool, error)
}

// SchedulerStatus reports scheduler state; only set when serving.
type SchedulerStatus interface {
	Status() scheduler.Status
}

// Deps are the components behind the tools.
type Deps struct {
	Runner    Runner
	Ledger    Ledger
	Scheduler SchedulerStatus
	// Source, Seen and TargetLabel enable the pending tool when all are set.
	Source      Source
	Seen        Seen
	TargetLabel string
	Metrics     *instrumentation.Metrics
	Logger      *slog.Logger
}

type handlers struct {
	deps Deps
}

// RegisterGistflowTools registers the gistflow tools with the MCP server.
func RegisterGistflowTools(s *mcpserver.MCPServer, deps Deps, readOnly bool) error {
	if deps.Runner == nil || deps.Ledger == nil {
		return gist.Configuration("mcp tools", errors.New("runner and ledger are required"))
	}
	h := &handlers{deps: deps}
	add := func(tool mcp.Tool, handler common.ToolHandler) {
		s.AddTool(tool, common.InstrumentedToolHandler(tool.Name, deps.Metrics, deps.Logger, handler))
	}

	add(mcp.NewTool(ToolStatus,
		mcp.WithDescription("Show whether a pipeline run is active, its progress, the last run summary and the scheduler state"),
	), h.handleStatus)

	add(mcp.NewTool(ToolStats,
		mcp.WithDescription("Show ledger totals (processed, low value, failed, average score) and the most recent runs"),
		mcp.WithNumber("runs",
			mcp.Description(fmt.Sprintf("Number of recent runs to include (default: %d, max: %d)", defaultRuns, maxRuns)),
		),
	), h.handleStats)

	add(mcp.NewTool(ToolListErrors,
		mcp.WithDescription("List recorded processing errors, newest first"),
		mcp.WithString("since",
			mcp.Description("Only list errors at or after this RFC3339 timestamp"),
		),
		mcp.WithNumber("limit",
			mcp.Description(fmt.Sprintf("Maximum number of errors to return (default: %d, max: %d)", defaultErrors, maxErrors)),
		),
	), h.handleListErrors)

	if deps.Source != nil && deps.Seen != nil && deps.TargetLabel != "" {
		add(mcp.NewTool(ToolPending,
			mcp.WithDescription("Preview the unread labelled newsletters the next run would pick up, without processing them"),
			mcp.WithNumber("limit",
				mcp.Description(fmt.Sprintf("Maximum number of messages to return (default: %d, max: %d)", defaultItems, maxItems)),
			),
		), h.handlePending)
	}

	if readOnly {
		return nil
	}

	add(mcp.NewTool(ToolRun,
		mcp.WithDescription("Run the newsletter pipeline once: fetch labelled messages, extract gists, publish and archive them. Returns the run stats."),
	), h.handleRun)

	add(mcp.NewTool(ToolClearError,
		mcp.WithDescription("Clear failed ledger entries so the messages are fetched again on the next run"),
		mcp.WithString("source_ids",
			mcp.Required(),
			mcp.Description("Source message ID (string), comma-separated IDs or an array of IDs"),
		),
	), h.handleClearError)

	return nil
}

func (h *handlers) handleStatus(_ context.Context, _ mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	out := map[string]any{"pipeline": h.deps.Runner.Status()}
	if h.deps.Scheduler != nil {
		out["scheduler"] = h.deps.Scheduler.Status()
	}
	return common.JSONResult(out), nil
}

func (h *handlers) handleStats(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	args := request.GetArguments()

	stats, err := h.deps.Ledger.Stats(ctx)
	if err != nil {
		return mcp.NewToolResultError(fmt.Sprintf("Failed to read ledger stats: %v", err)), nil
	}
	runs, err := h.deps.Ledger.RecentRuns(ctx, common.IntArg(args, "runs", defaultRuns, maxRuns))
	if err != nil {
		return mcp.NewToolResultError(fmt.Sprintf("Failed to read recent runs: %v", err)), nil
	}
	if runs == nil {
		runs = []ledger.RunRecord{}
	}
	return common.JSONResult(map[string]any{"stats": stats, "recent_runs": runs}), nil
}

func (h *handlers) handleListErrors(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	args := request.GetArguments()

	since, err := common.TimeArg(args, "since")
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	records, err := h.deps.Ledger.ListErrors(ctx, since)
	if err != nil {
		return mcp.NewToolResultError(fmt.Sprintf("Failed to list errors: %v", err)), nil
	}

	limit := common.IntArg(args, "limit", defaultErrors, maxErrors)
	total := len(records)
	if len(records) > limit {
		records = records[:limit]
	}
	if records == nil {
		records = []gist.ErrorRecord{}
	}
	return common.JSONResult(map[string]any{"total": total, "errors": records}), nil
}

type pendingItem struct {
	SourceID string    `json:"source_id"`
	Subject  string    `json:"subject"`
	Sender   string    `json:"sender"`
	Date     time.Time `json:"date"`
	Seen     bool      `json:"seen"`
}

func (h *handlers) handlePending(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	limit := common.IntArg(request.GetArguments(), "limit", defaultItems, maxItems)

	found, err := h.deps.Source.Search(ctx, h.deps.TargetLabel, true)
	if err != nil {
		return mcp.NewToolResultError(fmt.Sprintf("Failed to search messages (%s): %v", gist.CategoryOf(err), err)), nil
	}

	items := make([]pendingItem, 0, min(limit, len(found)))
	pending := 0
	for _, it := range found {
		seen, err := h.deps.Seen.HasSeen(ctx, it.SourceID)
		if err != nil {
			return mcp.NewToolResultError(fmt.Sprintf("Failed to query ledger: %v", err)), nil
		}
		if !seen {
			pending++
		}
		if len(items) < limit {
			items = append(items, pendingItem{
				SourceID: it.SourceID,
				Subject:  it.Subject,
				Sender:   it.Sender,
				Date:     it.Timestamp,
				Seen:     seen,
			})
		}
	}
	return common.JSONResult(map[string]any{
		"label":   h.deps.TargetLabel,
		"found":   len(found),
		"pending": pending,
		"items":   items,
	}), nil
}

func (h *handlers) handleRun(ctx context.Context, _ mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	stats, err := h.deps.Runner.RunWithTrigger(ctx, instrumentation.TriggerMCP)
	if errors.Is(err, pipeline.ErrRunInProgress) {
		return mcp.NewToolResultError("A pipeline run is already in progress. Use gistflow_status to follow it."), nil
	}
	if err != nil {
		return mcp.NewToolResultError(fmt.Sprintf("Pipeline run failed (%s): %v", gist.CategoryOf(err), err)), nil
	}
	return common.JSONResult(stats), nil
}

func (h *handlers) handleClearError(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	ids, err := batch.ParseIDs(request.GetArguments()["source_ids"], "source_ids")
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}

	summary := batch.Run(ctx, ids, func(ctx context.Context, id string) (string, error) {
		if err := h.deps.Ledger.ClearError(ctx, id); err != nil {
			return "", err
		}
		return "cleared, will be retried on the next run", nil
	})
	return mcp.NewToolResultText(summary.JSON()), nil
}
