package server

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"strconv"
	"time"

	"github.com/teemow/gistflow/internal/extractor"
	"github.com/teemow/gistflow/internal/gist"
	"github.com/teemow/gistflow/internal/instrumentation"
	"github.com/teemow/gistflow/internal/ledger"
	"github.com/teemow/gistflow/internal/logging"
	"github.com/teemow/gistflow/internal/pipeline"
	"github.com/teemow/gistflow/internal/scheduler"
)

const (
	defaultListLimit = 20
	maxListLimit     = 100
)

// PipelineStatus reports the orchestrator state.
type PipelineStatus interface {
	Status() pipeline.Status
}

// Scheduler controls periodic and manual runs.
type Scheduler interface {
	Status() scheduler.Status
	Pause() error
	Resume() error
	Trigger(trigger string) error
}

// Ledger is the read and repair side of the ledger.
type Ledger interface {
	Stats(ctx context.Context) (ledger.Stats, error)
	RecentRuns(ctx context.Context, limit int) ([]ledger.RunRecord, error)
	RecentProcessed(ctx context.Context, limit int) ([]gist.LedgerEntry, error)
	ListErrors(ctx context.Context, since time.Time) ([]gist.ErrorRecord, error)
	ClearError(ctx context.Context, sourceID string) error
}

// Prompts exposes the active extraction prompts.
type Prompts interface {
	Prompts() extractor.Prompts
	ReloadPrompts() error
}

// StatusResponse is returned by GET /api/status.
type StatusResponse struct {
	Pipeline  pipeline.Status   `json:"pipeline"`
	Scheduler *scheduler.Status `json:"scheduler,omitempty"`
}

type errorResponse struct {
	Error string `json:"error"`
}

type messageResponse struct {
	Message string `json:"message"`
}

type api struct {
	pipeline  PipelineStatus
	scheduler Scheduler
	ledger    Ledger
	prompts   Prompts
	logger    *slog.Logger
}

func (a *api) register(mux *http.ServeMux) {
	mux.HandleFunc("GET /api/status", a.handleStatus)
	mux.HandleFunc("GET /api/stats", a.handleStats)
	mux.HandleFunc("GET /api/runs", a.handleRuns)
	mux.HandleFunc("GET /api/processed", a.handleProcessed)
	mux.HandleFunc("GET /api/errors", a.handleListErrors)
	mux.HandleFunc("DELETE /api/errors/{sourceID}", a.handleClearError)
	mux.HandleFunc("POST /api/tasks/run", a.handleRun)
	mux.HandleFunc("POST /api/scheduler/pause", a.handlePause)
	mux.HandleFunc("POST /api/scheduler/resume", a.handleResume)
	mux.HandleFunc("GET /api/prompts", a.handlePrompts)
	mux.HandleFunc("POST /api/prompts/reload", a.handleReloadPrompts)
}

func (a *api) handleStatus(w http.ResponseWriter, _ *http.Request) {
	resp := StatusResponse{Pipeline: a.pipeline.Status()}
	if a.scheduler != nil {
		s := a.scheduler.Status()
		resp.Scheduler = &s
	}
	writeJSON(w, http.StatusOK, resp)
}

func (a *api) handleStats(w http.ResponseWriter, r *http.Request) {
	stats, err := a.ledger.Stats(r.Context())
	if err != nil {
		a.internalError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, stats)
}

func (a *api) handleRuns(w http.ResponseWriter, r *http.Request) {
	limit, err := parseLimit(r)
	if err != nil {
		writeError(w, http.StatusBadRequest, err)
		return
	}
	runs, err := a.ledger.RecentRuns(r.Context(), limit)
	if err != nil {
		a.internalError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"runs": nonNil(runs)})
}

func (a *api) handleProcessed(w http.ResponseWriter, r *http.Request) {
	limit, err := parseLimit(r)
	if err != nil {
		writeError(w, http.StatusBadRequest, err)
		return
	}
	entries, err := a.ledger.RecentProcessed(r.Context(), limit)
	if err != nil {
		a.internalError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"items": nonNil(entries)})
}

func (a *api) handleListErrors(w http.ResponseWriter, r *http.Request) {
	var since time.Time
	if raw := r.URL.Query().Get("since"); raw != "" {
		t, err := time.Parse(time.RFC3339, raw)
		if err != nil {
			writeError(w, http.StatusBadRequest, fmt.Errorf("since must be RFC3339: %w", err))
			return
		}
		since = t
	}
	records, err := a.ledger.ListErrors(r.Context(), since)
	if err != nil {
		a.internalError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"errors": nonNil(records)})
}

func (a *api) handleClearError(w http.ResponseWriter, r *http.Request) {
	id := r.PathValue("sourceID")
	err := a.ledger.ClearError(r.Context(), id)
	switch {
	case errors.Is(err, ledger.ErrNotFound):
		writeError(w, http.StatusNotFound, err)
	case err != nil:
		a.internalError(w, r, err)
	default:
		a.logger.Info("error cleared", logging.SourceID(id))
		writeJSON(w, http.StatusOK, messageResponse{Message: "cleared " + id})
	}
}

func (a *api) handleRun(w http.ResponseWriter, r *http.Request) {
	if a.scheduler == nil {
		writeError(w, http.StatusServiceUnavailable, errors.New("scheduler is not configured"))
		return
	}
	err := a.scheduler.Trigger(instrumentation.TriggerManual)
	switch {
	case errors.Is(err, pipeline.ErrRunInProgress):
		writeError(w, http.StatusConflict, err)
	case errors.Is(err, scheduler.ErrNotStarted):
		writeError(w, http.StatusServiceUnavailable, err)
	case err != nil:
		a.internalError(w, r, err)
	default:
		writeJSON(w, http.StatusAccepted, messageResponse{Message: "run started"})
	}
}

func (a *api) handlePause(w http.ResponseWriter, r *http.Request) {
	a.schedulerControl(w, r, "paused", func(s Scheduler) error { return s.Pause() })
}

func (a *api) handleResume(w http.ResponseWriter, r *http.Request) {
	a.schedulerControl(w, r, "resumed", func(s Scheduler) error { return s.Resume() })
}

func (a *api) schedulerControl(w http.ResponseWriter, r *http.Request, done string, fn func(Scheduler) error) {
	if a.scheduler == nil {
		writeError(w, http.StatusServiceUnavailable, errors.New("scheduler is not configured"))
		return
	}
	err := fn(a.scheduler)
	switch {
	case errors.Is(err, scheduler.ErrNotStarted):
		writeError(w, http.StatusConflict, err)
	case err != nil:
		a.internalError(w, r, err)
	default:
		a.logger.Info("scheduler " + done)
		writeJSON(w, http.StatusOK, a.scheduler.Status())
	}
}

func (a *api) handlePrompts(w http.ResponseWriter, _ *http.Request) {
	if a.prompts == nil {
		writeError(w, http.StatusServiceUnavailable, errors.New("extractor is not configured"))
		return
	}
	writeJSON(w, http.StatusOK, a.prompts.Prompts())
}

func (a *api) handleReloadPrompts(w http.ResponseWriter, r *http.Request) {
	if a.prompts == nil {
		writeError(w, http.StatusServiceUnavailable, errors.New("extractor is not configured"))
		return
	}
	if err := a.prompts.ReloadPrompts(); err != nil {
		if gist.CategoryOf(err) == gist.CategoryConfiguration {
			writeError(w, http.StatusUnprocessableEntity, err)
			return
		}
		a.internalError(w, r, err)
		return
	}
	a.logger.Info("prompts reloaded")
	writeJSON(w, http.StatusOK, a.prompts.Prompts())
}

func (a *api) internalError(w http.ResponseWriter, r *http.Request, err error) {
	a.logger.Error("request failed",
		slog.String("method", r.Method),
		slog.String("path", r.URL.Path),
		logging.Err(err))
	writeError(w, http.StatusInternalServerError, err)
}

func writeError(w http.ResponseWriter, code int, err error) {
	writeJSON(w, code, errorResponse{Error: err.Error()})
}

func parseLimit(r *http.Request) (int, error) {
	raw := r.URL.Query().Get("limit")
	if raw == "" {
		return defaultListLimit, nil
	}
	n, err := strconv.Atoi(raw)
	if err != nil || n < 1 {
		return 0, fmt.Errorf("limit must be a positive integer, got %q", raw)
	}
	return min(n, maxListLimit), nil
}

// nonNil keeps empty lists as [] rather than null.
func nonNil[T any](s []T) []T {
	if s == nil {
		return []T{}
	}
	return s
}
