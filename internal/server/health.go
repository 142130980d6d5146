package server

import (
	"context"
	"encoding/json"
	"maps"
	"net/http"
	"slices"
	"sync/atomic"
	"time"
)

const (
	probeOK       = "ok"
	probeNotReady = "not ready"
	probeDraining = "shutting down"

	// checkTimeout bounds each dependency check of a readiness probe.
	checkTimeout = 2 * time.Second
)

// CheckFunc reports whether a dependency is usable.
type CheckFunc func(ctx context.Context) error

// Health answers the liveness, readiness and detailed probes. Checks and
// details are fixed at construction; only the ready and draining flags
// change afterwards.
type Health struct {
	version string
	started time.Time
	checks  map[string]CheckFunc
	details func() map[string]any

	ready    atomic.Bool
	draining atomic.Bool
}

// NewHealth returns a Health that starts ready. details may be nil.
func NewHealth(version string, checks map[string]CheckFunc, details func() map[string]any) *Health {
	h := &Health{
		version: version,
		started: time.Now(),
		checks:  maps.Clone(checks),
		details: details,
	}
	h.ready.Store(true)
	return h
}

// SetReady flips the readiness flag. serve clears it until the scheduler
// is running.
func (h *Health) SetReady(ready bool) { h.ready.Store(ready) }

// SetDraining fails readiness for good once shutdown begins.
func (h *Health) SetDraining() { h.draining.Store(true) }

type probeBody struct {
	Status  string            `json:"status"`
	Version string            `json:"version,omitempty"`
	Uptime  string            `json:"uptime,omitempty"`
	Checks  map[string]string `json:"checks,omitempty"`
	Details map[string]any    `json:"details,omitempty"`
}

// evaluate runs every check in name order. The two flags are reported as
// the pseudo checks "ready" and "shutdown".
func (h *Health) evaluate(ctx context.Context) (map[string]string, bool) {
	results := map[string]string{"ready": probeOK, "shutdown": probeOK}
	healthy := true
	if !h.ready.Load() {
		results["ready"] = probeNotReady
		healthy = false
	}
	if h.draining.Load() {
		results["shutdown"] = probeDraining
		healthy = false
	}

	for _, name := range slices.Sorted(maps.Keys(h.checks)) {
		cctx, cancel := context.WithTimeout(ctx, checkTimeout)
		err := h.checks[name](cctx)
		cancel()
		if err != nil {
			results[name] = "failing: " + err.Error()
			healthy = false
			continue
		}
		results[name] = probeOK
	}
	return results, healthy
}

// live only proves the process answers HTTP.
func (h *Health) live(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, probeBody{Status: probeOK})
}

func (h *Health) readiness(w http.ResponseWriter, r *http.Request) {
	checks, healthy := h.evaluate(r.Context())
	if !healthy {
		writeJSON(w, http.StatusServiceUnavailable, probeBody{Status: probeNotReady, Checks: checks})
		return
	}
	writeJSON(w, http.StatusOK, probeBody{Status: probeOK, Checks: checks})
}

func (h *Health) detailed(w http.ResponseWriter, r *http.Request) {
	checks, healthy := h.evaluate(r.Context())
	body := probeBody{
		Status:  probeOK,
		Version: h.version,
		Uptime:  time.Since(h.started).Truncate(time.Second).String(),
		Checks:  checks,
	}
	if h.details != nil {
		body.Details = h.details()
	}

	code := http.StatusServiceUnavailable
	switch {
	case h.draining.Load():
		body.Status = probeDraining
	case !healthy:
		body.Status = probeNotReady
	default:
		code = http.StatusOK
	}
	writeJSON(w, code, body)
}

// Register mounts /healthz, /readyz and /healthz/detailed on mux.
func (h *Health) Register(mux *http.ServeMux) {
	mux.HandleFunc("GET /healthz", h.live)
	mux.HandleFunc("GET /readyz", h.readiness)
	mux.HandleFunc("GET /healthz/detailed", h.detailed)
}

func writeJSON(w http.ResponseWriter, code int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	_ = json.NewEncoder(w).Encode(v)
}
