package server

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func probe(t *testing.T, h *Health, path string) (int, map[string]any) {
	t.Helper()
	mux := http.NewServeMux()
	h.Register(mux)

	rec := httptest.NewRecorder()
	mux.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, path, nil))
	assert.Equal(t, "application/json", rec.Header().Get("Content-Type"))

	var body map[string]any
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	return rec.Code, body
}

func TestLivenessIgnoresReadiness(t *testing.T) {
	h := NewHealth("v1", nil, nil)
	h.SetReady(false)
	h.SetDraining()

	code, body := probe(t, h, "/healthz")
	assert.Equal(t, http.StatusOK, code)
	assert.Equal(t, "ok", body["status"])
}

func TestReadiness(t *testing.T) {
	failing := func(context.Context) error { return errors.New("database is closed") }

	tests := []struct {
		name     string
		checks   map[string]CheckFunc
		setup    func(h *Health)
		wantCode int
		failing  string
	}{
		{
			name:     "ready",
			wantCode: http.StatusOK,
		},
		{
			name:     "not ready",
			setup:    func(h *Health) { h.SetReady(false) },
			wantCode: http.StatusServiceUnavailable,
			failing:  "ready",
		},
		{
			name:     "draining",
			setup:    func(h *Health) { h.SetDraining() },
			wantCode: http.StatusServiceUnavailable,
			failing:  "shutdown",
		},
		{
			name:     "ledger unavailable",
			checks:   map[string]CheckFunc{"ledger": failing},
			wantCode: http.StatusServiceUnavailable,
			failing:  "ledger",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			checks := map[string]CheckFunc{"noop": func(context.Context) error { return nil }}
			for name, fn := range tt.checks {
				checks[name] = fn
			}
			h := NewHealth("v1", checks, nil)
			if tt.setup != nil {
				tt.setup(h)
			}

			code, body := probe(t, h, "/readyz")
			assert.Equal(t, tt.wantCode, code)

			got, ok := body["checks"].(map[string]any)
			require.True(t, ok)
			assert.Equal(t, "ok", got["noop"])
			if tt.failing != "" {
				assert.NotEqual(t, "ok", got[tt.failing])
				assert.Equal(t, "not ready", body["status"])
			}
		})
	}
}

func TestDetailedProbe(t *testing.T) {
	h := NewHealth("v1.2.3", nil, func() map[string]any {
		return map[string]any{"pipeline": map[string]any{"phase": "idle"}}
	})

	code, body := probe(t, h, "/healthz/detailed")
	assert.Equal(t, http.StatusOK, code)
	assert.Equal(t, "ok", body["status"])
	assert.Equal(t, "v1.2.3", body["version"])
	assert.NotEmpty(t, body["uptime"])
	assert.Contains(t, body["details"], "pipeline")

	h.SetDraining()
	code, body = probe(t, h, "/healthz/detailed")
	assert.Equal(t, http.StatusServiceUnavailable, code)
	assert.Equal(t, "shutting down", body["status"])
}

func TestNewHealthCopiesChecks(t *testing.T) {
	checks := map[string]CheckFunc{}
	h := NewHealth("v1", checks, nil)
	checks["late"] = func(context.Context) error { return errors.New("added after construction") }

	code, _ := probe(t, h, "/readyz")
	assert.Equal(t, http.StatusOK, code)
}
