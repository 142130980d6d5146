package instrumentation

import (
	"context"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"
)

func newTestProvider(t *testing.T, config Config) *Provider {
	t.Helper()
	config.ServiceName = "gistflow-test"
	config.ServiceVersion = "0.0.1"

	provider, err := NewProvider(t.Context(), config)
	if err != nil {
		t.Fatalf("NewProvider: %v", err)
	}
	t.Cleanup(func() {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = provider.Shutdown(ctx)
	})
	return provider
}

func TestNewProvider_DisabledIsNoOp(t *testing.T) {
	provider := newTestProvider(t, Config{Enabled: false, MetricsExporter: "bogus"})

	if provider.Enabled() {
		t.Error("provider should report disabled")
	}
	if provider.Metrics() == nil {
		t.Fatal("Metrics must never be nil")
	}
	if provider.MetricsHandler() != nil {
		t.Error("disabled provider should not expose a metrics handler")
	}
	if provider.Tracer("gistflow") == nil {
		t.Error("Tracer must return a no-op tracer when disabled")
	}

	// Recording on a disabled provider must not panic.
	provider.Metrics().RecordRun(t.Context(), TriggerCLI, StatusSuccess, time.Second)
}

func TestNewProvider_PrometheusServesRegistry(t *testing.T) {
	provider := newTestProvider(t, Config{
		Enabled:         true,
		MetricsExporter: ExporterPrometheus,
		TracingExporter: ExporterNone,
	})

	provider.Metrics().RecordRun(t.Context(), TriggerManual, StatusSuccess, 2*time.Second)

	handler := provider.MetricsHandler()
	if handler == nil {
		t.Fatal("prometheus exporter should expose a metrics handler")
	}

	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/metrics", nil))
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200", rec.Code)
	}
	body, _ := io.ReadAll(rec.Body)
	for _, want := range []string{"gistflow_runs", "go_goroutines"} {
		if !strings.Contains(string(body), want) {
			t.Errorf("metrics output missing %q", want)
		}
	}
}

func TestNewProvider_StdoutHasNoHandler(t *testing.T) {
	provider := newTestProvider(t, Config{
		Enabled:         true,
		MetricsExporter: ExporterStdout,
		TracingExporter: ExporterStdout,
	})

	if !provider.Enabled() {
		t.Error("provider should report enabled")
	}
	if provider.MetricsHandler() != nil {
		t.Error("stdout exporter should not expose a metrics handler")
	}
}

func TestNewProvider_RejectsInvalidConfig(t *testing.T) {
	tests := []struct {
		name   string
		config Config
	}{
		{
			name:   "unknown metrics exporter",
			config: Config{Enabled: true, MetricsExporter: "statsd", TracingExporter: ExporterNone},
		},
		{
			name:   "unknown tracing exporter",
			config: Config{Enabled: true, MetricsExporter: ExporterPrometheus, TracingExporter: "zipkin"},
		},
		{
			name:   "otlp tracing without endpoint",
			config: Config{Enabled: true, MetricsExporter: ExporterPrometheus, TracingExporter: ExporterOTLP},
		},
		{
			name:   "sampling rate out of range",
			config: Config{Enabled: true, TraceSamplingRate: 3},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if _, err := NewProvider(t.Context(), tt.config); err == nil {
				t.Error("expected NewProvider to fail")
			}
		})
	}
}

func TestProvider_ShutdownTwiceIsSafe(t *testing.T) {
	provider, err := NewProvider(t.Context(), Config{
		ServiceName:     "gistflow-test",
		Enabled:         true,
		MetricsExporter: ExporterPrometheus,
	})
	if err != nil {
		t.Fatalf("NewProvider: %v", err)
	}

	if err := provider.Shutdown(t.Context()); err != nil {
		t.Errorf("first Shutdown: %v", err)
	}
	// The SDK reports repeated shutdowns; the provider must not panic.
	_ = provider.Shutdown(t.Context())
}
