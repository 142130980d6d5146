package server

import (
	"context"
	"errors"
	"log/slog"
	"net"
	"net/http"
	"time"

	"github.com/teemow/gistflow/internal/gist"
	"github.com/teemow/gistflow/internal/instrumentation"
)

// DefaultMetricsAddr is where the metrics listener binds when no address is
// configured.
const DefaultMetricsAddr = ":9090"

const (
	metricsHeaderTimeout = 10 * time.Second
	metricsWriteTimeout  = 10 * time.Second
	metricsIdleTimeout   = time.Minute
)

// MetricsServerConfig configures NewMetricsServer.
type MetricsServerConfig struct {
	Addr string
	// Provider must be enabled with the prometheus exporter.
	Provider *instrumentation.Provider
	Logger   *slog.Logger
}

// MetricsServer serves Prometheus metrics on a dedicated port, away from
// the admin API.
type MetricsServer struct {
	httpServer *http.Server
	addr       string
	handler    http.Handler
	logger     *slog.Logger
}

// NewMetricsServer validates the provider and builds the /metrics and
// /healthz routes. Nothing listens until Start.
func NewMetricsServer(config MetricsServerConfig) (*MetricsServer, error) {
	if config.Addr == "" {
		config.Addr = DefaultMetricsAddr
	}
	if config.Provider == nil {
		return nil, gist.Configuration("metrics server", errors.New("instrumentation provider is required"))
	}
	if !config.Provider.Enabled() {
		return nil, gist.Configuration("metrics server", errors.New("instrumentation provider is not enabled"))
	}
	metricsHandler := config.Provider.MetricsHandler()
	if metricsHandler == nil {
		return nil, gist.Configuration("metrics server", errors.New("metrics exporter is not prometheus"))
	}
	logger := config.Logger
	if logger == nil {
		logger = slog.Default()
	}

	mux := http.NewServeMux()
	mux.Handle("GET /metrics", metricsHandler)
	mux.HandleFunc("GET /healthz", func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("ok"))
	})

	return &MetricsServer{
		httpServer: &http.Server{
			Handler:           mux,
			ReadHeaderTimeout: metricsHeaderTimeout,
			WriteTimeout:      metricsWriteTimeout,
			IdleTimeout:       metricsIdleTimeout,
		},
		addr:    config.Addr,
		handler: mux,
		logger:  logger,
	}, nil
}

// Handler returns the metrics router.
func (s *MetricsServer) Handler() http.Handler {
	return s.handler
}

// Start serves until Shutdown is called. It returns nil after a graceful
// shutdown.
func (s *MetricsServer) Start() error {
	ln, err := net.Listen("tcp", s.addr)
	if err != nil {
		return gist.Configuration("metrics server", err)
	}

	s.logger.Info("starting metrics server", slog.String("addr", ln.Addr().String()))
	err = s.httpServer.Serve(ln)
	if errors.Is(err, http.ErrServerClosed) {
		return nil
	}
	return err
}

// Shutdown stops accepting scrapes and waits for in-flight ones.
func (s *MetricsServer) Shutdown(ctx context.Context) error {
	s.logger.Info("shutting down metrics server")
	return s.httpServer.Shutdown(ctx)
}

// Addr is the configured listen address.
func (s *MetricsServer) Addr() string {
	return s.addr
}
