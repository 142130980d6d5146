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
	"github.com/teemow/gistflow/internal/logging"
)

const (
	// DefaultAddr is the default admin API address.
	DefaultAddr = ":5800"

	defaultReadHeaderTimeout = 10 * time.Second
	defaultWriteTimeout      = 30 * time.Second
	defaultIdleTimeout       = 60 * time.Second
)

// Config holds the admin server configuration.
type Config struct {
	Addr    string
	Version string
	Metrics *instrumentation.Metrics
	Logger  *slog.Logger
}

// Deps are the components the admin API reads and controls. Scheduler and
// Prompts are optional; their endpoints answer 503 when unset.
type Deps struct {
	Pipeline  PipelineStatus
	Scheduler Scheduler
	Ledger    Ledger
	Prompts   Prompts
	// Checks are added to the readiness probe.
	Checks map[string]CheckFunc
}

// Server is the admin HTTP server.
type Server struct {
	httpServer *http.Server
	health     *Health
	handler    http.Handler
	metrics    *instrumentation.Metrics
	logger     *slog.Logger
	addr       string
}

// New builds the admin server. It does not start listening.
func New(cfg Config, deps Deps) (*Server, error) {
	if deps.Pipeline == nil || deps.Ledger == nil {
		return nil, gist.Configuration("server", errors.New("pipeline and ledger are required"))
	}
	if cfg.Addr == "" {
		cfg.Addr = DefaultAddr
	}
	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}
	logger = logging.WithOperation(logger, "admin")

	s := &Server{
		health: NewHealth(cfg.Version, deps.Checks, func() map[string]any {
			details := map[string]any{"pipeline": deps.Pipeline.Status()}
			if deps.Scheduler != nil {
				details["scheduler"] = deps.Scheduler.Status()
			}
			return details
		}),
		metrics: cfg.Metrics,
		logger:  logger,
		addr:    cfg.Addr,
	}

	mux := http.NewServeMux()
	s.health.Register(mux)
	a := &api{
		pipeline:  deps.Pipeline,
		scheduler: deps.Scheduler,
		ledger:    deps.Ledger,
		prompts:   deps.Prompts,
		logger:    logger,
	}
	a.register(mux)
	s.handler = s.instrument(mux)
	s.httpServer = &http.Server{
		Handler:           s.handler,
		ReadHeaderTimeout: defaultReadHeaderTimeout,
		WriteTimeout:      defaultWriteTimeout,
		IdleTimeout:       defaultIdleTimeout,
	}
	return s, nil
}

// Handler returns the instrumented router.
func (s *Server) Handler() http.Handler {
	return s.handler
}

// Health returns the probe state, mainly so serve can flip readiness.
func (s *Server) Health() *Health {
	return s.health
}

// Addr returns the configured listen address.
func (s *Server) Addr() string {
	return s.addr
}

// ListenAndServe serves until Shutdown is called. It returns nil after a
// graceful shutdown.
func (s *Server) ListenAndServe() error {
	ln, err := net.Listen("tcp", s.addr)
	if err != nil {
		return gist.Configuration("server", err)
	}
	return s.Serve(ln)
}

// Serve accepts connections on ln.
func (s *Server) Serve(ln net.Listener) error {
	s.logger.Info("starting admin server", slog.String("addr", ln.Addr().String()))
	err := s.httpServer.Serve(ln)
	if errors.Is(err, http.ErrServerClosed) {
		return nil
	}
	return err
}

// Shutdown marks the server as draining and stops it gracefully.
func (s *Server) Shutdown(ctx context.Context) error {
	s.health.SetDraining()
	s.logger.Info("shutting down admin server")
	return s.httpServer.Shutdown(ctx)
}

type statusRecorder struct {
	http.ResponseWriter
	code int
}

func (r *statusRecorder) WriteHeader(code int) {
	r.code = code
	r.ResponseWriter.WriteHeader(code)
}

// instrument records request metrics by route pattern to keep label
// cardinality bounded.
func (s *Server) instrument(next *http.ServeMux) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		rec := &statusRecorder{ResponseWriter: w, code: http.StatusOK}
		next.ServeHTTP(rec, r)

		route := r.Pattern
		if route == "" {
			route = "unmatched"
		}
		duration := time.Since(start)
		s.metrics.RecordHTTPRequest(r.Context(), r.Method, route, rec.code, duration)
		s.logger.Debug("request handled",
			slog.String("method", r.Method),
			slog.String("route", route),
			slog.Int("code", rec.code),
			slog.Duration("duration", duration))
	})
}
