package scheduler

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/teemow/gistflow/internal/gist"
	"github.com/teemow/gistflow/internal/instrumentation"
	"github.com/teemow/gistflow/internal/logging"
	"github.com/teemow/gistflow/internal/pipeline"
)

// MinInterval is the shortest accepted interval between scheduled runs.
const MinInterval = time.Minute

var (
	// ErrNotStarted is returned by operations that need a started scheduler.
	ErrNotStarted = errors.New("scheduler is not started")
	// ErrAlreadyStarted is returned when Start is called twice.
	ErrAlreadyStarted = errors.New("scheduler is already started")
)

// Runner is the pipeline as seen by the scheduler.
type Runner interface {
	RunWithTrigger(ctx context.Context, trigger string) (pipeline.RunStats, error)
	Status() pipeline.Status
}

// Status is a snapshot of the scheduler state.
type Status struct {
	Started     bool      `json:"started"`
	Paused      bool      `json:"paused"`
	Interval    string    `json:"interval"`
	NextRunAt   time.Time `json:"next_run_at,omitzero"`
	LastTickAt  time.Time `json:"last_tick_at,omitzero"`
	LastError   string    `json:"last_error,omitempty"`
	SkippedRuns int       `json:"skipped_runs"`
}

// Scheduler runs the pipeline every interval.
type Scheduler struct {
	runner   Runner
	interval time.Duration
	logger   *slog.Logger

	mu      sync.Mutex
	status  Status
	cancel  context.CancelFunc
	done    chan struct{}
	manual  sync.WaitGroup
	baseCtx context.Context
}

// New returns a stopped scheduler.
func New(runner Runner, interval time.Duration, logger *slog.Logger) (*Scheduler, error) {
	if runner == nil {
		return nil, gist.Configuration("scheduler", errors.New("runner is required"))
	}
	if interval < MinInterval {
		return nil, gist.Configuration("scheduler", fmt.Errorf("interval must be at least %s, got %s", MinInterval, interval))
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Scheduler{
		runner:   runner,
		interval: interval,
		logger:   logging.WithOperation(logger, "scheduler"),
		status:   Status{Interval: interval.String()},
	}, nil
}

// Start begins ticking. The first scheduled run happens one interval after
// Start; use Trigger for an immediate run.
func (s *Scheduler) Start(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.cancel != nil {
		return ErrAlreadyStarted
	}

	ctx, cancel := context.WithCancel(ctx)
	s.cancel = cancel
	s.baseCtx = ctx
	s.done = make(chan struct{})
	s.status.Started = true
	s.status.NextRunAt = time.Now().Add(s.interval)

	go s.loop(ctx, s.done)
	s.logger.Info("scheduler started", slog.String("interval", s.interval.String()))
	return nil
}

func (s *Scheduler) loop(ctx context.Context, done chan struct{}) {
	defer close(done)
	ticker := time.NewTicker(s.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case t := <-ticker.C:
			s.tick(ctx, t)
		}
	}
}

func (s *Scheduler) tick(ctx context.Context, t time.Time) {
	s.mu.Lock()
	s.status.LastTickAt = t
	s.status.NextRunAt = t.Add(s.interval)
	paused := s.status.Paused
	if paused {
		s.status.SkippedRuns++
	}
	s.mu.Unlock()

	if paused {
		s.logger.Debug("scheduler paused, skipping run")
		return
	}
	s.run(ctx, instrumentation.TriggerSchedule)
}

func (s *Scheduler) run(ctx context.Context, trigger string) {
	_, err := s.runner.RunWithTrigger(ctx, trigger)
	if errors.Is(err, pipeline.ErrRunInProgress) {
		s.mu.Lock()
		s.status.SkippedRuns++
		s.mu.Unlock()
		s.logger.Info("run already in progress, skipping", slog.String("trigger", trigger))
		return
	}

	s.mu.Lock()
	if err != nil {
		s.status.LastError = err.Error()
	} else {
		s.status.LastError = ""
	}
	s.mu.Unlock()

	if err != nil && ctx.Err() == nil {
		s.logger.Error("scheduled run failed", slog.String("trigger", trigger), logging.Err(err))
	}
}

// Stop cancels the ticker and any run it started, then waits for them to
// return or for ctx to expire. A cancelled run finishes its current item
// before it returns.
func (s *Scheduler) Stop(ctx context.Context) error {
	s.mu.Lock()
	if s.cancel == nil {
		s.mu.Unlock()
		return nil
	}
	cancel, done := s.cancel, s.done
	s.cancel = nil
	s.status.Started = false
	s.status.NextRunAt = time.Time{}
	s.mu.Unlock()

	cancel()

	waited := make(chan struct{})
	go func() {
		<-done
		s.manual.Wait()
		close(waited)
	}()

	select {
	case <-waited:
		s.logger.Info("scheduler stopped")
		return nil
	case <-ctx.Done():
		return fmt.Errorf("waiting for scheduler to stop: %w", ctx.Err())
	}
}

// Pause keeps the scheduler alive but skips ticks until Resume.
func (s *Scheduler) Pause() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.cancel == nil {
		return ErrNotStarted
	}
	if !s.status.Paused {
		s.status.Paused = true
		s.logger.Info("scheduler paused")
	}
	return nil
}

// Resume undoes Pause.
func (s *Scheduler) Resume() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.cancel == nil {
		return ErrNotStarted
	}
	if s.status.Paused {
		s.status.Paused = false
		s.logger.Info("scheduler resumed")
	}
	return nil
}

// Trigger starts a run in the background and returns immediately. It
// returns pipeline.ErrRunInProgress when a run is already active. The run is
// bound to the scheduler lifetime, not to the caller's request.
func (s *Scheduler) Trigger(trigger string) error {
	if s.runner.Status().Running {
		return pipeline.ErrRunInProgress
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if s.cancel == nil {
		return ErrNotStarted
	}
	ctx := s.baseCtx
	s.manual.Add(1)
	go func() {
		defer s.manual.Done()
		s.run(ctx, trigger)
	}()
	return nil
}

// Status returns a snapshot of the scheduler state.
func (s *Scheduler) Status() Status {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.status
}
