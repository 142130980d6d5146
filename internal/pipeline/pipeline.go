package pipeline

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"runtime/debug"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/teemow/gistflow/internal/extractor"
	"github.com/teemow/gistflow/internal/gist"
	"github.com/teemow/gistflow/internal/instrumentation"
	"github.com/teemow/gistflow/internal/ledger"
	"github.com/teemow/gistflow/internal/logging"
)

// Per-run item cap bounds.
const (
	MinItemsPerRun     = 1
	MaxItemsPerRun     = 100
	DefaultItemsPerRun = 10

	DefaultMinValueScore = 30
)

// Options configures a Pipeline.
type Options struct {
	TargetLabel    string
	MaxItemsPerRun int
	MinValueScore  int
	Destinations   []gist.DestinationKind
}

// Deps are the collaborators of a Pipeline.
type Deps struct {
	Source     Source
	Ledger     Ledger
	Normalizer Normalizer
	Extractor  Extractor
	Publisher  Publisher
	Metrics    *instrumentation.Metrics
	Logger     *slog.Logger
}

// Pipeline runs the processing loop.
type Pipeline struct {
	deps   Deps
	opts   Options
	logger *slog.Logger
	now    func() time.Time

	// runMu guards against overlapping runs.
	runMu sync.Mutex

	statusMu sync.RWMutex
	status   Status
}

// New validates the options and returns a Pipeline.
func New(deps Deps, opts Options) (*Pipeline, error) {
	if deps.Source == nil || deps.Ledger == nil || deps.Normalizer == nil || deps.Extractor == nil || deps.Publisher == nil {
		return nil, gist.Configuration("pipeline", errors.New("source, ledger, normalizer, extractor and publisher are required"))
	}
	if opts.TargetLabel == "" {
		return nil, gist.Configuration("pipeline", errors.New("target label is required"))
	}
	if opts.MaxItemsPerRun == 0 {
		opts.MaxItemsPerRun = DefaultItemsPerRun
	}
	if opts.MaxItemsPerRun < MinItemsPerRun || opts.MaxItemsPerRun > MaxItemsPerRun {
		return nil, gist.Configuration("pipeline",
			fmt.Errorf("max items per run must be between %d and %d, got %d", MinItemsPerRun, MaxItemsPerRun, opts.MaxItemsPerRun))
	}
	if opts.MinValueScore < 0 || opts.MinValueScore > 100 {
		return nil, gist.Configuration("pipeline", fmt.Errorf("min value score must be between 0 and 100, got %d", opts.MinValueScore))
	}

	logger := deps.Logger
	if logger == nil {
		logger = slog.Default()
	}
	return &Pipeline{
		deps:   deps,
		opts:   opts,
		logger: logger,
		now:    time.Now,
		status: Status{Phase: PhaseIdle},
	}, nil
}

// Status returns a snapshot of the pipeline state.
func (p *Pipeline) Status() Status {
	p.statusMu.RLock()
	defer p.statusMu.RUnlock()
	s := p.status
	if s.LastRun != nil {
		last := *s.LastRun
		s.LastRun = &last
	}
	return s
}

func (p *Pipeline) updateStatus(fn func(*Status)) {
	p.statusMu.Lock()
	fn(&p.status)
	p.statusMu.Unlock()
}

// Run performs one manual run.
func (p *Pipeline) Run(ctx context.Context) (RunStats, error) {
	return p.RunWithTrigger(ctx, instrumentation.TriggerManual)
}

// RunWithTrigger performs one run, labelled with what started it. It returns
// ErrRunInProgress without doing anything when another run is active. Item
// failures are reported in the stats; the error is non-nil only when the run
// could not start or fetch, or ctx was cancelled.
func (p *Pipeline) RunWithTrigger(ctx context.Context, trigger string) (stats RunStats, err error) {
	if !p.runMu.TryLock() {
		return RunStats{}, ErrRunInProgress
	}
	defer p.runMu.Unlock()

	stats = RunStats{
		RunID:     uuid.NewString(),
		Trigger:   trigger,
		StartedAt: p.now(),
		Published: make(map[gist.DestinationKind]int),
	}
	logger := logging.WithRun(p.logger, stats.RunID)

	ctx, span := instrumentation.StartRunSpan(ctx, stats.RunID, trigger)
	p.deps.Metrics.RunStarted(ctx)
	p.updateStatus(func(s *Status) {
		s.Running = true
		s.Phase = PhaseFetching
		s.RunID = stats.RunID
		s.Trigger = trigger
		s.CurrentItem, s.TotalItems, s.CurrentSourceID = 0, 0, ""
	})

	defer func() {
		stats.FinishedAt = p.now()
		stats.Duration = stats.FinishedAt.Sub(stats.StartedAt).Round(time.Millisecond).String()
		if err != nil {
			stats.Error = err.Error()
		}

		p.deps.Metrics.RunFinished(ctx)
		p.deps.Metrics.RecordRun(ctx, trigger, instrumentation.StatusFor(err), stats.FinishedAt.Sub(stats.StartedAt))
		instrumentation.EndSpan(span, err)

		last := stats
		p.updateStatus(func(s *Status) {
			s.Running = false
			s.Phase = PhaseIdle
			s.CurrentItem, s.TotalItems, s.CurrentSourceID = 0, 0, ""
			s.LastRun = &last
			s.LastRunAt = stats.FinishedAt
		})

		logger.Info("run finished",
			slog.String("trigger", trigger),
			slog.Int("found", stats.Found),
			slog.Int("candidates", stats.Candidates),
			slog.Int("processed", stats.Processed),
			slog.Int("low_value_skipped", stats.LowValueSkipped),
			slog.Int("failed", stats.Failed),
			slog.Int("degraded", stats.Degraded),
			slog.Int("deferred", stats.Deferred),
			slog.String("duration", stats.Duration),
			logging.Err(err))
	}()

	run, err := p.deps.Ledger.BeginRun(ctx)
	if err != nil {
		return stats, fmt.Errorf("failed to begin run: %w", err)
	}
	stats.LedgerRunID = run.ID
	if run.Expired > 0 {
		logger.Info("failed items made eligible again", slog.Int("count", run.Expired))
	}

	runErr := p.process(ctx, logger, &stats)
	p.finishLedgerRun(ctx, logger, run.ID, stats, runErr)
	return stats, runErr
}

func (p *Pipeline) process(ctx context.Context, logger *slog.Logger, stats *RunStats) error {
	items, err := p.deps.Source.Search(ctx, p.opts.TargetLabel, true)
	if err != nil {
		return fmt.Errorf("failed to search source: %w", err)
	}
	stats.Found = len(items)

	candidates := make([]gist.SourceItem, 0, len(items))
	for _, item := range items {
		seen, err := p.deps.Ledger.HasSeen(ctx, item.SourceID)
		if err != nil {
			if ctx.Err() != nil {
				return ctx.Err()
			}
			// Without a ledger answer the item may be a duplicate; leave it for the next run.
			logger.Warn("ledger lookup failed, deferring item", logging.SourceID(item.SourceID), logging.Err(err))
			continue
		}
		if !seen {
			candidates = append(candidates, item)
		}
	}
	stats.Candidates = len(candidates)

	if len(candidates) > p.opts.MaxItemsPerRun {
		stats.Deferred = len(candidates) - p.opts.MaxItemsPerRun
		candidates = candidates[:p.opts.MaxItemsPerRun]
	}

	logger.Info("candidates selected",
		slog.Int("found", stats.Found),
		slog.Int("candidates", stats.Candidates),
		slog.Int("this_run", len(candidates)))

	p.updateStatus(func(s *Status) {
		s.Phase = PhaseProcessing
		s.TotalItems = len(candidates)
	})

	for i, item := range candidates {
		if err := ctx.Err(); err != nil {
			stats.Stopped = true
			logger.Warn("run stopped", slog.Int("remaining", len(candidates)-i), logging.Err(err))
			return err
		}
		p.updateStatus(func(s *Status) {
			s.CurrentItem = i + 1
			s.CurrentSourceID = item.SourceID
		})

		// Cancellation takes effect between items only.
		stats.record(p.processItem(context.WithoutCancel(ctx), logger, item))
	}
	return nil
}

func (s *RunStats) record(res ItemResult) {
	s.Items = append(s.Items, res)
	s.Processed++
	if res.Degraded {
		s.Degraded++
	}
	switch {
	case res.State == StateFailed:
		s.Failed++
	case res.LowValue:
		s.LowValueSkipped++
	default:
		for kind := range res.Refs {
			s.Published[kind]++
		}
	}
}

func (s RunStats) publishedItems() int {
	n := 0
	for _, item := range s.Items {
		if item.State != StateFailed && !item.LowValue {
			n++
		}
	}
	return n
}

func (p *Pipeline) finishLedgerRun(ctx context.Context, logger *slog.Logger, runID int64, stats RunStats, runErr error) {
	summary := ledger.RunSummary{
		Found:     stats.Found,
		Processed: stats.Processed,
		Skipped:   stats.LowValueSkipped,
		Failed:    stats.Failed,
		Published: stats.publishedItems(),
	}
	if runErr != nil {
		summary.Error = runErr.Error()
	}

	// The run history must be written even when ctx was cancelled.
	ctx = context.WithoutCancel(ctx)
	if err := p.deps.Ledger.FinishRun(ctx, runID, summary); err != nil {
		logger.Error("failed to record run summary", logging.Err(err))
	}
}

// processItem takes one item through the state machine. Every error and
// panic ends as a FAILED result; ctx is not expected to be cancelled.
func (p *Pipeline) processItem(ctx context.Context, runLogger *slog.Logger, item gist.SourceItem) (res ItemResult) {
	logger := logging.WithSource(runLogger, item.SourceID)
	res = ItemResult{SourceID: item.SourceID, Subject: item.Subject, State: StateFetched}

	ctx, span := instrumentation.StartItemSpan(ctx, item.SourceID)
	var itemErr error
	defer func() {
		instrumentation.EndSpan(span, itemErr)
		p.deps.Metrics.RecordItem(ctx, itemOutcome(res), item.SenderEmail)
	}()

	fail := func(err error) ItemResult {
		itemErr = err
		res.State = StateFailed
		res.Error = err.Error()
		logger.Error("item failed",
			slog.String("category", string(gist.CategoryOf(err))),
			logging.Err(err))
		if recErr := p.stage(ctx, "ledger", func(ctx context.Context) error {
			return p.deps.Ledger.RecordFailure(context.WithoutCancel(ctx), item.SourceID, err)
		}); recErr != nil {
			logger.Error("failed to record failure in ledger", logging.Err(recErr))
		}
		return res
	}
	defer func() {
		if r := recover(); r != nil {
			logger.Error("item panicked", slog.Any("panic", r), slog.String("stack", string(debug.Stack())))
			fail(fmt.Errorf("panic: %v", r))
		}
	}()

	var normalized gist.NormalizedContent
	_ = p.stage(ctx, "normalize", func(context.Context) error {
		normalized = p.deps.Normalizer.Normalize(item.Content)
		return nil
	})
	if normalized.Truncated {
		p.deps.Metrics.RecordTruncation(ctx)
		logger.Info("content truncated", slog.Int("original_length", normalized.OriginalLength))
	}
	res.State = StateNormalized

	var rec gist.Record
	err := p.stage(ctx, "extract", func(ctx context.Context) error {
		var err error
		rec, err = p.deps.Extractor.Extract(ctx, extractor.Input{
			Content:     normalized,
			SourceID:    item.SourceID,
			Subject:     item.Subject,
			Sender:      item.Sender,
			SenderEmail: item.SenderEmail,
			Timestamp:   item.Timestamp,
			OriginalURL: item.OriginalURL,
		})
		return err
	})
	if err != nil {
		return fail(fmt.Errorf("extract: %w", err))
	}
	res.State = StateExtracted
	res.Score = rec.Score
	res.Degraded = rec.Degraded
	span.SetAttributes(instrumentation.GistAttrs(rec.Score, rec.Degraded)...)

	entry := gist.LedgerEntry{
		SourceID:   item.SourceID,
		Subject:    item.Subject,
		Sender:     item.Sender,
		Score:      rec.Score,
		IsLowValue: rec.IsLowValue,
		Degraded:   rec.Degraded,
	}

	if !rec.Passes(p.opts.MinValueScore) {
		res.State = StateLowValueSkipped
		res.LowValue = true
		logger.Info("low value, skipping publish",
			slog.Int("score", rec.Score),
			slog.Bool("is_low_value", rec.IsLowValue))
	} else {
		res.State = StateGatePassed

		var published bool
		err := p.stage(ctx, "publish", func(ctx context.Context) error {
			result := p.deps.Publisher.Publish(ctx, rec, p.opts.Destinations)
			if !result.Succeeded() {
				if err := result.Err(); err != nil {
					return err
				}
				return gist.Configuration("publish", errors.New("no destinations configured"))
			}
			published = true
			rec.DestinationRefs = result.Refs
			res.Refs = result.Refs
			entry.DestinationRefs = rec.DestinationRefs
			if partial := result.Err(); partial != nil {
				logger.Warn("published with destination errors", logging.Err(partial))
			}
			return nil
		})
		if !published {
			return fail(fmt.Errorf("publish: %w", err))
		}
		res.State = StatePublished
	}

	err = p.stage(ctx, "ledger", func(ctx context.Context) error {
		return p.deps.Ledger.RecordSuccess(context.WithoutCancel(ctx), entry)
	})
	if err != nil {
		return fail(fmt.Errorf("ledger: %w", err))
	}

	err = p.stage(ctx, "acknowledge", func(ctx context.Context) error {
		return p.deps.Source.Acknowledge(context.WithoutCancel(ctx), item.SourceID)
	})
	if err != nil {
		// The ledger already prevents reprocessing; the message just stays unread.
		logger.Warn("failed to acknowledge message", logging.Err(err))
		return res
	}
	res.State = StateArchived
	logger.Info("item done", slog.String("state", string(res.State)), slog.Int("score", rec.Score))
	return res
}

// stage runs fn inside a stage span and records its duration.
func (p *Pipeline) stage(ctx context.Context, name string, fn func(context.Context) error) error {
	ctx, span := instrumentation.StartStageSpan(ctx, name)
	start := time.Now()
	err := fn(ctx)
	p.deps.Metrics.RecordStage(ctx, name, instrumentation.StatusFor(err), time.Since(start))
	instrumentation.EndSpan(span, err)
	return err
}

func itemOutcome(res ItemResult) string {
	switch {
	case res.State == StateFailed:
		return instrumentation.OutcomeFailed
	case res.LowValue:
		return instrumentation.OutcomeLowValue
	default:
		return instrumentation.OutcomePublished
	}
}
