package extractor

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"time"

	"github.com/teemow/gistflow/internal/gist"
	"github.com/teemow/gistflow/internal/llm"
	"github.com/teemow/gistflow/internal/logging"
)

const (
	// maxAttempts is the first call plus one retry.
	maxAttempts = 2

	DefaultFallbackScore = 30
	DefaultPreviewLength = 500

	noSubject = "(No Subject)"
	noContent = "(no content)"
)

// Backend produces a schema-constrained completion.
type Backend interface {
	Complete(ctx context.Context, req llm.CompletionRequest) (llm.Completion, error)
}

// Options configures an Extractor.
type Options struct {
	SystemPromptPath string
	UserPromptPath   string
	// FallbackScore is assigned to degraded records.
	FallbackScore int
	// PreviewLength bounds the degraded summary, in runes.
	PreviewLength int
}

// Input is one item to extract.
type Input struct {
	Content     gist.NormalizedContent
	SourceID    string
	Subject     string
	Sender      string
	SenderEmail string
	Timestamp   time.Time
	OriginalURL string
}

// Extractor calls the backend and validates its answer.
type Extractor struct {
	backend Backend
	opts    Options
	schema  any
	logger  *slog.Logger

	mu      sync.RWMutex
	prompts *promptSet
}

// New loads the prompts and returns an Extractor.
func New(backend Backend, opts Options, logger *slog.Logger) (*Extractor, error) {
	if backend == nil {
		return nil, gist.Configuration("extractor", errors.New("backend is required"))
	}
	if logger == nil {
		logger = slog.Default()
	}
	if opts.FallbackScore < 0 || opts.FallbackScore > 100 {
		opts.FallbackScore = DefaultFallbackScore
	}
	if opts.PreviewLength <= 0 {
		opts.PreviewLength = DefaultPreviewLength
	}

	e := &Extractor{
		backend: backend,
		opts:    opts,
		schema:  OutputSchema(),
		logger:  logger.With(logging.Stage("extract")),
	}
	if err := e.ReloadPrompts(); err != nil {
		return nil, err
	}
	return e, nil
}

// ReloadPrompts reads the prompt files again. On error the previous prompts
// stay active.
func (e *Extractor) ReloadPrompts() error {
	set, warnings, err := loadPrompts(e.opts.SystemPromptPath, e.opts.UserPromptPath)
	if err != nil {
		return gist.Configuration("extractor.prompts", err)
	}
	for _, w := range warnings {
		e.logger.Warn(w)
	}

	e.mu.Lock()
	e.prompts = set
	e.mu.Unlock()

	e.logger.Info("prompts loaded",
		slog.String("system_source", set.SystemSource),
		slog.String("user_source", set.UserSource),
	)
	return nil
}

// Prompts returns the active prompt pair.
func (e *Extractor) Prompts() Prompts {
	e.mu.RLock()
	defer e.mu.RUnlock()
	return e.prompts.Prompts
}

func (e *Extractor) currentPrompts() *promptSet {
	e.mu.RLock()
	defer e.mu.RUnlock()
	return e.prompts
}

// Extract returns the gist record for in. Backend and validation failures are
// retried once and then turned into a degraded record, so the only error is
// the context being done.
func (e *Extractor) Extract(ctx context.Context, in Input) (gist.Record, error) {
	logger := logging.WithSource(e.logger, in.SourceID)
	prompts := e.currentPrompts()

	user, err := prompts.renderUser(promptData{
		Content: in.Content.Text,
		Sender:  in.Sender,
		Subject: in.Subject,
		Date:    formatDate(in.Timestamp),
	})
	if err != nil {
		logger.Error("cannot render user prompt, using fallback", logging.Err(err))
		return e.fallback(in), nil
	}

	req := llm.CompletionRequest{
		System:     prompts.System,
		User:       user,
		SchemaName: schemaName,
		Schema:     e.schema,
	}

	var lastErr error
	for attempt := 1; attempt <= maxAttempts; attempt++ {
		if err := ctx.Err(); err != nil {
			return gist.Record{}, err
		}

		rec, err := e.attempt(ctx, req)
		if err == nil {
			return e.withProvenance(rec, in), nil
		}
		if ctxErr := ctx.Err(); ctxErr != nil {
			return gist.Record{}, ctxErr
		}

		lastErr = err
		logger.Warn("extraction attempt failed",
			slog.Int("attempt", attempt),
			slog.String("category", string(gist.CategoryOf(err))),
			logging.Err(err),
		)
		if gist.CategoryOf(err) == gist.CategoryConfiguration {
			break
		}
	}

	logger.Error("extraction failed, using degraded record", logging.Err(lastErr))
	return e.fallback(in), nil
}

func (e *Extractor) attempt(ctx context.Context, req llm.CompletionRequest) (gist.Record, error) {
	completion, err := e.backend.Complete(ctx, req)
	if err != nil {
		return gist.Record{}, fmt.Errorf("backend call failed: %w", err)
	}
	return parseOutput(completion.Content)
}

func (e *Extractor) withProvenance(rec gist.Record, in Input) gist.Record {
	rec.SourceID = in.SourceID
	rec.Subject = in.Subject
	rec.Sender = in.Sender
	rec.SenderEmail = in.SenderEmail
	rec.Timestamp = in.Timestamp
	rec.OriginalURL = in.OriginalURL
	rec.Content = in.Content.Text
	return rec
}

// fallback builds the degraded record from message metadata.
func (e *Extractor) fallback(in Input) gist.Record {
	title := strings.TrimSpace(in.Subject)
	if title == "" {
		title = noSubject
	}
	summary := strings.TrimSpace(truncateRunes(strings.TrimSpace(in.Content.Text), e.opts.PreviewLength))
	if summary == "" {
		summary = noContent
	}

	return e.withProvenance(gist.Record{
		Title:          title,
		Summary:        summary,
		Score:          e.opts.FallbackScore,
		Tags:           []string{},
		KeyInsights:    []string{},
		MentionedLinks: []string{},
		Degraded:       true,
	}, in)
}

func formatDate(t time.Time) string {
	if t.IsZero() {
		return "unknown"
	}
	return t.Format(time.RFC1123Z)
}
