package cmd

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/teemow/gistflow/internal/config"
	"github.com/teemow/gistflow/internal/distributor"
	"github.com/teemow/gistflow/internal/drive"
	"github.com/teemow/gistflow/internal/extractor"
	"github.com/teemow/gistflow/internal/gist"
	"github.com/teemow/gistflow/internal/gmail"
	"github.com/teemow/gistflow/internal/google"
	"github.com/teemow/gistflow/internal/instrumentation"
	"github.com/teemow/gistflow/internal/ledger"
	"github.com/teemow/gistflow/internal/llm"
	"github.com/teemow/gistflow/internal/logging"
	"github.com/teemow/gistflow/internal/normalizer"
	"github.com/teemow/gistflow/internal/notion"
	"github.com/teemow/gistflow/internal/pipeline"
	"github.com/teemow/gistflow/internal/retry"
)

// maxLLMRetryInterval caps the backoff between model backend retries.
const maxLLMRetryInterval = 30 * time.Second

// app holds the components built from one configuration.
type app struct {
	cfg       *config.Config
	logger    *slog.Logger
	provider  *instrumentation.Provider
	ledger    *ledger.Ledger
	source    *gmail.Client
	extractor *extractor.Extractor
	pipeline  *pipeline.Pipeline
}

// loadConfig reads the configuration and installs the default logger.
// validate is false for the read-only commands that never call external
// services.
func loadConfig(validate bool) (*config.Config, *slog.Logger, error) {
	cfg, err := config.Load(configPath)
	if err != nil {
		return nil, nil, err
	}
	if logLevel != "" {
		cfg.Logging.Level = logLevel
	}
	if logFormat != "" {
		cfg.Logging.Format = logFormat
	}
	logger := logging.Setup(cfg.Logging.Level, cfg.Logging.Format)

	if validate {
		if err := cfg.Validate(); err != nil {
			return nil, nil, fmt.Errorf("invalid configuration: %w", err)
		}
	}
	return cfg, logger, nil
}

// openLedger opens the ledger configured in cfg.
func openLedger(ctx context.Context, cfg *config.Config) (*ledger.Ledger, error) {
	l, err := ledger.Open(ctx, cfg.LedgerPath(), ledger.Options{
		FailureRetryAfterRuns: cfg.Ledger.FailureRetryAfterRuns,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to open ledger %s: %w", cfg.LedgerPath(), err)
	}
	return l, nil
}

// newProvider builds the instrumentation provider. Metrics stay off unless
// the metrics listener is enabled, so one-shot commands record nothing.
func newProvider(ctx context.Context, cfg *config.Config) (*instrumentation.Provider, error) {
	instrConfig := instrumentation.DefaultConfig()
	instrConfig.ServiceVersion = version
	if !cfg.Server.MetricsEnabled {
		instrConfig.Enabled = false
	}
	if err := instrConfig.Validate(); err != nil {
		return nil, fmt.Errorf("invalid instrumentation configuration: %w", err)
	}

	provider, err := instrumentation.NewProvider(ctx, instrConfig)
	if err != nil {
		return nil, fmt.Errorf("failed to create instrumentation provider: %w", err)
	}
	return provider, nil
}

// newApp wires every pipeline component from cfg. The returned app must be
// closed by the caller.
func newApp(ctx context.Context, cfg *config.Config, logger *slog.Logger) (a *app, err error) {
	a = &app{cfg: cfg, logger: logger}
	defer func() {
		if err != nil {
			_ = a.Close(context.Background())
			a = nil
		}
	}()

	a.provider, err = newProvider(ctx, cfg)
	if err != nil {
		return a, err
	}
	metrics := a.provider.Metrics()

	a.ledger, err = openLedger(ctx, cfg)
	if err != nil {
		return a, err
	}

	tokens := google.NewTokenStore(google.DefaultTokenDir(), google.CredentialsFromEnv())
	if !tokens.HasTokenForAccount(cfg.Source.Account) {
		return a, gist.Configuration("gmail", errors.New(google.GetAuthenticationErrorMessage(cfg.Source.Account)))
	}

	a.source, err = gmail.NewClientForAccount(ctx, tokens, cfg.Source.Account, gmail.Options{
		LabelVariants:  cfg.Source.LabelVariants,
		ProcessedLabel: cfg.Source.ProcessedLabel,
		SearchLimit:    cfg.Source.SearchLimit,
		Metrics:        metrics,
		Logger:         logger,
	})
	if err != nil {
		return a, fmt.Errorf("failed to create gmail client: %w", err)
	}

	backend := llm.New(llm.Options{
		BaseURL:     cfg.LLM.BaseURL,
		APIKey:      cfg.LLM.APIKey,
		Model:       cfg.LLM.Model,
		Temperature: cfg.LLM.Temperature,
		MaxTokens:   cfg.LLM.MaxTokens,
		Timeout:     cfg.LLM.Timeout,
		Retry: retry.Policy{
			MaxAttempts:     cfg.LLM.MaxRetries,
			InitialInterval: cfg.LLM.RetryDelay,
			MaxInterval:     maxLLMRetryInterval,
		},
		Metrics: metrics,
		Logger:  logger,
	})

	a.extractor, err = extractor.New(backend, extractor.Options{
		SystemPromptPath: cfg.Prompts.SystemPath,
		UserPromptPath:   cfg.Prompts.UserPath,
		FallbackScore:    cfg.Extractor.FallbackScore,
		PreviewLength:    cfg.Extractor.PreviewLength,
	}, logger)
	if err != nil {
		return a, err
	}

	destinations, err := buildDestinations(ctx, cfg, tokens, metrics, logger)
	if err != nil {
		return a, err
	}

	a.pipeline, err = pipeline.New(pipeline.Deps{
		Source: a.source,
		Ledger: a.ledger,
		Normalizer: normalizer.New(normalizer.Options{
			MaxLength:  cfg.Normalizer.MaxLength,
			HeadLength: cfg.Normalizer.HeadLength,
			TailLength: cfg.Normalizer.TailLength,
		}, logger),
		Extractor: a.extractor,
		Publisher: distributor.New(metrics, logger, destinations...),
		Metrics:   metrics,
		Logger:    logger,
	}, pipeline.Options{
		TargetLabel:    cfg.Source.TargetLabel,
		MaxItemsPerRun: cfg.Pipeline.MaxItemsPerRun,
		MinValueScore:  cfg.Pipeline.MinValueScore,
		Destinations:   cfg.Destinations(),
	})
	if err != nil {
		return a, err
	}
	return a, nil
}

// buildDestinations creates one destination per enabled kind in cfg.
func buildDestinations(ctx context.Context, cfg *config.Config, tokens google.HTTPClientProvider, metrics *instrumentation.Metrics, logger *slog.Logger) ([]distributor.Destination, error) {
	var dests []distributor.Destination
	for _, kind := range cfg.Destinations() {
		switch kind {
		case gist.DestinationNotion:
			client := notion.New(notion.Options{
				BaseURL:           cfg.Notion.BaseURL,
				APIKey:            cfg.Notion.APIKey,
				RequestsPerSecond: cfg.Notion.RequestsPerSecond,
				Retry:             retry.RateLimited,
				Logger:            logger,
			})
			p := cfg.Notion.Properties
			dests = append(dests, distributor.NewNotionDestination(client, cfg.Notion.DatabaseID, distributor.NotionProperties{
				Title:   p.Title,
				Score:   p.Score,
				Summary: p.Summary,
				Tags:    p.Tags,
				Sender:  p.Sender,
				Date:    p.Date,
				Link:    p.Link,
			}, logger))

		case gist.DestinationLocal:
			local, err := distributor.NewLocalDestination(cfg.Local.Path, cfg.Local.Format, retry.Standard)
			if err != nil {
				return nil, err
			}
			dests = append(dests, local)

		case gist.DestinationDrive:
			client, err := drive.NewClientForAccount(ctx, tokens, cfg.Source.Account, metrics)
			if err != nil {
				return nil, fmt.Errorf("failed to create drive client: %w", err)
			}
			dest, err := distributor.NewDriveDestination(client, cfg.Drive.FolderID, retry.Standard)
			if err != nil {
				return nil, err
			}
			dests = append(dests, dest)

		default:
			return nil, gist.Configuration("config", fmt.Errorf("unknown destination %q", kind))
		}
	}
	return dests, nil
}

// Close releases the ledger and flushes telemetry.
func (a *app) Close(ctx context.Context) error {
	var errs []error
	if a.ledger != nil {
		if err := a.ledger.Close(); err != nil {
			errs = append(errs, fmt.Errorf("failed to close ledger: %w", err))
		}
	}
	if a.provider != nil {
		if err := a.provider.Shutdown(ctx); err != nil {
			errs = append(errs, fmt.Errorf("failed to shut down instrumentation: %w", err))
		}
	}
	return errors.Join(errs...)
}
