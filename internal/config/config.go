package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/teemow/gistflow/internal/gist"
)

// PathEnv names the environment variable holding the config file path.
const PathEnv = "GISTFLOW_CONFIG"

// Config is the process-wide configuration object. It is built once at
// startup and passed by reference into every component constructor.
type Config struct {
	Source     SourceConfig     `yaml:"source"`
	LLM        LLMConfig        `yaml:"llm"`
	Prompts    PromptConfig     `yaml:"prompts"`
	Normalizer NormalizerConfig `yaml:"normalizer"`
	Extractor  ExtractorConfig  `yaml:"extractor"`
	Pipeline   PipelineConfig   `yaml:"pipeline"`
	Ledger     LedgerConfig     `yaml:"ledger"`
	Notion     NotionConfig     `yaml:"notion"`
	Local      LocalConfig      `yaml:"local"`
	Drive      DriveConfig      `yaml:"drive"`
	Server     ServerConfig     `yaml:"server"`
	Logging    LoggingConfig    `yaml:"logging"`
}

// SourceConfig selects the mailbox and labels to read from.
type SourceConfig struct {
	// Account is the Google account name whose token is used.
	Account        string   `yaml:"account"`
	TargetLabel    string   `yaml:"targetLabel"`
	LabelVariants  []string `yaml:"labelVariants"`
	ProcessedLabel string   `yaml:"processedLabel"`
	// SearchLimit caps how many unread candidates one search returns.
	SearchLimit int `yaml:"searchLimit"`
}

// LLMConfig describes the OpenAI-compatible extraction backend.
type LLMConfig struct {
	BaseURL     string        `yaml:"baseUrl"`
	APIKey      string        `yaml:"apiKey"`
	Model       string        `yaml:"model"`
	Temperature float64       `yaml:"temperature"`
	MaxTokens   int           `yaml:"maxTokens"`
	MaxRetries  int           `yaml:"maxRetries"`
	RetryDelay  time.Duration `yaml:"retryDelay"`
	Timeout     time.Duration `yaml:"timeout"`
}

// PromptConfig points at the prompt files. Missing files fall back to the
// built-in prompts.
type PromptConfig struct {
	SystemPath string `yaml:"systemPath"`
	UserPath   string `yaml:"userPath"`
}

// NormalizerConfig bounds the text handed to the model.
type NormalizerConfig struct {
	MaxLength  int `yaml:"maxLength"`
	HeadLength int `yaml:"headLength"`
	TailLength int `yaml:"tailLength"`
}

// ExtractorConfig tunes the degraded fallback record.
type ExtractorConfig struct {
	FallbackScore int `yaml:"fallbackScore"`
	PreviewLength int `yaml:"previewLength"`
}

// PipelineConfig controls a single run.
type PipelineConfig struct {
	MaxItemsPerRun int           `yaml:"maxItemsPerRun"`
	MinValueScore  int           `yaml:"minValueScore"`
	CheckInterval  time.Duration `yaml:"checkInterval"`
}

// LedgerConfig locates the SQLite ledger.
type LedgerConfig struct {
	DataDir  string `yaml:"dataDir"`
	FileName string `yaml:"fileName"`
	// FailureRetryAfterRuns makes failed items eligible again after that many
	// runs. 0 keeps them excluded until cleared by hand.
	FailureRetryAfterRuns int `yaml:"failureRetryAfterRuns"`
}

// NotionConfig configures the Notion database destination.
type NotionConfig struct {
	Enabled           bool                   `yaml:"enabled"`
	APIKey            string                 `yaml:"apiKey"`
	DatabaseID        string                 `yaml:"databaseId"`
	BaseURL           string                 `yaml:"baseUrl"`
	RequestsPerSecond float64                `yaml:"requestsPerSecond"`
	Properties        NotionPropertiesConfig `yaml:"properties"`
}

// NotionPropertiesConfig maps gist fields to database property names.
// An empty name skips that property; Title is required.
type NotionPropertiesConfig struct {
	Title   string `yaml:"title"`
	Score   string `yaml:"score"`
	Summary string `yaml:"summary"`
	Tags    string `yaml:"tags"`
	Sender  string `yaml:"sender"`
	Date    string `yaml:"date"`
	Link    string `yaml:"link"`
}

// LocalConfig configures the local file destination.
type LocalConfig struct {
	Enabled bool   `yaml:"enabled"`
	Path    string `yaml:"path"`
	// Format is "markdown" or "json".
	Format string `yaml:"format"`
}

// DriveConfig configures the Google Drive destination.
type DriveConfig struct {
	Enabled  bool   `yaml:"enabled"`
	FolderID string `yaml:"folderId"`
}

// ServerConfig configures the admin and metrics listeners.
type ServerConfig struct {
	Addr           string `yaml:"addr"`
	MetricsEnabled bool   `yaml:"metricsEnabled"`
	MetricsAddr    string `yaml:"metricsAddr"`
}

// LoggingConfig selects log level and format.
type LoggingConfig struct {
	Level  string `yaml:"level"`
	Format string `yaml:"format"`
}

// Default returns the built-in configuration.
func Default() Config {
	return Config{
		Source: SourceConfig{
			Account:        "default",
			TargetLabel:    "Newsletter",
			LabelVariants:  []string{"newsletter", "news", "newsletters"},
			ProcessedLabel: "GistFlow-Processed",
			SearchLimit:    100,
		},
		LLM: LLMConfig{
			BaseURL:     "https://api.openai.com/v1",
			Model:       "gpt-4o",
			Temperature: 0.3,
			MaxTokens:   2000,
			MaxRetries:  3,
			RetryDelay:  2 * time.Second,
			Timeout:     120 * time.Second,
		},
		Prompts: PromptConfig{
			SystemPath: "./prompts/system_prompt.txt",
			UserPath:   "./prompts/user_prompt_template.txt",
		},
		Normalizer: NormalizerConfig{
			MaxLength:  20000,
			HeadLength: 15000,
			TailLength: 2000,
		},
		Extractor: ExtractorConfig{
			FallbackScore: 30,
			PreviewLength: 500,
		},
		Pipeline: PipelineConfig{
			MaxItemsPerRun: 10,
			MinValueScore:  30,
			CheckInterval:  30 * time.Minute,
		},
		Ledger: LedgerConfig{
			DataDir:  "./data",
			FileName: "gistflow.db",
		},
		Notion: NotionConfig{
			Enabled:           true,
			BaseURL:           "https://api.notion.com/v1",
			RequestsPerSecond: 3,
			Properties: NotionPropertiesConfig{
				Title:   "Name",
				Score:   "Score",
				Summary: "Summary",
				Tags:    "Tags",
				Sender:  "Sender",
				Date:    "Date",
				Link:    "Link",
			},
		},
		Local: LocalConfig{
			Enabled: true,
			Path:    "./gists",
			Format:  "markdown",
		},
		Server: ServerConfig{
			Addr:        ":5800",
			MetricsAddr: ":9090",
		},
		Logging: LoggingConfig{
			Level:  "info",
			Format: "text",
		},
	}
}

// Load reads the YAML file at path (when non-empty) over the defaults and
// applies environment overrides. Callers that run the pipeline must also call
// Validate; read-only commands (errors, stats) do not need credentials.
func Load(path string) (*Config, error) {
	cfg := Default()

	if path == "" {
		path = os.Getenv(PathEnv)
	}
	if path != "" {
		raw, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("failed to read config file %s: %w", path, err)
		}
		if err := yaml.Unmarshal(raw, &cfg); err != nil {
			return nil, fmt.Errorf("failed to parse config file %s: %w", path, err)
		}
	}

	if err := cfg.applyEnvOverrides(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

func (c *Config) applyEnvOverrides() error {
	var errs []error
	str := func(key string, dst *string) {
		if v := os.Getenv(key); v != "" {
			*dst = v
		}
	}
	integer := func(key string, dst *int) {
		if v := os.Getenv(key); v != "" {
			n, err := strconv.Atoi(strings.TrimSpace(v))
			if err != nil {
				errs = append(errs, fmt.Errorf("%s must be an integer: %w", key, err))
				return
			}
			*dst = n
		}
	}
	float := func(key string, dst *float64) {
		if v := os.Getenv(key); v != "" {
			f, err := strconv.ParseFloat(strings.TrimSpace(v), 64)
			if err != nil {
				errs = append(errs, fmt.Errorf("%s must be a number: %w", key, err))
				return
			}
			*dst = f
		}
	}
	boolean := func(key string, dst *bool) {
		if v := os.Getenv(key); v != "" {
			b, err := strconv.ParseBool(strings.TrimSpace(v))
			if err != nil {
				errs = append(errs, fmt.Errorf("%s must be a boolean: %w", key, err))
				return
			}
			*dst = b
		}
	}

	str("GOOGLE_ACCOUNT", &c.Source.Account)
	str("TARGET_LABEL", &c.Source.TargetLabel)

	str("OPENAI_API_KEY", &c.LLM.APIKey)
	str("OPENAI_BASE_URL", &c.LLM.BaseURL)
	str("LLM_MODEL_NAME", &c.LLM.Model)
	float("LLM_TEMPERATURE", &c.LLM.Temperature)
	integer("LLM_MAX_TOKENS", &c.LLM.MaxTokens)
	integer("LLM_MAX_RETRIES", &c.LLM.MaxRetries)
	var retryDelay float64
	float("LLM_RETRY_DELAY_SECONDS", &retryDelay)
	if retryDelay > 0 {
		c.LLM.RetryDelay = time.Duration(retryDelay * float64(time.Second))
	}

	str("PROMPT_SYSTEM_PATH", &c.Prompts.SystemPath)
	str("PROMPT_USER_PATH", &c.Prompts.UserPath)

	integer("MAX_CONTENT_LENGTH", &c.Normalizer.MaxLength)
	integer("CONTENT_TRUNCATION_HEAD", &c.Normalizer.HeadLength)
	integer("CONTENT_TRUNCATION_TAIL", &c.Normalizer.TailLength)

	integer("MAX_EMAILS_PER_RUN", &c.Pipeline.MaxItemsPerRun)
	integer("MIN_VALUE_SCORE", &c.Pipeline.MinValueScore)
	var minutes int
	integer("CHECK_INTERVAL_MINUTES", &minutes)
	if minutes > 0 {
		c.Pipeline.CheckInterval = time.Duration(minutes) * time.Minute
	}

	str("DATA_DIR", &c.Ledger.DataDir)
	integer("FAILURE_RETRY_AFTER_RUNS", &c.Ledger.FailureRetryAfterRuns)

	boolean("ENABLE_NOTION", &c.Notion.Enabled)
	str("NOTION_API_KEY", &c.Notion.APIKey)
	str("NOTION_DATABASE_ID", &c.Notion.DatabaseID)

	boolean("ENABLE_LOCAL_STORAGE", &c.Local.Enabled)
	str("LOCAL_STORAGE_PATH", &c.Local.Path)
	str("LOCAL_STORAGE_FORMAT", &c.Local.Format)

	boolean("ENABLE_DRIVE", &c.Drive.Enabled)
	str("DRIVE_FOLDER_ID", &c.Drive.FolderID)

	if v := os.Getenv("WEB_SERVER_PORT"); v != "" {
		if _, err := strconv.Atoi(v); err != nil {
			errs = append(errs, fmt.Errorf("WEB_SERVER_PORT must be an integer: %w", err))
		} else {
			c.Server.Addr = os.Getenv("WEB_SERVER_HOST") + ":" + v
		}
	}
	boolean("METRICS_ENABLED", &c.Server.MetricsEnabled)
	str("METRICS_ADDR", &c.Server.MetricsAddr)

	str("LOG_LEVEL", &c.Logging.Level)
	str("LOG_FORMAT", &c.Logging.Format)

	return errors.Join(errs...)
}

// Validate checks ranges and the consistency of enabled destinations.
// Every problem is reported as a configuration error.
func (c *Config) Validate() error {
	var errs []error
	add := func(format string, args ...any) {
		errs = append(errs, gist.Configuration("config", fmt.Errorf(format, args...)))
	}

	if c.Pipeline.MaxItemsPerRun < 1 || c.Pipeline.MaxItemsPerRun > 100 {
		add("pipeline.maxItemsPerRun must be between 1 and 100, got %d", c.Pipeline.MaxItemsPerRun)
	}
	if c.Pipeline.MinValueScore < 0 || c.Pipeline.MinValueScore > 100 {
		add("pipeline.minValueScore must be between 0 and 100, got %d", c.Pipeline.MinValueScore)
	}
	if c.Pipeline.CheckInterval < time.Minute {
		add("pipeline.checkInterval must be at least 1m, got %s", c.Pipeline.CheckInterval)
	}
	if c.Extractor.FallbackScore < 0 || c.Extractor.FallbackScore > 100 {
		add("extractor.fallbackScore must be between 0 and 100, got %d", c.Extractor.FallbackScore)
	}
	if c.LLM.Temperature < 0 || c.LLM.Temperature > 2 {
		add("llm.temperature must be between 0 and 2, got %g", c.LLM.Temperature)
	}
	if c.LLM.MaxRetries < 1 {
		add("llm.maxRetries must be at least 1, got %d", c.LLM.MaxRetries)
	}

	n := c.Normalizer
	if n.MaxLength <= 0 || n.HeadLength <= 0 || n.TailLength < 0 {
		add("normalizer lengths must be positive")
	} else if n.HeadLength+n.TailLength >= n.MaxLength {
		add("normalizer.headLength + tailLength (%d) must be below maxLength (%d)", n.HeadLength+n.TailLength, n.MaxLength)
	}

	if c.Ledger.FailureRetryAfterRuns < 0 {
		add("ledger.failureRetryAfterRuns must not be negative")
	}

	if c.Notion.Enabled {
		if c.Notion.APIKey == "" || c.Notion.DatabaseID == "" {
			add("notion is enabled but NOTION_API_KEY or NOTION_DATABASE_ID is missing")
		}
		if c.Notion.Properties.Title == "" {
			add("notion.properties.title is required")
		}
	}
	if c.Local.Enabled && c.Local.Format != "markdown" && c.Local.Format != "json" {
		add("local.format must be markdown or json, got %q", c.Local.Format)
	}
	if c.Drive.Enabled && c.Drive.FolderID == "" {
		add("drive is enabled but DRIVE_FOLDER_ID is missing")
	}
	if len(c.Destinations()) == 0 {
		add("at least one destination must be enabled")
	}

	return errors.Join(errs...)
}

// Destinations lists the enabled destination kinds in publish order.
func (c *Config) Destinations() []gist.DestinationKind {
	var kinds []gist.DestinationKind
	if c.Notion.Enabled {
		kinds = append(kinds, gist.DestinationNotion)
	}
	if c.Local.Enabled {
		kinds = append(kinds, gist.DestinationLocal)
	}
	if c.Drive.Enabled {
		kinds = append(kinds, gist.DestinationDrive)
	}
	return kinds
}

// LedgerPath returns the SQLite file location.
func (c *Config) LedgerPath() string {
	return filepath.Join(c.Ledger.DataDir, c.Ledger.FileName)
}
