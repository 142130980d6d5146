package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/teemow/gistflow/internal/gist"
)

func validConfig() Config {
	cfg := Default()
	cfg.Notion.APIKey = "secret_test"
	cfg.Notion.DatabaseID = "db123"
	return cfg
}

func TestDefault(t *testing.T) {
	cfg := Default()

	assert.Equal(t, "Newsletter", cfg.Source.TargetLabel)
	assert.Equal(t, 10, cfg.Pipeline.MaxItemsPerRun)
	assert.Equal(t, 30, cfg.Pipeline.MinValueScore)
	assert.Equal(t, 30*time.Minute, cfg.Pipeline.CheckInterval)
	assert.Equal(t, 20000, cfg.Normalizer.MaxLength)
	assert.Equal(t, 15000, cfg.Normalizer.HeadLength)
	assert.Equal(t, 2000, cfg.Normalizer.TailLength)
	assert.Equal(t, 3, cfg.LLM.MaxRetries)
	assert.Equal(t, 2*time.Second, cfg.LLM.RetryDelay)
	assert.Equal(t, filepath.Join("data", "gistflow.db"), filepath.Clean(cfg.LedgerPath()))
}

func TestLoadFileAndEnv(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "gistflow.yaml")
	content := `
source:
  targetLabel: Digest
pipeline:
  maxItemsPerRun: 25
  checkInterval: 15m
llm:
  model: gpt-4o-mini
  retryDelay: 500ms
local:
  format: json
`
	require.NoError(t, os.WriteFile(path, []byte(content), 0o600))

	t.Setenv("LLM_MODEL_NAME", "")
	t.Setenv("MAX_EMAILS_PER_RUN", "40")
	t.Setenv("WEB_SERVER_PORT", "8088")
	t.Setenv("CHECK_INTERVAL_MINUTES", "")

	cfg, err := Load(path)
	require.NoError(t, err)

	assert.Equal(t, "Digest", cfg.Source.TargetLabel)
	assert.Equal(t, 40, cfg.Pipeline.MaxItemsPerRun, "env overrides file")
	assert.Equal(t, 15*time.Minute, cfg.Pipeline.CheckInterval)
	assert.Equal(t, "gpt-4o-mini", cfg.LLM.Model)
	assert.Equal(t, 500*time.Millisecond, cfg.LLM.RetryDelay)
	assert.Equal(t, "json", cfg.Local.Format)
	assert.Equal(t, ":8088", cfg.Server.Addr)
	assert.Equal(t, "https://api.openai.com/v1", cfg.LLM.BaseURL, "unset keys keep defaults")
}

func TestLoadEnvParsing(t *testing.T) {
	t.Setenv("LLM_RETRY_DELAY_SECONDS", "1.5")
	t.Setenv("CHECK_INTERVAL_MINUTES", "5")
	t.Setenv("ENABLE_NOTION", "false")

	cfg, err := Load("")
	require.NoError(t, err)
	assert.Equal(t, 1500*time.Millisecond, cfg.LLM.RetryDelay)
	assert.Equal(t, 5*time.Minute, cfg.Pipeline.CheckInterval)
	assert.False(t, cfg.Notion.Enabled)
}

func TestLoadErrors(t *testing.T) {
	t.Run("missing file", func(t *testing.T) {
		_, err := Load(filepath.Join(t.TempDir(), "nope.yaml"))
		assert.Error(t, err)
	})

	t.Run("invalid yaml", func(t *testing.T) {
		path := filepath.Join(t.TempDir(), "bad.yaml")
		require.NoError(t, os.WriteFile(path, []byte("pipeline: [oops"), 0o600))
		_, err := Load(path)
		assert.Error(t, err)
	})

	t.Run("invalid env integer", func(t *testing.T) {
		t.Setenv("MAX_EMAILS_PER_RUN", "ten")
		_, err := Load("")
		assert.ErrorContains(t, err, "MAX_EMAILS_PER_RUN")
	})
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name    string
		mutate  func(*Config)
		wantErr string
	}{
		{name: "valid", mutate: func(*Config) {}},
		{name: "max items too low", mutate: func(c *Config) { c.Pipeline.MaxItemsPerRun = 0 }, wantErr: "maxItemsPerRun"},
		{name: "max items too high", mutate: func(c *Config) { c.Pipeline.MaxItemsPerRun = 101 }, wantErr: "maxItemsPerRun"},
		{name: "score out of range", mutate: func(c *Config) { c.Pipeline.MinValueScore = 120 }, wantErr: "minValueScore"},
		{name: "interval too short", mutate: func(c *Config) { c.Pipeline.CheckInterval = time.Second }, wantErr: "checkInterval"},
		{name: "head and tail exceed max", mutate: func(c *Config) { c.Normalizer.HeadLength = 19000 }, wantErr: "headLength"},
		{name: "notion without credentials", mutate: func(c *Config) { c.Notion.APIKey = "" }, wantErr: "NOTION_API_KEY"},
		{name: "notion without title property", mutate: func(c *Config) { c.Notion.Properties.Title = "" }, wantErr: "properties.title"},
		{name: "bad local format", mutate: func(c *Config) { c.Local.Format = "html" }, wantErr: "local.format"},
		{name: "drive without folder", mutate: func(c *Config) { c.Drive.Enabled = true }, wantErr: "DRIVE_FOLDER_ID"},
		{
			name: "no destinations",
			mutate: func(c *Config) {
				c.Notion.Enabled = false
				c.Local.Enabled = false
			},
			wantErr: "at least one destination",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := validConfig()
			tt.mutate(&cfg)
			err := cfg.Validate()
			if tt.wantErr == "" {
				assert.NoError(t, err)
				return
			}
			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.wantErr)
			assert.Equal(t, gist.CategoryConfiguration, gist.CategoryOf(err))
		})
	}
}

func TestDestinations(t *testing.T) {
	cfg := validConfig()
	cfg.Drive.Enabled = true
	cfg.Drive.FolderID = "folder"

	assert.Equal(t, []gist.DestinationKind{gist.DestinationNotion, gist.DestinationLocal, gist.DestinationDrive}, cfg.Destinations())

	cfg.Notion.Enabled = false
	assert.Equal(t, []gist.DestinationKind{gist.DestinationLocal, gist.DestinationDrive}, cfg.Destinations())
}
