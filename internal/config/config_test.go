package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/spf13/pflag"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeConfig(t *testing.T, body string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte(body), 0o600))
	return path
}

func TestLoadDefaults(t *testing.T) {
	path := writeConfig(t, `
input:
  path: colleges.xlsx
output:
  csv_path: out/results.csv
`)
	cfg, err := Load(path, nil)
	require.NoError(t, err)

	assert.Equal(t, "out/results.xlsx", cfg.Output.XLSXPath)
	assert.Equal(t, "out/results_checkpoint.json", cfg.Output.CheckpointPath)
	assert.Equal(t, "out", cfg.Output.Dir())
	assert.True(t, cfg.Output.WriteXLSX)
	assert.True(t, cfg.Probe.Enabled)
	assert.Equal(t, 8*time.Second, cfg.Probe.Timeout)
	assert.Equal(t, 30*time.Second, cfg.Render.PageLoadTimeout)
	assert.Equal(t, 10*time.Second, cfg.Render.ShortWait)
	assert.Equal(t, 45*time.Second, cfg.Render.LongWait)
	assert.Equal(t, 70*time.Second, cfg.Render.MaxPerURL)
	assert.Equal(t, time.Second, cfg.Render.SettleDelay)
	assert.Equal(t, 20, cfg.Render.MinBodyLength)
	assert.True(t, cfg.Render.Headless)
	assert.Equal(t, 1, cfg.Checkpoint.Every)
	assert.True(t, cfg.Checkpoint.TrustPositional)
	assert.Equal(t, "linkcheck", cfg.GCS.Prefix)
	assert.Equal(t, "link_results", cfg.Postgres.Table)
	assert.Contains(t, cfg.Probe.UserAgent, "Chrome/")
}

func TestLoadFileOverrides(t *testing.T) {
	path := writeConfig(t, `
input:
  path: in.csv
output:
  csv_path: /data/run/results.csv
  xlsx_path: /data/run/sheet.xlsx
probe:
  enabled: false
render:
  long_wait: 20s
  min_body_length: 50
checkpoint:
  every: 10
  trust_positional: false
logging:
  development: false
  level: debug
postgres:
  dsn: postgres://localhost/links
  table: checks
`)
	cfg, err := Load(path, nil)
	require.NoError(t, err)

	assert.Equal(t, "/data/run/sheet.xlsx", cfg.Output.XLSXPath)
	assert.Equal(t, "/data/run/results_checkpoint.json", cfg.Output.CheckpointPath)
	assert.False(t, cfg.Probe.Enabled)
	assert.Equal(t, 20*time.Second, cfg.Render.LongWait)
	assert.Equal(t, 50, cfg.Render.MinBodyLength)
	assert.Equal(t, 10, cfg.Checkpoint.Every)
	assert.False(t, cfg.Checkpoint.TrustPositional)
	assert.False(t, cfg.Logging.Development)
	assert.Equal(t, "debug", cfg.Logging.Level)
	assert.Equal(t, "checks", cfg.Postgres.Table)
}

func TestLoadEnvAndFlags(t *testing.T) {
	t.Setenv("LINKCHECK_INPUT_PATH", "env.csv")
	t.Setenv("LINKCHECK_OUTPUT_CSV_PATH", "env/results.csv")
	t.Setenv("LINKCHECK_RENDER_MAX_PER_URL", "90s")
	t.Setenv("LINKCHECK_GCS_BUCKET", "snapshots")

	flags := pflag.NewFlagSet("check", pflag.ContinueOnError)
	flags.String("output", "", "")
	flags.Int("checkpoint-every", 1, "")
	flags.Bool("no-xlsx", false, "")
	flags.Bool("headful", false, "")
	flags.Bool("force-restart", false, "")
	require.NoError(t, flags.Parse([]string{
		"--output", "flag/results.csv",
		"--checkpoint-every", "5",
		"--no-xlsx",
		"--headful",
		"--force-restart",
	}))

	cfg, err := Load("", flags)
	require.NoError(t, err)
	assert.Equal(t, "env.csv", cfg.Input.Path)
	assert.Equal(t, "flag/results.csv", cfg.Output.CSVPath, "flags beat env")
	assert.Equal(t, 90*time.Second, cfg.Render.MaxPerURL)
	assert.Equal(t, "snapshots", cfg.GCS.Bucket)
	assert.Equal(t, 5, cfg.Checkpoint.Every)
	assert.False(t, cfg.Output.WriteXLSX)
	assert.False(t, cfg.Render.Headless)
	assert.True(t, cfg.Checkpoint.ForceRestart)
}

func TestLoadUnchangedFlagsKeepDefaults(t *testing.T) {
	t.Setenv("LINKCHECK_INPUT_PATH", "in.csv")
	t.Setenv("LINKCHECK_OUTPUT_CSV_PATH", "results.csv")

	flags := pflag.NewFlagSet("check", pflag.ContinueOnError)
	flags.Int("checkpoint-every", 0, "")
	flags.Bool("no-probe", false, "")
	require.NoError(t, flags.Parse(nil))

	cfg, err := Load("", flags)
	require.NoError(t, err)
	assert.Equal(t, 1, cfg.Checkpoint.Every)
	assert.True(t, cfg.Probe.Enabled)
}

func TestLoadMissingFile(t *testing.T) {
	_, err := Load(filepath.Join(t.TempDir(), "absent.yaml"), nil)
	require.ErrorContains(t, err, "read config")
}

func TestConfigValidateErrors(t *testing.T) {
	t.Parallel()

	base := Config{
		Input: InputConfig{Path: "in.csv"},
		Output: OutputConfig{
			CSVPath:        "out/r.csv",
			XLSXPath:       "out/r.xlsx",
			CheckpointPath: "out/r_checkpoint.json",
			WriteXLSX:      true,
		},
		Probe: ProbeConfig{Enabled: true, Timeout: time.Second},
		Render: RenderConfig{
			PageLoadTimeout: time.Second,
			ShortWait:       time.Second,
			LongWait:        time.Second,
			MaxPerURL:       time.Second,
		},
		Checkpoint: CheckpointConfig{Every: 1},
	}
	require.NoError(t, base.Validate())

	tests := []struct {
		name   string
		mutate func(*Config)
		want   string
	}{
		{"missing input", func(c *Config) { c.Input.Path = "" }, "input.path"},
		{"missing output", func(c *Config) { c.Output.CSVPath = "" }, "output.csv_path is required"},
		{"xlsx elsewhere", func(c *Config) { c.Output.XLSXPath = "other/r.xlsx" }, "output.xlsx_path"},
		{"checkpoint elsewhere", func(c *Config) { c.Output.CheckpointPath = "/tmp/r.json" }, "output.checkpoint_path"},
		{"overwrite input", func(c *Config) { c.Input.Path = "out/r.csv" }, "must differ"},
		{"probe timeout", func(c *Config) { c.Probe.Timeout = 0 }, "probe.timeout"},
		{"page load", func(c *Config) { c.Render.PageLoadTimeout = 0 }, "render.page_load_timeout"},
		{"waits", func(c *Config) { c.Render.LongWait = 0 }, "render.short_wait"},
		{"ceiling", func(c *Config) { c.Render.MaxPerURL = 0 }, "render.max_per_url"},
		{"settle", func(c *Config) { c.Render.SettleDelay = -time.Second }, "render.settle_delay"},
		{"body length", func(c *Config) { c.Render.MinBodyLength = -1 }, "render.min_body_length"},
		{"cadence", func(c *Config) { c.Checkpoint.Every = 0 }, "checkpoint.every"},
		{"pubsub project", func(c *Config) { c.PubSub.Topic = "runs" }, "pubsub.project_id"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			cfg := base
			tt.mutate(&cfg)
			require.ErrorContains(t, cfg.Validate(), tt.want)
		})
	}

	xlsxOff := base
	xlsxOff.Output.WriteXLSX = false
	xlsxOff.Output.XLSXPath = "elsewhere/r.xlsx"
	require.NoError(t, xlsxOff.Validate())
}
