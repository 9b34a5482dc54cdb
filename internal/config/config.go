// Package config loads and validates linkcheck configuration via Viper.
package config

import (
	"errors"
	"fmt"
	"path/filepath"
	"strings"
	"time"

	"github.com/spf13/pflag"
	"github.com/spf13/viper"

	collyfetcher "github.com/JakeFAU/linkcheck/internal/fetcher/colly"
)

// EnvPrefix scopes environment overrides, e.g. LINKCHECK_OUTPUT_CSV_PATH.
const EnvPrefix = "LINKCHECK"

// Config captures every knob of a run.
type Config struct {
	Input      InputConfig      `mapstructure:"input"`
	Output     OutputConfig     `mapstructure:"output"`
	Probe      ProbeConfig      `mapstructure:"probe"`
	Render     RenderConfig     `mapstructure:"render"`
	Checkpoint CheckpointConfig `mapstructure:"checkpoint"`
	Logging    LoggingConfig    `mapstructure:"logging"`
	Metrics    MetricsConfig    `mapstructure:"metrics"`
	GCS        GCSConfig        `mapstructure:"gcs"`
	Postgres   PostgresConfig   `mapstructure:"postgres"`
	PubSub     PubSubConfig     `mapstructure:"pubsub"`
}

// InputConfig names the table to check.
type InputConfig struct {
	Path string `mapstructure:"path"`
}

// OutputConfig names the result artifacts. All three live in one directory.
type OutputConfig struct {
	CSVPath        string `mapstructure:"csv_path"`
	XLSXPath       string `mapstructure:"xlsx_path"`
	CheckpointPath string `mapstructure:"checkpoint_path"`
	WriteXLSX      bool   `mapstructure:"write_xlsx"`
}

// Dir is the directory holding the output artifacts.
func (o OutputConfig) Dir() string {
	return filepath.Dir(o.CSVPath)
}

// ProbeConfig controls the advisory HTTP probe.
type ProbeConfig struct {
	Enabled   bool          `mapstructure:"enabled"`
	Timeout   time.Duration `mapstructure:"timeout"`
	UserAgent string        `mapstructure:"user_agent"`
}

// RenderConfig controls the browser check.
type RenderConfig struct {
	PageLoadTimeout time.Duration `mapstructure:"page_load_timeout"`
	ShortWait       time.Duration `mapstructure:"short_wait"`
	LongWait        time.Duration `mapstructure:"long_wait"`
	MaxPerURL       time.Duration `mapstructure:"max_per_url"`
	SettleDelay     time.Duration `mapstructure:"settle_delay"`
	MinBodyLength   int           `mapstructure:"min_body_length"`
	Headless        bool          `mapstructure:"headless"`
	ChromePath      string        `mapstructure:"chrome_path"`
	NoSandbox       bool          `mapstructure:"no_sandbox"`
}

// CheckpointConfig controls persistence cadence and resume behavior.
type CheckpointConfig struct {
	Every           int  `mapstructure:"every"`
	ForceRestart    bool `mapstructure:"force_restart"`
	TrustPositional bool `mapstructure:"trust_positional"`
}

// LoggingConfig toggles zap development features and the level.
type LoggingConfig struct {
	Development bool   `mapstructure:"development"`
	Level       string `mapstructure:"level"`
}

// MetricsConfig enables the HTTP metrics server when Addr is set.
type MetricsConfig struct {
	Addr string `mapstructure:"addr"`
}

// GCSConfig enables the snapshot mirror when Bucket is set.
type GCSConfig struct {
	Bucket string `mapstructure:"bucket"`
	Prefix string `mapstructure:"prefix"`
}

// PostgresConfig enables the row mirror and run ledger when DSN is set.
type PostgresConfig struct {
	DSN   string `mapstructure:"dsn"`
	Table string `mapstructure:"table"`
}

// PubSubConfig enables run-summary notifications when Topic is set.
type PubSubConfig struct {
	ProjectID string `mapstructure:"project_id"`
	Topic     string `mapstructure:"topic"`
}

// flagKeys maps command-line flag names onto config keys.
var flagKeys = map[string]string{
	"input":            "input.path",
	"output":           "output.csv_path",
	"xlsx":             "output.xlsx_path",
	"no-xlsx":          "output.no_xlsx",
	"checkpoint-every": "checkpoint.every",
	"force-restart":    "checkpoint.force_restart",
	"no-probe":         "probe.no_probe",
	"headful":          "render.headful",
	"chrome-path":      "render.chrome_path",
	"log-level":        "logging.level",
	"metrics-addr":     "metrics.addr",
}

// Load builds a Config from defaults, an optional YAML file, LINKCHECK_*
// environment variables, and flags, in increasing precedence. flags may be nil.
func Load(path string, flags *pflag.FlagSet) (Config, error) {
	v := viper.New()
	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	setDefaults(v)

	if path != "" {
		v.SetConfigFile(path)
		if err := v.ReadInConfig(); err != nil {
			return Config{}, fmt.Errorf("read config: %w", err)
		}
	}
	if flags != nil {
		for name, key := range flagKeys {
			if f := flags.Lookup(name); f != nil {
				if err := v.BindPFlag(key, f); err != nil {
					return Config{}, fmt.Errorf("bind flag %s: %w", name, err)
				}
			}
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return Config{}, fmt.Errorf("unmarshal config: %w", err)
	}
	// Negative flags only ever switch a feature off.
	if v.GetBool("output.no_xlsx") {
		cfg.Output.WriteXLSX = false
	}
	if v.GetBool("probe.no_probe") {
		cfg.Probe.Enabled = false
	}
	if v.GetBool("render.headful") {
		cfg.Render.Headless = false
	}
	cfg.deriveOutputs()

	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

func setDefaults(v *viper.Viper) {
	// Empty defaults register the keys so AutomaticEnv values reach Unmarshal.
	for _, key := range []string{
		"input.path",
		"output.csv_path",
		"output.xlsx_path",
		"output.checkpoint_path",
		"render.chrome_path",
		"metrics.addr",
		"gcs.bucket",
		"postgres.dsn",
		"pubsub.project_id",
		"pubsub.topic",
	} {
		v.SetDefault(key, "")
	}
	v.SetDefault("render.no_sandbox", false)
	v.SetDefault("output.write_xlsx", true)
	v.SetDefault("probe.enabled", true)
	v.SetDefault("probe.timeout", "8s")
	v.SetDefault("probe.user_agent", collyfetcher.DefaultUserAgent)
	v.SetDefault("render.page_load_timeout", "30s")
	v.SetDefault("render.short_wait", "10s")
	v.SetDefault("render.long_wait", "45s")
	v.SetDefault("render.max_per_url", "70s")
	v.SetDefault("render.settle_delay", "1s")
	v.SetDefault("render.min_body_length", 20)
	v.SetDefault("render.headless", true)
	v.SetDefault("checkpoint.every", 1)
	v.SetDefault("checkpoint.trust_positional", true)
	v.SetDefault("logging.development", true)
	v.SetDefault("logging.level", "info")
	v.SetDefault("gcs.prefix", "linkcheck")
	v.SetDefault("postgres.table", "link_results")
}

// deriveOutputs fills the spreadsheet and checkpoint paths next to the CSV.
func (c *Config) deriveOutputs() {
	if c.Output.CSVPath == "" {
		return
	}
	stem := strings.TrimSuffix(c.Output.CSVPath, filepath.Ext(c.Output.CSVPath))
	if c.Output.XLSXPath == "" {
		c.Output.XLSXPath = stem + ".xlsx"
	}
	if c.Output.CheckpointPath == "" {
		c.Output.CheckpointPath = stem + "_checkpoint.json"
	}
}

// Validate enforces required values and reasonable limits.
func (c Config) Validate() error {
	var errs []error
	if c.Input.Path == "" {
		errs = append(errs, errors.New("input.path is required"))
	}
	if c.Output.CSVPath == "" {
		errs = append(errs, errors.New("output.csv_path is required"))
	} else {
		dir := c.Output.Dir()
		if c.Output.WriteXLSX && filepath.Dir(c.Output.XLSXPath) != dir {
			errs = append(errs, errors.New("output.xlsx_path must be in the same directory as output.csv_path"))
		}
		if filepath.Dir(c.Output.CheckpointPath) != dir {
			errs = append(errs, errors.New("output.checkpoint_path must be in the same directory as output.csv_path"))
		}
		if samePath(c.Output.CSVPath, c.Input.Path) {
			errs = append(errs, errors.New("output.csv_path must differ from input.path"))
		}
	}
	if c.Probe.Enabled && c.Probe.Timeout <= 0 {
		errs = append(errs, errors.New("probe.timeout must be > 0"))
	}
	if c.Render.PageLoadTimeout <= 0 {
		errs = append(errs, errors.New("render.page_load_timeout must be > 0"))
	}
	if c.Render.ShortWait <= 0 || c.Render.LongWait <= 0 {
		errs = append(errs, errors.New("render.short_wait and render.long_wait must be > 0"))
	}
	if c.Render.MaxPerURL <= 0 {
		errs = append(errs, errors.New("render.max_per_url must be > 0"))
	}
	if c.Render.SettleDelay < 0 {
		errs = append(errs, errors.New("render.settle_delay must be >= 0"))
	}
	if c.Render.MinBodyLength < 0 {
		errs = append(errs, errors.New("render.min_body_length must be >= 0"))
	}
	if c.Checkpoint.Every < 1 {
		errs = append(errs, errors.New("checkpoint.every must be >= 1"))
	}
	if c.PubSub.Topic != "" && c.PubSub.ProjectID == "" {
		errs = append(errs, errors.New("pubsub.project_id must be set when pubsub.topic is set"))
	}
	return errors.Join(errs...)
}

func samePath(a, b string) bool {
	if a == "" || b == "" {
		return false
	}
	absA, errA := filepath.Abs(a)
	absB, errB := filepath.Abs(b)
	if errA != nil || errB != nil {
		return filepath.Clean(a) == filepath.Clean(b)
	}
	return absA == absB
}
