// Package config loads canlog settings.
//
// Values are layered: built-in defaults, then the YAML file named by
// --config or CANLOG_CONFIG, then CANLOG_* environment variables, then
// command-line flags that were set explicitly.
package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"

	"github.com/caarlos0/env/v11"
	"github.com/spf13/pflag"
	"gopkg.in/yaml.v3"

	"canlog/internal/service"
	"canlog/internal/telemetry"
)

// ConfigEnv names the environment variable holding the config file path.
const ConfigEnv = "CANLOG_CONFIG"

// Config holds reconstruction defaults and where canlog keeps its state.
type Config struct {
	// DataDir holds the job catalog, secrets and default CSV exports.
	DataDir string `yaml:"data_dir" env:"CANLOG_DATA_DIR"`

	// Database is the catalog path. Empty means DataDir/canlog.db.
	Database string `yaml:"database" env:"CANLOG_DATABASE"`

	ChannelPrefix   string   `yaml:"channel_prefix" env:"CANLOG_CHANNEL_PREFIX"`
	TimeField       string   `yaml:"time_field" env:"CANLOG_TIME_FIELD"`
	Discriminators  []string `yaml:"discriminators" env:"CANLOG_DISCRIMINATORS" envSeparator:","`
	Placeholder     string   `yaml:"placeholder" env:"CANLOG_PLACEHOLDER"`
	AllowOutOfOrder bool     `yaml:"allow_out_of_order" env:"CANLOG_ALLOW_OUT_OF_ORDER"`
	ReorderWindow   int      `yaml:"reorder_window" env:"CANLOG_REORDER_WINDOW"`
}

// Default returns the settings matching Parsley CAN logs.
func Default() *Config {
	home, _ := os.UserHomeDir()
	fields := telemetry.DefaultFields()
	return &Config{
		DataDir:        filepath.Join(home, ".local", "share", "canlog"),
		ChannelPrefix:  telemetry.DefaultChannelPrefix,
		TimeField:      fields.Time,
		Discriminators: fields.Discriminators,
	}
}

// Load reads the config file at path (or CANLOG_CONFIG when path is
// empty) over the defaults and then applies the environment. With no
// file configured only defaults and environment are used.
func Load(path string) (*Config, error) {
	cfg := Default()

	if path == "" {
		path = os.Getenv(ConfigEnv)
	}
	if path != "" {
		if err := cfg.loadFile(path); err != nil {
			return nil, err
		}
	}

	if err := env.Parse(cfg); err != nil {
		return nil, fmt.Errorf("parse env: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func (c *Config) loadFile(path string) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("read config: %w", err)
	}
	if err := yaml.Unmarshal(data, c); err != nil {
		return fmt.Errorf("parse config %s: %w", path, err)
	}
	return nil
}

// Validate checks the settings are usable.
func (c *Config) Validate() error {
	var errs []error
	if c.DataDir == "" {
		errs = append(errs, errors.New("data_dir is required"))
	}
	if c.TimeField == "" {
		errs = append(errs, errors.New("time_field is required"))
	}
	if c.ReorderWindow < 0 {
		errs = append(errs, fmt.Errorf("reorder_window must be >= 0, got %d", c.ReorderWindow))
	}
	for _, d := range c.Discriminators {
		if d == "" || d == c.TimeField {
			errs = append(errs, fmt.Errorf("invalid discriminator %q", d))
		}
	}
	if len(errs) > 0 {
		return fmt.Errorf("invalid config: %w", errors.Join(errs...))
	}
	return nil
}

// DatabasePath returns the catalog location.
func (c *Config) DatabasePath() string {
	if c.Database != "" {
		return c.Database
	}
	return filepath.Join(c.DataDir, "canlog.db")
}

// ExportDir is where jobs without a target write CSV files.
func (c *Config) ExportDir() string { return filepath.Join(c.DataDir, "exports") }

// SecretsPath is the file backing the secret store.
func (c *Config) SecretsPath() string { return filepath.Join(c.DataDir, "secrets.yaml") }

// Fields returns the reserved data keys.
func (c *Config) Fields() telemetry.Fields {
	return telemetry.Fields{Time: c.TimeField, Discriminators: c.Discriminators}
}

// Defaults returns the reconstruction defaults for the services.
func (c *Config) Defaults() service.Defaults {
	return service.Defaults{
		ChannelPrefix:   c.ChannelPrefix,
		Fields:          c.Fields(),
		Placeholder:     c.Placeholder,
		AllowOutOfOrder: c.AllowOutOfOrder,
		ReorderWindow:   c.ReorderWindow,
	}
}

// Options returns core options for one-off CLI passes.
func (c *Config) Options() telemetry.Options {
	return c.Defaults().Options("", "")
}

// ── Flags ──────────────────────────────────────────────────

// Flags binds the config keys to a flag set. Only flags the user set
// override file and environment values.
type Flags struct {
	fs *pflag.FlagSet

	path            string
	dataDir         string
	database        string
	channelPrefix   string
	timeField       string
	discriminators  []string
	placeholder     string
	allowOutOfOrder bool
	reorderWindow   int
}

// RegisterFlags adds the config flags to fs.
func RegisterFlags(fs *pflag.FlagSet) *Flags {
	f := &Flags{fs: fs}
	fs.StringVar(&f.path, "config", "", "config file (default $"+ConfigEnv+")")
	fs.StringVar(&f.dataDir, "data-dir", "", "directory for the job catalog and exports")
	fs.StringVar(&f.database, "database", "", "job catalog path (default <data-dir>/canlog.db)")
	fs.StringVar(&f.channelPrefix, "channel-prefix", "", "only read channels starting with this prefix")
	fs.StringVar(&f.timeField, "time-field", "", "data key holding the board clock")
	fs.StringSliceVar(&f.discriminators, "discriminators", nil, "data keys that split a message type into instances")
	fs.StringVar(&f.placeholder, "placeholder", "", "value for cells with no reading yet")
	fs.BoolVar(&f.allowOutOfOrder, "allow-out-of-order", false, "accept decreasing timestamps")
	fs.IntVarP(&f.reorderWindow, "reorder-window", "w", 0, "reorder messages within this many positions")
	return f
}

// Load loads the layered config and applies the flags that were set.
func (f *Flags) Load() (*Config, error) {
	cfg, err := Load(f.path)
	if err != nil {
		return nil, err
	}
	changed := f.fs.Changed
	if changed("data-dir") {
		cfg.DataDir = f.dataDir
	}
	if changed("database") {
		cfg.Database = f.database
	}
	if changed("channel-prefix") {
		cfg.ChannelPrefix = f.channelPrefix
	}
	if changed("time-field") {
		cfg.TimeField = f.timeField
	}
	if changed("discriminators") {
		cfg.Discriminators = f.discriminators
	}
	if changed("placeholder") {
		cfg.Placeholder = f.placeholder
	}
	if changed("allow-out-of-order") {
		cfg.AllowOutOfOrder = f.allowOutOfOrder
	}
	if changed("reorder-window") {
		cfg.ReorderWindow = f.reorderWindow
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}
