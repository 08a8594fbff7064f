// Package config loads rcsv settings from defaults, a config file, RCSV_*
// environment variables and command-line flags, in increasing priority.
//
// Config files may be TOML, YAML or JSON (by extension). Without an explicit
// path, "rcsv.toml|yaml|json" is searched in the working directory and in
// $HOME/.config/rcsv.
package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/spf13/viper"

	"github.com/rcsvlog/rcsv/internal/manager"
)

// EnvPrefix is the prefix of environment overrides (RCSV_SERVER_URL, ...).
const EnvPrefix = "RCSV"

// Config is the effective configuration.
type Config struct {
	Filename  string   `mapstructure:"filename" yaml:"filename"`
	DataDir   string   `mapstructure:"data_dir" yaml:"data_dir"`
	LogTime   bool     `mapstructure:"log_time" yaml:"log_time"`
	LogMillis bool     `mapstructure:"log_millis" yaml:"log_millis"`
	Precision int      `mapstructure:"precision" yaml:"precision"`
	ToConsole bool     `mapstructure:"to_console" yaml:"to_console"`
	Header    []string `mapstructure:"header" yaml:"header"`
	ServerURL string   `mapstructure:"server_url" yaml:"server_url"`

	Manager     ManagerConfig     `mapstructure:"manager" yaml:"manager"`
	Remote      RemoteConfig      `mapstructure:"remote" yaml:"remote"`
	Daemon      DaemonConfig      `mapstructure:"daemon" yaml:"daemon"`
	Diagnostics DiagnosticsConfig `mapstructure:"diagnostics" yaml:"diagnostics"`
	Collector   CollectorConfig   `mapstructure:"collector" yaml:"collector"`
}

// ManagerConfig selects where the log manager lives.
type ManagerConfig struct {
	// Backend is csv, sqlite or pebble.
	Backend string `mapstructure:"backend" yaml:"backend"`
	// Path overrides the default location under DataDir.
	Path string `mapstructure:"path" yaml:"path"`
}

// RemoteConfig tunes the sender.
type RemoteConfig struct {
	Timeout      time.Duration `mapstructure:"timeout" yaml:"timeout"`
	Compression  string        `mapstructure:"compression" yaml:"compression"`
	MaxBatchRows int           `mapstructure:"max_batch_rows" yaml:"max_batch_rows"`
}

// DaemonConfig tunes the background sync daemon.
type DaemonConfig struct {
	Debounce      time.Duration `mapstructure:"debounce" yaml:"debounce"`
	RetryInterval time.Duration `mapstructure:"retry_interval" yaml:"retry_interval"`
}

// DiagnosticsConfig routes diagnostics to a rotating file instead of stderr.
type DiagnosticsConfig struct {
	File       string `mapstructure:"file" yaml:"file"`
	MaxSizeMB  int    `mapstructure:"max_size_mb" yaml:"max_size_mb"`
	MaxBackups int    `mapstructure:"max_backups" yaml:"max_backups"`
	MaxAgeDays int    `mapstructure:"max_age_days" yaml:"max_age_days"`
}

// CollectorConfig configures the reference collection server.
type CollectorConfig struct {
	Addr string `mapstructure:"addr" yaml:"addr"`
	Dir  string `mapstructure:"dir" yaml:"dir"`
}

// Default returns built-in defaults.
func Default() Config {
	return Config{
		DataDir:   defaultDataDir(),
		LogTime:   true,
		LogMillis: true,
		Precision: 2,
		Manager: ManagerConfig{
			Backend: manager.BackendCSV,
		},
		Remote: RemoteConfig{
			Timeout: 10 * time.Second,
		},
		Daemon: DaemonConfig{
			Debounce:      250 * time.Millisecond,
			RetryInterval: 30 * time.Second,
		},
		Diagnostics: DiagnosticsConfig{
			MaxSizeMB:  10,
			MaxBackups: 3,
			MaxAgeDays: 28,
		},
		Collector: CollectorConfig{
			Addr: ":8080",
			Dir:  "collected",
		},
	}
}

// SetDefaults registers the defaults on v so every key is known to viper,
// which environment binding needs.
func SetDefaults(v *viper.Viper) {
	d := Default()
	v.SetDefault("filename", d.Filename)
	v.SetDefault("data_dir", d.DataDir)
	v.SetDefault("log_time", d.LogTime)
	v.SetDefault("log_millis", d.LogMillis)
	v.SetDefault("precision", d.Precision)
	v.SetDefault("to_console", d.ToConsole)
	v.SetDefault("header", d.Header)
	v.SetDefault("server_url", d.ServerURL)
	v.SetDefault("manager.backend", d.Manager.Backend)
	v.SetDefault("manager.path", d.Manager.Path)
	v.SetDefault("remote.timeout", d.Remote.Timeout)
	v.SetDefault("remote.compression", d.Remote.Compression)
	v.SetDefault("remote.max_batch_rows", d.Remote.MaxBatchRows)
	v.SetDefault("daemon.debounce", d.Daemon.Debounce)
	v.SetDefault("daemon.retry_interval", d.Daemon.RetryInterval)
	v.SetDefault("diagnostics.file", d.Diagnostics.File)
	v.SetDefault("diagnostics.max_size_mb", d.Diagnostics.MaxSizeMB)
	v.SetDefault("diagnostics.max_backups", d.Diagnostics.MaxBackups)
	v.SetDefault("diagnostics.max_age_days", d.Diagnostics.MaxAgeDays)
	v.SetDefault("collector.addr", d.Collector.Addr)
	v.SetDefault("collector.dir", d.Collector.Dir)
}

// Load reads configuration into v and returns the typed result. If path is
// empty, the default search locations are tried and a missing file is not
// an error.
func Load(v *viper.Viper, path string) (Config, error) {
	SetDefaults(v)

	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if path != "" {
		v.SetConfigFile(path)
	} else {
		v.SetConfigName("rcsv")
		v.AddConfigPath(".")
		if home, err := os.UserHomeDir(); err == nil {
			v.AddConfigPath(filepath.Join(home, ".config", "rcsv"))
		}
	}

	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if path != "" || !errors.As(err, &notFound) {
			return Config{}, fmt.Errorf("failed to read config: %w", err)
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return Config{}, fmt.Errorf("failed to decode config: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

// Validate checks field values.
func (c *Config) Validate() error {
	if c.Precision < 0 {
		return fmt.Errorf("precision must be >= 0 (got %d)", c.Precision)
	}
	switch strings.ToLower(c.Manager.Backend) {
	case "", manager.BackendCSV, manager.BackendSQLite, manager.BackendPebble:
	default:
		return fmt.Errorf("manager.backend must be csv, sqlite or pebble (got %q)", c.Manager.Backend)
	}
	switch strings.ToLower(c.Remote.Compression) {
	case "", "none", "gzip", "zstd":
	default:
		return fmt.Errorf("remote.compression must be gzip or zstd (got %q)", c.Remote.Compression)
	}
	if c.Remote.MaxBatchRows < 0 {
		return fmt.Errorf("remote.max_batch_rows must be >= 0 (got %d)", c.Remote.MaxBatchRows)
	}
	return nil
}

// ManagerPath returns the log manager location: the configured path, or a
// backend-specific default under DataDir.
func (c *Config) ManagerPath() string {
	if c.Manager.Path != "" {
		return c.Manager.Path
	}
	switch strings.ToLower(c.Manager.Backend) {
	case manager.BackendSQLite:
		return filepath.Join(c.DataDir, "logManager.db")
	case manager.BackendPebble:
		return filepath.Join(c.DataDir, "logManager.pebble")
	default:
		return filepath.Join(c.DataDir, manager.DefaultFilename)
	}
}

func defaultDataDir() string {
	home, err := os.UserHomeDir()
	if err != nil || home == "" {
		return "."
	}
	return filepath.Join(home, "Documents")
}
