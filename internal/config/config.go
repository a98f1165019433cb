// Package config loads the launcher configuration with viper.
package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/spf13/viper"

	"github.com/loykin/gslauncher/internal/logger"
)

// EnvPrefix is the prefix of environment variables overriding config keys,
// e.g. GSL_SERVER_LISTEN for server.listen.
const EnvPrefix = "GSL"

type Config struct {
	ServersFile string        `mapstructure:"servers_file"`
	CrashLogDir string        `mapstructure:"crash_log_dir"`
	Env         []string      `mapstructure:"env"`
	EnvFiles    []string      `mapstructure:"env_files"`
	Log         LogConfig     `mapstructure:"log"`
	Server      ServerConfig  `mapstructure:"server"`
	Stop        StopConfig    `mapstructure:"stop"`
	Metrics     MetricsConfig `mapstructure:"metrics"`
	History     HistoryConfig `mapstructure:"history"`
}

type LogConfig struct {
	Level      string `mapstructure:"level"`
	Format     string `mapstructure:"format"`
	Color      bool   `mapstructure:"color"`
	TimeStamps bool   `mapstructure:"timestamps"`
	File       string `mapstructure:"file"`
	MaxSizeMB  int    `mapstructure:"max_size_mb"`
	MaxBackups int    `mapstructure:"max_backups"`
	MaxAgeDays int    `mapstructure:"max_age_days"`
	Compress   bool   `mapstructure:"compress"`
	ConsoleDir string `mapstructure:"console_dir"`
}

type ServerConfig struct {
	Listen   string `mapstructure:"listen"`
	BasePath string `mapstructure:"base_path"`
}

// StopConfig holds the shutdown policy used by restart and daemon exit.
type StopConfig struct {
	Command      string        `mapstructure:"command"`
	Timeout      time.Duration `mapstructure:"timeout"`
	KillSettle   time.Duration `mapstructure:"kill_settle"`
	DrainTimeout time.Duration `mapstructure:"drain_timeout"`
}

type MetricsConfig struct {
	Enabled          bool          `mapstructure:"enabled"`
	Path             string        `mapstructure:"path"`
	ResourceInterval time.Duration `mapstructure:"resource_interval"`
}

type HistoryConfig struct {
	DSNs []string `mapstructure:"dsns"`
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("servers_file", "servers.json")
	v.SetDefault("crash_log_dir", ".")
	v.SetDefault("env", []string{})
	v.SetDefault("env_files", []string{})

	v.SetDefault("log.level", "info")
	v.SetDefault("log.format", logger.FormatText)
	v.SetDefault("log.color", false)
	v.SetDefault("log.timestamps", true)
	v.SetDefault("log.file", "game_server_launcher.log")
	v.SetDefault("log.max_size_mb", logger.DefaultMaxSizeMB)
	v.SetDefault("log.max_backups", logger.DefaultMaxBackups)
	v.SetDefault("log.max_age_days", logger.DefaultMaxAgeDays)
	v.SetDefault("log.compress", false)
	v.SetDefault("log.console_dir", "")

	v.SetDefault("server.listen", "127.0.0.1:8000")
	v.SetDefault("server.base_path", "/api")

	v.SetDefault("stop.command", "stop")
	v.SetDefault("stop.timeout", 15*time.Second)
	v.SetDefault("stop.kill_settle", 2*time.Second)
	v.SetDefault("stop.drain_timeout", 2*time.Second)

	v.SetDefault("metrics.enabled", false)
	v.SetDefault("metrics.path", "/metrics")
	v.SetDefault("metrics.resource_interval", 5*time.Second)

	v.SetDefault("history.dsns", []string{})
}

// Load reads path (TOML, YAML or JSON by extension) on top of the defaults
// and applies GSL_* environment overrides. An empty path yields the defaults.
// Relative file and directory settings are resolved against the config
// file's directory.
func Load(path string) (*Config, error) {
	v := viper.New()
	setDefaults(v)
	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if path != "" {
		v.SetConfigFile(path)
		if err := v.ReadInConfig(); err != nil {
			return nil, fmt.Errorf("read config %s: %w", path, err)
		}
	}

	var c Config
	if err := v.Unmarshal(&c); err != nil {
		return nil, fmt.Errorf("decode config: %w", err)
	}
	if path != "" {
		c.resolvePaths(filepath.Dir(path))
	}
	if err := c.Validate(); err != nil {
		return nil, err
	}
	return &c, nil
}

func (c *Config) resolvePaths(base string) {
	abs := func(p string) string {
		if p == "" || filepath.IsAbs(p) {
			return p
		}
		return filepath.Join(base, p)
	}
	c.ServersFile = abs(c.ServersFile)
	c.CrashLogDir = abs(c.CrashLogDir)
	c.Log.File = abs(c.Log.File)
	c.Log.ConsoleDir = abs(c.Log.ConsoleDir)
	for i, f := range c.EnvFiles {
		c.EnvFiles[i] = abs(f)
	}
}

// Validate rejects settings the launcher cannot run with.
func (c *Config) Validate() error {
	if strings.TrimSpace(c.ServersFile) == "" {
		return fmt.Errorf("servers_file is required")
	}
	if c.Stop.Timeout < 0 {
		return fmt.Errorf("stop.timeout must not be negative")
	}
	if c.Server.Listen == "" {
		return fmt.Errorf("server.listen is required")
	}
	return nil
}

// LoggerConfig maps the log section onto logger.Config.
func (c *Config) LoggerConfig() logger.Config {
	return logger.Config{
		Slog: logger.SlogConfig{
			Level:      c.Log.Level,
			Format:     c.Log.Format,
			Color:      c.Log.Color,
			TimeStamps: c.Log.TimeStamps,
		},
		File: logger.FileConfig{
			Path:       c.Log.File,
			MaxSizeMB:  c.Log.MaxSizeMB,
			MaxBackups: c.Log.MaxBackups,
			MaxAgeDays: c.Log.MaxAgeDays,
			Compress:   c.Log.Compress,
			ConsoleDir: c.Log.ConsoleDir,
		},
	}
}

// BaseEnv is the environment every server starts from: the OS environment,
// then env_files in order, then the env list. Per-server overrides are
// applied on top of it by the supervisor.
func (c *Config) BaseEnv() ([]string, error) {
	out := os.Environ()
	for _, p := range c.EnvFiles {
		pairs, err := LoadEnvFile(p)
		if err != nil {
			return nil, err
		}
		out = append(out, pairs...)
	}
	return append(out, c.Env...), nil
}

// LoadEnvFile parses a simple .env file and returns its "KEY=VALUE" entries
// in file order. Blank lines and lines starting with # are ignored.
func LoadEnvFile(path string) ([]string, error) {
	b, err := os.ReadFile(filepath.Clean(path))
	if err != nil {
		return nil, fmt.Errorf("read env file: %w", err)
	}
	var out []string
	for _, line := range strings.Split(string(b), "\n") {
		line = strings.TrimSpace(line)
		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}
		if i := strings.IndexByte(line, '='); i > 0 {
			out = append(out, strings.TrimSpace(line[:i])+"="+strings.TrimSpace(line[i+1:]))
		}
	}
	return out, nil
}
