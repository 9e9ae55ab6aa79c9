// Package config loads cdsync configuration with viper and turns component
// definitions (inline, manifests, discovered themes) into a registry.
package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/spf13/viper"

	"github.com/cdswerx/cdsync/internal/coord/store"
)

// FileName is the config file base name searched for, without extension.
const FileName = "cdsync"

// EnvPrefix prefixes environment overrides, e.g. CDSYNC_AUTO_SYNC=false.
const EnvPrefix = "CDSYNC"

// Config is the full cdsync configuration.
type Config struct {
	DBPath       string   `mapstructure:"db_path"`
	ThemesDir    string   `mapstructure:"themes_dir"`
	NativeThemes []string `mapstructure:"native_themes"`
	ManifestDir  string   `mapstructure:"manifest_dir"`
	AutoSync     bool     `mapstructure:"auto_sync"`

	History   HistoryConfig   `mapstructure:"history"`
	Schedule  ScheduleConfig  `mapstructure:"schedule"`
	Watch     WatchConfig     `mapstructure:"watch"`
	Dashboard DashboardConfig `mapstructure:"dashboard"`
	Log       LogConfig       `mapstructure:"log"`
	Access    AccessConfig    `mapstructure:"access"`

	Components []ComponentSpec `mapstructure:"components"`

	// BaseDir is the directory of the config file that was read, or the
	// working directory. Relative paths are resolved against it.
	BaseDir string `mapstructure:"-"`

	// File is the config file that was read ("" when none).
	File string `mapstructure:"-"`
}

type HistoryConfig struct {
	Cap int `mapstructure:"cap"`
}

type ScheduleConfig struct {
	Interval time.Duration `mapstructure:"interval"`
}

type WatchConfig struct {
	Enabled  bool          `mapstructure:"enabled"`
	Debounce time.Duration `mapstructure:"debounce"`
}

type DashboardConfig struct {
	Host string `mapstructure:"host"`
	Port int    `mapstructure:"port"`
}

// LogConfig controls the optional rotating log file.
type LogConfig struct {
	File       string `mapstructure:"file"`
	MaxSizeMB  int    `mapstructure:"max_size_mb"`
	MaxBackups int    `mapstructure:"max_backups"`
	MaxAgeDays int    `mapstructure:"max_age_days"`
}

// AccessConfig maps users to roles and roles to resources.
type AccessConfig struct {
	Users map[string]string   `mapstructure:"users"`
	Roles map[string][]string `mapstructure:"roles"`
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("db_path", ".cdsync/options.db")
	v.SetDefault("themes_dir", "")
	v.SetDefault("native_themes", []string{"cdswerx-theme"})
	v.SetDefault("manifest_dir", "components.d")
	v.SetDefault("auto_sync", true)
	v.SetDefault("history.cap", store.DefaultHistoryCap)
	v.SetDefault("schedule.interval", 12*time.Hour)
	v.SetDefault("watch.enabled", true)
	v.SetDefault("watch.debounce", 500*time.Millisecond)
	v.SetDefault("dashboard.host", "127.0.0.1")
	v.SetDefault("dashboard.port", 8080)
	v.SetDefault("log.max_size_mb", 10)
	v.SetDefault("log.max_backups", 3)
	v.SetDefault("log.max_age_days", 28)
	v.SetDefault("access.users", map[string]string{})
	v.SetDefault("access.roles", map[string][]string{"administrator": {"*"}})
}

// Load reads configuration. When path is empty, cdsync.toml is searched in
// the working directory and $HOME/.config/cdsync; a missing file is not an
// error. Environment variables with the CDSYNC_ prefix override the file.
func Load(path string) (*Config, error) {
	v := viper.New()
	setDefaults(v)

	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if path != "" {
		v.SetConfigFile(path)
	} else {
		v.SetConfigName(FileName)
		v.SetConfigType("toml")
		v.AddConfigPath(".")
		if home, err := os.UserHomeDir(); err == nil {
			v.AddConfigPath(filepath.Join(home, ".config", "cdsync"))
		}
	}

	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if path != "" || !errors.As(err, &notFound) {
			return nil, fmt.Errorf("failed to read config: %w", err)
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("failed to decode config: %w", err)
	}

	cfg.File = v.ConfigFileUsed()
	if cfg.File != "" {
		cfg.BaseDir = filepath.Dir(cfg.File)
	} else if wd, err := os.Getwd(); err == nil {
		cfg.BaseDir = wd
	}
	cfg.Log.File = cfg.Resolve(cfg.Log.File)

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// Validate checks value ranges.
func (c *Config) Validate() error {
	if c.DBPath == "" {
		return fmt.Errorf("db_path cannot be empty")
	}
	if c.History.Cap < 1 || c.History.Cap > store.MaxHistoryCap {
		return fmt.Errorf("history.cap must be between 1 and %d, got %d", store.MaxHistoryCap, c.History.Cap)
	}
	if c.Schedule.Interval <= 0 {
		return fmt.Errorf("schedule.interval must be positive, got %s", c.Schedule.Interval)
	}
	if c.Watch.Debounce <= 0 {
		return fmt.Errorf("watch.debounce must be positive, got %s", c.Watch.Debounce)
	}
	if c.Dashboard.Port < 0 || c.Dashboard.Port > 65535 {
		return fmt.Errorf("dashboard.port out of range: %d", c.Dashboard.Port)
	}
	return nil
}

// Resolve makes p absolute against BaseDir.
func (c *Config) Resolve(p string) string {
	return resolve(c.BaseDir, p)
}

func resolve(base, p string) string {
	if p == "" || filepath.IsAbs(p) || base == "" {
		return p
	}
	return filepath.Join(base, p)
}
