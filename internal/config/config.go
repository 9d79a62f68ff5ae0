// Package config contains everything related to configuration
package config

import (
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/spf13/viper"
)

// Config holds the application configuration.
type Config struct {
	DatabasePath   string
	SettingsPath   string
	LogPath        string
	LogLevel       string
	CommandTimeout time.Duration
}

// Default values
const (
	appName               = "vibepulse"
	defaultLogLevel       = "info"
	defaultCommandTimeout = 2 * time.Minute
)

// Load reads configuration from .env files and environment variables.
func Load() (*Config, error) {
	// Try loading .env from multiple locations
	for _, path := range getEnvPaths() {
		if _, err := os.Stat(path); err == nil {
			_ = godotenv.Load(path)
			break
		}
	}

	v := viper.New()
	v.SetEnvPrefix("VIBEPULSE")
	v.AutomaticEnv()

	_ = v.BindEnv("database_path", "VIBEPULSE_DATABASE_PATH", "DATABASE_PATH")
	_ = v.BindEnv("settings_path", "VIBEPULSE_SETTINGS_PATH", "SETTINGS_PATH")
	_ = v.BindEnv("log_path", "VIBEPULSE_LOG_PATH", "LOG_PATH")
	_ = v.BindEnv("log_level", "VIBEPULSE_LOG_LEVEL", "LOG_LEVEL")
	_ = v.BindEnv("command_timeout", "VIBEPULSE_COMMAND_TIMEOUT", "COMMAND_TIMEOUT")

	v.SetDefault("database_path", getDefaultDatabasePath())
	v.SetDefault("settings_path", getDefaultSettingsPath())
	v.SetDefault("log_path", getDefaultLogPath())
	v.SetDefault("log_level", defaultLogLevel)

	cfg := &Config{
		DatabasePath:   v.GetString("database_path"),
		SettingsPath:   v.GetString("settings_path"),
		LogPath:        v.GetString("log_path"),
		LogLevel:       v.GetString("log_level"),
		CommandTimeout: parseDuration(v.GetString("command_timeout"), defaultCommandTimeout),
	}

	// The database directory is left to the store, which falls back to
	// memory when it cannot be created.
	for _, path := range []string{cfg.SettingsPath, cfg.LogPath} {
		if err := ensureDir(filepath.Dir(path)); err != nil {
			return nil, err
		}
	}

	return cfg, nil
}

// getEnvPaths returns a list of paths to check for .env files.
func getEnvPaths() []string {
	var paths []string

	// Current directory
	if cwd, err := os.Getwd(); err == nil {
		paths = append(paths, filepath.Join(cwd, ".env"))
	}

	paths = append(paths, filepath.Join(configHome(), appName, ".env"))

	if home, err := os.UserHomeDir(); err == nil {
		paths = append(paths, filepath.Join(home, "."+appName, ".env"))
	}

	return paths
}

// configHome returns $XDG_CONFIG_HOME or ~/.config.
func configHome() string {
	if dir := strings.TrimSpace(os.Getenv("XDG_CONFIG_HOME")); dir != "" {
		return dir
	}
	home, err := os.UserHomeDir()
	if err != nil {
		return "."
	}
	return filepath.Join(home, ".config")
}

// dataHome returns $XDG_DATA_HOME or ~/.local/share.
func dataHome() string {
	if dir := strings.TrimSpace(os.Getenv("XDG_DATA_HOME")); dir != "" {
		return dir
	}
	home, err := os.UserHomeDir()
	if err != nil {
		return "."
	}
	return filepath.Join(home, ".local", "share")
}

// getDefaultDatabasePath returns the default path for the SQLite database.
func getDefaultDatabasePath() string {
	return filepath.Join(dataHome(), appName, appName+".sqlite")
}

// getDefaultSettingsPath returns the default path for the settings file.
func getDefaultSettingsPath() string {
	return filepath.Join(configHome(), appName, "settings.toml")
}

// getDefaultLogPath returns the default path for the log file.
func getDefaultLogPath() string {
	return filepath.Join(dataHome(), appName, appName+".log")
}

// parseDuration accepts values like "30s", "1m", "500ms", or bare seconds.
func parseDuration(value string, defaultValue time.Duration) time.Duration {
	value = strings.TrimSpace(value)
	if value == "" {
		return defaultValue
	}
	if duration, err := time.ParseDuration(value); err == nil && duration > 0 {
		return duration
	}
	if secs, err := strconv.Atoi(value); err == nil && secs > 0 {
		return time.Duration(secs) * time.Second
	}
	return defaultValue
}

// ensureDir creates a directory and all parent directories if they don't exist.
func ensureDir(path string) error {
	if path == "" || path == "." {
		return nil
	}
	return os.MkdirAll(path, 0o750)
}
