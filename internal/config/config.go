package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"time"
)

// ErrInvalidDriver is returned for a database_driver other than sqlite3 or pgx.
var ErrInvalidDriver = errors.New("database_driver must be sqlite3 or pgx")

// Config holds application configuration.
type Config struct {
	DatabaseDriver string        `yaml:"database_driver" env:"DATABASE_DRIVER"`
	DatabaseURL    string        `yaml:"database_url" env:"DATABASE_URL"`
	PrefsPath      string        `yaml:"prefs_path" env:"PREFS_PATH"`
	RedisURL       string        `yaml:"redis_url" env:"REDIS_URL"`
	ServerPort     string        `yaml:"server_port" env:"SERVER_PORT"`
	UserAgent      string        `yaml:"user_agent" env:"FETCHER_USER_AGENT"`
	Timeout        time.Duration `yaml:"timeout" env:"FETCHER_TIMEOUT"`
	XtreamRPS      float64       `yaml:"xtream_rps" env:"XTREAM_RPS"`
	EpgURL         string        `yaml:"epg_url" env:"EPG_URL"`
	Log            LogConfig     `yaml:"log"`
}

// LogConfig configures the rotating log file.
type LogConfig struct {
	Level      string `yaml:"level" env:"LOG_LEVEL"`
	Filename   string `yaml:"filename" env:"LOG_FILE"`
	MaxSize    int    `yaml:"max_size"`
	MaxBackups int    `yaml:"max_backups"`
	MaxAge     int    `yaml:"max_age"`
	Compress   bool   `yaml:"compress"`
}

// Default returns the configuration used when nothing is set.
func Default() *Config {
	return &Config{
		DatabaseDriver: "sqlite3",
		DatabaseURL:    "data/streamshelf.db",
		PrefsPath:      "data/prefs.yaml",
		ServerPort:     "8080",
		UserAgent:      "StreamShelf/1.0",
		Timeout:        30 * time.Second,
		XtreamRPS:      5,
		Log: LogConfig{
			Level:      "info",
			Filename:   "logs/streamshelf.log",
			MaxSize:    100,
			MaxBackups: 3,
			MaxAge:     28,
			Compress:   true,
		},
	}
}

// Load builds config from environment variables on top of Default.
// If DATABASE_URL is not set, Load first reads .env.local and .env.
func Load() (*Config, error) {
	if os.Getenv("DATABASE_URL") == "" {
		loadEnvFiles()
	}
	c := Default()
	c.applyEnv()
	return c, c.Validate()
}

func (c *Config) applyEnv() {
	setString(&c.DatabaseDriver, "DATABASE_DRIVER")
	setString(&c.DatabaseURL, "DATABASE_URL")
	setString(&c.PrefsPath, "PREFS_PATH")
	setString(&c.RedisURL, "REDIS_URL")
	setString(&c.ServerPort, "SERVER_PORT")
	setString(&c.UserAgent, "FETCHER_USER_AGENT")
	setString(&c.EpgURL, "EPG_URL")
	setString(&c.Log.Level, "LOG_LEVEL")
	setString(&c.Log.Filename, "LOG_FILE")
	if s := os.Getenv("FETCHER_TIMEOUT"); s != "" {
		if d, err := time.ParseDuration(s); err == nil {
			c.Timeout = d
		}
	}
	if s := os.Getenv("XTREAM_RPS"); s != "" {
		if f, err := strconv.ParseFloat(s, 64); err == nil {
			c.XtreamRPS = f
		}
	}
}

// Validate checks values that would otherwise fail later at startup.
func (c *Config) Validate() error {
	switch c.DatabaseDriver {
	case "sqlite3", "pgx":
	default:
		return fmt.Errorf("%w: got %q", ErrInvalidDriver, c.DatabaseDriver)
	}
	if c.DatabaseURL == "" {
		return errors.New("database_url is required")
	}
	if c.Timeout <= 0 {
		return fmt.Errorf("timeout must be positive, got %s", c.Timeout)
	}
	return nil
}

func setString(dst *string, key string) {
	if v := os.Getenv(key); v != "" {
		*dst = v
	}
}
