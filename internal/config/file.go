package config

import (
	"fmt"
	"os"
	"time"

	"gopkg.in/yaml.v3"
)

// fileConfig mirrors Config with a string timeout so "30s" can be written in YAML.
type fileConfig struct {
	DatabaseDriver string  `yaml:"database_driver"`
	DatabaseURL    string  `yaml:"database_url"`
	PrefsPath      string  `yaml:"prefs_path"`
	RedisURL       string  `yaml:"redis_url"`
	ServerPort     string  `yaml:"server_port"`
	UserAgent      string  `yaml:"user_agent"`
	Timeout        string  `yaml:"timeout"`
	XtreamRPS      float64 `yaml:"xtream_rps"`
	EpgURL         string  `yaml:"epg_url"`
	Log            fileLog `yaml:"log"`
}

type fileLog struct {
	Level      string `yaml:"level"`
	Filename   string `yaml:"filename"`
	MaxSize    int    `yaml:"max_size"`
	MaxBackups int    `yaml:"max_backups"`
	MaxAge     int    `yaml:"max_age"`
	Compress   *bool  `yaml:"compress"`
}

// LoadFromFile loads config from a YAML file on top of Default. Unset keys keep
// their defaults; environment variables are not consulted.
func LoadFromFile(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	var f fileConfig
	if err := yaml.Unmarshal(data, &f); err != nil {
		return nil, fmt.Errorf("parse %s: %w", path, err)
	}
	c := Default()
	override(&c.DatabaseDriver, f.DatabaseDriver)
	override(&c.DatabaseURL, f.DatabaseURL)
	override(&c.PrefsPath, f.PrefsPath)
	override(&c.RedisURL, f.RedisURL)
	override(&c.ServerPort, f.ServerPort)
	override(&c.UserAgent, f.UserAgent)
	override(&c.EpgURL, f.EpgURL)
	if f.Timeout != "" {
		d, err := time.ParseDuration(f.Timeout)
		if err != nil {
			return nil, fmt.Errorf("timeout: %w", err)
		}
		c.Timeout = d
	}
	if f.XtreamRPS > 0 {
		c.XtreamRPS = f.XtreamRPS
	}
	override(&c.Log.Level, f.Log.Level)
	override(&c.Log.Filename, f.Log.Filename)
	if f.Log.MaxSize > 0 {
		c.Log.MaxSize = f.Log.MaxSize
	}
	if f.Log.MaxBackups > 0 {
		c.Log.MaxBackups = f.Log.MaxBackups
	}
	if f.Log.MaxAge > 0 {
		c.Log.MaxAge = f.Log.MaxAge
	}
	if f.Log.Compress != nil {
		c.Log.Compress = *f.Log.Compress
	}
	return c, c.Validate()
}

func override(dst *string, v string) {
	if v != "" {
		*dst = v
	}
}
