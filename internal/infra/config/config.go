// Package config provides configuration loading from YAML files.
package config

import (
	"os"

	"github.com/cockroachdb/errors"
	"github.com/creasty/defaults"
	"github.com/go-playground/validator/v10"
	"gopkg.in/yaml.v3"
)

// Config represents the application configuration.
type Config struct {
	Subsonic Subsonic `yaml:"subsonic"`
	Playback Playback `yaml:"playback"`
	Settings Settings `yaml:"settings"`
	Autoplay Autoplay `yaml:"autoplay"`
}

// Subsonic represents catalog server configuration.
type Subsonic struct {
	ServerURL     string `yaml:"server_url" validate:"required,url"`
	Username      string `yaml:"username" validate:"required"`
	Password      string `yaml:"password" validate:"required"`
	ClientName    string `yaml:"client_name" default:"subwoofer"`
	CoverCacheDir string `yaml:"cover_cache_dir" default:"cache"`
}

// Playback represents playback and status display configuration.
type Playback struct {
	RefreshIntervalSec int `yaml:"refresh_interval_sec" default:"4" validate:"gte=1,lte=60"`
	RecreateWindow     int `yaml:"recreate_window" default:"24" validate:"gte=1"`
}

// Settings represents durable guild settings storage configuration.
type Settings struct {
	Path            string `yaml:"path" default:"guild_settings.json"`
	SaveIntervalSec int    `yaml:"save_interval_sec" default:"300" validate:"gte=10"`
}

// Autoplay represents autoplay provider configuration. Settings blocks are
// free-form maps decoded by the individual providers.
type Autoplay struct {
	Random map[string]any `yaml:"random"`
}

// Load loads configuration from a YAML file.
// Environment variables take precedence over file values for sensitive fields.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, errors.Wrap(err, "failed to read config file")
	}

	var cfg Config
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, errors.Wrap(err, "failed to parse config file")
	}

	cfg.overrideFromEnv()

	if err := defaults.Set(&cfg); err != nil {
		return nil, errors.Wrap(err, "failed to set defaults")
	}

	if err := cfg.Validate(); err != nil {
		return nil, errors.Wrap(err, "config validation failed")
	}

	return &cfg, nil
}

// overrideFromEnv overrides config values with environment variables.
func (c *Config) overrideFromEnv() {
	if v := os.Getenv("SUBSONIC_SERVER"); v != "" {
		c.Subsonic.ServerURL = v
	}
	if v := os.Getenv("SUBSONIC_USER"); v != "" {
		c.Subsonic.Username = v
	}
	if v := os.Getenv("SUBSONIC_PASSWORD"); v != "" {
		c.Subsonic.Password = v
	}
}

// Validate validates the configuration.
func (c *Config) Validate() error {
	if err := validator.New().Struct(c); err != nil {
		return errors.Wrap(err, "struct validation failed")
	}
	return nil
}
