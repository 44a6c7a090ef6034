package io

import (
	"context"
	"fmt"
	"io/fs"
	"net/url"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/slok/clockin/internal/model"
)

const (
	defaultPollInterval = time.Minute
	minPollInterval     = 5 * time.Second
)

// ConfigYAMLRepository loads the client configuration from YAML files.
type ConfigYAMLRepository struct {
	fs fs.FS
}

// NewConfigYAMLRepository creates a new YAML config repository.
func NewConfigYAMLRepository(filesystem fs.FS) *ConfigYAMLRepository {
	return &ConfigYAMLRepository{fs: filesystem}
}

// GetConfig loads a client configuration from a YAML file and returns a validated domain model.
func (r *ConfigYAMLRepository) GetConfig(ctx context.Context, path string) (model.ClientConfig, error) {
	data, err := fs.ReadFile(r.fs, path)
	if err != nil {
		return model.ClientConfig{}, fmt.Errorf("reading config file: %w", err)
	}

	if ctx.Err() != nil {
		return model.ClientConfig{}, ctx.Err()
	}

	var cfg ClientConfig
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return model.ClientConfig{}, fmt.Errorf("parsing YAML: %w", err)
	}

	m, err := cfg.toModel()
	if err != nil {
		return model.ClientConfig{}, fmt.Errorf("invalid configuration: %w", err)
	}

	return m, nil
}

// DefaultConfig returns the configuration used when there is no config file.
func DefaultConfig() model.ClientConfig {
	return model.ClientConfig{
		PollInterval: defaultPollInterval,
		Location:     time.Local,
	}
}

// ClientConfig represents the YAML structure for the client configuration.
type ClientConfig struct {
	APIURL         string `yaml:"api_url"`
	PollInterval   string `yaml:"poll_interval"`
	Timezone       string `yaml:"timezone"`
	RequestTimeout string `yaml:"request_timeout"`
}

func (c ClientConfig) toModel() (model.ClientConfig, error) {
	cfg := DefaultConfig()

	if c.APIURL != "" {
		u, err := url.Parse(c.APIURL)
		if err != nil || u.Scheme == "" || u.Host == "" {
			return cfg, fmt.Errorf("api_url must be an absolute URL, got: %q", c.APIURL)
		}
		cfg.APIURL = c.APIURL
	}

	if c.PollInterval != "" {
		d, err := time.ParseDuration(c.PollInterval)
		if err != nil {
			return cfg, fmt.Errorf("poll_interval: %w", err)
		}
		if d < minPollInterval {
			return cfg, fmt.Errorf("poll_interval must be at least %s, got: %s", minPollInterval, d)
		}
		cfg.PollInterval = d
	}

	if c.RequestTimeout != "" {
		d, err := time.ParseDuration(c.RequestTimeout)
		if err != nil {
			return cfg, fmt.Errorf("request_timeout: %w", err)
		}
		if d <= 0 {
			return cfg, fmt.Errorf("request_timeout must be positive, got: %s", d)
		}
		cfg.RequestTimeout = d
	}

	if c.Timezone != "" {
		loc, err := time.LoadLocation(c.Timezone)
		if err != nil {
			return cfg, fmt.Errorf("timezone: %w", err)
		}
		cfg.Location = loc
	}

	return cfg, nil
}
