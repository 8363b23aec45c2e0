package monitor

import (
	"context"
	"fmt"
	"os"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/veillelab/regwatch/monitor/internal/fetch"
	"github.com/veillelab/regwatch/monitor/internal/scheduler"
	"github.com/veillelab/regwatch/monitor/internal/sink"
)

// Config configures the monitor service.
type Config struct {
	// DatabasePath is the SQLite file backing fingerprints, changes,
	// and the check log.
	DatabasePath string

	// TickInterval is how often due sources are polled.
	TickInterval time.Duration
	// Workers bounds concurrent source checks.
	Workers int

	// FetchTimeout bounds each HTTP request.
	FetchTimeout time.Duration
	// MaxBodyBytes bounds each response body.
	MaxBodyBytes int64
	// UserAgent sent with every request.
	UserAgent string

	// MaxFailures is the consecutive-failure count that suspends a source.
	MaxFailures int
	// DedupCacheSize bounds the in-memory fingerprint cache.
	DedupCacheSize int

	// Sinks configures change delivery.
	Sinks SinksConfig

	// Sources are registered at startup. The registry is in-memory, so
	// a restart repopulates it from here.
	Sources []BootstrapSource
}

// SinksConfig selects where detected changes are delivered.
type SinksConfig struct {
	// Stdout emits each change as one JSON line.
	Stdout bool
	// Webhooks are POSTed each change.
	Webhooks []sink.WebhookConfig
}

// BootstrapSource is one source declared in the config file.
type BootstrapSource struct {
	ID            string
	Name          string
	Endpoint      string
	SourceType    string
	CheckInterval time.Duration
	Active        bool
}

func (c *Config) defaults() {
	if c.DatabasePath == "" {
		c.DatabasePath = "regwatch.db"
	}
	if c.TickInterval <= 0 {
		c.TickInterval = 5 * time.Second
	}
	if c.Workers <= 0 {
		c.Workers = 8
	}
	if c.FetchTimeout <= 0 {
		c.FetchTimeout = 30 * time.Second
	}
	if c.MaxBodyBytes <= 0 {
		c.MaxBodyBytes = 10 * 1024 * 1024
	}
	if c.UserAgent == "" {
		c.UserAgent = "regwatch/1.0"
	}
	if c.MaxFailures <= 0 {
		c.MaxFailures = 5
	}
	if c.DedupCacheSize <= 0 {
		c.DedupCacheSize = 4096
	}
}

// DefaultConfig returns a Config with every default applied.
func DefaultConfig() *Config {
	c := &Config{}
	c.defaults()
	return c
}

// fileConfig is the YAML shape of the config file. Durations cross the
// file boundary as seconds.
type fileConfig struct {
	DatabasePath        string `yaml:"database_path"`
	TickIntervalSeconds int    `yaml:"tick_interval_seconds"`
	Workers             int    `yaml:"workers"`
	FetchTimeoutSeconds int    `yaml:"fetch_timeout_seconds"`
	MaxBodyBytes        int64  `yaml:"max_body_bytes"`
	UserAgent           string `yaml:"user_agent"`
	MaxFailures         int    `yaml:"max_failures"`
	DedupCacheSize      int    `yaml:"dedup_cache_size"`

	Sinks struct {
		Stdout   bool `yaml:"stdout"`
		Webhooks []struct {
			URL            string `yaml:"url"`
			Secret         string `yaml:"secret"`
			TimeoutSeconds int    `yaml:"timeout_seconds"`
			MaxTries       uint   `yaml:"max_tries"`
		} `yaml:"webhooks"`
	} `yaml:"sinks"`

	Sources []struct {
		ID                   string `yaml:"id"`
		Name                 string `yaml:"name"`
		Endpoint             string `yaml:"endpoint"`
		SourceType           string `yaml:"source_type"`
		CheckIntervalSeconds int64  `yaml:"check_interval_seconds"`
		Active               *bool  `yaml:"active"`
	} `yaml:"sources"`
}

// LoadConfig reads a YAML config file, applying defaults to anything
// unset.
func LoadConfig(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read config: %w", err)
	}
	var fc fileConfig
	if err := yaml.Unmarshal(data, &fc); err != nil {
		return nil, fmt.Errorf("parse config %s: %w", path, err)
	}

	c := &Config{
		DatabasePath:   fc.DatabasePath,
		TickInterval:   time.Duration(fc.TickIntervalSeconds) * time.Second,
		Workers:        fc.Workers,
		FetchTimeout:   time.Duration(fc.FetchTimeoutSeconds) * time.Second,
		MaxBodyBytes:   fc.MaxBodyBytes,
		UserAgent:      fc.UserAgent,
		MaxFailures:    fc.MaxFailures,
		DedupCacheSize: fc.DedupCacheSize,
	}
	c.Sinks.Stdout = fc.Sinks.Stdout
	for _, wh := range fc.Sinks.Webhooks {
		c.Sinks.Webhooks = append(c.Sinks.Webhooks, sink.WebhookConfig{
			URL:      wh.URL,
			Secret:   wh.Secret,
			Timeout:  time.Duration(wh.TimeoutSeconds) * time.Second,
			MaxTries: wh.MaxTries,
		})
	}
	for _, s := range fc.Sources {
		active := true
		if s.Active != nil {
			active = *s.Active
		}
		c.Sources = append(c.Sources, BootstrapSource{
			ID:            s.ID,
			Name:          s.Name,
			Endpoint:      s.Endpoint,
			SourceType:    s.SourceType,
			CheckInterval: time.Duration(s.CheckIntervalSeconds) * time.Second,
			Active:        active,
		})
	}
	c.defaults()
	return c, nil
}

// Bootstrap registers the config-declared sources on a fresh service.
func (svc *Service) Bootstrap(ctx context.Context) error {
	for _, bs := range svc.config.Sources {
		src := &Source{
			ID:            bs.ID,
			Name:          bs.Name,
			Endpoint:      bs.Endpoint,
			SourceType:    bs.SourceType,
			CheckInterval: bs.CheckInterval,
			Active:        bs.Active,
		}
		if err := svc.AddSource(ctx, src); err != nil {
			return fmt.Errorf("bootstrap source %q: %w", bs.Name, err)
		}
	}
	return nil
}

func (c *Config) fetchConfig() fetch.Config {
	return fetch.Config{
		Timeout:   c.FetchTimeout,
		MaxBytes:  c.MaxBodyBytes,
		UserAgent: c.UserAgent,
	}
}

func (c *Config) schedulerConfig() scheduler.Config {
	return scheduler.Config{
		TickInterval: c.TickInterval,
		Workers:      c.Workers,
	}
}
