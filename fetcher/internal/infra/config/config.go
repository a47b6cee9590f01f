// Package config is the fetcher's own configuration, layering
// crawl-scoping fields on top of core/config's shared Redis/Stage
// fragments, matching each teacher service's infra/config/config.go shape.
package config

import (
	"time"

	coreconfig "github.com/sitesearch/pipeline/core/config"
)

// Config is the fetcher worker's configuration.
type Config struct {
	Redis coreconfig.Redis `yaml:"redis"`
	Stage coreconfig.Stage `yaml:"stage"`

	InputQueue  string `yaml:"input_queue"`
	OutputQueue string `yaml:"output_queue"`

	AllowedDomains  []string `yaml:"allowed_domains"`
	IncludePatterns []string `yaml:"include_patterns"`
	ExcludePatterns []string `yaml:"exclude_patterns"`

	RequestTimeout   time.Duration `yaml:"request_timeout"`
	BaseCrawlDelay   time.Duration `yaml:"base_crawl_delay"`
	MaxRetryAttempts int           `yaml:"max_retry_attempts"`

	SitemapDiscovery bool `yaml:"sitemap_discovery"`
}

// MustLoad reads, unmarshals, and defaults a fetcher config file.
func MustLoad(path string) *Config {
	var cfg Config
	coreconfig.LoadYAML(path, &cfg)

	coreconfig.FailIfEmpty("redis.addr", cfg.Redis.Addr)
	coreconfig.FailIfEmpty("input_queue", cfg.InputQueue)
	coreconfig.FailIfEmpty("output_queue", cfg.OutputQueue)

	cfg.Stage = coreconfig.DefaultStage(cfg.Stage)

	if cfg.RequestTimeout <= 0 {
		cfg.RequestTimeout = 15 * time.Second
	}
	if cfg.BaseCrawlDelay <= 0 {
		cfg.BaseCrawlDelay = 500 * time.Millisecond
	}
	if cfg.MaxRetryAttempts <= 0 {
		cfg.MaxRetryAttempts = 3
	}

	return &cfg
}
