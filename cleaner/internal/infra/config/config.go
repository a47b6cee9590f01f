// Package config is the cleaner's own configuration.
package config

import (
	coreconfig "github.com/sitesearch/pipeline/core/config"
)

// Config is the cleaner worker's configuration.
type Config struct {
	Redis coreconfig.Redis `yaml:"redis"`
	Stage coreconfig.Stage `yaml:"stage"`

	InputQueue  string `yaml:"input_queue"`
	OutputQueue string `yaml:"output_queue"`
}

// MustLoad reads, unmarshals, and defaults a cleaner config file.
func MustLoad(path string) *Config {
	var cfg Config
	coreconfig.LoadYAML(path, &cfg)

	coreconfig.FailIfEmpty("redis.addr", cfg.Redis.Addr)
	coreconfig.FailIfEmpty("input_queue", cfg.InputQueue)
	coreconfig.FailIfEmpty("output_queue", cfg.OutputQueue)

	cfg.Stage = coreconfig.DefaultStage(cfg.Stage)
	return &cfg
}
