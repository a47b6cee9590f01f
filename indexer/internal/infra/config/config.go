// Package config loads the indexer's YAML config, matching the other
// stage workers' MustLoad shape.
package config

import (
	coreconfig "github.com/sitesearch/pipeline/core/config"
)

// Config is the indexer stage's own configuration. The indexer has no
// OutputQueue: it is the terminal stage.
type Config struct {
	Redis      coreconfig.Redis `yaml:"redis"`
	Stage      coreconfig.Stage `yaml:"stage"`
	InputQueue string           `yaml:"input_queue"`

	ChunkSize    int `yaml:"chunk_size"`
	ChunkOverlap int `yaml:"chunk_overlap"`
}

// MustLoad reads path and fails fast on a missing required field.
func MustLoad(path string) *Config {
	var cfg Config
	coreconfig.LoadYAML(path, &cfg)

	coreconfig.FailIfEmpty("redis.addr", cfg.Redis.Addr)
	coreconfig.FailIfEmpty("input_queue", cfg.InputQueue)

	cfg.Stage = coreconfig.DefaultStage(cfg.Stage)

	if cfg.ChunkSize <= 0 {
		cfg.ChunkSize = 800
	}
	if cfg.ChunkOverlap <= 0 {
		cfg.ChunkOverlap = 100
	}

	return &cfg
}
