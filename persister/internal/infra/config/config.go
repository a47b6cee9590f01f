// Package config loads the persister's YAML config, matching the other
// stage workers' MustLoad shape.
package config

import (
	coreconfig "github.com/sitesearch/pipeline/core/config"
)

// Postgres is the connection config for the document store.
type Postgres struct {
	DSN             string `yaml:"dsn"`
	MaxConns        int32  `yaml:"max_conns"`
	MigrateOnStart  bool   `yaml:"migrate_on_start"`
}

// Config is the persister stage's own configuration.
type Config struct {
	Redis       coreconfig.Redis `yaml:"redis"`
	Postgres    Postgres         `yaml:"postgres"`
	Stage       coreconfig.Stage `yaml:"stage"`
	InputQueue  string           `yaml:"input_queue"`
	OutputQueue string           `yaml:"output_queue"`
}

// MustLoad reads path and fails fast on a missing required field.
func MustLoad(path string) *Config {
	var cfg Config
	coreconfig.LoadYAML(path, &cfg)

	coreconfig.FailIfEmpty("redis.addr", cfg.Redis.Addr)
	coreconfig.FailIfEmpty("postgres.dsn", cfg.Postgres.DSN)
	coreconfig.FailIfEmpty("input_queue", cfg.InputQueue)
	coreconfig.FailIfEmpty("output_queue", cfg.OutputQueue)

	if cfg.Postgres.MaxConns <= 0 {
		cfg.Postgres.MaxConns = 10
	}
	cfg.Stage = coreconfig.DefaultStage(cfg.Stage)

	return &cfg
}
