// Package config holds the configuration fragments shared by every
// service's own config.MustLoad, matching the nested Redis/NATS sub-struct
// shape the teacher's infra/config/config.go uses in each service.
package config

import (
	"log"
	"os"
	"time"

	"gopkg.in/yaml.v3"
)

// Redis is the connection config every service embeds.
type Redis struct {
	Addr     string `yaml:"addr"`
	Password string `yaml:"password"`
	DB       int    `yaml:"db"`
}

// NATS is the connection config for the Monitor's optional alert pub/sub.
type NATS struct {
	URL           string `yaml:"url"`
	Name          string `yaml:"name"`
	MaxReconnects int    `yaml:"max_reconnects"`
}

// Stage is the worker-launch config named in §6.2: batch size, poll
// interval, and retry ceiling, common to every stage worker.
type Stage struct {
	WorkerID    string        `yaml:"worker_id"`
	PollTimeout time.Duration `yaml:"poll_timeout"`
	MaxRetries  int           `yaml:"max_retries"`
	BatchSize   int           `yaml:"batch_size"`
}

// LoadYAML reads and unmarshals a YAML config file into dst, matching the
// teacher's os.ReadFile + yaml.Unmarshal sequence. Callers apply their own
// field validation afterward and call log.Fatalf on failure, matching
// MustLoad's fail-fast idiom.
func LoadYAML(path string, dst any) {
	data, err := os.ReadFile(path)
	if err != nil {
		log.Fatalf("config: cannot read file %q: %v", path, err)
	}
	if err := yaml.Unmarshal(data, dst); err != nil {
		log.Fatalf("config: cannot unmarshal yaml: %v", err)
	}
}

// FailIfEmpty is the common "required string field" validation every
// service's MustLoad repeats.
func FailIfEmpty(field, value string) {
	if value == "" {
		log.Fatalf("config: %s is empty", field)
	}
}

// FailIfNotPositive is the common "required positive duration" validation.
func FailIfNotPositive(field string, value time.Duration) {
	if value <= 0 {
		log.Fatalf("config: %s must be positive, got %s", field, value)
	}
}

// DefaultStage fills in the stage defaults the distilled spec names
// (§5: T_poll typical 1-5s; §9: retry ceiling default 3) when a config
// file omits them.
func DefaultStage(s Stage) Stage {
	if s.PollTimeout <= 0 {
		s.PollTimeout = 2 * time.Second
	}
	if s.MaxRetries <= 0 {
		s.MaxRetries = 3
	}
	if s.BatchSize <= 0 {
		s.BatchSize = 1
	}
	return s
}
