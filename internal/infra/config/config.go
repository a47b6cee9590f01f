package config

import (
	"time"

	coreconfig "github.com/sitesearch/pipeline/core/config"
	"gopkg.in/yaml.v3"
)

// StageLaunch is the per-stage section of the orchestrator config: which
// binary to spawn, how many replicas to start with, and the worker-launch
// config (§6.2) passed through to each spawned process.
type StageLaunch struct {
	BinaryPath   string           `yaml:"binary_path"`
	InitialCount int              `yaml:"initial_count"`
	ConfigPath   string           `yaml:"config_path"`
	InputQueue   string           `yaml:"input_queue"`
	Stage        coreconfig.Stage `yaml:"stage"`
}

// Config is the orchestrator's top-level configuration.
type Config struct {
	AdminAddr       string        `yaml:"admin_addr"`
	ShutdownTimeout time.Duration `yaml:"shutdown_timeout"`
	DrainTimeout    time.Duration `yaml:"drain_timeout"`
	ScaleTimeout    time.Duration `yaml:"scale_timeout"`

	MonitorInterval        time.Duration `yaml:"monitor_interval"`
	MonitorActivityTimeout time.Duration `yaml:"monitor_activity_timeout"`
	MonitorMaxPending      int64         `yaml:"monitor_max_pending"`
	MonitorMaxErrorRate    float64       `yaml:"monitor_max_error_rate"`

	RecoverySweepInterval time.Duration `yaml:"recovery_sweep_interval"`
	RecoveryStallTimeout  time.Duration `yaml:"recovery_stall_timeout"`

	Redis coreconfig.Redis `yaml:"redis"`
	NATS  coreconfig.NATS  `yaml:"nats"`

	Stages map[string]StageLaunch `yaml:"stages"`
}

// MustLoad reads, unmarshals, validates, and defaults the orchestrator
// config, matching distributor/internal/infra/config/config.go's
// MustLoad shape field-for-field.
func MustLoad(path string) *Config {
	var cfg Config
	coreconfig.LoadYAML(path, &cfg)

	coreconfig.FailIfEmpty("admin_addr", cfg.AdminAddr)
	coreconfig.FailIfEmpty("redis.addr", cfg.Redis.Addr)

	if cfg.ShutdownTimeout <= 0 {
		cfg.ShutdownTimeout = 10 * time.Second
	}
	if cfg.DrainTimeout <= 0 {
		cfg.DrainTimeout = 30 * time.Second
	}
	if cfg.ScaleTimeout <= 0 {
		cfg.ScaleTimeout = 30 * time.Second
	}
	if cfg.MonitorInterval <= 0 {
		cfg.MonitorInterval = 15 * time.Second
	}
	if cfg.MonitorActivityTimeout <= 0 {
		cfg.MonitorActivityTimeout = 60 * time.Second
	}
	if cfg.MonitorMaxPending <= 0 {
		cfg.MonitorMaxPending = 1000
	}
	if cfg.MonitorMaxErrorRate <= 0 {
		cfg.MonitorMaxErrorRate = 0.25
	}
	if cfg.RecoverySweepInterval <= 0 {
		cfg.RecoverySweepInterval = 20 * time.Second
	}
	if cfg.RecoveryStallTimeout <= 0 {
		cfg.RecoveryStallTimeout = 90 * time.Second
	}

	for name, stage := range cfg.Stages {
		stage.Stage = coreconfig.DefaultStage(stage.Stage)
		cfg.Stages[name] = stage
	}

	return &cfg
}

// MarshalWorkerConfig renders a per-worker YAML config document for a
// stage process. The Supervisor does not call it: spawned workers are
// given their stage's ConfigPath instead.
func MarshalWorkerConfig(redisAddr string, stage coreconfig.Stage, extra map[string]any) ([]byte, error) {
	doc := map[string]any{
		"redis": map[string]any{"addr": redisAddr},
		"stage": stage,
	}
	for k, v := range extra {
		doc[k] = v
	}
	return yaml.Marshal(doc)
}
