package config

import (
	"time"

	"github.com/vuchq/crashwatch/internal/infra/oracle"
	"github.com/vuchq/crashwatch/internal/infra/provider"
	redisclient "github.com/vuchq/crashwatch/internal/infra/redis"
	"github.com/vuchq/crashwatch/internal/infra/storage/postgres"
)

// AppConfig represents the top-level configuration.
type AppConfig struct {
	Server    ServerConfig       `yaml:"server"`
	Logging   LoggingConfig      `yaml:"logging"`
	Database  postgres.Config    `yaml:"database"`
	Redis     redisclient.Config `yaml:"redis"`
	Provider  provider.Config    `yaml:"provider"`
	Oracle    oracle.Config      `yaml:"oracle"`
	Monitor   MonitorConfig      `yaml:"monitor"`
	Catchup   CatchupConfig      `yaml:"catchup"`
	Reconcile ReconcileConfig    `yaml:"reconcile"`
}

// ServerConfig holds HTTP server settings.
type ServerConfig struct {
	Port int `yaml:"port"`
}

// LoggingConfig holds logging configuration.
type LoggingConfig struct {
	Level  string `yaml:"level"`  // debug, info, warn, error
	Format string `yaml:"format"` // json, text
}

// MonitorConfig holds live polling settings.
type MonitorConfig struct {
	PollInterval  time.Duration `yaml:"poll_interval"`
	RetryInterval time.Duration `yaml:"retry_interval"` // sleep after a failed fetch
	PageSize      int           `yaml:"page_size"`
	RingCapacity  int           `yaml:"ring_capacity"`
}

// CatchupConfig holds historical backfill settings.
type CatchupConfig struct {
	Pages      int           `yaml:"pages"`
	BatchSize  int           `yaml:"batch_size"` // concurrent pages per batch
	PageSize   int           `yaml:"page_size"`
	BatchDelay time.Duration `yaml:"batch_delay"` // politeness pause between batches
}

// ReconcileConfig holds gap scan and recovery settings.
type ReconcileConfig struct {
	ScanInterval time.Duration `yaml:"scan_interval"` // how often to scan for gaps
	MaxRetries   int           `yaml:"max_retries"`   // re-queue ceiling per range
	IdleWait     time.Duration `yaml:"idle_wait"`     // worker sleep when queue is empty
}
