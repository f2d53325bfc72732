package config

import (
	"fmt"
	"os"
	"time"

	"gopkg.in/yaml.v2"
)

// Load reads configuration from a YAML file.
func Load(path string) (*AppConfig, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}

	var cfg AppConfig
	// Expand environment variables in the YAML content
	expandedData := os.ExpandEnv(string(data))
	if err := yaml.Unmarshal([]byte(expandedData), &cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config file: %w", err)
	}

	applyDefaults(&cfg)

	return &cfg, nil
}

func applyDefaults(cfg *AppConfig) {
	if cfg.Server.Port == 0 {
		cfg.Server.Port = 8080
	}

	if cfg.Monitor.PollInterval == 0 {
		cfg.Monitor.PollInterval = 5 * time.Second
	}
	if cfg.Monitor.RetryInterval == 0 {
		cfg.Monitor.RetryInterval = 30 * time.Second
	}
	if cfg.Monitor.PageSize == 0 {
		cfg.Monitor.PageSize = 30
	}
	if cfg.Monitor.RingCapacity == 0 {
		cfg.Monitor.RingCapacity = 100
	}

	if cfg.Catchup.BatchSize == 0 {
		cfg.Catchup.BatchSize = 5
	}
	if cfg.Catchup.PageSize == 0 {
		cfg.Catchup.PageSize = 50
	}
	if cfg.Catchup.BatchDelay == 0 {
		cfg.Catchup.BatchDelay = 2 * time.Second
	}

	if cfg.Reconcile.ScanInterval == 0 {
		cfg.Reconcile.ScanInterval = 10 * time.Minute
	}
	if cfg.Reconcile.MaxRetries == 0 {
		cfg.Reconcile.MaxRetries = 3
	}
	if cfg.Reconcile.IdleWait == 0 {
		cfg.Reconcile.IdleWait = 30 * time.Second
	}

	if cfg.Oracle.PollInterval == 0 {
		cfg.Oracle.PollInterval = 2 * time.Second
	}
	if cfg.Oracle.MaxAttempts == 0 {
		cfg.Oracle.MaxAttempts = 30
	}

	if cfg.Provider.Timeout == 0 {
		cfg.Provider.Timeout = 15 * time.Second
	}
}
