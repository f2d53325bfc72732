package control

import (
	"testing"
	"time"

	"github.com/vuchq/crashwatch/internal/core/config"
	"github.com/vuchq/crashwatch/internal/infra/provider"
)

func memoryConfig() Config {
	return Config{
		Port: 18080,
		Provider: provider.Config{
			ScriptBaseURL: "http://localhost:9999",
			Salt:          "ab",
			Timeout:       time.Second,
		},
		Monitor: config.MonitorConfig{
			PollInterval:  time.Second,
			RetryInterval: time.Second,
			PageSize:      30,
			RingCapacity:  10,
		},
	}
}

func TestNewMemoryMode(t *testing.T) {
	engine, err := New(memoryConfig())
	if err != nil {
		t.Fatalf("New failed: %v", err)
	}
	if engine.Repo() == nil {
		t.Error("expected an in-memory repository")
	}
	if engine.Broker() == nil {
		t.Error("expected a broker")
	}
	if engine.detector != nil || engine.worker != nil {
		t.Error("reconcile components must be off without redis")
	}
}

func TestNewRequiresProviderEndpoint(t *testing.T) {
	cfg := memoryConfig()
	cfg.Provider.ScriptBaseURL = ""

	if _, err := New(cfg); err == nil {
		t.Fatal("expected error when no provider endpoint is configured")
	}
}
