package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"
)

func TestLoadFrom_DefaultsWhenFileMissing(t *testing.T) {
	cfg, err := LoadFrom(filepath.Join(t.TempDir(), "absent.yaml"))
	if err != nil {
		t.Fatalf("LoadFrom: %v", err)
	}
	if cfg.Server.Port != "8080" {
		t.Errorf("port = %q, want 8080", cfg.Server.Port)
	}
	if cfg.Swarm.MaxRounds != 10 {
		t.Errorf("max_rounds = %d, want 10", cfg.Swarm.MaxRounds)
	}
	if cfg.Orchestrator.DefaultOnTimeout != "reject" {
		t.Errorf("default_on_timeout = %q, want reject", cfg.Orchestrator.DefaultOnTimeout)
	}
}

func TestLoadFrom_YAMLOverridesDefaults(t *testing.T) {
	path := filepath.Join(t.TempDir(), "flowforge.yaml")
	data := []byte(`
server:
  port: "9090"
retry:
  max_retries: 5
  delay: 500ms
swarm:
  max_rounds: 3
orchestrator:
  approval_timeout: 15m
  default_on_timeout: approve
`)
	if err := os.WriteFile(path, data, 0o600); err != nil {
		t.Fatal(err)
	}

	cfg, err := LoadFrom(path)
	if err != nil {
		t.Fatalf("LoadFrom: %v", err)
	}
	if cfg.Server.Port != "9090" {
		t.Errorf("port = %q, want 9090", cfg.Server.Port)
	}
	if cfg.Retry.MaxRetries != 5 || cfg.Retry.Delay != 500*time.Millisecond {
		t.Errorf("retry = %+v", cfg.Retry)
	}
	if cfg.Swarm.MaxRounds != 3 {
		t.Errorf("max_rounds = %d, want 3", cfg.Swarm.MaxRounds)
	}
	if cfg.Orchestrator.ApprovalTimeout != 15*time.Minute {
		t.Errorf("approval_timeout = %v", cfg.Orchestrator.ApprovalTimeout)
	}
	if cfg.Orchestrator.DefaultOnTimeout != "approve" {
		t.Errorf("default_on_timeout = %q", cfg.Orchestrator.DefaultOnTimeout)
	}
	// Untouched sections keep defaults.
	if cfg.NATS.URL != "nats://localhost:4222" {
		t.Errorf("nats url = %q", cfg.NATS.URL)
	}
}

func TestLoadFrom_EnvOverridesYAML(t *testing.T) {
	path := filepath.Join(t.TempDir(), "flowforge.yaml")
	if err := os.WriteFile(path, []byte("server:\n  port: \"9090\"\n"), 0o600); err != nil {
		t.Fatal(err)
	}
	t.Setenv("FLOWFORGE_PORT", "7070")
	t.Setenv("FLOWFORGE_SWARM_MAX_ROUNDS", "2")
	t.Setenv("FLOWFORGE_RETRY_DELAY", "3s")

	cfg, err := LoadFrom(path)
	if err != nil {
		t.Fatalf("LoadFrom: %v", err)
	}
	if cfg.Server.Port != "7070" {
		t.Errorf("port = %q, want 7070", cfg.Server.Port)
	}
	if cfg.Swarm.MaxRounds != 2 {
		t.Errorf("max_rounds = %d, want 2", cfg.Swarm.MaxRounds)
	}
	if cfg.Retry.Delay != 3*time.Second {
		t.Errorf("retry delay = %v", cfg.Retry.Delay)
	}
}

func TestLoadFrom_ValidationFailures(t *testing.T) {
	tests := []struct {
		name string
		yaml string
	}{
		{"empty port", "server:\n  port: \"\"\n"},
		{"bad on_timeout", "orchestrator:\n  default_on_timeout: maybe\n"},
		{"zero max_rounds", "swarm:\n  max_rounds: 0\n"},
		{"zero max_parallel", "orchestrator:\n  max_parallel: 0\n"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			path := filepath.Join(t.TempDir(), "flowforge.yaml")
			if err := os.WriteFile(path, []byte(tt.yaml), 0o600); err != nil {
				t.Fatal(err)
			}
			if _, err := LoadFrom(path); err == nil {
				t.Fatal("expected validation error")
			}
		})
	}
}

func TestLoadFrom_MalformedYAML(t *testing.T) {
	path := filepath.Join(t.TempDir(), "flowforge.yaml")
	if err := os.WriteFile(path, []byte("server: [not a map"), 0o600); err != nil {
		t.Fatal(err)
	}
	if _, err := LoadFrom(path); err == nil {
		t.Fatal("expected parse error")
	}
}
