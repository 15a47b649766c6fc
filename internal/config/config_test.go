package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"
)

func TestLoadDefaults(t *testing.T) {
	t.Setenv("SCHEDULER_CONTROLLER_HOST", "http://controller:8080")

	cfg, err := Load("")
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}
	if cfg.Controller.Host != "http://controller:8080" {
		t.Fatalf("expected the env override to apply, got %q", cfg.Controller.Host)
	}
	if cfg.Server.Port != 10081 {
		t.Fatalf("expected default port 10081, got %d", cfg.Server.Port)
	}
	if cfg.Redis.Addr != "localhost:6379" || cfg.Redis.DB != 9 {
		t.Fatalf("unexpected redis defaults: %+v", cfg.Redis)
	}
	if !cfg.Scheduler.Enabled || cfg.Scheduler.ServiceName != "Scheduler" {
		t.Fatalf("unexpected scheduler defaults: %+v", cfg.Scheduler)
	}
	if got := cfg.TickInterval(); got != 5*time.Second {
		t.Fatalf("expected 5s tick interval, got %v", got)
	}
	if got := cfg.ControllerTimeout(); got != 30*time.Second {
		t.Fatalf("expected 30s controller timeout, got %v", got)
	}
}

func TestLoadWithFileOverrides(t *testing.T) {
	t.Parallel()

	dir := t.TempDir()
	path := filepath.Join(dir, "config.yaml")
	configYAML := `
server:
  port: 9090
redis:
  addr: redis:6379
  db: 2
db:
  dsn: postgres://scheduler@localhost/scheduler
controller:
  host: http://controller:8080
  passphrase: sesame
  timeout_seconds: 10
scheduler:
  tick_interval_seconds: 1
  service_name: SchedulerTest
logging:
  development: false
`
	if err := os.WriteFile(path, []byte(configYAML), 0o600); err != nil {
		t.Fatalf("failed to write config: %v", err)
	}

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}
	if cfg.Server.Port != 9090 {
		t.Fatalf("expected port 9090, got %d", cfg.Server.Port)
	}
	if cfg.Redis.Addr != "redis:6379" || cfg.Redis.DB != 2 {
		t.Fatalf("expected redis overrides to apply: %+v", cfg.Redis)
	}
	if cfg.Controller.Host != "http://controller:8080" || cfg.Controller.Passphrase != "sesame" {
		t.Fatalf("expected controller overrides to apply: %+v", cfg.Controller)
	}
	if got := cfg.TickInterval(); got != time.Second {
		t.Fatalf("expected 1s tick interval, got %v", got)
	}
	if cfg.Logging.Development {
		t.Fatal("expected development logging to be disabled")
	}
}

func TestLoadMissingFile(t *testing.T) {
	t.Parallel()

	if _, err := Load(filepath.Join(t.TempDir(), "missing.yaml")); err == nil {
		t.Fatal("expected an error for a missing config file")
	}
}

func TestConfigValidateErrors(t *testing.T) {
	t.Parallel()

	base := Config{
		Server:     ServerConfig{Port: 8080},
		Redis:      RedisConfig{Addr: "localhost:6379"},
		Controller: ControllerConfig{Host: "http://controller:8080"},
		Scheduler:  SchedulerConfig{Enabled: true, TickIntervalSeconds: 5},
	}
	if err := base.Validate(); err != nil {
		t.Fatalf("expected base config to validate, got %v", err)
	}

	bad := base
	bad.Server.Port = 0
	if err := bad.Validate(); err == nil {
		t.Fatal("expected error for missing port")
	}

	bad = base
	bad.Redis.Addr = ""
	if err := bad.Validate(); err == nil {
		t.Fatal("expected error for missing redis addr")
	}

	bad = base
	bad.Controller.Host = ""
	if err := bad.Validate(); err == nil {
		t.Fatal("expected error for missing controller host")
	}
	// the controller is optional when the loop is disabled
	bad.Scheduler.Enabled = false
	if err := bad.Validate(); err != nil {
		t.Fatalf("expected disabled scheduler to skip the controller check, got %v", err)
	}

	bad = base
	bad.Scheduler.TickIntervalSeconds = 0
	if err := bad.Validate(); err == nil {
		t.Fatal("expected error for a zero tick interval")
	}
}
