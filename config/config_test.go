package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"
)

func TestLoad_FullConfig(t *testing.T) {
	yaml := `bind_addr: ":9090"
sandbox:
  min_instances: 4
  max_instances: 16
  default_timeout: 3s
  acquire_timeout: 10s
  host_call_limit: 5000
  suspended_budget: 10m
  cache_max_bytes: 1048576
  cache_disk_dir: /tmp/panelrund-cache
suspension:
  default_timeout: 2m
http_extension:
  concurrency: 8
  timeout: 5s
  allowed_hosts:
    - api.example.com
snapshot:
  bucket: my-bucket
  prefix: panels
  region: us-east-1
`
	dir := t.TempDir()
	path := filepath.Join(dir, "panelrun.yaml")
	if err := os.WriteFile(path, []byte(yaml), 0o644); err != nil {
		t.Fatalf("write config: %v", err)
	}

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}

	if cfg.BindAddr != ":9090" {
		t.Errorf("BindAddr = %q", cfg.BindAddr)
	}
	if cfg.Sandbox.MinInstances != 4 || cfg.Sandbox.MaxInstances != 16 {
		t.Errorf("sandbox sizing wrong: %+v", cfg.Sandbox)
	}
	if cfg.Sandbox.DefaultTimeout.Duration != 3*time.Second {
		t.Errorf("DefaultTimeout = %v", cfg.Sandbox.DefaultTimeout)
	}
	if cfg.Suspension.DefaultTimeout.Duration != 2*time.Minute {
		t.Errorf("Suspension.DefaultTimeout = %v", cfg.Suspension.DefaultTimeout)
	}
	if len(cfg.HTTPExt.AllowedHosts) != 1 || cfg.HTTPExt.AllowedHosts[0] != "api.example.com" {
		t.Errorf("AllowedHosts = %+v", cfg.HTTPExt.AllowedHosts)
	}
	if cfg.Snapshot == nil || cfg.Snapshot.Bucket != "my-bucket" {
		t.Errorf("Snapshot = %+v", cfg.Snapshot)
	}
}

func TestLoad_MissingFile(t *testing.T) {
	if _, err := Load("/nonexistent/panelrun.yaml"); err == nil {
		t.Fatal("expected error for missing file")
	}
}

func TestLoad_UnknownField(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "panelrun.yaml")
	if err := os.WriteFile(path, []byte("bogus_field: true\n"), 0o644); err != nil {
		t.Fatalf("write config: %v", err)
	}
	if _, err := Load(path); err == nil {
		t.Fatal("expected error for unknown field")
	}
}

func TestDefault(t *testing.T) {
	cfg := Default()
	if cfg.Sandbox.MinInstances != 2 || cfg.Sandbox.MaxInstances != 8 {
		t.Errorf("unexpected defaults: %+v", cfg.Sandbox)
	}
	if cfg.BindAddr == "" {
		t.Error("expected non-empty default bind addr")
	}
}

func TestExpandEnv(t *testing.T) {
	os.Setenv("PANELRUND_TEST_VAR", "injected")
	defer os.Unsetenv("PANELRUND_TEST_VAR")

	out := ExpandEnv("value: ${PANELRUND_TEST_VAR}")
	if out != "value: injected" {
		t.Errorf("ExpandEnv = %q", out)
	}

	out = ExpandEnv("value: ${UNSET_VAR:-fallback}")
	if out != "value: fallback" {
		t.Errorf("ExpandEnv default = %q", out)
	}
}
