package config

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"os"
	"time"

	"gopkg.in/yaml.v3"
)

// Default returns the zero-config defaults used when no panelrun.yaml
// is supplied, mirroring sandbox.DefaultConfig and
// suspension.NewManager's usual arguments.
func Default() Config {
	return Config{
		BindAddr: ":8080",
		Sandbox: SandboxConfig{
			MinInstances:    2,
			MaxInstances:    8,
			DefaultTimeout:  Duration{2 * time.Second},
			AcquireTimeout:  Duration{5 * time.Second},
			HostCallLimit:   10_000,
			SuspendedBudget: Duration{5 * time.Minute},
			CacheMaxBytes:   64 << 20,
		},
		Suspension: SuspensionConfig{
			DefaultTimeout: Duration{5 * time.Minute},
		},
		HTTPExt: HTTPExtConfig{
			Concurrency: 16,
			Timeout:     Duration{10 * time.Second},
		},
	}
}

// Load reads a YAML config file, expands environment variables, and
// unmarshals it over Default(). Unknown keys are rejected to catch
// typos early.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, fmt.Errorf("config file not found: %s", path)
		}
		return nil, fmt.Errorf("cannot read config file %q: %w", path, err)
	}

	expanded := ExpandEnv(string(data))

	cfg := Default()
	dec := yaml.NewDecoder(bytes.NewReader([]byte(expanded)))
	dec.KnownFields(true)
	if err := dec.Decode(&cfg); err != nil && !errors.Is(err, io.EOF) {
		return nil, fmt.Errorf("invalid YAML in %s: %w", path, err)
	}

	return &cfg, nil
}
