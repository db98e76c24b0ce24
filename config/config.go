package config

import (
	"time"
)

// Config represents a panelrun.yaml configuration file. All values are
// optional and act as defaults for the panelrund server; CLI flags
// always override config values.
type Config struct {
	BindAddr string `yaml:"bind_addr"`

	Sandbox    SandboxConfig    `yaml:"sandbox"`
	Suspension SuspensionConfig `yaml:"suspension"`
	HTTPExt    HTTPExtConfig    `yaml:"http_extension"`
	Snapshot   *SnapshotConfig  `yaml:"snapshot,omitempty"`
	Relay      *RelayConfig     `yaml:"relay,omitempty"`
}

// SandboxConfig holds sandbox.Pool sizing defaults from the config file.
type SandboxConfig struct {
	MinInstances    int      `yaml:"min_instances"`
	MaxInstances    int      `yaml:"max_instances"`
	DefaultTimeout  Duration `yaml:"default_timeout"`
	AcquireTimeout  Duration `yaml:"acquire_timeout"`
	HostCallLimit   int      `yaml:"host_call_limit"`
	SuspendedBudget Duration `yaml:"suspended_budget"`
	CacheMaxBytes   int      `yaml:"cache_max_bytes"`
	CacheDiskDir    string   `yaml:"cache_disk_dir"`
}

// SuspensionConfig holds suspension.Manager defaults.
type SuspensionConfig struct {
	DefaultTimeout Duration `yaml:"default_timeout"`
}

// HTTPExtConfig holds $ext.http defaults, including its allow-list.
type HTTPExtConfig struct {
	Concurrency  int      `yaml:"concurrency"`
	Timeout      Duration `yaml:"timeout"`
	AllowedHosts []string `yaml:"allowed_hosts"`
}

// SnapshotConfig holds the S3 snapshot export destination. Nil (absent
// from the YAML file) disables POST /panels/:id/snapshot entirely.
type SnapshotConfig struct {
	Bucket       string `yaml:"bucket"`
	Prefix       string `yaml:"prefix"`
	Region       string `yaml:"region"`
	Endpoint     string `yaml:"endpoint"`
	UsePathStyle bool   `yaml:"use_path_style"`
}

// RelayConfig holds the cross-instance panel-event relay's Redis
// connection. Nil (absent from the YAML file) disables the relay: each
// panelrund instance then only fans events out to its own locally
// connected clients.
type RelayConfig struct {
	URL     string   `yaml:"url"`
	Channel string   `yaml:"channel"`
	Timeout Duration `yaml:"timeout"`
	Retries int      `yaml:"retries"`
}

// Duration wraps time.Duration for YAML string parsing (e.g. "10s", "5m").
type Duration struct {
	time.Duration
}

// UnmarshalYAML parses a duration string like "10s" or "5m30s".
func (d *Duration) UnmarshalYAML(unmarshal func(any) error) error {
	var s string
	if err := unmarshal(&s); err != nil {
		return err
	}
	if s == "" {
		return nil
	}
	parsed, err := time.ParseDuration(s)
	if err != nil {
		return err
	}
	d.Duration = parsed
	return nil
}
