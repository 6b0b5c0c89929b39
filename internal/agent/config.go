package agent

import (
	"fmt"
	"os"
	"time"

	"gopkg.in/yaml.v3"
)

const (
	DefaultReportIntervalSec = 30
	DefaultMaxBackoffSec     = 60
)

// Config is the gateway agent configuration file.
type Config struct {
	// Controller is the host:port of the control plane gRPC endpoint.
	Controller string `yaml:"controller"`
	// Token is the gateway connection token issued for one network.
	Token string `yaml:"token"`
	// Hostname is reported to the control plane. Empty means os.Hostname.
	Hostname string `yaml:"hostname"`
	// CACert points at a PEM bundle for the controller TLS cert. Empty
	// means system roots.
	CACert string `yaml:"ca_cert"`
	// Insecure dials plaintext gRPC. The connection token still
	// authenticates the session.
	Insecure bool `yaml:"insecure"`

	ReportIntervalSec int `yaml:"report_interval_sec"`
	MaxBackoffSec     int `yaml:"max_backoff_sec"`
}

// Load reads and parses a YAML config file.
func Load(path string) (Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return Config{}, err
	}

	var cfg Config
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return Config{}, err
	}

	ApplyDefaults(&cfg)
	return cfg, nil
}

// Validate performs minimal validation for required fields.
func Validate(cfg Config) error {
	if cfg.Controller == "" {
		return fmt.Errorf("controller is required")
	}
	if cfg.Token == "" {
		return fmt.Errorf("token is required")
	}
	if cfg.ReportIntervalSec <= 0 {
		return fmt.Errorf("report_interval_sec must be positive")
	}
	return nil
}

// ApplyDefaults fills in default values when empty.
func ApplyDefaults(cfg *Config) {
	if cfg.Hostname == "" {
		if h, err := os.Hostname(); err == nil {
			cfg.Hostname = h
		}
	}
	if cfg.ReportIntervalSec == 0 {
		cfg.ReportIntervalSec = DefaultReportIntervalSec
	}
	if cfg.MaxBackoffSec == 0 {
		cfg.MaxBackoffSec = DefaultMaxBackoffSec
	}
}

// ReportInterval is the cadence of upward stat reports.
func (c Config) ReportInterval() time.Duration {
	return time.Duration(c.ReportIntervalSec) * time.Second
}

// MaxBackoff caps the reconnect backoff.
func (c Config) MaxBackoff() time.Duration {
	return time.Duration(c.MaxBackoffSec) * time.Second
}
