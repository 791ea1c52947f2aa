// Package config centralises runtime configuration helpers for sigpack tools.
package config

import (
	"os"
	"strconv"
	"strings"
)

// TelemetrySettings configures the optional OTLP metrics pipeline.
type TelemetrySettings struct {
	OTLPEndpoint string
	ServiceName  string
}

// Settings contains the sigpack configuration tree loaded from defaults and overrides.
type Settings struct {
	StrategiesDir  string
	DeploymentsDir string
	Port           int
	RuntimeVersion string
	Telemetry      TelemetrySettings
}

// Default returns the default sigpack configuration.
func Default() Settings {
	return Settings{
		StrategiesDir:  "./strategies",
		DeploymentsDir: "./deployments",
		Port:           8000,
		RuntimeVersion: "1.25",
		Telemetry: TelemetrySettings{
			OTLPEndpoint: "",
			ServiceName:  "sigpack",
		},
	}
}

// FromEnv loads configuration values from environment variables, overriding defaults.
func FromEnv() Settings {
	cfg := Default()
	if v := strings.TrimSpace(os.Getenv("SIGPACK_STRATEGIES_DIR")); v != "" {
		cfg.StrategiesDir = v
	}
	if v := strings.TrimSpace(os.Getenv("SIGPACK_DEPLOYMENTS_DIR")); v != "" {
		cfg.DeploymentsDir = v
	}
	if v := strings.TrimSpace(os.Getenv("SIGPACK_PORT")); v != "" {
		if port, err := strconv.Atoi(v); err == nil && port > 0 && port < 65536 {
			cfg.Port = port
		}
	}
	if v := strings.TrimSpace(os.Getenv("SIGPACK_RUNTIME_VERSION")); v != "" {
		cfg.RuntimeVersion = v
	}
	if v := strings.TrimSpace(os.Getenv("SIGPACK_OTLP_ENDPOINT")); v != "" {
		cfg.Telemetry.OTLPEndpoint = v
	}
	if v := strings.TrimSpace(os.Getenv("SIGPACK_SERVICE_NAME")); v != "" {
		cfg.Telemetry.ServiceName = v
	}
	return cfg
}

// Option mutates Settings when applied via Apply.
type Option func(*Settings)

// Apply applies the provided Option set to a copy of the base Settings.
func Apply(base Settings, opts ...Option) Settings {
	cfg := base
	for _, opt := range opts {
		if opt != nil {
			opt(&cfg)
		}
	}
	return cfg
}

// WithStrategiesDir overrides the bundle output directory.
func WithStrategiesDir(dir string) Option {
	return func(s *Settings) {
		if dir != "" {
			s.StrategiesDir = dir
		}
	}
}

// WithDeploymentsDir overrides the deployment output directory.
func WithDeploymentsDir(dir string) Option {
	return func(s *Settings) {
		if dir != "" {
			s.DeploymentsDir = dir
		}
	}
}

// WithPort overrides the serving port.
func WithPort(port int) Option {
	return func(s *Settings) {
		if port > 0 && port < 65536 {
			s.Port = port
		}
	}
}
