package config

import "testing"

func TestDefaultConfigProvidesWorkingDirs(t *testing.T) {
	cfg := Default()
	if cfg.StrategiesDir != "./strategies" {
		t.Fatalf("expected default strategies dir, got %s", cfg.StrategiesDir)
	}
	if cfg.DeploymentsDir != "./deployments" {
		t.Fatalf("expected default deployments dir, got %s", cfg.DeploymentsDir)
	}
	if cfg.Port != 8000 {
		t.Fatalf("expected default port 8000, got %d", cfg.Port)
	}
	if cfg.RuntimeVersion == "" {
		t.Fatalf("expected default runtime version")
	}
	if cfg.Telemetry.ServiceName != "sigpack" {
		t.Fatalf("expected default service name, got %s", cfg.Telemetry.ServiceName)
	}
}

func TestFromEnvOverridesValues(t *testing.T) {
	t.Setenv("SIGPACK_STRATEGIES_DIR", "/tmp/bundles")
	t.Setenv("SIGPACK_DEPLOYMENTS_DIR", "/tmp/deploys")
	t.Setenv("SIGPACK_PORT", "9100")
	t.Setenv("SIGPACK_RUNTIME_VERSION", "1.24")
	t.Setenv("SIGPACK_OTLP_ENDPOINT", "http://otel:4318")

	cfg := FromEnv()
	if cfg.StrategiesDir != "/tmp/bundles" || cfg.DeploymentsDir != "/tmp/deploys" {
		t.Fatalf("expected dir overrides, got %s/%s", cfg.StrategiesDir, cfg.DeploymentsDir)
	}
	if cfg.Port != 9100 {
		t.Fatalf("expected port override, got %d", cfg.Port)
	}
	if cfg.RuntimeVersion != "1.24" {
		t.Fatalf("expected runtime override, got %s", cfg.RuntimeVersion)
	}
	if cfg.Telemetry.OTLPEndpoint != "http://otel:4318" {
		t.Fatalf("expected telemetry endpoint override, got %s", cfg.Telemetry.OTLPEndpoint)
	}
}

func TestFromEnvIgnoresInvalidPort(t *testing.T) {
	t.Setenv("SIGPACK_PORT", "not-a-port")
	if cfg := FromEnv(); cfg.Port != 8000 {
		t.Fatalf("expected invalid port to keep default, got %d", cfg.Port)
	}
}

func TestApplyOptions(t *testing.T) {
	cfg := Apply(Default(), WithStrategiesDir("/srv/s"), WithPort(9000), nil)
	if cfg.StrategiesDir != "/srv/s" || cfg.Port != 9000 {
		t.Fatalf("expected option overrides, got %s/%d", cfg.StrategiesDir, cfg.Port)
	}
	if cfg.DeploymentsDir != "./deployments" {
		t.Fatalf("expected untouched default, got %s", cfg.DeploymentsDir)
	}
}
