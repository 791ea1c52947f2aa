// Package deploy renders container deployment directories for saved strategy
// bundles: an image definition, a generated prediction server, an
// orchestration file, a combined dependency manifest, helper scripts, and
// documentation, alongside a full copy of the bundle.
package deploy

import (
	"context"
	"log"
	"os"
	"path/filepath"
	"strings"

	"github.com/quantfold/sigpack/errs"
	"github.com/quantfold/sigpack/lib/telemetry"
	"github.com/quantfold/sigpack/strategy"
)

const (
	// DefaultPort is the port the generated server listens on.
	DefaultPort = 8000
	// DefaultRuntimeVersion is the Go toolchain image tag used for builds.
	DefaultRuntimeVersion = "1.25"
	// bundleSubdir is where the bundle copy lands inside a deployment.
	bundleSubdir = "strategy"
)

// serverRequirements are the fixed runtime dependencies of the generated
// server, all published modules the image build can fetch.
var serverRequirements = []string{
	"github.com/dop251/goja",
	"github.com/goccy/go-json",
	"github.com/google/uuid",
	"github.com/shopspring/decimal",
	"golang.org/x/time",
}

// Builder renders deployments under a single output directory.
type Builder struct {
	outputDir string
	logger    *log.Logger
	metrics   *telemetry.Metrics
}

// Option configures a Builder.
type Option func(*Builder)

// WithLogger sets the logger used for confirmations.
func WithLogger(logger *log.Logger) Option {
	return func(b *Builder) {
		if logger != nil {
			b.logger = logger
		}
	}
}

// WithMetrics attaches the telemetry instrument set.
func WithMetrics(metrics *telemetry.Metrics) Option {
	return func(b *Builder) {
		b.metrics = metrics
	}
}

// NewBuilder constructs a Builder rooted at outputDir, creating it when absent.
func NewBuilder(outputDir string, opts ...Option) (*Builder, error) {
	trimmed := strings.TrimSpace(outputDir)
	if trimmed == "" {
		trimmed = "./deployments"
	}
	clean := filepath.Clean(trimmed)
	if err := os.MkdirAll(clean, 0o750); err != nil {
		return nil, errs.New(errs.CodeInternal,
			errs.WithPath(clean),
			errs.WithMessage("ensure deployment directory"),
			errs.WithCause(err))
	}
	b := &Builder{
		outputDir: clean,
		logger:    log.New(os.Stdout, "", log.LstdFlags),
		metrics:   nil,
	}
	for _, opt := range opts {
		if opt != nil {
			opt(b)
		}
	}
	return b, nil
}

// OutputDir returns the directory deployments are written under.
func (b *Builder) OutputDir() string { return b.outputDir }

type deployConfig struct {
	port           int
	runtimeVersion string
}

// DeployOption configures a single CreateDeployment call.
type DeployOption func(*deployConfig)

// WithPort sets the exposed server port.
func WithPort(port int) DeployOption {
	return func(c *deployConfig) {
		if port > 0 {
			c.port = port
		}
	}
}

// WithRuntimeVersion sets the Go toolchain image tag used in the Dockerfile.
func WithRuntimeVersion(version string) DeployOption {
	return func(c *deployConfig) {
		if trimmed := strings.TrimSpace(version); trimmed != "" {
			c.runtimeVersion = trimmed
		}
	}
}

// CreateDeployment renders a complete deployment for the named strategy from
// the bundle at bundlePath. Every artifact is overwritten unconditionally;
// regenerating a deployment is idempotent. Returns the deployment path.
func (b *Builder) CreateDeployment(strategyName, bundlePath string, opts ...DeployOption) (string, error) {
	if err := strategy.ValidateName(strategyName); err != nil {
		return "", err
	}
	name := strings.TrimSpace(strategyName)

	cfg := deployConfig{
		port:           DefaultPort,
		runtimeVersion: DefaultRuntimeVersion,
	}
	for _, opt := range opts {
		if opt != nil {
			opt(&cfg)
		}
	}

	bundleDir := filepath.Clean(strings.TrimSpace(bundlePath))
	if info, err := os.Stat(bundleDir); err != nil || !info.IsDir() {
		return "", errs.New(errs.CodeNotFound,
			errs.WithStrategy(name),
			errs.WithPath(bundleDir),
			errs.WithMessage("strategy bundle not found"))
	}

	deployDir := filepath.Join(b.outputDir, name)
	if err := os.MkdirAll(deployDir, 0o750); err != nil {
		return "", errs.New(errs.CodeInternal,
			errs.WithPath(deployDir),
			errs.WithMessage("create deployment directory"),
			errs.WithCause(err))
	}

	if err := b.copyBundle(bundleDir, filepath.Join(deployDir, bundleSubdir)); err != nil {
		return "", err
	}

	manifest, err := b.combinedManifest(bundleDir)
	if err != nil {
		return "", err
	}

	artifacts := []struct {
		name    string
		content string
		mode    os.FileMode
	}{
		{name: "Dockerfile", content: renderDockerfile(cfg.runtimeVersion, cfg.port), mode: 0o600},
		{name: "server.go", content: renderServer(name, cfg.port), mode: 0o600},
		{name: "go.mod", content: renderGoMod(name, manifest), mode: 0o600},
		{name: strategy.ManifestFile, content: strings.Join(manifest, "\n") + "\n", mode: 0o600},
		{name: "build.sh", content: renderBuildScript(name), mode: 0o755},
		{name: "run.sh", content: renderRunScript(name, cfg.port), mode: 0o755},
		{name: "README.md", content: renderReadme(name, cfg.port), mode: 0o600},
	}
	for _, artifact := range artifacts {
		path := filepath.Join(deployDir, artifact.name)
		if err := os.WriteFile(path, []byte(artifact.content), artifact.mode); err != nil {
			return "", errs.New(errs.CodeInternal,
				errs.WithPath(path),
				errs.WithMessage("write "+artifact.name),
				errs.WithCause(err))
		}
	}

	composePath := filepath.Join(deployDir, "docker-compose.yml")
	composeContent, err := renderCompose(name, cfg.port)
	if err != nil {
		return "", errs.New(errs.CodeInternal,
			errs.WithStrategy(name),
			errs.WithMessage("render compose file"),
			errs.WithCause(err))
	}
	if err := os.WriteFile(composePath, composeContent, 0o600); err != nil {
		return "", errs.New(errs.CodeInternal,
			errs.WithPath(composePath),
			errs.WithMessage("write docker-compose.yml"),
			errs.WithCause(err))
	}

	b.logger.Printf("deployment created for %q in %s", name, deployDir)
	b.logger.Printf("  build: cd %s && ./build.sh", deployDir)
	b.logger.Printf("  run:   cd %s && ./run.sh", deployDir)

	b.metrics.DeploymentCreated(context.Background())
	return deployDir, nil
}

// copyBundle replaces dst with a full recursive copy of src.
func (b *Builder) copyBundle(src, dst string) error {
	if err := os.RemoveAll(dst); err != nil {
		return errs.New(errs.CodeInternal,
			errs.WithPath(dst),
			errs.WithMessage("remove prior bundle copy"),
			errs.WithCause(err))
	}
	if err := os.CopyFS(dst, os.DirFS(src)); err != nil {
		return errs.New(errs.CodeInternal,
			errs.WithPath(dst),
			errs.WithMessage("copy bundle"),
			errs.WithCause(err))
	}
	return nil
}

// combinedManifest unions the bundle's manifest with the fixed server
// requirements, deduplicated and sorted.
func (b *Builder) combinedManifest(bundleDir string) ([]string, error) {
	entries := append([]string(nil), serverRequirements...)
	manifestPath := filepath.Join(bundleDir, strategy.ManifestFile)
	// #nosec G304 -- path is confined to the bundle directory.
	raw, err := os.ReadFile(manifestPath)
	if err == nil {
		entries = append(entries, strings.Split(string(raw), "\n")...)
	} else if !os.IsNotExist(err) {
		return nil, errs.New(errs.CodeInternal,
			errs.WithPath(manifestPath),
			errs.WithMessage("read bundle manifest"),
			errs.WithCause(err))
	}
	return strategy.NormalizeManifest(entries), nil
}
