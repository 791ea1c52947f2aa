// Package packager turns JavaScript strategy modules into on-disk bundles:
// validated source, a metadata record, and a dependency manifest.
package packager

import (
	"context"
	"log"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"

	json "github.com/goccy/go-json"
	"github.com/google/uuid"
	"github.com/sourcegraph/conc/iter"

	"github.com/quantfold/sigpack/container"
	"github.com/quantfold/sigpack/errs"
	"github.com/quantfold/sigpack/internal/js"
	"github.com/quantfold/sigpack/lib/telemetry"
	"github.com/quantfold/sigpack/strategy"
)

// DefaultVersion is assigned when a save does not specify one.
const DefaultVersion = "1.0.0"

// baseRequirements are always present in a bundle's dependency manifest.
var baseRequirements = []string{
	"github.com/dop251/goja",
	"github.com/goccy/go-json",
	"github.com/quantfold/sigpack",
}

// Packager writes and reads strategy bundles under a single output directory.
type Packager struct {
	outputDir string
	logger    *log.Logger
	now       func() time.Time
	metrics   *telemetry.Metrics
}

// Option configures a Packager.
type Option func(*Packager)

// WithLogger sets the logger used for human-readable confirmations.
func WithLogger(logger *log.Logger) Option {
	return func(p *Packager) {
		if logger != nil {
			p.logger = logger
		}
	}
}

// WithClock overrides the time source for created_at stamps.
func WithClock(now func() time.Time) Option {
	return func(p *Packager) {
		if now != nil {
			p.now = now
		}
	}
}

// WithMetrics attaches the telemetry instrument set.
func WithMetrics(metrics *telemetry.Metrics) Option {
	return func(p *Packager) {
		p.metrics = metrics
	}
}

// New constructs a Packager rooted at outputDir, creating it when absent.
func New(outputDir string, opts ...Option) (*Packager, error) {
	trimmed := strings.TrimSpace(outputDir)
	if trimmed == "" {
		trimmed = "./strategies"
	}
	clean := filepath.Clean(trimmed)
	if err := os.MkdirAll(clean, 0o750); err != nil {
		return nil, errs.New(errs.CodeInternal,
			errs.WithPath(clean),
			errs.WithMessage("ensure output directory"),
			errs.WithCause(err))
	}
	p := &Packager{
		outputDir: clean,
		logger:    log.New(os.Stdout, "", log.LstdFlags),
		now:       time.Now,
		metrics:   nil,
	}
	for _, opt := range opts {
		if opt != nil {
			opt(p)
		}
	}
	return p, nil
}

// OutputDir returns the directory bundles are written under.
func (p *Packager) OutputDir() string { return p.outputDir }

type saveConfig struct {
	description  string
	version      string
	requirements []string
	custom       map[string]any
}

// SaveOption configures a single Save call.
type SaveOption func(*saveConfig)

// WithDescription attaches a human-readable description.
func WithDescription(description string) SaveOption {
	return func(c *saveConfig) { c.description = strings.TrimSpace(description) }
}

// WithVersion overrides the default strategy version.
func WithVersion(version string) SaveOption {
	return func(c *saveConfig) {
		if trimmed := strings.TrimSpace(version); trimmed != "" {
			c.version = trimmed
		}
	}
}

// WithRequirements declares explicit manifest entries, disabling inference.
func WithRequirements(requirements []string) SaveOption {
	return func(c *saveConfig) {
		c.requirements = append([]string(nil), requirements...)
	}
}

// WithCustomMetadata stores a free-form metadata map with the bundle.
func WithCustomMetadata(custom map[string]any) SaveOption {
	return func(c *saveConfig) {
		if len(custom) == 0 {
			return
		}
		c.custom = make(map[string]any, len(custom))
		for k, v := range custom {
			c.custom[k] = v
		}
	}
}

// Save validates the strategy source, then writes the bundle directory:
// strategy.js, metadata.json, and requirements.txt. An existing bundle with
// the same name is overwritten wholesale. Returns the bundle path.
func (p *Packager) Save(name string, source []byte, opts ...SaveOption) (string, error) {
	if err := strategy.ValidateName(name); err != nil {
		return "", err
	}
	trimmedName := strings.TrimSpace(name)

	cfg := saveConfig{
		description:  "",
		version:      DefaultVersion,
		requirements: nil,
		custom:       nil,
	}
	for _, opt := range opts {
		if opt != nil {
			opt(&cfg)
		}
	}

	module, err := js.Compile(trimmedName+".js", source)
	if err != nil {
		return "", errs.New(errs.CodeSerialization,
			errs.WithStrategy(trimmedName),
			errs.WithMessage("strategy source failed to compile"),
			errs.WithCause(err))
	}

	bundleDir := filepath.Join(p.outputDir, trimmedName)
	if err := os.MkdirAll(bundleDir, 0o750); err != nil {
		return "", errs.New(errs.CodeInternal,
			errs.WithPath(bundleDir),
			errs.WithMessage("create bundle directory"),
			errs.WithCause(err))
	}

	sourcePath := filepath.Join(bundleDir, strategy.SourceFile)
	if err := os.WriteFile(sourcePath, source, 0o600); err != nil {
		return "", errs.New(errs.CodeInternal,
			errs.WithPath(sourcePath),
			errs.WithMessage("write strategy source"),
			errs.WithCause(err))
	}

	requirements := cfg.requirements
	if requirements == nil {
		requirements = InferRequirements(source)
	}
	requirements = strategy.NormalizeManifest(requirements)

	sourceText := strings.TrimSpace(string(source))
	if sourceText == "" {
		sourceText = strategy.SourcePlaceholder
	} else {
		sourceText = string(source)
	}

	meta := strategy.Metadata{
		ID:           uuid.NewString(),
		Name:         trimmedName,
		Description:  cfg.description,
		Version:      cfg.version,
		CreatedAt:    p.now().UTC(),
		FunctionName: module.FunctionName,
		SourceCode:   sourceText,
		Requirements: requirements,
		Custom:       cfg.custom,
	}
	if meta.Custom == nil {
		meta.Custom = map[string]any{}
	}

	metadataPath := filepath.Join(bundleDir, strategy.MetadataFile)
	encoded, err := json.MarshalIndent(meta, "", "  ")
	if err != nil {
		return "", errs.New(errs.CodeSerialization,
			errs.WithStrategy(trimmedName),
			errs.WithMessage("encode metadata"),
			errs.WithCause(err))
	}
	if err := os.WriteFile(metadataPath, append(encoded, '\n'), 0o600); err != nil {
		return "", errs.New(errs.CodeInternal,
			errs.WithPath(metadataPath),
			errs.WithMessage("write metadata"),
			errs.WithCause(err))
	}

	manifest := strategy.NormalizeManifest(append(append([]string(nil), baseRequirements...), requirements...))
	manifestPath := filepath.Join(bundleDir, strategy.ManifestFile)
	if err := os.WriteFile(manifestPath, []byte(strings.Join(manifest, "\n")+"\n"), 0o600); err != nil {
		return "", errs.New(errs.CodeInternal,
			errs.WithPath(manifestPath),
			errs.WithMessage("write manifest"),
			errs.WithCause(err))
	}

	p.logger.Printf("strategy %q saved to %s", trimmedName, bundleDir)
	p.logger.Printf("  source:   %s", sourcePath)
	p.logger.Printf("  metadata: %s", metadataPath)
	p.logger.Printf("  manifest: %s", manifestPath)

	p.metrics.BundleSaved(context.Background())
	return bundleDir, nil
}

// Load opens a previously saved bundle and returns a ready-to-run container
// together with the stored metadata. Both required files must be present.
func (p *Packager) Load(name string, opts ...container.Option) (*container.Container, strategy.Metadata, error) {
	if err := strategy.ValidateName(name); err != nil {
		return nil, strategy.Metadata{}, err
	}
	trimmedName := strings.TrimSpace(name)
	bundleDir := filepath.Join(p.outputDir, trimmedName)

	if _, err := os.Stat(bundleDir); err != nil {
		return nil, strategy.Metadata{}, errs.New(errs.CodeNotFound,
			errs.WithStrategy(trimmedName),
			errs.WithPath(bundleDir),
			errs.WithMessage("strategy '"+trimmedName+"' not found in "+p.outputDir))
	}
	for _, required := range []string{strategy.SourceFile, strategy.MetadataFile} {
		if _, err := os.Stat(filepath.Join(bundleDir, required)); err != nil {
			return nil, strategy.Metadata{}, errs.New(errs.CodeNotFound,
				errs.WithStrategy(trimmedName),
				errs.WithPath(filepath.Join(bundleDir, required)),
				errs.WithMessage("bundle file missing: "+required))
		}
	}

	c, err := container.New(bundleDir, opts...)
	if err != nil {
		return nil, strategy.Metadata{}, err
	}
	p.metrics.BundleLoaded(context.Background())
	return c, c.Metadata(), nil
}

// List scans immediate subdirectories of the output directory and returns the
// metadata of every bundle that carries a metadata file, sorted by name.
// Subdirectories without one are skipped.
func (p *Packager) List() ([]strategy.Metadata, error) {
	entries, err := os.ReadDir(p.outputDir)
	if err != nil {
		return nil, errs.New(errs.CodeInternal,
			errs.WithPath(p.outputDir),
			errs.WithMessage("read output directory"),
			errs.WithCause(err))
	}

	dirs := make([]string, 0, len(entries))
	for _, entry := range entries {
		if entry.IsDir() {
			dirs = append(dirs, entry.Name())
		}
	}

	results := iter.Map(dirs, func(name *string) *strategy.Metadata {
		metadataPath := filepath.Join(p.outputDir, *name, strategy.MetadataFile)
		// #nosec G304 -- path is confined to the packager output directory.
		raw, readErr := os.ReadFile(metadataPath)
		if readErr != nil {
			return nil
		}
		var meta strategy.Metadata
		if decodeErr := json.Unmarshal(raw, &meta); decodeErr != nil {
			return nil
		}
		return &meta
	})

	out := make([]strategy.Metadata, 0, len(results))
	for _, meta := range results {
		if meta != nil {
			out = append(out, *meta)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Name < out[j].Name })
	return out, nil
}
