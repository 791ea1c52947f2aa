// Package container loads a saved strategy bundle back into an executable
// form and runs it against tabular market data. It is the runtime half of the
// packager: what the generated deployments (and local verification) use.
package container

import (
	"context"
	"log"
	"net/http"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	json "github.com/goccy/go-json"

	"github.com/quantfold/sigpack/errs"
	"github.com/quantfold/sigpack/internal/js"
	"github.com/quantfold/sigpack/internal/schema"
	"github.com/quantfold/sigpack/lib/telemetry"
	"github.com/quantfold/sigpack/strategy"
)

// Container holds one loaded strategy and its metadata.
type Container struct {
	path     string
	module   *js.Module
	instance *js.Instance
	metadata strategy.Metadata
	logger   *log.Logger
	metrics  *telemetry.Metrics
}

// Info summarizes the loaded strategy for callers and the HTTP layer.
type Info struct {
	Metadata     strategy.Metadata `json:"metadata"`
	FunctionName string            `json:"function_name"`
	Loaded       bool              `json:"loaded"`
}

// Option configures a Container.
type Option func(*Container)

// WithLogger sets the logger used for execution diagnostics.
func WithLogger(logger *log.Logger) Option {
	return func(c *Container) {
		if logger != nil {
			c.logger = logger
		}
	}
}

// WithMetrics attaches the telemetry instrument set.
func WithMetrics(metrics *telemetry.Metrics) Option {
	return func(c *Container) {
		c.metrics = metrics
	}
}

// New loads a strategy from a bundle directory or a direct .js file. The
// strategy file must exist; a missing metadata file degrades to empty
// metadata rather than failing.
func New(path string, opts ...Option) (*Container, error) {
	trimmed := strings.TrimSpace(path)
	if trimmed == "" {
		return nil, errs.InvalidInput("strategy path required")
	}
	clean := filepath.Clean(trimmed)

	sourcePath := clean
	metadataPath := filepath.Join(filepath.Dir(clean), strategy.MetadataFile)
	if info, err := os.Stat(clean); err == nil && info.IsDir() {
		sourcePath = filepath.Join(clean, strategy.SourceFile)
		metadataPath = filepath.Join(clean, strategy.MetadataFile)
	}

	// #nosec G304 -- callers pass bundle paths they own.
	source, err := os.ReadFile(sourcePath)
	if err != nil {
		return nil, errs.New(errs.CodeNotFound,
			errs.WithPath(sourcePath),
			errs.WithMessage("strategy file not found"),
			errs.WithCause(err))
	}

	module, err := js.Compile(filepath.Base(sourcePath), source)
	if err != nil {
		return nil, errs.New(errs.CodeSerialization,
			errs.WithPath(sourcePath),
			errs.WithMessage("strategy failed to compile"),
			errs.WithCause(err))
	}
	instance, err := js.NewInstance(module)
	if err != nil {
		return nil, errs.New(errs.CodeSerialization,
			errs.WithPath(sourcePath),
			errs.WithMessage("strategy failed to initialize"),
			errs.WithCause(err))
	}

	c := &Container{
		path:     clean,
		module:   module,
		instance: instance,
		metadata: strategy.Metadata{},
		logger:   log.New(os.Stdout, "", log.LstdFlags),
		metrics:  nil,
	}
	for _, opt := range opts {
		if opt != nil {
			opt(c)
		}
	}

	// #nosec G304 -- derived from the bundle path above.
	if raw, readErr := os.ReadFile(metadataPath); readErr == nil {
		var meta strategy.Metadata
		if decodeErr := json.Unmarshal(raw, &meta); decodeErr != nil {
			instance.Close()
			return nil, errs.New(errs.CodeSerialization,
				errs.WithPath(metadataPath),
				errs.WithMessage("metadata failed to decode"),
				errs.WithCause(decodeErr))
		}
		c.metadata = meta
	}

	return c, nil
}

// Run executes the strategy against the frame and returns the signal series.
// Each call is a direct synchronous invocation; nothing is retried.
func (c *Container) Run(frame schema.Frame) (schema.Series, error) {
	if err := validateFrame(frame); err != nil {
		return nil, err
	}

	values, err := c.instance.Signal(frame.Export())
	if err != nil {
		c.logger.Printf("strategy %s: signal failed: %v", c.metadata.Name, err)
		c.metrics.PredictionFailed(context.Background())
		return nil, errs.New(errs.CodeExecution,
			errs.WithStrategy(c.metadata.Name),
			errs.WithHTTP(http.StatusBadRequest),
			errs.WithMessage("error running strategy: "+js.ExceptionMessage(err)),
			errs.WithCause(err))
	}
	if len(values) != frame.Len() {
		c.metrics.PredictionFailed(context.Background())
		return nil, errs.New(errs.CodeExecution,
			errs.WithStrategy(c.metadata.Name),
			errs.WithHTTP(http.StatusBadRequest),
			errs.WithMessage("signal length mismatch: got "+strconv.Itoa(len(values))+", want "+strconv.Itoa(frame.Len())))
	}

	c.metrics.PredictionServed(context.Background())
	return schema.Series(values), nil
}

func validateFrame(frame schema.Frame) error {
	if frame.Empty() {
		return errs.New(errs.CodeInvalidInput,
			errs.WithHTTP(http.StatusBadRequest),
			errs.WithMessage("input data is empty"))
	}
	if !frame.HasClose() {
		return errs.New(errs.CodeInvalidInput,
			errs.WithHTTP(http.StatusBadRequest),
			errs.WithMessage("missing required column: close (available: "+
				strings.Join(frame.Columns(), ", ")+")"))
	}
	return nil
}

// Info returns strategy metadata and load state. Pure accessor.
func (c *Container) Info() Info {
	return Info{
		Metadata:     strategy.CloneMetadata(c.metadata),
		FunctionName: c.module.FunctionName,
		Loaded:       c.instance != nil,
	}
}

// Metadata returns the stored metadata record.
func (c *Container) Metadata() strategy.Metadata {
	return strategy.CloneMetadata(c.metadata)
}

// Path returns the bundle path the container was constructed from.
func (c *Container) Path() string { return c.path }

// Close releases the underlying VM resources.
func (c *Container) Close() {
	if c == nil {
		return
	}
	c.instance.Close()
}

