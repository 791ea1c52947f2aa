// Package server exposes the prediction HTTP API for a loaded strategy
// container. The application context is explicit: handlers read the strategy
// through the App they were constructed with, never through package state.
package server

import (
	"errors"
	"log"
	"math"
	"net/http"
	"os"
	"sort"
	"strings"

	json "github.com/goccy/go-json"
	"golang.org/x/time/rate"

	"github.com/quantfold/sigpack/container"
	"github.com/quantfold/sigpack/errs"
	"github.com/quantfold/sigpack/internal/schema"
	"github.com/quantfold/sigpack/lib/telemetry"
	"github.com/quantfold/sigpack/strategy"
)

const (
	maxJSONBodyBytes int64 = 1 << 20 // 1 MiB

	rootPath    = "/"
	healthPath  = "/health"
	infoPath    = "/info"
	predictPath = "/predict"

	defaultRateLimit = rate.Limit(50)
	defaultRateBurst = 100
)

// App is the explicit application context handed to every handler.
type App struct {
	strategy *container.Container
	logger   *log.Logger
	limiter  *rate.Limiter
	metrics  *telemetry.Metrics
}

// AppOption configures an App.
type AppOption func(*App)

// WithLogger sets the request logger.
func WithLogger(logger *log.Logger) AppOption {
	return func(a *App) {
		if logger != nil {
			a.logger = logger
		}
	}
}

// WithRateLimit overrides the default predict-endpoint rate limit.
func WithRateLimit(limit rate.Limit, burst int) AppOption {
	return func(a *App) {
		a.limiter = rate.NewLimiter(limit, burst)
	}
}

// WithMetrics attaches the telemetry instrument set.
func WithMetrics(metrics *telemetry.Metrics) AppOption {
	return func(a *App) {
		a.metrics = metrics
	}
}

// NewApp builds the application context around a loaded container. A nil
// container is tolerated: the API stays up and reports the load failure.
func NewApp(c *container.Container, opts ...AppOption) *App {
	app := &App{
		strategy: c,
		logger:   log.New(os.Stdout, "", log.LstdFlags),
		limiter:  rate.NewLimiter(defaultRateLimit, defaultRateBurst),
		metrics:  nil,
	}
	for _, opt := range opts {
		if opt != nil {
			opt(app)
		}
	}
	return app
}

type handlerFunc func(http.ResponseWriter, *http.Request)

// NewHandler wires the four API routes onto a mux in front of the app.
func NewHandler(app *App) http.Handler {
	mux := http.NewServeMux()
	mux.Handle(rootPath, app.methodHandlers(map[string]handlerFunc{
		http.MethodGet: app.getRoot,
	}))
	mux.Handle(healthPath, app.methodHandlers(map[string]handlerFunc{
		http.MethodGet: app.getHealth,
	}))
	mux.Handle(infoPath, app.methodHandlers(map[string]handlerFunc{
		http.MethodGet: app.getInfo,
	}))
	mux.Handle(predictPath, app.methodHandlers(map[string]handlerFunc{
		http.MethodPost: app.postPredict,
	}))
	return withCORS(mux)
}

func (a *App) methodHandlers(handlers map[string]handlerFunc) http.Handler {
	allowed := allowedMethods(handlers)
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if handler, ok := handlers[r.Method]; ok {
			handler(w, r)
			return
		}
		methodNotAllowed(w, allowed...)
	})
}

func allowedMethods(handlers map[string]handlerFunc) []string {
	if len(handlers) == 0 {
		return nil
	}
	allowed := make([]string, 0, len(handlers))
	for method := range handlers {
		allowed = append(allowed, method)
	}
	sort.Strings(allowed)
	return allowed
}

func (a *App) metadata() strategy.Metadata {
	if a.strategy == nil {
		return strategy.Metadata{}
	}
	return a.strategy.Metadata()
}

func (a *App) loaded() bool { return a.strategy != nil }

func (a *App) getRoot(w http.ResponseWriter, r *http.Request) {
	if r.URL.Path != rootPath {
		writeError(w, http.StatusNotFound, "not found")
		return
	}
	meta := a.metadata()
	writeJSON(w, http.StatusOK, map[string]any{
		"message": "strategy prediction API",
		"strategy": map[string]string{
			"name":        meta.Name,
			"version":     meta.Version,
			"description": meta.Description,
		},
	})
}

func (a *App) getHealth(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]any{
		"status":          "healthy",
		"strategy_loaded": a.loaded(),
	})
}

func (a *App) getInfo(w http.ResponseWriter, _ *http.Request) {
	if !a.loaded() {
		writeJSON(w, http.StatusOK, container.Info{
			Metadata:     strategy.Metadata{},
			FunctionName: "",
			Loaded:       false,
		})
		return
	}
	writeJSON(w, http.StatusOK, a.strategy.Info())
}

type predictRequest struct {
	Data []schema.Record `json:"data"`
}

type predictResponse struct {
	Signals  []*float64     `json:"signals"`
	Metadata map[string]any `json:"metadata"`
}

func (a *App) postPredict(w http.ResponseWriter, r *http.Request) {
	if !a.loaded() {
		writeError(w, http.StatusInternalServerError, "strategy not loaded")
		return
	}
	if !a.limiter.Allow() {
		writeError(w, http.StatusTooManyRequests, "rate limit exceeded")
		return
	}

	limitRequestBody(w, r)
	defer func() {
		_ = r.Body.Close()
	}()

	var payload predictRequest
	decoder := json.NewDecoder(r.Body)
	if err := decoder.Decode(&payload); err != nil {
		writeDecodeError(w, err)
		return
	}

	frame, err := schema.FromRecords(payload.Data)
	if err != nil {
		a.metrics.PredictionFailed(r.Context())
		writeError(w, statusFor(err), "error processing data: "+errorMessage(err))
		return
	}

	signals, err := a.strategy.Run(frame)
	if err != nil {
		a.metrics.PredictionFailed(r.Context())
		writeError(w, statusFor(err), "error processing data: "+errorMessage(err))
		return
	}

	a.metrics.PredictionServed(r.Context())
	writeJSON(w, http.StatusOK, predictResponse{
		Signals:  nullableSignals(signals),
		Metadata: metadataMap(a.metadata()),
	})
}

// nullableSignals maps NaN entries to JSON null.
func nullableSignals(series schema.Series) []*float64 {
	out := make([]*float64, len(series))
	for i := range series {
		if math.IsNaN(series[i]) {
			continue
		}
		value := series[i]
		out[i] = &value
	}
	return out
}

func metadataMap(meta strategy.Metadata) map[string]any {
	encoded, err := json.Marshal(meta)
	if err != nil {
		return map[string]any{}
	}
	var out map[string]any
	if err := json.Unmarshal(encoded, &out); err != nil {
		return map[string]any{}
	}
	return out
}

// statusFor maps an error to an HTTP status, preferring a status carried on
// the error envelope over the code-based default.
func statusFor(err error) int {
	var envelope *errs.E
	if errors.As(err, &envelope) && envelope != nil && envelope.HTTP > 0 {
		return envelope.HTTP
	}
	switch errs.CodeOf(err) {
	case errs.CodeInvalidInput, errs.CodeExecution:
		return http.StatusBadRequest
	default:
		return http.StatusInternalServerError
	}
}

func errorMessage(err error) string {
	var envelope *errs.E
	if errors.As(err, &envelope) && envelope != nil && envelope.Message != "" {
		return envelope.Message
	}
	return err.Error()
}

func limitRequestBody(w http.ResponseWriter, r *http.Request) {
	r.Body = http.MaxBytesReader(w, r.Body, maxJSONBodyBytes)
}

func writeDecodeError(w http.ResponseWriter, err error) {
	if isRequestTooLarge(err) {
		writeError(w, http.StatusRequestEntityTooLarge, "request body too large")
		return
	}
	writeError(w, http.StatusBadRequest, err.Error())
}

func isRequestTooLarge(err error) bool {
	var maxBytesErr *http.MaxBytesError
	return errors.As(err, &maxBytesErr)
}

func methodNotAllowed(w http.ResponseWriter, allowed ...string) {
	if len(allowed) > 0 {
		w.Header().Set("Allow", strings.Join(allowed, ", "))
	}
	writeError(w, http.StatusMethodNotAllowed, "method not allowed")
}

func writeJSON(w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	encoder := json.NewEncoder(w)
	_ = encoder.Encode(payload)
}

func writeError(w http.ResponseWriter, status int, message string) {
	writeJSON(w, status, map[string]string{"status": "error", "error": message})
}

func withCORS(handler http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Access-Control-Allow-Origin", "*")
		w.Header().Set("Access-Control-Allow-Methods", "GET, POST, OPTIONS")
		w.Header().Set("Access-Control-Allow-Headers", "Content-Type, Authorization")
		if r.Method == http.MethodOptions {
			w.WriteHeader(http.StatusNoContent)
			return
		}
		handler.ServeHTTP(w, r)
	})
}
