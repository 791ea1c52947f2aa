package deploy

import (
	"fmt"
	"sort"
	"strings"
)

// Health-check probe schedule shared by the Dockerfile and the compose file.
const (
	healthInterval    = "30s"
	healthTimeout     = "5s"
	healthRetries     = 3
	healthStartPeriod = "5s"
)

// moduleVersions pins the versions written into the generated go.mod. Every
// entry must be a published module the proxy can serve, or the image build's
// `go mod tidy` fails. Manifest entries outside this table only appear in the
// plain-text manifest.
var moduleVersions = map[string]string{
	"github.com/dop251/goja":        "v0.0.0-20251103110321-7516b814d492",
	"github.com/goccy/go-json":      "v0.10.5",
	"github.com/google/uuid":        "v1.6.0",
	"github.com/shopspring/decimal": "v1.4.0",
	"golang.org/x/time":             "v0.14.0",
}

func renderDockerfile(runtimeVersion string, port int) string {
	return fmt.Sprintf(`FROM golang:%[1]s-alpine AS build

WORKDIR /src

COPY go.mod server.go ./
COPY strategy/ ./strategy/
RUN go mod tidy && go build -o /out/strategy-server server.go

FROM alpine:3.21

RUN apk add --no-cache ca-certificates wget

WORKDIR /app

COPY --from=build /out/strategy-server .
COPY strategy/ ./strategy/

EXPOSE %[2]d

HEALTHCHECK --interval=%[3]s --timeout=%[4]s --start-period=%[5]s --retries=%[6]d \
    CMD wget -q -O /dev/null http://localhost:%[2]d/health || exit 1

CMD ["./strategy-server"]
`, runtimeVersion, port, healthInterval, healthTimeout, healthStartPeriod, healthRetries)
}

// renderServer emits a self-contained prediction server. It imports only
// published modules so the image build resolves everything from the proxy.
func renderServer(name string, port int) string {
	return fmt.Sprintf(`// Command strategy-server hosts the %[1]s strategy behind a prediction API.
package main

import (
	"errors"
	"log"
	"math"
	"net/http"
	"os"
	"sort"
	"strconv"
	"strings"
	"sync"

	"github.com/dop251/goja"
	json "github.com/goccy/go-json"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"golang.org/x/time/rate"
)

const (
	sourcePath   = "./strategy/strategy.js"
	metadataPath = "./strategy/metadata.json"

	maxBodyBytes int64 = 1 << 20
)

// strategyVM holds the compiled strategy module. The goja runtime is not safe
// for concurrent use, so every invocation goes through the mutex.
type strategyVM struct {
	mu       sync.Mutex
	rt       *goja.Runtime
	signal   goja.Callable
	metadata map[string]any
}

func loadStrategy() (*strategyVM, error) {
	source, err := os.ReadFile(sourcePath)
	if err != nil {
		return nil, err
	}
	program, err := goja.Compile("strategy.js", string(source), true)
	if err != nil {
		return nil, err
	}

	rt := goja.New()
	module := rt.NewObject()
	exports := rt.NewObject()
	if err := module.Set("exports", exports); err != nil {
		return nil, err
	}
	_ = rt.Set("module", module)
	_ = rt.Set("exports", exports)

	console := rt.NewObject()
	noop := func(goja.FunctionCall) goja.Value { return goja.Undefined() }
	for _, level := range []string{"log", "error", "warn", "info"} {
		_ = console.Set(level, noop)
	}
	_ = rt.Set("console", console)

	helpers := rt.NewObject()
	_ = helpers.Set("uuid", func() string { return uuid.NewString() })
	_ = helpers.Set("round", func(value float64, places int) float64 {
		rounded, _ := decimal.NewFromFloat(value).Round(int32(places)).Float64()
		return rounded
	})
	_ = rt.Set("helpers", helpers)

	if _, err := rt.RunProgram(program); err != nil {
		return nil, err
	}

	exported := module.Get("exports").ToObject(rt)
	callable, ok := goja.AssertFunction(exported.Get("signal"))
	if !ok {
		return nil, errors.New("strategy module must export a callable signal")
	}

	vm := &strategyVM{rt: rt, signal: callable, metadata: map[string]any{}}
	if raw, readErr := os.ReadFile(metadataPath); readErr == nil {
		_ = json.Unmarshal(raw, &vm.metadata)
	}
	return vm, nil
}

func toFloat(raw any) (float64, bool) {
	switch v := raw.(type) {
	case float64:
		return v, true
	case string:
		trimmed := strings.TrimSpace(v)
		if trimmed == "" {
			return math.NaN(), true
		}
		parsed, err := strconv.ParseFloat(trimmed, 64)
		if err != nil {
			return 0, false
		}
		return parsed, true
	case nil:
		return math.NaN(), true
	default:
		return 0, false
	}
}

func (vm *strategyVM) run(records []map[string]any) ([]*float64, error) {
	if len(records) == 0 {
		return nil, errors.New("input data is empty")
	}

	names := map[string]struct{}{}
	for _, record := range records {
		for key := range record {
			lowered := strings.ToLower(strings.TrimSpace(key))
			if lowered == "timestamp" {
				continue
			}
			names[lowered] = struct{}{}
		}
	}
	if _, ok := names["close"]; !ok {
		available := make([]string, 0, len(names))
		for name := range names {
			available = append(available, name)
		}
		sort.Strings(available)
		return nil, errors.New("missing required column: close (available: " + strings.Join(available, ", ") + ")")
	}

	columns := map[string]any{}
	for name := range names {
		values := make([]float64, len(records))
		for i, record := range records {
			values[i] = math.NaN()
			for key, raw := range record {
				if strings.ToLower(strings.TrimSpace(key)) != name {
					continue
				}
				parsed, ok := toFloat(raw)
				if !ok {
					return nil, errors.New("column " + name + ": non-numeric value")
				}
				values[i] = parsed
				break
			}
		}
		columns[name] = values
	}

	vm.mu.Lock()
	value, err := vm.signal(goja.Undefined(), vm.rt.ToValue(columns))
	vm.mu.Unlock()
	if err != nil {
		return nil, errors.New("error running strategy: " + err.Error())
	}

	items, ok := value.Export().([]any)
	if !ok {
		return nil, errors.New("signal must return an array")
	}
	if len(items) != len(records) {
		return nil, errors.New("signal length mismatch: got " + strconv.Itoa(len(items)) + ", want " + strconv.Itoa(len(records)))
	}

	out := make([]*float64, len(items))
	for i, item := range items {
		switch v := item.(type) {
		case float64:
			if !math.IsNaN(v) {
				number := v
				out[i] = &number
			}
		case int64:
			number := float64(v)
			out[i] = &number
		case bool:
			number := 0.0
			if v {
				number = 1.0
			}
			out[i] = &number
		}
	}
	return out, nil
}

func writeJSON(w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(payload)
}

func writeError(w http.ResponseWriter, status int, message string) {
	writeJSON(w, status, map[string]string{"status": "error", "error": message})
}

func main() {
	logger := log.New(os.Stdout, "%[1]s ", log.LstdFlags)

	vm, err := loadStrategy()
	if err != nil {
		logger.Fatalf("load strategy: %%v", err)
	}

	limiter := rate.NewLimiter(rate.Limit(50), 100)

	mux := http.NewServeMux()
	mux.HandleFunc("/", func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/" || r.Method != http.MethodGet {
			writeError(w, http.StatusNotFound, "not found")
			return
		}
		writeJSON(w, http.StatusOK, map[string]any{
			"message":  "strategy prediction API",
			"strategy": vm.metadata,
		})
	})
	mux.HandleFunc("/health", func(w http.ResponseWriter, _ *http.Request) {
		writeJSON(w, http.StatusOK, map[string]any{"status": "healthy", "strategy_loaded": true})
	})
	mux.HandleFunc("/info", func(w http.ResponseWriter, _ *http.Request) {
		writeJSON(w, http.StatusOK, map[string]any{
			"metadata":      vm.metadata,
			"function_name": vm.metadata["function_name"],
			"loaded":        true,
		})
	})
	mux.HandleFunc("/predict", func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodPost {
			w.Header().Set("Allow", http.MethodPost)
			writeError(w, http.StatusMethodNotAllowed, "method not allowed")
			return
		}
		if !limiter.Allow() {
			writeError(w, http.StatusTooManyRequests, "rate limit exceeded")
			return
		}
		r.Body = http.MaxBytesReader(w, r.Body, maxBodyBytes)
		var payload struct {
			Data []map[string]any `+"`json:\"data\"`"+`
		}
		if err := json.NewDecoder(r.Body).Decode(&payload); err != nil {
			writeError(w, http.StatusBadRequest, err.Error())
			return
		}
		signals, err := vm.run(payload.Data)
		if err != nil {
			writeError(w, http.StatusBadRequest, "error processing data: "+err.Error())
			return
		}
		writeJSON(w, http.StatusOK, map[string]any{"signals": signals, "metadata": vm.metadata})
	})

	logger.Printf("serving strategy %[1]s on :%[2]d")
	if err := http.ListenAndServe(":%[2]d", mux); err != nil {
		logger.Fatalf("serve: %%v", err)
	}
}
`, name, port)
}

func renderGoMod(name string, manifest []string) string {
	var requires []string
	for _, entry := range manifest {
		version, pinned := moduleVersions[entry]
		if !pinned {
			continue
		}
		requires = append(requires, fmt.Sprintf("\t%s %s", entry, version))
	}
	sort.Strings(requires)

	var builder strings.Builder
	builder.WriteString("module deployment/" + sanitizeModuleName(name) + "\n\n")
	builder.WriteString("go 1.25\n\n")
	if len(requires) > 0 {
		builder.WriteString("require (\n")
		builder.WriteString(strings.Join(requires, "\n"))
		builder.WriteString("\n)\n")
	}
	return builder.String()
}

func sanitizeModuleName(name string) string {
	lowered := strings.ToLower(strings.TrimSpace(name))
	var out strings.Builder
	for _, r := range lowered {
		switch {
		case r >= 'a' && r <= 'z', r >= '0' && r <= '9', r == '-', r == '.':
			out.WriteRune(r)
		case r == '_':
			out.WriteRune('-')
		}
	}
	if out.Len() == 0 {
		return "strategy"
	}
	return out.String()
}

func renderBuildScript(name string) string {
	return fmt.Sprintf(`#!/bin/sh
set -e

echo "Building image for %[1]s..."
docker build -t %[1]s:latest .

echo "Build complete."
echo "Run with: ./run.sh"
`, name)
}

func renderRunScript(name string, port int) string {
	return fmt.Sprintf(`#!/bin/sh
set -e

echo "Starting %[1]s container..."
docker compose up -d

echo "Container started."
echo "API available at: http://localhost:%[2]d"
echo ""
echo "View logs with: docker compose logs -f"
echo "Stop with:      docker compose down"
`, name, port)
}

func renderReadme(name string, port int) string {
	return fmt.Sprintf(`# %[1]s deployment

This directory contains a container deployment for the `+"`%[1]s`"+` trading
strategy.

## Quick start

### Docker Compose

`+"```sh"+`
docker compose up --build
`+"```"+`

### Scripts

`+"```sh"+`
./build.sh   # build the image
./run.sh     # start the container
`+"```"+`

## API

Once running, the API is available at `+"`http://localhost:%[2]d`"+`.

- `+"`GET /`"+` - strategy summary
- `+"`GET /health`"+` - liveness probe
- `+"`GET /info`"+` - strategy metadata
- `+"`POST /predict`"+` - generate signals from OHLCV records

### Example request

`+"```sh"+`
curl -X POST "http://localhost:%[2]d/predict" \
  -H "Content-Type: application/json" \
  -d '{
    "data": [
      {"timestamp": "2024-01-01T00:00:00Z", "open": 100.0, "high": 105.0, "low": 99.0, "close": 103.0, "volume": 1000000},
      {"timestamp": "2024-01-02T00:00:00Z", "open": 103.0, "high": 107.0, "low": 102.0, "close": 106.0, "volume": 1200000}
    ]
  }'
`+"```"+`

## Files

- `+"`Dockerfile`"+` - image definition
- `+"`docker-compose.yml`"+` - orchestration
- `+"`server.go`"+` / `+"`go.mod`"+` - generated prediction server
- `+"`strategy/`"+` - bundle copy (strategy.js, metadata.json, requirements.txt)
- `+"`requirements.txt`"+` - combined dependency manifest
- `+"`build.sh`"+` / `+"`run.sh`"+` - helper scripts

To update the strategy, replace the contents of `+"`strategy/`"+` and rebuild
the image.
`, name, port)
}
