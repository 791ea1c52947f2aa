package deploy

import (
	"io"
	"log"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"testing"

	"gopkg.in/yaml.v3"

	"github.com/quantfold/sigpack/errs"
)

func newTestBuilder(t *testing.T) *Builder {
	t.Helper()
	b, err := NewBuilder(t.TempDir(), WithLogger(log.New(io.Discard, "", 0)))
	if err != nil {
		t.Fatalf("new builder: %v", err)
	}
	return b
}

func writeTestBundle(t *testing.T) string {
	t.Helper()
	dir := t.TempDir()
	files := map[string]string{
		"strategy.js":      `module.exports = { signal: function (data) { return []; } };`,
		"metadata.json":    `{"name":"alpha","version":"1.0.0"}`,
		"requirements.txt": "github.com/shopspring/decimal\n",
	}
	for name, content := range files {
		if err := os.WriteFile(filepath.Join(dir, name), []byte(content), 0o600); err != nil {
			t.Fatalf("write %s: %v", name, err)
		}
	}
	return dir
}

func TestCreateDeploymentWritesArtifacts(t *testing.T) {
	b := newTestBuilder(t)
	deployDir, err := b.CreateDeployment("alpha", writeTestBundle(t))
	if err != nil {
		t.Fatalf("create deployment: %v", err)
	}

	for _, artifact := range []string{
		"Dockerfile", "server.go", "go.mod", "requirements.txt",
		"build.sh", "run.sh", "README.md", "docker-compose.yml",
	} {
		if _, statErr := os.Stat(filepath.Join(deployDir, artifact)); statErr != nil {
			t.Fatalf("expected artifact %s: %v", artifact, statErr)
		}
	}
	for _, bundled := range []string{"strategy.js", "metadata.json", "requirements.txt"} {
		if _, statErr := os.Stat(filepath.Join(deployDir, "strategy", bundled)); statErr != nil {
			t.Fatalf("expected bundle copy %s: %v", bundled, statErr)
		}
	}

	for _, script := range []string{"build.sh", "run.sh"} {
		info, statErr := os.Stat(filepath.Join(deployDir, script))
		if statErr != nil {
			t.Fatalf("stat %s: %v", script, statErr)
		}
		if info.Mode().Perm()&0o100 == 0 {
			t.Fatalf("expected %s to be executable, got %v", script, info.Mode())
		}
	}
}

func TestCreateDeploymentMissingBundle(t *testing.T) {
	b := newTestBuilder(t)
	_, err := b.CreateDeployment("ghost", filepath.Join(t.TempDir(), "nope"))
	if !errs.IsNotFound(err) {
		t.Fatalf("expected not found, got %v", err)
	}
	if _, statErr := os.Stat(filepath.Join(b.OutputDir(), "ghost")); !os.IsNotExist(statErr) {
		t.Fatalf("expected no deployment directory for failed create")
	}
}

func TestCreateDeploymentCombinesManifests(t *testing.T) {
	b := newTestBuilder(t)
	deployDir, err := b.CreateDeployment("alpha", writeTestBundle(t))
	if err != nil {
		t.Fatalf("create deployment: %v", err)
	}

	raw, err := os.ReadFile(filepath.Join(deployDir, "requirements.txt"))
	if err != nil {
		t.Fatalf("read manifest: %v", err)
	}
	manifest := string(raw)
	for _, want := range append([]string{"github.com/shopspring/decimal"}, serverRequirements...) {
		if !strings.Contains(manifest, want) {
			t.Fatalf("expected %s in combined manifest, got:\n%s", want, manifest)
		}
	}
}

func TestCreateDeploymentDefaultPortInCompose(t *testing.T) {
	b := newTestBuilder(t)
	deployDir, err := b.CreateDeployment("ma_cross", writeTestBundle(t))
	if err != nil {
		t.Fatalf("create deployment: %v", err)
	}

	raw, err := os.ReadFile(filepath.Join(deployDir, "docker-compose.yml"))
	if err != nil {
		t.Fatalf("read compose: %v", err)
	}
	var parsed composeFile
	if err := yaml.Unmarshal(raw, &parsed); err != nil {
		t.Fatalf("parse compose: %v", err)
	}

	service, ok := parsed.Services["ma-cross"]
	if !ok {
		t.Fatalf("expected service ma-cross, got %v", parsed.Services)
	}
	if service.ContainerName != "ma_cross" {
		t.Fatalf("expected container name ma_cross, got %s", service.ContainerName)
	}
	if len(service.Ports) != 1 || service.Ports[0] != "8000:8000" {
		t.Fatalf("expected default port mapping 8000:8000, got %v", service.Ports)
	}
	if service.Restart != "unless-stopped" {
		t.Fatalf("expected unless-stopped restart policy, got %s", service.Restart)
	}
	if service.Healthcheck.Interval != healthInterval || service.Healthcheck.Retries != healthRetries {
		t.Fatalf("expected shared probe schedule, got %+v", service.Healthcheck)
	}
}

func TestCreateDeploymentCustomPortAndRuntime(t *testing.T) {
	b := newTestBuilder(t)
	deployDir, err := b.CreateDeployment("alpha", writeTestBundle(t),
		WithPort(9001), WithRuntimeVersion("1.24"))
	if err != nil {
		t.Fatalf("create deployment: %v", err)
	}

	dockerfile, err := os.ReadFile(filepath.Join(deployDir, "Dockerfile"))
	if err != nil {
		t.Fatalf("read Dockerfile: %v", err)
	}
	if !strings.Contains(string(dockerfile), "golang:1.24-alpine") {
		t.Fatalf("expected runtime override in Dockerfile:\n%s", dockerfile)
	}
	if !strings.Contains(string(dockerfile), "EXPOSE 9001") {
		t.Fatalf("expected port override in Dockerfile:\n%s", dockerfile)
	}

	serverSrc, err := os.ReadFile(filepath.Join(deployDir, "server.go"))
	if err != nil {
		t.Fatalf("read server.go: %v", err)
	}
	if !strings.Contains(string(serverSrc), ":9001") {
		t.Fatalf("expected port override in server.go:\n%s", serverSrc)
	}
}

func TestCreateDeploymentIsIdempotent(t *testing.T) {
	b := newTestBuilder(t)
	bundle := writeTestBundle(t)
	first, err := b.CreateDeployment("alpha", bundle)
	if err != nil {
		t.Fatalf("first create: %v", err)
	}

	stale := filepath.Join(first, "strategy", "stale.txt")
	if err := os.WriteFile(stale, []byte("old"), 0o600); err != nil {
		t.Fatalf("write stale file: %v", err)
	}

	second, err := b.CreateDeployment("alpha", bundle)
	if err != nil {
		t.Fatalf("second create: %v", err)
	}
	if first != second {
		t.Fatalf("expected stable deployment path, got %s vs %s", first, second)
	}
	if _, statErr := os.Stat(stale); !os.IsNotExist(statErr) {
		t.Fatalf("expected bundle copy to be replaced wholesale")
	}
}

func TestRenderGoModPinsKnownModules(t *testing.T) {
	content := renderGoMod("alpha", []string{
		"github.com/dop251/goja",
		"github.com/quantfold/sigpack",
		"example.com/unknown",
	})
	if !strings.Contains(content, "module deployment/alpha") {
		t.Fatalf("expected deployment module path, got:\n%s", content)
	}
	if !strings.Contains(content, "github.com/dop251/goja v0.0.0-") {
		t.Fatalf("expected pinned goja requirement, got:\n%s", content)
	}
	if strings.Contains(content, "example.com/unknown") {
		t.Fatalf("expected unknown module to be left to go mod tidy, got:\n%s", content)
	}
	if strings.Contains(content, "github.com/quantfold/sigpack") {
		t.Fatalf("expected unpublished modules to be omitted from go.mod, got:\n%s", content)
	}
}

func TestGeneratedDeploymentFetchesOnlyPublishedModules(t *testing.T) {
	b := newTestBuilder(t)
	deployDir, err := b.CreateDeployment("alpha", writeTestBundle(t))
	if err != nil {
		t.Fatalf("create deployment: %v", err)
	}

	for _, artifact := range []string{"server.go", "go.mod"} {
		raw, readErr := os.ReadFile(filepath.Join(deployDir, artifact))
		if readErr != nil {
			t.Fatalf("read %s: %v", artifact, readErr)
		}
		if strings.Contains(string(raw), "github.com/quantfold/sigpack") {
			t.Fatalf("expected %s to reference only published modules:\n%s", artifact, raw)
		}
	}

	serverSrc, err := os.ReadFile(filepath.Join(deployDir, "server.go"))
	if err != nil {
		t.Fatalf("read server.go: %v", err)
	}
	goMod, err := os.ReadFile(filepath.Join(deployDir, "go.mod"))
	if err != nil {
		t.Fatalf("read go.mod: %v", err)
	}
	for _, module := range serverRequirements {
		if module == "golang.org/x/time" {
			module = "golang.org/x/time/rate"
		}
		if !strings.Contains(string(serverSrc), `"`+module+`"`) {
			t.Fatalf("expected generated server to import %s:\n%s", module, serverSrc)
		}
	}
	for _, module := range serverRequirements {
		version, pinned := moduleVersions[module]
		if !pinned {
			t.Fatalf("expected server requirement %s to carry a pin", module)
		}
		if !strings.Contains(string(goMod), module+" "+version) {
			t.Fatalf("expected go.mod to pin %s %s:\n%s", module, version, goMod)
		}
	}
}

func TestDockerfileHealthcheckSchedule(t *testing.T) {
	b := newTestBuilder(t)
	deployDir, err := b.CreateDeployment("alpha", writeTestBundle(t))
	if err != nil {
		t.Fatalf("create deployment: %v", err)
	}

	raw, err := os.ReadFile(filepath.Join(deployDir, "Dockerfile"))
	if err != nil {
		t.Fatalf("read Dockerfile: %v", err)
	}
	dockerfile := string(raw)
	directive := "HEALTHCHECK --interval=" + healthInterval +
		" --timeout=" + healthTimeout +
		" --start-period=" + healthStartPeriod +
		" --retries=" + strconv.Itoa(healthRetries)
	if !strings.Contains(dockerfile, directive) {
		t.Fatalf("expected healthcheck schedule %q in Dockerfile:\n%s", directive, dockerfile)
	}
	if !strings.Contains(dockerfile, "http://localhost:8000/health") {
		t.Fatalf("expected healthcheck URL in Dockerfile:\n%s", dockerfile)
	}
}
