package js

import (
	"strings"
	"testing"
)

const sampleModule = `
module.exports = {
  metadata: { name: "sample", description: "unit fixture", version: "2.0.0" },
  signal: function sampleSignal(data) {
    var out = [];
    for (var i = 0; i < data.close.length; i++) {
      out.push(data.close[i] > 0 ? 1 : 0);
    }
    return out;
  }
};
`

func TestCompileExtractsMetadataAndFunctionName(t *testing.T) {
	module, err := Compile("sample.js", []byte(sampleModule))
	if err != nil {
		t.Fatalf("compile: %v", err)
	}
	if module.Metadata.Name != "sample" || module.Metadata.Version != "2.0.0" {
		t.Fatalf("unexpected metadata: %+v", module.Metadata)
	}
	if module.FunctionName != "sampleSignal" {
		t.Fatalf("expected captured function name, got %q", module.FunctionName)
	}
}

func TestCompileRejectsBrokenSource(t *testing.T) {
	if _, err := Compile("broken.js", []byte("module.exports = {")); err == nil {
		t.Fatalf("expected syntax error")
	}
}

func TestCompileRequiresSignalExport(t *testing.T) {
	_, err := Compile("nosignal.js", []byte(`module.exports = { metadata: { name: "x" } };`))
	if err == nil || !strings.Contains(err.Error(), "signal") {
		t.Fatalf("expected missing signal error, got %v", err)
	}

	_, err = Compile("notfn.js", []byte(`module.exports = { signal: 42 };`))
	if err == nil || !strings.Contains(err.Error(), "not callable") {
		t.Fatalf("expected non-callable error, got %v", err)
	}
}

func TestCompileDefaultsFilename(t *testing.T) {
	module, err := Compile("", []byte(sampleModule))
	if err != nil {
		t.Fatalf("compile: %v", err)
	}
	if module.Filename != "strategy.js" {
		t.Fatalf("expected default filename, got %q", module.Filename)
	}
}

func TestCompileToleratesConsoleUse(t *testing.T) {
	source := `
console.log("loading");
module.exports = { signal: function (data) { console.warn("hi"); return []; } };
`
	if _, err := Compile("console.js", []byte(source)); err != nil {
		t.Fatalf("compile with console calls: %v", err)
	}
}
