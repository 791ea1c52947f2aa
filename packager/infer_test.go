package packager

import (
	"slices"
	"testing"
)

func TestInferRequirements(t *testing.T) {
	source := []byte(`
module.exports = {
  signal: function (data) {
    var id = helpers.uuid();
    return [helpers.round(1.5, 0)];
  }
};
`)
	inferred := InferRequirements(source)
	for _, want := range []string{
		"github.com/shopspring/decimal",
		"github.com/google/uuid",
		"github.com/quantfold/sigpack",
	} {
		if !slices.Contains(inferred, want) {
			t.Fatalf("expected %s inferred, got %v", want, inferred)
		}
	}
}

func TestInferRequirementsEmptySource(t *testing.T) {
	if got := InferRequirements(nil); got != nil {
		t.Fatalf("expected nil for empty source, got %v", got)
	}
	if got := InferRequirements([]byte("   \n")); got != nil {
		t.Fatalf("expected nil for blank source, got %v", got)
	}
}

func TestInferRequirementsNoMarkers(t *testing.T) {
	source := []byte(`module.exports = { signal: function (data) { return []; } };`)
	if got := InferRequirements(source); len(got) != 0 {
		t.Fatalf("expected no inferred modules, got %v", got)
	}
}
