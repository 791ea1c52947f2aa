package packager

import "strings"

// inferenceMarkers maps source substrings to the module each one implies.
// Mirrors the host helper surface: strategies touching helpers.round lean on
// decimal arithmetic, helpers.uuid on uuid generation.
var inferenceMarkers = []struct {
	token  string
	module string
}{
	{token: "helpers.round", module: "github.com/shopspring/decimal"},
	{token: "decimal", module: "github.com/shopspring/decimal"},
	{token: "helpers.uuid", module: "github.com/google/uuid"},
	{token: "uuid", module: "github.com/google/uuid"},
	{token: "helpers.", module: "github.com/quantfold/sigpack"},
}

// InferRequirements scans strategy source for known markers and returns the
// implied manifest entries. This is a best-effort advisory heuristic, never
// authoritative dependency resolution; empty source yields an empty list.
func InferRequirements(source []byte) []string {
	text := string(source)
	if strings.TrimSpace(text) == "" {
		return nil
	}
	var out []string
	seen := map[string]struct{}{}
	for _, marker := range inferenceMarkers {
		if !strings.Contains(text, marker.token) {
			continue
		}
		if _, dup := seen[marker.module]; dup {
			continue
		}
		seen[marker.module] = struct{}{}
		out = append(out, marker.module)
	}
	return out
}
