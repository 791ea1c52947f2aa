// Package strategy defines the bundle layout and metadata structures shared by
// the packager, the runtime container, and the deployment builder.
package strategy

import (
	"sort"
	"strings"
	"time"
)

// Fixed filenames inside a bundle directory.
const (
	// SourceFile holds the strategy's JavaScript module.
	SourceFile = "strategy.js"
	// MetadataFile holds the structured metadata record.
	MetadataFile = "metadata.json"
	// ManifestFile holds the plain-text dependency manifest, one entry per line.
	ManifestFile = "requirements.txt"
)

// SourcePlaceholder is stored when no source text could be captured.
const SourcePlaceholder = "// source not available"

// Metadata captures descriptive information persisted with a packaged strategy.
type Metadata struct {
	ID           string         `json:"id,omitempty"`
	Name         string         `json:"name"`
	Description  string         `json:"description,omitempty"`
	Version      string         `json:"version"`
	CreatedAt    time.Time      `json:"created_at"`
	FunctionName string         `json:"function_name"`
	SourceCode   string         `json:"source_code"`
	Requirements []string       `json:"requirements"`
	Custom       map[string]any `json:"custom_metadata"`
}

// CloneMetadata returns a copy of the metadata with cloned slices and maps.
func CloneMetadata(meta Metadata) Metadata {
	clone := meta
	clone.Requirements = append([]string(nil), meta.Requirements...)
	if meta.Custom != nil {
		clone.Custom = make(map[string]any, len(meta.Custom))
		for k, v := range meta.Custom {
			clone.Custom[k] = v
		}
	}
	return clone
}

// NormalizeManifest deduplicates, trims, and lexicographically sorts manifest
// entries. Empty entries are dropped.
func NormalizeManifest(entries []string) []string {
	seen := make(map[string]struct{}, len(entries))
	out := make([]string, 0, len(entries))
	for _, entry := range entries {
		trimmed := strings.TrimSpace(entry)
		if trimmed == "" {
			continue
		}
		if _, dup := seen[trimmed]; dup {
			continue
		}
		seen[trimmed] = struct{}{}
		out = append(out, trimmed)
	}
	sort.Strings(out)
	return out
}

// ValidateName reports whether a strategy name is usable as a bundle directory
// name: non-empty and free of path separators or traversal sequences.
func ValidateName(name string) error {
	trimmed := strings.TrimSpace(name)
	if trimmed == "" {
		return errNameRequired
	}
	if strings.ContainsAny(trimmed, "/\\") || strings.Contains(trimmed, "..") {
		return errNameInvalid
	}
	return nil
}
