// Package matrix resolves the set of platform build targets for one
// release event: built-in defaults or a custom include list, minus
// exclusions, with extensions and cross-compile bindings inferred.
package matrix

import (
	"encoding/json"
	"fmt"
	"regexp"
	"strings"

	"github.com/release-tools/release-composer/internal/crosscompile"
	"github.com/release-tools/release-composer/internal/input"
	"github.com/release-tools/release-composer/internal/utils/slice"
	"github.com/release-tools/release-composer/internal/validate"
)

// PlatformSpec is one row of the build matrix.
type PlatformSpec struct {
	PlatformID      string            `json:"platform_id"`
	Target          string            `json:"target"`
	RunnerOS        string            `json:"runner_os"`
	BinaryExt       string            `json:"binary_ext"`
	ArchiveExt      string            `json:"archive_ext"`
	CrossCompileEnv map[string]string `json:"cross_compile_env,omitempty"`
}

// IsWindows reports whether the row targets Windows, which switches the
// binary extension to .exe and the archive format to zip.
func (p PlatformSpec) IsWindows() bool {
	return strings.Contains(p.Target, "windows")
}

// BuildMatrix is an ordered, non-empty sequence of rows with unique
// platform ids.
type BuildMatrix []PlatformSpec

// ResolutionError is fatal to the whole release: the matrix is empty or
// malformed after merging and excluding.
type ResolutionError struct {
	Reason string
}

func (e *ResolutionError) Error() string {
	return "matrix resolution failed: " + e.Reason
}

// Target triples are plainer than platform ids: no reserved-name list,
// and a longer cap since real triples run well past 30 characters.
const maxTargetLen = 80

var targetRe = regexp.MustCompile(`^[A-Za-z0-9_-]+$`)

// Supported CI runner images for custom matrix entries.
var supportedRunners = []string{
	"ubuntu-latest", "ubuntu-22.04", "ubuntu-24.04",
	"macos-latest", "macos-13", "macos-14", "macos-15",
	"windows-latest", "windows-2022", "windows-2025",
}

// defaultRows returns the built-in matrix. Order matters: output order is
// always input order.
func defaultRows() []PlatformSpec {
	return []PlatformSpec{
		{PlatformID: "linux-x86_64", Target: "x86_64-unknown-linux-gnu", RunnerOS: "ubuntu-latest"},
		{PlatformID: "linux-arm64", Target: "aarch64-unknown-linux-gnu", RunnerOS: "ubuntu-latest"},
		{PlatformID: "macos-arm64", Target: "aarch64-apple-darwin", RunnerOS: "macos-latest"},
	}
}

// includeEntry is the JSON shape of one custom matrix row.
type includeEntry struct {
	Target     string `json:"target"`
	RunnerOS   string `json:"runner_os"`
	PlatformID string `json:"platform_id"`
	BinaryExt  string `json:"binary_ext"`
	ArchiveExt string `json:"archive_ext"`
}

// Resolve computes the final matrix. customIncludeJSON, when non-empty, is
// a JSON array replacing the defaults; excludeCSV is a comma-separated
// list of platform ids to drop. Warnings (excluded id not present) are
// returned separately and never fail the operation.
func Resolve(customIncludeJSON string, excludeCSV string) (BuildMatrix, []string, error) {
	var warnings []string

	rows, err := baseRows(customIncludeJSON)
	if err != nil {
		return nil, nil, err
	}

	for _, raw := range slice.SplitCSV(excludeCSV) {
		excluded, err := input.Platform(raw)
		if err != nil {
			return nil, nil, &ResolutionError{Reason: fmt.Sprintf("invalid exclude entry: %v", err)}
		}
		found := false
		kept := rows[:0]
		for _, row := range rows {
			if row.PlatformID == excluded.Value() {
				found = true
				continue
			}
			kept = append(kept, row)
		}
		rows = kept
		if !found {
			warnings = append(warnings, fmt.Sprintf("excluded platform %q not present in matrix", excluded.Value()))
		}
	}

	if len(rows) == 0 {
		return nil, warnings, &ResolutionError{Reason: "no platforms remain after exclusions"}
	}

	for i := range rows {
		inferExtensions(&rows[i])
		if binding, ok := crosscompile.Lookup(rows[i].Target); ok {
			rows[i].CrossCompileEnv = binding.Env
		}
	}

	m := BuildMatrix(rows)
	if err := m.Validate(); err != nil {
		return nil, warnings, err
	}
	return m, warnings, nil
}

func baseRows(customIncludeJSON string) ([]PlatformSpec, error) {
	if strings.TrimSpace(customIncludeJSON) == "" {
		return defaultRows(), nil
	}

	data := []byte(customIncludeJSON)
	if err := validate.ValidateMatrixJSON(data); err != nil {
		return nil, &ResolutionError{Reason: err.Error()}
	}

	var entries []includeEntry
	if err := json.Unmarshal(data, &entries); err != nil {
		return nil, &ResolutionError{Reason: fmt.Sprintf("invalid custom matrix JSON: %v", err)}
	}
	if len(entries) == 0 {
		return nil, &ResolutionError{Reason: "custom matrix is empty"}
	}

	rows := make([]PlatformSpec, 0, len(entries))
	for i, e := range entries {
		// Missing any required field rejects the whole operation; there
		// are no partial matrices.
		if e.Target == "" || e.RunnerOS == "" || e.PlatformID == "" {
			return nil, &ResolutionError{
				Reason: fmt.Sprintf("custom matrix entry %d is missing target, runner_os or platform_id", i),
			}
		}
		platform, err := input.Platform(e.PlatformID)
		if err != nil {
			return nil, &ResolutionError{Reason: fmt.Sprintf("custom matrix entry %d: %v", i, err)}
		}
		if len(e.Target) > maxTargetLen || !targetRe.MatchString(e.Target) {
			return nil, &ResolutionError{Reason: fmt.Sprintf("custom matrix entry %d: invalid target %q", i, e.Target)}
		}
		if !slice.Contains(supportedRunners, e.RunnerOS) {
			return nil, &ResolutionError{
				Reason: fmt.Sprintf("custom matrix entry %d: unsupported runner_os %q", i, e.RunnerOS),
			}
		}
		rows = append(rows, PlatformSpec{
			PlatformID: platform.Value(),
			Target:     e.Target,
			RunnerOS:   e.RunnerOS,
			BinaryExt:  e.BinaryExt,
			ArchiveExt: e.ArchiveExt,
		})
	}
	return rows, nil
}

// inferExtensions fills binary_ext/archive_ext for rows missing them using
// the "windows" substring rule on the target triple.
func inferExtensions(row *PlatformSpec) {
	if row.IsWindows() {
		if row.BinaryExt == "" {
			row.BinaryExt = ".exe"
		}
		if row.ArchiveExt == "" {
			row.ArchiveExt = "zip"
		}
	} else if row.ArchiveExt == "" {
		row.ArchiveExt = "tar.gz"
	}
}

// Validate enforces the matrix invariant: non-empty, unique platform ids,
// all required fields populated post-inference.
func (m BuildMatrix) Validate() error {
	if len(m) == 0 {
		return &ResolutionError{Reason: "matrix is empty"}
	}
	seen := make(map[string]bool, len(m))
	for i, row := range m {
		if row.PlatformID == "" || row.Target == "" || row.RunnerOS == "" || row.ArchiveExt == "" {
			return &ResolutionError{Reason: fmt.Sprintf("row %d has unpopulated required fields", i)}
		}
		if seen[row.PlatformID] {
			return &ResolutionError{Reason: fmt.Sprintf("duplicate platform id %q", row.PlatformID)}
		}
		seen[row.PlatformID] = true
	}
	return nil
}

// PlatformIDs returns the row keys in matrix order.
func (m BuildMatrix) PlatformIDs() []string {
	ids := make([]string, len(m))
	for i, row := range m {
		ids[i] = row.PlatformID
	}
	return ids
}

// ArchiveExtensions returns the distinct archive extensions across the
// matrix, in first-seen order.
func (m BuildMatrix) ArchiveExtensions() []string {
	seen := make(map[string]bool, 2)
	var exts []string
	for _, row := range m {
		if !seen[row.ArchiveExt] {
			seen[row.ArchiveExt] = true
			exts = append(exts, row.ArchiveExt)
		}
	}
	return exts
}

// ToJSON renders the matrix for export to a CI fan-out step.
func (m BuildMatrix) ToJSON() ([]byte, error) {
	return json.MarshalIndent(m, "", "  ")
}
