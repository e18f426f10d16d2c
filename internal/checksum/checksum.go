// Package checksum writes and verifies the integrity manifest over the
// final release asset set. It is the terminal, externally published record
// of a release.
package checksum

import (
	"bufio"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"

	"github.com/release-tools/release-composer/internal/utils/logger"
)

const (
	// ManifestFileName is the emitted checksum file, consumable by
	// `sha256sum -c`.
	ManifestFileName = "checksums.txt"
	// VerifyScriptName is the companion verification script.
	VerifyScriptName = "verify-checksums.sh"
)

// Suffixes that never count as release assets.
var excludedSuffixes = []string{".meta", ".log"}

// Entry is one hashed asset.
type Entry struct {
	Name string
	Hash string
}

// Failure is one file that could not be hashed. It is recorded in the
// manifest as a comment and counted, but never aborts the run.
type Failure struct {
	Name   string
	Reason string
}

// Manifest is the ordered filename -> hash mapping plus the count of files
// that failed hashing.
type Manifest struct {
	Entries     []Entry
	Failures    []Failure
	GeneratedAt time.Time
	SourceDir   string
}

// Mismatch is one verification discrepancy.
type Mismatch struct {
	Name   string
	Want   string
	Got    string
	Reason string
}

// Generate scans dir non-recursively, excluding hidden files, excluded
// suffixes and the checksum outputs themselves, sorts the survivors by
// filename and hashes each one. Per-file failures degrade the result, they
// never abort it.
func Generate(dir string, hasher Hasher) (*Manifest, error) {
	log := logger.Logger()

	entries, err := os.ReadDir(dir)
	if err != nil {
		return nil, fmt.Errorf("failed to scan output directory %s: %w", dir, err)
	}

	var names []string
	for _, e := range entries {
		if e.IsDir() {
			continue
		}
		name := e.Name()
		if isExcluded(name) {
			continue
		}
		names = append(names, name)
	}
	sort.Strings(names)

	m := &Manifest{
		GeneratedAt: time.Now().UTC(),
		SourceDir:   dir,
	}
	for _, name := range names {
		hash, err := hasher.Sum(filepath.Join(dir, name))
		if err != nil {
			log.Warnf("cannot hash %s: %v", name, err)
			m.Failures = append(m.Failures, Failure{Name: name, Reason: err.Error()})
			continue
		}
		m.Entries = append(m.Entries, Entry{Name: name, Hash: hash})
	}

	return m, nil
}

func isExcluded(name string) bool {
	if strings.HasPrefix(name, ".") {
		return true
	}
	if name == ManifestFileName || name == VerifyScriptName {
		return true
	}
	for _, suffix := range excludedSuffixes {
		if strings.HasSuffix(name, suffix) {
			return true
		}
	}
	return false
}

// Write renders the manifest in sha256sum-compatible line format preceded
// by comment lines naming the generation time and source directory.
func (m *Manifest) Write(path string) error {
	var b strings.Builder
	fmt.Fprintf(&b, "# SHA-256 checksums generated at %s\n", m.GeneratedAt.Format(time.RFC3339))
	fmt.Fprintf(&b, "# Source directory: %s\n", m.SourceDir)
	for _, f := range m.Failures {
		fmt.Fprintf(&b, "# FAILED %s: %s\n", f.Name, f.Reason)
	}
	for _, e := range m.Entries {
		fmt.Fprintf(&b, "%s  %s\n", e.Hash, e.Name)
	}
	if err := os.WriteFile(path, []byte(b.String()), 0o644); err != nil {
		return fmt.Errorf("failed to write checksum manifest %s: %w", path, err)
	}
	return nil
}

// WriteVerifyScript emits the companion script next to the manifest,
// executable, so consumers can verify without this tool.
func WriteVerifyScript(dir string) (string, error) {
	script := `#!/bin/sh
# Verifies the release assets against ` + ManifestFileName + `.
set -e
cd "$(dirname "$0")"
if command -v sha256sum >/dev/null 2>&1; then
    grep -v '^#' ` + ManifestFileName + ` | sha256sum -c -
elif command -v shasum >/dev/null 2>&1; then
    grep -v '^#' ` + ManifestFileName + ` | shasum -a 256 -c -
else
    echo "no sha256sum or shasum available" >&2
    exit 1
fi
`
	path := filepath.Join(dir, VerifyScriptName)
	if err := os.WriteFile(path, []byte(script), 0o755); err != nil {
		return "", fmt.Errorf("failed to write verification script %s: %w", path, err)
	}
	return path, nil
}

// Parse reads a previously written manifest, skipping comment lines.
func Parse(path string) (*Manifest, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("failed to open checksum manifest %s: %w", path, err)
	}
	defer f.Close()

	m := &Manifest{SourceDir: filepath.Dir(path)}
	scanner := bufio.NewScanner(f)
	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}
		// "<hex-hash>  <filename>", two-space separator
		parts := strings.SplitN(line, "  ", 2)
		if len(parts) != 2 || len(parts[0]) != 64 {
			return nil, fmt.Errorf("malformed checksum line in %s: %q", path, line)
		}
		m.Entries = append(m.Entries, Entry{Hash: parts[0], Name: strings.TrimSpace(parts[1])})
	}
	if err := scanner.Err(); err != nil {
		return nil, fmt.Errorf("failed to read checksum manifest %s: %w", path, err)
	}
	return m, nil
}

// Verify re-hashes every entry of the manifest at path against the files
// in its directory and returns the mismatches.
func Verify(path string, hasher Hasher) ([]Mismatch, error) {
	m, err := Parse(path)
	if err != nil {
		return nil, err
	}

	var mismatches []Mismatch
	for _, e := range m.Entries {
		got, err := hasher.Sum(filepath.Join(m.SourceDir, e.Name))
		if err != nil {
			mismatches = append(mismatches, Mismatch{Name: e.Name, Want: e.Hash, Reason: err.Error()})
			continue
		}
		if got != e.Hash {
			mismatches = append(mismatches, Mismatch{Name: e.Name, Want: e.Hash, Got: got, Reason: "hash mismatch"})
		}
	}
	return mismatches, nil
}
