package checksum

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
)

func writeAsset(t *testing.T, dir, name, content string) {
	t.Helper()
	if err := os.WriteFile(filepath.Join(dir, name), []byte(content), 0o644); err != nil {
		t.Fatal(err)
	}
}

func TestGenerate_SortedAndFiltered(t *testing.T) {
	dir := t.TempDir()
	writeAsset(t, dir, "zeta.tar.gz", "zzz")
	writeAsset(t, dir, "alpha.tar.gz", "aaa")
	writeAsset(t, dir, "middle", "mmm")
	writeAsset(t, dir, "skip.meta", "metadata")
	writeAsset(t, dir, "build.log", "log text")
	writeAsset(t, dir, ".hidden", "hidden")
	writeAsset(t, dir, ManifestFileName, "old manifest")
	writeAsset(t, dir, VerifyScriptName, "old script")
	if err := os.MkdirAll(filepath.Join(dir, "subdir"), 0o755); err != nil {
		t.Fatal(err)
	}

	hasher, err := ProbeHasher(PreferBuiltin)
	if err != nil {
		t.Fatal(err)
	}
	m, err := Generate(dir, hasher)
	if err != nil {
		t.Fatal(err)
	}

	want := []string{"alpha.tar.gz", "middle", "zeta.tar.gz"}
	if len(m.Entries) != len(want) {
		t.Fatalf("expected %d entries, got %d: %+v", len(want), len(m.Entries), m.Entries)
	}
	for i, e := range m.Entries {
		if e.Name != want[i] {
			t.Fatalf("entry %d: got %q want %q (must be sorted by filename)", i, e.Name, want[i])
		}
		if len(e.Hash) != 64 {
			t.Fatalf("entry %q has malformed hash %q", e.Name, e.Hash)
		}
	}
	if len(m.Failures) != 0 {
		t.Fatalf("unexpected failures: %v", m.Failures)
	}
}

func TestWriteAndParse_RoundTrip(t *testing.T) {
	dir := t.TempDir()
	writeAsset(t, dir, "a.tar.gz", "one")
	writeAsset(t, dir, "b.tar.gz", "two")

	hasher, _ := ProbeHasher(PreferBuiltin)
	m, err := Generate(dir, hasher)
	if err != nil {
		t.Fatal(err)
	}

	path := filepath.Join(dir, ManifestFileName)
	if err := m.Write(path); err != nil {
		t.Fatal(err)
	}

	data, err := os.ReadFile(path)
	if err != nil {
		t.Fatal(err)
	}
	text := string(data)
	if !strings.HasPrefix(text, "#") {
		t.Fatal("manifest must start with comment header lines")
	}
	var dataLines int
	for _, line := range strings.Split(text, "\n") {
		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}
		dataLines++
		if !strings.Contains(line, "  ") {
			t.Fatalf("data line must use two-space separator: %q", line)
		}
	}
	if dataLines != 2 {
		t.Fatalf("expected 2 data lines, got %d", dataLines)
	}

	parsed, err := Parse(path)
	if err != nil {
		t.Fatal(err)
	}
	if len(parsed.Entries) != len(m.Entries) {
		t.Fatalf("parse round-trip lost entries: %d vs %d", len(parsed.Entries), len(m.Entries))
	}
	for i := range parsed.Entries {
		if parsed.Entries[i] != m.Entries[i] {
			t.Fatalf("entry %d differs after round-trip", i)
		}
	}
}

func TestVerify_RoundTripAndMutation(t *testing.T) {
	dir := t.TempDir()
	writeAsset(t, dir, "a.tar.gz", "one")
	writeAsset(t, dir, "b.tar.gz", "two")

	hasher, _ := ProbeHasher(PreferBuiltin)
	m, err := Generate(dir, hasher)
	if err != nil {
		t.Fatal(err)
	}
	path := filepath.Join(dir, ManifestFileName)
	if err := m.Write(path); err != nil {
		t.Fatal(err)
	}

	mismatches, err := Verify(path, hasher)
	if err != nil {
		t.Fatal(err)
	}
	if len(mismatches) != 0 {
		t.Fatalf("fresh manifest must verify clean, got %v", mismatches)
	}

	// mutate exactly one file
	writeAsset(t, dir, "b.tar.gz", "tampered")
	mismatches, err = Verify(path, hasher)
	if err != nil {
		t.Fatal(err)
	}
	if len(mismatches) != 1 {
		t.Fatalf("expected exactly one mismatch, got %d", len(mismatches))
	}
	if mismatches[0].Name != "b.tar.gz" {
		t.Fatalf("wrong file flagged: %q", mismatches[0].Name)
	}
}

func TestGenerate_PartialFailureDoesNotAbort(t *testing.T) {
	dir := t.TempDir()
	writeAsset(t, dir, "good.tar.gz", "fine")
	writeAsset(t, dir, "unreadable.tar.gz", "secret")
	if err := os.Chmod(filepath.Join(dir, "unreadable.tar.gz"), 0o000); err != nil {
		t.Fatal(err)
	}
	if os.Getuid() == 0 {
		t.Skip("root can read anything; permission failure not reproducible")
	}
	defer os.Chmod(filepath.Join(dir, "unreadable.tar.gz"), 0o644)

	hasher, _ := ProbeHasher(PreferBuiltin)
	m, err := Generate(dir, hasher)
	if err != nil {
		t.Fatalf("partial failure must not abort generation: %v", err)
	}
	if len(m.Entries) != 1 || m.Entries[0].Name != "good.tar.gz" {
		t.Fatalf("remaining files must still be processed: %+v", m.Entries)
	}
	if len(m.Failures) != 1 || m.Failures[0].Name != "unreadable.tar.gz" {
		t.Fatalf("failure must be recorded: %+v", m.Failures)
	}

	// failure surfaces as a comment line in the written manifest
	path := filepath.Join(dir, ManifestFileName)
	if err := m.Write(path); err != nil {
		t.Fatal(err)
	}
	data, _ := os.ReadFile(path)
	if !strings.Contains(string(data), "# FAILED unreadable.tar.gz") {
		t.Fatal("failure comment line missing from manifest")
	}
}

func TestWriteVerifyScript(t *testing.T) {
	dir := t.TempDir()
	path, err := WriteVerifyScript(dir)
	if err != nil {
		t.Fatal(err)
	}
	info, err := os.Stat(path)
	if err != nil {
		t.Fatal(err)
	}
	if info.Mode().Perm()&0o111 == 0 {
		t.Fatal("verification script must be executable")
	}
	data, _ := os.ReadFile(path)
	if !strings.Contains(string(data), ManifestFileName) {
		t.Fatal("script must reference the manifest file")
	}
}

func TestProbeHasher(t *testing.T) {
	h, err := ProbeHasher(PreferBuiltin)
	if err != nil {
		t.Fatal(err)
	}
	dir := t.TempDir()
	writeAsset(t, dir, "f", "hello")
	sum, err := h.Sum(filepath.Join(dir, "f"))
	if err != nil {
		t.Fatal(err)
	}
	// sha256("hello")
	if sum != "2cf24dba5fb0a30e26e83b2ac5b9e29e1b161e5c1fa7425e73043362938b9824" {
		t.Fatalf("wrong digest: %s", sum)
	}

	if _, err := ProbeHasher("sideways"); err == nil {
		t.Fatal("unknown preference must be rejected")
	}
}

func TestToolHasher_PathWithSpaces(t *testing.T) {
	h, err := ProbeHasher(PreferTool)
	if err != nil {
		t.Skip("no SHA-256 tool on host")
	}
	dir := filepath.Join(t.TempDir(), "release assets")
	if err := os.MkdirAll(dir, 0o755); err != nil {
		t.Fatal(err)
	}
	writeAsset(t, dir, "demo v1.tar.gz", "hello")

	sum, err := h.Sum(filepath.Join(dir, "demo v1.tar.gz"))
	if err != nil {
		t.Fatalf("Sum on spaced path failed: %v", err)
	}
	if sum != "2cf24dba5fb0a30e26e83b2ac5b9e29e1b161e5c1fa7425e73043362938b9824" {
		t.Fatalf("wrong digest: %s", sum)
	}
}
