package packaging

import (
	"encoding/json"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/release-tools/release-composer/internal/builder"
	"github.com/release-tools/release-composer/internal/input"
	"github.com/release-tools/release-composer/internal/matrix"
	"github.com/release-tools/release-composer/internal/utils/archive"
)

func testArtifact(t *testing.T, outputDir string) *builder.BuildArtifact {
	t.Helper()
	path := filepath.Join(outputDir, "demo-linux-x86_64")
	if err := os.WriteFile(path, []byte("compiled bytes"), 0o755); err != nil {
		t.Fatal(err)
	}
	return &builder.BuildArtifact{
		BinaryName: "demo",
		PlatformID: "linux-x86_64",
		Target:     "x86_64-unknown-linux-gnu",
		Path:       path,
		SizeBytes:  14,
		BuiltAt:    time.Now().UTC(),
	}
}

func testRow() matrix.PlatformSpec {
	return matrix.PlatformSpec{
		PlatformID: "linux-x86_64",
		Target:     "x86_64-unknown-linux-gnu",
		RunnerOS:   "ubuntu-latest",
		ArchiveExt: "tar.gz",
	}
}

func testOptions(t *testing.T, project, out string) Options {
	t.Helper()
	opts := DefaultOptions()
	opts.ProjectDir = project
	opts.OutputDir = out
	opts.TempDir = t.TempDir()
	opts.ArchivePreference = archive.PreferBuiltin
	return opts
}

func mustVersion(t *testing.T, v string) input.ValidatedString {
	t.Helper()
	vs, err := input.Version(v)
	if err != nil {
		t.Fatal(err)
	}
	return vs
}

func TestRun_AllOutputs(t *testing.T) {
	project := t.TempDir()
	out := t.TempDir()
	if err := os.WriteFile(filepath.Join(project, "LICENSE"), []byte("MIT"), 0o644); err != nil {
		t.Fatal(err)
	}

	artifact := testArtifact(t, out)
	pkg, err := Run(artifact, testRow(), mustVersion(t, "v1.2.3"), testOptions(t, project, out))
	if err != nil {
		t.Fatal(err)
	}

	if pkg.PackageName != "demo-v1.2.3-linux-x86_64" {
		t.Fatalf("unexpected package name %q", pkg.PackageName)
	}
	if filepath.Base(pkg.ArchivePath) != "demo-v1.2.3-linux-x86_64.tar.gz" {
		t.Fatalf("unexpected archive name %q", pkg.ArchivePath)
	}
	if filepath.Base(pkg.StandalonePath) != "demo-v1.2.3-linux-x86_64" {
		t.Fatalf("unexpected standalone name %q", pkg.StandalonePath)
	}
	for _, p := range []string{pkg.ArchivePath, pkg.StandalonePath, pkg.ManifestPath} {
		if _, err := os.Stat(p); err != nil {
			t.Fatalf("expected output missing: %v", err)
		}
	}
	if len(pkg.Warnings) != 0 {
		t.Fatalf("unexpected warnings: %v", pkg.Warnings)
	}

	// consumed artifact is removed, archive round-trips
	if _, err := os.Stat(artifact.Path); !os.IsNotExist(err) {
		t.Fatal("consumed artifact should be removed after packaging")
	}
	backend, err := archive.ForFormat(archive.TarGz, archive.PreferBuiltin)
	if err != nil {
		t.Fatal(err)
	}
	entries, err := backend.List(pkg.ArchivePath)
	if err != nil {
		t.Fatal(err)
	}
	var hasBinary, hasReadme, hasLicense bool
	for _, e := range entries {
		switch {
		case strings.HasSuffix(e, "/demo"):
			hasBinary = true
		case strings.HasSuffix(e, "/README.md"):
			hasReadme = true
		case strings.HasSuffix(e, "/LICENSE"):
			hasLicense = true
		}
	}
	if !hasBinary || !hasReadme || !hasLicense {
		t.Fatalf("archive entries incomplete: %v", entries)
	}
}

func TestRun_ManifestDistinguishesDisabledFromMissing(t *testing.T) {
	project := t.TempDir() // no LICENSE present
	out := t.TempDir()

	opts := testOptions(t, project, out)
	opts.CreateStandalone = false // disabled by option

	artifact := testArtifact(t, out)
	pkg, err := Run(artifact, testRow(), mustVersion(t, "v1.2.3"), opts)
	if err != nil {
		t.Fatal(err)
	}

	if len(pkg.Warnings) != 1 || !strings.Contains(pkg.Warnings[0], "license") {
		t.Fatalf("missing license must warn, got %v", pkg.Warnings)
	}

	data, err := os.ReadFile(pkg.ManifestPath)
	if err != nil {
		t.Fatal(err)
	}
	var m map[string]interface{}
	if err := json.Unmarshal(data, &m); err != nil {
		t.Fatal(err)
	}

	if m["standalone_path"] != nil {
		t.Fatal("disabled standalone must serialize as null")
	}
	if m["license_file"] != nil {
		t.Fatal("missing license must serialize as null")
	}
	options := m["options"].(map[string]interface{})
	if options["create_standalone"] != false {
		t.Fatal("options must record that standalone was disabled")
	}
	if options["include_license"] != true {
		t.Fatal("options must record that license was requested")
	}
	if m["archive_path"] == nil {
		t.Fatal("produced archive must be recorded")
	}
}

func TestRun_MissingLicenseIsWarningNotError(t *testing.T) {
	project := t.TempDir()
	out := t.TempDir()

	artifact := testArtifact(t, out)
	pkg, err := Run(artifact, testRow(), mustVersion(t, "v1.2.3"), testOptions(t, project, out))
	if err != nil {
		t.Fatalf("missing license must not fail packaging: %v", err)
	}
	if len(pkg.Warnings) == 0 {
		t.Fatal("expected a warning for missing license")
	}
}

func TestRun_StagingDirRemoved(t *testing.T) {
	project := t.TempDir()
	out := t.TempDir()
	opts := testOptions(t, project, out)

	artifact := testArtifact(t, out)
	if _, err := Run(artifact, testRow(), mustVersion(t, "v1.2.3"), opts); err != nil {
		t.Fatal(err)
	}

	entries, err := os.ReadDir(opts.TempDir)
	if err != nil {
		t.Fatal(err)
	}
	if len(entries) != 0 {
		t.Fatalf("staging directories left behind: %v", entries)
	}
}

func TestRun_ZipForWindowsRow(t *testing.T) {
	project := t.TempDir()
	out := t.TempDir()

	path := filepath.Join(out, "demo-windows-x86_64.exe")
	if err := os.WriteFile(path, []byte("pe bytes"), 0o644); err != nil {
		t.Fatal(err)
	}
	artifact := &builder.BuildArtifact{
		BinaryName: "demo",
		PlatformID: "windows-x86_64",
		Target:     "x86_64-pc-windows-msvc",
		Path:       path,
		SizeBytes:  8,
		BuiltAt:    time.Now().UTC(),
	}
	row := matrix.PlatformSpec{
		PlatformID: "windows-x86_64",
		Target:     "x86_64-pc-windows-msvc",
		RunnerOS:   "windows-latest",
		BinaryExt:  ".exe",
		ArchiveExt: "zip",
	}

	pkg, err := Run(artifact, row, mustVersion(t, "v1.2.3"), testOptions(t, project, out))
	if err != nil {
		t.Fatal(err)
	}
	if filepath.Base(pkg.ArchivePath) != "demo-v1.2.3-windows-x86_64.zip" {
		t.Fatalf("unexpected archive name %q", pkg.ArchivePath)
	}
	if filepath.Base(pkg.StandalonePath) != "demo-v1.2.3-windows-x86_64.exe" {
		t.Fatalf("unexpected standalone name %q", pkg.StandalonePath)
	}
}
