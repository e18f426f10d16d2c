// Package packaging turns one build artifact into its distributable
// outputs: a standalone binary copy, a compressed archive and a manifest
// recording exactly which optional outputs were produced.
package packaging

import (
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/google/uuid"

	"github.com/release-tools/release-composer/internal/builder"
	"github.com/release-tools/release-composer/internal/input"
	"github.com/release-tools/release-composer/internal/matrix"
	"github.com/release-tools/release-composer/internal/utils/archive"
	"github.com/release-tools/release-composer/internal/utils/file"
	"github.com/release-tools/release-composer/internal/utils/logger"
	"github.com/release-tools/release-composer/internal/utils/slice"
)

// Ordered candidate locations for the project license, first match wins.
var licenseCandidates = []string{
	"LICENSE",
	"LICENSE.md",
	"LICENSE.txt",
	"COPYING",
	"docs/LICENSE",
}

// Options selects which outputs one packaging run produces.
type Options struct {
	CreateArchive     bool
	CreateStandalone  bool
	IncludeReadme     bool
	IncludeLicense    bool
	ArchivePreference string // archive backend probe preference
	ProjectDir        string
	OutputDir         string
	TempDir           string
}

func DefaultOptions() Options {
	return Options{
		CreateArchive:     true,
		CreateStandalone:  true,
		IncludeReadme:     true,
		IncludeLicense:    true,
		ArchivePreference: archive.PreferAuto,
	}
}

// ManifestOptions mirrors the request so a reader can tell a disabled
// output apart from one that could not be produced.
type ManifestOptions struct {
	CreateStandalone bool `json:"create_standalone"`
	CreateArchive    bool `json:"create_archive"`
	IncludeReadme    bool `json:"include_readme"`
	IncludeLicense   bool `json:"include_license"`
}

// Manifest is the terminal JSON record for one package. Nullable fields
// stay null when the corresponding output was not produced; the options
// block says whether that was by request or by absence.
type Manifest struct {
	BinaryName     string          `json:"binary_name"`
	Version        string          `json:"version"`
	Platform       string          `json:"platform"`
	BinarySize     int64           `json:"binary_size"`
	BinaryFile     string          `json:"binary_file"`
	PackageName    string          `json:"package_name"`
	ArchivePath    *string         `json:"archive_path"`
	StandalonePath *string         `json:"standalone_path"`
	ReadmeFile     *string         `json:"readme_file"`
	LicenseFile    *string         `json:"license_file"`
	ArchiveExt     string          `json:"archive_ext"`
	BinaryExt      string          `json:"binary_ext"`
	CreatedAt      time.Time       `json:"created_at"`
	Options        ManifestOptions `json:"options"`
}

// Package is the result of one packaging run. Paths are empty when the
// output was not produced.
type Package struct {
	PackageName    string
	ArchivePath    string
	StandalonePath string
	ManifestPath   string
	Manifest       *Manifest
	Warnings       []string
}

// PackagingError is fatal for one row's packaging: archiver missing or the
// archive failed its integrity check.
type PackagingError struct {
	Platform string
	Reason   string
	Err      error
}

func (e *PackagingError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("packaging for %s failed: %s: %v", e.Platform, e.Reason, e.Err)
	}
	return fmt.Sprintf("packaging for %s failed: %s", e.Platform, e.Reason)
}

func (e *PackagingError) Unwrap() error { return e.Err }

// Run packages one artifact. On success the consumed artifact binary is
// removed from the output directory; its .meta sidecar stays behind.
func Run(artifact *builder.BuildArtifact, row matrix.PlatformSpec, version input.ValidatedString, opts Options) (*Package, error) {
	log := logger.Logger()

	pkgName := fmt.Sprintf("%s-%s-%s", artifact.BinaryName, version.Value(), row.PlatformID)
	pkg := &Package{PackageName: pkgName}

	stagingParent := filepath.Join(stagingRoot(opts), "stage-"+uuid.New().String()[:8])
	stagingDir := filepath.Join(stagingParent, pkgName)
	if err := os.MkdirAll(stagingDir, 0o755); err != nil {
		return nil, &PackagingError{Platform: row.PlatformID, Reason: "cannot create staging directory " + stagingDir, Err: err}
	}
	defer os.RemoveAll(stagingParent)

	stagedBinary := filepath.Join(stagingDir, artifact.BinaryName+row.BinaryExt)
	if err := file.Copy(artifact.Path, stagedBinary); err != nil {
		return nil, &PackagingError{Platform: row.PlatformID, Reason: "cannot stage binary", Err: err}
	}

	manifest := &Manifest{
		BinaryName:  artifact.BinaryName,
		Version:     version.Value(),
		Platform:    row.PlatformID,
		BinarySize:  artifact.SizeBytes,
		BinaryFile:  filepath.Base(artifact.Path),
		PackageName: pkgName,
		ArchiveExt:  row.ArchiveExt,
		BinaryExt:   row.BinaryExt,
		CreatedAt:   time.Now().UTC(),
		Options: ManifestOptions{
			CreateStandalone: opts.CreateStandalone,
			CreateArchive:    opts.CreateArchive,
			IncludeReadme:    opts.IncludeReadme,
			IncludeLicense:   opts.IncludeLicense,
		},
	}

	if opts.IncludeReadme {
		name, err := writeReadme(stagingDir, artifact, version.Value(), row.PlatformID)
		if err != nil {
			return nil, &PackagingError{Platform: row.PlatformID, Reason: "cannot write README", Err: err}
		}
		manifest.ReadmeFile = &name
	}

	if opts.IncludeLicense {
		name, found := copyLicense(opts.ProjectDir, stagingDir)
		if found {
			manifest.LicenseFile = &name
		} else {
			warning := fmt.Sprintf("no license file found under %s (searched %v)", opts.ProjectDir, licenseCandidates)
			log.Warnf(warning)
			pkg.Warnings = append(pkg.Warnings, warning)
		}
	}

	if opts.CreateArchive {
		archivePath, err := compressStaging(stagingDir, pkgName, row, opts)
		if err != nil {
			return nil, err
		}
		pkg.ArchivePath = archivePath
		name := filepath.Base(archivePath)
		manifest.ArchivePath = &name
	}

	if opts.CreateStandalone {
		standalone := filepath.Join(opts.OutputDir, pkgName+row.BinaryExt)
		if err := file.Copy(artifact.Path, standalone); err != nil {
			return nil, &PackagingError{Platform: row.PlatformID, Reason: "cannot create standalone copy", Err: err}
		}
		pkg.StandalonePath = standalone
		name := filepath.Base(standalone)
		manifest.StandalonePath = &name
	}

	manifestPath := filepath.Join(opts.OutputDir, pkgName+".meta")
	if err := file.WriteToJSON(manifestPath, manifest, 2); err != nil {
		return nil, &PackagingError{Platform: row.PlatformID, Reason: "cannot write package manifest", Err: err}
	}
	pkg.ManifestPath = manifestPath
	pkg.Manifest = manifest

	// BuildArtifact -> Package is one-way: the staged build binary has
	// served its purpose once the requested outputs exist.
	if err := os.Remove(artifact.Path); err != nil {
		log.Warnf("cannot remove consumed artifact %s: %v", artifact.Path, err)
	}

	return pkg, nil
}

func stagingRoot(opts Options) string {
	if opts.TempDir != "" {
		return opts.TempDir
	}
	return os.TempDir()
}

func writeReadme(stagingDir string, artifact *builder.BuildArtifact, version, platform string) (string, error) {
	content := fmt.Sprintf(`# %s

Release %s for %s.

- Binary: %s (%d bytes)
- Target: %s
- Built:  %s

Unpack and place the binary somewhere on your PATH.
`,
		artifact.BinaryName, version, platform,
		artifact.BinaryName, artifact.SizeBytes,
		artifact.Target,
		artifact.BuiltAt.Format(time.RFC3339))

	name := "README.md"
	if err := os.WriteFile(filepath.Join(stagingDir, name), []byte(content), 0o644); err != nil {
		return "", err
	}
	return name, nil
}

func copyLicense(projectDir, stagingDir string) (string, bool) {
	for _, candidate := range licenseCandidates {
		src := filepath.Join(projectDir, candidate)
		if info, err := os.Stat(src); err == nil && info.Mode().IsRegular() {
			dst := filepath.Join(stagingDir, "LICENSE")
			if err := file.Copy(src, dst); err != nil {
				continue
			}
			return "LICENSE", true
		}
	}
	return "", false
}

func compressStaging(stagingDir, pkgName string, row matrix.PlatformSpec, opts Options) (string, error) {
	backend, err := archive.ForFormat(archive.Format(row.ArchiveExt), opts.ArchivePreference)
	if err != nil {
		return "", &PackagingError{Platform: row.PlatformID, Reason: "no archiver available", Err: err}
	}

	archivePath := filepath.Join(opts.OutputDir, pkgName+"."+row.ArchiveExt)
	if err := backend.Compress(stagingDir, archivePath); err != nil {
		return "", &PackagingError{Platform: row.PlatformID, Reason: "compression failed", Err: err}
	}

	// The archive must readably round-trip before we declare success
	entries, err := backend.List(archivePath)
	if err != nil {
		return "", &PackagingError{Platform: row.PlatformID, Reason: "archive integrity check failed", Err: err}
	}
	if slice.ContainsSubstring(entries, pkgName) == "" {
		return "", &PackagingError{
			Platform: row.PlatformID,
			Reason:   fmt.Sprintf("archive %s does not contain expected package directory %s", archivePath, pkgName),
		}
	}

	return archivePath, nil
}
