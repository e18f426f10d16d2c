// Package builder drives one compiler invocation per matrix row and
// stages the produced binary into the shared output directory.
package builder

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/release-tools/release-composer/internal/input"
	"github.com/release-tools/release-composer/internal/matrix"
	"github.com/release-tools/release-composer/internal/utils/file"
	"github.com/release-tools/release-composer/internal/utils/logger"
	"github.com/release-tools/release-composer/internal/utils/shell"
)

// BuildArtifact records one successfully built binary. It is consumed by
// the packager; the staged file may be deleted after packaging.
type BuildArtifact struct {
	BinaryName string    `json:"binary_name"`
	PlatformID string    `json:"platform_id"`
	Target     string    `json:"target"`
	Path       string    `json:"path"`
	SizeBytes  int64     `json:"size_bytes"`
	BuiltAt    time.Time `json:"built_at"`
	Toolchain  string    `json:"toolchain_version"`
}

// BuildError is fatal for one matrix row only: a toolchain-add or compile
// failure never aborts sibling rows.
type BuildError struct {
	Target string
	Stage  string // "target-add" or "compile"
	Output string
	Err    error
}

func (e *BuildError) Error() string {
	return fmt.Sprintf("build for %s failed during %s: %v", e.Target, e.Stage, e.Err)
}

func (e *BuildError) Unwrap() error { return e.Err }

// ArtifactNotFoundError reports a compile that exited cleanly but left no
// binary at either expected location.
type ArtifactNotFoundError struct {
	Target   string
	Searched []string
}

func (e *ArtifactNotFoundError) Error() string {
	return fmt.Sprintf("no artifact for %s; searched: %s", e.Target, strings.Join(e.Searched, ", "))
}

// Options carries the per-release settings shared by every lane.
type Options struct {
	ProjectDir string
	OutputDir  string
	Toolchain  input.ValidatedString
	ExtraEnv   []string // cross-compile bindings for this row
}

// Build ensures the target toolchain component is present, compiles the
// binary for one matrix row and stages the result as
// <binary>-<platform_id><binary_ext> in the output directory with a .meta
// sidecar. All inputs that end up on a command line are ValidatedStrings.
func Build(binary input.ValidatedString, row matrix.PlatformSpec, toolArgs input.ValidatedString, opts Options) (*BuildArtifact, error) {
	log := logger.Logger()

	if err := ensureTarget(row.Target, opts.Toolchain); err != nil {
		return nil, err
	}

	if err := compile(binary, row, toolArgs, opts); err != nil {
		return nil, err
	}

	located, searched, err := locateArtifact(opts.ProjectDir, row.Target, binary.Value(), row.BinaryExt)
	if err != nil {
		return nil, &ArtifactNotFoundError{Target: row.Target, Searched: searched}
	}
	log.Debugf("located artifact for %s at %s", row.PlatformID, located)

	return stage(located, binary.Value(), row, opts)
}

// ensureTarget installs the compilation target component. `rustup target
// add` is a no-op when the target is already installed.
func ensureTarget(target string, toolchain input.ValidatedString) error {
	cmdStr := "rustup target add " + target
	if tc := toolchain.Value(); tc != "" {
		cmdStr = fmt.Sprintf("rustup target add --toolchain %s %s", tc, target)
	}
	out, err := shell.ExecCmd(cmdStr, false, nil)
	if err != nil {
		return &BuildError{Target: target, Stage: "target-add", Output: out, Err: err}
	}
	return nil
}

func compile(binary input.ValidatedString, row matrix.PlatformSpec, toolArgs input.ValidatedString, opts Options) error {
	cargo := "cargo"
	if tc := opts.Toolchain.Value(); tc != "" {
		cargo = "cargo +" + tc
	}
	cmdStr := fmt.Sprintf("%s build --release --target %s --bin %s", cargo, row.Target, binary.Value())
	if args := toolArgs.Value(); args != "" {
		cmdStr += " " + args
	}

	// compiles can run for minutes; stream the output instead of buffering
	out, err := shell.ExecCmdWithStream(cmdStr, opts.ProjectDir, opts.ExtraEnv)
	if err != nil {
		return &BuildError{Target: row.Target, Stage: "compile", Output: out, Err: err}
	}
	return nil
}

// locateArtifact tries the release path first, then the debug fallback.
func locateArtifact(projectDir, target, binName, binaryExt string) (string, []string, error) {
	candidates := []string{
		filepath.Join(projectDir, "target", target, "release", binName+binaryExt),
		filepath.Join(projectDir, "target", target, "debug", binName+binaryExt),
	}
	for _, c := range candidates {
		if info, err := os.Stat(c); err == nil && info.Mode().IsRegular() {
			return c, candidates, nil
		}
	}
	return "", candidates, fmt.Errorf("artifact not found")
}

// stage copies (never moves) the located binary into the output directory,
// sets the executable bit for non-Windows targets and writes the metadata
// sidecar.
func stage(located, binName string, row matrix.PlatformSpec, opts Options) (*BuildArtifact, error) {
	if err := os.MkdirAll(opts.OutputDir, 0o755); err != nil {
		return nil, fmt.Errorf("failed to create output directory %s: %w", opts.OutputDir, err)
	}

	staged := filepath.Join(opts.OutputDir, binName+"-"+row.PlatformID+row.BinaryExt)
	if err := file.Copy(located, staged); err != nil {
		return nil, fmt.Errorf("failed to stage artifact: %w", err)
	}

	// Copying does not guarantee the executable bit
	if !row.IsWindows() {
		if err := os.Chmod(staged, 0o755); err != nil {
			return nil, fmt.Errorf("failed to set executable bit on %s: %w", staged, err)
		}
	}

	info, err := os.Stat(staged)
	if err != nil {
		return nil, fmt.Errorf("failed to stat staged artifact %s: %w", staged, err)
	}

	artifact := &BuildArtifact{
		BinaryName: binName,
		PlatformID: row.PlatformID,
		Target:     row.Target,
		Path:       staged,
		SizeBytes:  info.Size(),
		BuiltAt:    time.Now().UTC(),
		Toolchain:  opts.Toolchain.Value(),
	}

	sidecar := filepath.Join(opts.OutputDir, binName+"-"+row.PlatformID+".meta")
	if err := file.WriteToJSON(sidecar, artifact, 2); err != nil {
		return nil, fmt.Errorf("failed to write metadata sidecar %s: %w", sidecar, err)
	}

	return artifact, nil
}
