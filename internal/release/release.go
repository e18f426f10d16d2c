// Package release drives one release run end to end: every matrix row is
// an independent lane (provision, build, package) executed on a bounded
// worker pool, followed by a checksum barrier over the shared output
// directory and the per-platform install scripts.
package release

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/schollz/progressbar/v3"

	"github.com/release-tools/release-composer/internal/builder"
	"github.com/release-tools/release-composer/internal/checksum"
	"github.com/release-tools/release-composer/internal/crosscompile"
	"github.com/release-tools/release-composer/internal/input"
	"github.com/release-tools/release-composer/internal/installer"
	"github.com/release-tools/release-composer/internal/matrix"
	"github.com/release-tools/release-composer/internal/packaging"
	"github.com/release-tools/release-composer/internal/signing"
	"github.com/release-tools/release-composer/internal/utils/archive"
	"github.com/release-tools/release-composer/internal/utils/logger"
)

// npmTokenEnv is checked for presence only when npm publishing is
// enabled. Its value must never reach a log line or manifest.
const npmTokenEnv = "NPM_TOKEN"

// Request is the validated, immutable description of one release run.
type Request struct {
	BinaryName input.ValidatedString
	Version    input.ValidatedString
	Repository input.ValidatedString
	Toolchain  input.ValidatedString
	CargoArgs  input.ValidatedString

	Matrix  matrix.BuildMatrix
	Workers int

	ProjectDir string
	OutputDir  string
	TempDir    string

	Packaging      packaging.Options
	HashPreference string

	SignKeyPath  string
	EnableNPM    bool
	ShowProgress bool
}

// PrecheckError aborts the release before any lane starts.
type PrecheckError struct {
	Reason string
}

func (e *PrecheckError) Error() string {
	return "release precheck failed: " + e.Reason
}

// LaneResult records the outcome of one matrix row.
type LaneResult struct {
	PlatformID string
	Package    *packaging.Package
	Warnings   []string
	Err        error
	Cancelled  bool
}

// Summary is the terminal report of one run.
type Summary struct {
	RunID            string
	Results          []LaneResult
	Succeeded        int
	Failed           int
	Cancelled        bool
	ChecksumPath     string
	ChecksumFailures int
	VerifyScriptPath string
	InstallScripts   []string
	SignaturePath    string
	PublicKeyPath    string
	Warnings         []string
	StartedAt        time.Time
	FinishedAt       time.Time
}

// ReleaseContext carries the mutable state of one run so nothing is
// threaded through globals. Lanes write results through it under the
// mutex; the barrier reads them after the join.
type ReleaseContext struct {
	Request Request
	RunID   string

	mu       sync.Mutex
	results  []LaneResult
	warnings []string
}

// New validates the request and prepares a run context. All release-level
// failures surface here, before any lane starts.
func New(req Request) (*ReleaseContext, error) {
	if err := precheck(&req); err != nil {
		return nil, err
	}
	return &ReleaseContext{
		Request: req,
		RunID:   uuid.New().String(),
		results: make([]LaneResult, len(req.Matrix)),
	}, nil
}

func precheck(req *Request) error {
	if err := req.Matrix.Validate(); err != nil {
		return &PrecheckError{Reason: err.Error()}
	}
	if req.Workers < 1 {
		req.Workers = 1
	}
	if req.EnableNPM && os.Getenv(npmTokenEnv) == "" {
		// report presence only, never the value
		return &PrecheckError{Reason: fmt.Sprintf("npm publishing is enabled but %s is not set", npmTokenEnv)}
	}

	// every backend the run will need must probe successfully up front
	if _, err := checksum.ProbeHasher(req.HashPreference); err != nil {
		return &PrecheckError{Reason: err.Error()}
	}
	if req.Packaging.CreateArchive {
		for _, ext := range req.Matrix.ArchiveExtensions() {
			if _, err := archive.ForFormat(archive.Format(ext), req.Packaging.ArchivePreference); err != nil {
				return &PrecheckError{Reason: err.Error()}
			}
		}
	}
	return nil
}

func (rc *ReleaseContext) recordResult(idx int, res LaneResult) {
	rc.mu.Lock()
	defer rc.mu.Unlock()
	rc.results[idx] = res
}

func (rc *ReleaseContext) warn(format string, args ...interface{}) {
	msg := fmt.Sprintf(format, args...)
	logger.Logger().Warnf("%s", msg)
	rc.mu.Lock()
	defer rc.mu.Unlock()
	rc.warnings = append(rc.warnings, msg)
}

// Run executes every lane on a bounded worker pool, then runs the
// checksum barrier, install-script rendering and optional signing.
// Cancellation skips the barrier: a cancelled run never writes a checksum
// manifest that could reference unfinished assets.
func (rc *ReleaseContext) Run(ctx context.Context) (*Summary, error) {
	log := logger.Logger()
	req := rc.Request

	summary := &Summary{RunID: rc.RunID, StartedAt: time.Now().UTC()}

	if err := os.MkdirAll(req.OutputDir, 0755); err != nil {
		return nil, fmt.Errorf("failed to create output directory %s: %w", req.OutputDir, err)
	}

	total := len(req.Matrix)
	workers := req.Workers
	if workers > total {
		workers = total
	}
	log.Infof("release %s: %d platform(s), %d worker(s)", rc.RunID[:8], total, workers)

	bar := rc.newProgressBar(total)

	jobs := make(chan int, total)
	var wg sync.WaitGroup
	for i := 0; i < workers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for idx := range jobs {
				row := req.Matrix[idx]
				if bar != nil {
					bar.Describe(row.PlatformID)
				}
				rc.recordResult(idx, rc.runLane(ctx, row))
				if bar != nil {
					if err := bar.Add(1); err != nil {
						log.Errorf("failed to add to progress bar: %v", err)
					}
				}
			}
		}()
	}
	for i := range req.Matrix {
		jobs <- i
	}
	close(jobs)

	// the join below is the checksum barrier
	wg.Wait()
	if bar != nil {
		if err := bar.Finish(); err != nil {
			log.Errorf("failed to finish progress bar: %v", err)
		}
	}

	rc.mu.Lock()
	summary.Results = append(summary.Results, rc.results...)
	summary.Warnings = append(summary.Warnings, rc.warnings...)
	rc.mu.Unlock()

	for _, res := range summary.Results {
		switch {
		case res.Cancelled:
			summary.Cancelled = true
		case res.Err != nil:
			summary.Failed++
		default:
			summary.Succeeded++
		}
	}

	if ctx.Err() != nil || summary.Cancelled {
		summary.Cancelled = true
		summary.FinishedAt = time.Now().UTC()
		log.Warnf("release %s cancelled, skipping checksum generation", rc.RunID[:8])
		return summary, ctx.Err()
	}

	if summary.Succeeded == 0 {
		summary.FinishedAt = time.Now().UTC()
		return summary, fmt.Errorf("release failed: no matrix row completed packaging")
	}

	if err := rc.finalize(summary); err != nil {
		summary.FinishedAt = time.Now().UTC()
		return summary, err
	}

	summary.FinishedAt = time.Now().UTC()
	log.Infof("release %s finished: %d succeeded, %d failed, %d warning(s)",
		rc.RunID[:8], summary.Succeeded, summary.Failed, len(summary.Warnings))
	return summary, nil
}

// runLane executes provision, build and package for one row. Failures are
// recorded on the result and never affect sibling lanes.
func (rc *ReleaseContext) runLane(ctx context.Context, row matrix.PlatformSpec) LaneResult {
	log := logger.With("platform", row.PlatformID)
	req := rc.Request
	res := LaneResult{PlatformID: row.PlatformID}

	if ctx.Err() != nil {
		res.Cancelled = true
		return res
	}

	env, err := crosscompile.Provision(row.Target)
	if err != nil {
		var envErr *crosscompile.EnvironmentError
		if errors.As(err, &envErr) {
			rc.warn("cross-compilation for %s unavailable on this host (%v), attempting native build", row.Target, err)
			env = nil
		} else {
			rc.warn("provisioning for %s failed (%v), attempting build anyway", row.Target, err)
		}
	}

	if ctx.Err() != nil {
		res.Cancelled = true
		return res
	}

	artifact, err := builder.Build(req.BinaryName, row, req.CargoArgs, builder.Options{
		ProjectDir: req.ProjectDir,
		OutputDir:  req.OutputDir,
		Toolchain:  req.Toolchain,
		ExtraEnv:   env,
	})
	if err != nil {
		log.Errorf("build failed: %v", err)
		res.Err = err
		return res
	}

	if ctx.Err() != nil {
		res.Cancelled = true
		return res
	}

	opts := req.Packaging
	opts.ProjectDir = req.ProjectDir
	opts.OutputDir = req.OutputDir
	opts.TempDir = req.TempDir

	pkg, err := packaging.Run(artifact, row, req.Version, opts)
	if err != nil {
		log.Errorf("packaging failed: %v", err)
		res.Err = err
		return res
	}

	res.Package = pkg
	res.Warnings = pkg.Warnings
	return res
}

// finalize runs after all lanes succeed or fail on their own: checksum
// manifest, verify script, install scripts and the optional signature.
// Install scripts are written after the manifest so they never appear in
// it.
func (rc *ReleaseContext) finalize(summary *Summary) error {
	req := rc.Request

	hasher, err := checksum.ProbeHasher(req.HashPreference)
	if err != nil {
		return err
	}

	manifest, err := checksum.Generate(req.OutputDir, hasher)
	if err != nil {
		return err
	}
	checksumPath := filepath.Join(req.OutputDir, checksum.ManifestFileName)
	if err := manifest.Write(checksumPath); err != nil {
		return err
	}
	summary.ChecksumPath = checksumPath
	summary.ChecksumFailures = len(manifest.Failures)
	if len(manifest.Failures) > 0 {
		msg := fmt.Sprintf("release succeeded with %d unhashable file(s)", len(manifest.Failures))
		logger.Logger().Warnf("%s", msg)
		summary.Warnings = append(summary.Warnings, msg)
	}

	verifyPath, err := checksum.WriteVerifyScript(req.OutputDir)
	if err != nil {
		return err
	}
	summary.VerifyScriptPath = verifyPath

	if err := rc.writeInstallScripts(summary); err != nil {
		return err
	}

	if req.SignKeyPath != "" {
		sigPath, err := signing.SignDetached(checksumPath, req.SignKeyPath)
		if err != nil {
			return err
		}
		summary.SignaturePath = sigPath

		// publish the public half so consumers can verify the signature
		pub, err := signing.ExportPublicKey(req.SignKeyPath)
		if err != nil {
			return err
		}
		pubPath := filepath.Join(req.OutputDir, signing.PublicKeyName)
		if err := os.WriteFile(pubPath, []byte(pub), 0o644); err != nil {
			return fmt.Errorf("failed to write public key %s: %w", pubPath, err)
		}
		summary.PublicKeyPath = pubPath
	}
	return nil
}

func (rc *ReleaseContext) writeInstallScripts(summary *Summary) error {
	req := rc.Request

	succeeded := make(map[string]bool, len(summary.Results))
	for _, res := range summary.Results {
		if res.Err == nil && !res.Cancelled {
			succeeded[res.PlatformID] = true
		}
	}

	for _, row := range req.Matrix {
		if !succeeded[row.PlatformID] {
			continue
		}
		platform, err := input.Platform(row.PlatformID)
		if err != nil {
			return fmt.Errorf("platform id %q failed validation for templating: %w", row.PlatformID, err)
		}
		path, err := installer.WriteScript(row, installer.Variables{
			BinaryName: req.BinaryName,
			Platform:   platform,
			Version:    req.Version,
			Repo:       req.Repository,
			BinaryExt:  row.BinaryExt,
		}, req.OutputDir)
		if err != nil {
			return err
		}
		summary.InstallScripts = append(summary.InstallScripts, path)
	}
	return nil
}

func (rc *ReleaseContext) newProgressBar(total int) *progressbar.ProgressBar {
	if !rc.Request.ShowProgress {
		return nil
	}
	return progressbar.NewOptions(total,
		progressbar.OptionEnableColorCodes(true),
		progressbar.OptionShowDescriptionAtLineEnd(),
		progressbar.OptionSetWidth(30),
		progressbar.OptionShowCount(),
		progressbar.OptionThrottle(200*time.Millisecond),
		progressbar.OptionSpinnerType(10),
		progressbar.OptionSetTheme(progressbar.Theme{
			Saucer:        "[green]=[reset]",
			SaucerHead:    "[green]>[reset]",
			SaucerPadding: " ",
			BarStart:      "[",
			BarEnd:        "]",
		}),
	)
}
