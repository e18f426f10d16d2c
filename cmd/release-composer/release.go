package main

import (
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/release-tools/release-composer/internal/config"
	"github.com/release-tools/release-composer/internal/input"
	"github.com/release-tools/release-composer/internal/matrix"
	"github.com/release-tools/release-composer/internal/packaging"
	"github.com/release-tools/release-composer/internal/release"
	"github.com/release-tools/release-composer/internal/utils/logger"
)

// Release command flags
var (
	relBinaryName string
	relVersion    string
	relRepo       string
	relPlatforms  string
	relExclude    string
	relToolchain  string = "stable"
	relCargoArgs  string
	relWorkers    int = -1 // -1 means use config file value
	relOutputDir  string
	relProjectDir string
	relSignKey    string
	relEnableNPM  bool
	relNoArchive  bool
	relNoBinary   bool
	relNoReadme   bool
	relNoLicense  bool
	relNoProgress bool
)

// createReleaseCommand creates the release subcommand
func createReleaseCommand() *cobra.Command {
	releaseCmd := &cobra.Command{
		Use:   "release [flags]",
		Short: "Build, package and checksum one release across the platform matrix",
		Long: `Run one release end to end: resolve the platform matrix, compile the
binary for every row (provisioning cross-compilers where the host allows),
package each build into an archive and a standalone binary, then write
the SHA-256 checksum manifest and per-platform install scripts.

Each matrix row runs as an independent lane on a bounded worker pool; a
failed lane never aborts its siblings.`,
		RunE: executeRelease,
	}

	releaseCmd.Flags().StringVarP(&relBinaryName, "binary-name", "b", "",
		"Name of the cargo binary to build (required)")
	releaseCmd.Flags().StringVarP(&relVersion, "version", "v", "",
		"Release version tag, e.g. v1.2.3 (required)")
	releaseCmd.Flags().StringVarP(&relRepo, "repo", "r", "",
		"GitHub repository as owner/name, used in install scripts (required)")
	releaseCmd.Flags().StringVar(&relPlatforms, "platforms", "",
		"Custom platform matrix as a JSON array (replaces the default matrix)")
	releaseCmd.Flags().StringVar(&relExclude, "exclude", "",
		"Comma-separated platform ids to drop from the matrix")
	releaseCmd.Flags().StringVar(&relToolchain, "toolchain", "stable",
		"Rust toolchain: stable, beta, nightly or a version number")
	releaseCmd.Flags().StringVar(&relCargoArgs, "cargo-args", "",
		"Extra arguments appended to the cargo build invocation")
	releaseCmd.Flags().IntVarP(&relWorkers, "workers", "w", -1,
		"Number of concurrent build lanes")
	releaseCmd.Flags().StringVarP(&relOutputDir, "output-dir", "o", "",
		"Directory receiving release assets")
	releaseCmd.Flags().StringVar(&relProjectDir, "project-dir", "",
		"Root of the cargo project being built")
	releaseCmd.Flags().StringVar(&relSignKey, "sign-key", "",
		"Armored OpenPGP private key file; signs checksums.txt when set")
	releaseCmd.Flags().BoolVar(&relEnableNPM, "enable-npm", false,
		"Enable npm publishing integration (requires NPM_TOKEN)")
	releaseCmd.Flags().BoolVar(&relNoArchive, "no-archive", false,
		"Skip archive creation")
	releaseCmd.Flags().BoolVar(&relNoBinary, "no-standalone", false,
		"Skip the standalone binary copy")
	releaseCmd.Flags().BoolVar(&relNoReadme, "no-readme", false,
		"Skip the generated README in archives")
	releaseCmd.Flags().BoolVar(&relNoLicense, "no-license", false,
		"Skip the license copy in archives")
	releaseCmd.Flags().BoolVar(&relNoProgress, "no-progress", false,
		"Disable the lane progress bar")

	for _, required := range []string{"binary-name", "version", "repo"} {
		if err := releaseCmd.MarkFlagRequired(required); err != nil {
			panic(err)
		}
	}

	return releaseCmd
}

// executeRelease handles the release command execution logic
func executeRelease(cmd *cobra.Command, args []string) error {
	log := logger.Logger()

	if cmd.Flags().Changed("workers") {
		currentConfig := config.Global()
		currentConfig.Workers = relWorkers
		config.SetGlobal(currentConfig)
	}
	if cmd.Flags().Changed("output-dir") {
		currentConfig := config.Global()
		currentConfig.OutputDir = relOutputDir
		config.SetGlobal(currentConfig)
	}
	if cmd.Flags().Changed("project-dir") {
		currentConfig := config.Global()
		currentConfig.ProjectDir = relProjectDir
		config.SetGlobal(currentConfig)
	}

	req, err := buildRequest()
	if err != nil {
		return err
	}

	rc, err := release.New(*req)
	if err != nil {
		return err
	}

	// external abort signals cancel the run; a cancelled run never
	// writes a checksum manifest
	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	summary, err := rc.Run(ctx)
	if summary != nil {
		reportSummary(summary)
	}
	if err != nil {
		return fmt.Errorf("release failed: %v", err)
	}

	log.Infof("release assets written to %s", req.OutputDir)
	return nil
}

// buildRequest validates every scalar input and assembles the release
// request. Raw strings stop here; everything downstream is tagged.
func buildRequest() (*release.Request, error) {
	binaryName, err := input.BinaryName(relBinaryName)
	if err != nil {
		return nil, err
	}
	version, err := input.Version(relVersion)
	if err != nil {
		return nil, err
	}
	repo, err := input.Repository(relRepo)
	if err != nil {
		return nil, err
	}
	toolchain, err := input.Toolchain(relToolchain)
	if err != nil {
		return nil, err
	}
	cargoArgs, err := input.ToolArgs(relCargoArgs)
	if err != nil {
		return nil, err
	}

	m, warnings, err := matrix.Resolve(relPlatforms, relExclude)
	if err != nil {
		return nil, err
	}
	log := logger.Logger()
	for _, w := range warnings {
		log.Warnf("%s", w)
	}

	outputDir, err := config.OutputDir()
	if err != nil {
		return nil, err
	}
	projectDir, err := config.ProjectDir()
	if err != nil {
		return nil, err
	}

	opts := packaging.DefaultOptions()
	opts.CreateArchive = !relNoArchive
	opts.CreateStandalone = !relNoBinary
	opts.IncludeReadme = !relNoReadme
	opts.IncludeLicense = !relNoLicense
	opts.ArchivePreference = config.ArchiveBackend()

	return &release.Request{
		BinaryName:     binaryName,
		Version:        version,
		Repository:     repo,
		Toolchain:      toolchain,
		CargoArgs:      cargoArgs,
		Matrix:         m,
		Workers:        config.Workers(),
		ProjectDir:     projectDir,
		OutputDir:      outputDir,
		TempDir:        config.TempDir(),
		Packaging:      opts,
		HashPreference: config.HashBackend(),
		SignKeyPath:    relSignKey,
		EnableNPM:      relEnableNPM,
		ShowProgress:   !relNoProgress,
	}, nil
}

func reportSummary(summary *release.Summary) {
	log := logger.Logger()

	for _, res := range summary.Results {
		switch {
		case res.Cancelled:
			log.Warnf("  %s: cancelled", res.PlatformID)
		case res.Err != nil:
			log.Errorf("  %s: %v", res.PlatformID, res.Err)
		default:
			log.Infof("  %s: %s", res.PlatformID, res.Package.PackageName)
		}
	}
	for _, w := range summary.Warnings {
		log.Warnf("  warning: %s", w)
	}
	if summary.ChecksumPath != "" {
		log.Infof("checksum manifest: %s", summary.ChecksumPath)
	}
	if summary.SignaturePath != "" {
		log.Infof("signature: %s", summary.SignaturePath)
	}
	if summary.PublicKeyPath != "" {
		log.Infof("public key: %s", summary.PublicKeyPath)
	}
}
