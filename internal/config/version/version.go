package version

// Package metadata, replaced at build time via -ldflags.
var (
	Version      = "0.1.0"                // Version of the release composer
	Toolname     = "release-composer-dev" // Name of the tool
	Organization = "unknown"              // Organization that built the tool
	BuildDate    = "unknown"              // Date when the tool was built
	CommitSHA    = "unknown"              // Commit SHA of the tool
)
