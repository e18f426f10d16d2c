package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/release-tools/release-composer/internal/config"
	"github.com/release-tools/release-composer/internal/utils/logger"
	"github.com/release-tools/release-composer/internal/utils/security"
)

// Command-line flags that can override config file settings
var (
	configFile string = "" // Path to config file
	logLevel   string = "" // Empty means use config file value
)

func main() {
	configFilePath := configFile
	if configFilePath == "" {
		configFilePath = config.FindConfigFile()
	}

	globalConfig, err := config.LoadGlobalConfig(configFilePath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error loading configuration: %v\n", err)
		os.Exit(1)
	}
	config.SetGlobal(globalConfig)

	_, cleanup := logger.InitWithLevel(globalConfig.Logging.Level)
	defer cleanup()

	rootCmd := createRootCommand()
	security.AttachRecursive(rootCmd, security.DefaultLimits())

	// Handle log level override after flag parsing
	rootCmd.PersistentPreRun = func(cmd *cobra.Command, args []string) {
		if logLevel != "" {
			globalConfig.Logging.Level = logLevel
			config.SetGlobal(globalConfig)
			logger.SetLogLevel(logLevel)
		}
	}

	log := logger.Logger()
	if configFilePath != "" {
		log.Infof("Using configuration from: %s", configFilePath)
	}
	outputDir, _ := config.OutputDir()
	projectDir, _ := config.ProjectDir()
	log.Debugf("Config: workers=%d, output_dir=%s, project_dir=%s, temp_dir=%s",
		config.Workers(), outputDir, projectDir, config.TempDir())

	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

// createRootCommand creates and configures the root cobra command with all subcommands
func createRootCommand() *cobra.Command {
	rootCmd := &cobra.Command{
		Use:   "release-composer",
		Short: "Release build orchestrator for cross-platform Rust binaries",
		Long: `Release Composer resolves a platform build matrix for one release of a
Rust binary, compiles each platform (cross-compiling where the host
supports it), packages the results into archives and standalone
binaries, and finishes with a SHA-256 checksum manifest and
per-platform install scripts.

Use 'release-composer --help' to see available commands.
Use 'release-composer <command> --help' for more information about a command.`,
	}

	rootCmd.PersistentFlags().StringVar(&configFile, "config", "",
		"Path to configuration file")
	rootCmd.PersistentFlags().StringVar(&logLevel, "log-level", "",
		"Log level (debug, info, warn, error)")

	rootCmd.AddCommand(createReleaseCommand())
	rootCmd.AddCommand(createMatrixCommand())
	rootCmd.AddCommand(createValidateCommand())
	rootCmd.AddCommand(createVerifyCommand())
	rootCmd.AddCommand(createVersionCommand())
	rootCmd.AddCommand(createConfigCommand())
	rootCmd.AddCommand(createInstallCompletionCommand())

	return rootCmd
}
