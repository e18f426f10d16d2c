package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/release-tools/release-composer/internal/config"
)

// createConfigCommand creates the config subcommand
func createConfigCommand() *cobra.Command {
	configCmd := &cobra.Command{
		Use:   "config",
		Short: "Manage configuration",
		Long: `Manage global configuration for the Release Composer.

Available commands:
  init    Initialize a new configuration file with default values`,
	}

	configCmd.AddCommand(createConfigInitCommand())

	return configCmd
}

// createConfigInitCommand creates the config init subcommand
func createConfigInitCommand() *cobra.Command {
	initCmd := &cobra.Command{
		Use:   "init [config-file]",
		Short: "Initialize a new configuration file",
		Long: `Initialize a new configuration file with default values.

If no path is specified, the config will be created in the current directory as release-composer.yml

Examples:
  # Create config in current directory
  release-composer config init

  # Create config at specific location
  release-composer config init /etc/release-composer/config.yml

  # Create config in user's home directory
  release-composer config init ~/.release-composer/config.yml`,
		Args: cobra.MaximumNArgs(1),
		RunE: executeConfigInit,
	}

	return initCmd
}

// executeConfigInit handles the config init command logic
func executeConfigInit(cmd *cobra.Command, args []string) error {
	configPath := "release-composer.yml"
	if len(args) > 0 {
		configPath = args[0]
	}

	defaultConfig := config.DefaultGlobalConfig()

	if err := defaultConfig.SaveGlobalConfigWithComments(configPath); err != nil {
		return fmt.Errorf("failed to save config file: %v", err)
	}

	fmt.Printf("Configuration file created at: %s\n", configPath)
	fmt.Printf("\nDefault configuration settings:\n")
	fmt.Printf("  Workers: %d\n", defaultConfig.Workers)
	fmt.Printf("  Output Directory: %s\n", defaultConfig.OutputDir)
	fmt.Printf("  Project Directory: %s\n", defaultConfig.ProjectDir)
	fmt.Printf("  Hash Backend: %s\n", defaultConfig.HashBackend)
	fmt.Printf("  Archive Backend: %s\n", defaultConfig.ArchiveBackend)
	fmt.Printf("  Log Level: %s\n", defaultConfig.Logging.Level)
	fmt.Printf("\nEdit the configuration file to customize these settings.\n")

	return nil
}
