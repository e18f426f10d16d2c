package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/release-tools/release-composer/internal/config"
	"github.com/release-tools/release-composer/internal/matrix"
	"github.com/release-tools/release-composer/internal/utils/logger"
)

// createValidateCommand creates the validate subcommand
func createValidateCommand() *cobra.Command {
	validateCmd := &cobra.Command{
		Use:   "validate",
		Short: "Validate configuration and matrix files",
		Long: `Validate configuration or custom matrix files against their schemas
without running a release.

Available commands:
  config    Validate a global configuration file
  matrix    Validate a custom platform matrix file`,
	}

	validateCmd.AddCommand(createValidateConfigCommand())
	validateCmd.AddCommand(createValidateMatrixCommand())

	return validateCmd
}

func createValidateConfigCommand() *cobra.Command {
	return &cobra.Command{
		Use:               "config CONFIG_FILE",
		Short:             "Validate a global configuration file",
		Args:              cobra.ExactArgs(1),
		RunE:              executeValidateConfig,
		ValidArgsFunction: yamlFileCompletion,
	}
}

func createValidateMatrixCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "matrix MATRIX_FILE",
		Short: "Validate a custom platform matrix file (JSON array)",
		Args:  cobra.ExactArgs(1),
		RunE:  executeValidateMatrix,
	}
}

// executeValidateConfig handles the validate config command logic
func executeValidateConfig(cmd *cobra.Command, args []string) error {
	log := logger.Logger()
	configFile := args[0]

	log.Infof("validating configuration file: %s", configFile)

	if _, err := os.Stat(configFile); err != nil {
		return fmt.Errorf("cannot access %s: %v", configFile, err)
	}
	cfg, err := config.LoadGlobalConfig(configFile)
	if err != nil {
		return fmt.Errorf("configuration validation failed: %v", err)
	}

	log.Infof("✓ Configuration validation successful")
	log.Infof("  Workers: %d", cfg.Workers)
	log.Infof("  Output directory: %s", cfg.OutputDir)
	log.Infof("  Project directory: %s", cfg.ProjectDir)
	log.Infof("  Hash backend: %s", cfg.HashBackend)
	log.Infof("  Archive backend: %s", cfg.ArchiveBackend)
	log.Infof("  Log level: %s", cfg.Logging.Level)
	return nil
}

// executeValidateMatrix handles the validate matrix command logic
func executeValidateMatrix(cmd *cobra.Command, args []string) error {
	log := logger.Logger()
	matrixFile := args[0]

	log.Infof("validating matrix file: %s", matrixFile)

	data, err := os.ReadFile(matrixFile)
	if err != nil {
		return fmt.Errorf("cannot read %s: %v", matrixFile, err)
	}
	m, warnings, err := matrix.Resolve(string(data), "")
	if err != nil {
		return fmt.Errorf("matrix validation failed: %v", err)
	}
	for _, w := range warnings {
		log.Warnf("%s", w)
	}

	log.Infof("✓ Matrix validation successful")
	log.Infof("  Platforms: %d", len(m))
	for _, row := range m {
		log.Infof("    %s: %s on %s", row.PlatformID, row.Target, row.RunnerOS)
	}
	return nil
}

// yamlFileCompletion suggests YAML files for file arguments
func yamlFileCompletion(cmd *cobra.Command, args []string, toComplete string) ([]string, cobra.ShellCompDirective) {
	return []string{"*.yml", "*.yaml"}, cobra.ShellCompDirectiveFilterFileExt
}
