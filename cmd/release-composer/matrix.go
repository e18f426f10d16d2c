package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/release-tools/release-composer/internal/matrix"
	"github.com/release-tools/release-composer/internal/utils/logger"
)

// Matrix command flags
var (
	matPlatforms string
	matExclude   string
)

// createMatrixCommand creates the matrix subcommand
func createMatrixCommand() *cobra.Command {
	matrixCmd := &cobra.Command{
		Use:   "matrix [flags]",
		Short: "Resolve and print the platform build matrix",
		Long: `Resolve the platform build matrix and print it as JSON without building
anything. The output is suitable for a CI fan-out step.

The default matrix can be replaced wholesale with --platforms or trimmed
with --exclude; exclusion of an absent platform id is a warning, not an
error.`,
		RunE: executeMatrix,
	}

	matrixCmd.Flags().StringVar(&matPlatforms, "platforms", "",
		"Custom platform matrix as a JSON array (replaces the default matrix)")
	matrixCmd.Flags().StringVar(&matExclude, "exclude", "",
		"Comma-separated platform ids to drop from the matrix")

	return matrixCmd
}

// executeMatrix handles the matrix command logic
func executeMatrix(cmd *cobra.Command, args []string) error {
	log := logger.Logger()

	m, warnings, err := matrix.Resolve(matPlatforms, matExclude)
	if err != nil {
		return fmt.Errorf("matrix resolution failed: %v", err)
	}
	for _, w := range warnings {
		log.Warnf("%s", w)
	}

	data, err := m.ToJSON()
	if err != nil {
		return err
	}
	fmt.Println(string(data))
	return nil
}
