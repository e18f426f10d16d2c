package main

import (
	"bytes"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/spf13/cobra"
)

func createInstallCompletionCommand() *cobra.Command {
	installCompletionCmd := &cobra.Command{
		Use:   "install-completion",
		Short: "Install shell completion script",
		Long: `Install shell completion script for Bash, Zsh, Fish, or PowerShell.
Automatically detects your shell and installs the appropriate completion script.`,
		RunE: executeInstallCompletion,
	}

	installCompletionCmd.Flags().String("shell", "", "Specify shell type (bash, zsh, fish, powershell)")
	installCompletionCmd.Flags().Bool("force", false, "Force overwrite existing completion files")

	return installCompletionCmd
}

func executeInstallCompletion(cmd *cobra.Command, args []string) error {
	shellType, err := cmd.Flags().GetString("shell")
	if err != nil {
		return err
	}
	userForce, err := cmd.Flags().GetBool("force")
	if err != nil {
		return err
	}

	if shellType == "" {
		shellType, err = detectShell()
		if err != nil {
			return err
		}
	}

	var buf bytes.Buffer
	root := cmd.Root()
	switch shellType {
	case "bash":
		err = root.GenBashCompletion(&buf)
	case "zsh":
		err = root.GenZshCompletion(&buf)
	case "fish":
		err = root.GenFishCompletion(&buf, true)
	case "powershell":
		err = root.GenPowerShellCompletion(&buf)
	default:
		return fmt.Errorf("unsupported shell type: %s", shellType)
	}
	if err != nil {
		return fmt.Errorf("error generating %s completion: %w", shellType, err)
	}

	targetPath, err := completionTarget(shellType)
	if err != nil {
		return err
	}
	if _, err := os.Stat(targetPath); err == nil && !userForce {
		return fmt.Errorf("completion file already exists at %s. Use --force to overwrite", targetPath)
	}
	if err := os.WriteFile(targetPath, buf.Bytes(), 0600); err != nil {
		return fmt.Errorf("could not write completion file: %v", err)
	}

	fmt.Printf("Shell completion installed for %s at %s\n", shellType, targetPath)
	fmt.Printf("Source the file (or restart your shell) to activate it.\n")
	return nil
}

func detectShell() (string, error) {
	shellEnv := os.Getenv("SHELL")
	switch {
	case strings.Contains(shellEnv, "bash"):
		return "bash", nil
	case strings.Contains(shellEnv, "zsh"):
		return "zsh", nil
	case strings.Contains(shellEnv, "fish"):
		return "fish", nil
	case shellEnv != "":
		return "", fmt.Errorf("unsupported shell: %s. Please specify shell with --shell flag", shellEnv)
	case os.Getenv("PSModulePath") != "": // Windows has no $SHELL
		return "powershell", nil
	default:
		return "", fmt.Errorf("could not detect shell. Please specify with --shell flag")
	}
}

// completionTarget resolves the per-shell install location, creating the
// directory when needed.
func completionTarget(shellType string) (string, error) {
	homeDir, err := os.UserHomeDir()
	if err != nil {
		return "", fmt.Errorf("could not determine home directory: %v", err)
	}

	var dir, name string
	switch shellType {
	case "bash":
		dir = filepath.Join(homeDir, ".bash_completion.d")
		name = "release-composer.bash"
	case "zsh":
		dir = filepath.Join(homeDir, ".zsh/completion")
		name = "_release-composer"
	case "fish":
		dir = filepath.Join(homeDir, ".config/fish/completions")
		name = "release-composer.fish"
	case "powershell":
		dir = filepath.Join(homeDir, "Documents/WindowsPowerShell")
		name = "release-composer-completion.ps1"
	}
	if err := os.MkdirAll(dir, 0700); err != nil {
		return "", fmt.Errorf("could not create directory %s: %v", dir, err)
	}

	// System scope only when requested and the bash drop-in dir is writable.
	if shellType == "bash" && os.Getenv("RELEASE_COMPOSER_COMPLETION_SCOPE") == "system" {
		systemDir := "/etc/bash_completion.d"
		if _, err := os.Stat(systemDir); err == nil && dirWritable(systemDir) {
			dir = systemDir
		}
	}
	return filepath.Join(dir, name), nil
}

func dirWritable(p string) bool {
	tf, err := os.CreateTemp(p, ".probe-*")
	if err != nil {
		return false
	}
	tf.Close()
	_ = os.Remove(tf.Name())
	return true
}
