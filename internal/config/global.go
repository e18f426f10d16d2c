package config

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"

	"gopkg.in/yaml.v3"
	sigsyaml "sigs.k8s.io/yaml"

	"github.com/release-tools/release-composer/internal/utils/logger"
	"github.com/release-tools/release-composer/internal/utils/security"
	"github.com/release-tools/release-composer/internal/utils/slice"
	"github.com/release-tools/release-composer/internal/validate"
)

var log = logger.Logger()

// GlobalConfig holds tool-level settings that apply across release runs.
type GlobalConfig struct {
	Workers    int    `yaml:"workers" json:"workers"`         // Number of concurrent build lanes (1-100, default: 4)
	OutputDir  string `yaml:"output_dir" json:"output_dir"`   // Directory receiving packaged release assets (default: ./dist)
	ProjectDir string `yaml:"project_dir" json:"project_dir"` // Root of the project being built (default: .)
	TempDir    string `yaml:"temp_dir" json:"temp_dir"`       // Staging directory for package trees (empty = system default)

	HashBackend    string `yaml:"hash_backend" json:"hash_backend"`       // SHA-256 backend: auto, builtin or tool
	ArchiveBackend string `yaml:"archive_backend" json:"archive_backend"` // Archiver backend: auto, builtin or tool

	Logging LoggingConfig `yaml:"logging" json:"logging"`
}

// LoggingConfig controls basic logging behavior
type LoggingConfig struct {
	Level string `yaml:"level" json:"level"`                   // Log verbosity level: debug, info (default), warn, error
	File  string `yaml:"file,omitempty" json:"file,omitempty"` // Optional log file path for teeing output to disk
}

var (
	globalInstance *GlobalConfig
	globalMutex    sync.RWMutex
	once           sync.Once
)

// SetGlobal sets the global config instance (call once at startup in main.go)
func SetGlobal(config *GlobalConfig) {
	globalMutex.Lock()
	defer globalMutex.Unlock()
	globalInstance = config
}

// Global returns the global config instance
func Global() *GlobalConfig {
	once.Do(func() {
		globalMutex.Lock()
		defer globalMutex.Unlock()
		if globalInstance == nil {
			globalInstance = DefaultGlobalConfig()
		}
	})

	globalMutex.RLock()
	defer globalMutex.RUnlock()
	return globalInstance
}

// DefaultGlobalConfig returns a GlobalConfig with sensible defaults
func DefaultGlobalConfig() *GlobalConfig {
	return &GlobalConfig{
		Workers:        4,
		OutputDir:      "./dist",
		ProjectDir:     ".",
		TempDir:        "",
		HashBackend:    "auto",
		ArchiveBackend: "auto",

		Logging: LoggingConfig{
			Level: "info",
			File:  "",
		},
	}
}

// LoadGlobalConfig loads configuration from the specified path. A missing
// or empty path falls back to defaults.
func LoadGlobalConfig(configPath string) (*GlobalConfig, error) {
	config := DefaultGlobalConfig()

	if configPath == "" {
		return config, nil
	}

	if _, err := os.Stat(configPath); err != nil {
		if os.IsNotExist(err) {
			return config, nil
		}
		if errors.Is(err, os.ErrPermission) {
			log.Warnf("Config file %s is not accessible (%v); using defaults", configPath, err)
			return config, nil
		}
		return nil, fmt.Errorf("accessing config file %s: %w", configPath, err)
	}

	// Symlinked config files are rejected outright
	data, err := security.SafeReadFile(configPath, security.RejectSymlinks)
	if err != nil {
		return nil, fmt.Errorf("reading config file %s: %w", configPath, err)
	}

	if len(strings.TrimSpace(string(data))) == 0 {
		return config, nil
	}

	ext := strings.ToLower(filepath.Ext(configPath))
	switch ext {
	case ".yaml", ".yml":
		// validate the raw document, so unknown fields are caught
		// before they are silently dropped by struct unmarshaling
		jsonData, err := sigsyaml.YAMLToJSON(data)
		if err != nil {
			return nil, fmt.Errorf("converting config to JSON for validation: %w", err)
		}
		if err := validate.ValidateConfigJSON(jsonData); err != nil {
			return nil, fmt.Errorf("schema validation failed: %w", err)
		}

		if err := yaml.Unmarshal(data, config); err != nil {
			return nil, fmt.Errorf("parsing YAML config: %w", err)
		}

	default:
		return nil, fmt.Errorf("unsupported config file format: %s (supported: .yaml, .yml)", ext)
	}

	if err := config.Validate(); err != nil {
		return nil, fmt.Errorf("config validation failed: %w", err)
	}

	return config, nil
}

// SaveGlobalConfig saves the configuration to the specified path
func (gc *GlobalConfig) SaveGlobalConfig(configPath string) error {
	dir := filepath.Dir(configPath)
	if dir != "." && dir != "" {
		if err := os.MkdirAll(dir, 0700); err != nil {
			return fmt.Errorf("creating config directory: %w", err)
		}
	}

	jsonData, err := json.Marshal(gc)
	if err != nil {
		return fmt.Errorf("converting config to JSON for validation: %w", err)
	}
	if err := validate.ValidateConfigJSON(jsonData); err != nil {
		return fmt.Errorf("config validation failed before save: %w", err)
	}

	data, err := yaml.Marshal(gc)
	if err != nil {
		return fmt.Errorf("marshaling config to YAML: %w", err)
	}

	if err := security.SafeWriteFile(configPath, data, 0600, security.RejectSymlinks); err != nil {
		return fmt.Errorf("writing config file: %w", err)
	}
	return nil
}

// SaveGlobalConfigWithComments writes a commented starter file. Used by
// the config init subcommand.
func (gc *GlobalConfig) SaveGlobalConfigWithComments(configPath string) error {
	if configPath == "" {
		return fmt.Errorf("config path is empty")
	}

	dir := filepath.Dir(configPath)
	if dir != "." && dir != "" {
		if err := os.MkdirAll(dir, 0700); err != nil {
			return fmt.Errorf("creating config directory: %w", err)
		}
	}

	jsonData, err := json.Marshal(gc)
	if err != nil {
		return fmt.Errorf("converting config to JSON for validation: %w", err)
	}
	if err := validate.ValidateConfigJSON(jsonData); err != nil {
		return fmt.Errorf("config validation failed before save: %w", err)
	}

	if err := security.SafeWriteFile(configPath, []byte(gc.renderCommentedYAML()), 0600, security.RejectSymlinks); err != nil {
		return fmt.Errorf("writing config file: %w", err)
	}
	return nil
}

// renderCommentedYAML builds a YAML representation of the config with comments.
func (gc *GlobalConfig) renderCommentedYAML() string {
	var b strings.Builder

	b.WriteString("# Release Composer - Global Configuration\n")
	b.WriteString("# Tool-level settings that apply across all release runs.\n")
	b.WriteString("# Per-release parameters (binary name, version, matrix) are CLI flags.\n\n")

	fmt.Fprintf(&b, "workers: %d\n", gc.Workers)
	b.WriteString("# Number of concurrent build lanes (1-100, default: 4)\n")
	b.WriteString("# Each lane compiles and packages one platform of the matrix\n\n")

	fmt.Fprintf(&b, "output_dir: %q\n", gc.OutputDir)
	b.WriteString("# Directory receiving archives, standalone binaries, manifests and\n")
	b.WriteString("# checksums.txt (default: ./dist)\n\n")

	fmt.Fprintf(&b, "project_dir: %q\n", gc.ProjectDir)
	b.WriteString("# Root of the project being built, the directory containing Cargo.toml\n\n")

	fmt.Fprintf(&b, "temp_dir: %q\n", gc.TempDir)
	b.WriteString("# Staging directory for package trees before compression\n")
	b.WriteString("# Empty value uses the system default (/tmp on Linux)\n\n")

	fmt.Fprintf(&b, "hash_backend: %q\n", gc.HashBackend)
	b.WriteString("# SHA-256 backend: auto (probe), builtin (Go library) or tool (sha256sum/shasum)\n\n")

	fmt.Fprintf(&b, "archive_backend: %q\n", gc.ArchiveBackend)
	b.WriteString("# Archiver backend: auto (probe), builtin (Go library) or tool (tar/zip)\n\n")

	b.WriteString("logging:\n")
	fmt.Fprintf(&b, "  level: %q\n", gc.Logging.Level)
	b.WriteString("  # Log verbosity level: debug, info (default), warn, error\n")
	if gc.Logging.File != "" {
		fmt.Fprintf(&b, "  file: %q\n", gc.Logging.File)
		b.WriteString("  # Tee logs to this file in addition to stderr (overwritten on each run)\n")
	}

	return b.String()
}

// Validate checks the configuration for consistency. Defaults are applied
// by DefaultGlobalConfig, not here.
func (gc *GlobalConfig) Validate() error {
	if gc.Workers <= 0 {
		return fmt.Errorf("workers must be greater than 0, got %d", gc.Workers)
	}
	if gc.Workers > 100 {
		return fmt.Errorf("workers cannot exceed 100, got %d", gc.Workers)
	}

	if gc.OutputDir == "" {
		return fmt.Errorf("output_dir cannot be empty")
	}
	if gc.ProjectDir == "" {
		return fmt.Errorf("project_dir cannot be empty")
	}

	validBackends := []string{"auto", "builtin", "tool"}
	if !slice.Contains(validBackends, gc.HashBackend) {
		return fmt.Errorf("invalid hash backend %q, must be one of: %s",
			gc.HashBackend, strings.Join(validBackends, ", "))
	}
	if !slice.Contains(validBackends, gc.ArchiveBackend) {
		return fmt.Errorf("invalid archive backend %q, must be one of: %s",
			gc.ArchiveBackend, strings.Join(validBackends, ", "))
	}

	validLevels := []string{"debug", "info", "warn", "error"}
	if !slice.Contains(validLevels, gc.Logging.Level) {
		return fmt.Errorf("invalid log level %q, must be one of: %s",
			gc.Logging.Level, strings.Join(validLevels, ", "))
	}

	gc.Logging.File = strings.TrimSpace(gc.Logging.File)

	if gc.TempDir == "" {
		gc.TempDir = os.TempDir()
	}
	return nil
}

// GetConfigPaths returns the standard configuration file paths to check
func GetConfigPaths() []string {
	homeDir, _ := os.UserHomeDir()

	paths := []string{
		"release-composer.yml",
		".release-composer.yml",
		"release-composer.yaml",
		".release-composer.yaml",
	}

	if homeDir != "" {
		paths = append(paths,
			filepath.Join(homeDir, ".release-composer", "config.yml"),
			filepath.Join(homeDir, ".release-composer", "config.yaml"),
			filepath.Join(homeDir, ".config", "release-composer", "config.yml"),
			filepath.Join(homeDir, ".config", "release-composer", "config.yaml"),
		)
	}

	paths = append(paths,
		"/etc/release-composer/config.yml",
		"/etc/release-composer/config.yaml",
	)

	return paths
}

// FindConfigFile searches for a configuration file in standard locations
func FindConfigFile() string {
	for _, path := range GetConfigPaths() {
		if _, err := os.Stat(path); err == nil {
			return path
		}
	}
	return ""
}

// Convenience accessors used across the codebase.
func Workers() int {
	return Global().Workers
}

func OutputDir() (string, error) {
	dir, err := filepath.Abs(Global().OutputDir)
	if err != nil {
		return "", fmt.Errorf("failed to resolve output directory: %w", err)
	}
	return dir, nil
}

func ProjectDir() (string, error) {
	dir, err := filepath.Abs(Global().ProjectDir)
	if err != nil {
		return "", fmt.Errorf("failed to resolve project directory: %w", err)
	}
	return dir, nil
}

func TempDir() string {
	tempDir := Global().TempDir
	if tempDir == "" {
		return os.TempDir()
	}
	return tempDir
}

func HashBackend() string {
	return Global().HashBackend
}

func ArchiveBackend() string {
	return Global().ArchiveBackend
}

func LogLevel() string {
	return Global().Logging.Level
}

func IsDebugMode() bool {
	return Global().Logging.Level == "debug"
}
