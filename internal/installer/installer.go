// Package installer renders platform install scripts from embedded
// templates. It performs no validation of its own: every substitution
// value must already be a ValidatedString, and substitution is a single
// literal pass so a value can never alter the surrounding template.
package installer

import (
	_ "embed"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/release-tools/release-composer/internal/input"
	"github.com/release-tools/release-composer/internal/matrix"
)

//go:embed templates/install.sh.tmpl
var unixTemplate string

//go:embed templates/install.ps1.tmpl
var windowsTemplate string

// Variables are the five substitution values. BinaryExt is derived from
// the matrix row rather than user input and is restricted to the two
// values the resolver can infer.
type Variables struct {
	BinaryName input.ValidatedString
	Platform   input.ValidatedString
	Version    input.ValidatedString
	Repo       input.ValidatedString
	BinaryExt  string
}

func (v Variables) check() error {
	if v.BinaryName.Kind() != input.KindBinaryName {
		return fmt.Errorf("binary name variable has kind %q", v.BinaryName.Kind())
	}
	if v.Platform.Kind() != input.KindPlatform {
		return fmt.Errorf("platform variable has kind %q", v.Platform.Kind())
	}
	if v.Version.Kind() != input.KindVersion {
		return fmt.Errorf("version variable has kind %q", v.Version.Kind())
	}
	if v.Repo.Kind() != input.KindRepository {
		return fmt.Errorf("repository variable has kind %q", v.Repo.Kind())
	}
	if v.BinaryExt != "" && v.BinaryExt != ".exe" {
		return fmt.Errorf("unexpected binary extension %q", v.BinaryExt)
	}
	return nil
}

// Render substitutes the placeholder tokens in template with the given
// variables. strings.Replacer makes one left-to-right pass over the
// template, so replacement text is inserted literally and never rescanned
// for further tokens.
func Render(template string, vars Variables) (string, error) {
	if err := vars.check(); err != nil {
		return "", err
	}
	replacer := strings.NewReplacer(
		"{{BINARY_NAME}}", vars.BinaryName.Value(),
		"{{PLATFORM}}", vars.Platform.Value(),
		"{{VERSION}}", vars.Version.Value(),
		"{{REPO}}", vars.Repo.Value(),
		"{{BINARY_EXT}}", vars.BinaryExt,
	)
	return replacer.Replace(template), nil
}

// WriteScript renders the install script for one matrix row into
// outputDir as install-<platform>.sh or install-<platform>.ps1. Unix
// variants are written executable.
func WriteScript(row matrix.PlatformSpec, vars Variables, outputDir string) (string, error) {
	var template, name string
	var perm os.FileMode
	if row.IsWindows() {
		template = windowsTemplate
		name = "install-" + row.PlatformID + ".ps1"
		perm = 0o644
	} else {
		template = unixTemplate
		name = "install-" + row.PlatformID + ".sh"
		perm = 0o755
	}

	rendered, err := Render(template, vars)
	if err != nil {
		return "", err
	}

	path := filepath.Join(outputDir, name)
	if err := os.WriteFile(path, []byte(rendered), perm); err != nil {
		return "", fmt.Errorf("failed to write install script %s: %w", path, err)
	}
	return path, nil
}
