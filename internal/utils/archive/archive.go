// Package archive compresses staged package directories. Backends are
// selected by a capability probe at startup: external tar/zip tools when
// present, built-in Go implementations otherwise.
package archive

import (
	"fmt"

	"github.com/release-tools/release-composer/internal/utils/logger"
	"github.com/release-tools/release-composer/internal/utils/shell"
)

// Format is the archive container+compression selection.
type Format string

const (
	TarGz Format = "tar.gz"
	TarXz Format = "tar.xz"
	Zip   Format = "zip"
)

// Backend produces and inspects archives of one format. Compress archives
// srcDir so the archive contains the directory itself, not just its
// contents. List returns the entry names and doubles as the integrity
// round-trip check after compression.
type Backend interface {
	Name() string
	Compress(srcDir, outPath string) error
	List(path string) ([]string, error)
}

// Preference selects which backend family the probe tries first.
const (
	PreferAuto    = "auto"
	PreferTool    = "tool"
	PreferBuiltin = "builtin"
)

// ForFormat probes for a usable backend. Absence of every known backend
// for a required format is a fatal configuration error.
func ForFormat(format Format, preference string) (Backend, error) {
	log := logger.Logger()

	tool, toolErr := toolBackend(format)
	builtin := builtinBackend(format)

	switch preference {
	case PreferTool:
		if toolErr != nil {
			return nil, fmt.Errorf("archive backend for %s: %w", format, toolErr)
		}
		return tool, nil
	case PreferBuiltin:
		if builtin == nil {
			return nil, fmt.Errorf("no built-in archive backend for %s", format)
		}
		return builtin, nil
	case PreferAuto, "":
		if toolErr == nil {
			return tool, nil
		}
		if builtin != nil {
			log.Debugf("external archiver for %s unavailable (%v), using built-in backend", format, toolErr)
			return builtin, nil
		}
		return nil, fmt.Errorf("no archive backend available for %s: %v", format, toolErr)
	default:
		return nil, fmt.Errorf("unknown archive backend preference %q", preference)
	}
}

func toolBackend(format Format) (Backend, error) {
	switch format {
	case TarGz:
		if !shell.IsCommandExist("tar") {
			return nil, fmt.Errorf("tar not found on host")
		}
		return &toolTar{flag: "z", format: format}, nil
	case TarXz:
		if !shell.IsCommandExist("tar") {
			return nil, fmt.Errorf("tar not found on host")
		}
		return &toolTar{flag: "J", format: format}, nil
	case Zip:
		if !shell.IsCommandExist("zip") || !shell.IsCommandExist("unzip") {
			return nil, fmt.Errorf("zip/unzip not found on host")
		}
		return &toolZip{}, nil
	default:
		return nil, fmt.Errorf("unsupported archive format %q", format)
	}
}

func builtinBackend(format Format) Backend {
	switch format {
	case TarGz:
		return &builtinTar{format: format}
	case TarXz:
		return &builtinTar{format: format}
	case Zip:
		return &builtinZip{}
	default:
		return nil
	}
}
