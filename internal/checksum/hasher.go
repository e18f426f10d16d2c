package checksum

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/release-tools/release-composer/internal/utils/shell"
)

// Hasher computes a hex SHA-256 digest for one file. Two backends exist:
// the in-process hash library and the host's checksum tool; a probe picks
// one at startup.
type Hasher interface {
	Name() string
	Sum(path string) (string, error)
}

const (
	PreferAuto    = "auto"
	PreferBuiltin = "builtin"
	PreferTool    = "tool"
)

// ProbeHasher selects a SHA-256 backend. The library backend is always
// available, so only an explicit tool preference can fail.
func ProbeHasher(preference string) (Hasher, error) {
	switch preference {
	case PreferBuiltin, PreferAuto, "":
		return &builtinHasher{}, nil
	case PreferTool:
		if shell.IsCommandExist("sha256sum") {
			return &toolHasher{tool: "sha256sum"}, nil
		}
		if shell.IsCommandExist("shasum") {
			return &toolHasher{tool: "shasum -a 256"}, nil
		}
		return nil, fmt.Errorf("no SHA-256 tool found on host (tried sha256sum, shasum)")
	default:
		return nil, fmt.Errorf("unknown hash backend preference %q", preference)
	}
}

type builtinHasher struct{}

func (h *builtinHasher) Name() string { return "sha256 (builtin)" }

func (h *builtinHasher) Sum(path string) (string, error) {
	f, err := os.Open(path)
	if err != nil {
		return "", fmt.Errorf("failed to open %s for hashing: %w", path, err)
	}
	defer f.Close()

	sum := sha256.New()
	if _, err := io.Copy(sum, f); err != nil {
		return "", fmt.Errorf("failed to hash %s: %w", path, err)
	}
	return hex.EncodeToString(sum.Sum(nil)), nil
}

type toolHasher struct {
	tool string
}

func (h *toolHasher) Name() string { return h.tool + " (external)" }

func (h *toolHasher) Sum(path string) (string, error) {
	out, err := shell.ExecCmd(h.tool+" "+shell.Quote(path), false, nil)
	if err != nil {
		return "", fmt.Errorf("checksum tool failed for %s: %w", path, err)
	}
	fields := strings.Fields(out)
	if len(fields) < 1 || len(fields[0]) != 64 {
		return "", fmt.Errorf("unexpected checksum tool output for %s: %q", path, out)
	}
	return fields[0], nil
}
