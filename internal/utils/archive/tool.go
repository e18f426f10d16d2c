package archive

import (
	"fmt"
	"path/filepath"
	"strings"

	"github.com/release-tools/release-composer/internal/utils/shell"
)

// toolTar shells out to the host tar for tar.gz (z) and tar.xz (J).
type toolTar struct {
	flag   string
	format Format
}

func (t *toolTar) Name() string { return "tar (external)" }

func (t *toolTar) Compress(srcDir, outPath string) error {
	parent := filepath.Dir(srcDir)
	base := filepath.Base(srcDir)
	cmdStr := fmt.Sprintf("tar -c%sf %s -C %s %s", t.flag, shell.Quote(outPath), shell.Quote(parent), shell.Quote(base))
	if _, err := shell.ExecCmd(cmdStr, false, nil); err != nil {
		return fmt.Errorf("tar compression of %s failed: %w", srcDir, err)
	}
	return nil
}

func (t *toolTar) List(path string) ([]string, error) {
	out, err := shell.ExecCmd(fmt.Sprintf("tar -t%sf %s", t.flag, shell.Quote(path)), false, nil)
	if err != nil {
		return nil, fmt.Errorf("tar listing of %s failed: %w", path, err)
	}
	return splitLines(out), nil
}

// toolZip shells out to zip/unzip.
type toolZip struct{}

func (z *toolZip) Name() string { return "zip (external)" }

func (z *toolZip) Compress(srcDir, outPath string) error {
	parent := filepath.Dir(srcDir)
	base := filepath.Base(srcDir)
	// zip wants to run from the parent so entry names stay relative
	cmdStr := fmt.Sprintf("zip -r %s %s", shell.Quote(outPath), shell.Quote(base))
	if _, err := shell.ExecCmdInDir(cmdStr, parent, nil); err != nil {
		return fmt.Errorf("zip compression of %s failed: %w", srcDir, err)
	}
	return nil
}

func (z *toolZip) List(path string) ([]string, error) {
	out, err := shell.ExecCmd("unzip -Z1 "+shell.Quote(path), false, nil)
	if err != nil {
		return nil, fmt.Errorf("zip listing of %s failed: %w", path, err)
	}
	return splitLines(out), nil
}

func splitLines(s string) []string {
	var lines []string
	for _, line := range strings.Split(s, "\n") {
		line = strings.TrimSpace(line)
		if line != "" {
			lines = append(lines, line)
		}
	}
	return lines
}
