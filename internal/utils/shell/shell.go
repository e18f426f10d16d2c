package shell

import (
	"bufio"
	"bytes"
	"fmt"
	"os/exec"
	"strings"
	"sync"

	"github.com/release-tools/release-composer/internal/utils/logger"
)

// commandMap is the allowlist of external commands the composer may run.
// Every command is pinned to a full path so an attacker-controlled PATH
// cannot redirect an invocation.
var commandMap = map[string]string{
	"apt-get":    "/usr/bin/apt-get",
	"bash":       "/usr/bin/bash",
	"cargo":      "cargo",  // resolved via rustup shims, not a fixed path
	"rustup":     "rustup", // same
	"chmod":      "/usr/bin/chmod",
	"dpkg":       "/usr/bin/dpkg",
	"dpkg-query": "/usr/bin/dpkg-query",
	"sha256sum":  "/usr/bin/sha256sum",
	"shasum":     "/usr/bin/shasum",
	"tar":        "/usr/bin/tar",
	"unzip":      "/usr/bin/unzip",
	"uname":      "/usr/bin/uname",
	"zip":        "/usr/bin/zip",
	"zipinfo":    "/usr/bin/zipinfo",
	"powershell": "powershell",
	"brew":       "/opt/homebrew/bin/brew",
	// Add more mappings as needed
}

// Quote wraps s in single quotes so it survives bash word splitting when
// interpolated into a command string. Embedded single quotes are closed,
// escaped and reopened.
func Quote(s string) string {
	return "'" + strings.ReplaceAll(s, "'", `'\''`) + "'"
}

// IsCommandExist checks if a command is resolvable on the host
func IsCommandExist(cmd string) bool {
	output, _ := exec.Command("bash", "-c", "command -v "+cmd).Output()
	return len(bytes.TrimSpace(output)) != 0
}

func verifyCmdWithFullPath(cmd string) (string, error) {
	separators := []string{"&&", "||", ";"}

	sepIdx := -1
	sep := ""
	for _, s := range separators {
		if idx := strings.Index(cmd, s); idx != -1 && (sepIdx == -1 || idx < sepIdx) {
			sepIdx = idx
			sep = s
		}
	}
	if sepIdx != -1 {
		left := strings.TrimSpace(cmd[:sepIdx])
		right := strings.TrimSpace(cmd[sepIdx+len(sep):])
		leftCmdStr, err := verifyCmdWithFullPath(left)
		if err != nil {
			return "", fmt.Errorf("failed to verify command: %w", err)
		}
		rightCmdStr, err := verifyCmdWithFullPath(right)
		if err != nil {
			return "", fmt.Errorf("failed to verify command: %w", err)
		}
		return leftCmdStr + " " + sep + " " + rightCmdStr, nil
	}

	fields := strings.Fields(cmd)
	if len(fields) == 0 {
		return cmd, nil
	}
	bin := fields[0]
	fullPath, ok := commandMap[bin]
	if ok {
		fields[0] = fullPath
	} else {
		return "", fmt.Errorf("command %s not found in commandMap", bin)
	}
	return strings.Join(fields, " "), nil
}

// GetFullCmdStr prepares a command string with allowlist resolution,
// optional sudo and environment variable prefixes
func GetFullCmdStr(cmdStr string, sudo bool, envVal []string) (string, error) {
	log := logger.Logger()
	envValStr := ""
	for _, env := range envVal {
		envValStr += env + " "
	}

	fullPathCmdStr, err := verifyCmdWithFullPath(cmdStr)
	if err != nil {
		return fullPathCmdStr, fmt.Errorf("failed to verify command with full path: %w", err)
	}

	var fullCmdStr string
	if sudo {
		fullCmdStr = "sudo " + envValStr + fullPathCmdStr
		log.Debugf("Exec: [sudo " + fullPathCmdStr + "]")
	} else {
		fullCmdStr = envValStr + fullPathCmdStr
		log.Debugf("Exec: [" + fullPathCmdStr + "]")
	}

	return fullCmdStr, nil
}

// ExecCmd executes a command and returns its combined output
func ExecCmd(cmdStr string, sudo bool, envVal []string) (string, error) {
	log := logger.Logger()
	fullCmdStr, err := GetFullCmdStr(cmdStr, sudo, envVal)
	if err != nil {
		return "", fmt.Errorf("failed to get full command string: %w", err)
	}

	cmd := exec.Command("bash", "-c", fullCmdStr)
	output, err := cmd.CombinedOutput()
	outputStr := string(output)

	if err != nil {
		if outputStr != "" {
			log.Infof(outputStr)
		}
		return outputStr, fmt.Errorf("failed to exec %s: %w", fullCmdStr, err)
	}
	if outputStr != "" {
		log.Debugf(outputStr)
	}
	return outputStr, nil
}

// ExecCmdInDir executes a command with the working directory set to dir
func ExecCmdInDir(cmdStr string, dir string, envVal []string) (string, error) {
	log := logger.Logger()
	fullCmdStr, err := GetFullCmdStr(cmdStr, false, envVal)
	if err != nil {
		return "", fmt.Errorf("failed to get full command string: %w", err)
	}

	cmd := exec.Command("bash", "-c", fullCmdStr)
	cmd.Dir = dir
	output, err := cmd.CombinedOutput()
	outputStr := string(output)

	if err != nil {
		if outputStr != "" {
			log.Infof(outputStr)
		}
		return outputStr, fmt.Errorf("failed to exec %s in %s: %w", fullCmdStr, dir, err)
	}
	if outputStr != "" {
		log.Debugf(outputStr)
	}
	return outputStr, nil
}

// ExecCmdWithStream executes a command and streams its output line by line
// through the logger while it runs. Long compiles stay visible this way
// instead of buffering until exit. An empty dir inherits the working
// directory.
func ExecCmdWithStream(cmdStr string, dir string, envVal []string) (string, error) {
	var outputStr string
	log := logger.Logger()

	fullCmdStr, err := GetFullCmdStr(cmdStr, false, envVal)
	if err != nil {
		return "", fmt.Errorf("failed to get full command string: %w", err)
	}
	cmd := exec.Command("bash", "-c", fullCmdStr)
	if dir != "" {
		cmd.Dir = dir
	}
	stdout, err := cmd.StdoutPipe()
	if err != nil {
		return "", fmt.Errorf("failed to get stdout pipe for command %s: %w", fullCmdStr, err)
	}
	stderr, err := cmd.StderrPipe()
	if err != nil {
		return "", fmt.Errorf("failed to get stderr pipe for command %s: %w", fullCmdStr, err)
	}

	if err := cmd.Start(); err != nil {
		return "", fmt.Errorf("failed to start command %s: %w", fullCmdStr, err)
	}

	var wg sync.WaitGroup
	wg.Add(2)

	go func() {
		defer wg.Done()
		scanner := bufio.NewScanner(stdout)
		for scanner.Scan() {
			str := scanner.Text()
			if str != "" {
				outputStr += str
				log.Infof(str)
			}
		}
	}()

	go func() {
		defer wg.Done()
		scanner := bufio.NewScanner(stderr)
		for scanner.Scan() {
			str := scanner.Text()
			if str != "" {
				log.Infof(str)
			}
		}
	}()

	wg.Wait()

	if err := cmd.Wait(); err != nil {
		return outputStr, fmt.Errorf("failed to wait for command %s: %w", fullCmdStr, err)
	}

	return outputStr, nil
}
