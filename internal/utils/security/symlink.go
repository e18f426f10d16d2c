package security

import (
	"fmt"
	"os"
	"path/filepath"
)

// SymlinkPolicy selects what happens when a checked path is a symlink.
type SymlinkPolicy int

const (
	// RejectSymlinks fails the check on any symlink.
	RejectSymlinks SymlinkPolicy = iota
	// ResolveSymlinks follows the link and reports the target.
	ResolveSymlinks
	// AllowSymlinks passes the link through unchecked.
	AllowSymlinks
)

// SafeFileInfo is the outcome of a symlink check.
type SafeFileInfo struct {
	OriginalPath string
	ResolvedPath string
	IsSymlink    bool
	FileInfo     os.FileInfo
}

// CheckSymlink inspects path with Lstat so links are detected, not followed,
// then applies the policy.
func CheckSymlink(path string, policy SymlinkPolicy) (*SafeFileInfo, error) {
	if policy < RejectSymlinks || policy > AllowSymlinks {
		return nil, fmt.Errorf("invalid symlink policy: %d", policy)
	}

	fi, err := os.Lstat(path)
	if err != nil {
		return nil, fmt.Errorf("failed to get file info for %s: %w", path, err)
	}

	info := &SafeFileInfo{
		OriginalPath: path,
		ResolvedPath: path,
		IsSymlink:    fi.Mode()&os.ModeSymlink != 0,
		FileInfo:     fi,
	}
	if !info.IsSymlink {
		return info, nil
	}

	switch policy {
	case RejectSymlinks:
		return nil, fmt.Errorf("symlinks are not allowed: %s", path)
	case AllowSymlinks:
		return info, nil
	}

	target, err := filepath.EvalSymlinks(path)
	if err != nil {
		return nil, fmt.Errorf("failed to resolve symlink %s: %w", path, err)
	}
	targetInfo, err := os.Stat(target)
	if err != nil {
		return nil, fmt.Errorf("failed to access symlink target %s: %w", target, err)
	}
	info.ResolvedPath = target
	info.FileInfo = targetInfo
	return info, nil
}

// SafeReadFile reads path after the symlink check.
func SafeReadFile(path string, policy SymlinkPolicy) ([]byte, error) {
	info, err := CheckSymlink(path, policy)
	if err != nil {
		return nil, err
	}
	return os.ReadFile(info.ResolvedPath)
}

// SafeWriteFile writes data after checking both the target (if it already
// exists) and its parent directory against the policy.
func SafeWriteFile(path string, data []byte, perm os.FileMode, policy SymlinkPolicy) error {
	if _, err := os.Lstat(path); err == nil {
		info, err := CheckSymlink(path, policy)
		if err != nil {
			return fmt.Errorf("existing file symlink check failed: %w", err)
		}
		path = info.ResolvedPath
	}

	if dir := filepath.Dir(path); dir != "." && dir != "/" {
		info, err := CheckSymlink(dir, policy)
		if err != nil {
			return fmt.Errorf("parent directory symlink check failed: %w", err)
		}
		if info.ResolvedPath != dir {
			path = filepath.Join(info.ResolvedPath, filepath.Base(path))
		}
	}

	return os.WriteFile(path, data, perm)
}
