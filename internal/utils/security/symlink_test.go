package security

import (
	"os"
	"path/filepath"
	"testing"
)

func TestCheckSymlink_RegularFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "plain.txt")
	if err := os.WriteFile(path, []byte("data"), 0644); err != nil {
		t.Fatal(err)
	}

	for _, policy := range []SymlinkPolicy{RejectSymlinks, ResolveSymlinks, AllowSymlinks} {
		info, err := CheckSymlink(path, policy)
		if err != nil {
			t.Fatalf("policy %d rejected a regular file: %v", policy, err)
		}
		if info.IsSymlink {
			t.Errorf("policy %d: regular file flagged as symlink", policy)
		}
		if info.ResolvedPath != path {
			t.Errorf("policy %d: resolved path changed to %s", policy, info.ResolvedPath)
		}
	}
}

func TestCheckSymlink_SymlinkPolicies(t *testing.T) {
	dir := t.TempDir()
	target := filepath.Join(dir, "target.txt")
	link := filepath.Join(dir, "link.txt")
	if err := os.WriteFile(target, []byte("data"), 0644); err != nil {
		t.Fatal(err)
	}
	if err := os.Symlink(target, link); err != nil {
		t.Fatal(err)
	}

	if _, err := CheckSymlink(link, RejectSymlinks); err == nil {
		t.Fatal("RejectSymlinks accepted a symlink")
	}

	info, err := CheckSymlink(link, ResolveSymlinks)
	if err != nil {
		t.Fatalf("ResolveSymlinks failed: %v", err)
	}
	if !info.IsSymlink {
		t.Error("symlink not flagged")
	}
	resolvedTarget, err := filepath.EvalSymlinks(target)
	if err != nil {
		t.Fatal(err)
	}
	if info.ResolvedPath != resolvedTarget {
		t.Errorf("resolved to %s, want %s", info.ResolvedPath, resolvedTarget)
	}

	info, err = CheckSymlink(link, AllowSymlinks)
	if err != nil {
		t.Fatalf("AllowSymlinks failed: %v", err)
	}
	if info.ResolvedPath != link {
		t.Errorf("AllowSymlinks resolved the path to %s", info.ResolvedPath)
	}
}

func TestCheckSymlink_BrokenSymlink(t *testing.T) {
	dir := t.TempDir()
	link := filepath.Join(dir, "dangling")
	if err := os.Symlink(filepath.Join(dir, "gone"), link); err != nil {
		t.Fatal(err)
	}
	if _, err := CheckSymlink(link, ResolveSymlinks); err == nil {
		t.Fatal("broken symlink resolved without error")
	}
}

func TestCheckSymlink_NonExistentFile(t *testing.T) {
	if _, err := CheckSymlink(filepath.Join(t.TempDir(), "nope"), RejectSymlinks); err == nil {
		t.Fatal("missing file accepted")
	}
}

func TestCheckSymlink_InvalidPolicy(t *testing.T) {
	if _, err := CheckSymlink("/tmp", SymlinkPolicy(42)); err == nil {
		t.Fatal("invalid policy accepted")
	}
}

func TestSafeReadFile_SymlinkRejected(t *testing.T) {
	dir := t.TempDir()
	target := filepath.Join(dir, "config.yml")
	link := filepath.Join(dir, "link.yml")
	if err := os.WriteFile(target, []byte("workers: 4\n"), 0644); err != nil {
		t.Fatal(err)
	}
	if err := os.Symlink(target, link); err != nil {
		t.Fatal(err)
	}

	if _, err := SafeReadFile(link, RejectSymlinks); err == nil {
		t.Fatal("SafeReadFile read through a symlink under RejectSymlinks")
	}
	data, err := SafeReadFile(target, RejectSymlinks)
	if err != nil {
		t.Fatalf("SafeReadFile failed on regular file: %v", err)
	}
	if string(data) != "workers: 4\n" {
		t.Errorf("unexpected content %q", data)
	}
}

func TestSafeWriteFile_RegularAndSymlink(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "out.txt")

	if err := SafeWriteFile(path, []byte("one"), 0600, RejectSymlinks); err != nil {
		t.Fatalf("SafeWriteFile failed: %v", err)
	}

	// replace the file with a symlink and try again
	if err := os.Remove(path); err != nil {
		t.Fatal(err)
	}
	other := filepath.Join(dir, "other.txt")
	if err := os.WriteFile(other, []byte("x"), 0600); err != nil {
		t.Fatal(err)
	}
	if err := os.Symlink(other, path); err != nil {
		t.Fatal(err)
	}
	if err := SafeWriteFile(path, []byte("two"), 0600, RejectSymlinks); err == nil {
		t.Fatal("SafeWriteFile wrote through a symlink under RejectSymlinks")
	}
}
