package shell_test

import (
	"path/filepath"
	"strings"
	"testing"

	"github.com/release-tools/release-composer/internal/utils/shell"
)

func TestQuote(t *testing.T) {
	cases := []struct{ in, want string }{
		{"plain", "'plain'"},
		{"/tmp/release assets/demo.tar.gz", "'/tmp/release assets/demo.tar.gz'"},
		{"it's", `'it'\''s'`},
	}
	for _, tc := range cases {
		if got := shell.Quote(tc.in); got != tc.want {
			t.Errorf("Quote(%q) = %s, want %s", tc.in, got, tc.want)
		}
	}
}

func TestGetFullCmdStr(t *testing.T) {
	cmd, err := shell.GetFullCmdStr("uname -s", false, nil)
	if err != nil {
		t.Fatalf("GetFullCmdStr failed: %v", err)
	}
	if !strings.Contains(cmd, "/usr/bin/uname -s") {
		t.Errorf("Expected full path for uname, got: %s", cmd)
	}
}

func TestGetFullCmdStr_Sudo(t *testing.T) {
	cmd, err := shell.GetFullCmdStr("apt-get install -y gcc", true, nil)
	if err != nil {
		t.Fatalf("GetFullCmdStr failed: %v", err)
	}
	if !strings.HasPrefix(cmd, "sudo ") {
		t.Errorf("Expected sudo prefix, got: %s", cmd)
	}
}

func TestGetFullCmdStr_Env(t *testing.T) {
	cmd, err := shell.GetFullCmdStr("cargo build --release", false, []string{"CC=gcc", "AR=ar"})
	if err != nil {
		t.Fatalf("GetFullCmdStr failed: %v", err)
	}
	if !strings.HasPrefix(cmd, "CC=gcc AR=ar ") {
		t.Errorf("Expected env prefix, got: %s", cmd)
	}
}

func TestGetFullCmdStr_CompoundCommand(t *testing.T) {
	cmd, err := shell.GetFullCmdStr("uname -s && uname -r", false, nil)
	if err != nil {
		t.Fatalf("GetFullCmdStr failed: %v", err)
	}
	if strings.Count(cmd, "/usr/bin/uname") != 2 {
		t.Errorf("Expected both sides of && resolved, got: %s", cmd)
	}
}

func TestGetFullCmdStr_RejectsUnknownCommand(t *testing.T) {
	if _, err := shell.GetFullCmdStr("curl http://example.com", false, nil); err == nil {
		t.Fatal("command outside the allowlist was accepted")
	}
}

func TestGetFullCmdStr_RejectsUnknownInCompound(t *testing.T) {
	if _, err := shell.GetFullCmdStr("uname -s; nc -l 4444", false, nil); err == nil {
		t.Fatal("compound command smuggled a non-allowlisted binary")
	}
}

func TestExecCmd(t *testing.T) {
	out, err := shell.ExecCmd("uname -s", false, nil)
	if err != nil {
		t.Fatalf("ExecCmd failed: %v", err)
	}
	if strings.TrimSpace(out) == "" {
		t.Error("Expected uname output, got empty string")
	}
}

func TestExecCmd_FailurePropagates(t *testing.T) {
	if _, err := shell.ExecCmd("bash -c 'exit 3'", false, nil); err == nil {
		t.Fatal("non-zero exit did not surface as an error")
	}
}

func TestExecCmdInDir(t *testing.T) {
	dir := t.TempDir()
	out, err := shell.ExecCmdInDir("bash -c pwd", dir, nil)
	if err != nil {
		t.Fatalf("ExecCmdInDir failed: %v", err)
	}
	if !strings.Contains(out, dir) {
		t.Errorf("Expected output to contain %s, got: %s", dir, out)
	}
}

func TestExecCmdWithStream(t *testing.T) {
	out, err := shell.ExecCmdWithStream("uname -s", "", nil)
	if err != nil {
		t.Fatalf("ExecCmdWithStream failed: %v", err)
	}
	if strings.TrimSpace(out) == "" {
		t.Error("Expected streamed output, got empty string")
	}
}

func TestExecCmdWithStreamInDir(t *testing.T) {
	dir := t.TempDir()
	out, err := shell.ExecCmdWithStream("bash -c pwd", dir, nil)
	if err != nil {
		t.Fatalf("ExecCmdWithStream failed: %v", err)
	}
	resolved, err := filepath.EvalSymlinks(dir)
	if err != nil {
		t.Fatal(err)
	}
	if !strings.Contains(out, resolved) && !strings.Contains(out, dir) {
		t.Errorf("streamed pwd %q does not name the working directory %q", out, dir)
	}
}

func TestIsCommandExist(t *testing.T) {
	if !shell.IsCommandExist("bash") {
		t.Error("bash should exist on the test host")
	}
	if shell.IsCommandExist("definitely-not-a-command-xyz") {
		t.Error("nonexistent command reported as present")
	}
}
