package slice_test

import (
	"reflect"
	"testing"

	"github.com/release-tools/release-composer/internal/utils/slice"
)

func TestContains(t *testing.T) {
	s := []string{"a", "b", "c"}
	if !slice.Contains(s, "b") {
		t.Error("expected to find b")
	}
	if slice.Contains(s, "d") {
		t.Error("found d in slice that lacks it")
	}
	if slice.Contains(nil, "a") {
		t.Error("found a in nil slice")
	}
}

func TestContainsSubstring(t *testing.T) {
	s := []string{"demo-v1.2.3-linux-x86_64.tar.gz", "checksums.txt"}
	if got := slice.ContainsSubstring(s, "linux-x86_64"); got != s[0] {
		t.Errorf("ContainsSubstring = %q, want %q", got, s[0])
	}
	if got := slice.ContainsSubstring(s, "windows"); got != "" {
		t.Errorf("ContainsSubstring = %q, want empty", got)
	}
}

func TestSplitCSV(t *testing.T) {
	got := slice.SplitCSV(" linux-arm64, macos-arm64 ,, ")
	want := []string{"linux-arm64", "macos-arm64"}
	if !reflect.DeepEqual(got, want) {
		t.Errorf("SplitCSV = %v, want %v", got, want)
	}
	if got := slice.SplitCSV(""); len(got) != 0 {
		t.Errorf("SplitCSV(\"\") = %v, want empty", got)
	}
}
