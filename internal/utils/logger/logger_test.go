package logger

import (
	"bytes"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"
)

func TestLoggerIsAlwaysAvailable(t *testing.T) {
	log := Logger()
	if log == nil {
		t.Fatal("Logger returned nil")
	}
	// repeated calls return a usable logger
	if Logger() == nil {
		t.Fatal("second Logger call returned nil")
	}
}

func TestInitWithLevel(t *testing.T) {
	sugar, cleanup := InitWithLevel("debug")
	defer cleanup()
	if sugar == nil {
		t.Fatal("InitWithLevel returned nil logger")
	}
}

func TestInitWithLevelMultipleCalls(t *testing.T) {
	_, cleanup1 := InitWithLevel("info")
	defer cleanup1()
	_, cleanup2 := InitWithLevel("debug")
	defer cleanup2()

	if Logger() == nil {
		t.Fatal("logger unavailable after reconfiguration")
	}
}

func TestInitWithConfigFile(t *testing.T) {
	logPath := filepath.Join(t.TempDir(), "run.log")

	sugar, cleanup, err := InitWithConfig(Config{Level: "debug", FilePath: logPath})
	if err != nil {
		t.Fatalf("InitWithConfig failed: %v", err)
	}
	sugar.Infof("file tee works")
	cleanup()

	data, err := os.ReadFile(logPath)
	if err != nil {
		t.Fatalf("log file not written: %v", err)
	}
	if !strings.Contains(string(data), "file tee works") {
		t.Errorf("log file missing entry:\n%s", data)
	}
}

func TestSetLogLevelFiltersOutput(t *testing.T) {
	_, cleanup := InitWithLevel("info")
	defer cleanup()

	var buf bytes.Buffer
	old := ReplaceStderrWriter(&buf)
	defer ReplaceStderrWriter(old)

	SetLogLevel("error")
	Logger().Infof("should be filtered")
	if strings.Contains(buf.String(), "should be filtered") {
		t.Error("info line emitted at error level")
	}

	SetLogLevel("debug")
	Logger().Debugf("now visible")
	if !strings.Contains(buf.String(), "now visible") {
		t.Error("debug line not emitted at debug level")
	}
}

func TestWith(t *testing.T) {
	_, cleanup := InitWithLevel("info")
	defer cleanup()

	var buf bytes.Buffer
	old := ReplaceStderrWriter(&buf)
	defer ReplaceStderrWriter(old)

	With("platform", "linux-x86_64").Infof("lane started")
	out := buf.String()
	if !strings.Contains(out, "lane started") || !strings.Contains(out, "linux-x86_64") {
		t.Errorf("structured field missing from output:\n%s", out)
	}
}

func TestParseLevel(t *testing.T) {
	cases := map[string]string{
		"debug":   "debug",
		"info":    "info",
		"warn":    "warn",
		"warning": "warn",
		"error":   "error",
		"bogus":   "info",
		"":        "info",
	}
	for in, want := range cases {
		if got := parseLevel(in).String(); got != want {
			t.Errorf("parseLevel(%q) = %s, want %s", in, got, want)
		}
	}
}

func TestConcurrentAccess(t *testing.T) {
	_, cleanup := InitWithLevel("info")
	defer cleanup()

	var wg sync.WaitGroup
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for j := 0; j < 50; j++ {
				Logger().Debugf("concurrent write")
				SetLogLevel("info")
			}
		}()
	}
	wg.Wait()
}
