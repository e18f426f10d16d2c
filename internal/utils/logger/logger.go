package logger

import (
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
	"sync"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

// Config selects the log level and an optional file to tee into.
type Config struct {
	Level    string
	FilePath string
}

// redirectableWriter lets tests capture console output without rebuilding
// the zap core.
type redirectableWriter struct {
	mu  sync.RWMutex
	dst io.Writer
}

func (w *redirectableWriter) Write(p []byte) (int, error) {
	w.mu.RLock()
	defer w.mu.RUnlock()
	if w.dst == nil {
		return 0, nil
	}
	return w.dst.Write(p)
}

func (w *redirectableWriter) Sync() error { return nil }

var (
	mu          sync.RWMutex
	once        sync.Once
	baseLogger  *zap.Logger
	sugarLogger *zap.SugaredLogger
	atomicLevel zap.AtomicLevel
	logFile     *os.File
	activeCfg   Config
	consoleOut  = &redirectableWriter{dst: os.Stderr}
)

// Logger returns the process-wide sugared logger, initializing it at info
// level on first use.
func Logger() *zap.SugaredLogger {
	once.Do(func() {
		if err := rebuild(Config{Level: "info"}); err != nil {
			panic(fmt.Sprintf("logger initialization failed: %v", err))
		}
	})

	mu.RLock()
	defer mu.RUnlock()
	if sugarLogger == nil {
		panic("logger initialization failed: sugarLogger is nil")
	}
	return sugarLogger
}

func With(args ...interface{}) *zap.SugaredLogger {
	return Logger().With(args...)
}

// InitWithConfig builds (or reconfigures) the global logger. The returned
// cleanup must be deferred; it syncs and closes the log file if one is open.
func InitWithConfig(cfg Config) (*zap.SugaredLogger, func(), error) {
	want := Config{Level: parseLevel(cfg.Level).String(), FilePath: strings.TrimSpace(cfg.FilePath)}

	var initErr error
	fresh := false
	once.Do(func() {
		initErr = rebuild(cfg)
		fresh = true
	})
	if initErr != nil {
		return nil, nil, fmt.Errorf("logger initialization failed: %w", initErr)
	}

	if !fresh {
		mu.RLock()
		same := activeCfg == want
		mu.RUnlock()
		if !same {
			if err := rebuild(cfg); err != nil {
				return nil, nil, fmt.Errorf("logger reconfiguration failed: %w", err)
			}
		}
	}

	mu.RLock()
	defer mu.RUnlock()
	if baseLogger == nil {
		return nil, nil, fmt.Errorf("logger initialization failed: baseLogger is nil")
	}
	return sugarLogger, cleanupFunc(logFile), nil
}

// InitWithLevel is InitWithConfig without a log file; it panics on failure
// since nothing can run unlogged.
func InitWithLevel(level string) (*zap.SugaredLogger, func()) {
	sugar, cleanup, err := InitWithConfig(Config{Level: level})
	if err != nil {
		panic(fmt.Sprintf("logger initialization failed: %v", err))
	}
	return sugar, cleanup
}

func rebuild(cfg Config) error {
	mu.Lock()
	defer mu.Unlock()

	level := parseLevel(cfg.Level)
	if atomicLevel == (zap.AtomicLevel{}) {
		atomicLevel = zap.NewAtomicLevelAt(level)
	} else {
		atomicLevel.SetLevel(level)
	}

	encCfg := zap.NewDevelopmentConfig().EncoderConfig
	encCfg.EncodeLevel = zapcore.CapitalColorLevelEncoder
	encCfg.EncodeTime = zapcore.ISO8601TimeEncoder
	encCfg.EncodeCaller = zapcore.ShortCallerEncoder

	cores := []zapcore.Core{
		zapcore.NewCore(zapcore.NewConsoleEncoder(encCfg), zapcore.AddSync(consoleOut), atomicLevel),
	}

	filePath := strings.TrimSpace(cfg.FilePath)
	if filePath != "" {
		fileCore, handle, err := openFileCore(encCfg, filePath)
		if err != nil {
			return err
		}
		if logFile != nil && logFile != handle {
			_ = logFile.Close()
		}
		logFile = handle
		cores = append(cores, fileCore)
	} else if logFile != nil {
		_ = logFile.Close()
		logFile = nil
	}

	l := zap.New(zapcore.NewTee(cores...),
		zap.AddCaller(),
		zap.Development(),
		zap.AddStacktrace(zapcore.ErrorLevel),
	)
	baseLogger = l
	sugarLogger = l.Sugar()
	zap.ReplaceGlobals(l)
	activeCfg = Config{Level: level.String(), FilePath: filePath}
	return nil
}

func openFileCore(encCfg zapcore.EncoderConfig, path string) (zapcore.Core, *os.File, error) {
	cleaned := filepath.Clean(path)
	if dir := filepath.Dir(cleaned); dir != "." && dir != "" {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return nil, nil, fmt.Errorf("creating log directory %q: %w", dir, err)
		}
	}
	file, err := os.OpenFile(cleaned, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o640)
	if err != nil {
		return nil, nil, fmt.Errorf("opening log file %q: %w", cleaned, err)
	}

	// Plain (uncolored) levels in the file copy.
	fileCfg := encCfg
	fileCfg.EncodeLevel = zapcore.CapitalLevelEncoder
	core := zapcore.NewCore(zapcore.NewConsoleEncoder(fileCfg), zapcore.AddSync(file), atomicLevel)
	return core, file, nil
}

func cleanupFunc(file *os.File) func() {
	return func() {
		mu.Lock()
		defer mu.Unlock()
		if baseLogger != nil {
			if err := baseLogger.Sync(); err != nil {
				fmt.Fprintf(os.Stderr, "error syncing logger: %v\n", err)
			}
		}
		if file != nil {
			if err := file.Close(); err != nil {
				fmt.Fprintf(os.Stderr, "error closing log file: %v\n", err)
			}
			if logFile == file {
				logFile = nil
			}
		}
	}
}

// SetLogLevel changes the level in place; a no-op before first init.
func SetLogLevel(level string) {
	mu.Lock()
	defer mu.Unlock()
	if atomicLevel == (zap.AtomicLevel{}) {
		return
	}
	lv := parseLevel(level)
	atomicLevel.SetLevel(lv)
	activeCfg.Level = lv.String()
}

func parseLevel(level string) zapcore.Level {
	switch strings.ToLower(level) {
	case "debug":
		return zapcore.DebugLevel
	case "info":
		return zapcore.InfoLevel
	case "warn", "warning":
		return zapcore.WarnLevel
	case "error":
		return zapcore.ErrorLevel
	default:
		return zapcore.InfoLevel
	}
}

// ReplaceStderrWriter redirects console log output, returning the previous
// writer. Passing nil restores os.Stderr.
func ReplaceStderrWriter(newOut io.Writer) (oldOut io.Writer) {
	if newOut == nil {
		newOut = os.Stderr
	}
	consoleOut.mu.Lock()
	defer consoleOut.mu.Unlock()
	oldOut = consoleOut.dst
	if oldOut == nil {
		oldOut = os.Stderr
	}
	consoleOut.dst = newOut
	return
}
