// Package log is the agent's structured logger. Messages go to stdout and,
// when a directory is configured, to day-slot rotated files there:
// stdlog-N.log receives everything, errors-N.log only errors.
package log

import (
	"fmt"
	"os"
	"sync"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

// Options configures Init.
type Options struct {
	// Dir holds the rotated log files. Empty logs to stdout only.
	Dir   string
	Debug bool
}

var (
	mu     sync.RWMutex
	logger = zap.NewNop()
	files  []*RotatingWriter
)

// Init replaces the package logger. Until it is called every message is
// discarded.
func Init(opts Options) error {
	level := zap.InfoLevel
	if opts.Debug {
		level = zap.DebugLevel
	}

	consoleCfg := zap.NewDevelopmentEncoderConfig()
	consoleCfg.EncodeLevel = zapcore.CapitalLevelEncoder
	cores := []zapcore.Core{
		zapcore.NewCore(zapcore.NewConsoleEncoder(consoleCfg), zapcore.Lock(os.Stdout), level),
	}

	var writers []*RotatingWriter
	if opts.Dir != "" {
		if err := os.MkdirAll(opts.Dir, 0o755); err != nil {
			return fmt.Errorf("create log dir: %w", err)
		}
		std := NewRotatingWriter(opts.Dir, "stdlog")
		errs := NewRotatingWriter(opts.Dir, "errors")
		writers = append(writers, std, errs)

		fileEnc := zapcore.NewJSONEncoder(zap.NewProductionEncoderConfig())
		cores = append(cores,
			zapcore.NewCore(fileEnc, std, level),
			zapcore.NewCore(fileEnc, errs, zap.ErrorLevel),
		)
	}

	l := zap.New(zapcore.NewTee(cores...), zap.AddCaller(), zap.AddCallerSkip(1))

	mu.Lock()
	old := files
	logger, files = l, writers
	mu.Unlock()

	for _, w := range old {
		w.Close()
	}
	return nil
}

// Set replaces the package logger with l, e.g. zaptest's logger in tests.
func Set(l *zap.Logger) {
	mu.Lock()
	logger = l.WithOptions(zap.AddCallerSkip(1))
	mu.Unlock()
}

func get() *zap.Logger {
	mu.RLock()
	defer mu.RUnlock()
	return logger
}

// L returns the package logger for callers that build child loggers.
func L() *zap.Logger {
	return get().WithOptions(zap.AddCallerSkip(-1))
}

func Debug(msg string, fields ...zap.Field) { get().Debug(msg, fields...) }
func Info(msg string, fields ...zap.Field)  { get().Info(msg, fields...) }
func Warn(msg string, fields ...zap.Field)  { get().Warn(msg, fields...) }
func Error(msg string, fields ...zap.Field) { get().Error(msg, fields...) }

// PrintIfErr logs *err when it is non-nil. It takes a pointer so it can
// be deferred against a named error result.
func PrintIfErr(msg string, err *error) {
	if err != nil && *err != nil {
		get().Error(msg, zap.Error(*err))
	}
}

// Sync flushes buffered entries and the log files.
func Sync() error {
	return get().Sync()
}
