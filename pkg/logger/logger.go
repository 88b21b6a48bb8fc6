// Package logger provides the process-wide run log. Messages go to a
// rotating file and, in verbose mode, to stderr.
package logger

import (
	"fmt"
	"io"
	"os"
	"sync"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"gopkg.in/natefinch/lumberjack.v2"
)

// Options configures the global logger.
type Options struct {
	Path       string // Log file path; empty disables the file sink
	Level      string // debug, info, warn, error
	Console    bool   // Mirror entries to stderr
	MaxSizeMB  int
	MaxBackups int
}

var (
	globalLogger *zap.SugaredLogger
	fileSink     *lumberjack.Logger
	mu           sync.Mutex
)

// Init initializes the global logger with the specified log file path.
func Init(logPath string) error {
	return InitWithOptions(Options{Path: logPath, Level: "debug"})
}

// InitWithOptions initializes the global logger. Calling it again replaces
// the previous logger and closes its file.
func InitWithOptions(opts Options) error {
	mu.Lock()
	defer mu.Unlock()

	closeLocked()

	level := zap.NewAtomicLevel()
	if opts.Level == "" {
		opts.Level = "info"
	}
	if err := level.UnmarshalText([]byte(opts.Level)); err != nil {
		return fmt.Errorf("invalid log level %q: %w", opts.Level, err)
	}

	var cores []zapcore.Core
	if opts.Path != "" {
		// Probe the path so a bad location fails Init instead of the first write.
		f, err := os.OpenFile(opts.Path, os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0644)
		if err != nil {
			return fmt.Errorf("failed to create log file: %w", err)
		}
		f.Close()

		maxSize := opts.MaxSizeMB
		if maxSize <= 0 {
			maxSize = 10
		}
		fileSink = &lumberjack.Logger{
			Filename:   opts.Path,
			MaxSize:    maxSize,
			MaxBackups: opts.MaxBackups,
		}
		cores = append(cores, zapcore.NewCore(newEncoder(false), zapcore.AddSync(fileSink), level))
	}
	if opts.Console {
		cores = append(cores, zapcore.NewCore(newEncoder(true), zapcore.Lock(os.Stderr), level))
	}
	if len(cores) == 0 {
		globalLogger = nil
		return nil
	}

	globalLogger = zap.New(zapcore.NewTee(cores...)).Sugar()
	return nil
}

func newEncoder(console bool) zapcore.Encoder {
	cfg := zap.NewProductionEncoderConfig()
	cfg.TimeKey = "time"
	cfg.EncodeTime = zapcore.TimeEncoderOfLayout("15:04:05.000000")
	cfg.EncodeLevel = zapcore.CapitalLevelEncoder
	if console {
		cfg.EncodeLevel = zapcore.CapitalColorLevelEncoder
	}
	return zapcore.NewConsoleEncoder(cfg)
}

// Close flushes and closes the log file.
func Close() {
	mu.Lock()
	defer mu.Unlock()
	closeLocked()
}

func closeLocked() {
	if globalLogger != nil {
		_ = globalLogger.Sync()
		globalLogger = nil
	}
	if fileSink != nil {
		fileSink.Close()
		fileSink = nil
	}
}

// Info logs an info message.
func Info(format string, v ...interface{}) {
	mu.Lock()
	defer mu.Unlock()

	if globalLogger != nil {
		globalLogger.Infof(format, v...)
	}
}

// Debug logs a debug message.
func Debug(format string, v ...interface{}) {
	mu.Lock()
	defer mu.Unlock()

	if globalLogger != nil {
		globalLogger.Debugf(format, v...)
	}
}

// Error logs an error message.
func Error(format string, v ...interface{}) {
	mu.Lock()
	defer mu.Unlock()

	if globalLogger != nil {
		globalLogger.Errorf(format, v...)
	}
}

// Warn logs a warning message.
func Warn(format string, v ...interface{}) {
	mu.Lock()
	defer mu.Unlock()

	if globalLogger != nil {
		globalLogger.Warnf(format, v...)
	}
}

// GetWriter returns the underlying file writer for raw driver traffic.
func GetWriter() io.Writer {
	mu.Lock()
	defer mu.Unlock()

	if fileSink != nil {
		return fileSink
	}
	return io.Discard
}
