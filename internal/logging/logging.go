// Package logging builds the diagnostic logger. Diagnostics go to a rotated
// JSON file so they never interleave with command output; --debug also tees
// them to stderr.
package logging

import (
	"fmt"
	"io"
	"os"
	"path/filepath"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"gopkg.in/natefinch/lumberjack.v2"
)

// Config represents logger configuration
type Config struct {
	// Path is the log file; empty disables file logging
	Path string

	// Level is the minimum level (debug, info, warn, error)
	Level string

	// MaxSizeMB is the size in megabytes before rotation
	MaxSizeMB int

	// MaxBackups is the number of rotated files to keep
	MaxBackups int

	// MaxAgeDays is the number of days to keep rotated files
	MaxAgeDays int

	// Console tees entries to Stderr in a human readable form
	Console bool

	// Stderr receives console output; defaults to os.Stderr
	Stderr io.Writer
}

// New creates a logger from config. With neither a path nor console output
// it returns a no-op logger. The returned closer releases the log file and
// must be called after the final Sync.
func New(config Config) (*zap.Logger, io.Closer, error) {
	level := zapcore.InfoLevel
	if config.Level != "" {
		parsed, err := zapcore.ParseLevel(config.Level)
		if err != nil {
			return nil, nil, fmt.Errorf("invalid log level %s: %w", config.Level, err)
		}
		level = parsed
	}

	encoderConfig := zapcore.EncoderConfig{
		TimeKey:        "timestamp",
		LevelKey:       "level",
		NameKey:        "logger",
		CallerKey:      "caller",
		MessageKey:     "message",
		StacktraceKey:  "stacktrace",
		LineEnding:     zapcore.DefaultLineEnding,
		EncodeLevel:    zapcore.LowercaseLevelEncoder,
		EncodeTime:     zapcore.ISO8601TimeEncoder,
		EncodeDuration: zapcore.MillisDurationEncoder,
		EncodeCaller:   zapcore.ShortCallerEncoder,
	}

	var cores []zapcore.Core
	var closer io.Closer = nopCloser{}

	if config.Path != "" {
		if err := os.MkdirAll(filepath.Dir(config.Path), 0o700); err != nil {
			return nil, nil, fmt.Errorf("create log directory: %w", err)
		}
		rotator := &lumberjack.Logger{
			Filename:   config.Path,
			MaxSize:    config.MaxSizeMB,
			MaxBackups: config.MaxBackups,
			MaxAge:     config.MaxAgeDays,
			Compress:   true,
		}
		closer = rotator
		cores = append(cores, zapcore.NewCore(
			zapcore.NewJSONEncoder(encoderConfig),
			zapcore.AddSync(rotator),
			level,
		))
	}

	if config.Console {
		stderr := config.Stderr
		if stderr == nil {
			stderr = os.Stderr
		}
		consoleConfig := encoderConfig
		consoleConfig.EncodeLevel = zapcore.CapitalLevelEncoder
		consoleConfig.EncodeTime = zapcore.TimeEncoderOfLayout("15:04:05.000")
		cores = append(cores, zapcore.NewCore(
			zapcore.NewConsoleEncoder(consoleConfig),
			zapcore.AddSync(stderr),
			zapcore.DebugLevel,
		))
	}

	if len(cores) == 0 {
		return zap.NewNop(), closer, nil
	}

	return zap.New(zapcore.NewTee(cores...), zap.AddCaller()), closer, nil
}

type nopCloser struct{}

func (nopCloser) Close() error { return nil }

// OrNop returns l, or a no-op logger when l is nil
func OrNop(l *zap.Logger) *zap.Logger {
	if l == nil {
		return zap.NewNop()
	}
	return l
}
