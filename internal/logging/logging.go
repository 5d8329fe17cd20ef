// Package logging provides structured logging functionality using Go's slog package.
// It supports both text and JSON output formats, configurable log levels,
// and context-aware logging for the netsweep application.
package logging

import (
	"context"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
)

const (
	// File permissions for directories and log files.
	logDirPerm  = 0750
	logFilePerm = 0600
)

// LogLevel represents the available log levels.
type LogLevel string

const (
	LevelDebug LogLevel = "debug"
	LevelInfo  LogLevel = "info"
	LevelWarn  LogLevel = "warn"
	LevelError LogLevel = "error"
)

// LogFormat represents the available log formats.
type LogFormat string

const (
	FormatText LogFormat = "text"
	FormatJSON LogFormat = "json"
)

// Config holds logging configuration.
type Config struct {
	Level     LogLevel  `yaml:"level" json:"level"`
	Format    LogFormat `yaml:"format" json:"format"`
	Output    string    `yaml:"output" json:"output"`
	AddSource bool      `yaml:"add_source" json:"add_source"`
}

// DefaultConfig returns a default logging configuration.
func DefaultConfig() Config {
	return Config{
		Level:     LevelInfo,
		Format:    FormatText,
		Output:    "stderr",
		AddSource: false,
	}
}

// Logger wraps slog.Logger with additional functionality.
type Logger struct {
	*slog.Logger
	config Config
}

// New creates a new structured logger with the given configuration.
func New(cfg Config) (*Logger, error) {
	// Parse log level
	var level slog.Level
	switch strings.ToLower(string(cfg.Level)) {
	case "debug":
		level = slog.LevelDebug
	case "info":
		level = slog.LevelInfo
	case "warn":
		level = slog.LevelWarn
	case "error":
		level = slog.LevelError
	default:
		level = slog.LevelInfo
	}

	// Determine output writer
	var writer io.Writer
	switch cfg.Output {
	case "stdout":
		writer = os.Stdout
	case "stderr":
		writer = os.Stderr
	default:
		// Assume it's a file path
		if err := os.MkdirAll(filepath.Dir(cfg.Output), logDirPerm); err != nil {
			return nil, err
		}
		file, err := os.OpenFile(cfg.Output, os.O_CREATE|os.O_WRONLY|os.O_APPEND, logFilePerm)
		if err != nil {
			return nil, err
		}
		writer = file
	}

	// Create handler options
	opts := &slog.HandlerOptions{
		Level:     level,
		AddSource: cfg.AddSource,
	}

	// Create handler based on format
	var handler slog.Handler
	switch cfg.Format {
	case FormatJSON:
		handler = slog.NewJSONHandler(writer, opts)
	default:
		handler = slog.NewTextHandler(writer, opts)
	}

	return &Logger{
		Logger: slog.New(handler),
		config: cfg,
	}, nil
}

// NewDefault creates a logger with default configuration.
func NewDefault() *Logger {
	logger, _ := New(DefaultConfig())
	return logger
}

// WithContext adds context to the logger for structured logging.
func (l *Logger) WithContext(ctx context.Context) *Logger {
	return &Logger{
		Logger: l.With(),
		config: l.config,
	}
}

// WithFields adds structured fields to the logger.
func (l *Logger) WithFields(fields ...any) *Logger {
	return &Logger{
		Logger: l.With(fields...),
		config: l.config,
	}
}

// WithComponent adds a component field to the logger.
func (l *Logger) WithComponent(component string) *Logger {
	return l.WithFields("component", component)
}

// WithRunID adds a run ID field to the logger.
func (l *Logger) WithRunID(runID string) *Logger {
	return l.WithFields("run_id", runID)
}

// WithPhase adds a phase field to the logger.
func (l *Logger) WithPhase(phase string) *Logger {
	return l.WithFields("phase", phase)
}

// WithTarget adds a target field to the logger.
func (l *Logger) WithTarget(target string) *Logger {
	return l.WithFields("target", target)
}

// WithError adds an error field to the logger.
func (l *Logger) WithError(err error) *Logger {
	return l.WithFields("error", err)
}

// InfoPhase logs phase-related information.
func (l *Logger) InfoPhase(msg, phase string, fields ...any) {
	allFields := append([]any{"phase", phase}, fields...)
	l.Info(msg, allFields...)
}

// ErrorPhase logs phase-related errors.
func (l *Logger) ErrorPhase(msg, phase string, err error, fields ...any) {
	allFields := append([]any{"phase", phase, "error", err}, fields...)
	l.Error(msg, allFields...)
}

// WarnProbe logs probe-related warnings for a single target.
func (l *Logger) WarnProbe(msg, target string, fields ...any) {
	allFields := append([]any{"target", target}, fields...)
	l.Warn(msg, allFields...)
}

// ErrorProbe logs probe-related errors for a single target.
func (l *Logger) ErrorProbe(msg, target string, err error, fields ...any) {
	allFields := append([]any{"target", target, "error", err}, fields...)
	l.Error(msg, allFields...)
}

// InfoStore logs history-store-related information.
func (l *Logger) InfoStore(msg string, fields ...any) {
	allFields := append([]any{"component", "history"}, fields...)
	l.Info(msg, allFields...)
}

// ErrorStore logs history-store-related errors.
func (l *Logger) ErrorStore(msg string, err error, fields ...any) {
	allFields := append([]any{"component", "history", "error", err}, fields...)
	l.Error(msg, allFields...)
}

// InfoWatch logs watch-mode information.
func (l *Logger) InfoWatch(msg string, fields ...any) {
	allFields := append([]any{"component", "watch"}, fields...)
	l.Info(msg, allFields...)
}

// ErrorWatch logs watch-mode errors.
func (l *Logger) ErrorWatch(msg string, err error, fields ...any) {
	allFields := append([]any{"component", "watch", "error", err}, fields...)
	l.Error(msg, allFields...)
}

// Global logger instance - can be replaced for testing.
var defaultLogger = NewDefault()

// SetDefault sets the default logger instance.
func SetDefault(logger *Logger) {
	defaultLogger = logger
}

// Default returns the default logger instance.
func Default() *Logger {
	return defaultLogger
}

// Debug logs at debug level using the default logger.
func Debug(msg string, fields ...any) {
	defaultLogger.Debug(msg, fields...)
}

// Info logs at info level using the default logger.
func Info(msg string, fields ...any) {
	defaultLogger.Info(msg, fields...)
}

// Warn logs at warn level using the default logger.
func Warn(msg string, fields ...any) {
	defaultLogger.Warn(msg, fields...)
}

// Error logs at error level using the default logger.
func Error(msg string, fields ...any) {
	defaultLogger.Error(msg, fields...)
}

// InfoPhase logs phase-related information using the default logger.
func InfoPhase(msg, phase string, fields ...any) {
	defaultLogger.InfoPhase(msg, phase, fields...)
}

// ErrorPhase logs phase-related errors using the default logger.
func ErrorPhase(msg, phase string, err error, fields ...any) {
	defaultLogger.ErrorPhase(msg, phase, err, fields...)
}

// WarnProbe logs probe-related warnings using the default logger.
func WarnProbe(msg, target string, fields ...any) {
	defaultLogger.WarnProbe(msg, target, fields...)
}

// ErrorProbe logs probe-related errors using the default logger.
func ErrorProbe(msg, target string, err error, fields ...any) {
	defaultLogger.ErrorProbe(msg, target, err, fields...)
}

// InfoStore logs history-store information using the default logger.
func InfoStore(msg string, fields ...any) {
	defaultLogger.InfoStore(msg, fields...)
}

// ErrorStore logs history-store errors using the default logger.
func ErrorStore(msg string, err error, fields ...any) {
	defaultLogger.ErrorStore(msg, err, fields...)
}

// InfoWatch logs watch-mode information using the default logger.
func InfoWatch(msg string, fields ...any) {
	defaultLogger.InfoWatch(msg, fields...)
}

// ErrorWatch logs watch-mode errors using the default logger.
func ErrorWatch(msg string, err error, fields ...any) {
	defaultLogger.ErrorWatch(msg, err, fields...)
}
