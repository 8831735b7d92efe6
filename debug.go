// Package main - debug.go
//
// This file implements centralized logging.
//
// Logging System:
//   - Text records written to stdout and to Debug.log
//   - Four levels: DEBUG, INFO, WARN, ERROR
//   - Debug.log is truncated on each startup so it only holds the current session
//   - Global logger accessible via LogDebug/LogInfo/LogWarn/LogError
//
// What goes where:
//   - DEBUG: per-point coordinates, capture/match timings
//   - INFO: state transitions, match counts per iteration, stop reason, summary
//   - WARN: recoverable setup problems (tray unavailable, frame dump failed)
//   - ERROR: fatal run errors
package main

import (
	"fmt"
	"io"
	"log/slog"
	"os"
	"strings"
	"sync"
)

// Logger wraps a slog.Logger and the file it writes to.
type Logger struct {
	file   *os.File
	logger *slog.Logger
	mu     sync.Mutex
}

var globalLogger *Logger

// parseLevel maps a level name to a slog level, defaulting to info
func parseLevel(level string) slog.Level {
	switch strings.ToLower(level) {
	case "debug":
		return slog.LevelDebug
	case "warn", "warning":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}

// InitLogger initializes the global logger. Records go to stdout and, when path is
// not empty, to that file, which is truncated first.
func InitLogger(path, level string) error {
	var writers []io.Writer
	writers = append(writers, os.Stdout)

	var file *os.File
	if path != "" {
		var err error
		file, err = os.OpenFile(path, os.O_CREATE|os.O_WRONLY|os.O_TRUNC, 0666)
		if err != nil {
			return fmt.Errorf("failed to open log file: %w", err)
		}
		writers = append(writers, file)
	}

	handler := slog.NewTextHandler(io.MultiWriter(writers...), &slog.HandlerOptions{
		Level: parseLevel(level),
	})

	globalLogger = &Logger{
		file:   file,
		logger: slog.New(handler),
	}

	globalLogger.Debug("Logger initialized (level %s)", level)
	return nil
}

// newLogger builds a logger on an arbitrary writer, used by tests
func newLogger(w io.Writer, level string) *Logger {
	return &Logger{
		logger: slog.New(slog.NewTextHandler(w, &slog.HandlerOptions{Level: parseLevel(level)})),
	}
}

// CloseLogger closes the log file
func CloseLogger() {
	if globalLogger != nil && globalLogger.file != nil {
		globalLogger.Debug("Logger closing")
		globalLogger.file.Close()
		globalLogger.file = nil
	}
}

// Debug logs debug level messages
func (l *Logger) Debug(format string, v ...interface{}) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.logger.Debug(fmt.Sprintf(format, v...))
}

// Info logs info level messages
func (l *Logger) Info(format string, v ...interface{}) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.logger.Info(fmt.Sprintf(format, v...))
}

// Warn logs warning level messages
func (l *Logger) Warn(format string, v ...interface{}) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.logger.Warn(fmt.Sprintf(format, v...))
}

// Error logs error level messages
func (l *Logger) Error(format string, v ...interface{}) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.logger.Error(fmt.Sprintf(format, v...))
}

// LogDebug is a convenience function for debug logging
func LogDebug(format string, v ...interface{}) {
	if globalLogger != nil {
		globalLogger.Debug(format, v...)
	}
}

// LogInfo is a convenience function for info logging
func LogInfo(format string, v ...interface{}) {
	if globalLogger != nil {
		globalLogger.Info(format, v...)
	}
}

// LogWarn is a convenience function for warning logging
func LogWarn(format string, v ...interface{}) {
	if globalLogger != nil {
		globalLogger.Warn(format, v...)
	}
}

// LogError is a convenience function for error logging
func LogError(format string, v ...interface{}) {
	if globalLogger != nil {
		globalLogger.Error(format, v...)
	}
}
