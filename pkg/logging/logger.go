// Copyright (C) 2025 Crucible AI (oss@crucible-ai.dev)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

// Package logging provides structured logging for Crucible components.
//
// The package is built on Go's standard library slog with support for
// multi-destination output:
//
//   - Default: stderr in text format, following Unix CLI conventions.
//   - Optional: JSON file logging with automatic directory creation.
//
// # Basic Usage
//
//	logger := logging.Default()
//	logger.Info("search started", "algorithm", "beam", "width", 3)
//
// # File Logging
//
//	logger, err := logging.New(logging.Config{
//	    Level:   logging.LevelDebug,
//	    LogDir:  "~/.crucible/logs",
//	    Service: "search",
//	})
//	defer logger.Close()
//
// This creates `{service}_{date}.log` files in JSON format alongside the
// stderr output.
//
// # Thread Safety
//
// Logger is safe for concurrent use.
//
// # Security Considerations
//
// This package does NOT redact sensitive data. Callers must keep prompts
// with embedded secrets, tokens, and PII out of log attributes.
package logging

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"time"
)

// Level represents log severity, ordered Debug < Info < Warn < Error.
type Level int

const (
	// LevelDebug is for development troubleshooting.
	LevelDebug Level = iota

	// LevelInfo is for normal operational messages.
	LevelInfo

	// LevelWarn is for recoverable problems.
	LevelWarn

	// LevelError is for failed operations the system survives.
	LevelError
)

// String returns the human-readable name of the level.
func (l Level) String() string {
	switch l {
	case LevelDebug:
		return "DEBUG"
	case LevelInfo:
		return "INFO"
	case LevelWarn:
		return "WARN"
	case LevelError:
		return "ERROR"
	default:
		return "UNKNOWN"
	}
}

// ParseLevel converts a level name to a Level. Unknown names default to
// Info so a typo in configuration degrades loudly rather than silently.
func ParseLevel(s string) Level {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "debug":
		return LevelDebug
	case "warn", "warning":
		return LevelWarn
	case "error":
		return LevelError
	default:
		return LevelInfo
	}
}

func (l Level) toSlogLevel() slog.Level {
	switch l {
	case LevelDebug:
		return slog.LevelDebug
	case LevelWarn:
		return slog.LevelWarn
	case LevelError:
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}

// Config configures Logger behavior. The zero value writes Info+ messages
// to stderr in text format.
type Config struct {
	// Level is the minimum severity to emit.
	Level Level

	// JSON switches the primary output to JSON format.
	JSON bool

	// Output overrides the primary destination, stderr when nil.
	Output io.Writer

	// LogDir enables file logging when non-empty. Supports ~ expansion.
	// Files are named {Service}_{date}.log and written as JSON.
	LogDir string

	// Service names the log files, "crucible" when empty.
	Service string
}

// Logger wraps slog.Logger with optional file output.
//
// Thread Safety: Safe for concurrent use.
type Logger struct {
	*slog.Logger
	file *os.File
}

// Default returns a stderr text logger at Info level.
func Default() *Logger {
	logger, _ := New(Config{})
	return logger
}

// New creates a logger from the configuration.
//
// Outputs:
//   - *Logger: Ready to use; call Close when file logging is enabled.
//   - error: File or directory creation failure.
func New(config Config) (*Logger, error) {
	output := config.Output
	if output == nil {
		output = os.Stderr
	}

	opts := &slog.HandlerOptions{Level: config.Level.toSlogLevel()}
	var primary slog.Handler
	if config.JSON {
		primary = slog.NewJSONHandler(output, opts)
	} else {
		primary = slog.NewTextHandler(output, opts)
	}

	logger := &Logger{Logger: slog.New(primary)}
	if config.LogDir == "" {
		return logger, nil
	}

	dir, err := expandHome(config.LogDir)
	if err != nil {
		return nil, err
	}
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("create log directory: %w", err)
	}

	service := config.Service
	if service == "" {
		service = "crucible"
	}
	name := fmt.Sprintf("%s_%s.log", service, time.Now().Format("2006-01-02"))
	file, err := os.OpenFile(filepath.Join(dir, name), os.O_CREATE|os.O_APPEND|os.O_WRONLY, 0o644)
	if err != nil {
		return nil, fmt.Errorf("open log file: %w", err)
	}

	fileHandler := slog.NewJSONHandler(file, opts)
	logger.Logger = slog.New(newMultiHandler(primary, fileHandler))
	logger.file = file
	return logger, nil
}

// Close flushes and closes the log file, if any.
func (l *Logger) Close() error {
	if l.file == nil {
		return nil
	}
	return l.file.Close()
}

func expandHome(path string) (string, error) {
	if !strings.HasPrefix(path, "~") {
		return path, nil
	}
	home, err := os.UserHomeDir()
	if err != nil {
		return "", fmt.Errorf("expand log directory: %w", err)
	}
	return filepath.Join(home, strings.TrimPrefix(path, "~")), nil
}

// multiHandler fans one record out to several handlers. A failing handler
// does not block the others; the first error is returned.
type multiHandler struct {
	handlers []slog.Handler
}

func newMultiHandler(handlers ...slog.Handler) *multiHandler {
	return &multiHandler{handlers: handlers}
}

func (m *multiHandler) Enabled(ctx context.Context, level slog.Level) bool {
	for _, h := range m.handlers {
		if h.Enabled(ctx, level) {
			return true
		}
	}
	return false
}

func (m *multiHandler) Handle(ctx context.Context, record slog.Record) error {
	var firstErr error
	for _, h := range m.handlers {
		if !h.Enabled(ctx, record.Level) {
			continue
		}
		if err := h.Handle(ctx, record.Clone()); err != nil && firstErr == nil {
			firstErr = err
		}
	}
	return firstErr
}

func (m *multiHandler) WithAttrs(attrs []slog.Attr) slog.Handler {
	handlers := make([]slog.Handler, len(m.handlers))
	for i, h := range m.handlers {
		handlers[i] = h.WithAttrs(attrs)
	}
	return newMultiHandler(handlers...)
}

func (m *multiHandler) WithGroup(name string) slog.Handler {
	handlers := make([]slog.Handler, len(m.handlers))
	for i, h := range m.handlers {
		handlers[i] = h.WithGroup(name)
	}
	return newMultiHandler(handlers...)
}
