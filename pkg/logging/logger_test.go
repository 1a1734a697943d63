// Copyright (C) 2025 Crucible AI (oss@crucible-ai.dev)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

package logging

import (
	"bytes"
	"encoding/json"
	"os"
	"path/filepath"
	"strings"
	"testing"
)

func TestParseLevel(t *testing.T) {
	tests := []struct {
		input string
		want  Level
	}{
		{"debug", LevelDebug},
		{"DEBUG", LevelDebug},
		{"info", LevelInfo},
		{"warn", LevelWarn},
		{"warning", LevelWarn},
		{"error", LevelError},
		{" Error ", LevelError},
		{"nonsense", LevelInfo},
		{"", LevelInfo},
	}
	for _, tt := range tests {
		if got := ParseLevel(tt.input); got != tt.want {
			t.Errorf("ParseLevel(%q) = %v, want %v", tt.input, got, tt.want)
		}
	}
}

func TestLevelString(t *testing.T) {
	for level, want := range map[Level]string{
		LevelDebug: "DEBUG",
		LevelInfo:  "INFO",
		LevelWarn:  "WARN",
		LevelError: "ERROR",
		Level(99):  "UNKNOWN",
	} {
		if got := level.String(); got != want {
			t.Errorf("Level(%d).String() = %q, want %q", level, got, want)
		}
	}
}

func TestTextOutput(t *testing.T) {
	var buf bytes.Buffer
	logger, err := New(Config{Level: LevelDebug, Output: &buf})
	if err != nil {
		t.Fatalf("New() error = %v", err)
	}

	logger.Info("search started", "algorithm", "beam")
	out := buf.String()
	if !strings.Contains(out, "search started") || !strings.Contains(out, "algorithm=beam") {
		t.Errorf("unexpected output: %q", out)
	}
}

func TestLevelFiltering(t *testing.T) {
	var buf bytes.Buffer
	logger, err := New(Config{Level: LevelWarn, Output: &buf})
	if err != nil {
		t.Fatalf("New() error = %v", err)
	}

	logger.Debug("dropped")
	logger.Info("also dropped")
	logger.Warn("kept")

	out := buf.String()
	if strings.Contains(out, "dropped") {
		t.Errorf("below-threshold messages leaked: %q", out)
	}
	if !strings.Contains(out, "kept") {
		t.Errorf("warn message missing: %q", out)
	}
}

func TestJSONOutput(t *testing.T) {
	var buf bytes.Buffer
	logger, err := New(Config{JSON: true, Output: &buf})
	if err != nil {
		t.Fatalf("New() error = %v", err)
	}

	logger.Info("event", "score", 0.7)

	var record map[string]any
	if err := json.Unmarshal(buf.Bytes(), &record); err != nil {
		t.Fatalf("output is not JSON: %v (%q)", err, buf.String())
	}
	if record["msg"] != "event" || record["score"] != 0.7 {
		t.Errorf("record = %v", record)
	}
}

func TestFileLogging(t *testing.T) {
	dir := t.TempDir()
	var buf bytes.Buffer
	logger, err := New(Config{
		Output:  &buf,
		LogDir:  dir,
		Service: "testsvc",
	})
	if err != nil {
		t.Fatalf("New() error = %v", err)
	}

	logger.Info("written to both")
	if err := logger.Close(); err != nil {
		t.Fatalf("Close() error = %v", err)
	}

	entries, err := os.ReadDir(dir)
	if err != nil {
		t.Fatalf("ReadDir() error = %v", err)
	}
	if len(entries) != 1 {
		t.Fatalf("log files = %d, want 1", len(entries))
	}
	if !strings.HasPrefix(entries[0].Name(), "testsvc_") || !strings.HasSuffix(entries[0].Name(), ".log") {
		t.Errorf("log file name = %q", entries[0].Name())
	}

	data, err := os.ReadFile(filepath.Join(dir, entries[0].Name()))
	if err != nil {
		t.Fatalf("ReadFile() error = %v", err)
	}
	var record map[string]any
	if err := json.Unmarshal(bytes.TrimSpace(data), &record); err != nil {
		t.Fatalf("file entry is not JSON: %v", err)
	}
	if record["msg"] != "written to both" {
		t.Errorf("file record = %v", record)
	}
	// The primary destination still receives the message.
	if !strings.Contains(buf.String(), "written to both") {
		t.Errorf("primary output missing message: %q", buf.String())
	}
}

func TestCloseWithoutFile(t *testing.T) {
	logger, err := New(Config{Output: &bytes.Buffer{}})
	if err != nil {
		t.Fatalf("New() error = %v", err)
	}
	if err := logger.Close(); err != nil {
		t.Errorf("Close() error = %v", err)
	}
}

func TestDefaultDoesNotPanic(t *testing.T) {
	Default().Debug("quiet by default")
}
