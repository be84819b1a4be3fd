package logging

import (
	"bytes"
	"encoding/json"
	"os"
	"path/filepath"
	"strings"
	"testing"
)

func readLines(t *testing.T, path string) []string {
	t.Helper()
	content, err := os.ReadFile(path)
	if err != nil {
		t.Fatalf("failed to read log file: %v", err)
	}
	trimmed := strings.TrimSpace(string(content))
	if trimmed == "" {
		return nil
	}
	return strings.Split(trimmed, "\n")
}

func TestNewLogger(t *testing.T) {
	dir := t.TempDir()
	logPath := filepath.Join(dir, "nested", "debug.log")

	logger, err := NewLogger(logPath, LevelInfo, DefaultRotationConfig())
	if err != nil {
		t.Fatalf("NewLogger failed: %v", err)
	}
	defer func() { _ = logger.Close() }()

	if _, err := os.Stat(logPath); os.IsNotExist(err) {
		t.Errorf("log file was not created at %s", logPath)
	}
}

func TestNewLogger_EmptyPathUsesStderr(t *testing.T) {
	logger, err := NewLogger("", LevelInfo, RotationConfig{})
	if err != nil {
		t.Fatalf("NewLogger failed: %v", err)
	}
	if err := logger.Close(); err != nil {
		t.Errorf("Close() on stderr logger returned error: %v", err)
	}
}

func TestLogOutputIsJSON(t *testing.T) {
	var buf bytes.Buffer
	logger := New(&buf, LevelDebug)

	logger.Info("appended exchange", "kind", "review")

	var entry map[string]any
	if err := json.Unmarshal(buf.Bytes(), &entry); err != nil {
		t.Fatalf("log line is not valid JSON: %v: %s", err, buf.String())
	}
	if entry["msg"] != "appended exchange" {
		t.Errorf("msg = %v, want %q", entry["msg"], "appended exchange")
	}
	if entry["level"] != "INFO" {
		t.Errorf("level = %v, want INFO", entry["level"])
	}
	if entry["kind"] != "review" {
		t.Errorf("kind = %v, want review", entry["kind"])
	}
}

func TestLogLevelFiltering(t *testing.T) {
	logPath := filepath.Join(t.TempDir(), "debug.log")

	// WARN level drops DEBUG and INFO
	logger, err := NewLogger(logPath, LevelWarn, RotationConfig{})
	if err != nil {
		t.Fatalf("NewLogger failed: %v", err)
	}

	logger.Debug("debug message")
	logger.Info("info message")
	logger.Warn("warn message")
	logger.Error("error message")
	_ = logger.Close()

	lines := readLines(t, logPath)
	if len(lines) != 2 {
		t.Fatalf("expected 2 log lines (WARN and ERROR only), got %d: %v", len(lines), lines)
	}
}

func TestContextPropagation(t *testing.T) {
	var buf bytes.Buffer
	logger := New(&buf, LevelInfo)

	child := logger.WithSession("s1").WithRole("reviewer").WithRound(2)
	child.Info("review appended", "verdict", "approved")

	var entry map[string]any
	if err := json.Unmarshal(buf.Bytes(), &entry); err != nil {
		t.Fatalf("failed to parse log entry: %v", err)
	}

	if entry["session_id"] != "s1" {
		t.Errorf("session_id = %v, want s1", entry["session_id"])
	}
	if entry["role"] != "reviewer" {
		t.Errorf("role = %v, want reviewer", entry["role"])
	}
	// JSON numbers are float64
	if entry["round"] != float64(2) {
		t.Errorf("round = %v, want 2", entry["round"])
	}
	if entry["verdict"] != "approved" {
		t.Errorf("verdict = %v, want approved", entry["verdict"])
	}
}

func TestChildLoggerDoesNotMutateParent(t *testing.T) {
	var buf bytes.Buffer
	parent := New(&buf, LevelInfo)
	_ = parent.WithSession("s1")

	parent.Info("plain")

	var entry map[string]any
	if err := json.Unmarshal(buf.Bytes(), &entry); err != nil {
		t.Fatalf("failed to parse log entry: %v", err)
	}
	if _, ok := entry["session_id"]; ok {
		t.Error("parent logger picked up child attribute session_id")
	}
}

func TestWith(t *testing.T) {
	var buf bytes.Buffer
	logger := New(&buf, LevelInfo)

	logger.With("backend", "file", "attempt", 3).Info("conflict")

	var entry map[string]any
	if err := json.Unmarshal(buf.Bytes(), &entry); err != nil {
		t.Fatalf("failed to parse log entry: %v", err)
	}
	if entry["backend"] != "file" {
		t.Errorf("backend = %v, want file", entry["backend"])
	}
	if entry["attempt"] != float64(3) {
		t.Errorf("attempt = %v, want 3", entry["attempt"])
	}

	if got := logger.With(); got != logger {
		t.Error("With() with no args should return the same logger")
	}
}

func TestNopLogger(t *testing.T) {
	logger := NopLogger()

	// These should not panic
	logger.Debug("debug")
	logger.Info("info")
	logger.Warn("warn")
	logger.Error("error")

	if err := logger.Close(); err != nil {
		t.Errorf("NopLogger.Close() returned error: %v", err)
	}
}

func TestParseLevel(t *testing.T) {
	tests := []struct {
		input    string
		expected string
	}{
		{"DEBUG", LevelDebug},
		{"debug", LevelDebug},
		{"INFO", LevelInfo},
		{"info", LevelInfo},
		{"WARN", LevelWarn},
		{"warn", LevelWarn},
		{"ERROR", LevelError},
		{"error", LevelError},
		{"invalid", LevelInfo},
		{"", LevelInfo},
	}

	for _, tc := range tests {
		if result := ParseLevel(tc.input); result != tc.expected {
			t.Errorf("ParseLevel(%q) = %q, expected %q", tc.input, result, tc.expected)
		}
	}
}

func TestValidLevels(t *testing.T) {
	levels := ValidLevels()

	expected := []string{"DEBUG", "INFO", "WARN", "ERROR"}
	if len(levels) != len(expected) {
		t.Fatalf("expected %d levels, got %d", len(expected), len(levels))
	}
	for i, level := range levels {
		if level != expected[i] {
			t.Errorf("ValidLevels()[%d] = %q, expected %q", i, level, expected[i])
		}
	}
}

func TestClose(t *testing.T) {
	logPath := filepath.Join(t.TempDir(), "debug.log")

	logger, err := NewLogger(logPath, LevelInfo, RotationConfig{})
	if err != nil {
		t.Fatalf("NewLogger failed: %v", err)
	}

	logger.Info("test message")

	if err := logger.Close(); err != nil {
		t.Errorf("Close() returned error: %v", err)
	}
	// Second close is a no-op
	if err := logger.Close(); err != nil {
		t.Errorf("Second Close() returned error: %v", err)
	}

	if lines := readLines(t, logPath); len(lines) != 1 {
		t.Errorf("expected 1 log line, got %d", len(lines))
	}
}

func TestAppendsAcrossLoggers(t *testing.T) {
	logPath := filepath.Join(t.TempDir(), "debug.log")

	for i := 0; i < 3; i++ {
		logger, err := NewLogger(logPath, LevelInfo, RotationConfig{})
		if err != nil {
			t.Fatalf("NewLogger failed: %v", err)
		}
		logger.Info("invocation", "n", i)
		_ = logger.Close()
	}

	if lines := readLines(t, logPath); len(lines) != 3 {
		t.Errorf("expected 3 log lines from 3 invocations, got %d", len(lines))
	}
}

func TestConcurrentWrites(t *testing.T) {
	logPath := filepath.Join(t.TempDir(), "debug.log")

	logger, err := NewLogger(logPath, LevelInfo, RotationConfig{})
	if err != nil {
		t.Fatalf("NewLogger failed: %v", err)
	}

	done := make(chan bool, 10)
	for i := 0; i < 10; i++ {
		go func(n int) {
			for j := 0; j < 100; j++ {
				logger.WithRound(j).Info("concurrent write", "goroutine", n)
			}
			done <- true
		}(i)
	}
	for i := 0; i < 10; i++ {
		<-done
	}
	_ = logger.Close()

	lines := readLines(t, logPath)
	if len(lines) != 1000 {
		t.Errorf("expected 1000 log lines, got %d", len(lines))
	}
	for i, line := range lines {
		var entry map[string]any
		if err := json.Unmarshal([]byte(line), &entry); err != nil {
			t.Errorf("line %d is not valid JSON: %v", i, err)
		}
	}
}
