package logging

import (
	"bytes"
	"encoding/json"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/nvandessel/refback/internal/sequence"
)

func TestParseLevel(t *testing.T) {
	tests := []struct {
		name  string
		input string
		want  slog.Level
	}{
		{"info", "info", slog.LevelInfo},
		{"debug", "debug", slog.LevelDebug},
		{"trace", "trace", LevelTrace},
		{"uppercase INFO", "INFO", slog.LevelInfo},
		{"uppercase DEBUG", "DEBUG", slog.LevelDebug},
		{"uppercase TRACE", "TRACE", LevelTrace},
		{"mixed case Debug", "Debug", slog.LevelDebug},
		{"unknown defaults to info", "unknown", slog.LevelInfo},
		{"empty defaults to info", "", slog.LevelInfo},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := ParseLevel(tt.input)
			if got != tt.want {
				t.Errorf("ParseLevel(%q) = %v, want %v", tt.input, got, tt.want)
			}
		})
	}
}

func TestNewLogger(t *testing.T) {
	tests := []struct {
		name  string
		level string
	}{
		{"info level", "info"},
		{"debug level", "debug"},
		{"trace level", "trace"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var buf bytes.Buffer
			logger := NewLogger(tt.level, &buf)
			if logger == nil {
				t.Fatal("NewLogger returned nil")
			}
		})
	}
}

func TestNewLogger_LevelFiltering(t *testing.T) {
	tests := []struct {
		name       string
		level      string
		logAtDebug bool
		logAtInfo  bool
	}{
		{"info filters debug", "info", false, true},
		{"debug passes debug", "debug", true, true},
		{"trace passes debug", "trace", true, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var buf bytes.Buffer
			logger := NewLogger(tt.level, &buf)

			logger.Debug("debug message")
			hasDebug := strings.Contains(buf.String(), "debug message")
			if hasDebug != tt.logAtDebug {
				t.Errorf("debug message visible = %v, want %v (buf: %q)", hasDebug, tt.logAtDebug, buf.String())
			}

			buf.Reset()
			logger.Info("info message")
			hasInfo := strings.Contains(buf.String(), "info message")
			if hasInfo != tt.logAtInfo {
				t.Errorf("info message visible = %v, want %v (buf: %q)", hasInfo, tt.logAtInfo, buf.String())
			}
		})
	}
}

func TestLevelTrace(t *testing.T) {
	// Trace should be below debug (more verbose)
	if LevelTrace >= slog.LevelDebug {
		t.Errorf("LevelTrace (%d) should be less than LevelDebug (%d)", LevelTrace, slog.LevelDebug)
	}
}

func TestNewSearchLog_InfoLevel(t *testing.T) {
	dir := t.TempDir()
	sl := NewSearchLog(dir, "info")

	// At info level, search log should be nil
	if sl != nil {
		t.Error("expected nil SearchLog at info level")
	}

	// Nil logger should still be safe to use
	sl.Log(map[string]any{"event": "test"})

	path := filepath.Join(dir, "searches.jsonl")
	if _, err := os.Stat(path); err == nil {
		t.Error("searches.jsonl should not exist at info level")
	}
}

func sampleResult() sequence.Result {
	return sequence.Result{
		Stream:          []bool{true, true, false, false, false},
		Rate:            0.75,
		Distance:        0,
		ClosestPossible: 0.75,
		Iterations:      12,
		Converged:       true,
	}
}

func TestNewSearchLog_DebugLevel(t *testing.T) {
	dir := t.TempDir()
	sl := NewSearchLog(dir, "debug")
	defer sl.Close()

	sl.LogSearch("session-1", 2, sampleResult())

	path := filepath.Join(dir, "searches.jsonl")
	data, err := os.ReadFile(path)
	if err != nil {
		t.Fatalf("failed to read searches.jsonl: %v", err)
	}

	var entry map[string]any
	if err := json.Unmarshal(data, &entry); err != nil {
		t.Fatalf("failed to parse JSONL entry: %v", err)
	}

	if entry["event"] != "reference_search" {
		t.Errorf("event = %v, want reference_search", entry["event"])
	}
	if entry["session_id"] != "session-1" {
		t.Errorf("session_id = %v, want session-1", entry["session_id"])
	}
	if entry["block"] != 2.0 {
		t.Errorf("block = %v, want 2", entry["block"])
	}
	if entry["iterations"] != 12.0 {
		t.Errorf("iterations = %v, want 12", entry["iterations"])
	}
	if entry["converged"] != true {
		t.Errorf("converged = %v, want true", entry["converged"])
	}
	if _, ok := entry["stream"]; ok {
		t.Error("stream should only be logged at trace level")
	}
	if _, ok := entry["time"]; !ok {
		t.Error("expected 'time' field in search log entry")
	}
}

func TestNewSearchLog_TraceLevel(t *testing.T) {
	dir := t.TempDir()
	sl := NewSearchLog(dir, "trace")
	defer sl.Close()

	sl.LogSearch("", 1, sampleResult())

	path := filepath.Join(dir, "searches.jsonl")
	data, err := os.ReadFile(path)
	if err != nil {
		t.Fatalf("failed to read searches.jsonl: %v", err)
	}

	var entry map[string]any
	if err := json.Unmarshal(data, &entry); err != nil {
		t.Fatalf("failed to parse JSONL entry: %v", err)
	}
	stream, ok := entry["stream"].([]any)
	if !ok || len(stream) != 5 {
		t.Errorf("stream = %v, want 5 flags", entry["stream"])
	}
	if _, ok := entry["session_id"]; ok {
		t.Error("empty session id should be omitted")
	}
}

func TestLogSearch_Levels(t *testing.T) {
	tests := []struct {
		name      string
		level     string
		converged bool
		wantLine  bool
	}{
		{"converged hidden at info", "info", true, false},
		{"converged shown at debug", "debug", true, true},
		{"exhausted shown at info", "info", false, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var buf bytes.Buffer
			res := sampleResult()
			res.Converged = tt.converged
			LogSearch(NewLogger(tt.level, &buf), 3, res)

			if got := buf.Len() > 0; got != tt.wantLine {
				t.Errorf("logged = %v, want %v (buf: %q)", got, tt.wantLine, buf.String())
			}
			if tt.wantLine && !strings.Contains(buf.String(), "block=3") {
				t.Errorf("expected block attribute in %q", buf.String())
			}
		})
	}

	// nil logger is a no-op
	LogSearch(nil, 1, sampleResult())
}

func TestNewSearchLog_MultipleWrites(t *testing.T) {
	dir := t.TempDir()
	sl := NewSearchLog(dir, "debug")
	defer sl.Close()

	sl.Log(map[string]any{"event": "first"})
	sl.Log(map[string]any{"event": "second"})

	path := filepath.Join(dir, "searches.jsonl")
	data, err := os.ReadFile(path)
	if err != nil {
		t.Fatalf("failed to read searches.jsonl: %v", err)
	}

	lines := strings.Split(strings.TrimSpace(string(data)), "\n")
	if len(lines) != 2 {
		t.Fatalf("expected 2 lines, got %d: %q", len(lines), string(data))
	}

	var first, second map[string]any
	json.Unmarshal([]byte(lines[0]), &first)
	json.Unmarshal([]byte(lines[1]), &second)

	if first["event"] != "first" {
		t.Errorf("first event = %v, want 'first'", first["event"])
	}
	if second["event"] != "second" {
		t.Errorf("second event = %v, want 'second'", second["event"])
	}
}

func TestSearchLog_NilSafety(t *testing.T) {
	// nil SearchLog should not panic
	var sl *SearchLog
	sl.Log(map[string]any{"event": "should_not_panic"})
	sl.Close()
}

func TestSearchLog_DoesNotMutateCallerMap(t *testing.T) {
	dir := t.TempDir()
	sl := NewSearchLog(dir, "debug")
	defer sl.Close()

	event := map[string]any{"event": "test"}
	sl.Log(event)

	if _, hasTime := event["time"]; hasTime {
		t.Error("Log() should not mutate caller's map, but 'time' was injected")
	}
}

func TestSearchLog_LogAfterClose(t *testing.T) {
	dir := t.TempDir()
	sl := NewSearchLog(dir, "debug")

	sl.Log(map[string]any{"event": "before_close"})
	sl.Close()

	// Should be a no-op, not panic or error
	sl.Log(map[string]any{"event": "after_close"})
}

func TestNewSearchLog_CreatesDir(t *testing.T) {
	base := t.TempDir()
	nestedDir := filepath.Join(base, "sub", "dir")

	sl := NewSearchLog(nestedDir, "debug")
	if sl == nil {
		t.Fatal("expected non-nil SearchLog when dir needs creation")
	}
	defer sl.Close()

	sl.Log(map[string]any{"event": "dir_create_test"})

	path := filepath.Join(nestedDir, "searches.jsonl")
	if _, err := os.Stat(path); err != nil {
		t.Fatalf("searches.jsonl should exist after dir creation: %v", err)
	}
}

func TestSearchLog_FilePermissions(t *testing.T) {
	dir := t.TempDir()
	sl := NewSearchLog(dir, "debug")
	defer sl.Close()

	sl.Log(map[string]any{"event": "perm_test"})

	path := filepath.Join(dir, "searches.jsonl")
	info, err := os.Stat(path)
	if err != nil {
		t.Fatalf("failed to stat searches.jsonl: %v", err)
	}

	perm := info.Mode().Perm()
	if perm != 0600 {
		t.Errorf("file permissions = %o, want 0600", perm)
	}
}
