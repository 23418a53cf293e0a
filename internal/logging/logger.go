// Package logging provides leveled logging and search tracing for refback.
// It offers two complementary outputs:
//   - A leveled slog.Logger for stderr (operational output)
//   - A SearchLog for structured JSONL search traces (~/.refback/searches.jsonl)
package logging

import (
	"encoding/json"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/nvandessel/refback/internal/sequence"
)

// LevelTrace is a custom slog level below Debug for full content logging.
// At this level, generated streams are included in search traces.
const LevelTrace = slog.LevelDebug - 4

// SearchLogFile is the trace file name inside the refback directory.
const SearchLogFile = "searches.jsonl"

// ParseLevel maps a string level name to a slog.Level.
// Supported values: "info", "debug", "trace" (case-insensitive).
// Unknown values default to info.
func ParseLevel(s string) slog.Level {
	switch strings.ToLower(s) {
	case "debug":
		return slog.LevelDebug
	case "trace":
		return LevelTrace
	default:
		return slog.LevelInfo
	}
}

// NewLogger creates a leveled slog.Logger writing to w.
func NewLogger(level string, w io.Writer) *slog.Logger {
	lvl := ParseLevel(level)
	opts := &slog.HandlerOptions{
		Level: lvl,
		ReplaceAttr: func(groups []string, a slog.Attr) slog.Attr {
			if a.Key == slog.LevelKey {
				if lvl, ok := a.Value.Any().(slog.Level); ok && lvl == LevelTrace {
					a.Value = slog.StringValue("TRACE")
				}
			}
			return a
		},
	}
	return slog.New(slog.NewTextHandler(w, opts))
}

// LogSearch reports a search outcome on logger. Converged searches log at
// debug; best-effort results log at info so budget exhaustion is visible.
func LogSearch(logger *slog.Logger, block int, res sequence.Result) {
	if logger == nil {
		return
	}
	attrs := []any{
		"block", block,
		"rate", res.Rate,
		"closest_possible", res.ClosestPossible,
		"distance", res.Distance,
		"iterations", res.Iterations,
	}
	if res.Converged {
		logger.Debug("reference stream converged", attrs...)
		return
	}
	logger.Info("reference stream search exhausted budget", attrs...)
}

// SearchLog writes structured search events to a JSONL file.
// It is safe for concurrent use. A nil SearchLog is safe to use;
// all methods are no-ops on nil receiver.
type SearchLog struct {
	mu    sync.Mutex
	file  *os.File
	trace bool
}

// NewSearchLog creates a search log writing to dir/searches.jsonl.
// At "info" level (the default), returns nil and no file is created.
// At "debug" or "trace" level, the file is opened for append.
// Returns nil if the file cannot be opened. All methods are nil-safe.
func NewSearchLog(dir string, level string) *SearchLog {
	lvl := ParseLevel(level)
	if lvl == slog.LevelInfo {
		return nil
	}

	if err := os.MkdirAll(dir, 0700); err != nil {
		return nil
	}

	path := filepath.Join(dir, SearchLogFile)
	f, err := os.OpenFile(path, os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0600)
	if err != nil {
		return nil
	}

	return &SearchLog{file: f, trace: lvl <= LevelTrace}
}

// Log writes an event as a single JSONL line.
// A "time" field is added automatically. The caller's map is not mutated.
// Safe to call on nil receiver.
func (sl *SearchLog) Log(event map[string]any) {
	if sl == nil {
		return
	}

	entry := make(map[string]any, len(event)+1)
	for k, v := range event {
		entry[k] = v
	}
	entry["time"] = time.Now().UTC().Format(time.RFC3339Nano)

	data, err := json.Marshal(entry)
	if err != nil {
		return
	}
	data = append(data, '\n')

	sl.mu.Lock()
	defer sl.mu.Unlock()
	if sl.file == nil {
		return
	}
	_, _ = sl.file.Write(data)
}

// LogSearch records a search result. The stream itself is only written at
// trace level.
func (sl *SearchLog) LogSearch(sessionID string, block int, res sequence.Result) {
	if sl == nil {
		return
	}
	event := map[string]any{
		"event":            "reference_search",
		"block":            block,
		"trials":           len(res.Stream),
		"rate":             res.Rate,
		"closest_possible": res.ClosestPossible,
		"distance":         res.Distance,
		"iterations":       res.Iterations,
		"converged":        res.Converged,
	}
	if sessionID != "" {
		event["session_id"] = sessionID
	}
	if sl.trace {
		event["stream"] = res.Stream
	}
	sl.Log(event)
}

// Close closes the underlying file. Safe to call on nil receiver.
func (sl *SearchLog) Close() {
	if sl == nil {
		return
	}

	sl.mu.Lock()
	defer sl.mu.Unlock()

	if sl.file != nil {
		sl.file.Close()
		sl.file = nil
	}
}
