package mcp

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"
)

// AuditLogFile is the tool-call audit log inside the refback directory.
const AuditLogFile = "audit.jsonl"

// AuditEntry records a single MCP tool invocation.
type AuditEntry struct {
	Timestamp  time.Time         `json:"timestamp"`
	Tool       string            `json:"tool"`
	DurationMs int64             `json:"duration_ms"`
	Status     string            `json:"status"` // "success" or "error"
	Error      string            `json:"error,omitempty"`
	Params     map[string]string `json:"params,omitempty"`
}

// AuditLogger appends audit entries to a JSONL file. It is safe for
// concurrent use. A nil AuditLogger is safe to use; all methods are no-ops
// on nil receiver.
type AuditLogger struct {
	mu   sync.Mutex
	file *os.File
}

// NewAuditLogger opens dir/audit.jsonl for appending. Returns nil if the
// file cannot be opened.
func NewAuditLogger(dir string) *AuditLogger {
	if err := os.MkdirAll(dir, 0700); err != nil {
		fmt.Fprintf(os.Stderr, "warning: cannot create audit log directory %s: %v\n", dir, err)
		return nil
	}

	path := filepath.Join(dir, AuditLogFile)
	f, err := os.OpenFile(path, os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0600)
	if err != nil {
		fmt.Fprintf(os.Stderr, "warning: cannot open audit log %s: %v\n", path, err)
		return nil
	}

	return &AuditLogger{file: f}
}

// Log appends an entry as a single line.
func (a *AuditLogger) Log(entry AuditEntry) {
	if a == nil {
		return
	}

	data, err := json.Marshal(entry)
	if err != nil {
		return
	}
	data = append(data, '\n')

	a.mu.Lock()
	defer a.mu.Unlock()
	if a.file != nil {
		_, _ = a.file.Write(data)
	}
}

// Close closes the underlying file.
func (a *AuditLogger) Close() error {
	if a == nil {
		return nil
	}

	a.mu.Lock()
	defer a.mu.Unlock()
	if a.file == nil {
		return nil
	}
	err := a.file.Close()
	a.file = nil
	return err
}

// auditParams summarizes tool parameters for the audit log. Numeric and
// boolean settings are logged by value; the subject only by presence.
func auditParams(params map[string]any) map[string]string {
	if params == nil {
		return nil
	}

	presenceOnly := map[string]bool{
		"subject": true,
	}

	result := make(map[string]string, len(params))
	for key, val := range params {
		switch {
		case presenceOnly[key]:
			if s, ok := val.(string); ok && s == "" {
				continue
			}
			result[key] = "(set)"
		case val == nil:
		default:
			result[key] = fmt.Sprintf("%v", val)
		}
	}
	return result
}

// auditTool logs a tool invocation that started at start.
func (s *Server) auditTool(tool string, start time.Time, err error, params map[string]any) {
	entry := AuditEntry{
		Timestamp:  start,
		Tool:       tool,
		DurationMs: time.Since(start).Milliseconds(),
		Status:     "success",
		Params:     auditParams(params),
	}
	if err != nil {
		entry.Status = "error"
		entry.Error = err.Error()
	}
	s.audit.Log(entry)
}
