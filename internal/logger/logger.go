// Package logger builds the process logger and the JSONL audit log.
package logger

import (
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"os"
	"strings"
	"sync"

	"github.com/gzhole/guardrails/internal/redact"
)

// New creates a *slog.Logger writing to w. format is "text" or "json";
// every record carries a "component" attribute.
func New(level, format string, w io.Writer) *slog.Logger {
	opts := &slog.HandlerOptions{Level: ParseLevel(level)}

	var handler slog.Handler
	if strings.EqualFold(format, "json") {
		handler = slog.NewJSONHandler(w, opts)
	} else {
		handler = slog.NewTextHandler(w, opts)
	}
	return slog.New(handler).With("component", "guardrails")
}

// ParseLevel converts a string log level to slog.Level.
func ParseLevel(s string) slog.Level {
	switch strings.ToLower(s) {
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

// AuditEvent is one line of the audit log.
type AuditEvent struct {
	ID          string         `json:"id"`
	Timestamp   string         `json:"timestamp"`
	Kind        string         `json:"kind"`
	ToolName    string         `json:"tool_name,omitempty"`
	Command     string         `json:"command,omitempty"`
	Input       map[string]any `json:"input,omitempty"`
	Cwd         string         `json:"cwd,omitempty"`
	Feature     string         `json:"feature,omitempty"`
	Pattern     string         `json:"pattern,omitempty"`
	Description string         `json:"description,omitempty"`
	Reason      string         `json:"reason,omitempty"`
	Severity    string         `json:"severity,omitempty"`
	UserDenied  bool           `json:"user_denied,omitempty"`
}

// defaultMaxLogBytes is the size at which the audit log is rotated to
// <path>.1.
const defaultMaxLogBytes = 10 << 20

type AuditLogger struct {
	path     string
	maxBytes int64

	mu   sync.Mutex
	file *os.File
	size int64
}

// NewAuditLogger opens (or creates) the audit log at path with mode 0600.
func NewAuditLogger(path string) (*AuditLogger, error) {
	l := &AuditLogger{path: path, maxBytes: defaultMaxLogBytes}
	if err := l.open(); err != nil {
		return nil, err
	}
	return l, nil
}

func (l *AuditLogger) open() error {
	file, err := os.OpenFile(l.path, os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0o600)
	if err != nil {
		return fmt.Errorf("open audit log: %w", err)
	}
	info, err := file.Stat()
	if err != nil {
		file.Close()
		return fmt.Errorf("stat audit log: %w", err)
	}
	l.file = file
	l.size = info.Size()
	return nil
}

// Log appends one redacted event.
func (l *AuditLogger) Log(event AuditEvent) error {
	event.Command = redact.Redact(event.Command)
	event.Reason = redact.Redact(event.Reason)
	event.Input = redact.Input(event.Input)

	data, err := json.Marshal(event)
	if err != nil {
		return err
	}
	data = append(data, '\n')

	l.mu.Lock()
	defer l.mu.Unlock()

	if l.file == nil {
		return fmt.Errorf("audit log %s is closed", l.path)
	}
	if l.size+int64(len(data)) > l.maxBytes && l.size > 0 {
		if err := l.rotate(); err != nil {
			return err
		}
	}
	n, err := l.file.Write(data)
	l.size += int64(n)
	return err
}

func (l *AuditLogger) rotate() error {
	if err := l.file.Close(); err != nil {
		return err
	}
	l.file = nil
	if err := os.Rename(l.path, l.path+".1"); err != nil {
		return fmt.Errorf("rotate audit log: %w", err)
	}
	return l.open()
}

func (l *AuditLogger) Close() error {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.file == nil {
		return nil
	}
	err := l.file.Close()
	l.file = nil
	return err
}
