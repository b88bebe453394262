package events

import (
	"log/slog"
	"time"

	"github.com/google/uuid"

	"github.com/gzhole/guardrails/internal/logger"
)

// AuditWriter is satisfied by *logger.AuditLogger.
type AuditWriter interface {
	Log(event logger.AuditEvent) error
}

// AuditSink records every event as one JSONL audit line. Write failures
// are logged and otherwise ignored; auditing never changes a decision.
type AuditSink struct {
	w   AuditWriter
	log *slog.Logger
	now func() time.Time
}

func NewAuditSink(w AuditWriter, log *slog.Logger) *AuditSink {
	if log == nil {
		log = slog.New(slog.DiscardHandler)
	}
	return &AuditSink{w: w, log: log, now: time.Now}
}

func (s *AuditSink) Dangerous(e DangerousEvent) {
	s.write(logger.AuditEvent{
		Kind:        "dangerous",
		ToolName:    e.ToolName,
		Command:     e.Command,
		Cwd:         e.Cwd,
		Pattern:     e.Pattern,
		Description: e.Description,
	})
}

func (s *AuditSink) Blocked(e BlockedEvent) {
	ev := logger.AuditEvent{
		Kind:       "blocked",
		ToolName:   e.ToolName,
		Input:      e.Input,
		Cwd:        e.Cwd,
		Feature:    e.Feature,
		Reason:     e.Reason,
		UserDenied: e.UserDenied,
	}
	if cmd, ok := e.Input["command"].(string); ok {
		ev.Command = cmd
	}
	s.write(ev)
}

func (s *AuditSink) Notify(message string, severity Severity) {
	s.write(logger.AuditEvent{
		Kind:     "notify",
		Reason:   message,
		Severity: string(severity),
	})
}

func (s *AuditSink) write(ev logger.AuditEvent) {
	ev.ID = uuid.NewString()
	ev.Timestamp = s.now().UTC().Format(time.RFC3339)
	if err := s.w.Log(ev); err != nil {
		s.log.Warn("audit write failed", "kind", ev.Kind, "error", err)
	}
}
