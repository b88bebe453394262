// Package events carries side-channel notifications out of the policy
// evaluator: dangerous commands observed, tool calls blocked, and plain
// user-facing messages.
package events

import (
	"context"
	"log/slog"
	"sync"
)

type Severity string

const (
	Info    Severity = "info"
	Warning Severity = "warning"
	Error   Severity = "error"
)

// DangerousEvent is emitted when a command matches a dangerous pattern,
// before any confirmation.
type DangerousEvent struct {
	ToolName    string
	Command     string
	Cwd         string
	Pattern     string
	Description string
}

// BlockedEvent is emitted for every blocked tool call. UserDenied is set
// when a human refused the command rather than a rule.
type BlockedEvent struct {
	ToolName   string
	Input      map[string]any
	Cwd        string
	Feature    string
	Reason     string
	UserDenied bool
}

type Notifier interface {
	Dangerous(e DangerousEvent)
	Blocked(e BlockedEvent)
	Notify(message string, severity Severity)
}

// Nop drops everything.
type Nop struct{}

func (Nop) Dangerous(DangerousEvent) {}
func (Nop) Blocked(BlockedEvent) {}
func (Nop) Notify(string, Severity) {}

// Multi fans every event out to each notifier in order.
type Multi []Notifier

func (m Multi) Dangerous(e DangerousEvent) {
	for _, n := range m {
		n.Dangerous(e)
	}
}

func (m Multi) Blocked(e BlockedEvent) {
	for _, n := range m {
		n.Blocked(e)
	}
}

func (m Multi) Notify(message string, severity Severity) {
	for _, n := range m {
		n.Notify(message, severity)
	}
}

// Message is a recorded Notify call.
type Message struct {
	Text     string
	Severity Severity
}

// Recorder keeps every event in memory.
type Recorder struct {
	mu        sync.Mutex
	dangerous []DangerousEvent
	blocked   []BlockedEvent
	messages  []Message
}

func (r *Recorder) Dangerous(e DangerousEvent) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.dangerous = append(r.dangerous, e)
}

func (r *Recorder) Blocked(e BlockedEvent) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.blocked = append(r.blocked, e)
}

func (r *Recorder) Notify(message string, severity Severity) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.messages = append(r.messages, Message{Text: message, Severity: severity})
}

func (r *Recorder) DangerousEvents() []DangerousEvent {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]DangerousEvent(nil), r.dangerous...)
}

func (r *Recorder) BlockedEvents() []BlockedEvent {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]BlockedEvent(nil), r.blocked...)
}

func (r *Recorder) Messages() []Message {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]Message(nil), r.messages...)
}

// Log writes events to a structured logger.
type Log struct {
	Logger *slog.Logger
}

func (l Log) Dangerous(e DangerousEvent) {
	l.Logger.Warn("dangerous command", "tool", e.ToolName, "command", e.Command, "pattern", e.Pattern)
}

func (l Log) Blocked(e BlockedEvent) {
	l.Logger.Info("tool call blocked", "tool", e.ToolName, "feature", e.Feature, "user_denied", e.UserDenied)
}

func (l Log) Notify(message string, severity Severity) {
	level := slog.LevelInfo
	switch severity {
	case Warning:
		level = slog.LevelWarn
	case Error:
		level = slog.LevelError
	}
	l.Logger.Log(context.Background(), level, message)
}
