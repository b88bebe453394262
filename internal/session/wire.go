package session

import (
	"encoding/json"
	"errors"
	"fmt"

	"github.com/gzhole/guardrails/internal/policy"
)

// Inbound message types.
const (
	TypeSessionStart  = "session_start"
	TypeToolCall      = "tool_call"
	TypeConfirmResult = "confirm_result"
	TypeReload        = "reload"
)

// Outbound message types.
const (
	TypeDecision = "decision"
	TypeNotify   = "notify"
	TypeConfirm  = "confirm"
	TypeEvent    = "event"
)

var ErrMalformed = errors.New("malformed message")

// Request is one inbound line. Tool calls accept both the snake_case
// hook fields and the camelCase ones some hosts send.
type Request struct {
	Type string `json:"type"`
	ID   string `json:"id,omitempty"`

	ToolName      string         `json:"tool_name,omitempty"`
	ToolInput     map[string]any `json:"tool_input,omitempty"`
	ToolNameCamel string         `json:"toolName,omitempty"`
	InputCamel    map[string]any `json:"input,omitempty"`
	Cwd           string         `json:"cwd,omitempty"`

	Allow bool `json:"allow,omitempty"`
}

// Event returns the tool call carried by the request.
func (r Request) Event() (policy.ToolCallEvent, error) {
	ev := policy.ToolCallEvent{
		ToolName: r.ToolName,
		Input:    r.ToolInput,
		Cwd:      r.Cwd,
	}
	if ev.ToolName == "" {
		ev.ToolName = r.ToolNameCamel
	}
	if ev.Input == nil {
		ev.Input = r.InputCamel
	}
	if ev.ToolName == "" {
		return policy.ToolCallEvent{}, fmt.Errorf("%w: missing tool name", ErrMalformed)
	}
	if ev.Input == nil {
		ev.Input = map[string]any{}
	}
	return ev, nil
}

// DecodeToolCall parses a single hook payload.
func DecodeToolCall(data []byte) (policy.ToolCallEvent, error) {
	var r Request
	if err := json.Unmarshal(data, &r); err != nil {
		return policy.ToolCallEvent{}, fmt.Errorf("%w: %v", ErrMalformed, err)
	}
	return r.Event()
}

type decisionMessage struct {
	Type       string `json:"type"`
	ID         string `json:"id,omitempty"`
	Block      bool   `json:"block"`
	Reason     string `json:"reason,omitempty"`
	Feature    string `json:"feature,omitempty"`
	UserDenied bool   `json:"userDenied,omitempty"`
}

type notifyMessage struct {
	Type     string `json:"type"`
	Message  string `json:"message"`
	Severity string `json:"severity"`
}

type confirmMessage struct {
	Type        string `json:"type"`
	ID          string `json:"id"`
	ToolName    string `json:"tool_name,omitempty"`
	Command     string `json:"command"`
	Description string `json:"description,omitempty"`
}

type eventMessage struct {
	Type        string `json:"type"`
	Event       string `json:"event"`
	ToolName    string `json:"tool_name,omitempty"`
	Command     string `json:"command,omitempty"`
	Pattern     string `json:"pattern,omitempty"`
	Description string `json:"description,omitempty"`
	Feature     string `json:"feature,omitempty"`
	Reason      string `json:"reason,omitempty"`
	UserDenied  bool   `json:"userDenied,omitempty"`
}
