package policy

import (
	"context"
	"fmt"

	"github.com/gzhole/guardrails/internal/config"
)

// ToolCallEvent is one tool invocation issued by the agent. It is never
// modified by the evaluator.
type ToolCallEvent struct {
	ToolName string         `json:"tool_name"`
	Input    map[string]any `json:"tool_input"`
	// Cwd resolves relative paths for existence checks. Empty means the
	// process working directory.
	Cwd string `json:"cwd,omitempty"`
}

// Field returns a string input field, or "" when it is absent or not a
// string.
func (e ToolCallEvent) Field(key string) string {
	s, _ := e.Input[key].(string)
	return s
}

// Command is the shell command of a bash call.
func (e ToolCallEvent) Command() string {
	return e.Field("command")
}

// Decision is the outcome of evaluating one tool call.
type Decision struct {
	Block  bool   `json:"block"`
	Reason string `json:"reason,omitempty"`
	// Feature names the guardrail that blocked, for telemetry.
	Feature string `json:"feature,omitempty"`
	// UserDenied marks a block a human chose at the confirmation prompt.
	UserDenied bool `json:"userDenied,omitempty"`
}

// Allow is the zero Decision.
func Allow() Decision { return Decision{} }

// Block returns a blocking decision.
func Block(reason string) Decision {
	return Decision{Block: true, Reason: reason}
}

func (d Decision) String() string {
	if !d.Block {
		return "allow"
	}
	return fmt.Sprintf("block(%s)", d.Reason)
}

// Feature is one independently toggleable guardrail.
type Feature interface {
	Name() config.Feature
	Enabled(p *config.Policy) bool
	Evaluate(ctx context.Context, ev ToolCallEvent) (Decision, error)
}
