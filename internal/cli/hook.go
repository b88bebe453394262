package cli

import (
	"encoding/json"
	"fmt"
	"io"
	"os"

	"github.com/spf13/cobra"

	"github.com/gzhole/guardrails/internal/analyzer"
	"github.com/gzhole/guardrails/internal/approval"
	"github.com/gzhole/guardrails/internal/policy"
	"github.com/gzhole/guardrails/internal/session"
)

// hookOutput is the JSON written to stdout for every hook call.
type hookOutput struct {
	Block  bool   `json:"block"`
	Reason string `json:"reason,omitempty"`
}

// newConfirmer opens the terminal used for confirmations. Tests swap it.
var newConfirmer = approval.Interactive

var hookCmd = &cobra.Command{
	Use:   "hook",
	Short: "Evaluate one tool call read from stdin",
	Long: `Reads a single tool-call event from stdin, evaluates it against the
effective policy and writes {"block": bool, "reason": "..."} to stdout.

The event carries tool_name, tool_input and cwd (toolName and input are
accepted too):

  {"tool_name": "bash", "tool_input": {"command": "sudo rm -rf build"}, "cwd": "/src/app"}

The project config is looked up under --cwd, else under the event's cwd,
else under the working directory.

Dangerous commands are confirmed on the controlling terminal; without one
they are denied. Exit code 2 means the call was blocked.

Set GUARDRAILS_BYPASS=1 to allow everything.`,
	Args: cobra.NoArgs,
	RunE: hookCommand,
}

func init() {
	rootCmd.AddCommand(hookCmd)
}

func hookCommand(cmd *cobra.Command, args []string) error {
	stdout, stderr := cmd.OutOrStdout(), cmd.ErrOrStderr()

	data, err := io.ReadAll(cmd.InOrStdin())
	if err != nil {
		return fmt.Errorf("failed to read stdin: %w", err)
	}

	if os.Getenv("GUARDRAILS_BYPASS") == "1" {
		return writeHookOutput(stdout, hookOutput{})
	}

	ev, err := session.DecodeToolCall(data)
	if err != nil {
		// Unreadable input gets no opinion.
		fmt.Fprintf(stderr, "[guardrails] warning: could not parse hook input: %v\n", err)
		return writeHookOutput(stdout, hookOutput{})
	}

	// The project document belongs to the directory the agent works in.
	dir := cwdFlag
	if dir == "" {
		dir = ev.Cwd
	}
	e, err := loadEnvIn(cmd, dir)
	if err != nil {
		return err
	}
	defer e.Close()
	e.openAudit(stderr)

	if ev.Cwd == "" {
		ev.Cwd = e.cwd
	}

	confirmer, closeTerminal := newConfirmer()
	defer closeTerminal()

	engine := policy.NewEngine(e.resolver.Policy(), policy.Options{
		Analyzer:  analyzer.NewStructuralAnalyzer(0),
		Confirmer: approval.NewController(confirmer, e.log),
		Notifier:  append(e.notifiers(), consoleNotifier{w: stderr}),
		Warnings:  e.queue,
		Logger:    e.log,
	})
	d := engine.Evaluate(commandContext(cmd), ev)
	e.drainWarnings(stderr)

	if err := writeHookOutput(stdout, hookOutput{Block: d.Block, Reason: d.Reason}); err != nil {
		return err
	}
	if d.Block {
		return &ExitError{Code: 2}
	}
	return nil
}

func writeHookOutput(w io.Writer, out hookOutput) error {
	data, err := json.Marshal(out)
	if err != nil {
		return err
	}
	_, err = fmt.Fprintln(w, string(data))
	return err
}
