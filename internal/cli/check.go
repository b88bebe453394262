package cli

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"github.com/gzhole/guardrails/internal/analyzer"
	"github.com/gzhole/guardrails/internal/approval"
	"github.com/gzhole/guardrails/internal/events"
	"github.com/gzhole/guardrails/internal/policy"
)

var (
	checkTool string
	checkJSON bool
)

var checkCmd = &cobra.Command{
	Use:   "check <command>",
	Short: "Dry-run a command against the effective policy",
	Long: `Evaluates a command without running it and without prompting. Dangerous
matches are reported; a command that would need confirmation is shown as
such and treated as confirmed.

Examples:
  guardrails check "sudo rm -rf build"
  guardrails check --tool read .env
  guardrails check --json "npm install left-pad"`,
	Args: cobra.MinimumNArgs(1),
	RunE: checkCommand,
}

func init() {
	checkCmd.Flags().StringVar(&checkTool, "tool", "bash", "Tool name: bash takes a command, file tools take a path")
	checkCmd.Flags().BoolVar(&checkJSON, "json", false, "Output as JSON")
	rootCmd.AddCommand(checkCmd)
}

type checkResult struct {
	Tool          string         `json:"tool"`
	Input         string         `json:"input"`
	Block         bool           `json:"block"`
	Feature       string         `json:"feature,omitempty"`
	Reason        string         `json:"reason,omitempty"`
	Dangerous     []dangerousHit `json:"dangerous,omitempty"`
	WouldConfirm  bool           `json:"wouldConfirm"`
	Notifications []string       `json:"notifications,omitempty"`
}

type dangerousHit struct {
	Pattern     string `json:"pattern"`
	Description string `json:"description"`
}

func checkCommand(cmd *cobra.Command, args []string) error {
	e, err := loadEnv(cmd)
	if err != nil {
		return err
	}
	defer e.Close()

	input := strings.Join(args, " ")
	ev := policy.ToolCallEvent{ToolName: checkTool, Cwd: e.cwd, Input: map[string]any{}}
	if checkTool == "bash" {
		ev.Input["command"] = input
	} else {
		ev.Input["file_path"] = input
	}

	rec := &events.Recorder{}
	var prompted bool
	confirmer := approval.ConfirmerFunc(func(_ context.Context, _ approval.Prompt) (approval.Outcome, error) {
		prompted = true
		return approval.Allow, nil
	})
	engine := policy.NewEngine(e.resolver.Policy(), policy.Options{
		Analyzer:  analyzer.NewStructuralAnalyzer(0),
		Confirmer: confirmer,
		Notifier:  rec,
		Warnings:  e.queue,
		Logger:    e.log,
	})
	d := engine.Evaluate(commandContext(cmd), ev)
	e.drainWarnings(cmd.ErrOrStderr())

	res := checkResult{
		Tool:          checkTool,
		Input:         input,
		Block:         d.Block,
		Feature:       d.Feature,
		Reason:        d.Reason,
		WouldConfirm:  prompted,
	}
	for _, m := range rec.Messages() {
		res.Notifications = append(res.Notifications, fmt.Sprintf("%s: %s", m.Severity, m.Text))
	}
	for _, de := range rec.DangerousEvents() {
		res.Dangerous = append(res.Dangerous, dangerousHit{Pattern: de.Pattern, Description: de.Description})
	}

	out := cmd.OutOrStdout()
	if checkJSON {
		enc := json.NewEncoder(out)
		enc.SetIndent("", "  ")
		if err := enc.Encode(res); err != nil {
			return err
		}
	} else {
		printCheckResult(cmd, res)
	}
	if res.Block {
		return &ExitError{Code: 2}
	}
	return nil
}

func printCheckResult(cmd *cobra.Command, res checkResult) {
	out := cmd.OutOrStdout()
	fmt.Fprintf(out, "%s: %s\n", res.Tool, res.Input)
	for _, h := range res.Dangerous {
		fmt.Fprintf(out, "  dangerous: %s (%s)\n", h.Description, h.Pattern)
	}
	if res.WouldConfirm {
		fmt.Fprintln(out, "  would ask for confirmation")
	}
	if res.Block {
		fmt.Fprintf(out, "  BLOCK [%s]\n", res.Feature)
		for _, line := range strings.Split(res.Reason, "\n") {
			fmt.Fprintf(out, "    %s\n", line)
		}
		return
	}
	fmt.Fprintln(out, "  ALLOW")
}
