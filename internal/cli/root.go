package cli

import (
	"fmt"

	"github.com/spf13/cobra"
)

var (
	cwdFlag   string
	logLevel  string
	logFormat string
	auditPath string
)

var rootCmd = &cobra.Command{
	Use:   "guardrails",
	Short: "guardrails - command-safety policy engine for coding agents",
	Long: `guardrails evaluates the tool calls a coding agent makes before they run.
It protects environment files that hold secrets, asks before dangerous shell
commands, and keeps the agent on the project's chosen toolchain.

Policy is read from a global and a project JSON document, merged over the
built-in defaults.`,
	SilenceUsage:  true,
	SilenceErrors: true,
}

func init() {
	rootCmd.PersistentFlags().StringVar(&cwdFlag, "cwd", "", "Project directory (default: current directory)")
	rootCmd.PersistentFlags().StringVar(&logLevel, "log-level", "warn", "Log level: debug, info, warn, error")
	rootCmd.PersistentFlags().StringVar(&logFormat, "log-format", "text", "Log format: text or json")
	rootCmd.PersistentFlags().StringVar(&auditPath, "audit-log", "", `Path to audit log file (default: ~/.pi/agent/guardrails-audit.jsonl, "off" disables)`)
}

// ExitError carries a process exit code without printing anything more.
type ExitError struct {
	Code int
}

func (e *ExitError) Error() string {
	return fmt.Sprintf("exit status %d", e.Code)
}

func Execute() error {
	return rootCmd.Execute()
}
