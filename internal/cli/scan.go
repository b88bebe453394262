package cli

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/spf13/cobra"

	"github.com/gzhole/guardrails/internal/analyzer"
	"github.com/gzhole/guardrails/internal/approval"
	"github.com/gzhole/guardrails/internal/config"
	"github.com/gzhole/guardrails/internal/policy"
)

var scanCmd = &cobra.Command{
	Use:   "scan",
	Short: "Self-test: verify the effective policy blocks what it should",
	Long: `Run a quick diagnostic of every enabled feature against the effective
policy. Nothing is executed; file checks run in a scratch directory holding
a throwaway .env file. Confirmations are answered "no".

  guardrails scan`,
	Args: cobra.NoArgs,
	RunE: scanCommand,
}

func init() {
	rootCmd.AddCommand(scanCmd)
}

type scanCase struct {
	feature config.Feature
	label   string
	tool    string
	input   string
	block   bool
}

func scanCases(p *config.Policy) []scanCase {
	selected := p.PackageManager.Selected
	other := config.NPM
	if selected == config.NPM {
		other = config.PNPM
	}
	return []scanCase{
		{config.FeatureProtectEnvFiles, "Read .env", "read", ".env", true},
		{config.FeatureProtectEnvFiles, "cat .env", "bash", "cat .env", true},
		{config.FeatureProtectEnvFiles, "Read .env.example", "read", ".env.example", false},
		{config.FeaturePermissionGate, "Recursive delete", "bash", "rm -rf build", true},
		{config.FeaturePermissionGate, "Superuser", "bash", "sudo make install", true},
		{config.FeaturePermissionGate, "Safe read-only", "bash", "ls -la", false},
		{config.FeatureEnforcePackageManager, "Other manager", "bash", string(other) + " install", true},
		{config.FeatureEnforcePackageManager, "Selected manager", "bash", string(selected) + " install", false},
		{config.FeaturePreventBrew, "Homebrew", "bash", "brew install jq", true},
		{config.FeaturePreventPython, "pip", "bash", "pip install requests", true},
	}
}

func scanCommand(cmd *cobra.Command, args []string) error {
	e, err := loadEnv(cmd)
	if err != nil {
		return err
	}
	defer e.Close()
	out := cmd.OutOrStdout()

	scratch, err := os.MkdirTemp("", "guardrails-scan-")
	if err != nil {
		return fmt.Errorf("create scratch dir: %w", err)
	}
	defer os.RemoveAll(scratch)
	for _, name := range []string{".env", ".env.example"} {
		if err := os.WriteFile(filepath.Join(scratch, name), []byte("KEY=value\n"), 0o600); err != nil {
			return fmt.Errorf("create scratch file: %w", err)
		}
	}

	p := e.resolver.Policy()
	engine := policy.NewEngine(p, policy.Options{
		Analyzer:  analyzer.NewStructuralAnalyzer(0),
		Confirmer: approval.StaticConfirmer(approval.Deny),
		Warnings:  e.queue,
		Logger:    e.log,
	})

	fmt.Fprintln(out, "═══════════════════════════════════════════════════════")
	fmt.Fprintln(out, "  guardrails Self-Test")
	fmt.Fprintln(out, "═══════════════════════════════════════════════════════")
	fmt.Fprintln(out)

	if !p.Enabled {
		fmt.Fprintln(out, "  ⚠  guardrails is disabled (enabled: false); every call is allowed")
		fmt.Fprintln(out)
		return nil
	}

	passed, total := 0, 0
	for _, tc := range scanCases(p) {
		if !p.FeatureEnabled(tc.feature) {
			fmt.Fprintf(out, "  ⬚   %-18s  %s (%s off)\n", tc.label, tc.input, tc.feature)
			continue
		}
		ev := policy.ToolCallEvent{ToolName: tc.tool, Cwd: scratch, Input: map[string]any{}}
		if tc.tool == "bash" {
			ev.Input["command"] = tc.input
		} else {
			ev.Input["file_path"] = tc.input
		}
		d := engine.Evaluate(commandContext(cmd), ev)

		total++
		icon := "❌"
		if d.Block == tc.block {
			icon = "✅"
			passed++
		}
		result := "ALLOW"
		if d.Block {
			result = "BLOCK"
		}
		fmt.Fprintf(out, "  %s  %-18s  %s → %s\n", icon, tc.label, tc.input, result)
	}
	e.drainWarnings(cmd.ErrOrStderr())

	fmt.Fprintln(out)
	fmt.Fprintln(out, "═══════════════════════════════════════════════════════")
	if passed == total {
		fmt.Fprintf(out, "  ✅ All %d checks passed\n", total)
	} else {
		fmt.Fprintf(out, "  ⚠  %d/%d checks passed, %d failed\n", passed, total, total-passed)
		fmt.Fprintln(out, "  Review your policy configuration.")
	}
	fmt.Fprintln(out, "═══════════════════════════════════════════════════════")
	fmt.Fprintln(out)
	return nil
}
