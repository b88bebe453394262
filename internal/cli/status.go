package cli

import (
	"fmt"
	"io"
	"os"

	"github.com/spf13/cobra"

	"github.com/gzhole/guardrails/internal/config"
)

var statusCmd = &cobra.Command{
	Use:   "status",
	Short: "Show guardrails status: config documents, features, audit log",
	Long: `Check which config documents are in use, which features are on and
where the audit log is written.

  guardrails status`,
	Args: cobra.NoArgs,
	RunE: statusCommand,
}

func init() {
	rootCmd.AddCommand(statusCmd)
}

func statusCommand(cmd *cobra.Command, args []string) error {
	e, err := loadEnv(cmd)
	if err != nil {
		return err
	}
	defer e.Close()
	out := cmd.OutOrStdout()
	p := e.resolver.Policy()

	fmt.Fprintln(out, "═══════════════════════════════════════════════════════")
	fmt.Fprintln(out, "  guardrails Status")
	fmt.Fprintln(out, "═══════════════════════════════════════════════════════")
	fmt.Fprintln(out)

	binPath, err := os.Executable()
	if err != nil {
		binPath = "unknown"
	}
	fmt.Fprintf(out, "  Binary:    %s (%s)\n", binPath, Version)
	fmt.Fprintf(out, "  Project:   %s\n", e.cwd)
	fmt.Fprintln(out)

	fmt.Fprintln(out, "─── Config ────────────────────────────────────────────")
	paths := e.resolver.Paths()
	checkConfigFile(out, "Global ", paths.Global, e.resolver.Global())
	checkConfigFile(out, "Project", paths.Project, e.resolver.Project())
	fmt.Fprintln(out)

	fmt.Fprintln(out, "─── Features ──────────────────────────────────────────")
	if !p.Enabled {
		fmt.Fprintln(out, "  ⚠  guardrails is disabled (enabled: false)")
	}
	for _, f := range config.AllFeatures {
		mark := "⬚ "
		if p.FeatureEnabled(f) {
			mark = "✅"
		}
		fmt.Fprintf(out, "  %s %s\n", mark, f)
	}
	if p.Features.EnforcePackageManager {
		fmt.Fprintf(out, "     package manager: %s\n", p.PackageManager.Selected)
	}
	if p.Features.PermissionGate && !p.PermissionGate.RequireConfirmation {
		fmt.Fprintln(out, "     dangerous commands are reported, not confirmed")
	}
	fmt.Fprintln(out)

	fmt.Fprintln(out, "─── Audit Log ─────────────────────────────────────────")
	path, err := resolveAuditPath(auditPath)
	if err != nil {
		fmt.Fprintf(out, "  ⚠  %v\n", err)
	} else {
		checkAuditLog(out, path)
	}
	fmt.Fprintln(out)

	e.drainWarnings(cmd.ErrOrStderr())
	return nil
}

func checkConfigFile(w io.Writer, name, path string, doc config.Document) {
	if _, err := os.Stat(path); err != nil {
		fmt.Fprintf(w, "  ⬚  %s: %s (not present, defaults apply)\n", name, path)
		return
	}
	fmt.Fprintf(w, "  ✅ %s: %s (version %s)\n", name, path, doc.Version())
}

func checkAuditLog(w io.Writer, path string) {
	if path == "" {
		fmt.Fprintln(w, "  ⬚  Audit log disabled")
		return
	}

	info, err := os.Stat(path)
	if err != nil {
		fmt.Fprintf(w, "  ⬚  %s (not yet created, will start on first event)\n", path)
		return
	}

	sizeKB := info.Size() / 1024
	if sizeKB == 0 {
		fmt.Fprintf(w, "  ✅ %s (<1 KB)\n", path)
	} else {
		fmt.Fprintf(w, "  ✅ %s (%d KB)\n", path, sizeKB)
	}
}
