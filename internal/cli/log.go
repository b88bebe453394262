package cli

import (
	"bufio"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"github.com/gzhole/guardrails/internal/config"
	"github.com/gzhole/guardrails/internal/logger"
)

var (
	logFilterKind   string
	logFilterDenied bool
	logLast         int
	logSummary      bool
)

var logCmd = &cobra.Command{
	Use:   "log",
	Short: "View and filter the audit log",
	Long: `View the guardrails audit log with filtering and summary options.

Examples:
  guardrails log                        # Show all entries
  guardrails log --last 20              # Show last 20 entries
  guardrails log --kind blocked         # Show only blocked tool calls
  guardrails log --denied               # Show only calls a user refused
  guardrails log --summary              # Show summary stats`,
	Args: cobra.NoArgs,
	RunE: logCommand,
}

func init() {
	logCmd.Flags().StringVar(&logFilterKind, "kind", "", "Filter by kind (dangerous, blocked, notify)")
	logCmd.Flags().BoolVar(&logFilterDenied, "denied", false, "Show only user-denied entries")
	logCmd.Flags().IntVar(&logLast, "last", 0, "Show last N entries")
	logCmd.Flags().BoolVar(&logSummary, "summary", false, "Show summary statistics")
	rootCmd.AddCommand(logCmd)
}

func logCommand(cmd *cobra.Command, args []string) error {
	path, err := resolveAuditPath(auditPath)
	if err != nil {
		return err
	}
	out := cmd.OutOrStdout()
	if path == "" {
		fmt.Fprintln(out, "Audit log is disabled.")
		return nil
	}

	entries, err := readAuditLog(path)
	if err != nil {
		return fmt.Errorf("failed to read audit log: %w", err)
	}
	if len(entries) == 0 {
		fmt.Fprintln(out, "No audit log entries found.")
		return nil
	}

	filtered := filterEntries(entries, logFilterKind, logFilterDenied)
	if logLast > 0 && logLast < len(filtered) {
		filtered = filtered[len(filtered)-logLast:]
	}

	if logSummary {
		printSummary(out, entries)
		return nil
	}
	printEntries(out, filtered)
	return nil
}

func readAuditLog(path string) ([]logger.AuditEvent, error) {
	file, err := os.Open(path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, err
	}
	defer file.Close()

	var entries []logger.AuditEvent
	scanner := bufio.NewScanner(file)
	scanner.Buffer(make([]byte, 64*1024), 4<<20)
	for scanner.Scan() {
		line := scanner.Text()
		if strings.TrimSpace(line) == "" {
			continue
		}
		var ev logger.AuditEvent
		if err := json.Unmarshal([]byte(line), &ev); err != nil {
			continue // skip malformed lines
		}
		entries = append(entries, ev)
	}
	return entries, scanner.Err()
}

func filterEntries(entries []logger.AuditEvent, kind string, denied bool) []logger.AuditEvent {
	if kind == "" && !denied {
		return entries
	}
	var filtered []logger.AuditEvent
	for _, e := range entries {
		if kind != "" && !strings.EqualFold(e.Kind, kind) {
			continue
		}
		if denied && !e.UserDenied {
			continue
		}
		filtered = append(filtered, e)
	}
	return filtered
}

func printEntries(w io.Writer, entries []logger.AuditEvent) {
	for _, e := range entries {
		subject := e.Command
		if subject == "" {
			if p, ok := e.Input["file_path"].(string); ok {
				subject = p
			}
		}
		denied := ""
		if e.UserDenied {
			denied = " [DENIED BY USER]"
		}
		fmt.Fprintf(w, "%-9s %s %s %s%s\n", strings.ToUpper(e.Kind), formatTimestamp(e.Timestamp), e.ToolName, subject, denied)

		if e.Feature != "" {
			fmt.Fprintf(w, "     Feature: %s\n", e.Feature)
		}
		if e.Description != "" {
			fmt.Fprintf(w, "     Pattern: %s (%s)\n", e.Pattern, e.Description)
		}
		if e.Reason != "" {
			fmt.Fprintf(w, "     Reason: %s\n", firstLine(e.Reason))
		}
		if e.Kind == "notify" && e.Severity != "" {
			fmt.Fprintf(w, "     Severity: %s\n", e.Severity)
		}
		if e.Cwd != "" {
			fmt.Fprintf(w, "     Cwd: %s\n", e.Cwd)
		}
		fmt.Fprintln(w)
	}
}

func printSummary(w io.Writer, all []logger.AuditEvent) {
	counts := map[string]int{}
	denied := 0
	byFeature := map[string]int{}
	for _, e := range all {
		counts[e.Kind]++
		if e.UserDenied {
			denied++
		}
		if e.Kind == "blocked" && e.Feature != "" {
			byFeature[e.Feature]++
		}
	}

	fmt.Fprintln(w, "═══════════════════════════════════════════")
	fmt.Fprintln(w, "  guardrails Audit Summary")
	fmt.Fprintln(w, "═══════════════════════════════════════════")
	fmt.Fprintf(w, "  Total events:    %d\n", len(all))
	fmt.Fprintf(w, "  Dangerous:       %d\n", counts["dangerous"])
	fmt.Fprintf(w, "  Blocked:         %d\n", counts["blocked"])
	fmt.Fprintf(w, "  User denied:     %d\n", denied)
	fmt.Fprintf(w, "  Notifications:   %d\n", counts["notify"])
	fmt.Fprintln(w, "═══════════════════════════════════════════")

	fmt.Fprintf(w, "  First event:     %s\n", formatTimestamp(all[0].Timestamp))
	fmt.Fprintf(w, "  Last event:      %s\n", formatTimestamp(all[len(all)-1].Timestamp))

	if len(byFeature) > 0 {
		fmt.Fprintln(w)
		fmt.Fprintln(w, "  Blocked by feature:")
		for _, f := range config.AllFeatures {
			if n := byFeature[string(f)]; n > 0 {
				fmt.Fprintf(w, "    %-22s %d\n", f, n)
			}
		}
	}
	fmt.Fprintln(w)
}

func formatTimestamp(ts string) string {
	t, err := time.Parse(time.RFC3339, ts)
	if err != nil {
		return ts
	}
	return t.Local().Format("2006-01-02 15:04:05")
}

func firstLine(s string) string {
	if i := strings.IndexByte(s, '\n'); i >= 0 {
		return s[:i]
	}
	return s
}
