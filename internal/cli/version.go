package cli

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/gzhole/guardrails/internal/config"
)

var (
	Version   = "0.7.0-dev"
	GitCommit = "unknown"
	BuildDate = "unknown"
)

var versionCmd = &cobra.Command{
	Use:   "version",
	Short: "Print guardrails version",
	Run: func(cmd *cobra.Command, args []string) {
		out := cmd.OutOrStdout()
		fmt.Fprintf(out, "guardrails %s\n", Version)
		fmt.Fprintf(out, "  Config: %s\n", config.CurrentVersion)
		fmt.Fprintf(out, "  Commit: %s\n", GitCommit)
		fmt.Fprintf(out, "  Built:  %s\n", BuildDate)
	},
}

func init() {
	rootCmd.AddCommand(versionCmd)
}
