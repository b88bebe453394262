package cli

import (
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/gzhole/guardrails/internal/session"
)

var serveWatch bool

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Run a JSON-lines guardrails session on stdin/stdout",
	Long: `Runs a long-lived session for a host agent. Each line on stdin is one
JSON message; responses are written one per line to stdout.

Inbound:  session_start, tool_call, confirm_result, reload
Outbound: decision, notify, confirm, event

Confirmations are sent to the host as "confirm" requests and answered with
"confirm_result". Closing stdin denies any confirmation still open.

  guardrails serve --watch`,
	Args: cobra.NoArgs,
	RunE: serveCommand,
}

func init() {
	serveCmd.Flags().BoolVar(&serveWatch, "watch", false, "Reload the policy when a config file changes")
	rootCmd.AddCommand(serveCmd)
}

func serveCommand(cmd *cobra.Command, args []string) error {
	e, err := loadEnv(cmd)
	if err != nil {
		return err
	}
	defer e.Close()
	e.openAudit(cmd.ErrOrStderr())

	ctx, stop := signal.NotifyContext(commandContext(cmd), os.Interrupt, syscall.SIGTERM)
	defer stop()

	s := session.New(e.resolver, e.queue, session.Options{
		Logger:    e.log,
		Notifiers: e.notifiers(),
		Watch:     serveWatch,
	})
	e.log.Info("session started", "cwd", e.cwd, "watch", serveWatch)
	return s.Run(ctx, cmd.InOrStdin(), cmd.OutOrStdout())
}
