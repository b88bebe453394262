package cli

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"

	"github.com/spf13/cobra"

	"github.com/gzhole/guardrails/internal/config"
	"github.com/gzhole/guardrails/internal/events"
	"github.com/gzhole/guardrails/internal/logger"
	"github.com/gzhole/guardrails/internal/warnings"
)

const defaultAuditName = "guardrails-audit.jsonl"

// env is what every command needs: where it runs, its logger, the
// resolver over the two config documents and the queued warnings.
type env struct {
	cwd      string
	log      *slog.Logger
	queue    *warnings.Queue
	resolver *config.Resolver
	audit    *logger.AuditLogger
}

func loadEnv(cmd *cobra.Command) (*env, error) {
	return loadEnvIn(cmd, cwdFlag)
}

// loadEnvIn is loadEnv rooted at dir. An empty dir means the process
// working directory.
func loadEnvIn(cmd *cobra.Command, dir string) (*env, error) {
	cwd := dir
	if cwd == "" {
		wd, err := os.Getwd()
		if err != nil {
			return nil, fmt.Errorf("get working directory: %w", err)
		}
		cwd = wd
	}
	paths, err := config.DefaultPaths(cwd)
	if err != nil {
		return nil, err
	}
	log := logger.New(logLevel, logFormat, cmd.ErrOrStderr())
	queue := warnings.NewQueue()
	e := &env{
		cwd:      cwd,
		log:      log,
		queue:    queue,
		resolver: config.NewResolver(paths, queue, config.WithLogger(log)),
	}
	e.resolver.Load()
	return e, nil
}

// openAudit opens the audit log. Failure only costs the audit trail.
func (e *env) openAudit(stderr io.Writer) {
	path, err := resolveAuditPath(auditPath)
	if err != nil || path == "" {
		if err != nil {
			fmt.Fprintf(stderr, "[guardrails] warning: audit log disabled: %v\n", err)
		}
		return
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o700); err != nil {
		fmt.Fprintf(stderr, "[guardrails] warning: audit log disabled: %v\n", err)
		return
	}
	a, err := logger.NewAuditLogger(path)
	if err != nil {
		fmt.Fprintf(stderr, "[guardrails] warning: audit log disabled: %v\n", err)
		return
	}
	e.audit = a
}

func resolveAuditPath(flag string) (string, error) {
	switch flag {
	case "off":
		return "", nil
	case "":
		homeDir, err := os.UserHomeDir()
		if err != nil {
			return "", fmt.Errorf("resolve home dir: %w", err)
		}
		return filepath.Join(homeDir, ".pi", "agent", defaultAuditName), nil
	}
	return flag, nil
}

// notifiers returns the log notifier plus the audit sink when one is open.
func (e *env) notifiers() events.Multi {
	m := events.Multi{events.Log{Logger: e.log}}
	if e.audit != nil {
		m = append(m, events.NewAuditSink(e.audit, e.log))
	}
	return m
}

// drainWarnings writes queued warnings one per line.
func (e *env) drainWarnings(w io.Writer) {
	for _, msg := range e.queue.Drain() {
		fmt.Fprintln(w, msg)
	}
}

func (e *env) Close() {
	if e.audit != nil {
		if err := e.audit.Close(); err != nil {
			e.log.Warn("close audit log", "error", err)
		}
	}
}

// consoleNotifier prints user-facing messages to a stream, the way the
// host would show them in its UI.
type consoleNotifier struct {
	w io.Writer
}

func (c consoleNotifier) Dangerous(events.DangerousEvent) {}
func (c consoleNotifier) Blocked(events.BlockedEvent)     {}

func (c consoleNotifier) Notify(message string, severity events.Severity) {
	fmt.Fprintf(c.w, "[guardrails] %s: %s\n", severity, message)
}

func commandContext(cmd *cobra.Command) context.Context {
	if ctx := cmd.Context(); ctx != nil {
		return ctx
	}
	return context.Background()
}
