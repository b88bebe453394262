package policy

import (
	"context"
	"fmt"
	"io/fs"
	"log/slog"
	"os"
	"sync/atomic"

	"github.com/gzhole/guardrails/internal/analyzer"
	"github.com/gzhole/guardrails/internal/approval"
	"github.com/gzhole/guardrails/internal/config"
	"github.com/gzhole/guardrails/internal/events"
	"github.com/gzhole/guardrails/internal/warnings"
)

// Options wires the engine's collaborators. Zero values get safe defaults:
// no confirmer means every dangerous command is denied.
type Options struct {
	Analyzer  *analyzer.StructuralAnalyzer
	Confirmer approval.Confirmer
	Notifier  events.Notifier
	Warnings  warnings.Sink
	Logger    *slog.Logger
	// Stat checks file existence for onlyBlockIfExists. Defaults to os.Stat.
	Stat func(name string) (fs.FileInfo, error)
}

// snapshot is the compiled form of one *config.Policy.
type snapshot struct {
	policy   *config.Policy
	features []Feature
}

// Engine evaluates tool calls against the current policy. SetPolicy swaps
// in a newly compiled rule set; evaluations already running keep the one
// they started with.
type Engine struct {
	opts Options
	snap atomic.Pointer[snapshot]
}

func NewEngine(p *config.Policy, opts Options) *Engine {
	if opts.Analyzer == nil {
		opts.Analyzer = analyzer.NewStructuralAnalyzer(0)
	}
	if opts.Confirmer == nil {
		opts.Confirmer = approval.StaticConfirmer(approval.Deny)
	}
	if opts.Notifier == nil {
		opts.Notifier = events.Nop{}
	}
	if opts.Warnings == nil {
		opts.Warnings = warnings.Discard{}
	}
	if opts.Logger == nil {
		opts.Logger = slog.New(slog.DiscardHandler)
	}
	if opts.Stat == nil {
		opts.Stat = os.Stat
	}
	e := &Engine{opts: opts}
	e.SetPolicy(p)
	return e
}

// SetPolicy compiles p and makes it current. Invalid patterns are reported
// to the warning sink and left out.
func (e *Engine) SetPolicy(p *config.Policy) {
	if p == nil {
		p = config.Defaults()
	}
	e.snap.Store(&snapshot{
		policy: p,
		features: []Feature{
			newEnvFileProtection(p, e.opts),
			newPermissionGate(p, e.opts),
			newPackageManagerEnforcement(p, e.opts),
			newPreventBrew(e.opts),
			newPreventPython(e.opts),
		},
	})
}

// Policy returns the policy currently in force.
func (e *Engine) Policy() *config.Policy {
	return e.snap.Load().policy
}

// Evaluate runs every enabled feature in order and returns the first
// block. A feature that fails or panics is logged and skipped.
func (e *Engine) Evaluate(ctx context.Context, ev ToolCallEvent) Decision {
	snap := e.snap.Load()
	if !snap.policy.Enabled {
		return Allow()
	}

	for _, f := range snap.features {
		if !f.Enabled(snap.policy) {
			continue
		}
		d, err := e.run(ctx, f, ev)
		if err != nil {
			e.opts.Logger.Warn("guardrail failed, skipping", "feature", string(f.Name()), "tool", ev.ToolName, "error", err)
			continue
		}
		if !d.Block {
			continue
		}
		d.Feature = string(f.Name())
		e.opts.Logger.Debug("tool call blocked", "feature", d.Feature, "tool", ev.ToolName, "user_denied", d.UserDenied)
		e.opts.Notifier.Blocked(events.BlockedEvent{
			ToolName:   ev.ToolName,
			Input:      ev.Input,
			Cwd:        ev.Cwd,
			Feature:    d.Feature,
			Reason:     d.Reason,
			UserDenied: d.UserDenied,
		})
		return d
	}
	return Allow()
}

func (e *Engine) run(ctx context.Context, f Feature, ev ToolCallEvent) (d Decision, err error) {
	defer func() {
		if r := recover(); r != nil {
			d, err = Allow(), fmt.Errorf("panic: %v", r)
		}
	}()
	return f.Evaluate(ctx, ev)
}
