package policy

import (
	"context"
	"fmt"

	"github.com/gzhole/guardrails/internal/analyzer"
	"github.com/gzhole/guardrails/internal/approval"
	"github.com/gzhole/guardrails/internal/config"
	"github.com/gzhole/guardrails/internal/events"
	"github.com/gzhole/guardrails/internal/pattern"
)

// dangerousRule is one dangerous pattern. check, when set, is an extra
// structural match for spellings the text misses, such as "rm -r -f".
type dangerousRule struct {
	matcher pattern.Matcher
	check   analyzer.StructuralCheck
}

func (r dangerousRule) match(command string, parsed func() *analyzer.ParsedCommand) bool {
	if r.matcher.Match(command) {
		return true
	}
	if r.check == nil {
		return false
	}
	pc := parsed()
	return !pc.Untrusted() && r.check(pc)
}

// permissionGate asks before running dangerous bash commands.
type permissionGate struct {
	allow     []pattern.Matcher
	autoDeny  []pattern.Matcher
	dangerous []dangerousRule

	requireConfirmation bool

	analyzer  *analyzer.StructuralAnalyzer
	confirmer approval.Confirmer
	notify    events.Notifier
}

func newPermissionGate(p *config.Policy, opts Options) *permissionGate {
	cfg := p.PermissionGate
	g := &permissionGate{
		allow:               pattern.CompileAll(cfg.AllowedPatterns, pattern.Substring, opts.Warnings),
		autoDeny:            pattern.CompileAll(cfg.AutoDenyPatterns, pattern.Substring, opts.Warnings),
		requireConfirmation: cfg.RequireConfirmation,
		analyzer:            opts.Analyzer,
		confirmer:           opts.Confirmer,
		notify:              opts.Notifier,
	}
	for _, m := range pattern.CompileAll(cfg.Patterns, pattern.Substring, opts.Warnings) {
		r := dangerousRule{matcher: m}
		if cfg.UseBuiltinMatchers && m.Mode() == pattern.Substring {
			r.check, _ = analyzer.BuiltinCheck(m.Source().Pattern)
		}
		g.dangerous = append(g.dangerous, r)
	}
	return g
}

func (g *permissionGate) Name() config.Feature { return config.FeaturePermissionGate }

func (g *permissionGate) Enabled(p *config.Policy) bool { return p.Features.PermissionGate }

func (g *permissionGate) Evaluate(ctx context.Context, ev ToolCallEvent) (Decision, error) {
	if ev.ToolName != "bash" {
		return Allow(), nil
	}
	command := ev.Command()
	if command == "" {
		return Allow(), nil
	}

	if pattern.Any(g.allow, command) {
		return Allow(), nil
	}
	if m, ok := pattern.First(g.autoDeny, command); ok {
		return Block(fmt.Sprintf("Command matched auto-deny pattern: %s", m.Source().Pattern)), nil
	}

	var pc *analyzer.ParsedCommand
	parsed := func() *analyzer.ParsedCommand {
		if pc == nil {
			pc = g.analyzer.Parse(command)
		}
		return pc
	}

	for _, r := range g.dangerous {
		if !r.match(command, parsed) {
			continue
		}
		src := r.matcher.Source()
		g.notify.Dangerous(events.DangerousEvent{
			ToolName:    ev.ToolName,
			Command:     command,
			Cwd:         ev.Cwd,
			Pattern:     src.Pattern,
			Description: src.Label(),
		})

		if !g.requireConfirmation {
			g.notify.Notify(fmt.Sprintf("Dangerous command (%s): %s", src.Label(), command), events.Warning)
			return Allow(), nil
		}

		outcome, err := g.confirmer.Confirm(ctx, approval.Prompt{
			ToolName:    ev.ToolName,
			Command:     command,
			Cwd:         ev.Cwd,
			Pattern:     src.Pattern,
			Description: src.Label(),
		})
		if err != nil || outcome != approval.Allow {
			return Decision{Block: true, Reason: "User denied dangerous command", UserDenied: true}, nil
		}
		return Allow(), nil
	}
	return Allow(), nil
}
