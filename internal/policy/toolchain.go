package policy

import (
	"context"
	"fmt"

	"github.com/gzhole/guardrails/internal/analyzer"
	"github.com/gzhole/guardrails/internal/config"
	"github.com/gzhole/guardrails/internal/events"
)

// commandBlock blocks bash calls that invoke any of a fixed set of command
// names. Names come from the shell parse; when the command does not parse,
// the names are searched for as whole words instead.
type commandBlock struct {
	feature config.Feature
	names   []string
	reason  func(found string) string
	notice  func(found string) string

	analyzer *analyzer.StructuralAnalyzer
	notify   events.Notifier
}

func (c *commandBlock) Name() config.Feature { return c.feature }

func (c *commandBlock) Enabled(p *config.Policy) bool { return p.FeatureEnabled(c.feature) }

func (c *commandBlock) Evaluate(_ context.Context, ev ToolCallEvent) (Decision, error) {
	if ev.ToolName != "bash" || len(c.names) == 0 {
		return Allow(), nil
	}
	command := ev.Command()
	if command == "" {
		return Allow(), nil
	}
	found, _ := c.analyzer.FindCommands(command, c.names)
	if len(found) == 0 {
		return Allow(), nil
	}
	c.notify.Notify(c.notice(found[0]), events.Warning)
	return Block(c.reason(found[0])), nil
}

type managerInfo struct {
	install string
	add     string
	run     string
}

var managerCommands = map[config.PackageManager]managerInfo{
	config.Bun:  {"bun install", "bun add <package>", "bun run <script>"},
	config.PNPM: {"pnpm install", "pnpm add <package>", "pnpm run <script>"},
	config.NPM:  {"npm install", "npm install <package>", "npm run <script>"},
}

func newPackageManagerEnforcement(p *config.Policy, opts Options) *commandBlock {
	selected := p.PackageManager.Selected
	info, ok := managerCommands[selected]
	if !ok {
		selected, info = config.NPM, managerCommands[config.NPM]
	}

	var others []string
	for _, m := range config.PackageManagers {
		if m != selected {
			others = append(others, string(m))
		}
	}

	return &commandBlock{
		feature: config.FeatureEnforcePackageManager,
		names:   others,
		reason: func(found string) string {
			return fmt.Sprintf("This project uses %s as its package manager. Use %s instead of %s. "+
				"Run `%s` to install dependencies, `%s` to add packages, and `%s` to run scripts.",
				selected, selected, found, info.install, info.add, info.run)
		},
		notice: func(found string) string {
			return fmt.Sprintf("Blocked %s command. Use %s instead.", found, selected)
		},
		analyzer: opts.Analyzer,
		notify:   opts.Notifier,
	}
}

func newPreventBrew(opts Options) *commandBlock {
	return &commandBlock{
		feature: config.FeaturePreventBrew,
		names:   []string{"brew"},
		reason: func(string) string {
			return "Homebrew is not installed on this machine. " +
				"Use Nix for package management instead. " +
				"Run packages via nix-shell or add them to the project's Nix configuration."
		},
		notice: func(string) string {
			return "Blocked brew command. Homebrew is not installed."
		},
		analyzer: opts.Analyzer,
		notify:   opts.Notifier,
	}
}

func newPreventPython(opts Options) *commandBlock {
	return &commandBlock{
		feature: config.FeaturePreventPython,
		names:   []string{"python", "python3", "pip", "pip3", "poetry", "pyenv", "virtualenv", "venv"},
		reason: func(string) string {
			return "Python is not available globally on this machine. " +
				"Use uv for Python package management instead. " +
				"Run `uv init` to create a new Python project, " +
				"or `uv run python` to run Python scripts. " +
				"Use `uv add` to install packages (replaces pip/poetry)."
		},
		notice: func(string) string {
			return "Blocked Python command. Use uv instead."
		},
		analyzer: opts.Analyzer,
		notify:   opts.Notifier,
	}
}
