package policy

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"path/filepath"
	"strings"

	"github.com/gzhole/guardrails/internal/config"
	"github.com/gzhole/guardrails/internal/events"
	"github.com/gzhole/guardrails/internal/normalize"
	"github.com/gzhole/guardrails/internal/pattern"
)

// envFileProtection blocks tools from touching secret files such as .env.
type envFileProtection struct {
	tools       map[string]bool
	protected   []pattern.Matcher
	allowed     []pattern.Matcher
	directories []pattern.Matcher

	onlyIfExists bool
	message      string

	stat   func(string) (fs.FileInfo, error)
	notify events.Notifier
}

func newEnvFileProtection(p *config.Policy, opts Options) *envFileProtection {
	cfg := p.EnvFiles
	tools := make(map[string]bool, len(cfg.ProtectedTools))
	for _, t := range cfg.ProtectedTools {
		tools[t] = true
	}
	return &envFileProtection{
		tools:        tools,
		protected:    pattern.CompileAll(cfg.ProtectedPatterns, pattern.Glob, opts.Warnings),
		allowed:      pattern.CompileAll(cfg.AllowedPatterns, pattern.Glob, opts.Warnings),
		directories:  pattern.CompileAll(cfg.ProtectedDirectories, pattern.Glob, opts.Warnings),
		onlyIfExists: cfg.OnlyBlockIfExists,
		message:      cfg.BlockMessage,
		stat:         opts.Stat,
		notify:       opts.Notifier,
	}
}

func (f *envFileProtection) Name() config.Feature { return config.FeatureProtectEnvFiles }

func (f *envFileProtection) Enabled(p *config.Policy) bool { return p.Features.ProtectEnvFiles }

func (f *envFileProtection) Evaluate(_ context.Context, ev ToolCallEvent) (Decision, error) {
	if !f.tools[ev.ToolName] {
		return Allow(), nil
	}
	for _, target := range targets(ev) {
		if !f.blocks(target, ev.Cwd) {
			continue
		}
		f.notify.Notify(fmt.Sprintf("Blocked access to protected file: %s", target), events.Warning)
		return Block(strings.ReplaceAll(f.message, "{file}", target)), nil
	}
	return Allow(), nil
}

// targets extracts candidate paths in order: the path field of file tools,
// or every path-like token of a shell command.
func targets(ev ToolCallEvent) []string {
	if ev.ToolName == "bash" {
		return normalize.PathRefs(ev.Command())
	}
	for _, key := range []string{"file_path", "path"} {
		if p := ev.Field(key); p != "" {
			return []string{p}
		}
	}
	return nil
}

func (f *envFileProtection) blocks(target, cwd string) bool {
	if pattern.Any(f.allowed, target) {
		return false
	}
	if f.inProtectedDirectory(target) {
		return true
	}
	if !pattern.Any(f.protected, target) {
		return false
	}
	if !f.onlyIfExists {
		return true
	}
	return f.exists(normalize.Resolve(target, cwd))
}

// inProtectedDirectory matches the target and each of its parents against
// the directory rules. Directory rules ignore onlyBlockIfExists.
func (f *envFileProtection) inProtectedDirectory(target string) bool {
	if len(f.directories) == 0 {
		return false
	}
	p := filepath.ToSlash(filepath.Clean(target))
	for {
		if pattern.Any(f.directories, p) || pattern.Any(f.directories, p+"/") {
			return true
		}
		parent := filepath.ToSlash(filepath.Dir(p))
		if parent == p || parent == "." || parent == "/" {
			return false
		}
		p = parent
	}
}

// exists treats any error other than "does not exist" as existing.
func (f *envFileProtection) exists(path string) bool {
	_, err := f.stat(path)
	if err == nil {
		return true
	}
	return !errors.Is(err, fs.ErrNotExist)
}
