package config

import (
	"fmt"
	"os"
	"path/filepath"
	"slices"

	"github.com/gzhole/guardrails/internal/pattern"
)

const (
	// CurrentVersion is stamped on documents written by this build.
	CurrentVersion = "0.7.0-20260204"
	// FormatV1Version is the first version using {pattern} objects.
	FormatV1Version = "0.6.0"
	// ToolchainMigrationVersion is the version that stopped carrying
	// toolchain fields (preventBrew, preventPython, enforcePackageManager,
	// packageManager) forward from older documents.
	ToolchainMigrationVersion = "0.7.0-20260204"

	DefaultConfigName = "guardrails.json"

	EnvGlobalConfig  = "GUARDRAILS_GLOBAL_CONFIG"
	EnvProjectConfig = "GUARDRAILS_PROJECT_CONFIG"
)

// Scope names one of the two authored documents.
type Scope string

const (
	ScopeGlobal  Scope = "global"
	ScopeProject Scope = "project"
)

// ParseScope accepts "global", "project" and the settings UI alias "local".
func ParseScope(s string) (Scope, error) {
	switch s {
	case "global":
		return ScopeGlobal, nil
	case "project", "local":
		return ScopeProject, nil
	}
	return "", fmt.Errorf("%w: %q", ErrUnknownScope, s)
}

// Paths locates the two config documents.
type Paths struct {
	Global  string
	Project string
}

// DefaultPaths returns ~/.pi/agent/extensions/guardrails.json and
// <cwd>/.pi/extensions/guardrails.json, unless overridden by
// GUARDRAILS_GLOBAL_CONFIG / GUARDRAILS_PROJECT_CONFIG.
func DefaultPaths(cwd string) (Paths, error) {
	var p Paths
	if v := os.Getenv(EnvGlobalConfig); v != "" {
		p.Global = v
	} else {
		homeDir, err := os.UserHomeDir()
		if err != nil {
			return Paths{}, fmt.Errorf("resolve home dir: %w", err)
		}
		p.Global = filepath.Join(homeDir, ".pi", "agent", "extensions", DefaultConfigName)
	}
	if v := os.Getenv(EnvProjectConfig); v != "" {
		p.Project = v
	} else {
		p.Project = filepath.Join(cwd, ".pi", "extensions", DefaultConfigName)
	}
	return p, nil
}

// PackageManager is one of the supported Node package managers.
type PackageManager string

const (
	Bun  PackageManager = "bun"
	PNPM PackageManager = "pnpm"
	NPM  PackageManager = "npm"
)

// PackageManagers lists every manager the enforcement feature knows.
var PackageManagers = []PackageManager{Bun, PNPM, NPM}

// ParsePackageManager validates a manager name.
func ParsePackageManager(s string) (PackageManager, error) {
	m := PackageManager(s)
	if slices.Contains(PackageManagers, m) {
		return m, nil
	}
	return "", fmt.Errorf("%w: %q (want bun, pnpm or npm)", ErrUnknownPackageManager, s)
}

// Policy is the fully resolved configuration used at evaluation time.
// A *Policy handed out by the Resolver is never modified; reloads build a
// new one.
type Policy struct {
	Version        string               `json:"version" yaml:"version"`
	Enabled        bool                 `json:"enabled" yaml:"enabled"`
	Features       Features             `json:"features" yaml:"features"`
	PackageManager PackageManagerConfig `json:"packageManager" yaml:"packageManager"`
	EnvFiles       EnvFiles             `json:"envFiles" yaml:"envFiles"`
	PermissionGate PermissionGate       `json:"permissionGate" yaml:"permissionGate"`
}

type Features struct {
	ProtectEnvFiles       bool `json:"protectEnvFiles" yaml:"protectEnvFiles"`
	PermissionGate        bool `json:"permissionGate" yaml:"permissionGate"`
	EnforcePackageManager bool `json:"enforcePackageManager" yaml:"enforcePackageManager"`
	PreventBrew           bool `json:"preventBrew" yaml:"preventBrew"`
	PreventPython         bool `json:"preventPython" yaml:"preventPython"`
}

type PackageManagerConfig struct {
	Selected PackageManager `json:"selected" yaml:"selected"`
}

// EnvFiles configures secret-file protection. BlockMessage may contain a
// {file} placeholder.
type EnvFiles struct {
	ProtectedPatterns    []pattern.Pattern `json:"protectedPatterns" yaml:"protectedPatterns"`
	AllowedPatterns      []pattern.Pattern `json:"allowedPatterns" yaml:"allowedPatterns"`
	ProtectedDirectories []pattern.Pattern `json:"protectedDirectories" yaml:"protectedDirectories"`
	ProtectedTools       []string          `json:"protectedTools" yaml:"protectedTools"`
	OnlyBlockIfExists    bool              `json:"onlyBlockIfExists" yaml:"onlyBlockIfExists"`
	BlockMessage         string            `json:"blockMessage" yaml:"blockMessage"`
}

// PermissionGate configures confirmation of dangerous shell commands.
type PermissionGate struct {
	Patterns []pattern.Pattern `json:"patterns" yaml:"patterns"`
	// UseBuiltinMatchers adds structural matchers alongside the default
	// patterns. It is cleared when customPatterns takes over.
	UseBuiltinMatchers  bool              `json:"useBuiltinMatchers" yaml:"useBuiltinMatchers"`
	RequireConfirmation bool              `json:"requireConfirmation" yaml:"requireConfirmation"`
	AllowedPatterns     []pattern.Pattern `json:"allowedPatterns" yaml:"allowedPatterns"`
	AutoDenyPatterns    []pattern.Pattern `json:"autoDenyPatterns" yaml:"autoDenyPatterns"`
}

const defaultBlockMessage = "Accessing {file} is not allowed. Environment files containing secrets are protected. " +
	"Explain to the user why you want to access this .env file, and if changes are needed ask the user to make them. " +
	"Only .env.example, .env.sample, or .env.test files can be accessed."

// Defaults returns the built-in policy.
func Defaults() *Policy {
	return &Policy{
		Version: CurrentVersion,
		Enabled: true,
		Features: Features{
			ProtectEnvFiles: true,
			PermissionGate:  true,
		},
		PackageManager: PackageManagerConfig{Selected: NPM},
		EnvFiles: EnvFiles{
			ProtectedPatterns: []pattern.Pattern{
				{Pattern: ".env"},
				{Pattern: ".env.local"},
				{Pattern: ".env.production"},
				{Pattern: ".env.prod"},
				{Pattern: ".dev.vars"},
			},
			AllowedPatterns: []pattern.Pattern{
				{Pattern: "*.example.env"},
				{Pattern: "*.sample.env"},
				{Pattern: "*.test.env"},
				{Pattern: ".env.example"},
				{Pattern: ".env.sample"},
				{Pattern: ".env.test"},
			},
			ProtectedDirectories: []pattern.Pattern{},
			ProtectedTools:       []string{"read", "write", "edit", "bash", "grep", "find", "ls"},
			OnlyBlockIfExists:    true,
			BlockMessage:         defaultBlockMessage,
		},
		PermissionGate: PermissionGate{
			Patterns: []pattern.Pattern{
				{Pattern: "rm -rf", Description: "recursive force delete"},
				{Pattern: "sudo", Description: "superuser command"},
				{Pattern: "dd if=", Description: "disk write operation"},
				{Pattern: "mkfs.", Description: "filesystem format"},
				{Pattern: "chmod -R 777", Description: "insecure recursive permissions"},
				{Pattern: "chown -R", Description: "recursive ownership change"},
				{Pattern: "| sh", Description: "piped shell execution"},
			},
			UseBuiltinMatchers:  true,
			RequireConfirmation: true,
			AllowedPatterns:     []pattern.Pattern{},
			AutoDenyPatterns:    []pattern.Pattern{},
		},
	}
}
