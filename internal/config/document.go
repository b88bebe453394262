package config

import (
	"encoding/json"
	"fmt"

	"github.com/gzhole/guardrails/internal/pattern"
)

// Document is one raw, partially specified config document as authored on
// disk. Keys that are absent fall through to lower-precedence scopes.
//
// Documents are edited with the named setters below and saved whole; the
// zero value (nil) is read-only, use NewDocument for an editable one.
type Document map[string]any

// NewDocument returns an empty document stamped with CurrentVersion.
func NewDocument() Document {
	return Document{"version": CurrentVersion}
}

// ParseDocument decodes a JSON object.
func ParseDocument(data []byte) (Document, error) {
	var doc Document
	if err := json.Unmarshal(data, &doc); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidDocument, err)
	}
	if doc == nil {
		return nil, fmt.Errorf("%w: top level must be an object", ErrInvalidDocument)
	}
	return doc, nil
}

// Version returns the document's version string, or "" when unset.
func (d Document) Version() string {
	v, _ := d["version"].(string)
	return v
}

// Clone returns a deep copy.
func (d Document) Clone() Document {
	if d == nil {
		return nil
	}
	return cloneValue(map[string]any(d)).(map[string]any)
}

func cloneValue(v any) any {
	switch t := v.(type) {
	case Document:
		return cloneValue(map[string]any(t))
	case map[string]any:
		out := make(map[string]any, len(t))
		for k, val := range t {
			out[k] = cloneValue(val)
		}
		return out
	case []any:
		out := make([]any, len(t))
		for i, val := range t {
			out[i] = cloneValue(val)
		}
		return out
	default:
		return v
	}
}

// section returns the nested object stored under key, creating it.
func (d Document) section(key string) map[string]any {
	if m, ok := d[key].(map[string]any); ok {
		return m
	}
	m := map[string]any{}
	d[key] = m
	return m
}

// lookup returns the nested object stored under key without creating it.
func (d Document) lookup(key string) (map[string]any, bool) {
	m, ok := d[key].(map[string]any)
	return m, ok
}

// Feature names a toggle under "features".
type Feature string

const (
	FeatureProtectEnvFiles       Feature = "protectEnvFiles"
	FeaturePermissionGate        Feature = "permissionGate"
	FeatureEnforcePackageManager Feature = "enforcePackageManager"
	FeaturePreventBrew           Feature = "preventBrew"
	FeaturePreventPython         Feature = "preventPython"
)

// AllFeatures lists features in evaluation order.
var AllFeatures = []Feature{
	FeatureProtectEnvFiles,
	FeaturePermissionGate,
	FeatureEnforcePackageManager,
	FeaturePreventBrew,
	FeaturePreventPython,
}

func ParseFeature(s string) (Feature, error) {
	for _, f := range AllFeatures {
		if string(f) == s {
			return f, nil
		}
	}
	return "", fmt.Errorf("%w: %q", ErrUnknownFeature, s)
}

// FeatureEnabled reports whether f is switched on in p.
func (p *Policy) FeatureEnabled(f Feature) bool {
	switch f {
	case FeatureProtectEnvFiles:
		return p.Features.ProtectEnvFiles
	case FeaturePermissionGate:
		return p.Features.PermissionGate
	case FeatureEnforcePackageManager:
		return p.Features.EnforcePackageManager
	case FeaturePreventBrew:
		return p.Features.PreventBrew
	case FeaturePreventPython:
		return p.Features.PreventPython
	}
	return false
}

// PatternList names one of the pattern arrays a document can carry.
type PatternList int

const (
	EnvProtectedPatterns PatternList = iota
	EnvAllowedPatterns
	EnvProtectedDirectories
	GatePatterns
	GateCustomPatterns
	GateAllowedPatterns
	GateAutoDenyPatterns
)

var patternLists = []struct {
	list    PatternList
	name    string
	section string
	key     string
}{
	{EnvProtectedPatterns, "env-protected", "envFiles", "protectedPatterns"},
	{EnvAllowedPatterns, "env-allowed", "envFiles", "allowedPatterns"},
	{EnvProtectedDirectories, "env-directories", "envFiles", "protectedDirectories"},
	{GatePatterns, "gate-dangerous", "permissionGate", "patterns"},
	{GateCustomPatterns, "gate-custom", "permissionGate", "customPatterns"},
	{GateAllowedPatterns, "gate-allowed", "permissionGate", "allowedPatterns"},
	{GateAutoDenyPatterns, "gate-auto-deny", "permissionGate", "autoDenyPatterns"},
}

func (l PatternList) String() string {
	for _, pl := range patternLists {
		if pl.list == l {
			return pl.name
		}
	}
	return fmt.Sprintf("PatternList(%d)", int(l))
}

func (l PatternList) location() (section, key string) {
	for _, pl := range patternLists {
		if pl.list == l {
			return pl.section, pl.key
		}
	}
	panic(fmt.Sprintf("config: unhandled pattern list %d", int(l)))
}

// PatternListNames returns the CLI names of every pattern list.
func PatternListNames() []string {
	names := make([]string, 0, len(patternLists))
	for _, pl := range patternLists {
		names = append(names, pl.name)
	}
	return names
}

func ParsePatternList(s string) (PatternList, error) {
	for _, pl := range patternLists {
		if pl.name == s {
			return pl.list, nil
		}
	}
	return 0, fmt.Errorf("%w: %q", ErrUnknownPatternList, s)
}

// SetEnabled sets the top-level kill switch.
func (d Document) SetEnabled(on bool) {
	d["enabled"] = on
}

func (d Document) SetFeature(f Feature, on bool) {
	d.section("features")[string(f)] = on
}

func (d Document) SetPackageManager(m PackageManager) {
	d.section("packageManager")["selected"] = string(m)
}

func (d Document) SetProtectedTools(tools []string) {
	out := make([]any, len(tools))
	for i, t := range tools {
		out[i] = t
	}
	d.section("envFiles")["protectedTools"] = out
}

func (d Document) SetOnlyBlockIfExists(on bool) {
	d.section("envFiles")["onlyBlockIfExists"] = on
}

func (d Document) SetBlockMessage(msg string) {
	d.section("envFiles")["blockMessage"] = msg
}

func (d Document) SetRequireConfirmation(on bool) {
	d.section("permissionGate")["requireConfirmation"] = on
}

// SetPatterns replaces a whole pattern list; arrays are never merged.
func (d Document) SetPatterns(l PatternList, ps []pattern.Pattern) {
	section, key := l.location()
	out := make([]any, len(ps))
	for i, p := range ps {
		m := map[string]any{"pattern": p.Pattern}
		if p.Regex {
			m["regex"] = true
		}
		if p.Description != "" {
			m["description"] = p.Description
		}
		out[i] = m
	}
	d.section(section)[key] = out
}

// UnsetPatterns removes a pattern list so the lower scope's value applies.
func (d Document) UnsetPatterns(l PatternList) {
	section, key := l.location()
	if m, ok := d.lookup(section); ok {
		delete(m, key)
	}
}

// Patterns returns the list as authored in this document, and whether the
// document defines it at all.
func (d Document) Patterns(l PatternList) ([]pattern.Pattern, bool, error) {
	section, key := l.location()
	m, ok := d.lookup(section)
	if !ok {
		return nil, false, nil
	}
	raw, ok := m[key]
	if !ok || raw == nil {
		return nil, false, nil
	}
	var ps []pattern.Pattern
	if err := remarshal(raw, &ps); err != nil {
		return nil, true, fmt.Errorf("%w: %s: %v", ErrInvalidDocument, l, err)
	}
	return ps, true, nil
}

// PolicyPatterns returns the list's value in a resolved policy.
func PolicyPatterns(p *Policy, l PatternList) []pattern.Pattern {
	switch l {
	case EnvProtectedPatterns:
		return p.EnvFiles.ProtectedPatterns
	case EnvAllowedPatterns:
		return p.EnvFiles.AllowedPatterns
	case EnvProtectedDirectories:
		return p.EnvFiles.ProtectedDirectories
	case GatePatterns, GateCustomPatterns:
		return p.PermissionGate.Patterns
	case GateAllowedPatterns:
		return p.PermissionGate.AllowedPatterns
	case GateAutoDenyPatterns:
		return p.PermissionGate.AutoDenyPatterns
	}
	return nil
}

// remarshal converts between generic JSON values and typed ones.
func remarshal(in, out any) error {
	data, err := json.Marshal(in)
	if err != nil {
		return err
	}
	return json.Unmarshal(data, out)
}

// toDocument converts a typed value into a generic document.
func toDocument(v any) Document {
	var doc Document
	if err := remarshal(v, &doc); err != nil {
		panic(fmt.Sprintf("config: encode %T: %v", v, err))
	}
	return doc
}
