package config

import (
	"errors"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/gzhole/guardrails/internal/pattern"
	"github.com/gzhole/guardrails/internal/warnings"
)

func testPaths(t *testing.T) Paths {
	t.Helper()
	dir := t.TempDir()
	return Paths{
		Global:  filepath.Join(dir, "global", DefaultConfigName),
		Project: filepath.Join(dir, "project", ".pi", "extensions", DefaultConfigName),
	}
}

func writeFile(t *testing.T, path, content string) {
	t.Helper()
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		t.Fatal(err)
	}
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatal(err)
	}
}

func fixedClock() time.Time {
	return time.Date(2026, 3, 1, 12, 30, 0, 0, time.UTC)
}

func TestResolver_NoFilesGivesDefaults(t *testing.T) {
	q := warnings.NewQueue()
	r := NewResolver(testPaths(t), q)

	p := r.Load()

	if !p.Enabled || !p.Features.ProtectEnvFiles || !p.Features.PermissionGate {
		t.Errorf("expected default features, got %+v", p.Features)
	}
	if p.PackageManager.Selected != NPM {
		t.Errorf("expected npm, got %s", p.PackageManager.Selected)
	}
	if q.Len() != 0 {
		t.Errorf("missing files should not warn, got %v", q.Drain())
	}
	if r.HasProject() {
		t.Error("no project document should be loaded")
	}
}

func TestResolver_CorruptProjectIsIgnored(t *testing.T) {
	paths := testPaths(t)
	writeFile(t, paths.Global, `{"version":"0.7.0-20260204","features":{"preventPython":true}}`)
	writeFile(t, paths.Project, `{"version": "0.7.0-20260204", "features": {`)

	q := warnings.NewQueue()
	p := NewResolver(paths, q).Load()

	if !p.Features.PreventPython {
		t.Error("global settings should still apply")
	}
	if q.Len() != 1 {
		t.Errorf("expected one warning about the corrupt project document, got %v", q.Drain())
	}
}

func TestResolver_WrongTypeIsIgnored(t *testing.T) {
	paths := testPaths(t)
	writeFile(t, paths.Project, `{"version":"0.7.0-20260204","enabled":"yes"}`)

	q := warnings.NewQueue()
	p := NewResolver(paths, q).Load()

	if !p.Enabled {
		t.Error("invalid project document should not disable the policy")
	}
	if q.Len() != 1 {
		t.Errorf("expected one warning, got %v", q.Drain())
	}
}

func TestResolver_LegacyMigration(t *testing.T) {
	paths := testPaths(t)
	legacy := `{"features":{"preventBrew":true,"protectEnvFiles":true},"packageManager":{"selected":"pnpm"},"envFiles":{"protectedPatterns":[".env",".env.staging"]}}`
	writeFile(t, paths.Global, legacy)

	q := warnings.NewQueue()
	r := NewResolver(paths, q, WithClock(fixedClock))
	p := r.Load()

	backup := paths.Global + ".20260301-123000.bak"
	data, err := os.ReadFile(backup)
	if err != nil {
		t.Fatalf("expected backup at %s: %v", backup, err)
	}
	if string(data) != legacy {
		t.Errorf("backup should hold the original bytes, got %s", data)
	}

	if p.Features.PreventBrew {
		t.Error("preventBrew should have been stripped")
	}
	if p.PackageManager.Selected != NPM {
		t.Errorf("packageManager should have been stripped, got %s", p.PackageManager.Selected)
	}
	if len(p.EnvFiles.ProtectedPatterns) != 2 || p.EnvFiles.ProtectedPatterns[1].Pattern != ".env.staging" {
		t.Errorf("bare string patterns should be upgraded, got %v", p.EnvFiles.ProtectedPatterns)
	}
	if n := q.Len(); n != 1 {
		t.Errorf("expected exactly one warning, got %d", n)
	}

	onDisk, err := os.ReadFile(paths.Global)
	if err != nil {
		t.Fatal(err)
	}
	doc, err := ParseDocument(onDisk)
	if err != nil {
		t.Fatal(err)
	}
	if doc.Version() != ToolchainMigrationVersion {
		t.Errorf("migrated document should carry %s, got %s", ToolchainMigrationVersion, doc.Version())
	}

	// A second load finds nothing to migrate.
	q.Drain()
	r.Load()
	if q.Len() != 0 {
		t.Errorf("second load should be silent, got %v", q.Drain())
	}
}

func TestResolver_CurrentDocumentKeepsToolchainFields(t *testing.T) {
	paths := testPaths(t)
	writeFile(t, paths.Project, `{"version":"0.7.0-20260204","features":{"enforcePackageManager":true},"packageManager":{"selected":"bun"}}`)

	q := warnings.NewQueue()
	p := NewResolver(paths, q).Load()

	if !p.Features.EnforcePackageManager || p.PackageManager.Selected != Bun {
		t.Errorf("current document fields must survive, got %+v %+v", p.Features, p.PackageManager)
	}
	if q.Len() != 0 {
		t.Errorf("unexpected warnings %v", q.Drain())
	}
	matches, _ := filepath.Glob(paths.Project + ".*.bak")
	if len(matches) != 0 {
		t.Errorf("no backup expected, got %v", matches)
	}
}

func TestResolver_SaveReloads(t *testing.T) {
	paths := testPaths(t)
	r := NewResolver(paths, nil)
	r.Load()

	doc := r.Project()
	doc.SetFeature(FeaturePreventBrew, true)
	doc.SetPatterns(GateAutoDenyPatterns, []pattern.Pattern{{Pattern: "git push --force"}})

	p, err := r.Save(ScopeProject, doc)
	if err != nil {
		t.Fatalf("Save: %v", err)
	}
	if !p.Features.PreventBrew {
		t.Error("saved feature should be active")
	}
	if r.Policy() != p {
		t.Error("Policy should return the freshly loaded policy")
	}
	if len(p.PermissionGate.AutoDenyPatterns) != 1 {
		t.Errorf("expected auto-deny pattern, got %v", p.PermissionGate.AutoDenyPatterns)
	}

	saved, err := os.ReadFile(paths.Project)
	if err != nil {
		t.Fatal(err)
	}
	got, err := ParseDocument(saved)
	if err != nil {
		t.Fatal(err)
	}
	if got.Version() != CurrentVersion {
		t.Errorf("saved document should be stamped with %s, got %q", CurrentVersion, got.Version())
	}

	// Global untouched.
	if _, err := os.Stat(paths.Global); !errors.Is(err, os.ErrNotExist) {
		t.Errorf("global document should not have been created: %v", err)
	}
}

func TestResolver_SaveRejectsInvalid(t *testing.T) {
	paths := testPaths(t)
	r := NewResolver(paths, nil)

	doc := NewDocument()
	doc["enabled"] = "sometimes"
	if _, err := r.Save(ScopeGlobal, doc); !errors.Is(err, ErrInvalidDocument) {
		t.Errorf("expected ErrInvalidDocument, got %v", err)
	}
	if _, err := os.Stat(paths.Global); !errors.Is(err, os.ErrNotExist) {
		t.Error("nothing should be written for an invalid document")
	}

	if _, err := r.Save(Scope("team"), NewDocument()); !errors.Is(err, ErrUnknownScope) {
		t.Errorf("expected ErrUnknownScope, got %v", err)
	}
}

func TestResolver_DocumentIsACopy(t *testing.T) {
	paths := testPaths(t)
	writeFile(t, paths.Global, `{"version":"0.7.0-20260204","enabled":true}`)
	r := NewResolver(paths, nil)
	r.Load()

	doc := r.Global()
	doc.SetEnabled(false)

	if r.Global()["enabled"] != true {
		t.Error("editing a returned document must not change the loaded one")
	}
}

func TestDefaultPaths_EnvOverrides(t *testing.T) {
	t.Setenv(EnvGlobalConfig, "/tmp/g.json")
	t.Setenv(EnvProjectConfig, "")

	p, err := DefaultPaths("/work/repo")
	if err != nil {
		t.Fatal(err)
	}
	if p.Global != "/tmp/g.json" {
		t.Errorf("expected env override, got %s", p.Global)
	}
	if want := filepath.Join("/work/repo", ".pi", "extensions", DefaultConfigName); p.Project != want {
		t.Errorf("expected %s, got %s", want, p.Project)
	}
}
