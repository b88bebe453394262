package config

import (
	"testing"

	"github.com/gzhole/guardrails/internal/warnings"
)

func TestCompareVersions(t *testing.T) {
	tests := []struct {
		a, b string
		want int
	}{
		{"", "0.1.0", -1},
		{"0.6.0", "0.7.0-20260204", -1},
		{"0.10.0", "0.7.0-20260204", 1},
		{"0.7.0-20260204", "0.7.0-20260204", 0},
		{"0.7.0-20260101", "0.7.0-20260204", -1},
		{"1.0", "1.0.0", 0},
	}
	for _, tt := range tests {
		if got := compareVersions(tt.a, tt.b); got != tt.want {
			t.Errorf("compareVersions(%q, %q) = %d, want %d", tt.a, tt.b, got, tt.want)
		}
	}
}

func TestUpgradeFormat_BareStrings(t *testing.T) {
	doc := mustParse(t, `{"envFiles":{"protectedPatterns":[".env","secrets.json"]},"permissionGate":{"patterns":["terraform destroy"]}}`)
	if !needsFormatUpgrade(doc) {
		t.Fatal("v0 document should need an upgrade")
	}

	out := upgradeFormat(doc, warnings.Discard{})

	if out.Version() != FormatV1Version {
		t.Errorf("expected version %s, got %q", FormatV1Version, out.Version())
	}
	ps, ok, err := out.Patterns(EnvProtectedPatterns)
	if err != nil || !ok || len(ps) != 2 || ps[0].Pattern != ".env" {
		t.Errorf("unexpected protected patterns %v (ok=%v err=%v)", ps, ok, err)
	}
	gate, _, _ := out.Patterns(GatePatterns)
	if len(gate) != 1 || gate[0].Description != "terraform destroy" {
		t.Errorf("dangerous patterns should get a description, got %v", gate)
	}
	if needsFormatUpgrade(out) {
		t.Error("upgraded document should not need another upgrade")
	}
	// Input untouched.
	if doc.Version() != "" {
		t.Error("upgradeFormat must not modify its input")
	}
}

func TestStripToolchainFields(t *testing.T) {
	legacy := mustParse(t, `{"version":"0.6.0","features":{"preventBrew":true,"permissionGate":true},"packageManager":{"selected":"bun"}}`)
	current := mustParse(t, `{"version":"0.7.0-20260204","features":{"preventBrew":true},"packageManager":{"selected":"bun"}}`)

	if !hasToolchainFields(legacy) {
		t.Fatal("legacy document should be stripped")
	}
	if hasToolchainFields(current) {
		t.Fatal("current document may set toolchain fields deliberately")
	}

	q := warnings.NewQueue()
	out := stripToolchainFields(legacy, q)

	features := out["features"].(map[string]any)
	if _, ok := features["preventBrew"]; ok {
		t.Error("preventBrew should be stripped")
	}
	if _, ok := features["permissionGate"]; !ok {
		t.Error("unrelated features must be kept")
	}
	if _, ok := out["packageManager"]; ok {
		t.Error("packageManager should be stripped")
	}
	if out.Version() != ToolchainMigrationVersion {
		t.Errorf("expected version %s, got %s", ToolchainMigrationVersion, out.Version())
	}
	if q.Len() != 1 {
		t.Errorf("expected exactly one warning, got %d", q.Len())
	}
}
