package config

import (
	"strconv"
	"strings"

	"github.com/gzhole/guardrails/internal/warnings"
)

// Migration upgrades an old document in place. Migrations run in order;
// each one is re-checked against the output of the previous one.
type Migration struct {
	Name      string
	ShouldRun func(doc Document) bool
	Run       func(doc Document, sink warnings.Sink) Document
}

// Migrations is the ordered schema migration list.
var Migrations = []Migration{
	{
		Name:      "v0-format-upgrade",
		ShouldRun: needsFormatUpgrade,
		Run:       upgradeFormat,
	},
	{
		Name:      "strip-toolchain-fields",
		ShouldRun: hasToolchainFields,
		Run:       stripToolchainFields,
	},
}

// patternLocations lists every pattern array in the v1 format.
var patternLocations = [][2]string{
	{"envFiles", "protectedPatterns"},
	{"envFiles", "allowedPatterns"},
	{"envFiles", "protectedDirectories"},
	{"permissionGate", "patterns"},
	{"permissionGate", "customPatterns"},
	{"permissionGate", "allowedPatterns"},
	{"permissionGate", "autoDenyPatterns"},
}

// needsFormatUpgrade matches v0 documents: no version at all, or pattern
// arrays holding bare strings instead of {pattern} objects.
func needsFormatUpgrade(doc Document) bool {
	if doc.Version() == "" {
		return true
	}
	for _, loc := range patternLocations {
		sec, ok := doc.lookup(loc[0])
		if !ok {
			continue
		}
		items, _ := sec[loc[1]].([]any)
		for _, it := range items {
			if _, isString := it.(string); isString {
				return true
			}
		}
	}
	return false
}

func upgradeFormat(doc Document, _ warnings.Sink) Document {
	out := doc.Clone()
	for _, loc := range patternLocations {
		sec, ok := out.lookup(loc[0])
		if !ok {
			continue
		}
		items, ok := sec[loc[1]].([]any)
		if !ok {
			continue
		}
		for i, it := range items {
			s, isString := it.(string)
			if !isString {
				continue
			}
			obj := map[string]any{"pattern": s}
			// Dangerous patterns need a description for the prompt.
			if loc[0] == "permissionGate" && (loc[1] == "patterns" || loc[1] == "customPatterns") {
				obj["description"] = s
			}
			items[i] = obj
		}
	}
	if versionLess(out.Version(), FormatV1Version) {
		out["version"] = FormatV1Version
	}
	return out
}

var removedFeatureKeys = []string{"preventBrew", "preventPython", "enforcePackageManager"}

// hasToolchainFields matches documents from before the toolchain fields
// were dropped that still carry them. Documents at or after
// ToolchainMigrationVersion may set them deliberately.
func hasToolchainFields(doc Document) bool {
	if !versionLess(doc.Version(), ToolchainMigrationVersion) {
		return false
	}
	if _, ok := doc["packageManager"]; ok {
		return true
	}
	if features, ok := doc.lookup("features"); ok {
		for _, k := range removedFeatureKeys {
			if _, ok := features[k]; ok {
				return true
			}
		}
	}
	return false
}

func stripToolchainFields(doc Document, sink warnings.Sink) Document {
	sink.Warn("[guardrails] preventBrew, preventPython, enforcePackageManager, and packageManager " +
		"were set by an older version of this config and have been stripped from it. " +
		"Re-enable them explicitly if you still want them.")

	out := doc.Clone()
	if features, ok := out.lookup("features"); ok {
		for _, k := range removedFeatureKeys {
			delete(features, k)
		}
	}
	delete(out, "packageManager")
	out["version"] = ToolchainMigrationVersion
	return out
}

// versionLess compares "MAJOR.MINOR.PATCH[-SUFFIX]" strings numerically,
// falling back to string order for the suffix. An empty version is older
// than everything.
func versionLess(a, b string) bool {
	return compareVersions(a, b) < 0
}

func compareVersions(a, b string) int {
	if a == b {
		return 0
	}
	if a == "" {
		return -1
	}
	if b == "" {
		return 1
	}
	aCore, aSuffix, _ := strings.Cut(a, "-")
	bCore, bSuffix, _ := strings.Cut(b, "-")
	aParts := strings.Split(aCore, ".")
	bParts := strings.Split(bCore, ".")
	for i := 0; i < max(len(aParts), len(bParts)); i++ {
		av, bv := versionPart(aParts, i), versionPart(bParts, i)
		if av != bv {
			if av < bv {
				return -1
			}
			return 1
		}
	}
	return strings.Compare(aSuffix, bSuffix)
}

func versionPart(parts []string, i int) int {
	if i >= len(parts) {
		return 0
	}
	n, err := strconv.Atoi(parts[i])
	if err != nil {
		return 0
	}
	return n
}
