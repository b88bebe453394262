package cli

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"testing"

	"github.com/spf13/cobra"

	"github.com/gzhole/guardrails/internal/approval"
	"github.com/gzhole/guardrails/internal/config"
	"github.com/gzhole/guardrails/internal/logger"
)

type cliEnv struct {
	dir   string
	paths config.Paths
	audit string
}

// setupCLI points every command at a scratch project and restores the
// package-level flag values afterwards.
func setupCLI(t *testing.T) cliEnv {
	t.Helper()
	dir := t.TempDir()
	env := cliEnv{
		dir: dir,
		paths: config.Paths{
			Global:  filepath.Join(dir, "home", config.DefaultConfigName),
			Project: filepath.Join(dir, ".pi", "extensions", config.DefaultConfigName),
		},
		audit: filepath.Join(dir, "audit.jsonl"),
	}
	t.Setenv(config.EnvGlobalConfig, env.paths.Global)
	t.Setenv(config.EnvProjectConfig, env.paths.Project)
	t.Setenv("GUARDRAILS_BYPASS", "")

	oldCwd, oldLevel, oldFormat, oldAudit := cwdFlag, logLevel, logFormat, auditPath
	oldScope, oldOutput := settingsScope, settingsOutput
	oldRegex, oldDesc := patternRegex, patternDescription
	oldTool, oldJSON := checkTool, checkJSON
	oldKind, oldDenied, oldLast, oldSummary := logFilterKind, logFilterDenied, logLast, logSummary
	oldConfirmer := newConfirmer
	t.Cleanup(func() {
		cwdFlag, logLevel, logFormat, auditPath = oldCwd, oldLevel, oldFormat, oldAudit
		settingsScope, settingsOutput = oldScope, oldOutput
		patternRegex, patternDescription = oldRegex, oldDesc
		checkTool, checkJSON = oldTool, oldJSON
		logFilterKind, logFilterDenied, logLast, logSummary = oldKind, oldDenied, oldLast, oldSummary
		newConfirmer = oldConfirmer
	})

	cwdFlag = dir
	logLevel = "error"
	logFormat = "text"
	auditPath = env.audit
	settingsScope = "project"
	settingsOutput = "yaml"
	patternRegex, patternDescription = false, ""
	checkTool, checkJSON = "bash", false
	logFilterKind, logFilterDenied, logLast, logSummary = "", false, 0, false
	newConfirmer = func() (approval.Confirmer, func() error) {
		return approval.StaticConfirmer(approval.Deny), func() error { return nil }
	}
	return env
}

func runCmd(t *testing.T, run func(*cobra.Command, []string) error, stdin string, args ...string) (string, string, error) {
	t.Helper()
	cmd := &cobra.Command{}
	var stdout, stderr bytes.Buffer
	cmd.SetIn(strings.NewReader(stdin))
	cmd.SetOut(&stdout)
	cmd.SetErr(&stderr)
	cmd.SetContext(context.Background())
	err := run(cmd, args)
	return stdout.String(), stderr.String(), err
}

func exitCode(err error) int {
	var exit *ExitError
	if errors.As(err, &exit) {
		return exit.Code
	}
	if err != nil {
		return 1
	}
	return 0
}

func decodeHook(t *testing.T, stdout string) hookOutput {
	t.Helper()
	var out hookOutput
	if err := json.Unmarshal([]byte(stdout), &out); err != nil {
		t.Fatalf("hook output is not JSON: %q (%v)", stdout, err)
	}
	return out
}

func writeConfig(t *testing.T, path string, doc config.Document) {
	t.Helper()
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		t.Fatal(err)
	}
	data, err := json.Marshal(doc)
	if err != nil {
		t.Fatal(err)
	}
	if err := os.WriteFile(path, data, 0o644); err != nil {
		t.Fatal(err)
	}
}

func TestHook_Allow(t *testing.T) {
	setupCLI(t)
	stdout, _, err := runCmd(t, hookCommand, `{"tool_name":"bash","tool_input":{"command":"ls -la"}}`)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if out := decodeHook(t, stdout); out.Block {
		t.Errorf("expected allow, got %+v", out)
	}
}

func TestHook_BlocksEnvFile(t *testing.T) {
	env := setupCLI(t)
	if err := os.WriteFile(filepath.Join(env.dir, ".env"), []byte("TOKEN=x\n"), 0o600); err != nil {
		t.Fatal(err)
	}

	stdout, stderr, err := runCmd(t, hookCommand, `{"toolName":"read","input":{"file_path":".env"}}`)

	if code := exitCode(err); code != 2 {
		t.Fatalf("expected exit code 2, got %d (%v)", code, err)
	}
	out := decodeHook(t, stdout)
	if !out.Block || !strings.Contains(out.Reason, "Accessing .env is not allowed") {
		t.Errorf("unexpected output %+v", out)
	}
	if !strings.Contains(stderr, "Blocked access to protected file: .env") {
		t.Errorf("expected a notification on stderr, got %q", stderr)
	}

	entries, err := readAuditLog(env.audit)
	if err != nil {
		t.Fatal(err)
	}
	var blocked []logger.AuditEvent
	for _, e := range entries {
		if e.Kind == "blocked" {
			blocked = append(blocked, e)
		}
	}
	if len(blocked) != 1 || blocked[0].Feature != string(config.FeatureProtectEnvFiles) {
		t.Errorf("expected one audited block, got %+v", entries)
	}
}

func TestHook_DangerousCommand(t *testing.T) {
	setupCLI(t)

	stdout, _, err := runCmd(t, hookCommand, `{"tool_name":"bash","tool_input":{"command":"sudo rm -rf /opt/app"}}`)
	if exitCode(err) != 2 {
		t.Fatalf("denied command should exit 2, got %v", err)
	}
	if out := decodeHook(t, stdout); out.Reason != "User denied dangerous command" {
		t.Errorf("unexpected reason %q", out.Reason)
	}

	newConfirmer = func() (approval.Confirmer, func() error) {
		return approval.StaticConfirmer(approval.Allow), func() error { return nil }
	}
	stdout, _, err = runCmd(t, hookCommand, `{"tool_name":"bash","tool_input":{"command":"sudo rm -rf /opt/app"}}`)
	if err != nil {
		t.Fatalf("confirmed command should pass, got %v", err)
	}
	if out := decodeHook(t, stdout); out.Block {
		t.Errorf("expected allow after confirmation, got %+v", out)
	}
}

func TestHook_ProjectFromEventCwd(t *testing.T) {
	env := setupCLI(t)
	t.Setenv(config.EnvProjectConfig, "")
	cwdFlag = ""

	project := filepath.Join(env.dir, "app")
	doc := config.NewDocument()
	doc.SetFeature(config.FeaturePreventBrew, true)
	writeConfig(t, filepath.Join(project, ".pi", "extensions", config.DefaultConfigName), doc)

	input := `{"tool_name":"bash","tool_input":{"command":"brew install jq"},"cwd":` + strconv.Quote(project) + `}`
	stdout, _, err := runCmd(t, hookCommand, input)
	if exitCode(err) != 2 || !decodeHook(t, stdout).Block {
		t.Fatalf("the event's project config should block brew, got %q %v", stdout, err)
	}

	// An explicit --cwd wins over the event.
	cwdFlag = env.dir
	stdout, _, err = runCmd(t, hookCommand, input)
	if err != nil || decodeHook(t, stdout).Block {
		t.Errorf("--cwd has no project config, expected allow, got %q %v", stdout, err)
	}
}

func TestHook_MalformedInputAllows(t *testing.T) {
	setupCLI(t)
	stdout, stderr, err := runCmd(t, hookCommand, `not json`)
	if err != nil {
		t.Fatal(err)
	}
	if out := decodeHook(t, stdout); out.Block {
		t.Errorf("malformed input should not block")
	}
	if !strings.Contains(stderr, "could not parse hook input") {
		t.Errorf("expected a warning, got %q", stderr)
	}
}

func TestHook_Bypass(t *testing.T) {
	env := setupCLI(t)
	t.Setenv("GUARDRAILS_BYPASS", "1")
	if err := os.WriteFile(filepath.Join(env.dir, ".env"), []byte("TOKEN=x\n"), 0o600); err != nil {
		t.Fatal(err)
	}
	stdout, _, err := runCmd(t, hookCommand, `{"tool_name":"read","tool_input":{"file_path":".env"}}`)
	if err != nil || decodeHook(t, stdout).Block {
		t.Errorf("bypass should allow everything, got %q %v", stdout, err)
	}
}

func TestHook_DrainsWarnings(t *testing.T) {
	env := setupCLI(t)
	if err := os.MkdirAll(filepath.Dir(env.paths.Project), 0o755); err != nil {
		t.Fatal(err)
	}
	if err := os.WriteFile(env.paths.Project, []byte(`[1,2]`), 0o644); err != nil {
		t.Fatal(err)
	}

	_, stderr, err := runCmd(t, hookCommand, `{"tool_name":"bash","tool_input":{"command":"ls"}}`)
	if err != nil {
		t.Fatal(err)
	}
	if !strings.Contains(stderr, "[guardrails] ignoring project config") {
		t.Errorf("expected the config warning on stderr, got %q", stderr)
	}
}

func TestCheck(t *testing.T) {
	env := setupCLI(t)
	doc := config.NewDocument()
	doc.SetFeature(config.FeatureEnforcePackageManager, true)
	doc.SetPackageManager(config.PNPM)
	writeConfig(t, env.paths.Project, doc)

	stdout, _, err := runCmd(t, checkCommand, "", "npm", "install", "left-pad")
	if exitCode(err) != 2 {
		t.Fatalf("expected a block, got %v", err)
	}
	if !strings.Contains(stdout, "BLOCK [enforcePackageManager]") {
		t.Errorf("unexpected output:\n%s", stdout)
	}

	checkJSON = true
	stdout, _, err = runCmd(t, checkCommand, "", "sudo ls")
	if err != nil {
		t.Fatalf("confirmable command should be allowed in a dry run, got %v", err)
	}
	var res checkResult
	if err := json.Unmarshal([]byte(stdout), &res); err != nil {
		t.Fatal(err)
	}
	if res.Block || !res.WouldConfirm || len(res.Dangerous) != 1 || res.Dangerous[0].Description != "superuser command" {
		t.Errorf("unexpected result %+v", res)
	}
	if _, err := os.Stat(env.audit); !os.IsNotExist(err) {
		t.Error("a dry run should not write the audit log")
	}
}

func TestSettingsSet(t *testing.T) {
	env := setupCLI(t)

	settingsScope = "global"
	if _, _, err := runCmd(t, settingsSetCommand, "", "feature.preventBrew", "true"); err != nil {
		t.Fatal(err)
	}
	settingsScope = "local"
	if _, _, err := runCmd(t, settingsSetCommand, "", "package-manager", "bun"); err != nil {
		t.Fatal(err)
	}

	r := config.NewResolver(env.paths, nil)
	p := r.Load()
	if !p.Features.PreventBrew || p.PackageManager.Selected != config.Bun {
		t.Errorf("settings not applied: %+v", p)
	}
	if _, ok := r.Project()["features"]; ok {
		t.Error("the project document should only hold what was set there")
	}

	for _, args := range [][]string{
		{"feature.nope", "true"},
		{"enabled", "maybe"},
		{"package-manager", "yarn"},
		{"colour", "blue"},
	} {
		if _, _, err := runCmd(t, settingsSetCommand, "", args...); err == nil {
			t.Errorf("%v: expected an error", args)
		}
	}

	settingsScope = "team"
	if _, _, err := runCmd(t, settingsSetCommand, "", "enabled", "false"); !errors.Is(err, config.ErrUnknownScope) {
		t.Errorf("expected ErrUnknownScope, got %v", err)
	}
}

func TestSettingsPatterns(t *testing.T) {
	env := setupCLI(t)

	if _, _, err := runCmd(t, settingsPatternsAddCommand, "", "gate-auto-deny", "git push --force"); err != nil {
		t.Fatal(err)
	}
	stdout, _, err := runCmd(t, hookCommand, `{"tool_name":"bash","tool_input":{"command":"git push --force origin main"}}`)
	if exitCode(err) != 2 || !strings.Contains(decodeHook(t, stdout).Reason, "auto-deny pattern: git push --force") {
		t.Errorf("auto-deny pattern not applied: %q %v", stdout, err)
	}

	// Adding to a list the scope does not define keeps the defaults.
	if _, _, err := runCmd(t, settingsPatternsAddCommand, "", "env-protected", "secrets.json"); err != nil {
		t.Fatal(err)
	}
	r := config.NewResolver(env.paths, nil)
	p := r.Load()
	if got := len(p.EnvFiles.ProtectedPatterns); got != len(config.Defaults().EnvFiles.ProtectedPatterns)+1 {
		t.Errorf("expected defaults plus one, got %d", got)
	}

	if _, _, err := runCmd(t, settingsPatternsAddCommand, "", "env-protected", "secrets.json"); err == nil {
		t.Error("duplicate pattern should be rejected")
	}
	if _, _, err := runCmd(t, settingsPatternsRemoveCommand, "", "env-protected", "nothing-here"); !errors.Is(err, errPatternNotFound) {
		t.Errorf("expected errPatternNotFound, got %v", err)
	}
	if _, _, err := runCmd(t, settingsPatternsRemoveCommand, "", "env-protected", ".dev.vars"); err != nil {
		t.Fatal(err)
	}
	for _, ps := range r.Load().EnvFiles.ProtectedPatterns {
		if ps.Pattern == ".dev.vars" {
			t.Error(".dev.vars should have been removed")
		}
	}

	if _, _, err := runCmd(t, settingsPatternsClearCommand, "", "env-protected"); err != nil {
		t.Fatal(err)
	}
	if got := r.Load().EnvFiles.ProtectedPatterns; len(got) != len(config.Defaults().EnvFiles.ProtectedPatterns) {
		t.Errorf("clear should restore the defaults, got %v", got)
	}

	patternRegex = true
	if _, _, err := runCmd(t, settingsPatternsAddCommand, "", "gate-dangerous", "(unclosed"); err == nil {
		t.Error("invalid regex should be rejected before saving")
	}

	stdout, _, err = runCmd(t, settingsPatternsListCommand, "", "gate-auto-deny")
	if err != nil {
		t.Fatal(err)
	}
	if !strings.Contains(stdout, "gate-auto-deny (1)") || !strings.Contains(stdout, "git push --force") {
		t.Errorf("unexpected list output:\n%s", stdout)
	}
}

func TestSettingsShow(t *testing.T) {
	env := setupCLI(t)
	doc := config.NewDocument()
	doc.SetRequireConfirmation(false)
	writeConfig(t, env.paths.Global, doc)

	settingsOutput = "json"
	stdout, _, err := runCmd(t, settingsShowCommand, "")
	if err != nil {
		t.Fatal(err)
	}
	var view struct {
		Global    scopeView     `json:"global"`
		Project   scopeView     `json:"project"`
		Effective config.Policy `json:"effective"`
	}
	if err := json.Unmarshal([]byte(stdout), &view); err != nil {
		t.Fatalf("invalid JSON: %v\n%s", err, stdout)
	}
	if !view.Global.Exists || view.Project.Exists {
		t.Errorf("unexpected scopes %+v / %+v", view.Global, view.Project)
	}
	if view.Effective.PermissionGate.RequireConfirmation {
		t.Error("effective policy should reflect the global document")
	}

	settingsOutput = "yaml"
	stdout, _, err = runCmd(t, settingsShowCommand, "")
	if err != nil {
		t.Fatal(err)
	}
	if !strings.Contains(stdout, "requireConfirmation: false") {
		t.Errorf("unexpected YAML:\n%s", stdout)
	}

	settingsOutput = "toml"
	if _, _, err := runCmd(t, settingsShowCommand, ""); err == nil {
		t.Error("expected an error for an unknown format")
	}
}

func TestLog(t *testing.T) {
	env := setupCLI(t)
	if err := os.WriteFile(filepath.Join(env.dir, ".env"), []byte("TOKEN=x\n"), 0o600); err != nil {
		t.Fatal(err)
	}
	runCmd(t, hookCommand, `{"tool_name":"read","tool_input":{"file_path":".env"}}`)
	runCmd(t, hookCommand, `{"tool_name":"bash","tool_input":{"command":"sudo reboot"}}`)

	logSummary = true
	stdout, _, err := runCmd(t, logCommand, "")
	if err != nil {
		t.Fatal(err)
	}
	for _, want := range []string{"Blocked:         2", "User denied:     1", "Dangerous:       1"} {
		if !strings.Contains(stdout, want) {
			t.Errorf("summary missing %q:\n%s", want, stdout)
		}
	}

	logSummary = false
	logFilterDenied = true
	stdout, _, err = runCmd(t, logCommand, "")
	if err != nil {
		t.Fatal(err)
	}
	if !strings.Contains(stdout, "sudo reboot") || strings.Contains(stdout, ".env") {
		t.Errorf("unexpected filtered output:\n%s", stdout)
	}

	auditPath = "off"
	stdout, _, _ = runCmd(t, logCommand, "")
	if !strings.Contains(stdout, "disabled") {
		t.Errorf("expected disabled notice, got %q", stdout)
	}
}

func TestScan(t *testing.T) {
	setupCLI(t)
	stdout, _, err := runCmd(t, scanCommand, "")
	if err != nil {
		t.Fatal(err)
	}
	if !strings.Contains(stdout, "All 6 checks passed") {
		t.Errorf("default policy should pass its self-test:\n%s", stdout)
	}
	if !strings.Contains(stdout, "preventBrew off") {
		t.Errorf("disabled features should be listed as skipped:\n%s", stdout)
	}
}

func TestStatus(t *testing.T) {
	setupCLI(t)
	stdout, _, err := runCmd(t, statusCommand, "")
	if err != nil {
		t.Fatal(err)
	}
	for _, want := range []string{"✅ protectEnvFiles", "⬚  preventPython", "not present, defaults apply", "not yet created"} {
		if !strings.Contains(stdout, want) {
			t.Errorf("status missing %q:\n%s", want, stdout)
		}
	}
}

func TestResolveAuditPath(t *testing.T) {
	t.Setenv("HOME", "/home/dev")
	tests := map[string]string{
		"off":         "",
		"/tmp/a.json": "/tmp/a.json",
		"":            "/home/dev/.pi/agent/" + defaultAuditName,
	}
	for flag, want := range tests {
		got, err := resolveAuditPath(flag)
		if err != nil || got != want {
			t.Errorf("resolveAuditPath(%q) = %q, %v; want %q", flag, got, err, want)
		}
	}
}
