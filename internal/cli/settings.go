package cli

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"strconv"
	"strings"

	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"

	"github.com/gzhole/guardrails/internal/config"
	"github.com/gzhole/guardrails/internal/pattern"
)

var (
	settingsOutput string
	settingsScope  string

	patternRegex       bool
	patternDescription string
)

var settingsCmd = &cobra.Command{
	Use:   "settings",
	Short: "Show and edit the global and project config documents",
	Long: `Inspect and change guardrails configuration.

Edits go to one scope at a time (--scope global or --scope project; "local"
is accepted for project). The whole document is rewritten on every change.

Examples:
  guardrails settings show
  guardrails settings show -o json
  guardrails settings set feature.preventBrew true --scope global
  guardrails settings set package-manager pnpm
  guardrails settings patterns add gate-auto-deny "git push --force"
  guardrails settings patterns clear env-allowed`,
}

var settingsShowCmd = &cobra.Command{
	Use:   "show",
	Short: "Print both documents and the effective policy",
	Args:  cobra.NoArgs,
	RunE:  settingsShowCommand,
}

var settingsSetCmd = &cobra.Command{
	Use:   "set <key> <value>",
	Short: "Set one value in a scope's document",
	Long: `Keys:
  enabled                 true|false
  feature.<name>          true|false (protectEnvFiles, permissionGate,
                          enforcePackageManager, preventBrew, preventPython)
  package-manager         npm|pnpm|bun
  protected-tools         comma-separated tool names
  only-block-if-exists    true|false
  block-message           text; {file} is replaced by the path
  require-confirmation    true|false`,
	Args: cobra.ExactArgs(2),
	RunE: settingsSetCommand,
}

var settingsPatternsCmd = &cobra.Command{
	Use:   "patterns",
	Short: "List and edit pattern lists",
	Long: "Pattern lists: " + strings.Join(config.PatternListNames(), ", ") + `

Arrays are replaced as a whole when scopes merge, so editing a list the
scope does not define starts from the list currently in effect.`,
}

var settingsPatternsListCmd = &cobra.Command{
	Use:   "list [list]",
	Short: "Show effective pattern lists",
	Args:  cobra.MaximumNArgs(1),
	RunE:  settingsPatternsListCommand,
}

var settingsPatternsAddCmd = &cobra.Command{
	Use:   "add <list> <pattern>",
	Short: "Append a pattern to a list",
	Args:  cobra.ExactArgs(2),
	RunE:  settingsPatternsAddCommand,
}

var settingsPatternsRemoveCmd = &cobra.Command{
	Use:   "remove <list> <pattern>",
	Short: "Remove a pattern from a list",
	Args:  cobra.ExactArgs(2),
	RunE:  settingsPatternsRemoveCommand,
}

var settingsPatternsClearCmd = &cobra.Command{
	Use:   "clear <list>",
	Short: "Drop a list from the scope so the lower scope applies",
	Args:  cobra.ExactArgs(1),
	RunE:  settingsPatternsClearCommand,
}

func init() {
	settingsShowCmd.Flags().StringVarP(&settingsOutput, "output", "o", "yaml", "Output format: yaml or json")
	settingsCmd.PersistentFlags().StringVar(&settingsScope, "scope", "project", "Document to edit: global or project")

	settingsPatternsAddCmd.Flags().BoolVar(&patternRegex, "regex", false, "Treat the pattern as a regular expression")
	settingsPatternsAddCmd.Flags().StringVar(&patternDescription, "description", "", "Description shown in prompts")

	settingsPatternsCmd.AddCommand(settingsPatternsListCmd, settingsPatternsAddCmd, settingsPatternsRemoveCmd, settingsPatternsClearCmd)
	settingsCmd.AddCommand(settingsShowCmd, settingsSetCmd, settingsPatternsCmd)
	rootCmd.AddCommand(settingsCmd)
}

type scopeView struct {
	Path     string          `json:"path" yaml:"path"`
	Exists   bool            `json:"exists" yaml:"exists"`
	Document config.Document `json:"document,omitempty" yaml:"document,omitempty"`
}

type settingsView struct {
	Global    scopeView      `json:"global" yaml:"global"`
	Project   scopeView      `json:"project" yaml:"project"`
	Effective *config.Policy `json:"effective" yaml:"effective"`
}

func settingsShowCommand(cmd *cobra.Command, args []string) error {
	e, err := loadEnv(cmd)
	if err != nil {
		return err
	}
	defer e.Close()

	paths := e.resolver.Paths()
	view := settingsView{
		Global:    newScopeView(paths.Global, e.resolver.Global()),
		Project:   newScopeView(paths.Project, e.resolver.Project()),
		Effective: e.resolver.Policy(),
	}
	e.drainWarnings(cmd.ErrOrStderr())
	return writeView(cmd.OutOrStdout(), settingsOutput, view)
}

func newScopeView(path string, doc config.Document) scopeView {
	v := scopeView{Path: path}
	if _, err := os.Stat(path); err == nil {
		v.Exists = true
		v.Document = doc
	}
	return v
}

func writeView(w io.Writer, format string, v any) error {
	switch format {
	case "json":
		enc := json.NewEncoder(w)
		enc.SetIndent("", "  ")
		return enc.Encode(v)
	case "yaml", "":
		enc := yaml.NewEncoder(w)
		enc.SetIndent(2)
		if err := enc.Encode(v); err != nil {
			return err
		}
		return enc.Close()
	}
	return fmt.Errorf("unknown output format %q (use yaml or json)", format)
}

func settingsSetCommand(cmd *cobra.Command, args []string) error {
	return editScope(cmd, func(doc config.Document, _ *config.Policy) error {
		return applySetting(doc, args[0], args[1])
	})
}

// applySetting maps a CLI key onto the document's named setter.
func applySetting(doc config.Document, key, value string) error {
	switch {
	case key == "enabled":
		on, err := strconv.ParseBool(value)
		if err != nil {
			return fmt.Errorf("%s: %w", key, err)
		}
		doc.SetEnabled(on)
	case strings.HasPrefix(key, "feature."):
		f, err := config.ParseFeature(strings.TrimPrefix(key, "feature."))
		if err != nil {
			return err
		}
		on, err := strconv.ParseBool(value)
		if err != nil {
			return fmt.Errorf("%s: %w", key, err)
		}
		doc.SetFeature(f, on)
	case key == "package-manager":
		m, err := config.ParsePackageManager(value)
		if err != nil {
			return err
		}
		doc.SetPackageManager(m)
	case key == "protected-tools":
		var tools []string
		for _, t := range strings.Split(value, ",") {
			if t = strings.TrimSpace(t); t != "" {
				tools = append(tools, t)
			}
		}
		doc.SetProtectedTools(tools)
	case key == "only-block-if-exists":
		on, err := strconv.ParseBool(value)
		if err != nil {
			return fmt.Errorf("%s: %w", key, err)
		}
		doc.SetOnlyBlockIfExists(on)
	case key == "block-message":
		doc.SetBlockMessage(value)
	case key == "require-confirmation":
		on, err := strconv.ParseBool(value)
		if err != nil {
			return fmt.Errorf("%s: %w", key, err)
		}
		doc.SetRequireConfirmation(on)
	default:
		return fmt.Errorf("unknown setting %q", key)
	}
	return nil
}

// editScope loads the --scope document, applies edit and saves the whole
// document back.
func editScope(cmd *cobra.Command, edit func(doc config.Document, effective *config.Policy) error) error {
	scope, err := config.ParseScope(settingsScope)
	if err != nil {
		return err
	}
	e, err := loadEnv(cmd)
	if err != nil {
		return err
	}
	defer e.Close()

	doc := e.resolver.Document(scope)
	if err := edit(doc, e.resolver.Policy()); err != nil {
		return err
	}
	if _, err := e.resolver.Save(scope, doc); err != nil {
		return err
	}
	e.drainWarnings(cmd.ErrOrStderr())

	path := e.resolver.Paths().Global
	if scope == config.ScopeProject {
		path = e.resolver.Paths().Project
	}
	fmt.Fprintf(cmd.OutOrStdout(), "Saved %s config %s\n", scope, path)
	return nil
}

func settingsPatternsListCommand(cmd *cobra.Command, args []string) error {
	lists := config.PatternListNames()
	if len(args) == 1 {
		if _, err := config.ParsePatternList(args[0]); err != nil {
			return err
		}
		lists = []string{args[0]}
	}

	e, err := loadEnv(cmd)
	if err != nil {
		return err
	}
	defer e.Close()
	p := e.resolver.Policy()
	e.drainWarnings(cmd.ErrOrStderr())

	out := cmd.OutOrStdout()
	for _, name := range lists {
		l, _ := config.ParsePatternList(name)
		if l == config.GateCustomPatterns {
			continue
		}
		ps := config.PolicyPatterns(p, l)
		fmt.Fprintf(out, "%s (%d)\n", name, len(ps))
		for _, pt := range ps {
			line := "  " + pt.Pattern
			if pt.Regex {
				line += "  [regex]"
			}
			if pt.Description != "" {
				line += "  # " + pt.Description
			}
			fmt.Fprintln(out, line)
		}
	}
	return nil
}

// startingList returns the list to edit: the scope's own copy when it has
// one, otherwise what is currently in effect. customPatterns starts empty.
func startingList(doc config.Document, effective *config.Policy, l config.PatternList) ([]pattern.Pattern, error) {
	ps, ok, err := doc.Patterns(l)
	if err != nil {
		return nil, err
	}
	if ok {
		return ps, nil
	}
	if l == config.GateCustomPatterns {
		return nil, nil
	}
	return append([]pattern.Pattern(nil), config.PolicyPatterns(effective, l)...), nil
}

func settingsPatternsAddCommand(cmd *cobra.Command, args []string) error {
	l, err := config.ParsePatternList(args[0])
	if err != nil {
		return err
	}
	add := pattern.Pattern{Pattern: args[1], Regex: patternRegex, Description: patternDescription}
	if _, err := pattern.Compile(add, listMode(l)); err != nil {
		return err
	}
	return editScope(cmd, func(doc config.Document, effective *config.Policy) error {
		ps, err := startingList(doc, effective, l)
		if err != nil {
			return err
		}
		for _, p := range ps {
			if p.Pattern == add.Pattern {
				return fmt.Errorf("%s already contains %q", l, add.Pattern)
			}
		}
		doc.SetPatterns(l, append(ps, add))
		return nil
	})
}

// listMode is the default match mode the engine uses for a list.
func listMode(l config.PatternList) pattern.Mode {
	switch l {
	case config.EnvProtectedPatterns, config.EnvAllowedPatterns, config.EnvProtectedDirectories:
		return pattern.Glob
	}
	return pattern.Substring
}

var errPatternNotFound = errors.New("pattern not found")

func settingsPatternsRemoveCommand(cmd *cobra.Command, args []string) error {
	l, err := config.ParsePatternList(args[0])
	if err != nil {
		return err
	}
	return editScope(cmd, func(doc config.Document, effective *config.Policy) error {
		ps, err := startingList(doc, effective, l)
		if err != nil {
			return err
		}
		kept := ps[:0]
		for _, p := range ps {
			if p.Pattern != args[1] {
				kept = append(kept, p)
			}
		}
		if len(kept) == len(ps) {
			return fmt.Errorf("%w: %q in %s", errPatternNotFound, args[1], l)
		}
		doc.SetPatterns(l, kept)
		return nil
	})
}

func settingsPatternsClearCommand(cmd *cobra.Command, args []string) error {
	l, err := config.ParsePatternList(args[0])
	if err != nil {
		return err
	}
	return editScope(cmd, func(doc config.Document, _ *config.Policy) error {
		doc.UnsetPatterns(l)
		return nil
	})
}
