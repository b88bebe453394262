package pattern

import (
	"errors"
	"fmt"
	"path"
	"regexp"
	"strings"

	"github.com/gobwas/glob"

	"github.com/gzhole/guardrails/internal/warnings"
)

// Mode selects how a Pattern's text is interpreted.
type Mode int

const (
	// Substring matches when the text occurs anywhere in the target.
	Substring Mode = iota
	// Glob matches file paths with shell-style wildcards.
	Glob
	// Regex matches with a Go regular expression.
	Regex
)

func (m Mode) String() string {
	switch m {
	case Substring:
		return "substring"
	case Glob:
		return "glob"
	case Regex:
		return "regex"
	default:
		return fmt.Sprintf("mode(%d)", int(m))
	}
}

// ErrInvalidPattern is returned for patterns that cannot be compiled.
var ErrInvalidPattern = errors.New("invalid pattern")

// Pattern is a user-authored pattern as stored in a config document.
// When Regex is false the feature's default mode applies (glob for files,
// substring for commands).
type Pattern struct {
	Pattern     string `json:"pattern" yaml:"pattern"`
	Regex       bool   `json:"regex,omitempty" yaml:"regex,omitempty"`
	Description string `json:"description,omitempty" yaml:"description,omitempty"`
}

// Label returns the description, or the pattern text when there is none.
func (p Pattern) Label() string {
	if p.Description != "" {
		return p.Description
	}
	return p.Pattern
}

// Matcher is a compiled Pattern.
type Matcher interface {
	Match(target string) bool
	Source() Pattern
	Mode() Mode
}

type compiled struct {
	src  Pattern
	mode Mode
	re   *regexp.Regexp
	g    glob.Glob
	// base is set for globs without a separator so ".env" also matches "dir/.env".
	base bool
}

func (c *compiled) Source() Pattern { return c.src }
func (c *compiled) Mode() Mode      { return c.mode }

func (c *compiled) Match(target string) bool {
	switch c.mode {
	case Regex:
		return c.re.MatchString(target)
	case Glob:
		if c.g.Match(target) {
			return true
		}
		return c.base && c.g.Match(path.Base(strings.ReplaceAll(target, "\\", "/")))
	default:
		return strings.Contains(target, c.src.Pattern)
	}
}

// Compile builds a Matcher. def is used unless the pattern asks for regex.
// Empty patterns are rejected since they would match every target.
func Compile(p Pattern, def Mode) (Matcher, error) {
	if strings.TrimSpace(p.Pattern) == "" {
		return nil, fmt.Errorf("%w: empty pattern", ErrInvalidPattern)
	}

	c := &compiled{src: p, mode: def}
	if p.Regex {
		c.mode = Regex
	}

	switch c.mode {
	case Regex:
		re, err := regexp.Compile(p.Pattern)
		if err != nil {
			return nil, fmt.Errorf("%w: %q: %v", ErrInvalidPattern, p.Pattern, err)
		}
		c.re = re
	case Glob:
		g, err := glob.Compile(p.Pattern, '/')
		if err != nil {
			return nil, fmt.Errorf("%w: %q: %v", ErrInvalidPattern, p.Pattern, err)
		}
		c.g = g
		c.base = !strings.Contains(p.Pattern, "/")
	}
	return c, nil
}

// CompileAll compiles every pattern, dropping the ones that fail and
// reporting each failure to sink. The feature keeps running with the rest.
func CompileAll(ps []Pattern, def Mode, sink warnings.Sink) []Matcher {
	out := make([]Matcher, 0, len(ps))
	for _, p := range ps {
		m, err := Compile(p, def)
		if err != nil {
			if sink != nil {
				sink.Warn(fmt.Sprintf("[guardrails] ignoring pattern: %v", err))
			}
			continue
		}
		out = append(out, m)
	}
	return out
}

// First returns the first matcher that matches target.
func First(ms []Matcher, target string) (Matcher, bool) {
	for _, m := range ms {
		if m.Match(target) {
			return m, true
		}
	}
	return nil, false
}

// Any reports whether any matcher matches target.
func Any(ms []Matcher, target string) bool {
	_, ok := First(ms, target)
	return ok
}
