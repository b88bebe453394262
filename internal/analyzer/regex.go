package analyzer

import (
	"regexp"
	"sync"
)

// wordRegexCache holds compiled word-boundary regexes keyed by token.
var wordRegexCache sync.Map

// wordRegex builds a regex matching token as a whole word. Letters, digits
// and underscore count as word characters, so "npm" does not match inside
// "pnpm" but does match inside "https://npm.pkg.github.com": the fallback
// errs on the side of reporting.
func wordRegex(token string) *regexp.Regexp {
	if re, ok := wordRegexCache.Load(token); ok {
		return re.(*regexp.Regexp)
	}
	re := regexp.MustCompile(`(?:^|[^A-Za-z0-9_])` + regexp.QuoteMeta(token) + `(?:[^A-Za-z0-9_]|$)`)
	wordRegexCache.Store(token, re)
	return re
}

// MatchWord reports whether token occurs in raw as a whole word.
// It is the safety net used when the shell grammar cannot parse raw.
func MatchWord(raw, token string) bool {
	if token == "" {
		return false
	}
	return wordRegex(token).MatchString(raw)
}

// FindCommands returns the members of targets that raw invokes as a
// command, in the order they appear. When raw does not parse, each target
// is searched for as a whole word in the raw string instead and fallback is
// true.
func (a *StructuralAnalyzer) FindCommands(raw string, targets []string) (found []string, fallback bool) {
	names, fallback := a.ExtractCommandNames(raw)
	if fallback {
		for _, t := range targets {
			if MatchWord(raw, t) {
				found = append(found, t)
			}
		}
		return found, true
	}

	wanted := make(map[string]bool, len(targets))
	for _, t := range targets {
		wanted[t] = true
	}
	for _, n := range names {
		if wanted[n] {
			found = append(found, n)
		}
	}
	return found, false
}
