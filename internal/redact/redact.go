// Package redact scrubs credentials out of commands and tool inputs before
// they are written to the audit log.
package redact

import (
	"fmt"
	"regexp"
	"strings"
)

const Placeholder = "[REDACTED]"

var secretPatterns = []*regexp.Regexp{
	// AWS
	regexp.MustCompile(`(?i)(aws_access_key_id|aws_secret_access_key|aws_session_token)\s*[=:]\s*['"]?[A-Za-z0-9/+=]{20,}['"]?`),
	regexp.MustCompile(`AKIA[0-9A-Z]{16}`),

	// GitHub
	regexp.MustCompile(`(?i)(github_token|gh_token|github_pat)\s*[=:]\s*['"]?[A-Za-z0-9_-]{30,}['"]?`),
	regexp.MustCompile(`gh[pousr]_[A-Za-z0-9]{36}`),

	// npm / PyPI publish tokens
	regexp.MustCompile(`npm_[A-Za-z0-9]{36}`),
	regexp.MustCompile(`(?i)//registry\.[^/\s]+/:_authToken=[^\s'"]+`),
	regexp.MustCompile(`pypi-[A-Za-z0-9_-]{40,}`),

	regexp.MustCompile(`(?i)(api_key|apikey|api-key|secret_key|secretkey|secret-key|access_token|auth_token)\s*[=:]\s*['"]?[A-Za-z0-9_-]{16,}['"]?`),

	regexp.MustCompile(`-----BEGIN (RSA |EC |DSA |OPENSSH |PGP )?PRIVATE KEY-----`),

	regexp.MustCompile(`(?i)bearer\s+[A-Za-z0-9_.-]{20,}`),

	// Credentials embedded in URLs, including database DSNs.
	regexp.MustCompile(`[a-z][a-z0-9+.-]*://[^:/\s]+:[^@\s]+@`),

	regexp.MustCompile(`xox[baprs]-[0-9]{10,13}-[0-9]{10,13}[a-zA-Z0-9-]*`),

	regexp.MustCompile(`[sr]k_live_[0-9a-zA-Z]{24}`),

	regexp.MustCompile(`(?i)(password|passwd|pwd|secret)\s*[=:]\s*['"]?[^\s'"]{8,}['"]?`),
}

// sensitiveNames are substrings of variable or key names whose values are
// always dropped, whatever they look like.
var sensitiveNames = []string{
	"ACCESS_KEY",
	"SECRET",
	"TOKEN",
	"PASSWORD",
	"PASSWD",
	"API_KEY",
	"APIKEY",
	"PRIVATE_KEY",
	"DATABASE_URL",
	"REDIS_URL",
	"MONGO_URL",
	"DSN",
}

// Redact replaces every known secret shape in s.
func Redact(s string) string {
	for _, re := range secretPatterns {
		s = re.ReplaceAllString(s, Placeholder)
	}
	return s
}

// IsSensitiveName reports whether a variable or key name looks like it
// holds a credential.
func IsSensitiveName(name string) bool {
	upper := strings.ToUpper(name)
	for _, n := range sensitiveNames {
		if strings.Contains(upper, n) {
			return true
		}
	}
	return false
}

// EnvAssignments redacts the values of sensitive NAME=value lines, as found
// in .env files and in `env`/`export` prefixes.
func EnvAssignments(lines []string) []string {
	out := make([]string, 0, len(lines))
	for _, line := range lines {
		name, _, ok := strings.Cut(line, "=")
		if ok && IsSensitiveName(strings.TrimPrefix(strings.TrimSpace(name), "export ")) {
			out = append(out, name+"="+Placeholder)
			continue
		}
		out = append(out, Redact(line))
	}
	return out
}

// Input returns a redacted copy of a tool-call input. String values are
// scrubbed, values under sensitive keys are replaced whole, and
// write/edit payloads are dropped since they may hold file contents.
func Input(in map[string]any) map[string]any {
	if in == nil {
		return nil
	}
	out := make(map[string]any, len(in))
	for k, v := range in {
		switch {
		case IsSensitiveName(k):
			out[k] = Placeholder
		case k == "content" || k == "new_string" || k == "old_string":
			if s, ok := v.(string); ok {
				out[k] = omitted(s)
			} else {
				out[k] = Placeholder
			}
		default:
			out[k] = value(v)
		}
	}
	return out
}

func value(v any) any {
	switch t := v.(type) {
	case string:
		return Redact(t)
	case map[string]any:
		return Input(t)
	case []any:
		out := make([]any, len(t))
		for i, e := range t {
			out[i] = value(e)
		}
		return out
	default:
		return v
	}
}

func omitted(s string) string {
	if s == "" {
		return ""
	}
	return fmt.Sprintf("[OMITTED %d bytes]", len(s))
}
