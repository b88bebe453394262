package normalize

import (
	"os"
	"path/filepath"
	"strings"
)

// isBoundary reports characters that end a path reference inside a shell
// command string: whitespace, redirections, pipes, separators and quotes.
func isBoundary(r rune) bool {
	switch r {
	case ' ', '\t', '\n', '\r', '<', '>', '|', ';', '&', '"', '\'', '`', '(', ')':
		return true
	}
	return false
}

// PathRefs scrapes path-like tokens out of a raw command string.
// The scan is purely lexical: it also reports tokens inside quoted strings,
// which is the conservative choice for secret-file protection.
//
//	cat .env | grep KEY          → [cat .env grep KEY]
//	source ./apps/api/.env.local → [source ./apps/api/.env.local]
//	docker run --env-file=.env   → [docker run .env]
func PathRefs(command string) []string {
	tokens := strings.FieldsFunc(command, isBoundary)
	refs := make([]string, 0, len(tokens))
	for _, tok := range tokens {
		ref := pathPart(tok)
		if ref == "" {
			continue
		}
		refs = append(refs, ref)
	}
	return uniqueStrings(refs)
}

// pathPart extracts the value a token may name: the token itself, or the
// right-hand side of "--flag=value" and "key=value" forms.
func pathPart(tok string) string {
	if strings.Contains(tok, "://") {
		return ""
	}
	if eq := strings.Index(tok, "="); eq >= 0 {
		return tok[eq+1:]
	}
	if strings.HasPrefix(tok, "-") {
		return ""
	}
	return tok
}

// Resolve expands a leading "~/" and joins relative paths onto cwd.
func Resolve(path, cwd string) string {
	homeDir, _ := os.UserHomeDir()
	return expandPath(path, cwd, homeDir)
}

func expandPath(path, cwd, homeDir string) string {
	if strings.HasPrefix(path, "~/") && homeDir != "" {
		path = filepath.Join(homeDir, path[2:])
	}

	if !filepath.IsAbs(path) && cwd != "" {
		path = filepath.Join(cwd, path)
	}

	return filepath.Clean(path)
}

func uniqueStrings(input []string) []string {
	seen := make(map[string]bool)
	result := make([]string, 0, len(input))
	for _, s := range input {
		if !seen[s] {
			seen[s] = true
			result = append(result, s)
		}
	}
	return result
}
