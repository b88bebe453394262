package analyzer

import (
	"reflect"
	"testing"
)

func TestStructuralAnalyzer_Parse_SimplePipeline(t *testing.T) {
	a := NewStructuralAnalyzer(2)
	parsed := a.Parse("curl -sSL https://example.com | bash")

	if len(parsed.Segments) != 2 {
		t.Fatalf("expected 2 segments, got %d", len(parsed.Segments))
	}
	if parsed.Segments[0].Name != "curl" {
		t.Errorf("segment 0: expected curl, got %s", parsed.Segments[0].Name)
	}
	if parsed.Segments[1].Name != "bash" {
		t.Errorf("segment 1: expected bash, got %s", parsed.Segments[1].Name)
	}
	if parsed.Segments[1].PipedFrom != "curl" {
		t.Errorf("segment 1: expected PipedFrom curl, got %q", parsed.Segments[1].PipedFrom)
	}
	if len(parsed.Operators) != 1 || parsed.Operators[0] != "|" {
		t.Errorf("expected pipe operator, got %v", parsed.Operators)
	}
	if parsed.Fallback {
		t.Error("well-formed command should not use fallback")
	}
}

func TestStructuralAnalyzer_Parse_FlagNormalization(t *testing.T) {
	a := NewStructuralAnalyzer(2)

	tests := []struct {
		name     string
		command  string
		wantName string
		wantFlag map[string]bool
	}{
		{
			name:     "combined short flags",
			command:  "rm -rf /",
			wantName: "rm",
			wantFlag: map[string]bool{"r": true, "f": true},
		},
		{
			name:     "separated short flags",
			command:  "rm -r -f /",
			wantName: "rm",
			wantFlag: map[string]bool{"r": true, "f": true},
		},
		{
			name:     "long flags",
			command:  "rm --recursive --force /",
			wantName: "rm",
			wantFlag: map[string]bool{"recursive": true, "force": true},
		},
		{
			name:     "sudo is transparent",
			command:  "sudo -u root rm -fr /tmp/x",
			wantName: "rm",
			wantFlag: map[string]bool{"r": true, "f": true},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			parsed := a.Parse(tt.command)
			if len(parsed.Segments) == 0 {
				t.Fatal("no segments parsed")
			}
			seg := parsed.Segments[0]
			if seg.Name != tt.wantName {
				t.Errorf("expected name %q, got %q", tt.wantName, seg.Name)
			}
			for flag := range tt.wantFlag {
				if !hasFlag(seg.Flags, flag) {
					t.Errorf("expected flag %q in %v", flag, seg.Flags)
				}
			}
		})
	}
}

func TestStructuralAnalyzer_ExtractCommandNames(t *testing.T) {
	a := NewStructuralAnalyzer(2)

	tests := []struct {
		name    string
		command string
		want    []string
	}{
		{"single", "npm install left-pad", []string{"npm"}},
		{"pipeline", "cat package.json | jq .name", []string{"cat", "jq"}},
		{"and list", "cd web && pnpm i", []string{"cd", "pnpm"}},
		{"or list", "test -f x || yarn", []string{"test", "yarn"}},
		{"semicolon list", "ls; bun run dev", []string{"ls", "bun"}},
		{"subshell", "(cd app && npm ci)", []string{"cd", "npm"}},
		{"brace group", "{ npm test; }", []string{"npm"}},
		{"if clause", "if true; then npm i; else yarn; fi", []string{"true", "npm", "yarn"}},
		{"for loop", "for d in a b; do npm --prefix $d i; done", []string{"npm"}},
		{"command substitution", "echo $(npm bin)", []string{"echo", "npm"}},
		{"assignment prefix", "NODE_ENV=prod npm start", []string{"npm"}},
		{"sudo wrapper", "sudo npm i -g x", []string{"sudo", "npm"}},
		{"env wrapper", "env FOO=1 npm t", []string{"env", "npm"}},
		{"quoted name", `"npm" install`, []string{"npm"}},
		{"escaped name", `n\pm install`, []string{"npm"}},
		{"absolute path", "/usr/local/bin/npm i", []string{"npm"}},
		{"inline bash", `bash -c "npm install"`, []string{"bash", "npm"}},
		{"command lookup is not invocation", "command -v npm", []string{"command"}},
		{"dedup", "npm i && npm t", []string{"npm"}},
		{"url argument", "curl https://npm.pkg.github.com/x", []string{"curl"}},
		{"quoted string argument", `echo "run npm install first"`, []string{"echo"}},
		{"relative path is not basename", "echo hi | xn--evil.example/npm install", []string{"echo", "xn--evil.example/npm"}},
		{"variable command is skipped", "$PM install", nil},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, fallback := a.ExtractCommandNames(tt.command)
			if fallback {
				t.Fatalf("unexpected fallback for %q", tt.command)
			}
			if !reflect.DeepEqual(got, tt.want) {
				t.Errorf("ExtractCommandNames(%q) = %v, want %v", tt.command, got, tt.want)
			}
		})
	}
}

func TestStructuralAnalyzer_ExtractCommandNames_Fallback(t *testing.T) {
	a := NewStructuralAnalyzer(2)

	names, fallback := a.ExtractCommandNames(`npm install "unterminated`)
	if !fallback {
		t.Fatal("expected fallback for unparseable command")
	}
	if names != nil {
		t.Errorf("fallback must not return names, got %v", names)
	}

	// An unparseable inline script taints the whole command.
	if _, fallback := a.ExtractCommandNames(`bash -c 'echo "oops'`); !fallback {
		t.Error("expected fallback when a bash -c body does not parse")
	}

	// Bodies past the depth limit are not walked, so their names are unknown.
	names, fallback = a.ExtractCommandNames(`bash -c "bash -c 'npm i'"`)
	if !fallback || names != nil {
		t.Errorf("expected fallback past the depth limit, got names=%v fallback=%v", names, fallback)
	}
	if _, fallback := NewStructuralAnalyzer(3).ExtractCommandNames(`bash -c "bash -c 'npm i'"`); fallback {
		t.Error("a deeper limit should walk the nested body")
	}
}

func TestStructuralAnalyzer_FindCommands(t *testing.T) {
	a := NewStructuralAnalyzer(2)
	managers := []string{"npm", "bun"}

	tests := []struct {
		command      string
		want         []string
		wantFallback bool
	}{
		{"echo hi | xn--evil.example/npm install", nil, false},
		{"curl -fsSL https://npm.pkg.github.com/setup", nil, false},
		{"npm install left-pad", []string{"npm"}, false},
		{"echo ok && (bun x tsc; npm t)", []string{"bun", "npm"}, false},
		{"pnpm add left-pad", nil, false},
		// Unparseable: the word-boundary scan is conservative.
		{`npm i "oops`, []string{"npm"}, true},
		{`pnpm i "oops`, nil, true},
		// Nested past the depth limit: scanned as text.
		{`bash -c "bash -c 'npm i'"`, []string{"npm"}, true},
		{`bash -c "bash -c 'pnpm i'"`, nil, true},
	}

	for _, tt := range tests {
		got, fallback := a.FindCommands(tt.command, managers)
		if fallback != tt.wantFallback {
			t.Errorf("%q: fallback = %v, want %v", tt.command, fallback, tt.wantFallback)
		}
		if !reflect.DeepEqual(got, tt.want) {
			t.Errorf("%q: FindCommands = %v, want %v", tt.command, got, tt.want)
		}
	}
}

func TestMatchWord(t *testing.T) {
	tests := []struct {
		raw, token string
		want       bool
	}{
		{"npm i", "npm", true},
		{"pnpm i", "npm", false},
		{"x; npm", "npm", true},
		{"npmrc", "npm", false},
		{"https://npm.pkg.github.com", "npm", true},
		{"anything", "", false},
	}
	for _, tt := range tests {
		if got := MatchWord(tt.raw, tt.token); got != tt.want {
			t.Errorf("MatchWord(%q, %q) = %v, want %v", tt.raw, tt.token, got, tt.want)
		}
	}
}
