package analyzer

import (
	"path"
	"strings"

	"mvdan.cc/sh/v3/syntax"
)

// StructuralAnalyzer parses shell commands into an AST using mvdan.cc/sh/v3
// and locates command names structurally, so "npm" inside a URL or a quoted
// string is never mistaken for an invocation of npm.
//
// It never executes or expands anything; it is pure syntax.
type StructuralAnalyzer struct {
	maxParseDepth int
}

// NewStructuralAnalyzer creates an analyzer. maxParseDepth bounds how many
// levels of "bash -c '...'" are re-parsed.
func NewStructuralAnalyzer(maxParseDepth int) *StructuralAnalyzer {
	if maxParseDepth <= 0 {
		maxParseDepth = 2
	}
	return &StructuralAnalyzer{maxParseDepth: maxParseDepth}
}

// Parse converts a raw command string into a ParsedCommand.
// When the shell grammar rejects the input, a naive pipe split is returned
// with Fallback set. A "bash -c" body nested deeper than maxParseDepth is
// not walked; it is recorded as a Fallback subcommand instead.
func (a *StructuralAnalyzer) Parse(command string) *ParsedCommand {
	pc := a.parseWithDepth(command, 0)
	if pc == nil {
		return &ParsedCommand{}
	}
	return pc
}

// ExtractCommandNames returns the leading command token of every simple
// command in raw. fallback is true when raw could not be parsed; callers must
// then scan the raw string with MatchWord instead of trusting names.
func (a *StructuralAnalyzer) ExtractCommandNames(raw string) (names []string, fallback bool) {
	pc := a.Parse(raw)
	if anyFallback(pc) {
		return nil, true
	}
	seen := make(map[string]bool)
	for _, seg := range AllSegments(pc) {
		for _, n := range seg.Names() {
			if !seen[n] {
				seen[n] = true
				names = append(names, n)
			}
		}
	}
	return names, false
}

func (a *StructuralAnalyzer) parseWithDepth(command string, depth int) *ParsedCommand {
	if depth >= a.maxParseDepth {
		return &ParsedCommand{Fallback: true}
	}

	parser := syntax.NewParser(syntax.KeepComments(false), syntax.Variant(syntax.LangBash))
	file, err := parser.Parse(strings.NewReader(command), "")
	if err != nil {
		return fallbackParse(command)
	}

	pc := &ParsedCommand{}
	a.walkStmts(pc, file.Stmts, depth)
	return pc
}

func (a *StructuralAnalyzer) walkStmts(pc *ParsedCommand, stmts []*syntax.Stmt, depth int) {
	for _, s := range stmts {
		a.walkStmt(pc, s, depth)
	}
}

func (a *StructuralAnalyzer) walkStmt(pc *ParsedCommand, stmt *syntax.Stmt, depth int) {
	if stmt == nil || stmt.Cmd == nil {
		return
	}

	switch cmd := stmt.Cmd.(type) {
	case *syntax.CallExpr:
		for _, as := range cmd.Assigns {
			if as.Value != nil {
				a.walkWord(pc, as.Value, depth)
			}
		}
		if len(cmd.Args) == 0 {
			break
		}
		seg := callExprToSegment(cmd)
		pc.Segments = append(pc.Segments, seg)
		for _, w := range cmd.Args {
			a.walkWord(pc, w, depth)
		}
		// Indirect execution: bash -c 'inner'
		if seg.IsShell {
			if inner := extractInlineCode(seg); inner != "" {
				if sub := a.parseWithDepth(inner, depth+1); sub != nil {
					pc.Subcommands = append(pc.Subcommands, sub)
				}
			}
		}

	case *syntax.BinaryCmd:
		left := &ParsedCommand{}
		right := &ParsedCommand{}
		a.walkStmt(left, cmd.X, depth)
		a.walkStmt(right, cmd.Y, depth)
		op := binaryOpString(cmd.Op)
		if (cmd.Op == syntax.Pipe || cmd.Op == syntax.PipeAll) &&
			len(left.Segments) > 0 && len(right.Segments) > 0 {
			right.Segments[0].PipedFrom = left.Segments[len(left.Segments)-1].Name
		}
		pc.Segments = append(pc.Segments, left.Segments...)
		pc.Operators = append(pc.Operators, left.Operators...)
		pc.Operators = append(pc.Operators, op)
		pc.Operators = append(pc.Operators, right.Operators...)
		pc.Segments = append(pc.Segments, right.Segments...)
		pc.Subcommands = append(pc.Subcommands, left.Subcommands...)
		pc.Subcommands = append(pc.Subcommands, right.Subcommands...)

	case *syntax.Subshell:
		a.walkStmts(pc, cmd.Stmts, depth)
	case *syntax.Block:
		a.walkStmts(pc, cmd.Stmts, depth)
	case *syntax.IfClause:
		for c := cmd; c != nil; c = c.Else {
			a.walkStmts(pc, c.Cond, depth)
			a.walkStmts(pc, c.Then, depth)
		}
	case *syntax.WhileClause:
		a.walkStmts(pc, cmd.Cond, depth)
		a.walkStmts(pc, cmd.Do, depth)
	case *syntax.ForClause:
		a.walkStmts(pc, cmd.Do, depth)
	case *syntax.CaseClause:
		for _, item := range cmd.Items {
			a.walkStmts(pc, item.Stmts, depth)
		}
	case *syntax.FuncDecl:
		a.walkStmt(pc, cmd.Body, depth)
	case *syntax.TimeClause:
		a.walkStmt(pc, cmd.Stmt, depth)
	case *syntax.CoprocClause:
		a.walkStmt(pc, cmd.Stmt, depth)
	case *syntax.DeclClause:
		for _, as := range cmd.Args {
			if as.Value != nil {
				a.walkWord(pc, as.Value, depth)
			}
		}
	}

	for _, redir := range stmt.Redirs {
		if redir.Word != nil {
			a.walkWord(pc, redir.Word, depth)
		}
	}
}

// walkWord enters command and process substitutions embedded in a word.
func (a *StructuralAnalyzer) walkWord(pc *ParsedCommand, word *syntax.Word, depth int) {
	syntax.Walk(word, func(node syntax.Node) bool {
		switch n := node.(type) {
		case *syntax.CmdSubst:
			a.walkStmts(pc, n.Stmts, depth)
			return false
		case *syntax.ProcSubst:
			a.walkStmts(pc, n.Stmts, depth)
			return false
		}
		return true
	})
}

func callExprToSegment(call *syntax.CallExpr) CommandSegment {
	seg := CommandSegment{
		Flags: make(map[string]string),
	}

	words := make([]string, 0, len(call.Args))
	literal := make([]bool, 0, len(call.Args))
	for _, word := range call.Args {
		if lit, ok := literalWord(word); ok {
			words = append(words, lit)
			literal = append(literal, true)
		} else {
			words = append(words, wordToString(word))
			literal = append(literal, false)
		}
	}
	seg.Raw = strings.Join(words, " ")

	// Wrappers such as sudo or env are transparent: the real command is the
	// first argument that is not one of the wrapper's own flags or assignments.
	i := 0
	for i < len(words) && literal[i] && isWrapper(words[i]) && !isLookup(words, i) {
		seg.Wrappers = append(seg.Wrappers, words[i])
		i = skipWrapperArgs(words[i], words, i+1)
	}
	if i >= len(words) {
		// "sudo" on its own, or "env" with only assignments.
		if n := len(seg.Wrappers); n > 0 {
			seg.Name = seg.Wrappers[n-1]
			seg.Wrappers = seg.Wrappers[:n-1]
			seg.Literal = true
		}
		return seg
	}

	seg.Name = normalizeName(words[i])
	seg.Literal = literal[i]
	seg.IsShell = seg.Literal && isShellInterpreter(seg.Name)
	seg.Flags, seg.Args = parseFlags(words[i+1:])
	return seg
}

// fallbackParse handles commands that mvdan.cc/sh can't parse.
func fallbackParse(command string) *ParsedCommand {
	pc := &ParsedCommand{Fallback: true}
	parts := strings.Split(command, "|")
	for i, part := range parts {
		words := strings.Fields(part)
		if len(words) == 0 {
			continue
		}
		seg := CommandSegment{
			Raw:     strings.TrimSpace(part),
			Name:    normalizeName(words[0]),
			Literal: true,
		}
		seg.IsShell = isShellInterpreter(seg.Name)
		seg.Flags, seg.Args = parseFlags(words[1:])
		pc.Segments = append(pc.Segments, seg)
		if i < len(parts)-1 {
			pc.Operators = append(pc.Operators, "|")
		}
	}
	return pc
}

// literalWord resolves a word to its plain value when it consists only of
// literal text and quotes. Any expansion makes it non-literal.
func literalWord(word *syntax.Word) (string, bool) {
	var sb strings.Builder
	for _, part := range word.Parts {
		switch p := part.(type) {
		case *syntax.Lit:
			sb.WriteString(unescape(p.Value))
		case *syntax.SglQuoted:
			if p.Dollar {
				return "", false
			}
			sb.WriteString(p.Value)
		case *syntax.DblQuoted:
			for _, dp := range p.Parts {
				lit, ok := dp.(*syntax.Lit)
				if !ok {
					return "", false
				}
				sb.WriteString(lit.Value)
			}
		default:
			return "", false
		}
	}
	return sb.String(), true
}

// unescape removes backslash escapes from an unquoted literal: n\pm → npm.
func unescape(s string) string {
	if !strings.Contains(s, `\`) {
		return s
	}
	var sb strings.Builder
	escaped := false
	for _, r := range s {
		if r == '\\' && !escaped {
			escaped = true
			continue
		}
		escaped = false
		sb.WriteRune(r)
	}
	return sb.String()
}

// wordToString converts a syntax.Word AST node to its string representation.
func wordToString(word *syntax.Word) string {
	var sb strings.Builder
	printer := syntax.NewPrinter()
	printer.Print(&sb, word)
	return sb.String()
}

// normalizeName strips the directory from absolute command paths:
// /usr/bin/npm → npm. Relative paths are kept as written so that
// "xn--evil.example/npm" is never read as npm.
func normalizeName(name string) string {
	if strings.HasPrefix(name, "/") && len(name) > 1 {
		return path.Base(name)
	}
	return name
}

// parseFlags splits words into normalized flags and positional args.
func parseFlags(words []string) (map[string]string, []string) {
	flags := make(map[string]string)
	var args []string
	for _, w := range words {
		if strings.HasPrefix(w, "--") && len(w) > 2 {
			// Long flag: --recursive, --force, --registry=value
			flag := w[2:]
			if eqIdx := strings.Index(flag, "="); eqIdx >= 0 {
				flags[flag[:eqIdx]] = flag[eqIdx+1:]
			} else {
				flags[flag] = ""
			}
		} else if strings.HasPrefix(w, "-") && len(w) > 1 && w != "--" {
			// Short flags: -rf, -r, -f
			for _, ch := range w[1:] {
				flags[string(ch)] = ""
			}
		} else {
			args = append(args, w)
		}
	}
	return flags, args
}

func binaryOpString(op syntax.BinCmdOperator) string {
	switch op {
	case syntax.Pipe:
		return "|"
	case syntax.AndStmt:
		return "&&"
	case syntax.OrStmt:
		return "||"
	default:
		return op.String()
	}
}

// anyFallback reports whether parsed or any nested "bash -c" body was
// produced by the naive fallback splitter.
func anyFallback(parsed *ParsedCommand) bool {
	if parsed == nil {
		return false
	}
	if parsed.Fallback {
		return true
	}
	for _, sub := range parsed.Subcommands {
		if anyFallback(sub) {
			return true
		}
	}
	return false
}

// AllSegments returns the segments of parsed and of every nested subcommand.
func AllSegments(parsed *ParsedCommand) []CommandSegment {
	if parsed == nil {
		return nil
	}
	segs := append([]CommandSegment(nil), parsed.Segments...)
	for _, sub := range parsed.Subcommands {
		segs = append(segs, AllSegments(sub)...)
	}
	return segs
}

var shellInterpreters = map[string]bool{
	"sh": true, "bash": true, "zsh": true, "dash": true,
	"ksh": true, "fish": true, "csh": true, "tcsh": true,
}

func isShellInterpreter(exe string) bool {
	return shellInterpreters[exe]
}

var wrappers = map[string]bool{
	"sudo": true, "doas": true, "env": true, "command": true,
	"exec": true, "nohup": true, "time": true, "nice": true,
}

func isWrapper(exe string) bool {
	return wrappers[exe]
}

// isLookup reports "command -v x", which resolves x without running it.
func isLookup(words []string, i int) bool {
	return words[i] == "command" && i+1 < len(words) &&
		(words[i+1] == "-v" || words[i+1] == "-V")
}

// sudo options that consume the following word.
var sudoArgFlags = map[string]bool{
	"-u": true, "-g": true, "-C": true, "-h": true, "-p": true, "-U": true,
	"-r": true, "-t": true, "-D": true,
}

// skipWrapperArgs returns the index of the first word after the wrapper's
// own options, assignments and operands.
func skipWrapperArgs(wrapper string, words []string, i int) int {
	for i < len(words) {
		w := words[i]
		switch {
		case wrapper == "env" && strings.Contains(w, "=") && !strings.HasPrefix(w, "-"):
			i++
		case wrapper == "nice" && (w == "-n"):
			i += 2
		case (wrapper == "sudo" || wrapper == "doas") && sudoArgFlags[w]:
			i += 2
		case strings.HasPrefix(w, "-"):
			i++
		default:
			return i
		}
	}
	return i
}

// extractInlineCode extracts the code argument from shells that accept
// inline code: bash -c 'code'.
func extractInlineCode(seg CommandSegment) string {
	if !seg.IsShell {
		return ""
	}
	if _, hasC := seg.Flags["c"]; hasC && len(seg.Args) > 0 {
		return seg.Args[0]
	}
	return ""
}
