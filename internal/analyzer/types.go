package analyzer

// ParsedCommand is the structural representation of a shell command string.
type ParsedCommand struct {
	// Segments are the simple commands in depth-first source order,
	// across pipelines, lists, subshells, compound commands and
	// command substitutions.
	// "curl ... | bash" → 2 segments.
	Segments []CommandSegment

	// Operators seen between top-level segments: "|", "&&", "||".
	Operators []string

	// Subcommands found via indirect execution parsing (depth > 0).
	// E.g., for "bash -c 'rm -rf /'", the inner "rm -rf /" is a subcommand.
	Subcommands []*ParsedCommand

	// Fallback is set when the shell grammar could not parse the input and
	// Segments come from naive splitting, or when the input sat past the
	// "bash -c" depth limit and was not walked at all. Names from a fallback parse are
	// not trustworthy; callers should scan the raw string instead.
	Fallback bool
}

// CommandSegment is a single simple command.
type CommandSegment struct {
	Raw  string // original words joined by spaces
	Name string // leading command token, wrappers removed (e.g. "rm" for "sudo rm")
	// Literal is false when the leading token is not a plain word
	// (e.g. "$CMD" or "$(which npm)").
	Literal   bool
	Wrappers  []string          // transparent wrappers in front of Name, e.g. ["sudo"]
	Args      []string          // positional arguments
	Flags     map[string]string // normalized flags: key=flag name, value=flag value (or "")
	IsShell   bool              // true if Name is a known shell interpreter
	PipedFrom string            // name of the command piped into this one, if any
}

// Names returns the wrapper names followed by the command name.
func (s CommandSegment) Names() []string {
	if !s.Literal || s.Name == "" {
		return append([]string(nil), s.Wrappers...)
	}
	out := make([]string, 0, len(s.Wrappers)+1)
	out = append(out, s.Wrappers...)
	return append(out, s.Name)
}

// Untrusted reports whether this command or any nested shell body fell back
// to naive splitting.
func (pc *ParsedCommand) Untrusted() bool {
	return anyFallback(pc)
}
