package analyzer

import "strings"

// StructuralCheck matches one of the built-in dangerous patterns against a
// parsed command. It sees through flag reordering ("rm -r -f",
// "rm --recursive --force") and wrappers ("sudo rm -fr"), which the
// substring form of the same pattern misses.
type StructuralCheck func(parsed *ParsedCommand) bool

// builtinChecks maps default permission-gate pattern text to its
// structural counterpart.
var builtinChecks = map[string]StructuralCheck{
	"rm -rf":       rmRecursiveForce,
	"sudo":         superuser,
	"dd if=":       ddWrite,
	"mkfs.":        mkfs,
	"chmod -R 777": chmodRecursiveWorldWritable,
	"chown -R":     chownRecursive,
	"| sh":         pipeToShell,
}

// BuiltinCheck returns the structural check paired with pattern, if any.
func BuiltinCheck(pattern string) (StructuralCheck, bool) {
	c, ok := builtinChecks[pattern]
	return c, ok
}

func anySegment(parsed *ParsedCommand, pred func(CommandSegment) bool) bool {
	for _, seg := range AllSegments(parsed) {
		if pred(seg) {
			return true
		}
	}
	return false
}

func rmRecursiveForce(parsed *ParsedCommand) bool {
	return anySegment(parsed, func(seg CommandSegment) bool {
		if seg.Name != "rm" {
			return false
		}
		hasRecursive := hasFlag(seg.Flags, "r") || hasFlag(seg.Flags, "R") || hasFlag(seg.Flags, "recursive")
		hasForce := hasFlag(seg.Flags, "f") || hasFlag(seg.Flags, "force")
		return hasRecursive && hasForce
	})
}

func superuser(parsed *ParsedCommand) bool {
	return anySegment(parsed, func(seg CommandSegment) bool {
		if seg.Name == "sudo" {
			return true
		}
		for _, w := range seg.Wrappers {
			if w == "sudo" {
				return true
			}
		}
		return false
	})
}

func ddWrite(parsed *ParsedCommand) bool {
	return anySegment(parsed, func(seg CommandSegment) bool {
		if seg.Name != "dd" {
			return false
		}
		for _, arg := range seg.Args {
			if strings.HasPrefix(arg, "if=") {
				return true
			}
		}
		return false
	})
}

func mkfs(parsed *ParsedCommand) bool {
	return anySegment(parsed, func(seg CommandSegment) bool {
		return seg.Name == "mkfs" || strings.HasPrefix(seg.Name, "mkfs.")
	})
}

func chmodRecursiveWorldWritable(parsed *ParsedCommand) bool {
	return anySegment(parsed, func(seg CommandSegment) bool {
		if seg.Name != "chmod" {
			return false
		}
		if !hasFlag(seg.Flags, "R") && !hasFlag(seg.Flags, "recursive") {
			return false
		}
		for _, arg := range seg.Args {
			if isWorldWritableSymbolic(arg) {
				return true
			}
		}
		return false
	})
}

func chownRecursive(parsed *ParsedCommand) bool {
	return anySegment(parsed, func(seg CommandSegment) bool {
		return seg.Name == "chown" && (hasFlag(seg.Flags, "R") || hasFlag(seg.Flags, "recursive"))
	})
}

// pipeToShell detects anything piped into a shell interpreter reading stdin.
func pipeToShell(parsed *ParsedCommand) bool {
	return anySegment(parsed, func(seg CommandSegment) bool {
		return seg.IsShell && seg.PipedFrom != "" && !hasFlag(seg.Flags, "c")
	})
}

// hasFlag checks if a flag key exists in the flags map.
// Flags are stored with empty string values, so key existence is the test.
func hasFlag(flags map[string]string, key string) bool {
	_, ok := flags[key]
	return ok
}

func isWorldWritableSymbolic(mode string) bool {
	// Matches: 777, a+rwx, o+w, a+w, ugo+rwx, etc.
	mode = strings.ToLower(mode)
	if mode == "777" || mode == "0777" {
		return true
	}
	// Symbolic: "a+rwx", "a+w", "+rwx" (no user spec = all)
	if strings.Contains(mode, "a+") && strings.Contains(mode, "w") {
		return true
	}
	// "o+w": other+write is world writable
	if strings.Contains(mode, "o+") && strings.Contains(mode, "w") {
		return true
	}
	if strings.HasPrefix(mode, "+") && strings.Contains(mode, "w") {
		return true
	}
	return false
}
