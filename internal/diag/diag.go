// Package diag implements the toolchain's fatal-diagnostic error kinds
// (spec.md §7) and a tiny Chrome-trace-event logger, used by cmd/ij
// under "-d" to record phase timings.
package diag

import (
	"fmt"

	"github.com/launix-de/ijvmc/internal/token"
)

// Kind distinguishes the four fatal diagnostic categories from spec.md §7.
type Kind int

const (
	LexError Kind = iota
	ParseError
	SemanticError
	LinkError
)

func (k Kind) String() string {
	switch k {
	case LexError:
		return "lex error"
	case ParseError:
		return "parse error"
	case SemanticError:
		return "semantic error"
	case LinkError:
		return "link error"
	default:
		return "error"
	}
}

// Error is the single fatal-diagnostic type every compiler phase raises.
// Compilation never continues past one (spec.md §7) — callers panic with
// an *Error, and each stage's entry point (the parsers, lowering, each
// backend's Compile, the disassembler) recovers it and returns it as an
// error, which cmd/ij prints before exiting non-zero.
type Error struct {
	Kind Kind
	Pos  token.Pos // zero value if no location is available
	Msg  string
}

func (e *Error) Error() string {
	if e.Pos.File == "" {
		return fmt.Sprintf("%s: %s", e.Kind, e.Msg)
	}
	return fmt.Sprintf("%s: %s: %s", e.Pos, e.Kind, e.Msg)
}

// Fail constructs and panics with a diagnostic. Every phase uses this
// instead of a plain panic so the driver can always recover a *diag.Error.
func Fail(kind Kind, pos token.Pos, format string, args ...any) {
	panic(&Error{Kind: kind, Pos: pos, Msg: fmt.Sprintf(format, args...)})
}

// FailNoPos raises a diagnostic with no known source location (e.g. a
// link error discovered only after parsing finished).
func FailNoPos(kind Kind, format string, args ...any) {
	panic(&Error{Kind: kind, Msg: fmt.Sprintf(format, args...)})
}
