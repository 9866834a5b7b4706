// Package jas holds grammar fragments shared between the full JAS-file
// parser (internal/jasparser) and the "jas { ... }" raw-assembly blocks
// the IJ parser (internal/ijparser) embeds inline, so both accept the
// same numeric-immediate literal syntax without duplicating it.
package jas

import (
	"strconv"

	"github.com/launix-de/ijvmc/internal/diag"
	"github.com/launix-de/ijvmc/internal/lexer"
	"github.com/launix-de/ijvmc/internal/token"
)

// ParseImmediate consumes one signed-byte-range numeric immediate:
// decimal, hex, or char literal, with an optional leading "-" (spec.md
// §4.4: "IINC and BIPUSH take a numeric immediate...in the signed byte
// range").
func ParseImmediate(l *lexer.Lexer) int32 {
	neg := false
	if l.Peek(0).Kind == token.Operator && l.Peek(0).Value == "-" {
		l.Discard()
		neg = true
	}
	tok := l.Get()
	var v int64
	var err error
	switch tok.Kind {
	case token.Decimal:
		v, err = strconv.ParseInt(tok.Value, 10, 64)
	case token.Hex:
		v, err = strconv.ParseInt(tok.Value[2:], 16, 64)
	case token.CharLit:
		v = int64([]byte(tok.Value)[0])
	default:
		diag.Fail(diag.ParseError, tok.Pos, "expected a numeric immediate, got %s %q", tok.Kind, tok.Value)
	}
	if err != nil {
		diag.Fail(diag.ParseError, tok.Pos, "bad immediate %q: %s", tok.Value, err)
	}
	if neg {
		v = -v
	}
	if v < -128 || v > 127 {
		diag.Fail(diag.SemanticError, tok.Pos, "immediate %d out of signed byte range", v)
	}
	return int32(v)
}

// ParseImmediateWide consumes the same decimal/hex/char syntax as
// ParseImmediate but accepts the full signed 32-bit range, for contexts
// that are not operand-byte-limited (a ".constant" block's values).
func ParseImmediateWide(l *lexer.Lexer) int32 {
	neg := false
	if l.Peek(0).Kind == token.Operator && l.Peek(0).Value == "-" {
		l.Discard()
		neg = true
	}
	tok := l.Get()
	var v int64
	var err error
	switch tok.Kind {
	case token.Decimal:
		v, err = strconv.ParseInt(tok.Value, 10, 64)
	case token.Hex:
		v, err = strconv.ParseInt(tok.Value[2:], 16, 64)
	case token.CharLit:
		v = int64([]byte(tok.Value)[0])
	default:
		diag.Fail(diag.ParseError, tok.Pos, "expected a numeric immediate, got %s %q", tok.Kind, tok.Value)
	}
	if err != nil {
		diag.Fail(diag.ParseError, tok.Pos, "bad immediate %q: %s", tok.Value, err)
	}
	if neg {
		v = -v
	}
	if v < -(1<<31) || v > (1<<31)-1 {
		diag.Fail(diag.SemanticError, tok.Pos, "immediate %d out of signed 32-bit range", v)
	}
	return int32(v)
}
