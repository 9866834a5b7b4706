// Package jasparser implements the flat textual-assembly frontend (spec.md
// §4.4): it never builds an AST, it drives an asm.Sink directly, one line
// at a time.
package jasparser

import (
	"strings"

	"github.com/launix-de/ijvmc/internal/asm"
	"github.com/launix-de/ijvmc/internal/diag"
	"github.com/launix-de/ijvmc/internal/jas"
	"github.com/launix-de/ijvmc/internal/lexer"
	"github.com/launix-de/ijvmc/internal/opcode"
	"github.com/launix-de/ijvmc/internal/token"
)

// ParseFile tokenizes path as JAS text and drives sink with its contents.
func ParseFile(path string, sink asm.Sink) error {
	l := lexer.NewLexer(nil, token.Whitespace, token.Comment)
	if err := l.AddSource(path); err != nil {
		return err
	}
	return parse(l, sink)
}

// ParseString tokenizes src (named file for diagnostics) as JAS text.
func ParseString(file, src string, sink asm.Sink) error {
	l := lexer.NewLexer(nil, token.Whitespace, token.Comment)
	if err := l.AddString(file, src); err != nil {
		return err
	}
	return parse(l, sink)
}

func parse(l *lexer.Lexer, sink asm.Sink) (err error) {
	defer func() {
		if r := recover(); r != nil {
			if de, ok := r.(*diag.Error); ok {
				err = de
				return
			}
			panic(r)
		}
	}()
	p := &parser{l: l, sink: sink}
	p.topLevel()
	return nil
}

type parser struct {
	l    *lexer.Lexer
	sink asm.Sink
}

func (p *parser) skipBlankLines() {
	for p.l.Peek(0).Kind == token.Newline {
		p.l.Discard()
	}
}

// directive consumes a leading Period and reassembles a hyphenated
// directive word ("end-constant" etc.) from the Identifier/Operator("-")
// tokens the generic tokenizer splits it into.
func (p *parser) directive() string {
	p.l.Expect(token.Period)
	var sb strings.Builder
	sb.WriteString(p.l.Expect(token.Identifier).Value)
	for p.l.Peek(0).Kind == token.Operator && p.l.Peek(0).Value == "-" {
		p.l.Discard()
		sb.WriteByte('-')
		sb.WriteString(p.l.Expect(token.Identifier).Value)
	}
	return sb.String()
}

func (p *parser) topLevel() {
	p.skipBlankLines()
	for p.l.Peek(0).Kind != token.EOF {
		d := p.directive()
		switch d {
		case "constant":
			p.constantBlock()
		case "main":
			p.methodBody("main", nil)
		case "method":
			p.methodDecl()
		default:
			diag.Fail(diag.ParseError, p.l.Peek(0).Pos, "unexpected top-level directive %q", d)
		}
		p.skipBlankLines()
	}
}

func (p *parser) endOfLine() {
	if p.l.Peek(0).Kind != token.EOF {
		p.l.Expect(token.Newline)
	}
	p.skipBlankLines()
}

func (p *parser) constantBlock() {
	p.endOfLine()
	for {
		if p.l.Peek(0).Kind == token.Period {
			break
		}
		name := p.l.Expect(token.Identifier).Value
		p.l.Expect(token.Operator, "=")
		v := jas.ParseImmediateWide(p.l)
		sink := p.sink
		sink.Constant(name, v)
		p.endOfLine()
	}
	got := p.directive()
	if got != "end-constant" {
		diag.Fail(diag.ParseError, p.l.Peek(0).Pos, "expected .end-constant, got .%s", got)
	}
	p.endOfLine()
}

func (p *parser) methodDecl() {
	name := p.l.Expect(token.Identifier).Value
	p.l.Expect(token.LParen)
	var args []string
	if p.l.Peek(0).Kind != token.RParen {
		args = append(args, p.l.Expect(token.Identifier).Value)
		for p.l.Peek(0).Kind == token.Comma {
			p.l.Discard()
			args = append(args, p.l.Expect(token.Identifier).Value)
		}
	}
	p.l.Expect(token.RParen)
	p.methodBody(name, args)
}

func (p *parser) methodBody(name string, args []string) {
	p.endOfLine()

	var locals []string
	if p.atDirective("var") {
		p.directive()
		p.endOfLine()
		if p.l.Peek(0).Kind != token.Period {
			locals = append(locals, p.l.Expect(token.Identifier).Value)
			for p.l.Peek(0).Kind == token.Comma {
				p.l.Discard()
				locals = append(locals, p.l.Expect(token.Identifier).Value)
			}
			p.endOfLine()
		}
		got := p.directive()
		if got != "end-var" {
			diag.Fail(diag.ParseError, p.l.Peek(0).Pos, "expected .end-var, got .%s", got)
		}
		p.endOfLine()
	}

	p.sink.Function(name, args, locals)

	endWord := "end-main"
	if name != "main" {
		endWord = "end-method"
	}
	for !p.atDirective(endWord) {
		p.line()
		p.endOfLine()
	}
	p.directive()
	p.endOfLine()
}

// atDirective reports whether the next tokens are "." word without
// consuming anything, by peeking two tokens ahead.
func (p *parser) atDirective(word string) bool {
	if p.l.Peek(0).Kind != token.Period {
		return false
	}
	return p.l.Peek(1).Value == firstSegment(word)
}

func firstSegment(word string) string {
	if i := strings.IndexByte(word, '-'); i >= 0 {
		return word[:i]
	}
	return word
}

func (p *parser) line() {
	if p.l.Peek(0).Kind == token.Identifier && p.l.Peek(1).Kind == token.Colon {
		name := p.l.Get().Value
		p.l.Discard() // ':'
		p.sink.Label(name)
		if p.l.Peek(0).Kind == token.Newline || p.l.Peek(0).Kind == token.EOF {
			return
		}
	}
	tok := p.l.Expect(token.Identifier)
	op, ok := opcode.Lookup(tok.Value)
	if !ok {
		diag.Fail(diag.SemanticError, tok.Pos, "unknown mnemonic %q", tok.Value)
	}
	switch opcode.Shape(op) {
	case opcode.ArgNone:
		p.sink.Emit(op, "", 0)
	case opcode.ArgByte:
		p.sink.Emit(op, "", jas.ParseImmediate(p.l))
	case opcode.ArgVar, opcode.ArgLabel, opcode.ArgConst, opcode.ArgFunc:
		ident := p.l.Expect(token.Identifier).Value
		p.sink.Emit(op, ident, 0)
	case opcode.ArgVarImm:
		ident := p.l.Expect(token.Identifier).Value
		imm := jas.ParseImmediate(p.l)
		p.sink.Emit(op, ident, imm)
	}
}
