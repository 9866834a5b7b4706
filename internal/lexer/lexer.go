// Package lexer turns IJ/JAS source text into a token stream, and
// implements spec.md §4.2's "sources form a stack" inline-import model:
// add_source pushes a new file resolved relative to the top-of-stack
// file's directory, and the cache transparently drains it before falling
// back to the enclosing file once it is exhausted.
package lexer

import (
	"path/filepath"

	"github.com/launix-de/ijvmc/internal/diag"
	"github.com/launix-de/ijvmc/internal/token"
)

// sourceFrame is one entry in the lexer's source stack: a fully tokenized
// file plus a read cursor into it.
type sourceFrame struct {
	file string
	dir  string
	toks []token.Token
	pos  int
}

// Lexer is a stateful cursor over one or more source files, with a
// lookahead cache and a configurable skip-set (whitespace/comments by
// default) and keyword-set (per frontend: IJ keywords differ from JAS's).
type Lexer struct {
	keywords map[string]bool
	skip     map[token.Kind]bool
	stack    []*sourceFrame
	cache    []token.Token
}

// NewLexer returns a Lexer that recognises the given keywords and, unless
// overridden, skips Whitespace, Newline and Comment tokens — the shape
// every IJ/JAS consumer wants. Pass skipKinds to replace the default set
// (e.g. JAS's line-oriented grammar keeps Newline significant).
func NewLexer(keywords []string, skipKinds ...token.Kind) *Lexer {
	kw := make(map[string]bool, len(keywords))
	for _, k := range keywords {
		kw[k] = true
	}
	skip := map[token.Kind]bool{
		token.Whitespace: true,
		token.Newline:    true,
		token.Comment:    true,
	}
	if len(skipKinds) > 0 {
		skip = make(map[token.Kind]bool, len(skipKinds))
		for _, k := range skipKinds {
			skip[k] = true
		}
	}
	return &Lexer{keywords: kw, skip: skip}
}

// AddString pushes an in-memory source under the given synthetic file
// name, skipping the filesystem entirely — used by the parsers'
// ParseString entry points and by tests.
func (l *Lexer) AddString(file, src string) error {
	toks, err := tokenizeAll(file, src, l.keywords)
	if err != nil {
		return err
	}
	l.stack = append(l.stack, &sourceFrame{file: file, dir: ".", toks: toks})
	return nil
}

// AddSource pushes path onto the source stack, resolving it relative to
// the directory of the file currently on top of the stack (or the
// working directory, for the first file). Tokens from the new frame are
// returned by Peek/Get before the lexer falls back to the frame beneath
// it — this is the entire "import" mechanism (spec.md §4.2, §4.3).
func (l *Lexer) AddSource(path string) error {
	dir := "."
	if len(l.stack) > 0 {
		dir = l.stack[len(l.stack)-1].dir
	}
	resolved := path
	if !filepath.IsAbs(path) {
		resolved = filepath.Join(dir, path)
	}
	src, err := readFile(resolved)
	if err != nil {
		return err
	}
	toks, err := tokenizeAll(resolved, src, l.keywords)
	if err != nil {
		return err
	}
	l.stack = append(l.stack, &sourceFrame{
		file: resolved,
		dir:  filepath.Dir(resolved),
		toks: toks,
	})
	return nil
}

// pullNext drains the cache-less path: it advances through the stack of
// frames, auto-popping exhausted ones, applying the skip-set, until it
// finds a token to return or the whole stack is empty.
func (l *Lexer) pullNext() (token.Token, bool) {
	for len(l.stack) > 0 {
		top := l.stack[len(l.stack)-1]
		if top.pos >= len(top.toks) {
			l.stack = l.stack[:len(l.stack)-1]
			continue
		}
		tok := top.toks[top.pos]
		top.pos++
		if tok.Kind == token.EOF && len(l.stack) > 1 {
			// An inner file's EOF just pops back to the enclosing file;
			// it is not reported unless it is the outermost source.
			l.stack = l.stack[:len(l.stack)-1]
			continue
		}
		if l.skip[tok.Kind] {
			continue
		}
		return tok, true
	}
	return token.Token{Kind: token.EOF}, false
}

// fill ensures the cache holds at least n+1 tokens (for 0-based Peek(n)).
func (l *Lexer) fill(n int) {
	for len(l.cache) <= n {
		tok, ok := l.pullNext()
		l.cache = append(l.cache, tok)
		if !ok {
			break
		}
	}
}

// Peek returns the nth lookahead token (0 is the next token to be
// consumed) without consuming anything.
func (l *Lexer) Peek(n int) token.Token {
	l.fill(n)
	if n < len(l.cache) {
		return l.cache[n]
	}
	return token.Token{Kind: token.EOF}
}

// Get consumes and returns the next token.
func (l *Lexer) Get() token.Token {
	tok := l.Peek(0)
	if len(l.cache) > 0 {
		l.cache = l.cache[1:]
	}
	return tok
}

// Discard consumes the next token without returning it — used after a
// lookahead decision already read the value via Peek.
func (l *Lexer) Discard() {
	l.Get()
}

// Expect consumes the next token if it matches kind (and, when given, one
// of values); otherwise it raises a structured parse error naming what
// was expected and where the mismatch occurred (spec.md §4.2).
func (l *Lexer) Expect(kind token.Kind, values ...string) token.Token {
	tok := l.Peek(0)
	if tok.Kind != kind {
		diag.Fail(diag.ParseError, tok.Pos, "expected %s, got %s %q", kind, tok.Kind, tok.Value)
	}
	if len(values) > 0 {
		matched := false
		for _, v := range values {
			if tok.Value == v {
				matched = true
				break
			}
		}
		if !matched {
			diag.Fail(diag.ParseError, tok.Pos, "expected %s in %v, got %q", kind, values, tok.Value)
		}
	}
	l.Discard()
	return tok
}
