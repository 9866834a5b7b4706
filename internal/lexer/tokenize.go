package lexer

import (
	"fmt"
	"strings"

	"github.com/launix-de/ijvmc/internal/diag"
	"github.com/launix-de/ijvmc/internal/token"
)

// tokenizeAll scans one complete source file into a flat token slice: a
// single index-driven loop with an explicit state variable rather than a
// table of regexes, extended with line/column tracking and the richer
// token kinds spec.md §4.2 calls for.
func tokenizeAll(file, src string, keywords map[string]bool) ([]token.Token, error) {
	var toks []token.Token
	line, col := 1, 1
	runes := []rune(src)
	i := 0
	n := len(runes)

	advance := func() rune {
		r := runes[i]
		i++
		if r == '\n' {
			line++
			col = 1
		} else {
			col++
		}
		return r
	}
	peekAt := func(off int) rune {
		if i+off >= n {
			return 0
		}
		return runes[i+off]
	}
	emit := func(kind token.Kind, value string, startLine, startCol, endCol int) {
		toks = append(toks, token.Token{Kind: kind, Value: value, Pos: token.Pos{
			File: file, Line: startLine, ColStart: startCol, ColEnd: endCol,
		}})
	}

	isIdentStart := func(r rune) bool {
		return r == '_' || r == '$' || (r >= 'a' && r <= 'z') || (r >= 'A' && r <= 'Z')
	}
	isIdentCont := func(r rune) bool {
		return isIdentStart(r) || (r >= '0' && r <= '9')
	}
	isDigit := func(r rune) bool { return r >= '0' && r <= '9' }
	isHexDigit := func(r rune) bool {
		return isDigit(r) || (r >= 'a' && r <= 'f') || (r >= 'A' && r <= 'F')
	}

	escapeByte := func(r rune) (byte, bool) {
		switch r {
		case '"':
			return '"', true
		case '\\':
			return '\\', true
		case '/':
			return '/', true
		case 'b':
			return '\b', true
		case 'f':
			return '\f', true
		case 'n':
			return '\n', true
		case 'r':
			return '\r', true
		case 't':
			return '\t', true
		case '0':
			return 0, true
		}
		return 0, false
	}

	for i < n {
		startLine, startCol := line, col
		r := runes[i]

		switch {
		case r == ' ' || r == '\t' || r == '\r':
			j := i
			for i < n && (runes[i] == ' ' || runes[i] == '\t' || runes[i] == '\r') {
				advance()
			}
			emit(token.Whitespace, string(runes[j:i]), startLine, startCol, col)

		case r == '\n':
			advance()
			emit(token.Newline, "\n", startLine, startCol, col)

		case r == '/' && peekAt(1) == '/':
			j := i
			for i < n && runes[i] != '\n' {
				advance()
			}
			emit(token.Comment, string(runes[j:i]), startLine, startCol, col)

		case r == '"':
			advance() // opening quote
			var sb strings.Builder
			for {
				if i >= n {
					return nil, (&diag.Error{Kind: diag.LexError, Pos: token.Pos{File: file, Line: startLine, ColStart: startCol},
						Msg: "unterminated string literal"})
				}
				c := runes[i]
				if c == '"' {
					advance()
					break
				}
				if c == '\\' {
					advance()
					if i >= n {
						return nil, (&diag.Error{Kind: diag.LexError, Pos: token.Pos{File: file, Line: line, ColStart: col},
							Msg: "unterminated escape sequence"})
					}
					esc := advance()
					b, ok := escapeByte(esc)
					if !ok {
						return nil, (&diag.Error{Kind: diag.LexError, Pos: token.Pos{File: file, Line: line, ColStart: col},
							Msg: fmt.Sprintf("bad escape sequence '\\%c'", esc)})
					}
					sb.WriteByte(b)
					continue
				}
				sb.WriteRune(c)
				advance()
			}
			emit(token.StringLit, sb.String(), startLine, startCol, col)

		case r == '\'':
			advance() // opening quote
			if i >= n {
				return nil, (&diag.Error{Kind: diag.LexError, Pos: token.Pos{File: file, Line: startLine, ColStart: startCol},
					Msg: "unterminated char literal"})
			}
			var b byte
			c := advance()
			if c == '\\' {
				if i >= n {
					return nil, (&diag.Error{Kind: diag.LexError, Pos: token.Pos{File: file, Line: line, ColStart: col},
						Msg: "unterminated escape sequence"})
				}
				esc := advance()
				ok2 := false
				b, ok2 = escapeByte(esc)
				if !ok2 {
					return nil, (&diag.Error{Kind: diag.LexError, Pos: token.Pos{File: file, Line: line, ColStart: col},
						Msg: fmt.Sprintf("bad escape sequence '\\%c'", esc)})
				}
			} else {
				b = byte(c)
			}
			if i >= n || runes[i] != '\'' {
				return nil, (&diag.Error{Kind: diag.LexError, Pos: token.Pos{File: file, Line: line, ColStart: col},
					Msg: "expected closing ' in char literal"})
			}
			advance() // closing quote
			emit(token.CharLit, string(b), startLine, startCol, col)

		case r == '0' && (peekAt(1) == 'x' || peekAt(1) == 'X'):
			j := i
			advance()
			advance()
			for i < n && isHexDigit(runes[i]) {
				advance()
			}
			emit(token.Hex, string(runes[j:i]), startLine, startCol, col)

		case isDigit(r):
			j := i
			for i < n && isDigit(runes[i]) {
				advance()
			}
			emit(token.Decimal, string(runes[j:i]), startLine, startCol, col)

		case isIdentStart(r):
			j := i
			for i < n && isIdentCont(runes[i]) {
				advance()
			}
			word := string(runes[j:i])
			if keywords[word] {
				emit(token.Keyword, word, startLine, startCol, col)
			} else {
				emit(token.Identifier, word, startLine, startCol, col)
			}

		case strings.ContainsRune("+-|&*/<>=!", r):
			j := i
			advance()
			if i < n && runes[i] == '=' {
				advance()
			}
			emit(token.Operator, string(runes[j:i]), startLine, startCol, col)

		case r == '(':
			advance()
			emit(token.LParen, "(", startLine, startCol, col)
		case r == ')':
			advance()
			emit(token.RParen, ")", startLine, startCol, col)
		case r == '[':
			advance()
			emit(token.LBracket, "[", startLine, startCol, col)
		case r == ']':
			advance()
			emit(token.RBracket, "]", startLine, startCol, col)
		case r == '{':
			advance()
			emit(token.LBrace, "{", startLine, startCol, col)
		case r == '}':
			advance()
			emit(token.RBrace, "}", startLine, startCol, col)
		case r == ',':
			advance()
			emit(token.Comma, ",", startLine, startCol, col)
		case r == '.':
			advance()
			emit(token.Period, ".", startLine, startCol, col)
		case r == ';':
			advance()
			emit(token.Semicolon, ";", startLine, startCol, col)
		case r == ':':
			advance()
			emit(token.Colon, ":", startLine, startCol, col)

		default:
			return nil, (&diag.Error{Kind: diag.LexError, Pos: token.Pos{File: file, Line: startLine, ColStart: startCol},
				Msg: fmt.Sprintf("unrecognised symbol '%c'", r)})
		}
	}
	emit(token.EOF, "", line, col, col)
	return toks, nil
}
