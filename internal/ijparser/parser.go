// Package ijparser implements the recursive-descent parser for IJ
// source, producing an *ast.Program. Grammar and magic-keyword lowering
// follow spec.md §4.3 exactly; precedence is hand-coded as a chain of
// mutually-recursive parse functions rather than a table.
package ijparser

import (
	"strconv"

	"github.com/launix-de/ijvmc/internal/ast"
	"github.com/launix-de/ijvmc/internal/diag"
	"github.com/launix-de/ijvmc/internal/jas"
	"github.com/launix-de/ijvmc/internal/lexer"
	"github.com/launix-de/ijvmc/internal/opcode"
	"github.com/launix-de/ijvmc/internal/token"
)

// Keywords is the fixed IJ keyword set passed to lexer.NewLexer.
var Keywords = []string{
	"function", "constant", "import", "var", "return",
	"if", "else", "for", "while", "break", "continue", "jas",
}

// ParseFile tokenizes and parses path (plus any files it imports) into a
// Program.
func ParseFile(path string) (*ast.Program, error) {
	l := lexer.NewLexer(Keywords)
	if err := l.AddSource(path); err != nil {
		return nil, err
	}
	return parseProgram(l)
}

// ParseString parses src as a single in-memory source named file — used
// by tests.
func ParseString(file, src string) (*ast.Program, error) {
	l := lexer.NewLexer(Keywords)
	if err := l.AddString(file, src); err != nil {
		return nil, err
	}
	return parseProgram(l)
}

type parser struct {
	l   *lexer.Lexer
	prg *ast.Program
}

func parseProgram(l *lexer.Lexer) (prg *ast.Program, err error) {
	defer func() {
		if r := recover(); r != nil {
			if de, ok := r.(*diag.Error); ok {
				err = de
				return
			}
			panic(r)
		}
	}()
	p := &parser{l: l, prg: &ast.Program{}}
	for p.l.Peek(0).Kind != token.EOF {
		p.topLevel()
	}
	return p.prg, nil
}

func (p *parser) topLevel() {
	tok := p.l.Peek(0)
	switch {
	case tok.Kind == token.Keyword && tok.Value == "constant":
		p.constant()
	case tok.Kind == token.Keyword && tok.Value == "import":
		p.importStmt()
	case tok.Kind == token.Keyword && tok.Value == "function":
		p.function()
	default:
		diag.Fail(diag.ParseError, tok.Pos, "expected 'constant', 'import' or 'function', got %q", tok.Value)
	}
}

func (p *parser) importStmt() {
	p.l.Expect(token.Keyword, "import")
	pathTok := p.l.Expect(token.StringLit)
	if err := p.l.AddSource(pathTok.Value); err != nil {
		diag.Fail(diag.ParseError, pathTok.Pos, "import %q: %s", pathTok.Value, err)
	}
}

func (p *parser) constant() {
	p.l.Expect(token.Keyword, "constant")
	name := p.l.Expect(token.Identifier)
	p.l.Expect(token.Operator, "=")
	v := p.value()
	p.l.Expect(token.Semicolon)
	if !p.prg.AddConstant(&ast.Constant{Name: name.Value, Value: v}) {
		diag.Fail(diag.SemanticError, name.Pos, "duplicate constant %q", name.Value)
	}
}

func (p *parser) value() int32 {
	neg := false
	if p.l.Peek(0).Kind == token.Operator && p.l.Peek(0).Value == "-" {
		p.l.Discard()
		neg = true
	}
	tok := p.l.Get()
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
		diag.Fail(diag.ParseError, tok.Pos, "expected an integer value, got %s %q", tok.Kind, tok.Value)
	}
	if err != nil {
		diag.Fail(diag.ParseError, tok.Pos, "bad integer literal %q: %s", tok.Value, err)
	}
	if neg {
		v = -v
	}
	return int32(v)
}

func (p *parser) function() {
	p.l.Expect(token.Keyword, "function")
	name := p.l.Expect(token.Identifier)
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

	fn := &ast.Function{Name: name.Value, Args: args}
	if p.l.Peek(0).Kind == token.Keyword && p.l.Peek(0).Value == "jas" {
		p.l.Discard()
		fn.Jas = true
		fn.JasBody = p.jasBlock()
	} else {
		fn.Body = p.compStmt()
	}
	if !p.prg.AddFunction(fn) {
		diag.Fail(diag.SemanticError, name.Pos, "duplicate function %q", name.Value)
	}
}

// jasBlock parses a "{ ... }" body of raw JAS mnemonics and labels, used
// by `function f() jas { ... }` (spec.md §4.3). Mnemonics are ordinary
// identifiers here — the IJ lexer never treats them as keywords — so
// this shares its per-instruction grammar with internal/jas's line
// grammar rather than duplicating a separate mnemonic table.
func (p *parser) jasBlock() *ast.Stmt {
	p.l.Expect(token.LBrace)
	var stmts []*ast.Stmt
	for p.l.Peek(0).Kind != token.RBrace {
		stmts = append(stmts, p.jasLine())
	}
	p.l.Expect(token.RBrace)
	return ast.Comp(stmts...)
}

func (p *parser) jasLine() *ast.Stmt {
	name := p.l.Expect(token.Identifier)
	if p.l.Peek(0).Kind == token.Colon {
		p.l.Discard()
		return &ast.Stmt{Tag: ast.StmtLabel, Name: name.Value}
	}
	op, ok := opcode.Lookup(name.Value)
	if !ok {
		diag.Fail(diag.SemanticError, name.Pos, "unknown JAS mnemonic %q", name.Value)
	}
	s := &ast.Stmt{Tag: ast.StmtJas, JasOp: op}
	switch opcode.Shape(op) {
	case opcode.ArgByte, opcode.ArgConst, opcode.ArgFunc, opcode.ArgLabel:
		s.JasIdent, s.JasHasImm, s.JasImm = p.jasOperand()
	case opcode.ArgVar:
		s.JasIdent = p.l.Expect(token.Identifier).Value
	case opcode.ArgVarImm:
		s.JasIdent = p.l.Expect(token.Identifier).Value
		s.JasHasImm = true
		s.JasImm = jas.ParseImmediate(p.l)
	}
	p.l.Expect(token.Semicolon)
	return s
}

// jasOperand parses either a bare identifier (label/constant/function
// name) or a numeric immediate, for the opcodes that accept either
// (BIPUSH takes only an immediate; LDC_W/INVOKEVIRTUAL/GOTO/IF*/ICMPEQ
// take only an identifier — the caller's shape already narrowed this,
// this just parses whichever token is present).
func (p *parser) jasOperand() (ident string, hasImm bool, imm int32) {
	if p.l.Peek(0).Kind == token.Identifier {
		return p.l.Get().Value, false, 0
	}
	return "", true, jas.ParseImmediate(p.l)
}

func (p *parser) compStmt() *ast.Stmt {
	if p.l.Peek(0).Kind == token.LBrace {
		p.l.Discard()
		var stmts []*ast.Stmt
		for p.l.Peek(0).Kind != token.RBrace {
			stmts = append(stmts, p.stmt())
		}
		p.l.Expect(token.RBrace)
		return ast.Comp(stmts...)
	}
	return ast.Comp(p.stmt())
}

func (p *parser) stmt() *ast.Stmt {
	tok := p.l.Peek(0)
	if tok.Kind == token.Keyword {
		switch tok.Value {
		case "for":
			return p.forStmt()
		case "while":
			return p.whileStmt()
		case "if":
			return p.ifStmt()
		case "break":
			p.l.Discard()
			p.l.Expect(token.Semicolon)
			return &ast.Stmt{Tag: ast.StmtBreak}
		case "continue":
			p.l.Discard()
			p.l.Expect(token.Semicolon)
			return &ast.Stmt{Tag: ast.StmtContinue}
		case "var":
			s := p.varDecl()
			p.l.Expect(token.Semicolon)
			return s
		case "return":
			p.l.Discard()
			var e *ast.Expr
			if p.l.Peek(0).Kind != token.Semicolon {
				e = p.expr()
			}
			p.l.Expect(token.Semicolon)
			return &ast.Stmt{Tag: ast.StmtRet, Expr: e}
		}
	}
	// a bare label (IDENT ":") inside otherwise-IJ code, or an expression
	// statement.
	if tok.Kind == token.Identifier && p.l.Peek(1).Kind == token.Colon {
		p.l.Discard()
		p.l.Discard()
		return &ast.Stmt{Tag: ast.StmtLabel, Name: tok.Value}
	}
	e := p.expr()
	p.l.Expect(token.Semicolon)
	return &ast.Stmt{Tag: ast.StmtExprStmt, Expr: e, Pop: true}
}

func (p *parser) varDecl() *ast.Stmt {
	p.l.Expect(token.Keyword, "var")
	name := p.l.Expect(token.Identifier)
	p.l.Expect(token.Operator, "=")
	e := p.expr()
	return &ast.Stmt{Tag: ast.StmtVar, Name: name.Value, Expr: e}
}

func (p *parser) forStmt() *ast.Stmt {
	p.l.Expect(token.Keyword, "for")
	p.l.Expect(token.LParen)
	var init *ast.Stmt
	if p.l.Peek(0).Kind != token.Semicolon {
		if p.l.Peek(0).Kind == token.Keyword && p.l.Peek(0).Value == "var" {
			init = p.varDecl()
		} else {
			init = &ast.Stmt{Tag: ast.StmtExprStmt, Expr: p.expr(), Pop: true}
		}
	}
	p.l.Expect(token.Semicolon)
	var cond *ast.Expr
	if p.l.Peek(0).Kind != token.Semicolon {
		cond = p.expr()
	}
	p.l.Expect(token.Semicolon)
	var update *ast.Stmt
	if p.l.Peek(0).Kind != token.RParen {
		update = &ast.Stmt{Tag: ast.StmtExprStmt, Expr: p.expr(), Pop: true}
	}
	p.l.Expect(token.RParen)
	body := p.compStmt()
	return &ast.Stmt{Tag: ast.StmtFor, Init: init, Cond: cond, Update: update, Body: body}
}

func (p *parser) whileStmt() *ast.Stmt {
	p.l.Expect(token.Keyword, "while")
	p.l.Expect(token.LParen)
	var cond *ast.Expr
	if p.l.Peek(0).Kind != token.RParen {
		cond = p.expr()
	}
	p.l.Expect(token.RParen)
	body := p.compStmt()
	return &ast.Stmt{Tag: ast.StmtFor, Cond: cond, Body: body}
}

func (p *parser) ifStmt() *ast.Stmt {
	p.l.Expect(token.Keyword, "if")
	p.l.Expect(token.LParen)
	cond := p.expr()
	p.l.Expect(token.RParen)
	then := p.compStmt()
	var els *ast.Stmt
	if p.l.Peek(0).Kind == token.Keyword && p.l.Peek(0).Value == "else" {
		p.l.Discard()
		els = p.compStmt()
	}
	return &ast.Stmt{Tag: ast.StmtIf, Cond: cond, Then: then, Else: els}
}

// --- expression grammar: expr -> compare -> logic -> arith -> mul -> basic ---

var assignOps = map[string]bool{"=": true, "+=": true, "-=": true, "&=": true, "|=": true}
var compareOps = map[string]bool{"==": true, "!=": true, "<": true, ">": true, "<=": true, ">=": true}
var logicOps = map[string]bool{"&": true, "|": true}
var arithOps = map[string]bool{"+": true, "-": true}

func (p *parser) expr() *ast.Expr {
	left := p.compare()
	for p.l.Peek(0).Kind == token.Operator && assignOps[p.l.Peek(0).Value] {
		op := p.l.Get().Value
		right := p.compare()
		left = &ast.Expr{Tag: ast.ExprOp, Op: op, Left: left, Right: right}
	}
	return left
}

func (p *parser) compare() *ast.Expr {
	left := p.logic()
	for p.l.Peek(0).Kind == token.Operator && compareOps[p.l.Peek(0).Value] {
		op := p.l.Get().Value
		right := p.logic()
		left = &ast.Expr{Tag: ast.ExprOp, Op: op, Left: left, Right: right}
	}
	return left
}

func (p *parser) logic() *ast.Expr {
	left := p.arith()
	for p.l.Peek(0).Kind == token.Operator && logicOps[p.l.Peek(0).Value] {
		op := p.l.Get().Value
		right := p.arith()
		left = &ast.Expr{Tag: ast.ExprOp, Op: op, Left: left, Right: right}
	}
	return left
}

func (p *parser) arith() *ast.Expr {
	left := p.mul()
	for p.l.Peek(0).Kind == token.Operator && arithOps[p.l.Peek(0).Value] {
		op := p.l.Get().Value
		right := p.mul()
		left = &ast.Expr{Tag: ast.ExprOp, Op: op, Left: left, Right: right}
	}
	return left
}

func (p *parser) mul() *ast.Expr {
	left := p.basic()
	for p.l.Peek(0).Kind == token.Operator && p.l.Peek(0).Value == "*" {
		p.l.Discard()
		right := p.basic()
		left = &ast.Expr{Tag: ast.ExprOp, Op: "*", Left: left, Right: right}
	}
	return left
}

func (p *parser) basic() *ast.Expr {
	neg := false
	if p.l.Peek(0).Kind == token.Operator && p.l.Peek(0).Value == "-" {
		p.l.Discard()
		neg = true
	}

	var e *ast.Expr
	tok := p.l.Peek(0)
	switch {
	case tok.Kind == token.Identifier && isMagic(tok.Value):
		e = p.magic()
	case tok.Kind == token.LParen:
		p.l.Discard()
		e = p.expr()
		p.l.Expect(token.RParen)
	case tok.Kind == token.Decimal || tok.Kind == token.Hex || tok.Kind == token.CharLit:
		e = &ast.Expr{Tag: ast.ExprValue, Int32: p.value2(tok)}
	case tok.Kind == token.Identifier:
		p.l.Discard()
		if p.l.Peek(0).Kind == token.LParen {
			p.l.Discard()
			var args []*ast.Expr
			if p.l.Peek(0).Kind != token.RParen {
				args = append(args, p.expr())
				for p.l.Peek(0).Kind == token.Comma {
					p.l.Discard()
					args = append(args, p.expr())
				}
			}
			p.l.Expect(token.RParen)
			e = &ast.Expr{Tag: ast.ExprCall, FuncName: tok.Value, Args: args}
		} else {
			e = &ast.Expr{Tag: ast.ExprIdent, Name: tok.Value}
		}
	default:
		diag.Fail(diag.ParseError, tok.Pos, "unexpected token %s %q in expression", tok.Kind, tok.Value)
	}

	for p.l.Peek(0).Kind == token.LBracket {
		p.l.Discard()
		idx := p.expr()
		p.l.Expect(token.RBracket)
		e = &ast.Expr{Tag: ast.ExprArrAccess, Array: e, Index: idx}
	}

	if neg {
		e = &ast.Expr{Tag: ast.ExprOp, Op: "-", Left: &ast.Expr{Tag: ast.ExprValue, Int32: 0}, Right: e}
	}
	return e
}

// value2 consumes a value token already peeked (Decimal/Hex/CharLit).
func (p *parser) value2(tok token.Token) int32 {
	p.l.Discard()
	switch tok.Kind {
	case token.Decimal:
		v, err := strconv.ParseInt(tok.Value, 10, 64)
		if err != nil {
			diag.Fail(diag.ParseError, tok.Pos, "bad integer literal %q: %s", tok.Value, err)
		}
		return int32(v)
	case token.Hex:
		v, err := strconv.ParseInt(tok.Value[2:], 16, 64)
		if err != nil {
			diag.Fail(diag.ParseError, tok.Pos, "bad hex literal %q: %s", tok.Value, err)
		}
		return int32(v)
	default: // CharLit
		return int32([]byte(tok.Value)[0])
	}
}

func isMagic(name string) bool {
	switch name {
	case "$getc", "$putc", "$print", "$puts", "$halt", "$err", "$malloc", "$push", "$pop":
		return true
	}
	return false
}

// magic parses one of the "$..." syntactic-sugar forms into an
// ExprStmtExpr wrapping the raw JAS it stands for (spec.md §4.3).
// $print/$puts take a string literal argument rather than a general
// expression, so their argument is parsed separately from the rest.
func (p *parser) magic() *ast.Expr {
	name := p.l.Expect(token.Identifier).Value
	p.l.Expect(token.LParen)

	bare := func(op opcode.Op) *ast.Stmt { return &ast.Stmt{Tag: ast.StmtJas, JasOp: op} }
	evalKeep := func(e *ast.Expr) *ast.Stmt { return &ast.Stmt{Tag: ast.StmtExprStmt, Expr: e, Pop: false} }
	pushChar := func(c byte) *ast.Stmt {
		return evalKeep(&ast.Expr{Tag: ast.ExprValue, Int32: int32(c)})
	}

	var body *ast.Stmt
	switch name {
	case "$print", "$puts":
		str := p.l.Expect(token.StringLit).Value
		var stmts []*ast.Stmt
		for i := 0; i < len(str); i++ {
			stmts = append(stmts, pushChar(str[i]), bare(opcode.OUT))
		}
		if name == "$puts" {
			stmts = append(stmts, pushChar('\n'), bare(opcode.OUT))
		}
		body = ast.Comp(stmts...)
	case "$getc":
		body = ast.Comp(bare(opcode.IN))
	case "$putc":
		arg := p.expr()
		body = ast.Comp(evalKeep(arg), bare(opcode.OUT))
	case "$halt":
		body = ast.Comp(bare(opcode.HALT))
	case "$err":
		body = ast.Comp(bare(opcode.ERR))
	case "$malloc":
		arg := p.expr()
		body = ast.Comp(evalKeep(arg), bare(opcode.NEWARRAY))
	case "$push":
		arg := p.expr()
		body = ast.Comp(evalKeep(arg), bare(opcode.DUP))
	case "$pop":
		// Open question in spec.md §9: an empty compound statement would
		// leave the stack unchanged; we emit an explicit POP.
		body = ast.Comp(bare(opcode.POP))
	}
	p.l.Expect(token.RParen)
	return &ast.Expr{Tag: ast.ExprStmtExpr, Stmt: body}
}
