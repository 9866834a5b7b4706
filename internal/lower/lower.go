// Package lower implements spec.md §4.3's prune pass (prune.go) and the
// IJ AST-to-assembler lowering rules (this file): expressions, control
// flow, and the $-magic/jas-block passthrough. It drives any asm.Sink,
// so the same lowering feeds the IJVM, JAS and x86-64 backends alike.
package lower

import (
	"fmt"

	"github.com/launix-de/ijvmc/internal/asm"
	"github.com/launix-de/ijvmc/internal/ast"
	"github.com/launix-de/ijvmc/internal/diag"
	"github.com/launix-de/ijvmc/internal/opcode"
	"github.com/launix-de/ijvmc/internal/token"
)

// objrefPattern is the OBJREF bit pattern named in the glossary
// (0xD000D000); OBJREFValue reinterprets it as the signed 32-bit value
// every constant pool entry and stack slot actually carries.
var objrefPattern uint32 = 0xD000D000

// OBJREFValue is the sentinel pushed for the implicit OBJREF argument
// every INVOKEVIRTUAL call passes.
var OBJREFValue = int32(objrefPattern)

const objrefConst = "__OBJREF__"

// Lower compiles every function of prg (which should already be pruned)
// into sink, in an order that always places "main" first regardless of
// declaration order, since every backend's text segment begins with
// main's body at offset/address zero.
func Lower(prg *ast.Program, sink asm.Sink) (err error) {
	defer func() {
		if r := recover(); r != nil {
			if de, ok := r.(*diag.Error); ok {
				err = de
				return
			}
			panic(r)
		}
	}()

	for _, c := range prg.Constants {
		sink.Constant(c.Name, c.Value)
	}

	ordered := orderWithMainFirst(prg.Functions)
	for _, fn := range ordered {
		l := &lowerer{sink: sink, prg: prg}
		l.lowerFunction(fn)
	}
	return nil
}

func orderWithMainFirst(fns []*ast.Function) []*ast.Function {
	out := make([]*ast.Function, 0, len(fns))
	for _, fn := range fns {
		if fn.Name == "main" {
			out = append([]*ast.Function{fn}, out...)
		} else {
			out = append(out, fn)
		}
	}
	return out
}

type lowerer struct {
	sink       asm.Sink
	prg        *ast.Program
	fn         *ast.Function
	labelN     int
	loopLabels []loopLabel
}

type loopLabel struct {
	breakLabel    string
	continueLabel string
}

func (l *lowerer) newLabel(tag string) string {
	l.labelN++
	return fmt.Sprintf("__%s_%d__", tag, l.labelN)
}

func (l *lowerer) lowerFunction(fn *ast.Function) {
	l.fn = fn
	l.labelN = 0
	l.loopLabels = nil

	if fn.Jas {
		l.declareObjrefConst()
		l.sink.Function(fn.Name, fn.Args, collectJasLocals(fn.JasBody))
		l.lowerJasStmt(fn.JasBody)
		return
	}

	l.declareObjrefConst()
	locals := collectLocals(fn.Body, fn.Args)
	l.sink.Function(fn.Name, fn.Args, locals)
	l.lowerStmt(fn.Body)
}

// declareObjrefConst ensures the sentinel OBJREF constant used by every
// call site exists exactly once (spec.md §4.3: "LDC_W __OBJREF__
// (auto-declared with value 0xd000d000)").
func (l *lowerer) declareObjrefConst() {
	if !l.sink.IsConstant(objrefConst) {
		l.sink.Constant(objrefConst, OBJREFValue)
	}
}

// collectLocals walks body for every "var name = ..." declaration,
// returning their names in first-declaration order, excluding args
// (which the caller already registers separately).
func collectLocals(body *ast.Stmt, args []string) []string {
	declared := map[string]bool{}
	for _, a := range args {
		declared[a] = true
	}
	var order []string
	var walk func(s *ast.Stmt)
	walk = func(s *ast.Stmt) {
		if s == nil {
			return
		}
		switch s.Tag {
		case ast.StmtComp:
			for _, c := range s.Stmts {
				walk(c)
			}
		case ast.StmtVar:
			if !declared[s.Name] {
				declared[s.Name] = true
				order = append(order, s.Name)
			}
		case ast.StmtFor:
			walk(s.Init)
			walk(s.Update)
			walk(s.Body)
		case ast.StmtIf:
			walk(s.Then)
			walk(s.Else)
		}
	}
	walk(body)
	return order
}

// collectJasLocals returns every distinct ArgVar/ArgVarImm identifier
// referenced in a jas{...} function body, in first-use order — a raw-
// assembly function declares its locals implicitly by using them.
func collectJasLocals(body *ast.Stmt) []string {
	seen := map[string]bool{}
	var order []string
	var walk func(s *ast.Stmt)
	walk = func(s *ast.Stmt) {
		if s == nil {
			return
		}
		if s.Tag == ast.StmtComp {
			for _, c := range s.Stmts {
				walk(c)
			}
			return
		}
		if s.Tag == ast.StmtJas {
			switch opcode.Shape(s.JasOp) {
			case opcode.ArgVar, opcode.ArgVarImm:
				if s.JasIdent != "" && !seen[s.JasIdent] {
					seen[s.JasIdent] = true
					order = append(order, s.JasIdent)
				}
			}
		}
	}
	walk(body)
	return order
}

func (l *lowerer) lowerJasStmt(s *ast.Stmt) {
	if s == nil {
		return
	}
	switch s.Tag {
	case ast.StmtComp:
		for _, c := range s.Stmts {
			l.lowerJasStmt(c)
		}
	case ast.StmtLabel:
		l.sink.Label(s.Name)
	case ast.StmtJas:
		l.emitJas(s)
	default:
		diag.Fail(diag.SemanticError, token.Pos{}, "unexpected statement kind in jas{} body")
	}
}

func (l *lowerer) emitJas(s *ast.Stmt) {
	switch opcode.Shape(s.JasOp) {
	case opcode.ArgVarImm:
		l.sink.Emit(s.JasOp, s.JasIdent, s.JasImm)
	case opcode.ArgByte:
		l.sink.Emit(s.JasOp, "", s.JasImm)
	default:
		l.sink.Emit(s.JasOp, s.JasIdent, 0)
	}
}

// ---- statements ----

func (l *lowerer) lowerStmt(s *ast.Stmt) {
	if s == nil {
		return
	}
	switch s.Tag {
	case ast.StmtComp:
		for _, c := range s.Stmts {
			l.lowerStmt(c)
		}
	case ast.StmtVar:
		l.lowerExpr(s.Expr)
		l.sink.Emit(opcode.ISTORE, s.Name, 0)
	case ast.StmtRet:
		if s.Expr != nil {
			l.lowerExpr(s.Expr)
		} else {
			l.sink.Emit(opcode.BIPUSH, "", 0)
		}
		l.sink.Emit(opcode.IRETURN, "", 0)
	case ast.StmtExprStmt:
		l.lowerExpr(s.Expr)
		if s.Pop && !isAssignWithNoResult(s.Expr) {
			l.sink.Emit(opcode.POP, "", 0)
		}
	case ast.StmtFor:
		l.lowerFor(s)
	case ast.StmtIf:
		l.lowerIf(s)
	case ast.StmtLabel:
		l.sink.Label(s.Name)
	case ast.StmtBreak:
		l.sink.Emit(opcode.GOTO, l.currentLoop().breakLabel, 0)
	case ast.StmtContinue:
		l.sink.Emit(opcode.GOTO, l.currentLoop().continueLabel, 0)
	case ast.StmtJas:
		l.emitJas(s)
	}
}

func (l *lowerer) currentLoop() loopLabel {
	if len(l.loopLabels) == 0 {
		diag.Fail(diag.SemanticError, token.Pos{}, "break/continue outside a loop")
	}
	return l.loopLabels[len(l.loopLabels)-1]
}

// isAssignWithNoResult reports whether e's lowering already leaves the
// stack balanced with no value (our assignment lowering for "=" and
// compound-assign does ISTORE/IASTORE, which pops the stack back to its
// starting depth) — in which case ExprStmt must not also emit POP.
func isAssignWithNoResult(e *ast.Expr) bool {
	if e == nil || e.Tag != ast.ExprOp {
		return false
	}
	switch e.Op {
	case "=", "+=", "-=", "&=", "|=":
		return true
	}
	return false
}

func (l *lowerer) lowerFor(s *ast.Stmt) {
	startLabel := l.newLabel("for_start")
	condLabel := l.newLabel("for_cond")
	bodyLabel := l.newLabel("for_body")
	updateLabel := l.newLabel("for_update")
	endLabel := l.newLabel("for_end")

	l.sink.Label(startLabel)
	l.lowerStmt(s.Init)
	l.sink.Label(condLabel)
	if s.Cond != nil {
		l.lowerCond(s.Cond, bodyLabel, endLabel)
	} else {
		l.sink.Emit(opcode.GOTO, bodyLabel, 0)
	}
	l.sink.Label(bodyLabel)
	l.loopLabels = append(l.loopLabels, loopLabel{breakLabel: endLabel, continueLabel: updateLabel})
	l.lowerStmt(s.Body)
	l.loopLabels = l.loopLabels[:len(l.loopLabels)-1]
	l.sink.Label(updateLabel)
	l.lowerStmt(s.Update)
	l.sink.Emit(opcode.GOTO, condLabel, 0)
	l.sink.Label(endLabel)
}

func (l *lowerer) lowerIf(s *ast.Stmt) {
	if v, ok := s.Cond.Val(); ok && !s.Cond.HasSideEffects() {
		if v != 0 {
			l.lowerStmt(s.Then)
		} else if s.Else != nil {
			l.lowerStmt(s.Else)
		}
		return
	}
	thenLabel := l.newLabel("if_then")
	endLabel := l.newLabel("if_end")
	elseLabel := endLabel
	if s.Else != nil {
		elseLabel = l.newLabel("if_else")
	}

	if s.Cond.Tag == ast.ExprOp && ast.IsComparison(s.Cond.Op) {
		l.lowerCond(s.Cond, thenLabel, elseLabel)
	} else {
		l.lowerExpr(s.Cond)
		l.sink.Emit(opcode.IFEQ, elseLabel, 0)
	}

	l.sink.Label(thenLabel)
	l.lowerStmt(s.Then)
	if s.Else != nil {
		if !s.Then.IsTerminal() {
			l.sink.Emit(opcode.GOTO, endLabel, 0)
		}
		l.sink.Label(elseLabel)
		l.lowerStmt(s.Else)
	}
	l.sink.Label(endLabel)
}

// lowerCond lowers a boolean-context expression, branching to trueLabel
// or falseLabel directly, per spec.md §4.3's six comparison lowerings.
// Non-comparison conditions fall back to compiling the value and
// IFEQ-ing to the false label, followed by a GOTO to the true label.
func (l *lowerer) lowerCond(cond *ast.Expr, trueLabel, falseLabel string) {
	if cond.Tag == ast.ExprOp && ast.IsComparison(cond.Op) {
		a, b := cond.Left, cond.Right
		switch cond.Op {
		case "<":
			l.lowerExpr(a)
			l.lowerExpr(b)
			l.sink.Emit(opcode.ISUB, "", 0)
			l.sink.Emit(opcode.IFLT, trueLabel, 0)
			l.sink.Emit(opcode.GOTO, falseLabel, 0)
		case ">":
			l.lowerExpr(b)
			l.lowerExpr(a)
			l.sink.Emit(opcode.ISUB, "", 0)
			l.sink.Emit(opcode.IFLT, trueLabel, 0)
			l.sink.Emit(opcode.GOTO, falseLabel, 0)
		case ">=":
			l.lowerExpr(a)
			l.lowerExpr(b)
			l.sink.Emit(opcode.ISUB, "", 0)
			l.sink.Emit(opcode.IFLT, falseLabel, 0)
			l.sink.Emit(opcode.GOTO, trueLabel, 0)
		case "<=":
			l.lowerExpr(b)
			l.lowerExpr(a)
			l.sink.Emit(opcode.ISUB, "", 0)
			l.sink.Emit(opcode.IFLT, falseLabel, 0)
			l.sink.Emit(opcode.GOTO, trueLabel, 0)
		case "==":
			l.lowerExpr(a)
			l.lowerExpr(b)
			l.sink.Emit(opcode.ICMPEQ, trueLabel, 0)
			l.sink.Emit(opcode.GOTO, falseLabel, 0)
		case "!=":
			l.lowerExpr(a)
			l.lowerExpr(b)
			l.sink.Emit(opcode.ICMPEQ, falseLabel, 0)
			l.sink.Emit(opcode.GOTO, trueLabel, 0)
		}
		return
	}
	l.lowerExpr(cond)
	l.sink.Emit(opcode.IFEQ, falseLabel, 0)
	l.sink.Emit(opcode.GOTO, trueLabel, 0)
}

// ---- expressions ----

func (l *lowerer) lowerExpr(e *ast.Expr) {
	if e == nil {
		return
	}
	switch e.Tag {
	case ast.ExprValue:
		asm.PUSH_VAL(l.sink, e.Int32)
	case ast.ExprIdent:
		l.lowerIdent(e.Name)
	case ast.ExprCall:
		l.lowerCall(e)
	case ast.ExprArrAccess:
		l.lowerExpr(e.Index)
		l.lowerExpr(e.Array)
		l.sink.Emit(opcode.IALOAD, "", 0)
	case ast.ExprStmtExpr:
		l.lowerStmt(e.Stmt)
	case ast.ExprOp:
		l.lowerOp(e)
	}
}

func (l *lowerer) lowerIdent(name string) {
	if l.sink.IsVar(name) {
		l.sink.Emit(opcode.ILOAD, name, 0)
		return
	}
	if l.sink.IsConstant(name) {
		l.sink.Emit(opcode.LDC_W, name, 0)
		return
	}
	diag.Fail(diag.SemanticError, token.Pos{}, "unknown identifier %q (not a local, constant, or function)", name)
}

func (l *lowerer) lowerCall(e *ast.Expr) {
	l.sink.Emit(opcode.LDC_W, objrefConst, 0)
	for _, a := range e.Args {
		l.lowerExpr(a)
	}
	l.sink.Emit(opcode.INVOKEVIRTUAL, e.FuncName, 0)
}

func (l *lowerer) lowerOp(e *ast.Expr) {
	if ast.IsComparison(e.Op) {
		diag.Fail(diag.SemanticError, token.Pos{}, "comparison %q used outside a conditional", e.Op)
	}
	switch e.Op {
	case "=":
		l.lowerAssign(e.Left, e.Right)
		return
	case "+=", "-=", "&=", "|=":
		l.lowerCompoundAssign(e.Op, e.Left, e.Right)
		return
	case "*":
		l.lowerMul(e.Left, e.Right)
		return
	}
	l.lowerExpr(e.Left)
	l.lowerExpr(e.Right)
	switch e.Op {
	case "+":
		l.sink.Emit(opcode.IADD, "", 0)
	case "-":
		l.sink.Emit(opcode.ISUB, "", 0)
	case "&":
		l.sink.Emit(opcode.IAND, "", 0)
	case "|":
		l.sink.Emit(opcode.IOR, "", 0)
	default:
		diag.Fail(diag.SemanticError, token.Pos{}, "unsupported operator %q", e.Op)
	}
}

func (l *lowerer) lowerAssign(lhs, rhs *ast.Expr) {
	switch lhs.Tag {
	case ast.ExprIdent:
		l.lowerExpr(rhs)
		l.sink.Emit(opcode.ISTORE, lhs.Name, 0)
	case ast.ExprArrAccess:
		l.lowerExpr(rhs)
		l.lowerExpr(lhs.Index)
		l.lowerExpr(lhs.Array)
		l.sink.Emit(opcode.IASTORE, "", 0)
	default:
		diag.Fail(diag.SemanticError, token.Pos{}, "assignment to a non-variable expression")
	}
}

var compoundBinOp = map[string]opcode.Op{"+=": opcode.IADD, "-=": opcode.ISUB, "&=": opcode.IAND, "|=": opcode.IOR}

func (l *lowerer) lowerCompoundAssign(op string, lhs, rhs *ast.Expr) {
	binOp := compoundBinOp[op]

	if lhs.Tag == ast.ExprIdent {
		if v, ok := rhs.Val(); ok && !rhs.HasSideEffects() && (op == "+=" || op == "-=") {
			delta := v
			if op == "-=" {
				delta = -delta
			}
			if delta >= -128 && delta <= 127 {
				asm.INC_VAR(l.sink, lhs.Name, delta)
				return
			}
		}
		l.sink.Emit(opcode.ILOAD, lhs.Name, 0)
		l.lowerExpr(rhs)
		l.sink.Emit(binOp, "", 0)
		l.sink.Emit(opcode.ISTORE, lhs.Name, 0)
		return
	}

	if lhs.Tag == ast.ExprArrAccess {
		l.lowerExpr(lhs.Index)
		l.lowerExpr(lhs.Array)
		l.sink.Emit(opcode.IALOAD, "", 0)
		l.lowerExpr(rhs)
		l.sink.Emit(binOp, "", 0)
		l.lowerExpr(lhs.Index)
		l.lowerExpr(lhs.Array)
		l.sink.Emit(opcode.IASTORE, "", 0)
		return
	}
	diag.Fail(diag.SemanticError, token.Pos{}, "compound assignment to a non-variable expression")
}

func (l *lowerer) lowerMul(left, right *ast.Expr) {
	lv, lok := left.Val()
	lside := lok && !left.HasSideEffects()
	rv, rok := right.Val()
	rside := rok && !right.HasSideEffects()

	switch {
	case lside && rside:
		asm.PUSH_VAL(l.sink, lv*rv)
	case lside:
		l.lowerExpr(right)
		asm.IMUL(l.sink, lv)
	case rside:
		l.lowerExpr(left)
		asm.IMUL(l.sink, rv)
	default:
		diag.Fail(diag.SemanticError, token.Pos{}, "multiplication requires at least one literal operand")
	}
}
