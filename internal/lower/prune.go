package lower

import (
	"github.com/launix-de/ijvmc/internal/ast"
	"github.com/launix-de/ijvmc/internal/diag"
	"github.com/launix-de/ijvmc/internal/opcode"
)

// Prune seeds a worklist with "main" and walks every reachable function's
// statements and expressions, recording every called function name and
// every identifier that is not a local of the enclosing function (those
// are treated as constant references, per spec.md §4.3's name-resolution
// rule). Functions and constants never reached are dropped before
// lowering. A call to an undeclared function is a fatal error here; an
// identifier that is neither a local nor a declared constant is only
// recorded, and lowering reports it.
func Prune(prg *ast.Program) error {
	reachedFuncs := map[string]bool{}
	reachedConsts := map[string]bool{}
	worklist := []string{"main"}

	for len(worklist) > 0 {
		name := worklist[len(worklist)-1]
		worklist = worklist[:len(worklist)-1]
		if reachedFuncs[name] {
			continue
		}
		fn := prg.FindFunction(name)
		if fn == nil {
			diag.FailNoPos(diag.LinkError, "call to undefined function %q", name)
		}
		reachedFuncs[name] = true

		locals := map[string]bool{}
		for _, a := range fn.Args {
			locals[a] = true
		}
		body := fn.Body
		if fn.Jas {
			body = fn.JasBody
		}
		walkStmtNames(body, locals, func(calledFunc string) {
			worklist = append(worklist, calledFunc)
		}, func(ident string) {
			if !locals[ident] {
				reachedConsts[ident] = true
			}
		})
	}

	var kept []*ast.Function
	for _, fn := range prg.Functions {
		if reachedFuncs[fn.Name] {
			kept = append(kept, fn)
		}
	}
	prg.Functions = kept

	var keptConsts []*ast.Constant
	for _, c := range prg.Constants {
		if reachedConsts[c.Name] {
			keptConsts = append(keptConsts, c)
		}
	}
	prg.Constants = keptConsts
	return nil
}

// walkStmtNames visits every statement and expression under s, reporting
// each Call's function name via onCall and every identifier reference
// (Ident, the implicit OBJREF aside) via onIdent. locals tracks the
// enclosing function's declared names so onIdent is only invoked for
// names that resolve outside that set.
func walkStmtNames(s *ast.Stmt, locals map[string]bool, onCall func(string), onIdent func(string)) {
	if s == nil {
		return
	}
	switch s.Tag {
	case ast.StmtComp:
		for _, c := range s.Stmts {
			walkStmtNames(c, locals, onCall, onIdent)
		}
	case ast.StmtVar:
		locals[s.Name] = true
		walkExprNames(s.Expr, locals, onCall, onIdent)
	case ast.StmtRet, ast.StmtExprStmt:
		walkExprNames(s.Expr, locals, onCall, onIdent)
	case ast.StmtFor:
		walkStmtNames(s.Init, locals, onCall, onIdent)
		walkExprNames(s.Cond, locals, onCall, onIdent)
		walkStmtNames(s.Update, locals, onCall, onIdent)
		walkStmtNames(s.Body, locals, onCall, onIdent)
	case ast.StmtIf:
		walkExprNames(s.Cond, locals, onCall, onIdent)
		walkStmtNames(s.Then, locals, onCall, onIdent)
		walkStmtNames(s.Else, locals, onCall, onIdent)
	case ast.StmtJas:
		if s.JasIdent == "" {
			return
		}
		switch opcode.Shape(s.JasOp) {
		case opcode.ArgFunc:
			onCall(s.JasIdent)
		case opcode.ArgConst:
			onIdent(s.JasIdent)
		// ArgVar, ArgVarImm (local names) and ArgLabel (function-local
		// labels) never name a constant or a function.
		}
	}
}

func walkExprNames(e *ast.Expr, locals map[string]bool, onCall func(string), onIdent func(string)) {
	if e == nil {
		return
	}
	switch e.Tag {
	case ast.ExprOp:
		walkExprNames(e.Left, locals, onCall, onIdent)
		walkExprNames(e.Right, locals, onCall, onIdent)
	case ast.ExprIdent:
		if !locals[e.Name] {
			onIdent(e.Name)
		}
	case ast.ExprCall:
		onCall(e.FuncName)
		for _, a := range e.Args {
			walkExprNames(a, locals, onCall, onIdent)
		}
	case ast.ExprStmtExpr:
		walkStmtNames(e.Stmt, locals, onCall, onIdent)
	case ast.ExprArrAccess:
		walkExprNames(e.Array, locals, onCall, onIdent)
		walkExprNames(e.Index, locals, onCall, onIdent)
	}
}
