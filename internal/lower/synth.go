package lower

import (
	"github.com/launix-de/ijvmc/internal/ast"
	"github.com/launix-de/ijvmc/internal/diag"
	"github.com/launix-de/ijvmc/internal/opcode"
	"github.com/launix-de/ijvmc/internal/token"
)

// SynthMain adds the compiler-synthesised "main" function that invokes
// "__main__" and dispatches on its sign: a non-negative return HALTs
// (clean exit), a negative return ERRs (spec.md §3: "The compiler
// synthesises an extra main that invokes __main__ and dispatches on its
// sign"). It is a no-op if "main" is already declared by the user
// program (e.g. a hand-written JAS-style entry point).
func SynthMain(prg *ast.Program) error {
	if prg.FindFunction("main") != nil {
		return nil
	}
	if prg.FindFunction("__main__") == nil {
		diag.Fail(diag.SemanticError, token.Pos{}, "program declares no __main__ function")
	}

	ret := &ast.Stmt{Tag: ast.StmtVar, Name: "__entry_ret__", Expr: &ast.Expr{
		Tag: ast.ExprCall, FuncName: "__main__",
	}}
	cond := &ast.Expr{Tag: ast.ExprOp, Op: "<",
		Left:  &ast.Expr{Tag: ast.ExprIdent, Name: "__entry_ret__"},
		Right: &ast.Expr{Tag: ast.ExprValue, Int32: 0},
	}
	haltStmt := &ast.Stmt{Tag: ast.StmtJas, JasOp: opcode.HALT}
	errStmt := &ast.Stmt{Tag: ast.StmtJas, JasOp: opcode.ERR}
	dispatch := &ast.Stmt{Tag: ast.StmtIf, Cond: cond,
		Then: ast.Comp(errStmt),
		Else: ast.Comp(haltStmt),
	}
	main := &ast.Function{
		Name: "main",
		Body: ast.Comp(ret, dispatch),
	}
	prg.AddFunction(main)
	return nil
}
