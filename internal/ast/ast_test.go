package ast

import "testing"

func lit(v int32) *Expr { return &Expr{Tag: ExprValue, Int32: v} }

func bin(op string, l, r *Expr) *Expr { return &Expr{Tag: ExprOp, Op: op, Left: l, Right: r} }

func TestValConstantFolds(t *testing.T) {
	tests := []struct {
		name string
		e    *Expr
		want int32
	}{
		{"add", bin("+", lit(2), lit(3)), 5},
		{"sub", bin("-", lit(2), lit(3)), -1},
		{"mul", bin("*", lit(4), lit(5)), 20},
		{"and", bin("&", lit(6), lit(3)), 2},
		{"or", bin("|", lit(4), lit(1)), 5},
		{"lt-true", bin("<", lit(1), lit(2)), 1},
		{"lt-false", bin("<", lit(2), lit(1)), 0},
		{"eq-true", bin("==", lit(7), lit(7)), 1},
		{"neq-false", bin("!=", lit(7), lit(7)), 0},
		{"unary-minus", &Expr{Tag: ExprOp, Op: "-", Left: lit(5)}, -5},
	}
	for _, tt := range tests {
		v, ok := tt.e.Val()
		if !ok {
			t.Errorf("%s: Val() reported not-constant", tt.name)
			continue
		}
		if v != tt.want {
			t.Errorf("%s: Val() = %d, want %d", tt.name, v, tt.want)
		}
	}
}

func TestValNonConstant(t *testing.T) {
	e := bin("+", lit(1), &Expr{Tag: ExprIdent, Name: "x"})
	if _, ok := e.Val(); ok {
		t.Fatal("Val() reported constant for an expression containing an identifier")
	}
}

func TestValNilExpr(t *testing.T) {
	var e *Expr
	if _, ok := e.Val(); ok {
		t.Fatal("Val() on a nil *Expr should report not-constant")
	}
}

func TestHasSideEffects(t *testing.T) {
	tests := []struct {
		name string
		e    *Expr
		want bool
	}{
		{"literal", lit(1), false},
		{"pure-op", bin("+", lit(1), lit(2)), false},
		{"call", &Expr{Tag: ExprCall, FuncName: "f"}, true},
		{"array-access", &Expr{Tag: ExprArrAccess, Array: lit(0), Index: lit(0)}, true},
		{"op-wrapping-call", bin("+", lit(1), &Expr{Tag: ExprCall, FuncName: "f"}), true},
	}
	for _, tt := range tests {
		if got := tt.e.HasSideEffects(); got != tt.want {
			t.Errorf("%s: HasSideEffects() = %v, want %v", tt.name, got, tt.want)
		}
	}
}

func TestIsComparison(t *testing.T) {
	for _, op := range []string{"<", ">", "<=", ">=", "==", "!="} {
		if !IsComparison(op) {
			t.Errorf("IsComparison(%q) = false, want true", op)
		}
	}
	for _, op := range []string{"+", "-", "*", "&", "|"} {
		if IsComparison(op) {
			t.Errorf("IsComparison(%q) = true, want false", op)
		}
	}
}

func TestIsTerminal(t *testing.T) {
	ret := &Stmt{Tag: StmtRet}
	nonTerminal := &Stmt{Tag: StmtExprStmt, Expr: lit(1)}

	tests := []struct {
		name string
		s    *Stmt
		want bool
	}{
		{"nil", nil, false},
		{"ret", ret, true},
		{"break", &Stmt{Tag: StmtBreak}, true},
		{"comp-ending-in-ret", Comp(nonTerminal, ret), true},
		{"comp-not-ending-in-ret", Comp(ret, nonTerminal), false},
		{"empty-comp", Comp(), false},
		{"if-without-else", &Stmt{Tag: StmtIf, Then: Comp(ret)}, false},
		{"if-with-terminal-both-branches", &Stmt{Tag: StmtIf, Then: Comp(ret), Else: Comp(ret)}, true},
		{"if-with-nonterminal-else", &Stmt{Tag: StmtIf, Then: Comp(ret), Else: Comp(nonTerminal)}, false},
	}
	for _, tt := range tests {
		if got := tt.s.IsTerminal(); got != tt.want {
			t.Errorf("%s: IsTerminal() = %v, want %v", tt.name, got, tt.want)
		}
	}
}

func TestProgramFindAndAdd(t *testing.T) {
	p := &Program{}
	f1 := &Function{Name: "main"}
	if !p.AddFunction(f1) {
		t.Fatal("AddFunction failed on a fresh name")
	}
	if p.AddFunction(&Function{Name: "main"}) {
		t.Fatal("AddFunction should reject a duplicate name")
	}
	if p.FindFunction("main") != f1 {
		t.Error("FindFunction did not return the function that was added")
	}
	if p.FindFunction("nope") != nil {
		t.Error("FindFunction should return nil for an unknown name")
	}

	c1 := &Constant{Name: "N", Value: 10}
	if !p.AddConstant(c1) {
		t.Fatal("AddConstant failed on a fresh name")
	}
	if p.AddConstant(&Constant{Name: "N", Value: 20}) {
		t.Fatal("AddConstant should reject a duplicate name")
	}
	if p.FindConstant("N") != c1 {
		t.Error("FindConstant did not return the constant that was added")
	}
}
