package lower

import (
	"testing"

	"github.com/launix-de/ijvmc/internal/ast"
	"github.com/launix-de/ijvmc/internal/opcode"
)

// instr records one Emit call, for assertions against the opcode
// sequence a lowering produced.
type instr struct {
	op    opcode.Op
	ident string
	imm   int32
}

// recordingSink is a minimal asm.Sink that just records everything it
// is told, so lowering output can be asserted against without needing a
// real backend.
type recordingSink struct {
	constants map[string]int32
	curVars   map[string]bool
	funcs     []string
	labels    []string
	instrs    []instr
}

func newRecordingSink() *recordingSink {
	return &recordingSink{constants: map[string]int32{}}
}

func (s *recordingSink) Constant(name string, value int32) { s.constants[name] = value }

func (s *recordingSink) Function(name string, args []string, locals []string) {
	s.funcs = append(s.funcs, name)
	s.curVars = map[string]bool{}
	for _, a := range args {
		s.curVars[a] = true
	}
	for _, l := range locals {
		s.curVars[l] = true
	}
}

func (s *recordingSink) Label(name string) { s.labels = append(s.labels, name) }

func (s *recordingSink) IsVar(name string) bool { return s.curVars[name] }

func (s *recordingSink) IsConstant(name string) bool {
	_, ok := s.constants[name]
	return ok
}

func (s *recordingSink) Emit(op opcode.Op, ident string, imm int32) {
	s.instrs = append(s.instrs, instr{op, ident, imm})
}

func (s *recordingSink) Compile() ([]byte, error) { return nil, nil }

func (s *recordingSink) ops() []opcode.Op {
	out := make([]opcode.Op, len(s.instrs))
	for i, in := range s.instrs {
		out[i] = in.op
	}
	return out
}

func TestSynthMainNoOpWhenMainExists(t *testing.T) {
	prg := &ast.Program{Functions: []*ast.Function{{Name: "main"}}}
	if err := SynthMain(prg); err != nil {
		t.Fatal(err)
	}
	if len(prg.Functions) != 1 {
		t.Fatalf("SynthMain should not add a second main, got %d functions", len(prg.Functions))
	}
}

func TestSynthMainFailsWithoutMainFunc(t *testing.T) {
	prg := &ast.Program{}
	defer func() {
		if recover() == nil {
			t.Fatal("expected SynthMain to panic when no __main__ is declared")
		}
	}()
	SynthMain(prg)
}

func TestSynthMainSynthesizesDispatch(t *testing.T) {
	prg := &ast.Program{Functions: []*ast.Function{{Name: "__main__"}}}
	if err := SynthMain(prg); err != nil {
		t.Fatal(err)
	}
	main := prg.FindFunction("main")
	if main == nil {
		t.Fatal("SynthMain did not add a main function")
	}
	if main.Body == nil || len(main.Body.Stmts) != 2 {
		t.Fatalf("synthesized main has unexpected shape: %+v", main.Body)
	}
	call := main.Body.Stmts[0]
	if call.Tag != ast.StmtVar || call.Expr.Tag != ast.ExprCall || call.Expr.FuncName != "__main__" {
		t.Errorf("synthesized main's first statement does not call __main__: %+v", call)
	}
	dispatch := main.Body.Stmts[1]
	if dispatch.Tag != ast.StmtIf {
		t.Fatalf("synthesized main's second statement is not an if: %+v", dispatch)
	}
	if dispatch.Then.Stmts[0].JasOp != opcode.ERR {
		t.Errorf("negative branch should ERR, got %v", dispatch.Then.Stmts[0].JasOp)
	}
	if dispatch.Else.Stmts[0].JasOp != opcode.HALT {
		t.Errorf("non-negative branch should HALT, got %v", dispatch.Else.Stmts[0].JasOp)
	}
}

func TestPruneDropsUnreachableFunctionsAndConstants(t *testing.T) {
	prg := &ast.Program{
		Functions: []*ast.Function{
			{Name: "main", Body: ast.Comp(&ast.Stmt{
				Tag: ast.StmtExprStmt,
				Expr: &ast.Expr{Tag: ast.ExprCall, FuncName: "used"},
			})},
			{Name: "used", Body: ast.Comp(&ast.Stmt{
				Tag:  ast.StmtExprStmt,
				Expr: &ast.Expr{Tag: ast.ExprIdent, Name: "USED_CONST"},
			})},
			{Name: "unused"},
		},
		Constants: []*ast.Constant{
			{Name: "USED_CONST", Value: 1},
			{Name: "UNUSED_CONST", Value: 2},
		},
	}
	if err := Prune(prg); err != nil {
		t.Fatal(err)
	}
	if prg.FindFunction("main") == nil || prg.FindFunction("used") == nil {
		t.Error("Prune dropped a reachable function")
	}
	if prg.FindFunction("unused") != nil {
		t.Error("Prune kept an unreachable function")
	}
	if prg.FindConstant("USED_CONST") == nil {
		t.Error("Prune dropped a reachable constant")
	}
	if prg.FindConstant("UNUSED_CONST") != nil {
		t.Error("Prune kept an unreachable constant")
	}
}

func TestPruneFailsOnUndefinedCall(t *testing.T) {
	prg := &ast.Program{
		Functions: []*ast.Function{
			{Name: "main", Body: ast.Comp(&ast.Stmt{
				Tag:  ast.StmtExprStmt,
				Expr: &ast.Expr{Tag: ast.ExprCall, FuncName: "nope"},
			})},
		},
	}
	defer func() {
		if recover() == nil {
			t.Fatal("expected Prune to panic on a call to an undefined function")
		}
	}()
	Prune(prg)
}

func TestLowerSimpleReturn(t *testing.T) {
	prg := &ast.Program{Functions: []*ast.Function{
		{Name: "main", Body: ast.Comp(&ast.Stmt{
			Tag:  ast.StmtRet,
			Expr: &ast.Expr{Tag: ast.ExprValue, Int32: 42},
		})},
	}}
	sink := newRecordingSink()
	if err := Lower(prg, sink); err != nil {
		t.Fatal(err)
	}
	ops := sink.ops()
	if len(ops) != 2 || ops[0] != opcode.BIPUSH || ops[1] != opcode.IRETURN {
		t.Fatalf("got ops %v, want [BIPUSH IRETURN]", ops)
	}
}

func TestLowerMainAlwaysFirst(t *testing.T) {
	prg := &ast.Program{Functions: []*ast.Function{
		{Name: "helper", Body: ast.Comp(&ast.Stmt{Tag: ast.StmtRet})},
		{Name: "main", Body: ast.Comp(&ast.Stmt{Tag: ast.StmtRet})},
	}}
	sink := newRecordingSink()
	if err := Lower(prg, sink); err != nil {
		t.Fatal(err)
	}
	if len(sink.funcs) != 2 || sink.funcs[0] != "main" {
		t.Fatalf("got function order %v, want main first", sink.funcs)
	}
}

func TestLowerIfWithElse(t *testing.T) {
	prg := &ast.Program{Functions: []*ast.Function{
		{Name: "main", Body: ast.Comp(&ast.Stmt{
			Tag: ast.StmtIf,
			Cond: &ast.Expr{Tag: ast.ExprOp, Op: "<",
				Left:  &ast.Expr{Tag: ast.ExprIdent, Name: "x"},
				Right: &ast.Expr{Tag: ast.ExprValue, Int32: 1}},
			Then: ast.Comp(&ast.Stmt{Tag: ast.StmtRet, Expr: &ast.Expr{Tag: ast.ExprValue, Int32: 1}}),
			Else: ast.Comp(&ast.Stmt{Tag: ast.StmtRet, Expr: &ast.Expr{Tag: ast.ExprValue, Int32: 0}}),
		}),
		Args: []string{"x"}},
	}}
	sink := newRecordingSink()
	if err := Lower(prg, sink); err != nil {
		t.Fatal(err)
	}
	if len(sink.labels) == 0 {
		t.Error("lowering an if/else produced no labels")
	}
	foundIFLT, foundGOTO := false, false
	for _, op := range sink.ops() {
		if op == opcode.IFLT {
			foundIFLT = true
		}
		if op == opcode.GOTO {
			foundGOTO = true
		}
	}
	if !foundIFLT || !foundGOTO {
		t.Errorf("expected both IFLT and GOTO in lowered if/else, got %v", sink.ops())
	}
}

func TestLowerMulWithLiteralOperand(t *testing.T) {
	prg := &ast.Program{Functions: []*ast.Function{
		{Name: "main", Args: []string{"x"}, Body: ast.Comp(&ast.Stmt{
			Tag: ast.StmtRet,
			Expr: &ast.Expr{Tag: ast.ExprOp, Op: "*",
				Left:  &ast.Expr{Tag: ast.ExprIdent, Name: "x"},
				Right: &ast.Expr{Tag: ast.ExprValue, Int32: 3}},
		})},
	}}
	sink := newRecordingSink()
	if err := Lower(prg, sink); err != nil {
		t.Fatal(err)
	}
	// x*3 is expanded by shift-and-add (asm.IMUL), never a native IMUL.
	want := []opcode.Op{opcode.ILOAD, opcode.DUP, opcode.DUP, opcode.IADD, opcode.IADD, opcode.IRETURN}
	got := sink.ops()
	if len(got) != len(want) {
		t.Fatalf("lowering of x*3 = %v, want %v", got, want)
	}
	for i := range want {
		if got[i] != want[i] {
			t.Fatalf("lowering of x*3 = %v, want %v", got, want)
		}
	}
}

func TestLowerMulWithoutLiteralOperandFails(t *testing.T) {
	prg := &ast.Program{Functions: []*ast.Function{
		{Name: "main", Args: []string{"x", "y"}, Body: ast.Comp(&ast.Stmt{
			Tag: ast.StmtRet,
			Expr: &ast.Expr{Tag: ast.ExprOp, Op: "*",
				Left:  &ast.Expr{Tag: ast.ExprIdent, Name: "x"},
				Right: &ast.Expr{Tag: ast.ExprIdent, Name: "y"}},
		})},
	}}
	sink := newRecordingSink()
	err := Lower(prg, sink)
	if err == nil {
		t.Fatal("expected Lower to fail multiplying two non-literal operands")
	}
}
