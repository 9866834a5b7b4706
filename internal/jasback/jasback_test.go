package jasback

import (
	"strings"
	"testing"

	"github.com/launix-de/ijvmc/internal/opcode"
)

func TestCompileMainWithConstant(t *testing.T) {
	e := New()
	e.Constant("N", 42)
	e.Function("main", nil, nil)
	e.Emit(opcode.LDC_W, "N", 0)
	e.Emit(opcode.HALT, "", 0)
	out, err := e.Compile()
	if err != nil {
		t.Fatal(err)
	}
	text := string(out)
	for _, want := range []string{".constant", "N = 42", ".end-constant", ".main", "LDC_W N", "HALT", ".end-main"} {
		if !strings.Contains(text, want) {
			t.Errorf("output missing %q:\n%s", want, text)
		}
	}
}

func TestCompileMethodWithArgsAndVars(t *testing.T) {
	e := New()
	e.Function("add", []string{"a", "b"}, []string{"c"})
	e.Emit(opcode.ILOAD, "a", 0)
	e.Emit(opcode.ILOAD, "b", 0)
	e.Emit(opcode.IADD, "", 0)
	e.Emit(opcode.ISTORE, "c", 0)
	e.Emit(opcode.ILOAD, "c", 0)
	e.Emit(opcode.IRETURN, "", 0)
	out, err := e.Compile()
	if err != nil {
		t.Fatal(err)
	}
	text := string(out)
	for _, want := range []string{".method add(a,b)", ".var", "c", ".end-var", "ILOAD a", "IRETURN", ".end-method"} {
		if !strings.Contains(text, want) {
			t.Errorf("output missing %q:\n%s", want, text)
		}
	}
}

func TestCompileLabelLine(t *testing.T) {
	e := New()
	e.Function("main", nil, nil)
	e.Label("loop")
	e.Emit(opcode.GOTO, "loop", 0)
	out, err := e.Compile()
	if err != nil {
		t.Fatal(err)
	}
	text := string(out)
	if !strings.Contains(text, "loop:") || !strings.Contains(text, "GOTO loop") {
		t.Errorf("output missing label/goto:\n%s", text)
	}
}

func TestCompileByteImmediate(t *testing.T) {
	e := New()
	e.Function("main", nil, nil)
	e.Emit(opcode.BIPUSH, "", -7)
	out, err := e.Compile()
	if err != nil {
		t.Fatal(err)
	}
	if !strings.Contains(string(out), "BIPUSH -7") {
		t.Errorf("output missing %q:\n%s", "BIPUSH -7", string(out))
	}
}
