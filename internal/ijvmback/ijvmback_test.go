package ijvmback

import (
	"encoding/binary"
	"testing"

	"github.com/launix-de/ijvmc/internal/opcode"
)

func readU32(b []byte, off int) uint32 { return binary.BigEndian.Uint32(b[off : off+4]) }

func TestCompileHeaderAndTextSegment(t *testing.T) {
	e := New()
	e.Function("main", nil, nil)
	e.Emit(opcode.BIPUSH, "", 5)
	e.Emit(opcode.HALT, "", 0)
	out, err := e.Compile()
	if err != nil {
		t.Fatal(err)
	}
	if readU32(out, 0) != magic {
		t.Fatalf("bad magic: %#x", readU32(out, 0))
	}
	if readU32(out, 4) != poolMarker {
		t.Fatalf("bad pool marker: %#x", readU32(out, 4))
	}
	poolLen := readU32(out, 8)
	if poolLen != 4 {
		t.Fatalf("pool length = %d, want 4 (no user constants, one function address for main)", poolLen)
	}
	textOff := 12 + int(poolLen)
	if readU32(out, textOff) != textMarker {
		t.Fatalf("bad text marker at %d", textOff)
	}
	textLen := readU32(out, textOff+4)
	if textLen != 3 {
		t.Fatalf("text length = %d, want 3 (BIPUSH 5, HALT)", textLen)
	}
	text := out[textOff+8 : textOff+8+int(textLen)]
	if text[0] != opcode.BIPUSH.Byte() || text[1] != 5 || text[2] != opcode.HALT.Byte() {
		t.Fatalf("got text bytes %v, want [BIPUSH 5 HALT]", text)
	}
}

func TestCompileConstantPool(t *testing.T) {
	e := New()
	e.Constant("N", 42)
	e.Function("main", nil, nil)
	e.Emit(opcode.LDC_W, "N", 0)
	e.Emit(opcode.HALT, "", 0)
	out, err := e.Compile()
	if err != nil {
		t.Fatal(err)
	}
	poolLen := readU32(out, 8)
	if poolLen != 8 {
		t.Fatalf("pool length = %d, want 8 (one user constant, one function address for main)", poolLen)
	}
	v := int32(readU32(out, 12))
	if v != 42 {
		t.Fatalf("pool[0] = %d, want 42", v)
	}
}

func TestCompileBranchDisplacementRelativeToOpcodeByte(t *testing.T) {
	e := New()
	e.Function("main", nil, nil)
	e.Label("start")
	e.Emit(opcode.GOTO, "start", 0) // a self-loop: displacement must be 0
	out, err := e.Compile()
	if err != nil {
		t.Fatal(err)
	}
	poolLen := readU32(out, 8)
	textOff := 12 + int(poolLen)
	textLen := readU32(out, textOff+4)
	if textLen != 3 { // GOTO opcode + 2-byte displacement
		t.Fatalf("text length = %d, want 3", textLen)
	}
	text := out[textOff+8 : textOff+8+int(textLen)]
	if text[0] != opcode.GOTO.Byte() {
		t.Fatalf("text[0] = %#x, want GOTO", text[0])
	}
	disp := int16(binary.BigEndian.Uint16(text[1:3]))
	if disp != 0 {
		t.Fatalf("self-loop displacement = %d, want 0 (relative to GOTO's own byte)", disp)
	}
}

func TestCompileUndefinedLabelFails(t *testing.T) {
	e := New()
	e.Function("main", nil, nil)
	e.Emit(opcode.GOTO, "nowhere", 0)
	if _, err := e.Compile(); err == nil {
		t.Fatal("expected a link error for a branch to an undefined label")
	}
}

func TestCompileUndefinedFunctionCallFails(t *testing.T) {
	e := New()
	e.Constant("__OBJREF__", 0)
	e.Function("main", nil, nil)
	e.Emit(opcode.LDC_W, "__OBJREF__", 0)
	e.Emit(opcode.INVOKEVIRTUAL, "nope", 0)
	if _, err := e.Compile(); err == nil {
		t.Fatal("expected a link error for a call to an undefined function")
	}
}

func TestFunctionHeaderForNonMain(t *testing.T) {
	e := New()
	e.Function("main", nil, nil)
	e.Emit(opcode.HALT, "", 0)
	e.Function("add", []string{"a", "b"}, []string{"c"})
	e.Emit(opcode.IRETURN, "", 0)
	out, err := e.Compile()
	if err != nil {
		t.Fatal(err)
	}
	poolLen := readU32(out, 8)
	textOff := 12 + int(poolLen)
	textLen := readU32(out, textOff+4)
	text := out[textOff+8 : textOff+8+int(textLen)]
	// main: HALT (1 byte). add: nargs(2) nlocals(2) IRETURN(1) = 5 bytes.
	if len(text) != 6 {
		t.Fatalf("text length = %d, want 6", len(text))
	}
	nargs := binary.BigEndian.Uint16(text[1:3])
	nlocals := binary.BigEndian.Uint16(text[3:5])
	if nargs != 2 || nlocals != 1 {
		t.Fatalf("got nargs=%d nlocals=%d, want 2/1", nargs, nlocals)
	}
}
