package asm

import (
	"testing"

	"github.com/launix-de/ijvmc/internal/opcode"
)

// stackSink is a minimal Sink that executes the tiny subset of opcodes
// IMUL/PUSH_VAL emit against a Go-side int32 stack, so the pseudo-ops can
// be checked for actual numeric correctness rather than just shape.
type stackSink struct {
	stack     []int32
	constants map[string]int32
}

func newStackSink(seed int32) *stackSink {
	return &stackSink{stack: []int32{seed}, constants: map[string]int32{}}
}

func (s *stackSink) Constant(name string, value int32)                    { s.constants[name] = value }
func (s *stackSink) Function(name string, args []string, locals []string) {}
func (s *stackSink) Label(name string)                                    {}
func (s *stackSink) IsVar(name string) bool                               { return false }
func (s *stackSink) IsConstant(name string) bool                          { _, ok := s.constants[name]; return ok }
func (s *stackSink) Compile() ([]byte, error)                             { return nil, nil }

func (s *stackSink) push(v int32) { s.stack = append(s.stack, v) }
func (s *stackSink) pop() int32 {
	v := s.stack[len(s.stack)-1]
	s.stack = s.stack[:len(s.stack)-1]
	return v
}

func (s *stackSink) Emit(op opcode.Op, ident string, imm int32) {
	switch op {
	case opcode.BIPUSH:
		s.push(imm)
	case opcode.LDC_W:
		s.push(s.constants[ident])
	case opcode.DUP:
		s.push(s.stack[len(s.stack)-1])
	case opcode.SWAP:
		n := len(s.stack)
		s.stack[n-1], s.stack[n-2] = s.stack[n-2], s.stack[n-1]
	case opcode.POP:
		s.pop()
	case opcode.IADD:
		b, a := s.pop(), s.pop()
		s.push(a + b)
	case opcode.ISUB:
		b, a := s.pop(), s.pop()
		s.push(a - b)
	default:
		panic("stackSink: unsupported opcode in test harness: " + op.String())
	}
}

func TestIMULMatchesMultiplication(t *testing.T) {
	factors := []int32{0, 1, -1, 2, -2, 3, -3, 5, -5, 7, 10, -10, 100, -100, 127, -128, 12345, -12345}
	operands := []int32{0, 1, -1, 2, -7, 1000, -1000}
	for _, k := range factors {
		for _, x := range operands {
			s := newStackSink(x)
			IMUL(s, k)
			if len(s.stack) != 1 {
				t.Fatalf("IMUL(%d) on %d left %d values on stack, want 1", k, x, len(s.stack))
			}
			want := int32(int64(k) * int64(x)) // truncating mod 2^32 like the real VM
			if s.stack[0] != want {
				t.Errorf("IMUL(%d) on %d = %d, want %d", k, x, s.stack[0], want)
			}
		}
	}
}

func TestPushValBoundary(t *testing.T) {
	tests := []struct {
		v        int32
		wantOp   opcode.Op
		wantPool bool
	}{
		{127, opcode.BIPUSH, false},
		{128, opcode.LDC_W, true},
		{-128, opcode.BIPUSH, false},
		{-129, opcode.LDC_W, true},
	}
	for _, tt := range tests {
		var lastOp opcode.Op
		count := 0
		sink := &recordingSink{constants: map[string]int32{}, onEmit: func(op opcode.Op, ident string, imm int32) {
			lastOp = op
			count++
		}}
		PUSH_VAL(sink, tt.v)
		if count != 1 {
			t.Fatalf("PUSH_VAL(%d) emitted %d instructions, want 1", tt.v, count)
		}
		if lastOp != tt.wantOp {
			t.Errorf("PUSH_VAL(%d) emitted %s, want %s", tt.v, lastOp, tt.wantOp)
		}
	}
}

type recordingSink struct {
	constants map[string]int32
	onEmit    func(op opcode.Op, ident string, imm int32)
}

func (s *recordingSink) Constant(name string, value int32)                    { s.constants[name] = value }
func (s *recordingSink) Function(name string, args []string, locals []string) {}
func (s *recordingSink) Label(name string)                                    {}
func (s *recordingSink) IsVar(name string) bool                               { return false }
func (s *recordingSink) IsConstant(name string) bool                          { _, ok := s.constants[name]; return ok }
func (s *recordingSink) Compile() ([]byte, error)                             { return nil, nil }
func (s *recordingSink) Emit(op opcode.Op, ident string, imm int32)           { s.onEmit(op, ident, imm) }
