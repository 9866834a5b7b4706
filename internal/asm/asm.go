// Package asm defines the target-independent instruction sink every
// frontend (IJ lowering, the JAS parser, the IJVM disassembler) emits
// into, and every backend (IJVM, JAS, x86-64 JIT) implements. Pseudo-ops
// (PUSH_VAL, SET_VAR, INC_VAR, IMUL) live here rather than per backend
// and expand to the same instruction sequence for every backend; an
// IMUL opcode written in a jas{} block is a separate instruction that
// each backend encodes itself.
package asm

import "github.com/launix-de/ijvmc/internal/opcode"

// Sink is the abstract instruction destination. A frontend drives a Sink
// without knowing which backend (if any) it is attached to.
type Sink interface {
	// Constant declares or updates a named integer constant.
	Constant(name string, value int32)
	// Function ends the previous function's emission scope (if any) and
	// begins a new one, registering its local-variable names in order
	// (index 0 is the implicit OBJREF on every function except main).
	Function(name string, args []string, locals []string)
	// Label marks the next emission point with a function-local label.
	Label(name string)
	// IsVar reports whether name is a variable of the current function.
	IsVar(name string) bool
	// IsConstant reports whether name has been declared as a constant.
	IsConstant(name string) bool

	// Emit appends one instruction. Arg is interpreted according to
	// opcode.Shape(op): ArgByte/ArgVarImm carry Imm, ArgVar/ArgLabel/
	// ArgConst/ArgFunc carry Ident (and ArgVarImm carries both).
	Emit(op opcode.Op, ident string, imm int32)

	// Compile finalises (links, flushes) the sink and returns the
	// backend-specific artifact bytes. For the JIT backend this is the
	// raw machine code buffer rather than something meant to be written
	// to a file.
	Compile() ([]byte, error)
}

// PUSH_VAL implements spec.md §4.6's portable push-a-literal pseudo-op:
// BIPUSH when v fits a signed byte, else LDC_W a synthesized constant.
// The synthesized name is reused across calls for the same v so repeated
// literals share one pool entry.
func PUSH_VAL(s Sink, v int32) {
	if v >= -128 && v <= 127 {
		s.Emit(opcode.BIPUSH, "", v)
		return
	}
	name := constName(v)
	if !s.IsConstant(name) {
		s.Constant(name, v)
	}
	s.Emit(opcode.LDC_W, name, 0)
}

func constName(v int32) string {
	abs := int64(v)
	neg := ""
	if abs < 0 {
		abs = -abs
		neg = "n"
	}
	return "__const_" + itoa(abs) + neg + "__"
}

func itoa(v int64) string {
	if v == 0 {
		return "0"
	}
	var buf [20]byte
	i := len(buf)
	for v > 0 {
		i--
		buf[i] = byte('0' + v%10)
		v /= 10
	}
	return string(buf[i:])
}

// VarLayout computes the local-variable index assigned to every arg and
// local of a function, reserving index 0 for the synthetic OBJREF receiver
// on every function but "main" (the glossary's "synthetic first argument
// of every non-main function"). Every backend's Function(name, args,
// locals) goes through this so the three backends agree on indexing
// without each re-deriving the OBJREF offset rule.
func VarLayout(name string, args, locals []string) (index map[string]int, total int) {
	index = make(map[string]int, len(args)+len(locals))
	i := 0
	if name != "main" {
		i = 1 // index 0 is the anonymous OBJREF slot
	}
	for _, a := range args {
		index[a] = i
		i++
	}
	for _, v := range locals {
		index[v] = i
		i++
	}
	return index, i
}

// SET_VAR implements `name = v;` as PUSH_VAL(v); ISTORE name.
func SET_VAR(s Sink, name string, v int32) {
	PUSH_VAL(s, v)
	s.Emit(opcode.ISTORE, name, 0)
}

// INC_VAR implements the IINC fast path for a byte-range delta; callers
// must first check -128 <= v <= 127 (spec.md's boundary: IINC x 128
// requires falling back to ILOAD/PUSH_VAL/IADD/ISTORE instead).
func INC_VAR(s Sink, name string, v int32) {
	s.Emit(opcode.IINC, name, v)
}

// IMUL expands a compile-time multiplication by k using only DUP, IADD,
// ISUB, BIPUSH, SWAP, POP (spec.md §4.7). The top of the abstract stack
// is consumed and k*old_top (mod 2^32) is left in its place.
//
// Binary double-and-add without a separate accumulator slot: at bit i
// (from the LSB), if the bit is set, DUP leaves one copy of the current
// running value parked underneath as a "pending" term while the other
// copy on top keeps doubling for higher bits. After the highest set bit,
// every pending term plus the final running value sit on the stack in
// order and are folded pairwise with IADD.
func IMUL(s Sink, k int32) {
	if k == 0 {
		s.Emit(opcode.POP, "", 0)
		s.Emit(opcode.BIPUSH, "", 0)
		return
	}
	sign := k < 0
	abs := uint32(k)
	if sign {
		abs = uint32(-int64(k))
	}

	highestBit := 0
	for b := abs; b > 1; b >>= 1 {
		highestBit++
	}

	pending := 0
	for i := 0; i <= highestBit; i++ {
		bitSet := (abs>>uint(i))&1 != 0
		last := i == highestBit
		if bitSet {
			pending++
			if !last {
				s.Emit(opcode.DUP, "", 0) // park a pending copy, keep doubling the other
			}
		}
		if !last {
			s.Emit(opcode.DUP, "", 0)
			s.Emit(opcode.IADD, "", 0) // double the running value for the next bit
		}
	}
	for i := 0; i < pending-1; i++ {
		s.Emit(opcode.IADD, "", 0) // fold pending terms into the final product
	}
	if sign {
		s.Emit(opcode.BIPUSH, "", 0)
		s.Emit(opcode.SWAP, "", 0)
		s.Emit(opcode.ISUB, "", 0) // 0 - (|k|*old_top)
	}
}
