// Package ijvmback implements the binary IJVM image emitter (spec.md
// §4.8): a flat code buffer, a two-pass label/function linker, and the
// wire serialisation described in §6.
package ijvmback

import (
	"encoding/binary"

	"github.com/launix-de/ijvmc/internal/asm"
	"github.com/launix-de/ijvmc/internal/buffer"
	"github.com/launix-de/ijvmc/internal/diag"
	"github.com/launix-de/ijvmc/internal/opcode"
	"github.com/launix-de/ijvmc/internal/token"
)

const (
	magic       uint32 = 0x1DEADFAD
	poolMarker  uint32 = 0xD000D000
	textMarker  uint32 = 0x00000000
	funcMarker  uint32 = 0xEEEEEEEE
	labelMarker uint32 = 0xFFFFFFFF
)

type funcRec struct {
	name      string
	isMain    bool
	textStart int // global text offset of the first body instruction
}

// Emitter is an asm.Sink that accumulates a flat IJVM text segment and
// links it in one pass at Compile time.
type Emitter struct {
	constants   []namedConst
	constIndex  map[string]int
	funcOrder   []*funcRec
	cur         *funcRec
	varIndex    map[string]int
	text        *buffer.Buffer
	pendingJump map[int]string // text offset of the branch opcode byte -> "func#label"
	pendingInv  map[int]string // text offset of the 2-byte placeholder -> function name
	labelAddr   map[string]int // "func#label" -> global text offset
	labelOrder  []string       // "func#label", in Label() call order, for reproducible symbol-table output
}

type namedConst struct {
	name  string
	value int32
}

func New() *Emitter {
	return &Emitter{
		constIndex:  map[string]int{},
		text:        &buffer.Buffer{},
		pendingJump: map[int]string{},
		pendingInv:  map[int]string{},
		labelAddr:   map[string]int{},
	}
}

func (e *Emitter) Constant(name string, value int32) {
	if idx, ok := e.constIndex[name]; ok {
		e.constants[idx].value = value
		return
	}
	e.constIndex[name] = len(e.constants)
	e.constants = append(e.constants, namedConst{name: name, value: value})
}

func (e *Emitter) IsConstant(name string) bool {
	_, ok := e.constIndex[name]
	return ok
}

func (e *Emitter) IsVar(name string) bool {
	_, ok := e.varIndex[name]
	return ok
}

// Function registers fr.textStart as the offset of the function's header
// (or, for main, its first instruction) — the address the constant pool
// records and an INVOKEVIRTUAL resolves to, so the disassembler can read
// (nargs, nvars) starting exactly there (spec.md §4.5).
func (e *Emitter) Function(name string, args []string, locals []string) {
	index, _ := asm.VarLayout(name, args, locals)
	fr := &funcRec{name: name, isMain: name == "main", textStart: e.text.Len()}
	if !fr.isMain {
		buffer.Append(e.text, uint16(len(args)), binary.BigEndian)
		buffer.Append(e.text, uint16(len(locals)), binary.BigEndian)
	}
	e.funcOrder = append(e.funcOrder, fr)
	e.cur = fr
	e.varIndex = index
}

func (e *Emitter) Label(name string) {
	key := e.cur.name + "#" + name
	if _, ok := e.labelAddr[key]; !ok {
		e.labelOrder = append(e.labelOrder, key)
	}
	e.labelAddr[key] = e.text.Len()
}

// Emit writes op and its operand(s), auto-inserting WIDE when a local
// index exceeds 255 (spec.md §4.8).
func (e *Emitter) Emit(op opcode.Op, ident string, imm int32) {
	switch opcode.Shape(op) {
	case opcode.ArgNone:
		e.text.AppendByte(op.Byte())

	case opcode.ArgByte:
		e.text.AppendByte(op.Byte())
		e.text.AppendByte(byte(int8(imm)))

	case opcode.ArgVar:
		idx := e.resolveVar(ident)
		if idx > 255 {
			e.text.AppendByte(opcode.WIDE.Byte())
			e.text.AppendByte(op.Byte())
			buffer.Append(e.text, uint16(idx), binary.BigEndian)
		} else {
			e.text.AppendByte(op.Byte())
			e.text.AppendByte(byte(idx))
		}

	case opcode.ArgVarImm:
		idx := e.resolveVar(ident)
		if idx > 255 {
			e.text.AppendByte(opcode.WIDE.Byte())
			e.text.AppendByte(op.Byte())
			buffer.Append(e.text, uint16(idx), binary.BigEndian)
		} else {
			e.text.AppendByte(op.Byte())
			e.text.AppendByte(byte(idx))
		}
		e.text.AppendByte(byte(int8(imm)))

	case opcode.ArgLabel:
		opOffset := e.text.Len()
		e.text.AppendByte(op.Byte())
		e.pendingJump[opOffset] = e.cur.name + "#" + ident
		buffer.Append(e.text, int16(0), binary.BigEndian)

	case opcode.ArgConst:
		e.text.AppendByte(op.Byte())
		e.emitConstRef(ident)

	case opcode.ArgFunc:
		e.text.AppendByte(op.Byte())
		e.pendingInv[e.text.Len()] = ident
		buffer.Append(e.text, uint16(0), binary.BigEndian)
	}
}

// emitConstRef resolves an LDC_W operand to its pool index. The frontend
// is expected to have already checked IsConstant before choosing LDC_W,
// so a miss here is a programmer error in the caller, not a link error.
func (e *Emitter) emitConstRef(ident string) {
	idx, ok := e.constIndex[ident]
	if !ok {
		diag.Fail(diag.SemanticError, token.Pos{}, "LDC_W of undeclared constant %q", ident)
	}
	buffer.Append(e.text, uint16(idx), binary.BigEndian)
}

func (e *Emitter) resolveVar(ident string) int {
	idx, ok := e.varIndex[ident]
	if !ok {
		diag.Fail(diag.SemanticError, token.Pos{}, "unknown local %q in function %q", ident, e.cur.name)
	}
	return idx
}

// Compile finalises the constant pool (user constants then one function
// address per function, in emission order), resolves every pending jump
// and invoke placeholder (LDC_W pool indices are already written by
// Emit), and serialises the image.
func (e *Emitter) Compile() (result []byte, err error) {
	defer func() {
		if r := recover(); r != nil {
			if de, ok := r.(*diag.Error); ok {
				err = de
				return
			}
			panic(r)
		}
	}()

	funcPoolIndex := map[string]int{}
	pool := make([]int32, len(e.constants))
	for i, c := range e.constants {
		pool[i] = c.value
	}
	for _, fr := range e.funcOrder {
		funcPoolIndex[fr.name] = len(pool)
		pool = append(pool, int32(fr.textStart))
	}

	for opOffset, target := range e.pendingJump {
		laddr, ok := e.labelAddr[target]
		if !ok {
			diag.FailNoPos(diag.LinkError, "branch to undefined label %q", target)
		}
		// Displacements are relative to the branch opcode's own byte
		// (spec.md §6), not the placeholder that follows it.
		disp := laddr - opOffset
		if disp < -(1<<15) || disp >= (1<<15) {
			diag.FailNoPos(diag.LinkError, "branch displacement %d out of 16-bit range for %q", disp, target)
		}
		buffer.Write(e.text, int16(disp), opOffset+1, binary.BigEndian)
	}
	for offset, target := range e.pendingInv {
		idx, ok := funcPoolIndex[target]
		if !ok {
			diag.FailNoPos(diag.LinkError, "call to undefined function %q", target)
		}
		buffer.Write(e.text, uint16(idx), offset, binary.BigEndian)
	}

	out := &buffer.Buffer{}
	buffer.Append(out, magic, binary.BigEndian)
	buffer.Append(out, poolMarker, binary.BigEndian)
	buffer.Append(out, uint32(len(pool)*4), binary.BigEndian)
	for _, v := range pool {
		buffer.Append(out, v, binary.BigEndian)
	}
	buffer.Append(out, textMarker, binary.BigEndian)
	buffer.Append(out, uint32(e.text.Len()), binary.BigEndian)
	out.AppendBuffer(e.text)

	buffer.Append(out, funcMarker, binary.BigEndian)
	funcSyms := &buffer.Buffer{}
	for _, fr := range e.funcOrder {
		buffer.Append(funcSyms, uint32(fr.textStart), binary.BigEndian)
		funcSyms.AppendCString(fr.name)
	}
	buffer.Append(out, uint32(funcSyms.Len()), binary.BigEndian)
	out.AppendBuffer(funcSyms)

	buffer.Append(out, labelMarker, binary.BigEndian)
	labelSyms := &buffer.Buffer{}
	for _, name := range e.labelOrder {
		buffer.Append(labelSyms, uint32(e.labelAddr[name]), binary.BigEndian)
		labelSyms.AppendCString(name)
	}
	buffer.Append(out, uint32(labelSyms.Len()), binary.BigEndian)
	out.AppendBuffer(labelSyms)

	return out.Bytes(), nil
}
