//go:build amd64

package jit

import (
	"github.com/launix-de/ijvmc/internal/diag"
	"github.com/launix-de/ijvmc/internal/opcode"
	"github.com/launix-de/ijvmc/internal/token"
)

// Shim table indices, matching the fixed order spec.md §6 requires of
// run()'s function_ptr_table: getchar, putchar, halt, err, calloc,
// newarray, iaload, iastore, [debug]. The calloc slot (idxCalloc) is
// left zero by Run's shim table, since shimNewarray allocates on the Go
// side; generated code never calls it, so it has no opcode case below.
const (
	idxGetchar  = 0
	idxPutchar  = 1
	idxHalt     = 2
	idxErr      = 3
	idxCalloc   = 4
	idxNewarray = 5
	idxIaload   = 6
	idxIastore  = 7
	idxDebug    = 8
	ShimCount   = 9
)

// frame carries the geometry needed to turn an argument/local name into
// an rbp-relative offset (spec.md §4.10's "Frame layout"). Every slot's
// offset is derived from nargs alone: OBJREF (when present) always sits
// at rbp+0, one slot above arg0, which is true even for main — the
// prologue is emitted identically either way, main simply never
// addresses the slot since it has no OBJREF name to look up.
type frame struct {
	nargs   int
	nlocals int
}

func (f frame) argOff(i int) int32    { return int32(-8 * (i + 1)) }
func (f frame) retAddrOff() int32     { return int32(-8 * (f.nargs + 1)) }
func (f frame) baseOff() int32        { return int32(-8 * (f.nargs + 2)) }
func (f frame) rspScratchOff() int32  { return int32(-8 * (f.nargs + 3)) }
func (f frame) localOff(i int) int32  { return int32(-8*(f.nargs+4) - 8*i) }
func (f frame) frameSlotCount() int32 { return int32(f.nlocals + 1) }

const sentinel uint64 = 0x1337133713371337

type pendingCall struct {
	pos    int // offset, within this function's code, of the rel32 field
	target string
}

type funcInfo struct {
	name    string
	isMain  bool
	w       *writer
	frame   frame
	offsets map[string]int32 // arg/local name -> rbp offset
	labelID map[string]int
	calls   []pendingCall
}

// Emitter is an asm.Sink that JITs directly to x86-64 machine code,
// implementing the IJVM calling convention described in spec.md §4.10.
type Emitter struct {
	constants map[string]int32
	funcOrder []*funcInfo
	byName    map[string]*funcInfo
	cur       *funcInfo
}

func New() *Emitter {
	return &Emitter{constants: map[string]int32{}, byName: map[string]*funcInfo{}}
}

func (e *Emitter) Constant(name string, value int32) { e.constants[name] = value }

func (e *Emitter) IsConstant(name string) bool {
	_, ok := e.constants[name]
	return ok
}

func (e *Emitter) IsVar(name string) bool {
	if e.cur == nil {
		return false
	}
	_, ok := e.cur.offsets[name]
	return ok
}

// Function finalises the previous function's intra-function branch
// fixups, then opens a new one and emits its prologue: push rbp; lea
// rbp, [rsp + (2+nargs)*8]; sub rsp, (nlocals+1)*8; push the safety-
// barrier sentinel (spec.md §4.10).
func (e *Emitter) Function(name string, args []string, locals []string) {
	if e.cur != nil {
		e.cur.w.resolveFixups()
	}
	fi := &funcInfo{
		name:    name,
		isMain:  name == "main",
		w:       &writer{},
		frame:   frame{nargs: len(args), nlocals: len(locals)},
		offsets: map[string]int32{},
		labelID: map[string]int{},
	}
	for i, a := range args {
		fi.offsets[a] = fi.frame.argOff(i)
	}
	for i, v := range locals {
		fi.offsets[v] = fi.frame.localOff(i)
	}
	e.funcOrder = append(e.funcOrder, fi)
	e.byName[name] = fi
	e.cur = fi

	w := fi.w
	w.push64(RBP)
	w.regMemOp(0x8D, RBP, RSP, int32(2+fi.frame.nargs)*8) // LEA RBP, [RSP+(2+nargs)*8]
	w.subRspImm32(fi.frame.frameSlotCount() * 8)
	w.movRegImm64(RAX, sentinel)
	w.push64(RAX)
}

func (e *Emitter) labelID(name string) int {
	if id, ok := e.cur.labelID[name]; ok {
		return id
	}
	id := e.cur.w.reserveLabel()
	e.cur.labelID[name] = id
	return id
}

func (e *Emitter) Label(name string) {
	e.cur.w.markLabel(e.labelID(name))
}

func (e *Emitter) resolveOffset(ident string) int32 {
	off, ok := e.cur.offsets[ident]
	if !ok {
		diag.Fail(diag.SemanticError, token.Pos{}, "unknown local %q in JIT-compiled function %q", ident, e.cur.name)
	}
	return off
}

func (e *Emitter) loadShim(w *writer, idx int) {
	w.movLoad(RAX, R14, int32(idx*8))
}

// externalBracket brackets an indirect call through RAX with the
// alignment dance spec.md §4.10 requires for calls into the host ABI:
// preserve r14, realign rsp to 16 bytes, call, restore rsp and r14.
func (e *Emitter) externalBracket(w *writer) {
	w.push64(R14)
	w.movStore(RBP, e.cur.frame.rspScratchOff(), RSP)
	w.andRspImm32(-16)
	w.callReg(RAX)
	w.movLoad(RSP, RBP, e.cur.frame.rspScratchOff())
	w.pop64(R14)
}

// popPair pops the top two 64-bit stack slots into RCX (top) and RAX
// (below it) — the operand order every binary IJVM arithmetic op needs.
func popPair(w *writer) {
	w.pop64(RCX)
	w.pop64(RAX)
}

var notImplemented = map[opcode.Op]bool{
	opcode.GC: true, opcode.NETBIND: true, opcode.NETCONNECT: true,
	opcode.NETIN: true, opcode.NETOUT: true, opcode.NETCLOSE: true,
}

// Emit translates one IJVM instruction into its native-code expansion.
// Every binary arithmetic/bitwise op operates on the low 32 bits of its
// operands and sign-extends the result back to 64, per spec.md §4.10.
func (e *Emitter) Emit(op opcode.Op, ident string, imm int32) {
	w := e.cur.w
	switch op {
	case opcode.NOP:
		w.byte(0x90)

	case opcode.BIPUSH:
		w.pushImm32(imm)

	case opcode.LDC_W:
		v, ok := e.constants[ident]
		if !ok {
			diag.Fail(diag.SemanticError, token.Pos{}, "LDC_W of undeclared constant %q", ident)
		}
		w.pushImm32(v)

	case opcode.DUP:
		w.movLoad(RAX, RSP, 0)
		w.push64(RAX)
	case opcode.POP:
		w.addRspImm8(8)
	case opcode.SWAP:
		w.movLoad(RAX, RSP, 0)
		w.movLoad(RCX, RSP, 8)
		w.movStore(RSP, 0, RCX)
		w.movStore(RSP, 8, RAX)

	case opcode.IADD:
		popPair(w)
		w.aluRegReg32(0x01, RAX, RCX)
		w.movsxdEaxToRax()
		w.push64(RAX)
	case opcode.ISUB:
		popPair(w)
		w.aluRegReg32(0x29, RAX, RCX)
		w.movsxdEaxToRax()
		w.push64(RAX)
	case opcode.IAND:
		popPair(w)
		w.aluRegReg32(0x21, RAX, RCX)
		w.movsxdEaxToRax()
		w.push64(RAX)
	case opcode.IOR:
		popPair(w)
		w.aluRegReg32(0x09, RAX, RCX)
		w.movsxdEaxToRax()
		w.push64(RAX)
	case opcode.IMUL:
		popPair(w)
		w.imul32(RAX, RCX)
		w.movsxdEaxToRax()
		w.push64(RAX)
	case opcode.IDIV:
		popPair(w)
		w.cdq()
		w.idiv32(RCX)
		w.movsxdEaxToRax()
		w.push64(RAX)
	case opcode.SHL:
		popPair(w) // RCX=amount, RAX=value
		w.shl32cl(RAX)
		w.movsxdEaxToRax()
		w.push64(RAX)
	case opcode.SHR:
		popPair(w)
		w.shr32cl(RAX)
		w.movsxdEaxToRax()
		w.push64(RAX)

	case opcode.IFEQ:
		w.pop64(RAX)
		w.cmpImm32(RAX, 0)
		w.jcc(ccE, e.labelID(ident))
	case opcode.IFLT:
		w.pop64(RAX)
		w.cmpImm32(RAX, 0)
		w.jcc(ccL, e.labelID(ident))
	case opcode.ICMPEQ:
		popPair(w)
		w.aluRegReg32(0x39, RAX, RCX) // CMP
		w.jcc(ccE, e.labelID(ident))
	case opcode.GOTO:
		w.jmp(e.labelID(ident))

	case opcode.ILOAD:
		off := e.resolveOffset(ident)
		w.movLoad(RAX, RBP, off)
		w.push64(RAX)
	case opcode.ISTORE:
		off := e.resolveOffset(ident)
		w.pop64(RAX)
		w.movStore(RBP, off, RAX)
	case opcode.IINC:
		off := e.resolveOffset(ident)
		w.aluMemImm32(0, RBP, off, imm) // sel 0 = ADD

	case opcode.INVOKEVIRTUAL:
		pos := w.callRel32Placeholder()
		e.cur.calls = append(e.cur.calls, pendingCall{pos: pos, target: ident})
		w.push64(RAX)
	case opcode.IRETURN:
		w.pop64(RAX)
		w.movLoad(RCX, RBP, e.cur.frame.retAddrOff())
		w.movRegReg(RSP, RBP)
		w.movLoad(RBP, RBP, e.cur.frame.baseOff())
		w.jmpReg(RCX)

	case opcode.IN:
		e.loadShim(w, idxGetchar)
		e.externalBracket(w)
		w.push64(RAX)
	case opcode.OUT:
		w.pop64(RDI)
		e.loadShim(w, idxPutchar)
		e.externalBracket(w)
	case opcode.HALT:
		w.pop64(RDI)
		e.loadShim(w, idxHalt)
		e.externalBracket(w)
	case opcode.ERR:
		w.pop64(RDI)
		e.loadShim(w, idxErr)
		e.externalBracket(w)
	case opcode.NEWARRAY:
		w.pop64(RDI)
		e.loadShim(w, idxNewarray)
		e.externalBracket(w)
		w.push64(RAX)
	case opcode.IALOAD:
		w.pop64(RDI) // arrayref (top of stack: lowerExpr pushes index then array)
		w.pop64(RSI) // index
		e.loadShim(w, idxIaload)
		e.externalBracket(w)
		w.push64(RAX)
	case opcode.IASTORE:
		w.pop64(RDI) // arrayref (top of stack: lowerAssign pushes value, index, array)
		w.pop64(RSI) // index
		w.pop64(RDX) // value
		e.loadShim(w, idxIastore)
		e.externalBracket(w)

	default:
		if notImplemented[op] {
			diag.Fail(diag.SemanticError, token.Pos{}, "%s is not implemented by the x86-64 JIT backend", op.String())
		}
		diag.Fail(diag.SemanticError, token.Pos{}, "opcode %s has no x86-64 JIT expansion", op.String())
	}
}

// Compile resolves every function's intra-function branches, places the
// functions back to back (main first, per lower.Lower's ordering
// contract — the same "main inline at the front" convention the IJVM
// backend follows), and patches every INVOKEVIRTUAL call site against
// its target's final offset.
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

	if e.cur != nil {
		e.cur.w.resolveFixups()
	}

	starts := make([]int, len(e.funcOrder))
	total := 0
	for i, fi := range e.funcOrder {
		starts[i] = total
		total += fi.w.Len()
	}
	code := make([]byte, 0, total)
	for _, fi := range e.funcOrder {
		code = append(code, fi.w.code...)
	}

	for i, fi := range e.funcOrder {
		for _, c := range fi.calls {
			target, ok := e.byName[c.target]
			if !ok {
				diag.FailNoPos(diag.LinkError, "call to undefined function %q", c.target)
			}
			var targetIdx int
			for j, f := range e.funcOrder {
				if f == target {
					targetIdx = j
					break
				}
			}
			placeholder := starts[i] + c.pos
			nextInstr := placeholder + 4
			disp := int32(starts[targetIdx] - nextInstr)
			putI32(code[placeholder:], disp)
		}
	}

	return code, nil
}
