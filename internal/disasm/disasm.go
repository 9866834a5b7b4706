// Package disasm implements the IJVM-binary disassembler-frontend
// (spec.md §4.5): it reads a compiled image back into named constants
// and recovers each function's control-flow graph with a worklist of
// basic-block entry points, replaying every decoded opcode into an
// asm.Sink under synthesized loc_/func_ names.
package disasm

import (
	"encoding/binary"
	"fmt"
	"sort"

	"github.com/launix-de/ijvmc/internal/asm"
	"github.com/launix-de/ijvmc/internal/buffer"
	"github.com/launix-de/ijvmc/internal/diag"
	"github.com/launix-de/ijvmc/internal/opcode"
)

const (
	magic       uint32 = 0x1DEADFAD
	poolMarker  uint32 = 0xD000D000
	textMarker  uint32 = 0x00000000
	funcMarker  uint32 = 0xEEEEEEEE
	labelMarker uint32 = 0xFFFFFFFF
)

// Disassemble reads a valid IJVM image from data and replays it into sink.
func Disassemble(data []byte, sink asm.Sink) (err error) {
	defer func() {
		if r := recover(); r != nil {
			if de, ok := r.(*diag.Error); ok {
				err = de
				return
			}
			panic(r)
		}
	}()

	r := buffer.NewReader(buffer.New(data))
	if got := buffer.Read[uint32](r, binary.BigEndian); got != magic {
		diag.FailNoPos(diag.LinkError, "bad image magic %#x", got)
	}
	if got := buffer.Read[uint32](r, binary.BigEndian); got != poolMarker {
		diag.FailNoPos(diag.LinkError, "bad pool marker %#x", got)
	}
	poolBytes := buffer.Read[uint32](r, binary.BigEndian)
	pool := make([]int32, poolBytes/4)
	for i := range pool {
		pool[i] = buffer.Read[int32](r, binary.BigEndian)
	}
	if got := buffer.Read[uint32](r, binary.BigEndian); got != textMarker {
		diag.FailNoPos(diag.LinkError, "bad text marker %#x", got)
	}
	textBytes := buffer.Read[uint32](r, binary.BigEndian)
	text := r.ReadBytes(int(textBytes))

	// The func/label symbol tables are written for external tooling; the
	// canonical decode path below recovers its own structure and names,
	// so these sections are only validated, not consulted.
	if got := buffer.Read[uint32](r, binary.BigEndian); got != funcMarker {
		diag.FailNoPos(diag.LinkError, "bad func marker %#x", got)
	}
	funcSymBytes := buffer.Read[uint32](r, binary.BigEndian)
	r.Seek(r.Position() + int(funcSymBytes))
	if got := buffer.Read[uint32](r, binary.BigEndian); got != labelMarker {
		diag.FailNoPos(diag.LinkError, "bad label marker %#x", got)
	}
	labelSymBytes := buffer.Read[uint32](r, binary.BigEndian)
	r.Seek(r.Position() + int(labelSymBytes))

	d := &decoder{text: text, pool: pool, sink: sink, doneFuncs: map[int]bool{}}
	d.queue = []pendingFunc{{addr: 0, name: "main"}}
	for len(d.queue) > 0 {
		pf := d.queue[0]
		d.queue = d.queue[1:]
		if d.doneFuncs[pf.addr] {
			continue
		}
		d.doneFuncs[pf.addr] = true
		d.decodeFunction(pf)
	}
	return nil
}

type pendingFunc struct {
	addr int
	name string
}

type decoder struct {
	text      []byte
	pool      []int32
	sink      asm.Sink
	doneFuncs map[int]bool
	queue     []pendingFunc
	constSeen map[int]string
}

// instr is one decoded opcode at a fixed text offset.
type instr struct {
	offset  int
	op      opcode.Op
	next    int
	varIdx  int   // ArgVar, ArgVarImm
	imm     int32 // ArgByte, ArgVarImm
	target  int   // ArgLabel (absolute offset)
	poolIdx int   // ArgConst, ArgFunc
}

func (d *decoder) decodeFunction(pf pendingFunc) {
	isMain := pf.name == "main"
	bodyStart := pf.addr
	var args []string
	var locals []string
	if !isMain {
		nargs := int(beU16(d.text, pf.addr))
		nvars := int(beU16(d.text, pf.addr+2))
		bodyStart = pf.addr + 4
		for i := 0; i < nargs; i++ {
			args = append(args, fmt.Sprintf("arg_%d", i))
		}
		for i := 0; i < nvars; i++ {
			locals = append(locals, fmt.Sprintf("local_%d", i))
		}
	}

	instrs, order, blockStarts, maxVar := d.scanFunction(bodyStart)

	if isMain && maxVar >= 0 {
		for i := 0; i <= maxVar; i++ {
			locals = append(locals, fmt.Sprintf("local_%d", i))
		}
	}

	d.sink.Function(pf.name, args, locals)
	names := reverseVarNames(isMain, args, locals)

	for _, off := range order {
		in := instrs[off]
		if blockStarts[off] && off != bodyStart {
			d.sink.Label(locName(off))
		}
		d.emit(in, names)
	}
}

func (d *decoder) emit(in instr, names []string) {
	switch opcode.Shape(in.op) {
	case opcode.ArgNone:
		d.sink.Emit(in.op, "", 0)
	case opcode.ArgByte:
		d.sink.Emit(in.op, "", in.imm)
	case opcode.ArgVar:
		d.sink.Emit(in.op, varName(names, in.varIdx), 0)
	case opcode.ArgVarImm:
		d.sink.Emit(in.op, varName(names, in.varIdx), in.imm)
	case opcode.ArgLabel:
		d.sink.Emit(in.op, locName(in.target), 0)
	case opcode.ArgConst:
		d.sink.Emit(in.op, d.constName(in.poolIdx), 0)
	case opcode.ArgFunc:
		addr := int(d.pool[in.poolIdx])
		name := funcName(addr)
		if !d.doneFuncs[addr] {
			d.queue = append(d.queue, pendingFunc{addr: addr, name: name})
		}
		d.sink.Emit(in.op, name, 0)
	}
}

// constName declares (once) and returns a synthesized name for a
// constant-pool slot referenced by LDC_W.
func (d *decoder) constName(idx int) string {
	if d.constSeen == nil {
		d.constSeen = map[int]string{}
	}
	if name, ok := d.constSeen[idx]; ok {
		return name
	}
	name := fmt.Sprintf("constant_%d", idx)
	d.sink.Constant(name, d.pool[idx])
	d.constSeen[idx] = name
	return name
}

func locName(offset int) string { return fmt.Sprintf("loc_%x", offset) }
func funcName(addr int) string  { return fmt.Sprintf("func_%x", addr) }

// reverseVarNames builds an index-aligned name table: index 0 is the
// anonymous OBJREF slot (empty string) for non-main functions, matching
// asm.VarLayout's forward mapping.
func reverseVarNames(isMain bool, args, locals []string) []string {
	start := 0
	if !isMain {
		start = 1
	}
	names := make([]string, start+len(args)+len(locals))
	for i, a := range args {
		names[start+i] = a
	}
	for i, v := range locals {
		names[start+len(args)+i] = v
	}
	return names
}

func varName(names []string, idx int) string {
	if idx >= 0 && idx < len(names) {
		return names[idx]
	}
	return ""
}

// scanFunction performs the worklist-based basic-block recovery described
// in spec.md §4.5: decode sequentially from each pending entry point until
// a terminator or an already-visited offset, queuing every branch target.
func (d *decoder) scanFunction(start int) (instrs map[int]instr, order []int, blockStarts map[int]bool, maxVar int) {
	instrs = map[int]instr{}
	visited := map[int]bool{}
	blockStarts = map[int]bool{start: true}
	worklist := []int{start}
	maxVar = -1

	for len(worklist) > 0 {
		pc := worklist[len(worklist)-1]
		worklist = worklist[:len(worklist)-1]
		for !visited[pc] {
			in := decodeAt(d.text, pc)
			visited[pc] = true
			instrs[pc] = in

			switch opcode.Shape(in.op) {
			case opcode.ArgVar, opcode.ArgVarImm:
				if in.varIdx > maxVar {
					maxVar = in.varIdx
				}
			case opcode.ArgLabel:
				blockStarts[in.target] = true
				worklist = append(worklist, in.target)
				if in.op != opcode.GOTO {
					blockStarts[in.next] = true
					worklist = append(worklist, in.next)
				}
			}

			terminal := in.op == opcode.HALT || in.op == opcode.ERR ||
				in.op == opcode.IRETURN || in.op == opcode.GOTO
			if terminal || in.next >= len(d.text) {
				break
			}
			pc = in.next
		}
	}

	for off := range instrs {
		order = append(order, off)
	}
	sort.Ints(order)
	return instrs, order, blockStarts, maxVar
}

func beU16(text []byte, off int) uint16 {
	return binary.BigEndian.Uint16(text[off : off+2])
}

// decodeAt decodes exactly one instruction (including a leading WIDE
// prefix, if present) at offset off.
func decodeAt(text []byte, off int) instr {
	start := off
	wide := false
	if opcode.Op(text[off]) == opcode.WIDE {
		wide = true
		off++
	}
	op, ok := opcode.FromByte(text[off])
	if !ok {
		diag.FailNoPos(diag.LinkError, "unknown opcode byte %#x at offset %#x", text[off], off)
	}
	pc := off + 1
	in := instr{offset: start, op: op}

	switch opcode.Shape(op) {
	case opcode.ArgNone:
		// nothing
	case opcode.ArgByte:
		in.imm = int32(int8(text[pc]))
		pc++
	case opcode.ArgVar:
		if wide {
			in.varIdx = int(binary.BigEndian.Uint16(text[pc : pc+2]))
			pc += 2
		} else {
			in.varIdx = int(text[pc])
			pc++
		}
	case opcode.ArgVarImm:
		if wide {
			in.varIdx = int(binary.BigEndian.Uint16(text[pc : pc+2]))
			pc += 2
		} else {
			in.varIdx = int(text[pc])
			pc++
		}
		in.imm = int32(int8(text[pc]))
		pc++
	case opcode.ArgLabel:
		disp := int(int16(binary.BigEndian.Uint16(text[pc : pc+2])))
		in.target = start + disp
		pc += 2
	case opcode.ArgConst:
		in.poolIdx = int(binary.BigEndian.Uint16(text[pc : pc+2]))
		pc += 2
	case opcode.ArgFunc:
		in.poolIdx = int(binary.BigEndian.Uint16(text[pc : pc+2]))
		pc += 2
	}
	in.next = pc
	return in
}
