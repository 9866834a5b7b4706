// Package jit implements the x86-64 JIT backend (spec.md §4.10): an
// asm.Sink that emits a function's machine code into a growable buffer,
// resolves its own intra-function branch targets, and leaves
// inter-function calls as pending link-time fixups resolved once every
// function's final placement in the combined code buffer is known.
//
// The per-function writer and its label/fixup bookkeeping grow as
// slices rather than fixed-size arrays, since an arbitrary compiled IJ
// function has no natural size ceiling the way a fixed primitive body
// would.
package jit

import "github.com/launix-de/ijvmc/internal/diag"

type fixup struct {
	pos      int // byte offset of the rel32/abs32 field
	labelID  int
	size     int // operand width in bytes (always 4 here)
	relative bool
}

// writer accumulates one function's machine code and its local label
// fixups. Cross-function call targets are tracked separately by Emitter
// since they can only be resolved once every function has a final
// address in the combined buffer.
type writer struct {
	code   []byte
	labels []int32 // -1 until MarkLabel
	fixups []fixup
}

func (w *writer) Len() int { return len(w.code) }

func (w *writer) byte(b byte) { w.code = append(w.code, b) }

func (w *writer) bytes(bs ...byte) { w.code = append(w.code, bs...) }

func (w *writer) u32le(v uint32) {
	w.bytes(byte(v), byte(v>>8), byte(v>>16), byte(v>>24))
}

func (w *writer) u64le(v uint64) {
	w.u32le(uint32(v))
	w.u32le(uint32(v >> 32))
}

// reserveLabel allocates an undefined label id, to be fixed up later by
// a forward branch and resolved by a subsequent markLabel.
func (w *writer) reserveLabel() int {
	id := len(w.labels)
	w.labels = append(w.labels, -1)
	return id
}

func (w *writer) markLabel(id int) {
	w.labels[id] = int32(len(w.code))
}

// addFixup records a forward reference to label id at the current write
// position; resolveFixups patches it once every label in this function
// has been marked.
func (w *writer) addFixup(labelID int) {
	w.fixups = append(w.fixups, fixup{pos: len(w.code), labelID: labelID, size: 4, relative: true})
	w.u32le(0) // placeholder
}

func (w *writer) resolveFixups() {
	for _, f := range w.fixups {
		target := w.labels[f.labelID]
		if target < 0 {
			diag.FailNoPos(diag.LinkError, "branch to undefined label in JIT-compiled function")
		}
		disp := target - (int32(f.pos) + int32(f.size))
		putI32(w.code[f.pos:], disp)
	}
	w.fixups = nil
}

func putI32(dst []byte, v int32) {
	u := uint32(v)
	dst[0] = byte(u)
	dst[1] = byte(u >> 8)
	dst[2] = byte(u >> 16)
	dst[3] = byte(u >> 24)
}
