// Package buffer implements a growable byte array with endian-aware
// append/write/read, used by every wire-format producer and consumer in
// the toolchain (JAS text aside): the IJVM binary emitter and the IJVM
// disassembler-frontend both go through a Buffer.
//
// The style — a flat []byte plus small integer-width helpers dispatched by
// a type switch rather than reflection — keeps byte order an explicit
// argument everywhere, with no encoding framework involved.
package buffer

import (
	"encoding/binary"
	"os"
	"unsafe"
)

// NativeEndian is the process's native byte order, computed once at
// startup (spec.md §5).
var NativeEndian binary.ByteOrder

func init() {
	var probe [2]byte
	*(*uint16)(unsafe.Pointer(&probe[0])) = 1
	if probe[0] == 1 {
		NativeEndian = binary.LittleEndian
	} else {
		NativeEndian = binary.BigEndian
	}
}

// Integer is the set of widths Buffer knows how to append/write/read.
type Integer interface {
	int8 | uint8 | int16 | uint16 | int32 | uint32 | int64 | uint64
}

// Buffer is a growable byte array. The zero value is an empty buffer ready
// to use.
type Buffer struct {
	data []byte
}

// New wraps an existing slice (e.g. a file's contents) in a Buffer without
// copying.
func New(data []byte) *Buffer { return &Buffer{data: data} }

// MapFile reads an entire file into a Buffer. Failure to open or read the
// file is fatal to the caller (spec.md §5: I/O failure on a compiler
// input/output is a hard error, not a recoverable one).
func MapFile(path string) (*Buffer, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	return New(data), nil
}

// Bytes returns the buffer's current contents. The slice is shared with
// the Buffer — callers must not retain it across further appends.
func (b *Buffer) Bytes() []byte { return b.data }

// Len returns the number of bytes currently stored.
func (b *Buffer) Len() int { return len(b.data) }

// AppendByte appends one raw byte (a character or tag byte with no
// endianness).
func (b *Buffer) AppendByte(v byte) { b.data = append(b.data, v) }

// AppendBytes appends a raw byte string verbatim.
func (b *Buffer) AppendBytes(v []byte) { b.data = append(b.data, v...) }

// AppendBuffer appends the full contents of another buffer.
func (b *Buffer) AppendBuffer(other *Buffer) { b.data = append(b.data, other.data...) }

// Append appends a signed or unsigned integer of width 8/16/32/64 using the
// given byte order. order == nil means NativeEndian.
func Append[T Integer](b *Buffer, v T, order binary.ByteOrder) {
	if order == nil {
		order = NativeEndian
	}
	switch x := any(v).(type) {
	case int8:
		b.data = append(b.data, byte(x))
	case uint8:
		b.data = append(b.data, x)
	case int16:
		b.data = appendU16(b.data, uint16(x), order)
	case uint16:
		b.data = appendU16(b.data, x, order)
	case int32:
		b.data = appendU32(b.data, uint32(x), order)
	case uint32:
		b.data = appendU32(b.data, x, order)
	case int64:
		b.data = appendU64(b.data, uint64(x), order)
	case uint64:
		b.data = appendU64(b.data, x, order)
	}
}

// Write patches a previously appended integer in place at offset — used by
// the IJVM backend's linker to back-patch branch displacements and
// constant-pool indices once their targets are known.
func Write[T Integer](b *Buffer, v T, offset int, order binary.ByteOrder) {
	if order == nil {
		order = NativeEndian
	}
	switch x := any(v).(type) {
	case int8:
		b.data[offset] = byte(x)
	case uint8:
		b.data[offset] = x
	case int16:
		writeU16(b.data[offset:], uint16(x), order)
	case uint16:
		writeU16(b.data[offset:], x, order)
	case int32:
		writeU32(b.data[offset:], uint32(x), order)
	case uint32:
		writeU32(b.data[offset:], x, order)
	case int64:
		writeU64(b.data[offset:], uint64(x), order)
	case uint64:
		writeU64(b.data[offset:], x, order)
	}
}

func appendU16(data []byte, v uint16, order binary.ByteOrder) []byte {
	var tmp [2]byte
	order.PutUint16(tmp[:], v)
	return append(data, tmp[:]...)
}
func appendU32(data []byte, v uint32, order binary.ByteOrder) []byte {
	var tmp [4]byte
	order.PutUint32(tmp[:], v)
	return append(data, tmp[:]...)
}
func appendU64(data []byte, v uint64, order binary.ByteOrder) []byte {
	var tmp [8]byte
	order.PutUint64(tmp[:], v)
	return append(data, tmp[:]...)
}
func writeU16(dst []byte, v uint16, order binary.ByteOrder) { order.PutUint16(dst, v) }
func writeU32(dst []byte, v uint32, order binary.ByteOrder) { order.PutUint32(dst, v) }
func writeU64(dst []byte, v uint64, order binary.ByteOrder) { order.PutUint64(dst, v) }

// Reader is a stateful cursor over a Buffer's bytes, used by the IJVM
// disassembler-frontend.
type Reader struct {
	buf *Buffer
	pos int
}

// NewReader returns a Reader positioned at the start of b.
func NewReader(b *Buffer) *Reader { return &Reader{buf: b} }

// Position returns the current byte offset.
func (r *Reader) Position() int { return r.pos }

// Seek repositions the cursor. Out-of-range seeks are a fatal programmer
// error in this compiler — there is no recoverable "bad offset" path.
func (r *Reader) Seek(pos int) {
	if pos < 0 || pos > len(r.buf.data) {
		panic("buffer: seek out of range")
	}
	r.pos = pos
}

// HasNext reports whether at least sizeof(T) bytes remain.
func HasNext[T Integer](r *Reader) bool {
	var zero T
	return r.pos+widthOf(zero) <= len(r.buf.data)
}

func widthOf(v any) int {
	switch v.(type) {
	case int8, uint8:
		return 1
	case int16, uint16:
		return 2
	case int32, uint32:
		return 4
	default:
		return 8
	}
}

// ReadByte reads one raw byte with no endianness.
func (r *Reader) ReadByte() byte {
	v := r.buf.data[r.pos]
	r.pos++
	return v
}

// ReadBytes reads n raw bytes verbatim.
func (r *Reader) ReadBytes(n int) []byte {
	v := r.buf.data[r.pos : r.pos+n]
	r.pos += n
	return v
}

// Read reads a signed or unsigned integer of width 8/16/32/64 in the given
// byte order, advancing the cursor.
func Read[T Integer](r *Reader, order binary.ByteOrder) T {
	if order == nil {
		order = NativeEndian
	}
	var zero T
	n := widthOf(zero)
	raw := r.buf.data[r.pos : r.pos+n]
	r.pos += n
	switch any(zero).(type) {
	case int8:
		return T(int8(raw[0]))
	case uint8:
		return T(raw[0])
	case int16:
		return T(int16(order.Uint16(raw)))
	case uint16:
		return T(order.Uint16(raw))
	case int32:
		return T(int32(order.Uint32(raw)))
	case uint32:
		return T(order.Uint32(raw))
	case int64:
		return T(int64(order.Uint64(raw)))
	case uint64:
		return T(order.Uint64(raw))
	}
	panic("buffer: unreachable")
}

// ReadCString reads a NUL-terminated byte string (used for the IJVM image's
// function/label symbol tables) and returns it without the terminator.
func (r *Reader) ReadCString() string {
	start := r.pos
	for r.buf.data[r.pos] != 0 {
		r.pos++
	}
	s := string(r.buf.data[start:r.pos])
	r.pos++ // skip NUL
	return s
}

// AppendCString appends s followed by a NUL terminator.
func (b *Buffer) AppendCString(s string) {
	b.data = append(b.data, s...)
	b.data = append(b.data, 0)
}
