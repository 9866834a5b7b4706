//go:build amd64 && unix

package jit

import (
	"bufio"
	"fmt"
	"io"
	"os"
	"reflect"
	"unsafe"

	"golang.org/x/sys/unix"
)

// heap backs NEWARRAY/IALOAD/IASTORE. Generated code only ever sees a ref
// as an opaque int64, so arrays live on the Go side and are never handed
// a raw pointer into memory the GC could move or reclaim out from under
// the mmap'd code: values callable from native code are handles, not
// pointers.
var heap [][]int64

func shimGetchar() int64 {
	var b [1]byte
	if _, err := stdin.Read(b[:]); err != nil {
		return -1
	}
	return int64(b[0])
}

func shimPutchar(v int64) {
	stdout.WriteByte(byte(v))
	stdout.Flush()
}

func shimHalt(code int64) {
	stdout.Flush()
	os.Exit(int(code))
}

func shimErr(code int64) {
	stdout.Flush()
	fmt.Fprintf(os.Stderr, "ijvm: ERR %d\n", code)
	os.Exit(int(code))
}

func shimNewarray(size int64) int64 {
	ref := int64(len(heap))
	heap = append(heap, make([]int64, size))
	return ref
}

func shimIaload(ref, index int64) int64 {
	return heap[ref][index]
}

func shimIastore(ref, index, value int64) {
	heap[ref][index] = value
}

var (
	stdin  = bufio.NewReader(os.Stdin)
	stdout = bufio.NewWriter(os.Stdout)
)

// SetIO redirects the IN/OUT shims' streams. cmd/ij calls this to apply
// "-i"/"-o" file redirection before run() hands control to the JITed
// code, per spec.md §4.11 ("applied just before run() hands control").
func SetIO(in io.Reader, out io.Writer) {
	stdin = bufio.NewReader(in)
	stdout = bufio.NewWriter(out)
}

// asmGetchar, asmPutchar, asmHalt, asmErr, asmNewarray, asmIaload and
// asmIastore are implemented in run_amd64.s: raw entry points callable
// directly from JIT-compiled code under the SysV-style convention
// spec.md §4.10 assumes, each forwarding to the Go implementation above.
func asmGetchar()
func asmPutchar()
func asmHalt()
func asmErr()
func asmNewarray()
func asmIaload()
func asmIastore()

// callEntry is implemented in run_amd64.s. It places table into rdi and
// transfers control to code, satisfying spec.md §6's JIT runtime
// contract (rdi = &function_ptr_table).
func callEntry(code uintptr, table *uint64)

// funcPtr returns the raw entry address of an ABI0 assembly function,
// suitable for storing in the shim table generated code calls into
// directly — not a Go closure value, the bare code pointer.
func funcPtr(fn func()) uint64 {
	return uint64(reflect.ValueOf(fn).Pointer())
}

func buildShimTable() [ShimCount]uint64 {
	var t [ShimCount]uint64
	t[idxGetchar] = funcPtr(asmGetchar)
	t[idxPutchar] = funcPtr(asmPutchar)
	t[idxHalt] = funcPtr(asmHalt)
	t[idxErr] = funcPtr(asmErr)
	t[idxNewarray] = funcPtr(asmNewarray)
	t[idxIaload] = funcPtr(asmIaload)
	t[idxIastore] = funcPtr(asmIastore)
	// idxCalloc and idxDebug are host-side-only / unused by this
	// driver's generated code and are left zero.
	return t
}

// pageRound rounds n up to the next multiple of the system page size.
func pageRound(n int) int {
	ps := unix.Getpagesize()
	return (n + ps - 1) / ps * ps
}

// Run maps code into an executable page, builds the external-call shim
// table, and transfers control to it (spec.md §4.11's "run" mode for the
// x86-64 JIT backend). code must be the output of Emitter.Compile, with
// main's body placed first (Compile's ordering contract).
func Run(code []byte) error {
	n := pageRound(len(code))
	mem, err := unix.Mmap(-1, 0, n, unix.PROT_READ|unix.PROT_WRITE, unix.MAP_PRIVATE|unix.MAP_ANON)
	if err != nil {
		return fmt.Errorf("jit: mmap: %w", err)
	}
	defer unix.Munmap(mem)

	copy(mem, code)

	if err := unix.Mprotect(mem, unix.PROT_READ|unix.PROT_EXEC); err != nil {
		return fmt.Errorf("jit: mprotect: %w", err)
	}

	table := buildShimTable()
	callEntry(uintptr(unsafe.Pointer(&mem[0])), &table[0])
	stdout.Flush()
	return nil
}
