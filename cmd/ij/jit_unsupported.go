//go:build !(amd64 && unix)

package main

import (
	"fmt"
	"io"

	"github.com/launix-de/ijvmc/internal/asm"
)

// The x86-64 JIT backend generates and executes machine code directly,
// so it only exists on amd64/unix builds (internal/jit has no fallback
// implementation for other architectures).
func newJITSink() (asm.Sink, string, error) {
	return nil, "", fmt.Errorf("the x64 backend is only available on amd64/unix")
}

func runJIT(code []byte, in io.Reader, out io.Writer) error {
	return fmt.Errorf("the x64 backend is only available on amd64/unix")
}
