//go:build amd64 && unix

package main

import (
	"io"

	"github.com/launix-de/ijvmc/internal/asm"
	"github.com/launix-de/ijvmc/internal/jit"
)

func newJITSink() (asm.Sink, string, error) {
	return jit.New(), ".bin", nil
}

func runJIT(code []byte, in io.Reader, out io.Writer) error {
	jit.SetIO(in, out)
	return jit.Run(code)
}
