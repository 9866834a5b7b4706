package main

import (
	"crypto/rand"
	"flag"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/dc0d/onexit"
	"github.com/google/uuid"

	"github.com/launix-de/ijvmc/internal/asm"
	"github.com/launix-de/ijvmc/internal/ast"
	"github.com/launix-de/ijvmc/internal/diag"
	"github.com/launix-de/ijvmc/internal/disasm"
	"github.com/launix-de/ijvmc/internal/ijparser"
	"github.com/launix-de/ijvmc/internal/ijvmback"
	"github.com/launix-de/ijvmc/internal/jasback"
	"github.com/launix-de/ijvmc/internal/jasparser"
	"github.com/launix-de/ijvmc/internal/lower"
)

func main() {
	uuid.SetRand(rand.Reader)

	if len(os.Args) < 2 {
		usage()
		os.Exit(2)
	}

	var err error
	switch os.Args[1] {
	case "compile":
		err = runCompile(os.Args[2:])
	case "run":
		err = runRun(os.Args[2:])
	case "repl":
		err = runRepl(os.Args[2:])
	default:
		usage()
		os.Exit(2)
	}

	if err != nil {
		if de, ok := err.(*diag.Error); ok {
			fmt.Fprintln(os.Stderr, de.Error())
		} else {
			fmt.Fprintln(os.Stderr, "ij:", err)
		}
		os.Exit(1)
	}
}

func usage() {
	fmt.Fprintln(os.Stderr, `ij compile [-o FILE] [-f {jas,ijvm,x64}] [-v] [-d] SRC
ij run     [-i FILE] [-o FILE] [-watch] [-v] [-d] SRC
ij repl    [-d]`)
}

// setupTrace honours "-v" (success-level logging) and "-d" (info-level
// logging plus a Chrome-trace-event file, spec.md §6), stamping the
// trace file with a session UUID.
func setupTrace(verbose, debug bool) *diag.Trace {
	switch {
	case debug:
		diag.CurrentLevel = diag.LevelInfo
	case verbose:
		diag.CurrentLevel = diag.LevelSuccess
	}
	if !debug {
		return nil
	}
	name := fmt.Sprintf("ij_trace_%s.json", uuid.New().String())
	f, err := os.Create(name)
	if err != nil {
		diag.Logf(diag.LevelInfo, "ij: could not open trace file %s: %v", name, err)
		return nil
	}
	tr := diag.NewTrace(f)
	onexit.Register(func() { tr.Close() })
	diag.Logf(diag.LevelInfo, "ij: tracing to %s", name)
	return tr
}

// frontendParse parses src (by extension: .ij, .jas, or a raw .ijvm
// binary image, spec.md §4.11) and feeds it straight into sink. An .ij
// program first gets its synthesized main (lower.SynthMain) and is pruned
// (lower.Prune) before lowering.
func frontendParse(src string, sink asm.Sink, tr *diag.Trace) error {
	switch ext := strings.ToLower(filepath.Ext(src)); ext {
	case ".ij":
		var (
			prg  *ast.Program
			perr error
		)
		tr.Phase("parse", func() {
			prg, perr = ijparser.ParseFile(src)
		})
		if perr != nil {
			return perr
		}
		var lowerErr error
		tr.Phase("lower", func() {
			defer func() {
				if r := recover(); r != nil {
					de, ok := r.(*diag.Error)
					if !ok {
						panic(r)
					}
					lowerErr = de
				}
			}()
			if lowerErr = lower.SynthMain(prg); lowerErr == nil {
				lowerErr = lower.Prune(prg)
			}
			if lowerErr == nil {
				lowerErr = lower.Lower(prg, sink)
			}
		})
		return lowerErr
	case ".jas":
		var perr error
		tr.Phase("parse", func() {
			perr = jasparser.ParseFile(src, sink)
		})
		return perr
	case ".ijvm":
		data, rerr := os.ReadFile(src)
		if rerr != nil {
			return rerr
		}
		var derr error
		tr.Phase("disassemble", func() {
			derr = disasm.Disassemble(data, sink)
		})
		return derr
	default:
		return fmt.Errorf("unrecognised source extension %q (want .ij, .jas or .ijvm)", ext)
	}
}

// defaultOutput derives an output path from src when "-o" is omitted,
// swapping the extension for the one the chosen backend produces.
func defaultOutput(src, ext string) string {
	base := strings.TrimSuffix(src, filepath.Ext(src))
	return base + ext
}

func newBackendSink(kind string) (asm.Sink, string, error) {
	switch kind {
	case "jas":
		return jasback.New(), ".jas", nil
	case "ijvm":
		return ijvmback.New(), ".ijvm", nil
	case "x64":
		return newJITSink()
	default:
		return nil, "", fmt.Errorf("unknown backend %q (want jas, ijvm or x64)", kind)
	}
}

func runCompile(args []string) error {
	fs := flag.NewFlagSet("compile", flag.ExitOnError)
	output := fs.String("o", "", "output file (default: SRC with the backend's extension)")
	backend := fs.String("f", "ijvm", "backend: jas, ijvm or x64")
	verbose := fs.Bool("v", false, "log successes")
	debug := fs.Bool("d", false, "log info and record a trace file")
	fs.Parse(args)
	if fs.NArg() != 1 {
		return fmt.Errorf("compile: expected exactly one SRC argument")
	}
	src := fs.Arg(0)

	tr := setupTrace(*verbose, *debug)
	defer tr.Close()

	sink, ext, err := newBackendSink(*backend)
	if err != nil {
		return err
	}
	if err := frontendParse(src, sink, tr); err != nil {
		return err
	}

	var out []byte
	tr.Phase("emit", func() {
		out, err = sink.Compile()
	})
	if err != nil {
		return err
	}

	dst := *output
	if dst == "" {
		dst = defaultOutput(src, ext)
	}
	if err := os.WriteFile(dst, out, 0o644); err != nil {
		return err
	}
	diag.Logf(diag.LevelSuccess, "ij: wrote %s (%d bytes)", dst, len(out))
	return nil
}
