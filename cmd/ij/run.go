package main

import (
	"flag"
	"fmt"
	"io"
	"os"
	"time"

	"github.com/fsnotify/fsnotify"
	"github.com/google/uuid"

	"github.com/launix-de/ijvmc/internal/diag"
)

func runRun(args []string) error {
	fs := flag.NewFlagSet("run", flag.ExitOnError)
	input := fs.String("i", "", "redirect IN from FILE (default: stdin)")
	output := fs.String("o", "", "redirect OUT to FILE (default: stdout)")
	watch := fs.Bool("watch", false, "recompile and re-run whenever SRC changes")
	verbose := fs.Bool("v", false, "log successes")
	debug := fs.Bool("d", false, "log info and record a trace file")
	fs.Parse(args)
	if fs.NArg() != 1 {
		return fmt.Errorf("run: expected exactly one SRC argument")
	}
	src := fs.Arg(0)

	tr := setupTrace(*verbose, *debug)
	defer tr.Close()

	if *watch {
		return watchAndRun(src, *input, *output)
	}
	return compileAndRun(src, *input, *output, tr)
}

// compileAndRun parses+lowers src into the x64 JIT backend, links it,
// and transfers control to it. Per spec.md §5 this call returns only
// through the child's own exit (HALT/ERR) when self-hosted, or — for
// the in-process path used directly by "ij run" — jit.Run never
// returns at all once control leaves Go, since HALT/ERR call exit(2).
func compileAndRun(src, inputFile, outputFile string, tr *diag.Trace) error {
	in, out, closeIO, err := openIO(inputFile, outputFile)
	if err != nil {
		return err
	}
	defer closeIO()

	session := uuid.New()
	diag.Logf(diag.LevelSuccess, "ij: run session %s (%s)", session, src)

	sink, _, err := newJITSink()
	if err != nil {
		return err
	}
	if err := frontendParse(src, sink, tr); err != nil {
		return err
	}
	var code []byte
	tr.Phase("emit", func() {
		code, err = sink.Compile()
	})
	if err != nil {
		return err
	}
	return runJIT(code, in, out)
}

func openIO(inputFile, outputFile string) (io.Reader, io.Writer, func(), error) {
	in := io.Reader(os.Stdin)
	out := io.Writer(os.Stdout)
	closers := make([]*os.File, 0, 2)

	if inputFile != "" {
		f, err := os.Open(inputFile)
		if err != nil {
			return nil, nil, nil, err
		}
		in = f
		closers = append(closers, f)
	}
	if outputFile != "" {
		f, err := os.Create(outputFile)
		if err != nil {
			return nil, nil, nil, err
		}
		out = f
		closers = append(closers, f)
	}
	return in, out, func() {
		for _, f := range closers {
			f.Close()
		}
	}, nil
}

// watchAndRun re-executes "ij run SRC" as a fresh child process every
// time SRC changes: a debounce-by-draining-extra-events loop, and a
// rewatch after each reread since editors rename on save. Each run is a
// separate process because run() never returns to its own process
// (spec.md §5) — only a new process can recompile for the next edit.
func watchAndRun(src, inputFile, outputFile string) error {
	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return err
	}
	defer watcher.Close()
	if err := watcher.Add(src); err != nil {
		return err
	}

	reread := func() {
		code, err := spawnRun(src, inputFile, outputFile)
		if err != nil {
			fmt.Fprintln(os.Stderr, "ij:", err)
		} else {
			diag.Logf(diag.LevelSuccess, "ij: %s exited %d", src, code)
		}
	}
	reread()

	for {
		select {
		case _, ok := <-watcher.Events:
			if !ok {
				return nil
			}
			for {
				time.Sleep(10 * time.Millisecond)
				select {
				case <-watcher.Events:
					continue
				default:
				}
				break
			}
			reread()
			watcher.Add(src) // editors often rename-on-save; re-add just in case
		case err, ok := <-watcher.Errors:
			if !ok {
				return nil
			}
			fmt.Fprintln(os.Stderr, "ij: watch:", err)
		}
	}
}

// spawnRun runs "ij run SRC" (without -watch) as a child process and
// returns its exit code, used by both -watch and the repl subcommand —
// see run.go's compileAndRun doc comment for why a fresh process is
// needed each time.
func spawnRun(src, inputFile, outputFile string) (int, error) {
	args := []string{"run"}
	if inputFile != "" {
		args = append(args, "-i", inputFile)
	}
	if outputFile != "" {
		args = append(args, "-o", outputFile)
	}
	args = append(args, src)
	return execSelf(args)
}
