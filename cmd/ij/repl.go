package main

import (
	"flag"
	"fmt"
	"io"
	"os"
	"runtime/debug"

	"github.com/chzyer/readline"
)

const (
	replPrompt = "\033[32m>\033[0m "
	replResult = "\033[31m=\033[0m "
)

// runRepl is the interactive shell built on top of "compile" and "run":
// same readline config, same history file, same anti-panic recover
// wrapping each line. Each line's IJ statement(s) are wrapped as the
// body of a throwaway main() and run in a fresh child process, since a
// JIT session never returns to its own process once control leaves Go
// (spec.md §5); the child's exit code is the REPL's result. A
// "jas { ... }" block is only accepted as a function body, not as a
// statement, so it cannot be entered here.
func runRepl(args []string) error {
	fs := flag.NewFlagSet("repl", flag.ExitOnError)
	debugFlag := fs.Bool("d", false, "log info and record a trace file")
	fs.Parse(args)
	setupTrace(false, *debugFlag)

	l, err := readline.NewEx(&readline.Config{
		Prompt:            replPrompt,
		HistoryFile:       ".ij-history.tmp",
		InterruptPrompt:   "^C",
		EOFPrompt:         "exit",
		HistorySearchFold: true,
	})
	if err != nil {
		return err
	}
	defer l.Close()
	l.CaptureExitSignal()

	for {
		line, err := l.Readline()
		if err == readline.ErrInterrupt {
			continue
		} else if err == io.EOF {
			break
		} else if err != nil {
			return err
		}
		if line == "" {
			continue
		}

		func() {
			defer func() {
				if r := recover(); r != nil {
					fmt.Println("panic:", r, string(debug.Stack()))
				}
			}()
			code, err := evalLine(line)
			if err != nil {
				fmt.Println(replResult, err)
				return
			}
			fmt.Println(replResult, "exit", code)
		}()
	}
	return nil
}

// evalLine wraps src as main()'s body, compiles it, and runs it in a
// child process, returning that process's exit code.
func evalLine(src string) (int, error) {
	tmp, err := os.CreateTemp("", "ij-repl-*.ij")
	if err != nil {
		return -1, err
	}
	defer os.Remove(tmp.Name())

	wrapped := "function main() {\n" + src + "\n}\n"
	if _, err := tmp.WriteString(wrapped); err != nil {
		tmp.Close()
		return -1, err
	}
	if err := tmp.Close(); err != nil {
		return -1, err
	}

	return spawnRun(tmp.Name(), "", "")
}
