package main

import (
	"os"
	"os/exec"
)

// execSelf re-invokes this binary with args, inheriting stdio, and
// reports its exit code. Used wherever the driver needs a fresh process
// per JIT session (spec.md §5: run() never returns to its caller).
func execSelf(args []string) (int, error) {
	cmd := exec.Command(os.Args[0], args...)
	cmd.Stdin = os.Stdin
	cmd.Stdout = os.Stdout
	cmd.Stderr = os.Stderr
	err := cmd.Run()
	if err == nil {
		return 0, nil
	}
	if exitErr, ok := err.(*exec.ExitError); ok {
		return exitErr.ExitCode(), nil
	}
	return -1, err
}
