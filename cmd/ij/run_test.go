package main

import (
	"io"
	"os"
	"path/filepath"
	"testing"
)

func TestOpenIODefaultsToStdio(t *testing.T) {
	in, out, closeIO, err := openIO("", "")
	if err != nil {
		t.Fatal(err)
	}
	defer closeIO()
	if in != io.Reader(os.Stdin) {
		t.Error("expected stdin to be the default reader")
	}
	if out != io.Writer(os.Stdout) {
		t.Error("expected stdout to be the default writer")
	}
}

func TestOpenIORedirectsToFiles(t *testing.T) {
	dir := t.TempDir()
	inPath := filepath.Join(dir, "in.txt")
	outPath := filepath.Join(dir, "out.txt")
	if err := os.WriteFile(inPath, []byte("hello"), 0o644); err != nil {
		t.Fatal(err)
	}

	in, out, closeIO, err := openIO(inPath, outPath)
	if err != nil {
		t.Fatal(err)
	}
	defer closeIO()

	got, err := io.ReadAll(in)
	if err != nil {
		t.Fatal(err)
	}
	if string(got) != "hello" {
		t.Fatalf("read %q, want %q", got, "hello")
	}

	if _, err := out.Write([]byte("world")); err != nil {
		t.Fatal(err)
	}
	closeIO()

	written, err := os.ReadFile(outPath)
	if err != nil {
		t.Fatal(err)
	}
	if string(written) != "world" {
		t.Fatalf("wrote %q, want %q", written, "world")
	}
}

func TestOpenIOMissingInputFails(t *testing.T) {
	if _, _, _, err := openIO(filepath.Join(t.TempDir(), "nope.txt"), ""); err == nil {
		t.Fatal("expected an error for a missing input file")
	}
}
