package main

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/launix-de/ijvmc/internal/ijvmback"
	"github.com/launix-de/ijvmc/internal/jasback"
	"github.com/launix-de/ijvmc/internal/opcode"
)

func TestDefaultOutput(t *testing.T) {
	cases := []struct{ src, ext, want string }{
		{"prog.ij", ".ijvm", "prog.ijvm"},
		{"dir/sub/prog.ij", ".jas", "dir/sub/prog.jas"},
		{"noext", ".bin", "noext.bin"},
	}
	for _, c := range cases {
		got := defaultOutput(c.src, c.ext)
		if got != c.want {
			t.Errorf("defaultOutput(%q, %q) = %q, want %q", c.src, c.ext, got, c.want)
		}
	}
}

func TestNewBackendSinkKnownKinds(t *testing.T) {
	sink, ext, err := newBackendSink("jas")
	if err != nil || ext != ".jas" {
		t.Fatalf("jas: got sink=%v ext=%q err=%v", sink, ext, err)
	}
	if _, ok := sink.(*jasback.Emitter); !ok {
		t.Fatalf("jas backend returned %T, want *jasback.Emitter", sink)
	}

	sink, ext, err = newBackendSink("ijvm")
	if err != nil || ext != ".ijvm" {
		t.Fatalf("ijvm: got sink=%v ext=%q err=%v", sink, ext, err)
	}
	if _, ok := sink.(*ijvmback.Emitter); !ok {
		t.Fatalf("ijvm backend returned %T, want *ijvmback.Emitter", sink)
	}
}

func TestNewBackendSinkUnknownKindFails(t *testing.T) {
	if _, _, err := newBackendSink("bogus"); err == nil {
		t.Fatal("expected an error for an unknown backend kind")
	}
}

func TestFrontendParseUnrecognisedExtensionFails(t *testing.T) {
	if err := frontendParse("prog.xyz", jasback.New(), nil); err == nil {
		t.Fatal("expected an error for an unrecognised source extension")
	}
}

func TestFrontendParseJasFile(t *testing.T) {
	dir := t.TempDir()
	src := filepath.Join(dir, "t.jas")
	if err := os.WriteFile(src, []byte(".main\nBIPUSH 5\nHALT\n.end-main\n"), 0o644); err != nil {
		t.Fatal(err)
	}
	sink := ijvmback.New()
	if err := frontendParse(src, sink, nil); err != nil {
		t.Fatal(err)
	}
	if _, err := sink.Compile(); err != nil {
		t.Fatal(err)
	}
}

func TestFrontendParseIjFile(t *testing.T) {
	dir := t.TempDir()
	src := filepath.Join(dir, "t.ij")
	if err := os.WriteFile(src, []byte("function main() { return 0; }\n"), 0o644); err != nil {
		t.Fatal(err)
	}
	sink := ijvmback.New()
	if err := frontendParse(src, sink, nil); err != nil {
		t.Fatal(err)
	}
	if _, err := sink.Compile(); err != nil {
		t.Fatal(err)
	}
}

func TestFrontendParseIjvmFile(t *testing.T) {
	inner := ijvmback.New()
	inner.Function("main", nil, nil)
	inner.Emit(opcode.BIPUSH, "", 5)
	inner.Emit(opcode.HALT, "", 0)
	img, err := inner.Compile()
	if err != nil {
		t.Fatal(err)
	}

	dir := t.TempDir()
	src := filepath.Join(dir, "t.ijvm")
	if err := os.WriteFile(src, img, 0o644); err != nil {
		t.Fatal(err)
	}

	sink := jasback.New()
	if err := frontendParse(src, sink, nil); err != nil {
		t.Fatal(err)
	}
	if _, err := sink.Compile(); err != nil {
		t.Fatal(err)
	}
}
