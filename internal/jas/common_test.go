package jas

import (
	"testing"

	"github.com/launix-de/ijvmc/internal/lexer"
)

func parseImm(t *testing.T, src string) int32 {
	l := lexer.NewLexer(nil)
	if err := l.AddString("t.jas", src); err != nil {
		t.Fatal(err)
	}
	return ParseImmediate(l)
}

func TestParseImmediateDecimal(t *testing.T) {
	if v := parseImm(t, "42"); v != 42 {
		t.Errorf("got %d, want 42", v)
	}
}

func TestParseImmediateNegativeDecimal(t *testing.T) {
	if v := parseImm(t, "-42"); v != -42 {
		t.Errorf("got %d, want -42", v)
	}
}

func TestParseImmediateHex(t *testing.T) {
	if v := parseImm(t, "0x7F"); v != 127 {
		t.Errorf("got %d, want 127", v)
	}
}

func TestParseImmediateChar(t *testing.T) {
	if v := parseImm(t, "'A'"); v != 65 {
		t.Errorf("got %d, want 65", v)
	}
}

func TestParseImmediateOutOfByteRangePanics(t *testing.T) {
	defer func() {
		if recover() == nil {
			t.Fatal("expected ParseImmediate to panic on an out-of-byte-range value")
		}
	}()
	parseImm(t, "200")
}

func TestParseImmediateWideAcceptsFullRange(t *testing.T) {
	l := lexer.NewLexer(nil)
	if err := l.AddString("t.jas", "70000"); err != nil {
		t.Fatal(err)
	}
	if v := ParseImmediateWide(l); v != 70000 {
		t.Errorf("got %d, want 70000", v)
	}
}

func TestParseImmediateWideOutOfRangePanics(t *testing.T) {
	l := lexer.NewLexer(nil)
	if err := l.AddString("t.jas", "99999999999"); err != nil {
		t.Fatal(err)
	}
	defer func() {
		if recover() == nil {
			t.Fatal("expected ParseImmediateWide to panic on an out-of-32-bit-range value")
		}
	}()
	ParseImmediateWide(l)
}
