// Package jasback implements the textual JAS emitter (spec.md §4.9): a
// direct asm.Sink that renders mnemonics and directives rather than
// encoding bytes, so it is structurally much simpler than the IJVM
// backend — there is no linking pass, since labels/locals/constants stay
// named all the way to the output text.
package jasback

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/launix-de/ijvmc/internal/opcode"
)

type namedConst struct {
	name  string
	value int32
}

type funcBuf struct {
	name   string
	isMain bool
	args   []string
	locals []string
	lines  []string
}

// Emitter is an asm.Sink that renders JAS text directly; Emit/Label calls
// are buffered per function and flushed in Compile.
type Emitter struct {
	constants  []namedConst
	constIndex map[string]int
	functions  []*funcBuf
	cur        *funcBuf
	varSet     map[string]bool
}

func New() *Emitter {
	return &Emitter{constIndex: map[string]int{}}
}

func (e *Emitter) Constant(name string, value int32) {
	if idx, ok := e.constIndex[name]; ok {
		e.constants[idx].value = value
		return
	}
	e.constIndex[name] = len(e.constants)
	e.constants = append(e.constants, namedConst{name: name, value: value})
}

func (e *Emitter) IsConstant(name string) bool {
	_, ok := e.constIndex[name]
	return ok
}

func (e *Emitter) IsVar(name string) bool {
	return e.varSet[name]
}

func (e *Emitter) Function(name string, args []string, locals []string) {
	fb := &funcBuf{name: name, isMain: name == "main", args: args, locals: locals}
	e.functions = append(e.functions, fb)
	e.cur = fb
	e.varSet = map[string]bool{}
	for _, a := range args {
		e.varSet[a] = true
	}
	for _, v := range locals {
		e.varSet[v] = true
	}
}

func (e *Emitter) Label(name string) {
	e.cur.lines = append(e.cur.lines, name+":")
}

func (e *Emitter) Emit(op opcode.Op, ident string, imm int32) {
	mnemonic := op.String()
	switch opcode.Shape(op) {
	case opcode.ArgNone:
		e.cur.lines = append(e.cur.lines, mnemonic)
	case opcode.ArgByte:
		e.cur.lines = append(e.cur.lines, mnemonic+" "+formatImm(imm))
	case opcode.ArgVar, opcode.ArgLabel, opcode.ArgConst, opcode.ArgFunc:
		e.cur.lines = append(e.cur.lines, mnemonic+" "+ident)
	case opcode.ArgVarImm:
		e.cur.lines = append(e.cur.lines, mnemonic+" "+ident+" "+formatImm(imm))
	}
}

func formatImm(v int32) string {
	return strconv.FormatInt(int64(v), 10)
}

// Compile renders the buffered constants and functions as JAS text.
func (e *Emitter) Compile() ([]byte, error) {
	var sb strings.Builder

	if len(e.constants) > 0 {
		sb.WriteString(".constant\n")
		for _, c := range e.constants {
			fmt.Fprintf(&sb, "%s = %s\n", c.name, formatImm(c.value))
		}
		sb.WriteString(".end-constant\n\n")
	}

	for _, fb := range e.functions {
		if fb.isMain {
			sb.WriteString(".main\n")
		} else {
			fmt.Fprintf(&sb, ".method %s(%s)\n", fb.name, strings.Join(fb.args, ","))
		}
		if len(fb.locals) > 0 {
			sb.WriteString(".var\n")
			sb.WriteString(strings.Join(fb.locals, ","))
			sb.WriteString("\n.end-var\n")
		}
		for _, line := range fb.lines {
			sb.WriteString(line)
			sb.WriteByte('\n')
		}
		if fb.isMain {
			sb.WriteString(".end-main\n\n")
		} else {
			sb.WriteString(".end-method\n\n")
		}
	}

	return []byte(sb.String()), nil
}
