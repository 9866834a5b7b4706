package diag

import (
	"encoding/json"
	"fmt"
	"io"
	"time"
)

// Trace records Chrome-trace-event-format phase timings under "-d".
// The compiler is strictly single-threaded (spec.md §5), so this
// carries no mutex — there is never a concurrent writer.
type Trace struct {
	file    io.WriteCloser
	isFirst bool
}

var traceStart = time.Now()

func NewTrace(file io.WriteCloser) *Trace {
	file.Write([]byte("["))
	return &Trace{file: file, isFirst: true}
}

func (t *Trace) Close() {
	if t == nil {
		return
	}
	t.file.Write([]byte("]"))
	t.file.Close()
}

// Phase wraps f with a begin/end pair named name. A nil *Trace (tracing
// disabled) just runs f.
func (t *Trace) Phase(name string, f func()) {
	if t == nil {
		f()
		return
	}
	t.event(name, "B")
	defer t.event(name, "E")
	f()
}

func (t *Trace) event(name, typ string) {
	if t.isFirst {
		t.isFirst = false
	} else {
		t.file.Write([]byte(",\n"))
	}
	ts := time.Since(traceStart).Microseconds()
	nameJSON, _ := json.Marshal(name)
	fmt.Fprintf(t.file, `{"name": %s, "cat": "compile", "ph": "%s", "ts": %d, "pid": 0, "tid": 0}`, nameJSON, typ, ts)
}
