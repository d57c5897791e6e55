package logging

import (
	"io"
	"os"
	"sync/atomic"
)

// terminalSink is the stderr writer shared by every logger. Its target can
// be swapped while something else owns the terminal.
type terminalSink struct {
	target atomic.Pointer[io.Writer]
}

func (s *terminalSink) Write(p []byte) (int, error) {
	return (*s.target.Load()).Write(p)
}

var terminal = func() *terminalSink {
	s := &terminalSink{}
	var w io.Writer = os.Stderr
	s.target.Store(&w)
	return s
}()

// SetGlobalOutput points the terminal sink of every logger at w.
func SetGlobalOutput(w io.Writer) {
	terminal.target.Store(&w)
}

// GetGlobalOutput returns the terminal sink loggers write to.
func GetGlobalOutput() io.Writer {
	return terminal
}

// Divert sends terminal log lines to w until the returned func is called.
// The watch TUI diverts them while it holds the alternate screen; file
// sinks are unaffected.
func Divert(w io.Writer) (restore func()) {
	prev := terminal.target.Swap(&w)
	return func() { terminal.target.Store(prev) }
}
