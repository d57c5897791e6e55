// Package profiling adds --timing and pprof flags to the CLI and records
// named timing spans.
package profiling

import (
	"fmt"
	"io"
	"strings"
	"sync"
	"time"
)

// Stopper ends a timed span.
type Stopper interface {
	Stop()
}

type span struct {
	name     string
	depth    int
	start    time.Time
	duration time.Duration
	timer    *Timer
}

func (s *span) Stop() {
	s.timer.end(s)
}

// Timer records spans in start order. Spans started while another is open
// nest below it.
type Timer struct {
	mu      sync.Mutex
	enabled bool
	start   time.Time
	spans   []*span
	open    int
}

var defaultTimer = &Timer{}

// Enable turns on the global timer.
func Enable() {
	defaultTimer.mu.Lock()
	defer defaultTimer.mu.Unlock()
	if !defaultTimer.enabled {
		defaultTimer.enabled = true
		defaultTimer.start = time.Now()
	}
}

// Start begins a span on the global timer, typically used as
// defer profiling.Start("name").Stop().
func Start(name string) Stopper {
	return defaultTimer.Start(name)
}

// Summarize writes the global timer's spans.
func Summarize(w io.Writer) {
	defaultTimer.Summarize(w)
}

// Start begins a span. It is a no-op while the timer is disabled.
func (t *Timer) Start(name string) Stopper {
	t.mu.Lock()
	defer t.mu.Unlock()
	if !t.enabled {
		return noopStopper{}
	}
	s := &span{name: name, depth: t.open, start: time.Now(), timer: t}
	t.spans = append(t.spans, s)
	t.open++
	return s
}

func (t *Timer) end(s *span) {
	t.mu.Lock()
	defer t.mu.Unlock()
	if s.duration != 0 {
		return
	}
	s.duration = time.Since(s.start)
	if t.open > 0 {
		t.open--
	}
}

// Summarize writes one indented line per span with its share of the total.
func (t *Timer) Summarize(w io.Writer) {
	t.mu.Lock()
	defer t.mu.Unlock()
	if !t.enabled {
		return
	}
	total := time.Since(t.start)
	fmt.Fprintln(w, "\n--- Timing Profile ---")
	for _, s := range t.spans {
		d := s.duration
		if d == 0 {
			d = time.Since(s.start)
		}
		fmt.Fprintf(w, "%s- %s (%v, %.1f%%)\n", strings.Repeat("  ", s.depth+1), s.name,
			d.Round(100*time.Microsecond), float64(d)/float64(total)*100)
	}
	fmt.Fprintf(w, "total %v\n", total.Round(100*time.Microsecond))
}

type noopStopper struct{}

func (noopStopper) Stop() {}
