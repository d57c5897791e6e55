package logging

import (
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/projectify/live/tui/theme"
)

// PrettyLogger prints user-facing status lines, styled with the active
// theme. Structured logs never go through it.
type PrettyLogger struct {
	w     io.Writer
	theme *theme.Theme
}

// NewPrettyLogger writes to stdout with theme.DefaultTheme.
func NewPrettyLogger() *PrettyLogger {
	return &PrettyLogger{w: os.Stdout, theme: theme.DefaultTheme}
}

func (p *PrettyLogger) WithWriter(w io.Writer) *PrettyLogger {
	p.w = w
	return p
}

func (p *PrettyLogger) Success(message string) {
	fmt.Fprintln(p.w, p.theme.Success.Render("✓ "+message))
}

func (p *PrettyLogger) Warn(message string) {
	fmt.Fprintln(p.w, p.theme.Warning.Render("! "+message))
}

// Field prints an aligned key: value line.
func (p *PrettyLogger) Field(key string, value interface{}) {
	label := p.theme.Muted.Render(fmt.Sprintf("%-8s", key+":"))
	fmt.Fprintf(p.w, "  %s %s\n", label, p.theme.Accent.Render(fmt.Sprint(value)))
}

// Code prints a multi-line block such as a JSON document, indented.
func (p *PrettyLogger) Code(content string) {
	for _, line := range strings.Split(strings.TrimRight(content, "\n"), "\n") {
		fmt.Fprintln(p.w, "    "+line)
	}
}
