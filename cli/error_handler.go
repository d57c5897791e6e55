package cli

import (
	"fmt"
	"io"
	"os"

	"github.com/charmbracelet/lipgloss"

	"github.com/projectify/live/errors"
	"github.com/projectify/live/tui/theme"
)

// ErrorHandler renders user-facing messages for the structured error codes.
type ErrorHandler struct {
	Verbose bool
	Out     io.Writer
}

// NewErrorHandler creates an error handler writing to stderr.
func NewErrorHandler(verbose bool) *ErrorHandler {
	return &ErrorHandler{Verbose: verbose, Out: os.Stderr}
}

// Handle prints err with a hint for known codes and returns it unchanged.
func (h *ErrorHandler) Handle(err error) error {
	if err == nil {
		return nil
	}
	red := lipgloss.NewStyle().Bold(true).Foreground(theme.DefaultTheme.Colors.Red)
	muted := theme.DefaultTheme.Muted

	fmt.Fprintf(h.Out, "%s %v\n", red.Render("Error:"), err)
	if hint := Hint(err); hint != "" {
		fmt.Fprintln(h.Out, muted.Render(hint))
	}

	if h.Verbose {
		if liveErr, ok := errors.AsError(err); ok {
			fmt.Fprintf(h.Out, "\nError details:\n%s\n", liveErr.ToJSON())
		}
	}
	return err
}

// Hint suggests a next step for err, or "".
func Hint(err error) string {
	switch errors.GetCode(err) {
	case errors.ErrCodeConfigNotFound:
		return "Create a live.yml or pass --config."
	case errors.ErrCodeConfigInvalid, errors.ErrCodeConfigValidation:
		return "Run 'live config validate' to see what is wrong."
	case errors.ErrCodeResourceNotFound:
		return "The resource does not exist or you lack access to it."
	case errors.ErrCodeServerRendering:
		return "Subscriptions are disabled with interactive: false. Use 'live get' instead."
	case errors.ErrCodeTransportClosed:
		return "Is the server running? Start a local one with 'live serve'."
	case errors.ErrCodeHTTPStatus:
		return "The API server rejected the request."
	case errors.ErrCodeManagerClosed:
		return "The connection manager was shut down."
	}
	return ""
}
