package cli

import (
	"fmt"
	"io"

	"github.com/charmbracelet/lipgloss"
)

var (
	successStyle = lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("2"))
	warningStyle = lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("3"))
	labelStyle   = lipgloss.NewStyle().Bold(true)
)

// printer writes operator-facing lines. Styling is applied only on a terminal.
type printer struct {
	w      io.Writer
	styled bool
}

func newPrinter(w io.Writer) printer {
	return printer{w: w, styled: isTerminal(w)}
}

func (p printer) style(s lipgloss.Style, text string) string {
	if !p.styled {
		return text
	}
	return s.Render(text)
}

func (p printer) Success(msg string) {
	_, _ = fmt.Fprintf(p.w, "%s %s\n", p.style(successStyle, "Success:"), msg)
}

func (p printer) Warning(msg string) {
	_, _ = fmt.Fprintf(p.w, "%s %s\n", p.style(warningStyle, "Warning:"), msg)
}

func (p printer) Line(msg string) {
	_, _ = fmt.Fprintln(p.w, msg)
}

func (p printer) Field(label, value string) {
	_, _ = fmt.Fprintf(p.w, "%s %s\n", p.style(labelStyle, label+":"), value)
}
