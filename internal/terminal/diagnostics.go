package terminal

import (
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/XAVware/ONYX/internal/diagnostics"
	"github.com/fatih/color"
	"golang.org/x/term"
)

var (
	errorColor   = color.New(color.FgRed, color.Bold)
	warningColor = color.New(color.FgYellow, color.Bold)
	noteColor    = color.New(color.FgCyan)
	faintColor   = color.New(color.Faint)
)

// Width returns the stdout terminal width, or 80 when it is not a tty.
func Width() int {
	w, _, err := term.GetSize(int(os.Stdout.Fd()))
	if err != nil || w <= 0 {
		return 80
	}
	return w
}

// IsInteractive reports whether stdout is a terminal.
func IsInteractive() bool {
	return term.IsTerminal(int(os.Stdout.Fd()))
}

func severityColor(s diagnostics.Severity) *color.Color {
	switch s {
	case diagnostics.SeverityError:
		return errorColor
	case diagnostics.SeverityWarning:
		return warningColor
	default:
		return noteColor
	}
}

// FormatDiagnostic renders one diagnostic as a colored single line,
// truncated to width when width > 0.
func FormatDiagnostic(d diagnostics.Diagnostic, width int) string {
	msg := d.Headline()
	if loc := d.Location(); loc != "" {
		msg = loc + ": " + msg
	}
	label := string(d.Severity)
	if width > 0 {
		avail := width - len(label) - 4
		if avail > 3 && len([]rune(msg)) > avail {
			msg = string([]rune(msg)[:avail-3]) + "..."
		}
	}
	return fmt.Sprintf("  %s %s", severityColor(d.Severity).Sprint(label), msg)
}

// PrintDiagnostics lists ds to w, errors first, at most limit entries
// (0 for all), followed by a summary line.
func PrintDiagnostics(w io.Writer, ds []diagnostics.Diagnostic, limit int) {
	ordered := append(diagnostics.Filter(ds, diagnostics.SeverityError),
		diagnostics.Filter(ds, diagnostics.SeverityWarning, diagnostics.SeverityNote)...)

	width := Width()
	for i, d := range ordered {
		if limit > 0 && i == limit {
			fmt.Fprintln(w, faintColor.Sprintf("  ... %d more", len(ordered)-limit))
			break
		}
		fmt.Fprintln(w, FormatDiagnostic(d, width))
	}
	fmt.Fprintln(w, faintColor.Sprint("  "+diagnostics.Summary(ds)))
}

// Indent prefixes every line of s with n spaces.
func Indent(s string, n int) string {
	pad := strings.Repeat(" ", n)
	return pad + strings.ReplaceAll(strings.TrimRight(s, "\n"), "\n", "\n"+pad)
}
