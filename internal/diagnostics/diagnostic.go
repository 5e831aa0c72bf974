// Package diagnostics turns raw compiler and xcodebuild output into
// structured Diagnostic records.
package diagnostics

import (
	"fmt"
	"sort"
	"strings"
)

// Severity classifies a diagnostic.
type Severity string

const (
	SeverityError   Severity = "error"
	SeverityWarning Severity = "warning"
	SeverityNote    Severity = "note"
)

// Diagnostic is one compiler/linker message.
// File is empty for global diagnostics (linker, build system).
// Line and Column are 0 when absent.
type Diagnostic struct {
	Severity Severity `json:"severity"`
	File     string   `json:"file,omitempty"`
	Line     int      `json:"line,omitempty"`
	Column   int      `json:"column,omitempty"`
	Message  string   `json:"message"`
}

// Global reports whether the diagnostic is not tied to a file.
func (d Diagnostic) Global() bool {
	return d.File == ""
}

// Location formats file:line:column, omitting absent parts.
func (d Diagnostic) Location() string {
	if d.File == "" {
		return ""
	}
	switch {
	case d.Line > 0 && d.Column > 0:
		return fmt.Sprintf("%s:%d:%d", d.File, d.Line, d.Column)
	case d.Line > 0:
		return fmt.Sprintf("%s:%d", d.File, d.Line)
	default:
		return d.File
	}
}

// String renders the diagnostic in compiler style.
func (d Diagnostic) String() string {
	if loc := d.Location(); loc != "" {
		return fmt.Sprintf("%s: %s: %s", loc, d.Severity, d.Message)
	}
	return fmt.Sprintf("%s: %s", d.Severity, d.Message)
}

// Signature identifies a diagnostic for convergence checks.
type Signature struct {
	File    string
	Message string
}

// Signature returns the (file, headline) key of d. Source excerpts that
// follow the headline are left out, so an error survives edits nearby.
func (d Diagnostic) Signature() Signature {
	return Signature{File: d.File, Message: d.Headline()}
}

// Filter returns the diagnostics whose severity is one of sev, in order.
func Filter(ds []Diagnostic, sev ...Severity) []Diagnostic {
	var out []Diagnostic
	for _, d := range ds {
		for _, s := range sev {
			if d.Severity == s {
				out = append(out, d)
				break
			}
		}
	}
	return out
}

// Count returns how many diagnostics have severity sev.
func Count(ds []Diagnostic, sev Severity) int {
	n := 0
	for _, d := range ds {
		if d.Severity == sev {
			n++
		}
	}
	return n
}

// SignatureSet collects the signatures of ds.
func SignatureSet(ds []Diagnostic) map[Signature]struct{} {
	set := make(map[Signature]struct{}, len(ds))
	for _, d := range ds {
		set[d.Signature()] = struct{}{}
	}
	return set
}

// SameSignatures reports whether a and b carry identical signature sets.
func SameSignatures(a, b []Diagnostic) bool {
	sa, sb := SignatureSet(a), SignatureSet(b)
	if len(sa) != len(sb) {
		return false
	}
	for k := range sa {
		if _, ok := sb[k]; !ok {
			return false
		}
	}
	return true
}

// Persistent returns the signatures present in both a and b, sorted.
func Persistent(a, b []Diagnostic) []Signature {
	sb := SignatureSet(b)
	var out []Signature
	for k := range SignatureSet(a) {
		if _, ok := sb[k]; ok {
			out = append(out, k)
		}
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].File != out[j].File {
			return out[i].File < out[j].File
		}
		return out[i].Message < out[j].Message
	})
	return out
}

// Summary returns "N errors, M warnings".
func Summary(ds []Diagnostic) string {
	e, w := Count(ds, SeverityError), Count(ds, SeverityWarning)
	return fmt.Sprintf("%d %s, %d %s", e, plural(e, "error"), w, plural(w, "warning"))
}

func plural(n int, word string) string {
	if n == 1 {
		return word
	}
	return word + "s"
}

// firstLine returns the message headline (before any continuation lines).
func firstLine(s string) string {
	if i := strings.IndexByte(s, '\n'); i >= 0 {
		return s[:i]
	}
	return s
}

// Headline returns the first line of the message.
func (d Diagnostic) Headline() string {
	return firstLine(d.Message)
}
