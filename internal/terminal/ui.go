// Package terminal renders user-facing output: status lines, a spinner,
// fix-loop progress, and colored diagnostic listings.
package terminal

import (
	"fmt"
	"io"
	"os"
	"strings"
	"sync"
	"time"
)

// ANSI escapes used by the spinner and progress display.
const (
	Reset  = "\033[0m"
	Bold   = "\033[1m"
	Dim    = "\033[2m"
	Red    = "\033[31m"
	Green  = "\033[32m"
	Yellow = "\033[33m"
	Blue   = "\033[34m"
	Cyan   = "\033[36m"
)

// Spinner shows a one-line animation while something runs.
type Spinner struct {
	mu      sync.Mutex
	out     io.Writer
	message string
	running bool
	done    chan struct{}
}

var spinnerFrames = []string{"⠋", "⠙", "⠹", "⠸", "⠼", "⠴", "⠦", "⠧", "⠇", "⠏"}

// NewSpinner creates a spinner writing to stdout.
func NewSpinner(message string) *Spinner {
	return &Spinner{out: os.Stdout, message: message, done: make(chan struct{})}
}

// Start begins the animation.
func (s *Spinner) Start() {
	s.mu.Lock()
	if s.running {
		s.mu.Unlock()
		return
	}
	s.running = true
	s.mu.Unlock()

	go func() {
		ticker := time.NewTicker(80 * time.Millisecond)
		defer ticker.Stop()
		for i := 0; ; i++ {
			s.mu.Lock()
			msg := s.message
			s.mu.Unlock()
			fmt.Fprintf(s.out, "\r%s%s %s%s", Cyan, spinnerFrames[i%len(spinnerFrames)], msg, Reset)

			select {
			case <-s.done:
				return
			case <-ticker.C:
			}
		}
	}()
}

// Update changes the message.
func (s *Spinner) Update(message string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.message = message
}

// Stop stops the animation and clears the line.
func (s *Spinner) Stop() {
	s.mu.Lock()
	if !s.running {
		s.mu.Unlock()
		return
	}
	s.running = false
	s.mu.Unlock()

	close(s.done)
	fmt.Fprintf(s.out, "\r%s\r", strings.Repeat(" ", Width()))
}

// StopWithMessage stops the spinner and prints message.
func (s *Spinner) StopWithMessage(message string) {
	s.Stop()
	fmt.Fprintln(s.out, message)
}

// Success prints a green check line.
func Success(msg string) {
	fmt.Printf("%s%s✓%s %s\n", Bold, Green, Reset, msg)
}

// Error prints a red cross line.
func Error(msg string) {
	fmt.Fprintf(os.Stderr, "%s%s✗%s %s\n", Bold, Red, Reset, msg)
}

// Info prints a blue info line.
func Info(msg string) {
	fmt.Printf("%s%si%s %s\n", Bold, Blue, Reset, msg)
}

// Warning prints a yellow warning line.
func Warning(msg string) {
	fmt.Printf("%s%s!%s %s\n", Bold, Yellow, Reset, msg)
}

// Header prints a bold header.
func Header(msg string) {
	fmt.Printf("\n%s%s%s\n", Bold, msg, Reset)
}

// Detail prints an indented label: value line.
func Detail(label, value string) {
	fmt.Printf("  %s%s:%s %s\n", Dim, label, Reset, value)
}

// Divider prints a horizontal rule sized to the terminal.
func Divider() {
	w := Width()
	if w > 60 {
		w = 60
	}
	fmt.Printf("%s%s%s\n", Dim, strings.Repeat("─", w), Reset)
}

// Banner prints the welcome box.
func Banner(version string) {
	fmt.Println()
	fmt.Printf("  %s╭─────────────────────────────────╮%s\n", Dim, Reset)
	fmt.Printf("  %s│%s  ONYX %s%-26s%s%s│%s\n", Dim, Reset, Bold, "v"+version, Reset, Dim, Reset)
	fmt.Printf("  %s│%s  iOS app generator and fixer    %s│%s\n", Dim, Reset, Dim, Reset)
	fmt.Printf("  %s╰─────────────────────────────────╯%s\n", Dim, Reset)
	fmt.Println()
}

// ToolStatusOpts holds what `onyx doctor` found.
type ToolStatusOpts struct {
	ClaudeVersion string
	HasXcode      bool
	HasSimulator  bool
	HasXcodegen   bool
	Provider      string
	HasAPIKey     bool
	KeyBackend    string
}

// ToolStatus prints tool availability.
func ToolStatus(opts ToolStatusOpts) {
	mark := func(ok bool) string {
		if ok {
			return Green + "✓" + Reset
		}
		return Red + "✗" + Reset
	}

	claudeStatus := mark(opts.ClaudeVersion != "")
	if opts.ClaudeVersion != "" {
		claudeStatus = opts.ClaudeVersion
	}
	fmt.Printf("  %sTools:%s Xcode %s, Simulator %s, XcodeGen %s, Claude Code %s\n",
		Dim, Reset, mark(opts.HasXcode), mark(opts.HasSimulator), mark(opts.HasXcodegen), claudeStatus)

	if opts.Provider == "claude-cli" {
		fmt.Printf("  %sProvider:%s claude-cli (uses your Claude Code login)\n", Dim, Reset)
	} else {
		fmt.Printf("  %sProvider:%s %s, API key %s %s(%s)%s\n",
			Dim, Reset, opts.Provider, mark(opts.HasAPIKey), Dim, opts.KeyBackend, Reset)
	}

	if !opts.HasXcode || !opts.HasSimulator {
		fmt.Printf("  %sInstall Xcode and an iOS simulator runtime before building.%s\n", Dim, Reset)
	}
	if !opts.HasAPIKey && opts.Provider != "claude-cli" {
		fmt.Printf("  %sRun `onyx keys set %s` to store an API key.%s\n", Dim, opts.Provider, Reset)
	}
	fmt.Println()
}
