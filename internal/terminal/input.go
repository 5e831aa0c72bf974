package terminal

import (
	"errors"
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/reeflective/readline"
)

// ErrCancelled is returned when the user interrupts input.
var ErrCancelled = errors.New("input cancelled")

// ReadIdea prompts for an app idea. A line ending in a backslash continues
// on the next line. Blank input prompts again. When stdin is not a
// terminal the whole of stdin is read instead.
func ReadIdea(prompt string) (string, error) {
	if !IsInteractive() {
		data, err := io.ReadAll(os.Stdin)
		if err != nil {
			return "", fmt.Errorf("failed to read idea: %w", err)
		}
		return strings.TrimSpace(string(data)), nil
	}

	fmt.Printf("%s%s%s\n", Bold, prompt, Reset)
	fmt.Printf("%s(end a line with \\ to continue)%s\n", Dim, Reset)

	shell := readline.NewShell()
	continuing := false
	shell.Prompt.Primary(func() string {
		if continuing {
			return Dim + "  " + Reset
		}
		return Bold + "> " + Reset
	})

	var lines []string
	for {
		line, err := shell.Readline()
		if errors.Is(err, readline.ErrInterrupt) {
			return "", ErrCancelled
		}
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return "", fmt.Errorf("failed to read idea: %w", err)
		}

		trimmed := strings.TrimRight(line, " \t")
		if rest, ok := strings.CutSuffix(trimmed, "\\"); ok {
			lines = append(lines, rest)
			continuing = true
			continue
		}
		lines = append(lines, trimmed)
		if idea := joinIdea(lines); idea != "" {
			return idea, nil
		}
		continuing = false
	}
	return joinIdea(lines), nil
}

func joinIdea(lines []string) string {
	return strings.TrimSpace(strings.Join(lines, "\n"))
}
