package llm

import (
	"bufio"
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"os/exec"
	"strings"
)

// ClaudeCLI completes prompts through the Claude Code CLI in print mode.
// It needs no API key: the CLI uses its own login.
type ClaudeCLI struct {
	path  string
	model string // empty lets the CLI pick
}

// NewClaudeCLI returns a backend for the claude binary at path.
func NewClaudeCLI(path, model string) *ClaudeCLI {
	if path == "" {
		path = "claude"
	}
	return &ClaudeCLI{path: path, model: model}
}

// cliResult is the final result of a print-mode run.
type cliResult struct {
	Text     string
	CostUSD  float64
	NumTurns int
}

// Complete runs `claude -p` with the user message on stdin.
func (c *ClaudeCLI) Complete(ctx context.Context, system, user string) (string, error) {
	args := []string{"-p", "--max-turns", "1", "--output-format", "json"}
	if system != "" {
		args = append(args, "--system-prompt", system)
	}
	if c.model != "" {
		args = append(args, "--model", c.model)
	}

	cmd := exec.CommandContext(ctx, c.path, args...)
	// A nested CLI refuses to start while CLAUDECODE is set.
	cmd.Env = filterEnv(os.Environ(), "CLAUDECODE")
	// Stdin avoids argument length limits for large prompts.
	cmd.Stdin = strings.NewReader(user)

	var stdout, stderr bytes.Buffer
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr

	if err := cmd.Run(); err != nil {
		if ctx.Err() != nil {
			return "", ctx.Err()
		}
		var exitErr *exec.ExitError
		retryable := errors.As(err, &exitErr) && looksThrottled(stderr.String())
		return "", transportErr("claude-cli", retryable, fmt.Errorf("claude command failed: %w\nstderr: %s", err, stderr.String()))
	}

	res, err := parseCLIOutput(stdout.Bytes())
	if err != nil {
		return "", transportErr("claude-cli", looksThrottled(err.Error()), err)
	}
	return res.Text, nil
}

func looksThrottled(s string) bool {
	s = strings.ToLower(s)
	return strings.Contains(s, "rate limit") || strings.Contains(s, "overloaded") || strings.Contains(s, "529")
}

// streamNDJSONLines calls onLine for each non-blank line of r. Lines of any
// length are accepted and a final line without a newline is processed.
func streamNDJSONLines(r io.Reader, onLine func([]byte) error) error {
	br := bufio.NewReader(r)
	for {
		line, err := br.ReadBytes('\n')
		if len(line) > 0 {
			line = bytes.TrimRight(line, "\r\n")
			if len(bytes.TrimSpace(line)) > 0 {
				if onErr := onLine(line); onErr != nil {
					return onErr
				}
			}
		}
		if err != nil {
			if err == io.EOF {
				return nil
			}
			return err
		}
	}
}

// cliEvent covers the fields read from both the single-object and the
// event-stream output shapes.
type cliEvent struct {
	Type     string  `json:"type"`
	Result   string  `json:"result"`
	CostUSD  float64 `json:"total_cost_usd"`
	NumTurns int     `json:"num_turns"`
	IsError  bool    `json:"is_error"`
}

// parseCLIOutput extracts the result from print-mode output, which is one
// of: a single JSON object, a JSON array of events, newline-delimited
// events, or plain text.
func parseCLIOutput(data []byte) (*cliResult, error) {
	trimmed := bytes.TrimSpace(data)

	var single cliEvent
	if err := json.Unmarshal(trimmed, &single); err == nil && single.Result != "" {
		if single.IsError {
			return nil, fmt.Errorf("claude returned error: %s", single.Result)
		}
		return &cliResult{Text: single.Result, CostUSD: single.CostUSD, NumTurns: single.NumTurns}, nil
	}

	if len(trimmed) > 0 && trimmed[0] == '[' {
		var events []json.RawMessage
		if err := json.Unmarshal(trimmed, &events); err == nil {
			return resultFromEvents(events)
		}
	}

	if bytes.Count(trimmed, []byte("\n")) > 0 && len(trimmed) > 0 && trimmed[0] == '{' {
		var events []json.RawMessage
		err := streamNDJSONLines(bytes.NewReader(trimmed), func(line []byte) error {
			events = append(events, append(json.RawMessage(nil), line...))
			return nil
		})
		if err == nil && len(events) > 0 {
			return resultFromEvents(events)
		}
	}

	return &cliResult{Text: strings.TrimSpace(string(data))}, nil
}

// resultFromEvents returns the last result event's text.
func resultFromEvents(events []json.RawMessage) (*cliResult, error) {
	var last *cliResult
	for _, raw := range events {
		var ev cliEvent
		if err := json.Unmarshal(raw, &ev); err != nil {
			continue
		}
		if ev.Type != "result" && ev.Result == "" {
			continue
		}
		if ev.IsError {
			return nil, fmt.Errorf("claude returned error: %s", ev.Result)
		}
		last = &cliResult{Text: ev.Result, CostUSD: ev.CostUSD, NumTurns: ev.NumTurns}
	}
	if last == nil {
		return nil, fmt.Errorf("claude output contained no result event")
	}
	return last, nil
}

// filterEnv returns env with the named variable removed.
func filterEnv(env []string, name string) []string {
	prefix := name + "="
	filtered := make([]string, 0, len(env))
	for _, e := range env {
		if !strings.HasPrefix(e, prefix) {
			filtered = append(filtered, e)
		}
	}
	return filtered
}
