package llm

import (
	"bytes"
	"context"
	"errors"
	"io"
	"os"
	"path/filepath"
	"runtime"
	"strings"
	"testing"
)

func TestStreamNDJSONLinesHandlesLargeLine(t *testing.T) {
	large := strings.Repeat("a", 1024*1024+128)

	var got [][]byte
	err := streamNDJSONLines(strings.NewReader(large+"\n"), func(line []byte) error {
		got = append(got, append([]byte(nil), line...))
		return nil
	})
	if err != nil {
		t.Fatalf("streamNDJSONLines() error = %v", err)
	}
	if len(got) != 1 || len(got[0]) != len(large) {
		t.Fatalf("got %d lines, want one line of %d bytes", len(got), len(large))
	}
}

func TestStreamNDJSONLinesProcessesFinalLineWithoutNewline(t *testing.T) {
	var lines []string
	err := streamNDJSONLines(bytes.NewReader([]byte("{\"a\":1}\n\n{\"b\":2}")), func(line []byte) error {
		lines = append(lines, string(line))
		return nil
	})
	if err != nil {
		t.Fatalf("streamNDJSONLines() error = %v", err)
	}
	if len(lines) != 2 || lines[0] != "{\"a\":1}" || lines[1] != "{\"b\":2}" {
		t.Fatalf("unexpected lines: %#v", lines)
	}
}

func TestStreamNDJSONLinesReturnsReaderError(t *testing.T) {
	wantErr := errors.New("boom")
	r := io.MultiReader(strings.NewReader("{\"ok\":true}\n"), &errReader{err: wantErr})

	var lines []string
	err := streamNDJSONLines(r, func(line []byte) error {
		lines = append(lines, string(line))
		return nil
	})
	if !errors.Is(err, wantErr) {
		t.Fatalf("streamNDJSONLines() error = %v, want %v", err, wantErr)
	}
	if len(lines) != 1 {
		t.Fatalf("unexpected lines before error: %#v", lines)
	}
}

type errReader struct{ err error }

func (r *errReader) Read([]byte) (int, error) { return 0, r.err }

func TestParseCLIOutput(t *testing.T) {
	tests := []struct {
		name    string
		in      string
		want    string
		wantErr bool
	}{
		{
			name: "single object",
			in:   `{"type":"result","result":"## A.swift\n","total_cost_usd":0.01,"num_turns":1}`,
			want: "## A.swift\n",
		},
		{
			name: "event array",
			in:   `[{"type":"system","subtype":"init"},{"type":"result","result":"done"}]`,
			want: "done",
		},
		{
			name: "ndjson",
			in:   "{\"type\":\"system\",\"subtype\":\"init\"}\n{\"type\":\"result\",\"result\":\"lines\"}\n",
			want: "lines",
		},
		{
			name: "plain text",
			in:   "  just text \n",
			want: "just text",
		},
		{
			name:    "error result",
			in:      `{"type":"result","result":"Credit balance is too low","is_error":true}`,
			wantErr: true,
		},
		{
			name:    "events without result",
			in:      `[{"type":"system","subtype":"init"}]`,
			wantErr: true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := parseCLIOutput([]byte(tt.in))
			if tt.wantErr {
				if err == nil {
					t.Fatalf("expected error, got %+v", got)
				}
				return
			}
			if err != nil {
				t.Fatalf("parseCLIOutput() error = %v", err)
			}
			if got.Text != tt.want {
				t.Errorf("Text = %q, want %q", got.Text, tt.want)
			}
		})
	}
}

func fakeClaude(t *testing.T, script string) string {
	t.Helper()
	if runtime.GOOS == "windows" {
		t.Skip("shell script fakes need a POSIX shell")
	}
	path := filepath.Join(t.TempDir(), "claude")
	if err := os.WriteFile(path, []byte("#!/bin/sh\n"+script+"\n"), 0o755); err != nil {
		t.Fatal(err)
	}
	return path
}

func TestClaudeCLICompletePassesPromptOnStdin(t *testing.T) {
	argsFile := filepath.Join(t.TempDir(), "args")
	bin := fakeClaude(t, `echo "$@" > `+argsFile+`
input=$(cat)
printf '{"type":"result","result":"echo: %s"}' "$input"`)

	c := NewClaudeCLI(bin, "sonnet")
	got, err := c.Complete(context.Background(), "be terse", "hello")
	if err != nil {
		t.Fatalf("Complete() error = %v", err)
	}
	if got != "echo: hello" {
		t.Errorf("Complete() = %q", got)
	}

	args, _ := os.ReadFile(argsFile)
	for _, want := range []string{"-p", "--system-prompt be terse", "--model sonnet", "--output-format json"} {
		if !strings.Contains(string(args), want) {
			t.Errorf("args %q missing %q", args, want)
		}
	}
}

func TestClaudeCLICompleteFailureIsTransportError(t *testing.T) {
	bin := fakeClaude(t, `echo "API Error: 529 overloaded" >&2; exit 1`)

	_, err := NewClaudeCLI(bin, "").Complete(context.Background(), "", "hi")
	if !errors.Is(err, ErrTransport) {
		t.Fatalf("expected ErrTransport, got %v", err)
	}
	if !IsRetryable(err) {
		t.Errorf("overloaded failure should be retryable")
	}
}

func TestFilterEnv(t *testing.T) {
	got := filterEnv([]string{"A=1", "CLAUDECODE=1", "CLAUDECODE_X=2"}, "CLAUDECODE")
	if len(got) != 2 || got[0] != "A=1" || got[1] != "CLAUDECODE_X=2" {
		t.Fatalf("filterEnv() = %v", got)
	}
}
