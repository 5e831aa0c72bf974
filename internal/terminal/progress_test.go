package terminal

import (
	"strings"
	"testing"
	"time"

	"github.com/XAVware/ONYX/internal/diagnostics"
	"github.com/XAVware/ONYX/internal/fixloop"
	"github.com/XAVware/ONYX/internal/pipeline"
	"github.com/XAVware/ONYX/internal/xcode"
	"github.com/fatih/color"
)

func newTestDisplay(maxPasses int) *ProgressDisplay {
	pd := NewProgressDisplay(maxPasses)
	pd.interactive = false
	return pd
}

func lastActivity(t *testing.T, pd *ProgressDisplay) string {
	t.Helper()
	if len(pd.activities) == 0 {
		t.Fatalf("no activities recorded")
	}
	return pd.activities[len(pd.activities)-1].text
}

func TestOnEventTracksFixLoop(t *testing.T) {
	pd := newTestDisplay(3)

	pd.OnEvent(fixloop.Event{Kind: fixloop.EventBuildStarted, Pass: 0, Clean: true})
	if got := lastActivity(t, pd); got != "Clean build" {
		t.Fatalf("activity = %q", got)
	}

	failed := &xcode.BuildResult{Diagnostics: []diagnostics.Diagnostic{{Severity: diagnostics.SeverityError, Message: "x"}}}
	pd.OnEvent(fixloop.Event{Kind: fixloop.EventBuildFinished, Build: failed})
	if got := lastActivity(t, pd); got != "Build failed: 1 error, 0 warnings" {
		t.Fatalf("activity = %q", got)
	}

	pd.OnEvent(fixloop.Event{Kind: fixloop.EventFixRequested, Pass: 1, Files: []string{"A.swift", "B.swift"}})
	if pd.phase != PhaseFixing || pd.pass != 1 {
		t.Fatalf("phase = %v pass = %d", pd.phase, pd.pass)
	}
	if got := lastActivity(t, pd); got != "Asking for fixes to 2 files" {
		t.Fatalf("activity = %q", got)
	}

	pd.OnEvent(fixloop.Event{Kind: fixloop.EventFixApplied, Files: []string{"Demo/Models/Item.swift"}, Iteration: &fixloop.Iteration{}})
	if got := lastActivity(t, pd); got != "Rewrote Models/Item.swift" {
		t.Fatalf("activity = %q", got)
	}

	pd.OnEvent(fixloop.Event{Kind: fixloop.EventFixApplied, Iteration: &fixloop.Iteration{NoOp: true}})
	if got := lastActivity(t, pd); got != "Reply had no files, skipping" {
		t.Fatalf("activity = %q", got)
	}

	if len(pd.activities) != maxActivities {
		t.Fatalf("activities not trimmed: %d", len(pd.activities))
	}
	for _, a := range pd.activities[:len(pd.activities)-1] {
		if !a.done {
			t.Errorf("earlier activity %q not marked done", a.text)
		}
	}
}

func TestOnStageSetsPhase(t *testing.T) {
	pd := newTestDisplay(0)

	pd.OnStage(pipeline.StageLayer, "Views")
	if pd.phase != PhaseGenerating {
		t.Fatalf("phase = %v", pd.phase)
	}
	if h := pd.header("•"); !strings.Contains(h, "Writing code (Views)") {
		t.Fatalf("header = %q", h)
	}

	pd.OnStage(pipeline.StageFix, "")
	if pd.phase != PhaseCompiling || len(pd.activities) != 0 {
		t.Fatalf("fix stage should reset activities, got phase %v and %d activities", pd.phase, len(pd.activities))
	}
}

func TestHeaderShowsPass(t *testing.T) {
	pd := newTestDisplay(5)
	pd.pass = 1
	if h := pd.header("•"); !strings.Contains(h, "pass 2/5") {
		t.Fatalf("header = %q", h)
	}
}

func TestFormatElapsed(t *testing.T) {
	tests := map[int]string{0: "0s", 59: "59s", 60: "1m00s", 187: "3m07s"}
	for secs, want := range tests {
		if got := formatElapsed(secondsToDuration(secs)); got != want {
			t.Errorf("formatElapsed(%ds) = %q, want %q", secs, got, want)
		}
	}
}

func TestTruncateActivity(t *testing.T) {
	long := strings.Repeat("x", 100)
	if got := truncateActivity(long); len([]rune(got)) != 63 {
		t.Fatalf("len = %d", len([]rune(got)))
	}
	if got := truncateActivity("short"); got != "short" {
		t.Fatalf("got %q", got)
	}
}

func TestFormatDiagnostic(t *testing.T) {
	color.NoColor = true
	d := diagnostics.Diagnostic{Severity: diagnostics.SeverityError, File: "A.swift", Line: 3, Column: 7, Message: "missing return\n  note line"}

	got := FormatDiagnostic(d, 0)
	if got != "  error A.swift:3:7: missing return" {
		t.Fatalf("got %q", got)
	}

	short := FormatDiagnostic(d, 24)
	if !strings.HasSuffix(short, "...") || len(short) > 2+len("error")+1+24 {
		t.Fatalf("not truncated: %q", short)
	}
}

func TestPrintDiagnosticsOrdersErrorsFirstAndLimits(t *testing.T) {
	color.NoColor = true
	ds := []diagnostics.Diagnostic{
		{Severity: diagnostics.SeverityWarning, Message: "unused"},
		{Severity: diagnostics.SeverityError, Message: "first"},
		{Severity: diagnostics.SeverityError, Message: "second"},
	}
	var sb strings.Builder
	PrintDiagnostics(&sb, ds, 2)

	lines := strings.Split(strings.TrimRight(sb.String(), "\n"), "\n")
	want := []string{"  error first", "  error second", "  ... 1 more", "  2 errors, 1 warning"}
	if strings.Join(lines, "|") != strings.Join(want, "|") {
		t.Fatalf("got %q", lines)
	}
}

func TestIndent(t *testing.T) {
	if got := Indent("a\nb\n", 2); got != "  a\n  b" {
		t.Fatalf("got %q", got)
	}
}

func secondsToDuration(s int) time.Duration {
	return time.Duration(s) * time.Second
}
