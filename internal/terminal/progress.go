package terminal

import (
	"fmt"
	"os"
	"strings"
	"sync"
	"time"

	"github.com/XAVware/ONYX/internal/diagnostics"
	"github.com/XAVware/ONYX/internal/fixloop"
	"github.com/XAVware/ONYX/internal/pipeline"
	"golang.org/x/term"
)

// Phase is what the generator is doing right now.
type Phase int

const (
	PhaseScaffolding Phase = iota
	PhasePlanning
	PhaseGenerating
	PhaseCompiling
	PhaseFixing
)

func (p Phase) label() string {
	switch p {
	case PhaseScaffolding:
		return "Preparing project"
	case PhasePlanning:
		return "Planning architecture"
	case PhaseGenerating:
		return "Writing code"
	case PhaseCompiling:
		return "Compiling"
	case PhaseFixing:
		return "Fixing errors"
	default:
		return "Working"
	}
}

// activity is one line in the activity tree.
type activity struct {
	text string
	done bool
}

// ProgressDisplay renders pipeline stages and fix-loop passes. Its OnStage
// and OnEvent methods plug into pipeline.Options.Progress and
// fixloop.Options.Observer.
type ProgressDisplay struct {
	mu           sync.Mutex
	phase        Phase
	detail       string
	pass         int
	maxPasses    int
	activities   []activity
	running      bool
	done         chan struct{}
	startedAt    time.Time
	interactive  bool
	lastRenderID string
}

const maxActivities = 4

// NewProgressDisplay creates a display for a run of at most maxPasses
// fix-loop passes.
func NewProgressDisplay(maxPasses int) *ProgressDisplay {
	return &ProgressDisplay{
		phase:       PhaseCompiling,
		maxPasses:   maxPasses,
		startedAt:   time.Now(),
		interactive: term.IsTerminal(int(os.Stdout.Fd())),
		done:        make(chan struct{}),
	}
}

// Start begins the rendering loop.
func (pd *ProgressDisplay) Start() {
	pd.mu.Lock()
	if pd.running {
		pd.mu.Unlock()
		return
	}
	pd.running = true
	pd.mu.Unlock()

	go pd.renderLoop()
}

// Stop stops rendering and clears the display area.
func (pd *ProgressDisplay) Stop() {
	pd.mu.Lock()
	if !pd.running {
		pd.mu.Unlock()
		return
	}
	pd.running = false
	pd.mu.Unlock()

	close(pd.done)
	if pd.interactive {
		pd.clearDisplay()
	}
}

// StopWithSuccess stops and prints a success line.
func (pd *ProgressDisplay) StopWithSuccess(msg string) {
	pd.Stop()
	fmt.Printf("  %s%s✓%s %s  %s%s%s\n", Bold, Green, Reset, msg, Dim, formatElapsed(time.Since(pd.startedAt)), Reset)
}

// StopWithError stops and prints a failure line.
func (pd *ProgressDisplay) StopWithError(msg string) {
	pd.Stop()
	fmt.Printf("  %s%s✗%s %s  %s%s%s\n", Bold, Red, Reset, msg, Dim, formatElapsed(time.Since(pd.startedAt)), Reset)
}

// SetPhase moves to phase.
func (pd *ProgressDisplay) SetPhase(phase Phase) {
	pd.mu.Lock()
	defer pd.mu.Unlock()
	pd.phase = phase
}

// AddActivity appends a line to the activity tree, completing the last one.
func (pd *ProgressDisplay) AddActivity(text string) {
	pd.mu.Lock()
	defer pd.mu.Unlock()
	pd.addActivity(text)
}

func (pd *ProgressDisplay) addActivity(text string) {
	if len(pd.activities) > 0 {
		pd.activities[len(pd.activities)-1].done = true
	}
	pd.activities = append(pd.activities, activity{text: truncateActivity(text)})
	if len(pd.activities) > maxActivities {
		pd.activities = pd.activities[len(pd.activities)-maxActivities:]
	}
}

// OnStage follows the generation pipeline.
func (pd *ProgressDisplay) OnStage(stage, detail string) {
	pd.mu.Lock()
	defer pd.mu.Unlock()

	pd.detail = ""
	switch stage {
	case pipeline.StageScaffold:
		pd.phase = PhaseScaffolding
		pd.addActivity("Writing project.yml")
	case pipeline.StagePlan:
		pd.phase = PhasePlanning
		pd.addActivity("Drafting architecture")
	case pipeline.StageLayer:
		pd.phase = PhaseGenerating
		pd.detail = detail
		pd.addActivity("Generating " + detail)
	case pipeline.StageFix:
		pd.phase = PhaseCompiling
		pd.activities = nil
	}
}

// OnEvent follows the fix loop.
func (pd *ProgressDisplay) OnEvent(ev fixloop.Event) {
	pd.mu.Lock()
	defer pd.mu.Unlock()

	switch ev.Kind {
	case fixloop.EventBuildStarted:
		pd.phase = PhaseCompiling
		pd.pass = ev.Pass
		if ev.Clean {
			pd.addActivity("Clean build")
		} else {
			pd.addActivity("Rebuilding")
		}
	case fixloop.EventBuildFinished:
		if ev.Build.Succeeded {
			pd.addActivity("Build succeeded")
		} else {
			pd.addActivity("Build failed: " + diagnostics.Summary(ev.Build.Diagnostics))
		}
	case fixloop.EventFixRequested:
		pd.phase = PhaseFixing
		pd.pass = ev.Pass
		if len(ev.Files) == 0 {
			pd.addActivity("Asking for fixes across the project")
		} else {
			pd.addActivity(fmt.Sprintf("Asking for fixes to %d %s", len(ev.Files), pluralize(len(ev.Files), "file")))
		}
	case fixloop.EventFixApplied:
		switch {
		case ev.Iteration != nil && ev.Iteration.NoOp:
			pd.addActivity("Reply had no files, skipping")
		case len(ev.Files) == 1:
			pd.addActivity("Rewrote " + shortPath(ev.Files[0]))
		case len(ev.Files) > 1:
			pd.addActivity(fmt.Sprintf("Rewrote %d files", len(ev.Files)))
		}
	}
}

func (pd *ProgressDisplay) renderLoop() {
	ticker := time.NewTicker(100 * time.Millisecond)
	defer ticker.Stop()
	for frame := 0; ; frame++ {
		pd.render(frame)
		select {
		case <-pd.done:
			return
		case <-ticker.C:
		}
	}
}

func (pd *ProgressDisplay) render(frame int) {
	pd.mu.Lock()
	header := pd.header(spinnerFrames[frame%len(spinnerFrames)])
	activities := append([]activity(nil), pd.activities...)
	interactive := pd.interactive
	pd.mu.Unlock()

	if !interactive {
		pd.renderNonInteractive(activities)
		return
	}

	lines := []string{header}
	for i, act := range activities {
		prefix := "  ├─ "
		if i == len(activities)-1 {
			prefix = "  └─ "
		}
		marker, color := spinnerFrames[frame%len(spinnerFrames)], Cyan
		if act.done {
			marker, color = "✓", Green
		}
		lines = append(lines, fmt.Sprintf("%s%s%s%s %s%s", Dim, prefix, color, marker, Reset+act.text, Reset))
	}
	for len(lines) < maxActivities+1 {
		lines = append(lines, "")
	}

	if frame > 0 {
		fmt.Printf("\033[%dA", len(lines))
	}
	for _, line := range lines {
		fmt.Printf("\r\033[K%s\n", line)
	}
}

// renderNonInteractive prints the latest state once per change, for logs
// and CI where cursor movement is not available.
func (pd *ProgressDisplay) renderNonInteractive(activities []activity) {
	pd.mu.Lock()
	header := pd.header("•")
	pd.mu.Unlock()

	latest := ""
	if len(activities) > 0 {
		latest = "  • " + activities[len(activities)-1].text
	}
	renderID := header + "\n" + latest

	pd.mu.Lock()
	if renderID == pd.lastRenderID {
		pd.mu.Unlock()
		return
	}
	pd.lastRenderID = renderID
	pd.mu.Unlock()

	fmt.Println(header)
	if latest != "" {
		fmt.Println(latest)
	}
}

// header builds the phase line. Callers hold pd.mu.
func (pd *ProgressDisplay) header(spinChar string) string {
	var sb strings.Builder
	color := Cyan
	if pd.phase == PhaseFixing {
		color = Yellow
	}
	label := pd.phase.label()
	if pd.detail != "" {
		label += " (" + pd.detail + ")"
	}
	fmt.Fprintf(&sb, "  %s%s %s...%s", color, spinChar, label, Reset)

	if pd.maxPasses > 0 && pd.phase >= PhaseCompiling {
		fmt.Fprintf(&sb, "  %s %spass %d/%d%s", buildProgressBar(pd.pass+1, pd.maxPasses), Dim, pd.pass+1, pd.maxPasses, Reset)
	}
	if pd.interactive {
		fmt.Fprintf(&sb, "  %s%s%s", Dim, formatElapsed(time.Since(pd.startedAt)), Reset)
	}
	return sb.String()
}

func (pd *ProgressDisplay) clearDisplay() {
	total := maxActivities + 1
	for i := 0; i < total; i++ {
		fmt.Printf("\033[K\n")
	}
	fmt.Printf("\033[%dA", total)
}

// formatElapsed formats a duration as 42s or 3m07s.
func formatElapsed(d time.Duration) string {
	s := int(d.Seconds())
	if s < 60 {
		return fmt.Sprintf("%ds", s)
	}
	return fmt.Sprintf("%dm%02ds", s/60, s%60)
}

func buildProgressBar(current, total int) string {
	if total <= 0 {
		return ""
	}
	const width = 10
	filled := (current * width) / total
	if filled > width {
		filled = width
	}
	return fmt.Sprintf("%s[%s%s]%s", Dim, strings.Repeat("█", filled), strings.Repeat("░", width-filled), Reset)
}

// shortPath keeps the last two path components, e.g. "Models/Habit.swift".
func shortPath(p string) string {
	parts := strings.Split(p, "/")
	if len(parts) >= 2 {
		return parts[len(parts)-2] + "/" + parts[len(parts)-1]
	}
	return p
}

func truncateActivity(s string) string {
	const maxWidth = 60
	if r := []rune(s); len(r) > maxWidth {
		return string(r[:maxWidth]) + "..."
	}
	return s
}

func pluralize(n int, word string) string {
	if n == 1 {
		return word
	}
	return word + "s"
}
