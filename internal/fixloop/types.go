package fixloop

import (
	"context"

	"github.com/XAVware/ONYX/internal/changes"
	"github.com/XAVware/ONYX/internal/diagnostics"
	"github.com/XAVware/ONYX/internal/xcode"
)

// Builder runs one build of a project root.
type Builder interface {
	Build(ctx context.Context, root string, cfg xcode.Configuration, clean bool) (*xcode.BuildResult, error)
}

// Status is the terminal state of a run.
type Status string

const (
	StatusSucceeded Status = "succeeded"
	StatusExhausted Status = "exhausted"
	StatusAborted   Status = "aborted"
)

// Iteration is one fix pass: the diagnostics that triggered it, the files
// it rewrote, and the rebuild that followed.
type Iteration struct {
	Index          int                      `json:"index"`
	PreDiagnostics []diagnostics.Diagnostic `json:"pre_diagnostics"`
	FilesTouched   []string                 `json:"files_touched"`
	// PostBuild is nil when the pass wrote nothing or the run stopped
	// before rebuilding.
	PostBuild *xcode.BuildResult   `json:"post_build,omitempty"`
	NoOp      bool                 `json:"no_op,omitempty"`
	Stalled   bool                 `json:"stalled,omitempty"`
	Changes   []changes.FileChange `json:"changes,omitempty"`
	Analysis  string               `json:"analysis,omitempty"`
}

// Result is the outcome of Controller.Run.
type Result struct {
	Status     Status                  `json:"status"`
	Iterations []Iteration             `json:"iterations"`
	LastBuild  *xcode.BuildResult      `json:"last_build,omitempty"`
	Stalled    bool                    `json:"stalled,omitempty"`
	Persistent []diagnostics.Signature `json:"persistent,omitempty"`
	Builds     int                     `json:"builds"`
	Err        error                   `json:"-"`
}

// Remaining returns the errors of the last build, if any.
func (r *Result) Remaining() []diagnostics.Diagnostic {
	if r.LastBuild == nil {
		return nil
	}
	return r.LastBuild.Errors()
}

// EventKind names a controller state transition.
type EventKind string

const (
	EventBuildStarted  EventKind = "build_started"
	EventBuildFinished EventKind = "build_finished"
	EventFixRequested  EventKind = "fix_requested"
	EventFixApplied    EventKind = "fix_applied"
	EventFinished      EventKind = "finished"
)

// Event is reported to an Observer. Only the fields relevant to Kind are set.
type Event struct {
	Kind      EventKind
	Pass      int
	Clean     bool
	Build     *xcode.BuildResult
	Files     []string
	Iteration *Iteration
	Result    *Result
}

// Observer receives controller events. It is called from the goroutine
// running Run.
type Observer func(Event)
