// Package fixloop drives the build, diagnose, correct, rebuild cycle.
package fixloop

import (
	"context"
	"errors"
	"fmt"
	"path/filepath"

	"github.com/XAVware/ONYX/internal/blocks"
	"github.com/XAVware/ONYX/internal/changes"
	"github.com/XAVware/ONYX/internal/config"
	"github.com/XAVware/ONYX/internal/diagnostics"
	"github.com/XAVware/ONYX/internal/llm"
	"github.com/XAVware/ONYX/internal/prompts"
	"github.com/XAVware/ONYX/internal/treewriter"
	"github.com/XAVware/ONYX/internal/xcode"
	"github.com/rs/zerolog"
)

// Options configures a Controller. Zero values pick defaults.
type Options struct {
	// MaxIterations bounds the number of passes, the initial build
	// included. Builds never exceed it.
	MaxIterations  int
	Configuration  xcode.Configuration
	CleanEachBuild bool
	// Batching is config.BatchPerFile or config.BatchCombined.
	Batching    string
	Concurrency int
	// SnapshotLimit caps the project source sent when no diagnostic
	// names a file, in bytes.
	SnapshotLimit int
	// Analyst, when set, summarizes root causes once per round before the
	// correction requests go out.
	Analyst  llm.Completer
	Prompts  *prompts.Catalog
	Observer Observer
	Logger   *zerolog.Logger
}

// Controller runs fix loops. It holds no per-run state and may be reused
// across project roots.
type Controller struct {
	builder   Builder
	completer llm.Completer
	opts      Options
	log       zerolog.Logger
}

// New returns a Controller with defaults applied.
func New(b Builder, c llm.Completer, opts Options) *Controller {
	if opts.MaxIterations <= 0 {
		opts.MaxIterations = 10
	}
	if opts.Configuration == "" {
		opts.Configuration = xcode.Debug
	}
	if opts.Batching == "" {
		opts.Batching = config.BatchPerFile
	}
	if opts.Concurrency <= 0 {
		opts.Concurrency = 1
	}
	if opts.Prompts == nil {
		opts.Prompts = prompts.Default()
	}
	log := zerolog.Nop()
	if opts.Logger != nil {
		log = *opts.Logger
	}
	return &Controller{builder: b, completer: c, opts: opts, log: log.With().Str("component", "fixloop").Logger()}
}

// Run builds root and, while the build fails and passes remain, asks the
// completer for corrected files, applies them, and rebuilds.
//
// The returned Result is never nil. When the run aborts the error is both
// returned and stored in Result.Err.
func (c *Controller) Run(ctx context.Context, root string) (*Result, error) {
	absRoot, err := filepath.Abs(root)
	if err != nil {
		return c.abort(&Result{}, fmt.Errorf("failed to resolve root: %w", err))
	}
	run := &run{Controller: c, root: absRoot}
	res := &Result{}

	c.log.Info().Str("root", absRoot).Int("max_iterations", c.opts.MaxIterations).
		Str("batching", c.opts.Batching).Msg("fix loop started")

	build, err := run.build(ctx, res, 0, true)
	if err != nil {
		return c.abort(res, err)
	}

	for pass := 1; ; pass++ {
		if build.Succeeded {
			return c.finish(res, StatusSucceeded), nil
		}
		if pass >= c.opts.MaxIterations {
			return c.finish(res, StatusExhausted), nil
		}
		if err := ctx.Err(); err != nil {
			return c.abort(res, err)
		}

		it := Iteration{Index: pass - 1, PreDiagnostics: build.Diagnostics}
		next, err := run.pass(ctx, res, &it, build)
		res.Iterations = append(res.Iterations, it)
		if err != nil {
			return c.abort(res, err)
		}
		c.notify(Event{Kind: EventFixApplied, Pass: pass, Files: it.FilesTouched, Iteration: &res.Iterations[len(res.Iterations)-1]})
		if next != nil {
			build = next
		}
	}
}

func (c *Controller) finish(res *Result, status Status) *Result {
	res.Status = status
	ev := c.log.Info()
	if status != StatusSucceeded {
		ev = c.log.Warn()
	}
	ev.Str("status", string(status)).Int("builds", res.Builds).Int("iterations", len(res.Iterations)).
		Bool("stalled", res.Stalled).Int("remaining_errors", len(res.Remaining())).Msg("fix loop finished")
	c.notify(Event{Kind: EventFinished, Result: res})
	return res
}

func (c *Controller) abort(res *Result, err error) (*Result, error) {
	res.Status = StatusAborted
	res.Err = err
	c.log.Error().Err(err).Int("builds", res.Builds).Msg("fix loop aborted")
	c.notify(Event{Kind: EventFinished, Result: res})
	return res, err
}

func (c *Controller) notify(ev Event) {
	if c.opts.Observer != nil {
		c.opts.Observer(ev)
	}
}

// run carries the state of one Run call.
type run struct {
	*Controller
	root  string
	files *fileIndex
}

func (r *run) build(ctx context.Context, res *Result, pass int, clean bool) (*xcode.BuildResult, error) {
	r.notify(Event{Kind: EventBuildStarted, Pass: pass, Clean: clean})
	b, err := r.builder.Build(ctx, r.root, r.opts.Configuration, clean)
	if err != nil {
		return nil, fmt.Errorf("build failed to run: %w", err)
	}
	res.Builds++
	res.LastBuild = b
	r.files = nil

	r.log.Info().Int("pass", pass).Bool("clean", clean).Bool("succeeded", b.Succeeded).
		Int("errors", diagnostics.Count(b.Diagnostics, diagnostics.SeverityError)).
		Dur("duration", b.Duration).Msg("build finished")
	r.notify(Event{Kind: EventBuildFinished, Pass: pass, Build: b})
	return b, nil
}

// pass runs one correction round against the failing build prev and, when
// files were written, rebuilds. It returns the rebuild result or nil.
func (r *run) pass(ctx context.Context, res *Result, it *Iteration, prev *xcode.BuildResult) (*xcode.BuildResult, error) {
	pass := it.Index + 1
	plan, err := r.plan(prev.Errors())
	if err != nil {
		return nil, err
	}
	r.notify(Event{Kind: EventFixRequested, Pass: pass, Files: plan.files()})

	if r.opts.Analyst != nil {
		if it.Analysis, err = r.analyze(ctx, prev.Errors()); err != nil {
			return nil, err
		}
	}

	fbs, err := r.request(ctx, plan, it.Analysis)
	if err != nil {
		return nil, err
	}
	if len(fbs) == 0 {
		it.NoOp = true
		r.log.Warn().Int("pass", pass).Msg("completion had no file blocks, nothing applied")
		return nil, nil
	}

	if err := treewriter.Validate(r.root, fbs); err != nil {
		return nil, err
	}
	before, err := changes.Capture(r.root, blockPaths(fbs))
	if err != nil {
		return nil, err
	}
	wr, err := treewriter.Apply(r.root, fbs)
	if wr != nil {
		it.FilesTouched = wr.Written
	}
	if err != nil {
		return nil, err
	}
	if it.Changes, err = before.Compare(); err != nil {
		r.log.Warn().Err(err).Msg("failed to summarize changes")
	}
	r.log.Info().Int("pass", pass).Strs("files", it.FilesTouched).Msg("fixes applied")

	next, err := r.build(ctx, res, pass, r.opts.CleanEachBuild)
	if err != nil {
		return nil, err
	}
	it.PostBuild = next

	if diagnostics.SameSignatures(prev.Errors(), next.Errors()) {
		it.Stalled = true
		res.Stalled = true
		r.log.Warn().Int("pass", pass).Msg("errors unchanged after applying fixes")
	}
	res.Persistent = diagnostics.Persistent(prev.Errors(), next.Errors())
	return next, nil
}

func blockPaths(fbs []blocks.FileBlock) []string {
	seen := make(map[string]struct{}, len(fbs))
	var out []string
	for _, fb := range fbs {
		p := filepath.ToSlash(filepath.Clean(fb.Path))
		if _, ok := seen[p]; ok {
			continue
		}
		seen[p] = struct{}{}
		out = append(out, p)
	}
	return out
}

// IsAbort reports whether err is one of the conditions that stop a run
// outright rather than a failure of the loop's own bookkeeping.
func IsAbort(err error) bool {
	return errors.Is(err, llm.ErrTransport) ||
		errors.Is(err, treewriter.ErrPathEscape) ||
		errors.Is(err, xcode.ErrProjectNotFound) ||
		errors.Is(err, context.Canceled) ||
		errors.Is(err, context.DeadlineExceeded)
}
