package xcode

import (
	"context"
	"errors"
	"fmt"
	"os/exec"
	"strings"
	"time"

	"github.com/XAVware/ONYX/internal/diagnostics"
	"github.com/rs/zerolog"
)

// Configuration is the xcodebuild build configuration.
type Configuration string

const (
	Debug   Configuration = "Debug"
	Release Configuration = "Release"
)

// ParseConfiguration accepts "debug" or "release" in any case.
func ParseConfiguration(s string) (Configuration, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "", "debug":
		return Debug, nil
	case "release":
		return Release, nil
	}
	return "", fmt.Errorf("unknown configuration %q (want Debug or Release)", s)
}

// DefaultDestination builds for any iOS simulator without naming a device.
const DefaultDestination = "generic/platform=iOS Simulator"

// BuildResult is the outcome of one build invocation.
type BuildResult struct {
	Succeeded     bool                     `json:"succeeded"`
	RawOutput     string                   `json:"-"`
	Diagnostics   []diagnostics.Diagnostic `json:"diagnostics"`
	Configuration Configuration            `json:"configuration"`
	Duration      time.Duration            `json:"duration"`
	ExitCode      int                      `json:"exit_code"`
	TimedOut      bool                     `json:"timed_out,omitempty"`
}

// Errors returns the diagnostics that fail the build.
func (r *BuildResult) Errors() []diagnostics.Diagnostic {
	return diagnostics.Filter(r.Diagnostics, diagnostics.SeverityError)
}

// Options configures a Builder. Zero values pick defaults.
type Options struct {
	Tool                  string        // xcodebuild binary
	XcodegenTool          string        // xcodegen binary
	Scheme                string        // defaults to the project name
	Destination           string        // defaults to DefaultDestination
	DerivedDataPath       string        // optional -derivedDataPath
	Timeout               time.Duration // defaults to 10 minutes
	Quiet                 bool          // pass -quiet
	TreatWarningsAsErrors bool
	// GenerateFromSpec runs xcodegen when only project.yml exists.
	GenerateFromSpec bool
	Logger           *zerolog.Logger
}

// Builder runs xcodebuild for a project root.
type Builder struct {
	opts Options
	log  zerolog.Logger
}

// NewBuilder returns a Builder with defaults applied.
func NewBuilder(opts Options) *Builder {
	if opts.Tool == "" {
		opts.Tool = "xcodebuild"
	}
	if opts.XcodegenTool == "" {
		opts.XcodegenTool = "xcodegen"
	}
	if opts.Destination == "" {
		opts.Destination = DefaultDestination
	}
	if opts.Timeout <= 0 {
		opts.Timeout = 10 * time.Minute
	}
	log := zerolog.Nop()
	if opts.Logger != nil {
		log = opts.Logger.With().Str("component", "build").Logger()
	}
	return &Builder{opts: opts, log: log}
}

// Build runs `xcodebuild [clean] build` for the project under root.
//
// A BuildResult is returned for every process that was started, including
// ones that failed or timed out. The error return is reserved for a
// missing project, a tool that could not be started, and cancellation of
// ctx by the caller.
func (b *Builder) Build(ctx context.Context, root string, cfg Configuration, clean bool) (*BuildResult, error) {
	if cfg == "" {
		cfg = Debug
	}

	proj, err := Locate(root)
	if err != nil {
		return nil, err
	}
	if proj.Kind == KindSpec {
		if !b.opts.GenerateFromSpec {
			return nil, fmt.Errorf("%w: %s has only project.yml", ErrProjectNotFound, root)
		}
		b.log.Info().Str("root", root).Msg("generating project from project.yml")
		if err := Generate(ctx, b.opts.XcodegenTool, root); err != nil {
			return nil, err
		}
		if proj, err = Locate(root); err != nil {
			return nil, err
		}
		if proj.Kind == KindSpec {
			return nil, fmt.Errorf("%w: xcodegen produced no project in %s", ErrProjectNotFound, root)
		}
	}

	args := b.args(proj, cfg, clean)
	b.log.Debug().Strs("args", args).Str("root", root).Msg("starting build")

	runCtx, cancel := context.WithTimeout(ctx, b.opts.Timeout)
	defer cancel()

	cmd := exec.CommandContext(runCtx, b.opts.Tool, args...)
	cmd.Dir = root
	cmd.WaitDelay = 5 * time.Second

	start := time.Now()
	output, runErr := cmd.CombinedOutput()
	res := &BuildResult{
		RawOutput:     string(output),
		Configuration: cfg,
		Duration:      time.Since(start),
	}

	if ctx.Err() != nil {
		return nil, ctx.Err()
	}

	var exitErr *exec.ExitError
	switch {
	case runErr == nil:
		res.ExitCode = 0
	case errors.Is(runCtx.Err(), context.DeadlineExceeded):
		res.TimedOut = true
		res.ExitCode = -1
	case errors.As(runErr, &exitErr):
		res.ExitCode = exitErr.ExitCode()
	default:
		return nil, fmt.Errorf("failed to run %s: %w", b.opts.Tool, runErr)
	}

	res.Diagnostics = diagnostics.Parse(res.RawOutput)
	b.classify(res)

	b.log.Info().
		Bool("succeeded", res.Succeeded).
		Int("exit_code", res.ExitCode).
		Bool("timed_out", res.TimedOut).
		Int("errors", diagnostics.Count(res.Diagnostics, diagnostics.SeverityError)).
		Int("warnings", diagnostics.Count(res.Diagnostics, diagnostics.SeverityWarning)).
		Dur("duration", res.Duration).
		Msg("build finished")
	return res, nil
}

func (b *Builder) args(proj Project, cfg Configuration, clean bool) []string {
	scheme := b.opts.Scheme
	if scheme == "" {
		scheme = proj.Name
	}
	var args []string
	if proj.Kind == KindWorkspace {
		args = append(args, "-workspace", proj.Path)
	} else {
		args = append(args, "-project", proj.Path)
	}
	args = append(args,
		"-scheme", scheme,
		"-configuration", string(cfg),
		"-destination", b.opts.Destination,
	)
	if b.opts.DerivedDataPath != "" {
		args = append(args, "-derivedDataPath", b.opts.DerivedDataPath)
	}
	if b.opts.Quiet {
		args = append(args, "-quiet")
	}
	if clean {
		args = append(args, "clean")
	}
	return append(args, "build")
}

// classify sets Succeeded and adds synthetic diagnostics so a failed build
// always carries at least one error.
func (b *Builder) classify(res *BuildResult) {
	if res.TimedOut {
		res.Diagnostics = append(res.Diagnostics, diagnostics.Diagnostic{
			Severity: diagnostics.SeverityError,
			Message:  fmt.Sprintf("build timed out after %s", b.opts.Timeout),
		})
	}

	if b.opts.TreatWarningsAsErrors {
		for i := range res.Diagnostics {
			if res.Diagnostics[i].Severity == diagnostics.SeverityWarning {
				res.Diagnostics[i].Severity = diagnostics.SeverityError
			}
		}
	}

	hasErrors := diagnostics.Count(res.Diagnostics, diagnostics.SeverityError) > 0
	if res.ExitCode != 0 && !hasErrors {
		res.Diagnostics = append(res.Diagnostics, diagnostics.Diagnostic{
			Severity: diagnostics.SeverityError,
			Message:  fmt.Sprintf("build failed with exit code %d and no error message\n%s", res.ExitCode, tail(res.RawOutput, 20)),
		})
		hasErrors = true
	}
	res.Succeeded = res.ExitCode == 0 && !hasErrors
}

// tail returns the last n non-empty lines of s.
func tail(s string, n int) string {
	lines := strings.Split(strings.TrimRight(s, "\n"), "\n")
	var kept []string
	for i := len(lines) - 1; i >= 0 && len(kept) < n; i-- {
		if strings.TrimSpace(lines[i]) != "" {
			kept = append(kept, lines[i])
		}
	}
	for i, j := 0, len(kept)-1; i < j; i, j = i+1, j-1 {
		kept[i], kept[j] = kept[j], kept[i]
	}
	if len(kept) == 0 {
		return "(no output)"
	}
	return strings.Join(kept, "\n")
}
