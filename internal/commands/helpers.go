package commands

import (
	"context"
	"errors"
	"fmt"
	"os"
	"strings"

	"github.com/XAVware/ONYX/internal/changes"
	"github.com/XAVware/ONYX/internal/config"
	"github.com/XAVware/ONYX/internal/fixloop"
	"github.com/XAVware/ONYX/internal/llm"
	"github.com/XAVware/ONYX/internal/logging"
	"github.com/XAVware/ONYX/internal/secrets"
	"github.com/XAVware/ONYX/internal/terminal"
	"github.com/XAVware/ONYX/internal/treewriter"
	"github.com/XAVware/ONYX/internal/xcode"
	"github.com/rs/zerolog"
	"github.com/spf13/cobra"
)

// app carries what every command needs: the loaded config, the run log,
// and (lazily) the API key store.
type app struct {
	cfg      *config.Config
	log      zerolog.Logger
	closeLog func() error
	store    secrets.Store
}

// setup loads the configuration, applies the persistent flags, and opens
// the run log. Callers must defer close.
func setup(cmd *cobra.Command) (*app, error) {
	cfg, err := config.Load(flags.config)
	if err != nil {
		return nil, err
	}
	if flags.provider != "" {
		cfg.LLM.Provider = flags.provider
	}
	if flags.model != "" {
		cfg.LLM.Model = flags.model
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	log, closeLog := logging.New(logging.Options{
		Dir:     cfg.LogDir,
		Level:   cfg.LogLevel,
		Verbose: flags.verbose,
	})
	log = log.With().Str("command", cmd.Name()).Logger()
	return &app{cfg: cfg, log: log, closeLog: closeLog}, nil
}

func (a *app) close() {
	if err := a.closeLog(); err != nil {
		fmt.Fprintf(os.Stderr, "failed to close log: %v\n", err)
	}
}

func (a *app) keyStore() secrets.Store {
	if a.store == nil {
		a.store = secrets.New(a.cfg.Root)
	}
	return a.store
}

// projectRoot picks the project to operate on: the argument (a path or a
// catalog name), else the working directory when it holds an Xcode
// project, else the most recent catalog project.
func (a *app) projectRoot(args []string) (string, error) {
	if len(args) > 0 && args[0] != "" {
		return a.cfg.ResolveProject(args[0])
	}
	if wd, err := os.Getwd(); err == nil {
		if _, err := xcode.Locate(wd); err == nil {
			return wd, nil
		}
	}
	root, err := a.cfg.ResolveProject("")
	if err != nil {
		printNoProjectFoundCreateFirst()
		return "", err
	}
	return root, nil
}

func (a *app) builder() *xcode.Builder {
	b := a.cfg.Build
	return xcode.NewBuilder(xcode.Options{
		Tool:                  b.Tool,
		XcodegenTool:          b.Xcodegen,
		Scheme:                b.Scheme,
		Destination:           b.Destination,
		DerivedDataPath:       b.DerivedDataPath,
		Timeout:               b.Timeout,
		Quiet:                 b.Quiet,
		TreatWarningsAsErrors: b.TreatWarningsAsErrors,
		GenerateFromSpec:      true,
		Logger:                &a.log,
	})
}

func (a *app) needsStore(provider string) secrets.Store {
	if provider == "claude-cli" {
		return nil
	}
	return a.keyStore()
}

// completer builds the main code-generation backend.
func (a *app) completer(ctx context.Context) (llm.Completer, error) {
	return llm.New(ctx, a.cfg.LLM, a.needsStore(a.cfg.LLM.Provider), a.log, "engineer")
}

// analyst builds the optional root-cause analyst, or nil when none is
// configured. Unset tuning falls back to the main backend's.
func (a *app) analyst(ctx context.Context) (llm.Completer, error) {
	cfg := a.cfg.Analyst
	if cfg.Provider == "" {
		return nil, nil
	}
	base := a.cfg.LLM
	if cfg.MaxTokens == 0 {
		cfg.MaxTokens = base.MaxTokens
	}
	if cfg.RequestsPerMinute == 0 {
		cfg.RequestsPerMinute = base.RequestsPerMinute
	}
	if cfg.MaxRetries == 0 {
		cfg.MaxRetries = base.MaxRetries
	}
	if cfg.RetryBaseDelay == 0 {
		cfg.RetryBaseDelay = base.RetryBaseDelay
	}
	return llm.New(ctx, cfg, a.needsStore(cfg.Provider), a.log, "analyst")
}

// controller wires a fix loop from the configuration.
func (a *app) controller(ctx context.Context, b fixloop.Builder, observer fixloop.Observer) (*fixloop.Controller, error) {
	buildCfg, err := xcode.ParseConfiguration(a.cfg.Build.Configuration)
	if err != nil {
		return nil, err
	}
	completer, err := a.completer(ctx)
	if err != nil {
		return nil, err
	}
	analyst, err := a.analyst(ctx)
	if err != nil {
		return nil, err
	}
	return fixloop.New(b, completer, fixloop.Options{
		MaxIterations:  a.cfg.Fix.MaxIterations,
		Configuration:  buildCfg,
		CleanEachBuild: a.cfg.Build.CleanEachBuild,
		Batching:       a.cfg.Fix.Batching,
		Concurrency:    a.cfg.Fix.Concurrency,
		SnapshotLimit:  a.cfg.Fix.SnapshotLimit,
		Analyst:        analyst,
		Observer:       observer,
		Logger:         &a.log,
	}), nil
}

// reportFix prints the final state of a fix-loop run.
func reportFix(res *fixloop.Result) {
	if res == nil {
		return
	}
	switch res.Status {
	case fixloop.StatusSucceeded:
		terminal.Success(fmt.Sprintf("Build succeeded after %s", pluralize(res.Builds, "build")))
	case fixloop.StatusExhausted:
		msg := fmt.Sprintf("Gave up after %s", pluralize(res.Builds, "build"))
		if res.Stalled {
			msg += " (the same errors kept coming back)"
		}
		terminal.Warning(msg)
	case fixloop.StatusAborted:
		terminal.Error("Fix loop aborted")
	}

	if remaining := res.Remaining(); len(remaining) > 0 {
		fmt.Println()
		terminal.PrintDiagnostics(os.Stdout, remaining, 20)
	}
}

// warnDuplicateTypes prints type names declared in more than one file.
func warnDuplicateTypes(dups []changes.DuplicateType) {
	if len(dups) == 0 {
		return
	}
	terminal.Warning("Types declared in more than one file:")
	for _, d := range dups {
		terminal.Detail(d.Name, strings.Join(d.Files, ", "))
	}
}

// abortHint suggests a next step for an aborted run. It is empty when err
// is not one of the conditions the fix loop stops on by design.
func abortHint(err error) string {
	if !fixloop.IsAbort(err) {
		return ""
	}
	switch {
	case errors.Is(err, context.Canceled), errors.Is(err, context.DeadlineExceeded):
		return "Run cancelled. Run `onyx fix` to pick up where it stopped."
	case errors.Is(err, llm.ErrTransport):
		return "The LLM request failed. Check `onyx doctor` and your API key, then run `onyx fix`."
	case errors.Is(err, treewriter.ErrPathEscape):
		return "The model returned a file outside the project. Nothing from that round was written."
	case errors.Is(err, xcode.ErrProjectNotFound):
		return "No .xcodeproj, .xcworkspace, or project.yml in the project root."
	}
	return ""
}

// errBuildFailed is returned by commands whose build did not succeed, so
// the process exits non-zero after the diagnostics have been printed.
var errBuildFailed = errors.New("build failed")

func pluralize(n int, word string) string {
	if n == 1 {
		return fmt.Sprintf("1 %s", word)
	}
	return fmt.Sprintf("%d %ss", n, word)
}

func printNoProjectFoundCreateFirst() {
	terminal.Error("No project found.")
	terminal.Info("Run `onyx new` first to create a project, or pass a project path.")
}
