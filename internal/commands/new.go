package commands

import (
	"errors"
	"fmt"
	"strings"
	"unicode"

	"github.com/XAVware/ONYX/internal/config"
	"github.com/XAVware/ONYX/internal/fixloop"
	"github.com/XAVware/ONYX/internal/pipeline"
	"github.com/XAVware/ONYX/internal/terminal"
	"github.com/XAVware/ONYX/internal/xcode"
	"github.com/spf13/cobra"
)

var newFlags struct {
	name      string
	skipBuild bool
}

var newCmd = &cobra.Command{
	Use:   "new [idea...]",
	Short: "Generate a new iOS app from an idea",
	Long: `Plan the architecture, generate each layer, and run the fix loop until
the app compiles. Without an idea argument you are prompted for one.
Re-running with the same --name resumes from the saved plan.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		return runNew(cmd, args)
	},
}

func runNew(cmd *cobra.Command, args []string) error {
	a, err := setup(cmd)
	if err != nil {
		return err
	}
	defer a.close()

	idea := strings.TrimSpace(strings.Join(args, " "))
	if idea == "" {
		if terminal.IsInteractive() {
			terminal.Banner(Version)
		}
		idea, err = terminal.ReadIdea("Describe the app you want to build:")
		if errors.Is(err, terminal.ErrCancelled) {
			terminal.Info("Cancelled.")
			return nil
		}
		if err != nil {
			return err
		}
		if idea == "" {
			return fmt.Errorf("an app idea is required")
		}
	}

	name := newFlags.name
	if name == "" {
		name = nameFromIdea(idea)
	}

	ctx, stop := withInterrupt(cmd.Context())
	defer stop()

	completer, err := a.completer(ctx)
	if err != nil {
		return err
	}

	progress := terminal.NewProgressDisplay(a.cfg.Fix.MaxIterations)

	// A nil *Controller must not end up inside the interface.
	var fixer pipeline.Fixer
	if !newFlags.skipBuild {
		ctl, err := a.controller(ctx, a.builder(), progress.OnEvent)
		if err != nil {
			return err
		}
		fixer = ctl
	}

	xcodegen := ""
	if config.CheckTool(a.cfg.Build.Xcodegen) {
		xcodegen = a.cfg.Build.Xcodegen
	}

	p := pipeline.New(completer, fixer, pipeline.Options{
		ProjectsDir: a.cfg.ProjectsDir,
		Layers:      a.cfg.Project.Layers,
		SkipBuild:   newFlags.skipBuild,
		Scaffold: xcode.ScaffoldOptions{
			BundleIDPrefix:   a.cfg.Project.BundleIDPrefix,
			DevelopmentTeam:  a.cfg.Project.DevelopmentTeam,
			DeploymentTarget: a.cfg.Project.DeploymentTarget,
		},
		XcodegenTool: xcodegen,
		Logger:       &a.log,
		Progress:     progress.OnStage,
		Provider:     a.cfg.LLM.Provider,
		Model:        a.cfg.LLM.Model,
	})

	progress.Start()
	res, err := p.Generate(ctx, idea, name)
	switch {
	case err != nil:
		progress.StopWithError("Generation stopped")
	case res.Fix == nil:
		progress.StopWithSuccess(fmt.Sprintf("Generated %s", res.Name))
	case res.Fix.Status == fixloop.StatusSucceeded:
		progress.StopWithSuccess(fmt.Sprintf("%s compiles", res.Name))
	default:
		progress.StopWithError(fmt.Sprintf("%s still has errors", res.Name))
	}

	if res != nil {
		printGenerated(res)
		warnDuplicateTypes(res.DuplicateTypes)
		reportFix(res.Fix)
	}
	if hint := abortHint(err); hint != "" {
		terminal.Info(hint)
	}
	if err != nil {
		return err
	}
	if res.Fix != nil && res.Fix.Status != fixloop.StatusSucceeded {
		terminal.Info("Run `onyx fix " + res.Name + "` to keep going.")
		return errBuildFailed
	}
	return nil
}

func printGenerated(res *pipeline.Result) {
	fmt.Println()
	terminal.Detail("Project", res.Root)
	if res.PlanReused {
		terminal.Detail("Plan", pipeline.PlanFile+" (reused)")
	} else {
		terminal.Detail("Plan", pipeline.PlanFile)
	}
	for _, l := range res.Layers {
		terminal.Detail(l.Layer, pluralize(len(l.Files), "file"))
	}
}

// nameFromIdea derives an app name from the first few words of the idea,
// e.g. "a habit tracker with streaks" -> "HabitTracker".
func nameFromIdea(idea string) string {
	skip := map[string]bool{
		"a": true, "an": true, "the": true, "app": true, "for": true, "my": true, "simple": true,
		"build": true, "make": true, "create": true, "me": true, "i": true, "want": true,
	}
	var words []string
	for _, w := range strings.FieldsFunc(idea, func(r rune) bool { return !unicode.IsLetter(r) && !unicode.IsDigit(r) }) {
		if skip[strings.ToLower(w)] {
			continue
		}
		if strings.EqualFold(w, "with") || strings.EqualFold(w, "that") {
			break
		}
		words = append(words, strings.ToLower(w))
		if len(words) == 2 {
			break
		}
	}
	return xcode.SanitizeAppName(strings.Join(words, " "))
}

func init() {
	newCmd.Flags().StringVar(&newFlags.name, "name", "", "app name (default derived from the idea)")
	newCmd.Flags().BoolVar(&newFlags.skipBuild, "skip-build", false, "generate sources without building or fixing")
}
