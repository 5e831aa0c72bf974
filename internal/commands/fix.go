package commands

import (
	"fmt"
	"time"

	"github.com/XAVware/ONYX/internal/changes"
	"github.com/XAVware/ONYX/internal/config"
	"github.com/XAVware/ONYX/internal/fixloop"
	"github.com/XAVware/ONYX/internal/storage"
	"github.com/XAVware/ONYX/internal/terminal"
	"github.com/XAVware/ONYX/internal/xcode"
	"github.com/spf13/cobra"
)

var fixFlags struct {
	maxIterations int
	batching      string
	configuration string
	clean         bool
}

var fixCmd = &cobra.Command{
	Use:   "fix [project]",
	Short: "Auto-fix compilation errors",
	Long:  "Build the project and feed its errors to the LLM, applying the corrected files and rebuilding until it compiles or the pass budget runs out.",
	Args:  cobra.MaximumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		a, err := setup(cmd)
		if err != nil {
			return err
		}
		defer a.close()

		if fixFlags.maxIterations > 0 {
			a.cfg.Fix.MaxIterations = fixFlags.maxIterations
		}
		if fixFlags.batching != "" {
			a.cfg.Fix.Batching = fixFlags.batching
		}
		if fixFlags.configuration != "" {
			a.cfg.Build.Configuration = fixFlags.configuration
		}
		if _, err := xcode.ParseConfiguration(a.cfg.Build.Configuration); err != nil {
			return err
		}
		if fixFlags.clean {
			a.cfg.Build.CleanEachBuild = true
		}
		if err := a.cfg.Validate(); err != nil {
			return err
		}

		root, err := a.projectRoot(args)
		if err != nil {
			return err
		}

		if dups, err := changes.DuplicateTypes(root, changes.SnapshotOptions{}); err == nil {
			warnDuplicateTypes(dups)
		} else {
			a.log.Warn().Err(err).Msg("duplicate type scan failed")
		}

		ctx, stop := withInterrupt(cmd.Context())
		defer stop()

		progress := terminal.NewProgressDisplay(a.cfg.Fix.MaxIterations)
		ctl, err := a.controller(ctx, a.builder(), progress.OnEvent)
		if err != nil {
			return err
		}

		started := time.Now()
		progress.Start()
		res, runErr := ctl.Run(ctx, root)
		switch {
		case runErr != nil:
			progress.StopWithError("Fix loop aborted")
		case res.Status == fixloop.StatusSucceeded:
			progress.StopWithSuccess("Project compiles")
		default:
			progress.StopWithError("Errors remain")
		}

		recordRun(a, root, "fix", started, res)
		reportFix(res)
		if hint := abortHint(runErr); hint != "" {
			terminal.Info(hint)
		}
		if runErr != nil {
			return runErr
		}
		if res.Status != fixloop.StatusSucceeded {
			return errBuildFailed
		}
		return nil
	},
}

// recordRun appends the run to the project's run log and refreshes the
// project status. Failures are logged and never fail the command.
func recordRun(a *app, root, command string, started time.Time, res *fixloop.Result) {
	state := config.StateDir(root)

	run := storage.NewRun(command, started, res)
	run.Provider = a.cfg.LLM.Provider
	run.Model = a.cfg.LLM.Model
	saved, err := storage.NewRunStore(state).Append(run)
	if err != nil {
		a.log.Warn().Err(err).Msg("failed to record run")
		return
	}
	a.log.Info().Str("run", saved.ID).Str("status", string(saved.Status)).Msg("run recorded")
	terminal.Detail("Run", fmt.Sprintf("%s (onyx runs show %s)", shortID(saved.ID), shortID(saved.ID)))

	projects := storage.NewProjectStore(state)
	if p, err := projects.Load(); err != nil || p == nil {
		return
	}
	status := storage.StatusFailing
	if res != nil && res.Status == fixloop.StatusSucceeded {
		status = storage.StatusReady
	}
	if _, err := projects.UpdateStatus(status); err != nil {
		a.log.Warn().Err(err).Msg("failed to update project status")
	}
}

func shortID(id string) string {
	if len(id) > 8 {
		return id[:8]
	}
	return id
}

func init() {
	fixCmd.Flags().IntVar(&fixFlags.maxIterations, "max-iterations", 0, "maximum number of builds (default from config)")
	fixCmd.Flags().StringVar(&fixFlags.batching, "batching", "", "per-file or combined (default from config)")
	fixCmd.Flags().StringVar(&fixFlags.configuration, "configuration", "", "Debug or Release (default from config)")
	fixCmd.Flags().BoolVar(&fixFlags.clean, "clean", false, "clean before every build")
}
