package commands

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"time"

	"github.com/XAVware/ONYX/internal/diagnostics"
	"github.com/XAVware/ONYX/internal/terminal"
	"github.com/XAVware/ONYX/internal/xcode"
	"github.com/spf13/cobra"
)

var buildFlags struct {
	clean         bool
	configuration string
	json          bool
}

var buildCmd = &cobra.Command{
	Use:   "build [project]",
	Short: "Build the project and list diagnostics",
	Long:  "Run xcodebuild once for the project and print the parsed errors and warnings. Nothing is changed.",
	Args:  cobra.MaximumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		a, err := setup(cmd)
		if err != nil {
			return err
		}
		defer a.close()

		root, err := a.projectRoot(args)
		if err != nil {
			return err
		}
		confName := a.cfg.Build.Configuration
		if buildFlags.configuration != "" {
			confName = buildFlags.configuration
		}
		conf, err := xcode.ParseConfiguration(confName)
		if err != nil {
			return err
		}

		ctx, stop := withInterrupt(cmd.Context())
		defer stop()

		var spinner *terminal.Spinner
		if !buildFlags.json {
			spinner = terminal.NewSpinner(fmt.Sprintf("Building %s (%s)...", root, conf))
			spinner.Start()
		}
		res, err := a.builder().Build(ctx, root, conf, buildFlags.clean)
		if spinner != nil {
			spinner.Stop()
		}
		if err != nil {
			if errors.Is(err, xcode.ErrProjectNotFound) {
				terminal.Error("No Xcode project, workspace, or project.yml in " + root)
			}
			return err
		}

		if buildFlags.json {
			enc := json.NewEncoder(cmd.OutOrStdout())
			enc.SetIndent("", "  ")
			if err := enc.Encode(res); err != nil {
				return err
			}
		} else {
			printBuild(res)
		}
		if !res.Succeeded {
			return errBuildFailed
		}
		return nil
	},
}

func printBuild(res *xcode.BuildResult) {
	switch {
	case res.Succeeded:
		terminal.Success(fmt.Sprintf("Build succeeded in %s", res.Duration.Round(100*time.Millisecond)))
	case res.TimedOut:
		terminal.Error("Build timed out")
	default:
		terminal.Error(fmt.Sprintf("Build failed with %s", diagnostics.Summary(res.Diagnostics)))
	}
	if len(res.Diagnostics) > 0 {
		fmt.Println()
		terminal.PrintDiagnostics(os.Stdout, res.Diagnostics, 50)
	}
}

func init() {
	buildCmd.Flags().BoolVar(&buildFlags.clean, "clean", false, "run a clean build")
	buildCmd.Flags().StringVar(&buildFlags.configuration, "configuration", "", "Debug or Release (default from config)")
	buildCmd.Flags().BoolVar(&buildFlags.json, "json", false, "print the build result as JSON")
}
