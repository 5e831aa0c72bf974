package commands

import (
	"fmt"
	"os/exec"

	"github.com/XAVware/ONYX/internal/xcode"
	"github.com/spf13/cobra"
)

// Version is set at build time.
var Version = "0.1.0"

var rootCmd = &cobra.Command{
	Use:     "onyx",
	Short:   "Generate and fix SwiftUI iOS apps with an LLM",
	Long:    "ONYX plans, generates, builds, and repairs iOS apps. It feeds xcodebuild diagnostics back to an LLM until the project compiles.",
	Version: Version,
	// With no subcommand, ask for an idea and generate an app.
	RunE: func(cmd *cobra.Command, args []string) error {
		return runNew(cmd, nil)
	},
	SilenceUsage:  true,
	SilenceErrors: true,
}

// Execute runs the root command.
func Execute() error {
	return rootCmd.Execute()
}

var openCmd = &cobra.Command{
	Use:   "open [project]",
	Short: "Open the project in Xcode",
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
		proj, err := xcode.Locate(root)
		if err != nil {
			return err
		}
		if proj.Kind == xcode.KindSpec {
			return fmt.Errorf("%s has no generated Xcode project yet. Run `onyx build` first", proj.Name)
		}
		return exec.Command("open", proj.Path).Run()
	},
}

// flags holds the persistent flag values.
var flags struct {
	config   string
	provider string
	model    string
	verbose  bool
}

func init() {
	pf := rootCmd.PersistentFlags()
	pf.StringVar(&flags.config, "config", "", "config file (default ~/.onyx/config.yaml)")
	pf.StringVar(&flags.provider, "provider", "", "LLM provider (claude-cli, anthropic, openai, gemini)")
	pf.StringVar(&flags.model, "model", "", "model name for the selected provider")
	pf.BoolVarP(&flags.verbose, "verbose", "v", false, "mirror the run log to stderr")

	rootCmd.AddCommand(newCmd)
	rootCmd.AddCommand(buildCmd)
	rootCmd.AddCommand(fixCmd)
	rootCmd.AddCommand(parseCmd)
	rootCmd.AddCommand(applyCmd)
	rootCmd.AddCommand(runsCmd)
	rootCmd.AddCommand(keysCmd)
	rootCmd.AddCommand(doctorCmd)
	rootCmd.AddCommand(openCmd)
	rootCmd.AddCommand(mcpCmd)
}
