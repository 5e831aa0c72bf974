package commands

import (
	"errors"
	"fmt"

	"github.com/XAVware/ONYX/internal/config"
	"github.com/XAVware/ONYX/internal/secrets"
	"github.com/XAVware/ONYX/internal/terminal"
	"github.com/spf13/cobra"
)

var doctorCmd = &cobra.Command{
	Use:   "doctor",
	Short: "Check prerequisites and configuration",
	Long:  "Report whether Xcode, an iOS simulator runtime, XcodeGen, and the configured LLM backend are usable.",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		a, err := setup(cmd)
		if err != nil {
			return err
		}
		defer a.close()

		terminal.Banner(Version)

		opts := terminal.ToolStatusOpts{
			HasXcode:     config.CheckXcode(),
			HasSimulator: config.CheckSimulator(),
			HasXcodegen:  config.CheckTool(a.cfg.Build.Xcodegen),
			Provider:     a.cfg.LLM.Provider,
		}
		claudePath := a.cfg.LLM.ClaudePath
		if claudePath == "" {
			claudePath, _ = config.FindClaude()
		}
		if claudePath != "" {
			opts.ClaudeVersion = config.ToolVersion(claudePath)
		}
		if opts.Provider != "claude-cli" {
			store := a.keyStore()
			opts.KeyBackend = store.Backend()
			_, keyErr := secrets.APIKey(store, opts.Provider)
			opts.HasAPIKey = keyErr == nil
			if keyErr != nil && !errors.Is(keyErr, secrets.ErrNotFound) {
				a.log.Warn().Err(keyErr).Msg("failed to read API key")
			}
		}
		terminal.ToolStatus(opts)

		terminal.Detail("Config", a.cfg.Root)
		terminal.Detail("Projects", fmt.Sprintf("%s (%d)", a.cfg.ProjectsDir, len(a.cfg.ListProjects())))
		terminal.Detail("Model", a.cfg.LLM.Provider+" "+a.cfg.LLM.Model)
		if a.cfg.Analyst.Provider != "" {
			terminal.Detail("Analyst", a.cfg.Analyst.Provider+" "+a.cfg.Analyst.Model)
		}
		terminal.Detail("Fix loop", fmt.Sprintf("%d passes, %s, concurrency %d",
			a.cfg.Fix.MaxIterations, a.cfg.Fix.Batching, a.cfg.Fix.Concurrency))

		if !opts.HasXcode || !opts.HasSimulator {
			return fmt.Errorf("prerequisites missing")
		}
		if opts.Provider == "claude-cli" && opts.ClaudeVersion == "" {
			return fmt.Errorf("claude CLI not found; install Claude Code or pick another --provider")
		}
		return nil
	},
}
