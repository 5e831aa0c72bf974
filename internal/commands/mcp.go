package commands

import (
	"github.com/XAVware/ONYX/internal/mcpserver"
	"github.com/spf13/cobra"
)

var mcpRoot string

var mcpCmd = &cobra.Command{
	Use:   "mcp",
	Short: "Run the ONYX MCP server over stdio",
	Long:  "Starts an MCP server exposing parse_diagnostics, extract_file_blocks, apply_file_blocks, and build_project, so an agent such as Claude Code can drive its own fix loop.",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		a, err := setup(cmd)
		if err != nil {
			return err
		}
		defer a.close()

		return mcpserver.New(a.builder(), mcpRoot, a.log).Run(cmd.Context(), Version)
	},
}

func init() {
	mcpCmd.Flags().StringVar(&mcpRoot, "root", ".", "default project root for tool calls that name none")
}
