package commands

import (
	"encoding/json"
	"fmt"
	"io"
	"os"

	"github.com/XAVware/ONYX/internal/diagnostics"
	"github.com/XAVware/ONYX/internal/terminal"
	"github.com/spf13/cobra"
)

var parseFlags struct {
	json       bool
	errorsOnly bool
}

var parseCmd = &cobra.Command{
	Use:   "parse [log-file]",
	Short: "Parse xcodebuild output into diagnostics",
	Long:  "Read raw xcodebuild or swiftc output from a file (or stdin when the file is omitted or \"-\") and print the diagnostics found in it.",
	Args:  cobra.MaximumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		raw, err := readInput(cmd, args)
		if err != nil {
			return err
		}

		ds := diagnostics.Parse(string(raw))
		if parseFlags.errorsOnly {
			ds = diagnostics.Filter(ds, diagnostics.SeverityError)
		}
		if ds == nil {
			ds = []diagnostics.Diagnostic{}
		}

		out := cmd.OutOrStdout()
		if parseFlags.json {
			enc := json.NewEncoder(out)
			enc.SetIndent("", "  ")
			return enc.Encode(ds)
		}
		terminal.PrintDiagnostics(out, ds, 0)
		return nil
	},
}

// readInput reads the named file, or the command's stdin for "" and "-".
func readInput(cmd *cobra.Command, args []string) ([]byte, error) {
	if len(args) == 0 || args[0] == "-" {
		data, err := io.ReadAll(cmd.InOrStdin())
		if err != nil {
			return nil, fmt.Errorf("failed to read stdin: %w", err)
		}
		return data, nil
	}
	data, err := os.ReadFile(args[0])
	if err != nil {
		return nil, fmt.Errorf("failed to read %s: %w", args[0], err)
	}
	return data, nil
}

func init() {
	parseCmd.Flags().BoolVar(&parseFlags.json, "json", false, "print diagnostics as JSON")
	parseCmd.Flags().BoolVar(&parseFlags.errorsOnly, "errors-only", false, "drop warnings and notes")
}
