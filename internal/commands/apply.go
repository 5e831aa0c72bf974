package commands

import (
	"fmt"

	"github.com/XAVware/ONYX/internal/blocks"
	"github.com/XAVware/ONYX/internal/changes"
	"github.com/XAVware/ONYX/internal/treewriter"
	"github.com/spf13/cobra"
)

var applyFlags struct {
	root   string
	dryRun bool
}

var applyCmd = &cobra.Command{
	Use:   "apply [markdown-file]",
	Short: "Write the file blocks of an LLM reply into a project",
	Long: `Extract every "## path" heading plus fenced code block from a markdown
reply (a file, or stdin when omitted or "-") and write the files under
--root. Paths escaping the root reject the whole batch.`,
	Args: cobra.MaximumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		raw, err := readInput(cmd, args)
		if err != nil {
			return err
		}
		out := cmd.OutOrStdout()

		fbs := blocks.Extract(string(raw))
		if len(fbs) == 0 {
			fmt.Fprintln(out, "No file blocks found.")
			return nil
		}

		if err := treewriter.Validate(applyFlags.root, fbs); err != nil {
			return err
		}
		if applyFlags.dryRun {
			for _, fb := range fbs {
				fmt.Fprintf(out, "%s (%d bytes)\n", fb.Path, len(fb.Content))
			}
			return nil
		}

		paths := make([]string, len(fbs))
		for i, fb := range fbs {
			paths[i] = fb.Path
		}
		before, err := changes.Capture(applyFlags.root, paths)
		if err != nil {
			return err
		}
		if _, err := treewriter.Apply(applyFlags.root, fbs); err != nil {
			return err
		}
		cs, err := before.Compare()
		if err != nil {
			return err
		}

		for _, c := range cs {
			fmt.Fprintln(out, c.String())
		}
		added, removed := changes.Totals(cs)
		fmt.Fprintf(out, "%s changed, +%d -%d\n", pluralize(len(cs), "file"), added, removed)
		return nil
	},
}

func init() {
	applyCmd.Flags().StringVar(&applyFlags.root, "root", ".", "project root the block paths are relative to")
	applyCmd.Flags().BoolVar(&applyFlags.dryRun, "dry-run", false, "list the blocks without writing")
}
