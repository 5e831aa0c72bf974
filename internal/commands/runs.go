package commands

import (
	"fmt"
	"io"
	"strings"
	"time"

	"github.com/XAVware/ONYX/internal/config"
	"github.com/XAVware/ONYX/internal/storage"
	"github.com/XAVware/ONYX/internal/terminal"
	"github.com/spf13/cobra"
)

var runsFlags struct {
	limit   int
	project string
}

var runsCmd = &cobra.Command{
	Use:   "runs [project]",
	Short: "Show fix-loop run history",
	Long:  "List the recorded fix-loop runs of a project, newest last.",
	Args:  cobra.MaximumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		store, err := runStoreFor(cmd, args)
		if err != nil {
			return err
		}
		runs, err := store.Recent(runsFlags.limit)
		if err != nil {
			return err
		}
		out := cmd.OutOrStdout()
		if len(runs) == 0 {
			fmt.Fprintln(out, "No runs recorded yet.")
			return nil
		}
		printRuns(out, runs)
		return nil
	},
}

var runsShowCmd = &cobra.Command{
	Use:   "show <id>",
	Short: "Show one run in detail",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		store, err := runStoreFor(cmd, projectArg())
		if err != nil {
			return err
		}
		run, err := store.Get(args[0])
		if err != nil {
			return err
		}
		printRun(cmd.OutOrStdout(), run)
		return nil
	},
}

var runsClearCmd = &cobra.Command{
	Use:   "clear",
	Short: "Delete the run history",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		store, err := runStoreFor(cmd, projectArg())
		if err != nil {
			return err
		}
		if err := store.Clear(); err != nil {
			return err
		}
		fmt.Fprintln(cmd.OutOrStdout(), "Run history cleared.")
		return nil
	},
}

func projectArg() []string {
	if runsFlags.project == "" {
		return nil
	}
	return []string{runsFlags.project}
}

func runStoreFor(cmd *cobra.Command, args []string) (*storage.RunStore, error) {
	a, err := setup(cmd)
	if err != nil {
		return nil, err
	}
	defer a.close()

	root, err := a.projectRoot(args)
	if err != nil {
		return nil, err
	}
	return storage.NewRunStore(config.StateDir(root)), nil
}

func printRuns(w io.Writer, runs []storage.Run) {
	fmt.Fprintf(w, "%-10s %-17s %-6s %-10s %6s %6s %9s\n", "ID", "Started", "Cmd", "Status", "Builds", "Errors", "Duration")
	fmt.Fprintln(w, strings.Repeat("-", 70))
	for _, r := range runs {
		fmt.Fprintf(w, "%-10s %-17s %-6s %-10s %6d %6d %9s\n",
			shortID(r.ID),
			r.StartedAt.Local().Format("2006-01-02 15:04"),
			r.Command,
			r.Status,
			r.Builds,
			len(r.Remaining),
			r.Duration().Round(time.Second),
		)
	}
}

func printRun(w io.Writer, r *storage.Run) {
	fmt.Fprintf(w, "Run %s\n", r.ID)
	fmt.Fprintf(w, "  Command:    %s\n", r.Command)
	if r.Provider != "" {
		fmt.Fprintf(w, "  Model:      %s %s\n", r.Provider, r.Model)
	}
	fmt.Fprintf(w, "  Started:    %s\n", r.StartedAt.Local().Format(time.RFC1123))
	fmt.Fprintf(w, "  Duration:   %s\n", r.Duration().Round(time.Second))
	fmt.Fprintf(w, "  Status:     %s\n", r.Status)
	fmt.Fprintf(w, "  Builds:     %d (%d fix rounds, %d without changes)\n", r.Builds, r.Iterations, r.NoOpRounds)
	if r.Stalled {
		fmt.Fprintln(w, "  Stalled:    the same errors survived a fix round")
	}
	if len(r.FilesTouched) > 0 {
		fmt.Fprintf(w, "  Files:      %d touched, +%d -%d\n", len(r.FilesTouched), r.LinesAdded, r.LinesRemoved)
		for _, f := range r.FilesTouched {
			fmt.Fprintf(w, "              %s\n", f)
		}
	}
	if r.Error != "" {
		fmt.Fprintf(w, "  Error:      %s\n", r.Error)
	}
	if len(r.Remaining) > 0 {
		fmt.Fprintln(w)
		terminal.PrintDiagnostics(w, r.Remaining, 20)
	}
}

func init() {
	runsCmd.PersistentFlags().StringVar(&runsFlags.project, "project", "", "project path or name (for show and clear)")
	runsCmd.Flags().IntVarP(&runsFlags.limit, "limit", "n", 10, "number of runs to list")
	runsCmd.AddCommand(runsShowCmd)
	runsCmd.AddCommand(runsClearCmd)
}
