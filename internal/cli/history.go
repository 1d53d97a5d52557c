package cli

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"time"

	"github.com/spf13/cobra"

	"github.com/bfjit/bench/internal/store"
)

// HistoryOptions holds flags for the history command.
type HistoryOptions struct {
	*RootOptions
	Database string
	Limit    int
}

// NewHistoryCommand creates the history command.
func NewHistoryCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &HistoryOptions{RootOptions: rootOpts}

	cmd := &cobra.Command{
		Use:   "history [case-path]",
		Short: "Inspect recorded runs",
		Long: `Show recent runs from a history database, or the per-run timing
of a single case when a case path is given.

Examples:
  bfbench history --db bench.db
  bfbench history --db bench.db progs/mandelbrot.b
  bfbench history --db bench.db --limit 5 --format json`,
		Args:          cobra.MaximumNArgs(1),
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return showHistory(opts, args, cmd)
		},
	}

	cmd.Flags().StringVar(&opts.Database, "db", "", "path to the history database (required)")
	cmd.Flags().IntVar(&opts.Limit, "limit", 10, "maximum entries to show")
	_ = cmd.MarkFlagRequired("db")

	return cmd
}

func showHistory(opts *HistoryOptions, args []string, cmd *cobra.Command) error {
	if _, err := os.Stat(opts.Database); os.IsNotExist(err) {
		return NewExitError(ExitCommandError, fmt.Sprintf("history database not found: %s", opts.Database))
	}

	st, err := store.Open(opts.Database)
	if err != nil {
		return WrapExitError(ExitCommandError, "failed to open history database", err)
	}
	defer st.Close()

	ctx := cmd.Context()
	if ctx == nil {
		ctx = context.Background()
	}

	if len(args) == 1 {
		return showCaseHistory(ctx, st, args[0], opts, cmd)
	}
	return showRuns(ctx, st, opts, cmd)
}

func showRuns(ctx context.Context, st *store.Store, opts *HistoryOptions, cmd *cobra.Command) error {
	runs, err := st.ListRuns(ctx, opts.Limit)
	if err != nil {
		return WrapExitError(ExitCommandError, "failed to list runs", err)
	}

	if opts.Format == "json" {
		encoder := json.NewEncoder(cmd.OutOrStdout())
		encoder.SetIndent("", "  ")
		return encoder.Encode(CLIResponse{Status: "ok", Data: runs})
	}

	w := cmd.OutOrStdout()
	if len(runs) == 0 {
		fmt.Fprintln(w, "No runs recorded.")
		return nil
	}
	for _, r := range runs {
		fmt.Fprintf(w, "%s  %-20s  %d passed, %d failed\n",
			r.StartedAt.Format(time.RFC3339), r.Executable, r.Passed, r.Failed)
	}
	return nil
}

func showCaseHistory(ctx context.Context, st *store.Store, path string, opts *HistoryOptions, cmd *cobra.Command) error {
	results, err := st.CaseHistory(ctx, path, opts.Limit)
	if err != nil {
		return WrapExitError(ExitCommandError, "failed to load case history", err)
	}

	if opts.Format == "json" {
		encoder := json.NewEncoder(cmd.OutOrStdout())
		encoder.SetIndent("", "  ")
		return encoder.Encode(CLIResponse{Status: "ok", Data: results})
	}

	w := cmd.OutOrStdout()
	if len(results) == 0 {
		fmt.Fprintf(w, "No results recorded for %s.\n", path)
		return nil
	}
	for _, r := range results {
		verdict := "GOOD"
		if !r.Pass {
			verdict = "BAD "
		}
		fmt.Fprintf(w, "%-24s%s\t%.1fms\n", r.Path, verdict, r.ElapsedMS)
	}
	return nil
}
