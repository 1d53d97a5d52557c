package cli

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"path/filepath"
	"time"

	"github.com/spf13/cobra"

	"github.com/bfjit/bench/internal/corpus"
	"github.com/bfjit/bench/internal/harness"
	"github.com/bfjit/bench/internal/runner"
	"github.com/bfjit/bench/internal/store"
)

// RunOptions holds flags for the run command.
type RunOptions struct {
	*RootOptions
	Manifest string
	History  string
	Parallel int
	Timeout  time.Duration

	// Getenv allows overriding executable resolution (for testing).
	// If nil, defaults to os.Getenv.
	Getenv func(string) string
}

// CaseReport is the JSON shape of one case outcome.
type CaseReport struct {
	Path      string  `json:"path"`
	Pass      bool    `json:"pass"`
	ElapsedMS float64 `json:"elapsed_ms"`
	Expected  string  `json:"expected"`
	Actual    string  `json:"actual,omitempty"`
	Error     string  `json:"error,omitempty"`
}

// RunReport is the JSON shape of a whole run.
type RunReport struct {
	Executable string       `json:"executable"`
	Passed     int          `json:"passed"`
	Failed     int          `json:"failed"`
	Cases      []CaseReport `json:"cases"`
}

// NewRunCommand creates the run command.
func NewRunCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &RunOptions{RootOptions: rootOpts}

	cmd := &cobra.Command{
		Use:   "run [flags] [-- args forwarded to every invocation]",
		Short: "Verify the program-under-test against the corpus",
		Long: `Run every corpus case through the program-under-test and verify
its stdout digest.

The executable is located via the BF_RUN environment variable, falling
back to ./jit-x64. Arguments after "--" are forwarded verbatim to every
invocation, after the source file path.

Exit codes:
  0 - All cases passed
  1 - One or more cases failed verification
  2 - Infrastructure error (bad manifest, unlaunchable executable, etc.)

Examples:
  bfbench run
  BF_RUN=./jit-arm bfbench run -- --no-fold
  bfbench run --manifest corpus.yaml --parallel 4
  bfbench run --history bench.db --format json`,
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runCorpus(opts, args, cmd)
		},
	}

	cmd.Flags().StringVar(&opts.Manifest, "manifest", "", "corpus manifest (YAML); built-in table when omitted")
	cmd.Flags().StringVar(&opts.History, "history", "", "record run results to this SQLite database")
	cmd.Flags().IntVar(&opts.Parallel, "parallel", 1, "number of cases to run concurrently")
	cmd.Flags().DurationVar(&opts.Timeout, "timeout", 0, "per-case timeout (0 = wait forever)")

	return cmd
}

func runCorpus(opts *RunOptions, passthrough []string, cmd *cobra.Command) error {
	logLevel := slog.LevelWarn
	if opts.Verbose {
		logLevel = slog.LevelDebug
	}
	logger := slog.New(slog.NewTextHandler(cmd.ErrOrStderr(), &slog.HandlerOptions{
		Level: logLevel,
	}))

	executable := runner.ResolveExecutable(opts.Getenv)

	// Load the registry up front; a missing stdin payload file must fail
	// fast, before any case runs.
	var manifest corpus.Manifest
	baseDir := ""
	if opts.Manifest != "" {
		var err error
		manifest, err = corpus.LoadManifest(opts.Manifest)
		if err != nil {
			return WrapExitError(ExitCommandError, "failed to load manifest", err)
		}
		baseDir = filepath.Dir(opts.Manifest)
	} else {
		manifest = corpus.Builtin()
	}
	cases, err := manifest.Resolve(baseDir)
	if err != nil {
		return WrapExitError(ExitCommandError, "failed to resolve corpus", err)
	}

	logger.Debug("corpus loaded",
		"cases", len(cases),
		"executable", executable,
		"passthrough_args", passthrough,
	)

	reportOut := cmd.OutOrStdout()
	if opts.Format == "json" {
		// The per-case text report would corrupt the JSON document.
		reportOut = io.Discard
	}

	h := harness.New(harness.Config{
		Cases: cases,
		Runner: &runner.Runner{
			Executable: executable,
			ExtraArgs:  passthrough,
			Timeout:    opts.Timeout,
			Logger:     logger,
		},
		Out:      reportOut,
		Parallel: opts.Parallel,
		Logger:   logger,
	})

	ctx := cmd.Context()
	if ctx == nil {
		ctx = context.Background()
	}

	started := time.Now()
	summary, err := h.Run(ctx)
	if err != nil {
		return WrapExitError(ExitCommandError, "cannot run program under test", err)
	}

	if opts.History != "" {
		if err := recordHistory(ctx, opts.History, executable, started, summary); err != nil {
			return WrapExitError(ExitCommandError, "failed to record run history", err)
		}
		logger.Debug("run recorded", "database", opts.History)
	}

	if opts.Format == "json" {
		if err := outputRunJSON(cmd, executable, summary); err != nil {
			return err
		}
	}

	if summary.Failed > 0 {
		return NewExitError(ExitFailure, fmt.Sprintf("%d case(s) failed", summary.Failed))
	}
	return nil
}

// recordHistory persists the run summary to the history database.
func recordHistory(ctx context.Context, path, executable string, started time.Time, summary *harness.Summary) error {
	st, err := store.Open(path)
	if err != nil {
		return err
	}
	defer func() {
		if closeErr := st.Close(); closeErr != nil {
			slog.Error("error closing history database", "error", closeErr)
		}
	}()

	run := store.NewRun(executable, started)
	run.Passed = summary.Passed
	run.Failed = summary.Failed

	results := make([]store.CaseResult, 0, len(summary.Outcomes))
	for _, o := range summary.Outcomes {
		results = append(results, store.CaseResult{
			RunID:      run.ID,
			Path:       o.Case.Path,
			StdinBytes: len(o.Case.Stdin),
			Expected:   o.Case.Digest,
			Actual:     o.Actual,
			Pass:       o.Pass,
			ElapsedMS:  float64(o.Elapsed) / float64(time.Millisecond),
		})
	}

	return st.RecordRun(ctx, run, results)
}

// outputRunJSON emits the run summary as a CLIResponse document.
func outputRunJSON(cmd *cobra.Command, executable string, summary *harness.Summary) error {
	report := RunReport{
		Executable: executable,
		Passed:     summary.Passed,
		Failed:     summary.Failed,
		Cases:      make([]CaseReport, 0, len(summary.Outcomes)),
	}
	for _, o := range summary.Outcomes {
		cr := CaseReport{
			Path:      o.Case.Path,
			Pass:      o.Pass,
			ElapsedMS: float64(o.Elapsed) / float64(time.Millisecond),
			Expected:  o.Case.Digest,
			Actual:    o.Actual,
		}
		if o.Err != nil {
			cr.Error = o.Err.Error()
		}
		report.Cases = append(report.Cases, cr)
	}

	response := CLIResponse{Status: "ok", Data: report}
	if summary.Failed > 0 {
		response.Status = "error"
		response.Error = &CLIError{
			Code:    "E_CASE_FAILED",
			Message: fmt.Sprintf("%d case(s) failed", summary.Failed),
		}
	}

	encoder := json.NewEncoder(cmd.OutOrStdout())
	encoder.SetIndent("", "  ")
	return encoder.Encode(response)
}
