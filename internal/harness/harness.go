// Package harness drives the corpus through the process runner and reports
// a verdict per case.
//
// For every case the harness resolves the stdin payload, invokes the
// program-under-test, hashes the captured stdout, and compares the digest
// against the expected value. Verification is byte-exact: timing is
// recorded and reported but never influences a verdict.
package harness

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"sync"
	"time"

	"github.com/bfjit/bench/internal/corpus"
	"github.com/bfjit/bench/internal/digest"
	"github.com/bfjit/bench/internal/runner"
)

// labelWidth is the column the status starts in; paths are left-justified
// and padded to it.
const labelWidth = 24

// CaseRunner invokes the program-under-test for a single case.
// *runner.Runner is the production implementation; tests inject doubles.
type CaseRunner interface {
	Run(ctx context.Context, sourcePath string, stdin []byte) (*runner.Result, error)
}

// Config is the immutable configuration for one harness run.
// It is read once at construction and shared read-only afterwards, so a
// parallel run needs no further synchronization over it.
type Config struct {
	// Cases is the ordered registry to verify. Report order is always
	// the registry's declaration order, parallel or not.
	Cases []corpus.Case

	// Runner executes individual cases.
	Runner CaseRunner

	// Out receives the per-case report lines.
	Out io.Writer

	// Parallel is the number of cases executed concurrently.
	// Values below 2 run cases sequentially, emitting each report line
	// as soon as its case finishes.
	Parallel int

	// Logger receives structured progress records. Nil disables logging.
	Logger *slog.Logger
}

// Outcome is the comparison result for one case. It is produced once,
// consumed by the reporting step, and retained only in the run summary.
type Outcome struct {
	Case    corpus.Case
	Pass    bool
	Elapsed time.Duration
	Actual  string
	Output  []byte
	Err     error // per-case runner error (e.g. timeout); nil for a verdict
}

// Summary aggregates a full run.
type Summary struct {
	Outcomes []Outcome
	Passed   int
	Failed   int
}

// Harness verifies a corpus against the program-under-test.
type Harness struct {
	cases    []corpus.Case
	runner   CaseRunner
	out      io.Writer
	parallel int
	logger   *slog.Logger
}

// New creates a harness from an explicit configuration.
func New(cfg Config) *Harness {
	logger := cfg.Logger
	if logger == nil {
		logger = slog.New(slog.NewTextHandler(io.Discard, nil))
	}
	return &Harness{
		cases:    cfg.Cases,
		runner:   cfg.Runner,
		out:      cfg.Out,
		parallel: cfg.Parallel,
		logger:   logger,
	}
}

// Run verifies every case in registry order and returns the run summary.
//
// A *runner.LaunchError is fatal: it aborts the run immediately and no
// report line is emitted for the affected case or any case after it.
// A digest mismatch is the expected "test failed" outcome; it is reported
// and the run continues.
func (h *Harness) Run(ctx context.Context) (*Summary, error) {
	var outcomes []Outcome
	var err error
	if h.parallel > 1 {
		outcomes, err = h.runParallel(ctx)
	} else {
		outcomes, err = h.runSequential(ctx)
	}
	if err != nil {
		return nil, err
	}

	summary := &Summary{Outcomes: outcomes}
	for _, o := range outcomes {
		if o.Pass {
			summary.Passed++
		} else {
			summary.Failed++
		}
	}
	return summary, nil
}

// runSequential executes one case to completion before the next begins and
// emits each report line as soon as its verdict is known.
func (h *Harness) runSequential(ctx context.Context) ([]Outcome, error) {
	outcomes := make([]Outcome, 0, len(h.cases))
	for _, c := range h.cases {
		o := h.runCase(ctx, c)
		if isLaunchError(o.Err) {
			return nil, o.Err
		}
		h.report(o)
		outcomes = append(outcomes, o)
	}
	return outcomes, nil
}

// runParallel executes cases concurrently with one result slot per case
// index, then emits the report in registry order for reproducible diffs.
func (h *Harness) runParallel(ctx context.Context) ([]Outcome, error) {
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	outcomes := make([]Outcome, len(h.cases))
	sem := make(chan struct{}, h.parallel)

	var wg sync.WaitGroup
	var mu sync.Mutex
	var fatal error

	for i, c := range h.cases {
		wg.Add(1)
		go func(i int, c corpus.Case) {
			defer wg.Done()
			sem <- struct{}{}
			defer func() { <-sem }()

			if ctx.Err() != nil {
				return
			}
			o := h.runCase(ctx, c)
			if isLaunchError(o.Err) {
				mu.Lock()
				if fatal == nil {
					fatal = o.Err
				}
				mu.Unlock()
				cancel()
				return
			}
			outcomes[i] = o
		}(i, c)
	}
	wg.Wait()

	if fatal != nil {
		return nil, fatal
	}
	for _, o := range outcomes {
		h.report(o)
	}
	return outcomes, nil
}

// runCase invokes one case and classifies its output.
func (h *Harness) runCase(ctx context.Context, c corpus.Case) Outcome {
	res, err := h.runner.Run(ctx, c.Path, c.Stdin)
	if err != nil {
		return Outcome{Case: c, Err: err}
	}

	actual := digest.Sum(res.Output)
	o := Outcome{
		Case:    c,
		Pass:    actual == c.Digest,
		Elapsed: res.Elapsed,
		Actual:  actual,
		Output:  res.Output,
	}

	h.logger.Debug("case verified",
		"path", c.Path,
		"pass", o.Pass,
		"elapsed", o.Elapsed,
	)
	return o
}

// report emits the human-readable status block for one outcome.
func (h *Harness) report(o Outcome) {
	label := fmt.Sprintf("%-*s", labelWidth, o.Case.Path)

	switch {
	case o.Err != nil:
		fmt.Fprintf(h.out, "%serror: %v\n", label, o.Err)
	case o.Pass:
		ms := float64(o.Elapsed) / float64(time.Millisecond)
		fmt.Fprintf(h.out, "%sGOOD\t%.1fms\n", label, ms)
	default:
		fmt.Fprintf(h.out, "%sbad output: expected %s got %s\n", label, o.Case.Digest, o.Actual)
		fmt.Fprintln(h.out, Render(o.Output))
	}
}

func isLaunchError(err error) bool {
	var launchErr *runner.LaunchError
	return errors.As(err, &launchErr)
}
