// Package runner invokes the program-under-test and captures its output.
//
// The invocation protocol is fixed: the child is started with the source
// file path as its first argument followed by any pass-through arguments,
// receives the stdin payload terminated by a single NUL sentinel byte, and
// must write its result to stdout. Stdout is captured as an opaque byte
// stream; stderr is inherited so diagnostic noise from the child never
// contaminates the verified output.
package runner

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/exec"
	"time"
)

const (
	// EnvExecutable is the environment variable that overrides the
	// location of the program-under-test.
	EnvExecutable = "BF_RUN"

	// DefaultExecutable is used when EnvExecutable is unset.
	DefaultExecutable = "./jit-x64"

	// Sentinel terminates the stdin payload. The program-under-test must
	// treat it as end-of-input, not as program input.
	Sentinel byte = 0x00
)

// Result holds the captured output of one invocation and its wall-clock
// duration. A Result is owned by the caller and is never shared between
// cases.
type Result struct {
	Output  []byte
	Elapsed time.Duration
}

// LaunchError indicates the program-under-test could not be spawned at all:
// missing binary, permission denied, or a similar OS-level failure.
//
// A LaunchError is not attributable to any single case's correctness and is
// treated as fatal by the harness.
type LaunchError struct {
	Executable string
	Err        error
}

func (e *LaunchError) Error() string {
	return fmt.Sprintf("cannot launch %s: %v", e.Executable, e.Err)
}

func (e *LaunchError) Unwrap() error {
	return e.Err
}

// Runner spawns the program-under-test for individual test cases.
//
// Executable and ExtraArgs are read-only after construction, so a single
// Runner is safe to share across concurrently running cases.
type Runner struct {
	// Executable is the resolved path of the program-under-test.
	Executable string

	// ExtraArgs are forwarded verbatim to every invocation, after the
	// source path.
	ExtraArgs []string

	// Timeout bounds a single invocation. Zero means no timeout; a hung
	// child then blocks its case forever.
	Timeout time.Duration

	// Now is the clock used for elapsed-time measurement.
	// Nil means time.Now.
	Now func() time.Time

	// Logger receives per-invocation debug records. Nil disables logging.
	Logger *slog.Logger
}

// Run invokes the executable with sourcePath and the configured
// pass-through arguments, writes stdin followed by the sentinel byte,
// closes the input stream, and collects the complete stdout byte stream.
//
// The child's exit status is deliberately ignored: whatever the child wrote
// to stdout is the artifact under verification, even on a nonzero exit.
// Run returns a *LaunchError if the child cannot be spawned, and an error
// if the configured timeout expires before the child terminates.
func (r *Runner) Run(ctx context.Context, sourcePath string, stdin []byte) (*Result, error) {
	if r.Timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, r.Timeout)
		defer cancel()
	}

	args := make([]string, 0, 1+len(r.ExtraArgs))
	args = append(args, sourcePath)
	args = append(args, r.ExtraArgs...)

	payload := make([]byte, 0, len(stdin)+1)
	payload = append(payload, stdin...)
	payload = append(payload, Sentinel)

	var out bytes.Buffer
	cmd := exec.CommandContext(ctx, r.Executable, args...)
	cmd.Stdin = bytes.NewReader(payload)
	cmd.Stdout = &out
	cmd.Stderr = os.Stderr

	start := r.now()
	if err := cmd.Start(); err != nil {
		return nil, &LaunchError{Executable: r.Executable, Err: err}
	}

	waitErr := cmd.Wait()
	elapsed := r.now().Sub(start)

	if ctxErr := ctx.Err(); ctxErr != nil {
		return nil, fmt.Errorf("%s %s: child did not terminate: %w", r.Executable, sourcePath, ctxErr)
	}
	if waitErr != nil {
		// A nonzero exit still produced output worth verifying; only
		// infrastructure failures (pipe I/O and the like) propagate.
		var exitErr *exec.ExitError
		if !errors.As(waitErr, &exitErr) {
			return nil, fmt.Errorf("%s %s: %w", r.Executable, sourcePath, waitErr)
		}
		r.logger().Debug("child exited nonzero",
			"source", sourcePath,
			"exit_code", exitErr.ExitCode(),
		)
	}

	r.logger().Debug("case executed",
		"source", sourcePath,
		"stdin_bytes", len(stdin),
		"stdout_bytes", out.Len(),
		"elapsed", elapsed,
	)

	return &Result{Output: out.Bytes(), Elapsed: elapsed}, nil
}

func (r *Runner) now() time.Time {
	if r.Now != nil {
		return r.Now()
	}
	return time.Now()
}

func (r *Runner) logger() *slog.Logger {
	if r.Logger != nil {
		return r.Logger
	}
	return discardLogger
}

var discardLogger = slog.New(slog.NewTextHandler(io.Discard, nil))

// ResolveExecutable returns the location of the program-under-test:
// the EnvExecutable variable when set, DefaultExecutable otherwise.
// The lookup function is injectable for tests; nil means os.Getenv.
func ResolveExecutable(getenv func(string) string) string {
	if getenv == nil {
		getenv = os.Getenv
	}
	if path := getenv(EnvExecutable); path != "" {
		return path
	}
	return DefaultExecutable
}
