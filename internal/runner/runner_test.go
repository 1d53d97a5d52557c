package runner

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/bfjit/bench/internal/testutil"
)

// TestHelperProcess is not a real test: it is re-executed as the
// program-under-test double. The first argument after "--" selects its
// behavior.
func TestHelperProcess(t *testing.T) {
	if os.Getenv("GO_WANT_HELPER_PROCESS") != "1" {
		return
	}
	defer os.Exit(0)

	args := os.Args
	for i, a := range args {
		if a == "--" {
			args = args[i+1:]
			break
		}
	}
	if len(args) == 0 {
		fmt.Fprintln(os.Stderr, "helper: no mode")
		os.Exit(2)
	}
	mode, rest := args[0], args[1:]

	switch mode {
	case "echo":
		// Echo stdin up to (and excluding) the sentinel byte.
		in, err := io.ReadAll(os.Stdin)
		if err != nil {
			fmt.Fprintln(os.Stderr, "helper:", err)
			os.Exit(2)
		}
		if i := bytes.IndexByte(in, Sentinel); i >= 0 {
			in = in[:i]
		}
		os.Stdout.Write(in)
	case "args":
		// Print the pass-through arguments it received.
		fmt.Print(strings.Join(rest, " "))
	case "fail":
		// Partial output, then a nonzero exit.
		fmt.Print("partial")
		os.Exit(3)
	case "hang":
		time.Sleep(10 * time.Second)
	default:
		fmt.Fprintf(os.Stderr, "helper: unknown mode %q\n", mode)
		os.Exit(2)
	}
}

// helperRunner builds a Runner whose program-under-test is this test binary
// re-executed in the given helper mode.
func helperRunner(t *testing.T, mode string, extra ...string) *Runner {
	t.Helper()
	t.Setenv("GO_WANT_HELPER_PROCESS", "1")
	return &Runner{
		Executable: os.Args[0],
		ExtraArgs:  append([]string{"--", mode}, extra...),
	}
}

// The helper mode flag occupies the source-path slot of the argv protocol.
const helperSource = "-test.run=^TestHelperProcess$"

func TestRun_EchoesPayloadWithoutSentinel(t *testing.T) {
	r := helperRunner(t, "echo")

	res, err := r.Run(context.Background(), helperSource, []byte("hello"))
	require.NoError(t, err)

	// Byte-for-byte: the sentinel must never leak into captured output.
	assert.Equal(t, []byte("hello"), res.Output)
	assert.NotContains(t, string(res.Output), string(Sentinel))
}

func TestRun_EmptyPayload(t *testing.T) {
	r := helperRunner(t, "echo")

	res, err := r.Run(context.Background(), helperSource, nil)
	require.NoError(t, err)
	assert.Empty(t, res.Output)
}

func TestRun_BinaryPayloadPreserved(t *testing.T) {
	r := helperRunner(t, "echo")
	payload := []byte{0x01, 0x02, 0xfe, 0xff}

	res, err := r.Run(context.Background(), helperSource, payload)
	require.NoError(t, err)
	assert.Equal(t, payload, res.Output)
}

func TestRun_DeterministicAcrossRuns(t *testing.T) {
	r := helperRunner(t, "echo")

	first, err := r.Run(context.Background(), helperSource, []byte("stable"))
	require.NoError(t, err)
	second, err := r.Run(context.Background(), helperSource, []byte("stable"))
	require.NoError(t, err)

	assert.Equal(t, first.Output, second.Output)
}

func TestRun_ForwardsExtraArgsVerbatim(t *testing.T) {
	r := helperRunner(t, "args", "-O2", "--trace")

	res, err := r.Run(context.Background(), helperSource, nil)
	require.NoError(t, err)
	assert.Equal(t, "-O2 --trace", string(res.Output))
}

func TestRun_NonzeroExitStillCapturesOutput(t *testing.T) {
	r := helperRunner(t, "fail")

	res, err := r.Run(context.Background(), helperSource, nil)
	require.NoError(t, err)
	assert.Equal(t, "partial", string(res.Output))
}

func TestRun_MissingExecutableIsLaunchError(t *testing.T) {
	r := &Runner{Executable: filepath.Join(t.TempDir(), "no-such-binary")}

	res, err := r.Run(context.Background(), "progs/mandelbrot.b", nil)
	require.Error(t, err)
	assert.Nil(t, res)

	var launchErr *LaunchError
	require.True(t, errors.As(err, &launchErr))
	assert.Contains(t, launchErr.Error(), "no-such-binary")
}

func TestRun_TimeoutKillsHungChild(t *testing.T) {
	r := helperRunner(t, "hang")
	r.Timeout = 200 * time.Millisecond

	begin := time.Now()
	res, err := r.Run(context.Background(), helperSource, nil)

	require.Error(t, err)
	assert.Nil(t, res)
	assert.ErrorIs(t, err, context.DeadlineExceeded)
	assert.Less(t, time.Since(begin), 5*time.Second)
}

func TestRun_ElapsedUsesInjectedClock(t *testing.T) {
	t0 := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	clock := testutil.NewStubClock(t0, t0.Add(1500*time.Microsecond))

	r := helperRunner(t, "echo")
	r.Now = clock.Now

	res, err := r.Run(context.Background(), helperSource, nil)
	require.NoError(t, err)
	assert.Equal(t, 1500*time.Microsecond, res.Elapsed)
}

func TestResolveExecutable_EnvOverride(t *testing.T) {
	getenv := func(key string) string {
		if key == EnvExecutable {
			return "/opt/bf/jit-arm"
		}
		return ""
	}
	assert.Equal(t, "/opt/bf/jit-arm", ResolveExecutable(getenv))
}

func TestResolveExecutable_DefaultWhenUnset(t *testing.T) {
	getenv := func(string) string { return "" }
	assert.Equal(t, DefaultExecutable, ResolveExecutable(getenv))
}
