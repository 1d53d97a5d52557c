package harness

import (
	"bytes"
	"context"
	"strings"
	"testing"
	"time"

	"github.com/sebdah/goldie/v2"
	"github.com/stretchr/testify/require"

	"github.com/bfjit/bench/internal/corpus"
	"github.com/bfjit/bench/internal/digest"
	"github.com/bfjit/bench/internal/runner"
)

// TestReportGolden pins the exact report text for a mixed pass/fail run.
//
// To regenerate the golden file, run:
//
//	go test ./internal/harness -update
func TestReportGolden(t *testing.T) {
	cases := []corpus.Case{
		{Path: "progs/mandelbrot.b", Digest: "1d3a3cd6b1cb592e1de18f1f0f4b577b2c1581e7"},
		{Path: "progs/hanoi.b", Digest: strings.Repeat("0", digest.HexLen)},
	}

	stub := &stubRunner{run: func(path string, _ []byte) (*runner.Result, error) {
		switch path {
		case "progs/mandelbrot.b":
			return &runner.Result{Output: []byte("mandelbrot ok\n"), Elapsed: 12300 * time.Microsecond}, nil
		default:
			// Wrong output with an undecodable byte in the middle.
			return &runner.Result{Output: []byte("hanoi broken \xff\n"), Elapsed: time.Millisecond}, nil
		}
	}}

	var buf bytes.Buffer
	h := New(Config{Cases: cases, Runner: stub, Out: &buf})

	summary, err := h.Run(context.Background())
	require.NoError(t, err)
	require.Equal(t, 1, summary.Failed)

	g := goldie.New(t,
		goldie.WithFixtureDir("testdata/golden"),
		goldie.WithNameSuffix(".golden"),
	)
	g.Assert(t, "report", buf.Bytes())
}
