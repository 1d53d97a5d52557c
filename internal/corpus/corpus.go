// Package corpus defines the registry of verification test cases.
//
// A corpus is an ordered table mapping a source file (optionally paired
// with a stdin payload) to the digest of the output the program-under-test
// is expected to produce. The table is constructed once at startup, either
// from the built-in reference table or from a YAML manifest, and is
// immutable for the rest of the run.
package corpus

import (
	"bytes"
	"fmt"
	"os"
	"path/filepath"

	"gopkg.in/yaml.v3"

	"github.com/bfjit/bench/internal/digest"
)

// Entry is one manifest row. Stdin and StdinFile are mutually exclusive:
// a literal payload, or a file whose contents are fed to the child.
type Entry struct {
	// Path is the source file handed to the program-under-test as its
	// first argument.
	Path string `yaml:"path"`

	// Stdin is a literal stdin payload. Empty means no input.
	Stdin string `yaml:"stdin,omitempty"`

	// StdinFile names a file whose contents become the stdin payload.
	// The corpus uses this to feed a program its own source text.
	StdinFile string `yaml:"stdin_file,omitempty"`

	// Digest is the expected output digest: 40 lowercase hex characters.
	Digest string `yaml:"digest"`
}

// Manifest is the on-disk corpus format.
type Manifest struct {
	Cases []Entry `yaml:"cases"`
}

// Case is a fully resolved test case. Identity is (Path, Stdin): two cases
// may share a Path with different payloads. Cases are immutable once built.
type Case struct {
	Path   string
	Stdin  []byte
	Digest string
}

// FileReadError indicates a stdin_file referenced by the corpus could not
// be read. It is raised eagerly at resolve time, before any case runs;
// a missing payload file is never silently treated as empty input.
type FileReadError struct {
	Path string
	Err  error
}

func (e *FileReadError) Error() string {
	return fmt.Sprintf("cannot read stdin payload %s: %v", e.Path, e.Err)
}

func (e *FileReadError) Unwrap() error {
	return e.Err
}

// Builtin returns the reference corpus: the mandelbrot and hanoi programs
// with synthesized (empty) input, and the awib compiler fed its own source.
func Builtin() Manifest {
	return Manifest{Cases: []Entry{
		{Path: "progs/mandelbrot.b", Digest: "b77a017f811831f0b74e0d69c08b78e620dbda2b"},
		{Path: "progs/hanoi.b", Digest: "32cdfe329039ce63531dcd4b340df269d4fd8f7f"},
		{Path: "progs/awib.b", StdinFile: "progs/awib.b", Digest: "3b4f9a78ec3ee32e05969e108916a4affa0c2bba"},
	}}
}

// LoadManifest reads and parses a corpus manifest.
// Unknown fields are rejected so typos fail loudly instead of silently
// dropping a case attribute.
func LoadManifest(path string) (Manifest, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return Manifest{}, fmt.Errorf("failed to read manifest: %w", err)
	}

	var m Manifest
	decoder := yaml.NewDecoder(bytes.NewReader(data))
	decoder.KnownFields(true)
	if err := decoder.Decode(&m); err != nil {
		return Manifest{}, fmt.Errorf("failed to parse manifest: %w", err)
	}

	if err := validateManifest(&m); err != nil {
		return Manifest{}, fmt.Errorf("invalid manifest: %w", err)
	}

	return m, nil
}

// Resolve turns manifest entries into runnable cases, loading every
// file-backed stdin payload eagerly. Relative stdin_file paths are resolved
// against baseDir. Declaration order is preserved.
func (m Manifest) Resolve(baseDir string) ([]Case, error) {
	cases := make([]Case, 0, len(m.Cases))
	for _, entry := range m.Cases {
		c := Case{
			Path:   entry.Path,
			Stdin:  []byte(entry.Stdin),
			Digest: entry.Digest,
		}
		if entry.StdinFile != "" {
			path := entry.StdinFile
			if !filepath.IsAbs(path) && baseDir != "" {
				path = filepath.Join(baseDir, path)
			}
			payload, err := os.ReadFile(path)
			if err != nil {
				return nil, &FileReadError{Path: path, Err: err}
			}
			c.Stdin = payload
		}
		cases = append(cases, c)
	}
	return cases, nil
}

// validateManifest checks that every entry is well-formed.
func validateManifest(m *Manifest) error {
	if len(m.Cases) == 0 {
		return fmt.Errorf("cases list is required and must be non-empty")
	}

	for i, entry := range m.Cases {
		if entry.Path == "" {
			return fmt.Errorf("cases[%d]: path is required", i)
		}
		if entry.Digest == "" {
			return fmt.Errorf("cases[%d]: digest is required", i)
		}
		if !digest.Valid(entry.Digest) {
			return fmt.Errorf("cases[%d]: digest must be %d lowercase hex characters, got %q",
				i, digest.HexLen, entry.Digest)
		}
		if entry.Stdin != "" && entry.StdinFile != "" {
			return fmt.Errorf("cases[%d]: stdin and stdin_file are mutually exclusive", i)
		}
	}

	return nil
}
