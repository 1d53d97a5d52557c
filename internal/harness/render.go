package harness

import "golang.org/x/text/runes"

// Render decodes captured output for failure diagnostics.
//
// Decoding is best-effort: ill-formed UTF-8 sequences degrade to the
// Unicode replacement character and never produce an error. Render is
// purely cosmetic; the pass/fail verdict is decided on raw bytes before
// any decoding happens.
func Render(b []byte) string {
	return runes.ReplaceIllFormed().String(string(b))
}
