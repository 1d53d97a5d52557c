// Package digest reduces captured program output to a fixed-length
// content fingerprint for byte-exact verification.
//
// The harness never stores expected outputs literally; a test case carries
// only the digest of the output it expects. SHA-1 is retained for
// compatibility with the existing corpus tables, whose expected values are
// 40-character SHA-1 hex strings.
package digest

import (
	"crypto/sha1"
	"encoding/hex"
)

// HexLen is the length of a rendered digest: 160 bits as lowercase hex.
const HexLen = 40

// Sum returns the SHA-1 digest of b as a 40-character lowercase hex string.
//
// Sum is a pure function: equal inputs always produce equal digests, and
// any byte sequence, including the empty one, is valid input.
func Sum(b []byte) string {
	h := sha1.Sum(b)
	return hex.EncodeToString(h[:])
}

// Valid reports whether s is a well-formed digest string:
// exactly HexLen characters, all lowercase hex.
func Valid(s string) bool {
	if len(s) != HexLen {
		return false
	}
	for i := 0; i < len(s); i++ {
		c := s[i]
		if (c < '0' || c > '9') && (c < 'a' || c > 'f') {
			return false
		}
	}
	return true
}
