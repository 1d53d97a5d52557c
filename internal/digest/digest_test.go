package digest

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestSum_Deterministic(t *testing.T) {
	in := []byte("same input")
	assert.Equal(t, Sum(in), Sum(in))
}

func TestSum_KnownVectors(t *testing.T) {
	tests := []struct {
		name  string
		input []byte
		want  string
	}{
		{
			name:  "empty input",
			input: []byte{},
			want:  "da39a3ee5e6b4b0d3255bfef95601890afd80709",
		},
		{
			name:  "hello",
			input: []byte("hello"),
			want:  "aaf4c61ddcc5e8a2dabede0f3b482cd9aea9434d",
		},
		{
			name:  "binary with NUL",
			input: []byte{0x00, 0x01, 0x02},
			want:  "0c7a623fd2bbc05b06423be359e4021d36e721ad",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, Sum(tt.input))
		})
	}
}

func TestSum_NilEqualsEmpty(t *testing.T) {
	assert.Equal(t, Sum([]byte{}), Sum(nil))
}

func TestSum_DifferentInputsDiffer(t *testing.T) {
	assert.NotEqual(t, Sum([]byte("a")), Sum([]byte("b")))
}

func TestSum_Shape(t *testing.T) {
	got := Sum([]byte("anything"))
	assert.Len(t, got, HexLen)
	assert.Equal(t, strings.ToLower(got), got)
	assert.True(t, Valid(got))
}

func TestValid(t *testing.T) {
	tests := []struct {
		name string
		in   string
		want bool
	}{
		{"well-formed", "b77a017f811831f0b74e0d69c08b78e620dbda2b", true},
		{"all zeros", strings.Repeat("0", 40), true},
		{"too short", "b77a017f", false},
		{"too long", strings.Repeat("a", 41), false},
		{"uppercase hex", "B77A017F811831F0B74E0D69C08B78E620DBDA2B", false},
		{"non-hex character", "z77a017f811831f0b74e0d69c08b78e620dbda2b", false},
		{"empty", "", false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, Valid(tt.in))
		})
	}
}
