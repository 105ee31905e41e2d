package fingerprint

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestDeterministic(t *testing.T) {
	inputs := []string{"", " ", "hello world", strings.Repeat("lorem ipsum ", 5000)}
	for _, in := range inputs {
		assert.Equal(t, Of(in), Of(in))
		assert.Len(t, Of(in), 16)
	}
}

func TestStableAcrossProcesses(t *testing.T) {
	// XXH64 of the empty string with seed 0.
	assert.Equal(t, "ef46db3751d8e999", Of(""))
}

func TestSensitiveToSingleCharacter(t *testing.T) {
	pairs := [][2]string{
		{"The cat sat.", "The cat sat!"},
		{"The cat sat.", "the cat sat."},
		{"abc", "abd"},
		{"abc", "acb"},
		{"abc", "abc "},
		{"", " "},
	}
	for _, p := range pairs {
		assert.NotEqual(t, Of(p[0]), Of(p[1]), "%q vs %q", p[0], p[1])
	}
}

func TestOfPartsIsOrderAndBoundarySensitive(t *testing.T) {
	assert.Equal(t, OfParts("a", "b"), OfParts("a", "b"))
	assert.NotEqual(t, OfParts("a", "b"), OfParts("b", "a"))
	assert.NotEqual(t, OfParts("ab", "c"), OfParts("a", "bc"))
	assert.NotEqual(t, OfParts(), OfParts(""))
}
