// Package fingerprint derives stable identity keys for text content.
package fingerprint

import (
	"strconv"
	"strings"

	"github.com/cespare/xxhash/v2"
)

// Of returns the 64-bit xxHash of text as 16 lowercase hex digits. It is an
// identity key for cache lookups, not a security primitive.
func Of(text string) string {
	return format(xxhash.Sum64String(text))
}

// OfParts fingerprints an ordered list of strings. Parts are length-prefixed
// so that ["ab","c"] and ["a","bc"] never collide by concatenation.
func OfParts(parts ...string) string {
	d := xxhash.New()
	for _, p := range parts {
		_, _ = d.WriteString(strconv.Itoa(len(p)))
		_, _ = d.WriteString(":")
		_, _ = d.WriteString(p)
	}
	return format(d.Sum64())
}

func format(sum uint64) string {
	s := strconv.FormatUint(sum, 16)
	if len(s) < 16 {
		s = strings.Repeat("0", 16-len(s)) + s
	}
	return s
}
