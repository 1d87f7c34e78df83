package util

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestShortHashDeterministicAndScoped(t *testing.T) {
	a := ShortHash("FILE_NAME", "a.txt", "b.txt")
	b := ShortHash("FILE_NAME", "a.txt", "b.txt")
	assert.Equal(t, a, b)
	assert.Len(t, a, 16)

	// Part boundaries matter: ("ab","c") must differ from ("a","bc").
	assert.NotEqual(t, ShortHash("ab", "c"), ShortHash("a", "bc"))
}

func TestSHA256Hex(t *testing.T) {
	assert.Equal(t,
		"e3b0c44298fc1c149afbf4c8996fb92427ae41e4649b934ca495991b7852b855",
		SHA256Hex(nil))
}

func TestUnifiedDiff(t *testing.T) {
	diff := UnifiedDiff("one\ntwo\n", "one\nTWO\n", "f.txt", 3)
	assert.Contains(t, diff, "--- a/f.txt")
	assert.Contains(t, diff, "+++ b/f.txt")
	assert.Contains(t, diff, "-two")
	assert.Contains(t, diff, "+TWO")

	assert.Empty(t, UnifiedDiff("same\n", "same\n", "f.txt", 3))
}

func TestIndent(t *testing.T) {
	out := Indent("a\nb\n", "  ")
	assert.Equal(t, "  a\n  b\n", out)
	assert.True(t, strings.HasSuffix(out, "\n"))
	assert.Empty(t, Indent("", "  "))
}
