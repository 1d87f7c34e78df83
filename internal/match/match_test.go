package match

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/oxhq/replx/internal/rules"
)

func mustSet(t *testing.T, pairs ...rules.Pair) *rules.Set {
	t.Helper()
	set, err := rules.New(pairs)
	require.NoError(t, err)
	return set
}

func TestLineSimpleReplace(t *testing.T) {
	set := mustSet(t, rules.Pair{Find: "hello", Replace: "HI"})

	res, ok := Line([]byte("hello world\n"), set)
	require.True(t, ok)
	assert.Equal(t, "HI world\n", string(res.NewBytes))
	require.Len(t, res.Spans, 1)
	assert.Equal(t, 0, res.Spans[0].Start)
	assert.Equal(t, 5, res.Spans[0].End)
}

func TestLineLongestMatchWins(t *testing.T) {
	set := mustSet(t,
		rules.Pair{Find: "ab", Replace: "Y"},
		rules.Pair{Find: "abc", Replace: "X"},
	)

	res, ok := Line([]byte("abcd"), set)
	require.True(t, ok)
	assert.Equal(t, "Xd", string(res.NewBytes))
}

func TestLineSpansDisjointAndOrdered(t *testing.T) {
	set := mustSet(t, rules.Pair{Find: "aa", Replace: "b"})

	res, ok := Line([]byte("aaaa xaa"), set)
	require.True(t, ok)
	require.Len(t, res.Spans, 3)
	prevEnd := 0
	for _, sp := range res.Spans {
		assert.GreaterOrEqual(t, sp.Start, prevEnd)
		assert.Greater(t, sp.End, sp.Start)
		prevEnd = sp.End
	}
	assert.Equal(t, "bb xb", string(res.NewBytes))
}

func TestLineTrailingWhitespacePreserved(t *testing.T) {
	set := mustSet(t, rules.Pair{Find: "foo", Replace: "barbaz"})

	res, ok := Line([]byte("foo  \t \r\n"), set)
	require.True(t, ok)
	assert.Equal(t, "barbaz  \t \r\n", string(res.NewBytes))
}

func TestLineDiacriticFoldedMatchLiteralWrite(t *testing.T) {
	set := mustSet(t, rules.Pair{Find: "cafe", Replace: "coffee"})

	res, ok := Line([]byte("one café here"), set)
	require.True(t, ok)
	assert.Equal(t, "one coffee here", string(res.NewBytes))

	// The span covers all bytes of the accented form.
	require.Len(t, res.Spans, 1)
	assert.Equal(t, 4, res.Spans[0].Start)
	assert.Equal(t, 9, res.Spans[0].End)
}

func TestLineDecomposedDiacritic(t *testing.T) {
	set := mustSet(t, rules.Pair{Find: "cafe", Replace: "coffee"})

	// 'e' followed by a combining acute accent.
	res, ok := Line([]byte("café!"), set)
	require.True(t, ok)
	assert.Equal(t, "coffee!", string(res.NewBytes))
}

func TestLineControlCharacterInsideMatch(t *testing.T) {
	// An embedded escape character must not defeat a visually
	// correct rule.
	set := mustSet(t, rules.Pair{Find: "secret", Replace: "public"})

	res, ok := Line([]byte("sec\x1bret"), set)
	require.True(t, ok)
	assert.Equal(t, "public", string(res.NewBytes))
}

func TestLineInvalidBytesPreserved(t *testing.T) {
	set := mustSet(t, rules.Pair{Find: "foo", Replace: "X"})

	raw := []byte{0xff, 'f', 'o', 'o', 0xfe}
	res, ok := Line(raw, set)
	require.True(t, ok)
	assert.Equal(t, []byte{0xff, 'X', 0xfe}, res.NewBytes)
}

func TestLineNoMatch(t *testing.T) {
	set := mustSet(t, rules.Pair{Find: "zzz", Replace: "x"})

	_, ok := Line([]byte("nothing here"), set)
	assert.False(t, ok)
}

func TestNewBasename(t *testing.T) {
	set := mustSet(t, rules.Pair{Find: "Old", Replace: "New"})

	name, ok := NewBasename("OldReport.txt", set)
	require.True(t, ok)
	assert.Equal(t, "NewReport.txt", name)

	name, ok = NewBasename("report.txt", set)
	assert.False(t, ok)
	assert.Equal(t, "report.txt", name)
}
