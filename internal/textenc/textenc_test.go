package textenc

import (
	"bytes"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSniffBOMs(t *testing.T) {
	tests := []struct {
		name  string
		data  []byte
		label string
	}{
		{"utf-8", append([]byte{0xEF, 0xBB, 0xBF}, []byte("hi\n")...), "utf-8"},
		{"utf-16le", append([]byte{0xFF, 0xFE}, []byte{'h', 0, 'i', 0}...), "utf-16le"},
		{"utf-16be", append([]byte{0xFE, 0xFF}, []byte{0, 'h', 0, 'i'}...), "utf-16be"},
		{"utf-32le", append([]byte{0xFF, 0xFE, 0x00, 0x00}, []byte{'h', 0, 0, 0}...), "utf-32le"},
		{"utf-32be", append([]byte{0x00, 0x00, 0xFE, 0xFF}, []byte{0, 0, 0, 'h'}...), "utf-32be"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			d := Sniff(tt.data)
			assert.True(t, d.HasBOM)
			assert.Equal(t, tt.label, d.Label)
			assert.False(t, d.Binary)
		})
	}
}

func TestSniffBinaryOnNUL(t *testing.T) {
	d := Sniff([]byte("abc\x00def"))
	assert.True(t, d.Binary)
}

func TestSniffPlainText(t *testing.T) {
	d := Sniff([]byte("plain ascii text\nwith two lines\n"))
	assert.False(t, d.Binary)
	assert.False(t, d.HasBOM)
	assert.Equal(t, "utf-8", d.Label)
	assert.Equal(t, NewlineLF, d.Newline)
}

func TestSniffNewlineStyles(t *testing.T) {
	assert.Equal(t, NewlineCRLF, Sniff([]byte("a\r\nb\r\n")).Newline)
	assert.Equal(t, NewlineCR, Sniff([]byte("a\rb\r")).Newline)
	assert.Equal(t, NewlineMixed, Sniff([]byte("a\nb\r\n")).Newline)
	assert.Equal(t, NewlineNone, Sniff([]byte("no terminator")).Newline)
}

func TestUTF8CodecRoundTripsInvalidBytes(t *testing.T) {
	c, err := CodecFor("utf-8")
	require.NoError(t, err)

	raw := []byte{'h', 0xff, 0xfe, 'i', '\n'}
	text, err := c.Decode(raw)
	require.NoError(t, err)
	back, err := c.Encode(text)
	require.NoError(t, err)
	assert.Equal(t, raw, back)
	assert.True(t, RoundTrips(c, raw))
}

func TestUTF16CodecRoundTrip(t *testing.T) {
	c, err := CodecFor("utf-16le")
	require.NoError(t, err)

	raw := []byte{'h', 0, 'i', 0, '\n', 0}
	text, err := c.Decode(raw)
	require.NoError(t, err)
	assert.Equal(t, "hi\n", text)
	assert.True(t, RoundTrips(c, raw))
}

func TestCharmapCodec(t *testing.T) {
	c, err := CodecFor("windows-1252")
	require.NoError(t, err)

	// 0xE9 is é in windows-1252.
	raw := []byte{'c', 'a', 'f', 0xE9}
	text, err := c.Decode(raw)
	require.NoError(t, err)
	assert.Equal(t, "café", text)
	assert.True(t, RoundTrips(c, raw))
}

func TestSplitLines(t *testing.T) {
	lines := SplitLines("a\nb\r\nc\rd")
	assert.Equal(t, []string{"a\n", "b\r\n", "c\r", "d"}, lines)

	assert.Empty(t, SplitLines(""))
	assert.Equal(t, []string{"only\n"}, SplitLines("only\n"))

	// Splitting then joining is the identity.
	text := "x\r\n\r\ny\nz"
	var buf bytes.Buffer
	for _, l := range SplitLines(text) {
		buf.WriteString(l)
	}
	assert.Equal(t, text, buf.String())
}

func TestUnwrapRTF(t *testing.T) {
	doc := []byte(`{\rtf1\ansi{\fonttbl{\f0 Arial;}}\f0 Hello\par World\tab end}`)
	require.True(t, IsRTF(doc))

	text := UnwrapRTF(doc)
	assert.Contains(t, text, "Hello\nWorld\tend")
}

func TestUnwrapRTFHexEscape(t *testing.T) {
	doc := []byte(`{\rtf1 caf\'e9}`)
	text := UnwrapRTF(doc)
	assert.Contains(t, text, "caf\xe9")
}
