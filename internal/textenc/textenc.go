// Package textenc decides how each file's bytes become text and how
// that text becomes the exact same bytes again. It classifies files
// as binary or text, detects BOMs and newline styles, and hands out
// codecs whose decode→encode round trip is verified before any
// content edit is allowed.
package textenc

import (
	"bytes"
	"strings"

	"github.com/gabriel-vasile/mimetype"
	"github.com/saintfish/chardet"
	"golang.org/x/text/encoding"
	"golang.org/x/text/encoding/htmlindex"
	"golang.org/x/text/encoding/unicode"
	"golang.org/x/text/encoding/unicode/utf32"
)

// SniffLimit is the prefix size examined for classification.
const SniffLimit = 64 * 1024

// detectConfidence is the minimum chardet confidence accepted before
// falling back to UTF-8.
const detectConfidence = 80

// NewlineStyle classifies the dominant line terminator of a file.
type NewlineStyle string

const (
	NewlineLF    NewlineStyle = "LF"
	NewlineCRLF  NewlineStyle = "CRLF"
	NewlineCR    NewlineStyle = "CR"
	NewlineMixed NewlineStyle = "MIXED"
	NewlineNone  NewlineStyle = "NONE"
)

// Descriptor records everything the scanner and executor need to
// read and write a file without altering a byte they did not mean
// to.
type Descriptor struct {
	Label   string
	HasBOM  bool
	BOM     []byte
	Newline NewlineStyle
	Binary  bool
}

type bomEntry struct {
	bom   []byte
	label string
}

// Longer BOMs first: the UTF-32 LE BOM starts with the UTF-16 LE
// one.
var bomTable = []bomEntry{
	{[]byte{0xFF, 0xFE, 0x00, 0x00}, "utf-32le"},
	{[]byte{0x00, 0x00, 0xFE, 0xFF}, "utf-32be"},
	{[]byte{0xEF, 0xBB, 0xBF}, "utf-8"},
	{[]byte{0xFF, 0xFE}, "utf-16le"},
	{[]byte{0xFE, 0xFF}, "utf-16be"},
}

// Sniff classifies a file from its leading bytes. prefix should hold
// at least SniffLimit bytes or the whole file when smaller.
func Sniff(prefix []byte) Descriptor {
	d := Descriptor{Label: "utf-8", Newline: NewlineNone}

	body := prefix
	for _, e := range bomTable {
		if bytes.HasPrefix(prefix, e.bom) {
			d.HasBOM = true
			d.BOM = append([]byte(nil), e.bom...)
			d.Label = e.label
			body = prefix[len(e.bom):]
			break
		}
	}

	if !d.HasBOM {
		// A NUL byte outside any BOM-announced wide encoding means
		// either binary data or BOM-less UTF-16/32; both are
		// excluded from content editing.
		if bytes.IndexByte(body, 0) >= 0 {
			d.Binary = true
			return d
		}
		if !textualMIME(body) {
			d.Binary = true
			return d
		}
		if label, ok := detectCharset(body); ok {
			d.Label = label
		}
	}

	d.Newline = newlineCensus(body, d.Label)
	return d
}

// textualMIME reports whether the sniffed prefix classifies as a
// text-bearing MIME class.
func textualMIME(body []byte) bool {
	if len(body) == 0 {
		return true
	}
	mt := mimetype.Detect(body)
	for m := mt; m != nil; m = m.Parent() {
		if strings.HasPrefix(m.String(), "text/") {
			return true
		}
	}
	switch {
	case strings.Contains(mt.String(), "json"),
		strings.Contains(mt.String(), "xml"),
		strings.Contains(mt.String(), "javascript"),
		strings.Contains(mt.String(), "yaml"):
		return true
	}
	return false
}

// detectCharset runs the statistical detector, accepting its answer
// only above the confidence threshold.
func detectCharset(body []byte) (string, bool) {
	if len(body) == 0 {
		return "", false
	}
	res, err := chardet.NewTextDetector().DetectBest(body)
	if err != nil || res == nil || res.Confidence < detectConfidence {
		return "", false
	}
	label := strings.ToLower(res.Charset)
	if label == "utf-8" || label == "ascii" {
		return "utf-8", true
	}
	// Only keep charsets we can build a verified codec for.
	if _, err := htmlindex.Get(label); err != nil {
		return "", false
	}
	return label, true
}

// newlineCensus scans the prefix for line terminators. Two or more
// distinct styles classify as MIXED.
func newlineCensus(body []byte, label string) NewlineStyle {
	// For wide encodings the census runs on the decoded text so NUL
	// padding bytes do not hide terminators.
	if c, err := CodecFor(label); err == nil && label != "utf-8" {
		if text, derr := c.Decode(body); derr == nil {
			body = []byte(text)
		}
	}

	crlf := bytes.Count(body, []byte("\r\n"))
	lf := bytes.Count(body, []byte("\n")) - crlf
	cr := bytes.Count(body, []byte("\r")) - crlf

	styles := 0
	var last NewlineStyle = NewlineNone
	if lf > 0 {
		styles++
		last = NewlineLF
	}
	if crlf > 0 {
		styles++
		last = NewlineCRLF
	}
	if cr > 0 {
		styles++
		last = NewlineCR
	}

	switch {
	case styles == 0:
		return NewlineNone
	case styles > 1:
		return NewlineMixed
	default:
		return last
	}
}

// Codec converts between file bytes (BOM excluded) and text. Encode
// must invert Decode exactly for the codec to be usable; the scanner
// verifies this per file before planning content edits.
type Codec interface {
	Label() string
	Decode(b []byte) (string, error)
	Encode(s string) ([]byte, error)
}

// CodecFor returns the codec for an encoding label produced by
// Sniff.
func CodecFor(label string) (Codec, error) {
	switch label {
	case "utf-8":
		return utf8Codec{}, nil
	case "utf-16le":
		return xtextCodec{label: label, enc: unicode.UTF16(unicode.LittleEndian, unicode.IgnoreBOM)}, nil
	case "utf-16be":
		return xtextCodec{label: label, enc: unicode.UTF16(unicode.BigEndian, unicode.IgnoreBOM)}, nil
	case "utf-32le":
		return xtextCodec{label: label, enc: utf32.UTF32(utf32.LittleEndian, utf32.IgnoreBOM)}, nil
	case "utf-32be":
		return xtextCodec{label: label, enc: utf32.UTF32(utf32.BigEndian, utf32.IgnoreBOM)}, nil
	}
	enc, err := htmlindex.Get(label)
	if err != nil {
		return nil, err
	}
	return xtextCodec{label: label, enc: enc}, nil
}

// utf8Codec is the identity codec. Go strings carry arbitrary bytes,
// so invalid UTF-8 units survive the round trip without any escape
// mechanism.
type utf8Codec struct{}

func (utf8Codec) Label() string                   { return "utf-8" }
func (utf8Codec) Decode(b []byte) (string, error) { return string(b), nil }
func (utf8Codec) Encode(s string) ([]byte, error) { return []byte(s), nil }

type xtextCodec struct {
	label string
	enc   encoding.Encoding
}

func (c xtextCodec) Label() string { return c.label }

func (c xtextCodec) Decode(b []byte) (string, error) {
	out, err := c.enc.NewDecoder().Bytes(b)
	if err != nil {
		return "", err
	}
	return string(out), nil
}

func (c xtextCodec) Encode(s string) ([]byte, error) {
	return c.enc.NewEncoder().Bytes([]byte(s))
}

// RoundTrips verifies that decoding and re-encoding body is the
// identity. Files that fail are demoted to binary so an uncertain
// encoding can never corrupt on write.
func RoundTrips(c Codec, body []byte) bool {
	text, err := c.Decode(body)
	if err != nil {
		return false
	}
	back, err := c.Encode(text)
	if err != nil {
		return false
	}
	return bytes.Equal(back, body)
}

// SplitLines splits text into lines, each retaining its terminator.
// A final unterminated line is returned as-is. A lone CR not
// followed by LF terminates a line.
func SplitLines(text string) []string {
	var lines []string
	start := 0
	for i := 0; i < len(text); i++ {
		switch text[i] {
		case '\n':
			lines = append(lines, text[start:i+1])
			start = i + 1
		case '\r':
			if i+1 < len(text) && text[i+1] == '\n' {
				lines = append(lines, text[start:i+2])
				start = i + 2
				i++
			} else {
				lines = append(lines, text[start:i+1])
				start = i + 1
			}
		}
	}
	if start < len(text) {
		lines = append(lines, text[start:])
	}
	return lines
}
