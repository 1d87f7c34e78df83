// Package canon computes the canonical comparison form of text used
// for match decisions. The canonical form is NFC-normalized with
// combining marks removed and non-structural control characters
// dropped; replacement decisions are made against it while the
// literal bytes of the source are left untouched.
package canon

import (
	"strings"
	"unicode"
	"unicode/utf8"

	"golang.org/x/text/unicode/norm"
)

// Canonicalize folds s into its comparison form: NFD decomposition,
// removal of combining marks (category Mn) and of control characters
// other than TAB, LF and CR, then NFC recomposition. The transform is
// idempotent.
func Canonicalize(s string) string {
	decomposed := norm.NFD.String(s)

	var b strings.Builder
	b.Grow(len(decomposed))
	for _, r := range decomposed {
		if unicode.Is(unicode.Mn, r) {
			continue
		}
		if unicode.Is(unicode.Cc, r) && r != '\t' && r != '\n' && r != '\r' {
			continue
		}
		b.WriteRune(r)
	}

	return norm.NFC.String(b.String())
}

// Segment pairs a fragment of canonical text with the byte range of
// the raw input that produced it. End is exclusive.
type Segment struct {
	Canon string
	Start int
	End   int
}

// Segments splits raw into the smallest units the canonical form can
// be attributed to: a base rune together with any combining marks
// that follow it, a lone control character, or a single invalid
// byte. Each invalid byte canonicalizes to U+FFFD, so it matches only
// a rule whose canonical find itself contains U+FFFD, while its exact
// position is preserved for byte-exact write-back.
func Segments(raw []byte) []Segment {
	var segs []Segment

	i := 0
	for i < len(raw) {
		r, size := utf8.DecodeRune(raw[i:])
		start := i
		i += size

		if r == utf8.RuneError && size == 1 {
			segs = append(segs, Segment{
				Canon: string(utf8.RuneError),
				Start: start,
				End:   i,
			})
			continue
		}

		// Combining marks belong to the preceding base character.
		for i < len(raw) {
			next, nextSize := utf8.DecodeRune(raw[i:])
			if next == utf8.RuneError && nextSize == 1 {
				break
			}
			if !unicode.Is(unicode.M, next) {
				break
			}
			i += nextSize
		}

		segs = append(segs, Segment{
			Canon: Canonicalize(string(raw[start:i])),
			Start: start,
			End:   i,
		})
	}

	return segs
}
