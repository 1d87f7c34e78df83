// Package match implements the left-to-right longest-match literal
// scan over a single line. Matching happens on the line's canonical
// projection; emitted spans carry the original byte ranges so that
// replacement writes are byte-exact and every byte outside a span is
// preserved verbatim.
package match

import (
	"github.com/oxhq/replx/internal/canon"
	"github.com/oxhq/replx/internal/rules"
)

// Span is one matched occurrence. Start/End delimit the original
// bytes the canonical match was produced from; Replace holds the
// literal replacement.
type Span struct {
	Start   int
	End     int
	Find    string
	Replace string
}

// Result carries the spans found on a line and the rewritten line
// bytes with all replacements spliced in.
type Result struct {
	Spans    []Span
	NewBytes []byte
}

// projection is the canonical view of a line with a map back to the
// originating byte ranges, computed once per line.
type projection struct {
	runes []rune
	// seg[i] indexes the segment that produced runes[i].
	seg []int
	// segStart[i] is true when runes[i] is the first rune of its
	// segment; matches must start and end on segment boundaries so a
	// replacement never destroys bytes outside what it matched.
	segStart []bool
	segments []canon.Segment
}

func project(raw []byte) projection {
	segs := canon.Segments(raw)
	p := projection{segments: segs}
	for si, s := range segs {
		first := true
		for _, r := range s.Canon {
			p.runes = append(p.runes, r)
			p.seg = append(p.seg, si)
			p.segStart = append(p.segStart, first)
			first = false
		}
	}
	return p
}

// endsSegment reports whether canonical index i is the last rune of
// its segment.
func (p projection) endsSegment(i int) bool {
	return i+1 >= len(p.runes) || p.seg[i+1] != p.seg[i]
}

// Line scans one line against the rule set and returns the spans and
// rewritten bytes. The boolean reports whether anything matched.
//
// The rule set is already ordered longest-canonical-first with
// document-order tie-breaking, so taking the first rule that matches
// at each position yields strictly longest-match semantics. Matches
// never overlap: the scan position jumps past each emitted span.
func Line(raw []byte, set *rules.Set) (Result, bool) {
	p := project(raw)
	rs := set.Rules()

	var spans []Span
	i := 0
	for i < len(p.runes) {
		if !p.segStart[i] {
			i++
			continue
		}
		matched := false
		for _, r := range rs {
			n := len(r.CanonRunes)
			if n == 0 || i+n > len(p.runes) {
				continue
			}
			if !runesEqual(p.runes[i:i+n], r.CanonRunes) {
				continue
			}
			if !p.endsSegment(i + n - 1) {
				continue
			}
			spans = append(spans, Span{
				Start:   p.segments[p.seg[i]].Start,
				End:     p.segments[p.seg[i+n-1]].End,
				Find:    r.Find,
				Replace: r.Replace,
			})
			i += n
			matched = true
			break
		}
		if !matched {
			i++
		}
	}

	if len(spans) == 0 {
		return Result{}, false
	}

	return Result{Spans: spans, NewBytes: splice(raw, spans)}, true
}

// NewBasename rewrites a file or directory basename, returning the
// new name and whether any rule matched.
func NewBasename(base string, set *rules.Set) (string, bool) {
	res, ok := Line([]byte(base), set)
	if !ok {
		return base, false
	}
	return string(res.NewBytes), true
}

// splice rebuilds the line, replacing exactly the matched byte
// ranges and copying every other byte through untouched.
func splice(raw []byte, spans []Span) []byte {
	out := make([]byte, 0, len(raw))
	prev := 0
	for _, sp := range spans {
		out = append(out, raw[prev:sp.Start]...)
		out = append(out, sp.Replace...)
		prev = sp.End
	}
	out = append(out, raw[prev:]...)
	return out
}

func runesEqual(a, b []rune) bool {
	for i := range a {
		if a[i] != b[i] {
			return false
		}
	}
	return true
}
