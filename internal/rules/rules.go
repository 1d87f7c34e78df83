// Package rules loads and validates the ordered find→replace rule
// set driving every match decision. Rules are matched on their
// canonical form, longest first, and are immutable once built.
package rules

import (
	"encoding/json"
	"fmt"
	"io"
	"os"
	"sort"
	"strings"

	"github.com/oxhq/replx/internal/canon"
)

// mappingMember is the required top-level member of the mapping
// document. Unknown members are ignored.
const mappingMember = "REPLACEMENT_MAPPING"

// Sentinel errors for programmatic checking.
var (
	ErrEmptyKey      = fmt.Errorf("mapping key canonicalizes to an empty string")
	ErrDuplicateKey  = fmt.Errorf("duplicate canonical mapping key")
	ErrCyclicMapping = fmt.Errorf("mapping contains recursive replacements")
	ErrBadMapping    = fmt.Errorf("invalid mapping document")
)

// Rule is a single literal find→replace pair. Find holds the literal
// form as written in the mapping document; Canon its canonical
// projection used for matching.
type Rule struct {
	Find    string
	Replace string
	Canon   string

	// CanonRunes caches the decoded canonical form for the matcher.
	CanonRunes []rune

	seq int
}

// Set is an ordered, validated rule table. The order is
// longest-canonical-first with ties broken by document order, which
// makes a linear prefix test at each position implement
// longest-match-first.
type Set struct {
	rules []Rule
}

// Load reads the mapping document at path and builds a validated
// rule set.
func Load(path string) (*Set, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("opening mapping document: %w", err)
	}
	defer f.Close()

	pairs, err := parseMapping(f)
	if err != nil {
		return nil, err
	}
	return New(pairs)
}

// Pair is one mapping entry in document order.
type Pair struct {
	Find    string
	Replace string
}

// New builds a validated rule set from mapping pairs in document
// order.
func New(pairs []Pair) (*Set, error) {
	rules := make([]Rule, 0, len(pairs))
	seen := make(map[string]string, len(pairs))

	for i, p := range pairs {
		if p.Find == "" {
			return nil, fmt.Errorf("%w: empty key at position %d", ErrBadMapping, i+1)
		}
		c := canon.Canonicalize(p.Find)
		if c == "" {
			return nil, fmt.Errorf("%w: %q", ErrEmptyKey, p.Find)
		}
		if prev, dup := seen[c]; dup {
			return nil, fmt.Errorf("%w: %q and %q both canonicalize to %q", ErrDuplicateKey, prev, p.Find, c)
		}
		seen[c] = p.Find

		rules = append(rules, Rule{
			Find:       p.Find,
			Replace:    p.Replace,
			Canon:      c,
			CanonRunes: []rune(c),
			seq:        i,
		})
	}

	sort.SliceStable(rules, func(i, j int) bool {
		if len(rules[i].CanonRunes) != len(rules[j].CanonRunes) {
			return len(rules[i].CanonRunes) > len(rules[j].CanonRunes)
		}
		return rules[i].seq < rules[j].seq
	})

	s := &Set{rules: rules}
	if err := s.checkCycles(); err != nil {
		return nil, err
	}
	return s, nil
}

// checkCycles verifies no rule's replacement contains any rule's
// canonical find, which would make repeated application unstable.
// All offending rules are reported at once.
func (s *Set) checkCycles() error {
	var offending []string
	for _, r := range s.rules {
		replCanon := canon.Canonicalize(r.Replace)
		for _, other := range s.rules {
			if strings.Contains(replCanon, other.Canon) {
				offending = append(offending,
					fmt.Sprintf("%q -> %q (replacement contains %q)", r.Find, r.Replace, other.Find))
				break
			}
		}
	}
	if len(offending) > 0 {
		return fmt.Errorf("%w: %s", ErrCyclicMapping, strings.Join(offending, "; "))
	}
	return nil
}

// Rules returns the ordered rule view. Callers must not mutate it.
func (s *Set) Rules() []Rule {
	return s.rules
}

// Len reports the number of rules.
func (s *Set) Len() int {
	return len(s.rules)
}

// ContainsAny reports whether canonical contains any rule's
// canonical find as a substring.
func (s *Set) ContainsAny(canonical string) bool {
	for _, r := range s.rules {
		if strings.Contains(canonical, r.Canon) {
			return true
		}
	}
	return false
}

// parseMapping extracts the REPLACEMENT_MAPPING member preserving
// document order, which json.Unmarshal into a map would destroy.
func parseMapping(r io.Reader) ([]Pair, error) {
	dec := json.NewDecoder(r)

	tok, err := dec.Token()
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrBadMapping, err)
	}
	if d, ok := tok.(json.Delim); !ok || d != '{' {
		return nil, fmt.Errorf("%w: top-level value is not an object", ErrBadMapping)
	}

	var pairs []Pair
	found := false

	for dec.More() {
		keyTok, err := dec.Token()
		if err != nil {
			return nil, fmt.Errorf("%w: %v", ErrBadMapping, err)
		}
		key, ok := keyTok.(string)
		if !ok {
			return nil, fmt.Errorf("%w: non-string member name", ErrBadMapping)
		}

		if key != mappingMember {
			// Unknown members are ignored wholesale.
			var skip json.RawMessage
			if err := dec.Decode(&skip); err != nil {
				return nil, fmt.Errorf("%w: %v", ErrBadMapping, err)
			}
			continue
		}

		found = true
		tok, err := dec.Token()
		if err != nil {
			return nil, fmt.Errorf("%w: %v", ErrBadMapping, err)
		}
		if d, ok := tok.(json.Delim); !ok || d != '{' {
			return nil, fmt.Errorf("%w: %s is not an object", ErrBadMapping, mappingMember)
		}
		for dec.More() {
			kTok, err := dec.Token()
			if err != nil {
				return nil, fmt.Errorf("%w: %v", ErrBadMapping, err)
			}
			k, ok := kTok.(string)
			if !ok {
				return nil, fmt.Errorf("%w: non-string mapping key", ErrBadMapping)
			}
			var v string
			if err := dec.Decode(&v); err != nil {
				return nil, fmt.Errorf("%w: value for %q is not a string", ErrBadMapping, k)
			}
			pairs = append(pairs, Pair{Find: k, Replace: v})
		}
		if _, err := dec.Token(); err != nil {
			return nil, fmt.Errorf("%w: %v", ErrBadMapping, err)
		}
	}

	if !found {
		return nil, fmt.Errorf("%w: missing %s member", ErrBadMapping, mappingMember)
	}
	return pairs, nil
}
