package filtering

import (
	ahocorasick "github.com/BobuSumisu/aho-corasick"
)

// substringIndex finds which of a fixed set of patterns occur inside a string.
//
// It is an Aho-Corasick automaton over normalized patterns, so a lookup costs
// O(len(s)+matches) regardless of how many patterns are loaded. Results are
// the same as testing strings.Contains for every pattern.
type substringIndex struct {
	trie     *ahocorasick.Trie
	patterns []string
	ids      []int
}

// newSubstringIndex builds an index over rules. ids[i] is the rule id of
// patterns[i].
func newSubstringIndex(rules []FilterRule) *substringIndex {
	idx := &substringIndex{
		patterns: make([]string, 0, len(rules)),
		ids:      make([]int, 0, len(rules)),
	}
	for _, r := range rules {
		if r.Normalized == "" {
			continue
		}
		idx.patterns = append(idx.patterns, r.Normalized)
		idx.ids = append(idx.ids, r.ID)
	}
	if len(idx.patterns) > 0 {
		idx.trie = ahocorasick.NewTrieBuilder().AddStrings(idx.patterns).Build()
	}
	return idx
}

// first returns the pattern and rule id of the earliest match in s, which
// must already be lower-cased.
func (x *substringIndex) first(s string) (pattern string, id int, ok bool) {
	if x == nil || x.trie == nil {
		return "", 0, false
	}
	matches := x.trie.MatchString(s)
	if len(matches) == 0 {
		return "", 0, false
	}
	i := matches[0].Pattern()
	return x.patterns[i], x.ids[i], true
}

// Len returns the number of indexed patterns.
func (x *substringIndex) Len() int {
	if x == nil {
		return 0
	}
	return len(x.patterns)
}
