package matcher

import (
	"strings"
	"unicode/utf8"

	"reshelve/internal/textnorm"
)

// Entry is one catalog record as the index consumes it: an id plus every known
// spelling of the title. Title variants may be empty strings; those contribute
// nothing.
type Entry struct {
	ID      int64
	Titles  []string
	Aliases []string
}

// Index is the inverted matching index built once per run from the full
// catalog. It is rebuilt, never mutated incrementally.
type Index struct {
	tokenIDs   map[string][]int64
	bigramIDs  map[string][]int64
	candidates map[int64][]string
}

// BuildIndex normalizes every entry's title variants and aliases into a
// candidate-string set and populates the token and CJK-bigram postings.
// Entries contributing no non-empty candidate are simply absent.
func BuildIndex(entries []Entry) *Index {
	idx := &Index{
		tokenIDs:   make(map[string][]int64),
		bigramIDs:  make(map[string][]int64),
		candidates: make(map[int64][]string),
	}
	for _, entry := range entries {
		names := make([]string, 0, len(entry.Titles)+len(entry.Aliases))
		names = append(names, entry.Titles...)
		names = append(names, entry.Aliases...)

		seen := make(map[string]struct{})
		var candidates []string
		for _, name := range names {
			norm := textnorm.Normalize(name)
			if norm == "" {
				continue
			}
			if _, ok := seen[norm]; ok {
				continue
			}
			seen[norm] = struct{}{}
			candidates = append(candidates, norm)
		}
		if len(candidates) == 0 {
			continue
		}
		idx.candidates[entry.ID] = candidates

		for _, cand := range candidates {
			for _, tok := range textnorm.LatinTokens(cand) {
				idx.tokenIDs[tok] = appendID(idx.tokenIDs[tok], entry.ID)
			}
			if textnorm.HasCJK(cand) {
				for _, bg := range textnorm.CJKBigrams(cand) {
					idx.bigramIDs[bg] = appendID(idx.bigramIDs[bg], entry.ID)
				}
			}
		}
	}
	return idx
}

// Size returns the number of indexed catalog entries.
func (idx *Index) Size() int {
	return len(idx.candidates)
}

func appendID(ids []int64, id int64) []int64 {
	for _, existing := range ids {
		if existing == id {
			return ids
		}
	}
	return append(ids, id)
}

// Scoring weights. Bigram matches carry double weight: CJK tokens are shorter
// and more specific per match than Latin tokens.
const (
	tokenWeight  = 1
	bigramWeight = 2
)

// Confirmation thresholds used when no candidate substring-confirms.
const (
	minCJKScore   = 6
	minLatinScore = 3
)

// BestMatch scores a raw filename against the index and returns the catalog id
// it most plausibly belongs to, or ok=false when the signal is too weak.
//
// Ties break toward the id scored first; the substring-confirmation gate
// filters coincidental token overlap, and a score-threshold fallback recovers
// matches where punctuation or word order defeats exact containment.
func (idx *Index) BestMatch(filename string) (int64, bool) {
	norm := textnorm.Normalize(filename)
	tokens := textnorm.LatinTokens(norm)
	bigrams := textnorm.CJKBigrams(norm)

	scores := make(map[int64]int)
	var order []int64
	accumulate := func(ids []int64, weight int) {
		for _, id := range ids {
			if _, ok := scores[id]; !ok {
				order = append(order, id)
			}
			scores[id] += weight
		}
	}
	for _, tok := range tokens {
		accumulate(idx.tokenIDs[tok], tokenWeight)
	}
	for _, bg := range bigrams {
		accumulate(idx.bigramIDs[bg], bigramWeight)
	}
	if len(scores) == 0 {
		return 0, false
	}

	bestID := int64(0)
	bestScore := -1
	for _, id := range order {
		if s := scores[id]; s > bestScore {
			bestScore = s
			bestID = id
		}
	}

	candidates := idx.candidates[bestID]
	if len(candidates) == 0 {
		return 0, false
	}

	nameNoSpace := stripSpaces(norm)
	for _, cand := range candidates {
		if strings.Contains(norm, cand) {
			return bestID, true
		}
		candNoSpace := stripSpaces(cand)
		if utf8.RuneCountInString(candNoSpace) >= 3 && strings.Contains(nameNoSpace, candNoSpace) {
			return bestID, true
		}
	}

	if len(bigrams) > 0 && bestScore >= minCJKScore {
		return bestID, true
	}
	if len(tokens) > 0 && bestScore >= minLatinScore {
		return bestID, true
	}
	return 0, false
}

func stripSpaces(s string) string {
	return strings.Map(func(r rune) rune {
		if r == ' ' || r == '\t' {
			return -1
		}
		return r
	}, s)
}
