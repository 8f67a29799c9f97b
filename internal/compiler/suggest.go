package compiler

import (
	"sort"
	"strings"

	"github.com/lithammer/fuzzysearch/fuzzy"
)

// maxSuggestDistance bounds how different a suggestion may be from a typo.
const maxSuggestDistance = 2

// Suggest returns the candidate closest to name, or "" when nothing is close.
// A candidate within a small edit distance wins; otherwise the best candidate
// containing the letters of name in order, such as NETWORKDAYS for NETWORK.
func Suggest(name string, candidates []string) string {
	name = strings.ToUpper(name)
	best, bestDist := "", maxSuggestDistance+1
	for _, c := range candidates {
		if d := fuzzy.LevenshteinDistance(name, c); d < bestDist {
			best, bestDist = c, d
		}
	}
	if best != "" {
		return best
	}
	ranks := fuzzy.RankFindFold(name, candidates)
	if len(ranks) == 0 {
		return ""
	}
	sort.Stable(ranks)
	return ranks[0].Target
}
