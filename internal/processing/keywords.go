package processing

import (
	"sort"
	"strings"
)

// DefaultKeywordLimit is the default number of keywords returned.
const DefaultKeywordLimit = 12

// TopKeywords returns up to k of the most frequent non-stopword tokens.
// Ties keep first-occurrence order.
func TopKeywords(text string, k int, lex *Lexicon) []string {
	if lex == nil {
		lex = DefaultLexicon()
	}
	if k <= 0 {
		k = DefaultKeywordLimit
	}

	type kv struct {
		word  string
		count int
	}

	index := make(map[string]int)
	var pairs []kv
	for _, tok := range KeywordTokenRule.FindAll(text) {
		tok = strings.ToLower(tok)
		if lex.IsStopword(tok) {
			continue
		}
		if i, ok := index[tok]; ok {
			pairs[i].count++
			continue
		}
		index[tok] = len(pairs)
		pairs = append(pairs, kv{word: tok, count: 1})
	}

	sort.SliceStable(pairs, func(i, j int) bool {
		return pairs[i].count > pairs[j].count
	})

	if k > len(pairs) {
		k = len(pairs)
	}
	keywords := make([]string, 0, k)
	for _, p := range pairs[:k] {
		keywords = append(keywords, p.word)
	}
	return keywords
}
