package processing

import (
	"math"
	"strings"

	"github.com/DeafMist/noise-to-signal/internal/models"
)

// ScoreModality counts hedge and commitment vocabulary and derives the stance
// index commit / (hedge + commit), rounded to two decimals.
func ScoreModality(text string, lex *Lexicon) models.Modality {
	if lex == nil {
		lex = DefaultLexicon()
	}

	counts := make(map[string]int)
	for _, tok := range ModalityTokenRule.FindAll(text) {
		counts[strings.ToLower(tok)]++
	}

	hedges, hedgeTotal := tally(lex.Hedge, counts)
	commit, commitTotal := tally(lex.Commit, counts)

	stance := 0.0
	if total := hedgeTotal + commitTotal; total > 0 {
		stance = round2(float64(commitTotal) / float64(total))
	}
	return models.Modality{Hedges: hedges, Commit: commit, StanceIndex: stance}
}

// tally emits nonzero vocabulary counts in vocabulary order.
func tally(vocab []string, counts map[string]int) ([]models.TermCount, int) {
	out := make([]models.TermCount, 0)
	total := 0
	for _, term := range vocab {
		if n := counts[term]; n > 0 {
			out = append(out, models.TermCount{Term: term, Count: n})
			total += n
		}
	}
	return out, total
}

func round2(v float64) float64 {
	return math.Round(v*100) / 100
}
