package processing

import (
	"strings"
	"unicode/utf8"

	"github.com/DeafMist/noise-to-signal/internal/models"
)

// ExtractQuotes returns double-quoted spans of 10-400 characters. Offsets are
// code-point positions in text, end exclusive. Speakers are not attributed.
func ExtractQuotes(text string) []models.Quote {
	quotes := make([]models.Quote, 0)
	cursor, runes := 0, 0
	for _, m := range QuoteRule.Pattern.FindAllStringSubmatchIndex(text, -1) {
		body := m[2:4]
		if body[0] < 0 {
			body = m[4:6]
		}
		start := runes + utf8.RuneCountInString(text[cursor:m[0]])
		end := start + utf8.RuneCountInString(text[m[0]:m[1]])
		cursor, runes = m[1], end

		quotes = append(quotes, models.Quote{
			Text:     strings.TrimSpace(text[body[0]:body[1]]),
			CharSpan: [2]int{start, end},
		})
	}
	return quotes
}
