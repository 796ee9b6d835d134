package processing

import (
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/DeafMist/noise-to-signal/internal/models"
)

const isoDate = "2006-01-02"

var monthNames = map[string]time.Month{
	"jan": time.January, "january": time.January,
	"feb": time.February, "february": time.February,
	"mar": time.March, "march": time.March,
	"apr": time.April, "april": time.April,
	"may": time.May,
	"jun": time.June, "june": time.June,
	"jul": time.July, "july": time.July,
	"aug": time.August, "august": time.August,
	"sep": time.September, "sept": time.September, "september": time.September,
	"oct": time.October, "october": time.October,
	"nov": time.November, "november": time.November,
	"dec": time.December, "december": time.December,
}

// ExtractFacts runs every lexical fact pass over normalized text. Entities
// come from recognizer; a nil recognizer means the heuristic one.
func ExtractFacts(text string, recognizer Recognizer, lex *Lexicon) models.FactPack {
	if recognizer == nil {
		recognizer = HeuristicRecognizer{Lexicon: lex}
	}
	return models.FactPack{
		Dates:    ExtractDates(text),
		Money:    dedupe(MoneyRule.FindAll(text)),
		Percents: dedupe(PercentRule.FindAll(text)),
		Numbers:  dedupe(NumberRule.FindAll(text)),
		Tickers:  ExtractTickers(text),
		Entities: recognizer.Recognize(text),
	}
}

// ExtractDates returns ISO dates for every parseable date mention, first
// occurrence first. Mentions that do not name a real calendar day are dropped.
func ExtractDates(text string) []string {
	type hit struct {
		at   int
		date string
	}
	var hits []hit

	for _, m := range MonthDateRule.Pattern.FindAllStringSubmatchIndex(text, -1) {
		if d, ok := parseMonthDate(text, m); ok {
			hits = append(hits, hit{at: m[0], date: d})
		}
	}
	for _, m := range ISODateRule.Pattern.FindAllStringIndex(text, -1) {
		if t, err := time.Parse(isoDate, text[m[0]:m[1]]); err == nil {
			hits = append(hits, hit{at: m[0], date: t.Format(isoDate)})
		}
	}

	sort.SliceStable(hits, func(i, j int) bool { return hits[i].at < hits[j].at })
	out := newOrderedSet()
	for _, h := range hits {
		out.Add(h.date)
	}
	return out.Values()
}

func parseMonthDate(text string, m []int) (string, bool) {
	word := strings.ToLower(text[m[2]:m[3]] + text[m[4]:m[5]])
	month, ok := monthNames[word]
	if !ok {
		return "", false
	}
	day, err := strconv.Atoi(text[m[6]:m[7]])
	if err != nil {
		return "", false
	}
	year, err := strconv.Atoi(text[m[8]:m[9]])
	if err != nil {
		return "", false
	}
	t := time.Date(year, month, day, 0, 0, 0, 0, time.UTC)
	if t.Day() != day || t.Month() != month {
		return "", false
	}
	return t.Format(isoDate), true
}

// ExtractTickers returns the distinct 2-5 letter uppercase tokens, sorted.
func ExtractTickers(text string) []string {
	set := newOrderedSet()
	for _, tok := range TickerRule.FindAll(text) {
		if len(tok) < 2 {
			continue
		}
		set.Add(tok)
	}
	tickers := set.Values()
	sort.Strings(tickers)
	return tickers
}
