package processing

import "regexp"

// Rule is a named extraction pattern. Keeping patterns named lets tests pin
// each one down independently of the stage that applies it.
type Rule struct {
	Name    string
	Pattern *regexp.Regexp
}

// FindAll returns every non-overlapping match in scan order.
func (r Rule) FindAll(text string) []string {
	return r.Pattern.FindAllString(text, -1)
}

// Go's regexp engine runs in linear time, so none of these patterns can
// backtrack catastrophically on adversarial input.
var (
	MonthDateRule = Rule{
		Name:    "month_date",
		Pattern: regexp.MustCompile(`(?i)\b(Jan|Feb|Mar|Apr|May|Jun|Jul|Aug|Sep|Oct|Nov|Dec)([a-z]*)\.?\s+(\d{1,2}),?\s+(\d{4})`),
	}
	ISODateRule = Rule{
		Name:    "iso_date",
		Pattern: regexp.MustCompile(`\b\d{4}-\d{2}-\d{2}`),
	}
	MoneyRule = Rule{
		Name:    "money",
		Pattern: regexp.MustCompile(`(?i)(?:USD|US\$|\$)\s?\d[\d,]*(?:\.\d{1,2})?`),
	}
	PercentRule = Rule{
		Name:    "percent",
		Pattern: regexp.MustCompile(`(?i)\b\d{1,3}(?:\.\d+)?\s?(?:%|percent\b)`),
	}
	NumberRule = Rule{
		Name:    "number",
		Pattern: regexp.MustCompile(`\b\d{1,4}(?:,\d{3})*(?:\.\d+)?\b`),
	}
	TickerRule = Rule{
		Name:    "ticker",
		Pattern: regexp.MustCompile(`\b[A-Z]{1,5}\b`),
	}
	EntityRule = Rule{
		Name:    "entity",
		Pattern: regexp.MustCompile(`\b[A-Z][A-Za-z&.\-]+(?:\s+[A-Z][A-Za-z&.\-]+){0,3}\b`),
	}
	QuoteRule = Rule{
		Name:    "quote",
		Pattern: regexp.MustCompile(`"([^"]{10,400})"|“([^”]{10,400})”`),
	}
	ModalityTokenRule = Rule{
		Name:    "modality_token",
		Pattern: regexp.MustCompile(`[a-zA-Z']+`),
	}
	KeywordTokenRule = Rule{
		Name:    "keyword_token",
		Pattern: regexp.MustCompile(`[a-zA-Z][a-zA-Z\-]{2,}`),
	}
)
