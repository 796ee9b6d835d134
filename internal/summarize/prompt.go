package summarize

import (
	"fmt"
	"strings"

	"github.com/DeafMist/noise-to-signal/internal/models"
)

const (
	maxBodyChars   = 4000
	promptKeywords = 10
)

var lengthHints = map[string]string{
	"short":  "≈120 words",
	"medium": "≈220 words",
	"long":   "≈350 words",
}

// BuildPrompt renders the user prompt for an analysis.
func BuildPrompt(a models.Analysis, opts Options) string {
	title := "Untitled"
	if a.Meta.Title != nil && *a.Meta.Title != "" {
		title = *a.Meta.Title
	}
	url := ""
	if a.Meta.URL != nil {
		url = *a.Meta.URL
	}

	keywords := a.Keywords
	if len(keywords) > promptKeywords {
		keywords = keywords[:promptKeywords]
	}

	texts := make([]string, 0, len(a.Sections))
	for _, s := range a.Sections {
		texts = append(texts, s.Text)
	}
	body := truncateRunes(strings.Join(texts, " "), maxBodyChars)

	lengthHint, ok := lengthHints[opts.Length]
	if !ok {
		lengthHint = "≈150 words"
	}

	outputInstr := "Return ONLY plain text. No JSON. No code fences."
	if opts.HTML() {
		outputInstr = "Return ONLY valid HTML using <h3>, <p>, <ul>, <li>, <strong>, <em>. " +
			"No code fences, scripts, styles, or inline event handlers."
	}

	tierInstr := "Tier 1: Faithful recap of what happened and the core result. Avoid speculation."
	if opts.Tier == "tier2" {
		tierInstr = "Tier 2: Briefly explain why it matters and the immediate implications. Stay grounded."
	}

	var b strings.Builder
	b.WriteString("You are a precise finance/policy news explainer.\n")
	b.WriteString(tierInstr + "\n")
	fmt.Fprintf(&b, "Write %s. %s\n", lengthHint, outputInstr)
	b.WriteString("Be specific and neutral. If uncertain, say so.\n\n")
	b.WriteString("CONTEXT:\n")
	fmt.Fprintf(&b, "TITLE: %s\n", title)
	fmt.Fprintf(&b, "SOURCE: %s\n", url)
	fmt.Fprintf(&b, "WORDS: %d | STANCE_INDEX: %.2f\n", a.Stats.Words, a.Modality.StanceIndex)
	fmt.Fprintf(&b, "KEYWORDS: %s\n\n\n", strings.Join(keywords, ", "))
	b.WriteString("TEXT:\n")
	b.WriteString(body + "\n")
	return b.String()
}

// SystemPrompt returns the system message for opts.
func SystemPrompt(opts Options) string {
	msg := "You are a precise news explainer. Return ONLY the final output. No JSON, no code fences."
	if opts.HTML() {
		msg += " Output must be valid HTML using h3,p,ul,li,strong,em only."
	}
	return msg
}

func truncateRunes(s string, n int) string {
	if len(s) <= n {
		return s
	}
	r := []rune(s)
	if len(r) <= n {
		return s
	}
	return string(r[:n])
}
