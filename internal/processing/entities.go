package processing

import (
	"strings"

	"github.com/DeafMist/noise-to-signal/internal/models"
)

// Recognizer classifies named-entity mentions in normalized text. A
// Recognizer never fails; it returns empty buckets when it finds nothing.
type Recognizer interface {
	Recognize(text string) models.Entities
}

// HeuristicRecognizer buckets runs of capitalized words by keyword lookup.
type HeuristicRecognizer struct {
	Lexicon *Lexicon
}

func (h HeuristicRecognizer) Recognize(text string) models.Entities {
	lex := h.Lexicon
	if lex == nil {
		lex = DefaultLexicon()
	}

	org, person, gpe := newOrderedSet(), newOrderedSet(), newOrderedSet()
	for _, raw := range EntityRule.FindAll(text) {
		words := strings.Fields(raw)
		for len(words) > 0 {
			if _, ok := lex.Articles[words[0]]; !ok {
				break
			}
			words = words[1:]
		}
		if len(words) == 0 {
			continue
		}
		if len(words) == 1 && isUpper(words[0]) {
			continue
		}

		span := strings.Join(words, " ")
		low := strings.ToLower(span)
		switch {
		case containsAny(low, lex.OrgKeywords):
			org.Add(span)
		case containsAny(low, lex.GPEKeywords):
			gpe.Add(span)
		default:
			person.Add(span)
		}
	}

	return models.Entities{ORG: org.Values(), PERSON: person.Values(), GPE: gpe.Values()}
}

// EntityModel is an optional learned recognizer. It may fail, in which case
// ModelRecognizer falls back.
type EntityModel interface {
	Entities(text string) (models.Entities, error)
}

// ModelRecognizer prefers Model and falls back to the heuristic recognizer
// whenever the model is absent or errors.
type ModelRecognizer struct {
	Model    EntityModel
	Fallback Recognizer
}

func (m ModelRecognizer) Recognize(text string) models.Entities {
	fallback := m.Fallback
	if fallback == nil {
		fallback = HeuristicRecognizer{}
	}
	if m.Model == nil {
		return fallback.Recognize(text)
	}
	ents, err := m.Model.Entities(text)
	if err != nil {
		return fallback.Recognize(text)
	}
	return models.Entities{
		ORG:    dedupe(ents.ORG),
		PERSON: dedupe(ents.PERSON),
		GPE:    dedupe(ents.GPE),
	}
}

func containsAny(s string, needles []string) bool {
	for _, n := range needles {
		if strings.Contains(s, n) {
			return true
		}
	}
	return false
}

// isUpper reports whether s has at least one cased letter and no
// lowercase letters.
func isUpper(s string) bool {
	cased := false
	for _, r := range s {
		switch {
		case r >= 'a' && r <= 'z':
			return false
		case r >= 'A' && r <= 'Z':
			cased = true
		}
	}
	return cased
}
