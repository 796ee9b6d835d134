package summarize

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/DeafMist/noise-to-signal/internal/models"
)

const entitySystem = "You are a named-entity tagger. Reply with a single JSON object " +
	`{"ORG":[...],"PERSON":[...],"GPE":[...]} listing surface forms exactly as written. No prose.`

// EntityModel asks a Generator to tag entities. It satisfies
// processing.EntityModel; callers pair it with a heuristic fallback.
type EntityModel struct {
	Gen     Generator
	Timeout time.Duration
	// MaxChars caps the text sent to the model.
	MaxChars int
}

func (m EntityModel) Entities(text string) (models.Entities, error) {
	timeout := m.Timeout
	if timeout <= 0 {
		timeout = 20 * time.Second
	}
	ctx, cancel := context.WithTimeout(context.Background(), timeout)
	defer cancel()

	if m.MaxChars > 0 {
		text = truncateRunes(text, m.MaxChars)
	}
	out, err := m.Gen.Generate(ctx, entitySystem, text)
	if err != nil {
		return models.Entities{}, err
	}
	return parseEntities(out)
}

func parseEntities(out string) (models.Entities, error) {
	out = strings.TrimSpace(out)
	start, end := strings.Index(out, "{"), strings.LastIndex(out, "}")
	if start < 0 || end < start {
		return models.Entities{}, fmt.Errorf("entity model: no JSON object in reply")
	}

	var ents models.Entities
	if err := json.Unmarshal([]byte(out[start:end+1]), &ents); err != nil {
		return models.Entities{}, fmt.Errorf("entity model: %w", err)
	}
	return ents, nil
}
