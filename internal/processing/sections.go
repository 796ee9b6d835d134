package processing

import (
	"strings"

	"github.com/DeafMist/noise-to-signal/internal/models"
)

// DefaultSectionWords is the word budget of a section.
const DefaultSectionWords = 180

// Sectionize packs paragraphs greedily into sections of at most maxWords
// words. A paragraph is never split, so an oversized paragraph forms a
// section of its own.
func Sectionize(text string, maxWords int) []models.Section {
	if maxWords <= 0 {
		maxWords = DefaultSectionWords
	}

	var (
		sections []models.Section
		buf      []string
		count    int
	)
	flush := func() {
		if len(buf) == 0 {
			return
		}
		sections = append(sections, newSection(strings.Join(buf, " ")))
		buf, count = buf[:0], 0
	}

	for _, para := range strings.Split(text, ParagraphSeparator) {
		para = strings.TrimSpace(para)
		if para == "" {
			continue
		}
		words := len(strings.Fields(para))
		if len(buf) > 0 && count+words > maxWords {
			flush()
		}
		buf = append(buf, para)
		count += words
	}
	flush()

	if len(sections) == 0 {
		return []models.Section{newSection(text)}
	}
	return sections
}

func newSection(text string) models.Section {
	return models.Section{Text: text, WordCount: len(strings.Fields(text))}
}
