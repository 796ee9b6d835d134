package processing

import (
	"regexp"
	"strings"
)

var (
	punctuationFolder = strings.NewReplacer(
		"‘", "'", "’", "'",
		"“", `"`, "”", `"`,
		"–", "-", "—", "-",
	)
	whitespace = regexp.MustCompile(`[\s\x{1f}\p{Zs}]+`)
	lineBreaks = regexp.MustCompile(`\r\n|\r|\n|\v|\f|\x{1c}|\x{1d}|\x{1e}|\x{85}|\x{2028}|\x{2029}`)
)

// ParagraphSeparator joins surviving lines in normalized text.
const ParagraphSeparator = "\n"

// Normalize folds curly quotes and dashes to ASCII, trims every line, drops
// blank lines and collapses whitespace inside each line to one space. Line
// boundaries survive as single ParagraphSeparator characters.
func Normalize(text string) string {
	if text == "" {
		return ""
	}
	folded := punctuationFolder.Replace(text)

	lines := lineBreaks.Split(folded, -1)
	kept := make([]string, 0, len(lines))
	for _, line := range lines {
		line = strings.TrimSpace(whitespace.ReplaceAllString(line, " "))
		if line != "" {
			kept = append(kept, line)
		}
	}
	return strings.Join(kept, ParagraphSeparator)
}
