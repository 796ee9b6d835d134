package processing

import (
	"fmt"
	"os"
	"strings"

	"gopkg.in/yaml.v3"
)

// Lexicon holds the constant word tables used by the pipeline. It is built
// once at startup and only read afterwards.
type Lexicon struct {
	Stopwords   map[string]struct{}
	Hedge       []string
	Commit      []string
	OrgKeywords []string
	GPEKeywords []string
	Articles    map[string]struct{}
}

const defaultStopwords = "the a an and or if in on of to for with by as from this that these those " +
	"be is are was were been being about between into after before during over under up down out " +
	"more most less least such than not no nor"

// DefaultLexicon returns a fresh copy of the built-in tables.
func DefaultLexicon() *Lexicon {
	return &Lexicon{
		Stopwords:   toSet(strings.Fields(defaultStopwords)),
		Hedge:       []string{"may", "might", "could", "suggest", "appears", "possible", "likely", "unlikely", "approximately", "around", "estimate"},
		Commit:      []string{"will", "shall", "must", "decided", "announced", "approved", "reduces", "increases", "commits", "confirms"},
		OrgKeywords: []string{"federal", "board", "university", "bank", "department", "ministry", "committee", "corp", "inc", "ltd"},
		GPEKeywords: []string{"states", "republic", "kingdom", "city", "province", "county"},
		Articles:    toSet([]string{"The", "A", "An"}),
	}
}

// IsStopword reports whether the lowercase token is filtered from keywords.
func (l *Lexicon) IsStopword(token string) bool {
	_, ok := l.Stopwords[token]
	return ok
}

type lexiconFile struct {
	Stopwords   []string `yaml:"stopwords"`
	OrgKeywords []string `yaml:"org_keywords"`
	GPEKeywords []string `yaml:"gpe_keywords"`
}

// LoadLexicon returns the default lexicon extended with the entries of a YAML
// file. Entries are only ever added; the modality vocabularies are fixed.
func LoadLexicon(path string) (*Lexicon, error) {
	lex := DefaultLexicon()
	if path == "" {
		return lex, nil
	}

	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read lexicon: %w", err)
	}
	var file lexiconFile
	if err := yaml.Unmarshal(data, &file); err != nil {
		return nil, fmt.Errorf("decode lexicon %s: %w", path, err)
	}

	for _, w := range file.Stopwords {
		if w = strings.ToLower(strings.TrimSpace(w)); w != "" {
			lex.Stopwords[w] = struct{}{}
		}
	}
	lex.OrgKeywords = appendNew(lex.OrgKeywords, file.OrgKeywords)
	lex.GPEKeywords = appendNew(lex.GPEKeywords, file.GPEKeywords)
	return lex, nil
}

func toSet(words []string) map[string]struct{} {
	set := make(map[string]struct{}, len(words))
	for _, w := range words {
		set[w] = struct{}{}
	}
	return set
}

func appendNew(base, extra []string) []string {
	set := newOrderedSet()
	for _, w := range base {
		set.Add(w)
	}
	for _, w := range extra {
		if w = strings.ToLower(strings.TrimSpace(w)); w != "" {
			set.Add(w)
		}
	}
	return set.Values()
}
