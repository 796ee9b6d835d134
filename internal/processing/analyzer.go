package processing

import (
	"crypto/sha256"
	"encoding/hex"
	"math"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/DeafMist/noise-to-signal/internal/config"
	"github.com/DeafMist/noise-to-signal/internal/models"
)

// WordsPerMinute is the reading speed behind stats.reading_minutes.
const WordsPerMinute = 230.0

const timestampLayout = "2006-01-02T15:04:05Z"

// Analyzer turns documents into analyses. It holds only read-only state and
// is safe for concurrent use.
type Analyzer struct {
	lexicon      *Lexicon
	recognizer   Recognizer
	sectionWords int
	keywordLimit int
	now          func() time.Time
}

// Option customises an Analyzer.
type Option func(*Analyzer)

func WithLexicon(lex *Lexicon) Option {
	return func(a *Analyzer) {
		if lex != nil {
			a.lexicon = lex
		}
	}
}

// WithRecognizer swaps the entity recognizer, e.g. for a ModelRecognizer.
func WithRecognizer(r Recognizer) Option {
	return func(a *Analyzer) { a.recognizer = r }
}

func WithSectionWords(n int) Option {
	return func(a *Analyzer) {
		if n > 0 {
			a.sectionWords = n
		}
	}
}

func WithKeywordLimit(k int) Option {
	return func(a *Analyzer) {
		if k > 0 {
			a.keywordLimit = k
		}
	}
}

// WithClock overrides the source of analyzed_at.
func WithClock(now func() time.Time) Option {
	return func(a *Analyzer) {
		if now != nil {
			a.now = now
		}
	}
}

// NewAnalyzer builds an Analyzer with the default lexicon and heuristic
// entity recognizer unless overridden.
func NewAnalyzer(opts ...Option) *Analyzer {
	a := &Analyzer{
		lexicon:      DefaultLexicon(),
		sectionWords: DefaultSectionWords,
		keywordLimit: DefaultKeywordLimit,
		now:          time.Now,
	}
	for _, opt := range opts {
		opt(a)
	}
	if a.recognizer == nil {
		a.recognizer = HeuristicRecognizer{Lexicon: a.lexicon}
	}
	return a
}

// FromPipeline builds an Analyzer from the pipeline settings, loading the
// lexicon file when one is configured. opts are applied last.
func FromPipeline(cfg *config.Pipeline, opts ...Option) (*Analyzer, error) {
	lex, err := LoadLexicon(cfg.LexiconFile)
	if err != nil {
		return nil, err
	}
	return NewAnalyzer(append(PipelineOptions(cfg, lex), opts...)...), nil
}

// PipelineOptions maps the pipeline settings onto options for an already
// loaded lexicon.
func PipelineOptions(cfg *config.Pipeline, lex *Lexicon) []Option {
	return []Option{
		WithLexicon(lex),
		WithSectionWords(cfg.MaxSectionWords),
		WithKeywordLimit(cfg.KeywordLimit),
	}
}

// Analyze validates doc and assembles its analysis. On validation failure
// it returns a *ValidationError and a zero Analysis.
func (a *Analyzer) Analyze(doc models.Document) (models.Analysis, error) {
	if err := ValidateDocument(doc); err != nil {
		return models.Analysis{}, err
	}

	text := Normalize(doc.Content.Text)
	createdAt := &doc.Meta.CreatedAt
	if doc.Meta.CreatedAt == "" {
		createdAt = nil
	}

	return models.Analysis{
		Schema: models.AnalysisSchema,
		Meta: models.AnalysisMeta{
			Title:           doc.Meta.Title,
			URL:             doc.Meta.URL,
			SourceCreatedAt: createdAt,
			AnalyzedAt:      a.now().UTC().Format(timestampLayout),
		},
		Stats:    ComputeStats(text),
		Sections: Sectionize(text, a.sectionWords),
		Facts:    ExtractFacts(text, a.recognizer, a.lexicon),
		Quotes:   ExtractQuotes(text),
		Modality: ScoreModality(text, a.lexicon),
		Keywords: TopKeywords(text, a.keywordLimit, a.lexicon),
		Hash:     Hash(text),
		Version:  models.AnalysisVersion,
	}, nil
}

// AnalyzeJSON decodes a document:v1 record and analyzes it.
func (a *Analyzer) AnalyzeJSON(data []byte) (models.Analysis, error) {
	doc, err := DecodeDocument(data)
	if err != nil {
		return models.Analysis{}, err
	}
	return a.Analyze(doc)
}

// Digest returns the hash an analysis of text would carry, without running
// the extraction stages. Callers use it to look up memoized analyses.
func Digest(text string) string {
	return Hash(Normalize(text))
}

// Hash digests already-normalized text.
func Hash(normalized string) string {
	sum := sha256.Sum256([]byte(normalized))
	return models.HashPrefix + hex.EncodeToString(sum[:])
}

// ComputeStats counts code points, whitespace-delimited words and lines of
// normalized text.
func ComputeStats(text string) models.Stats {
	words := len(strings.Fields(text))
	lines := 0
	if text != "" {
		lines = strings.Count(text, ParagraphSeparator) + 1
	}
	return models.Stats{
		Chars:          utf8.RuneCountInString(text),
		Words:          words,
		Lines:          lines,
		ReadingMinutes: math.Round(float64(words)/WordsPerMinute*100) / 100,
	}
}
