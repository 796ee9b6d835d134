package models

import "strings"

// Schema identifiers and the pipeline version are part of the artifact
// compatibility contract.
const (
	DocumentSchema  = "document:v1"
	AnalysisSchema  = "analysis:v1"
	AnalysisVersion = "nlp-layer:1.0.0"
	HashPrefix      = "sha256:"
)

// Document is the input record produced by the text adapter or the URL ingestor.
type Document struct {
	Schema  string          `json:"schema"`
	Meta    DocumentMeta    `json:"meta"`
	Content DocumentContent `json:"content"`
}

// DocumentMeta carries optional provenance for a document.
type DocumentMeta struct {
	Title     *string `json:"title"`
	URL       *string `json:"url"`
	CreatedAt string  `json:"created_at"`
}

// DocumentContent holds the raw text.
type DocumentContent struct {
	Text string `json:"text"`
}

// Analysis is the structured record derived from a Document.
type Analysis struct {
	Schema   string       `json:"schema"`
	Meta     AnalysisMeta `json:"meta"`
	Stats    Stats        `json:"stats"`
	Sections []Section    `json:"sections"`
	Facts    FactPack     `json:"facts"`
	Quotes   []Quote      `json:"quotes"`
	Modality Modality     `json:"modality"`
	Keywords []string     `json:"keywords"`
	Hash     string       `json:"hash"`
	Version  string       `json:"version"`
}

// AnalysisMeta copies source metadata and stamps the analysis time.
type AnalysisMeta struct {
	Title           *string `json:"title"`
	URL             *string `json:"url"`
	SourceCreatedAt *string `json:"source_created_at"`
	AnalyzedAt      string  `json:"analyzed_at"`
}

type Stats struct {
	Chars          int     `json:"chars"`
	Words          int     `json:"words"`
	Lines          int     `json:"lines"`
	ReadingMinutes float64 `json:"reading_minutes"`
}

// Section is a word-budgeted chunk of normalized text. Heading is always nil.
type Section struct {
	Heading   *string `json:"heading"`
	Text      string  `json:"text"`
	WordCount int     `json:"word_count"`
}

type FactPack struct {
	Dates    []string `json:"dates"`
	Money    []string `json:"money"`
	Percents []string `json:"percents"`
	Numbers  []string `json:"numbers"`
	Tickers  []string `json:"tickers"`
	Entities Entities `json:"entities"`
}

// Entities buckets capitalized spans by coarse type.
type Entities struct {
	ORG    []string `json:"ORG"`
	PERSON []string `json:"PERSON"`
	GPE    []string `json:"GPE"`
}

// Quote is a quoted span; CharSpan is [start, end) in code points of the normalized text.
type Quote struct {
	Text     string  `json:"text"`
	Speaker  *string `json:"speaker"`
	CharSpan [2]int  `json:"char_span"`
}

type TermCount struct {
	Term  string `json:"term"`
	Count int    `json:"count"`
}

type Modality struct {
	Hedges      []TermCount `json:"hedges"`
	Commit      []TermCount `json:"commit"`
	StanceIndex float64     `json:"stance_index"`
}

// ID returns the hex digest used as the storage key for the analysis.
func (a Analysis) ID() string {
	return strings.TrimPrefix(a.Hash, HashPrefix)
}

// HasModality reports whether any hedge or commitment term was found.
func (m Modality) HasModality() bool {
	return len(m.Hedges) > 0 || len(m.Commit) > 0
}
