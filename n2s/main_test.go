package main

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/DeafMist/noise-to-signal/internal/config"
	"github.com/DeafMist/noise-to-signal/internal/document"
	"github.com/DeafMist/noise-to-signal/internal/ingest"
	"github.com/DeafMist/noise-to-signal/internal/logger"
	"github.com/DeafMist/noise-to-signal/internal/models"
	"github.com/DeafMist/noise-to-signal/internal/processing"
	"github.com/DeafMist/noise-to-signal/internal/summarize"
)

type stubGenerator struct{}

func (stubGenerator) Generate(_ context.Context, system, _ string) (string, error) {
	if strings.Contains(system, "entity tagger") {
		return `{"ORG":["Acme Widgets"],"PERSON":[],"GPE":["Ohio"]}`, nil
	}
	return "<p>Rates are going up.</p><script>alert(1)</script>", nil
}

func newTestApp(t *testing.T, stdin string) (*app, *bytes.Buffer) {
	t.Helper()
	for _, key := range []string{"NLP_MAX_SECTION_WORDS", "NLP_KEYWORD_LIMIT", "NLP_LEXICON_FILE"} {
		t.Setenv(key, "")
	}
	var out bytes.Buffer
	return &app{
		log:     logger.Discard(),
		stdin:   strings.NewReader(stdin),
		stdout:  &out,
		now:     func() time.Time { return time.Date(2024, 5, 1, 8, 0, 0, 0, time.UTC) },
		fetcher: ingest.NewFetcher(),
		generator: func() (summarize.Generator, *config.Summarizer, error) {
			return stubGenerator{}, &config.Summarizer{Timeout: time.Second}, nil
		},
	}, &out
}

func execute(a *app, args ...string) error {
	cmd := a.rootCmd()
	cmd.SetErr(io.Discard)
	cmd.SetArgs(args)
	return cmd.Execute()
}

func TestDocumentCommand(t *testing.T) {
	a, out := newTestApp(t, "  The Fed will act.  ")
	require.NoError(t, execute(a, "document", "--title", "Fed"))

	var doc models.Document
	require.NoError(t, json.Unmarshal(out.Bytes(), &doc))
	require.Equal(t, models.DocumentSchema, doc.Schema)
	require.Equal(t, "The Fed will act.", doc.Content.Text)
	require.Equal(t, "Fed", *doc.Meta.Title)
	require.Nil(t, doc.Meta.URL)
	require.Equal(t, "2024-05-01T08:00:00Z", doc.Meta.CreatedAt)

	a, _ = newTestApp(t, "   ")
	require.ErrorIs(t, execute(a, "document"), document.ErrEmptyText)
}

func TestAnalyzeCommand(t *testing.T) {
	dir := t.TempDir()
	docPath := filepath.Join(dir, "document.json")
	doc, err := document.New("Acme Widgets may expand to Ohio on 2024-06-01.", "", "", time.Now())
	require.NoError(t, err)
	require.NoError(t, document.WriteJSON(docPath, doc))

	a, _ := newTestApp(t, "")
	outPath := filepath.Join(dir, "analysis.json")
	require.NoError(t, execute(a, "analyze", docPath, "-o", outPath))

	var analysis models.Analysis
	require.NoError(t, document.ReadJSON(outPath, &analysis))
	require.Equal(t, models.AnalysisSchema, analysis.Schema)
	require.Equal(t, []string{"2024-06-01"}, analysis.Facts.Dates)
	require.Equal(t, processing.Digest(doc.Content.Text), analysis.Hash)

	a, out := newTestApp(t, "")
	require.NoError(t, execute(a, "analyze", docPath, "--entity-model"))
	require.NoError(t, json.Unmarshal(out.Bytes(), &analysis))
	require.Equal(t, []string{"Acme Widgets"}, analysis.Facts.Entities.ORG)
	require.Equal(t, []string{"Ohio"}, analysis.Facts.Entities.GPE)
	require.Empty(t, analysis.Facts.Entities.PERSON)

	a, _ = newTestApp(t, `{"schema":"document:v2","content":{"text":"x"}}`)
	require.ErrorIs(t, execute(a, "analyze"), processing.ErrValidation)
}

func TestSummarizeCommand(t *testing.T) {
	analysis, err := processing.NewAnalyzer().Analyze(models.Document{
		Schema:  models.DocumentSchema,
		Content: models.DocumentContent{Text: "Rates will rise."},
	})
	require.NoError(t, err)
	data, err := json.Marshal(analysis)
	require.NoError(t, err)

	a, out := newTestApp(t, string(data))
	require.NoError(t, execute(a, "summarize", "--format", "html"))
	require.Equal(t, "<p>Rates are going up.</p>\n", out.String())

	a, _ = newTestApp(t, string(data))
	require.Error(t, execute(a, "summarize", "--tier", "tier9"))

	a, _ = newTestApp(t, `{"schema":"document:v1"}`)
	require.ErrorIs(t, execute(a, "summarize"), summarize.ErrInvalidAnalysis)
}

func TestRunCommandWritesArtifacts(t *testing.T) {
	dir := t.TempDir()
	input := filepath.Join(dir, "input.txt")
	require.NoError(t, os.WriteFile(input, []byte("Rates will rise.\nMarkets may wobble."), 0o644))

	outDir := filepath.Join(dir, "out")
	a, out := newTestApp(t, "")
	require.NoError(t, execute(a, "run", input, "--dir", outDir, "--format", "html", "--title", "Rates"))
	require.Equal(t, outDir+"\n", out.String())

	var doc models.Document
	require.NoError(t, document.ReadJSON(filepath.Join(outDir, "document.json"), &doc))
	require.Equal(t, "Rates", *doc.Meta.Title)

	var analysis models.Analysis
	require.NoError(t, document.ReadJSON(filepath.Join(outDir, "analysis.json"), &analysis))
	require.Equal(t, 2, analysis.Stats.Lines)
	require.Equal(t, 0.5, analysis.Modality.StanceIndex)

	html, err := os.ReadFile(filepath.Join(outDir, "llm_output.html"))
	require.NoError(t, err)
	require.Equal(t, "<p>Rates are going up.</p>\n", string(html))
	require.NoFileExists(t, filepath.Join(outDir, "llm_output.txt"))
}

func TestRunCommandFromURL(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.Header().Set("Content-Type", "text/html")
		_, _ = w.Write([]byte(`<html><head><title>Rate call</title></head><body><nav>menu</nav><article><p>The Federal Reserve will hold rates.</p></article></body></html>`))
	}))
	defer srv.Close()

	outDir := t.TempDir()
	t.Setenv("SQLITE_PATH", filepath.Join(outDir, "events.db"))
	a, _ := newTestApp(t, "")
	require.NoError(t, execute(a, "run", srv.URL, "--dir", outDir, "--skip-summary", "--store"))

	var doc models.Document
	require.NoError(t, document.ReadJSON(filepath.Join(outDir, "document.json"), &doc))
	require.Equal(t, "Rate call", *doc.Meta.Title)
	require.Equal(t, srv.URL, *doc.Meta.URL)
	require.Equal(t, "The Federal Reserve will hold rates.", doc.Content.Text)

	require.FileExists(t, filepath.Join(outDir, "analysis.json"))
	require.FileExists(t, filepath.Join(outDir, "events.db"))
	require.NoFileExists(t, filepath.Join(outDir, "llm_output.txt"))
}

type badEntityGenerator struct{}

func (badEntityGenerator) Generate(context.Context, string, string) (string, error) {
	return "no entities here", nil
}

func TestAnalyzeEntityModelFallsBackToConfiguredLexicon(t *testing.T) {
	dir := t.TempDir()
	lexPath := filepath.Join(dir, "lexicon.yaml")
	require.NoError(t, os.WriteFile(lexPath, []byte("org_keywords: [widgets]\n"), 0o644))
	docPath := filepath.Join(dir, "document.json")
	doc, err := document.New("Acme Widgets may expand.", "", "", time.Now())
	require.NoError(t, err)
	require.NoError(t, document.WriteJSON(docPath, doc))

	a, out := newTestApp(t, "")
	t.Setenv("NLP_LEXICON_FILE", lexPath)
	a.generator = func() (summarize.Generator, *config.Summarizer, error) {
		return badEntityGenerator{}, &config.Summarizer{Timeout: time.Second}, nil
	}
	require.NoError(t, execute(a, "analyze", docPath, "--entity-model"))

	var analysis models.Analysis
	require.NoError(t, json.Unmarshal(out.Bytes(), &analysis))
	require.Equal(t, []string{"Acme Widgets"}, analysis.Facts.Entities.ORG)
	require.Empty(t, analysis.Facts.Entities.PERSON)
}
