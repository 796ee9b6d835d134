// Package render draws an analysis as a standalone HTML page.
package render

import (
	"html/template"
	"io"
	"strings"

	"github.com/DeafMist/noise-to-signal/internal/models"
	"github.com/DeafMist/noise-to-signal/internal/summarize"
)

const headlineWords = 10

var funcs = template.FuncMap{
	"join": func(values []string) string { return strings.Join(values, ", ") },
}

var pageTmpl = template.Must(template.New("analysis").Funcs(funcs).Parse(`<!DOCTYPE html>
<html lang="en">
<head><meta charset="utf-8"><title>{{.Headline}}</title></head>
<body>
<h1>{{.Headline}}</h1>
{{with .A.Meta.URL}}<p><a href="{{.}}">{{.}}</a></p>{{end}}
<p>{{.A.Stats.Words}} words · {{.A.Stats.ReadingMinutes}} min read · stance {{printf "%.2f" .A.Modality.StanceIndex}}</p>
{{if .Summary}}<section class="summary">{{.Summary}}</section>{{end}}
{{if .A.Keywords}}<h2>Keywords</h2><ul>{{range .A.Keywords}}<li>{{.}}</li>{{end}}</ul>{{end}}
<h2>Facts</h2>
<dl>
{{range .Facts}}<dt>{{.Name}}</dt><dd>{{join .Values}}</dd>
{{end}}</dl>
{{if .A.Quotes}}<h2>Quotes</h2>{{range .A.Quotes}}<blockquote>{{.Text}}</blockquote>{{end}}{{end}}
<h2>Modality</h2>
<ul>
{{range .A.Modality.Hedges}}<li>hedge: {{.Term}} × {{.Count}}</li>{{end}}
{{range .A.Modality.Commit}}<li>commit: {{.Term}} × {{.Count}}</li>{{end}}
</ul>
<h2>Text</h2>
{{range .A.Sections}}<p>{{.Text}}</p>
{{end}}<footer><code>{{.A.Hash}}</code> · {{.A.Version}} · {{.A.Meta.AnalyzedAt}}</footer>
</body>
</html>
`))

type fact struct {
	Name   string
	Values []string
}

type page struct {
	A        models.Analysis
	Headline string
	Summary  template.HTML
	Facts    []fact
}

// Page writes the analysis page. summaryHTML is sanitized before embedding.
func Page(w io.Writer, a models.Analysis, summaryHTML string) error {
	facts := []fact{
		{"Dates", a.Facts.Dates},
		{"Money", a.Facts.Money},
		{"Percents", a.Facts.Percents},
		{"Tickers", a.Facts.Tickers},
		{"Organizations", a.Facts.Entities.ORG},
		{"People", a.Facts.Entities.PERSON},
		{"Places", a.Facts.Entities.GPE},
	}
	return pageTmpl.Execute(w, page{
		A:        a,
		Headline: Headline(a),
		Summary:  template.HTML(summarize.SanitizeHTML(summaryHTML)),
		Facts:    facts,
	})
}

// Headline returns the title, or the first sentence of the text capped at
// ten words when the source had no title.
func Headline(a models.Analysis) string {
	if a.Meta.Title != nil && strings.TrimSpace(*a.Meta.Title) != "" {
		return strings.TrimSpace(*a.Meta.Title)
	}
	if len(a.Sections) == 0 {
		return "Untitled"
	}

	text := a.Sections[0].Text
	if end := strings.IndexAny(text, ".!?"); end > 0 {
		text = text[:end]
	}
	words := strings.Fields(text)
	if len(words) == 0 {
		return "Untitled"
	}
	if len(words) > headlineWords {
		return strings.Join(words[:headlineWords], " ") + "..."
	}
	return strings.Join(words, " ")
}
