package summarize

import "github.com/microcosm-cc/bluemonday"

var htmlPolicy = func() *bluemonday.Policy {
	p := bluemonday.NewPolicy()
	p.AllowElements("h3", "p", "ul", "li", "strong", "em")
	return p
}()

// SanitizeHTML strips everything but the small tag set the summarizer is
// asked to produce.
func SanitizeHTML(s string) string {
	return htmlPolicy.Sanitize(s)
}
