// Package ingest fetches a web page and extracts its readable text.
package ingest

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/PuerkitoBio/goquery"

	"github.com/DeafMist/noise-to-signal/internal/document"
	"github.com/DeafMist/noise-to-signal/internal/models"
)

const (
	Version   = "ingest:1.0.0"
	UserAgent = "NoiseToSignal/ingest-1.0"

	maxPageBytes = 10 << 20
)

// Payload is the extracted page before it becomes a document.
type Payload struct {
	URL        string    `json:"url"`
	IngestedAt time.Time `json:"ingested_at"`
	Title      string    `json:"title"`
	HTMLBytes  int       `json:"html_bytes"`
	Text       string    `json:"text"`
	Hash       string    `json:"hash"`
	Version    string    `json:"version"`
}

// Document wraps the payload into a document:v1 record.
func (p Payload) Document() (models.Document, error) {
	return document.New(p.Text, p.Title, p.URL, p.IngestedAt)
}

// Fetcher downloads pages over HTTP.
type Fetcher struct {
	Client *http.Client
	now    func() time.Time
}

// NewFetcher returns a Fetcher with a 15 second timeout.
func NewFetcher() *Fetcher {
	return &Fetcher{Client: &http.Client{Timeout: 15 * time.Second}, now: time.Now}
}

// Fetch downloads url and extracts its main text.
func (f *Fetcher) Fetch(ctx context.Context, url string) (*Payload, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, fmt.Errorf("build request: %w", err)
	}
	req.Header.Set("User-Agent", UserAgent)

	client := f.Client
	if client == nil {
		client = http.DefaultClient
	}
	res, err := client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("fetch %s: %w", url, err)
	}
	defer res.Body.Close()

	if res.StatusCode < 200 || res.StatusCode >= 300 {
		return nil, fmt.Errorf("fetch %s: unexpected status %s", url, res.Status)
	}

	body, err := io.ReadAll(io.LimitReader(res.Body, maxPageBytes))
	if err != nil {
		return nil, fmt.Errorf("read body: %w", err)
	}

	title, text, err := Extract(string(body))
	if err != nil {
		return nil, err
	}
	if text == "" {
		return nil, fmt.Errorf("fetch %s: no readable text", url)
	}

	now := time.Now
	if f.now != nil {
		now = f.now
	}

	sum := sha256.Sum256([]byte(text))
	return &Payload{
		URL:        url,
		IngestedAt: now().UTC(),
		Title:      title,
		HTMLBytes:  len(body),
		Text:       text,
		Hash:       models.HashPrefix + hex.EncodeToString(sum[:]),
		Version:    Version,
	}, nil
}

const blockSelector = "h1, h2, h3, h4, h5, h6, p, li, blockquote, pre, td, figcaption"

// Extract returns the page title and its main content, one block per line.
func Extract(html string) (string, string, error) {
	doc, err := goquery.NewDocumentFromReader(strings.NewReader(html))
	if err != nil {
		return "", "", fmt.Errorf("parse html: %w", err)
	}

	title := extractTitle(doc)
	doc.Find("script, style, noscript, nav, footer, aside, header, form").Remove()

	content := doc.Find("article").First()
	if content.Length() == 0 {
		content = doc.Find("main").First()
	}
	if content.Length() == 0 {
		content = doc.Find("body")
	}

	var lines []string
	blocks := content.Find(blockSelector)
	blocks.Each(func(_ int, s *goquery.Selection) {
		// Nested blocks (p inside li, say) are emitted by their innermost element.
		if s.Find(blockSelector).Length() > 0 {
			return
		}
		if line := strings.Join(strings.Fields(s.Text()), " "); line != "" {
			lines = append(lines, line)
		}
	})
	if len(lines) == 0 {
		for _, line := range strings.Split(content.Text(), "\n") {
			if line = strings.TrimSpace(line); line != "" {
				lines = append(lines, line)
			}
		}
	}

	return title, strings.Join(lines, "\n"), nil
}

func extractTitle(doc *goquery.Document) string {
	if og, ok := doc.Find("meta[property='og:title']").Attr("content"); ok && strings.TrimSpace(og) != "" {
		return strings.TrimSpace(og)
	}
	if title := strings.TrimSpace(doc.Find("title").First().Text()); title != "" {
		return title
	}
	return strings.TrimSpace(doc.Find("h1").First().Text())
}
