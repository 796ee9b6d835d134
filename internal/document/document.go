// Package document builds document:v1 records from plain text and reads and
// writes the JSON artifacts exchanged between pipeline stages.
package document

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/DeafMist/noise-to-signal/internal/models"
)

// ErrEmptyText is returned when the text is blank after trimming.
var ErrEmptyText = errors.New("text is empty after trimming")

const timestampLayout = "2006-01-02T15:04:05Z"

// New wraps plain text into a document:v1 record. Blank title and url become null.
func New(text, title, url string, now time.Time) (models.Document, error) {
	text = strings.TrimSpace(text)
	if text == "" {
		return models.Document{}, ErrEmptyText
	}
	return models.Document{
		Schema: models.DocumentSchema,
		Meta: models.DocumentMeta{
			Title:     optional(title),
			URL:       optional(url),
			CreatedAt: now.UTC().Format(timestampLayout),
		},
		Content: models.DocumentContent{Text: text},
	}, nil
}

func optional(s string) *string {
	s = strings.TrimSpace(s)
	if s == "" {
		return nil
	}
	return &s
}

// Marshal encodes v the way artifacts are stored: two-space indent, no HTML
// escaping, trailing newline.
func Marshal(v any) ([]byte, error) {
	var buf bytes.Buffer
	enc := json.NewEncoder(&buf)
	enc.SetEscapeHTML(false)
	enc.SetIndent("", "  ")
	if err := enc.Encode(v); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

// WriteJSON writes v to path, creating parent directories.
func WriteJSON(path string, v any) error {
	data, err := Marshal(v)
	if err != nil {
		return fmt.Errorf("marshal %s: %w", filepath.Base(path), err)
	}
	if dir := filepath.Dir(path); dir != "" {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return fmt.Errorf("create %s: %w", dir, err)
		}
	}
	if err := os.WriteFile(path, data, 0o644); err != nil {
		return fmt.Errorf("write %s: %w", path, err)
	}
	return nil
}

// ReadJSON decodes the artifact at path into v.
func ReadJSON(path string, v any) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("read %s: %w", path, err)
	}
	if err := json.Unmarshal(data, v); err != nil {
		return fmt.Errorf("decode %s: %w", path, err)
	}
	return nil
}
