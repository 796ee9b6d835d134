package processing

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	"github.com/DeafMist/noise-to-signal/internal/models"
)

// ErrValidation matches every *ValidationError through errors.Is.
var ErrValidation = errors.New("invalid document")

// ValidationError reports a malformed or incomplete document.
type ValidationError struct {
	Field  string
	Reason string
}

func (e *ValidationError) Error() string {
	if e.Field == "" {
		return fmt.Sprintf("%s: %s", ErrValidation, e.Reason)
	}
	return fmt.Sprintf("%s: %s %s", ErrValidation, e.Field, e.Reason)
}

func (e *ValidationError) Is(target error) bool {
	return target == ErrValidation
}

// ValidateDocument checks the schema tag and that content.text has
// non-whitespace content.
func ValidateDocument(doc models.Document) error {
	if doc.Schema != models.DocumentSchema {
		return &ValidationError{Field: "schema", Reason: fmt.Sprintf("must be %q, got %q", models.DocumentSchema, doc.Schema)}
	}
	if strings.TrimSpace(doc.Content.Text) == "" {
		return &ValidationError{Field: "content.text", Reason: "must be a non-empty string"}
	}
	return nil
}

// DecodeDocument parses a document:v1 JSON record. Anything that is not a
// JSON object, or whose fields have the wrong types, is a ValidationError.
func DecodeDocument(data []byte) (models.Document, error) {
	trimmed := bytes.TrimSpace(data)
	if len(trimmed) == 0 || trimmed[0] != '{' {
		return models.Document{}, &ValidationError{Reason: "document must be a JSON object"}
	}

	if !json.Valid(trimmed) {
		return models.Document{}, &ValidationError{Reason: "document is not valid JSON"}
	}

	var envelope struct {
		Schema  any                        `json:"schema"`
		Content map[string]json.RawMessage `json:"content"`
	}
	if err := json.Unmarshal(trimmed, &envelope); err != nil {
		return models.Document{}, &ValidationError{Field: "content", Reason: "must be an object"}
	}
	if envelope.Schema != models.DocumentSchema {
		return models.Document{}, &ValidationError{Field: "schema", Reason: fmt.Sprintf("must be %q", models.DocumentSchema)}
	}
	if raw, ok := envelope.Content["text"]; !ok || len(raw) == 0 || raw[0] != '"' {
		return models.Document{}, &ValidationError{Field: "content.text", Reason: "must be a string"}
	}

	var doc models.Document
	if err := json.Unmarshal(trimmed, &doc); err != nil {
		return models.Document{}, &ValidationError{Reason: err.Error()}
	}
	return doc, ValidateDocument(doc)
}
