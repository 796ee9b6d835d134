// Package summarize turns an analysis into a short generated explanation.
package summarize

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"

	"github.com/DeafMist/noise-to-signal/internal/models"
)

// ErrInvalidAnalysis is returned for records that are not analysis:v1 or
// carry no sections.
var ErrInvalidAnalysis = errors.New("invalid analysis")

// Generator produces text for a system and user prompt.
type Generator interface {
	Generate(ctx context.Context, system, prompt string) (string, error)
}

// Service builds prompts and post-processes generator output.
type Service struct {
	gen Generator
	log *slog.Logger
}

func NewService(gen Generator, log *slog.Logger) *Service {
	if log == nil {
		log = slog.Default()
	}
	return &Service{gen: gen, log: log}
}

// Summarize explains analysis according to opts. HTML output is sanitized.
func (s *Service) Summarize(ctx context.Context, analysis models.Analysis, opts Options) (string, error) {
	if err := validateAnalysis(analysis); err != nil {
		return "", err
	}
	opts, err := opts.Validate()
	if err != nil {
		return "", err
	}

	out, err := s.gen.Generate(ctx, SystemPrompt(opts), BuildPrompt(analysis, opts))
	if err != nil {
		return "", fmt.Errorf("generate summary: %w", err)
	}
	out = strings.TrimSpace(out)
	if opts.HTML() {
		out = SanitizeHTML(out)
	}

	s.log.Debug("summary generated",
		slog.String("hash", analysis.Hash),
		slog.String("tier", opts.Tier),
		slog.String("format", opts.Format),
		slog.Int("chars", len(out)),
	)
	return out, nil
}

func validateAnalysis(a models.Analysis) error {
	if a.Schema != models.AnalysisSchema {
		return fmt.Errorf("%w: schema must be %q", ErrInvalidAnalysis, models.AnalysisSchema)
	}
	if len(a.Sections) == 0 {
		return fmt.Errorf("%w: sections are required", ErrInvalidAnalysis)
	}
	return nil
}
