package store

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/DeafMist/noise-to-signal/internal/models"
)

func openMemory(t *testing.T) *Store {
	t.Helper()
	s, err := Open(":memory:")
	require.NoError(t, err)
	t.Cleanup(func() { s.Close() })
	return s
}

func sampleAnalysis() models.Analysis {
	return models.Analysis{
		Schema: models.AnalysisSchema,
		Facts: models.FactPack{
			Tickers:  []string{"AAPL", "MSFT"},
			Entities: models.Entities{ORG: []string{"Federal Reserve"}, PERSON: []string{"Jane Doe"}, GPE: []string{}},
		},
		Modality: models.Modality{
			Commit:      []models.TermCount{{Term: "will", Count: 3}},
			Hedges:      []models.TermCount{{Term: "may", Count: 1}},
			StanceIndex: 0.75,
		},
		Hash:    "sha256:deadbeef",
		Version: models.AnalysisVersion,
	}
}

func TestSaveAndByHash(t *testing.T) {
	s := openMemory(t)
	ctx := context.Background()

	ev, err := s.Save(ctx, "raw text", "cli", sampleAnalysis())
	require.NoError(t, err)
	require.NotEmpty(t, ev.ID)
	require.Equal(t, 0.5, ev.Stance)
	require.Equal(t, "strong_commit", ev.Label)

	got, err := s.ByHash(ctx, "sha256:deadbeef")
	require.NoError(t, err)
	require.Equal(t, ev.ID, got.ID)
	require.Equal(t, "cli", got.Source)
	require.Equal(t, []string{"AAPL", "MSFT"}, got.Tickers)
	require.Equal(t, []string{"Federal Reserve"}, got.Entities.ORG)
	require.Equal(t, models.AnalysisVersion, got.ModelVersion)

	n, err := s.Count(ctx)
	require.NoError(t, err)
	require.Equal(t, int64(1), n)

	_, err = s.ByHash(ctx, "sha256:missing")
	require.ErrorIs(t, err, ErrNotFound)
}

func TestDeleteOlderThan(t *testing.T) {
	s := openMemory(t)
	ctx := context.Background()

	base := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	s.now = func() time.Time { return base }
	_, err := s.Save(ctx, "old", "", sampleAnalysis())
	require.NoError(t, err)

	s.now = func() time.Time { return base.Add(48 * time.Hour) }
	_, err = s.Save(ctx, "new", "", sampleAnalysis())
	require.NoError(t, err)

	deleted, err := s.DeleteOlderThan(ctx, 24*time.Hour)
	require.NoError(t, err)
	require.Equal(t, int64(1), deleted)

	n, err := s.Count(ctx)
	require.NoError(t, err)
	require.Equal(t, int64(1), n)
}

func TestLabel(t *testing.T) {
	tests := []struct {
		score float64
		want  string
	}{
		{1, "strong_commit"},
		{0.3, "commit"},
		{0, "neutral"},
		{-0.2, "hedge"},
		{-0.9, "strong_hedge"},
	}
	for _, tt := range tests {
		require.Equal(t, tt.want, Label(tt.score), "score %v", tt.score)
	}
	require.Equal(t, 0.0, StanceScore(models.Modality{}))
}
