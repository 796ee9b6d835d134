package main

import (
	"bytes"
	"context"
	"errors"
	"log/slog"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/DeafMist/noise-to-signal/internal/config"
)

type stubIndexPurger struct {
	maxAge    time.Duration
	batchSize int
	err       error
}

func (s *stubIndexPurger) DeleteOlderThan(_ context.Context, maxAge time.Duration, batchSize int) (int64, error) {
	s.maxAge, s.batchSize = maxAge, batchSize
	return 3, s.err
}

type stubStorePurger struct {
	calls int
	err   error
}

func (s *stubStorePurger) DeleteOlderThan(context.Context, time.Duration) (int64, error) {
	s.calls++
	return 2, s.err
}

func TestRunOncePurgesBoth(t *testing.T) {
	var buf bytes.Buffer
	log := slog.New(slog.NewTextHandler(&buf, nil))
	cfg := &config.Retention{MaxAge: 48 * time.Hour, BatchSize: 100}

	idx := &stubIndexPurger{}
	st := &stubStorePurger{}
	runOnce(context.Background(), log, idx, st, cfg)

	require.Equal(t, 48*time.Hour, idx.maxAge)
	require.Equal(t, 100, idx.batchSize)
	require.Equal(t, 1, st.calls)
	require.Contains(t, buf.String(), "store retention completed")
}

func TestRunOnceContinuesAfterIndexFailure(t *testing.T) {
	var buf bytes.Buffer
	log := slog.New(slog.NewTextHandler(&buf, nil))
	cfg := &config.Retention{MaxAge: time.Hour, BatchSize: 10}

	st := &stubStorePurger{}
	runOnce(context.Background(), log, &stubIndexPurger{err: errors.New("es down")}, st, cfg)

	require.Equal(t, 1, st.calls)
	require.Contains(t, buf.String(), "index retention failed")
	require.Contains(t, buf.String(), "es down")
}
