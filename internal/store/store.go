// Package store persists raw texts and their analysis events in SQLite.
package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/google/uuid"
	_ "modernc.org/sqlite"

	"github.com/DeafMist/noise-to-signal/internal/models"
)

// ErrNotFound is returned when no event matches.
var ErrNotFound = errors.New("event not found")

const schema = `
CREATE TABLE IF NOT EXISTS raw_text(
	id     INTEGER PRIMARY KEY AUTOINCREMENT,
	ts     TEXT NOT NULL,
	source TEXT,
	text   TEXT NOT NULL
);
CREATE TABLE IF NOT EXISTS events(
	event_id      TEXT PRIMARY KEY,
	raw_id        INTEGER NOT NULL REFERENCES raw_text(id) ON DELETE CASCADE,
	hash          TEXT NOT NULL,
	tickers       TEXT NOT NULL,
	entities      TEXT NOT NULL,
	stance        REAL NOT NULL,
	label         TEXT NOT NULL,
	model_version TEXT NOT NULL
);
CREATE INDEX IF NOT EXISTS idx_events_hash ON events(hash);
`

// Event is the persisted subset of an analysis.
type Event struct {
	ID           string
	RawID        int64
	Timestamp    time.Time
	Source       string
	Hash         string
	Tickers      []string
	Entities     models.Entities
	Stance       float64
	Label        string
	ModelVersion string
}

// Store wraps a SQLite handle.
type Store struct {
	db  *sql.DB
	now func() time.Time
}

// Open opens (creating if needed) the database at path and applies the schema.
// Use ":memory:" for an ephemeral store.
func Open(path string) (*Store, error) {
	if path != ":memory:" {
		if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
			return nil, fmt.Errorf("create store dir: %w", err)
		}
	}

	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("open sqlite: %w", err)
	}
	db.SetMaxOpenConns(1)

	for _, pragma := range []string{"PRAGMA foreign_keys = ON", "PRAGMA busy_timeout = 10000"} {
		if _, err := db.Exec(pragma); err != nil {
			db.Close()
			return nil, fmt.Errorf("apply %q: %w", pragma, err)
		}
	}
	if _, err := db.Exec(schema); err != nil {
		db.Close()
		return nil, fmt.Errorf("apply schema: %w", err)
	}
	return &Store{db: db, now: time.Now}, nil
}

func (s *Store) Close() error {
	return s.db.Close()
}

// Save records the raw text and the event derived from its analysis in one
// transaction, returning the event.
func (s *Store) Save(ctx context.Context, rawText, source string, analysis models.Analysis) (*Event, error) {
	tickers, err := json.Marshal(analysis.Facts.Tickers)
	if err != nil {
		return nil, fmt.Errorf("marshal tickers: %w", err)
	}
	entities, err := json.Marshal(analysis.Facts.Entities)
	if err != nil {
		return nil, fmt.Errorf("marshal entities: %w", err)
	}

	score := StanceScore(analysis.Modality)
	ev := &Event{
		ID:           uuid.NewString(),
		Timestamp:    s.now().UTC().Truncate(time.Second),
		Source:       source,
		Hash:         analysis.Hash,
		Tickers:      analysis.Facts.Tickers,
		Entities:     analysis.Facts.Entities,
		Stance:       score,
		Label:        Label(score),
		ModelVersion: analysis.Version,
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, fmt.Errorf("begin tx: %w", err)
	}
	defer tx.Rollback()

	res, err := tx.ExecContext(ctx, `INSERT INTO raw_text(ts, source, text) VALUES (?, ?, ?)`,
		ev.Timestamp.Format(time.RFC3339), nullable(source), rawText)
	if err != nil {
		return nil, fmt.Errorf("insert raw text: %w", err)
	}
	if ev.RawID, err = res.LastInsertId(); err != nil {
		return nil, fmt.Errorf("raw text id: %w", err)
	}

	_, err = tx.ExecContext(ctx, `INSERT INTO events(event_id, raw_id, hash, tickers, entities, stance, label, model_version)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)`,
		ev.ID, ev.RawID, ev.Hash, string(tickers), string(entities), ev.Stance, ev.Label, ev.ModelVersion)
	if err != nil {
		return nil, fmt.Errorf("insert event: %w", err)
	}

	if err := tx.Commit(); err != nil {
		return nil, fmt.Errorf("commit: %w", err)
	}
	return ev, nil
}

// ByHash returns the most recent event recorded for an analysis hash.
func (s *Store) ByHash(ctx context.Context, hash string) (*Event, error) {
	row := s.db.QueryRowContext(ctx, `
		SELECT e.event_id, e.raw_id, r.ts, COALESCE(r.source, ''), e.hash, e.tickers, e.entities, e.stance, e.label, e.model_version
		FROM events e JOIN raw_text r ON r.id = e.raw_id
		WHERE e.hash = ?
		ORDER BY e.raw_id DESC LIMIT 1`, hash)

	var (
		ev                Event
		ts                string
		tickers, entities string
	)
	err := row.Scan(&ev.ID, &ev.RawID, &ts, &ev.Source, &ev.Hash, &tickers, &entities, &ev.Stance, &ev.Label, &ev.ModelVersion)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("query event: %w", err)
	}

	if ev.Timestamp, err = time.Parse(time.RFC3339, ts); err != nil {
		return nil, fmt.Errorf("parse ts: %w", err)
	}
	if err := json.Unmarshal([]byte(tickers), &ev.Tickers); err != nil {
		return nil, fmt.Errorf("decode tickers: %w", err)
	}
	if err := json.Unmarshal([]byte(entities), &ev.Entities); err != nil {
		return nil, fmt.Errorf("decode entities: %w", err)
	}
	return &ev, nil
}

// Count returns the number of stored events.
func (s *Store) Count(ctx context.Context) (int64, error) {
	var n int64
	if err := s.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM events`).Scan(&n); err != nil {
		return 0, fmt.Errorf("count events: %w", err)
	}
	return n, nil
}

// DeleteOlderThan removes raw texts (and, by cascade, their events) older than maxAge.
func (s *Store) DeleteOlderThan(ctx context.Context, maxAge time.Duration) (int64, error) {
	cutoff := s.now().Add(-maxAge).UTC().Format(time.RFC3339)
	res, err := s.db.ExecContext(ctx, `DELETE FROM raw_text WHERE ts <= ?`, cutoff)
	if err != nil {
		return 0, fmt.Errorf("delete old rows: %w", err)
	}
	return res.RowsAffected()
}

func nullable(s string) any {
	if s == "" {
		return nil
	}
	return s
}
