// Package sqlite persists turn records and playbooks in a SQLite database
// using the pure-Go modernc.org/sqlite driver. Playbooks are stored as one
// JSON document per user; turn records are relational for time-ordered reads.
package sqlite

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	_ "modernc.org/sqlite"

	"github.com/kokoro-ai/kokoro/core"
)

const schema = `
CREATE TABLE IF NOT EXISTS turns (
	id         TEXT PRIMARY KEY,
	turn_id    TEXT NOT NULL,
	user_id    TEXT NOT NULL,
	session_id TEXT,
	role       TEXT NOT NULL,
	text       TEXT NOT NULL,
	mode       TEXT,
	emotion    TEXT,
	tone       TEXT,
	created_at TIMESTAMP NOT NULL
);
CREATE INDEX IF NOT EXISTS idx_turns_user_created ON turns(user_id, created_at);

CREATE TABLE IF NOT EXISTS playbooks (
	user_id TEXT PRIMARY KEY,
	doc     TEXT NOT NULL
);
`

// Store implements core.TurnStore and core.PlaybookStore over a SQLite file.
type Store struct {
	db *sql.DB
}

// Open opens (creating if needed) the database at path and applies the schema.
// Use ":memory:" for an ephemeral database.
func Open(path string) (*Store, error) {
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("sqlite: open %s: %w", path, err)
	}
	// the driver is safe for one writer; serialize access at the pool level
	db.SetMaxOpenConns(1)
	if _, err := db.Exec(schema); err != nil {
		db.Close()
		return nil, fmt.Errorf("sqlite: apply schema: %w", err)
	}
	return &Store{db: db}, nil
}

// Close releases the underlying database handle.
func (s *Store) Close() error { return s.db.Close() }

// AppendTurn implements core.TurnStore.
func (s *Store) AppendTurn(ctx context.Context, rec core.TurnRecord) error {
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO turns (id, turn_id, user_id, session_id, role, text, mode, emotion, tone, created_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		rec.ID, rec.TurnID, rec.UserID, rec.SessionID, rec.Role, rec.Text,
		rec.Mode, rec.Emotion, rec.Tone, rec.CreatedAt.UTC().Format(time.RFC3339Nano))
	if err != nil {
		return fmt.Errorf("sqlite: append turn %s: %w", rec.ID, err)
	}
	return nil
}

// RecentTurns implements core.TurnStore, returning up to limit records in
// chronological order.
func (s *Store) RecentTurns(ctx context.Context, userID string, limit int) ([]core.TurnRecord, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT id, turn_id, user_id, session_id, role, text, mode, emotion, tone, created_at
		 FROM turns WHERE user_id = ? ORDER BY created_at DESC, id DESC LIMIT ?`,
		userID, limit)
	if err != nil {
		return nil, fmt.Errorf("sqlite: recent turns for %s: %w", userID, err)
	}
	defer rows.Close()

	var out []core.TurnRecord
	for rows.Next() {
		var rec core.TurnRecord
		var createdAt string
		if err := rows.Scan(&rec.ID, &rec.TurnID, &rec.UserID, &rec.SessionID, &rec.Role,
			&rec.Text, &rec.Mode, &rec.Emotion, &rec.Tone, &createdAt); err != nil {
			return nil, fmt.Errorf("sqlite: scan turn: %w", err)
		}
		if rec.CreatedAt, err = time.Parse(time.RFC3339Nano, createdAt); err != nil {
			return nil, fmt.Errorf("sqlite: parse turn timestamp: %w", err)
		}
		out = append(out, rec)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("sqlite: iterate turns: %w", err)
	}
	// newest-first from the query; flip to chronological
	for i, j := 0, len(out)-1; i < j; i, j = i+1, j-1 {
		out[i], out[j] = out[j], out[i]
	}
	return out, nil
}

// ActiveUsers lists every user with at least one turn record.
func (s *Store) ActiveUsers(ctx context.Context) ([]string, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT DISTINCT user_id FROM turns ORDER BY user_id`)
	if err != nil {
		return nil, fmt.Errorf("sqlite: list users: %w", err)
	}
	defer rows.Close()

	var users []string
	for rows.Next() {
		var u string
		if err := rows.Scan(&u); err != nil {
			return nil, fmt.Errorf("sqlite: scan user: %w", err)
		}
		users = append(users, u)
	}
	return users, rows.Err()
}

// Playbook implements core.PlaybookStore.
func (s *Store) Playbook(ctx context.Context, userID string) (*core.Playbook, error) {
	var doc string
	err := s.db.QueryRowContext(ctx, `SELECT doc FROM playbooks WHERE user_id = ?`, userID).Scan(&doc)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, core.ErrPlaybookNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("sqlite: load playbook for %s: %w", userID, err)
	}
	var pb core.Playbook
	if err := json.Unmarshal([]byte(doc), &pb); err != nil {
		return nil, fmt.Errorf("sqlite: decode playbook for %s: %w", userID, err)
	}
	return &pb, nil
}

// SavePlaybook implements core.PlaybookStore with an upsert.
func (s *Store) SavePlaybook(ctx context.Context, pb *core.Playbook) error {
	doc, err := json.Marshal(pb)
	if err != nil {
		return fmt.Errorf("sqlite: encode playbook for %s: %w", pb.UserID, err)
	}
	_, err = s.db.ExecContext(ctx,
		`INSERT INTO playbooks (user_id, doc) VALUES (?, ?)
		 ON CONFLICT(user_id) DO UPDATE SET doc = excluded.doc`,
		pb.UserID, string(doc))
	if err != nil {
		return fmt.Errorf("sqlite: save playbook for %s: %w", pb.UserID, err)
	}
	return nil
}

var (
	_ core.TurnStore     = (*Store)(nil)
	_ core.PlaybookStore = (*Store)(nil)
)
