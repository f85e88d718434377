// Package store journals orchestrator sessions in SQLite so a conversation
// can be listed and resumed later.
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

	"github.com/cyber-nic/scaffold/libs/orchestrator"
	"github.com/rs/zerolog/log"
	_ "modernc.org/sqlite"
)

var ErrNotFound = errors.New("session not found")

// Entry is the summary row of a stored session.
type Entry struct {
	ID        string             `json:"id"`
	Prompt    string             `json:"prompt"`
	Phase     orchestrator.State `json:"phase"`
	CreatedAt time.Time          `json:"createdAt"`
	UpdatedAt time.Time          `json:"updatedAt"`
}

type Store struct {
	db   *sql.DB
	path string
	now  func() time.Time
}

// Open opens or creates the database at path.
func Open(path string) (*Store, error) {
	if dir := filepath.Dir(path); dir != "" {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return nil, err
		}
	}
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, err
	}
	if err := migrate(db); err != nil {
		_ = db.Close()
		return nil, err
	}
	log.Debug().Str("path", path).Msg("store opened")
	return &Store{db: db, path: path, now: time.Now}, nil
}

func migrate(db *sql.DB) error {
	statements := []string{
		`PRAGMA journal_mode=WAL;`,
		`CREATE TABLE IF NOT EXISTS sessions (
			id TEXT PRIMARY KEY,
			prompt TEXT NOT NULL DEFAULT '',
			phase TEXT NOT NULL DEFAULT '',
			snapshot_json TEXT NOT NULL,
			created_at INTEGER NOT NULL,
			updated_at INTEGER NOT NULL
		);`,
		`CREATE INDEX IF NOT EXISTS sessions_updated ON sessions (updated_at DESC);`,
	}
	for _, stmt := range statements {
		if _, err := db.Exec(stmt); err != nil {
			return fmt.Errorf("store migration failed: %w", err)
		}
	}
	return nil
}

func (s *Store) Close() error {
	if s == nil || s.db == nil {
		return nil
	}
	return s.db.Close()
}

// Save upserts snap under id. The prompt and creation time of an existing
// row are kept.
func (s *Store) Save(ctx context.Context, id, prompt string, snap orchestrator.Snapshot) error {
	data, err := json.Marshal(snap)
	if err != nil {
		return fmt.Errorf("encode snapshot: %w", err)
	}
	now := s.now().UnixNano()
	_, err = s.db.ExecContext(ctx, `INSERT INTO sessions (id, prompt, phase, snapshot_json, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?, ?)
		ON CONFLICT(id) DO UPDATE SET
			prompt = CASE WHEN sessions.prompt = '' THEN excluded.prompt ELSE sessions.prompt END,
			phase = excluded.phase,
			snapshot_json = excluded.snapshot_json,
			updated_at = excluded.updated_at`,
		id, prompt, string(snap.State), string(data), now, now)
	if err != nil {
		return fmt.Errorf("save session %s: %w", id, err)
	}
	return nil
}

// Load returns the stored entry and snapshot for id.
func (s *Store) Load(ctx context.Context, id string) (Entry, orchestrator.Snapshot, error) {
	var (
		e       Entry
		snap    orchestrator.Snapshot
		phase   string
		data    string
		created int64
		updated int64
	)
	err := s.db.QueryRowContext(ctx,
		`SELECT id, prompt, phase, snapshot_json, created_at, updated_at FROM sessions WHERE id = ?`, id).
		Scan(&e.ID, &e.Prompt, &phase, &data, &created, &updated)
	if errors.Is(err, sql.ErrNoRows) {
		return e, snap, fmt.Errorf("%w: %s", ErrNotFound, id)
	}
	if err != nil {
		return e, snap, err
	}
	if err := json.Unmarshal([]byte(data), &snap); err != nil {
		return e, snap, fmt.Errorf("decode snapshot %s: %w", id, err)
	}
	e.Phase = orchestrator.State(phase)
	e.CreatedAt = time.Unix(0, created)
	e.UpdatedAt = time.Unix(0, updated)
	return e, snap, nil
}

// List returns every session, most recently updated first.
func (s *Store) List(ctx context.Context) ([]Entry, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT id, prompt, phase, created_at, updated_at FROM sessions ORDER BY updated_at DESC, id ASC`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	entries := []Entry{}
	for rows.Next() {
		var (
			e       Entry
			phase   string
			created int64
			updated int64
		)
		if err := rows.Scan(&e.ID, &e.Prompt, &phase, &created, &updated); err != nil {
			return nil, err
		}
		e.Phase = orchestrator.State(phase)
		e.CreatedAt = time.Unix(0, created)
		e.UpdatedAt = time.Unix(0, updated)
		entries = append(entries, e)
	}
	return entries, rows.Err()
}

func (s *Store) Path() string { return s.path }
