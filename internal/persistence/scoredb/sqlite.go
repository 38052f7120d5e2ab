// Package scoredb is the ranking store: cumulative scores keyed by player
// name plus a history of finished matches.
package scoredb

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"time"

	_ "modernc.org/sqlite"

	"kartetris.ai/internal/logging"
	"kartetris.ai/internal/protocol"
)

type Store struct {
	db  *sql.DB
	log *slog.Logger
}

// Match is one finished game as seen by the relay.
type Match struct {
	RoomID      string
	WinnerName  string
	LooserName  string
	WinnerScore int
	LooserScore int
	Reason      string
	RecordedAt  time.Time
}

var ErrEmptyName = errors.New("empty player name")

func Open(path string, logger *slog.Logger) (*Store, error) {
	if path == "" {
		return nil, fmt.Errorf("empty db path")
	}
	if path != ":memory:" {
		if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
			return nil, err
		}
	}

	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, err
	}
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)
	db.SetConnMaxLifetime(0)

	if err := initPragmas(db); err != nil {
		_ = db.Close()
		return nil, err
	}
	if err := initSchema(db); err != nil {
		_ = db.Close()
		return nil, err
	}
	return &Store{db: db, log: logging.OrDiscard(logger)}, nil
}

func initPragmas(db *sql.DB) error {
	pragmas := []string{
		"PRAGMA journal_mode=WAL;",
		"PRAGMA synchronous=NORMAL;",
		"PRAGMA busy_timeout=5000;",
		"PRAGMA temp_store=MEMORY;",
	}
	for _, p := range pragmas {
		if _, err := db.Exec(p); err != nil {
			return err
		}
	}
	return nil
}

func initSchema(db *sql.DB) error {
	stmts := []string{
		`CREATE TABLE IF NOT EXISTS scores (
			player_name TEXT PRIMARY KEY,
			score INTEGER NOT NULL DEFAULT 0,
			updated_at TEXT NOT NULL
		);`,
		`CREATE INDEX IF NOT EXISTS scores_score_idx ON scores(score DESC);`,
		`CREATE TABLE IF NOT EXISTS matches (
			id INTEGER PRIMARY KEY AUTOINCREMENT,
			room_id TEXT NOT NULL,
			winner_name TEXT NOT NULL,
			looser_name TEXT NOT NULL,
			winner_score INTEGER NOT NULL,
			looser_score INTEGER NOT NULL,
			reason TEXT NOT NULL DEFAULT '',
			recorded_at TEXT NOT NULL
		);`,
	}
	for _, s := range stmts {
		if _, err := db.Exec(s); err != nil {
			return err
		}
	}
	return nil
}

func (s *Store) Close() error { return s.db.Close() }

// Ping reports whether the database is reachable.
func (s *Store) Ping(ctx context.Context) error { return s.db.PingContext(ctx) }

// TopScores returns at most n entries, highest score first. A failing query
// after a successful ping is logged and yields an empty ranking.
func (s *Store) TopScores(ctx context.Context, n int) ([]protocol.RankingEntry, error) {
	if n <= 0 {
		n = 10
	}
	if err := s.db.PingContext(ctx); err != nil {
		return nil, fmt.Errorf("scoredb: connect: %w", err)
	}
	out, err := s.topScores(ctx, n)
	if err != nil {
		s.log.Error("retrieve top scores", "err", err)
		return []protocol.RankingEntry{}, nil
	}
	return out, nil
}

func (s *Store) topScores(ctx context.Context, n int) ([]protocol.RankingEntry, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT player_name, score FROM scores ORDER BY score DESC, player_name ASC LIMIT ?`, n)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	out := []protocol.RankingEntry{}
	for rows.Next() {
		var e protocol.RankingEntry
		if err := rows.Scan(&e.PlayerName, &e.Score); err != nil {
			return nil, err
		}
		out = append(out, e)
	}
	return out, rows.Err()
}

// UpdateScores adds both deltas in one transaction, creating missing players.
func (s *Store) UpdateScores(ctx context.Context, winnerName string, winnerScore int, looserName string, looserScore int) error {
	if strings.TrimSpace(winnerName) == "" || strings.TrimSpace(looserName) == "" {
		return ErrEmptyName
	}
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer func() { _ = tx.Rollback() }()

	now := time.Now().UTC().Format(time.RFC3339Nano)
	for _, u := range []struct {
		name  string
		delta int
	}{{winnerName, winnerScore}, {looserName, looserScore}} {
		if err := increment(ctx, tx, u.name, u.delta, now); err != nil {
			return fmt.Errorf("scoredb: update %q: %w", u.name, err)
		}
	}
	return tx.Commit()
}

// Adjust adds delta to one player's score.
func (s *Store) Adjust(ctx context.Context, name string, delta int) error {
	if strings.TrimSpace(name) == "" {
		return ErrEmptyName
	}
	return increment(ctx, s.db, name, delta, time.Now().UTC().Format(time.RFC3339Nano))
}

type execer interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
}

func increment(ctx context.Context, db execer, name string, delta int, now string) error {
	_, err := db.ExecContext(ctx,
		`INSERT INTO scores(player_name, score, updated_at) VALUES(?, ?, ?)
		 ON CONFLICT(player_name) DO UPDATE SET score = score + excluded.score, updated_at = excluded.updated_at`,
		name, delta, now)
	return err
}

// Delete removes a player. It reports whether a row existed.
func (s *Store) Delete(ctx context.Context, name string) (bool, error) {
	res, err := s.db.ExecContext(ctx, `DELETE FROM scores WHERE player_name = ?`, name)
	if err != nil {
		return false, err
	}
	n, err := res.RowsAffected()
	return n > 0, err
}

func (s *Store) RecordMatch(ctx context.Context, m Match) error {
	if m.RecordedAt.IsZero() {
		m.RecordedAt = time.Now()
	}
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO matches(room_id, winner_name, looser_name, winner_score, looser_score, reason, recorded_at)
		 VALUES(?, ?, ?, ?, ?, ?, ?)`,
		m.RoomID, m.WinnerName, m.LooserName, m.WinnerScore, m.LooserScore, m.Reason,
		m.RecordedAt.UTC().Format(time.RFC3339Nano))
	return err
}

// RecentMatches returns the newest matches first.
func (s *Store) RecentMatches(ctx context.Context, n int) ([]Match, error) {
	if n <= 0 {
		n = 20
	}
	rows, err := s.db.QueryContext(ctx,
		`SELECT room_id, winner_name, looser_name, winner_score, looser_score, reason, recorded_at
		 FROM matches ORDER BY id DESC LIMIT ?`, n)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []Match
	for rows.Next() {
		var (
			m  Match
			at string
		)
		if err := rows.Scan(&m.RoomID, &m.WinnerName, &m.LooserName, &m.WinnerScore, &m.LooserScore, &m.Reason, &at); err != nil {
			return nil, err
		}
		m.RecordedAt, _ = time.Parse(time.RFC3339Nano, at)
		out = append(out, m)
	}
	return out, rows.Err()
}
