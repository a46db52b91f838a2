package storage

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/google/uuid"
	_ "modernc.org/sqlite"
)

// SeatRow is one player seat of a persisted session. An empty ID means the
// seat is free.
type SeatRow struct {
	ID    string
	Guest bool
	Name  string
}

// SessionRow represents a session in the database.
type SessionRow struct {
	Code      string
	Player1   SeatRow
	Player2   SeatRow
	Status    string // "waiting", "playing", "finished"
	CreatedAt time.Time
	UpdatedAt time.Time
	StartedAt *time.Time
}

// Score is one persisted match result for a player. UserID is nil for
// guests.
type Score struct {
	ID           string    `json:"id"`
	UserID       *string   `json:"userId"`
	Username     string    `json:"username"`
	Score        int       `json:"score"`
	LinesCleared int       `json:"linesCleared"`
	SessionCode  string    `json:"sessionCode"`
	CreatedAt    time.Time `json:"createdAt"`
}

// ScoreStore persists match results and serves the leaderboard.
type ScoreStore interface {
	RecordScore(ctx context.Context, s Score) error
	TopScores(ctx context.Context, limit int) ([]Score, error)
}

// Store handles SQLite persistence.
type Store struct {
	db *sql.DB
}

// New opens (or creates) the database and runs migrations.
func New(path string) (*Store, error) {
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("open db: %w", err)
	}
	if path == ":memory:" {
		// Every pooled connection would otherwise get its own empty database.
		db.SetMaxOpenConns(1)
	}
	// WAL mode for better concurrent reads
	if _, err := db.Exec("PRAGMA journal_mode=WAL"); err != nil {
		db.Close()
		return nil, fmt.Errorf("set WAL: %w", err)
	}
	s := &Store{db: db}
	if err := s.migrate(); err != nil {
		db.Close()
		return nil, fmt.Errorf("migrate: %w", err)
	}
	return s, nil
}

func (s *Store) migrate() error {
	_, err := s.db.Exec(`
		CREATE TABLE IF NOT EXISTS sessions (
			code          TEXT PRIMARY KEY,
			player1_id    TEXT NOT NULL DEFAULT '',
			player1_guest INTEGER NOT NULL DEFAULT 0,
			player1_name  TEXT NOT NULL DEFAULT '',
			player2_id    TEXT NOT NULL DEFAULT '',
			player2_guest INTEGER NOT NULL DEFAULT 0,
			player2_name  TEXT NOT NULL DEFAULT '',
			status        TEXT NOT NULL DEFAULT 'waiting',
			created_at    DATETIME NOT NULL DEFAULT CURRENT_TIMESTAMP,
			updated_at    DATETIME NOT NULL DEFAULT CURRENT_TIMESTAMP,
			started_at    DATETIME
		);
		CREATE TABLE IF NOT EXISTS scores (
			id            TEXT PRIMARY KEY,
			user_id       TEXT,
			username      TEXT NOT NULL,
			score         INTEGER NOT NULL,
			lines_cleared INTEGER NOT NULL,
			session_code  TEXT NOT NULL,
			created_at    DATETIME NOT NULL DEFAULT CURRENT_TIMESTAMP
		);
		CREATE INDEX IF NOT EXISTS scores_score_idx ON scores (score DESC);
	`)
	return err
}

// SaveSession upserts a session row.
func (s *Store) SaveSession(row SessionRow) error {
	var started sql.NullTime
	if row.StartedAt != nil {
		started = sql.NullTime{Time: row.StartedAt.UTC(), Valid: true}
	}
	_, err := s.db.Exec(`
		INSERT INTO sessions (code, player1_id, player1_guest, player1_name,
			player2_id, player2_guest, player2_name, status, created_at, updated_at, started_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(code) DO UPDATE SET
			player1_id = excluded.player1_id, player1_guest = excluded.player1_guest,
			player1_name = excluded.player1_name, player2_id = excluded.player2_id,
			player2_guest = excluded.player2_guest, player2_name = excluded.player2_name,
			status = excluded.status, updated_at = excluded.updated_at,
			started_at = excluded.started_at
	`,
		row.Code, row.Player1.ID, row.Player1.Guest, row.Player1.Name,
		row.Player2.ID, row.Player2.Guest, row.Player2.Name,
		row.Status, row.CreatedAt.UTC(), row.UpdatedAt.UTC(), started,
	)
	return err
}

const sessionColumns = `code, player1_id, player1_guest, player1_name,
	player2_id, player2_guest, player2_name, status, created_at, updated_at, started_at`

type scanner interface {
	Scan(dest ...any) error
}

func scanSession(sc scanner) (SessionRow, error) {
	var sr SessionRow
	var started sql.NullTime
	err := sc.Scan(&sr.Code,
		&sr.Player1.ID, &sr.Player1.Guest, &sr.Player1.Name,
		&sr.Player2.ID, &sr.Player2.Guest, &sr.Player2.Name,
		&sr.Status, &sr.CreatedAt, &sr.UpdatedAt, &started)
	if err != nil {
		return SessionRow{}, err
	}
	if started.Valid {
		t := started.Time
		sr.StartedAt = &t
	}
	return sr, nil
}

// GetSession retrieves a session by code.
func (s *Store) GetSession(code string) (*SessionRow, error) {
	row := s.db.QueryRow("SELECT "+sessionColumns+" FROM sessions WHERE code = ?", code)
	sr, err := scanSession(row)
	if err != nil {
		return nil, err
	}
	return &sr, nil
}

// ListSessions returns all sessions with the given status (or all if status is empty).
func (s *Store) ListSessions(status string) ([]SessionRow, error) {
	var rows *sql.Rows
	var err error
	if status == "" {
		rows, err = s.db.Query("SELECT " + sessionColumns + " FROM sessions ORDER BY created_at DESC")
	} else {
		rows, err = s.db.Query("SELECT "+sessionColumns+" FROM sessions WHERE status = ? ORDER BY created_at DESC", status)
	}
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var result []SessionRow
	for rows.Next() {
		sr, err := scanSession(rows)
		if err != nil {
			return nil, err
		}
		result = append(result, sr)
	}
	return result, rows.Err()
}

// DeleteSession removes a session. Scores keep their session code.
func (s *Store) DeleteSession(code string) error {
	_, err := s.db.Exec("DELETE FROM sessions WHERE code = ?", code)
	return err
}

// RecordScore inserts a score row, assigning an id and timestamp if unset.
func (s *Store) RecordScore(ctx context.Context, sc Score) error {
	if sc.ID == "" {
		sc.ID = uuid.NewString()
	}
	if sc.CreatedAt.IsZero() {
		sc.CreatedAt = time.Now()
	}
	var userID sql.NullString
	if sc.UserID != nil {
		userID = sql.NullString{String: *sc.UserID, Valid: true}
	}
	_, err := s.db.ExecContext(ctx,
		"INSERT INTO scores (id, user_id, username, score, lines_cleared, session_code, created_at) VALUES (?, ?, ?, ?, ?, ?, ?)",
		sc.ID, userID, sc.Username, sc.Score, sc.LinesCleared, sc.SessionCode, sc.CreatedAt.UTC(),
	)
	return err
}

// TopScores returns the highest scores, best first.
func (s *Store) TopScores(ctx context.Context, limit int) ([]Score, error) {
	rows, err := s.db.QueryContext(ctx,
		"SELECT id, user_id, username, score, lines_cleared, session_code, created_at FROM scores ORDER BY score DESC, created_at ASC LIMIT ?",
		limit,
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var result []Score
	for rows.Next() {
		var sc Score
		var userID sql.NullString
		if err := rows.Scan(&sc.ID, &userID, &sc.Username, &sc.Score, &sc.LinesCleared, &sc.SessionCode, &sc.CreatedAt); err != nil {
			return nil, err
		}
		if userID.Valid {
			id := userID.String
			sc.UserID = &id
		}
		result = append(result, sc)
	}
	return result, rows.Err()
}

// Close closes the database connection.
func (s *Store) Close() error {
	return s.db.Close()
}
