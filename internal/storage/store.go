package storage

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	_ "modernc.org/sqlite"
)

// SessionRow represents a session in the database.
type SessionRow struct {
	Code       string
	GameType   string
	Status     string // "waiting", "playing", "finished"
	HostID     string
	SeatsJSON  string
	MaxPlayers int
	CreatedAt  time.Time
}

const sessionCols = "code, game_type, status, host_id, seats_json, max_players, created_at"

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
		// every pooled connection would otherwise get its own empty database
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
			code       TEXT PRIMARY KEY,
			game_type  TEXT NOT NULL,
			status     TEXT NOT NULL DEFAULT 'waiting',
			host_id    TEXT NOT NULL DEFAULT '',
			seats_json TEXT NOT NULL DEFAULT '[]',
			max_players INTEGER NOT NULL DEFAULT 0,
			created_at DATETIME NOT NULL DEFAULT CURRENT_TIMESTAMP
		);
		CREATE TABLE IF NOT EXISTS match_state (
			session_code TEXT PRIMARY KEY REFERENCES sessions(code),
			state_json   TEXT NOT NULL,
			updated_at   DATETIME NOT NULL DEFAULT CURRENT_TIMESTAMP
		);
		CREATE TABLE IF NOT EXISTS game_history (
			id               TEXT PRIMARY KEY,
			game_id          TEXT NOT NULL,
			lobby_id         TEXT NOT NULL,
			game_type        TEXT NOT NULL,
			players_json     TEXT NOT NULL,
			winner_id        TEXT NOT NULL,
			winner_name      TEXT NOT NULL,
			duration_seconds INTEGER NOT NULL,
			played_at        DATETIME NOT NULL
		);
		CREATE INDEX IF NOT EXISTS idx_game_history_played_at ON game_history(played_at);
		CREATE TABLE IF NOT EXISTS player_stats (
			player_id    TEXT PRIMARY KEY,
			name         TEXT NOT NULL,
			games_played INTEGER NOT NULL DEFAULT 0,
			games_won    INTEGER NOT NULL DEFAULT 0,
			best_score   INTEGER,
			updated_at   DATETIME NOT NULL DEFAULT CURRENT_TIMESTAMP
		);
	`)
	if err != nil {
		return err
	}
	// databases created before lobbies had a size
	_, err = s.db.Exec("ALTER TABLE sessions ADD COLUMN max_players INTEGER NOT NULL DEFAULT 0")
	if err != nil && !strings.Contains(err.Error(), "duplicate column") {
		return err
	}
	return nil
}

// CreateSession inserts a new session seating at most maxPlayers.
func (s *Store) CreateSession(code, gameType string, maxPlayers int) error {
	_, err := s.db.Exec(
		"INSERT INTO sessions (code, game_type, status, max_players) VALUES (?, ?, 'waiting', ?)",
		code, gameType, maxPlayers,
	)
	return err
}

// GetSession retrieves a session by code.
func (s *Store) GetSession(code string) (*SessionRow, error) {
	row := s.db.QueryRow("SELECT "+sessionCols+" FROM sessions WHERE code = ?", code)
	var sr SessionRow
	if err := row.Scan(&sr.Code, &sr.GameType, &sr.Status, &sr.HostID, &sr.SeatsJSON, &sr.MaxPlayers, &sr.CreatedAt); err != nil {
		return nil, err
	}
	return &sr, nil
}

// UpdateSessionStatus changes a session's status.
func (s *Store) UpdateSessionStatus(code, status string) error {
	_, err := s.db.Exec("UPDATE sessions SET status = ? WHERE code = ?", status, code)
	return err
}

// SaveSeats stores the ordered seat list and host of a session.
func (s *Store) SaveSeats(code, hostID, seatsJSON string) error {
	_, err := s.db.Exec("UPDATE sessions SET host_id = ?, seats_json = ? WHERE code = ?", hostID, seatsJSON, code)
	return err
}

// ListSessions returns all sessions with the given status (or all if status is empty).
func (s *Store) ListSessions(status string) ([]SessionRow, error) {
	cols := "SELECT " + sessionCols + " FROM sessions"
	var rows *sql.Rows
	var err error
	if status == "" {
		rows, err = s.db.Query(cols + " ORDER BY created_at DESC")
	} else {
		rows, err = s.db.Query(cols+" WHERE status = ? ORDER BY created_at DESC", status)
	}
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var result []SessionRow
	for rows.Next() {
		var sr SessionRow
		if err := rows.Scan(&sr.Code, &sr.GameType, &sr.Status, &sr.HostID, &sr.SeatsJSON, &sr.MaxPlayers, &sr.CreatedAt); err != nil {
			return nil, err
		}
		result = append(result, sr)
	}
	return result, rows.Err()
}

// SaveMatchState upserts match state JSON.
func (s *Store) SaveMatchState(sessionCode, stateJSON string) error {
	_, err := s.db.Exec(`
		INSERT INTO match_state (session_code, state_json, updated_at)
		VALUES (?, ?, CURRENT_TIMESTAMP)
		ON CONFLICT(session_code) DO UPDATE SET state_json = excluded.state_json, updated_at = excluded.updated_at
	`, sessionCode, stateJSON)
	return err
}

// GetMatchState retrieves match state JSON.
func (s *Store) GetMatchState(sessionCode string) (string, error) {
	var stateJSON string
	err := s.db.QueryRow("SELECT state_json FROM match_state WHERE session_code = ?", sessionCode).Scan(&stateJSON)
	return stateJSON, err
}

// DeleteSession removes a session and its match state.
func (s *Store) DeleteSession(code string) error {
	_, err := s.db.Exec("DELETE FROM match_state WHERE session_code = ?", code)
	if err != nil {
		return err
	}
	_, err = s.db.Exec("DELETE FROM sessions WHERE code = ?", code)
	return err
}

// RecordGame stores a finished game and bumps the stats of its human
// players in one transaction.
func (s *Store) RecordGame(ctx context.Context, e HistoryEntry) error {
	if e.ID == "" {
		e.ID = uuid.NewString()
	}
	players, err := json.Marshal(e.Players)
	if err != nil {
		return fmt.Errorf("marshal players: %w", err)
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer tx.Rollback()

	_, err = tx.ExecContext(ctx, `
		INSERT INTO game_history (id, game_id, lobby_id, game_type, players_json, winner_id, winner_name, duration_seconds, played_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)
	`, e.ID, e.GameID, e.LobbyID, e.GameType, string(players), e.WinnerID, e.WinnerName, e.DurationSeconds, e.PlayedAt.UTC())
	if err != nil {
		return fmt.Errorf("insert history: %w", err)
	}

	for _, p := range e.Players {
		if p.AI {
			continue
		}
		won := 0
		if p.ID == e.WinnerID {
			won = 1
		}
		_, err = tx.ExecContext(ctx, `
			INSERT INTO player_stats (player_id, name, games_played, games_won, best_score, updated_at)
			VALUES (?, ?, 1, ?, ?, CURRENT_TIMESTAMP)
			ON CONFLICT(player_id) DO UPDATE SET
				name = excluded.name,
				games_played = player_stats.games_played + 1,
				games_won = player_stats.games_won + excluded.games_won,
				best_score = MAX(COALESCE(player_stats.best_score, excluded.best_score), excluded.best_score),
				updated_at = excluded.updated_at
		`, p.ID, p.Name, won, p.Score)
		if err != nil {
			return fmt.Errorf("update stats for %s: %w", p.ID, err)
		}
	}
	return tx.Commit()
}

// ListHistory returns the most recent games, newest first.
func (s *Store) ListHistory(ctx context.Context, limit int) ([]HistoryEntry, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, game_id, lobby_id, game_type, players_json, winner_id, winner_name, duration_seconds, played_at
		FROM game_history ORDER BY played_at DESC LIMIT ?
	`, clampLimit(limit))
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	result := []HistoryEntry{}
	for rows.Next() {
		var e HistoryEntry
		var players string
		if err := rows.Scan(&e.ID, &e.GameID, &e.LobbyID, &e.GameType, &players, &e.WinnerID, &e.WinnerName, &e.DurationSeconds, &e.PlayedAt); err != nil {
			return nil, err
		}
		if err := json.Unmarshal([]byte(players), &e.Players); err != nil {
			return nil, fmt.Errorf("history %s: %w", e.ID, err)
		}
		result = append(result, e)
	}
	return result, rows.Err()
}

// PlayerStats returns the totals for one player. ErrNoStats is returned
// for players that never finished a game.
func (s *Store) PlayerStats(ctx context.Context, playerID string) (*PlayerStats, error) {
	var ps PlayerStats
	var best sql.NullInt64
	err := s.db.QueryRowContext(ctx,
		"SELECT player_id, name, games_played, games_won, best_score FROM player_stats WHERE player_id = ?",
		playerID,
	).Scan(&ps.PlayerID, &ps.Name, &ps.GamesPlayed, &ps.GamesWon, &best)
	if err == sql.ErrNoRows {
		return nil, ErrNoStats
	}
	if err != nil {
		return nil, err
	}
	ps.BestScore = int(best.Int64)
	return &ps, nil
}

// Close closes the database connection.
func (s *Store) Close() error {
	return s.db.Close()
}
