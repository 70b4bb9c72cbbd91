package storage

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

// PostgresHistory keeps game history and player stats in Postgres.
type PostgresHistory struct {
	pool *pgxpool.Pool
}

// NewPostgresHistory connects to dsn and creates the tables if needed.
func NewPostgresHistory(ctx context.Context, dsn string) (*PostgresHistory, error) {
	pool, err := pgxpool.New(ctx, dsn)
	if err != nil {
		return nil, fmt.Errorf("connect postgres: %w", err)
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("ping postgres: %w", err)
	}
	h := &PostgresHistory{pool: pool}
	if err := h.migrate(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("migrate postgres: %w", err)
	}
	return h, nil
}

func (h *PostgresHistory) migrate(ctx context.Context) error {
	_, err := h.pool.Exec(ctx, `
		CREATE TABLE IF NOT EXISTS game_history (
			id               UUID PRIMARY KEY,
			game_id          TEXT NOT NULL,
			lobby_id         TEXT NOT NULL,
			game_type        TEXT NOT NULL,
			players          JSONB NOT NULL,
			winner_id        TEXT NOT NULL,
			winner_name      TEXT NOT NULL,
			duration_seconds INTEGER NOT NULL,
			played_at        TIMESTAMPTZ NOT NULL
		);
		CREATE INDEX IF NOT EXISTS idx_game_history_played_at ON game_history(played_at DESC);
		CREATE TABLE IF NOT EXISTS player_stats (
			player_id    TEXT PRIMARY KEY,
			name         TEXT NOT NULL,
			games_played INTEGER NOT NULL DEFAULT 0,
			games_won    INTEGER NOT NULL DEFAULT 0,
			best_score   INTEGER,
			updated_at   TIMESTAMPTZ NOT NULL DEFAULT now()
		);
	`)
	return err
}

func (h *PostgresHistory) RecordGame(ctx context.Context, e HistoryEntry) error {
	if e.ID == "" {
		e.ID = uuid.NewString()
	}
	players, err := json.Marshal(e.Players)
	if err != nil {
		return fmt.Errorf("marshal players: %w", err)
	}

	tx, err := h.pool.Begin(ctx)
	if err != nil {
		return err
	}
	defer tx.Rollback(ctx)

	_, err = tx.Exec(ctx, `
		INSERT INTO game_history (id, game_id, lobby_id, game_type, players, winner_id, winner_name, duration_seconds, played_at)
		VALUES ($1, $2, $3, $4, $5::jsonb, $6, $7, $8, $9)
	`, e.ID, e.GameID, e.LobbyID, e.GameType, string(players), e.WinnerID, e.WinnerName, e.DurationSeconds, e.PlayedAt)
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
		_, err = tx.Exec(ctx, `
			INSERT INTO player_stats (player_id, name, games_played, games_won, best_score)
			VALUES ($1, $2, 1, $3, $4)
			ON CONFLICT (player_id) DO UPDATE SET
				name = EXCLUDED.name,
				games_played = player_stats.games_played + 1,
				games_won = player_stats.games_won + EXCLUDED.games_won,
				best_score = GREATEST(player_stats.best_score, EXCLUDED.best_score),
				updated_at = now()
		`, p.ID, p.Name, won, p.Score)
		if err != nil {
			return fmt.Errorf("update stats for %s: %w", p.ID, err)
		}
	}
	return tx.Commit(ctx)
}

func (h *PostgresHistory) ListHistory(ctx context.Context, limit int) ([]HistoryEntry, error) {
	rows, err := h.pool.Query(ctx, `
		SELECT id::text, game_id, lobby_id, game_type, players, winner_id, winner_name, duration_seconds, played_at
		FROM game_history ORDER BY played_at DESC LIMIT $1
	`, clampLimit(limit))
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	result := []HistoryEntry{}
	for rows.Next() {
		var e HistoryEntry
		var players []byte
		if err := rows.Scan(&e.ID, &e.GameID, &e.LobbyID, &e.GameType, &players, &e.WinnerID, &e.WinnerName, &e.DurationSeconds, &e.PlayedAt); err != nil {
			return nil, err
		}
		if err := json.Unmarshal(players, &e.Players); err != nil {
			return nil, fmt.Errorf("history %s: %w", e.ID, err)
		}
		result = append(result, e)
	}
	return result, rows.Err()
}

func (h *PostgresHistory) PlayerStats(ctx context.Context, playerID string) (*PlayerStats, error) {
	var ps PlayerStats
	var best *int32
	err := h.pool.QueryRow(ctx,
		"SELECT player_id, name, games_played, games_won, best_score FROM player_stats WHERE player_id = $1",
		playerID,
	).Scan(&ps.PlayerID, &ps.Name, &ps.GamesPlayed, &ps.GamesWon, &best)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ErrNoStats
	}
	if err != nil {
		return nil, err
	}
	if best != nil {
		ps.BestScore = int(*best)
	}
	return &ps, nil
}

// Close releases the connection pool.
func (h *PostgresHistory) Close() {
	h.pool.Close()
}
