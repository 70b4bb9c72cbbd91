package storage

import (
	"context"
	"errors"
	"time"
)

// DefaultHistoryLimit is how many games ListHistory returns when asked for
// zero or fewer.
const DefaultHistoryLimit = 20

const maxHistoryLimit = 200

// ErrNoStats is returned by PlayerStats for unknown players.
var ErrNoStats = errors.New("no stats for player")

// HistoryPlayer is one line of a finished game.
type HistoryPlayer struct {
	ID    string `json:"id"`
	Name  string `json:"name"`
	Score int    `json:"score"`
	Rank  int    `json:"rank"`
	AI    bool   `json:"ai,omitempty"`
}

// HistoryEntry is a finished game.
type HistoryEntry struct {
	ID              string          `json:"id"`
	GameID          string          `json:"gameId"`
	LobbyID         string          `json:"lobbyId"`
	GameType        string          `json:"gameType"`
	Players         []HistoryPlayer `json:"players"`
	WinnerID        string          `json:"winnerId"`
	WinnerName      string          `json:"winnerName"`
	DurationSeconds int             `json:"durationSeconds"`
	PlayedAt        time.Time       `json:"playedAt"`
}

// PlayerStats are a player's lifetime totals.
type PlayerStats struct {
	PlayerID    string `json:"playerId"`
	Name        string `json:"name"`
	GamesPlayed int    `json:"gamesPlayed"`
	GamesWon    int    `json:"gamesWon"`
	BestScore   int    `json:"bestScore"`
}

// HistorySink receives finished games.
type HistorySink interface {
	RecordGame(ctx context.Context, e HistoryEntry) error
}

// History is a sink that can also be queried.
type History interface {
	HistorySink
	ListHistory(ctx context.Context, limit int) ([]HistoryEntry, error)
	PlayerStats(ctx context.Context, playerID string) (*PlayerStats, error)
}

var (
	_ History = (*Store)(nil)
	_ History = (*PostgresHistory)(nil)
)

func clampLimit(limit int) int {
	if limit <= 0 {
		return DefaultHistoryLimit
	}
	if limit > maxHistoryLimit {
		return maxHistoryLimit
	}
	return limit
}
