package game

import (
	"encoding/json"
	"time"
)

// SystemActor is the acting id the server uses for moves no seat makes,
// such as leaving the round-end board.
const SystemActor = "_system"

// GameInfo describes a game variant for the lobby.
type GameInfo struct {
	Name        string `json:"name"`
	Description string `json:"description,omitempty"`
	MinPlayers  int    `json:"minPlayers"`
	MaxPlayers  int    `json:"maxPlayers"`
}

// Seat is one player taking part in a new match, in turn order.
type Seat struct {
	ID   string `json:"id"`
	Name string `json:"name"`
	AI   bool   `json:"ai"`
}

// MatchConfig holds settings for creating a new match.
type MatchConfig struct {
	LobbyID string
	Seats   []Seat
}

// Action represents a move a player can make.
type Action struct {
	Type    string          `json:"type"`
	Payload json.RawMessage `json:"payload,omitempty"`
}

// PlayerResult holds the outcome for one player.
type PlayerResult struct {
	PlayerID string `json:"playerId"`
	Name     string `json:"name,omitempty"`
	Rank     int    `json:"rank"` // 1 = first place
	Score    int    `json:"score"`
}

// Game describes a playable variant.
type Game interface {
	Info() GameInfo
	NewMatch(config MatchConfig) (Match, error)
	RestoreMatch(data []byte) (Match, error)
}

// Match is one in-progress game session.
type Match interface {
	State(playerID string) any
	ValidActions(playerID string) []Action
	ApplyAction(playerID string, action Action) error
	IsOver() bool
	Results() []PlayerResult
	// MarshalJSON / UnmarshalJSON support for persistence
	MarshalJSON() ([]byte, error)
	UnmarshalJSON(data []byte) error
}

// AutoAction is a move the server makes by itself once Delay has passed.
type AutoAction struct {
	PlayerID string
	Action   Action
	Delay    time.Duration
}

// AutoPlayer is implemented by matches with seats or phases the server
// drives on a timer.
type AutoPlayer interface {
	NextAutoAction() (AutoAction, bool)
}

// ConnectionTracker is implemented by matches that record whether each
// player is currently connected.
type ConnectionTracker interface {
	SetConnected(playerID string, connected bool) error
}

// Record summarizes a finished match for the history sinks.
type Record struct {
	GameID     string
	LobbyID    string
	Players    []PlayerResult
	WinnerID   string
	WinnerName string
	Duration   time.Duration
}

// Recorder is implemented by matches that can summarize themselves once over.
type Recorder interface {
	Record() (Record, bool)
}
