package climax

import (
	"encoding/json"
	"time"
)

// Phase is the lifecycle stage of a match.
type Phase string

const (
	PhaseWaiting  Phase = "waiting"
	PhaseBetting  Phase = "betting"
	PhasePlaying  Phase = "playing"
	PhaseRoundEnd Phase = "round-end"
	PhaseGameEnd  Phase = "game-end"
)

// PlayerType distinguishes seats driven by people from seats driven by the AI policy.
type PlayerType string

const (
	Human PlayerType = "human"
	AI    PlayerType = "ai"
)

// Player is one seat at the table. Score carries across rounds; hand, bet
// and tricks are reset every deal.
type Player struct {
	ID          string     `json:"id"`
	Name        string     `json:"name"`
	Type        PlayerType `json:"type"`
	Score       int        `json:"score"`
	CurrentBet  *int       `json:"currentBet"`
	TricksWon   int        `json:"tricksWon"`
	Hand        []Card     `json:"hand"`
	IsConnected bool       `json:"isConnected"`
}

// PlayedCard is one card in a trick together with who played it.
type PlayedCard struct {
	PlayerID string `json:"playerId"`
	Card     Card   `json:"card"`
}

// Trick holds the cards played in order. TurnSuit is the suit of the first
// card; it is serialized as leadSuit for compatibility with existing clients.
// An open trick encodes winnerId and leadSuit as null.
type Trick struct {
	Cards    []PlayedCard
	WinnerID string
	TurnSuit Suit
}

type trickJSON struct {
	Cards    []PlayedCard `json:"cards"`
	WinnerID *string      `json:"winnerId"`
	TurnSuit *Suit        `json:"leadSuit"`
}

func (t Trick) MarshalJSON() ([]byte, error) {
	j := trickJSON{Cards: t.Cards}
	if t.WinnerID != "" {
		j.WinnerID = &t.WinnerID
	}
	if t.TurnSuit != "" {
		j.TurnSuit = &t.TurnSuit
	}
	return json.Marshal(j)
}

func (t *Trick) UnmarshalJSON(data []byte) error {
	var j trickJSON
	if err := json.Unmarshal(data, &j); err != nil {
		return err
	}
	*t = Trick{Cards: j.Cards}
	if j.WinnerID != nil {
		t.WinnerID = *j.WinnerID
	}
	if j.TurnSuit != nil {
		t.TurnSuit = *j.TurnSuit
	}
	return nil
}

// RoundScore is one line of the round-end board.
type RoundScore struct {
	PlayerID     string `json:"playerId"`
	PlayerName   string `json:"playerName"`
	Bet          int    `json:"bet"`
	TricksWon    int    `json:"tricksWon"`
	PointsEarned int    `json:"pointsEarned"`
	TotalScore   int    `json:"totalScore"`
}

// Round is the live deal. It is replaced wholesale when the match advances.
type Round struct {
	RoundNumber     int            `json:"roundNumber"`
	CardsPerPlayer  int            `json:"cardsPerPlayer"`
	LeadSuitCard    Card           `json:"leadSuitCard"`
	CurrentTrick    Trick          `json:"currentTrick"`
	CompletedTricks []Trick        `json:"completedTricks"`
	Bets            map[string]int `json:"bets"`
	TricksWon       map[string]int `json:"tricksWon"`
	DealerIndex     int            `json:"dealerIndex"`
	Scores          []RoundScore   `json:"scores,omitempty"`
}

// LeadSuit is the round's privileged suit.
func (r *Round) LeadSuit() Suit { return r.LeadSuitCard.Suit }

// FinalScore is a player's standing at the end of the match.
type FinalScore struct {
	PlayerID   string `json:"playerId"`
	PlayerName string `json:"playerName"`
	Score      int    `json:"score"`
	Rank       int    `json:"rank"`
}

// GameResult is filled in when the match reaches game-end.
type GameResult struct {
	WinnerID    string       `json:"winnerId"`
	WinnerName  string       `json:"winnerName"`
	FinalScores []FinalScore `json:"finalScores"`
}

// GameState is the single authoritative snapshot of a match. Transitions
// never modify a GameState in place; they return a new one.
type GameState struct {
	ID                   string      `json:"id"`
	LobbyID              string      `json:"lobbyId"`
	Rules                Rules       `json:"rules"`
	Players              []Player    `json:"players"`
	CurrentRound         *Round      `json:"currentRound"`
	CurrentPlayerIndex   int         `json:"currentPlayerIndex"`
	Phase                Phase       `json:"phase"`
	RoundSequence        []int       `json:"roundSequence"`
	CurrentSequenceIndex int         `json:"currentSequenceIndex"`
	Deck                 []Card      `json:"deck"`
	StartedAt            time.Time   `json:"startedAt"`
	FinishedAt           *time.Time  `json:"finishedAt,omitempty"`
	Result               *GameResult `json:"result,omitempty"`
}

// CurrentPlayer returns the seat owed the next action, or nil outside
// betting and playing.
func (s *GameState) CurrentPlayer() *Player {
	if s.Phase != PhaseBetting && s.Phase != PhasePlaying {
		return nil
	}
	if s.CurrentPlayerIndex < 0 || s.CurrentPlayerIndex >= len(s.Players) {
		return nil
	}
	return &s.Players[s.CurrentPlayerIndex]
}

// PlayerIndex returns the seat index of id, or -1.
func (s *GameState) PlayerIndex(id string) int {
	for i := range s.Players {
		if s.Players[i].ID == id {
			return i
		}
	}
	return -1
}

// HandHidden reports whether playerID is betting blind: in a one-card round
// a player may not see their own card until betting is over.
func (s *GameState) HandHidden(playerID string) bool {
	if s.CurrentRound == nil || s.Phase != PhaseBetting {
		return false
	}
	return IsOneCardRound(s.CurrentRound.CardsPerPlayer) && s.PlayerIndex(playerID) >= 0
}

// Clone returns a deep copy sharing no slices or maps with s.
func (s *GameState) Clone() *GameState {
	c := *s
	c.Players = make([]Player, len(s.Players))
	for i, p := range s.Players {
		p.Hand = append(make([]Card, 0, len(p.Hand)), p.Hand...)
		if p.CurrentBet != nil {
			b := *p.CurrentBet
			p.CurrentBet = &b
		}
		c.Players[i] = p
	}
	if s.CurrentRound != nil {
		c.CurrentRound = s.CurrentRound.clone()
	}
	c.RoundSequence = append([]int(nil), s.RoundSequence...)
	c.Deck = append([]Card(nil), s.Deck...)
	if s.FinishedAt != nil {
		t := *s.FinishedAt
		c.FinishedAt = &t
	}
	if s.Result != nil {
		r := *s.Result
		r.FinalScores = append([]FinalScore(nil), s.Result.FinalScores...)
		c.Result = &r
	}
	return &c
}

func (r *Round) clone() *Round {
	c := *r
	c.CurrentTrick = r.CurrentTrick.clone()
	c.CompletedTricks = make([]Trick, len(r.CompletedTricks))
	for i, t := range r.CompletedTricks {
		c.CompletedTricks[i] = t.clone()
	}
	c.Bets = make(map[string]int, len(r.Bets))
	for k, v := range r.Bets {
		c.Bets[k] = v
	}
	c.TricksWon = make(map[string]int, len(r.TricksWon))
	for k, v := range r.TricksWon {
		c.TricksWon[k] = v
	}
	c.Scores = append([]RoundScore(nil), r.Scores...)
	return &c
}

func (t Trick) clone() Trick {
	t.Cards = append(make([]PlayedCard, 0, len(t.Cards)), t.Cards...)
	return t
}
