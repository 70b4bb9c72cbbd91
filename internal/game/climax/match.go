package climax

import (
	"encoding/json"
	"fmt"
	"math/rand/v2"
	"time"

	"climax/internal/game"
)

// Action types accepted by Match.ApplyAction.
const (
	ActionBet      = "bet"
	ActionPlay     = "play"
	ActionContinue = "continue"
)

// BetPayload is the payload of a bet action.
type BetPayload struct {
	Bet int `json:"bet"`
}

// PlayPayload is the payload of a play action.
type PlayPayload struct {
	CardID string `json:"cardId"`
}

// Game is a registrable variant of the engine.
type Game struct {
	Name        string
	Description string
	Rules       Rules
	// RoundEndDelay is how long the round-end board stays up before the
	// server deals the next round.
	RoundEndDelay time.Duration
	// AIDelayScale multiplies the AI thinking pause. Zero makes AI seats
	// act immediately.
	AIDelayScale float64
	// NewRand returns the randomness source for a new match. Nil seeds from
	// the runtime.
	NewRand func() *rand.Rand
	// Now is the clock. Nil means time.Now.
	Now func() time.Time
}

// Standard is the house variant: the last bettor may not make the bets add
// up to the number of tricks.
func Standard() *Game {
	return &Game{
		Name:          "climax",
		Description:   "Bet on your tricks. The last bettor cannot even out the table.",
		Rules:         DefaultRules(),
		RoundEndDelay: 4 * time.Second,
		AIDelayScale:  1,
	}
}

// Open is the variant without the last-bettor restriction.
func Open() *Game {
	g := Standard()
	g.Name = "climax-open"
	g.Description = "Bet on your tricks. Any total is allowed."
	g.Rules = Rules{}
	return g
}

func (g *Game) Info() game.GameInfo {
	return game.GameInfo{
		Name:        g.Name,
		Description: g.Description,
		MinPlayers:  MinPlayers,
		MaxPlayers:  MaxPlayers,
	}
}

// NewMatch opens a match for the seats and deals the first round.
func (g *Game) NewMatch(cfg game.MatchConfig) (game.Match, error) {
	seats := make([]Seat, len(cfg.Seats))
	for i, st := range cfg.Seats {
		typ := Human
		if st.AI {
			typ = AI
		}
		seats[i] = Seat{ID: st.ID, Name: st.Name, Type: typ}
	}
	s, err := NewGame(Config{LobbyID: cfg.LobbyID, Seats: seats, Rules: g.Rules})
	if err != nil {
		return nil, err
	}
	m := g.newMatch()
	if m.state, err = StartGame(s, m.rng, m.now()); err != nil {
		return nil, err
	}
	return m, nil
}

// RestoreMatch rebuilds a match from its persisted JSON.
func (g *Game) RestoreMatch(data []byte) (game.Match, error) {
	m := g.newMatch()
	if err := m.UnmarshalJSON(data); err != nil {
		return nil, err
	}
	return m, nil
}

func (g *Game) newMatch() *Match {
	rng := g.NewRand
	if rng == nil {
		rng = func() *rand.Rand { return rand.New(rand.NewPCG(rand.Uint64(), rand.Uint64())) }
	}
	now := g.Now
	if now == nil {
		now = time.Now
	}
	return &Match{
		rng:           rng(),
		now:           now,
		roundEndDelay: g.RoundEndDelay,
		aiDelayScale:  g.AIDelayScale,
	}
}

// Match adapts the pure transitions to game.Match. It is not safe for
// concurrent use; the session serializes access.
type Match struct {
	state         *GameState
	rng           *rand.Rand
	now           func() time.Time
	roundEndDelay time.Duration
	aiDelayScale  float64
}

// Snapshot returns the live state. It exists for tests; servers read a
// match through State and MarshalJSON. Callers must not modify it.
func (m *Match) Snapshot() *GameState { return m.state }

func (m *Match) ApplyAction(playerID string, a game.Action) error {
	s := m.state
	var (
		next *GameState
		err  error
	)
	switch a.Type {
	case ActionBet:
		if err := m.checkTurn(playerID); err != nil {
			return err
		}
		var p BetPayload
		if err := json.Unmarshal(a.Payload, &p); err != nil {
			return fmt.Errorf("%w: bad bet payload: %v", ErrInvalidMove, err)
		}
		next, err = PlaceBet(s, p.Bet)
	case ActionPlay:
		if err := m.checkTurn(playerID); err != nil {
			return err
		}
		var p PlayPayload
		if err := json.Unmarshal(a.Payload, &p); err != nil {
			return fmt.Errorf("%w: bad play payload: %v", ErrInvalidMove, err)
		}
		next, err = PlayCard(s, p.CardID)
	case ActionContinue:
		if playerID != game.SystemActor && s.PlayerIndex(playerID) < 0 {
			return fmt.Errorf("%w: %s is not seated", ErrNotYourTurn, playerID)
		}
		next, err = AdvanceRound(s, m.rng, m.now())
	default:
		return fmt.Errorf("%w: %q", ErrUnknownAction, a.Type)
	}
	if err != nil {
		return err
	}
	m.state = next
	return nil
}

func (m *Match) checkTurn(playerID string) error {
	p := m.state.CurrentPlayer()
	if p == nil {
		return ErrWrongPhase
	}
	if p.ID != playerID {
		return fmt.Errorf("%w: waiting for %s", ErrNotYourTurn, p.ID)
	}
	return nil
}

func (m *Match) ValidActions(playerID string) []game.Action {
	s := m.state
	switch s.Phase {
	case PhaseBetting:
		p := s.CurrentPlayer()
		if p == nil || p.ID != playerID {
			return nil
		}
		r := s.CurrentRound
		forbidden := map[int]bool{}
		if s.Rules.ForbidExactTotal {
			for _, b := range InvalidBets(r.Bets, r.CardsPerPlayer, len(s.Players)) {
				forbidden[b] = true
			}
		}
		var out []game.Action
		for b := 0; b <= r.CardsPerPlayer; b++ {
			if !forbidden[b] {
				out = append(out, game.Action{Type: ActionBet, Payload: mustJSON(BetPayload{Bet: b})})
			}
		}
		return out
	case PhasePlaying:
		p := s.CurrentPlayer()
		if p == nil || p.ID != playerID {
			return nil
		}
		var out []game.Action
		for _, c := range ValidCards(p.Hand, s.CurrentRound.CurrentTrick.TurnSuit) {
			out = append(out, game.Action{Type: ActionPlay, Payload: mustJSON(PlayPayload{CardID: c.ID})})
		}
		return out
	case PhaseRoundEnd:
		if s.PlayerIndex(playerID) < 0 {
			return nil
		}
		return []game.Action{{Type: ActionContinue}}
	}
	return nil
}

// NextAutoAction reports the move the server should make by itself: an AI
// seat's bet or card, or leaving the round-end board.
func (m *Match) NextAutoAction() (game.AutoAction, bool) {
	s := m.state
	switch s.Phase {
	case PhaseRoundEnd:
		return game.AutoAction{
			PlayerID: game.SystemActor,
			Action:   game.Action{Type: ActionContinue},
			Delay:    m.roundEndDelay,
		}, true
	case PhaseBetting, PhasePlaying:
		p := s.CurrentPlayer()
		if p == nil || p.Type != AI {
			return game.AutoAction{}, false
		}
		delay := time.Duration(float64(AIActionDelay(m.rng)) * m.aiDelayScale)
		if s.Phase == PhaseBetting {
			bet, err := ChooseAIBet(s, m.rng)
			if err != nil {
				return game.AutoAction{}, false
			}
			return game.AutoAction{
				PlayerID: p.ID,
				Action:   game.Action{Type: ActionBet, Payload: mustJSON(BetPayload{Bet: bet})},
				Delay:    delay,
			}, true
		}
		c, err := ChooseAICard(s, m.rng)
		if err != nil {
			return game.AutoAction{}, false
		}
		return game.AutoAction{
			PlayerID: p.ID,
			Action:   game.Action{Type: ActionPlay, Payload: mustJSON(PlayPayload{CardID: c.ID})},
			Delay:    delay,
		}, true
	}
	return game.AutoAction{}, false
}

func (m *Match) SetConnected(playerID string, connected bool) error {
	next, err := SetConnected(m.state, playerID, connected)
	if err != nil {
		return err
	}
	m.state = next
	return nil
}

func (m *Match) IsOver() bool { return m.state.Phase == PhaseGameEnd }

func (m *Match) Results() []game.PlayerResult {
	if m.state.Result == nil {
		return nil
	}
	out := make([]game.PlayerResult, len(m.state.Result.FinalScores))
	for i, fs := range m.state.Result.FinalScores {
		out[i] = game.PlayerResult{PlayerID: fs.PlayerID, Name: fs.PlayerName, Rank: fs.Rank, Score: fs.Score}
	}
	return out
}

// Record summarizes the match once it has reached game-end.
func (m *Match) Record() (game.Record, bool) {
	s := m.state
	if s.Phase != PhaseGameEnd || s.Result == nil {
		return game.Record{}, false
	}
	var d time.Duration
	if s.FinishedAt != nil {
		d = s.FinishedAt.Sub(s.StartedAt)
	}
	return game.Record{
		GameID:     s.ID,
		LobbyID:    s.LobbyID,
		Players:    m.Results(),
		WinnerID:   s.Result.WinnerID,
		WinnerName: s.Result.WinnerName,
		Duration:   d,
	}, true
}

func (m *Match) MarshalJSON() ([]byte, error) {
	return json.Marshal(m.state)
}

func (m *Match) UnmarshalJSON(data []byte) error {
	var s GameState
	if err := json.Unmarshal(data, &s); err != nil {
		return err
	}
	if err := checkRestored(&s); err != nil {
		return err
	}
	m.state = &s
	return nil
}

// checkRestored rejects snapshots that could not have come from the engine.
func checkRestored(s *GameState) error {
	if _, err := GenerateRoundSequence(len(s.Players)); err != nil {
		return err
	}
	if s.Phase == PhaseWaiting {
		return nil
	}
	if s.CurrentRound == nil {
		return fmt.Errorf("%w: %s state without a round", ErrIllegalState, s.Phase)
	}
	if !validSuit(s.CurrentRound.LeadSuit()) {
		return fmt.Errorf("%w: unknown lead suit %q", ErrIllegalState, s.CurrentRound.LeadSuit())
	}
	if s.CurrentRound.Bets == nil {
		s.CurrentRound.Bets = map[string]int{}
	}
	if s.CurrentRound.TricksWon == nil {
		s.CurrentRound.TricksWon = map[string]int{}
	}
	return nil
}

func mustJSON(v any) json.RawMessage {
	b, err := json.Marshal(v)
	if err != nil {
		panic(err)
	}
	return b
}

// PlayerView is what one player is shown of another seat.
type PlayerView struct {
	ID          string     `json:"id"`
	Name        string     `json:"name"`
	Type        PlayerType `json:"type"`
	Score       int        `json:"score"`
	CurrentBet  *int       `json:"currentBet"`
	TricksWon   int        `json:"tricksWon"`
	HandSize    int        `json:"handSize"`
	IsConnected bool       `json:"isConnected"`
	IsDealer    bool       `json:"isDealer"`
	// ShownCard is another player's single card, visible to everyone but
	// its holder while a one-card round is being bet.
	ShownCard *Card `json:"shownCard,omitempty"`
}

// View is the per-player projection of a match.
type View struct {
	GameID          string       `json:"gameId"`
	Phase           Phase        `json:"phase"`
	Rules           Rules        `json:"rules"`
	RoundNumber     int          `json:"roundNumber"`
	TotalRounds     int          `json:"totalRounds"`
	CardsPerPlayer  int          `json:"cardsPerPlayer"`
	OneCardRound    bool         `json:"oneCardRound"`
	LeadSuitCard    *Card        `json:"leadSuitCard,omitempty"`
	CurrentTrick    *Trick       `json:"currentTrick,omitempty"`
	LastTrick       *Trick       `json:"lastTrick,omitempty"`
	Players         []PlayerView `json:"players"`
	CurrentPlayerID string       `json:"currentPlayerId,omitempty"`
	You             string       `json:"you"`
	Hand            []Card       `json:"hand"`
	HandHidden      bool         `json:"handHidden"`
	ValidCards      []Card       `json:"validCards,omitempty"`
	InvalidBets     []int        `json:"invalidBets,omitempty"`
	RoundScores     []RoundScore `json:"roundScores,omitempty"`
	Result          *GameResult  `json:"result,omitempty"`
}

func (m *Match) State(playerID string) any { return NewView(m.state, playerID) }

// NewView projects s for playerID. Other players' hands are reduced to a
// count, and the viewer's own card is withheld while betting blind.
func NewView(s *GameState, playerID string) View {
	v := View{
		GameID:      s.ID,
		Phase:       s.Phase,
		Rules:       s.Rules,
		TotalRounds: len(s.RoundSequence),
		You:         playerID,
		Hand:        []Card{},
		Result:      s.Result,
	}
	hidden := s.HandHidden(playerID)
	r := s.CurrentRound
	if r != nil {
		lead := r.LeadSuitCard
		trick := r.CurrentTrick.clone()
		v.RoundNumber = r.RoundNumber
		v.CardsPerPlayer = r.CardsPerPlayer
		v.OneCardRound = IsOneCardRound(r.CardsPerPlayer)
		v.LeadSuitCard = &lead
		v.CurrentTrick = &trick
		if n := len(r.CompletedTricks); n > 0 {
			last := r.CompletedTricks[n-1].clone()
			v.LastTrick = &last
		}
		if s.Phase == PhaseRoundEnd {
			v.RoundScores = append([]RoundScore(nil), r.Scores...)
		}
	}
	if cp := s.CurrentPlayer(); cp != nil {
		v.CurrentPlayerID = cp.ID
	}

	blindRound := r != nil && s.Phase == PhaseBetting && v.OneCardRound
	for i, p := range s.Players {
		pv := PlayerView{
			ID:          p.ID,
			Name:        p.Name,
			Type:        p.Type,
			Score:       p.Score,
			CurrentBet:  p.CurrentBet,
			TricksWon:   p.TricksWon,
			HandSize:    len(p.Hand),
			IsConnected: p.IsConnected,
			IsDealer:    r != nil && r.DealerIndex == i,
		}
		if blindRound && p.ID != playerID && len(p.Hand) == 1 {
			c := p.Hand[0]
			pv.ShownCard = &c
		}
		v.Players = append(v.Players, pv)

		if p.ID != playerID {
			continue
		}
		if hidden {
			v.HandHidden = true
		} else {
			v.Hand = append(v.Hand, p.Hand...)
		}
		if s.Phase == PhasePlaying && v.CurrentPlayerID == playerID {
			v.ValidCards = ValidCards(p.Hand, r.CurrentTrick.TurnSuit)
		}
		if s.Phase == PhaseBetting && v.CurrentPlayerID == playerID && s.Rules.ForbidExactTotal {
			v.InvalidBets = InvalidBets(r.Bets, r.CardsPerPlayer, len(s.Players))
		}
	}
	return v
}
