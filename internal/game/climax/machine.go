package climax

import (
	"fmt"
	"math/rand/v2"
	"sort"
	"time"

	"github.com/google/uuid"
)

// Rules are the per-variant switches of the engine.
type Rules struct {
	// ForbidExactTotal rejects the last bet when it would make the bets add
	// up to the number of tricks in the round.
	ForbidExactTotal bool `json:"forbidExactTotal"`
}

// DefaultRules is the standard table: the exact total is forbidden.
func DefaultRules() Rules {
	return Rules{ForbidExactTotal: true}
}

// Seat describes a player joining a new match.
type Seat struct {
	ID   string
	Name string
	Type PlayerType
}

// Config holds what is needed to open a match.
type Config struct {
	ID      string
	LobbyID string
	Seats   []Seat
	Rules   Rules
}

// NewGame opens a match in the waiting phase with the round sequence
// computed. No cards are dealt until StartGame.
func NewGame(cfg Config) (*GameState, error) {
	n := len(cfg.Seats)
	seq, err := GenerateRoundSequence(n)
	if err != nil {
		return nil, err
	}
	seen := make(map[string]bool, n)
	players := make([]Player, 0, n)
	for _, st := range cfg.Seats {
		if st.ID == "" || seen[st.ID] {
			return nil, fmt.Errorf("%w: duplicate or empty player id %q", ErrIllegalState, st.ID)
		}
		seen[st.ID] = true
		typ := st.Type
		if typ == "" {
			typ = Human
		}
		players = append(players, Player{
			ID:          st.ID,
			Name:        st.Name,
			Type:        typ,
			Hand:        []Card{},
			IsConnected: true,
		})
	}
	id := cfg.ID
	if id == "" {
		id = uuid.NewString()
	}
	return &GameState{
		ID:            id,
		LobbyID:       cfg.LobbyID,
		Rules:         cfg.Rules,
		Players:       players,
		Phase:         PhaseWaiting,
		RoundSequence: seq,
	}, nil
}

// StartGame picks a random dealer and deals the first round.
func StartGame(s *GameState, rng *rand.Rand, now time.Time) (*GameState, error) {
	if s.Phase != PhaseWaiting {
		return nil, ErrWrongPhase
	}
	next := s.Clone()
	next.StartedAt = now
	next.CurrentSequenceIndex = 0
	if err := deal(next, rng.IntN(len(next.Players)), rng); err != nil {
		return nil, err
	}
	return next, nil
}

// deal starts the round at CurrentSequenceIndex on s, which must be a
// private copy.
func deal(s *GameState, dealer int, rng *rand.Rand) error {
	n := len(s.Players)
	if s.CurrentSequenceIndex < 0 || s.CurrentSequenceIndex >= len(s.RoundSequence) {
		return fmt.Errorf("%w: sequence index %d out of range", ErrIllegalState, s.CurrentSequenceIndex)
	}
	cards := s.RoundSequence[s.CurrentSequenceIndex]
	if n*cards >= DeckSize {
		return fmt.Errorf("%w: cannot deal %d cards to %d players", ErrIllegalState, cards, n)
	}

	deck := ShuffleDeck(CreateDeck(), rng)
	hands := DealCards(deck, n, cards)
	lead, ok := DrawLeadSuitCard(deck, n*cards, rng)
	if !ok {
		return fmt.Errorf("%w: no card left for the lead suit", ErrIllegalState)
	}

	for i := range s.Players {
		s.Players[i].Hand = hands[i]
		s.Players[i].CurrentBet = nil
		s.Players[i].TricksWon = 0
	}
	s.Deck = deck
	s.CurrentRound = &Round{
		RoundNumber:     s.CurrentSequenceIndex + 1,
		CardsPerPlayer:  cards,
		LeadSuitCard:    lead,
		CurrentTrick:    Trick{Cards: []PlayedCard{}},
		CompletedTricks: []Trick{},
		Bets:            map[string]int{},
		TricksWon:       map[string]int{},
		DealerIndex:     dealer,
	}
	s.Phase = PhaseBetting
	s.CurrentPlayerIndex = (dealer + 1) % n
	return nil
}

// PlaceBet records the acting player's bet. Once everyone has bet, play
// begins with the player after the dealer.
func PlaceBet(s *GameState, bet int) (*GameState, error) {
	if s.Phase != PhaseBetting || s.CurrentRound == nil {
		return nil, ErrWrongPhase
	}
	p := s.CurrentPlayer()
	if p == nil {
		return nil, fmt.Errorf("%w: no acting player", ErrIllegalState)
	}
	r := s.CurrentRound
	if _, done := r.Bets[p.ID]; done {
		return nil, ErrNotYourTurn
	}
	if bet < 0 || bet > r.CardsPerPlayer {
		return nil, fmt.Errorf("%w: %d not in [0, %d]", ErrBetOutOfRange, bet, r.CardsPerPlayer)
	}
	if s.Rules.ForbidExactTotal {
		for _, bad := range InvalidBets(r.Bets, r.CardsPerPlayer, len(s.Players)) {
			if bet == bad {
				return nil, fmt.Errorf("%w: %d", ErrForbiddenBet, bet)
			}
		}
	}

	next := s.Clone()
	n := len(next.Players)
	np := &next.Players[next.CurrentPlayerIndex]
	b := bet
	np.CurrentBet = &b
	next.CurrentRound.Bets[np.ID] = bet
	next.CurrentPlayerIndex = (next.CurrentPlayerIndex + 1) % n

	if len(next.CurrentRound.Bets) == n {
		next.Phase = PhasePlaying
		next.CurrentPlayerIndex = (next.CurrentRound.DealerIndex + 1) % n
	}
	return next, nil
}

// PlayCard plays cardID from the acting player's hand. Completing a trick
// resolves it and hands the lead to the winner; completing the last trick
// scores the round.
func PlayCard(s *GameState, cardID string) (*GameState, error) {
	if s.Phase != PhasePlaying || s.CurrentRound == nil {
		return nil, ErrWrongPhase
	}
	p := s.CurrentPlayer()
	if p == nil {
		return nil, fmt.Errorf("%w: no acting player", ErrIllegalState)
	}
	idx := -1
	for i, c := range p.Hand {
		if c.ID == cardID {
			idx = i
			break
		}
	}
	if idx < 0 {
		return nil, fmt.Errorf("%w: %s", ErrCardNotInHand, cardID)
	}
	card := p.Hand[idx]
	turn := s.CurrentRound.CurrentTrick.TurnSuit
	if !CanPlayCard(card, p.Hand, turn) {
		return nil, fmt.Errorf("%w: %s while holding %s", ErrMustFollowSuit, cardID, turn)
	}

	next := s.Clone()
	n := len(next.Players)
	np := &next.Players[next.CurrentPlayerIndex]
	np.Hand = append(np.Hand[:idx], np.Hand[idx+1:]...)

	r := next.CurrentRound
	r.CurrentTrick.Cards = append(r.CurrentTrick.Cards, PlayedCard{PlayerID: np.ID, Card: card})
	if len(r.CurrentTrick.Cards) == 1 {
		r.CurrentTrick.TurnSuit = card.Suit
	}

	if len(r.CurrentTrick.Cards) < n {
		next.CurrentPlayerIndex = (next.CurrentPlayerIndex + 1) % n
		return next, nil
	}

	winner, err := DetermineWinner(r.CurrentTrick, r.LeadSuit())
	if err != nil {
		return nil, err
	}
	r.CurrentTrick.WinnerID = winner
	r.CompletedTricks = append(r.CompletedTricks, r.CurrentTrick)
	r.TricksWon[winner]++
	for i := range next.Players {
		next.Players[i].TricksWon = r.TricksWon[next.Players[i].ID]
	}
	next.CurrentPlayerIndex = next.PlayerIndex(winner)

	if len(r.CompletedTricks) == r.CardsPerPlayer {
		endRound(next)
		return next, nil
	}
	r.CurrentTrick = Trick{Cards: []PlayedCard{}}
	return next, nil
}

// endRound scores the finished round on s, which must be a private copy.
func endRound(s *GameState) {
	r := s.CurrentRound
	scores := CalculateRoundScores(s.Players, r.Bets, r.TricksWon)
	for i := range s.Players {
		s.Players[i].Score += scores[i].PointsEarned
		s.Players[i].TricksWon = scores[i].TricksWon
	}
	r.Scores = scores
	s.Phase = PhaseRoundEnd
}

// AdvanceRound leaves round-end: the next hand size is dealt with the
// dealer moved one seat on, or the match ends when the sequence is done.
func AdvanceRound(s *GameState, rng *rand.Rand, now time.Time) (*GameState, error) {
	if s.Phase != PhaseRoundEnd || s.CurrentRound == nil {
		return nil, ErrWrongPhase
	}
	if s.CurrentSequenceIndex+1 >= len(s.RoundSequence) {
		return EndGame(s, now)
	}
	next := s.Clone()
	next.CurrentSequenceIndex++
	dealer := (s.CurrentRound.DealerIndex + 1) % len(next.Players)
	if err := deal(next, dealer, rng); err != nil {
		return nil, err
	}
	return next, nil
}

// EndGame closes the match and records the final standings.
func EndGame(s *GameState, now time.Time) (*GameState, error) {
	if s.Phase == PhaseWaiting || s.Phase == PhaseGameEnd {
		return nil, ErrWrongPhase
	}
	next := s.Clone()
	standings := Standings(next.Players)
	next.Phase = PhaseGameEnd
	next.FinishedAt = &now
	next.Result = &GameResult{
		WinnerID:    standings[0].PlayerID,
		WinnerName:  standings[0].PlayerName,
		FinalScores: standings,
	}
	return next, nil
}

// Standings orders players by score, highest first. Equal scores keep seat
// order.
func Standings(players []Player) []FinalScore {
	out := make([]FinalScore, len(players))
	for i, p := range players {
		out[i] = FinalScore{PlayerID: p.ID, PlayerName: p.Name, Score: p.Score}
	}
	sort.SliceStable(out, func(i, j int) bool { return out[i].Score > out[j].Score })
	for i := range out {
		out[i].Rank = i + 1
	}
	return out
}

// SetConnected returns a copy of s with the player's connection flag set.
func SetConnected(s *GameState, playerID string, connected bool) (*GameState, error) {
	i := s.PlayerIndex(playerID)
	if i < 0 {
		return nil, fmt.Errorf("%w: unknown player %s", ErrInvalidMove, playerID)
	}
	next := s.Clone()
	next.Players[i].IsConnected = connected
	return next, nil
}
