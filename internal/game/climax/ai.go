package climax

import (
	"math/rand/v2"
	"sort"
	"time"
)

var aiNames = []string{
	"Marco",
	"Giuseppe",
	"Antonio",
	"Francesco",
	"Luigi",
	"Giovanni",
	"Alessandro",
	"Paolo",
	"Matteo",
	"Roberto",
}

// AIName returns a table name for the index-th AI seat.
func AIName(index int) string {
	if index < 0 {
		index = -index
	}
	return aiNames[index%len(aiNames)]
}

// CalculateAIBet estimates how many tricks hand will take. In a one-card
// round the card is unseen, so the bet is a coin flip between 0 and 1.
func CalculateAIBet(hand []Card, leadSuit Suit, oneCardRound bool, rng *rand.Rand) int {
	if oneCardRound {
		return rng.IntN(2)
	}
	high, leadHigh := 0, 0
	for _, c := range hand {
		if c.Rank() >= highCardRank {
			high++
			if c.Suit == leadSuit {
				leadHigh++
			}
		}
	}
	bet := high / 2
	if leadHigh > 0 {
		bet++
	}
	if rng.Float64() < 0.3 {
		if rng.Float64() < 0.5 {
			bet--
		} else {
			bet++
		}
	}
	return clamp(bet, 0, len(hand))
}

// SelectAICard chooses a legal card. The highest legal lead-suit card is
// played when there is one. Otherwise, following the turn suit, the AI plays
// its highest card 70% of the time and its lowest 30%; with nothing to
// follow it discards its lowest card.
func SelectAICard(hand []Card, turnSuit, leadSuit Suit, rng *rand.Rand) (Card, bool) {
	valid := ValidCards(hand, turnSuit)
	if len(valid) == 0 {
		return Card{}, false
	}
	byRankDesc := func(cs []Card) {
		sort.SliceStable(cs, func(i, j int) bool { return cs[i].Rank() > cs[j].Rank() })
	}

	lead := filterSuit(valid, leadSuit)
	if len(lead) > 0 {
		byRankDesc(lead)
		return lead[0], true
	}
	if turnSuit != "" {
		follow := filterSuit(valid, turnSuit)
		if len(follow) > 0 {
			byRankDesc(follow)
			if rng.Float64() < 0.7 {
				return follow[0], true
			}
			return follow[len(follow)-1], true
		}
	}
	byRankDesc(valid)
	return valid[len(valid)-1], true
}

// AIActionDelay returns a pause in [1s, 3s) used to pace AI moves.
func AIActionDelay(rng *rand.Rand) time.Duration {
	return time.Second + time.Duration(rng.Int64N(int64(2*time.Second)))
}

// ChooseAIBet runs CalculateAIBet for the acting player and, when the
// variant forbids the exact total, steps off the forbidden value.
func ChooseAIBet(s *GameState, rng *rand.Rand) (int, error) {
	p := s.CurrentPlayer()
	if p == nil || s.Phase != PhaseBetting {
		return 0, ErrWrongPhase
	}
	r := s.CurrentRound
	bet := CalculateAIBet(p.Hand, r.LeadSuit(), IsOneCardRound(r.CardsPerPlayer), rng)
	if !s.Rules.ForbidExactTotal {
		return bet, nil
	}
	for _, bad := range InvalidBets(r.Bets, r.CardsPerPlayer, len(s.Players)) {
		if bet != bad {
			continue
		}
		if bet+1 <= r.CardsPerPlayer {
			bet++
		} else {
			bet--
		}
	}
	return bet, nil
}

// ChooseAICard picks the acting player's card for the current trick.
func ChooseAICard(s *GameState, rng *rand.Rand) (Card, error) {
	p := s.CurrentPlayer()
	if p == nil || s.Phase != PhasePlaying {
		return Card{}, ErrWrongPhase
	}
	r := s.CurrentRound
	c, ok := SelectAICard(p.Hand, r.CurrentTrick.TurnSuit, r.LeadSuit(), rng)
	if !ok {
		return Card{}, ErrIllegalState
	}
	return c, nil
}

func filterSuit(cards []Card, s Suit) []Card {
	var out []Card
	for _, c := range cards {
		if c.Suit == s {
			out = append(out, c)
		}
	}
	return out
}

func clamp(v, lo, hi int) int {
	if v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}
