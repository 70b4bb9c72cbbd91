package climax

import "fmt"

// CanPlayCard applies the follow-suit rule. With no turn suit yet any card
// is legal; otherwise a player holding the turn suit must play it.
func CanPlayCard(card Card, hand []Card, turnSuit Suit) bool {
	if turnSuit == "" {
		return true
	}
	if hasSuit(hand, turnSuit) {
		return card.Suit == turnSuit
	}
	return true
}

// ValidCards returns the legal subset of hand for the given turn suit.
func ValidCards(hand []Card, turnSuit Suit) []Card {
	if turnSuit == "" || !hasSuit(hand, turnSuit) {
		return append([]Card(nil), hand...)
	}
	out := make([]Card, 0, len(hand))
	for _, c := range hand {
		if c.Suit == turnSuit {
			out = append(out, c)
		}
	}
	return out
}

// DetermineWinner resolves a trick. The highest card of the lead suit wins;
// without one, the highest card of the trick's turn suit wins.
func DetermineWinner(trick Trick, leadSuit Suit) (string, error) {
	if len(trick.Cards) == 0 {
		return "", fmt.Errorf("%w: winner of empty trick", ErrIllegalState)
	}
	if trick.TurnSuit == "" {
		return "", fmt.Errorf("%w: trick has no turn suit", ErrIllegalState)
	}
	if id, ok := highestOfSuit(trick.Cards, leadSuit); ok {
		return id, nil
	}
	if id, ok := highestOfSuit(trick.Cards, trick.TurnSuit); ok {
		return id, nil
	}
	return "", fmt.Errorf("%w: no card of turn suit %s in trick", ErrIllegalState, trick.TurnSuit)
}

func highestOfSuit(plays []PlayedCard, suit Suit) (string, bool) {
	best := -1
	winner := ""
	for _, p := range plays {
		if p.Card.Suit != suit {
			continue
		}
		if r := p.Card.Rank(); r > best {
			best = r
			winner = p.PlayerID
		}
	}
	return winner, best >= 0
}

func hasSuit(hand []Card, s Suit) bool {
	for _, c := range hand {
		if c.Suit == s {
			return true
		}
	}
	return false
}
