package climax

import "math/rand/v2"

// DeckSize is the number of cards in a Neapolitan deck.
const DeckSize = 40

// CreateDeck returns the 40 cards in fixed order.
func CreateDeck() []Card {
	deck := make([]Card, 0, DeckSize)
	for _, s := range Suits {
		for _, v := range Values {
			deck = append(deck, NewCard(s, v))
		}
	}
	return deck
}

// ShuffleDeck returns a shuffled copy of deck. The input is left untouched.
func ShuffleDeck(deck []Card, rng *rand.Rand) []Card {
	out := make([]Card, len(deck))
	copy(out, deck)
	// Fisher-Yates, j drawn from [0, i].
	for i := len(out) - 1; i > 0; i-- {
		j := rng.IntN(i + 1)
		out[i], out[j] = out[j], out[i]
	}
	return out
}

// DealCards deals round-robin, one card per player per pass, starting at the
// top of the deck. If the deck runs out the remaining hands come back short.
func DealCards(deck []Card, numPlayers, cardsPerPlayer int) [][]Card {
	hands := make([][]Card, numPlayers)
	for p := range hands {
		hands[p] = make([]Card, 0, cardsPerPlayer)
	}
	idx := 0
	for c := 0; c < cardsPerPlayer; c++ {
		for p := 0; p < numPlayers; p++ {
			if idx >= len(deck) {
				return hands
			}
			hands[p] = append(hands[p], deck[idx])
			idx++
		}
	}
	return hands
}

// DrawLeadSuitCard picks a card uniformly from the undealt remainder
// deck[dealt:]. It reports false when nothing is left to draw from.
func DrawLeadSuitCard(deck []Card, dealt int, rng *rand.Rand) (Card, bool) {
	if dealt < 0 || dealt >= len(deck) {
		return Card{}, false
	}
	rest := deck[dealt:]
	return rest[rng.IntN(len(rest))], true
}
