package climax

// Suit is one of the four Neapolitan suits.
type Suit string

const (
	Coins  Suit = "coins"
	Cups   Suit = "cups"
	Swords Suit = "swords"
	Clubs  Suit = "clubs"
)

// Value is the face of a card.
type Value string

const (
	Ace    Value = "ace"
	Two    Value = "2"
	Three  Value = "3"
	Four   Value = "4"
	Five   Value = "5"
	Six    Value = "6"
	Seven  Value = "7"
	Jack   Value = "jack"
	Knight Value = "knight"
	King   Value = "king"
)

// Suits lists the suits in deck order.
var Suits = []Suit{Coins, Cups, Swords, Clubs}

// Values lists the faces in deck order.
var Values = []Value{Ace, Two, Three, Four, Five, Six, Seven, Jack, Knight, King}

// rankOf orders faces within a suit: 2 is lowest, ace highest.
var rankOf = map[Value]int{
	Two:    5,
	Three:  6,
	Four:   7,
	Five:   8,
	Six:    9,
	Seven:  10,
	Jack:   11,
	Knight: 12,
	King:   13,
	Ace:    14,
}

// highCardRank is the lowest rank the AI counts as a likely trick winner.
const highCardRank = 11

// Card is a single immutable card.
type Card struct {
	Suit  Suit   `json:"suit"`
	Value Value  `json:"value"`
	ID    string `json:"id"`
}

// NewCard builds a card with its deterministic id.
func NewCard(suit Suit, value Value) Card {
	return Card{Suit: suit, Value: value, ID: string(suit) + "-" + string(value)}
}

// Rank returns the card's strength within its suit.
func (c Card) Rank() int { return rankOf[c.Value] }

func (c Card) String() string { return c.ID }

func validSuit(s Suit) bool {
	for _, x := range Suits {
		if x == s {
			return true
		}
	}
	return false
}
