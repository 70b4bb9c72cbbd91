package climax

import "fmt"

const (
	MinPlayers = 2
	MaxPlayers = 6
)

// maxCardsPerPlayer is the peak hand size of the ladder by player count.
var maxCardsPerPlayer = map[int]int{
	2: 8,
	3: 8,
	4: 6,
	5: 6,
	6: 6,
}

// MaxCardsPerPlayer returns the largest hand dealt in a match of n players.
func MaxCardsPerPlayer(n int) (int, error) {
	m, ok := maxCardsPerPlayer[n]
	if !ok {
		return 0, fmt.Errorf("%w: %d players, want %d-%d", ErrIllegalState, n, MinPlayers, MaxPlayers)
	}
	return m, nil
}

// GenerateRoundSequence returns the hand sizes of every round of the match:
// 1 up to the peak, then back down to 1.
func GenerateRoundSequence(numPlayers int) ([]int, error) {
	m, err := MaxCardsPerPlayer(numPlayers)
	if err != nil {
		return nil, err
	}
	seq := make([]int, 0, 2*m-1)
	for i := 1; i <= m; i++ {
		seq = append(seq, i)
	}
	for i := m - 1; i >= 1; i-- {
		seq = append(seq, i)
	}
	return seq, nil
}

// TotalRounds is the length of the round sequence for n players.
func TotalRounds(numPlayers int) (int, error) {
	m, err := MaxCardsPerPlayer(numPlayers)
	if err != nil {
		return 0, err
	}
	return 2*m - 1, nil
}

// IsOneCardRound reports whether players bet blind this round.
func IsOneCardRound(cardsPerPlayer int) bool {
	return cardsPerPlayer == 1
}
