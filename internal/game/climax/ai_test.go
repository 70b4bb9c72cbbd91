package climax

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestAIName(t *testing.T) {
	assert.Equal(t, "Marco", AIName(0))
	assert.Equal(t, "Giuseppe", AIName(1))
	assert.Equal(t, AIName(0), AIName(len(aiNames)))
}

func TestCalculateAIBetOneCardIsCoinFlip(t *testing.T) {
	rng := newRand(3)
	hand := []Card{NewCard(Coins, Ace)}
	counts := map[int]int{}
	for i := 0; i < 1000; i++ {
		counts[CalculateAIBet(hand, Coins, true, rng)]++
	}
	require.Len(t, counts, 2)
	assert.InDelta(t, 500, counts[0], 100)
	assert.InDelta(t, 500, counts[1], 100)
}

func TestCalculateAIBetBounds(t *testing.T) {
	rng := newRand(11)
	for i := 0; i < 2000; i++ {
		size := 1 + i%8
		deck := ShuffleDeck(CreateDeck(), rng)
		hand := deck[:size]
		bet := CalculateAIBet(hand, deck[size].Suit, false, rng)
		assert.GreaterOrEqual(t, bet, 0)
		assert.LessOrEqual(t, bet, size)
	}
}

func TestCalculateAIBetCountsHighCards(t *testing.T) {
	// four high cards, none of the lead suit: base estimate 2, jitter +-1
	hand := []Card{
		NewCard(Cups, Ace), NewCard(Cups, King),
		NewCard(Clubs, Knight), NewCard(Clubs, Jack),
		NewCard(Clubs, Two),
	}
	rng := newRand(5)
	counts := map[int]int{}
	for i := 0; i < 2000; i++ {
		counts[CalculateAIBet(hand, Swords, false, rng)]++
	}
	for bet := range counts {
		assert.Contains(t, []int{1, 2, 3}, bet)
	}
	assert.Greater(t, counts[2], counts[1]+counts[3])

	// one of them in the lead suit adds a trick
	counts = map[int]int{}
	for i := 0; i < 2000; i++ {
		counts[CalculateAIBet(hand, Cups, false, rng)]++
	}
	assert.Greater(t, counts[3], counts[2]+counts[4])
}

func TestSelectAICardPrefersLeadSuit(t *testing.T) {
	hand := []Card{NewCard(Swords, Two), NewCard(Swords, King), NewCard(Cups, Ace)}

	// leading with nothing on the table
	c, ok := SelectAICard(hand, "", Swords, newRand(1))
	require.True(t, ok)
	assert.Equal(t, "swords-king", c.ID)

	// cannot follow clubs, trumps with the highest lead card
	c, ok = SelectAICard(hand, Clubs, Swords, newRand(1))
	require.True(t, ok)
	assert.Equal(t, "swords-king", c.ID)
}

func TestSelectAICardFollowing(t *testing.T) {
	hand := []Card{NewCard(Cups, Two), NewCard(Cups, Knight), NewCard(Cups, Five), NewCard(Coins, Ace)}
	rng := newRand(9)
	counts := map[string]int{}
	for i := 0; i < 1000; i++ {
		c, ok := SelectAICard(hand, Cups, Swords, rng)
		require.True(t, ok)
		counts[c.ID]++
	}
	assert.Len(t, counts, 2)
	assert.InDelta(t, 700, counts["cups-knight"], 80)
	assert.InDelta(t, 300, counts["cups-2"], 80)
}

func TestSelectAICardDiscardsLowest(t *testing.T) {
	hand := []Card{NewCard(Cups, King), NewCard(Coins, Three), NewCard(Clubs, Seven)}
	c, ok := SelectAICard(hand, Swords, Swords, newRand(1))
	require.True(t, ok)
	assert.Equal(t, "coins-3", c.ID)

	_, ok = SelectAICard(nil, Swords, Swords, newRand(1))
	assert.False(t, ok)
}

func TestAIActionDelay(t *testing.T) {
	rng := newRand(2)
	for i := 0; i < 500; i++ {
		d := AIActionDelay(rng)
		assert.GreaterOrEqual(t, d, time.Second)
		assert.Less(t, d, 3*time.Second)
	}
}

func TestChooseAIBetAvoidsForbiddenTotal(t *testing.T) {
	for seed := uint64(0); seed < 200; seed++ {
		rng := newRand(seed)
		s := startedGame(t, 3, DefaultRules(), seed)
		for s.Phase == PhaseBetting {
			bet, err := ChooseAIBet(s, rng)
			require.NoError(t, err)
			next, err := PlaceBet(s, bet)
			require.NoError(t, err, "seed %d", seed)
			s = next
		}
		total := 0
		for _, b := range s.CurrentRound.Bets {
			total += b
		}
		assert.NotEqual(t, s.CurrentRound.CardsPerPlayer, total)
	}
}

func TestChooseAIWrongPhase(t *testing.T) {
	s := startedGame(t, 2, DefaultRules(), 1)
	_, err := ChooseAICard(s, newRand(1))
	assert.ErrorIs(t, err, ErrWrongPhase)

	s.Phase = PhaseRoundEnd
	_, err = ChooseAIBet(s, newRand(1))
	assert.ErrorIs(t, err, ErrWrongPhase)
}
