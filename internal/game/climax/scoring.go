package climax

// CalculateScore rewards exact bets only. A hit is worth 10 plus 5 per
// trick; a miss costs 10 plus 5 per trick of difference.
func CalculateScore(bet, tricksWon int) int {
	if bet == tricksWon {
		return 10 + 5*tricksWon
	}
	diff := bet - tricksWon
	if diff < 0 {
		diff = -diff
	}
	return -(10 + 5*diff)
}

// CalculateRoundScores scores every player for the round. Missing bets and
// tallies count as zero. Player scores are not modified; TotalScore is the
// player's score with this round's points applied.
func CalculateRoundScores(players []Player, bets, tricksWon map[string]int) []RoundScore {
	out := make([]RoundScore, 0, len(players))
	for _, p := range players {
		bet := bets[p.ID]
		won := tricksWon[p.ID]
		pts := CalculateScore(bet, won)
		out = append(out, RoundScore{
			PlayerID:     p.ID,
			PlayerName:   p.Name,
			Bet:          bet,
			TricksWon:    won,
			PointsEarned: pts,
			TotalScore:   p.Score + pts,
		})
	}
	return out
}

// ValidateBets reports whether a full set of bets leaves at least one player
// unable to be exactly right, i.e. the bets do not sum to totalTricks.
func ValidateBets(bets []int, totalTricks int) bool {
	sum := 0
	for _, b := range bets {
		sum += b
	}
	return sum != totalTricks
}

// InvalidBets returns the bet values the next bettor may not choose. Only the
// last bettor is restricted: the one value that would make the bets add up
// to the number of tricks is forbidden.
func InvalidBets(bets map[string]int, totalTricks, numPlayers int) []int {
	if numPlayers-len(bets) != 1 {
		return nil
	}
	sum := 0
	for _, b := range bets {
		sum += b
	}
	forbidden := totalTricks - sum
	if forbidden < 0 || forbidden > totalTricks {
		return nil
	}
	return []int{forbidden}
}
