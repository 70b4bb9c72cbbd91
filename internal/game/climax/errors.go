package climax

import (
	"errors"
	"fmt"
)

// ErrInvalidMove is the root of every rejected player action. A rejected
// action leaves the state unchanged.
var ErrInvalidMove = errors.New("invalid move")

var (
	ErrWrongPhase     = fmt.Errorf("%w: action not allowed in this phase", ErrInvalidMove)
	ErrNotYourTurn    = fmt.Errorf("%w: not your turn", ErrInvalidMove)
	ErrBetOutOfRange  = fmt.Errorf("%w: bet out of range", ErrInvalidMove)
	ErrForbiddenBet   = fmt.Errorf("%w: total bets may not equal the tricks in play", ErrInvalidMove)
	ErrCardNotInHand  = fmt.Errorf("%w: card not in hand", ErrInvalidMove)
	ErrMustFollowSuit = fmt.Errorf("%w: must follow the turn suit", ErrInvalidMove)
	ErrUnknownAction  = fmt.Errorf("%w: unknown action", ErrInvalidMove)
)

// ErrIllegalState marks a broken engine invariant. It is never expected
// when actions go through PlaceBet, PlayCard and AdvanceRound.
var ErrIllegalState = errors.New("illegal game state")
