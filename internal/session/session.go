package session

import (
	"errors"
	"fmt"
	"strconv"
	"sync"
	"time"

	"climax/internal/game"
)

// Status represents the session lifecycle.
type Status string

const (
	StatusWaiting  Status = "waiting"
	StatusPlaying  Status = "playing"
	StatusFinished Status = "finished"
)

var (
	ErrNotWaiting    = errors.New("session is not accepting players")
	ErrFull          = errors.New("session is full")
	ErrAlreadySeated = errors.New("player already in session")
	ErrNotSeated     = errors.New("player not in session")
	ErrNotHost       = errors.New("only the host can start the game")
	ErrNotPlaying    = errors.New("session is not playing")
	ErrTooFewPlayers = errors.New("not enough players")
	ErrTableSize     = errors.New("invalid table size")
)

// Seat is a place at the table, in turn order.
type Seat struct {
	ID   string `json:"id"`
	Name string `json:"name"`
	AI   bool   `json:"ai,omitempty"`
}

// Player is a live connection of a seated player.
type Player struct {
	ID   string
	Send chan []byte // outbound messages
}

// Session is one table: its seats, its connections and, once started, its match.
type Session struct {
	mu       sync.RWMutex
	Code     string
	GameType string
	Status   Status
	HostID   string
	Seats    []Seat
	// MaxPlayers caps the seats, AI included.
	MaxPlayers int
	Match      game.Match
	// Version counts accepted changes; it orders published snapshots.
	Version uint64
	conns   map[string]*Player
	game    game.Game
	timer   *time.Timer
}

// NewSession creates a session in the waiting state, sized to the
// variant's maximum.
func NewSession(code, gameType string, g game.Game) *Session {
	return &Session{
		Code:       code,
		GameType:   gameType,
		Status:     StatusWaiting,
		MaxPlayers: g.Info().MaxPlayers,
		conns:      make(map[string]*Player),
		game:       g,
	}
}

// Game returns the variant the session plays.
func (s *Session) Game() game.Game { return s.game }

// addSeatLocked seats a player. The first human seat becomes host.
func (s *Session) addSeatLocked(seat Seat) error {
	if s.Status != StatusWaiting {
		return ErrNotWaiting
	}
	if len(s.Seats) >= s.MaxPlayers {
		return ErrFull
	}
	if s.seatIndexLocked(seat.ID) >= 0 {
		return fmt.Errorf("%w: %s", ErrAlreadySeated, seat.ID)
	}
	if seat.Name == "" {
		seat.Name = seat.ID
	}
	s.Seats = append(s.Seats, seat)
	if s.HostID == "" && !seat.AI {
		s.HostID = seat.ID
	}
	return nil
}

// fillAILocked adds up to n AI seats, named in seat order.
func (s *Session) fillAILocked(n int, name func(int) string) error {
	ai := 0
	for _, st := range s.Seats {
		if st.AI {
			ai++
		}
	}
	for i := 0; i < n; i++ {
		ai++
		id := "ai-" + strconv.Itoa(ai)
		for s.seatIndexLocked(id) >= 0 {
			ai++
			id = "ai-" + strconv.Itoa(ai)
		}
		if err := s.addSeatLocked(Seat{ID: id, Name: name(ai - 1), AI: true}); err != nil {
			return err
		}
	}
	return nil
}

// RemovePlayer gives up a seat before the game starts and detaches the
// player's connection. The connection's channel stays open; it belongs to
// whoever made it. The next human seat inherits the host role.
func (s *Session) RemovePlayer(playerID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.Status != StatusWaiting {
		return ErrNotWaiting
	}
	i := s.seatIndexLocked(playerID)
	if i < 0 {
		return ErrNotSeated
	}
	s.Seats = append(s.Seats[:i], s.Seats[i+1:]...)
	delete(s.conns, playerID)
	if s.HostID == playerID {
		s.HostID = ""
		for _, st := range s.Seats {
			if !st.AI {
				s.HostID = st.ID
				break
			}
		}
	}
	return nil
}

// ConnectPlayer attaches a connection to a seated player, replacing any
// previous one.
func (s *Session) ConnectPlayer(playerID string, send chan []byte) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.seatIndexLocked(playerID) < 0 {
		return false
	}
	s.conns[playerID] = &Player{ID: playerID, Send: send}
	return true
}

// DisconnectPlayer detaches send if it is still the player's connection.
// It reports whether the player is now without a connection.
func (s *Session) DisconnectPlayer(playerID string, send chan []byte) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	p, ok := s.conns[playerID]
	if !ok || p.Send != send {
		return false
	}
	delete(s.conns, playerID)
	return true
}

// PlayerIDs returns the seated player IDs in turn order.
func (s *Session) PlayerIDs() []string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	ids := make([]string, len(s.Seats))
	for i, st := range s.Seats {
		ids[i] = st.ID
	}
	return ids
}

// IsSeated reports whether playerID holds a seat.
func (s *Session) IsSeated(playerID string) bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.seatIndexLocked(playerID) >= 0
}

func (s *Session) seatIndexLocked(playerID string) int {
	for i, st := range s.Seats {
		if st.ID == playerID {
			return i
		}
	}
	return -1
}

// startLocked opens the match for the current seats.
func (s *Session) startLocked() error {
	if s.Status != StatusWaiting {
		return ErrNotWaiting
	}
	info := s.game.Info()
	if len(s.Seats) < info.MinPlayers {
		return fmt.Errorf("%w: need at least %d, have %d", ErrTooFewPlayers, info.MinPlayers, len(s.Seats))
	}
	seats := make([]game.Seat, len(s.Seats))
	for i, st := range s.Seats {
		seats[i] = game.Seat{ID: st.ID, Name: st.Name, AI: st.AI}
	}
	m, err := s.game.NewMatch(game.MatchConfig{LobbyID: s.Code, Seats: seats})
	if err != nil {
		return fmt.Errorf("new match: %w", err)
	}
	s.Match = m
	s.Status = StatusPlaying
	return nil
}

// Send delivers msg to one player's connection, dropping it if the buffer is full.
func (s *Session) Send(playerID string, msg []byte) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if p, ok := s.conns[playerID]; ok {
		select {
		case p.Send <- msg:
		default:
			// drop message if buffer full
		}
	}
}

// Broadcast sends a message to all connected players.
func (s *Session) Broadcast(msg []byte) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	for _, p := range s.conns {
		select {
		case p.Send <- msg:
		default:
		}
	}
}

// Info returns session info for the API.
type Info struct {
	Code       string   `json:"code"`
	GameType   string   `json:"gameType"`
	Status     Status   `json:"status"`
	Players    []Seat   `json:"players"`
	MaxPlayers int      `json:"maxPlayers"`
	HostID     string   `json:"hostId"`
	Connected  []string `json:"connected"`
}

func (s *Session) Info() Info {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.infoLocked()
}

// Render calls fn with the session's info, version and match under the read
// lock. fn must not change the match.
func (s *Session) Render(fn func(info Info, version uint64, m game.Match)) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	fn(s.infoLocked(), s.Version, s.Match)
}

func (s *Session) infoLocked() Info {
	connected := make([]string, 0, len(s.conns))
	for _, st := range s.Seats {
		if _, ok := s.conns[st.ID]; ok {
			connected = append(connected, st.ID)
		}
	}
	return Info{
		Code:       s.Code,
		GameType:   s.GameType,
		Status:     s.Status,
		Players:    append([]Seat{}, s.Seats...),
		MaxPlayers: s.MaxPlayers,
		HostID:     s.HostID,
		Connected:  connected,
	}
}
