package session

import (
	"context"
	"crypto/rand"
	"database/sql"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"strconv"
	"sync"
	"time"

	"github.com/sirupsen/logrus"

	"climax/internal/game"
	"climax/internal/realtime"
	"climax/internal/storage"
)

// ErrUnknownSession is returned for codes the manager does not hold.
var ErrUnknownSession = errors.New("unknown session")

// collaboratorTimeout bounds each call to the broker and history sinks.
const collaboratorTimeout = 5 * time.Second

// Update is the snapshot published after every accepted change.
type Update struct {
	Code       string          `json:"code"`
	GameType   string          `json:"gameType"`
	Version    uint64          `json:"version"`
	Status     Status          `json:"status"`
	HostID     string          `json:"hostId"`
	Seats      []Seat          `json:"seats"`
	MaxPlayers int             `json:"maxPlayers"`
	State      json.RawMessage `json:"state,omitempty"`
}

// Options configures a Manager. Zero values get defaults.
type Options struct {
	// Broker receives a snapshot after every change. Defaults to a
	// process-local broker.
	Broker realtime.Broker
	// History sinks each receive every finished game.
	History []storage.HistorySink
	Logger  logrus.FieldLogger
	// AIName names the i-th AI seat of a table.
	AIName func(i int) string
	Now    func() time.Time
}

// Manager owns all live sessions. Every change to a session goes through
// the manager, which persists and publishes it and schedules the server's
// own moves.
type Manager struct {
	mu       sync.RWMutex
	sessions map[string]*Session
	registry *game.Registry
	store    *storage.Store
	broker   realtime.Broker
	history  []storage.HistorySink
	log      logrus.FieldLogger
	aiName   func(int) string
	now      func() time.Time
}

// NewManager creates a session manager.
func NewManager(registry *game.Registry, store *storage.Store, opts Options) *Manager {
	m := &Manager{
		sessions: make(map[string]*Session),
		registry: registry,
		store:    store,
		broker:   opts.Broker,
		history:  opts.History,
		log:      opts.Logger,
		aiName:   opts.AIName,
		now:      opts.Now,
	}
	if m.broker == nil {
		m.broker = realtime.NewMemoryBroker()
	}
	if m.log == nil {
		m.log = logrus.StandardLogger()
	}
	if m.aiName == nil {
		m.aiName = func(i int) string { return "AI " + strconv.Itoa(i+1) }
	}
	if m.now == nil {
		m.now = time.Now
	}
	return m
}

// Create makes a new session hosted by hostID and persists it. The table
// seats at most maxPlayers; 0 means the variant's maximum.
func (m *Manager) Create(gameType, hostID, hostName string, maxPlayers int) (*Session, error) {
	g, ok := m.registry.Get(gameType)
	if !ok {
		return nil, fmt.Errorf("unknown game type: %s", gameType)
	}
	if hostID == "" {
		return nil, fmt.Errorf("player id required")
	}
	info := g.Info()
	if maxPlayers == 0 {
		maxPlayers = info.MaxPlayers
	}
	if maxPlayers < info.MinPlayers || maxPlayers > info.MaxPlayers {
		return nil, fmt.Errorf("%w: %d, want %d-%d", ErrTableSize, maxPlayers, info.MinPlayers, info.MaxPlayers)
	}
	code := generateCode()
	if err := m.store.CreateSession(code, gameType, maxPlayers); err != nil {
		return nil, fmt.Errorf("persist session: %w", err)
	}
	s := NewSession(code, gameType, g)
	s.MaxPlayers = maxPlayers
	s.mu.Lock()
	err := s.addSeatLocked(Seat{ID: hostID, Name: hostName})
	if err == nil {
		m.commitLocked(s)
	}
	s.mu.Unlock()
	if err != nil {
		m.store.DeleteSession(code)
		return nil, err
	}

	m.mu.Lock()
	m.sessions[code] = s
	m.mu.Unlock()
	m.log.WithFields(logrus.Fields{"session": code, "game": gameType, "player": hostID, "maxPlayers": maxPlayers}).Info("session created")
	return s, nil
}

// Get returns a session by code.
func (m *Manager) Get(code string) (*Session, bool) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	s, ok := m.sessions[code]
	return s, ok
}

// List returns info for all active sessions.
func (m *Manager) List() []Info {
	m.mu.RLock()
	defer m.mu.RUnlock()
	infos := make([]Info, 0, len(m.sessions))
	for _, s := range m.sessions {
		infos = append(infos, s.Info())
	}
	return infos
}

// Join seats a player in a waiting session.
func (m *Manager) Join(s *Session, playerID, name string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.addSeatLocked(Seat{ID: playerID, Name: name}); err != nil {
		return err
	}
	m.commitLocked(s)
	m.log.WithFields(logrus.Fields{"session": s.Code, "player": playerID}).Info("player joined")
	return nil
}

// Leave gives up a seat in a waiting session.
func (m *Manager) Leave(s *Session, playerID string) error {
	if err := s.RemovePlayer(playerID); err != nil {
		return err
	}
	s.mu.Lock()
	m.commitLocked(s)
	s.mu.Unlock()
	return nil
}

// Start deals the first round. Only the host may start; aiPlayers AI seats
// are added first.
func (m *Manager) Start(s *Session, playerID string, aiPlayers int) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.Status != StatusWaiting {
		return ErrNotWaiting
	}
	if playerID != s.HostID {
		return ErrNotHost
	}
	if aiPlayers < 0 {
		aiPlayers = 0
	}
	seats := len(s.Seats)
	if err := s.fillAILocked(aiPlayers, m.aiName); err != nil {
		s.Seats = s.Seats[:seats]
		return err
	}
	if err := s.startLocked(); err != nil {
		s.Seats = s.Seats[:seats]
		return err
	}
	m.commitLocked(s)
	m.log.WithFields(logrus.Fields{"session": s.Code, "players": len(s.Seats), "ai": aiPlayers}).Info("game started")
	return nil
}

// Apply runs one player action. A rejected action changes nothing and
// publishes nothing.
func (m *Manager) Apply(s *Session, playerID string, action game.Action) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return m.applyLocked(s, playerID, action)
}

func (m *Manager) applyLocked(s *Session, playerID string, action game.Action) error {
	if s.Status != StatusPlaying || s.Match == nil {
		return ErrNotPlaying
	}
	if playerID != game.SystemActor && s.seatIndexLocked(playerID) < 0 {
		return ErrNotSeated
	}
	if err := s.Match.ApplyAction(playerID, action); err != nil {
		return err
	}
	if s.Match.IsOver() {
		s.Status = StatusFinished
	}
	m.log.WithFields(logrus.Fields{"session": s.Code, "player": playerID, "action": action.Type}).Debug("action applied")
	m.commitLocked(s)
	if s.Status == StatusFinished {
		m.recordLocked(s)
	}
	return nil
}

// SetConnected publishes a change in a player's connection. In a lobby
// the new presence goes out as is; during play it is also recorded in the
// match, if the game tracks it.
func (m *Manager) SetConnected(s *Session, playerID string, connected bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	switch s.Status {
	case StatusWaiting:
	case StatusPlaying:
		ct, ok := s.Match.(game.ConnectionTracker)
		if !ok {
			return
		}
		if err := ct.SetConnected(playerID, connected); err != nil {
			m.log.WithError(err).WithField("session", s.Code).Warn("set connected")
			return
		}
	default:
		return
	}
	m.commitLocked(s)
}

// commitLocked bumps the version, persists the session and publishes the
// new snapshot. Collaborator failures are logged; the in-memory session
// stays authoritative and is re-persisted on the next change.
func (m *Manager) commitLocked(s *Session) {
	s.Version++
	log := m.log.WithFields(logrus.Fields{"session": s.Code, "version": s.Version})

	u := Update{
		Code:       s.Code,
		GameType:   s.GameType,
		Version:    s.Version,
		Status:     s.Status,
		HostID:     s.HostID,
		Seats:      append([]Seat{}, s.Seats...),
		MaxPlayers: s.MaxPlayers,
	}
	if s.Match != nil {
		state, err := s.Match.MarshalJSON()
		if err != nil {
			log.WithError(err).Error("marshal match state")
			return
		}
		u.State = state
		if err := m.store.SaveMatchState(s.Code, string(state)); err != nil {
			log.WithError(err).Warn("save match state")
		}
	}
	if err := m.store.UpdateSessionStatus(s.Code, string(s.Status)); err != nil {
		log.WithError(err).Warn("save session status")
	}
	seats, _ := json.Marshal(u.Seats)
	if err := m.store.SaveSeats(s.Code, s.HostID, string(seats)); err != nil {
		log.WithError(err).Warn("save seats")
	}

	data, err := json.Marshal(u)
	if err != nil {
		log.WithError(err).Error("marshal update")
		return
	}
	ctx, cancel := context.WithTimeout(context.Background(), collaboratorTimeout)
	defer cancel()
	if err := m.broker.Save(ctx, s.Code, data); err != nil {
		log.WithError(err).Warn("broker save")
	}
	if err := m.broker.Publish(ctx, s.Code, data); err != nil {
		log.WithError(err).Warn("broker publish")
	}
	m.scheduleLocked(s)
}

// scheduleLocked arms a one-shot timer for the next move the server makes
// by itself. The timer only fires its move if nothing else changed the
// session in the meantime.
func (m *Manager) scheduleLocked(s *Session) {
	if s.timer != nil {
		s.timer.Stop()
		s.timer = nil
	}
	if s.Status != StatusPlaying {
		return
	}
	ap, ok := s.Match.(game.AutoPlayer)
	if !ok {
		return
	}
	next, ok := ap.NextAutoAction()
	if !ok {
		return
	}
	version := s.Version
	s.timer = time.AfterFunc(next.Delay, func() {
		s.mu.Lock()
		defer s.mu.Unlock()
		if s.Version != version {
			return
		}
		if err := m.applyLocked(s, next.PlayerID, next.Action); err != nil {
			m.log.WithError(err).WithFields(logrus.Fields{
				"session": s.Code,
				"player":  next.PlayerID,
				"action":  next.Action.Type,
			}).Error("scheduled action rejected")
		}
	})
}

// recordLocked sends the finished game to every history sink.
func (m *Manager) recordLocked(s *Session) {
	rec, ok := s.Match.(game.Recorder)
	if !ok || len(m.history) == 0 {
		return
	}
	r, ok := rec.Record()
	if !ok {
		return
	}
	ai := make(map[string]bool, len(s.Seats))
	for _, st := range s.Seats {
		ai[st.ID] = st.AI
	}
	entry := storage.HistoryEntry{
		GameID:          r.GameID,
		LobbyID:         r.LobbyID,
		GameType:        s.GameType,
		WinnerID:        r.WinnerID,
		WinnerName:      r.WinnerName,
		DurationSeconds: int(r.Duration.Round(time.Second) / time.Second),
		PlayedAt:        m.now(),
	}
	for _, p := range r.Players {
		entry.Players = append(entry.Players, storage.HistoryPlayer{
			ID:    p.PlayerID,
			Name:  p.Name,
			Score: p.Score,
			Rank:  p.Rank,
			AI:    ai[p.PlayerID],
		})
	}
	ctx, cancel := context.WithTimeout(context.Background(), collaboratorTimeout)
	defer cancel()
	for _, sink := range m.history {
		if err := sink.RecordGame(ctx, entry); err != nil {
			m.log.WithError(err).WithField("session", s.Code).Error("record game history")
		}
	}
	m.log.WithFields(logrus.Fields{"session": s.Code, "winner": r.WinnerID}).Info("game finished")
}

// Subscribe streams the updates published for a session until ctx is done.
func (m *Manager) Subscribe(ctx context.Context, code string) (<-chan Update, error) {
	raw, err := m.broker.Subscribe(ctx, code)
	if err != nil {
		return nil, err
	}
	out := make(chan Update, cap(raw))
	go func() {
		defer close(out)
		for data := range raw {
			var u Update
			if err := json.Unmarshal(data, &u); err != nil {
				m.log.WithError(err).WithField("session", code).Warn("bad update")
				continue
			}
			select {
			case out <- u:
			case <-ctx.Done():
				return
			}
		}
	}()
	return out, nil
}

// Restore loads unfinished sessions on startup. The broker snapshot is
// preferred; the local store is the fallback.
func (m *Manager) Restore(ctx context.Context) error {
	rows, err := m.store.ListSessions("")
	if err != nil {
		return fmt.Errorf("list sessions: %w", err)
	}
	for _, row := range rows {
		if row.Status == string(StatusFinished) {
			continue
		}
		log := m.log.WithField("session", row.Code)
		g, ok := m.registry.Get(row.GameType)
		if !ok {
			log.Warnf("skipping session: unknown game type %s", row.GameType)
			continue
		}
		s := NewSession(row.Code, row.GameType, g)
		s.Status = Status(row.Status)
		s.HostID = row.HostID
		if row.MaxPlayers > 0 {
			s.MaxPlayers = row.MaxPlayers
		}
		if err := json.Unmarshal([]byte(row.SeatsJSON), &s.Seats); err != nil {
			log.WithError(err).Warn("skipping session: bad seats")
			continue
		}

		state, version := m.loadState(ctx, row.Code)
		if s.Status == StatusPlaying {
			if state == nil {
				st, err := m.store.GetMatchState(row.Code)
				if err != nil {
					log.WithError(err).Warn("skipping session: no match state")
					continue
				}
				state = []byte(st)
			}
			match, err := g.RestoreMatch(state)
			if err != nil {
				log.WithError(err).Warn("skipping session: restore match")
				continue
			}
			s.Match = match
		}
		s.Version = version

		s.mu.Lock()
		m.scheduleLocked(s)
		s.mu.Unlock()

		m.mu.Lock()
		m.sessions[row.Code] = s
		m.mu.Unlock()
		log.WithField("status", s.Status).Info("session restored")
	}
	return nil
}

func (m *Manager) loadState(ctx context.Context, code string) (json.RawMessage, uint64) {
	ctx, cancel := context.WithTimeout(ctx, collaboratorTimeout)
	defer cancel()
	data, err := m.broker.Load(ctx, code)
	if err != nil {
		if !errors.Is(err, realtime.ErrNotFound) {
			m.log.WithError(err).WithField("session", code).Warn("broker load")
		}
		return nil, 0
	}
	var u Update
	if err := json.Unmarshal(data, &u); err != nil {
		return nil, 0
	}
	return u.State, u.Version
}

// Remove deletes a session from memory and storage.
func (m *Manager) Remove(code string) {
	m.mu.Lock()
	s, ok := m.sessions[code]
	delete(m.sessions, code)
	m.mu.Unlock()
	if ok {
		s.mu.Lock()
		if s.timer != nil {
			s.timer.Stop()
			s.timer = nil
		}
		s.mu.Unlock()
	}
	m.store.DeleteSession(code)
	ctx, cancel := context.WithTimeout(context.Background(), collaboratorTimeout)
	defer cancel()
	m.broker.Delete(ctx, code)
}

// CleanupLoop removes stale sessions periodically until ctx is done.
func (m *Manager) CleanupLoop(ctx context.Context, interval, maxAge time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			m.cleanup(maxAge)
		}
	}
}

func (m *Manager) cleanup(maxAge time.Duration) {
	m.mu.RLock()
	var stale []string
	now := m.now()
	for code, s := range m.sessions {
		s.mu.RLock()
		empty := len(s.conns) == 0
		finished := s.Status == StatusFinished
		s.mu.RUnlock()
		if !finished && !empty {
			continue
		}
		row, err := m.store.GetSession(code)
		if errors.Is(err, sql.ErrNoRows) || (err == nil && now.Sub(row.CreatedAt) > maxAge) {
			stale = append(stale, code)
		}
	}
	m.mu.RUnlock()

	for _, code := range stale {
		m.log.WithField("session", code).Info("cleaning up session")
		m.Remove(code)
	}
}

// Close stops every pending timer.
func (m *Manager) Close() {
	m.mu.RLock()
	defer m.mu.RUnlock()
	for _, s := range m.sessions {
		s.mu.Lock()
		if s.timer != nil {
			s.timer.Stop()
			s.timer = nil
		}
		s.mu.Unlock()
	}
}

func generateCode() string {
	b := make([]byte, 3) // 6 hex chars
	rand.Read(b)
	return hex.EncodeToString(b)
}
