package server

import (
	"context"

	"github.com/sirupsen/logrus"

	"climax/internal/game"
	"climax/internal/session"
)

// watcher forwards one session's published updates to its connections
// while at least one connection is open.
type watcher struct {
	cancel context.CancelFunc
	refs   int
}

func (s *Server) watch(sess *session.Session) {
	s.wmu.Lock()
	defer s.wmu.Unlock()
	if w, ok := s.watchers[sess.Code]; ok {
		w.refs++
		return
	}
	ctx, cancel := context.WithCancel(context.Background())
	updates, err := s.manager.Subscribe(ctx, sess.Code)
	if err != nil {
		cancel()
		s.log.WithError(err).WithField("session", sess.Code).Error("subscribe")
		return
	}
	s.watchers[sess.Code] = &watcher{cancel: cancel, refs: 1}
	go s.fanOut(sess, updates)
}

func (s *Server) unwatch(code string) {
	s.wmu.Lock()
	defer s.wmu.Unlock()
	w, ok := s.watchers[code]
	if !ok {
		return
	}
	w.refs--
	if w.refs == 0 {
		w.cancel()
		delete(s.watchers, code)
	}
}

// fanOut renders every update for each connected player. Updates carry the
// full match state, so each one is rebuilt with the session's game and
// filtered per player.
func (s *Server) fanOut(sess *session.Session, updates <-chan session.Update) {
	var last uint64
	for u := range updates {
		if u.Version <= last {
			continue
		}
		last = u.Version

		var m game.Match
		if len(u.State) > 0 {
			restored, err := sess.Game().RestoreMatch(u.State)
			if err != nil {
				s.log.WithError(err).WithFields(logrus.Fields{"session": u.Code, "version": u.Version}).Warn("bad update state")
				continue
			}
			m = restored
		}
		info := session.Info{
			Code:       u.Code,
			GameType:   u.GameType,
			Status:     u.Status,
			Players:    u.Seats,
			MaxPlayers: u.MaxPlayers,
			HostID:     u.HostID,
			Connected:  sess.Info().Connected,
		}
		if m == nil {
			// lobby updates look the same to everyone
			sess.Broadcast(stateMessage(info, u.Version, nil, ""))
			continue
		}
		for _, pid := range info.Connected {
			sess.Send(pid, stateMessage(info, u.Version, m, pid))
		}
	}
}
