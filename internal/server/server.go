package server

import (
	"encoding/json"
	"errors"
	"net/http"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/sirupsen/logrus"

	"climax/internal/auth"
	"climax/internal/game"
	"climax/internal/session"
	"climax/internal/storage"
)

// Server is the HTTP server.
type Server struct {
	mux      *http.ServeMux
	registry *game.Registry
	manager  *session.Manager
	issuer   *auth.Issuer
	history  storage.History
	log      logrus.FieldLogger

	wmu      sync.Mutex
	watchers map[string]*watcher
}

// New creates a server with all routes. history may be nil, in which case
// the history endpoints answer 503.
func New(registry *game.Registry, manager *session.Manager, issuer *auth.Issuer, history storage.History, log logrus.FieldLogger) *Server {
	if log == nil {
		log = logrus.StandardLogger()
	}
	s := &Server{
		mux:      http.NewServeMux(),
		registry: registry,
		manager:  manager,
		issuer:   issuer,
		history:  history,
		log:      log,
		watchers: make(map[string]*watcher),
	}
	s.routes()
	return s
}

func (s *Server) routes() {
	s.mux.HandleFunc("GET /api/games", s.handleListGames)
	s.mux.HandleFunc("GET /api/sessions", s.handleListSessions)
	s.mux.HandleFunc("POST /api/sessions", s.handleCreateSession)
	s.mux.HandleFunc("GET /api/sessions/{code}", s.handleGetSession)
	s.mux.HandleFunc("GET /api/sessions/{code}/ws", s.handleWebSocket)
	s.mux.HandleFunc("POST /api/sessions/{code}/start", s.handleStartSession)
	s.mux.HandleFunc("GET /api/history", s.handleHistory)
	s.mux.HandleFunc("GET /api/players/{id}/stats", s.handlePlayerStats)
}

func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	start := time.Now()
	s.mux.ServeHTTP(w, r)
	s.log.WithFields(logrus.Fields{
		"method":   r.Method,
		"path":     r.URL.Path,
		"duration": time.Since(start),
	}).Debug("request")
}

func (s *Server) handleListGames(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, s.registry.List())
}

func (s *Server) handleListSessions(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, s.manager.List())
}

type createSessionRequest struct {
	GameType   string `json:"gameType"`
	PlayerID   string `json:"playerId"`
	PlayerName string `json:"playerName"`
	MaxPlayers int    `json:"maxPlayers,omitempty"`
}

type createSessionResponse struct {
	Code  string `json:"code"`
	Token string `json:"token"`
}

func (s *Server) handleCreateSession(w http.ResponseWriter, r *http.Request) {
	var req createSessionRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	req.GameType = strings.TrimSpace(req.GameType)
	req.PlayerID = strings.TrimSpace(req.PlayerID)
	req.PlayerName = strings.TrimSpace(req.PlayerName)
	if req.PlayerID == "" {
		writeError(w, http.StatusBadRequest, "playerId required")
		return
	}
	if req.GameType == "" {
		g, ok := s.registry.Default()
		if !ok {
			writeError(w, http.StatusServiceUnavailable, "no games registered")
			return
		}
		req.GameType = g.Info().Name
	}
	if _, ok := s.registry.Get(req.GameType); !ok {
		writeError(w, http.StatusBadRequest, "unknown game type: "+req.GameType)
		return
	}

	sess, err := s.manager.Create(req.GameType, req.PlayerID, req.PlayerName, req.MaxPlayers)
	if errors.Is(err, session.ErrTableSize) {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	if err != nil {
		s.log.WithError(err).Error("create session")
		writeError(w, http.StatusInternalServerError, "could not create session")
		return
	}
	token, err := s.issuer.Issue(sess.Code, req.PlayerID)
	if err != nil {
		s.log.WithError(err).Error("issue token")
		writeError(w, http.StatusInternalServerError, "could not issue token")
		return
	}
	writeJSON(w, http.StatusCreated, createSessionResponse{Code: sess.Code, Token: token})
}

func (s *Server) handleGetSession(w http.ResponseWriter, r *http.Request) {
	sess, ok := s.manager.Get(r.PathValue("code"))
	if !ok {
		writeError(w, http.StatusNotFound, "session not found")
		return
	}
	writeJSON(w, http.StatusOK, sess.Info())
}

type startSessionRequest struct {
	PlayerID  string `json:"playerId"`
	Token     string `json:"token"`
	AIPlayers int    `json:"aiPlayers"`
}

func (s *Server) handleStartSession(w http.ResponseWriter, r *http.Request) {
	code := r.PathValue("code")
	sess, ok := s.manager.Get(code)
	if !ok {
		writeError(w, http.StatusNotFound, "session not found")
		return
	}
	var req startSessionRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	if err := s.issuer.Verify(req.Token, code, req.PlayerID); err != nil {
		writeError(w, http.StatusUnauthorized, err.Error())
		return
	}
	if err := s.manager.Start(sess, req.PlayerID, req.AIPlayers); err != nil {
		writeError(w, statusFor(err), err.Error())
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "started"})
}

func (s *Server) handleHistory(w http.ResponseWriter, r *http.Request) {
	if s.history == nil {
		writeError(w, http.StatusServiceUnavailable, "history not configured")
		return
	}
	limit := 0
	if v := r.URL.Query().Get("limit"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n < 0 {
			writeError(w, http.StatusBadRequest, "limit must be a non-negative integer")
			return
		}
		limit = n
	}
	games, err := s.history.ListHistory(r.Context(), limit)
	if err != nil {
		s.log.WithError(err).Error("list history")
		writeError(w, http.StatusInternalServerError, "could not load history")
		return
	}
	writeJSON(w, http.StatusOK, games)
}

func (s *Server) handlePlayerStats(w http.ResponseWriter, r *http.Request) {
	if s.history == nil {
		writeError(w, http.StatusServiceUnavailable, "history not configured")
		return
	}
	stats, err := s.history.PlayerStats(r.Context(), r.PathValue("id"))
	if errors.Is(err, storage.ErrNoStats) {
		writeError(w, http.StatusNotFound, err.Error())
		return
	}
	if err != nil {
		s.log.WithError(err).Error("player stats")
		writeError(w, http.StatusInternalServerError, "could not load stats")
		return
	}
	writeJSON(w, http.StatusOK, stats)
}

// statusFor maps session errors to HTTP status codes.
func statusFor(err error) int {
	switch {
	case errors.Is(err, session.ErrNotHost):
		return http.StatusForbidden
	case errors.Is(err, session.ErrNotWaiting), errors.Is(err, session.ErrNotPlaying):
		return http.StatusConflict
	default:
		return http.StatusBadRequest
	}
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, map[string]string{"error": msg})
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}
