package server

import (
	"context"
	"encoding/json"
	"net/http"

	"github.com/sirupsen/logrus"
	"nhooyr.io/websocket"

	"climax/internal/game"
	"climax/internal/session"
)

// sendBuffer is the number of outbound messages a connection may lag behind.
const sendBuffer = 64

// WSMessage is the JSON envelope for WebSocket messages.
type WSMessage struct {
	Type    string          `json:"type"`
	Payload json.RawMessage `json:"payload"`
}

type joinPayload struct {
	PlayerID   string `json:"playerId"`
	PlayerName string `json:"playerName"`
	Token      string `json:"token,omitempty"`
}

type joinedPayload struct {
	PlayerID string `json:"playerId"`
	Token    string `json:"token"`
}

type actionPayload struct {
	Action game.Action `json:"action"`
}

type startPayload struct {
	AIPlayers int `json:"aiPlayers"`
}

type statePayload struct {
	Version      uint64              `json:"version"`
	State        any                 `json:"state,omitempty"`
	ValidActions []game.Action       `json:"validActions"`
	SessionInfo  session.Info        `json:"sessionInfo"`
	Results      []game.PlayerResult `json:"results,omitempty"`
}

type errorPayload struct {
	Message string `json:"message"`
}

func (s *Server) handleWebSocket(w http.ResponseWriter, r *http.Request) {
	code := r.PathValue("code")
	sess, ok := s.manager.Get(code)
	if !ok {
		http.Error(w, "session not found", http.StatusNotFound)
		return
	}

	conn, err := websocket.Accept(w, r, &websocket.AcceptOptions{
		InsecureSkipVerify: true, // allow any origin for dev
	})
	if err != nil {
		s.log.WithError(err).Warn("websocket accept")
		return
	}
	defer conn.Close(websocket.StatusNormalClosure, "")

	ctx, cancel := context.WithCancel(r.Context())
	defer cancel()

	// First message must be a join
	_, data, err := conn.Read(ctx)
	if err != nil {
		return
	}
	var msg WSMessage
	if err := json.Unmarshal(data, &msg); err != nil || msg.Type != "join" {
		sendWSError(ctx, conn, "first message must be a join")
		return
	}
	var join joinPayload
	if err := json.Unmarshal(msg.Payload, &join); err != nil || join.PlayerID == "" {
		sendWSError(ctx, conn, "invalid join payload")
		return
	}

	playerID := join.PlayerID
	token, err := s.admit(sess, join)
	if err != nil {
		sendWSError(ctx, conn, err.Error())
		return
	}
	log := s.log.WithFields(logrus.Fields{"session": code, "player": playerID})

	s.watch(sess)
	defer s.unwatch(code)

	send := make(chan []byte, sendBuffer)
	sendWSMsg(send, "joined", joinedPayload{PlayerID: playerID, Token: token})
	sess.ConnectPlayer(playerID, send)
	s.sendCurrent(sess, playerID)
	s.manager.SetConnected(sess, playerID, true)
	log.Info("player connected")

	// Writer goroutine: send messages from the channel to the websocket
	go func() {
		for {
			select {
			case msg := <-send:
				if err := conn.Write(ctx, websocket.MessageText, msg); err != nil {
					cancel()
					return
				}
			case <-ctx.Done():
				return
			}
		}
	}()

	// Reader loop: handle incoming messages
	for {
		_, data, err := conn.Read(ctx)
		if err != nil {
			break
		}
		var msg WSMessage
		if err := json.Unmarshal(data, &msg); err != nil {
			sendWSMsg(send, "error", errorPayload{Message: "invalid message"})
			continue
		}
		if left := s.handleMessage(sess, playerID, send, msg); left {
			break
		}
	}

	// The seat is kept so the player can reconnect with their token.
	if sess.DisconnectPlayer(playerID, send) {
		s.manager.SetConnected(sess, playerID, false)
	}
	log.Info("player disconnected")
}

// admit seats a new player or checks a returning player's token. It returns
// the token the connection should keep.
func (s *Server) admit(sess *session.Session, join joinPayload) (string, error) {
	if sess.IsSeated(join.PlayerID) {
		if err := s.issuer.Verify(join.Token, sess.Code, join.PlayerID); err != nil {
			return "", err
		}
		return join.Token, nil
	}
	if err := s.manager.Join(sess, join.PlayerID, join.PlayerName); err != nil {
		return "", err
	}
	return s.issuer.Issue(sess.Code, join.PlayerID)
}

// handleMessage handles one client message and reports whether the player
// left the session.
func (s *Server) handleMessage(sess *session.Session, playerID string, send chan []byte, msg WSMessage) bool {
	switch msg.Type {
	case "action":
		var ap actionPayload
		if err := json.Unmarshal(msg.Payload, &ap); err != nil {
			sendWSMsg(send, "error", errorPayload{Message: "invalid action payload"})
			return false
		}
		if err := s.manager.Apply(sess, playerID, ap.Action); err != nil {
			sendWSMsg(send, "error", errorPayload{Message: err.Error()})
		}

	case "start":
		var sp startPayload
		if len(msg.Payload) > 0 {
			if err := json.Unmarshal(msg.Payload, &sp); err != nil {
				sendWSMsg(send, "error", errorPayload{Message: "invalid start payload"})
				return false
			}
		}
		if err := s.manager.Start(sess, playerID, sp.AIPlayers); err != nil {
			sendWSMsg(send, "error", errorPayload{Message: err.Error()})
		}

	case "sync":
		s.sendCurrent(sess, playerID)

	case "leave":
		if err := s.manager.Leave(sess, playerID); err != nil {
			sendWSMsg(send, "error", errorPayload{Message: err.Error()})
			return false
		}
		return true

	default:
		sendWSMsg(send, "error", errorPayload{Message: "unknown message type: " + msg.Type})
	}
	return false
}

// sendCurrent sends the live state of the session to one player.
func (s *Server) sendCurrent(sess *session.Session, playerID string) {
	var msg []byte
	sess.Render(func(info session.Info, version uint64, m game.Match) {
		msg = stateMessage(info, version, m, playerID)
	})
	sess.Send(playerID, msg)
}

func stateMessage(info session.Info, version uint64, m game.Match, playerID string) []byte {
	sp := statePayload{Version: version, SessionInfo: info, ValidActions: []game.Action{}}
	if m != nil && info.Status != session.StatusWaiting {
		sp.State = m.State(playerID)
		if acts := m.ValidActions(playerID); acts != nil {
			sp.ValidActions = acts
		}
		if m.IsOver() {
			sp.Results = m.Results()
		}
	}
	return encodeWSMsg("state", sp)
}

func encodeWSMsg(msgType string, payload any) []byte {
	p, _ := json.Marshal(payload)
	msg, _ := json.Marshal(WSMessage{Type: msgType, Payload: p})
	return msg
}

func sendWSMsg(send chan []byte, msgType string, payload any) {
	select {
	case send <- encodeWSMsg(msgType, payload):
	default:
	}
}

func sendWSError(ctx context.Context, conn *websocket.Conn, message string) {
	conn.Write(ctx, websocket.MessageText, encodeWSMsg("error", errorPayload{Message: message}))
}
