package server

import (
	"context"
	"encoding/json"
	"fmt"
	"math/rand/v2"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/require"
	"nhooyr.io/websocket"

	"climax/internal/auth"
	"climax/internal/game"
	"climax/internal/game/climax"
	"climax/internal/session"
	"climax/internal/storage"
)

// --- Test environment ---

type testEnv struct {
	ts     *httptest.Server
	mgr    *session.Manager
	store  *storage.Store
	issuer *auth.Issuer
}

func testVariants() []*climax.Game {
	out := []*climax.Game{climax.Standard(), climax.Open()}
	for i, g := range out {
		seed := uint64(i + 1)
		g.AIDelayScale = 0
		g.RoundEndDelay = 5 * time.Millisecond
		g.NewRand = func() *rand.Rand { return rand.New(rand.NewPCG(seed, 99)) }
	}
	return out
}

func setupTestEnv(t *testing.T) *testEnv {
	t.Helper()
	store, err := storage.New(":memory:")
	require.NoError(t, err)

	reg := game.NewRegistry()
	for _, g := range testVariants() {
		reg.Register(g)
	}
	log := logrus.New()
	log.SetLevel(logrus.WarnLevel)
	mgr := session.NewManager(reg, store, session.Options{
		History: []storage.HistorySink{store},
		Logger:  log,
		AIName:  climax.AIName,
	})
	issuer, err := auth.NewIssuer("test-secret", time.Hour)
	require.NoError(t, err)

	ts := httptest.NewServer(New(reg, mgr, issuer, store, log))
	t.Cleanup(func() {
		ts.Close()
		mgr.Close()
		store.Close()
	})
	return &testEnv{ts: ts, mgr: mgr, store: store, issuer: issuer}
}

func timeoutCtx(t *testing.T) (context.Context, context.CancelFunc) {
	t.Helper()
	return context.WithTimeout(context.Background(), 10*time.Second)
}

// --- REST API helpers ---

func postJSON(t *testing.T, url string, body any) *http.Response {
	t.Helper()
	data, err := json.Marshal(body)
	require.NoError(t, err)
	resp, err := http.Post(url, "application/json", strings.NewReader(string(data)))
	require.NoError(t, err)
	t.Cleanup(func() { resp.Body.Close() })
	return resp
}

func decode[T any](t *testing.T, resp *http.Response) T {
	t.Helper()
	var v T
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&v))
	return v
}

// createSessionViaAPI creates a session hosted by playerID and returns its
// code and the host's seat token.
func createSessionViaAPI(t *testing.T, ts *httptest.Server, gameType, playerID string) (string, string) {
	t.Helper()
	resp := postJSON(t, ts.URL+"/api/sessions", createSessionRequest{GameType: gameType, PlayerID: playerID, PlayerName: playerID})
	require.Equal(t, http.StatusCreated, resp.StatusCode)
	res := decode[createSessionResponse](t, resp)
	return res.Code, res.Token
}

// --- WebSocket helpers ---

func wsURL(ts *httptest.Server, code string) string {
	return strings.Replace(ts.URL, "http://", "ws://", 1) + "/api/sessions/" + code + "/ws"
}

// wsConnect dials a WebSocket and sends a join message. The caller is
// responsible for closing the connection.
func wsConnect(t *testing.T, ctx context.Context, ts *httptest.Server, code string, join joinPayload) *websocket.Conn {
	t.Helper()
	conn, _, err := websocket.Dial(ctx, wsURL(ts, code), nil)
	require.NoError(t, err)
	wsSend(ctx, t, conn, "join", join)
	return conn
}

// wsJoin connects and reads the joined message, returning the seat token.
func wsJoin(t *testing.T, ctx context.Context, ts *httptest.Server, code string, join joinPayload) (*websocket.Conn, string) {
	t.Helper()
	conn := wsConnect(t, ctx, ts, code, join)
	msg := wsRead(ctx, t, conn)
	require.Equal(t, "joined", msg.Type, string(msg.Payload))
	var jp joinedPayload
	require.NoError(t, json.Unmarshal(msg.Payload, &jp))
	return conn, jp.Token
}

func wsSend(ctx context.Context, t *testing.T, conn *websocket.Conn, msgType string, payload any) {
	t.Helper()
	require.NoError(t, conn.Write(ctx, websocket.MessageText, encodeWSMsg(msgType, payload)))
}

func wsRead(ctx context.Context, t *testing.T, conn *websocket.Conn) WSMessage {
	t.Helper()
	_, data, err := conn.Read(ctx)
	require.NoError(t, err)
	var msg WSMessage
	require.NoError(t, json.Unmarshal(data, &msg))
	return msg
}

// readStateUntil reads messages until a state message satisfies ok. Other
// messages are skipped.
func readStateUntil(t *testing.T, ctx context.Context, conn *websocket.Conn, ok func(statePayload) bool) statePayload {
	t.Helper()
	for {
		msg := wsRead(ctx, t, conn)
		if msg.Type != "state" {
			continue
		}
		if sp := decodeState(t, msg); ok(sp) {
			return sp
		}
	}
}

// readError reads until an error message arrives and returns its text.
func readError(t *testing.T, ctx context.Context, conn *websocket.Conn) string {
	t.Helper()
	for {
		msg := wsRead(ctx, t, conn)
		if msg.Type != "error" {
			continue
		}
		var ep errorPayload
		require.NoError(t, json.Unmarshal(msg.Payload, &ep))
		return ep.Message
	}
}

func hasPlayers(n int) func(statePayload) bool {
	return func(sp statePayload) bool { return len(sp.SessionInfo.Players) == n }
}

func stateMap(t *testing.T, sp statePayload) map[string]any {
	t.Helper()
	m, ok := sp.State.(map[string]any)
	require.True(t, ok, fmt.Sprintf("state is %T", sp.State))
	return m
}

func decodeState(t *testing.T, msg WSMessage) statePayload {
	t.Helper()
	var sp statePayload
	require.NoError(t, json.Unmarshal(msg.Payload, &sp))
	return sp
}
