package server

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"nhooyr.io/websocket"

	"climax/internal/session"
)

func TestWSFirstMessageMustBeJoin(t *testing.T) {
	env := setupTestEnv(t)
	ctx, cancel := timeoutCtx(t)
	defer cancel()
	code, _ := createSessionViaAPI(t, env.ts, "climax", "alice")

	conn, _, err := websocket.Dial(ctx, wsURL(env.ts, code), nil)
	require.NoError(t, err)
	defer conn.Close(websocket.StatusNormalClosure, "")
	wsSend(ctx, t, conn, "action", actionPayload{})
	assert.Equal(t, "first message must be a join", readError(t, ctx, conn))
}

func TestWSUnknownSession(t *testing.T) {
	env := setupTestEnv(t)
	ctx, cancel := timeoutCtx(t)
	defer cancel()
	_, resp, err := websocket.Dial(ctx, wsURL(env.ts, "nope"), nil)
	require.Error(t, err)
	if resp != nil {
		assert.Equal(t, 404, resp.StatusCode)
	}
}

func TestWSJoinIssuesToken(t *testing.T) {
	env := setupTestEnv(t)
	ctx, cancel := timeoutCtx(t)
	defer cancel()
	code, aliceToken := createSessionViaAPI(t, env.ts, "climax", "alice")

	alice, _ := wsJoin(t, ctx, env.ts, code, joinPayload{PlayerID: "alice", Token: aliceToken})
	defer alice.Close(websocket.StatusNormalClosure, "")
	sp := readStateUntil(t, ctx, alice, hasPlayers(1))
	assert.Equal(t, session.StatusWaiting, sp.SessionInfo.Status)
	assert.Nil(t, sp.State)

	bob, bobToken := wsJoin(t, ctx, env.ts, code, joinPayload{PlayerID: "bob", PlayerName: "Bob"})
	defer bob.Close(websocket.StatusNormalClosure, "")
	assert.NoError(t, env.issuer.Verify(bobToken, code, "bob"))

	// alice sees bob take a seat
	sp = readStateUntil(t, ctx, alice, hasPlayers(2))
	assert.Equal(t, session.Seat{ID: "bob", Name: "Bob"}, sp.SessionInfo.Players[1])
	readStateUntil(t, ctx, bob, hasPlayers(2))
}

func TestWSSeatedPlayerNeedsToken(t *testing.T) {
	env := setupTestEnv(t)
	ctx, cancel := timeoutCtx(t)
	defer cancel()
	code, _ := createSessionViaAPI(t, env.ts, "climax", "alice")
	otherCode, otherToken := createSessionViaAPI(t, env.ts, "climax", "alice")
	require.NotEqual(t, code, otherCode)

	for name, token := range map[string]string{
		"missing":       "",
		"other session": otherToken,
		"garbage":       "not-a-token",
	} {
		t.Run(name, func(t *testing.T) {
			conn := wsConnect(t, ctx, env.ts, code, joinPayload{PlayerID: "alice", Token: token})
			defer conn.Close(websocket.StatusNormalClosure, "")
			assert.NotEmpty(t, readError(t, ctx, conn))
		})
	}
}

func TestWSStartAndFinishAgainstAI(t *testing.T) {
	env := setupTestEnv(t)
	ctx, cancel := timeoutCtx(t)
	defer cancel()
	code, token := createSessionViaAPI(t, env.ts, "climax", "alice")

	conn, _ := wsJoin(t, ctx, env.ts, code, joinPayload{PlayerID: "alice", Token: token})
	defer conn.Close(websocket.StatusNormalClosure, "")
	readStateUntil(t, ctx, conn, hasPlayers(1))

	wsSend(ctx, t, conn, "start", startPayload{AIPlayers: 2})
	var acted uint64
	for {
		msg := wsRead(ctx, t, conn)
		if msg.Type == "error" {
			// acted on a stale view; ask for the current one
			wsSend(ctx, t, conn, "sync", nil)
			continue
		}
		if msg.Type != "state" {
			continue
		}
		sp := decodeState(t, msg)
		if sp.SessionInfo.Status == session.StatusWaiting {
			continue
		}
		require.Len(t, sp.SessionInfo.Players, 3)
		assert.Equal(t, "alice", stateMap(t, sp)["you"])
		if sp.SessionInfo.Status == session.StatusFinished {
			require.Len(t, sp.Results, 3)
			assert.Equal(t, 1, sp.Results[0].Rank)
			assert.Empty(t, sp.ValidActions)
			break
		}
		if sp.Version > acted && len(sp.ValidActions) > 0 {
			acted = sp.Version
			wsSend(ctx, t, conn, "action", actionPayload{Action: sp.ValidActions[0]})
		}
	}

	require.Eventually(t, func() bool {
		games, err := env.store.ListHistory(ctx, 0)
		return err == nil && len(games) == 1
	}, 2*time.Second, 10*time.Millisecond)
	stats, err := env.store.PlayerStats(ctx, "alice")
	require.NoError(t, err)
	assert.Equal(t, 1, stats.GamesPlayed)
}

func TestWSActionErrors(t *testing.T) {
	env := setupTestEnv(t)
	ctx, cancel := timeoutCtx(t)
	defer cancel()
	code, token := createSessionViaAPI(t, env.ts, "climax", "alice")
	conn, _ := wsJoin(t, ctx, env.ts, code, joinPayload{PlayerID: "alice", Token: token})
	defer conn.Close(websocket.StatusNormalClosure, "")

	wsSend(ctx, t, conn, "action", actionPayload{})
	assert.Equal(t, session.ErrNotPlaying.Error(), readError(t, ctx, conn))

	wsSend(ctx, t, conn, "start", startPayload{})
	assert.Contains(t, readError(t, ctx, conn), "not enough players")

	wsSend(ctx, t, conn, "dance", nil)
	assert.Equal(t, "unknown message type: dance", readError(t, ctx, conn))
}

func TestWSDisconnectKeepsSeat(t *testing.T) {
	env := setupTestEnv(t)
	ctx, cancel := timeoutCtx(t)
	defer cancel()
	code, aliceToken := createSessionViaAPI(t, env.ts, "climax", "alice")
	sess, _ := env.mgr.Get(code)

	alice, _ := wsJoin(t, ctx, env.ts, code, joinPayload{PlayerID: "alice", Token: aliceToken})
	defer alice.Close(websocket.StatusNormalClosure, "")
	bob, bobToken := wsJoin(t, ctx, env.ts, code, joinPayload{PlayerID: "bob"})

	wsSend(ctx, t, alice, "start", startPayload{})
	readStateUntil(t, ctx, bob, func(sp statePayload) bool {
		return sp.SessionInfo.Status == session.StatusPlaying
	})

	bob.Close(websocket.StatusNormalClosure, "")
	require.Eventually(t, func() bool {
		return len(sess.Info().Connected) == 1
	}, 2*time.Second, 10*time.Millisecond)
	assert.Equal(t, []string{"alice", "bob"}, sess.PlayerIDs())

	// alice's view shows bob as disconnected
	sp := readStateUntil(t, ctx, alice, func(sp statePayload) bool {
		if sp.State == nil {
			return false
		}
		players, _ := stateMap(t, sp)["players"].([]any)
		return len(players) == 2 && players[1].(map[string]any)["isConnected"] == false
	})
	assert.Equal(t, []string{"alice"}, sp.SessionInfo.Connected)

	bob, _ = wsJoin(t, ctx, env.ts, code, joinPayload{PlayerID: "bob", Token: bobToken})
	defer bob.Close(websocket.StatusNormalClosure, "")
	sp = readStateUntil(t, ctx, bob, func(sp statePayload) bool { return sp.State != nil })
	assert.Equal(t, "bob", stateMap(t, sp)["you"])
}

func TestWSLeave(t *testing.T) {
	env := setupTestEnv(t)
	ctx, cancel := timeoutCtx(t)
	defer cancel()
	code, aliceToken := createSessionViaAPI(t, env.ts, "climax", "alice")
	sess, _ := env.mgr.Get(code)

	alice, _ := wsJoin(t, ctx, env.ts, code, joinPayload{PlayerID: "alice", Token: aliceToken})
	defer alice.Close(websocket.StatusNormalClosure, "")
	bob, _ := wsJoin(t, ctx, env.ts, code, joinPayload{PlayerID: "bob"})
	defer bob.Close(websocket.StatusNormalClosure, "")
	readStateUntil(t, ctx, alice, hasPlayers(2))

	wsSend(ctx, t, bob, "leave", nil)
	readStateUntil(t, ctx, alice, hasPlayers(1))
	assert.Equal(t, []string{"alice"}, sess.PlayerIDs())
}

func TestWSLobbyPresence(t *testing.T) {
	env := setupTestEnv(t)
	ctx, cancel := timeoutCtx(t)
	defer cancel()
	code, aliceToken := createSessionViaAPI(t, env.ts, "climax", "alice")

	alice, _ := wsJoin(t, ctx, env.ts, code, joinPayload{PlayerID: "alice", Token: aliceToken})
	defer alice.Close(websocket.StatusNormalClosure, "")
	bob, _ := wsJoin(t, ctx, env.ts, code, joinPayload{PlayerID: "bob"})

	sp := readStateUntil(t, ctx, alice, func(sp statePayload) bool {
		return len(sp.SessionInfo.Connected) == 2
	})
	assert.Equal(t, []string{"alice", "bob"}, sp.SessionInfo.Connected)
	assert.Equal(t, session.StatusWaiting, sp.SessionInfo.Status)

	bob.Close(websocket.StatusNormalClosure, "")
	sp = readStateUntil(t, ctx, alice, func(sp statePayload) bool {
		return len(sp.SessionInfo.Connected) == 1
	})
	assert.Equal(t, []string{"alice"}, sp.SessionInfo.Connected)
	assert.Len(t, sp.SessionInfo.Players, 2, "bob keeps his seat")
}

func TestWSLeaveFromOlderSocket(t *testing.T) {
	env := setupTestEnv(t)
	ctx, cancel := timeoutCtx(t)
	defer cancel()
	code, aliceToken := createSessionViaAPI(t, env.ts, "climax", "alice")

	alice, _ := wsJoin(t, ctx, env.ts, code, joinPayload{PlayerID: "alice", Token: aliceToken})
	defer alice.Close(websocket.StatusNormalClosure, "")
	older, bobToken := wsJoin(t, ctx, env.ts, code, joinPayload{PlayerID: "bob"})
	defer older.Close(websocket.StatusNormalClosure, "")
	newer, _ := wsJoin(t, ctx, env.ts, code, joinPayload{PlayerID: "bob", Token: bobToken})
	defer newer.Close(websocket.StatusNormalClosure, "")

	wsSend(ctx, t, older, "leave", nil)
	readStateUntil(t, ctx, alice, hasPlayers(1))
	for {
		if _, _, err := older.Read(ctx); err != nil {
			break
		}
	}

	// the newer socket is still served
	wsSend(ctx, t, newer, "action", actionPayload{})
	assert.Equal(t, session.ErrNotPlaying.Error(), readError(t, ctx, newer))
}
