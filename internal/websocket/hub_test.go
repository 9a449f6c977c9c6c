package websocket

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/tariel-x/affiliates/internal/leaderboard"

	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/require"
)

func dial(t *testing.T, hub *Hub) *websocket.Conn {
	t.Helper()
	upgrader := websocket.Upgrader{}
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		conn, err := upgrader.Upgrade(w, r, nil)
		if err != nil {
			return
		}
		hub.Serve(conn)
	}))
	t.Cleanup(srv.Close)

	conn, _, err := websocket.DefaultDialer.Dial("ws"+strings.TrimPrefix(srv.URL, "http"), nil)
	require.NoError(t, err)
	t.Cleanup(func() { _ = conn.Close() })
	return conn
}

func read(t *testing.T, conn *websocket.Conn) (Envelope, leaderboard.Boards) {
	t.Helper()
	require.NoError(t, conn.SetReadDeadline(time.Now().Add(2*time.Second)))
	_, payload, err := conn.ReadMessage()
	require.NoError(t, err)

	var env Envelope
	require.NoError(t, json.Unmarshal(payload, &env))
	var b leaderboard.Boards
	require.NoError(t, json.Unmarshal(env.Data, &b))
	return env, b
}

func TestHubBroadcastsAndReplaysLastLiveFrame(t *testing.T) {
	hub := NewHub(nil)
	ctx := context.Background()

	first := dial(t, hub)
	require.Eventually(t, func() bool { return hub.Len() == 1 }, time.Second, 10*time.Millisecond)

	hub.LeaderboardPublished(ctx, leaderboard.Boards{Month: "2026-03"}, false)
	env, b := read(t, first)
	require.Equal(t, TypeLeaderboard, env.Type)
	require.Equal(t, "2026-03", b.Month)

	hub.LeaderboardPublished(ctx, leaderboard.Boards{Month: "2026-02"}, true)
	env, b = read(t, first)
	require.Equal(t, TypeFinal, env.Type)
	require.Equal(t, "2026-02", b.Month)

	// Late subscribers get the latest live frame, not the final one.
	second := dial(t, hub)
	env, b = read(t, second)
	require.Equal(t, TypeLeaderboard, env.Type)
	require.Equal(t, "2026-03", b.Month)
}

func TestHubDropsDisconnectedSubscribers(t *testing.T) {
	hub := NewHub(nil)
	conn := dial(t, hub)
	require.Eventually(t, func() bool { return hub.Len() == 1 }, time.Second, 10*time.Millisecond)

	require.NoError(t, conn.Close())
	require.Eventually(t, func() bool { return hub.Len() == 0 }, 2*time.Second, 10*time.Millisecond)
}
