package gateway

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/require"

	"github.com/SubratDash67/iplauctionbot/internal/auction"
	"github.com/SubratDash67/iplauctionbot/internal/config"
	"github.com/SubratDash67/iplauctionbot/internal/engine"
	"github.com/SubratDash67/iplauctionbot/internal/store"
)

func newTestServer(t *testing.T) *Server {
	t.Helper()
	ctx := context.Background()

	cfg, err := config.Default()
	require.NoError(t, err)
	cfg.Admins = []string{"admin"}

	st, err := store.Open(filepath.Join(t.TempDir(), "test.db"))
	require.NoError(t, err)
	t.Cleanup(func() { st.Close() })

	_, err = st.AddPlayers(ctx, "marquee", []store.PlayerSeed{
		{Name: "Player One", NameKey: "player one", BasePrice: cfg.BasePrice},
		{Name: "Player Two", NameKey: "player two", BasePrice: cfg.BasePrice},
	})
	require.NoError(t, err)

	tk := engine.NewManualTimekeeper(time.Date(2026, 3, 1, 10, 0, 0, 0, time.UTC))
	e, err := engine.New(ctx, st, cfg, engine.WithTimekeeper(tk))
	require.NoError(t, err)
	require.NoError(t, st.AssignUser(ctx, "u-mi", "MI"))

	runCtx, cancel := context.WithCancel(ctx)
	engineDone := make(chan struct{})
	go func() { defer close(engineDone); e.Run(runCtx) }()

	s := NewServer(cfg, e, st)
	hubDone := make(chan struct{})
	go func() { defer close(hubDone); s.hub.Run(runCtx) }()

	t.Cleanup(func() {
		cancel()
		<-engineDone
		<-hubDone
	})
	return s
}

func TestDispatchAdminGate(t *testing.T) {
	s := newTestServer(t)
	ctx := context.Background()

	reply := s.Dispatch(ctx, Frame{Type: "start", UserID: "u-mi"})
	require.Equal(t, ReplyError, reply.Type)
	require.Equal(t, "FORBIDDEN", reply.Code)

	reply = s.Dispatch(ctx, Frame{Type: "start", UserID: "admin"})
	require.Equal(t, ReplyOK, reply.Type)
}

func TestDispatchBid(t *testing.T) {
	s := newTestServer(t)
	ctx := context.Background()

	reply := s.Dispatch(ctx, Frame{Type: "bid", UserID: "u-mi"})
	require.Equal(t, ReplyError, reply.Type)
	require.Equal(t, string(engine.ErrCodeNotRunning), reply.Code)

	require.Equal(t, ReplyOK, s.Dispatch(ctx, Frame{Type: "start", UserID: "admin"}).Type)

	reply = s.Dispatch(ctx, Frame{Type: "bid", UserID: "u-mi"})
	require.Equal(t, ReplyOK, reply.Type)
	require.NotNil(t, reply.Bid)
	require.Equal(t, "MI", reply.Bid.Team)

	// Rejections carry the structured details through.
	reply = s.Dispatch(ctx, Frame{Type: "bid", UserID: "u-mi", Amount: 1})
	require.Equal(t, string(engine.ErrCodeBidTooLow), reply.Code)
	require.NotEmpty(t, reply.Details["minimum"])
}

func TestDispatchRegistration(t *testing.T) {
	s := newTestServer(t)
	ctx := context.Background()

	reply := s.Dispatch(ctx, Frame{Type: "assign", UserID: "admin", Target: "u-csk", Team: "CSK"})
	require.Equal(t, ReplyOK, reply.Type)

	team, err := s.store.UserTeam(ctx, "u-csk")
	require.NoError(t, err)
	require.Equal(t, "CSK", team)

	reply = s.Dispatch(ctx, Frame{Type: "unassign", UserID: "admin", Target: "u-csk"})
	require.Equal(t, ReplyOK, reply.Type)
	_, err = s.store.UserTeam(ctx, "u-csk")
	require.Error(t, err)
}

func TestDispatchUnknownOp(t *testing.T) {
	s := newTestServer(t)
	reply := s.Dispatch(context.Background(), Frame{Type: "dance", UserID: "admin"})
	require.Equal(t, "UNKNOWN_OP", reply.Code)
}

func TestDispatchState(t *testing.T) {
	s := newTestServer(t)
	reply := s.Dispatch(context.Background(), Frame{Type: "state", UserID: "anyone"})
	require.Equal(t, ReplyState, reply.Type)
	require.NotNil(t, reply.State)
	require.Equal(t, auction.StatusIdle, reply.State.Status)
}

// readReplies collects JSON replies from the socket, handling the
// newline-coalesced frames the write pump produces.
func readReplies(t *testing.T, conn *websocket.Conn, want int) []Reply {
	t.Helper()
	var replies []Reply
	deadline := time.Now().Add(2 * time.Second)
	for len(replies) < want {
		require.NoError(t, conn.SetReadDeadline(deadline))
		_, message, err := conn.ReadMessage()
		require.NoError(t, err)
		for _, line := range strings.Split(string(message), "\n") {
			if line == "" {
				continue
			}
			var r Reply
			require.NoError(t, json.Unmarshal([]byte(line), &r))
			replies = append(replies, r)
		}
	}
	return replies
}

func TestWebSocketRoundTrip(t *testing.T) {
	s := newTestServer(t)
	ts := httptest.NewServer(s.Routes())
	defer ts.Close()

	url := "ws" + strings.TrimPrefix(ts.URL, "http") + "/ws"
	conn, resp, err := websocket.DefaultDialer.Dial(url, nil)
	require.NoError(t, err)
	defer conn.Close()
	defer resp.Body.Close()

	require.NoError(t, conn.WriteJSON(Frame{Type: "state", UserID: "u-mi"}))
	replies := readReplies(t, conn, 1)
	require.Equal(t, ReplyState, replies[0].Type)

	// An admin start produces a direct ok plus broadcast notices for the
	// session start and the first lot announcement.
	require.NoError(t, conn.WriteJSON(Frame{Type: "start", UserID: "admin"}))
	replies = readReplies(t, conn, 3)

	kinds := map[engine.NoticeKind]bool{}
	var sawOK bool
	for _, r := range replies {
		switch r.Type {
		case ReplyOK:
			sawOK = true
		case ReplyNotice:
			kinds[r.Notice.Kind] = true
		}
	}
	require.True(t, sawOK)
	require.True(t, kinds[engine.NoticeStarted])
	require.True(t, kinds[engine.NoticeLotAnnounced])
}

func TestRESTEndpoints(t *testing.T) {
	s := newTestServer(t)
	ts := httptest.NewServer(s.Routes())
	defer ts.Close()

	resp, err := http.Get(ts.URL + "/api/state")
	require.NoError(t, err)
	defer resp.Body.Close()
	require.Equal(t, http.StatusOK, resp.StatusCode)

	var snap engine.Snapshot
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&snap))
	require.Equal(t, auction.StatusIdle, snap.Status)
	require.Equal(t, 2, snap.PendingCount)

	resp, err = http.Get(ts.URL + "/api/teams")
	require.NoError(t, err)
	defer resp.Body.Close()
	var teams []auction.Team
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&teams))
	require.Len(t, teams, 10)

	resp, err = http.Get(ts.URL + "/api/squads/MI")
	require.NoError(t, err)
	defer resp.Body.Close()
	require.Equal(t, http.StatusOK, resp.StatusCode)

	resp, err = http.Get(ts.URL + "/api/results")
	require.NoError(t, err)
	defer resp.Body.Close()
	require.Equal(t, http.StatusOK, resp.StatusCode)
}

func TestReplyAfterClientClosedIsSafe(t *testing.T) {
	c := &Client{send: make(chan []byte, 1)}

	c.closeSend()
	// A reply racing the hub's close is dropped, never a panic.
	c.reply(Reply{Type: ReplyOK, Op: "bid"})
	require.False(t, c.enqueue([]byte("late")))

	// closeSend is idempotent.
	c.closeSend()
}

func TestReplyAndCloseRace(t *testing.T) {
	c := &Client{send: make(chan []byte, 4)}

	var wg sync.WaitGroup
	wg.Add(1)
	go func() {
		defer wg.Done()
		for i := 0; i < 500; i++ {
			c.reply(Reply{Type: ReplyNotice})
		}
	}()
	c.closeSend()
	wg.Wait()
}
