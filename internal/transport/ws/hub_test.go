package ws

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http/httptest"
	"path/filepath"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/require"

	"kartetris.ai/internal/persistence/matchlog"
	"kartetris.ai/internal/persistence/scoredb"
	"kartetris.ai/internal/protocol"
)

type memRecorder struct {
	mu      sync.Mutex
	entries []matchlog.Entry
}

func (m *memRecorder) Record(e matchlog.Entry) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.entries = append(m.entries, e)
	return nil
}

func (m *memRecorder) kinds() []string {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]string, 0, len(m.entries))
	for _, e := range m.entries {
		out = append(out, e.Kind)
	}
	return out
}

type harness struct {
	hub   *Hub
	store *scoredb.Store
	rec   *memRecorder
	url   string
}

func newHarness(t *testing.T) *harness {
	t.Helper()
	store, err := scoredb.Open(filepath.Join(t.TempDir(), "scores.db"), nil)
	require.NoError(t, err)
	t.Cleanup(func() { _ = store.Close() })

	v, err := protocol.NewValidator()
	require.NoError(t, err)

	rec := &memRecorder{}
	h := NewHub(HubConfig{Store: store, Recorder: rec, Validator: v})
	ctx, cancel := context.WithCancel(context.Background())
	go func() { _ = h.Run(ctx) }()
	t.Cleanup(cancel)

	srv := httptest.NewServer(NewServer(h, nil).Handler())
	t.Cleanup(srv.Close)
	return &harness{hub: h, store: store, rec: rec, url: "ws" + strings.TrimPrefix(srv.URL, "http")}
}

func (h *harness) dial(t *testing.T) *websocket.Conn {
	t.Helper()
	c, _, err := websocket.DefaultDialer.Dial(h.url, nil)
	require.NoError(t, err)
	t.Cleanup(func() { _ = c.Close() })
	return c
}

func readFrame(t *testing.T, c *websocket.Conn) protocol.Frame {
	t.Helper()
	_ = c.SetReadDeadline(time.Now().Add(3 * time.Second))
	_, msg, err := c.ReadMessage()
	require.NoError(t, err)
	f, err := protocol.DecodeFrame(msg)
	require.NoError(t, err)
	return f
}

func expect(t *testing.T, c *websocket.Conn, event string, v any) {
	t.Helper()
	f := readFrame(t, c)
	require.Equal(t, event, f.Event, "data=%s", f.Data)
	if v != nil {
		require.NoError(t, f.Decode(v))
	}
}

func writeStringified(t *testing.T, c *websocket.Conn, event string, v any) {
	t.Helper()
	b, err := protocol.EncodeStringified(event, v)
	require.NoError(t, err)
	require.NoError(t, c.WriteMessage(websocket.TextMessage, b))
}

func writeObject(t *testing.T, c *websocket.Conn, event string, v any) {
	t.Helper()
	b, err := protocol.Encode(event, v)
	require.NoError(t, err)
	require.NoError(t, c.WriteMessage(websocket.TextMessage, b))
}

// pair connects two clients and returns them with their room id.
func pair(t *testing.T, h *harness) (a, b *websocket.Conn, roomID string) {
	t.Helper()
	a = h.dial(t)
	expect(t, a, protocol.EventWaiting, nil)
	b = h.dial(t)
	expect(t, b, protocol.EventWaiting, nil)

	var ma, mb protocol.MatchedMsg
	expect(t, a, protocol.EventMatched, &ma)
	expect(t, b, protocol.EventMatched, &mb)
	require.Equal(t, ma.RoomID, mb.RoomID)
	require.True(t, strings.HasPrefix(ma.RoomID, "room-"))
	require.Equal(t, "room-"+mb.Opponent+"-"+ma.Opponent, ma.RoomID)

	var start protocol.GameUpdateMsg
	expect(t, b, protocol.EventGameUpdate, &start)
	require.Equal(t, "Game starting!", start.Update)
	require.Equal(t, ma.RoomID, start.RoomID)
	require.NotNil(t, start.Step)
	require.Equal(t, 0, *start.Step)
	return a, b, ma.RoomID
}

func TestHub_MatchRelayAndResult(t *testing.T) {
	h := newHarness(t)
	a, b, room := pair(t, h)

	writeStringified(t, a, protocol.EventGameUpdate, protocol.GameUpdateMsg{
		RoomID:     room,
		Board:      json.RawMessage(`[[null,null],[null,null]]`),
		Step:       protocol.IntPtr(4),
		Score:      protocol.IntPtr(20),
		Won:        protocol.BoolPtr(false),
		Character:  "mario",
		PlayerName: "alice",
	})
	var got protocol.GameUpdateMsg
	expect(t, b, protocol.EventGameUpdate, &got)
	require.Equal(t, "alice", got.PlayerName)
	require.Equal(t, 4, *got.Step)
	require.NotNil(t, got.Won)
	require.True(t, *got.Won)

	writeStringified(t, b, protocol.EventGameUpdate, protocol.GameUpdateMsg{RoomID: room, Score: protocol.IntPtr(40), PlayerName: "bob"})
	var fromBob protocol.GameUpdateMsg
	expect(t, a, protocol.EventGameUpdate, &fromBob)
	require.Equal(t, "bob", fromBob.PlayerName)
	require.Nil(t, fromBob.Won)

	writeObject(t, b, protocol.EventEffect, protocol.EffectMsg{Name: "AddLine", RoomID: room})
	var eff protocol.EffectMsg
	expect(t, a, protocol.EventEffect, &eff)
	require.Equal(t, protocol.EffectMsg{Name: "AddLine", RoomID: room}, eff)

	writeStringified(t, a, protocol.EventGameResult, protocol.GameResultMsg{
		RoomID: room, WinnerName: "bob", LooserName: "alice", WinnerScore: 40, LooserScore: 20,
	})
	var res protocol.GameResultRelayMsg
	expect(t, b, protocol.EventGameResult, &res)
	require.Equal(t, protocol.GameResultRelayMsg{LooserName: "alice", WinnerName: "bob", RoomID: room}, res)

	top, err := h.store.TopScores(context.Background(), 10)
	require.NoError(t, err)
	require.Equal(t, []protocol.RankingEntry{{PlayerName: "bob", Score: 40}, {PlayerName: "alice", Score: 20}}, top)

	// A second result for the same room is refused.
	writeStringified(t, b, protocol.EventGameResult, protocol.GameResultMsg{RoomID: room, WinnerName: "alice", LooserName: "bob"})
	var em protocol.ErrorMsg
	expect(t, b, protocol.EventError, &em)
	require.Equal(t, protocol.ErrRoomFinished, em.Code)

	m := h.hub.Metrics()
	require.Equal(t, uint64(1), m.Matches)
	require.Equal(t, uint64(2), m.Updates)
	require.Equal(t, uint64(1), m.Results)
	require.Contains(t, h.rec.kinds(), matchlog.KindMatched)
}

func TestHub_RejectsForeignRoomAndBadFrames(t *testing.T) {
	h := newHarness(t)
	a, _, _ := pair(t, h)

	writeStringified(t, a, protocol.EventGameUpdate, protocol.GameUpdateMsg{RoomID: "room-x-y", PlayerName: "alice"})
	var em protocol.ErrorMsg
	expect(t, a, protocol.EventError, &em)
	require.Equal(t, protocol.ErrNotInRoom, em.Code)

	writeObject(t, a, "matched", protocol.MatchedMsg{RoomID: "r"})
	expect(t, a, protocol.EventError, &em)
	require.Equal(t, protocol.ErrUnknownEvent, em.Code)

	require.NoError(t, a.WriteMessage(websocket.TextMessage, []byte(`not json`)))
	expect(t, a, protocol.EventError, &em)
	require.Equal(t, protocol.ErrProtoBadRequest, em.Code)

	writeObject(t, a, protocol.EventEffect, map[string]any{"name": "", "roomId": "r"})
	expect(t, a, protocol.EventError, &em)
	require.Equal(t, protocol.ErrSchema, em.Code)
}

func TestHub_DisconnectForfeitsRoom(t *testing.T) {
	h := newHarness(t)
	a, b, room := pair(t, h)

	writeStringified(t, a, protocol.EventGameUpdate, protocol.GameUpdateMsg{RoomID: room, PlayerName: "alice"})
	expect(t, b, protocol.EventGameUpdate, nil)
	writeStringified(t, b, protocol.EventGameUpdate, protocol.GameUpdateMsg{RoomID: room, PlayerName: "bob"})
	expect(t, a, protocol.EventGameUpdate, nil)

	require.NoError(t, a.Close())

	var res protocol.GameResultRelayMsg
	expect(t, b, protocol.EventGameResult, &res)
	require.Equal(t, "bob", res.WinnerName)
	require.Equal(t, "alice", res.LooserName)
	require.Equal(t, protocol.ReasonDisconnect, res.Reason)

	require.Eventually(t, func() bool {
		ms, err := h.store.RecentMatches(context.Background(), 5)
		return err == nil && len(ms) == 1 && ms[0].Reason == protocol.ReasonDisconnect
	}, 3*time.Second, 20*time.Millisecond)

	// The forfeit does not touch the ranking.
	top, err := h.store.TopScores(context.Background(), 10)
	require.NoError(t, err)
	require.Empty(t, top)
	require.Equal(t, uint64(1), h.hub.Metrics().Forfeits)
}

func TestHub_WaitingPeerLeavesPool(t *testing.T) {
	h := newHarness(t)
	a := h.dial(t)
	expect(t, a, protocol.EventWaiting, nil)
	require.NoError(t, a.Close())
	require.Eventually(t, func() bool { return h.hub.Metrics().Waiting == 0 }, 3*time.Second, 10*time.Millisecond)

	b := h.dial(t)
	expect(t, b, protocol.EventWaiting, nil)
	require.Eventually(t, func() bool { return h.hub.Metrics().Waiting == 1 }, 3*time.Second, 10*time.Millisecond)
	require.Equal(t, 0, h.hub.Metrics().Rooms)
}

func TestSendLatest_DropsOldest(t *testing.T) {
	ch := make(chan []byte, 2)
	require.True(t, sendLatest(ch, []byte("1")))
	require.True(t, sendLatest(ch, []byte("2")))
	require.False(t, sendLatest(ch, []byte("3")))
	require.Equal(t, "2", string(<-ch))
	require.Equal(t, "3", string(<-ch))
}

type fakeStore struct {
	mu      sync.Mutex
	updates []string
	matches []scoredb.Match
}

func (f *fakeStore) UpdateScores(_ context.Context, winner string, ws int, looser string, ls int) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.updates = append(f.updates, fmt.Sprintf("%s:%d/%s:%d", winner, ws, looser, ls))
	return nil
}

func (f *fakeStore) RecordMatch(_ context.Context, m scoredb.Match) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.matches = append(f.matches, m)
	return nil
}

func (f *fakeStore) snapshot() ([]string, []scoredb.Match) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]string(nil), f.updates...), append([]scoredb.Match(nil), f.matches...)
}

func frameOf(t *testing.T, event string, v any) protocol.Frame {
	t.Helper()
	b, err := protocol.EncodeStringified(event, v)
	require.NoError(t, err)
	f, err := protocol.DecodeFrame(b)
	require.NoError(t, err)
	return f
}

// nextEvent drains p until a frame of the given event arrives.
func nextEvent(t *testing.T, p *Peer, event string) protocol.Frame {
	t.Helper()
	timeout := time.After(3 * time.Second)
	for {
		select {
		case b := <-p.Out():
			f, err := protocol.DecodeFrame(b)
			require.NoError(t, err)
			if f.Event == event {
				return f
			}
		case <-timeout:
			require.FailNowf(t, "timeout", "no %s frame for %s", event, p.ID)
		}
	}
}

func TestHub_LeaveQueuedBehindJoinEmptiesPool(t *testing.T) {
	for i := 0; i < 100; i++ {
		h := NewHub(HubConfig{})
		gone := NewPeer("gone", 8)
		require.NoError(t, h.Join(gone))
		h.Leave(gone)

		ctx, cancel := context.WithCancel(context.Background())
		go func() { _ = h.Run(ctx) }()

		m := h.Metrics()
		require.Equal(t, 0, m.Waiting, "run %d", i)
		require.Equal(t, uint64(1), m.Disconnected)

		next := NewPeer("next", 8)
		require.NoError(t, h.Join(next))
		m = h.Metrics()
		require.Equal(t, 1, m.Waiting)
		require.Equal(t, 0, m.Rooms)
		cancel()
	}
}

func TestHub_ResultFollowedByDisconnectKeepsScores(t *testing.T) {
	for i := 0; i < 50; i++ {
		store := &fakeStore{}
		h := NewHub(HubConfig{Store: store})
		ctx, cancel := context.WithCancel(context.Background())

		a, b := NewPeer("a", 16), NewPeer("b", 16)
		require.NoError(t, h.Join(a))
		require.NoError(t, h.Join(b))
		h.Dispatch(a, frameOf(t, protocol.EventGameResult, protocol.GameResultMsg{
			RoomID: "room-a-b", WinnerName: "bob", LooserName: "alice", WinnerScore: 60, LooserScore: 20,
		}))
		h.Leave(a)
		go func() { _ = h.Run(ctx) }()

		var res protocol.GameResultRelayMsg
		require.NoError(t, nextEvent(t, b, protocol.EventGameResult).Decode(&res))
		require.Empty(t, res.Reason, "run %d", i)
		require.Equal(t, "bob", res.WinnerName)

		updates, matches := store.snapshot()
		require.Equal(t, []string{"bob:60/alice:20"}, updates)
		require.Len(t, matches, 1)
		require.Empty(t, matches[0].Reason)

		m := h.Metrics()
		require.Equal(t, uint64(1), m.Results)
		require.Zero(t, m.Forfeits)
		cancel()
	}
}

func TestHub_RejectUnknownCodeFallsBackToInternal(t *testing.T) {
	h := NewHub(HubConfig{})
	p := NewPeer("p", 4)
	h.Reject(p, "E_MADE_UP", "boom")
	var em protocol.ErrorMsg
	require.NoError(t, nextEvent(t, p, protocol.EventError).Decode(&em))
	require.Equal(t, protocol.ErrInternal, em.Code)
}

func TestHub_EmptyNameResultCountsStoreErrorAndKeepsMatch(t *testing.T) {
	store, err := scoredb.Open(filepath.Join(t.TempDir(), "scores.db"), nil)
	require.NoError(t, err)
	t.Cleanup(func() { _ = store.Close() })

	h := NewHub(HubConfig{Store: store})
	ctx, cancel := context.WithCancel(context.Background())
	t.Cleanup(cancel)
	go func() { _ = h.Run(ctx) }()

	a, b := NewPeer("a", 16), NewPeer("b", 16)
	require.NoError(t, h.Join(a))
	require.NoError(t, h.Join(b))
	h.Dispatch(a, frameOf(t, protocol.EventGameResult, protocol.GameResultMsg{
		RoomID: "room-a-b", WinnerName: "", LooserName: "alice", WinnerScore: 60,
	}))
	nextEvent(t, b, protocol.EventGameResult)

	require.Equal(t, uint64(1), h.Metrics().StoreErrors)
	top, err := store.TopScores(context.Background(), 10)
	require.NoError(t, err)
	require.Empty(t, top)
	matches, err := store.RecentMatches(context.Background(), 10)
	require.NoError(t, err)
	require.Len(t, matches, 1)
	require.Equal(t, "alice", matches[0].LooserName)
}
