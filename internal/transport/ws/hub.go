package ws

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"sync/atomic"
	"time"

	"kartetris.ai/internal/logging"
	"kartetris.ai/internal/persistence/matchlog"
	"kartetris.ai/internal/persistence/scoredb"
	"kartetris.ai/internal/protocol"
)

// ScoreStore is the subset of the ranking store the relay writes to.
type ScoreStore interface {
	UpdateScores(ctx context.Context, winnerName string, winnerScore int, looserName string, looserScore int) error
	RecordMatch(ctx context.Context, m scoredb.Match) error
}

// Recorder receives one entry per relayed or synthesized event.
type Recorder interface {
	Record(e matchlog.Entry) error
}

type HubConfig struct {
	Store     ScoreStore
	Recorder  Recorder
	Validator *protocol.Validator
	Logger    *slog.Logger
	// StoreTimeout bounds each score write.
	StoreTimeout time.Duration
}

// Peer is one websocket connection. Only the hub goroutine touches the
// unexported fields after Join.
type Peer struct {
	ID  string
	out chan []byte

	room      *room
	name      string
	character string
	score     int
}

func NewPeer(id string, queue int) *Peer {
	if queue <= 0 {
		queue = 64
	}
	return &Peer{ID: id, out: make(chan []byte, queue)}
}

// Out is the queue drained by the connection writer.
func (p *Peer) Out() <-chan []byte { return p.out }

type room struct {
	id       string
	a, b     *Peer
	finished bool
}

func (r *room) other(p *Peer) *Peer {
	if r.a == p {
		return r.b
	}
	return r.a
}

func (r *room) detach(p *Peer) {
	if r.a == p {
		r.a = nil
	}
	if r.b == p {
		r.b = nil
	}
}

type eventKind uint8

const (
	evJoin eventKind = iota
	evLeave
	evFrame
	evStats
)

// hubEvent is one peer lifecycle step or inbound frame. All three kinds share
// a single queue so each peer's events are handled in the order it sent them.
type hubEvent struct {
	kind  eventKind
	peer  *Peer
	frame protocol.Frame
	stats chan Metrics
}

// Hub pairs waiting peers into rooms and relays room traffic. All state is
// owned by the Run goroutine.
type Hub struct {
	cfg HubConfig
	log *slog.Logger

	events chan hubEvent
	done   chan struct{}

	waiting []*Peer
	rooms   map[string]*room

	counters counters
}

func NewHub(cfg HubConfig) *Hub {
	if cfg.StoreTimeout <= 0 {
		cfg.StoreTimeout = 5 * time.Second
	}
	return &Hub{
		cfg:    cfg,
		log:    logging.OrDiscard(cfg.Logger),
		events: make(chan hubEvent, 1024),
		done:   make(chan struct{}),
		rooms:  map[string]*room{},
	}
}

var errHubStopped = errors.New("hub stopped")

func (h *Hub) post(ev hubEvent) bool {
	select {
	case h.events <- ev:
		return true
	case <-h.done:
		return false
	}
}

func (h *Hub) Join(p *Peer) error {
	if !h.post(hubEvent{kind: evJoin, peer: p}) {
		return errHubStopped
	}
	return nil
}

func (h *Hub) Leave(p *Peer) {
	h.post(hubEvent{kind: evLeave, peer: p})
}

func (h *Hub) Dispatch(p *Peer, f protocol.Frame) {
	h.post(hubEvent{kind: evFrame, peer: p, frame: f})
}

// Metrics returns a snapshot of relay counters taken after every event
// queued before the call. It returns the zero value after the hub has stopped.
func (h *Hub) Metrics() Metrics {
	ch := make(chan Metrics, 1)
	if !h.post(hubEvent{kind: evStats, stats: ch}) {
		return Metrics{}
	}
	select {
	case m := <-ch:
		return m
	case <-h.done:
		return Metrics{}
	}
}

func (h *Hub) Run(ctx context.Context) error {
	defer close(h.done)
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case ev := <-h.events:
			switch ev.kind {
			case evJoin:
				h.handleJoin(ev.peer)
			case evLeave:
				h.handleLeave(ev.peer)
			case evFrame:
				h.handleFrame(ev.peer, ev.frame)
			case evStats:
				ev.stats <- h.snapshot()
			}
		}
	}
}

func (h *Hub) handleJoin(p *Peer) {
	h.counters.connected.Add(1)
	h.waiting = append(h.waiting, p)
	h.send(p, protocol.EventWaiting, protocol.WaitingMsg{Message: "Waiting for an opponent..."})
	h.log.Info("peer connected", "peer", p.ID, "waiting", len(h.waiting))

	if len(h.waiting) < 2 {
		return
	}
	a, b := h.waiting[0], h.waiting[1]
	h.waiting = h.waiting[2:]

	r := &room{id: "room-" + a.ID + "-" + b.ID, a: a, b: b}
	h.rooms[r.id] = r
	a.room, b.room = r, r
	h.counters.matches.Add(1)

	h.send(a, protocol.EventMatched, protocol.MatchedMsg{RoomID: r.id, Opponent: b.ID})
	h.send(b, protocol.EventMatched, protocol.MatchedMsg{RoomID: r.id, Opponent: a.ID})
	h.send(p, protocol.EventGameUpdate, protocol.GameUpdateMsg{
		RoomID:        r.id,
		Update:        "Game starting!",
		Board:         json.RawMessage(`""`),
		CurrentFigure: json.RawMessage(`""`),
		Step:          protocol.IntPtr(0),
		Score:         protocol.IntPtr(0),
	})
	h.record(matchlog.Entry{Kind: matchlog.KindMatched, Room: r.id, Peer: a.ID + "," + b.ID})
	h.log.Info("peers matched", "room", r.id)
}

func (h *Hub) handleLeave(p *Peer) {
	h.counters.disconnected.Add(1)
	for i, w := range h.waiting {
		if w == p {
			h.waiting = append(h.waiting[:i], h.waiting[i+1:]...)
			break
		}
	}
	r := p.room
	p.room = nil
	if r == nil {
		h.log.Info("peer disconnected", "peer", p.ID)
		return
	}
	other := r.other(p)
	r.detach(p)
	h.record(matchlog.Entry{Kind: matchlog.KindDisconnect, Room: r.id, Peer: p.ID, Name: p.name})
	h.log.Info("peer disconnected", "peer", p.ID, "room", r.id, "finished", r.finished)

	if !r.finished && other != nil {
		r.finished = true
		h.counters.forfeits.Add(1)
		res := protocol.GameResultRelayMsg{
			WinnerName: other.name,
			LooserName: p.name,
			RoomID:     r.id,
			Reason:     protocol.ReasonDisconnect,
		}
		h.send(other, protocol.EventGameResult, res)
		h.record(matchlog.Entry{Kind: matchlog.KindForfeit, Room: r.id, Peer: other.ID, WinnerName: res.WinnerName, LooserName: res.LooserName, Reason: res.Reason})
		h.recordMatch(scoredb.Match{RoomID: r.id, WinnerName: other.name, LooserName: p.name, Reason: protocol.ReasonDisconnect})
	}
	if r.a == nil && r.b == nil {
		delete(h.rooms, r.id)
	}
}

func (h *Hub) handleFrame(p *Peer, f protocol.Frame) {
	if !protocol.Inbound(f.Event) {
		h.reject(p, protocol.ErrUnknownEvent, "unknown event "+f.Event)
		return
	}
	payload, err := f.Payload()
	if err != nil || len(payload) == 0 {
		h.reject(p, protocol.ErrProtoBadRequest, "bad payload")
		return
	}
	if h.cfg.Validator != nil {
		if err := h.cfg.Validator.Validate(f.Event, payload); err != nil {
			h.reject(p, protocol.ErrSchema, err.Error())
			return
		}
	}

	switch f.Event {
	case protocol.EventGameUpdate:
		var m protocol.GameUpdateMsg
		if err := json.Unmarshal(payload, &m); err != nil {
			h.reject(p, protocol.ErrProtoBadRequest, err.Error())
			return
		}
		h.relayUpdate(p, m)
	case protocol.EventEffect:
		var m protocol.EffectMsg
		if err := json.Unmarshal(payload, &m); err != nil {
			h.reject(p, protocol.ErrProtoBadRequest, err.Error())
			return
		}
		h.relayEffect(p, m)
	case protocol.EventGameResult:
		var m protocol.GameResultMsg
		if err := json.Unmarshal(payload, &m); err != nil {
			h.reject(p, protocol.ErrProtoBadRequest, err.Error())
			return
		}
		h.relayResult(p, m)
	}
}

// member returns the sender's room when it matches roomID.
func (h *Hub) member(p *Peer, roomID string) *room {
	if p.room == nil || p.room.id != roomID {
		h.reject(p, protocol.ErrNotInRoom, "not a member of "+roomID)
		return nil
	}
	return p.room
}

func (h *Hub) relayUpdate(p *Peer, m protocol.GameUpdateMsg) {
	r := h.member(p, m.RoomID)
	if r == nil {
		return
	}
	if m.PlayerName != "" {
		p.name = m.PlayerName
	}
	if m.Character != "" {
		p.character = m.Character
	}
	if m.Score != nil {
		p.score = *m.Score
	}
	// The receiving peer sees the sender's flag inverted.
	if m.Won != nil {
		m.Won = protocol.BoolPtr(!*m.Won)
	}
	h.counters.updates.Add(1)
	if other := r.other(p); other != nil {
		h.send(other, protocol.EventGameUpdate, m)
	}
	h.record(matchlog.Entry{
		Kind:  protocol.EventGameUpdate,
		Room:  r.id,
		Peer:  p.ID,
		Name:  m.PlayerName,
		Step:  m.Step,
		Score: m.Score,
		Won:   m.Won,
		Board: matchlog.CompactRaw(m.Board),
	})
}

func (h *Hub) relayEffect(p *Peer, m protocol.EffectMsg) {
	r := h.member(p, m.RoomID)
	if r == nil {
		return
	}
	h.counters.effects.Add(1)
	if other := r.other(p); other != nil {
		h.send(other, protocol.EventEffect, protocol.EffectMsg{Name: m.Name, RoomID: m.RoomID})
	}
	h.record(matchlog.Entry{Kind: protocol.EventEffect, Room: r.id, Peer: p.ID, Name: p.name, Effect: m.Name})
}

func (h *Hub) relayResult(p *Peer, m protocol.GameResultMsg) {
	r := h.member(p, m.RoomID)
	if r == nil {
		return
	}
	if r.finished {
		h.reject(p, protocol.ErrRoomFinished, "result already recorded for "+r.id)
		return
	}
	r.finished = true
	h.counters.results.Add(1)
	h.record(matchlog.Entry{Kind: protocol.EventGameResult, Room: r.id, Peer: p.ID, WinnerName: m.WinnerName, LooserName: m.LooserName})
	h.log.Info("game result", "room", r.id, "winner", m.WinnerName, "looser", m.LooserName,
		"winner_score", m.WinnerScore, "looser_score", m.LooserScore)

	other := r.other(p)
	relay := protocol.GameResultRelayMsg{LooserName: m.LooserName, WinnerName: m.WinnerName, RoomID: m.RoomID}
	var frame []byte
	if other != nil {
		b, err := protocol.Encode(protocol.EventGameResult, relay)
		if err != nil {
			h.log.Error("encode frame", "event", protocol.EventGameResult, "err", err)
		}
		frame = b
	}

	// Scores are written before the result reaches the other peer.
	store, timeout := h.cfg.Store, h.cfg.StoreTimeout
	go func() {
		if store != nil {
			ctx, cancel := context.WithTimeout(context.Background(), timeout)
			if err := store.UpdateScores(ctx, m.WinnerName, m.WinnerScore, m.LooserName, m.LooserScore); err != nil {
				h.counters.storeErrors.Add(1)
				h.log.Error("update scores", "room", m.RoomID, "err", err)
			}
			if err := store.RecordMatch(ctx, scoredb.Match{
				RoomID: m.RoomID, WinnerName: m.WinnerName, LooserName: m.LooserName,
				WinnerScore: m.WinnerScore, LooserScore: m.LooserScore,
			}); err != nil {
				h.counters.storeErrors.Add(1)
				h.log.Error("record match", "room", m.RoomID, "err", err)
			}
			cancel()
		}
		if other != nil && frame != nil {
			h.enqueue(other, frame)
		}
	}()
}

func (h *Hub) recordMatch(m scoredb.Match) {
	store, timeout := h.cfg.Store, h.cfg.StoreTimeout
	if store == nil {
		return
	}
	go func() {
		ctx, cancel := context.WithTimeout(context.Background(), timeout)
		defer cancel()
		if err := store.RecordMatch(ctx, m); err != nil {
			h.counters.storeErrors.Add(1)
			h.log.Error("record match", "room", m.RoomID, "err", err)
		}
	}()
}

// Reject answers p with an error event. It is safe to call from any
// goroutine.
func (h *Hub) Reject(p *Peer, code, msg string) { h.reject(p, code, msg) }

func (h *Hub) reject(p *Peer, code, msg string) {
	if !protocol.IsKnownCode(code) {
		h.log.Warn("unknown error code", "code", code)
		code = protocol.ErrInternal
	}
	h.counters.protoErrors.Add(1)
	h.log.Debug("frame rejected", "peer", p.ID, "code", code, "msg", msg)
	h.send(p, protocol.EventError, protocol.ErrorMsg{Code: code, Message: msg})
}

func (h *Hub) send(p *Peer, event string, v any) {
	b, err := protocol.Encode(event, v)
	if err != nil {
		h.log.Error("encode frame", "event", event, "err", err)
		return
	}
	h.enqueue(p, b)
}

func (h *Hub) enqueue(p *Peer, b []byte) {
	if !sendLatest(p.out, b) {
		h.counters.dropped.Add(1)
	}
}

// sendLatest queues b, dropping the oldest queued frame when full. It
// reports false when a frame was dropped.
func sendLatest(ch chan []byte, b []byte) bool {
	select {
	case ch <- b:
		return true
	default:
	}
	select {
	case <-ch:
	default:
	}
	select {
	case ch <- b:
	default:
	}
	return false
}

func (h *Hub) record(e matchlog.Entry) {
	if h.cfg.Recorder == nil {
		return
	}
	if err := h.cfg.Recorder.Record(e); err != nil {
		h.log.Warn("match log write", "room", e.Room, "err", err)
	}
}

type counters struct {
	connected    atomic.Uint64
	disconnected atomic.Uint64
	matches      atomic.Uint64
	forfeits     atomic.Uint64
	updates      atomic.Uint64
	effects      atomic.Uint64
	results      atomic.Uint64
	protoErrors  atomic.Uint64
	storeErrors  atomic.Uint64
	dropped      atomic.Uint64
}

func (h *Hub) snapshot() Metrics {
	return Metrics{
		Waiting:        len(h.waiting),
		Rooms:          len(h.rooms),
		Connected:      h.counters.connected.Load(),
		Disconnected:   h.counters.disconnected.Load(),
		Matches:        h.counters.matches.Load(),
		Forfeits:       h.counters.forfeits.Load(),
		Updates:        h.counters.updates.Load(),
		Effects:        h.counters.effects.Load(),
		Results:        h.counters.results.Load(),
		ProtocolErrors: h.counters.protoErrors.Load(),
		StoreErrors:    h.counters.storeErrors.Load(),
		DroppedFrames:  h.counters.dropped.Load(),
	}
}

type Metrics struct {
	Waiting        int
	Rooms          int
	Connected      uint64
	Disconnected   uint64
	Matches        uint64
	Forfeits       uint64
	Updates        uint64
	Effects        uint64
	Results        uint64
	ProtocolErrors uint64
	StoreErrors    uint64
	DroppedFrames  uint64
}
