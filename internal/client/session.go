// Package client runs one player's side of a match: the local engine, the
// opponent view and the relay traffic between them.
//
// A Session is not safe for concurrent use. Every method, and every engine
// callback, must run on the goroutine driving its scheduler.
package client

import (
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"math/rand/v2"

	"kartetris.ai/internal/logging"
	"kartetris.ai/internal/protocol"
	"kartetris.ai/internal/sim/effects"
	"kartetris.ai/internal/sim/encoding"
	"kartetris.ai/internal/sim/figure"
	"kartetris.ai/internal/sim/game"
	"kartetris.ai/internal/sim/sched"
	"kartetris.ai/internal/sim/tuning"
)

type Key string

const (
	KeyLeft   Key = "ArrowLeft"
	KeyRight  Key = "ArrowRight"
	KeyRotate Key = "ArrowUp"
	KeyDown   Key = "ArrowDown"
)

type Phase string

const (
	PhaseWaiting  Phase = "waiting"
	PhasePlaying  Phase = "playing"
	PhaseFinished Phase = "finished"
)

// Sender delivers one encoded frame to the relay.
type Sender interface {
	Send(frame []byte) error
}

type Config struct {
	PlayerName string
	Character  string
	Tuning     tuning.Tuning
	Rand       *rand.Rand
	Logger     *slog.Logger
}

// Opponent is the last state the other player reported.
type Opponent struct {
	ID        string
	Name      string
	Character string
	Board     [][]*figure.Figure
	Current   *game.Current
	Step      int
	Score     int
	Won       *bool
}

type Session struct {
	cfg   Config
	log   *slog.Logger
	sched sched.Scheduler
	out   Sender

	reg     *effects.Registry
	spinner *effects.Spinner

	phase    Phase
	roomID   string
	engine   *game.Engine
	opponent Opponent

	lines int
	score int

	downPressed bool
	fastMode    bool
	fastReset   sched.Task

	won        *bool
	resultSent bool
	lastEffect string

	// OnFrame, when set, is called after each local render.
	OnFrame func(game.Frame)
}

var ErrBadCharacter = errors.New("unknown character")

func New(cfg Config, s sched.Scheduler, out Sender) (*Session, error) {
	if cfg.Character != "" && !protocol.IsCharacter(cfg.Character) {
		return nil, fmt.Errorf("%w: %q", ErrBadCharacter, cfg.Character)
	}
	if err := cfg.Tuning.Validate(); err != nil {
		return nil, err
	}
	reg, err := effects.NewRegistry(cfg.Tuning)
	if err != nil {
		return nil, err
	}
	if cfg.Rand == nil {
		cfg.Rand = rand.New(rand.NewPCG(rand.Uint64(), rand.Uint64()))
	}
	return &Session{
		cfg:     cfg,
		log:     logging.OrDiscard(cfg.Logger),
		sched:   s,
		out:     out,
		reg:     reg,
		spinner: effects.NewSpinner(reg, s, cfg.Rand, cfg.Tuning.SlotSpin()),
		phase:   PhaseWaiting,
	}, nil
}

func (s *Session) Phase() Phase                { return s.phase }
func (s *Session) RoomID() string              { return s.roomID }
func (s *Session) Engine() *game.Engine        { return s.engine }
func (s *Session) Opponent() Opponent          { return s.opponent }
func (s *Session) Score() int                  { return s.score }
func (s *Session) Lines() int                  { return s.lines }
func (s *Session) Spinning() bool              { return s.spinner.Spinning() }
func (s *Session) FastMode() bool              { return s.fastMode }
func (s *Session) LastEffect() string          { return s.lastEffect }
func (s *Session) PlayerName() string          { return s.cfg.PlayerName }
func (s *Session) Registry() *effects.Registry { return s.reg }

// Result reports whether the match is decided and if this player won.
func (s *Session) Result() (won, decided bool) {
	if s.won == nil {
		return false, false
	}
	return *s.won, true
}

// HandleFrame applies one relay frame.
func (s *Session) HandleFrame(f protocol.Frame) error {
	switch f.Event {
	case protocol.EventWaiting:
		s.phase = PhaseWaiting
		return nil
	case protocol.EventMatched:
		var m protocol.MatchedMsg
		if err := f.Decode(&m); err != nil {
			return err
		}
		s.start(m.RoomID, m.Opponent)
		return nil
	case protocol.EventGameUpdate:
		var m protocol.GameUpdateMsg
		if err := f.Decode(&m); err != nil {
			return err
		}
		return s.opponentUpdate(m)
	case protocol.EventEffect:
		var m protocol.EffectMsg
		if err := f.Decode(&m); err != nil {
			return err
		}
		return s.receiveEffect(m.Name)
	case protocol.EventGameResult:
		var m protocol.GameResultRelayMsg
		if err := f.Decode(&m); err != nil {
			return err
		}
		s.receiveResult(m)
		return nil
	case protocol.EventError:
		var m protocol.ErrorMsg
		if err := f.Decode(&m); err != nil {
			return err
		}
		s.log.Warn("relay error", "code", m.Code, "msg", m.Message)
		return nil
	default:
		return fmt.Errorf("client: unexpected event %q", f.Event)
	}
}

func (s *Session) start(roomID, opponentID string) {
	if s.engine != nil {
		return
	}
	s.roomID = roomID
	s.opponent.ID = opponentID
	s.phase = PhasePlaying
	s.engine = game.New(game.ConfigFrom(s.cfg.Tuning), s.sched, s.cfg.Rand, game.Hooks{
		DrawBoard:      s.rendered,
		DrawCurrent:    s.rendered,
		LinesCompleted: s.linesCompleted,
		SpecialPicked:  s.specialPicked,
		StatusChanged:  s.statusChanged,
	})
	s.log.Info("match started", "room", roomID, "opponent", opponentID)
}

func (s *Session) opponentUpdate(m protocol.GameUpdateMsg) error {
	if m.Update != "" {
		if s.roomID == "" {
			s.roomID = m.RoomID
		}
		s.log.Debug("relay update", "update", m.Update)
		return nil
	}
	if m.PlayerName != "" {
		s.opponent.Name = m.PlayerName
	}
	if m.Character != "" {
		s.opponent.Character = m.Character
	}
	if m.Step != nil {
		s.opponent.Step = *m.Step
	}
	if m.Score != nil {
		s.opponent.Score = *m.Score
	}
	if m.Won != nil {
		s.opponent.Won = m.Won
	}
	if isStructured(m.Board) {
		var b encoding.BoardRecord
		if err := json.Unmarshal(m.Board, &b); err != nil {
			return fmt.Errorf("client: opponent board: %w", err)
		}
		s.opponent.Board = encoding.DecodeBoard(b)
	}
	if isStructured(m.CurrentFigure) {
		var c encoding.CurrentRecord
		if err := json.Unmarshal(m.CurrentFigure, &c); err != nil {
			return fmt.Errorf("client: opponent figure: %w", err)
		}
		s.opponent.Current = encoding.DecodeCurrent(&c)
	}
	return nil
}

// isStructured reports whether raw holds an object or array rather than
// null or the empty-string placeholder.
func isStructured(raw json.RawMessage) bool {
	for _, c := range raw {
		switch c {
		case ' ', '\t', '\n', '\r':
			continue
		case '[', '{':
			return true
		default:
			return false
		}
	}
	return false
}

func (s *Session) receiveEffect(name string) error {
	e, ok := s.reg.Lookup(name)
	if !ok {
		return fmt.Errorf("client: unknown effect %q", name)
	}
	if s.engine == nil || s.engine.Finished() {
		return nil
	}
	s.lastEffect = name
	if name == effects.DoubleGameSpeed {
		s.fastMode = true
		if s.fastReset != nil {
			s.fastReset.Cancel()
		}
		s.fastReset = s.sched.After(e.Duration(), func() {
			s.fastMode = false
			s.fastReset = nil
		})
	}
	e.Apply(s.engine)
	s.log.Info("effect received", "effect", name)
	return nil
}

func (s *Session) receiveResult(m protocol.GameResultRelayMsg) {
	won := m.WinnerName == s.cfg.PlayerName
	if s.won != nil {
		return
	}
	s.won = &won
	s.phase = PhaseFinished
	if s.engine != nil {
		s.engine.SetResult(won)
	}
	s.log.Info("match result", "room", m.RoomID, "won", won, "reason", m.Reason)
}

// Press handles a key going down.
func (s *Session) Press(k Key) {
	if s.engine == nil || s.engine.Finished() {
		return
	}
	switch k {
	case KeyLeft:
		s.engine.MoveLeft()
	case KeyRight:
		s.engine.MoveRight()
	case KeyRotate:
		s.engine.Rotate()
	case KeyDown:
		if s.downPressed || s.fastMode {
			return
		}
		s.downPressed = true
		s.engine.IncreaseSpeed(s.cfg.Tuning.SoftDrop())
	}
}

// Release handles a key going up. Only soft drop cares.
func (s *Session) Release(k Key) {
	if k != KeyDown || s.engine == nil {
		return
	}
	s.downPressed = false
	if !s.fastMode {
		s.engine.NormalGameSpeed()
	}
}

func (s *Session) rendered(fr game.Frame) {
	board, err := json.Marshal(encoding.EncodeBoard(fr.Board))
	if err != nil {
		s.log.Error("encode board", "err", err)
		return
	}
	current, err := json.Marshal(encoding.EncodeCurrent(fr.Current))
	if err != nil {
		s.log.Error("encode figure", "err", err)
		return
	}
	m := protocol.GameUpdateMsg{
		RoomID:        s.roomID,
		Board:         board,
		CurrentFigure: current,
		Step:          protocol.IntPtr(fr.Step),
		Score:         protocol.IntPtr(s.score),
		Character:     s.cfg.Character,
		PlayerName:    s.cfg.PlayerName,
	}
	if s.engine != nil && s.engine.Finished() {
		m.Won = protocol.BoolPtr(s.engine.Status() == game.Won)
	}
	s.send(protocol.EventGameUpdate, m, true)
	if s.OnFrame != nil {
		s.OnFrame(fr)
	}
}

func (s *Session) linesCompleted(n int) {
	s.lines += n
	s.score += n * s.cfg.Tuning.ScorePerLine
}

func (s *Session) specialPicked() {
	s.spinner.Spin(func(e effects.Effect) {
		if s.engine == nil || s.engine.Finished() {
			return
		}
		s.lastEffect = e.Name()
		if e.Kind() == effects.Buff {
			e.Apply(s.engine)
			s.log.Info("buff applied", "effect", e.Name())
			return
		}
		s.send(protocol.EventEffect, protocol.EffectMsg{Name: e.Name(), RoomID: s.roomID}, false)
		s.log.Info("debuff sent", "effect", e.Name())
	})
}

func (s *Session) statusChanged(st game.Status) {
	if s.fastReset != nil {
		s.fastReset.Cancel()
		s.fastReset = nil
	}
	s.phase = PhaseFinished
	if st != game.Lost || s.won != nil || s.resultSent {
		return
	}
	s.resultSent = true
	lost := false
	s.won = &lost
	// The opponent's last reported score stands as the winner's score.
	s.send(protocol.EventGameResult, protocol.GameResultMsg{
		RoomID:      s.roomID,
		WinnerName:  s.opponent.Name,
		LooserName:  s.cfg.PlayerName,
		WinnerScore: s.opponent.Score,
		LooserScore: s.score,
	}, true)
	s.log.Info("match lost", "room", s.roomID, "score", s.score)
}

func (s *Session) send(event string, v any, stringified bool) {
	if s.out == nil {
		return
	}
	var (
		b   []byte
		err error
	)
	if stringified {
		b, err = protocol.EncodeStringified(event, v)
	} else {
		b, err = protocol.Encode(event, v)
	}
	if err != nil {
		s.log.Error("encode frame", "event", event, "err", err)
		return
	}
	if err := s.out.Send(b); err != nil {
		s.log.Warn("send frame", "event", event, "err", err)
	}
}
