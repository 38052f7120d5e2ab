// Package game runs one player's board: gravity, collision, locking, line
// clears and the special pickup. An Engine is driven from a single logical
// thread (a sched.Loop or sched.Manual); none of its methods lock.
package game

import (
	"math/rand/v2"
	"time"

	"kartetris.ai/internal/sim/figure"
	"kartetris.ai/internal/sim/sched"
	"kartetris.ai/internal/sim/tuning"
)

type Status string

const (
	Running Status = "running"
	Won     Status = "won"
	Lost    Status = "lost"
)

type Config struct {
	Width   int
	Height  int
	Gravity time.Duration
	// SpecialPermille is the chance, out of 1000, of trying to spawn a special
	// block after each lock.
	SpecialPermille int
}

func ConfigFrom(t tuning.Tuning) Config {
	return Config{
		Width:           t.BoardWidth,
		Height:          t.BoardHeight,
		Gravity:         t.Gravity(),
		SpecialPermille: t.SpecialSpawnPermille,
	}
}

func DefaultConfig() Config { return ConfigFrom(tuning.Defaults()) }

// Current is the active figure as last rendered. StartingPoint is the anchor
// at render time and does not follow later moves.
type Current struct {
	Figure        *figure.Figure
	StartingPoint figure.Position
}

// Frame is a detached copy of the engine state handed to render hooks.
type Frame struct {
	Board   [][]*figure.Figure
	Current *Current
	Step    int
}

// Hooks receive engine events. Nil hooks are skipped.
type Hooks struct {
	// DrawBoard gets a full frame after locks, inputs and board effects.
	DrawBoard func(Frame)
	// DrawCurrent gets a frame after a plain gravity step.
	DrawCurrent    func(Frame)
	LinesCompleted func(n int)
	SpecialPicked  func()
	StatusChanged  func(Status)
}

type Engine struct {
	cfg   Config
	sched sched.Scheduler
	rng   *rand.Rand
	hooks Hooks

	board   *Board
	current *figure.Figure
	next    *figure.Figure
	playing *Current

	gravity sched.Task
	status  Status
	step    int
}

// New builds an engine with an empty board, draws the current and next
// figures and starts gravity at cfg.Gravity.
func New(cfg Config, s sched.Scheduler, rng *rand.Rand, hooks Hooks) *Engine {
	if cfg.Width <= 0 || cfg.Height <= 0 {
		d := DefaultConfig()
		cfg.Width, cfg.Height = d.Width, d.Height
	}
	if cfg.Gravity <= 0 {
		cfg.Gravity = DefaultConfig().Gravity
	}
	if rng == nil {
		rng = rand.New(rand.NewPCG(rand.Uint64(), rand.Uint64()))
	}
	e := &Engine{
		cfg:    cfg,
		sched:  s,
		rng:    rng,
		hooks:  hooks,
		board:  NewBoard(cfg.Width, cfg.Height),
		status: Running,
	}
	e.current = e.randomFigure()
	e.next = e.randomFigure()
	e.gravity = s.Every(cfg.Gravity, func() { e.Tick(false) })
	return e
}

func (e *Engine) Config() Config   { return e.cfg }
func (e *Engine) Status() Status   { return e.status }
func (e *Engine) Finished() bool   { return e.status != Running }
func (e *Engine) Step() int        { return e.step }
func (e *Engine) Board() *Board    { return e.board }
func (e *Engine) Rand() *rand.Rand { return e.rng }

// CurrentFigure returns the live active figure. Callers must not keep it past
// the current event.
func (e *Engine) CurrentFigure() *figure.Figure { return e.current }
func (e *Engine) NextFigure() *figure.Figure    { return e.next }

// SetCurrent replaces the active figure.
func (e *Engine) SetCurrent(f *figure.Figure) { e.current = f }

func (e *Engine) randomFigure() *figure.Figure {
	for {
		v := figure.Standard[e.rng.IntN(len(figure.Standard))]
		f := figure.New(v, figure.Position{X: e.rng.IntN(e.cfg.Width)}, e.cfg.Width)
		f.Position.Y = -f.TopCell()
		if f.Position.X+len(f.Shape) <= e.cfg.Width {
			return f
		}
	}
}

// Tick advances gravity by one row (unless redrawOnly) and resolves the
// result. It is a no-op once the game is over.
func (e *Engine) Tick(redrawOnly bool) {
	if e.Finished() {
		return
	}
	if !redrawOnly {
		e.current.MoveDown()
	}

	if !e.collides(e.current) {
		e.drawCurrent()
		if e.overlapsSpecial() {
			e.board.RemoveSpecial()
			if e.hooks.SpecialPicked != nil {
				e.hooks.SpecialPicked()
			}
		}
		return
	}

	e.current.Position.Y--
	if e.current.TopCell()+e.current.Position.Y <= 0 {
		e.finish(Lost)
		e.drawAll()
		return
	}

	e.board.Lock(e.current)
	e.board.RemoveSpecial()
	e.checkLines()
	e.current = e.next
	e.next = e.randomFigure()
	if e.rng.IntN(1000) < e.cfg.SpecialPermille {
		e.spawnSpecial()
	}
	e.drawAll()
}

// collides reports whether any filled cell of f is at or below the floor or
// on a non-special locked cell. Rows above the board never collide.
func (e *Engine) collides(f *figure.Figure) bool {
	for _, c := range f.Cells() {
		if c.Y >= e.cfg.Height {
			return true
		}
		if c.Y < 0 {
			continue
		}
		if c.X < 0 || c.X >= e.cfg.Width || e.board.Blocked(c.X, c.Y) {
			return true
		}
	}
	return false
}

// HorizontalCollision reports whether shifting the active figure by dx would
// hit a non-special locked cell.
func (e *Engine) HorizontalCollision(dx int) bool {
	for _, c := range e.current.Cells() {
		if e.board.Blocked(c.X+dx, c.Y) {
			return true
		}
	}
	return false
}

func (e *Engine) checkLines() {
	for y := 0; y < e.cfg.Height; y++ {
		if !e.board.RowFull(y) {
			continue
		}
		e.board.ClearRow(y)
		e.board.Compact()
		e.lineCompleted()
	}
}

func (e *Engine) lineCompleted() {
	if e.hooks.LinesCompleted != nil {
		e.hooks.LinesCompleted(1)
	}
}

func (e *Engine) spawnSpecial() {
	candidates := e.board.SpawnCandidates()
	if len(candidates) == 0 {
		return
	}
	p := candidates[e.rng.IntN(len(candidates))]
	e.board.Lock(figure.New(figure.Special, p, e.cfg.Width))
}

func (e *Engine) overlapsSpecial() bool {
	p, ok := e.board.Special()
	if !ok {
		return false
	}
	for _, c := range e.current.Cells() {
		if c == p {
			return true
		}
	}
	return false
}

func (e *Engine) snapshotCurrent() {
	e.playing = &Current{Figure: e.current, StartingPoint: e.current.Position}
}

func (e *Engine) frame() Frame {
	fr := Frame{Board: e.board.Snapshot(), Step: e.step}
	if e.playing != nil {
		fr.Current = &Current{Figure: e.playing.Figure.Clone(), StartingPoint: e.playing.StartingPoint}
	}
	return fr
}

func (e *Engine) drawCurrent() {
	e.snapshotCurrent()
	if e.hooks.DrawCurrent != nil {
		e.hooks.DrawCurrent(e.frame())
	}
}

// drawAll emits a full frame and bumps the step counter.
func (e *Engine) drawAll() {
	e.snapshotCurrent()
	if e.hooks.DrawBoard != nil {
		e.hooks.DrawBoard(e.frame())
	}
	e.step++
}

// Redraw forces a full frame without moving anything.
func (e *Engine) Redraw() {
	if e.Finished() {
		return
	}
	e.drawAll()
}

func (e *Engine) MoveLeft()  { e.shift(-1) }
func (e *Engine) MoveRight() { e.shift(1) }

func (e *Engine) shift(dx int) {
	if e.Finished() {
		return
	}
	if !e.HorizontalCollision(dx) {
		if dx < 0 {
			e.current.MoveLeft()
		} else {
			e.current.MoveRight()
		}
	}
	e.drawAll()
}

// Rotate turns the active figure without a collision pre-check.
func (e *Engine) Rotate() {
	if e.Finished() {
		return
	}
	e.current.Rotate()
	e.drawAll()
}

// IncreaseSpeed replaces the gravity task with one firing every period.
func (e *Engine) IncreaseSpeed(period time.Duration) {
	if e.Finished() {
		return
	}
	if e.gravity != nil {
		e.gravity.Cancel()
	}
	e.gravity = e.sched.Every(period, func() { e.Tick(false) })
}

// NormalGameSpeed restores the configured gravity period.
func (e *Engine) NormalGameSpeed() { e.IncreaseSpeed(e.cfg.Gravity) }

// After schedules fn on the engine's scheduler.
func (e *Engine) After(d time.Duration, fn func()) sched.Task { return e.sched.After(d, fn) }

// ClearLowestRow empties the lowest non-empty row, compacts the board and
// reports one completed line. It reports false when the board is empty.
func (e *Engine) ClearLowestRow() bool {
	if e.Finished() {
		return false
	}
	for y := e.cfg.Height - 1; y >= 0; y-- {
		if e.board.RowEmpty(y) {
			continue
		}
		e.board.ClearRow(y)
		e.board.Compact()
		e.lineCompleted()
		e.drawAll()
		return true
	}
	return false
}

// AddLine inserts an empty row at the bottom and drops row 0 with whatever it
// held. Overflow is not re-evaluated.
func (e *Engine) AddLine() {
	if e.Finished() {
		return
	}
	e.board.PushBottom()
}

// SetResult ends the game from outside, e.g. on a relayed result.
func (e *Engine) SetResult(won bool) {
	if won {
		e.finish(Won)
	} else {
		e.finish(Lost)
	}
}

func (e *Engine) finish(s Status) {
	if e.Finished() {
		return
	}
	if e.gravity != nil {
		e.gravity.Cancel()
		e.gravity = nil
	}
	e.status = s
	if e.hooks.StatusChanged != nil {
		e.hooks.StatusChanged(s)
	}
}
