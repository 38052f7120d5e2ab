package game

import (
	"github.com/kamstrup/intmap"

	"kartetris.ai/internal/sim/figure"
)

// Board is the locked-cell grid. Cells hold arena ids (0 = empty); every cell
// of one locked figure carries the same id and therefore the same Figure.
type Board struct {
	w, h   int
	cells  [][]uint32
	arena  *intmap.Map[uint32, *figure.Figure]
	nextID uint32
}

func NewBoard(w, h int) *Board {
	b := &Board{
		w:     w,
		h:     h,
		arena: intmap.New[uint32, *figure.Figure](64),
	}
	b.cells = make([][]uint32, h)
	for y := range b.cells {
		b.cells[y] = make([]uint32, w)
	}
	return b
}

func (b *Board) Width() int  { return b.w }
func (b *Board) Height() int { return b.h }

func (b *Board) inside(x, y int) bool { return x >= 0 && x < b.w && y >= 0 && y < b.h }

// At returns the figure occupying (x,y), or nil when empty or outside.
func (b *Board) At(x, y int) *figure.Figure {
	if !b.inside(x, y) {
		return nil
	}
	id := b.cells[y][x]
	if id == 0 {
		return nil
	}
	f, _ := b.arena.Get(id)
	return f
}

func (b *Board) Empty(x, y int) bool { return b.At(x, y) == nil }

// Blocked reports whether (x,y) holds a non-special figure.
func (b *Board) Blocked(x, y int) bool {
	f := b.At(x, y)
	return f != nil && !f.IsSpecial()
}

// Lock writes f into every in-range filled cell. Cells outside the grid are
// dropped.
func (b *Board) Lock(f *figure.Figure) {
	b.nextID++
	id := b.nextID
	b.arena.Put(id, f)
	for _, c := range f.Cells() {
		if b.inside(c.X, c.Y) {
			b.cells[c.Y][c.X] = id
		}
	}
	b.prune()
}

// Count is the number of non-empty cells.
func (b *Board) Count() int {
	n := 0
	for _, row := range b.cells {
		for _, id := range row {
			if id != 0 {
				n++
			}
		}
	}
	return n
}

// RowFull treats special cells as empty.
func (b *Board) RowFull(y int) bool {
	for x := 0; x < b.w; x++ {
		if !b.Blocked(x, y) {
			return false
		}
	}
	return true
}

func (b *Board) RowEmpty(y int) bool {
	for _, id := range b.cells[y] {
		if id != 0 {
			return false
		}
	}
	return true
}

func (b *Board) ClearRow(y int) {
	for x := range b.cells[y] {
		b.cells[y][x] = 0
	}
}

// Compact drops every empty row and refills the top with empty rows,
// keeping the order of the remaining rows.
func (b *Board) Compact() {
	kept := make([][]uint32, 0, b.h)
	for y := 0; y < b.h; y++ {
		if !b.RowEmpty(y) {
			kept = append(kept, b.cells[y])
		}
	}
	out := make([][]uint32, 0, b.h)
	for i := len(kept); i < b.h; i++ {
		out = append(out, make([]uint32, b.w))
	}
	b.cells = append(out, kept...)
	b.prune()
}

// PushBottom appends an empty row at the bottom and drops row 0.
func (b *Board) PushBottom() {
	b.cells = append(b.cells[1:], make([]uint32, b.w))
	b.prune()
}

// Special returns the position of the special marker, if one is on the board.
func (b *Board) Special() (figure.Position, bool) {
	for y, row := range b.cells {
		for x := range row {
			if f := b.At(x, y); f.IsSpecial() {
				return figure.Position{X: x, Y: y}, true
			}
		}
	}
	return figure.Position{}, false
}

// RemoveSpecial clears every special cell.
func (b *Board) RemoveSpecial() {
	for y, row := range b.cells {
		for x := range row {
			if f := b.At(x, y); f.IsSpecial() {
				b.cells[y][x] = 0
			}
		}
	}
	b.prune()
}

// SpawnCandidates lists empty cells that rest on an occupied cell and have no
// occupied cell above them in their column.
func (b *Board) SpawnCandidates() []figure.Position {
	var out []figure.Position
	for y := b.h - 2; y >= 0; y-- {
		for x := 0; x < b.w; x++ {
			if !b.Empty(x, y) || b.Empty(x, y+1) {
				continue
			}
			exposed := true
			for above := 0; above < y; above++ {
				if !b.Empty(x, above) {
					exposed = false
					break
				}
			}
			if exposed {
				out = append(out, figure.Position{X: x, Y: y})
			}
		}
	}
	return out
}

// Snapshot deep-copies the grid. Cells that shared a figure still share one
// copy.
func (b *Board) Snapshot() [][]*figure.Figure {
	copies := make(map[uint32]*figure.Figure, b.arena.Len())
	out := make([][]*figure.Figure, b.h)
	for y, row := range b.cells {
		out[y] = make([]*figure.Figure, b.w)
		for x, id := range row {
			if id == 0 {
				continue
			}
			c, ok := copies[id]
			if !ok {
				f, _ := b.arena.Get(id)
				c = f.Clone()
				copies[id] = c
			}
			out[y][x] = c
		}
	}
	return out
}

// prune forgets arena entries no cell refers to.
func (b *Board) prune() {
	live := intmap.NewSet[uint32](b.arena.Len())
	for _, row := range b.cells {
		for _, id := range row {
			if id != 0 {
				live.Add(id)
			}
		}
	}
	var dead []uint32
	b.arena.ForEach(func(id uint32, _ *figure.Figure) bool {
		if !live.Has(id) {
			dead = append(dead, id)
		}
		return true
	})
	for _, id := range dead {
		b.arena.Del(id)
	}
}

// Figures is the number of distinct figures still referenced by the grid.
func (b *Board) Figures() int { return b.arena.Len() }
