package client

import (
	"math"

	"kartetris.ai/internal/sim/figure"
	"kartetris.ai/internal/sim/game"
)

// Placement weights: aggregate height, completed lines, holes, bumpiness.
const (
	wHeight = -0.510066
	wLines  = 0.760666
	wHoles  = -0.35663
	wBumps  = -0.184483
)

// Autopilot plays a Session by pressing keys toward the best placement it
// finds for each new figure.
type Autopilot struct {
	fig      *figure.Figure
	rotLeft  int
	targetX  int
	dropping bool
}

// Step issues at most one key for the current figure.
func (a *Autopilot) Step(s *Session) {
	e := s.Engine()
	if e == nil || e.Finished() {
		return
	}
	cur := e.CurrentFigure()
	if cur != a.fig {
		if a.dropping {
			s.Release(KeyDown)
		}
		a.fig = cur
		a.rotLeft, a.targetX = Plan(e.Board(), cur)
		a.dropping = false
	}
	switch {
	case a.rotLeft > 0:
		a.rotLeft--
		s.Press(KeyRotate)
	case cur.Position.X < a.targetX:
		before := cur.Position.X
		s.Press(KeyRight)
		if cur.Position.X == before {
			a.targetX = before
		}
	case cur.Position.X > a.targetX:
		before := cur.Position.X
		s.Press(KeyLeft)
		if cur.Position.X == before {
			a.targetX = before
		}
	case !a.dropping:
		a.dropping = true
		s.Press(KeyDown)
	}
}

// Plan returns how many rotations to apply to f and the anchor column to move
// it to. Without any legal placement it keeps f as is.
func Plan(b *game.Board, f *figure.Figure) (rotations, x int) {
	w, h := b.Width(), b.Height()
	grid := make([][]bool, h)
	for y := range grid {
		grid[y] = make([]bool, w)
		for cx := 0; cx < w; cx++ {
			grid[y][cx] = b.Blocked(cx, y)
		}
	}

	best := math.Inf(-1)
	rotations, x = 0, f.Position.X
	shape := f.Shape.Clone()
	for r := 0; r < 4; r++ {
		for px := -len(shape); px < w; px++ {
			score, ok := evaluate(grid, shape, px)
			if ok && score > best {
				best, rotations, x = score, r, px
			}
		}
		shape = shape.Rotate()
	}
	return rotations, x
}

func evaluate(grid [][]bool, s figure.Shape, px int) (float64, bool) {
	h, w := len(grid), len(grid[0])
	var cells []figure.Position
	for r, row := range s {
		for c, v := range row {
			if v == 0 {
				continue
			}
			if px+c < 0 || px+c >= w {
				return 0, false
			}
			cells = append(cells, figure.Position{X: px + c, Y: r})
		}
	}
	if len(cells) == 0 {
		return 0, false
	}
	fits := func(dy int) bool {
		for _, c := range cells {
			y := c.Y + dy
			if y >= h || (y >= 0 && grid[y][c.X]) {
				return false
			}
		}
		return true
	}
	dy := -s.TopCell()
	if !fits(dy) {
		return 0, false
	}
	for fits(dy + 1) {
		dy++
	}

	next := make([][]bool, h)
	for y := range grid {
		next[y] = append([]bool(nil), grid[y]...)
	}
	for _, c := range cells {
		if y := c.Y + dy; y >= 0 {
			next[y][c.X] = true
		} else {
			return 0, false
		}
	}

	lines := 0
	kept := next[:0]
	for _, row := range next {
		full := true
		for _, v := range row {
			full = full && v
		}
		if full {
			lines++
			continue
		}
		kept = append(kept, row)
	}
	for len(kept) < h {
		kept = append([][]bool{make([]bool, w)}, kept...)
	}

	heights := make([]int, w)
	holes := 0
	for cx := 0; cx < w; cx++ {
		seen := false
		for y := 0; y < h; y++ {
			if kept[y][cx] {
				if !seen {
					heights[cx] = h - y
					seen = true
				}
			} else if seen {
				holes++
			}
		}
	}
	agg, bumps := 0, 0
	for cx, ht := range heights {
		agg += ht
		if cx > 0 {
			d := ht - heights[cx-1]
			if d < 0 {
				d = -d
			}
			bumps += d
		}
	}
	return wHeight*float64(agg) + wLines*float64(lines) + wHoles*float64(holes) + wBumps*float64(bumps), true
}
