// Package figure holds the tetromino shapes and the per-figure movement rules.
//
// All seven tetrominoes share one Figure type; the variant tag selects an entry
// in a static shape/color table. The special pickup is another variant with a
// 1x1 shape.
package figure

import "time"

// DefaultBoardWidth is the canonical board width used for lateral clamping.
const DefaultBoardWidth = 10

type Variant string

const (
	// None marks a figure rebuilt from its wire form; the variant is not transmitted back.
	None    Variant = ""
	I       Variant = "I"
	J       Variant = "J"
	L       Variant = "L"
	O       Variant = "O"
	S       Variant = "S"
	T       Variant = "T"
	Z       Variant = "Z"
	Special Variant = "Special"
)

// Standard is the draw order used for random selection.
var Standard = []Variant{I, Z, S, L, J, O, T}

type def struct {
	shape Shape
	color string
}

var table = map[Variant]def{
	T: {color: "#a21caf", shape: Shape{
		{0, 1, 0, 0},
		{1, 1, 1, 0},
		{0, 0, 0, 0},
		{0, 0, 0, 0},
	}},
	L: {color: "#f59e42", shape: Shape{
		{0, 0, 0, 0},
		{0, 0, 1, 0},
		{1, 1, 1, 0},
		{0, 0, 0, 0},
	}},
	J: {color: "#0A99DF", shape: Shape{
		{0, 0, 0, 0},
		{1, 0, 0, 0},
		{1, 1, 1, 0},
		{0, 0, 0, 0},
	}},
	O: {color: "#fde047", shape: Shape{
		{0, 1, 1, 0},
		{0, 1, 1, 0},
		{0, 0, 0, 0},
		{0, 0, 0, 0},
	}},
	S: {color: "#4ade80", shape: Shape{
		{0, 0, 0, 0},
		{0, 1, 1, 0},
		{1, 1, 0, 0},
		{0, 0, 0, 0},
	}},
	Z: {color: "#EA5EEF", shape: Shape{
		{0, 0, 0, 0},
		{1, 1, 0, 0},
		{0, 1, 1, 0},
		{0, 0, 0, 0},
	}},
	I: {color: "#38bdf8", shape: Shape{
		{0, 0, 0, 0},
		{0, 0, 0, 0},
		{1, 1, 1, 1},
		{0, 0, 0, 0},
	}},
	Special: {color: "gradient", shape: Shape{{1}}},
}

type Position struct {
	X int `json:"x"`
	Y int `json:"y"`
}

type Figure struct {
	Variant     Variant
	Shape       Shape
	Color       string
	Position    Position
	LastUpdated time.Time

	boardWidth int
}

// New builds a figure of variant v anchored at pos. Unknown variants yield an
// empty 1x1 shape.
func New(v Variant, pos Position, boardWidth int) *Figure {
	d, ok := table[v]
	if !ok {
		return FromShape(Shape{{0}}, "", pos, boardWidth)
	}
	f := FromShape(d.shape.Clone(), d.color, pos, boardWidth)
	f.Variant = v
	return f
}

// FromShape builds a variant-less figure from raw parts. The shape is used as is.
func FromShape(shape Shape, color string, pos Position, boardWidth int) *Figure {
	if boardWidth <= 0 {
		boardWidth = DefaultBoardWidth
	}
	return &Figure{
		Shape:       shape,
		Color:       color,
		Position:    pos,
		LastUpdated: time.Now(),
		boardWidth:  boardWidth,
	}
}

func (f *Figure) IsSpecial() bool { return f != nil && f.Variant == Special }

func (f *Figure) BoardWidth() int { return f.boardWidth }

// Clone returns a deep copy; the shape matrix is not shared.
func (f *Figure) Clone() *Figure {
	if f == nil {
		return nil
	}
	c := *f
	c.Shape = f.Shape.Clone()
	return &c
}

// Rotate turns the shape 90 degrees and shifts the figure back inside the
// board horizontally. It never refuses a rotation and never clamps vertically.
func (f *Figure) Rotate() {
	next := f.Shape.Rotate()

	left := f.Position.X + next.LeftCell()
	right := f.Position.X + next.RightCell()
	maxX := f.boardWidth - 1
	if left < 0 {
		f.Position.X -= left
	} else if right > maxX {
		f.Position.X -= right - maxX
	}
	f.Shape = next
	f.touch()
}

func (f *Figure) MoveDown() {
	f.Position.Y++
	f.touch()
}

func (f *Figure) MoveLeft() {
	if f.Position.X-1+f.Shape.LeftCell() >= 0 {
		f.Position.X--
		f.touch()
	}
}

func (f *Figure) MoveRight() {
	if f.Position.X+1+f.Shape.RightCell() <= f.boardWidth-1 {
		f.Position.X++
		f.touch()
	}
}

func (f *Figure) TopCell() int   { return f.Shape.TopCell() }
func (f *Figure) LeftCell() int  { return f.Shape.LeftCell() }
func (f *Figure) RightCell() int { return f.Shape.RightCell() }

// Cells returns the board coordinates of every filled cell.
func (f *Figure) Cells() []Position {
	out := make([]Position, 0, 4)
	for y, row := range f.Shape {
		for x, c := range row {
			if c != 0 {
				out = append(out, Position{X: f.Position.X + x, Y: f.Position.Y + y})
			}
		}
	}
	return out
}

func (f *Figure) touch() { f.LastUpdated = time.Now() }
