package figure

// Shape is a square occupancy matrix indexed [row][col]; 1 means filled.
type Shape [][]int

func (s Shape) Clone() Shape {
	out := make(Shape, len(s))
	for i, row := range s {
		out[i] = append([]int(nil), row...)
	}
	return out
}

// Rotate returns the transpose of s with every row reversed.
func (s Shape) Rotate() Shape {
	if len(s) == 0 {
		return Shape{}
	}
	h := len(s)
	w := len(s[0])
	out := make(Shape, w)
	for i := 0; i < w; i++ {
		out[i] = make([]int, h)
		for j := 0; j < h; j++ {
			out[i][j] = s[h-1-j][i]
		}
	}
	return out
}

// Count is the number of filled cells.
func (s Shape) Count() int {
	n := 0
	for _, row := range s {
		for _, c := range row {
			if c != 0 {
				n++
			}
		}
	}
	return n
}

// TopCell is the first row holding a filled cell, or -1 for an empty shape.
func (s Shape) TopCell() int {
	for i, row := range s {
		for _, c := range row {
			if c == 1 {
				return i
			}
		}
	}
	return -1
}

// LeftCell is the first column holding a filled cell, or 0 for an empty shape.
func (s Shape) LeftCell() int {
	if len(s) == 0 {
		return 0
	}
	for i := 0; i < len(s[0]); i++ {
		for j := range s {
			if s[j][i] == 1 {
				return i
			}
		}
	}
	return 0
}

// RightCell is the last column holding a filled cell, or 0 for an empty shape.
func (s Shape) RightCell() int {
	if len(s) == 0 {
		return 0
	}
	for i := len(s[0]) - 1; i >= 0; i-- {
		for j := range s {
			if s[j][i] == 1 {
				return i
			}
		}
	}
	return 0
}
