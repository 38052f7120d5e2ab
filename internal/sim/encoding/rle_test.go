package encoding

import (
	"testing"

	"github.com/stretchr/testify/require"

	"kartetris.ai/internal/sim/figure"
)

func TestCompactBoard_RoundTrip(t *testing.T) {
	red := &FigureRecord{Color: "#f00", Shape: figure.Shape{{1}}}
	blue := &FigureRecord{Color: "#00f", Shape: figure.Shape{{1}}}
	b := make(BoardRecord, 20)
	for y := range b {
		b[y] = make([]*FigureRecord, 10)
	}
	for x := 0; x < 10; x++ {
		b[19][x] = red
	}
	b[18][3] = blue
	b[18][4] = red

	c := CompactBoard(b)
	require.Equal(t, 10, c.Width)
	require.Equal(t, 20, c.Height)
	require.Len(t, c.Palette, 2)

	grid, err := c.Expand()
	require.NoError(t, err)
	for y := range b {
		for x := range b[y] {
			want := ""
			if b[y][x] != nil {
				want = b[y][x].Color
			}
			require.Equal(t, want, grid[y][x], "cell %d,%d", x, y)
		}
	}
	n, err := c.Filled()
	require.NoError(t, err)
	require.Equal(t, 12, n)
}

func TestCompactBoard_EmptyBoardIsShort(t *testing.T) {
	b := make(BoardRecord, 20)
	for y := range b {
		b[y] = make([]*FigureRecord, 10)
	}
	c := CompactBoard(b)
	// One (0, 200) pair: 1 byte + 2 bytes varint.
	require.LessOrEqual(t, len(c.Cells), 4, "cells=%q", c.Cells)
}

func TestCompact_ExpandRejectsBadInput(t *testing.T) {
	_, err := (Compact{Width: 2, Height: 2, Cells: "!!"}).Expand()
	require.Error(t, err, "base64")

	_, err = (Compact{Width: 2, Height: 1, Cells: encodeRuns([]uint16{0, 3})}).Expand()
	require.Error(t, err, "palette range")

	_, err = (Compact{Width: 3, Height: 1, Cells: encodeRuns([]uint16{0, 0})}).Expand()
	require.Error(t, err, "size")
}
