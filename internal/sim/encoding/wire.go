// Package encoding converts engine state to and from its wire form and packs
// boards into a compact run-length form for logs.
package encoding

import (
	"kartetris.ai/internal/sim/figure"
	"kartetris.ai/internal/sim/game"
)

// FigureRecord is the wire form of a figure. lastUpdated is not sent.
type FigureRecord struct {
	Type     figure.Variant  `json:"type,omitempty"`
	Position figure.Position `json:"position"`
	Shape    figure.Shape    `json:"shape"`
	Color    string          `json:"color"`
}

type CurrentRecord struct {
	Figure        FigureRecord    `json:"figure"`
	StartingPoint figure.Position `json:"startingPoint"`
}

// BoardRecord is a row-major grid; nil entries are empty cells.
type BoardRecord [][]*FigureRecord

func EncodeFigure(f *figure.Figure) *FigureRecord {
	if f == nil {
		return nil
	}
	return &FigureRecord{
		Type:     f.Variant,
		Position: f.Position,
		Shape:    f.Shape.Clone(),
		Color:    f.Color,
	}
}

// DecodeFigure rebuilds a figure from shape, color and position. The variant
// tag is not restored.
func DecodeFigure(r *FigureRecord) *figure.Figure {
	if r == nil {
		return nil
	}
	return figure.FromShape(r.Shape.Clone(), r.Color, r.Position, figure.DefaultBoardWidth)
}

func EncodeCurrent(c *game.Current) *CurrentRecord {
	if c == nil || c.Figure == nil {
		return nil
	}
	return &CurrentRecord{
		Figure:        *EncodeFigure(c.Figure),
		StartingPoint: c.StartingPoint,
	}
}

func DecodeCurrent(r *CurrentRecord) *game.Current {
	if r == nil {
		return nil
	}
	f := r.Figure
	return &game.Current{
		Figure:        DecodeFigure(&f),
		StartingPoint: r.StartingPoint,
	}
}

// EncodeBoard keeps the grid dimensions exactly, including empty rows.
func EncodeBoard(b [][]*figure.Figure) BoardRecord {
	if b == nil {
		return nil
	}
	out := make(BoardRecord, len(b))
	for y, row := range b {
		out[y] = make([]*FigureRecord, len(row))
		for x, f := range row {
			out[y][x] = EncodeFigure(f)
		}
	}
	return out
}

func DecodeBoard(r BoardRecord) [][]*figure.Figure {
	if r == nil {
		return nil
	}
	out := make([][]*figure.Figure, len(r))
	for y, row := range r {
		out[y] = make([]*figure.Figure, len(row))
		for x, rec := range row {
			out[y][x] = DecodeFigure(rec)
		}
	}
	return out
}
