package encoding

import (
	"bytes"
	"encoding/base64"
	"encoding/binary"
	"fmt"
)

// Compact is a board reduced to colors: a palette plus base64 varint pairs
// (palette index + 1, run length) in row-major order. Index 0 is empty.
type Compact struct {
	Width   int      `json:"w"`
	Height  int      `json:"h"`
	Palette []string `json:"palette,omitempty"`
	Cells   string   `json:"cells"`
}

func CompactBoard(b BoardRecord) Compact {
	c := Compact{Height: len(b)}
	if len(b) > 0 {
		c.Width = len(b[0])
	}
	index := map[string]uint16{}
	ids := make([]uint16, 0, c.Width*c.Height)
	for _, row := range b {
		for x := 0; x < c.Width; x++ {
			var rec *FigureRecord
			if x < len(row) {
				rec = row[x]
			}
			if rec == nil {
				ids = append(ids, 0)
				continue
			}
			id, ok := index[rec.Color]
			if !ok {
				c.Palette = append(c.Palette, rec.Color)
				id = uint16(len(c.Palette))
				index[rec.Color] = id
			}
			ids = append(ids, id)
		}
	}
	c.Cells = encodeRuns(ids)
	return c
}

// Expand returns the color grid; "" marks an empty cell.
func (c Compact) Expand() ([][]string, error) {
	ids, err := decodeRuns(c.Cells)
	if err != nil {
		return nil, err
	}
	if len(ids) != c.Width*c.Height {
		return nil, fmt.Errorf("compact board: %d cells for %dx%d", len(ids), c.Width, c.Height)
	}
	out := make([][]string, c.Height)
	for y := range out {
		out[y] = make([]string, c.Width)
		for x := range out[y] {
			id := ids[y*c.Width+x]
			if id == 0 {
				continue
			}
			if int(id) > len(c.Palette) {
				return nil, fmt.Errorf("compact board: palette index %d out of range", id)
			}
			out[y][x] = c.Palette[id-1]
		}
	}
	return out, nil
}

// Filled counts occupied cells without building the grid.
func (c Compact) Filled() (int, error) {
	ids, err := decodeRuns(c.Cells)
	if err != nil {
		return 0, err
	}
	n := 0
	for _, id := range ids {
		if id != 0 {
			n++
		}
	}
	return n, nil
}

func encodeRuns(ids []uint16) string {
	var buf bytes.Buffer
	var tmp [binary.MaxVarintLen64]byte
	for i := 0; i < len(ids); {
		j := i + 1
		for j < len(ids) && ids[j] == ids[i] {
			j++
		}
		buf.Write(tmp[:binary.PutUvarint(tmp[:], uint64(ids[i]))])
		buf.Write(tmp[:binary.PutUvarint(tmp[:], uint64(j-i))])
		i = j
	}
	return base64.StdEncoding.EncodeToString(buf.Bytes())
}

func decodeRuns(s string) ([]uint16, error) {
	raw, err := base64.StdEncoding.DecodeString(s)
	if err != nil {
		return nil, err
	}
	var out []uint16
	for i := 0; i < len(raw); {
		id, n := binary.Uvarint(raw[i:])
		if n <= 0 {
			return nil, fmt.Errorf("bad varint at %d", i)
		}
		i += n
		run, n := binary.Uvarint(raw[i:])
		if n <= 0 {
			return nil, fmt.Errorf("bad varint at %d", i)
		}
		i += n
		if id > 0xFFFF {
			return nil, fmt.Errorf("palette id too large: %d", id)
		}
		if run > 1<<16 {
			return nil, fmt.Errorf("run too long: %d", run)
		}
		for k := uint64(0); k < run; k++ {
			out = append(out, uint16(id))
		}
	}
	return out, nil
}
