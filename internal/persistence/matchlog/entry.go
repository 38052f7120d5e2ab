package matchlog

import (
	"bytes"
	"encoding/json"
	"time"

	"kartetris.ai/internal/sim/encoding"
)

// Entry kinds beyond the relayed event names.
const (
	KindMatched    = "matched"
	KindDisconnect = "disconnect"
	KindForfeit    = "forfeit"
)

type Entry struct {
	Time  time.Time `json:"ts"`
	Kind  string    `json:"kind"`
	Room  string    `json:"room,omitempty"`
	Peer  string    `json:"peer,omitempty"`
	Name  string    `json:"name,omitempty"`
	Step  *int      `json:"step,omitempty"`
	Score *int      `json:"score,omitempty"`
	Won   *bool     `json:"won,omitempty"`

	Board *encoding.Compact `json:"board,omitempty"`

	Effect     string `json:"effect,omitempty"`
	WinnerName string `json:"winner,omitempty"`
	LooserName string `json:"looser,omitempty"`
	Reason     string `json:"reason,omitempty"`
}

// CompactRaw packs a wire board. Empty, null or malformed boards yield nil.
func CompactRaw(raw json.RawMessage) *encoding.Compact {
	raw = bytes.TrimSpace(raw)
	if len(raw) == 0 || raw[0] != '[' {
		return nil
	}
	var b encoding.BoardRecord
	if err := json.Unmarshal(raw, &b); err != nil {
		return nil
	}
	c := encoding.CompactBoard(b)
	return &c
}
