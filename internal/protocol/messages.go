package protocol

import "encoding/json"

// waiting (server -> client)
type WaitingMsg struct {
	Message string `json:"message"`
}

// matched (server -> both peers)
type MatchedMsg struct {
	RoomID   string `json:"roomId"`
	Opponent string `json:"opponent"`
}

// gameUpdate (both ways). Board and CurrentFigure stay raw on the relay;
// only clients decode them.
type GameUpdateMsg struct {
	RoomID        string          `json:"roomId"`
	Update        string          `json:"update,omitempty"`
	Board         json.RawMessage `json:"board,omitempty"`
	CurrentFigure json.RawMessage `json:"currentFigure,omitempty"`
	Step          *int            `json:"step,omitempty"`
	Score         *int            `json:"score,omitempty"`
	Won           *bool           `json:"won,omitempty"`
	Character     string          `json:"character,omitempty"`
	PlayerName    string          `json:"playerName,omitempty"`
}

// effect (both ways)
type EffectMsg struct {
	Name   string `json:"name"`
	RoomID string `json:"roomId"`
}

// gameResult (client -> server)
type GameResultMsg struct {
	RoomID      string `json:"roomId"`
	WinnerName  string `json:"winnerName"`
	LooserName  string `json:"looserName"`
	WinnerScore int    `json:"winnerScore"`
	LooserScore int    `json:"looserScore"`
}

// gameResult (server -> other peer). Scores are not relayed. Reason is set
// when the relay ends the match itself.
type GameResultRelayMsg struct {
	LooserName string `json:"looserName"`
	WinnerName string `json:"winnerName"`
	RoomID     string `json:"roomId"`
	Reason     string `json:"reason,omitempty"`
}

const ReasonDisconnect = "disconnect"

// error (server -> client)
type ErrorMsg struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}

// RankingEntry is one row of GET /api/ranking.
type RankingEntry struct {
	PlayerName string `json:"playerName"`
	Score      int    `json:"score"`
}

func IntPtr(v int) *int    { return &v }
func BoolPtr(v bool) *bool { return &v }
