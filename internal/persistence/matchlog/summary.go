package matchlog

import (
	"sort"
	"time"
)

type RoomSummary struct {
	Room       string
	Players    []string
	Updates    int
	Effects    map[string]int
	MaxStep    int
	Scores     map[string]int
	WinnerName string
	LooserName string
	Reason     string
	Finished   bool
	Start      time.Time
	End        time.Time
}

// Summary folds entries into per-room summaries.
type Summary struct {
	rooms map[string]*RoomSummary
}

func NewSummary() *Summary { return &Summary{rooms: map[string]*RoomSummary{}} }

func (s *Summary) Add(e Entry) {
	if e.Room == "" {
		return
	}
	r := s.rooms[e.Room]
	if r == nil {
		r = &RoomSummary{Room: e.Room, Effects: map[string]int{}, Scores: map[string]int{}, Start: e.Time}
		s.rooms[e.Room] = r
	}
	if e.Time.After(r.End) {
		r.End = e.Time
	}
	if e.Name != "" {
		r.addPlayer(e.Name)
	}
	switch e.Kind {
	case "gameUpdate":
		r.Updates++
		if e.Step != nil && *e.Step > r.MaxStep {
			r.MaxStep = *e.Step
		}
		if e.Score != nil && e.Name != "" {
			r.Scores[e.Name] = *e.Score
		}
	case "effect":
		r.Effects[e.Effect]++
	case "gameResult", KindForfeit:
		if r.Finished {
			return
		}
		r.Finished = true
		r.WinnerName = e.WinnerName
		r.LooserName = e.LooserName
		r.Reason = e.Reason
		r.addPlayer(e.WinnerName)
		r.addPlayer(e.LooserName)
	}
}

func (r *RoomSummary) addPlayer(name string) {
	if name == "" {
		return
	}
	for _, p := range r.Players {
		if p == name {
			return
		}
	}
	r.Players = append(r.Players, name)
}

// Rooms returns the summaries ordered by first appearance.
func (s *Summary) Rooms() []RoomSummary {
	out := make([]RoomSummary, 0, len(s.rooms))
	for _, r := range s.rooms {
		out = append(out, *r)
	}
	sort.Slice(out, func(i, j int) bool {
		if !out[i].Start.Equal(out[j].Start) {
			return out[i].Start.Before(out[j].Start)
		}
		return out[i].Room < out[j].Room
	})
	return out
}
