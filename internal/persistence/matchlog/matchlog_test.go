package matchlog

import (
	"encoding/json"
	"path/filepath"
	"testing"
	"time"
)

func TestWriter_RotatesHourlyAndReadsBack(t *testing.T) {
	dir := t.TempDir()
	w := NewWriter(dir)
	clock := time.Date(2026, 3, 1, 10, 59, 0, 0, time.UTC)
	w.now = func() time.Time { return clock }

	step := 3
	if err := w.Record(Entry{Kind: KindMatched, Room: "room-a-b"}); err != nil {
		t.Fatalf("Record: %v", err)
	}
	if err := w.Record(Entry{Kind: "gameUpdate", Room: "room-a-b", Name: "alice", Step: &step}); err != nil {
		t.Fatalf("Record: %v", err)
	}
	clock = clock.Add(2 * time.Minute)
	if err := w.Record(Entry{Kind: "gameResult", Room: "room-a-b", WinnerName: "bob", LooserName: "alice"}); err != nil {
		t.Fatalf("Record: %v", err)
	}
	if err := w.Close(); err != nil {
		t.Fatalf("Close: %v", err)
	}

	files, err := ListFiles(dir)
	if err != nil {
		t.Fatalf("ListFiles: %v", err)
	}
	if len(files) != 2 || filepath.Base(files[0]) != "matches-2026-03-01-10.jsonl.zst" {
		t.Fatalf("files=%v", files)
	}

	var kinds []string
	sum := NewSummary()
	for _, f := range files {
		if err := ReadFile(f, func(e Entry) error {
			kinds = append(kinds, e.Kind)
			sum.Add(e)
			return nil
		}); err != nil {
			t.Fatalf("ReadFile: %v", err)
		}
	}
	if len(kinds) != 3 || kinds[2] != "gameResult" {
		t.Fatalf("kinds=%v", kinds)
	}
	rooms := sum.Rooms()
	if len(rooms) != 1 {
		t.Fatalf("rooms=%+v", rooms)
	}
	r := rooms[0]
	if !r.Finished || r.WinnerName != "bob" || r.MaxStep != 3 || r.Updates != 1 || len(r.Players) != 2 {
		t.Fatalf("summary=%+v", r)
	}
}

func TestWriter_OnCloseSeesEveryFinishedFile(t *testing.T) {
	dir := t.TempDir()
	var closed []string
	w := NewWriterWithOptions(dir, WriterOptions{OnClose: func(p string) { closed = append(closed, p) }})
	clock := time.Date(2026, 3, 1, 10, 30, 0, 0, time.UTC)
	w.now = func() time.Time { return clock }

	for i := 0; i < 3; i++ {
		if err := w.Record(Entry{Kind: KindMatched, Room: "room-a-b"}); err != nil {
			t.Fatalf("Record: %v", err)
		}
		clock = clock.Add(time.Hour)
	}
	if len(closed) != 2 {
		t.Fatalf("closed before Close=%v", closed)
	}
	if err := w.Close(); err != nil {
		t.Fatalf("Close: %v", err)
	}
	files, err := ListFiles(dir)
	if err != nil {
		t.Fatalf("ListFiles: %v", err)
	}
	if len(closed) != 3 || closed[0] != files[0] || closed[2] != files[2] {
		t.Fatalf("closed=%v files=%v", closed, files)
	}
}

func TestCompactRaw(t *testing.T) {
	raw := json.RawMessage(`[[null,{"position":{"x":1,"y":0},"shape":[[1]],"color":"#f00"}],[null,null]]`)
	c := CompactRaw(raw)
	if c == nil || c.Width != 2 || c.Height != 2 {
		t.Fatalf("compact=%+v", c)
	}
	if n, err := c.Filled(); err != nil || n != 1 {
		t.Fatalf("filled=%d err=%v", n, err)
	}
	for _, bad := range []string{``, `""`, `null`, `[1`} {
		if CompactRaw(json.RawMessage(bad)) != nil {
			t.Fatalf("expected nil for %q", bad)
		}
	}
}

func TestSummary_ForfeitAndIgnoresLateResult(t *testing.T) {
	s := NewSummary()
	t0 := time.Now()
	s.Add(Entry{Time: t0, Kind: KindForfeit, Room: "r", WinnerName: "a", LooserName: "b", Reason: "disconnect"})
	s.Add(Entry{Time: t0.Add(time.Second), Kind: "gameResult", Room: "r", WinnerName: "b", LooserName: "a"})
	s.Add(Entry{Kind: "effect", Effect: "AddLine"})
	rooms := s.Rooms()
	if len(rooms) != 1 || rooms[0].WinnerName != "a" || rooms[0].Reason != "disconnect" {
		t.Fatalf("rooms=%+v", rooms)
	}
}
