package scoredb

import (
	"context"
	"path/filepath"
	"testing"

	"kartetris.ai/internal/protocol"
)

func open(t *testing.T) *Store {
	t.Helper()
	s, err := Open(filepath.Join(t.TempDir(), "scores.db"), nil)
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	t.Cleanup(func() { _ = s.Close() })
	return s
}

func TestUpdateScores_UpsertAndIncrement(t *testing.T) {
	ctx := context.Background()
	s := open(t)

	if err := s.UpdateScores(ctx, "alice", 100, "bob", 0); err != nil {
		t.Fatalf("UpdateScores: %v", err)
	}
	got, err := s.TopScores(ctx, 10)
	if err != nil {
		t.Fatalf("TopScores: %v", err)
	}
	assertRanking(t, got, []protocol.RankingEntry{{PlayerName: "alice", Score: 100}, {PlayerName: "bob", Score: 0}})

	if err := s.UpdateScores(ctx, "alice", 50, "bob", 10); err != nil {
		t.Fatalf("UpdateScores: %v", err)
	}
	got, err = s.TopScores(ctx, 10)
	if err != nil {
		t.Fatalf("TopScores: %v", err)
	}
	assertRanking(t, got, []protocol.RankingEntry{{PlayerName: "alice", Score: 150}, {PlayerName: "bob", Score: 10}})
}

func TestTopScores_LimitAndOrder(t *testing.T) {
	ctx := context.Background()
	s := open(t)
	for i := 0; i < 15; i++ {
		name := string(rune('a' + i))
		if err := s.Adjust(ctx, name, i*10); err != nil {
			t.Fatalf("Adjust: %v", err)
		}
	}
	got, err := s.TopScores(ctx, 10)
	if err != nil {
		t.Fatalf("TopScores: %v", err)
	}
	if len(got) != 10 {
		t.Fatalf("len=%d", len(got))
	}
	if got[0].PlayerName != "o" || got[0].Score != 140 {
		t.Fatalf("first=%+v", got[0])
	}
	for i := 1; i < len(got); i++ {
		if got[i].Score > got[i-1].Score {
			t.Fatalf("not descending at %d: %+v", i, got)
		}
	}
}

func TestTopScores_EmptyStoreIsEmptySlice(t *testing.T) {
	got, err := open(t).TopScores(context.Background(), 10)
	if err != nil {
		t.Fatalf("TopScores: %v", err)
	}
	if got == nil || len(got) != 0 {
		t.Fatalf("got=%#v", got)
	}
}

func TestTopScores_ClosedStoreErrors(t *testing.T) {
	s, err := Open(filepath.Join(t.TempDir(), "scores.db"), nil)
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	_ = s.Close()
	if _, err := s.TopScores(context.Background(), 10); err == nil {
		t.Fatalf("expected error from closed store")
	}
}

func TestUpdateScores_RejectsEmptyName(t *testing.T) {
	s := open(t)
	if err := s.UpdateScores(context.Background(), "", 10, "bob", 0); err != ErrEmptyName {
		t.Fatalf("err=%v", err)
	}
	got, _ := s.TopScores(context.Background(), 10)
	if len(got) != 0 {
		t.Fatalf("partial write: %+v", got)
	}
}

func TestMatches_RecentFirst(t *testing.T) {
	ctx := context.Background()
	s := open(t)
	for _, room := range []string{"room-1", "room-2"} {
		if err := s.RecordMatch(ctx, Match{RoomID: room, WinnerName: "a", LooserName: "b", WinnerScore: 20}); err != nil {
			t.Fatalf("RecordMatch: %v", err)
		}
	}
	ms, err := s.RecentMatches(ctx, 10)
	if err != nil {
		t.Fatalf("RecentMatches: %v", err)
	}
	if len(ms) != 2 || ms[0].RoomID != "room-2" || ms[0].RecordedAt.IsZero() {
		t.Fatalf("matches=%+v", ms)
	}

	ok, err := s.Delete(ctx, "nobody")
	if err != nil || ok {
		t.Fatalf("Delete=%v,%v", ok, err)
	}
}

func TestAdjustAndDelete(t *testing.T) {
	ctx := context.Background()
	s := open(t)
	if err := s.UpdateScores(ctx, "alice", 40, "bob", 20); err != nil {
		t.Fatalf("UpdateScores: %v", err)
	}
	if err := s.Adjust(ctx, "bob", -15); err != nil {
		t.Fatalf("Adjust: %v", err)
	}
	if err := s.Adjust(ctx, " ", 5); err != ErrEmptyName {
		t.Fatalf("Adjust empty name err=%v", err)
	}
	ok, err := s.Delete(ctx, "alice")
	if err != nil || !ok {
		t.Fatalf("Delete=%v,%v", ok, err)
	}
	top, err := s.TopScores(ctx, 10)
	if err != nil {
		t.Fatalf("TopScores: %v", err)
	}
	assertRanking(t, top, []protocol.RankingEntry{{PlayerName: "bob", Score: 5}})
}

func assertRanking(t *testing.T, got, want []protocol.RankingEntry) {
	t.Helper()
	if len(got) != len(want) {
		t.Fatalf("ranking=%+v want %+v", got, want)
	}
	for i := range want {
		if got[i] != want[i] {
			t.Fatalf("ranking=%+v want %+v", got, want)
		}
	}
}
