package game

import (
	"reflect"
	"testing"
)

func TestLeaderboardKeepsBestTimesAscending(t *testing.T) {
	b := newLeaderboard(3)
	for _, ms := range []int64{400, 220, 310, 180, 500, 220} {
		b.insert(ms)
	}

	want := []int64{180, 220, 220}
	if got := b.entries(); !reflect.DeepEqual(got, want) {
		t.Errorf("entries = %v, want %v", got, want)
	}

	b.clear()
	if got := b.entries(); len(got) != 0 {
		t.Errorf("expected empty board after clear, got %v", got)
	}
}

func TestLeaderboardEntriesAreCopies(t *testing.T) {
	b := newLeaderboard(10)
	b.insert(250)

	got := b.entries()
	got[0] = 1
	if b.entries()[0] != 250 {
		t.Error("mutating entries must not change the board")
	}
}
