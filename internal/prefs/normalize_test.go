package prefs

import (
	"testing"

	"gamenight/internal/store"
)

func intPtr(v int) *int    { return &v }
func truePtr() *bool       { v := true; return &v }
func falsePtr() *bool      { v := false; return &v }

func exclusivityHolds(n Normalized) bool {
	active := 0
	if n.IsDisliked {
		active++
	}
	if n.IsTopPick {
		active++
	}
	if n.Rank != nil {
		active++
	}
	return active <= 1
}

func TestNormalizeTopPickClearsRank(t *testing.T) {
	existing := &store.PreferenceRecord{Rank: intPtr(3)}
	got := Normalize(existing, Update{IsTopPick: truePtr()})

	if !got.IsTopPick || got.IsDisliked || got.Rank != nil {
		t.Fatalf("expected pure top-pick, got %+v", got)
	}
}

func TestNormalizeDislikedBeatsEverything(t *testing.T) {
	existing := &store.PreferenceRecord{IsTopPick: true}
	got := Normalize(existing, Update{IsDisliked: truePtr(), Rank: intPtr(1)})

	if !got.IsDisliked || got.IsTopPick || got.Rank != nil {
		t.Fatalf("expected pure disliked, got %+v", got)
	}
}

func TestNormalizeRankOverDislikedExisting(t *testing.T) {
	// Ranking a game the user previously disliked replaces the dislike.
	existing := &store.PreferenceRecord{IsDisliked: true}
	got := Normalize(existing, Update{Rank: intPtr(2)})

	if got.Rank == nil || *got.Rank != 2 || got.IsDisliked || got.IsTopPick {
		t.Fatalf("expected pure rank 2, got %+v", got)
	}
}

func TestNormalizeExplicitFalseClears(t *testing.T) {
	existing := &store.PreferenceRecord{IsDisliked: true}
	got := Normalize(existing, Update{IsDisliked: falsePtr()})

	if !got.Neutral() {
		t.Fatalf("expected neutral after clearing dislike, got %+v", got)
	}
}

func TestNormalizeEmptyUpdateKeepsExisting(t *testing.T) {
	existing := &store.PreferenceRecord{Rank: intPtr(5)}
	got := Normalize(existing, Update{})

	if got.Rank == nil || *got.Rank != 5 {
		t.Fatalf("expected existing rank preserved, got %+v", got)
	}
}

func TestNormalizeNilExistingNeutral(t *testing.T) {
	if got := Normalize(nil, Update{}); !got.Neutral() {
		t.Fatalf("expected neutral, got %+v", got)
	}
}

func TestNormalizeNonPositiveRankUnset(t *testing.T) {
	// Ranks are 1-based positions; zero and negative values never reach
	// the store.
	for _, bad := range []int{0, -1, -7} {
		if got := Normalize(nil, Update{Rank: intPtr(bad)}); !got.Neutral() {
			t.Fatalf("rank %d should normalize to neutral, got %+v", bad, got)
		}
	}

	// An out-of-domain rank must not disturb an existing dislike.
	existing := &store.PreferenceRecord{IsDisliked: true}
	if got := Normalize(existing, Update{Rank: intPtr(0)}); !got.IsDisliked {
		t.Fatalf("expected dislike preserved, got %+v", got)
	}

	// But it does clear an existing rank, like an explicit false clears
	// a flag.
	existing = &store.PreferenceRecord{Rank: intPtr(3)}
	if got := Normalize(existing, Update{Rank: intPtr(-2)}); !got.Neutral() {
		t.Fatalf("expected rank cleared, got %+v", got)
	}
}

func TestNormalizeExclusivityExhaustive(t *testing.T) {
	ranks := []*int{nil, intPtr(1)}
	bools := []*bool{nil, truePtr(), falsePtr()}

	var existings []*store.PreferenceRecord
	existings = append(existings, nil)
	for _, r := range ranks {
		for _, top := range []bool{false, true} {
			for _, dis := range []bool{false, true} {
				existings = append(existings, &store.PreferenceRecord{
					Rank: r, IsTopPick: top, IsDisliked: dis,
				})
			}
		}
	}

	for _, existing := range existings {
		for _, r := range ranks {
			for _, top := range bools {
				for _, dis := range bools {
					got := Normalize(existing, Update{Rank: r, IsTopPick: top, IsDisliked: dis})
					if !exclusivityHolds(got) {
						t.Fatalf("exclusivity violated: existing=%+v update={%v %v %v} got=%+v",
							existing, r, top, dis, got)
					}
				}
			}
		}
	}
}
