package prefs

import "gamenight/internal/store"

// Update is a partial preference change. Nil fields leave the existing
// value in place; a set field overrides it.
type Update struct {
	Rank       *int
	IsTopPick  *bool
	IsDisliked *bool
}

// Normalized is the exclusivity-enforced result of applying an update.
// At most one of Rank / IsTopPick / IsDisliked is set; all clear means
// neutral.
type Normalized struct {
	Rank       *int
	IsTopPick  bool
	IsDisliked bool
}

// Neutral reports whether every preference dimension is cleared.
func (n Normalized) Neutral() bool {
	return n.Rank == nil && !n.IsTopPick && !n.IsDisliked
}

// Normalize applies update over existing and enforces mutual exclusivity:
// disliked beats top-pick beats rank, first match wins. An update that
// positively sets one dimension clears the other two regardless of what
// existing holds; an update that sets nothing positive falls back to the
// existing record with the same priority applied. Pure and total.
//
// Every write path (single update, bulk reorder, bulk save) funnels
// through this logic or its SQL equivalent in the store.
func Normalize(existing *store.PreferenceRecord, update Update) Normalized {
	// A dimension positively set by the update wins outright.
	if update.IsDisliked != nil && *update.IsDisliked {
		return Normalized{IsDisliked: true}
	}
	if update.IsTopPick != nil && *update.IsTopPick {
		return Normalized{IsTopPick: true}
	}
	if r := validRank(update.Rank); r != nil {
		return Normalized{Rank: r}
	}

	// Nothing positively set: resolve effective values, honoring explicit
	// false overrides, then apply the same priority.
	var disliked, topPick bool
	var rank *int
	if existing != nil {
		disliked = existing.IsDisliked
		topPick = existing.IsTopPick
		rank = validRank(existing.Rank)
	}
	if update.IsDisliked != nil {
		disliked = *update.IsDisliked
	}
	if update.IsTopPick != nil {
		topPick = *update.IsTopPick
	}
	if update.Rank != nil {
		// An explicitly out-of-domain rank clears the ranking, the same
		// way an explicit false clears a flag.
		rank = validRank(update.Rank)
	}

	switch {
	case disliked:
		return Normalized{IsDisliked: true}
	case topPick:
		return Normalized{IsTopPick: true}
	case rank != nil:
		return Normalized{Rank: rank}
	default:
		return Normalized{}
	}
}

// validRank returns the rank when it is a usable 1-based ranking
// position, nil otherwise. Zero and negative values carry no ordering
// meaning and are treated as unset.
func validRank(rank *int) *int {
	if rank == nil || *rank < 1 {
		return nil
	}
	return rank
}
