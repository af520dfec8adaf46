package sqlite

import (
	"context"
	"errors"
	"testing"

	"gamenight/internal/store"
)

func newTestStore(t *testing.T) *SQLiteStore {
	t.Helper()

	st, err := New(":memory:")
	if err != nil {
		t.Fatalf("failed to create test store: %v", err)
	}
	t.Cleanup(func() { st.Close() })
	return st
}

func intPtr(v int) *int { return &v }

func TestCreateOwnerGuard(t *testing.T) {
	st := newTestStore(t)
	ctx := context.Background()

	first := &store.LocalIdentity{ID: "id-1", Username: "morgan", DisplayName: "Morgan"}
	if err := st.CreateOwner(ctx, first); err != nil {
		t.Fatalf("CreateOwner failed: %v", err)
	}

	second := &store.LocalIdentity{ID: "id-2", Username: "casey", DisplayName: "Casey"}
	if err := st.CreateOwner(ctx, second); !errors.Is(err, store.ErrOwnerExists) {
		t.Fatalf("expected ErrOwnerExists, got %v", err)
	}

	owners, err := st.ListOwners(ctx)
	if err != nil {
		t.Fatalf("ListOwners failed: %v", err)
	}
	if len(owners) != 1 || owners[0].ID != "id-1" {
		t.Fatalf("expected exactly owner id-1, got %+v", owners)
	}
}

func TestDemoteOwnersExcept(t *testing.T) {
	st := newTestStore(t)
	ctx := context.Background()

	// Seed a duplicate-owner anomaly directly.
	for _, row := range []struct{ id, username string }{
		{"id-a", "a"}, {"id-b", "b"}, {"id-c", "c"},
	} {
		_, err := st.db.ExecContext(ctx, `
			INSERT INTO identities (id, username, display_name, is_local_owner)
			VALUES (?, ?, ?, 1)
		`, row.id, row.username, row.username)
		if err != nil {
			t.Fatalf("seed: %v", err)
		}
	}

	if err := st.DemoteOwnersExcept(ctx, "id-b"); err != nil {
		t.Fatalf("DemoteOwnersExcept failed: %v", err)
	}

	owners, err := st.ListOwners(ctx)
	if err != nil {
		t.Fatalf("ListOwners failed: %v", err)
	}
	if len(owners) != 1 || owners[0].ID != "id-b" {
		t.Fatalf("expected only id-b to remain owner, got %+v", owners)
	}

	// Demoted records still exist as plain local users.
	users, err := st.ListLocalUsers(ctx)
	if err != nil {
		t.Fatalf("ListLocalUsers failed: %v", err)
	}
	if len(users) != 3 {
		t.Fatalf("expected 3 local users, got %d", len(users))
	}
}

func TestUpsertAndGetPreference(t *testing.T) {
	st := newTestStore(t)
	ctx := context.Background()

	rec := &store.PreferenceRecord{Username: "morgan", GameID: "g1", Rank: intPtr(2)}
	if err := st.UpsertPreference(ctx, rec); err != nil {
		t.Fatalf("UpsertPreference failed: %v", err)
	}

	got, err := st.GetPreference(ctx, "morgan", "g1")
	if err != nil {
		t.Fatalf("GetPreference failed: %v", err)
	}
	if got.Rank == nil || *got.Rank != 2 || got.IsTopPick || got.IsDisliked {
		t.Fatalf("unexpected record: %+v", got)
	}

	rec.Rank = nil
	rec.IsDisliked = true
	if err := st.UpsertPreference(ctx, rec); err != nil {
		t.Fatalf("UpsertPreference update failed: %v", err)
	}
	got, err = st.GetPreference(ctx, "morgan", "g1")
	if err != nil {
		t.Fatalf("GetPreference failed: %v", err)
	}
	if got.Rank != nil || !got.IsDisliked {
		t.Fatalf("update not applied: %+v", got)
	}

	if _, err := st.GetPreference(ctx, "morgan", "missing"); !errors.Is(err, store.ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}
}

func TestReorderRanks(t *testing.T) {
	st := newTestStore(t)
	ctx := context.Background()

	seed := []*store.PreferenceRecord{
		{Username: "morgan", GameID: "g1", Rank: intPtr(1)},
		{Username: "morgan", GameID: "g2", Rank: intPtr(2)},
		{Username: "morgan", GameID: "g3", IsDisliked: true},
	}
	for _, rec := range seed {
		if err := st.UpsertPreference(ctx, rec); err != nil {
			t.Fatalf("seed: %v", err)
		}
	}

	// g2 first, g4 is brand new, g1 drops out of the ranking.
	if err := st.ReorderRanks(ctx, "morgan", []string{"g2", "g4"}); err != nil {
		t.Fatalf("ReorderRanks failed: %v", err)
	}

	g2, err := st.GetPreference(ctx, "morgan", "g2")
	if err != nil || g2.Rank == nil || *g2.Rank != 1 {
		t.Fatalf("g2 should be rank 1: %+v (%v)", g2, err)
	}
	g4, err := st.GetPreference(ctx, "morgan", "g4")
	if err != nil || g4.Rank == nil || *g4.Rank != 2 {
		t.Fatalf("g4 should be rank 2: %+v (%v)", g4, err)
	}
	g1, err := st.GetPreference(ctx, "morgan", "g1")
	if err != nil || g1.Rank != nil {
		t.Fatalf("g1 rank should be cleared: %+v (%v)", g1, err)
	}

	// The disliked, unranked g3 is untouched by a reorder.
	g3, err := st.GetPreference(ctx, "morgan", "g3")
	if err != nil || !g3.IsDisliked || g3.Rank != nil {
		t.Fatalf("g3 flags should be untouched: %+v (%v)", g3, err)
	}
}

func TestReorderRanksIdempotent(t *testing.T) {
	st := newTestStore(t)
	ctx := context.Background()

	order := []string{"g3", "g1", "g2"}
	if err := st.ReorderRanks(ctx, "morgan", order); err != nil {
		t.Fatalf("first reorder failed: %v", err)
	}
	first, err := st.ListPreferences(ctx, "morgan")
	if err != nil {
		t.Fatalf("ListPreferences failed: %v", err)
	}

	if err := st.ReorderRanks(ctx, "morgan", order); err != nil {
		t.Fatalf("second reorder failed: %v", err)
	}
	second, err := st.ListPreferences(ctx, "morgan")
	if err != nil {
		t.Fatalf("ListPreferences failed: %v", err)
	}

	if len(first) != len(second) {
		t.Fatalf("record counts differ: %d vs %d", len(first), len(second))
	}
	for i := range first {
		if first[i].GameID != second[i].GameID || *first[i].Rank != *second[i].Rank {
			t.Fatalf("reorder not idempotent at %d: %+v vs %+v", i, first[i], second[i])
		}
	}
}

func TestReplacePreferences(t *testing.T) {
	st := newTestStore(t)
	ctx := context.Background()

	if err := st.UpsertPreference(ctx, &store.PreferenceRecord{Username: "morgan", GameID: "old", Rank: intPtr(1)}); err != nil {
		t.Fatalf("seed: %v", err)
	}

	recs := []*store.PreferenceRecord{
		{Username: "morgan", GameID: "g1", IsTopPick: true},
		{Username: "morgan", GameID: "g2", Rank: intPtr(1)},
	}
	if err := st.ReplacePreferences(ctx, "morgan", recs); err != nil {
		t.Fatalf("ReplacePreferences failed: %v", err)
	}

	got, err := st.ListPreferences(ctx, "morgan")
	if err != nil {
		t.Fatalf("ListPreferences failed: %v", err)
	}
	if len(got) != 2 {
		t.Fatalf("expected 2 records, got %d", len(got))
	}
	if _, err := st.GetPreference(ctx, "morgan", "old"); !errors.Is(err, store.ErrNotFound) {
		t.Fatalf("old record should be gone, got %v", err)
	}
}

func TestSessionGamesRoundTrip(t *testing.T) {
	st := newTestStore(t)
	ctx := context.Background()

	games := []*store.Game{
		{ID: "g1", Name: "Azul", MinPlayers: 2, MaxPlayers: 4, PlayTimeMin: 40},
		{ID: "g2", Name: "Root", MinPlayers: 2, MaxPlayers: 4, PlayTimeMin: 90},
	}
	if err := st.ReplaceSessionGames(ctx, "sess-1", games); err != nil {
		t.Fatalf("ReplaceSessionGames failed: %v", err)
	}

	got, err := st.ListSessionGames(ctx, "sess-1")
	if err != nil {
		t.Fatalf("ListSessionGames failed: %v", err)
	}
	if len(got) != 2 || got[0].ID != "g1" || got[1].ID != "g2" {
		t.Fatalf("unexpected games: %+v", got)
	}

	if err := st.DeleteSessionGames(ctx, "sess-1"); err != nil {
		t.Fatalf("DeleteSessionGames failed: %v", err)
	}
	got, err = st.ListSessionGames(ctx, "sess-1")
	if err != nil {
		t.Fatalf("ListSessionGames failed: %v", err)
	}
	if len(got) != 0 {
		t.Fatalf("expected empty list after delete, got %+v", got)
	}
}

func TestDeviceStatePrefixDelete(t *testing.T) {
	st := newTestStore(t)
	ctx := context.Background()

	pairs := map[string]string{
		"session.id":           "sess-1",
		"session.display_name": "Morgan",
		"seed.initial_prefs":   "[]",
	}
	for k, v := range pairs {
		if err := st.SetValue(ctx, k, v); err != nil {
			t.Fatalf("SetValue %s: %v", k, err)
		}
	}

	if err := st.DeleteValuesWithPrefix(ctx, "session."); err != nil {
		t.Fatalf("DeleteValuesWithPrefix failed: %v", err)
	}

	if _, ok, _ := st.GetValue(ctx, "session.id"); ok {
		t.Fatal("session.id should be deleted")
	}
	if _, ok, _ := st.GetValue(ctx, "session.display_name"); ok {
		t.Fatal("session.display_name should be deleted")
	}
	if v, ok, _ := st.GetValue(ctx, "seed.initial_prefs"); !ok || v != "[]" {
		t.Fatalf("seed.initial_prefs should survive, got %q ok=%v", v, ok)
	}
}
