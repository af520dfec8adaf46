package prefs

import (
	"testing"

	"gamenight/internal/store"
)

func TestNormalizeName(t *testing.T) {
	cases := map[string]string{
		"Alice":           "alice",
		"  Alice  ":       "alice",
		"ALICE   SMITH":   "alice smith",
		"alice\tsmith":    "alice smith",
		"":                "",
		"   ":             "",
	}
	for in, want := range cases {
		if got := NormalizeName(in); got != want {
			t.Fatalf("NormalizeName(%q) = %q, want %q", in, got, want)
		}
	}
}

func TestHiddenDupCaseInsensitiveNamedSlot(t *testing.T) {
	locals := []LocalUser{{Username: "alice-local", DisplayName: "Alice"}}
	guests := []LiveGuest{{ParticipantID: "named-7", Username: "alice-guest", DisplayName: "alice"}}

	hidden := ComputeHiddenLocalUsernames(locals, guests)
	if _, ok := hidden["alice-local"]; !ok {
		t.Fatalf("alice-local should be hidden, hidden set: %v", hidden)
	}

	merged := MergeUsers(locals, guests, hidden)
	if len(merged) != 1 {
		t.Fatalf("expected exactly one merged entry, got %+v", merged)
	}
	if merged[0].Username != "alice-guest" || !merged[0].IsLive {
		t.Fatalf("live guest should win, got %+v", merged[0])
	}
}

func TestAnonymousGuestNeverHidesLocals(t *testing.T) {
	locals := []LocalUser{{Username: "alice-local", DisplayName: "Alice"}}
	guests := []LiveGuest{{ParticipantID: "anon-3", Username: "alice-guest", DisplayName: "Alice"}}

	hidden := ComputeHiddenLocalUsernames(locals, guests)
	if len(hidden) != 0 {
		t.Fatalf("anonymous slots must not hide locals, hidden: %v", hidden)
	}
}

func TestMergeUsersGuestWinsCollision(t *testing.T) {
	locals := []LocalUser{
		{Username: "sam", DisplayName: "Sam (old)"},
		{Username: "pat", DisplayName: "Pat"},
	}
	guests := []LiveGuest{{ParticipantID: "anon-1", Username: "sam", DisplayName: "Sam"}}

	merged := MergeUsers(locals, guests, nil)
	if len(merged) != 2 {
		t.Fatalf("expected 2 users, got %+v", merged)
	}
	for _, user := range merged {
		if user.Username == "sam" && (!user.IsLive || user.DisplayName != "Sam") {
			t.Fatalf("guest entry should win collision, got %+v", user)
		}
	}
}

func TestMergePreferencesFallbackUntilSubmission(t *testing.T) {
	localPrefs := []*store.PreferenceRecord{
		{Username: "sam-local", GameID: "g1", Rank: intPtr(1)},
		{Username: "sam-local", GameID: "g2", IsTopPick: true},
	}
	locals := []LocalUser{{Username: "sam-local", DisplayName: "Sam", Preferences: localPrefs}}

	guest := LiveGuest{ParticipantID: "named-1", Username: "sam-live", DisplayName: "sam"}
	hidden := ComputeHiddenLocalUsernames(locals, []LiveGuest{guest})

	// Before the guest submits anything, the local list shows under the
	// guest's username so the aggregate view doesn't go blank.
	view := MergePreferences(locals, []LiveGuest{guest}, hidden)
	if _, ok := view["sam-local"]; ok {
		t.Fatal("hidden local user must not appear under its own username")
	}
	if got := view["sam-live"]; len(got) != 2 {
		t.Fatalf("expected local fallback under guest username, got %+v", got)
	}

	// After a live submission, it fully replaces the fallback.
	guest.Preferences = []*store.PreferenceRecord{
		{Username: "sam-live", GameID: "g9", IsDisliked: true},
	}
	view = MergePreferences(locals, []LiveGuest{guest}, hidden)
	got := view["sam-live"]
	if len(got) != 1 || got[0].GameID != "g9" {
		t.Fatalf("live submission should replace fallback, got %+v", got)
	}
}

func TestMergePreferencesExplicitEmptyEntry(t *testing.T) {
	guest := LiveGuest{
		ParticipantID: "anon-5",
		Username:      "newcomer",
		DisplayName:   "Newcomer",
		Preferences:   []*store.PreferenceRecord{},
	}

	view := MergePreferences(nil, []LiveGuest{guest}, nil)
	got, ok := view["newcomer"]
	if !ok {
		t.Fatal("guest with empty submission must still get an entry")
	}
	if got == nil || len(got) != 0 {
		t.Fatalf("expected explicit empty list, got %+v", got)
	}
}

func TestMergePreferencesUnsubmittedAnonymousGuest(t *testing.T) {
	guest := LiveGuest{ParticipantID: "anon-5", Username: "newcomer", DisplayName: "Newcomer"}

	view := MergePreferences(nil, []LiveGuest{guest}, nil)
	got, ok := view["newcomer"]
	if !ok || got == nil {
		t.Fatalf("unsubmitted guest must get an explicit empty entry, got %+v ok=%v", got, ok)
	}
}
