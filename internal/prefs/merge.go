package prefs

import (
	"sort"
	"strings"

	"gamenight/internal/proto"
	"gamenight/internal/store"
)

// LocalUser is a profile known to this device, with its stored preferences.
type LocalUser struct {
	Username    string
	DisplayName string
	Preferences []*store.PreferenceRecord
}

// LiveGuest is a participant currently in the session. Preferences holds
// what they have submitted so far; nil means nothing submitted yet, an
// empty non-nil slice means an explicitly empty submission.
type LiveGuest struct {
	ParticipantID string
	Username      string
	DisplayName   string
	Preferences   []*store.PreferenceRecord
}

// MergedUser is one entry in the aggregate participant view.
type MergedUser struct {
	Username    string
	DisplayName string
	IsLive      bool
}

// NormalizeName canonicalizes a display name for matching: trim, collapse
// internal whitespace runs to one space, lowercase. Used consistently for
// all name matching in this subsystem.
func NormalizeName(name string) string {
	return strings.ToLower(strings.Join(strings.Fields(name), " "))
}

// ComputeHiddenLocalUsernames finds local users shadowed by live guests.
// A local user is hidden when a live guest claimed a named slot and the
// guest's display name normalizes to the same string as the local user's.
// Without this, the same human appears twice in the aggregate view.
//
// The hidden set is recomputed on every roster change rather than frozen
// at join time, so a renamed local profile heals itself on the next event.
func ComputeHiddenLocalUsernames(locals []LocalUser, guests []LiveGuest) map[string]struct{} {
	hidden := make(map[string]struct{})
	for _, guest := range guests {
		if !strings.HasPrefix(guest.ParticipantID, proto.NamedSlotPrefix) {
			continue
		}
		guestName := NormalizeName(guest.DisplayName)
		if guestName == "" {
			continue
		}
		for _, local := range locals {
			if NormalizeName(local.DisplayName) == guestName {
				hidden[local.Username] = struct{}{}
			}
		}
	}
	return hidden
}

// MergeUsers unions local users (minus hidden ones) with live guests,
// keyed by username. A live guest wins a key collision. The result is
// sorted by username for deterministic output.
func MergeUsers(locals []LocalUser, guests []LiveGuest, hidden map[string]struct{}) []MergedUser {
	byUsername := make(map[string]MergedUser)
	for _, local := range locals {
		if _, ok := hidden[local.Username]; ok {
			continue
		}
		byUsername[local.Username] = MergedUser{
			Username:    local.Username,
			DisplayName: local.DisplayName,
		}
	}
	for _, guest := range guests {
		byUsername[guest.Username] = MergedUser{
			Username:    guest.Username,
			DisplayName: guest.DisplayName,
			IsLive:      true,
		}
	}

	merged := make([]MergedUser, 0, len(byUsername))
	for _, user := range byUsername {
		merged = append(merged, user)
	}
	sort.Slice(merged, func(i, j int) bool { return merged[i].Username < merged[j].Username })
	return merged
}

// MergePreferences builds the per-username preference view. Non-hidden
// local users contribute their stored lists. Every live guest gets an
// entry, never a missing key: a guest who has not submitted yet falls
// back to the hidden local user they shadow (so the view doesn't go blank
// mid-transition), and failing that an explicit empty list. Once a guest
// has submitted anything, the submission fully replaces the fallback.
func MergePreferences(locals []LocalUser, guests []LiveGuest, hidden map[string]struct{}) map[string][]*store.PreferenceRecord {
	view := make(map[string][]*store.PreferenceRecord)

	localByUsername := make(map[string]LocalUser, len(locals))
	for _, local := range locals {
		localByUsername[local.Username] = local
		if _, ok := hidden[local.Username]; ok {
			continue
		}
		view[local.Username] = local.Preferences
	}

	for _, guest := range guests {
		if guest.Preferences != nil {
			view[guest.Username] = guest.Preferences
			continue
		}

		if local, ok := shadowedLocal(guest, locals, hidden); ok {
			view[guest.Username] = local.Preferences
			continue
		}
		view[guest.Username] = []*store.PreferenceRecord{}
	}

	return view
}

// shadowedLocal finds the hidden local user a named-slot guest shadows.
func shadowedLocal(guest LiveGuest, locals []LocalUser, hidden map[string]struct{}) (LocalUser, bool) {
	if !strings.HasPrefix(guest.ParticipantID, proto.NamedSlotPrefix) {
		return LocalUser{}, false
	}
	guestName := NormalizeName(guest.DisplayName)
	for _, local := range locals {
		if _, ok := hidden[local.Username]; !ok {
			continue
		}
		if NormalizeName(local.DisplayName) == guestName {
			return local, true
		}
	}
	return LocalUser{}, false
}
