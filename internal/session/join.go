package session

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"gamenight/internal/cloud"
	"gamenight/internal/identity"
	"gamenight/internal/prefs"
	"gamenight/internal/proto"
	"gamenight/internal/retry"
	"gamenight/internal/store"
)

var (
	// ErrNoStoredSession is returned by Resume when the device store holds
	// no joined session.
	ErrNoStoredSession = errors.New("no stored session")
	// ErrWrongState is returned when an operation is invoked outside the
	// state it belongs to.
	ErrWrongState = errors.New("operation not valid in current state")
	// ErrSuperseded is returned when another action replaced this join
	// attempt while a remote response was in flight; the late response is
	// discarded without touching device state.
	ErrSuperseded = errors.New("join attempt superseded")
)

// Flow drives a guest through discovery, slot claim, game hydration,
// preference-source selection and submission. One Flow is active per
// device at a time; all methods are serialized through its mutex.
//
// Idempotent reads (preview, games, shared preferences) go through the
// retrying caller; slot claims and submissions go through the no-retry
// variant so an automatic retry can never duplicate them.
type Flow struct {
	cloud     cloud.Caller
	store     store.Store
	prefs     *prefs.Service
	identity  *identity.Resolver
	reads     *retry.Retryer
	mutations *retry.Retryer
	log       *zerolog.Logger
	now       func() time.Time

	mu        sync.Mutex
	gen       int
	attemptID string
	state     GuestSessionState
}

// NewFlow wires a join flow over its collaborators.
func NewFlow(
	caller cloud.Caller,
	st store.Store,
	prefSvc *prefs.Service,
	resolver *identity.Resolver,
	reads, mutations *retry.Retryer,
	logger *zerolog.Logger,
) *Flow {
	return &Flow{
		cloud:     caller,
		store:     st,
		prefs:     prefSvc,
		identity:  resolver,
		reads:     reads,
		mutations: mutations,
		log:       logger,
		now:       time.Now,
	}
}

// State returns a snapshot of the current guest session state.
func (f *Flow) State() GuestSessionState {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.state
}

// begin starts a new generation of the flow. Any response belonging to an
// older generation is ignored when it finally arrives.
func (f *Flow) begin(initial State) int {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.gen++
	f.attemptID = uuid.NewString()
	f.state = GuestSessionState{State: initial}
	return f.gen
}

// commit applies a state mutation unless the generation was superseded or
// the context was cancelled after the last await. Returns false when the
// mutation was dropped.
func (f *Flow) commit(ctx context.Context, gen int, mutate func(*GuestSessionState)) bool {
	if ctx.Err() != nil {
		return false
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	if gen != f.gen {
		return false
	}
	mutate(&f.state)
	return true
}

// superseded reports whether gen is no longer the active generation.
// Checked before every device write or token attach that follows an
// await, so a late response from a replaced attempt can never persist
// membership.
func (f *Flow) superseded(gen int) bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	return gen != f.gen
}

// fail moves the flow to a terminal-for-now state with a human-readable
// message, subject to the same supersession rules as commit.
func (f *Flow) fail(ctx context.Context, gen int, to State, message string) {
	f.commit(ctx, gen, func(s *GuestSessionState) {
		s.State = to
		s.ErrorMessage = message
	})
}

// Start opens an invite link: parse, check for a resumable session, then
// fetch the preview. On success the flow sits in the preview state
// waiting for the guest to submit a join.
func (f *Flow) Start(ctx context.Context, inviteLink string) error {
	gen := f.begin(StateLoading)

	sessionID, err := ParseInvite(inviteLink)
	if err != nil {
		f.fail(ctx, gen, StateError, "That invite link doesn't look right.")
		return err
	}

	stored, ok, err := f.store.GetValue(ctx, keySessionID)
	if err != nil {
		f.fail(ctx, gen, StateError, "Couldn't read saved session state.")
		return fmt.Errorf("read stored session: %w", err)
	}
	if ok && stored == sessionID {
		return f.resume(ctx, gen, sessionID)
	}

	var preview *proto.PreviewResponse
	err = f.reads.Do(ctx, func(ctx context.Context) error {
		p, callErr := f.cloud.GetSessionPreview(ctx, sessionID)
		if callErr != nil {
			return callErr
		}
		preview = p
		return nil
	})
	if ctxErr := ctx.Err(); ctxErr != nil {
		return ctxErr
	}
	if err != nil {
		f.fail(ctx, gen, StateError, previewErrorMessage(err))
		return err
	}

	f.commit(ctx, gen, func(s *GuestSessionState) {
		s.State = StatePreview
		s.SessionID = sessionID
		s.Preview = preview
		s.ShareMode = preview.ShareMode
	})
	if f.log != nil {
		f.log.Info().
			Str("session_id", sessionID).
			Str("status", preview.Status).
			Int("capacity", preview.Capacity).
			Msg("session preview loaded")
	}
	return nil
}

// Join claims a slot with the given display name. slotParticipantID names
// a reserved slot to claim, or "" for an anonymous seat. On any failure
// the flow returns to the preview state with a human-readable error; the
// guest may retry with fresh intent. On success the flow hydrates games
// and lands in mode-select, preference-source, or preferences depending
// on share mode and local history.
func (f *Flow) Join(ctx context.Context, displayName, slotParticipantID string) error {
	f.mu.Lock()
	if f.state.State != StatePreview {
		f.mu.Unlock()
		return ErrWrongState
	}
	gen := f.gen
	attempt := f.attemptID
	preview := f.state.Preview
	sessionID := f.state.SessionID
	f.mu.Unlock()

	displayName = strings.TrimSpace(displayName)
	if displayName == "" {
		f.fail(ctx, gen, StatePreview, "Enter a name so the host knows who's joining.")
		return errors.New("empty display name")
	}
	if preview != nil {
		if preview.Status != proto.SessionStatusOpen {
			f.fail(ctx, gen, StatePreview, "This session is no longer open.")
			return errors.New("session not open")
		}
		if preview.ClaimedCount >= preview.Capacity && preview.Capacity > 0 {
			f.fail(ctx, gen, StatePreview, "This session is full.")
			return errors.New("session full")
		}
	}

	// Claiming is non-idempotent; exactly one attempt, no auto-retry.
	var claim *proto.ClaimSlotResponse
	err := f.mutations.DoOnce(ctx, func(ctx context.Context) error {
		resp, callErr := f.cloud.ClaimSessionSlot(ctx, proto.ClaimSlotRequest{
			SessionID:     sessionID,
			DisplayName:   displayName,
			ParticipantID: slotParticipantID,
		})
		if callErr != nil {
			return callErr
		}
		claim = resp
		return nil
	})
	if ctxErr := ctx.Err(); ctxErr != nil {
		return ctxErr
	}
	if err != nil {
		f.fail(ctx, gen, StatePreview, claimErrorMessage(err))
		return err
	}

	if f.superseded(gen) {
		return ErrSuperseded
	}

	f.cloud.SetGuestToken(claim.GuestToken)
	claimedNamed := strings.HasPrefix(claim.ParticipantID, proto.NamedSlotPrefix)

	if err := f.persistClaim(ctx, sessionID, displayName, claim, claimedNamed); err != nil {
		f.fail(ctx, gen, StatePreview, "Joined, but couldn't save session state on this device.")
		return err
	}

	f.commit(ctx, gen, func(s *GuestSessionState) {
		s.State = StateLoadingGames
		s.DisplayName = displayName
		s.Username = claim.ParticipantID
		s.ParticipantID = claim.ParticipantID
		s.HasSharedPreferences = claim.HasSharedPreferences
		s.ClaimedNamedSlot = claimedNamed
		s.ErrorMessage = ""
	})
	if f.log != nil {
		f.log.Info().
			Str("session_id", sessionID).
			Str("participant_id", claim.ParticipantID).
			Str("attempt", attempt).
			Bool("named_slot", claimedNamed).
			Msg("slot claimed")
	}

	if err := f.hydrateGames(ctx, gen, sessionID); err != nil {
		return err
	}
	return f.settleAfterHydration(ctx, gen)
}

// persistClaim writes the device-store keys that represent membership.
// Old session keys are cleared first so two sessions never interleave.
func (f *Flow) persistClaim(ctx context.Context, sessionID, displayName string, claim *proto.ClaimSlotResponse, claimedNamed bool) error {
	if err := f.store.DeleteValuesWithPrefix(ctx, keyPrefixSession); err != nil {
		return fmt.Errorf("clear stale session keys: %w", err)
	}
	if err := f.store.DeleteValuesWithPrefix(ctx, keyPrefixSeed); err != nil {
		return fmt.Errorf("clear stale seed: %w", err)
	}

	pairs := map[string]string{
		keySessionID:        sessionID,
		keyDisplayName:      displayName,
		keyParticipantID:    claim.ParticipantID,
		keyGuestToken:       claim.GuestToken,
		keyClaimedNamedSlot: boolString(claimedNamed),
		keyHasSharedPrefs:   boolString(claim.HasSharedPreferences),
		keyShareMode:        f.State().ShareMode,
	}
	for key, value := range pairs {
		if err := f.store.SetValue(ctx, key, value); err != nil {
			// Leave no half-written membership behind.
			_ = f.store.DeleteValuesWithPrefix(ctx, keyPrefixSession)
			return fmt.Errorf("persist %s: %w", key, err)
		}
	}
	return nil
}

// hydrateGames fetches and caches the session's game list.
func (f *Flow) hydrateGames(ctx context.Context, gen int, sessionID string) error {
	var games []proto.GameInfo
	err := f.reads.Do(ctx, func(ctx context.Context) error {
		list, callErr := f.cloud.GetSessionGames(ctx, sessionID)
		if callErr != nil {
			return callErr
		}
		games = list
		return nil
	})
	if ctxErr := ctx.Err(); ctxErr != nil {
		return ctxErr
	}
	if err != nil {
		// Membership is already claimed and persisted; Resume can retry
		// hydration later. The guest still lands back on preview with a
		// retry affordance rather than a stuck transient state.
		f.fail(ctx, gen, StatePreview, "Couldn't load the game list. Try again.")
		return err
	}
	if f.superseded(gen) {
		return ErrSuperseded
	}

	cached := make([]*store.Game, 0, len(games))
	for _, g := range games {
		cached = append(cached, &store.Game{
			ID:          g.ID,
			Name:        g.Name,
			MinPlayers:  g.MinPlayers,
			MaxPlayers:  g.MaxPlayers,
			PlayTimeMin: g.PlayTimeMin,
		})
	}
	if err := f.store.ReplaceSessionGames(ctx, sessionID, cached); err != nil {
		f.fail(ctx, gen, StatePreview, "Couldn't save the game list on this device.")
		return err
	}
	if f.log != nil {
		f.log.Debug().Int("games", len(cached)).Str("session_id", sessionID).Msg("session games hydrated")
	}
	return nil
}

// settleAfterHydration decides where the flow lands once games are
// cached: straight to preferences in quick share mode, the source picker
// when this device has prior history, mode-select otherwise.
func (f *Flow) settleAfterHydration(ctx context.Context, gen int) error {
	snapshot := f.State()

	if snapshot.ShareMode == proto.ShareModeQuick {
		if snapshot.HasSharedPreferences {
			if err := f.seedFromShared(ctx, gen, snapshot.SessionID, snapshot.Username); err != nil {
				return err
			}
		}
		if f.superseded(gen) {
			return ErrSuperseded
		}
		if err := f.persistGuestMode(ctx, GuestModeShared); err != nil {
			return err
		}
		f.commit(ctx, gen, func(s *GuestSessionState) {
			s.State = StatePreferences
			s.GuestMode = GuestModeShared
		})
		return nil
	}

	hasHistory, err := f.deviceHasLocalHistory(ctx)
	if err != nil {
		return err
	}
	if ctxErr := ctx.Err(); ctxErr != nil {
		return ctxErr
	}

	next := StateModeSelect
	if hasHistory {
		next = StatePreferenceSource
	}
	f.commit(ctx, gen, func(s *GuestSessionState) { s.State = next })
	return nil
}

// deviceHasLocalHistory reports whether the resolved device owner has any
// stored preferences.
func (f *Flow) deviceHasLocalHistory(ctx context.Context) (bool, error) {
	owner, err := f.identity.Resolve(ctx)
	if err != nil {
		return false, fmt.Errorf("resolve local identity: %w", err)
	}
	if owner == nil {
		return false, nil
	}
	recs, err := f.prefs.ListPreferences(ctx, owner.Username)
	if err != nil {
		return false, fmt.Errorf("list local history: %w", err)
	}
	return len(recs) > 0, nil
}

// seedFromShared pulls the host's pre-shared list and installs it as the
// guest's working set, remembering the seed for cross-identity hygiene.
func (f *Flow) seedFromShared(ctx context.Context, gen int, sessionID, username string) error {
	var shared *proto.SharedPreferencesResponse
	err := f.reads.Do(ctx, func(ctx context.Context) error {
		resp, callErr := f.cloud.GetSharedPreferences(ctx, sessionID)
		if callErr != nil {
			return callErr
		}
		shared = resp
		return nil
	})
	if ctxErr := ctx.Err(); ctxErr != nil {
		return ctxErr
	}
	if err != nil {
		f.fail(ctx, gen, StatePreview, "Couldn't load the host's shared list. Try again.")
		return err
	}
	if f.superseded(gen) {
		return ErrSuperseded
	}

	if !shared.HasPreferences {
		return nil
	}

	seed, marshalErr := json.Marshal(shared.Preferences)
	if marshalErr == nil {
		_ = f.store.SetValue(ctx, keyInitialSeed, string(seed))
	}

	if err := f.prefs.ReplaceAll(ctx, username, shared.Preferences); err != nil {
		f.fail(ctx, gen, StatePreview, "Couldn't apply the host's shared list.")
		return err
	}
	return nil
}

// ChooseMode handles the mode-select screen: use the host's shared list
// or build a list locally.
func (f *Flow) ChooseMode(ctx context.Context, mode GuestMode) error {
	f.mu.Lock()
	if f.state.State != StateModeSelect {
		f.mu.Unlock()
		return ErrWrongState
	}
	gen := f.gen
	sessionID := f.state.SessionID
	username := f.state.Username
	f.mu.Unlock()

	switch mode {
	case GuestModeShared:
		if err := f.seedFromShared(ctx, gen, sessionID, username); err != nil {
			return err
		}
		if f.superseded(gen) {
			return ErrSuperseded
		}
		if err := f.persistGuestMode(ctx, GuestModeShared); err != nil {
			return err
		}
		f.commit(ctx, gen, func(s *GuestSessionState) {
			s.State = StatePreferences
			s.GuestMode = GuestModeShared
		})
		return nil
	case GuestModeLocal:
		if err := f.persistGuestMode(ctx, GuestModeLocal); err != nil {
			return err
		}
		f.commit(ctx, gen, func(s *GuestSessionState) {
			s.State = StateLocalWizard
			s.GuestMode = GuestModeLocal
		})
		return nil
	default:
		return fmt.Errorf("unknown guest mode %q", mode)
	}
}

// PreferenceSource names where the guest's starting preferences come from.
type PreferenceSource string

const (
	SourceHost  PreferenceSource = "host"
	SourceLocal PreferenceSource = "local"
)

// ChooseSource handles the preference-source screen shown when this
// device already has local history: start from the host's shared list or
// copy the local history into the guest's working set.
func (f *Flow) ChooseSource(ctx context.Context, source PreferenceSource) error {
	f.mu.Lock()
	if f.state.State != StatePreferenceSource {
		f.mu.Unlock()
		return ErrWrongState
	}
	gen := f.gen
	sessionID := f.state.SessionID
	username := f.state.Username
	f.mu.Unlock()

	switch source {
	case SourceHost:
		if err := f.seedFromShared(ctx, gen, sessionID, username); err != nil {
			return err
		}
		if f.superseded(gen) {
			return ErrSuperseded
		}
		if err := f.persistGuestMode(ctx, GuestModeShared); err != nil {
			return err
		}
		f.commit(ctx, gen, func(s *GuestSessionState) {
			s.State = StatePreferences
			s.GuestMode = GuestModeShared
		})
		return nil
	case SourceLocal:
		owner, err := f.identity.Resolve(ctx)
		if err != nil {
			return fmt.Errorf("resolve local identity: %w", err)
		}
		if ctxErr := ctx.Err(); ctxErr != nil {
			return ctxErr
		}
		if f.superseded(gen) {
			return ErrSuperseded
		}
		if owner != nil {
			if err := f.prefs.CopyUserPreferences(ctx, owner.Username, username); err != nil {
				return err
			}
		}
		if err := f.persistGuestMode(ctx, GuestModeLocal); err != nil {
			return err
		}
		f.commit(ctx, gen, func(s *GuestSessionState) {
			s.State = StatePreferences
			s.GuestMode = GuestModeLocal
		})
		return nil
	default:
		return fmt.Errorf("unknown preference source %q", source)
	}
}

// Ready submits the guest's working set to the host and parks the flow in
// the waiting state. A failed submission keeps the working set intact and
// the flow where it was, so the guest can resubmit.
func (f *Flow) Ready(ctx context.Context) error {
	f.mu.Lock()
	if f.state.State != StatePreferences && f.state.State != StateLocalWizard {
		f.mu.Unlock()
		return ErrWrongState
	}
	gen := f.gen
	sessionID := f.state.SessionID
	username := f.state.Username
	f.mu.Unlock()

	recs, err := f.prefs.ListPreferences(ctx, username)
	if err != nil {
		return fmt.Errorf("load working set: %w", err)
	}
	payloads := prefs.PayloadsFromRecords(recs)

	// Submission is non-idempotent; exactly one attempt.
	var ack *proto.SubmitPreferencesResponse
	err = f.mutations.DoOnce(ctx, func(ctx context.Context) error {
		resp, callErr := f.cloud.SubmitGuestPreferences(ctx, proto.SubmitPreferencesRequest{
			SessionID:   sessionID,
			Preferences: payloads,
		})
		if callErr != nil {
			return callErr
		}
		ack = resp
		return nil
	})
	if ctxErr := ctx.Err(); ctxErr != nil {
		return ctxErr
	}
	if err != nil {
		f.commit(ctx, gen, func(s *GuestSessionState) {
			s.ErrorMessage = "Couldn't send your picks. They're saved here; try again."
		})
		return err
	}

	f.commit(ctx, gen, func(s *GuestSessionState) {
		s.State = StateWaiting
		s.ErrorMessage = ""
	})
	if f.log != nil {
		f.log.Info().
			Str("session_id", sessionID).
			Int("count", ack.PreferencesCount).
			Msg("preferences submitted")
	}
	return nil
}

// Resume restores a joined session persisted in the device store,
// rehydrates games, and lands in the state the persisted guest mode
// dictates. Returns ErrNoStoredSession when there is nothing to resume.
func (f *Flow) Resume(ctx context.Context) error {
	gen := f.begin(StateLoading)

	sessionID, ok, err := f.store.GetValue(ctx, keySessionID)
	if err != nil {
		return fmt.Errorf("read stored session: %w", err)
	}
	if !ok {
		return ErrNoStoredSession
	}
	return f.resume(ctx, gen, sessionID)
}

func (f *Flow) resume(ctx context.Context, gen int, sessionID string) error {
	token, _, err := f.store.GetValue(ctx, keyGuestToken)
	if err != nil {
		return fmt.Errorf("read guest token: %w", err)
	}
	if token != "" {
		claims, parseErr := cloud.ParseGuestToken(token)
		if parseErr == nil && claims.Expired(f.now()) {
			// Clear without resetting the generation so the error state
			// below still commits.
			if clearErr := f.clearMembership(ctx, sessionID); clearErr != nil {
				return clearErr
			}
			f.fail(ctx, gen, StateError, "This session has expired.")
			return errors.New("stored session expired")
		}
		f.cloud.SetGuestToken(token)
	}

	displayName, _, _ := f.store.GetValue(ctx, keyDisplayName)
	participantID, _, _ := f.store.GetValue(ctx, keyParticipantID)
	claimedNamed, _, _ := f.store.GetValue(ctx, keyClaimedNamedSlot)
	shareMode, _, _ := f.store.GetValue(ctx, keyShareMode)
	guestMode, _, _ := f.store.GetValue(ctx, keyGuestMode)
	hasShared, _, _ := f.store.GetValue(ctx, keyHasSharedPrefs)

	f.commit(ctx, gen, func(s *GuestSessionState) {
		s.State = StateLoadingGames
		s.SessionID = sessionID
		s.DisplayName = displayName
		s.Username = participantID
		s.ParticipantID = participantID
		s.ClaimedNamedSlot = claimedNamed == "true"
		s.ShareMode = shareMode
		s.GuestMode = GuestMode(guestMode)
		s.HasSharedPreferences = hasShared == "true"
	})

	if err := f.hydrateGames(ctx, gen, sessionID); err != nil {
		return err
	}

	switch GuestMode(guestMode) {
	case GuestModeShared:
		f.commit(ctx, gen, func(s *GuestSessionState) { s.State = StatePreferences })
		return nil
	case GuestModeLocal:
		f.commit(ctx, gen, func(s *GuestSessionState) { s.State = StateLocalWizard })
		return nil
	default:
		return f.settleAfterHydration(ctx, gen)
	}
}

// clearMembership removes every device record that implies membership:
// session keys, the preference seed, the cached game list, and the
// attached guest token. The flow's generation is left alone.
func (f *Flow) clearMembership(ctx context.Context, sessionID string) error {
	if sessionID != "" {
		if err := f.store.DeleteSessionGames(ctx, sessionID); err != nil {
			return err
		}
	}
	if err := f.store.DeleteValuesWithPrefix(ctx, keyPrefixSession); err != nil {
		return err
	}
	if err := f.store.DeleteValuesWithPrefix(ctx, keyPrefixSeed); err != nil {
		return err
	}
	f.cloud.SetGuestToken("")
	return nil
}

// Abandon clears every device record that implies membership and resets
// the flow to a fresh loading state. Safe to call from any state; any
// remote response still in flight for the old attempt is discarded when
// it arrives.
func (f *Flow) Abandon(ctx context.Context) error {
	snapshot := f.State()

	if err := f.clearMembership(ctx, snapshot.SessionID); err != nil {
		return err
	}

	f.begin(StateLoading)
	if f.log != nil {
		f.log.Info().Str("session_id", snapshot.SessionID).Msg("session abandoned")
	}
	return nil
}

func (f *Flow) persistGuestMode(ctx context.Context, mode GuestMode) error {
	return f.store.SetValue(ctx, keyGuestMode, string(mode))
}

func boolString(v bool) string {
	if v {
		return "true"
	}
	return "false"
}

// previewErrorMessage maps preview failures to something a person can act on.
func previewErrorMessage(err error) string {
	switch cloud.CodeOf(err) {
	case cloud.CodeNotFound:
		return "This session doesn't exist or was removed."
	case cloud.CodeFailedPrecondition:
		return "This session is no longer open."
	default:
		return "Couldn't reach the host. Check your connection and try again."
	}
}

// claimErrorMessage maps claim failures likewise.
func claimErrorMessage(err error) string {
	switch cloud.CodeOf(err) {
	case cloud.CodeAlreadyExists:
		return "That name is already taken in this session."
	case cloud.CodeFailedPrecondition:
		return "This session is full or no longer open."
	case cloud.CodeNotFound:
		return "This session doesn't exist or was removed."
	case cloud.CodePermissionDenied, cloud.CodeUnauthenticated:
		return "The host didn't accept this join. Ask for a fresh invite."
	default:
		return "Couldn't join right now. Try again."
	}
}
