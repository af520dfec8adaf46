package session

import "gamenight/internal/proto"

// State is the join state machine's current position.
type State string

const (
	StateLoading          State = "loading"
	StatePreview          State = "preview"
	StateError            State = "error"
	StateLoadingGames     State = "loading-games"
	StateModeSelect       State = "mode-select"
	StatePreferenceSource State = "preference-source"
	StatePreferences      State = "preferences"
	StateLocalWizard      State = "local-wizard"
	StateWaiting          State = "waiting"
)

// GuestMode is how the guest chose to build their preference list.
type GuestMode string

const (
	GuestModeUnset  GuestMode = ""
	GuestModeShared GuestMode = "shared" // start from the host's shared list
	GuestModeLocal  GuestMode = "local"  // build locally in the wizard
)

// GuestSessionState is the ephemeral state of one join attempt. It lives
// in memory plus a handful of device-store keys; it is cleared when the
// session is removed or the device identity switches.
type GuestSessionState struct {
	State                State
	SessionID            string
	DisplayName          string
	Username             string
	ParticipantID        string
	GuestMode            GuestMode
	ShareMode            string
	HasSharedPreferences bool
	ClaimedNamedSlot     bool
	ErrorMessage         string
	Preview              *proto.PreviewResponse
}

// Device-store keys for the persisted slice of GuestSessionState. The
// "session." prefix groups everything cleared on session removal; the
// "seed." prefix groups the ephemeral initial-preferences seed cleared on
// logout or identity switch so preferences never leak across identities.
const (
	keyPrefixSession = "session."
	keyPrefixSeed    = "seed."

	keySessionID        = keyPrefixSession + "id"
	keyDisplayName      = keyPrefixSession + "display_name"
	keyParticipantID    = keyPrefixSession + "participant_id"
	keyGuestToken       = keyPrefixSession + "guest_token"
	keyClaimedNamedSlot = keyPrefixSession + "claimed_named_slot"
	keyShareMode        = keyPrefixSession + "share_mode"
	keyGuestMode        = keyPrefixSession + "guest_mode"
	keyHasSharedPrefs   = keyPrefixSession + "has_shared_preferences"

	keyInitialSeed = keyPrefixSeed + "initial_preferences"
)
