package proto

// Wire bodies for the named host operations. Every operation is a POST of
// a JSON request to /v1/op/<name>; failures carry an ErrorBody envelope.

// Operation names understood by the host.
const (
	OpGetSessionPreview      = "getSessionPreview"
	OpClaimSessionSlot       = "claimSessionSlot"
	OpGetSessionGames        = "getSessionGames"
	OpGetSharedPreferences   = "getSharedPreferences"
	OpSubmitGuestPreferences = "submitGuestPreferences"
)

// Session status values.
const (
	SessionStatusOpen    = "open"
	SessionStatusClosed  = "closed"
	SessionStatusExpired = "expired"
)

// Share modes: quick sessions pre-share the host's list, detailed sessions
// let the guest choose a preference source.
const (
	ShareModeQuick    = "quick"
	ShareModeDetailed = "detailed"
)

// NamedSlotPrefix marks participant ids reserved by the host for a
// specific person. Claiming such a slot merges the guest into the host's
// pre-existing profile for that person.
const NamedSlotPrefix = "named-"

// ErrorBody is the error envelope returned by the host on failure.
type ErrorBody struct {
	Error RemoteErrorBody `json:"error"`
}

// RemoteErrorBody carries the structured remote error code and message.
type RemoteErrorBody struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}

// NamedSlot is a host-reserved identity a guest may claim by exact name.
type NamedSlot struct {
	ParticipantID string `json:"participantId"`
	DisplayName   string `json:"displayName"`
}

// PreviewRequest asks for a read-only view of a session before joining.
type PreviewRequest struct {
	SessionID string `json:"sessionId"`
}

// PreviewResponse describes a session to a prospective guest.
type PreviewResponse struct {
	SessionID    string      `json:"sessionId"`
	Status       string      `json:"status"`
	Capacity     int         `json:"capacity"`
	ClaimedCount int         `json:"claimedCount"`
	NamedSlots   []NamedSlot `json:"namedSlots"`
	ShareMode    string      `json:"shareMode"`
	HostName     string      `json:"hostName,omitempty"`
}

// ClaimSlotRequest claims a seat in a session. ParticipantID is set only
// when claiming a named slot; anonymous joins leave it empty.
type ClaimSlotRequest struct {
	SessionID     string `json:"sessionId"`
	DisplayName   string `json:"displayName"`
	ParticipantID string `json:"participantId,omitempty"`
}

// ClaimSlotResponse confirms a claimed seat.
type ClaimSlotResponse struct {
	ParticipantID        string `json:"participantId"`
	GuestToken           string `json:"guestToken"`
	HasSharedPreferences bool   `json:"hasSharedPreferences"`
}

// GamesRequest fetches the session's candidate game list.
type GamesRequest struct {
	SessionID string `json:"sessionId"`
}

// GameInfo is opaque game metadata hydrated into the local store.
type GameInfo struct {
	ID          string `json:"id"`
	Name        string `json:"name"`
	MinPlayers  int    `json:"minPlayers"`
	MaxPlayers  int    `json:"maxPlayers"`
	PlayTimeMin int    `json:"playTimeMin"`
}

// GamesResponse carries the hydrated game list.
type GamesResponse struct {
	Games []GameInfo `json:"games"`
}

// SharedPreferencesRequest fetches preferences the host pre-shared for
// this guest's slot.
type SharedPreferencesRequest struct {
	SessionID string `json:"sessionId"`
}

// PreferencePayload is one preference entry on the wire. Exactly one of
// Rank / IsTopPick / IsDisliked is meaningful; neutral entries are omitted.
type PreferencePayload struct {
	GameID     string `json:"gameId"`
	Rank       *int   `json:"rank,omitempty"`
	IsTopPick  bool   `json:"isTopPick,omitempty"`
	IsDisliked bool   `json:"isDisliked,omitempty"`
}

// SharedPreferencesResponse returns the host's pre-shared list.
type SharedPreferencesResponse struct {
	HasPreferences bool                `json:"hasPreferences"`
	Preferences    []PreferencePayload `json:"preferences"`
	DisplayName    string              `json:"displayName"`
}

// SubmitPreferencesRequest pushes the guest's working set to the host.
type SubmitPreferencesRequest struct {
	SessionID   string              `json:"sessionId"`
	Preferences []PreferencePayload `json:"preferences"`
}

// SubmitPreferencesResponse acknowledges a submission.
type SubmitPreferencesResponse struct {
	PreferencesCount int `json:"preferencesCount"`
}
