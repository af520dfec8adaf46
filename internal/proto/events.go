package proto

import "encoding/json"

// Event stream envelopes for GET /v1/session/{id}/events. The host pushes
// roster and preference changes so joined guests can keep their aggregate
// view current.

const (
	EventParticipantJoined    = "participant_joined"
	EventParticipantLeft      = "participant_left"
	EventPreferencesSubmitted = "preferences_submitted"
	EventSessionClosed        = "session_closed"
)

// SessionEvent is the envelope for messages on the event stream.
type SessionEvent struct {
	Type string          `json:"type"`
	Data json.RawMessage `json:"data"`
}

// ParticipantJoinedData announces a new live guest.
type ParticipantJoinedData struct {
	ParticipantID string `json:"participantId"`
	Username      string `json:"username"`
	DisplayName   string `json:"displayName"`
}

// ParticipantLeftData announces a departed guest.
type ParticipantLeftData struct {
	ParticipantID string `json:"participantId"`
}

// PreferencesSubmittedData carries a guest's submitted preference list.
// An empty Preferences slice is meaningful: the guest submitted an
// explicitly empty set.
type PreferencesSubmittedData struct {
	ParticipantID string              `json:"participantId"`
	Username      string              `json:"username"`
	Preferences   []PreferencePayload `json:"preferences"`
}
