package store

import (
	"context"
	"errors"
	"time"
)

var (
	// ErrNotFound is returned when a requested record does not exist.
	ErrNotFound = errors.New("record not found")
	// ErrOwnerExists is returned when creating a local owner while a
	// non-deleted owner record already exists. Creation is a deliberate
	// create-once guard, never silently idempotent.
	ErrOwnerExists = errors.New("local owner already exists")
)

// LocalIdentity is a locally known person. Exactly one non-deleted record
// per device may carry IsLocalOwner; the identity resolver collapses
// accidental duplicates.
type LocalIdentity struct {
	ID              string
	Username        string
	DisplayName     string
	IsLocalOwner    bool
	RemoteAccountID *string    // set when linked to a remote account
	LinkedAt        *time.Time // set when a link was ever established
	CreatedAt       time.Time
	DeletedAt       *time.Time // soft delete
}

// PreferenceRecord is one user's stance on one game. At most one of
// Rank / IsTopPick / IsDisliked is set; the normalizer in internal/prefs
// is the single authority for that invariant.
type PreferenceRecord struct {
	Username   string
	GameID     string
	Rank       *int
	IsTopPick  bool
	IsDisliked bool
	UpdatedAt  time.Time
}

// Game is opaque metadata for a session's candidate game.
type Game struct {
	ID          string
	Name        string
	MinPlayers  int
	MaxPlayers  int
	PlayTimeMin int
}

// IdentityStore handles local identity persistence.
type IdentityStore interface {
	// ListOwners returns all non-deleted records flagged as local owner.
	// More than one result is an anomaly the resolver heals.
	ListOwners(ctx context.Context) ([]*LocalIdentity, error)

	// ListLocalUsers returns all non-deleted local identities.
	ListLocalUsers(ctx context.Context) ([]*LocalIdentity, error)

	// GetIdentity retrieves an identity by id, deleted or not.
	GetIdentity(ctx context.Context, id string) (*LocalIdentity, error)

	// CreateOwner inserts a new owner-flagged identity. Fails with
	// ErrOwnerExists when a non-deleted owner is already present; the
	// existence check and insert run in one transaction.
	CreateOwner(ctx context.Context, identity *LocalIdentity) error

	// DemoteOwnersExcept clears IsLocalOwner on every non-deleted record
	// other than keeperID, atomically: concurrent readers see either the
	// pre-dedupe or post-dedupe state, never an intermediate one.
	DemoteOwnersExcept(ctx context.Context, keeperID string) error
}

// PreferenceStore handles preference persistence.
type PreferenceStore interface {
	// GetPreference retrieves one record, or ErrNotFound.
	GetPreference(ctx context.Context, username, gameID string) (*PreferenceRecord, error)

	// ListPreferences returns all records for a user.
	ListPreferences(ctx context.Context, username string) ([]*PreferenceRecord, error)

	// UpsertPreference creates or replaces one record.
	UpsertPreference(ctx context.Context, rec *PreferenceRecord) error

	// DeletePreference removes one record. Deleting a missing record is
	// not an error.
	DeletePreference(ctx context.Context, username, gameID string) error

	// ReplacePreferences atomically replaces a user's entire preference
	// set with recs.
	ReplacePreferences(ctx context.Context, username string, recs []*PreferenceRecord) error

	// ReorderRanks atomically assigns rank = position+1 to every listed
	// game id (clearing top-pick and disliked on those records) and
	// clears the rank of any previously ranked record whose game id is
	// absent from orderedGameIDs. No partial reorder is ever visible.
	ReorderRanks(ctx context.Context, username string, orderedGameIDs []string) error
}

// GameStore caches hydrated session game lists.
type GameStore interface {
	// ReplaceSessionGames atomically replaces the cached list for a session.
	ReplaceSessionGames(ctx context.Context, sessionID string, games []*Game) error

	// ListSessionGames returns the cached list in hydration order.
	ListSessionGames(ctx context.Context, sessionID string) ([]*Game, error)

	// DeleteSessionGames drops the cached list for a session.
	DeleteSessionGames(ctx context.Context, sessionID string) error
}

// DeviceStateStore is the keyed device-session store holding ephemeral
// join state (current session id, display name, participant id, flags).
type DeviceStateStore interface {
	// SetValue writes one key.
	SetValue(ctx context.Context, key, value string) error

	// GetValue reads one key; ok is false when the key is absent.
	GetValue(ctx context.Context, key string) (value string, ok bool, err error)

	// DeleteValue removes one key. Missing keys are not an error.
	DeleteValue(ctx context.Context, key string) error

	// DeleteValuesWithPrefix removes every key under a prefix, atomically.
	// Used to clear all session-scoped state on abandonment or switch.
	DeleteValuesWithPrefix(ctx context.Context, prefix string) error
}

// Store aggregates all storage interfaces.
type Store interface {
	IdentityStore
	PreferenceStore
	GameStore
	DeviceStateStore

	// Close closes the underlying database connection.
	Close() error
}
