package identity

import (
	"context"
	"fmt"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"gamenight/internal/store"
)

// Resolver determines the single canonical device-owner identity. The
// owner flag is permanent once created: it is never reassigned here, only
// duplicate anomalies are collapsed.
type Resolver struct {
	store store.IdentityStore
	log   *zerolog.Logger
}

// NewResolver builds a resolver over the given identity store.
func NewResolver(st store.IdentityStore, logger *zerolog.Logger) *Resolver {
	return &Resolver{store: st, log: logger}
}

// Resolve returns the device owner, or nil when none exists. When more
// than one non-deleted record carries the owner flag (a race artifact),
// exactly one keeper is chosen and the rest are demoted in storage before
// returning. The demotion is atomic; concurrent readers see either the
// pre-dedupe or post-dedupe state.
func (r *Resolver) Resolve(ctx context.Context) (*store.LocalIdentity, error) {
	owners, err := r.store.ListOwners(ctx)
	if err != nil {
		return nil, fmt.Errorf("list owners: %w", err)
	}

	switch len(owners) {
	case 0:
		return nil, nil
	case 1:
		return owners[0], nil
	}

	keeper := Keeper(owners)
	if r.log != nil {
		r.log.Warn().
			Int("candidates", len(owners)).
			Str("keeper_id", keeper.ID).
			Msg("duplicate local owners detected, demoting extras")
	}
	if err := r.store.DemoteOwnersExcept(ctx, keeper.ID); err != nil {
		return nil, fmt.Errorf("demote duplicate owners: %w", err)
	}
	return keeper, nil
}

// Keeper picks the record to keep from a duplicate-owner anomaly:
// a record linked to a remote account beats one with a link timestamp,
// which beats the rest; ties fall to the lexicographically smallest id.
// Deterministic for any input order.
func Keeper(candidates []*store.LocalIdentity) *store.LocalIdentity {
	if len(candidates) == 0 {
		return nil
	}

	best := candidates[0]
	for _, c := range candidates[1:] {
		if keeperLess(c, best) {
			best = c
		}
	}
	return best
}

// keeperLess reports whether a outranks b.
func keeperLess(a, b *store.LocalIdentity) bool {
	aLinked, bLinked := a.RemoteAccountID != nil, b.RemoteAccountID != nil
	if aLinked != bLinked {
		return aLinked
	}
	aStamped, bStamped := a.LinkedAt != nil, b.LinkedAt != nil
	if aStamped != bStamped {
		return aStamped
	}
	return a.ID < b.ID
}

// CreateOwner creates the device-owner identity. Fails with
// store.ErrOwnerExists when one is already present; callers are expected
// to Resolve first.
func (r *Resolver) CreateOwner(ctx context.Context, username, displayName string) (*store.LocalIdentity, error) {
	owner := &store.LocalIdentity{
		ID:           uuid.NewString(),
		Username:     username,
		DisplayName:  displayName,
		IsLocalOwner: true,
	}
	if err := r.store.CreateOwner(ctx, owner); err != nil {
		return nil, err
	}
	if r.log != nil {
		r.log.Info().Str("id", owner.ID).Str("username", username).Msg("local owner created")
	}
	return owner, nil
}
