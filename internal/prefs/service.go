package prefs

import (
	"context"
	"errors"
	"fmt"

	"github.com/rs/zerolog"

	"gamenight/internal/proto"
	"gamenight/internal/store"
)

// Service owns every preference write path so the exclusivity invariant
// cannot be bypassed.
type Service struct {
	store store.PreferenceStore
	log   *zerolog.Logger
}

// NewService builds a preference service over the given store.
func NewService(st store.PreferenceStore, logger *zerolog.Logger) *Service {
	return &Service{store: st, log: logger}
}

// SetPreference applies a partial update to one (username, gameId) record,
// normalizing to exactly one active dimension. A neutral result deletes
// the record.
func (s *Service) SetPreference(ctx context.Context, username, gameID string, update Update) error {
	existing, err := s.store.GetPreference(ctx, username, gameID)
	if err != nil && !errors.Is(err, store.ErrNotFound) {
		return fmt.Errorf("load preference: %w", err)
	}

	normalized := Normalize(existing, update)
	if normalized.Neutral() {
		return s.store.DeletePreference(ctx, username, gameID)
	}

	return s.store.UpsertPreference(ctx, &store.PreferenceRecord{
		Username:   username,
		GameID:     gameID,
		Rank:       normalized.Rank,
		IsTopPick:  normalized.IsTopPick,
		IsDisliked: normalized.IsDisliked,
	})
}

// ClearPreference removes a user's record for one game.
func (s *Service) ClearPreference(ctx context.Context, username, gameID string) error {
	return s.store.DeletePreference(ctx, username, gameID)
}

// Reorder applies a full ranking in one atomic operation: each listed
// game gets rank = index+1 with the other dimensions cleared, and any
// previously ranked game missing from the list loses its rank. The store
// guarantees no partial reorder is ever visible.
func (s *Service) Reorder(ctx context.Context, username string, orderedGameIDs []string) error {
	return s.store.ReorderRanks(ctx, username, orderedGameIDs)
}

// ListPreferences returns the user's stored records.
func (s *Service) ListPreferences(ctx context.Context, username string) ([]*store.PreferenceRecord, error) {
	return s.store.ListPreferences(ctx, username)
}

// ReplaceAll normalizes and atomically installs an entire preference set,
// replacing whatever the user had. Used when seeding a guest's working
// set from host-shared or local-history preferences.
func (s *Service) ReplaceAll(ctx context.Context, username string, payloads []proto.PreferencePayload) error {
	recs := RecordsFromPayloads(username, payloads)
	if err := s.store.ReplacePreferences(ctx, username, recs); err != nil {
		return fmt.Errorf("replace preferences: %w", err)
	}
	if s.log != nil {
		s.log.Debug().Str("username", username).Int("count", len(recs)).Msg("preference set replaced")
	}
	return nil
}

// CopyUserPreferences seeds dst's working set from src's stored records.
// Used when the guest chooses "local history" as their starting source.
func (s *Service) CopyUserPreferences(ctx context.Context, src, dst string) error {
	recs, err := s.store.ListPreferences(ctx, src)
	if err != nil {
		return fmt.Errorf("load source preferences: %w", err)
	}

	copied := make([]*store.PreferenceRecord, 0, len(recs))
	for _, rec := range recs {
		clone := *rec
		clone.Username = dst
		copied = append(copied, &clone)
	}
	if err := s.store.ReplacePreferences(ctx, dst, copied); err != nil {
		return fmt.Errorf("copy preferences: %w", err)
	}
	return nil
}

// RecordsFromPayloads converts wire payloads into normalized store
// records. Neutral payloads are dropped.
func RecordsFromPayloads(username string, payloads []proto.PreferencePayload) []*store.PreferenceRecord {
	recs := make([]*store.PreferenceRecord, 0, len(payloads))
	for _, p := range payloads {
		normalized := Normalize(nil, Update{
			Rank:       p.Rank,
			IsTopPick:  boolPtr(p.IsTopPick),
			IsDisliked: boolPtr(p.IsDisliked),
		})
		if normalized.Neutral() {
			continue
		}
		recs = append(recs, &store.PreferenceRecord{
			Username:   username,
			GameID:     p.GameID,
			Rank:       normalized.Rank,
			IsTopPick:  normalized.IsTopPick,
			IsDisliked: normalized.IsDisliked,
		})
	}
	return recs
}

// PayloadsFromRecords converts stored records into wire payloads.
func PayloadsFromRecords(recs []*store.PreferenceRecord) []proto.PreferencePayload {
	payloads := make([]proto.PreferencePayload, 0, len(recs))
	for _, rec := range recs {
		payloads = append(payloads, proto.PreferencePayload{
			GameID:     rec.GameID,
			Rank:       rec.Rank,
			IsTopPick:  rec.IsTopPick,
			IsDisliked: rec.IsDisliked,
		})
	}
	return payloads
}

func boolPtr(v bool) *bool { return &v }
