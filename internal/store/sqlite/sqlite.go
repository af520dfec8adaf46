package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	_ "github.com/mattn/go-sqlite3"

	"gamenight/internal/store"
)

// SQLiteStore implements store.Store for SQLite.
type SQLiteStore struct {
	db *sql.DB
}

// New opens (or creates) the device database at dbPath and applies the schema.
func New(dbPath string) (*SQLiteStore, error) {
	db, err := open(dbPath)
	if err != nil {
		return nil, err
	}

	if err := CreateSchema(db); err != nil {
		db.Close()
		return nil, err
	}

	return &SQLiteStore{db: db}, nil
}

// NewWithSetup opens the database and runs a setup function before use.
// Useful for tests that seed fixture rows.
func NewWithSetup(dbPath string, setup func(*sql.DB) error) (*SQLiteStore, error) {
	db, err := open(dbPath)
	if err != nil {
		return nil, err
	}

	if err := CreateSchema(db); err != nil {
		db.Close()
		return nil, err
	}

	if setup != nil {
		if err := setup(db); err != nil {
			db.Close()
			return nil, fmt.Errorf("setup: %w", err)
		}
	}

	return &SQLiteStore{db: db}, nil
}

func open(dbPath string) (*sql.DB, error) {
	db, err := sql.Open("sqlite3", dbPath+"?_journal_mode=WAL&_busy_timeout=5000")
	if err != nil {
		return nil, fmt.Errorf("open sqlite: %w", err)
	}

	// SQLite works best with a single connection.
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)

	if err := db.Ping(); err != nil {
		db.Close()
		return nil, fmt.Errorf("ping sqlite: %w", err)
	}

	return db, nil
}

// Close closes the database connection.
func (s *SQLiteStore) Close() error {
	return s.db.Close()
}

// inTx runs fn inside a transaction, committing on nil and rolling back
// on error. All multi-record updates that must appear atomic go through
// here.
func (s *SQLiteStore) inTx(ctx context.Context, fn func(tx *sql.Tx) error) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin tx: %w", err)
	}

	if err := fn(tx); err != nil {
		if rbErr := tx.Rollback(); rbErr != nil {
			return fmt.Errorf("%w (rollback: %v)", err, rbErr)
		}
		return err
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit tx: %w", err)
	}
	return nil
}

// ==== IdentityStore implementation ====

const identityColumns = `id, username, display_name, is_local_owner, remote_account_id, linked_at, created_at, deleted_at`

func scanIdentity(row interface{ Scan(...any) error }) (*store.LocalIdentity, error) {
	var identity store.LocalIdentity
	err := row.Scan(
		&identity.ID,
		&identity.Username,
		&identity.DisplayName,
		&identity.IsLocalOwner,
		&identity.RemoteAccountID,
		&identity.LinkedAt,
		&identity.CreatedAt,
		&identity.DeletedAt,
	)
	if err != nil {
		return nil, err
	}
	return &identity, nil
}

// ListOwners returns all non-deleted records flagged as local owner.
func (s *SQLiteStore) ListOwners(ctx context.Context) ([]*store.LocalIdentity, error) {
	query := `
		SELECT ` + identityColumns + `
		FROM identities
		WHERE is_local_owner = 1 AND deleted_at IS NULL
		ORDER BY id
	`
	return s.listIdentities(ctx, query)
}

// ListLocalUsers returns all non-deleted local identities.
func (s *SQLiteStore) ListLocalUsers(ctx context.Context) ([]*store.LocalIdentity, error) {
	query := `
		SELECT ` + identityColumns + `
		FROM identities
		WHERE deleted_at IS NULL
		ORDER BY id
	`
	return s.listIdentities(ctx, query)
}

func (s *SQLiteStore) listIdentities(ctx context.Context, query string, args ...any) ([]*store.LocalIdentity, error) {
	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("query identities: %w", err)
	}
	defer rows.Close()

	var identities []*store.LocalIdentity
	for rows.Next() {
		identity, err := scanIdentity(rows)
		if err != nil {
			return nil, fmt.Errorf("scan identity: %w", err)
		}
		identities = append(identities, identity)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate identities: %w", err)
	}
	return identities, nil
}

// GetIdentity retrieves an identity by id.
func (s *SQLiteStore) GetIdentity(ctx context.Context, id string) (*store.LocalIdentity, error) {
	query := `
		SELECT ` + identityColumns + `
		FROM identities
		WHERE id = ?
	`
	identity, err := scanIdentity(s.db.QueryRowContext(ctx, query, id))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, store.ErrNotFound
		}
		return nil, fmt.Errorf("query identity: %w", err)
	}
	return identity, nil
}

// CreateOwner inserts a new owner-flagged identity, failing with
// ErrOwnerExists when a live owner is already present. Check and insert
// share one transaction so a race cannot create two owners.
func (s *SQLiteStore) CreateOwner(ctx context.Context, identity *store.LocalIdentity) error {
	return s.inTx(ctx, func(tx *sql.Tx) error {
		var count int
		err := tx.QueryRowContext(ctx, `
			SELECT COUNT(*) FROM identities
			WHERE is_local_owner = 1 AND deleted_at IS NULL
		`).Scan(&count)
		if err != nil {
			return fmt.Errorf("count owners: %w", err)
		}
		if count > 0 {
			return store.ErrOwnerExists
		}

		_, err = tx.ExecContext(ctx, `
			INSERT INTO identities (id, username, display_name, is_local_owner, remote_account_id, linked_at)
			VALUES (?, ?, ?, 1, ?, ?)
		`, identity.ID, identity.Username, identity.DisplayName, identity.RemoteAccountID, identity.LinkedAt)
		if err != nil {
			return fmt.Errorf("insert owner: %w", err)
		}
		return nil
	})
}

// DemoteOwnersExcept clears the owner flag on everything but keeperID in
// one statement, so no reader observes zero or multiple owners mid-change.
func (s *SQLiteStore) DemoteOwnersExcept(ctx context.Context, keeperID string) error {
	_, err := s.db.ExecContext(ctx, `
		UPDATE identities
		SET is_local_owner = 0
		WHERE is_local_owner = 1 AND deleted_at IS NULL AND id != ?
	`, keeperID)
	if err != nil {
		return fmt.Errorf("demote owners: %w", err)
	}
	return nil
}

// ==== PreferenceStore implementation ====

// GetPreference retrieves one record, or ErrNotFound.
func (s *SQLiteStore) GetPreference(ctx context.Context, username, gameID string) (*store.PreferenceRecord, error) {
	query := `
		SELECT username, game_id, rank, is_top_pick, is_disliked, updated_at
		FROM preferences
		WHERE username = ? AND game_id = ?
	`
	var rec store.PreferenceRecord
	err := s.db.QueryRowContext(ctx, query, username, gameID).Scan(
		&rec.Username,
		&rec.GameID,
		&rec.Rank,
		&rec.IsTopPick,
		&rec.IsDisliked,
		&rec.UpdatedAt,
	)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, store.ErrNotFound
		}
		return nil, fmt.Errorf("query preference: %w", err)
	}
	return &rec, nil
}

// ListPreferences returns all records for a user, ranked entries first.
func (s *SQLiteStore) ListPreferences(ctx context.Context, username string) ([]*store.PreferenceRecord, error) {
	query := `
		SELECT username, game_id, rank, is_top_pick, is_disliked, updated_at
		FROM preferences
		WHERE username = ?
		ORDER BY rank IS NULL, rank, game_id
	`
	rows, err := s.db.QueryContext(ctx, query, username)
	if err != nil {
		return nil, fmt.Errorf("query preferences: %w", err)
	}
	defer rows.Close()

	var recs []*store.PreferenceRecord
	for rows.Next() {
		var rec store.PreferenceRecord
		if err := rows.Scan(
			&rec.Username,
			&rec.GameID,
			&rec.Rank,
			&rec.IsTopPick,
			&rec.IsDisliked,
			&rec.UpdatedAt,
		); err != nil {
			return nil, fmt.Errorf("scan preference: %w", err)
		}
		recs = append(recs, &rec)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate preferences: %w", err)
	}
	return recs, nil
}

// UpsertPreference creates or replaces one record.
func (s *SQLiteStore) UpsertPreference(ctx context.Context, rec *store.PreferenceRecord) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO preferences (username, game_id, rank, is_top_pick, is_disliked, updated_at)
		VALUES (?, ?, ?, ?, ?, CURRENT_TIMESTAMP)
		ON CONFLICT (username, game_id) DO UPDATE SET
			rank = excluded.rank,
			is_top_pick = excluded.is_top_pick,
			is_disliked = excluded.is_disliked,
			updated_at = CURRENT_TIMESTAMP
	`, rec.Username, rec.GameID, rec.Rank, rec.IsTopPick, rec.IsDisliked)
	if err != nil {
		return fmt.Errorf("upsert preference: %w", err)
	}
	return nil
}

// DeletePreference removes one record.
func (s *SQLiteStore) DeletePreference(ctx context.Context, username, gameID string) error {
	_, err := s.db.ExecContext(ctx, `
		DELETE FROM preferences WHERE username = ? AND game_id = ?
	`, username, gameID)
	if err != nil {
		return fmt.Errorf("delete preference: %w", err)
	}
	return nil
}

// ReplacePreferences atomically replaces a user's entire preference set.
func (s *SQLiteStore) ReplacePreferences(ctx context.Context, username string, recs []*store.PreferenceRecord) error {
	return s.inTx(ctx, func(tx *sql.Tx) error {
		if _, err := tx.ExecContext(ctx, `DELETE FROM preferences WHERE username = ?`, username); err != nil {
			return fmt.Errorf("clear preferences: %w", err)
		}
		for _, rec := range recs {
			_, err := tx.ExecContext(ctx, `
				INSERT INTO preferences (username, game_id, rank, is_top_pick, is_disliked, updated_at)
				VALUES (?, ?, ?, ?, ?, CURRENT_TIMESTAMP)
			`, username, rec.GameID, rec.Rank, rec.IsTopPick, rec.IsDisliked)
			if err != nil {
				return fmt.Errorf("insert preference %s: %w", rec.GameID, err)
			}
		}
		return nil
	})
}

// ReorderRanks applies a full reorder in one transaction: listed ids get
// rank = position+1 with top-pick and disliked cleared; previously ranked
// ids absent from the list lose their rank, other flags untouched.
func (s *SQLiteStore) ReorderRanks(ctx context.Context, username string, orderedGameIDs []string) error {
	listed := make(map[string]struct{}, len(orderedGameIDs))
	for _, id := range orderedGameIDs {
		listed[id] = struct{}{}
	}

	return s.inTx(ctx, func(tx *sql.Tx) error {
		rows, err := tx.QueryContext(ctx, `
			SELECT game_id FROM preferences
			WHERE username = ? AND rank IS NOT NULL
		`, username)
		if err != nil {
			return fmt.Errorf("query ranked: %w", err)
		}
		var stale []string
		for rows.Next() {
			var gameID string
			if err := rows.Scan(&gameID); err != nil {
				rows.Close()
				return fmt.Errorf("scan ranked: %w", err)
			}
			if _, ok := listed[gameID]; !ok {
				stale = append(stale, gameID)
			}
		}
		if err := rows.Err(); err != nil {
			rows.Close()
			return fmt.Errorf("iterate ranked: %w", err)
		}
		rows.Close()

		for _, gameID := range stale {
			_, err := tx.ExecContext(ctx, `
				UPDATE preferences SET rank = NULL, updated_at = CURRENT_TIMESTAMP
				WHERE username = ? AND game_id = ?
			`, username, gameID)
			if err != nil {
				return fmt.Errorf("clear stale rank %s: %w", gameID, err)
			}
		}

		for position, gameID := range orderedGameIDs {
			rank := position + 1
			_, err := tx.ExecContext(ctx, `
				INSERT INTO preferences (username, game_id, rank, is_top_pick, is_disliked, updated_at)
				VALUES (?, ?, ?, 0, 0, CURRENT_TIMESTAMP)
				ON CONFLICT (username, game_id) DO UPDATE SET
					rank = excluded.rank,
					is_top_pick = 0,
					is_disliked = 0,
					updated_at = CURRENT_TIMESTAMP
			`, username, gameID, rank)
			if err != nil {
				return fmt.Errorf("set rank %s: %w", gameID, err)
			}
		}
		return nil
	})
}

// ==== GameStore implementation ====

// ReplaceSessionGames atomically replaces the cached game list for a session.
func (s *SQLiteStore) ReplaceSessionGames(ctx context.Context, sessionID string, games []*store.Game) error {
	return s.inTx(ctx, func(tx *sql.Tx) error {
		if _, err := tx.ExecContext(ctx, `DELETE FROM session_games WHERE session_id = ?`, sessionID); err != nil {
			return fmt.Errorf("clear session games: %w", err)
		}
		for position, game := range games {
			_, err := tx.ExecContext(ctx, `
				INSERT INTO session_games (session_id, game_id, name, min_players, max_players, play_time_min, position)
				VALUES (?, ?, ?, ?, ?, ?, ?)
			`, sessionID, game.ID, game.Name, game.MinPlayers, game.MaxPlayers, game.PlayTimeMin, position)
			if err != nil {
				return fmt.Errorf("insert game %s: %w", game.ID, err)
			}
		}
		return nil
	})
}

// ListSessionGames returns the cached list in hydration order.
func (s *SQLiteStore) ListSessionGames(ctx context.Context, sessionID string) ([]*store.Game, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT game_id, name, min_players, max_players, play_time_min
		FROM session_games
		WHERE session_id = ?
		ORDER BY position
	`, sessionID)
	if err != nil {
		return nil, fmt.Errorf("query session games: %w", err)
	}
	defer rows.Close()

	var games []*store.Game
	for rows.Next() {
		var game store.Game
		if err := rows.Scan(&game.ID, &game.Name, &game.MinPlayers, &game.MaxPlayers, &game.PlayTimeMin); err != nil {
			return nil, fmt.Errorf("scan game: %w", err)
		}
		games = append(games, &game)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate games: %w", err)
	}
	return games, nil
}

// DeleteSessionGames drops the cached list for a session.
func (s *SQLiteStore) DeleteSessionGames(ctx context.Context, sessionID string) error {
	_, err := s.db.ExecContext(ctx, `DELETE FROM session_games WHERE session_id = ?`, sessionID)
	if err != nil {
		return fmt.Errorf("delete session games: %w", err)
	}
	return nil
}

// ==== DeviceStateStore implementation ====

// SetValue writes one key.
func (s *SQLiteStore) SetValue(ctx context.Context, key, value string) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO device_state (key, value, updated_at)
		VALUES (?, ?, CURRENT_TIMESTAMP)
		ON CONFLICT (key) DO UPDATE SET value = excluded.value, updated_at = CURRENT_TIMESTAMP
	`, key, value)
	if err != nil {
		return fmt.Errorf("set device state %s: %w", key, err)
	}
	return nil
}

// GetValue reads one key; ok is false when the key is absent.
func (s *SQLiteStore) GetValue(ctx context.Context, key string) (string, bool, error) {
	var value string
	err := s.db.QueryRowContext(ctx, `SELECT value FROM device_state WHERE key = ?`, key).Scan(&value)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return "", false, nil
		}
		return "", false, fmt.Errorf("get device state %s: %w", key, err)
	}
	return value, true, nil
}

// DeleteValue removes one key.
func (s *SQLiteStore) DeleteValue(ctx context.Context, key string) error {
	_, err := s.db.ExecContext(ctx, `DELETE FROM device_state WHERE key = ?`, key)
	if err != nil {
		return fmt.Errorf("delete device state %s: %w", key, err)
	}
	return nil
}

// DeleteValuesWithPrefix removes every key under a prefix.
func (s *SQLiteStore) DeleteValuesWithPrefix(ctx context.Context, prefix string) error {
	_, err := s.db.ExecContext(ctx, `DELETE FROM device_state WHERE key LIKE ? || '%'`, prefix)
	if err != nil {
		return fmt.Errorf("delete device state prefix %s: %w", prefix, err)
	}
	return nil
}

var _ store.Store = (*SQLiteStore)(nil)
