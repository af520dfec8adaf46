package sqlite

import (
	"database/sql"
	"fmt"
)

// CreateSchema applies the full schema. Safe to call repeatedly.
func CreateSchema(db *sql.DB) error {
	if _, err := db.Exec(schema); err != nil {
		return fmt.Errorf("create schema: %w", err)
	}
	return nil
}

const schema = `
CREATE TABLE IF NOT EXISTS identities (
	id                TEXT PRIMARY KEY,
	username          TEXT NOT NULL UNIQUE,
	display_name      TEXT NOT NULL,
	is_local_owner    BOOLEAN NOT NULL DEFAULT 0,
	remote_account_id TEXT,
	linked_at         DATETIME,
	created_at        DATETIME NOT NULL DEFAULT CURRENT_TIMESTAMP,
	deleted_at        DATETIME
);

CREATE INDEX IF NOT EXISTS idx_identities_owner ON identities(is_local_owner) WHERE deleted_at IS NULL;

CREATE TABLE IF NOT EXISTS preferences (
	username    TEXT NOT NULL,
	game_id     TEXT NOT NULL,
	rank        INTEGER,
	is_top_pick BOOLEAN NOT NULL DEFAULT 0,
	is_disliked BOOLEAN NOT NULL DEFAULT 0,
	updated_at  DATETIME NOT NULL DEFAULT CURRENT_TIMESTAMP,
	PRIMARY KEY (username, game_id)
);

CREATE INDEX IF NOT EXISTS idx_preferences_user ON preferences(username);

CREATE TABLE IF NOT EXISTS session_games (
	session_id    TEXT NOT NULL,
	game_id       TEXT NOT NULL,
	name          TEXT NOT NULL,
	min_players   INTEGER NOT NULL DEFAULT 0,
	max_players   INTEGER NOT NULL DEFAULT 0,
	play_time_min INTEGER NOT NULL DEFAULT 0,
	position      INTEGER NOT NULL,
	PRIMARY KEY (session_id, game_id)
);

CREATE TABLE IF NOT EXISTS device_state (
	key        TEXT PRIMARY KEY,
	value      TEXT NOT NULL,
	updated_at DATETIME NOT NULL DEFAULT CURRENT_TIMESTAMP
);
`
