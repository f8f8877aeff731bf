package store

import (
	"context"
	"fmt"
)

var migrations = []string{
	`CREATE EXTENSION IF NOT EXISTS pgcrypto`,
	`CREATE TABLE IF NOT EXISTS playlists (
		id          uuid PRIMARY KEY DEFAULT gen_random_uuid(),
		owner_id    TEXT NOT NULL,
		name        TEXT NOT NULL,
		description TEXT NOT NULL DEFAULT '',
		is_public   BOOLEAN NOT NULL DEFAULT TRUE,
		edit_mode   TEXT NOT NULL DEFAULT 'everyone',
		tracks      JSONB NOT NULL DEFAULT '[]',
		snapshot    INT NOT NULL DEFAULT 0,
		created_at  TIMESTAMPTZ NOT NULL DEFAULT now(),
		updated_at  TIMESTAMPTZ NOT NULL DEFAULT now()
	)`,
	`ALTER TABLE playlists ADD COLUMN IF NOT EXISTS tracks JSONB NOT NULL DEFAULT '[]'`,
	`ALTER TABLE playlists ADD COLUMN IF NOT EXISTS snapshot INT NOT NULL DEFAULT 0`,
	`ALTER TABLE playlists ADD COLUMN IF NOT EXISTS updated_at TIMESTAMPTZ NOT NULL DEFAULT now()`,
	`CREATE INDEX IF NOT EXISTS idx_playlists_public ON playlists(created_at DESC) WHERE is_public`,
	`CREATE TABLE IF NOT EXISTS playlist_members (
		playlist_id uuid NOT NULL REFERENCES playlists(id) ON DELETE CASCADE,
		user_id     TEXT NOT NULL,
		created_at  TIMESTAMPTZ NOT NULL DEFAULT now(),
		PRIMARY KEY (playlist_id, user_id)
	)`,
	`CREATE TABLE IF NOT EXISTS albums (
		id         TEXT PRIMARY KEY,
		title      TEXT NOT NULL DEFAULT '',
		tracks     JSONB NOT NULL DEFAULT '[]',
		created_at TIMESTAMPTZ NOT NULL DEFAULT now()
	)`,
	`CREATE TABLE IF NOT EXISTS queues (
		user_id    TEXT PRIMARY KEY,
		tracks     JSONB NOT NULL DEFAULT '[]',
		updated_at TIMESTAMPTZ NOT NULL DEFAULT now()
	)`,
	`CREATE TABLE IF NOT EXISTS playback_sessions (
		user_id    TEXT PRIMARY KEY,
		state      JSONB NOT NULL,
		updated_at TIMESTAMPTZ NOT NULL DEFAULT now()
	)`,
	`CREATE TABLE IF NOT EXISTS player_devices (
		user_id    TEXT PRIMARY KEY,
		devices    JSONB NOT NULL DEFAULT '[]',
		updated_at TIMESTAMPTZ NOT NULL DEFAULT now()
	)`,
}

// AutoMigrate creates or upgrades the schema. Every statement is idempotent.
func AutoMigrate(ctx context.Context, db DB) error {
	for i, stmt := range migrations {
		if _, err := db.Exec(ctx, stmt); err != nil {
			return fmt.Errorf("store: migration %d: %w", i, err)
		}
	}
	return nil
}
