package postgres

import (
	"context"
	"database/sql"
	"fmt"
)

// schema is applied in order; every statement is idempotent.
var schema = []string{
	// Owned by the club service. Created here only so a standalone
	// deployment has something to resolve clubs against.
	`CREATE TABLE IF NOT EXISTS clubs (
		id BIGINT PRIMARY KEY
	)`,
	`CREATE TABLE IF NOT EXISTS club_members (
		club_id BIGINT NOT NULL REFERENCES clubs(id) ON DELETE CASCADE,
		member_id TEXT NOT NULL,
		PRIMARY KEY (club_id, member_id)
	)`,

	`CREATE TABLE IF NOT EXISTS chat_rooms (
		club_id BIGINT PRIMARY KEY,
		created_at TIMESTAMPTZ NOT NULL DEFAULT NOW()
	)`,
	`CREATE TABLE IF NOT EXISTS chat_participants (
		seq BIGSERIAL PRIMARY KEY,
		club_id BIGINT NOT NULL REFERENCES chat_rooms(club_id) ON DELETE CASCADE,
		member_id TEXT NOT NULL,
		joined_at TIMESTAMPTZ NOT NULL,
		UNIQUE (club_id, member_id)
	)`,
	`CREATE TABLE IF NOT EXISTS chat_messages (
		id BIGSERIAL PRIMARY KEY,
		club_id BIGINT NOT NULL REFERENCES chat_rooms(club_id) ON DELETE CASCADE,
		sender_id TEXT NOT NULL,
		content TEXT NOT NULL DEFAULT '',
		images JSONB NOT NULL DEFAULT '[]'::jsonb,
		created_at TIMESTAMPTZ NOT NULL
	)`,
	`CREATE INDEX IF NOT EXISTS idx_chat_messages_club_created ON chat_messages (club_id, created_at DESC, id DESC)`,
}

// Migrate brings the chat schema up to date.
func Migrate(ctx context.Context, db *sql.DB) error {
	for i, stmt := range schema {
		if _, err := db.ExecContext(ctx, stmt); err != nil {
			return fmt.Errorf("postgres migrate step %d failed: %w", i, err)
		}
	}
	return nil
}
