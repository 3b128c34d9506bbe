package store

import (
	"context"
	"errors"
	"fmt"
)

var schemaStatements = []string{
	`CREATE TABLE IF NOT EXISTS messages (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		logged_at INTEGER NOT NULL,
		channel TEXT NOT NULL,
		username TEXT,
		icon_emoji TEXT,
		text TEXT NOT NULL,
		thread_ts TEXT,
		slack_ts TEXT,
		delivered INTEGER NOT NULL DEFAULT 0,
		error TEXT
	);`,
	`CREATE INDEX IF NOT EXISTS idx_messages_logged_at ON messages(logged_at);`,
	`CREATE INDEX IF NOT EXISTS idx_messages_channel ON messages(channel, logged_at);`,
}

// Migrate ensures the required database tables exist.
func (s *Store) Migrate(ctx context.Context) error {
	if s == nil || s.DB == nil {
		return errors.New("store is not initialized")
	}

	if ctx == nil {
		ctx = context.Background()
	}

	for _, stmt := range schemaStatements {
		if _, err := s.DB.ExecContext(ctx, stmt); err != nil {
			return fmt.Errorf("store migration failed: %w", err)
		}
	}
	return nil
}
