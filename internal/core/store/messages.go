package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"
)

// DefaultMessageLimit caps ListMessages when no limit is given.
const DefaultMessageLimit = 50

// MessageLogEntry records one attempt to post a message.
type MessageLogEntry struct {
	ID        int64     `json:"id,omitempty"`
	Timestamp time.Time `json:"timestamp"`
	Channel   string    `json:"channel"`
	Username  string    `json:"username,omitempty"`
	IconEmoji string    `json:"icon_emoji,omitempty"`
	Text      string    `json:"text"`
	ThreadTS  string    `json:"thread_ts,omitempty"`
	SlackTS   string    `json:"slack_ts,omitempty"`
	Delivered bool      `json:"delivered"`
	Error     string    `json:"error,omitempty"`
}

// MessageQuery filters ListMessages and PruneMessages.
type MessageQuery struct {
	Channel    string
	Since      time.Time
	Before     time.Time
	OnlyFailed bool
	Limit      int
}

func (q MessageQuery) whereClause() (string, []any) {
	var clauses []string
	var args []any
	if channel := strings.TrimSpace(q.Channel); channel != "" {
		clauses = append(clauses, "channel = ?")
		args = append(args, channel)
	}
	if !q.Since.IsZero() {
		clauses = append(clauses, "logged_at >= ?")
		args = append(args, q.Since.UnixMilli())
	}
	if !q.Before.IsZero() {
		clauses = append(clauses, "logged_at < ?")
		args = append(args, q.Before.UnixMilli())
	}
	if q.OnlyFailed {
		clauses = append(clauses, "delivered = 0")
	}
	if len(clauses) == 0 {
		return "", nil
	}
	return "WHERE " + strings.Join(clauses, " AND "), args
}

// LogMessage appends an entry and returns its row id.
func (s *Store) LogMessage(ctx context.Context, entry MessageLogEntry) (int64, error) {
	if s == nil || s.DB == nil {
		return 0, errors.New("store is not initialized")
	}
	if ctx == nil {
		ctx = context.Background()
	}
	if strings.TrimSpace(entry.Channel) == "" {
		return 0, errors.New("channel is required")
	}
	if entry.Timestamp.IsZero() {
		entry.Timestamp = time.Now().UTC()
	}

	result, err := s.DB.ExecContext(ctx, `
		INSERT INTO messages (logged_at, channel, username, icon_emoji, text, thread_ts, slack_ts, delivered, error)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)
	`,
		entry.Timestamp.UnixMilli(),
		entry.Channel,
		nullString(entry.Username),
		nullString(entry.IconEmoji),
		entry.Text,
		nullString(entry.ThreadTS),
		nullString(entry.SlackTS),
		boolToInt(entry.Delivered),
		nullString(entry.Error),
	)
	if err != nil {
		return 0, fmt.Errorf("log message: %w", err)
	}

	id, err := result.LastInsertId()
	if err != nil {
		return 0, fmt.Errorf("log message: %w", err)
	}
	return id, nil
}

// ListMessages returns matching entries, newest first.
func (s *Store) ListMessages(ctx context.Context, q MessageQuery) ([]MessageLogEntry, error) {
	if s == nil || s.DB == nil {
		return nil, errors.New("store is not initialized")
	}
	if ctx == nil {
		ctx = context.Background()
	}

	limit := q.Limit
	if limit <= 0 {
		limit = DefaultMessageLimit
	}
	where, args := q.whereClause()
	args = append(args, limit)

	rows, err := s.DB.QueryContext(ctx, fmt.Sprintf(`
		SELECT id, logged_at, channel, username, icon_emoji, text, thread_ts, slack_ts, delivered, error
		FROM messages
		%s
		ORDER BY logged_at DESC, id DESC
		LIMIT ?
	`, where), args...)
	if err != nil {
		return nil, fmt.Errorf("list messages: %w", err)
	}
	defer rows.Close() // nolint:errcheck // best-effort cleanup

	entries := []MessageLogEntry{}
	for rows.Next() {
		var (
			entry     MessageLogEntry
			loggedAt  int64
			username  sql.NullString
			iconEmoji sql.NullString
			threadTS  sql.NullString
			slackTS   sql.NullString
			delivered int
			errText   sql.NullString
		)
		if err := rows.Scan(&entry.ID, &loggedAt, &entry.Channel, &username, &iconEmoji, &entry.Text, &threadTS, &slackTS, &delivered, &errText); err != nil {
			return nil, fmt.Errorf("scan messages: %w", err)
		}
		entry.Timestamp = time.UnixMilli(loggedAt).UTC()
		entry.Username = username.String
		entry.IconEmoji = iconEmoji.String
		entry.ThreadTS = threadTS.String
		entry.SlackTS = slackTS.String
		entry.Delivered = delivered != 0
		entry.Error = errText.String
		entries = append(entries, entry)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("list messages: %w", err)
	}
	return entries, nil
}

// PruneMessages deletes entries logged before the given instant.
func (s *Store) PruneMessages(ctx context.Context, before time.Time) (int64, error) {
	if s == nil || s.DB == nil {
		return 0, errors.New("store is not initialized")
	}
	if ctx == nil {
		ctx = context.Background()
	}
	if before.IsZero() {
		return 0, errors.New("prune cutoff is required")
	}

	where, args := MessageQuery{Before: before}.whereClause()
	result, err := s.DB.ExecContext(ctx, "DELETE FROM messages "+where, args...)
	if err != nil {
		return 0, fmt.Errorf("prune messages: %w", err)
	}
	affected, err := result.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("prune messages: %w", err)
	}
	return affected, nil
}

func nullString(value string) sql.NullString {
	return sql.NullString{String: value, Valid: value != ""}
}

func boolToInt(value bool) int {
	if value {
		return 1
	}
	return 0
}
