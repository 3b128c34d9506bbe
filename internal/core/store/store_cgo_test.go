//go:build cgo

package store

import (
	"context"
	"testing"
	"time"

	"github.com/lvl0lvl/slack-mcp-identity-server/internal/config"
	"github.com/stretchr/testify/require"
)

func openTestStore(t *testing.T) *Store {
	t.Helper()
	store, err := Open(context.Background(), config.StoreConfig{
		Driver: "libsql",
		Path:   "file:" + t.TempDir() + "/messages.db",
	})
	require.NoError(t, err)
	t.Cleanup(func() { _ = store.Close() })
	require.NoError(t, store.Migrate(context.Background()))
	return store
}

func TestOpenMemoryStore(t *testing.T) {
	store, err := Open(context.Background(), config.StoreConfig{Driver: "libsql", Path: ":memory:"})
	require.NoError(t, err)
	require.NotNil(t, store)
	require.Equal(t, "libsql", store.Driver())
	require.NoError(t, store.Close())
}

func TestOpenLocalStoreConfiguresSQLite(t *testing.T) {
	ctx := context.Background()
	store := openTestStore(t)

	require.Equal(t, 1, store.DB.Stats().MaxOpenConnections)

	var journalMode string
	require.NoError(t, store.DB.QueryRowContext(ctx, "PRAGMA journal_mode").Scan(&journalMode))
	require.Contains(t, journalMode, "wal")

	var busyTimeout int
	require.NoError(t, store.DB.QueryRowContext(ctx, "PRAGMA busy_timeout").Scan(&busyTimeout))
	require.GreaterOrEqual(t, busyTimeout, 1000)
}

func TestMigrateIsIdempotent(t *testing.T) {
	store := openTestStore(t)
	require.NoError(t, store.Migrate(context.Background()))
}

func TestLogAndListMessages(t *testing.T) {
	ctx := context.Background()
	store := openTestStore(t)
	base := time.Date(2025, 3, 1, 12, 0, 0, 0, time.UTC)

	_, err := store.LogMessage(ctx, MessageLogEntry{
		Timestamp: base,
		Channel:   "C1",
		Username:  "Release Bot",
		IconEmoji: ":rocket:",
		Text:      "v1.2.0 shipped",
		SlackTS:   "1740830400.000100",
		Delivered: true,
	})
	require.NoError(t, err)

	_, err = store.LogMessage(ctx, MessageLogEntry{
		Timestamp: base.Add(time.Minute),
		Channel:   "C1",
		Text:      "reply",
		ThreadTS:  "1740830400.000100",
		Error:     "channel_not_found",
	})
	require.NoError(t, err)

	_, err = store.LogMessage(ctx, MessageLogEntry{Timestamp: base.Add(2 * time.Minute), Channel: "C2", Text: "elsewhere", Delivered: true})
	require.NoError(t, err)

	all, err := store.ListMessages(ctx, MessageQuery{})
	require.NoError(t, err)
	require.Len(t, all, 3)
	require.Equal(t, "elsewhere", all[0].Text)
	require.Equal(t, "v1.2.0 shipped", all[2].Text)
	require.Equal(t, base, all[2].Timestamp)
	require.Equal(t, "Release Bot", all[2].Username)
	require.True(t, all[2].Delivered)

	c1, err := store.ListMessages(ctx, MessageQuery{Channel: "C1", Limit: 1})
	require.NoError(t, err)
	require.Len(t, c1, 1)
	require.Equal(t, "reply", c1[0].Text)
	require.Equal(t, "1740830400.000100", c1[0].ThreadTS)

	failed, err := store.ListMessages(ctx, MessageQuery{OnlyFailed: true})
	require.NoError(t, err)
	require.Len(t, failed, 1)
	require.Equal(t, "channel_not_found", failed[0].Error)
	require.False(t, failed[0].Delivered)

	recent, err := store.ListMessages(ctx, MessageQuery{Since: base.Add(time.Minute)})
	require.NoError(t, err)
	require.Len(t, recent, 2)
}

func TestLogMessageRequiresChannel(t *testing.T) {
	store := openTestStore(t)
	_, err := store.LogMessage(context.Background(), MessageLogEntry{Text: "orphan"})
	require.Error(t, err)
}

func TestPruneMessages(t *testing.T) {
	ctx := context.Background()
	store := openTestStore(t)
	base := time.Date(2025, 3, 1, 12, 0, 0, 0, time.UTC)

	for i := range 4 {
		_, err := store.LogMessage(ctx, MessageLogEntry{Timestamp: base.Add(time.Duration(i) * time.Hour), Channel: "C1", Text: "m"})
		require.NoError(t, err)
	}

	removed, err := store.PruneMessages(ctx, base.Add(2*time.Hour))
	require.NoError(t, err)
	require.Equal(t, int64(2), removed)

	remaining, err := store.ListMessages(ctx, MessageQuery{})
	require.NoError(t, err)
	require.Len(t, remaining, 2)

	_, err = store.PruneMessages(ctx, time.Time{})
	require.Error(t, err)
}
