package output

import (
	"encoding/json"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/lvl0lvl/slack-mcp-identity-server/internal/core/engine"
	"github.com/lvl0lvl/slack-mcp-identity-server/internal/core/store"
	"github.com/lvl0lvl/slack-mcp-identity-server/internal/tools"
)

var now = time.Date(2026, 3, 4, 12, 0, 0, 0, time.UTC)

func sampleStats() engine.Stats {
	return engine.Stats{
		QueueDepth:  3,
		PausedUntil: now.Add(5 * time.Second),
		Methods: []engine.MethodStats{
			{Method: "chat.postMessage", Budget: 60, InWindow: 12, Queued: 3},
			{Method: "custom.method", InWindow: 1},
		},
	}
}

func sampleMessages() []store.MessageLogEntry {
	return []store.MessageLogEntry{
		{Timestamp: now, Channel: "C1", Username: "Deploy Bot", IconEmoji: ":rocket:", Text: "deploy | done", SlackTS: "1.2", Delivered: true},
		{Timestamp: now.Add(-time.Minute), Channel: "C2", Text: "hello", Error: "channel_not_found"},
	}
}

func TestParseFormat(t *testing.T) {
	tests := map[string]Format{
		"table":    FormatTable,
		"JSON":     FormatJSON,
		"":         FormatTable,
		"md":       FormatMarkdown,
		"markdown": FormatMarkdown,
	}
	for in, want := range tests {
		got, err := ParseFormat(in)
		require.NoError(t, err, in)
		require.Equal(t, want, got, in)
	}

	_, err := ParseFormat("csv")
	require.Error(t, err)
}

func TestTableFormatter(t *testing.T) {
	f := NewFormatter(FormatTable)

	limits, err := f.FormatLimits(sampleStats(), now)
	require.NoError(t, err)
	require.Contains(t, limits, "paused for 5s")
	require.Contains(t, limits, "chat.postMessage")
	require.Contains(t, limits, "60/min")

	messages, err := f.FormatMessages(sampleMessages())
	require.NoError(t, err)
	require.Contains(t, messages, ":rocket: Deploy Bot")
	require.Contains(t, messages, "failed: channel_not_found")

	empty, err := f.FormatMessages(nil)
	require.NoError(t, err)
	require.Equal(t, "(no logged messages)", empty)
}

func TestJSONFormatter(t *testing.T) {
	f := NewFormatter(FormatJSON)

	limits, err := f.FormatLimits(sampleStats(), now)
	require.NoError(t, err)
	var doc map[string]any
	require.NoError(t, json.Unmarshal([]byte(limits), &doc))
	require.Equal(t, true, doc["paused"])
	require.EqualValues(t, 3, doc["queue_depth"])

	messages, err := f.FormatMessages(nil)
	require.NoError(t, err)
	require.Equal(t, "[]", messages)

	rendered, err := f.FormatTools([]tools.Descriptor{{Name: "slack_get_users", Title: "Get Users", Params: []tools.Param{}}})
	require.NoError(t, err)
	require.Contains(t, rendered, `"name": "slack_get_users"`)
}

func TestMarkdownFormatter(t *testing.T) {
	f := NewFormatter(FormatMarkdown)

	limits, err := f.FormatLimits(engine.Stats{Methods: []engine.MethodStats{{Method: "users.list", Budget: 20}}}, now)
	require.NoError(t, err)
	require.Contains(t, limits, "admitting")
	require.Contains(t, limits, "| users.list | 20/min | 0 | 0 |")

	messages, err := f.FormatMessages(sampleMessages())
	require.NoError(t, err)
	require.Contains(t, messages, `deploy \| done`)

	rendered, err := f.FormatTools([]tools.Descriptor{{
		Name:        "slack_add_reaction",
		Description: "Add a reaction emoji to a message",
		Params:      []tools.Param{{Name: "reaction", Type: "string", Required: true}},
	}})
	require.NoError(t, err)
	require.Contains(t, rendered, "### slack_add_reaction")
	require.Contains(t, rendered, "| reaction | string | yes |")
}

func TestTruncate(t *testing.T) {
	require.Equal(t, "short", truncate("short", 10))
	require.Equal(t, "a b", truncate("a\n  b", 10))
	got := truncate(strings.Repeat("é", 20), 5)
	require.Equal(t, 5, len([]rune(got)))
	require.True(t, strings.HasSuffix(got, "…"))
}
