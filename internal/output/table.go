package output

import (
	"fmt"
	"time"

	"github.com/jedib0t/go-pretty/v6/table"

	"github.com/lvl0lvl/slack-mcp-identity-server/internal/core/engine"
	"github.com/lvl0lvl/slack-mcp-identity-server/internal/core/store"
	"github.com/lvl0lvl/slack-mcp-identity-server/internal/tools"
)

const tableTextWidth = 48

// TableFormatter renders results as an ASCII table.
type TableFormatter struct{}

func newTable() table.Writer {
	t := table.NewWriter()
	t.SetStyle(table.StyleRounded)
	return t
}

// FormatLimits renders per-method budgets and window usage.
func (f *TableFormatter) FormatLimits(stats engine.Stats, now time.Time) (string, error) {
	t := newTable()
	t.SetTitle("Slack API budgets (%s)", pauseLabel(stats, now))
	t.AppendHeader(table.Row{"Method", "Budget", "In Window", "Queued"})

	for _, m := range stats.Methods {
		t.AppendRow(table.Row{m.Method, budgetLabel(m.Budget), m.InWindow, m.Queued})
	}
	t.AppendFooter(table.Row{"", "", "queue depth", stats.QueueDepth})

	return t.Render(), nil
}

// FormatMessages renders message log entries, newest first.
func (f *TableFormatter) FormatMessages(entries []store.MessageLogEntry) (string, error) {
	if len(entries) == 0 {
		return "(no logged messages)", nil
	}

	t := newTable()
	t.AppendHeader(table.Row{"Time", "Channel", "Identity", "Text", "Status"})
	for _, e := range entries {
		identity := e.Username
		if e.IconEmoji != "" {
			identity = fmt.Sprintf("%s %s", e.IconEmoji, identity)
		}
		t.AppendRow(table.Row{
			e.Timestamp.UTC().Format(time.RFC3339),
			e.Channel,
			identity,
			truncate(e.Text, tableTextWidth),
			deliveryLabel(e),
		})
	}
	t.AppendFooter(table.Row{"", "", "", "total", len(entries)})

	return t.Render(), nil
}

// FormatTools renders the tool catalogue. Required parameters carry a '*'.
func (f *TableFormatter) FormatTools(descriptors []tools.Descriptor) (string, error) {
	t := newTable()
	t.AppendHeader(table.Row{"Tool", "Title", "Parameters"})
	for _, d := range descriptors {
		t.AppendRow(table.Row{d.Name, d.Title, paramsLabel(d.Params)})
	}
	return t.Render(), nil
}
