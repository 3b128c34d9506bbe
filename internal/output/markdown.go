package output

import (
	"fmt"
	"strings"
	"time"

	"github.com/lvl0lvl/slack-mcp-identity-server/internal/core/engine"
	"github.com/lvl0lvl/slack-mcp-identity-server/internal/core/store"
	"github.com/lvl0lvl/slack-mcp-identity-server/internal/tools"
)

// MarkdownFormatter renders results as markdown tables.
type MarkdownFormatter struct{}

// FormatLimits renders scheduler stats as Markdown.
func (f *MarkdownFormatter) FormatLimits(stats engine.Stats, now time.Time) (string, error) {
	var sb strings.Builder
	fmt.Fprintf(&sb, "## Slack API budgets\n\n")
	fmt.Fprintf(&sb, "**Admission**: %s, queue depth %d\n\n", pauseLabel(stats, now), stats.QueueDepth)
	sb.WriteString("| Method | Budget | In Window | Queued |\n")
	sb.WriteString("|--------|--------|-----------|--------|\n")
	for _, m := range stats.Methods {
		fmt.Fprintf(&sb, "| %s | %s | %d | %d |\n",
			escapeMarkdownCell(m.Method), budgetLabel(m.Budget), m.InWindow, m.Queued)
	}
	return sb.String(), nil
}

// FormatMessages renders message log entries as Markdown.
func (f *MarkdownFormatter) FormatMessages(entries []store.MessageLogEntry) (string, error) {
	var sb strings.Builder
	sb.WriteString("## Message log\n\n")
	if len(entries) == 0 {
		sb.WriteString("_No logged messages._\n")
		return sb.String(), nil
	}

	sb.WriteString("| Time | Channel | Username | Text | Status |\n")
	sb.WriteString("|------|---------|----------|------|--------|\n")
	for _, e := range entries {
		fmt.Fprintf(&sb, "| %s | %s | %s | %s | %s |\n",
			e.Timestamp.UTC().Format(time.RFC3339),
			escapeMarkdownCell(e.Channel),
			escapeMarkdownCell(e.Username),
			escapeMarkdownCell(truncate(e.Text, tableTextWidth)),
			escapeMarkdownCell(deliveryLabel(e)),
		)
	}
	return sb.String(), nil
}

// FormatTools renders the tool catalogue as Markdown.
func (f *MarkdownFormatter) FormatTools(descriptors []tools.Descriptor) (string, error) {
	var sb strings.Builder
	sb.WriteString("## Tools\n\n")
	for _, d := range descriptors {
		fmt.Fprintf(&sb, "### %s\n\n%s\n\n", d.Name, d.Description)
		if len(d.Params) == 0 {
			continue
		}
		sb.WriteString("| Parameter | Type | Required | Description |\n")
		sb.WriteString("|-----------|------|----------|-------------|\n")
		for _, p := range d.Params {
			required := ""
			if p.Required {
				required = "yes"
			}
			fmt.Fprintf(&sb, "| %s | %s | %s | %s |\n",
				escapeMarkdownCell(p.Name), p.Type, required, escapeMarkdownCell(p.Description))
		}
		sb.WriteString("\n")
	}
	return sb.String(), nil
}

func escapeMarkdownCell(value string) string {
	return strings.ReplaceAll(value, "|", "\\|")
}
