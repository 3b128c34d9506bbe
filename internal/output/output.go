// Package output renders scheduler, message log, and tool listings for the
// command line.
package output

import (
	"fmt"
	"strings"
	"time"

	"github.com/lvl0lvl/slack-mcp-identity-server/internal/core/engine"
	"github.com/lvl0lvl/slack-mcp-identity-server/internal/core/store"
	"github.com/lvl0lvl/slack-mcp-identity-server/internal/tools"
)

// Format represents an output format.
type Format string

const (
	FormatTable    Format = "table"
	FormatJSON     Format = "json"
	FormatMarkdown Format = "markdown"
)

// Formatter renders command results.
type Formatter interface {
	FormatLimits(stats engine.Stats, now time.Time) (string, error)
	FormatMessages(entries []store.MessageLogEntry) (string, error)
	FormatTools(descriptors []tools.Descriptor) (string, error)
}

// ParseFormat validates and normalizes a format string.
func ParseFormat(value string) (Format, error) {
	normalized := strings.ToLower(strings.TrimSpace(value))
	switch normalized {
	case "", string(FormatTable):
		return FormatTable, nil
	case string(FormatJSON):
		return FormatJSON, nil
	case string(FormatMarkdown), "md":
		return FormatMarkdown, nil
	default:
		return "", fmt.Errorf("unsupported output format: %s", value)
	}
}

// NewFormatter returns a formatter for the requested format.
func NewFormatter(format Format) Formatter {
	switch format {
	case FormatJSON:
		return &JSONFormatter{Indent: true}
	case FormatMarkdown:
		return &MarkdownFormatter{}
	default:
		return &TableFormatter{}
	}
}

func budgetLabel(budget int) string {
	if budget <= 0 {
		return "-"
	}
	return fmt.Sprintf("%d/min", budget)
}

func pauseLabel(stats engine.Stats, now time.Time) string {
	if !stats.Paused(now) {
		return "admitting"
	}
	return fmt.Sprintf("paused for %s", stats.PausedUntil.Sub(now).Round(time.Second))
}

func deliveryLabel(entry store.MessageLogEntry) string {
	if entry.Delivered {
		return "delivered"
	}
	if entry.Error != "" {
		return "failed: " + entry.Error
	}
	return "failed"
}

func paramsLabel(params []tools.Param) string {
	names := make([]string, 0, len(params))
	for _, p := range params {
		name := p.Name
		if p.Required {
			name += "*"
		}
		names = append(names, name)
	}
	return strings.Join(names, ", ")
}

func truncate(value string, limit int) string {
	value = strings.Join(strings.Fields(value), " ")
	runes := []rune(value)
	if len(runes) <= limit {
		return value
	}
	return string(runes[:limit-1]) + "…"
}
