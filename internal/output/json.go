package output

import (
	"encoding/json"
	"time"

	"github.com/lvl0lvl/slack-mcp-identity-server/internal/core/engine"
	"github.com/lvl0lvl/slack-mcp-identity-server/internal/core/store"
	"github.com/lvl0lvl/slack-mcp-identity-server/internal/tools"
)

// JSONFormatter renders results as JSON.
type JSONFormatter struct {
	Indent bool
}

type limitsDocument struct {
	engine.Stats
	Paused bool `json:"paused"`
}

// FormatLimits renders scheduler stats as JSON.
func (f *JSONFormatter) FormatLimits(stats engine.Stats, now time.Time) (string, error) {
	return f.marshal(limitsDocument{Stats: stats, Paused: stats.Paused(now)})
}

// FormatMessages renders message log entries as a JSON array.
func (f *JSONFormatter) FormatMessages(entries []store.MessageLogEntry) (string, error) {
	if entries == nil {
		entries = []store.MessageLogEntry{}
	}
	return f.marshal(entries)
}

// FormatTools renders tool descriptors as a JSON array.
func (f *JSONFormatter) FormatTools(descriptors []tools.Descriptor) (string, error) {
	return f.marshal(descriptors)
}

func (f *JSONFormatter) marshal(v any) (string, error) {
	var (
		data []byte
		err  error
	)

	if f.Indent {
		data, err = json.MarshalIndent(v, "", "  ")
	} else {
		data, err = json.Marshal(v)
	}
	if err != nil {
		return "", err
	}

	return string(data), nil
}
