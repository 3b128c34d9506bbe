// Package tools exposes Slack operations as named tools with validated
// arguments.
package tools

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"time"

	"go.uber.org/zap"

	"github.com/lvl0lvl/slack-mcp-identity-server/internal/core"
	"github.com/lvl0lvl/slack-mcp-identity-server/internal/core/clock"
	"github.com/lvl0lvl/slack-mcp-identity-server/internal/core/store"
	"github.com/lvl0lvl/slack-mcp-identity-server/internal/identity"
	"github.com/lvl0lvl/slack-mcp-identity-server/internal/slack"
)

// ErrUnknownTool is returned by Call for unregistered names.
var ErrUnknownTool = errors.New("unknown tool")

// SlackAPI is the subset of the Slack client the tools call.
type SlackAPI interface {
	ListChannels(ctx context.Context, limit int, cursor string) (*slack.Response, error)
	CreateChannel(ctx context.Context, name string, private bool) (*slack.Response, error)
	ArchiveChannel(ctx context.Context, channel string) (*slack.Response, error)
	SetTopic(ctx context.Context, channel, topic string) (*slack.Response, error)
	SetPurpose(ctx context.Context, channel, purpose string) (*slack.Response, error)
	PostMessage(ctx context.Context, opts slack.PostMessageOptions) (*slack.Response, error)
	ChannelHistory(ctx context.Context, channel string, limit int) (*slack.Response, error)
	ThreadReplies(ctx context.Context, channel, threadTS string) (*slack.Response, error)
	AddReaction(ctx context.Context, channel, timestamp, reaction string) (*slack.Response, error)
	RemoveReaction(ctx context.Context, channel, timestamp, reaction string) (*slack.Response, error)
	PinMessage(ctx context.Context, channel, timestamp string) (*slack.Response, error)
	UnpinMessage(ctx context.Context, channel, timestamp string) (*slack.Response, error)
	Users(ctx context.Context, limit int, cursor string) (*slack.Response, error)
	UserProfile(ctx context.Context, user string) (*slack.Response, error)
	SearchMessages(ctx context.Context, query string, count int) (*slack.Response, error)
}

// MessageLog records posting attempts.
type MessageLog interface {
	LogMessage(ctx context.Context, entry store.MessageLogEntry) (int64, error)
}

// Param documents one tool argument.
type Param struct {
	Name        string `json:"name"`
	Type        string `json:"type"`
	Description string `json:"description"`
	Required    bool   `json:"required,omitempty"`
	Default     any    `json:"default,omitempty"`
}

// Descriptor is the public description of a tool.
type Descriptor struct {
	Name        string  `json:"name"`
	Title       string  `json:"title"`
	Description string  `json:"description"`
	Params      []Param `json:"params"`
}

// Handler executes a tool.
type Handler func(ctx context.Context, args Args) (any, error)

type tool struct {
	Descriptor
	handler Handler
}

// Registry holds the tool set bound to one Slack client.
type Registry struct {
	client   SlackAPI
	agents   *identity.AgentConfig
	messages MessageLog
	logger   core.Logger
	clock    clock.Clock
	tools    map[string]tool
}

// Option configures a Registry.
type Option func(*Registry)

// WithAgentConfig sets the identity config used by posting tools.
func WithAgentConfig(cfg *identity.AgentConfig) Option {
	return func(r *Registry) { r.agents = cfg }
}

// WithMessageLog records every posting attempt to log.
func WithMessageLog(log MessageLog) Option {
	return func(r *Registry) { r.messages = log }
}

// WithLogger sets the diagnostic logger.
func WithLogger(l core.Logger) Option {
	return func(r *Registry) { r.logger = core.LoggerOrNop(l) }
}

// WithClock sets the clock used to timestamp log entries.
func WithClock(c clock.Clock) Option {
	return func(r *Registry) { r.clock = clock.OrSystem(c) }
}

// NewRegistry registers every Slack tool against client.
func NewRegistry(client SlackAPI, opts ...Option) *Registry {
	r := &Registry{
		client: client,
		logger: core.LoggerOrNop(nil),
		clock:  clock.System{},
		tools:  make(map[string]tool),
	}
	for _, opt := range opts {
		opt(r)
	}
	r.registerChannelTools()
	r.registerMessageTools()
	r.registerReactionTools()
	r.registerPinTools()
	r.registerUserTools()
	r.registerSearchTools()
	return r
}

func (r *Registry) register(d Descriptor, h Handler) {
	if d.Params == nil {
		d.Params = []Param{}
	}
	r.tools[d.Name] = tool{Descriptor: d, handler: h}
}

// List returns all tool descriptors sorted by name.
func (r *Registry) List() []Descriptor {
	out := make([]Descriptor, 0, len(r.tools))
	for _, t := range r.tools {
		out = append(out, t.Descriptor)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Name < out[j].Name })
	return out
}

// Lookup returns the descriptor for name.
func (r *Registry) Lookup(name string) (Descriptor, bool) {
	t, ok := r.tools[name]
	return t.Descriptor, ok
}

// Call validates args and runs the named tool.
func (r *Registry) Call(ctx context.Context, name string, args Args) (any, error) {
	t, ok := r.tools[name]
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrUnknownTool, name)
	}
	if args == nil {
		args = Args{}
	}

	start := time.Now()
	result, err := t.handler(ctx, args)
	fields := []zap.Field{zap.String("tool", name), zap.Duration("duration", time.Since(start))}
	if err != nil {
		r.logger.Debug("tool call failed", append(fields, zap.Error(err))...)
		return nil, err
	}
	r.logger.Debug("tool call completed", fields...)
	return result, nil
}
