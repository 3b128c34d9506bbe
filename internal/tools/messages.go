package tools

import (
	"context"

	"go.uber.org/zap"

	"github.com/lvl0lvl/slack-mcp-identity-server/internal/core/store"
	"github.com/lvl0lvl/slack-mcp-identity-server/internal/identity"
	"github.com/lvl0lvl/slack-mcp-identity-server/internal/slack"
)

const threadTSHelp = "The timestamp of the parent message in the format '1234567890.123456'. Timestamps in the format without the period can be converted by adding the period such that 6 numbers come after it."

var identityParams = []Param{
	{Name: "username", Type: "string", Description: "Display name to post as (overrides agent_id)"},
	{Name: "icon_emoji", Type: "string", Description: "Emoji avatar, e.g. :robot_face:"},
	{Name: "icon_url", Type: "string", Description: "Image URL avatar"},
	{Name: "agent_id", Type: "string", Description: "Agent whose configured identity to post as"},
}

func identityArgs(args Args) (identity.Args, error) {
	var out identity.Args
	var err error
	if out.Username, err = args.optionalString("username"); err != nil {
		return out, err
	}
	if out.IconEmoji, err = args.optionalString("icon_emoji"); err != nil {
		return out, err
	}
	if out.IconURL, err = args.optionalString("icon_url"); err != nil {
		return out, err
	}
	if out.AgentID, err = args.optionalString("agent_id"); err != nil {
		return out, err
	}
	return out, nil
}

func (r *Registry) registerMessageTools() {
	r.register(Descriptor{
		Name:        "slack_post_message",
		Title:       "Post Slack Message",
		Description: "Post a new message to a Slack channel or direct message to user",
		Params: append([]Param{
			{Name: "channel_id", Type: "string", Description: "The ID of the channel or user to post to", Required: true},
			{Name: "text", Type: "string", Description: "The message text to post", Required: true},
		}, identityParams...),
	}, func(ctx context.Context, args Args) (any, error) {
		channel, err := args.requiredString("channel_id")
		if err != nil {
			return nil, err
		}
		text, err := args.requiredString("text")
		if err != nil {
			return nil, err
		}
		ident, err := identityArgs(args)
		if err != nil {
			return nil, err
		}
		return r.post(ctx, slack.PostMessageOptions{Channel: channel, Text: text}, ident)
	})

	r.register(Descriptor{
		Name:        "slack_reply_to_thread",
		Title:       "Reply to Slack Thread",
		Description: "Reply to a specific message thread in Slack",
		Params: append([]Param{
			{Name: "channel_id", Type: "string", Description: "The ID of the channel containing the thread", Required: true},
			{Name: "thread_ts", Type: "string", Description: threadTSHelp, Required: true},
			{Name: "text", Type: "string", Description: "The reply text", Required: true},
			{Name: "reply_broadcast", Type: "boolean", Description: "Also send the reply to the channel", Default: false},
		}, identityParams...),
	}, func(ctx context.Context, args Args) (any, error) {
		channel, err := args.requiredString("channel_id")
		if err != nil {
			return nil, err
		}
		threadTS, err := args.requiredString("thread_ts")
		if err != nil {
			return nil, err
		}
		text, err := args.requiredString("text")
		if err != nil {
			return nil, err
		}
		broadcast, err := args.optionalBool("reply_broadcast", false)
		if err != nil {
			return nil, err
		}
		ident, err := identityArgs(args)
		if err != nil {
			return nil, err
		}
		return r.post(ctx, slack.PostMessageOptions{
			Channel:        channel,
			Text:           text,
			ThreadTS:       threadTS,
			ReplyBroadcast: broadcast,
		}, ident)
	})

	r.register(Descriptor{
		Name:        "slack_get_channel_history",
		Title:       "Get Slack Channel History",
		Description: "Get recent messages from a channel",
		Params: []Param{
			{Name: "channel_id", Type: "string", Description: "The ID of the channel", Required: true},
			{Name: "limit", Type: "number", Description: "Number of messages to retrieve (default 10)", Default: 10},
		},
	}, func(ctx context.Context, args Args) (any, error) {
		channel, err := args.requiredString("channel_id")
		if err != nil {
			return nil, err
		}
		limit, err := args.optionalInt("limit", 10)
		if err != nil {
			return nil, err
		}
		return r.client.ChannelHistory(ctx, channel, limit)
	})

	r.register(Descriptor{
		Name:        "slack_get_thread_replies",
		Title:       "Get Slack Thread Replies",
		Description: "Get all replies in a message thread",
		Params: []Param{
			{Name: "channel_id", Type: "string", Description: "The ID of the channel containing the thread", Required: true},
			{Name: "thread_ts", Type: "string", Description: threadTSHelp, Required: true},
		},
	}, func(ctx context.Context, args Args) (any, error) {
		channel, err := args.requiredString("channel_id")
		if err != nil {
			return nil, err
		}
		threadTS, err := args.requiredString("thread_ts")
		if err != nil {
			return nil, err
		}
		return r.client.ThreadReplies(ctx, channel, threadTS)
	})
}

// post resolves the identity, posts, and records the attempt. A failure to
// record is logged and never fails the post.
func (r *Registry) post(ctx context.Context, opts slack.PostMessageOptions, args identity.Args) (*slack.Response, error) {
	if ident := identity.Resolve(args, r.agents); ident != nil {
		opts.Username = ident.Username
		opts.IconEmoji = ident.IconEmoji
		opts.IconURL = ident.IconURL
	}

	resp, err := r.client.PostMessage(ctx, opts)

	entry := store.MessageLogEntry{
		Timestamp: r.clock.Now(),
		Channel:   opts.Channel,
		Username:  opts.Username,
		IconEmoji: opts.IconEmoji,
		Text:      opts.Text,
		ThreadTS:  opts.ThreadTS,
	}
	switch {
	case err != nil:
		entry.Error = err.Error()
	case !resp.OK:
		entry.Error = resp.Error
	default:
		entry.Delivered = true
		entry.SlackTS = resp.String("ts")
	}
	// The entry must land even when the caller's deadline already passed.
	r.record(context.WithoutCancel(ctx), entry)

	return resp, err
}

func (r *Registry) record(ctx context.Context, entry store.MessageLogEntry) {
	if r.messages == nil {
		return
	}
	if _, err := r.messages.LogMessage(ctx, entry); err != nil {
		r.logger.Warn("failed to write message log",
			zap.String("channel", entry.Channel),
			zap.Error(err))
	}
}
