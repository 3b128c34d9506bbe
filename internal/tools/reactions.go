package tools

import (
	"context"

	"github.com/lvl0lvl/slack-mcp-identity-server/internal/slack"
)

type messageAction func(ctx context.Context, channel, timestamp string, extra string) (*slack.Response, error)

func (r *Registry) registerReactionTools() {
	r.register(Descriptor{
		Name:        "slack_add_reaction",
		Title:       "Add Slack Reaction",
		Description: "Add a reaction emoji to a message",
		Params: []Param{
			{Name: "channel_id", Type: "string", Description: "The ID of the channel containing the message", Required: true},
			{Name: "timestamp", Type: "string", Description: "The timestamp of the message to react to", Required: true},
			{Name: "reaction", Type: "string", Description: "The name of the emoji reaction (without ::)", Required: true},
		},
	}, messageHandler("reaction", func(ctx context.Context, channel, timestamp, reaction string) (*slack.Response, error) {
		return r.client.AddReaction(ctx, channel, timestamp, reaction)
	}))

	r.register(Descriptor{
		Name:        "slack_remove_reaction",
		Title:       "Remove Slack Reaction",
		Description: "Remove an emoji reaction from a message",
		Params: []Param{
			{Name: "channel_id", Type: "string", Description: "Channel ID containing the message", Required: true},
			{Name: "timestamp", Type: "string", Description: "Message timestamp", Required: true},
			{Name: "reaction", Type: "string", Description: "Emoji name (without colons)", Required: true},
		},
	}, messageHandler("reaction", func(ctx context.Context, channel, timestamp, reaction string) (*slack.Response, error) {
		return r.client.RemoveReaction(ctx, channel, timestamp, reaction)
	}))
}

// messageHandler builds a handler for tools addressing one message by
// channel_id and timestamp. extraField names an additional required string
// argument, or is empty.
func messageHandler(extraField string, fn messageAction) Handler {
	return func(ctx context.Context, args Args) (any, error) {
		channel, err := args.requiredString("channel_id")
		if err != nil {
			return nil, err
		}
		timestamp, err := args.requiredString("timestamp")
		if err != nil {
			return nil, err
		}
		var extra string
		if extraField != "" {
			if extra, err = args.requiredString(extraField); err != nil {
				return nil, err
			}
		}
		return fn(ctx, channel, timestamp, extra)
	}
}
