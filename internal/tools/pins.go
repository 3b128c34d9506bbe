package tools

import (
	"context"

	"github.com/lvl0lvl/slack-mcp-identity-server/internal/slack"
)

func (r *Registry) registerPinTools() {
	r.register(Descriptor{
		Name:        "slack_pin_message",
		Title:       "Pin Slack Message",
		Description: "Pin a message in a channel for easy reference",
		Params: []Param{
			{Name: "channel_id", Type: "string", Description: "Channel ID", Required: true},
			{Name: "timestamp", Type: "string", Description: "Message timestamp to pin", Required: true},
		},
	}, messageHandler("", func(ctx context.Context, channel, timestamp, _ string) (*slack.Response, error) {
		return r.client.PinMessage(ctx, channel, timestamp)
	}))

	r.register(Descriptor{
		Name:        "slack_unpin_message",
		Title:       "Unpin Slack Message",
		Description: "Remove a pin from a message",
		Params: []Param{
			{Name: "channel_id", Type: "string", Description: "Channel ID", Required: true},
			{Name: "timestamp", Type: "string", Description: "Message timestamp to unpin", Required: true},
		},
	}, messageHandler("", func(ctx context.Context, channel, timestamp, _ string) (*slack.Response, error) {
		return r.client.UnpinMessage(ctx, channel, timestamp)
	}))
}
