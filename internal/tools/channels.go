package tools

import (
	"context"
	"regexp"
	"strings"
)

const (
	maxChannelNameLength = 80
	maxTopicLength       = 250
)

var channelNamePattern = regexp.MustCompile(`^[a-z0-9][a-z0-9_-]*$`)

func validateChannelName(name string) error {
	if len(name) > maxChannelNameLength {
		return invalid("name", "must be at most %d characters", maxChannelNameLength)
	}
	if !channelNamePattern.MatchString(name) {
		return invalid("name", "must be lowercase letters, numbers, hyphens or underscores without spaces")
	}
	return nil
}

func (r *Registry) registerChannelTools() {
	r.register(Descriptor{
		Name:        "slack_list_channels",
		Title:       "List Slack Channels",
		Description: "List public and private channels that the bot is a member of, or pre-defined channels in the workspace with pagination",
		Params: []Param{
			{Name: "limit", Type: "number", Description: "Maximum number of channels to return (default 100, max 200)", Default: 100},
			{Name: "cursor", Type: "string", Description: "Pagination cursor for next page of results"},
		},
	}, func(ctx context.Context, args Args) (any, error) {
		limit, err := args.optionalInt("limit", 100)
		if err != nil {
			return nil, err
		}
		cursor, err := args.optionalString("cursor")
		if err != nil {
			return nil, err
		}
		return r.client.ListChannels(ctx, limit, cursor)
	})

	r.register(Descriptor{
		Name:        "slack_create_channel",
		Title:       "Create Slack Channel",
		Description: "Create a new public or private Slack channel",
		Params: []Param{
			{Name: "name", Type: "string", Description: "Channel name (lowercase, no spaces, max 80 chars). Use hyphens for separators.", Required: true},
			{Name: "is_private", Type: "boolean", Description: "Create as private channel", Default: false},
			{Name: "description", Type: "string", Description: "Channel description/purpose"},
		},
	}, func(ctx context.Context, args Args) (any, error) {
		name, err := args.requiredString("name")
		if err != nil {
			return nil, err
		}
		name = strings.TrimSpace(name)
		if err := validateChannelName(name); err != nil {
			return nil, err
		}
		private, err := args.optionalBool("is_private", false)
		if err != nil {
			return nil, err
		}
		description, err := args.optionalString("description")
		if err != nil {
			return nil, err
		}
		if err := maxLength("description", description, maxTopicLength); err != nil {
			return nil, err
		}

		resp, err := r.client.CreateChannel(ctx, name, private)
		if err != nil {
			return nil, err
		}
		if id, _ := resp.Object("channel")["id"].(string); resp.OK && description != "" && id != "" {
			if _, err := r.client.SetPurpose(ctx, id, description); err != nil {
				return nil, err
			}
		}
		return resp, nil
	})

	r.register(Descriptor{
		Name:        "slack_archive_channel",
		Title:       "Archive Slack Channel",
		Description: "Archive a Slack channel",
		Params: []Param{
			{Name: "channel_id", Type: "string", Description: "Channel ID to archive", Required: true},
		},
	}, func(ctx context.Context, args Args) (any, error) {
		channel, err := args.requiredString("channel_id")
		if err != nil {
			return nil, err
		}
		return r.client.ArchiveChannel(ctx, channel)
	})

	r.register(Descriptor{
		Name:        "slack_set_channel_topic",
		Title:       "Set Channel Topic",
		Description: "Set the topic of a Slack channel (max 250 characters)",
		Params: []Param{
			{Name: "channel_id", Type: "string", Description: "Channel ID", Required: true},
			{Name: "topic", Type: "string", Description: "New topic text (max 250 chars, no formatting)", Required: true},
		},
	}, func(ctx context.Context, args Args) (any, error) {
		channel, err := args.requiredString("channel_id")
		if err != nil {
			return nil, err
		}
		topic, err := args.optionalString("topic")
		if err != nil {
			return nil, err
		}
		if !args.has("topic") {
			return nil, invalid("topic", "is required")
		}
		if err := maxLength("topic", topic, maxTopicLength); err != nil {
			return nil, err
		}
		return r.client.SetTopic(ctx, channel, topic)
	})

	r.register(Descriptor{
		Name:        "slack_set_channel_purpose",
		Title:       "Set Channel Purpose",
		Description: "Set the purpose/description of a Slack channel (max 250 characters)",
		Params: []Param{
			{Name: "channel_id", Type: "string", Description: "Channel ID", Required: true},
			{Name: "purpose", Type: "string", Description: "New purpose text (max 250 chars)", Required: true},
		},
	}, func(ctx context.Context, args Args) (any, error) {
		channel, err := args.requiredString("channel_id")
		if err != nil {
			return nil, err
		}
		purpose, err := args.optionalString("purpose")
		if err != nil {
			return nil, err
		}
		if !args.has("purpose") {
			return nil, invalid("purpose", "is required")
		}
		if err := maxLength("purpose", purpose, maxTopicLength); err != nil {
			return nil, err
		}
		return r.client.SetPurpose(ctx, channel, purpose)
	})
}
