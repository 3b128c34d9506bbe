// Package slack calls the Slack Web API through the rate-limited scheduler
// and the retrying transport.
package slack

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"strconv"
	"strings"

	"github.com/lvl0lvl/slack-mcp-identity-server/internal/core/engine"
	"github.com/lvl0lvl/slack-mcp-identity-server/internal/core/transport"
)

// DefaultBaseURL is the Slack Web API root.
const DefaultBaseURL = "https://slack.com/api"

const maxPageSize = 200

// ErrUserTokenRequired is returned by calls that need a user token when none
// is configured.
var ErrUserTokenRequired = errors.New("slack user token is required for this operation")

// Client issues Slack Web API calls. All calls are admitted by Scheduler.
type Client struct {
	BaseURL     string
	BotToken    string
	UserToken   string
	TeamID      string
	ChannelIDs  []string
	MaxAttempts int
	Transport   *transport.Transport
	Scheduler   *engine.Scheduler
}

type call struct {
	method   string
	priority int
	post     bool
	query    url.Values
	body     map[string]any
	token    string
}

func (c *Client) do(ctx context.Context, cl call) (*Response, error) {
	if c == nil || c.Scheduler == nil {
		return nil, errors.New("slack client is not configured")
	}
	token := cl.token
	if token == "" {
		token = c.BotToken
	}
	req, err := c.buildRequest(cl, token)
	if err != nil {
		return nil, err
	}

	tr := c.Transport
	if tr == nil {
		tr = &transport.Transport{}
	}

	resp, err := engine.Do(ctx, c.Scheduler, cl.method, cl.priority, func(actx context.Context) (*Response, error) {
		raw, err := tr.Perform(actx, req, c.MaxAttempts)
		if err != nil {
			return nil, err
		}
		return decodeResponse(raw.StatusCode, raw.Header, raw.Body)
	})
	if err != nil {
		return nil, fmt.Errorf("%s: %w", cl.method, err)
	}
	return resp, nil
}

func (c *Client) buildRequest(cl call, token string) (transport.Request, error) {
	base := strings.TrimRight(strings.TrimSpace(c.BaseURL), "/")
	if base == "" {
		base = DefaultBaseURL
	}
	endpoint := base + "/" + cl.method

	header := http.Header{}
	if token != "" {
		header.Set("Authorization", "Bearer "+token)
	}

	req := transport.Request{Method: http.MethodGet, URL: endpoint, Header: header}
	if len(cl.query) > 0 {
		req.URL = endpoint + "?" + cl.query.Encode()
	}
	if cl.post {
		req.Method = http.MethodPost
		header.Set("Content-Type", "application/json; charset=utf-8")
		if cl.body != nil {
			payload, err := json.Marshal(cl.body)
			if err != nil {
				return transport.Request{}, fmt.Errorf("%s: encode body: %w", cl.method, err)
			}
			req.Body = payload
		}
	}
	return req, nil
}

// AuthTest checks the bot token.
func (c *Client) AuthTest(ctx context.Context) (*Response, error) {
	return c.do(ctx, call{method: "auth.test", priority: engine.PriorityUrgent, post: true})
}

// ListChannels lists channels visible to the bot. When ChannelIDs is set only
// those channels are looked up, skipping archived or unknown ones.
func (c *Client) ListChannels(ctx context.Context, limit int, cursor string) (*Response, error) {
	if len(c.ChannelIDs) > 0 {
		return c.listPredefinedChannels(ctx)
	}

	query := url.Values{}
	query.Set("types", "public_channel,private_channel")
	query.Set("exclude_archived", "true")
	query.Set("limit", strconv.Itoa(pageSize(limit, 100)))
	if c.TeamID != "" {
		query.Set("team_id", c.TeamID)
	}
	if cursor != "" {
		query.Set("cursor", cursor)
	}
	return c.do(ctx, call{method: "conversations.list", priority: engine.PriorityNormal, query: query})
}

func (c *Client) listPredefinedChannels(ctx context.Context) (*Response, error) {
	channels := make([]any, 0, len(c.ChannelIDs))
	for _, id := range c.ChannelIDs {
		id = strings.TrimSpace(id)
		if id == "" {
			continue
		}
		resp, err := c.do(ctx, call{
			method:   "conversations.info",
			priority: engine.PriorityNormal,
			query:    url.Values{"channel": []string{id}},
		})
		if err != nil {
			return nil, err
		}
		channel := resp.Object("channel")
		if !resp.OK || channel == nil {
			continue
		}
		if archived, _ := channel["is_archived"].(bool); archived {
			continue
		}
		channels = append(channels, channel)
	}

	return &Response{
		OK:         true,
		StatusCode: http.StatusOK,
		Raw: map[string]any{
			"ok":                true,
			"channels":          channels,
			"response_metadata": map[string]any{"next_cursor": ""},
		},
	}, nil
}

// PostMessageOptions describes a chat.postMessage call.
type PostMessageOptions struct {
	Channel        string
	Text           string
	ThreadTS       string
	ReplyBroadcast bool
	Username       string
	IconEmoji      string
	IconURL        string
	Metadata       map[string]any
	Blocks         []any
	UnfurlLinks    *bool
	UnfurlMedia    *bool
}

// PostMessage posts a message, optionally under an identity override.
func (c *Client) PostMessage(ctx context.Context, opts PostMessageOptions) (*Response, error) {
	body := map[string]any{
		"channel": opts.Channel,
		"text":    opts.Text,
	}
	setString(body, "thread_ts", opts.ThreadTS)
	setString(body, "username", opts.Username)
	setString(body, "icon_emoji", opts.IconEmoji)
	setString(body, "icon_url", opts.IconURL)
	if opts.ReplyBroadcast {
		body["reply_broadcast"] = true
	}
	if opts.Metadata != nil {
		body["metadata"] = opts.Metadata
	}
	if len(opts.Blocks) > 0 {
		body["blocks"] = opts.Blocks
	}
	if opts.UnfurlLinks != nil {
		body["unfurl_links"] = *opts.UnfurlLinks
	}
	if opts.UnfurlMedia != nil {
		body["unfurl_media"] = *opts.UnfurlMedia
	}
	return c.do(ctx, call{method: "chat.postMessage", priority: engine.PriorityHigh, post: true, body: body})
}

// PostReply posts text into the thread rooted at threadTS.
func (c *Client) PostReply(ctx context.Context, channel, threadTS, text string, identity PostMessageOptions) (*Response, error) {
	identity.Channel = channel
	identity.ThreadTS = threadTS
	identity.Text = text
	return c.PostMessage(ctx, identity)
}

// AddReaction adds an emoji reaction to a message.
func (c *Client) AddReaction(ctx context.Context, channel, timestamp, reaction string) (*Response, error) {
	return c.reaction(ctx, "reactions.add", channel, timestamp, reaction)
}

// RemoveReaction removes an emoji reaction from a message.
func (c *Client) RemoveReaction(ctx context.Context, channel, timestamp, reaction string) (*Response, error) {
	return c.reaction(ctx, "reactions.remove", channel, timestamp, reaction)
}

func (c *Client) reaction(ctx context.Context, method, channel, timestamp, reaction string) (*Response, error) {
	return c.do(ctx, call{method: method, priority: engine.PriorityNormal, post: true, body: map[string]any{
		"channel":   channel,
		"timestamp": timestamp,
		"name":      strings.Trim(reaction, ":"),
	}})
}

// ChannelHistory returns recent messages from a channel.
func (c *Client) ChannelHistory(ctx context.Context, channel string, limit int) (*Response, error) {
	if limit <= 0 {
		limit = 10
	}
	query := url.Values{}
	query.Set("channel", channel)
	query.Set("limit", strconv.Itoa(limit))
	return c.do(ctx, call{method: "conversations.history", priority: engine.PriorityNormal, query: query})
}

// ThreadReplies returns every message in a thread.
func (c *Client) ThreadReplies(ctx context.Context, channel, threadTS string) (*Response, error) {
	query := url.Values{}
	query.Set("channel", channel)
	query.Set("ts", threadTS)
	return c.do(ctx, call{method: "conversations.replies", priority: engine.PriorityNormal, query: query})
}

// Users lists workspace members.
func (c *Client) Users(ctx context.Context, limit int, cursor string) (*Response, error) {
	query := url.Values{}
	query.Set("limit", strconv.Itoa(pageSize(limit, 100)))
	if c.TeamID != "" {
		query.Set("team_id", c.TeamID)
	}
	if cursor != "" {
		query.Set("cursor", cursor)
	}
	return c.do(ctx, call{method: "users.list", priority: engine.PriorityNormal, query: query})
}

// UserProfile returns a member's profile including custom field labels.
func (c *Client) UserProfile(ctx context.Context, user string) (*Response, error) {
	query := url.Values{}
	query.Set("user", user)
	query.Set("include_labels", "true")
	return c.do(ctx, call{method: "users.profile.get", priority: engine.PriorityNormal, query: query})
}

// CreateChannel creates a public or private channel.
func (c *Client) CreateChannel(ctx context.Context, name string, private bool) (*Response, error) {
	return c.do(ctx, call{method: "conversations.create", priority: engine.PriorityNormal, post: true, body: map[string]any{
		"name":       name,
		"is_private": private,
	}})
}

// ArchiveChannel archives a channel.
func (c *Client) ArchiveChannel(ctx context.Context, channel string) (*Response, error) {
	return c.do(ctx, call{method: "conversations.archive", priority: engine.PriorityNormal, post: true, body: map[string]any{
		"channel": channel,
	}})
}

// SetTopic sets a channel topic.
func (c *Client) SetTopic(ctx context.Context, channel, topic string) (*Response, error) {
	return c.do(ctx, call{method: "conversations.setTopic", priority: engine.PriorityNormal, post: true, body: map[string]any{
		"channel": channel,
		"topic":   topic,
	}})
}

// SetPurpose sets a channel purpose.
func (c *Client) SetPurpose(ctx context.Context, channel, purpose string) (*Response, error) {
	return c.do(ctx, call{method: "conversations.setPurpose", priority: engine.PriorityNormal, post: true, body: map[string]any{
		"channel": channel,
		"purpose": purpose,
	}})
}

// PinMessage pins a message.
func (c *Client) PinMessage(ctx context.Context, channel, timestamp string) (*Response, error) {
	return c.pin(ctx, "pins.add", channel, timestamp)
}

// UnpinMessage removes a pin.
func (c *Client) UnpinMessage(ctx context.Context, channel, timestamp string) (*Response, error) {
	return c.pin(ctx, "pins.remove", channel, timestamp)
}

func (c *Client) pin(ctx context.Context, method, channel, timestamp string) (*Response, error) {
	return c.do(ctx, call{method: method, priority: engine.PriorityNormal, post: true, body: map[string]any{
		"channel":   channel,
		"timestamp": timestamp,
	}})
}

// SearchMessages runs a message search. Slack only allows this with a user token.
func (c *Client) SearchMessages(ctx context.Context, query string, count int) (*Response, error) {
	if strings.TrimSpace(c.UserToken) == "" {
		return nil, ErrUserTokenRequired
	}
	if count <= 0 {
		count = 20
	}
	values := url.Values{}
	values.Set("query", query)
	values.Set("count", strconv.Itoa(min(count, 100)))
	return c.do(ctx, call{method: "search.messages", priority: engine.PriorityNormal, query: values, token: c.UserToken})
}

func pageSize(limit, fallback int) int {
	if limit <= 0 {
		limit = fallback
	}
	return min(limit, maxPageSize)
}

func setString(body map[string]any, key, value string) {
	if value != "" {
		body[key] = value
	}
}
