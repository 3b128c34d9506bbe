package slack

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"net/url"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/lvl0lvl/slack-mcp-identity-server/internal/core/clock"
	"github.com/lvl0lvl/slack-mcp-identity-server/internal/core/engine"
	"github.com/lvl0lvl/slack-mcp-identity-server/internal/core/transport"
)

type recordedRequest struct {
	Method string
	Path   string
	Query  url.Values
	Auth   string
	Body   map[string]any
}

type fakeSlack struct {
	mu       sync.Mutex
	requests []recordedRequest
	handle   func(w http.ResponseWriter, r recordedRequest)
}

func (f *fakeSlack) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	rec := recordedRequest{
		Method: r.Method,
		Path:   strings.TrimPrefix(r.URL.Path, "/api/"),
		Query:  r.URL.Query(),
		Auth:   r.Header.Get("Authorization"),
	}
	if r.Method == http.MethodPost {
		_ = json.NewDecoder(r.Body).Decode(&rec.Body)
	}
	f.mu.Lock()
	f.requests = append(f.requests, rec)
	f.mu.Unlock()

	if f.handle != nil {
		f.handle(w, rec)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"ok": true})
}

func (f *fakeSlack) recorded() []recordedRequest {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]recordedRequest(nil), f.requests...)
}

func writeJSON(w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(payload)
}

func newTestClient(t *testing.T, fake *fakeSlack, opts ...engine.Option) *Client {
	t.Helper()
	server := httptest.NewServer(fake)
	t.Cleanup(server.Close)

	scheduler := engine.NewScheduler(opts...)
	t.Cleanup(scheduler.Close)

	return &Client{
		BaseURL:   server.URL + "/api",
		BotToken:  "xoxb-bot",
		Transport: &transport.Transport{Client: server.Client(), BaseDelay: time.Millisecond},
		Scheduler: scheduler,
	}
}

func TestAuthTest(t *testing.T) {
	fake := &fakeSlack{handle: func(w http.ResponseWriter, r recordedRequest) {
		writeJSON(w, http.StatusOK, map[string]any{"ok": true, "user_id": "U1", "team": "Acme"})
	}}
	client := newTestClient(t, fake)

	resp, err := client.AuthTest(context.Background())
	require.NoError(t, err)
	require.True(t, resp.OK)
	require.Equal(t, "Acme", resp.String("team"))

	reqs := fake.recorded()
	require.Len(t, reqs, 1)
	require.Equal(t, http.MethodPost, reqs[0].Method)
	require.Equal(t, "auth.test", reqs[0].Path)
	require.Equal(t, "Bearer xoxb-bot", reqs[0].Auth)
}

func TestPostMessageSendsIdentity(t *testing.T) {
	fake := &fakeSlack{handle: func(w http.ResponseWriter, r recordedRequest) {
		writeJSON(w, http.StatusOK, map[string]any{"ok": true, "ts": "1700000000.000100"})
	}}
	client := newTestClient(t, fake)

	unfurl := false
	resp, err := client.PostMessage(context.Background(), PostMessageOptions{
		Channel:     "C1",
		Text:        "deploy finished",
		ThreadTS:    "1700000000.000001",
		Username:    "Release Bot",
		IconEmoji:   ":rocket:",
		UnfurlLinks: &unfurl,
	})
	require.NoError(t, err)
	require.Equal(t, "1700000000.000100", resp.String("ts"))

	body := fake.recorded()[0].Body
	require.Equal(t, "C1", body["channel"])
	require.Equal(t, "deploy finished", body["text"])
	require.Equal(t, "1700000000.000001", body["thread_ts"])
	require.Equal(t, "Release Bot", body["username"])
	require.Equal(t, ":rocket:", body["icon_emoji"])
	require.Equal(t, false, body["unfurl_links"])
	require.NotContains(t, body, "icon_url")
	require.NotContains(t, body, "reply_broadcast")
}

func TestPostReplyTargetsThread(t *testing.T) {
	fake := &fakeSlack{}
	client := newTestClient(t, fake)

	_, err := client.PostReply(context.Background(), "C1", "1700000000.000001", "on it", PostMessageOptions{Username: "Ops"})
	require.NoError(t, err)

	body := fake.recorded()[0].Body
	require.Equal(t, "1700000000.000001", body["thread_ts"])
	require.Equal(t, "on it", body["text"])
	require.Equal(t, "Ops", body["username"])
}

func TestListChannelsQuery(t *testing.T) {
	fake := &fakeSlack{}
	client := newTestClient(t, fake)
	client.TeamID = "T1"

	_, err := client.ListChannels(context.Background(), 500, "next")
	require.NoError(t, err)

	req := fake.recorded()[0]
	require.Equal(t, http.MethodGet, req.Method)
	require.Equal(t, "conversations.list", req.Path)
	require.Equal(t, "200", req.Query.Get("limit"))
	require.Equal(t, "T1", req.Query.Get("team_id"))
	require.Equal(t, "next", req.Query.Get("cursor"))
	require.Equal(t, "true", req.Query.Get("exclude_archived"))
}

func TestListChannelsPredefined(t *testing.T) {
	fake := &fakeSlack{handle: func(w http.ResponseWriter, r recordedRequest) {
		switch r.Query.Get("channel") {
		case "C1":
			writeJSON(w, http.StatusOK, map[string]any{"ok": true, "channel": map[string]any{"id": "C1", "name": "general"}})
		case "C2":
			writeJSON(w, http.StatusOK, map[string]any{"ok": true, "channel": map[string]any{"id": "C2", "is_archived": true}})
		default:
			writeJSON(w, http.StatusOK, map[string]any{"ok": false, "error": "channel_not_found"})
		}
	}}
	client := newTestClient(t, fake)
	client.ChannelIDs = []string{"C1", " C2", "C3", ""}

	resp, err := client.ListChannels(context.Background(), 100, "")
	require.NoError(t, err)
	require.True(t, resp.OK)

	channels, ok := resp.Raw["channels"].([]any)
	require.True(t, ok)
	require.Len(t, channels, 1)
	require.Equal(t, "C1", channels[0].(map[string]any)["id"])

	reqs := fake.recorded()
	require.Len(t, reqs, 3)
	for _, req := range reqs {
		require.Equal(t, "conversations.info", req.Path)
	}
}

func TestRateLimitedCallRetriesAfterPause(t *testing.T) {
	var mu sync.Mutex
	calls := 0
	fake := &fakeSlack{handle: func(w http.ResponseWriter, r recordedRequest) {
		mu.Lock()
		calls++
		n := calls
		mu.Unlock()
		if n == 1 {
			w.Header().Set("Retry-After", "2")
			writeJSON(w, http.StatusTooManyRequests, map[string]any{"ok": false, "error": "ratelimited"})
			return
		}
		writeJSON(w, http.StatusOK, map[string]any{"ok": true, "messages": []any{}})
	}}
	fc := clock.NewFake(time.Date(2025, 1, 1, 0, 0, 0, 0, time.UTC))
	client := newTestClient(t, fake, engine.WithClock(fc))

	type outcome struct {
		resp *Response
		err  error
	}
	done := make(chan outcome, 1)
	go func() {
		resp, err := client.ChannelHistory(context.Background(), "C1", 0)
		done <- outcome{resp, err}
	}()

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	require.NoError(t, fc.BlockUntilContext(ctx, 1))
	require.Len(t, fake.recorded(), 1)

	fc.Advance(2 * time.Second)
	select {
	case out := <-done:
		require.NoError(t, out.err)
		require.True(t, out.resp.OK)
	case <-time.After(2 * time.Second):
		t.Fatal("rate limited call was not retried")
	}

	reqs := fake.recorded()
	require.Len(t, reqs, 2)
	require.Equal(t, "10", reqs[1].Query.Get("limit"))
}

func TestServerErrorsExhaustRetries(t *testing.T) {
	fake := &fakeSlack{handle: func(w http.ResponseWriter, r recordedRequest) {
		w.WriteHeader(http.StatusBadGateway)
	}}
	client := newTestClient(t, fake)

	_, err := client.UserProfile(context.Background(), "U1")
	require.ErrorContains(t, err, "users.profile.get: slack api unavailable after 3 attempts")
	require.Len(t, fake.recorded(), 3)
}

func TestSlackErrorIsReturnedAsResponse(t *testing.T) {
	fake := &fakeSlack{handle: func(w http.ResponseWriter, r recordedRequest) {
		writeJSON(w, http.StatusOK, map[string]any{"ok": false, "error": "channel_not_found"})
	}}
	client := newTestClient(t, fake)

	resp, err := client.ArchiveChannel(context.Background(), "C404")
	require.NoError(t, err)
	require.False(t, resp.OK)

	var apiErr *APIError
	require.ErrorAs(t, resp.Err(), &apiErr)
	require.Equal(t, "channel_not_found", apiErr.Code)
	require.Equal(t, "slack api error: channel_not_found", apiErr.Error())
}

func TestReactionStripsColons(t *testing.T) {
	fake := &fakeSlack{}
	client := newTestClient(t, fake)

	_, err := client.AddReaction(context.Background(), "C1", "1.2", ":tada:")
	require.NoError(t, err)
	_, err = client.RemoveReaction(context.Background(), "C1", "1.2", "tada")
	require.NoError(t, err)

	reqs := fake.recorded()
	require.Equal(t, "reactions.add", reqs[0].Path)
	require.Equal(t, "tada", reqs[0].Body["name"])
	require.Equal(t, "reactions.remove", reqs[1].Path)
	require.Equal(t, "tada", reqs[1].Body["name"])
}

func TestSearchMessagesRequiresUserToken(t *testing.T) {
	fake := &fakeSlack{}
	client := newTestClient(t, fake)

	_, err := client.SearchMessages(context.Background(), "deploy", 10)
	require.ErrorIs(t, err, ErrUserTokenRequired)
	require.Empty(t, fake.recorded())

	client.UserToken = "xoxp-user"
	_, err = client.SearchMessages(context.Background(), "deploy", 500)
	require.NoError(t, err)

	req := fake.recorded()[0]
	require.Equal(t, "search.messages", req.Path)
	require.Equal(t, "Bearer xoxp-user", req.Auth)
	require.Equal(t, "100", req.Query.Get("count"))
}

func TestChannelAdministration(t *testing.T) {
	fake := &fakeSlack{}
	client := newTestClient(t, fake)
	ctx := context.Background()

	_, err := client.CreateChannel(ctx, "incident-42", true)
	require.NoError(t, err)
	_, err = client.SetTopic(ctx, "C1", "status: green")
	require.NoError(t, err)
	_, err = client.SetPurpose(ctx, "C1", "incident room")
	require.NoError(t, err)
	_, err = client.PinMessage(ctx, "C1", "1.2")
	require.NoError(t, err)
	_, err = client.UnpinMessage(ctx, "C1", "1.2")
	require.NoError(t, err)

	reqs := fake.recorded()
	require.Len(t, reqs, 5)
	require.Equal(t, "conversations.create", reqs[0].Path)
	require.Equal(t, true, reqs[0].Body["is_private"])
	require.Equal(t, "status: green", reqs[1].Body["topic"])
	require.Equal(t, "incident room", reqs[2].Body["purpose"])
	require.Equal(t, "pins.add", reqs[3].Path)
	require.Equal(t, "pins.remove", reqs[4].Path)
}

func TestResponseRateLimitSignal(t *testing.T) {
	var nilResp *Response
	require.False(t, nilResp.RateLimited())
	require.Empty(t, nilResp.RetryAfterHint())
	require.NoError(t, nilResp.Err())

	require.True(t, (&Response{StatusCode: http.StatusTooManyRequests}).RateLimited())
	require.True(t, (&Response{StatusCode: http.StatusOK, Error: "ratelimited"}).RateLimited())
	require.False(t, (&Response{StatusCode: http.StatusOK, OK: true}).RateLimited())

	var signal engine.RateLimitSignal = &Response{RetryAfter: "9"}
	require.Equal(t, "9", signal.RetryAfterHint())
}

func TestDecodeResponse(t *testing.T) {
	resp, err := decodeResponse(http.StatusTooManyRequests, http.Header{"Retry-After": []string{"3"}}, nil)
	require.NoError(t, err)
	require.True(t, resp.RateLimited())
	require.Equal(t, "3", resp.RetryAfter)

	_, err = decodeResponse(http.StatusOK, http.Header{}, []byte("<html>"))
	require.Error(t, err)

	resp, err = decodeResponse(http.StatusOK, http.Header{}, []byte(`{"ok":true,"channel":{"id":"C1"}}`))
	require.NoError(t, err)
	require.True(t, resp.OK)
	require.Equal(t, "C1", resp.Object("channel")["id"])

	payload, err := json.Marshal(resp)
	require.NoError(t, err)
	require.JSONEq(t, `{"ok":true,"channel":{"id":"C1"}}`, string(payload))
}
