package tools

import "context"

func (r *Registry) registerUserTools() {
	r.register(Descriptor{
		Name:        "slack_get_users",
		Title:       "Get Slack Users",
		Description: "Get a list of all users in the workspace with their basic profile information",
		Params: []Param{
			{Name: "cursor", Type: "string", Description: "Pagination cursor for next page of results"},
			{Name: "limit", Type: "number", Description: "Maximum number of users to return (default 100, max 200)", Default: 100},
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
		return r.client.Users(ctx, limit, cursor)
	})

	r.register(Descriptor{
		Name:        "slack_get_user_profile",
		Title:       "Get Slack User Profile",
		Description: "Get detailed profile information for a specific user",
		Params: []Param{
			{Name: "user_id", Type: "string", Description: "The ID of the user", Required: true},
		},
	}, func(ctx context.Context, args Args) (any, error) {
		user, err := args.requiredString("user_id")
		if err != nil {
			return nil, err
		}
		return r.client.UserProfile(ctx, user)
	})
}

func (r *Registry) registerSearchTools() {
	r.register(Descriptor{
		Name:        "slack_search_messages",
		Title:       "Search Slack Messages",
		Description: "Search messages across the workspace (requires a user token)",
		Params: []Param{
			{Name: "query", Type: "string", Description: "Search query using Slack search syntax", Required: true},
			{Name: "count", Type: "number", Description: "Number of results to return (default 20, max 100)", Default: 20},
		},
	}, func(ctx context.Context, args Args) (any, error) {
		query, err := args.requiredString("query")
		if err != nil {
			return nil, err
		}
		count, err := args.optionalInt("count", 20)
		if err != nil {
			return nil, err
		}
		return r.client.SearchMessages(ctx, query, count)
	})
}
