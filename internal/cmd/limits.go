package cmd

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"github.com/lvl0lvl/slack-mcp-identity-server/internal/core/engine"
	"github.com/lvl0lvl/slack-mcp-identity-server/internal/output"
)

const remoteLimitsTimeout = 10 * time.Second

var (
	limitsRemote string
	limitsToken  string
)

var limitsCmd = &cobra.Command{
	Use:   "limits",
	Short: "Show per-method Slack budgets and window usage",
	Long: `Show the per-method budgets the scheduler enforces.

Without --remote the configured budgets are shown with an empty window.
With --remote the live snapshot of a running server is fetched from
/v1/limits using --token (or SLACK_MCP_AUTH_TOKEN).`,
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := loadConfig()
		if err != nil {
			return err
		}

		var stats engine.Stats
		if remote := strings.TrimSpace(limitsRemote); remote != "" {
			token := limitsToken
			if token == "" {
				token = cfg.Auth.Token
			}
			client := &http.Client{Timeout: remoteLimitsTimeout}
			stats, err = fetchRemoteLimits(cmd.Context(), client, remote, token)
			if err != nil {
				return err
			}
		} else {
			scheduler := newScheduler(cfg, nil)
			defer scheduler.Close()
			stats = scheduler.Snapshot()
		}

		now := time.Now()
		return writeRendered(cmd, func(f output.Formatter) (string, error) {
			return f.FormatLimits(stats, now)
		})
	},
}

// fetchRemoteLimits reads the scheduler snapshot of a running server.
func fetchRemoteLimits(ctx context.Context, client *http.Client, baseURL, token string) (engine.Stats, error) {
	url := strings.TrimRight(baseURL, "/") + "/v1/limits"
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return engine.Stats{}, err
	}
	req.Header.Set("Accept", "application/json")
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}

	resp, err := client.Do(req)
	if err != nil {
		return engine.Stats{}, fmt.Errorf("fetch %s: %w", url, err)
	}
	defer resp.Body.Close() // nolint:errcheck // best-effort cleanup

	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
		return engine.Stats{}, fmt.Errorf("fetch %s: status %d: %s", url, resp.StatusCode, strings.TrimSpace(string(body)))
	}

	var stats engine.Stats
	if err := json.NewDecoder(resp.Body).Decode(&stats); err != nil {
		return engine.Stats{}, fmt.Errorf("decode limits: %w", err)
	}
	return stats, nil
}

func init() {
	rootCmd.AddCommand(limitsCmd)
	addOutputFlags(limitsCmd)
	limitsCmd.Flags().StringVar(&limitsRemote, "remote", "", "base URL of a running server (e.g. http://localhost:3000)")
	limitsCmd.Flags().StringVar(&limitsToken, "token", "", "bearer token for --remote")
}
