package cmd

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/lvl0lvl/slack-mcp-identity-server/internal/observability"
)

var authTestCmd = &cobra.Command{
	Use:   "auth-test",
	Short: "Verify the Slack bot token with auth.test",
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := loadConfig()
		if err != nil {
			return err
		}
		if err := validateSlack(cfg); err != nil {
			return err
		}

		a, err := newApp(cmd.Context(), cfg, observability.Current())
		if err != nil {
			return err
		}
		defer a.close()

		resp, err := a.authTest(cmd.Context())
		if err != nil {
			return fmt.Errorf("auth.test: %w", err)
		}

		out := cmd.OutOrStdout()
		fmt.Fprintf(out, "Team:    %s (%s)\n", resp.String("team"), resp.String("team_id"))
		fmt.Fprintf(out, "User:    %s (%s)\n", resp.String("user"), resp.String("user_id"))
		if url := resp.String("url"); url != "" {
			fmt.Fprintf(out, "URL:     %s\n", url)
		}
		if cfg.Slack.UserToken == "" {
			fmt.Fprintln(out, "Search:  disabled (no user token)")
		} else {
			fmt.Fprintln(out, "Search:  enabled")
		}
		if a.agents != nil {
			fmt.Fprintf(out, "Agents:  %d configured\n", len(a.agents.Agents))
		}
		return nil
	},
}

func init() {
	rootCmd.AddCommand(authTestCmd)
}
