package cmd

import (
	"encoding/json"
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"github.com/lvl0lvl/slack-mcp-identity-server/internal/observability"
	"github.com/lvl0lvl/slack-mcp-identity-server/internal/output"
	"github.com/lvl0lvl/slack-mcp-identity-server/internal/tools"
)

var toolsCallArgs string

var toolsCmd = &cobra.Command{
	Use:   "tools",
	Short: "List or invoke Slack tools from the command line",
}

var toolsListCmd = &cobra.Command{
	Use:   "list",
	Short: "List the available tools and their parameters",
	RunE: func(cmd *cobra.Command, args []string) error {
		catalogue := tools.NewRegistry(nil).List()
		return writeRendered(cmd, func(f output.Formatter) (string, error) {
			return f.FormatTools(catalogue)
		})
	},
}

var toolsCallCmd = &cobra.Command{
	Use:   "call <tool>",
	Short: "Invoke one tool through the rate-limited scheduler",
	Example: `  slack-mcp-identity-server tools call slack_post_message \
    --args '{"channel_id":"C0123","text":"deploy finished","agent_id":"deployer"}'`,
	Args: cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		toolArgs, err := parseToolArgs(toolsCallArgs)
		if err != nil {
			return err
		}

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

		runner := timedRunner{Registry: a.registry, timeout: cfg.Scheduler.CallTimeout}
		result, err := runner.Call(cmd.Context(), args[0], toolArgs)
		if err != nil {
			return err
		}

		payload, err := json.MarshalIndent(result, "", "  ")
		if err != nil {
			return err
		}
		_, err = fmt.Fprintln(cmd.OutOrStdout(), string(payload))
		return err
	},
}

// parseToolArgs decodes a JSON object, keeping numbers as json.Number the
// same way the HTTP handler does.
func parseToolArgs(raw string) (tools.Args, error) {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return tools.Args{}, nil
	}
	dec := json.NewDecoder(strings.NewReader(raw))
	dec.UseNumber()
	var args tools.Args
	if err := dec.Decode(&args); err != nil {
		return nil, fmt.Errorf("--args must be a JSON object: %w", err)
	}
	if args == nil {
		args = tools.Args{}
	}
	return args, nil
}

func init() {
	toolsCmd.AddCommand(toolsListCmd)
	toolsCmd.AddCommand(toolsCallCmd)
	rootCmd.AddCommand(toolsCmd)

	addOutputFlags(toolsListCmd)
	toolsCallCmd.Flags().StringVar(&toolsCallArgs, "args", "", "tool arguments as a JSON object")
}
